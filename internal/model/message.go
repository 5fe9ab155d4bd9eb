package model

import "time"

// EmailMessage is the provider-supplied envelope for a single mail message.
// It is immutable once fetched; the pipeline never writes back to it.
type EmailMessage struct {
	SentAt  time.Time
	ID      string // provider message identifier, unique per message
	Subject string
	From    string
	Payload *MessagePart
}

// MessagePart is one node of a (possibly multi-part) MIME tree.
// Data carries the base64url-encoded section body as the provider sends it.
type MessagePart struct {
	MimeType string
	Data     string
	Parts    []*MessagePart
}
