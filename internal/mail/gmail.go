// Package mail provides the Gmail provider client and email body extraction.
package mail

import (
	"context"
	"fmt"
	netmail "net/mail"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/fennwick/ledgermail/internal/model"
)

// PurchaseQuery matches the subject keywords of purchase-confirmation emails.
const PurchaseQuery = `subject:(receipt OR order OR invoice OR purchase OR confirmation)`

// GmailClient implements service.MailClient against the Gmail API.
type GmailClient struct {
	svc *gmail.Service
}

// NewGmailClient builds a Gmail client from a user's refresh token.
func NewGmailClient(ctx context.Context, clientID, clientSecret, refreshToken string) (*GmailClient, error) {
	if clientID == "" || clientSecret == "" {
		return nil, fmt.Errorf("google client credentials are required")
	}
	if refreshToken == "" {
		return nil, fmt.Errorf("refresh token is required")
	}

	cfg := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{gmail.GmailReadonlyScope},
	}

	ts := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	svc, err := gmail.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}

	return &GmailClient{svc: svc}, nil
}

// ListMessages returns message IDs matching the query sent after since.
func (c *GmailClient) ListMessages(ctx context.Context, query string, since time.Time) ([]string, error) {
	q := query
	if !since.IsZero() {
		q = fmt.Sprintf("%s after:%s", query, since.Format("2006/01/02"))
	}

	var ids []string
	pageToken := ""
	for {
		call := c.svc.Users.Messages.List("me").Q(q).Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("failed to list messages: %w", err)
		}

		for _, m := range resp.Messages {
			ids = append(ids, m.Id)
		}

		if resp.NextPageToken == "" {
			return ids, nil
		}
		pageToken = resp.NextPageToken
	}
}

// GetMessage fetches a full message and maps it to the provider-neutral envelope.
func (c *GmailClient) GetMessage(ctx context.Context, messageID string) (*model.EmailMessage, error) {
	msg, err := c.svc.Users.Messages.Get("me", messageID).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get message %s: %w", messageID, err)
	}

	envelope := &model.EmailMessage{
		ID:      msg.Id,
		Payload: convertPart(msg.Payload),
	}

	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			switch h.Name {
			case "Subject":
				envelope.Subject = h.Value
			case "From":
				envelope.From = h.Value
			case "Date":
				if parsed, parseErr := netmail.ParseDate(h.Value); parseErr == nil {
					envelope.SentAt = parsed
				}
			}
		}
	}

	// The internal timestamp is authoritative when the Date header is missing
	// or unparseable.
	if envelope.SentAt.IsZero() && msg.InternalDate > 0 {
		envelope.SentAt = time.UnixMilli(msg.InternalDate)
	}

	return envelope, nil
}

func convertPart(p *gmail.MessagePart) *model.MessagePart {
	if p == nil {
		return nil
	}

	part := &model.MessagePart{
		MimeType: p.MimeType,
	}
	if p.Body != nil {
		part.Data = p.Body.Data
	}
	for _, child := range p.Parts {
		part.Parts = append(part.Parts, convertPart(child))
	}

	return part
}
