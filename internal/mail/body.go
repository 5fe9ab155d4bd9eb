package mail

import (
	"encoding/base64"
	"strings"

	"golang.org/x/net/html"

	"github.com/fennwick/ledgermail/internal/model"
)

// ExtractBody returns the best-effort plain text of a message payload.
// Multipart messages prefer the first text/plain part in tree order, then the
// first text/html part (stripped to text). Single-part messages decode the
// body directly. Extraction never fails: undecodable content yields "".
func ExtractBody(payload *model.MessagePart) string {
	if payload == nil {
		return ""
	}

	if len(payload.Parts) > 0 {
		if plain := findPart(payload, "text/plain"); plain != nil {
			return decodeData(plain.Data)
		}
		if htmlPart := findPart(payload, "text/html"); htmlPart != nil {
			return StripHTML(decodeData(htmlPart.Data))
		}
		return ""
	}

	text := decodeData(payload.Data)
	if strings.HasPrefix(payload.MimeType, "text/html") {
		return StripHTML(text)
	}
	return text
}

// findPart walks the part tree depth-first and returns the first part whose
// MIME type matches.
func findPart(p *model.MessagePart, mimeType string) *model.MessagePart {
	if p == nil {
		return nil
	}
	if p.MimeType == mimeType && p.Data != "" {
		return p
	}
	for _, child := range p.Parts {
		if found := findPart(child, mimeType); found != nil {
			return found
		}
	}
	return nil
}

// decodeData decodes the provider's base64url body data. Providers are
// inconsistent about padding, so both raw and padded forms are accepted.
func decodeData(data string) string {
	if data == "" {
		return ""
	}
	decoded, err := base64.RawURLEncoding.DecodeString(data)
	if err != nil {
		decoded, err = base64.URLEncoding.DecodeString(data)
		if err != nil {
			return ""
		}
	}
	return string(decoded)
}

// StripHTML reduces an HTML document to its visible text with whitespace
// collapsed. Script and style contents are dropped. Malformed markup is
// tolerated; the tokenizer consumes whatever it can.
func StripHTML(markup string) string {
	if markup == "" {
		return ""
	}

	var words []string
	skipDepth := 0
	tokenizer := html.NewTokenizer(strings.NewReader(markup))

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return strings.Join(words, " ")
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			if tag := string(name); tag == "script" || tag == "style" {
				skipDepth++
			}
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			if tag := string(name); (tag == "script" || tag == "style") && skipDepth > 0 {
				skipDepth--
			}
		case html.TextToken:
			if skipDepth > 0 {
				continue
			}
			words = append(words, strings.Fields(string(tokenizer.Text()))...)
		}
	}
}
