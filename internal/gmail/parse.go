package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/rs/zerolog"
	gm "google.golang.org/api/gmail/v1"

	"github.com/daviddao/mailagent/internal/types"
)

var lineBreaks = regexp.MustCompile(`[\r\n]+`)

// Parse resolves each reference to a full message and converts it to an
// email sample. Messages that cannot be fetched, or that have no readable
// body, are logged and skipped.
func Parse(ctx context.Context, svc *gm.Service, refs []types.MessageRef, logger zerolog.Logger) ([]*types.Email, error) {
	log := logger.With().Str("component", "parser").Logger()

	emails := make([]*types.Email, 0, len(refs))
	for i, ref := range refs {
		if err := ctx.Err(); err != nil {
			return emails, err
		}

		msg, err := svc.Users.Messages.Get("me", ref.ID).
			Format("full").
			Context(ctx).
			Do()
		if err != nil {
			log.Warn().Err(err).Str("id", ref.ID).Msg("fetch message failed, skipping")
			continue
		}

		email := ParseMessage(msg)
		if email == nil {
			log.Debug().Str("id", ref.ID).Msg("no readable body, skipping")
			continue
		}
		if email.ThreadID == "" {
			email.ThreadID = ref.ThreadID
		}

		log.Debug().
			Int("n", i+1).
			Str("id", email.ID).
			Str("thread_id", email.ThreadID).
			Str("subject", email.Subject).
			Msg("parsed message")
		emails = append(emails, email)
	}
	return emails, nil
}

// ParseMessage converts a full-format message to an email sample, or returns
// nil when the message has no readable body.
func ParseMessage(msg *gm.Message) *types.Email {
	if msg == nil || msg.Payload == nil {
		return nil
	}

	body := extractBody(msg.Payload)
	if body == "" {
		return nil
	}

	headers := headerMap(msg.Payload.Headers)
	return types.NewEmail(
		msg.Id,
		msg.ThreadId,
		headers["Subject"],
		headers["From"],
		headers["To"],
		headers["Date"],
		NormalizeContent(body),
	)
}

// NormalizeContent trims the body and collapses runs of line breaks.
func NormalizeContent(content string) string {
	return lineBreaks.ReplaceAllString(strings.TrimSpace(content), "\n")
}

// extractBody gets the readable text from a message payload.
// Handles multipart messages recursively, preferring text/plain over text/html.
func extractBody(payload *gm.MessagePart) string {
	if text := findPart(payload, "text/plain"); text != "" {
		return text
	}
	if html := findPart(payload, "text/html"); html != "" {
		md, err := htmltomarkdown.ConvertString(html)
		if err != nil {
			return html
		}
		return md
	}

	// Single-part messages with another text type still carry body data.
	if payload.Body != nil && payload.Body.Data != "" && len(payload.Parts) == 0 {
		if decoded, err := decodeBase64URL(payload.Body.Data); err == nil {
			return decoded
		}
	}
	return ""
}

// findPart returns the first decoded body of the given MIME type.
func findPart(part *gm.MessagePart, mimeType string) string {
	if part.MimeType == mimeType && part.Body != nil && part.Body.Data != "" {
		if decoded, err := decodeBase64URL(part.Body.Data); err == nil && strings.TrimSpace(decoded) != "" {
			return decoded
		}
	}
	for _, child := range part.Parts {
		if text := findPart(child, mimeType); text != "" {
			return text
		}
	}
	return ""
}

// headerMap converts Gmail API headers into a simple key-value map.
// The first occurrence of a header wins.
func headerMap(headers []*gm.MessagePartHeader) map[string]string {
	m := make(map[string]string, len(headers))
	for _, h := range headers {
		if _, ok := m[h.Name]; !ok {
			m[h.Name] = h.Value
		}
	}
	return m
}

// decodeBase64URL decodes Gmail's base64url content with or without padding.
func decodeBase64URL(data string) (string, error) {
	decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
	if err != nil {
		return "", fmt.Errorf("decode body: %w", err)
	}
	return string(decoded), nil
}
