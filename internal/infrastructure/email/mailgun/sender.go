package mailgun

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/quillsign/quillsign/internal/domain/services"
)

// Sender submits raw MIME messages through the Mailgun API. The sending
// domain and API key travel with each message because they come from
// the per-business email template, not from static configuration.
type Sender struct {
	client *resty.Client
}

func NewSender(baseURL string, timeout time.Duration) *Sender {
	return &Sender{
		client: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(timeout),
	}
}

func (s *Sender) Send(ctx context.Context, msg services.EmailMessage) error {
	if msg.Server == "" || msg.APIKey == "" {
		return fmt.Errorf("no email server configured")
	}

	to := strings.TrimSpace(msg.To)

	resp, err := s.client.R().
		SetContext(ctx).
		SetBasicAuth("api", msg.APIKey).
		SetFormData(map[string]string{"to": to}).
		SetFileReader("message", "email", bytes.NewReader(BuildMIME(msg))).
		Post("/" + msg.Server + "/messages.mime")
	if err != nil {
		return fmt.Errorf("failed to submit email to %s: %w", to, err)
	}
	if resp.IsError() {
		return fmt.Errorf("mailgun rejected email to %s: %d %s", to, resp.StatusCode(), resp.String())
	}
	return nil
}

// BuildMIME assembles the plain-text message with its headers.
func BuildMIME(msg services.EmailMessage) []byte {
	var b strings.Builder

	writeHeader := func(name, value string) {
		if value == "" {
			return
		}
		b.WriteString(name)
		b.WriteString(": ")
		b.WriteString(value)
		b.WriteString("\r\n")
	}

	writeHeader("Subject", msg.Subject)
	writeHeader("From", msg.Sender)
	writeHeader("To", strings.TrimSpace(msg.To))
	writeHeader("Reply-To", msg.ReplyTo)
	writeHeader("MIME-Version", "1.0")
	writeHeader("Content-Type", `text/plain; charset="utf-8"`)
	b.WriteString("\r\n")
	b.WriteString(msg.Body)

	return []byte(b.String())
}
