package mailstore

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// GmailMailer delivers mail through the sender account. It satisfies
// Mailer.
type GmailMailer struct {
	srv    *gmail.Service
	from   string
	logger *slog.Logger
}

// NewGmailMailer authenticates against the sender account with the send
// scope only. The from address is used on every outbound message.
func NewGmailMailer(ctx context.Context, credentialsFile, tokenFile, from string, logger *slog.Logger) (*GmailMailer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	httpClient, err := oauthClient(ctx, credentialsFile, tokenFile, gmail.GmailSendScope)
	if err != nil {
		return nil, fmt.Errorf("authenticate sender account: %w", err)
	}
	srv, err := gmail.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("create Gmail service: %w", err)
	}
	return &GmailMailer{
		srv:    srv,
		from:   from,
		logger: logger.With("component", "mailer"),
	}, nil
}

// Send implements Mailer. One attempt, no retry: a failed delivery
// surfaces to the caller and the run is rerun on the next schedule.
func (m *GmailMailer) Send(ctx context.Context, to, subject, htmlBody, textBody string) error {
	msg, err := composeIssue(m.from, to, subject, htmlBody, textBody)
	if err != nil {
		return fmt.Errorf("compose message: %w", err)
	}
	return m.sendRaw(ctx, msg)
}

// SendPlain delivers a single-part plain-text message. Used for failure
// notifications.
func (m *GmailMailer) SendPlain(ctx context.Context, to, subject, body string) error {
	msg, err := composePlain(m.from, to, subject, body)
	if err != nil {
		return fmt.Errorf("compose message: %w", err)
	}
	return m.sendRaw(ctx, msg)
}

func (m *GmailMailer) sendRaw(ctx context.Context, msg []byte) error {
	_, err := m.srv.Users.Messages.Send(gmailUser, &gmail.Message{
		Raw: base64.URLEncoding.EncodeToString(msg),
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	m.logger.Info("message sent", "bytes", len(msg))
	return nil
}
