package mailstore

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

const gmailUser = "me"

// GmailStore reads newsletter messages from the source account via the
// Gmail API. It satisfies MailStore.
type GmailStore struct {
	srv         *gmail.Service
	labelPrefix string
	maxMessages int64
	logger      *slog.Logger
}

// NewGmailStore authenticates against the source account and returns a
// store scoped to the given label prefix. The modify scope is required
// so processed messages can be marked read.
func NewGmailStore(ctx context.Context, credentialsFile, tokenFile, labelPrefix string, maxMessages int64, logger *slog.Logger) (*GmailStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	httpClient, err := oauthClient(ctx, credentialsFile, tokenFile, gmail.GmailModifyScope)
	if err != nil {
		return nil, fmt.Errorf("authenticate source account: %w", err)
	}
	srv, err := gmail.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("create Gmail service: %w", err)
	}
	return &GmailStore{
		srv:         srv,
		labelPrefix: labelPrefix,
		maxMessages: maxMessages,
		logger:      logger.With("component", "mailstore"),
	}, nil
}

// ListLabeledMessages implements MailStore. It discovers every label
// under the configured prefix, builds one OR query over them, and
// fetches each matching message in full.
func (s *GmailStore) ListLabeledMessages(ctx context.Context, opts FetchOptions) ([]RawMessage, error) {
	labels, err := s.newsletterLabels(ctx)
	if err != nil {
		return nil, err
	}

	query := buildQuery(labels, opts)
	s.logger.Info("fetching messages", "query", query, "labels", len(labels))

	list, err := s.srv.Users.Messages.List(gmailUser).
		Q(query).
		MaxResults(s.maxMessages).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	var messages []RawMessage
	for _, m := range list.Messages {
		full, err := s.srv.Users.Messages.Get(gmailUser, m.Id).Format("full").Context(ctx).Do()
		if err != nil {
			// One unfetchable message should not sink the run.
			s.logger.Warn("failed to fetch message", "id", m.Id, "error", err)
			continue
		}
		messages = append(messages, parseMessage(full))
	}

	s.logger.Info("fetched messages", "count", len(messages))
	return messages, nil
}

// MarkRead implements MailStore by removing the UNREAD label. Failures
// on individual messages are logged and skipped; a message left unread
// costs at most a repeat appearance next run.
func (s *GmailStore) MarkRead(ctx context.Context, ids []string) error {
	for _, id := range ids {
		_, err := s.srv.Users.Messages.Modify(gmailUser, id, &gmail.ModifyMessageRequest{
			RemoveLabelIds: []string{"UNREAD"},
		}).Context(ctx).Do()
		if err != nil {
			s.logger.Warn("failed to mark message read", "id", id, "error", err)
		}
	}
	return nil
}

// newsletterLabels returns the names of the prefix label and all its
// sublabels.
func (s *GmailStore) newsletterLabels(ctx context.Context) ([]string, error) {
	resp, err := s.srv.Users.Labels.List(gmailUser).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("list labels: %w", err)
	}

	var names []string
	for _, l := range resp.Labels {
		if l.Name == s.labelPrefix || strings.HasPrefix(l.Name, s.labelPrefix+"/") {
			names = append(names, l.Name)
		}
	}
	return names, nil
}

// buildQuery assembles a Gmail search query over the given labels.
// Gmail's `{label:"A" label:"B"}` syntax means A OR B. An empty label
// list falls back to searching all mail in the window.
func buildQuery(labels []string, opts FetchOptions) string {
	var parts []string

	if len(labels) > 0 {
		quoted := make([]string, len(labels))
		for i, l := range labels {
			quoted[i] = fmt.Sprintf("label:%q", l)
		}
		parts = append(parts, "{"+strings.Join(quoted, " ")+"}")
	}

	if !opts.IncludeRead {
		parts = append(parts, "is:unread")
	}
	if !opts.Since.IsZero() {
		parts = append(parts, fmt.Sprintf("after:%d", opts.Since.Unix()))
	}

	return strings.Join(parts, " ")
}

// parseMessage converts a full Gmail message into a RawMessage.
func parseMessage(msg *gmail.Message) RawMessage {
	raw := RawMessage{
		ID:     msg.Id,
		Labels: msg.LabelIds,
	}

	if msg.Payload == nil {
		return raw
	}

	for _, h := range msg.Payload.Headers {
		switch h.Name {
		case "From":
			raw.From = h.Value
		case "Subject":
			raw.Subject = h.Value
		case "Date":
			raw.Received = parseDate(h.Value)
		}
	}

	// InternalDate is Gmail's own receipt time and beats a malformed
	// Date header.
	if raw.Received.IsZero() && msg.InternalDate > 0 {
		raw.Received = time.UnixMilli(msg.InternalDate).UTC()
	}

	raw.BodyHTML = findBody(msg.Payload, "text/html")
	raw.BodyText = findBody(msg.Payload, "text/plain")
	return raw
}

// dateLayouts covers the header formats seen in the wild, most common
// first.
var dateLayouts = []string{
	time.RFC1123Z,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"2 Jan 2006 15:04:05 -0700",
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
}

// parseDate parses an RFC 5322 Date header, tolerating the trailing
// "(TZ)" comment some senders append. Returns the zero time when no
// layout matches.
func parseDate(s string) time.Time {
	s = strings.TrimSpace(s)

	// Strip a trailing parenthesized zone comment: "... -0700 (PDT)".
	if open := strings.LastIndex(s, " ("); open != -1 && strings.HasSuffix(s, ")") {
		s = strings.TrimSpace(s[:open])
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// findBody walks the MIME part tree and returns the decoded body of the
// first part with the wanted MIME type.
func findBody(part *gmail.MessagePart, mimeType string) string {
	if part == nil {
		return ""
	}
	if part.MimeType == mimeType && part.Body != nil && part.Body.Data != "" {
		return decodeBody(part.Body.Data)
	}
	// A single-part message reports its type on the payload itself;
	// multiparts descend.
	for _, p := range part.Parts {
		if strings.HasPrefix(p.MimeType, "multipart/") || p.MimeType == mimeType {
			if body := findBody(p, mimeType); body != "" {
				return body
			}
		}
	}
	return ""
}

// decodeBody decodes Gmail's URL-safe base64 body data, tolerating both
// padded and unpadded forms.
func decodeBody(data string) string {
	if b, err := base64.URLEncoding.DecodeString(data); err == nil {
		return string(b)
	}
	if b, err := base64.RawURLEncoding.DecodeString(data); err == nil {
		return string(b)
	}
	return ""
}
