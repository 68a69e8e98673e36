// Package mailstore provides access to the two Gmail accounts the
// generator touches: the source account whose labeled newsletters are
// read, and the sender account the finished issue goes out from.
//
// The rest of the pipeline only sees the MailStore and Mailer interfaces
// and the RawMessage record; everything Gmail-specific stays here.
package mailstore

import (
	"context"
	"time"
)

// RawMessage is one mailbox item as fetched. It is immutable once
// fetched and discarded after extraction; nothing downstream holds on
// to it.
type RawMessage struct {
	ID       string
	From     string
	Subject  string
	Received time.Time

	// BodyHTML is the text/html body part, if present.
	BodyHTML string

	// BodyText is the text/plain body part, used when no HTML part exists.
	BodyText string

	Labels []string
}

// FetchOptions control one mailbox query.
type FetchOptions struct {
	// Since bounds the query window; only messages received after it
	// are returned.
	Since time.Time

	// IncludeRead includes already-read messages. By default only
	// unread messages are fetched.
	IncludeRead bool
}

// MailStore lists labeled newsletter messages and marks them processed.
type MailStore interface {
	// ListLabeledMessages returns the raw messages carrying the
	// configured newsletter label (or any of its sublabels) within the
	// query window.
	ListLabeledMessages(ctx context.Context, opts FetchOptions) ([]RawMessage, error)

	// MarkRead flags the given messages as read so the next run's
	// unread query skips them.
	MarkRead(ctx context.Context, ids []string) error
}

// Mailer delivers a finished issue. htmlBody and textBody become the
// alternative parts of one multipart message. SendPlain carries the
// plain-text failure notification.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody, textBody string) error
	SendPlain(ctx context.Context, to, subject, body string) error
}
