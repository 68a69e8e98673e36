package mailstore

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"google.golang.org/api/gmail/v1"
)

func TestBuildQuery(t *testing.T) {
	since := time.Date(2025, 9, 12, 6, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		labels []string
		opts   FetchOptions
		want   string
	}{
		{
			"labels unread window",
			[]string{"Newsletters", "Newsletters/Finance"},
			FetchOptions{Since: since},
			`{label:"Newsletters" label:"Newsletters/Finance"} is:unread after:1757656800`,
		},
		{
			"include read",
			[]string{"Newsletters"},
			FetchOptions{Since: since, IncludeRead: true},
			`{label:"Newsletters"} after:1757656800`,
		},
		{
			"no window",
			[]string{"Newsletters"},
			FetchOptions{},
			`{label:"Newsletters"} is:unread`,
		},
		{
			"no labels",
			nil,
			FetchOptions{IncludeRead: true},
			"",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buildQuery(tt.labels, tt.opts); got != tt.want {
				t.Errorf("buildQuery() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		zero bool
	}{
		{"Fri, 12 Sep 2025 07:30:00 -0400", false},
		{"Fri, 12 Sep 2025 07:30:00 -0400 (EDT)", false},
		{"12 Sep 2025 07:30:00 +0000", false},
		{"Fri, 12 Sep 2025 07:30:00 GMT", false},
		{"not a date", true},
		{"", true},
	}

	for _, tt := range tests {
		got := parseDate(tt.in)
		if got.IsZero() != tt.zero {
			t.Errorf("parseDate(%q) = %v, zero = %v", tt.in, got, tt.zero)
		}
	}

	withComment := parseDate("Fri, 12 Sep 2025 07:30:00 -0400 (EDT)")
	plain := parseDate("Fri, 12 Sep 2025 07:30:00 -0400")
	if !withComment.Equal(plain) {
		t.Errorf("zone comment changed the parsed time: %v vs %v", withComment, plain)
	}
}

func enc(s string) string {
	return base64.URLEncoding.EncodeToString([]byte(s))
}

func TestDecodeBody(t *testing.T) {
	if got := decodeBody(enc("hello")); got != "hello" {
		t.Errorf("decodeBody(padded) = %q", got)
	}
	raw := base64.RawURLEncoding.EncodeToString([]byte("hello"))
	if got := decodeBody(raw); got != "hello" {
		t.Errorf("decodeBody(raw) = %q", got)
	}
	if got := decodeBody("!!not base64!!"); got != "" {
		t.Errorf("decodeBody(garbage) = %q, want empty", got)
	}
}

func TestParseMessageMultipart(t *testing.T) {
	msg := &gmail.Message{
		Id:           "m1",
		LabelIds:     []string{"Label_1", "UNREAD"},
		InternalDate: time.Date(2025, 9, 12, 11, 30, 0, 0, time.UTC).UnixMilli(),
		Payload: &gmail.MessagePart{
			MimeType: "multipart/alternative",
			Headers: []*gmail.MessagePartHeader{
				{Name: "From", Value: "Exec Sum <hello@execsum.co>"},
				{Name: "Subject", Value: "Daily dose"},
				{Name: "Date", Value: "Fri, 12 Sep 2025 07:30:00 -0400"},
			},
			Parts: []*gmail.MessagePart{
				{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: enc("plain body")}},
				{MimeType: "text/html", Body: &gmail.MessagePartBody{Data: enc("<p>html body</p>")}},
			},
		},
	}

	raw := parseMessage(msg)
	if raw.ID != "m1" || raw.From != "Exec Sum <hello@execsum.co>" || raw.Subject != "Daily dose" {
		t.Errorf("parseMessage() = %+v", raw)
	}
	if raw.BodyHTML != "<p>html body</p>" {
		t.Errorf("BodyHTML = %q", raw.BodyHTML)
	}
	if raw.BodyText != "plain body" {
		t.Errorf("BodyText = %q", raw.BodyText)
	}
	want := time.Date(2025, 9, 12, 7, 30, 0, 0, time.FixedZone("", -4*3600))
	if !raw.Received.Equal(want) {
		t.Errorf("Received = %v, want %v", raw.Received, want)
	}
}

func TestParseMessageInternalDateFallback(t *testing.T) {
	internal := time.Date(2025, 9, 12, 11, 30, 0, 0, time.UTC)
	msg := &gmail.Message{
		Id:           "m2",
		InternalDate: internal.UnixMilli(),
		Payload: &gmail.MessagePart{
			MimeType: "text/plain",
			Headers: []*gmail.MessagePartHeader{
				{Name: "Date", Value: "mangled date header"},
			},
			Body: &gmail.MessagePartBody{Data: enc("body")},
		},
	}

	raw := parseMessage(msg)
	if !raw.Received.Equal(internal) {
		t.Errorf("Received = %v, want InternalDate fallback %v", raw.Received, internal)
	}
	if raw.BodyText != "body" {
		t.Errorf("BodyText = %q", raw.BodyText)
	}
}

func TestComposeIssue(t *testing.T) {
	msg, err := composeIssue("sender@example.com", "reader@example.com",
		"Today's Drop: test", "<p>html</p>", "plain")
	if err != nil {
		t.Fatalf("composeIssue() error: %v", err)
	}

	s := string(msg)
	for _, want := range []string{
		"From: <sender@example.com>",
		"To: <reader@example.com>",
		"Subject: Today's Drop: test",
		"multipart/alternative",
		"text/html",
		"text/plain",
	} {
		if !containsFold(s, want) {
			t.Errorf("composed message missing %q", want)
		}
	}
}

func TestComposePlain(t *testing.T) {
	msg, err := composePlain("sender@example.com", "reader@example.com",
		"The Drop: Generation Failed", "Error: boom")
	if err != nil {
		t.Fatalf("composePlain() error: %v", err)
	}
	s := string(msg)
	if !containsFold(s, "Subject: The Drop: Generation Failed") {
		t.Errorf("message missing subject: %s", s)
	}
	if !containsFold(s, "boom") {
		t.Errorf("message missing body: %s", s)
	}
}

// containsFold is a case-insensitive substring check; MIME headers are
// not case-normalized by the composer.
func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
