package synth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/r8slab/the-drop/internal/prompt"
)

func testDoc() *prompt.Document {
	return &prompt.Document{
		System: "You are the editor.",
		User:   "Here are the sources.",
		URLs:   map[string]bool{"https://example.com/a": true},
	}
}

func TestCompleteSuccess(t *testing.T) {
	var captured anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "sk-test" {
			t.Errorf("x-api-key = %q", r.Header.Get("x-api-key"))
		}
		if r.Header.Get("anthropic-version") != anthropicAPIVersion {
			t.Errorf("anthropic-version = %q", r.Header.Get("anthropic-version"))
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(anthropicResponse{
			Content: []anthropicContent{
				{Type: "text", Text: "## EMAIL_SUBJECT\n"},
				{Type: "text", Text: "Today's Drop"},
			},
			StopReason: "end_turn",
		})
	}))
	defer srv.Close()

	c := NewAnthropicClient("sk-test", "claude-sonnet-4-20250514", nil)
	c.baseURL = srv.URL

	got, err := c.Complete(context.Background(), testDoc(), 16000)
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if got != "## EMAIL_SUBJECT\nToday's Drop" {
		t.Errorf("Complete() = %q", got)
	}

	if captured.Model != "claude-sonnet-4-20250514" {
		t.Errorf("request model = %q", captured.Model)
	}
	if captured.System != "You are the editor." {
		t.Errorf("request system = %q", captured.System)
	}
	if captured.MaxTokens != 16000 {
		t.Errorf("request max_tokens = %d", captured.MaxTokens)
	}
	if len(captured.Messages) != 1 || captured.Messages[0].Role != "user" {
		t.Errorf("request messages = %+v", captured.Messages)
	}
}

func TestCompleteAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"type":"rate_limit_error"}}`))
	}))
	defer srv.Close()

	c := NewAnthropicClient("sk-test", "m", nil)
	c.baseURL = srv.URL

	_, err := c.Complete(context.Background(), testDoc(), 100)
	if err == nil {
		t.Fatal("Complete() error = nil, want API error")
	}
	if !strings.Contains(err.Error(), "429") {
		t.Errorf("error = %v, want status code included", err)
	}
}

func TestPingInvalidKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewAnthropicClient("sk-bad", "m", nil)
	c.baseURL = srv.URL

	err := c.Ping(context.Background())
	if err == nil || !strings.Contains(err.Error(), "invalid API key") {
		t.Errorf("Ping() error = %v, want invalid API key", err)
	}
}

func TestPingOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(anthropicResponse{Content: []anthropicContent{{Type: "text", Text: "pong"}}})
	}))
	defer srv.Close()

	c := NewAnthropicClient("sk-test", "m", nil)
	c.baseURL = srv.URL

	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error: %v", err)
	}
}
