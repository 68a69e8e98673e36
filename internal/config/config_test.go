package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
gmail:
  source:
    credentials_file: /secrets/source-creds.json
    token_file: /secrets/source-token.json
  sender:
    address: sender@example.com
    credentials_file: /secrets/sender-creds.json
    token_file: /secrets/sender-token.json
  label_prefix: Newsletters
  max_messages: 50
anthropic:
  api_key: sk-test
  model: claude-sonnet-4-20250514
  max_output_tokens: 8000
newsletter:
  send_to: reader@example.com
  header_image: https://cdn.example.com/hero.jpg
  tiers:
    Exec Sum: primary
    The Peak: supplementary
prompt:
  max_bytes: 90000
data_dir: /var/lib/thedrop
log_level: debug
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Gmail.Sender.Address != "sender@example.com" {
		t.Errorf("Sender.Address = %q", cfg.Gmail.Sender.Address)
	}
	if cfg.Gmail.MaxMessages != 50 {
		t.Errorf("MaxMessages = %d", cfg.Gmail.MaxMessages)
	}
	if cfg.Anthropic.MaxOutputTokens != 8000 {
		t.Errorf("MaxOutputTokens = %d", cfg.Anthropic.MaxOutputTokens)
	}
	if cfg.Newsletter.Tiers["Exec Sum"] != "primary" {
		t.Errorf("Tiers = %v", cfg.Newsletter.Tiers)
	}
	if cfg.Prompt.MaxBytes != 90000 {
		t.Errorf("Prompt.MaxBytes = %d", cfg.Prompt.MaxBytes)
	}
	// Unset values fall back to defaults.
	if cfg.Prompt.MaxItemBytes != 2000 {
		t.Errorf("Prompt.MaxItemBytes = %d, want default", cfg.Prompt.MaxItemBytes)
	}
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-from-env")

	path := writeConfig(t, `
anthropic:
  api_key: ${ANTHROPIC_API_KEY}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Anthropic.APIKey != "sk-from-env" {
		t.Errorf("APIKey = %q, want value from environment", cfg.Anthropic.APIKey)
	}
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "{}\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Gmail.LabelPrefix != "Newsletters" {
		t.Errorf("LabelPrefix = %q", cfg.Gmail.LabelPrefix)
	}
	if cfg.Gmail.MaxMessages != 35 {
		t.Errorf("MaxMessages = %d", cfg.Gmail.MaxMessages)
	}
	if cfg.Anthropic.MaxOutputTokens != 16000 {
		t.Errorf("MaxOutputTokens = %d", cfg.Anthropic.MaxOutputTokens)
	}
	if cfg.Newsletter.MaxSkipRatio != 0.5 {
		t.Errorf("MaxSkipRatio = %v", cfg.Newsletter.MaxSkipRatio)
	}
	if cfg.DataDir != "." {
		t.Errorf("DataDir = %q", cfg.DataDir)
	}
}

func TestFindConfigExplicitMissing(t *testing.T) {
	if _, err := FindConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("FindConfig() accepted a missing explicit path")
	}
}

func TestFindConfigExplicit(t *testing.T) {
	path := writeConfig(t, "{}\n")
	got, err := FindConfig(path)
	if err != nil {
		t.Fatalf("FindConfig() error: %v", err)
	}
	if got != path {
		t.Errorf("FindConfig() = %q, want %q", got, path)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"trace", false},
		{"debug", false},
		{"info", false},
		{"warn", false},
		{"error", false},
		{"TRACE", false},
		{"warning", false},
		{"", false},
		{"verbose", true},
	}
	for _, tt := range tests {
		_, err := ParseLogLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLogLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
	}
}
