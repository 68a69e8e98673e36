// Package config handles the-drop configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from the -config flag) is checked first.
// Then: ./config.yaml, ~/.config/thedrop/config.yaml, /etc/thedrop/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "thedrop", "config.yaml"))
	}

	paths = append(paths, "/etc/thedrop/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all the-drop configuration.
type Config struct {
	Gmail      GmailConfig      `yaml:"gmail"`
	Anthropic  AnthropicConfig  `yaml:"anthropic"`
	Newsletter NewsletterConfig `yaml:"newsletter"`
	Prompt     PromptConfig     `yaml:"prompt"`
	DataDir    string           `yaml:"data_dir"`
	LogLevel   string           `yaml:"log_level"`
}

// GmailConfig defines the two Gmail accounts the generator touches:
// the source account whose labeled newsletters are read, and the sender
// account the finished issue goes out from.
type GmailConfig struct {
	Source GmailAccount `yaml:"source"`
	Sender GmailAccount `yaml:"sender"`

	// LabelPrefix selects the mailbox labels to read. The label itself
	// and every sublabel (prefix + "/...") are included.
	LabelPrefix string `yaml:"label_prefix"`

	// MaxMessages caps how many messages one run fetches.
	MaxMessages int64 `yaml:"max_messages"`
}

// GmailAccount points at the OAuth material for one Gmail account.
// Address is the account's email address; it becomes the From header
// on mail sent from the account.
type GmailAccount struct {
	Address         string `yaml:"address"`
	CredentialsFile string `yaml:"credentials_file"`
	TokenFile       string `yaml:"token_file"`
}

// AnthropicConfig defines Anthropic API settings.
type AnthropicConfig struct {
	APIKey          string `yaml:"api_key"`
	Model           string `yaml:"model"`
	MaxOutputTokens int    `yaml:"max_output_tokens"`
}

// NewsletterConfig defines the issue itself: recipient, imagery, and the
// editorial tier of each source newsletter.
type NewsletterConfig struct {
	SendTo      string `yaml:"send_to"`
	HeaderImage string `yaml:"header_image"`

	// TemplateFile optionally overrides the embedded HTML template.
	TemplateFile string `yaml:"template_file"`

	// Tiers maps a source newsletter name to its editorial tier:
	// "primary", "supplementary", or "lifestyle". Sources not listed
	// default to lifestyle (lowest priority, first to be truncated).
	Tiers map[string]string `yaml:"tiers"`

	// MaxSkipRatio is the fraction of fetched messages allowed to fail
	// extraction before a run aborts instead of sending a thin issue.
	MaxSkipRatio float64 `yaml:"max_skip_ratio"`
}

// PromptConfig bounds the document handed to the model.
type PromptConfig struct {
	// MaxBytes caps the serialized corpus size. When exceeded, whole
	// items are dropped starting from the lowest tier.
	MaxBytes int `yaml:"max_bytes"`

	// MaxItemBytes caps a single item's plain text within the prompt.
	MaxItemBytes int `yaml:"max_item_bytes"`

	// MaxLinksPerItem caps how many links one item contributes.
	MaxLinksPerItem int `yaml:"max_links_per_item"`
}

// Load reads configuration from a YAML file. Environment variable
// references in the file (${ANTHROPIC_API_KEY} and friends) are expanded
// before unmarshaling.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Gmail: GmailConfig{
			LabelPrefix: "Newsletters",
			MaxMessages: 35,
		},
		Anthropic: AnthropicConfig{
			Model:           "claude-sonnet-4-20250514",
			MaxOutputTokens: 16000,
		},
		Newsletter: NewsletterConfig{
			MaxSkipRatio: 0.5,
		},
		Prompt: PromptConfig{
			MaxBytes:        120_000,
			MaxItemBytes:    2000,
			MaxLinksPerItem: 10,
		},
		DataDir: ".",
	}
}

func (c *Config) applyDefaults() {
	d := Default()
	if c.Gmail.LabelPrefix == "" {
		c.Gmail.LabelPrefix = d.Gmail.LabelPrefix
	}
	if c.Gmail.MaxMessages <= 0 {
		c.Gmail.MaxMessages = d.Gmail.MaxMessages
	}
	if c.Anthropic.Model == "" {
		c.Anthropic.Model = d.Anthropic.Model
	}
	if c.Anthropic.MaxOutputTokens <= 0 {
		c.Anthropic.MaxOutputTokens = d.Anthropic.MaxOutputTokens
	}
	if c.Newsletter.MaxSkipRatio <= 0 {
		c.Newsletter.MaxSkipRatio = d.Newsletter.MaxSkipRatio
	}
	if c.Prompt.MaxBytes <= 0 {
		c.Prompt.MaxBytes = d.Prompt.MaxBytes
	}
	if c.Prompt.MaxItemBytes <= 0 {
		c.Prompt.MaxItemBytes = d.Prompt.MaxItemBytes
	}
	if c.Prompt.MaxLinksPerItem <= 0 {
		c.Prompt.MaxLinksPerItem = d.Prompt.MaxLinksPerItem
	}
	if c.DataDir == "" {
		c.DataDir = d.DataDir
	}
}
