// Package config handles configuration and credential persistence for checkin.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// DefaultBaseURL is the address of a locally running backend
	DefaultBaseURL = "http://localhost:5000"

	// DefaultRequestTimeout bounds a single check-in request, in seconds
	DefaultRequestTimeout = 30

	// HomeEnv overrides the configuration directory
	HomeEnv = "CHECKIN_HOME"
)

// Credential backends
const (
	BackendFile    = "file"
	BackendKeyring = "keyring"
)

// Speech providers
const (
	ProviderDeepgram = "deepgram"
	ProviderKeyboard = "keyboard"
)

// MarkdownConfig configures markdown rendering options
type MarkdownConfig struct {
	Style            string `json:"style"`             // "dark", "light", or path to JSON theme
	EnableEmoji      bool   `json:"enable_emoji"`      // Convert :emoji: to unicode
	PreserveNewLines bool   `json:"preserve_newlines"` // Preserve original line breaks
}

// SpeechConfig selects and tunes the speech capture engine
type SpeechConfig struct {
	Provider   string `json:"provider"`
	Language   string `json:"language,omitempty"`
	Model      string `json:"model,omitempty"`
	SampleRate int    `json:"sample_rate"`
	// APIKey is never written to disk; it comes from DEEPGRAM_API_KEY.
	APIKey string `json:"-"`
}

// PlaybackConfig controls audio replies
type PlaybackConfig struct {
	Enabled bool `json:"enabled"`
}

// Config represents the user configuration
type Config struct {
	BaseURL string `json:"base_url"`
	// RequestTimeout is the check-in deadline in seconds. Zero disables it.
	RequestTimeout    int            `json:"request_timeout"`
	CredentialBackend string         `json:"credential_backend"`
	LogLevel          string         `json:"log_level"`
	CopyToClipboard   bool           `json:"copy_to_clipboard"`
	Speech            SpeechConfig   `json:"speech"`
	Playback          PlaybackConfig `json:"playback"`
	Markdown          MarkdownConfig `json:"markdown"`
}

// Timeout returns RequestTimeout as a duration
func (c Config) Timeout() time.Duration {
	if c.RequestTimeout <= 0 {
		return 0
	}
	return time.Duration(c.RequestTimeout) * time.Second
}

// DefaultMarkdownConfig returns the default markdown configuration
func DefaultMarkdownConfig() MarkdownConfig {
	return MarkdownConfig{
		Style:            "dark",
		EnableEmoji:      true,
		PreserveNewLines: true,
	}
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BaseURL:           DefaultBaseURL,
		RequestTimeout:    DefaultRequestTimeout,
		CredentialBackend: BackendFile,
		LogLevel:          "info",
		CopyToClipboard:   false,
		Speech: SpeechConfig{
			Provider:   ProviderDeepgram,
			Language:   "en",
			Model:      "nova-3",
			SampleRate: 16000,
		},
		Playback: PlaybackConfig{Enabled: true},
		Markdown: DefaultMarkdownConfig(),
	}
}

// GetConfigDir returns the configuration directory path
func GetConfigDir() (string, error) {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return dir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	return filepath.Join(home, ".checkin"), nil
}

// EnsureConfigDir creates the configuration directory if it doesn't exist
func EnsureConfigDir() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}

	// 0o700: the directory holds the session credential
	if err := os.MkdirAll(configDir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	return configDir, nil
}

// GetConfigPath returns the path to the config file
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.json"), nil
}

// GetCredentialsPath returns the path to the persisted credential
func GetCredentialsPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "credentials.json"), nil
}

// LoadConfig loads the configuration from disk and applies environment overrides
func LoadConfig() (Config, error) {
	cfg, err := LoadFile()
	ApplyEnv(&cfg)
	return cfg, err
}

// LoadFile loads the configuration file without environment overrides. A
// missing file yields the defaults; an unreadable one yields the defaults and
// an error.
func LoadFile() (Config, error) {
	cfg := DefaultConfig()

	configPath, err := GetConfigPath()
	if err != nil {
		return cfg, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to disk
func SaveConfig(cfg Config) error {
	configDir, err := EnsureConfigDir()
	if err != nil {
		return err
	}

	configPath := filepath.Join(configDir, "config.json")

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadDotEnv loads KEY=VALUE pairs from .env files into the process
// environment. Missing files are ignored; existing variables win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load env file %q: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overlays environment variables on cfg
func ApplyEnv(cfg *Config) {
	if v := os.Getenv("CHECKIN_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("CHECKIN_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("CHECKIN_CREDENTIAL_BACKEND"); v != "" {
		cfg.CredentialBackend = v
	}
	if v := os.Getenv("DEEPGRAM_API_KEY"); v != "" {
		cfg.Speech.APIKey = v
	}
}

// settable lists the keys accepted by Set, with their setters
var settable = map[string]func(*Config, string) error{
	"base_url": func(c *Config, v string) error {
		if !strings.HasPrefix(v, "http://") && !strings.HasPrefix(v, "https://") {
			return fmt.Errorf("base_url must start with http:// or https://")
		}
		c.BaseURL = strings.TrimRight(v, "/")
		return nil
	},
	"request_timeout": func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return fmt.Errorf("request_timeout must be a non-negative number of seconds")
		}
		c.RequestTimeout = n
		return nil
	},
	"credential_backend": func(c *Config, v string) error {
		if v != BackendFile && v != BackendKeyring {
			return fmt.Errorf("credential_backend must be %q or %q", BackendFile, BackendKeyring)
		}
		c.CredentialBackend = v
		return nil
	},
	"log_level": func(c *Config, v string) error {
		switch v {
		case "debug", "info", "warn", "error":
			c.LogLevel = v
			return nil
		}
		return fmt.Errorf("log_level must be one of debug, info, warn, error")
	},
	"copy_to_clipboard": func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("copy_to_clipboard must be true or false")
		}
		c.CopyToClipboard = b
		return nil
	},
	"speech.provider": func(c *Config, v string) error {
		if v != ProviderDeepgram && v != ProviderKeyboard {
			return fmt.Errorf("speech.provider must be %q or %q", ProviderDeepgram, ProviderKeyboard)
		}
		c.Speech.Provider = v
		return nil
	},
	"speech.language": func(c *Config, v string) error {
		c.Speech.Language = v
		return nil
	},
	"speech.model": func(c *Config, v string) error {
		c.Speech.Model = v
		return nil
	},
	"playback.enabled": func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("playback.enabled must be true or false")
		}
		c.Playback.Enabled = b
		return nil
	},
	"markdown.style": func(c *Config, v string) error {
		c.Markdown.Style = v
		return nil
	},
}

// Set updates a single key of cfg from its string form
func Set(cfg *Config, key, value string) error {
	setter, ok := settable[key]
	if !ok {
		return fmt.Errorf("unknown config key %q (valid: %s)", key, strings.Join(SettableKeys(), ", "))
	}
	return setter(cfg, strings.TrimSpace(value))
}

// SettableKeys returns the keys accepted by Set, sorted
func SettableKeys() []string {
	keys := make([]string, 0, len(settable))
	for k := range settable {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
