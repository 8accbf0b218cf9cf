// Package config handles Animalia configuration loading.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned by FindConfig when no config file exists in
// any of the search paths. Callers fall back to Default in that case.
var ErrNotFound = errors.New("no config file found")

// ErrMissingCredential is wrapped by Validate when a credential the
// requested command depends on is empty.
var ErrMissingCredential = errors.New("missing required credential")

// Provider names accepted in model.provider.
const (
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
)

// DefaultSearchPaths returns the config file search order:
// ./config.yaml, ~/.config/animalia/config.yaml, /etc/animalia/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "animalia", "config.yaml"))
	}

	paths = append(paths, "/etc/animalia/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists,
// or an error wrapping ErrNotFound.
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

	return "", fmt.Errorf("%w (searched: %v)", ErrNotFound, DefaultSearchPaths())
}

// Config holds all Animalia configuration.
type Config struct {
	LogLevel      string              `yaml:"log_level"`
	LogFormat     string              `yaml:"log_format"` // text or json
	Model         ModelConfig         `yaml:"model"`
	Agent         AgentConfig         `yaml:"agent"`
	Conversations ConversationsConfig `yaml:"conversations"`
	Slack         SlackConfig         `yaml:"slack"`
}

// ModelConfig selects and tunes the hosted language model.
type ModelConfig struct {
	Provider    string  `yaml:"provider"` // gemini, anthropic, ollama
	Name        string  `yaml:"name"`
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"` // empty = provider default
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	// MaxRetries is how many times a transient provider failure is
	// retried before the error reaches the agent loop.
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// Configured reports whether the model credentials are present. Ollama
// runs locally and needs no key.
func (c ModelConfig) Configured() bool {
	return c.Provider == ProviderOllama || c.APIKey != ""
}

// AgentConfig bounds a single run of the agent loop.
type AgentConfig struct {
	// MaxIterations caps the number of model calls in one run.
	MaxIterations int `yaml:"max_iterations"`
	// RunTimeout bounds one run end to end, including tool calls.
	RunTimeout time.Duration `yaml:"run_timeout"`
}

// ConversationsConfig controls the in-memory conversation store.
type ConversationsConfig struct {
	// TTL evicts threads idle for longer than this.
	TTL time.Duration `yaml:"ttl"`
	// MaxThreads evicts the least recently used thread when exceeded.
	MaxThreads int `yaml:"max_threads"`
	// Sweep is a cron spec ("@every 10m") for the TTL sweep.
	Sweep string `yaml:"sweep"`
}

// SlackConfig holds the Slack app credentials.
type SlackConfig struct {
	BotToken string `yaml:"bot_token"` // xoxb-..., Web API calls
	AppToken string `yaml:"app_token"` // xapp-..., Socket Mode
	APIURL   string `yaml:"api_url"`   // empty = https://slack.com/api
}

// Configured reports whether both Slack tokens are present.
func (c SlackConfig) Configured() bool {
	return c.BotToken != "" && c.AppToken != ""
}

// Load reads configuration from a YAML file. ${VAR} references are
// expanded from the environment before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return cfg, nil
}

// Default returns the configuration used when no file is found: built-in
// defaults plus credentials from the environment.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills zero values and falls back to the conventional
// environment variables for credentials.
func (c *Config) applyDefaults() {
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}

	c.Model.Provider = strings.ToLower(strings.TrimSpace(c.Model.Provider))
	if c.Model.Provider == "" {
		c.Model.Provider = ProviderGemini
	}
	if c.Model.Name == "" {
		switch c.Model.Provider {
		case ProviderAnthropic:
			c.Model.Name = "claude-3-5-haiku-latest"
		case ProviderOllama:
			c.Model.Name = "qwen3:4b"
		default:
			c.Model.Name = "gemini-2.0-flash-lite-001"
		}
	}
	if c.Model.APIKey == "" {
		switch c.Model.Provider {
		case ProviderGemini:
			c.Model.APIKey = os.Getenv("GEMINI_API_KEY")
		case ProviderAnthropic:
			c.Model.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}
	if c.Model.Temperature == 0 {
		c.Model.Temperature = 0.7
	}
	if c.Model.MaxTokens == 0 {
		c.Model.MaxTokens = 2048
	}
	if c.Model.MaxRetries == 0 {
		c.Model.MaxRetries = 2
	}
	if c.Model.RetryDelay == 0 {
		c.Model.RetryDelay = time.Second
	}

	if c.Agent.MaxIterations == 0 {
		c.Agent.MaxIterations = 8
	}
	if c.Agent.RunTimeout == 0 {
		c.Agent.RunTimeout = 2 * time.Minute
	}

	if c.Conversations.TTL == 0 {
		c.Conversations.TTL = 24 * time.Hour
	}
	if c.Conversations.MaxThreads == 0 {
		c.Conversations.MaxThreads = 1000
	}
	if c.Conversations.Sweep == "" {
		c.Conversations.Sweep = "@every 10m"
	}

	if c.Slack.BotToken == "" {
		c.Slack.BotToken = os.Getenv("SLACK_BOT_TOKEN")
	}
	if c.Slack.AppToken == "" {
		c.Slack.AppToken = os.Getenv("SLACK_SOCKET_TOKEN")
	}
}

// Validate checks the settings every model-backed command needs. When
// slack is true the Slack tokens are required as well. Missing
// credentials are reported together, wrapped in ErrMissingCredential.
func (c *Config) Validate(slack bool) error {
	switch c.Model.Provider {
	case ProviderGemini, ProviderAnthropic, ProviderOllama:
	default:
		return fmt.Errorf("unknown model provider %q (valid: gemini, anthropic, ollama)", c.Model.Provider)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("unknown log format %q (valid: text, json)", c.LogFormat)
	}
	if c.Agent.MaxIterations < 1 {
		return fmt.Errorf("agent.max_iterations must be at least 1, got %d", c.Agent.MaxIterations)
	}
	for _, d := range []struct {
		name  string
		value time.Duration
	}{
		{"agent.run_timeout", c.Agent.RunTimeout},
		{"conversations.ttl", c.Conversations.TTL},
		{"model.retry_delay", c.Model.RetryDelay},
	} {
		if d.value < 0 {
			return fmt.Errorf("%s must not be negative, got %s", d.name, d.value)
		}
	}
	for _, n := range []struct {
		name  string
		value int
	}{
		{"model.max_retries", c.Model.MaxRetries},
		{"model.max_tokens", c.Model.MaxTokens},
		{"conversations.max_threads", c.Conversations.MaxThreads},
	} {
		if n.value < 0 {
			return fmt.Errorf("%s must not be negative, got %d", n.name, n.value)
		}
	}

	var missing []string
	if !c.Model.Configured() {
		missing = append(missing, "model.api_key ("+c.keyEnv()+")")
	}
	if slack {
		if c.Slack.BotToken == "" {
			missing = append(missing, "slack.bot_token (SLACK_BOT_TOKEN)")
		}
		if c.Slack.AppToken == "" {
			missing = append(missing, "slack.app_token (SLACK_SOCKET_TOKEN)")
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingCredential, strings.Join(missing, ", "))
	}
	return nil
}

func (c *Config) keyEnv() string {
	if c.Model.Provider == ProviderAnthropic {
		return "ANTHROPIC_API_KEY"
	}
	return "GEMINI_API_KEY"
}
