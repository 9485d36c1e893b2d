package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
	"gopkg.in/yaml.v3"

	"github.com/dshills/triad/internal/providers"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini/gemini-2.0-flash"

// Models is the fixed list offered by the interactive forms.
var Models = []string{
	"gemini/gemini-2.0-flash",
	"gemini/gemini-1.5-pro",
	"gemini/gemini-1.5-flash",
	"openai/gpt-4o-mini",
	"anthropic/claude-sonnet-4-20250514",
}

// Config represents the triad configuration.
type Config struct {
	Model         string `mapstructure:"model" yaml:"model"`
	APIKey        string `mapstructure:"api_key" yaml:"api_key,omitempty"`
	SerperAPIKey  string `mapstructure:"serper_api_key" yaml:"serper_api_key,omitempty"`
	MaxIterations int    `mapstructure:"max_iterations" yaml:"max_iterations"`
	MaxTokens     int    `mapstructure:"max_tokens" yaml:"max_tokens"`
	Listen        string `mapstructure:"listen" yaml:"listen"`
	OllamaURL     string `mapstructure:"ollama_url" yaml:"ollama_url,omitempty"`
	Redact        bool   `mapstructure:"redact" yaml:"redact"`

	// keyProvider names the provider whose environment variable supplied
	// APIKey. Empty when the key was set explicitly.
	keyProvider string
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Model:         DefaultModel,
		MaxIterations: 8,
		MaxTokens:     4096,
		Listen:        ":8501",
	}
}

// Provider returns the provider segment of the configured model.
func (c Config) Provider() string {
	p, _, err := providers.ParseModelID(c.Model)
	if err != nil {
		return ""
	}
	return p
}

// ProviderOptions returns the options used to construct the chat model.
func (c Config) ProviderOptions() providers.Options {
	opts := providers.Options{APIKey: c.APIKey, MaxTokens: c.MaxTokens}
	if c.Provider() == "ollama" {
		opts.BaseURL = c.OllamaURL
	}
	return opts
}

// MissingError reports required configuration that is absent.
type MissingError struct {
	Keys []string
}

func (e *MissingError) Error() string {
	return "missing required configuration: " + strings.Join(e.Keys, ", ")
}

// IsMissing reports whether err is a *MissingError.
func IsMissing(err error) bool {
	var me *MissingError
	return errors.As(err, &me)
}

// Validate checks that the model is well-formed and both credentials are
// present. Missing credentials are reported together in a *MissingError.
func (c Config) Validate() error {
	provider, _, err := providers.ParseModelID(c.Model)
	if err != nil {
		return fmt.Errorf("invalid model: %w", err)
	}
	var missing []string
	if providers.RequiresKey(provider) && c.APIKey == "" {
		missing = append(missing, apiKeyLabel(provider))
	}
	if c.SerperAPIKey == "" {
		missing = append(missing, "SERPER_API_KEY")
	}
	if len(missing) > 0 {
		return &MissingError{Keys: missing}
	}
	if c.MaxIterations < 1 {
		return fmt.Errorf("max_iterations must be at least 1, got %d", c.MaxIterations)
	}
	return nil
}

func apiKeyLabel(provider string) string {
	names := append([]string{"TRIAD_API_KEY"}, providers.KeyEnvVars(provider)...)
	return strings.Join(names, " or ")
}

// ConfigDir returns the platform-appropriate config directory for triad.
func ConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "triad"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "triad"), nil
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "triad"), nil
		}
		return filepath.Join(home, "AppData", "Roaming", "triad"), nil
	default:
		return filepath.Join(home, ".config", "triad"), nil
	}
}

// ConfigPath returns the full path to the config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment.
// Variables already set are left untouched. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := gotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// Load builds the effective config by merging: defaults <- file <- env <- overrides.
// The overrides map comes from CLI flags (only non-zero values should be set).
func Load(overrides map[string]string) (Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return Config{}, err
	}
	return load(path, overrides)
}

func load(path string, overrides map[string]string) (Config, error) {
	v := viper.New()
	def := Default()
	v.SetDefault("model", def.Model)
	v.SetDefault("api_key", "")
	v.SetDefault("serper_api_key", "")
	v.SetDefault("max_iterations", def.MaxIterations)
	v.SetDefault("max_tokens", def.MaxTokens)
	v.SetDefault("listen", def.Listen)
	v.SetDefault("ollama_url", "")
	v.SetDefault("redact", def.Redact)

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("TRIAD")
	v.AutomaticEnv()
	// Unprefixed names are honored for compatibility with common .env files.
	_ = v.BindEnv("model", "TRIAD_MODEL", "MODEL")
	_ = v.BindEnv("serper_api_key", "TRIAD_SERPER_API_KEY", "SERPER_API_KEY")
	_ = v.BindEnv("ollama_url", "TRIAD_OLLAMA_URL", "OLLAMA_URL")

	for key, value := range overrides {
		if value != "" {
			v.Set(key, value)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = providerKeyFromEnv(cfg.Provider())
		if cfg.APIKey != "" {
			cfg.keyProvider = cfg.Provider()
		}
	}
	return cfg, nil
}

// WithModel returns a copy of c that runs model. An API key taken from the
// previous provider's environment variable is re-resolved for the new
// provider, so one provider's secret is never sent to another.
func (c Config) WithModel(model string) (Config, error) {
	provider, _, err := providers.ParseModelID(model)
	if err != nil {
		return c, err
	}
	c.Model = model
	if c.keyProvider != "" || c.APIKey == "" {
		c.APIKey = providerKeyFromEnv(provider)
		c.keyProvider = ""
		if c.APIKey != "" {
			c.keyProvider = provider
		}
	}
	return c, nil
}

func providerKeyFromEnv(provider string) string {
	for _, name := range providers.KeyEnvVars(provider) {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// LoadFile loads config from the config file. Returns zero Config and nil error if file doesn't exist.
func LoadFile() (Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return Config{}, err
	}
	return loadFile(path)
}

func loadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// Save writes the config to the config file.
func Save(cfg Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return saveFile(path, cfg)
}

func saveFile(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	// The file may hold credentials.
	return os.WriteFile(path, data, 0o600)
}

// SetField sets a single config field by key name. Returns error if key is unknown.
func SetField(cfg *Config, key, value string) error {
	switch key {
	case "model":
		if _, _, err := providers.ParseModelID(value); err != nil {
			return err
		}
		cfg.Model = value
	case "api_key":
		cfg.APIKey = value
		cfg.keyProvider = ""
	case "serper_api_key":
		cfg.SerperAPIKey = value
	case "max_iterations":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("max_iterations must be an integer: %w", err)
		}
		cfg.MaxIterations = n
	case "max_tokens":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("max_tokens must be an integer: %w", err)
		}
		cfg.MaxTokens = n
	case "listen":
		cfg.Listen = value
	case "ollama_url":
		cfg.OllamaURL = value
	case "redact":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("redact must be true or false: %w", err)
		}
		cfg.Redact = b
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	return nil
}

// Keys lists the settable configuration keys.
func Keys() []string {
	return []string{"model", "api_key", "serper_api_key", "max_iterations", "max_tokens", "listen", "ollama_url", "redact"}
}
