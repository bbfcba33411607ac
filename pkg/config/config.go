package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	envConfigPath        = "ONECLICK_CONFIG"
	envPort              = "PORT"
	envHost              = "HOST"
	envLocale            = "ONECLICK_LOCALE"
	envTelegramBotToken  = "TELEGRAM_BOT_TOKEN"
	envTelegramAllowFrom = "TELEGRAM_ALLOW_FROM"
)

const (
	DefaultHost            = "0.0.0.0"
	DefaultPort            = 8000
	DefaultWSPath          = "/ws"
	DefaultStepDelayMS     = 400
	DefaultWriteTimeoutMS  = 5000
	DefaultMaxMessageBytes = 64 * 1024
	DefaultLocale          = "en"
)

// Config is the root runtime configuration.
type Config struct {
	Server   ServerConfig   `json:"server"`
	Router   RouterConfig   `json:"router"`
	Channels ChannelsConfig `json:"channels"`
	Logging  LoggingConfig  `json:"logging,omitempty"`
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string `json:"format,omitempty"`
	Level     string `json:"level,omitempty"`
	AddSource bool   `json:"add_source,omitempty"`
}

// ServerConfig configures the single process-wide HTTP listener.
type ServerConfig struct {
	Host            string   `json:"host"`
	Port            int      `json:"port"`
	WSPath          string   `json:"ws_path"`
	AllowedOrigins  []string `json:"allowed_origins"`
	StepDelayMS     int      `json:"step_delay_ms"`
	WriteTimeoutMS  int      `json:"write_timeout_ms"`
	MaxMessageBytes int64    `json:"max_message_bytes"`
}

// RouterConfig selects the reply catalog used by the command router.
type RouterConfig struct {
	Locale string `json:"locale"`
}

// ChannelsConfig stores optional transport adapter settings.
type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
}

// TelegramConfig configures Telegram channel integration.
type TelegramConfig struct {
	Enabled   bool     `json:"enabled"`
	Token     string   `json:"token"`
	AllowFrom []string `json:"allow_from"`
}

// Default returns a configuration with every field at its default value.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// LoadConfig reads .env files, the optional config.json, and applies environment overrides.
//
// A missing config file is not an error: the server runs on defaults and PORT.
func LoadConfig() (*Config, error) {
	loadDotEnv()

	var cfg Config

	configPath, err := findConfigPath()
	if err != nil {
		return nil, err
	}
	if configPath != "" {
		content, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := json.Unmarshal(content, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)

	return &cfg, nil
}

// Addr returns the host:port the listener binds.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + strconv.Itoa(s.Port)
}

// loadDotEnv loads the first .env file found; variables already set win.
func loadDotEnv() {
	for _, path := range []string{".env", filepath.Join("config", ".env")} {
		if err := godotenv.Load(path); err == nil {
			return
		}
	}
}

// applyEnvOverrides injects selected env-driven settings on top of file config.
func applyEnvOverrides(cfg *Config) error {
	if cfg == nil {
		return nil
	}

	if raw := strings.TrimSpace(os.Getenv(envPort)); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil || port <= 0 || port > 65535 {
			return fmt.Errorf("invalid %s value %q", envPort, raw)
		}
		cfg.Server.Port = port
	}

	if host := strings.TrimSpace(os.Getenv(envHost)); host != "" {
		cfg.Server.Host = host
	}

	if locale := strings.TrimSpace(os.Getenv(envLocale)); locale != "" {
		cfg.Router.Locale = locale
	}

	if token := strings.TrimSpace(os.Getenv(envTelegramBotToken)); token != "" {
		cfg.Channels.Telegram.Token = token
	}

	if rawAllowFrom := strings.TrimSpace(os.Getenv(envTelegramAllowFrom)); rawAllowFrom != "" {
		cfg.Channels.Telegram.AllowFrom = parseCSV(rawAllowFrom)
	}

	return nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Server.Host) == "" {
		cfg.Server.Host = DefaultHost
	}
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = DefaultPort
	}
	if strings.TrimSpace(cfg.Server.WSPath) == "" {
		cfg.Server.WSPath = DefaultWSPath
	}
	if cfg.Server.StepDelayMS <= 0 {
		cfg.Server.StepDelayMS = DefaultStepDelayMS
	}
	if cfg.Server.WriteTimeoutMS <= 0 {
		cfg.Server.WriteTimeoutMS = DefaultWriteTimeoutMS
	}
	if cfg.Server.MaxMessageBytes <= 0 {
		cfg.Server.MaxMessageBytes = DefaultMaxMessageBytes
	}
	if strings.TrimSpace(cfg.Router.Locale) == "" {
		cfg.Router.Locale = DefaultLocale
	}
}

// parseCSV splits comma-separated values and returns a trimmed compact slice.
func parseCSV(input string) []string {
	parts := strings.Split(input, ",")
	clean := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		clean = append(clean, trimmed)
	}

	return slices.Clip(clean)
}

// findConfigPath resolves the active config file location.
//
// Precedence is ONECLICK_CONFIG first, then cwd-local fallback paths.
// An empty path with a nil error means no file is present.
func findConfigPath() (string, error) {
	if value := strings.TrimSpace(os.Getenv(envConfigPath)); value != "" {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return value, nil
		}
		return "", fmt.Errorf("%s does not point to a file: %s", envConfigPath, value)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current working directory: %w", err)
	}

	candidates := []string{
		filepath.Join(cwd, "config.json"),
		filepath.Join(cwd, "config", "config.json"),
	}

	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate, nil
		}
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("stat %s: %w", candidate, err)
		}
	}

	return "", nil
}
