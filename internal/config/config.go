package config

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Config holds all runtime configuration for the callbridge server.
// Precedence: CLI flags > env vars > defaults.
type Config struct {
	DataDir       string
	HTTPPort      int
	DatabaseDSN   string // PostgreSQL connection string; empty means embedded SQLite in DataDir
	EncryptionKey string // 32-byte hex-encoded key for AES-256-GCM storage encryption
	JWTSecret     string // hex-encoded 32-byte secret for device JWT signing; empty disables auth
	MintDeviceID  string // when set, mint a device token for this ID and exit
	PresenterURL  string // base URL of the notification presenter service; empty means log-only
	PresenterCap  string // presentation capability declared by the presenter: "rich" or "plain"
	LogLevel      string
	LogFormat     string // log output format: "text" or "json"
}

// defaults
const (
	defaultDataDir   = "./data"
	defaultHTTPPort  = 8090
	defaultLogLevel  = "info"
	defaultLogFormat = "text"
)

// envPrefix is the prefix for all callbridge environment variables.
const envPrefix = "CALLBRIDGE_"

// Load parses configuration from CLI flags and environment variables.
// Precedence: CLI flags > env vars > defaults.
func Load() (*Config, error) {
	cfg := &Config{}

	fs := flag.NewFlagSet("callbridge", flag.ContinueOnError)

	fs.StringVar(&cfg.DataDir, "data-dir", defaultDataDir, "data directory for the embedded database")
	fs.IntVar(&cfg.HTTPPort, "http-port", defaultHTTPPort, "HTTP server listen port")
	fs.StringVar(&cfg.DatabaseDSN, "db-dsn", "", "PostgreSQL connection string (uses embedded SQLite if empty)")
	fs.StringVar(&cfg.EncryptionKey, "encryption-key", "", "hex-encoded 32-byte key for AES-256-GCM encryption of the hint store (auto-generated if empty)")
	fs.StringVar(&cfg.JWTSecret, "jwt-secret", "", "hex-encoded 32-byte secret for device JWT signing (auth disabled if empty)")
	fs.StringVar(&cfg.MintDeviceID, "mint-device-token", "", "mint a device token for the given device ID, print it and exit")
	fs.StringVar(&cfg.PresenterURL, "presenter-url", "", "base URL of the notification presenter service")
	fs.StringVar(&cfg.PresenterCap, "presenter-capability", "rich", "presentation capability of the presenter surface (rich, plain)")
	fs.StringVar(&cfg.LogLevel, "log-level", defaultLogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log-format", defaultLogFormat, "log output format (text, json)")

	if err := fs.Parse(os.Args[1:]); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}

	// Apply env var overrides for any flags not explicitly set on the command line.
	// CLI flags take precedence over env vars.
	applyEnvOverrides(fs, cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides checks environment variables for any flag that was not
// explicitly provided on the command line. This preserves the precedence:
// CLI flags > env vars > defaults.
func applyEnvOverrides(fs *flag.FlagSet, cfg *Config) {
	// Track which flags were explicitly set via CLI.
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})

	// Map of flag name to env var name.
	envMap := map[string]string{
		"data-dir":             envPrefix + "DATA_DIR",
		"http-port":            envPrefix + "HTTP_PORT",
		"db-dsn":               envPrefix + "DB_DSN",
		"encryption-key":       envPrefix + "ENCRYPTION_KEY",
		"jwt-secret":           envPrefix + "JWT_SECRET",
		"presenter-url":        envPrefix + "PRESENTER_URL",
		"presenter-capability": envPrefix + "PRESENTER_CAPABILITY",
		"log-level":            envPrefix + "LOG_LEVEL",
		"log-format":           envPrefix + "LOG_FORMAT",
	}

	for flagName, envVar := range envMap {
		if set[flagName] {
			continue
		}
		val, ok := os.LookupEnv(envVar)
		if !ok || val == "" {
			continue
		}
		switch flagName {
		case "data-dir":
			cfg.DataDir = val
		case "http-port":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.HTTPPort = v
			}
		case "db-dsn":
			cfg.DatabaseDSN = val
		case "encryption-key":
			cfg.EncryptionKey = val
		case "jwt-secret":
			cfg.JWTSecret = val
		case "presenter-url":
			cfg.PresenterURL = val
		case "presenter-capability":
			cfg.PresenterCap = val
		case "log-level":
			cfg.LogLevel = val
		case "log-format":
			cfg.LogFormat = val
		}
	}
}

// validate checks that the config values are sane.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("http-port must be between 1 and 65535, got %d", c.HTTPPort)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("log-level must be one of debug, info, warn, error; got %q", c.LogLevel)
	}
	c.LogLevel = strings.ToLower(c.LogLevel)

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.LogFormat)] {
		return fmt.Errorf("log-format must be one of text, json; got %q", c.LogFormat)
	}
	c.LogFormat = strings.ToLower(c.LogFormat)

	validCaps := map[string]bool{"rich": true, "plain": true}
	if !validCaps[strings.ToLower(c.PresenterCap)] {
		return fmt.Errorf("presenter-capability must be one of rich, plain; got %q", c.PresenterCap)
	}
	c.PresenterCap = strings.ToLower(c.PresenterCap)

	return nil
}

// EncryptionKeyBytes returns the decoded 32-byte encryption key.
// If no key is configured, it generates a random 32-byte key and stores
// the hex-encoded value back in the config for the process lifetime.
func (c *Config) EncryptionKeyBytes() ([]byte, error) {
	if c.EncryptionKey == "" {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generating encryption key: %w", err)
		}
		c.EncryptionKey = hex.EncodeToString(key)
		slog.Warn("no encryption-key configured, generated ephemeral key (stored hints will not survive restart)")
		return key, nil
	}
	key, err := hex.DecodeString(c.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("decoding encryption key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

// JWTSecretBytes returns the decoded 32-byte JWT signing secret, or nil if
// no secret is configured (device auth disabled).
func (c *Config) JWTSecretBytes() ([]byte, error) {
	if c.JWTSecret == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(c.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("decoding jwt secret: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("jwt secret must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

// SlogHandler returns a slog.Handler configured with the appropriate format
// (text or json) and log level.
func (c *Config) SlogHandler(w *os.File) slog.Handler {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if c.LogFormat == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// SlogLevel returns the slog.Level corresponding to the configured log level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
