package config

import (
	"encoding/hex"
	"log/slog"
	"os"
	"testing"
)

func TestDefaults(t *testing.T) {
	// Clear any env vars that might interfere.
	for _, env := range []string{
		"CALLBRIDGE_DATA_DIR", "CALLBRIDGE_HTTP_PORT", "CALLBRIDGE_DB_DSN",
		"CALLBRIDGE_ENCRYPTION_KEY", "CALLBRIDGE_JWT_SECRET",
		"CALLBRIDGE_PRESENTER_URL", "CALLBRIDGE_LOG_LEVEL",
	} {
		t.Setenv(env, "")
		os.Unsetenv(env)
	}

	os.Args = []string{"callbridge"}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.DataDir != defaultDataDir {
		t.Errorf("DataDir = %q, want %q", cfg.DataDir, defaultDataDir)
	}
	if cfg.HTTPPort != defaultHTTPPort {
		t.Errorf("HTTPPort = %d, want %d", cfg.HTTPPort, defaultHTTPPort)
	}
	if cfg.DatabaseDSN != "" {
		t.Errorf("DatabaseDSN = %q, want empty", cfg.DatabaseDSN)
	}
	if cfg.LogLevel != defaultLogLevel {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, defaultLogLevel)
	}
	if cfg.LogFormat != defaultLogFormat {
		t.Errorf("LogFormat = %q, want %q", cfg.LogFormat, defaultLogFormat)
	}
}

func TestEnvVarOverride(t *testing.T) {
	os.Args = []string{"callbridge"}
	t.Setenv("CALLBRIDGE_HTTP_PORT", "9090")
	t.Setenv("CALLBRIDGE_DATA_DIR", "/tmp/callbridge-test")
	t.Setenv("CALLBRIDGE_LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.HTTPPort != 9090 {
		t.Errorf("HTTPPort = %d, want 9090", cfg.HTTPPort)
	}
	if cfg.DataDir != "/tmp/callbridge-test" {
		t.Errorf("DataDir = %q, want /tmp/callbridge-test", cfg.DataDir)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
}

func TestCLIFlagsPrecedence(t *testing.T) {
	// CLI flags should override env vars.
	os.Args = []string{"callbridge", "--http-port", "3000", "--log-level", "warn"}
	t.Setenv("CALLBRIDGE_HTTP_PORT", "9090")
	t.Setenv("CALLBRIDGE_LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.HTTPPort != 3000 {
		t.Errorf("HTTPPort = %d, want 3000 (CLI should override env)", cfg.HTTPPort)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn (CLI should override env)", cfg.LogLevel)
	}
}

func TestMintDeviceTokenFlag(t *testing.T) {
	os.Args = []string{"callbridge", "--mint-device-token", "device-1"}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MintDeviceID != "device-1" {
		t.Errorf("MintDeviceID = %q, want device-1", cfg.MintDeviceID)
	}
}

func TestValidateInvalidPort(t *testing.T) {
	os.Args = []string{"callbridge", "--http-port", "99999"}
	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid port, got nil")
	}
}

func TestValidateInvalidLogLevel(t *testing.T) {
	os.Args = []string{"callbridge", "--log-level", "verbose"}
	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid log level, got nil")
	}
}

func TestEncryptionKeyBytes(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	cfg := &Config{EncryptionKey: hex.EncodeToString(key)}

	got, err := cfg.EncryptionKeyBytes()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 32 || got[31] != 31 {
		t.Errorf("decoded key = %x", got)
	}
}

func TestEncryptionKeyBytesGeneratesWhenEmpty(t *testing.T) {
	cfg := &Config{}

	key, err := cfg.EncryptionKeyBytes()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(key) != 32 {
		t.Fatalf("generated key is %d bytes, want 32", len(key))
	}
	if cfg.EncryptionKey == "" {
		t.Error("generated key not stored back in config")
	}

	// Second call returns the same key for the process lifetime.
	again, err := cfg.EncryptionKeyBytes()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(again) != string(key) {
		t.Error("second call returned a different key")
	}
}

func TestEncryptionKeyBytesRejectsShortKey(t *testing.T) {
	cfg := &Config{EncryptionKey: "deadbeef"}
	if _, err := cfg.EncryptionKeyBytes(); err == nil {
		t.Fatal("expected error for short key, got nil")
	}
}

func TestJWTSecretBytesEmptyDisablesAuth(t *testing.T) {
	cfg := &Config{}
	key, err := cfg.JWTSecretBytes()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != nil {
		t.Errorf("expected nil key for empty secret, got %x", key)
	}
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			cfg := &Config{LogLevel: tt.level}
			if got := cfg.SlogLevel(); got != tt.want {
				t.Errorf("SlogLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}
