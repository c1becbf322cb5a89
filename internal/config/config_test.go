package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(Flags{EnvFile: filepath.Join(t.TempDir(), "missing.env")})
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.App.Environment != "development" {
		t.Errorf("expected development, got %s", cfg.App.Environment)
	}
	if cfg.Relay.PollTimeout != 30*time.Second {
		t.Errorf("expected 30s poll timeout, got %s", cfg.Relay.PollTimeout)
	}
	if cfg.Relay.SignalURL != cfg.Relay.BlobURL {
		t.Errorf("signal relay should default to blob relay host")
	}
	if cfg.DB.Path == "" {
		t.Error("db path should default under the home directory")
	}
}

func TestLoadFlagPrecedence(t *testing.T) {
	t.Setenv("RELAY_BLOB_URL", "http://env.example")

	cfg, err := Load(Flags{
		BlobURL: "http://flag.example",
		DBPath:  filepath.Join(t.TempDir(), "lib.db"),
		EnvFile: filepath.Join(t.TempDir(), "missing.env"),
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Relay.BlobURL != "http://flag.example" {
		t.Errorf("flag should beat env var, got %s", cfg.Relay.BlobURL)
	}
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	content := "LOG_LEVEL=debug\n# comment\nRELAY_SIGNAL_URL=\"http://signal.example\"\n"
	if err := os.WriteFile(envFile, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LOG_LEVEL", "")
	os.Unsetenv("LOG_LEVEL")
	t.Setenv("RELAY_SIGNAL_URL", "")
	os.Unsetenv("RELAY_SIGNAL_URL")

	cfg, err := Load(Flags{EnvFile: envFile, DBPath: filepath.Join(dir, "lib.db")})
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Logger.Level != "debug" {
		t.Errorf("expected debug from .env, got %s", cfg.Logger.Level)
	}
	if cfg.Relay.SignalURL != "http://signal.example" {
		t.Errorf("expected quoted .env value to be unwrapped, got %s", cfg.Relay.SignalURL)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := &Config{
		App:    AppConfig{Environment: "sandbox"},
		Logger: LoggerConfig{Level: "info"},
		DB:     DBConfig{Path: "/tmp/x.db"},
		Relay:  RelayConfig{BlobURL: "http://x", RetryMax: 4},
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected invalid environment to fail validation")
	}

	cfg.App.Environment = "development"
	cfg.Logger.Level = "verbose"
	if err := cfg.Validate(); err == nil {
		t.Error("expected invalid log level to fail validation")
	}

	cfg.Logger.Level = "info"
	cfg.Relay.RetryMax = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected zero retry ceiling to fail validation")
	}
}
