package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if errs := cfg.Validate(); len(errs) > 0 {
		t.Fatalf("default config should validate cleanly, got: %v", ValidationErrors(errs))
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	resetViper(t)
	SetDefaults()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Run.DefaultTimeoutMinutes != 30 {
		t.Errorf("DefaultTimeoutMinutes = %d, want 30", cfg.Run.DefaultTimeoutMinutes)
	}
	if cfg.Coordination.Backend != "memory" {
		t.Errorf("Backend = %q, want memory", cfg.Coordination.Backend)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Level = %q, want info", cfg.Logging.Level)
	}
}

func TestLoadOverrides(t *testing.T) {
	resetViper(t)
	SetDefaults()
	viper.Set("run.default_timeout_minutes", 45)
	viper.Set("coordination.backend", "dir")
	viper.Set("coordination.lock_dir", "/tmp/locks")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Run.DefaultTimeoutMinutes != 45 {
		t.Errorf("DefaultTimeoutMinutes = %d, want 45", cfg.Run.DefaultTimeoutMinutes)
	}
	if cfg.Coordination.Backend != "dir" || cfg.Coordination.LockDir != "/tmp/locks" {
		t.Errorf("coordination override not applied: %+v", cfg.Coordination)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	resetViper(t)
	SetDefaults()
	viper.Set("coordination.backend", "redis")
	viper.Set("logging.level", "loud")

	_, err := Load()
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "coordination.backend") {
		t.Errorf("error should name coordination.backend: %v", err)
	}
	if !strings.Contains(err.Error(), "logging.level") {
		t.Errorf("error should name logging.level: %v", err)
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := Default()
	if got := cfg.Run.HeartbeatPollInterval(); got != 15*time.Second {
		t.Errorf("HeartbeatPollInterval = %v, want 15s", got)
	}
	if got := cfg.Run.DefaultTimeout(); got != 30*time.Minute {
		t.Errorf("DefaultTimeout = %v, want 30m", got)
	}
	if got := cfg.Monitor.RefreshInterval(); got != 250*time.Millisecond {
		t.Errorf("RefreshInterval = %v, want 250ms", got)
	}
}
