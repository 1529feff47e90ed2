package config

import (
	"strings"
	"testing"
)

func TestValidateRun(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{
			name:      "negative timeout",
			mutate:    func(c *Config) { c.Run.DefaultTimeoutMinutes = -1 },
			wantField: "run.default_timeout_minutes",
		},
		{
			name:      "zero poll interval",
			mutate:    func(c *Config) { c.Run.HeartbeatPollSeconds = 0 },
			wantField: "run.heartbeat_poll_seconds",
		},
		{
			name:      "negative retry budget",
			mutate:    func(c *Config) { c.Run.DefaultRetryBudget = -2 },
			wantField: "run.default_retry_budget",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			errs := cfg.Validate()
			if len(errs) != 1 {
				t.Fatalf("expected 1 error, got %d: %v", len(errs), errs)
			}
			if errs[0].Field != tt.wantField {
				t.Errorf("Field = %q, want %q", errs[0].Field, tt.wantField)
			}
		})
	}
}

func TestValidateDirBackendRequiresLockDir(t *testing.T) {
	cfg := Default()
	cfg.Coordination.Backend = "dir"
	cfg.Coordination.LockDir = ""

	errs := cfg.Validate()
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %d: %v", len(errs), errs)
	}
	if errs[0].Field != "coordination.lock_dir" {
		t.Errorf("Field = %q, want coordination.lock_dir", errs[0].Field)
	}
}

func TestValidationErrorsFormatting(t *testing.T) {
	cfg := Default()
	cfg.Coordination.Backend = "etcd"
	cfg.Monitor.RefreshIntervalMs = 10
	cfg.Monitor.MaxEventLines = 0

	errs := ValidationErrors(cfg.Validate())
	if len(errs) != 3 {
		t.Fatalf("expected 3 errors, got %d: %v", len(errs), errs)
	}
	msg := errs.Error()
	if !strings.HasPrefix(msg, "3 validation errors:") {
		t.Errorf("unexpected multi-error header: %q", msg)
	}

	single := ValidationErrors(errs[:1]).Error()
	if strings.Contains(single, "validation errors") {
		t.Errorf("single error should not use multi-error format: %q", single)
	}
}
