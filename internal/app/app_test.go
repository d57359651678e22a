package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"blastbot/internal/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestNewAppliesDispatchDefaults(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "dispatch:\n  message: \"hi {name}\"\n  delay: 2s\n")
	a, err := New(path)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	defer a.Close()

	msg, delay := a.dispatchDefaults()
	if msg != "hi {name}" || delay != 2*time.Second {
		t.Fatalf("defaults = %q, %v", msg, delay)
	}
}

func TestExplicitZeroDelayDisablesPause(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "dispatch:\n  delay: 0s\n")
	a, err := New(path)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	defer a.Close()

	if _, delay := a.dispatchDefaults(); delay != 0 {
		t.Fatalf("delay = %v, want 0", delay)
	}
}

func TestOmittedDelayFallsBackToDefault(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "dispatch:\n  message: hi\n")
	a, err := New(path)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	defer a.Close()

	if _, delay := a.dispatchDefaults(); delay != DefaultDelay {
		t.Fatalf("delay = %v, want %v", delay, DefaultDelay)
	}
}

func TestRunBatchWithoutContactsFileFails(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "dispatch:\n  message: hi\n")
	a, err := New(path)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	defer a.Close()

	if _, err := a.RunBatch(context.Background(), ""); err == nil {
		t.Fatal("expected error when no contact file is configured")
	}
}

func TestGatewayConfigDefaults(t *testing.T) {
	t.Parallel()
	got, err := gatewayConfig(config.GatewayConfig{})
	if err != nil {
		t.Fatalf("gatewayConfig error: %v", err)
	}
	if got.ReadTimeout != 10*time.Second {
		t.Fatalf("ReadTimeout = %v", got.ReadTimeout)
	}
	if got.WriteTimeout != 0 {
		t.Fatalf("WriteTimeout = %v, want disabled", got.WriteTimeout)
	}
	if got.IdleTimeout != time.Minute {
		t.Fatalf("IdleTimeout = %v", got.IdleTimeout)
	}
}
