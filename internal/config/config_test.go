package config

import (
	"bytes"
	"os"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.ReconcileTimeout != 10*time.Second {
		t.Errorf("ReconcileTimeout = %s, want 10s", cfg.ReconcileTimeout)
	}
	if cfg.ReconcileMode != "stepwise" {
		t.Errorf("ReconcileMode = %q, want stepwise", cfg.ReconcileMode)
	}
	if cfg.QueueBackend != "memory" || cfg.HistoryBackend != "sqlite" {
		t.Errorf("unexpected backends: queue=%q history=%q", cfg.QueueBackend, cfg.HistoryBackend)
	}
}

func TestLoadOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("DATABASE_URL", "file:remote.db")
	t.Setenv("RECONCILE_TIMEOUT", "3s")
	t.Setenv("RECONCILE_MODE", "atomic")
	t.Setenv("HISTORY_ASYNC", "true")
	t.Setenv("RATE_LIMIT_PER_MIN", "30")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.StoreDriver != "sqlite" || cfg.DatabaseURL != "file:remote.db" {
		t.Errorf("store = %q %q", cfg.StoreDriver, cfg.DatabaseURL)
	}
	if cfg.ReconcileTimeout != 3*time.Second {
		t.Errorf("ReconcileTimeout = %s, want 3s", cfg.ReconcileTimeout)
	}
	if cfg.ReconcileMode != "atomic" || !cfg.HistoryAsync || cfg.RateLimitPerMin != 30 {
		t.Errorf("overrides not applied: %+v", cfg)
	}
}

func TestLoadInvalidFallsBack(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("RECONCILE_TIMEOUT", "soon")
	t.Setenv("HISTORY_ASYNC", "maybe")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.ReconcileTimeout != 10*time.Second {
		t.Errorf("ReconcileTimeout = %s, want fallback 10s", cfg.ReconcileTimeout)
	}
	if cfg.HistoryAsync {
		t.Errorf("HistoryAsync should fall back to false")
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"STORE_DRIVER":   "mysql",
		"QUEUE_BACKEND":  "kafka",
		"RECONCILE_MODE": "eventual",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			chdir(t, t.TempDir())
			t.Setenv(key, val)
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), key) {
				t.Fatalf("Load() error = %v, want mention of %s", err, key)
			}
		})
	}
}

func TestProductionRequiresSigningKey(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("APP_ENV", "production")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for default signing key in production")
	}
	t.Setenv("JWT_SIGNING_KEY", "a-real-secret")
	if _, err := Load(); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
}

func TestNewLoggerFormat(t *testing.T) {
	var buf bytes.Buffer
	App{Env: "production"}.NewLogger(&buf).Info("hello", "k", "v")
	if !strings.HasPrefix(buf.String(), "{") {
		t.Fatalf("expected JSON output in production, got %q", buf.String())
	}
	buf.Reset()
	App{Env: "dev"}.NewLogger(&buf).Debug("hello")
	if !strings.Contains(buf.String(), "msg=hello") {
		t.Fatalf("expected text output with debug enabled, got %q", buf.String())
	}
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent of testing.T.Chdir for go1.21).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir(%q): %v", dir, err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatalf("restore Chdir(%q): %v", prev, err)
		}
	})
}
