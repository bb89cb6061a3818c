package internal

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/casebook/pkg/config"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	loc, err := cfg.Reconcile.Location()
	if err != nil || loc != time.UTC {
		t.Errorf("location = %v, %v", loc, err)
	}
}

func TestReconcileConfig_UnknownTimezone(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Reconcile.Timezone = "Mars/Olympus_Mons"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "unknown time zone") {
		t.Fatalf("err = %v", err)
	}
}

func TestReconcileConfig_TenantRequired(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Reconcile.Tenant = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("empty tenant should fail validation")
	}
}

func TestInboxConfig_WatchNeedsPath(t *testing.T) {
	cfg := InboxConfig{Watch: true}
	if err := cfg.Validate(); err == nil {
		t.Fatal("watch without a path should fail")
	}
	cfg.Watch = false
	if err := cfg.Validate(); err != nil {
		t.Errorf("no watch, no path: %v", err)
	}
}

func TestLoad_YAMLWithEnv(t *testing.T) {
	t.Setenv("CASEBOOK_TEST_DSN", "postgres://u:p@localhost/casebook")
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
app:
  log_level: debug
  http:
    port: 9090
database:
  dsn: ${CASEBOOK_TEST_DSN}
inbox:
  path: /srv/inbox
  watch: true
  debounce: 1s
reconcile:
  tenant: practice-7
  timezone: America/New_York
  workers: 8
  batch_timeout: 2m
  link_after_sync: false
  default_session_duration: 45m
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := NewDefaultConfig()
	if err := config.Load(path, cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.DSN != "postgres://u:p@localhost/casebook" {
		t.Errorf("dsn = %q", cfg.Database.DSN)
	}
	if cfg.App.LogLevel != slog.LevelDebug || cfg.App.HTTP.Address() != ":9090" {
		t.Errorf("app = %+v", cfg.App)
	}
	if !cfg.Inbox.Watch || cfg.Inbox.Debounce != time.Second {
		t.Errorf("inbox = %+v", cfg.Inbox)
	}
	r := cfg.Reconcile
	if r.Tenant != "practice-7" || r.Workers != 8 || r.BatchTimeout != 2*time.Minute || r.LinkAfterSync || r.SessionDuration != 45*time.Minute {
		t.Errorf("reconcile = %+v", r)
	}
}
