package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// chdir moves into an empty directory so no stray scout.yaml is picked up.
func chdir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	home := chdir(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.File != "" {
		t.Errorf("File = %q, want none", cfg.File)
	}
	if cfg.Remote.Driver != DriverSQLite {
		t.Errorf("Remote.Driver = %q, want sqlite", cfg.Remote.Driver)
	}
	if want := filepath.Join(home, ".fanscout", "cache"); cfg.CacheDir != want {
		t.Errorf("CacheDir = %q, want %q", cfg.CacheDir, want)
	}
	if cfg.Ledger.MaxAttempts != 5 {
		t.Errorf("Ledger.MaxAttempts = %d, want 5", cfg.Ledger.MaxAttempts)
	}
	if cfg.Daemon.Interval != 5*time.Minute || cfg.Daemon.Debounce != 500*time.Millisecond {
		t.Errorf("Daemon = %+v", cfg.Daemon)
	}
	if cfg.Dashboard.Port != 8080 {
		t.Errorf("Dashboard.Port = %d, want 8080", cfg.Dashboard.Port)
	}
	if cfg.Log.File != "" || cfg.Log.MaxSizeMB != 10 {
		t.Errorf("Log = %+v", cfg.Log)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := chdir(t)

	yaml := `
user:
  id: u42
remote:
  driver: LibSQL
  dsn: libsql://scout.example.com
daemon:
  interval: 30s
dashboard:
  port: 9090
`
	if err := os.WriteFile(filepath.Join(dir, "scout.yaml"), []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FANSCOUT_DASHBOARD_PORT", "9191")
	t.Setenv("FANSCOUT_LEDGER_MAX_ATTEMPTS", "8")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if !strings.HasSuffix(cfg.File, "scout.yaml") {
		t.Errorf("File = %q, want scout.yaml", cfg.File)
	}
	if cfg.UserID != "u42" {
		t.Errorf("UserID = %q, want u42", cfg.UserID)
	}
	if cfg.Remote.Driver != DriverLibSQL || cfg.Remote.DSN != "libsql://scout.example.com" {
		t.Errorf("Remote = %+v", cfg.Remote)
	}
	if cfg.Daemon.Interval != 30*time.Second {
		t.Errorf("Daemon.Interval = %v, want 30s", cfg.Daemon.Interval)
	}
	if cfg.Dashboard.Port != 9191 {
		t.Errorf("Dashboard.Port = %d, env should win over file", cfg.Dashboard.Port)
	}
	if cfg.Ledger.MaxAttempts != 8 {
		t.Errorf("Ledger.MaxAttempts = %d, want 8", cfg.Ledger.MaxAttempts)
	}
}

func TestLoad_ExplicitPath(t *testing.T) {
	dir := chdir(t)

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("Load() with a missing explicit file should fail")
	}

	path := filepath.Join(dir, "other.yaml")
	if err := os.WriteFile(path, []byte("cache:\n  dir: /tmp/scout-cache\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.CacheDir != "/tmp/scout-cache" {
		t.Errorf("CacheDir = %q", cfg.CacheDir)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"driver", map[string]string{"FANSCOUT_REMOTE_DRIVER": "postgres"}, "remote.driver"},
		{"attempts", map[string]string{"FANSCOUT_LEDGER_MAX_ATTEMPTS": "0"}, "ledger.max_attempts"},
		{"interval", map[string]string{"FANSCOUT_DAEMON_INTERVAL": "-1s"}, "daemon.interval"},
		{"port", map[string]string{"FANSCOUT_DASHBOARD_PORT": "70000"}, "dashboard.port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chdir(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			if err == nil {
				t.Fatal("Load() should fail")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should mention %s", err, tt.want)
			}
		})
	}
}
