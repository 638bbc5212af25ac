package docscan

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scandoc.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
listen: ":9000"
db_path: "/var/lib/scandoc/db.sqlite"
materialize:
  concurrency: 4
pdf:
  page_size: "Letter"
  margin_mm: 10
share:
  outbox_dir: "/srv/outbox"
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Listen != ":9000" || cfg.DBPath != "/var/lib/scandoc/db.sqlite" {
		t.Errorf("listen/db = %q %q", cfg.Listen, cfg.DBPath)
	}
	if cfg.Materialize.Concurrency != 4 || cfg.Materialize.MaxWidth != 1800 || cfg.Materialize.JPEGQuality != 90 {
		t.Errorf("materialize = %+v", cfg.Materialize)
	}
	if cfg.PDF.PageSize != "Letter" || cfg.PDF.MarginMM != 10 {
		t.Errorf("pdf = %+v", cfg.PDF)
	}
	if cfg.ExportDir != "data/exports" || cfg.LogLevel != "info" {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	if cfg.Listen != ":8090" || cfg.PDF.PageSize != "A4" || cfg.PDF.MarginMM != 18 {
		t.Errorf("defaults = %+v", cfg)
	}
}

func TestLoadConfig_ExplicitZeroMargin(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "pdf:\n  page_size: A4\n  margin_mm: 0\n"))
	if err == nil || !strings.Contains(err.Error(), "margin_mm") {
		t.Fatalf("margin_mm: 0 accepted: %v", err)
	}
	cfg, err := LoadConfig(writeConfig(t, "pdf:\n  page_size: A4\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.PDF.MarginMM != DefaultMarginMM {
		t.Errorf("margin = %v, want default", cfg.PDF.MarginMM)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file accepted")
	}
	if _, err := LoadConfig(writeConfig(t, "listen: [")); err == nil || !strings.Contains(err.Error(), "parse config") {
		t.Errorf("bad yaml: %v", err)
	}
}

func TestValidate(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("pw"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"ok", func(*Config) {}, ""},
		{"log level", func(c *Config) { c.LogLevel = "verbose" }, "log_level"},
		{"quality", func(c *Config) { c.Materialize.JPEGQuality = 101 }, "jpeg_quality"},
		{"concurrency", func(c *Config) { c.Materialize.Concurrency = -1 }, "concurrency"},
		{"page size", func(c *Config) { c.PDF.PageSize = "Napkin" }, "page_size"},
		{"margin", func(c *Config) { c.PDF.MarginMM = 200 }, "margin_mm"},
		{"zero margin", func(c *Config) { c.PDF.MarginMM = 0 }, "margin_mm must be > 0"},
		{"negative margin", func(c *Config) { c.PDF.MarginMM = -5 }, "margin_mm must be > 0"},
		{"outbox is export dir", func(c *Config) { c.Share.OutboxDir = c.ExportDir }, "outbox_dir"},
		{"outbox is export dir unclean", func(c *Config) { c.Share.OutboxDir = "./data/exports/" }, "outbox_dir"},
		{"outbox elsewhere", func(c *Config) { c.Share.OutboxDir = "data/outbox" }, ""},
		{"secret without url", func(c *Config) { c.Share.WebhookSecret = "x" }, "webhook_url"},
		{"auth without user", func(c *Config) { c.Auth.PasswordHash = string(hash) }, "auth.username"},
		{"auth not bcrypt", func(c *Config) { c.Auth = AuthConfig{Username: "u", PasswordHash: "plain"} }, "bcrypt"},
		{"auth ok", func(c *Config) { c.Auth = AuthConfig{Username: "u", PasswordHash: string(hash)} }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			switch {
			case tt.wantErr == "" && err != nil:
				t.Errorf("unexpected error: %v", err)
			case tt.wantErr != "" && (err == nil || !strings.Contains(err.Error(), tt.wantErr)):
				t.Errorf("err = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}
