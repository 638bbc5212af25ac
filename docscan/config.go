// CLAUDE:SUMMARY YAML configuration for the scandoc service — defaults, LoadConfig, Validate.
package docscan

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/scandoc/export"
)

// Config holds the full scandoc configuration.
type Config struct {
	Listen      string            `yaml:"listen"`
	DBPath      string            `yaml:"db_path"`
	ExportDir   string            `yaml:"export_dir"`
	WorkDir     string            `yaml:"work_dir"`
	SourceRoot  string            `yaml:"source_root"` // when set, page URIs must resolve under it
	LogLevel    string            `yaml:"log_level"`
	EventDays   int               `yaml:"event_retention_days"`
	Materialize MaterializeConfig `yaml:"materialize"`
	PDF         PDFConfig         `yaml:"pdf"`
	Share       ShareConfig       `yaml:"share"`
	Auth        AuthConfig        `yaml:"auth"`
}

// MaterializeConfig tunes page image production.
type MaterializeConfig struct {
	MaxWidth    int `yaml:"max_width"`
	JPEGQuality int `yaml:"jpeg_quality"`
	Concurrency int `yaml:"concurrency"`
}

// PDFConfig sets the export page format.
type PDFConfig struct {
	PageSize string  `yaml:"page_size"`
	MarginMM float64 `yaml:"margin_mm"`
}

// ShareConfig configures sharing collaborators. Both are optional.
type ShareConfig struct {
	OutboxDir     string `yaml:"outbox_dir"`
	WebhookURL    string `yaml:"webhook_url"`
	WebhookSecret string `yaml:"webhook_secret"`
}

// AuthConfig enables HTTP basic auth when PasswordHash is set.
type AuthConfig struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"` // bcrypt
}

// Enabled reports whether HTTP requests must authenticate.
func (a AuthConfig) Enabled() bool { return a.PasswordHash != "" }

// DefaultMarginMM is the PDF page margin used when margin_mm is absent.
const DefaultMarginMM = 18

// DefaultConfig returns sane defaults.
func DefaultConfig() *Config {
	c := &Config{PDF: PDFConfig{MarginMM: DefaultMarginMM}}
	c.defaults()
	return c
}

func (c *Config) defaults() {
	if c.Listen == "" {
		c.Listen = ":8090"
	}
	if c.DBPath == "" {
		c.DBPath = "data/scandoc.db"
	}
	if c.ExportDir == "" {
		c.ExportDir = "data/exports"
	}
	if c.WorkDir == "" {
		c.WorkDir = os.TempDir()
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Materialize.MaxWidth == 0 {
		c.Materialize.MaxWidth = 1800
	}
	if c.Materialize.JPEGQuality == 0 {
		c.Materialize.JPEGQuality = 90
	}
	if c.Materialize.Concurrency == 0 {
		c.Materialize.Concurrency = 1
	}
	if c.PDF.PageSize == "" {
		c.PDF.PageSize = "A4"
	}
}

// LoadConfig reads a YAML file over the defaults and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	// margin_mm is seeded before decoding so an explicit 0 reaches Validate.
	cfg := &Config{PDF: PDFConfig{MarginMM: DefaultMarginMM}}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.defaults()
	return cfg, cfg.Validate()
}

// Validate checks that values are sane.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if c.ExportDir == "" {
		return fmt.Errorf("export_dir is required")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level %q: use debug, info, warn or error", c.LogLevel)
	}
	if c.Materialize.MaxWidth < 1 {
		return fmt.Errorf("materialize.max_width must be > 0")
	}
	if q := c.Materialize.JPEGQuality; q < 1 || q > 100 {
		return fmt.Errorf("materialize.jpeg_quality must be within 1..100")
	}
	if c.Materialize.Concurrency < 1 {
		return fmt.Errorf("materialize.concurrency must be >= 1")
	}
	w, h, err := export.PaperDim(c.PDF.PageSize)
	if err != nil {
		return fmt.Errorf("pdf.page_size: %w", err)
	}
	if c.PDF.MarginMM <= 0 {
		return fmt.Errorf("pdf.margin_mm must be > 0, got %.1f", c.PDF.MarginMM)
	}
	if m := c.PDF.MarginMM * 72 / 25.4; 2*m >= w || 2*m >= h {
		return fmt.Errorf("pdf.margin_mm %.1f does not fit a %s page", c.PDF.MarginMM, c.PDF.PageSize)
	}
	if c.Share.OutboxDir != "" && samePath(c.Share.OutboxDir, c.ExportDir) {
		return fmt.Errorf("share.outbox_dir must differ from export_dir (%s)", c.ExportDir)
	}
	if c.Share.WebhookSecret != "" && c.Share.WebhookURL == "" {
		return fmt.Errorf("share.webhook_secret set without share.webhook_url")
	}
	if c.Auth.Enabled() {
		if c.Auth.Username == "" {
			return fmt.Errorf("auth.username is required with auth.password_hash")
		}
		if _, err := bcrypt.Cost([]byte(c.Auth.PasswordHash)); err != nil {
			return fmt.Errorf("auth.password_hash is not a bcrypt hash: %w", err)
		}
	}
	return nil
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}
