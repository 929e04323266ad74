// Package config loads mailmerge.yml, .env files and environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dusk-indust/mailmerge/internal/tabular"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds project-level settings loaded from mailmerge.yml.
type Config struct {
	// Source selects the adapters: "local" (files) or "google".
	Source string `yaml:"source,omitempty"`

	Server    ServerConfig    `yaml:"server,omitempty"`
	MCP       MCPConfig       `yaml:"mcp,omitempty"`
	Store     StoreConfig     `yaml:"store,omitempty"`
	Lineage   LineageConfig   `yaml:"lineage,omitempty"`
	Merge     MergeConfig     `yaml:"merge,omitempty"`
	Google    GoogleConfig    `yaml:"google,omitempty"`
	Local     LocalConfig     `yaml:"local,omitempty"`
	NATS      NATSConfig      `yaml:"nats,omitempty"`
	Retention RetentionConfig `yaml:"retention,omitempty"`
	Log       LogConfig       `yaml:"log,omitempty"`
}

type ServerConfig struct {
	Addr string `yaml:"addr,omitempty"`
}

type MCPConfig struct {
	Addr string `yaml:"addr,omitempty"`
}

// StoreConfig selects the job store: memory, sqlite or postgres.
type StoreConfig struct {
	Driver string `yaml:"driver,omitempty"`
	DSN    string `yaml:"dsn,omitempty"`
}

// LineageConfig selects the provenance store: memory or kuzu.
type LineageConfig struct {
	Driver string `yaml:"driver,omitempty"`
	Path   string `yaml:"path,omitempty"`
}

type MergeConfig struct {
	Workers      int           `yaml:"workers,omitempty"`
	CallTimeout  time.Duration `yaml:"callTimeout,omitempty"`
	MaxAttempts  int           `yaml:"maxAttempts,omitempty"`
	RetryBackoff time.Duration `yaml:"retryBackoff,omitempty"`
	DefaultRange string        `yaml:"defaultRange,omitempty"`
}

type GoogleConfig struct {
	AccessToken  string `yaml:"accessToken,omitempty"`
	DocsURL      string `yaml:"docsURL,omitempty"`
	SheetsURL    string `yaml:"sheetsURL,omitempty"`
	DriveURL     string `yaml:"driveURL,omitempty"`
	ExportURL    string `yaml:"exportURL,omitempty"`
	ExportFormat string `yaml:"exportFormat,omitempty"`
	FolderID     string `yaml:"folderID,omitempty"`
}

type LocalConfig struct {
	TemplateDir     string `yaml:"templateDir,omitempty"`
	DataDir         string `yaml:"dataDir,omitempty"`
	OutputDir       string `yaml:"outputDir,omitempty"`
	DownloadBaseURL string `yaml:"downloadBaseURL,omitempty"`
	Extension       string `yaml:"extension,omitempty"`
}

// NATSConfig enables event publishing when URL is set.
type NATSConfig struct {
	URL           string `yaml:"url,omitempty"`
	SubjectPrefix string `yaml:"subjectPrefix,omitempty"`
}

type RetentionConfig struct {
	Schedule string        `yaml:"schedule,omitempty"`
	MaxAge   time.Duration `yaml:"maxAge,omitempty"`
}

type LogConfig struct {
	Level       string `yaml:"level,omitempty"`
	Development bool   `yaml:"development,omitempty"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Source:  "local",
		Server:  ServerConfig{Addr: ":8080"},
		MCP:     MCPConfig{Addr: ":8081"},
		Store:   StoreConfig{Driver: "memory"},
		Lineage: LineageConfig{Driver: "memory"},
		Merge: MergeConfig{
			Workers:      1,
			CallTimeout:  30 * time.Second,
			MaxAttempts:  3,
			RetryBackoff: 500 * time.Millisecond,
			DefaultRange: tabular.DefaultRange,
		},
		Google: GoogleConfig{ExportFormat: "pdf"},
		Local: LocalConfig{
			TemplateDir: "templates",
			DataDir:     "data",
			OutputDir:   "output",
			Extension:   "txt",
		},
		NATS:      NATSConfig{SubjectPrefix: "mailmerge.jobs"},
		Retention: RetentionConfig{Schedule: "@every 1h", MaxAge: 168 * time.Hour},
		Log:       LogConfig{Level: "info"},
	}
}

// Load reads mailmerge.yml or mailmerge.yaml from dir over the defaults,
// then loads dir/.env and applies environment overrides. A missing config
// file is not an error.
func Load(dir string) (*Config, error) {
	cfg := Default()
	for _, name := range []string{"mailmerge.yml", "mailmerge.yaml"} {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", name, err)
		}
		break
	}

	// Variables already in the environment win over .env entries.
	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides fields from environment variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("MAILMERGE_SOURCE", &c.Source)
	str("MAILMERGE_SERVER_ADDR", &c.Server.Addr)
	str("MAILMERGE_MCP_ADDR", &c.MCP.Addr)
	str("MAILMERGE_STORE_DRIVER", &c.Store.Driver)
	str("MAILMERGE_STORE_DSN", &c.Store.DSN)
	str("MAILMERGE_LINEAGE_DRIVER", &c.Lineage.Driver)
	str("MAILMERGE_LINEAGE_PATH", &c.Lineage.Path)
	str("MAILMERGE_TEMPLATE_DIR", &c.Local.TemplateDir)
	str("MAILMERGE_DATA_DIR", &c.Local.DataDir)
	str("MAILMERGE_OUTPUT_DIR", &c.Local.OutputDir)
	str("MAILMERGE_DOWNLOAD_BASE_URL", &c.Local.DownloadBaseURL)
	str("MAILMERGE_LOG_LEVEL", &c.Log.Level)
	str("GOOGLE_ACCESS_TOKEN", &c.Google.AccessToken)
	str("NATS_URL", &c.NATS.URL)

	if v, ok := lookup("DATABASE_URL"); ok && v != "" {
		c.Store.DSN = v
		if c.Store.Driver == "" || c.Store.Driver == "memory" {
			c.Store.Driver = "postgres"
		}
	}
	if v, ok := lookup("MAILMERGE_WORKERS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: MAILMERGE_WORKERS: %w", err)
		}
		c.Merge.Workers = n
	}
	if v, ok := lookup("MAILMERGE_LOG_DEVELOPMENT"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: MAILMERGE_LOG_DEVELOPMENT: %w", err)
		}
		c.Log.Development = b
	}
	return nil
}

// Validate reports the first setting the service cannot run with.
func (c *Config) Validate() error {
	switch c.Source {
	case "local", "google":
	default:
		return fmt.Errorf("config: unknown source %q (want local or google)", c.Source)
	}
	switch c.Store.Driver {
	case "memory":
	case "sqlite", "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("config: store driver %s needs a dsn", c.Store.Driver)
		}
	default:
		return fmt.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	switch c.Lineage.Driver {
	case "memory", "":
	case "kuzu":
	default:
		return fmt.Errorf("config: unknown lineage driver %q", c.Lineage.Driver)
	}
	if c.Merge.Workers <= 0 {
		return fmt.Errorf("config: merge.workers must be positive, got %d", c.Merge.Workers)
	}
	if c.Merge.MaxAttempts <= 0 {
		return fmt.Errorf("config: merge.maxAttempts must be positive, got %d", c.Merge.MaxAttempts)
	}
	if c.Merge.CallTimeout <= 0 {
		return fmt.Errorf("config: merge.callTimeout must be positive")
	}
	if _, err := tabular.ParseRange(c.Merge.DefaultRange); err != nil {
		return fmt.Errorf("config: merge.defaultRange: %w", err)
	}
	if c.Source == "google" && c.Google.AccessToken == "" {
		return fmt.Errorf("config: google source needs an access token (GOOGLE_ACCESS_TOKEN)")
	}
	if c.Retention.MaxAge < 0 {
		return fmt.Errorf("config: retention.maxAge must not be negative")
	}
	return nil
}

// ResolvePaths makes the local directories, the lineage path and a sqlite
// DSN relative to base instead of the working directory.
func (c *Config) ResolvePaths(base string) {
	join := func(p *string) {
		if *p != "" && !filepath.IsAbs(*p) && *p != ":memory:" {
			*p = filepath.Join(base, *p)
		}
	}
	join(&c.Local.TemplateDir)
	join(&c.Local.DataDir)
	join(&c.Local.OutputDir)
	join(&c.Lineage.Path)
	if c.Store.Driver == "sqlite" && !strings.HasPrefix(c.Store.DSN, "file:") {
		join(&c.Store.DSN)
	}
}
