// Package config loads and validates application configuration from
// environment variables, an optional .env file and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Store backends.
const (
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

// MCP transports.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// Config holds all application configuration. Environment variables
// override YAML values.
type Config struct {
	// Storage.
	Store       string `yaml:"store" env:"AUTOMATA_STORE" env-default:"sqlite"`
	DatabaseURL string `yaml:"-" env:"DATABASE_URL"` // Secret, never from YAML.
	SQLitePath  string `yaml:"sqlite_path" env:"AUTOMATA_SQLITE_PATH" env-default:"automata.db"`

	// Test execution.
	TestTimeout      time.Duration `yaml:"test_timeout" env:"AUTOMATA_TEST_TIMEOUT" env-default:"30s"`
	PersistTimeout   time.Duration `yaml:"persist_timeout" env:"AUTOMATA_PERSIST_TIMEOUT" env-default:"5s"`
	SuiteConcurrency int           `yaml:"suite_concurrency" env:"AUTOMATA_SUITE_CONCURRENCY" env-default:"4"`
	ResultPageSize   int           `yaml:"result_page_size" env:"AUTOMATA_RESULT_PAGE_SIZE" env-default:"100"`
	ToolServerURL    string        `yaml:"tool_server_url" env:"AUTOMATA_TOOL_SERVER_URL"`
	ToolServerToken  string        `yaml:"-" env:"AUTOMATA_TOOL_SERVER_TOKEN"`

	// MCP surface.
	MCPTransport string `yaml:"mcp_transport" env:"AUTOMATA_MCP_TRANSPORT" env-default:"stdio"`
	MCPAddr      string `yaml:"mcp_addr" env:"AUTOMATA_MCP_ADDR" env-default:"127.0.0.1:8090"`
	MCPToken     string `yaml:"-" env:"AUTOMATA_MCP_TOKEN"` // Bearer token for the HTTP transport.

	// Actor recorded for mutations made by this process.
	Actor string `yaml:"actor" env:"AUTOMATA_ACTOR" env-default:"automata"`

	// OTEL.
	OTELEndpoint string `yaml:"otel_endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTELInsecure bool   `yaml:"otel_insecure" env:"AUTOMATA_OTEL_INSECURE" env-default:"false"`
	ServiceName  string `yaml:"service_name" env:"OTEL_SERVICE_NAME" env-default:"automata"`

	LogLevel string `yaml:"log_level" env:"AUTOMATA_LOG_LEVEL" env-default:"info"`
}

// Load reads a .env file from the working directory when present, then the
// YAML file at path (if non-empty) with environment overrides, or the
// environment alone.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("config: load .env: %w", err)
	}

	var cfg Config
	if path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: read environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the configuration is consistent.
func (c Config) Validate() error {
	var errs []error
	switch c.Store {
	case StorePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("config: DATABASE_URL is required when AUTOMATA_STORE=postgres"))
		}
	case StoreSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("config: AUTOMATA_SQLITE_PATH is required when AUTOMATA_STORE=sqlite"))
		}
		if c.SQLitePath == ":memory:" || strings.Contains(c.SQLitePath, "mode=memory") {
			errs = append(errs, errors.New("config: in-memory SQLite is not supported"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: AUTOMATA_STORE must be %q or %q, got %q", StorePostgres, StoreSQLite, c.Store))
	}

	switch c.MCPTransport {
	case TransportStdio:
	case TransportHTTP:
		if c.MCPAddr == "" {
			errs = append(errs, errors.New("config: AUTOMATA_MCP_ADDR is required when AUTOMATA_MCP_TRANSPORT=http"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: AUTOMATA_MCP_TRANSPORT must be %q or %q, got %q", TransportStdio, TransportHTTP, c.MCPTransport))
	}

	if c.TestTimeout <= 0 {
		errs = append(errs, errors.New("config: AUTOMATA_TEST_TIMEOUT must be positive"))
	}
	if c.PersistTimeout <= 0 {
		errs = append(errs, errors.New("config: AUTOMATA_PERSIST_TIMEOUT must be positive"))
	}
	if c.SuiteConcurrency <= 0 {
		errs = append(errs, errors.New("config: AUTOMATA_SUITE_CONCURRENCY must be positive"))
	}
	if c.ResultPageSize <= 0 {
		errs = append(errs, errors.New("config: AUTOMATA_RESULT_PAGE_SIZE must be positive"))
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// SlogLevel parses LogLevel.
func (c Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("config: AUTOMATA_LOG_LEVEL: %w", err)
	}
	return level, nil
}
