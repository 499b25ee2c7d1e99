// Package config loads declarative application configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AndurilCode/mcp-apps-kit-sub001/adapter"
)

const (
	projectConfigName = "appskit.yaml"
	homeConfigName    = "config.yaml"
)

// Config is the top-level startup configuration shape.
type Config struct {
	Name                string          `yaml:"name"`
	Version             string          `yaml:"version,omitempty"`
	Adapter             string          `yaml:"adapter,omitempty"`
	MaxEventSubscribers int             `yaml:"max_event_subscribers,omitempty"`
	Server              ServerConfig    `yaml:"server,omitempty"`
	Auth                *AuthConfig     `yaml:"auth,omitempty"`
	Audit               *AuditConfig    `yaml:"audit,omitempty"`
	Telemetry           TelemetryConfig `yaml:"telemetry,omitempty"`
	Schedules           []Schedule      `yaml:"schedules,omitempty"`
}

// ServerConfig selects the host transport and HTTP bind address.
type ServerConfig struct {
	Transport string `yaml:"transport,omitempty"`
	Host      string `yaml:"host,omitempty"`
	Port      int    `yaml:"port,omitempty"`
}

// Addr returns the host:port bind address for the HTTP transport.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// AuthConfig configures bearer token verification for HTTP transports.
type AuthConfig struct {
	Issuer             string            `yaml:"issuer,omitempty"`
	Audience           string            `yaml:"audience,omitempty"`
	JWKSURL            string            `yaml:"jwks_url,omitempty"`
	Keys               map[string]string `yaml:"keys,omitempty"`
	RefreshMinInterval time.Duration     `yaml:"refresh_min_interval,omitempty"`
}

// AuditConfig enables the SQLite invocation audit trail.
type AuditConfig struct {
	Path string `yaml:"path"`
}

// TelemetryConfig configures the OTLP trace exporter.
type TelemetryConfig struct {
	Enabled      bool   `yaml:"enabled,omitempty"`
	OTLPEndpoint string `yaml:"otlp_endpoint,omitempty"`
}

// Schedule declares a recurring tool invocation.
type Schedule struct {
	Cron  string         `yaml:"cron"`
	Tool  string         `yaml:"tool"`
	Input map[string]any `yaml:"input,omitempty"`
}

// Default returns a Config with the values used when no file is present.
func Default() Config {
	return Config{
		Name:    "appskit",
		Adapter: string(adapter.KindMCP),
		Server: ServerConfig{
			Transport: "stdio",
			Host:      "127.0.0.1",
			Port:      8788,
		},
	}
}

// Load reads, expands, and validates the config file at path. Environment
// references of the form ${VAR} in string values are expanded before parsing.
func Load(path string) (Config, error) {
	// #nosec G304 -- path from explicit local config discovery.
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config %q: %w", path, err)
	}
	return Parse(data, path)
}

// Parse decodes YAML config bytes. The path is used for error messages only.
func Parse(data []byte, path string) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config %q: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %q: %w", path, err)
	}
	return cfg, nil
}

// Validate checks structural constraints that YAML decoding cannot express.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return errors.New("name must not be empty")
	}
	switch c.Adapter {
	case "", string(adapter.KindMCP), string(adapter.KindOpenAI):
	default:
		return fmt.Errorf("unsupported adapter %q", c.Adapter)
	}
	switch c.Server.Transport {
	case "", "stdio", "http":
	default:
		return fmt.Errorf("unsupported server transport %q", c.Server.Transport)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.MaxEventSubscribers < 0 {
		return fmt.Errorf("max_event_subscribers must not be negative, got %d", c.MaxEventSubscribers)
	}
	if c.Auth != nil && c.Auth.JWKSURL == "" && len(c.Auth.Keys) == 0 {
		return errors.New("auth requires jwks_url or static keys")
	}
	if c.Audit != nil && strings.TrimSpace(c.Audit.Path) == "" {
		return errors.New("audit requires a database path")
	}
	for i, s := range c.Schedules {
		if strings.TrimSpace(s.Cron) == "" {
			return fmt.Errorf("schedule %d: cron expression must not be empty", i)
		}
		if strings.TrimSpace(s.Tool) == "" {
			return fmt.Errorf("schedule %d: tool must not be empty", i)
		}
	}
	return nil
}

// Discover resolves the config file location with first-match semantics: the
// explicit path if given, then ./appskit.yaml, then ~/.appskit/config.yaml.
// The boolean reports whether a file was found.
func Discover(explicitPath string) (string, bool, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", false, fmt.Errorf("resolve working directory: %w", err)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", false, fmt.Errorf("resolve user home: %w", err)
	}
	return DiscoverFrom(explicitPath, cwd, homeDir)
}

// DiscoverFrom is a testable variant of Discover.
func DiscoverFrom(explicitPath, cwd, homeDir string) (string, bool, error) {
	candidates := make([]string, 0, 2)
	if clean := strings.TrimSpace(explicitPath); clean != "" {
		candidates = append(candidates, filepath.Clean(clean))
	} else {
		candidates = append(candidates, filepath.Join(cwd, projectConfigName))
		candidates = append(candidates, filepath.Join(homeDir, ".appskit", homeConfigName))
	}

	for i, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate, true, nil
		}
		if errors.Is(err, os.ErrNotExist) {
			if i == 0 && strings.TrimSpace(explicitPath) != "" {
				return "", false, fmt.Errorf("config file %q not found", candidate)
			}
			continue
		}
		if err != nil {
			return "", false, fmt.Errorf("checking config path %q: %w", candidate, err)
		}
	}
	return "", false, nil
}
