// Package config handles configuration loading and validation.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/alecthomas/kong"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/podcast-web/config.toml",
	"configs/config.toml",
}

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config   string `kong:"short='c',help='Path to TOML or YAML config file.',env='CONFIG_PATH'"`
	Host     string `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port     int    `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
	Env      string `kong:"help='Environment mode: development|production|test (overrides config).',env='APP_ENV'"`
	Assets   string `kong:"help='Static asset root directory (overrides config).',env='ASSETS_ROOT'"`
	LogLevel string `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`

	Version kong.VersionFlag `kong:"help='Print version and exit.'"`
}

// Config is the top-level application configuration.
type Config struct {
	Env      Mode           `toml:"env" yaml:"env"`
	Server   ServerConfig   `toml:"server" yaml:"server"`
	Assets   AssetsConfig   `toml:"assets" yaml:"assets"`
	Proxy    ProxyConfig    `toml:"proxy" yaml:"proxy"`
	Upstream UpstreamConfig `toml:"upstream" yaml:"upstream"`
	Log      LogConfig      `toml:"log" yaml:"log"`
	Metrics  MetricsConfig  `toml:"metrics" yaml:"metrics"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string          `toml:"host" yaml:"host"`
	Port         int             `toml:"port" yaml:"port"` // 0 means "use default" (3000)
	BodyMaxBytes int64           `toml:"body_max_bytes" yaml:"body_max_bytes"`
	GzipLevel    int             `toml:"gzip_level" yaml:"gzip_level"`
	HSTSMaxAge   int             `toml:"hsts_max_age" yaml:"hsts_max_age"`
	RateLimit    RateLimitConfig `toml:"rate_limit" yaml:"rate_limit"`
}

// RateLimitConfig controls per-IP request rate limiting.
type RateLimitConfig struct {
	Enabled           bool    `toml:"enabled" yaml:"enabled"`
	RequestsPerSecond float64 `toml:"requests_per_second" yaml:"requests_per_second"`
}

// AssetsConfig points at the pre-built single-page application bundle.
type AssetsConfig struct {
	Root  string `toml:"root" yaml:"root"`
	Index string `toml:"index" yaml:"index"`
	// Watch reloads the entry document when it changes on disk.
	// Nil means "on in development, off otherwise".
	Watch *bool `toml:"watch" yaml:"watch"`
}

// ProxyConfig controls which targets /proxy/ accepts.
type ProxyConfig struct {
	AllowedSchemes []string `toml:"allowed_schemes" yaml:"allowed_schemes"`
}

// UpstreamConfig holds outbound connection settings.
type UpstreamConfig struct {
	TimeoutSeconds       int  `toml:"timeout_seconds" yaml:"timeout_seconds"`
	IdleConnections      int  `toml:"idle_connections" yaml:"idle_connections"`
	BlockPrivateNetworks bool `toml:"block_private_networks" yaml:"block_private_networks"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled" yaml:"enabled"`
	Path    string `toml:"path" yaml:"path"`
}

// Load reads the config file, if any, and applies CLI overrides.
// When no explicit path is given (via --config or CONFIG_PATH), it searches
// /etc/podcast-web/config.toml then configs/config.toml. If neither exists the
// built-in defaults are used.
func Load(cli *CLI) (*Config, error) {
	path := cli.Config
	if path == "" {
		path = findConfig()
	}

	var cfg Config
	if path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return nil, err
		}
		cfg.filePath = path
	}

	cfg.applyCLI(cli)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	cfg.setDefaults()
	return &cfg, nil
}

// decodeFile picks the decoder from the file extension; anything that is not
// YAML is treated as TOML.
func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = toml.Unmarshal(data, cfg)
	}
	if err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if cli.Env != "" {
		c.Env = Mode(strings.ToLower(cli.Env))
	}
	if cli.Assets != "" {
		c.Assets.Root = cli.Assets
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
}

func (c *Config) validate() error {
	if c.Env != "" && !c.Env.Valid() {
		return fmt.Errorf("env must be one of: development, production, test; got %q", c.Env)
	}

	// Numeric bounds.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 0–65535; got %d", c.Server.Port)
	}
	if c.Server.BodyMaxBytes < 0 {
		return fmt.Errorf("server.body_max_bytes must be non-negative; got %d", c.Server.BodyMaxBytes)
	}
	if c.Server.GzipLevel < -1 || c.Server.GzipLevel > 9 {
		return fmt.Errorf("server.gzip_level must be -1–9; got %d", c.Server.GzipLevel)
	}
	if c.Server.HSTSMaxAge < 0 {
		return fmt.Errorf("server.hsts_max_age must be non-negative; got %d", c.Server.HSTSMaxAge)
	}
	if c.Upstream.TimeoutSeconds < 0 {
		return fmt.Errorf("upstream.timeout_seconds must be non-negative; got %d", c.Upstream.TimeoutSeconds)
	}
	if c.Upstream.IdleConnections < 0 {
		return fmt.Errorf("upstream.idle_connections must be non-negative; got %d", c.Upstream.IdleConnections)
	}
	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("server.rate_limit.requests_per_second must be > 0 when rate limiting is enabled; got %v", c.Server.RateLimit.RequestsPerSecond)
	}

	if strings.ContainsAny(c.Assets.Index, `/\`) {
		return fmt.Errorf("assets.index must be a file name inside assets.root; got %q", c.Assets.Index)
	}

	for _, s := range c.Proxy.AllowedSchemes {
		switch strings.ToLower(s) {
		case "http", "https":
		default:
			return fmt.Errorf("proxy.allowed_schemes may only contain http and https; got %q", s)
		}
	}

	// Log fields.
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error", "":
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text", "":
	default:
		return fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format)
	}

	if c.Metrics.Enabled && c.Metrics.Path != "" {
		p := c.Metrics.Path
		if p[0] != '/' {
			return fmt.Errorf("metrics.path must start with '/'; got %q", p)
		}
		for _, reserved := range []string{"/proxy", "/api/v1"} {
			if p == reserved || strings.HasPrefix(p, reserved+"/") {
				return fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, reserved)
			}
		}
	}

	return nil
}

// setDefaults fills zero-valued fields with defaults.
// For integer fields zero means "unset" because neither TOML nor YAML lets us
// tell an explicit 0 from an omitted key.
func (c *Config) setDefaults() {
	if c.Env == "" {
		c.Env = ModeDevelopment
	}
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 3000
	}
	if c.Server.BodyMaxBytes == 0 {
		c.Server.BodyMaxBytes = 1024 * 1024 // 1 MB
	}
	if c.Server.GzipLevel == 0 {
		c.Server.GzipLevel = -1
	}
	if c.Server.HSTSMaxAge == 0 {
		c.Server.HSTSMaxAge = 15552000 // 180 days
	}
	if c.Assets.Root == "" {
		c.Assets.Root = "dist"
	}
	if c.Assets.Index == "" {
		c.Assets.Index = "index.html"
	}
	if c.Assets.Watch == nil {
		watch := c.Env == ModeDevelopment
		c.Assets.Watch = &watch
	}
	if len(c.Proxy.AllowedSchemes) == 0 {
		c.Proxy.AllowedSchemes = []string{"http", "https"}
	}
	if c.Upstream.TimeoutSeconds == 0 {
		c.Upstream.TimeoutSeconds = 30
	}
	if c.Upstream.IdleConnections == 0 {
		c.Upstream.IdleConnections = 100
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(configSearchPaths)
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Addr returns the server listen address as host:port.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IndexPath returns the entry document path on disk.
func (c *AssetsConfig) IndexPath() string {
	return filepath.Join(c.Root, c.Index)
}

// WatchEnabled reports whether the entry document should be reloaded on change.
func (c *AssetsConfig) WatchEnabled() bool {
	return c.Watch != nil && *c.Watch
}

// FilePath returns the config file the settings were read from, if any.
func (c *Config) FilePath() string {
	return c.filePath
}

// WarnPermissions logs a warning if the config file is writable by group or others.
func (c *Config) WarnPermissions(logger *slog.Logger) {
	if c.filePath == "" {
		return
	}
	info, err := os.Stat(c.filePath)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0o022 != 0 {
		logger.Warn("config file is writable by group/others; consider chmod 644",
			"path", c.filePath,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}
