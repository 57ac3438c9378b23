package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/georgepadayatti/signflow/audit"
	"github.com/georgepadayatti/signflow/document"
)

// Common errors
var (
	ErrConfigurationError = errors.New("configuration error")
	ErrUnexpectedField    = errors.New("unexpected field in configuration")
)

// Environment variables overlaid on the file configuration.
const (
	EnvAddr        = "SIGNFLOW_ADDR"
	EnvDatabase    = "DATABASE_URL"
	EnvDBMaxConn   = "DB_MAX_CONN"
	EnvGeoIPURL    = "SIGNFLOW_GEOIP_URL"
	EnvLogLevel    = "SIGNFLOW_LOG_LEVEL"
	EnvLogFormat   = "SIGNFLOW_LOG_FORMAT"
	DefaultEnvFile = ".env"
)

// ConfigError represents a configuration error with context.
type ConfigError struct {
	Field   string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config error in '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("config error: %s", e.Message)
}

func (e *ConfigError) Unwrap() error {
	if e.Err == nil {
		return ErrConfigurationError
	}
	return e.Err
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

// ServerConfig contains the HTTP listener configuration.
type ServerConfig struct {
	// Addr is the listen address.
	Addr string `yaml:"addr" json:"addr,omitempty"`

	// Mode is the gin mode (debug, release, test).
	Mode string `yaml:"mode" json:"mode,omitempty"`

	// ReadTimeout and WriteTimeout are in seconds.
	ReadTimeout  int `yaml:"read-timeout" json:"read_timeout,omitempty"`
	WriteTimeout int `yaml:"write-timeout" json:"write_timeout,omitempty"`
}

// SetDefaults sets default values for the server configuration.
func (c *ServerConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.Mode == "" {
		c.Mode = "release"
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 15
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 60
	}
}

// Validate validates the server configuration.
func (c *ServerConfig) Validate() error {
	switch c.Mode {
	case "debug", "release", "test":
	default:
		return NewConfigError("server.mode", fmt.Sprintf("unknown mode %q", c.Mode))
	}
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 {
		return NewConfigError("server", "timeouts cannot be negative")
	}
	return nil
}

// DatabaseConfig contains the Postgres configuration. An empty URL selects
// the in-memory store.
type DatabaseConfig struct {
	URL      string `yaml:"url" json:"url,omitempty"`
	MaxConns int    `yaml:"max-conns" json:"max_conns,omitempty"`
	Migrate  bool   `yaml:"migrate" json:"migrate"`
}

// SetDefaults sets default values for the database configuration.
func (c *DatabaseConfig) SetDefaults() {
	if c.MaxConns == 0 {
		c.MaxConns = 10
	}
}

// Validate validates the database configuration.
func (c *DatabaseConfig) Validate() error {
	if c.MaxConns < 1 {
		return NewConfigError("database.max-conns", "must be at least 1")
	}
	return nil
}

// GeoIPConfig contains the geo-ip resolver configuration.
type GeoIPConfig struct {
	// URL is the JSON endpoint. Empty records the client address only.
	URL string `yaml:"url" json:"url,omitempty"`
}

// ExportConfig contains export settings.
type ExportConfig struct {
	// RenderedWidth is the on-screen page width in pixels field sizes were
	// captured at. Zero keeps a 1:1 scale.
	RenderedWidth float64 `yaml:"rendered-width" json:"rendered_width,omitempty"`

	// RasterScale is the capture resolution multiplier.
	RasterScale float64 `yaml:"raster-scale" json:"raster_scale,omitempty"`

	// MaxSourceBytes bounds downloaded source files.
	MaxSourceBytes int64 `yaml:"max-source-bytes" json:"max_source_bytes,omitempty"`
}

// SetDefaults sets default values for the export configuration.
func (c *ExportConfig) SetDefaults() {
	if c.RasterScale == 0 {
		c.RasterScale = 2
	}
	if c.MaxSourceBytes == 0 {
		c.MaxSourceBytes = 64 << 20
	}
}

// Validate validates the export configuration.
func (c *ExportConfig) Validate() error {
	if c.RenderedWidth < 0 {
		return NewConfigError("export.rendered-width", "cannot be negative")
	}
	if c.RasterScale <= 0 || c.RasterScale > 8 {
		return NewConfigError("export.raster-scale", "must be in (0, 8]")
	}
	if c.MaxSourceBytes < 0 {
		return NewConfigError("export.max-source-bytes", "cannot be negative")
	}
	return nil
}

// PartyConfig names a signing party on the certificate.
type PartyConfig struct {
	Name  string `yaml:"name" json:"name,omitempty"`
	Email string `yaml:"email" json:"email,omitempty"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the log level (debug, info, warn, error).
	Level string `yaml:"level" json:"level,omitempty"`

	// Format is the log format (text, json).
	Format string `yaml:"format" json:"format,omitempty"`

	// Output is the log output (stdout, stderr, or file path).
	Output string `yaml:"output" json:"output,omitempty"`
}

// SetDefaults sets default values for logging configuration.
func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "text"
	}
	if c.Output == "" {
		c.Output = "stderr"
	}
}

// Validate validates the logging configuration.
func (c *LoggingConfig) Validate() error {
	if _, err := logrus.ParseLevel(c.Level); err != nil {
		return &ConfigError{Field: "logging.level", Message: err.Error(), Err: err}
	}
	if c.Format != "text" && c.Format != "json" {
		return NewConfigError("logging.format", fmt.Sprintf("unknown format %q", c.Format))
	}
	return nil
}

// NewLogger builds a logger from the configuration. A file output is
// opened for appending and stays open for the life of the process.
func (c *LoggingConfig) NewLogger() (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(c.Level)
	if err != nil {
		return nil, &ConfigError{Field: "logging.level", Message: err.Error(), Err: err}
	}
	l := logrus.New()
	l.SetLevel(level)
	if c.Format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	var out io.Writer
	switch c.Output {
	case "", "stderr":
		out = os.Stderr
	case "stdout":
		out = os.Stdout
	default:
		f, err := os.OpenFile(c.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log output: %w", err)
		}
		out = f
	}
	l.SetOutput(out)
	return l, nil
}

// AppConfig contains the complete application configuration.
type AppConfig struct {
	Server   ServerConfig           `yaml:"server" json:"server"`
	Database DatabaseConfig         `yaml:"database" json:"database"`
	GeoIP    GeoIPConfig            `yaml:"geoip" json:"geoip"`
	Export   ExportConfig           `yaml:"export" json:"export"`
	Logging  LoggingConfig          `yaml:"logging" json:"logging"`
	Parties  map[string]PartyConfig `yaml:"parties" json:"parties,omitempty"`
}

var topLevelKeys = []string{"server", "database", "geoip", "export", "logging", "parties"}

// SetDefaults fills every unset value.
func (c *AppConfig) SetDefaults() {
	c.Server.SetDefaults()
	c.Database.SetDefaults()
	c.Export.SetDefaults()
	c.Logging.SetDefaults()
}

// Validate validates every section.
func (c *AppConfig) Validate() error {
	for _, v := range []interface{ Validate() error }{&c.Server, &c.Database, &c.Export, &c.Logging} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	for name := range c.Parties {
		if _, err := document.ParseAssignee(name); err != nil {
			return &ConfigError{Field: "parties." + name, Message: "unknown party", Err: ErrUnexpectedField}
		}
	}
	return nil
}

// Directory returns the configured parties for audit and certificate use.
func (c *AppConfig) Directory() audit.Directory {
	if len(c.Parties) == 0 {
		return nil
	}
	dir := make(audit.Directory, len(c.Parties))
	for name, p := range c.Parties {
		dir[document.Assignee(name)] = audit.Party{Name: p.Name, Email: p.Email}
	}
	return dir
}

// ParseConfig parses configuration from YAML data. Unknown top-level keys
// are rejected.
func ParseConfig(data []byte) (*AppConfig, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if err := CheckConfigKeys("signflow", topLevelKeys, keys); err != nil {
		return nil, err
	}

	var config AppConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &config, nil
}

// CheckConfigKeys checks if all provided keys are valid for a given configuration type.
func CheckConfigKeys(configName string, expectedKeys, suppliedKeys []string) error {
	expectedSet := make(map[string]bool)
	for _, k := range expectedKeys {
		expectedSet[normalizeKey(k)] = true
	}

	var unexpected []string
	for _, k := range suppliedKeys {
		if !expectedSet[normalizeKey(k)] {
			unexpected = append(unexpected, k)
		}
	}

	if len(unexpected) > 0 {
		keyWord := "key"
		if len(unexpected) > 1 {
			keyWord = "keys"
		}
		return fmt.Errorf("%w: unexpected %s in configuration for %s: %s",
			ErrUnexpectedField, keyWord, configName, strings.Join(unexpected, ", "))
	}
	return nil
}

// normalizeKey normalizes a configuration key (underscores to dashes).
func normalizeKey(key string) string {
	return strings.ReplaceAll(key, "_", "-")
}

// ApplyEnv overlays environment values read through lookup.
func (c *AppConfig) ApplyEnv(lookup func(string) (string, bool)) error {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	set(EnvAddr, &c.Server.Addr)
	set(EnvDatabase, &c.Database.URL)
	set(EnvGeoIPURL, &c.GeoIP.URL)
	set(EnvLogLevel, &c.Logging.Level)
	set(EnvLogFormat, &c.Logging.Format)

	if v, ok := lookup(EnvDBMaxConn); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return &ConfigError{Field: EnvDBMaxConn, Message: "not an integer", Err: err}
		}
		c.Database.MaxConns = n
	}
	return nil
}

// Load reads the optional .env file and YAML file, overlays the
// environment, applies defaults and validates. An empty path skips the
// YAML file.
func Load(path string) (*AppConfig, error) {
	if _, err := os.Stat(DefaultEnvFile); err == nil {
		if err := godotenv.Load(DefaultEnvFile); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", DefaultEnvFile, err)
		}
	}

	config := &AppConfig{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if config, err = ParseConfig(data); err != nil {
			return nil, err
		}
	}
	if err := config.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	config.SetDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}
