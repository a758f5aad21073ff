// Package config loads connection and mapping settings from a config file,
// a .env file and RELMAP_ environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

// EnvPrefix is stripped from environment variable names.
const EnvPrefix = "RELMAP_"

// ErrMissing is wrapped by errors for required settings left empty.
var ErrMissing = errors.New("required setting missing")

// Config holds everything needed to open a mapper.
type Config struct {
	Driver            string        `mapstructure:"driver"`
	DSN               string        `mapstructure:"dsn"`
	MaxOpenConns      int           `mapstructure:"max_open_conns"`
	MaxIdleConns      int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime   time.Duration `mapstructure:"conn_max_lifetime"`
	StmtCacheCapacity int           `mapstructure:"stmt_cache_capacity"`
	DateFormat        string        `mapstructure:"date_format"`
	TimeFormat        string        `mapstructure:"time_format"`
	DateTimeFormat    string        `mapstructure:"datetime_format"`
	SensitiveFields   []string      `mapstructure:"sensitive_fields"`
	// AuditLevel is none, writes or all.
	AuditLevel string `mapstructure:"audit_level"`
}

var defaults = map[string]any{
	"driver":              "",
	"dsn":                 "",
	"max_open_conns":      0,
	"max_idle_conns":      2,
	"conn_max_lifetime":   time.Duration(0),
	"stmt_cache_capacity": 1000,
	"date_format":         "2006-01-02",
	"time_format":         "15:04:05",
	"datetime_format":     "2006-01-02 15:04:05",
	"sensitive_fields":    []string{},
	"audit_level":         "none",
}

// Loader reads a Config. Sources, lowest precedence first: defaults, File,
// EnvFile, Environ.
type Loader struct {
	// Fs defaults to the OS filesystem.
	Fs afero.Fs
	// File is an optional yaml, json or toml file.
	File string
	// EnvFile defaults to ".env" and may be absent.
	EnvFile string
	// Environ defaults to os.Environ().
	Environ []string
}

// Load reads path (which may be empty) with the default Loader.
func Load(path string) (*Config, error) {
	return Loader{File: path}.Load()
}

// Load resolves every source and validates the result.
func (l Loader) Load() (*Config, error) {
	fs := l.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	envFile := l.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	environ := l.Environ
	if environ == nil {
		environ = os.Environ()
	}

	v := viper.New()
	v.SetFs(fs)
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	if l.File != "" {
		v.SetConfigFile(l.File)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", l.File, err)
		}
	}

	dotenv, err := readDotenv(fs, envFile)
	if err != nil {
		return nil, err
	}
	for k, val := range dotenv {
		setEnv(v, k, val)
	}
	for _, kv := range environ {
		k, val, ok := strings.Cut(kv, "=")
		if ok {
			setEnv(v, k, val)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func readDotenv(fs afero.Fs, path string) (map[string]string, error) {
	f, err := fs.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	vals, err := godotenv.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return vals, nil
}

// setEnv maps RELMAP_MAX_OPEN_CONNS to max_open_conns. Unknown keys are
// ignored.
func setEnv(v *viper.Viper, name, value string) {
	if !strings.HasPrefix(name, EnvPrefix) {
		return
	}
	key := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	if _, known := defaults[key]; !known {
		return
	}
	if key == "sensitive_fields" {
		v.Set(key, splitList(value))
		return
	}
	v.Set(key, value)
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks required settings and value ranges.
func (c *Config) Validate() error {
	if c.Driver == "" {
		return fmt.Errorf("driver: %w", ErrMissing)
	}
	if c.DSN == "" {
		return fmt.Errorf("dsn: %w", ErrMissing)
	}
	if c.MaxOpenConns < 0 || c.MaxIdleConns < 0 {
		return fmt.Errorf("connection pool sizes must not be negative")
	}
	switch c.AuditLevel {
	case "", "none", "writes", "all":
	default:
		return fmt.Errorf("audit_level: unknown value %q", c.AuditLevel)
	}
	return nil
}
