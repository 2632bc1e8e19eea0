// Package config loads the server configuration: a YAML (or JSON) file
// layered over built-in defaults.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultHost               = "127.0.0.1"
	DefaultPort               = 8080
	DefaultDBFile             = "recstore.db"
	DefaultMaxRequestBytes    = 1_000_000
	DefaultMaxInFlight        = 200
	DefaultCommitDelay        = 10 * time.Second
	DefaultCommitPeriod       = 10 * time.Second
	DefaultReadHeaderTimeout  = 10 * time.Second
	DefaultStreamWriteTimeout = 30 * time.Second
	DefaultShutdownTimeout    = 15 * time.Second
	DefaultLockTimeout        = 5 * time.Second
)

var (
	ErrInvalid      = errors.New("invalid configuration")
	ErrMissingDB    = errors.New("db.file is missing")
	ErrInvalidPort  = errors.New("server.port is out of range")
	ErrInvalidLimit = errors.New("limits.max_request_bytes must be positive")
)

type Config struct {
	Server ServerConfig `yaml:"server"`
	DB     DBConfig     `yaml:"db"`
	Limits LimitsConfig `yaml:"limits"`
	Commit CommitConfig `yaml:"commit"`
	Log    LogConfig    `yaml:"log"`
}

type ServerConfig struct {
	Host               string        `yaml:"host"`
	Port               int           `yaml:"port"`
	ReadHeaderTimeout  time.Duration `yaml:"read_header_timeout"`
	StreamWriteTimeout time.Duration `yaml:"stream_write_timeout"`
	MaxInFlight        int           `yaml:"max_in_flight"`
	ShutdownTimeout    time.Duration `yaml:"shutdown_timeout"`
}

type DBConfig struct {
	File        string        `yaml:"file"`
	LockTimeout time.Duration `yaml:"lock_timeout"`
	Verbose     bool          `yaml:"verbose"`
}

type LimitsConfig struct {
	MaxRequestBytes int64 `yaml:"max_request_bytes"`
}

type CommitConfig struct {
	Delay  time.Duration `yaml:"delay"`
	Period time.Duration `yaml:"period"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:               DefaultHost,
			Port:               DefaultPort,
			ReadHeaderTimeout:  DefaultReadHeaderTimeout,
			StreamWriteTimeout: DefaultStreamWriteTimeout,
			MaxInFlight:        DefaultMaxInFlight,
			ShutdownTimeout:    DefaultShutdownTimeout,
		},
		DB: DBConfig{
			File:        DefaultDBFile,
			LockTimeout: DefaultLockTimeout,
		},
		Limits: LimitsConfig{
			MaxRequestBytes: DefaultMaxRequestBytes,
		},
		Commit: CommitConfig{
			Delay:  DefaultCommitDelay,
			Period: DefaultCommitPeriod,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "pretty",
		},
	}
}

// Addr returns the listen address, host:port.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// Validate reports every problem found, joined.
func (c *Config) Validate() error {
	var errs []error
	if c.DB.File == "" {
		errs = append(errs, ErrMissingDB)
	}
	// port 0 picks a free port
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("%w: %d", ErrInvalidPort, c.Server.Port))
	}
	if c.Limits.MaxRequestBytes <= 0 {
		errs = append(errs, fmt.Errorf("%w: %d", ErrInvalidLimit, c.Limits.MaxRequestBytes))
	}
	if c.Server.MaxInFlight <= 0 {
		errs = append(errs, fmt.Errorf("server.max_in_flight must be positive: %d", c.Server.MaxInFlight))
	}
	if c.Commit.Delay < 0 {
		errs = append(errs, fmt.Errorf("commit.delay must not be negative: %v", c.Commit.Delay))
	}
	if c.Commit.Period <= 0 {
		errs = append(errs, fmt.Errorf("commit.period must be positive: %v", c.Commit.Period))
	}
	for name, d := range map[string]time.Duration{
		"server.read_header_timeout":  c.Server.ReadHeaderTimeout,
		"server.stream_write_timeout": c.Server.StreamWriteTimeout,
		"server.shutdown_timeout":     c.Server.ShutdownTimeout,
		"db.lock_timeout":             c.DB.LockTimeout,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative: %v", name, d))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}

// Load reads the file at path over the defaults. Unknown keys are errors.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, &FileError{Path: path, Err: err}
	}
	return cfg, nil
}

// Parse decodes data over the defaults. An empty document yields the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	err := dec.Decode(cfg)
	if err != nil && err != io.EOF {
		return nil, err
	}
	return cfg, nil
}

// FileError is a configuration file that could not be parsed.
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return e.Path + ": " + e.Err.Error()
}

func (e *FileError) Unwrap() error {
	return e.Err
}
