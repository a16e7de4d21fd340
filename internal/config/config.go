// Package config loads the rotator configuration from a YAML file and
// environment variables. Environment variables take precedence over the file.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dreamware/kf2rotator/internal/fleet"
)

// DefaultFile is read when no path is given.
const DefaultFile = "config.yaml"

// Config holds the complete rotator configuration.
type Config struct {
	Global  GlobalConfig             `yaml:"global"`
	Log     LogConfig                `yaml:"log"`
	Servers []fleet.ServerDescriptor `yaml:"servers"`
}

// GlobalConfig mirrors fleet.GlobalSettings plus process-level options.
type GlobalConfig struct {
	// ServerAddress is the shared base address, e.g. "http://192.168.1.222".
	ServerAddress string `yaml:"server_address"`

	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// DesiredMap is used by every server that does not name its own.
	DesiredMap string `yaml:"desired_map"`

	// AdminPath is the prefix of the admin pages. Default "/admin".
	AdminPath string `yaml:"admin_path"`

	// PollInterval is the pause between two complete cycles. Default 5m.
	PollInterval time.Duration `yaml:"poll_interval"`

	// RequestTimeout bounds every request. Default 20s.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// UnresponsiveThreshold is the number of consecutive missed liveness
	// probes after which a server is marked down. Default 3.
	UnresponsiveThreshold int `yaml:"unresponsive_threshold"`

	// RequestsPerSecond paces requests per endpoint. 0 disables pacing.
	RequestsPerSecond float64 `yaml:"requests_per_second"`

	// StatusAddr enables the status HTTP listener when non-empty.
	StatusAddr string `yaml:"status_addr"`
}

// LogConfig controls the log sink.
type LogConfig struct {
	Level      string `yaml:"level"`       // debug, info, warn, error
	Format     string `yaml:"format"`      // text or json
	File       string `yaml:"file"`        // optional rolling log file
	MaxSizeMB  int    `yaml:"max_size_mb"` // roll the file after this size
	MaxBackups int    `yaml:"max_backups"` // rolled files to keep
}

// Load returns a Config populated from the file at path, then overridden by
// environment variables, then validated.
//
// Recognised env vars: KF2_SERVER_ADDRESS, KF2_USERNAME, KF2_PASSWORD,
// KF2_DESIRED_MAP, KF2_ADMIN_PATH, KF2_POLL_INTERVAL, KF2_REQUEST_TIMEOUT,
// KF2_UNRESPONSIVE_THRESHOLD, KF2_REQUESTS_PER_SECOND, KF2_STATUS_ADDR,
// KF2_LOG_LEVEL, KF2_LOG_FORMAT, KF2_LOG_FILE.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultFile
	}

	cfg := defaults()
	if err := loadFile(cfg, path); err != nil {
		return nil, fmt.Errorf("config file %q: %w", path, err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	cfg.applyServerDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes a configuration document without touching the environment.
// It is the building block of Load and is handy in tests.
func Parse(r io.Reader) (*Config, error) {
	cfg := defaults()
	if err := decode(cfg, r); err != nil {
		return nil, err
	}
	cfg.applyServerDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Global: GlobalConfig{
			ServerAddress:         "http://127.0.0.1",
			Username:              "UNKNOWN",
			Password:              "UNKNOWN",
			DesiredMap:            "kf-bioticslab",
			AdminPath:             "/admin",
			PollInterval:          5 * time.Minute,
			RequestTimeout:        20 * time.Second,
			UnresponsiveThreshold: 3,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  2,
			MaxBackups: 5,
		},
	}
}

func loadFile(cfg *Config, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return decode(cfg, f)
}

func decode(cfg *Config, r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func applyEnv(cfg *Config) error {
	g := &cfg.Global
	if v := os.Getenv("KF2_SERVER_ADDRESS"); v != "" {
		g.ServerAddress = v
	}
	if v := os.Getenv("KF2_USERNAME"); v != "" {
		g.Username = v
	}
	if v := os.Getenv("KF2_PASSWORD"); v != "" {
		g.Password = v
	}
	if v := os.Getenv("KF2_DESIRED_MAP"); v != "" {
		g.DesiredMap = v
	}
	if v := os.Getenv("KF2_ADMIN_PATH"); v != "" {
		g.AdminPath = v
	}
	if v := os.Getenv("KF2_POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("KF2_POLL_INTERVAL: %w", err)
		}
		g.PollInterval = d
	}
	if v := os.Getenv("KF2_REQUEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("KF2_REQUEST_TIMEOUT: %w", err)
		}
		g.RequestTimeout = d
	}
	if v := os.Getenv("KF2_UNRESPONSIVE_THRESHOLD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("KF2_UNRESPONSIVE_THRESHOLD: %w", err)
		}
		g.UnresponsiveThreshold = n
	}
	if v := os.Getenv("KF2_REQUESTS_PER_SECOND"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("KF2_REQUESTS_PER_SECOND: %w", err)
		}
		g.RequestsPerSecond = f
	}
	if v := os.Getenv("KF2_STATUS_ADDR"); v != "" {
		g.StatusAddr = v
	}
	if v := os.Getenv("KF2_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("KF2_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("KF2_LOG_FILE"); v != "" {
		cfg.Log.File = v
	}
	return nil
}

// applyServerDefaults fills per-server gaps from the global section.
func (c *Config) applyServerDefaults() {
	if !strings.HasPrefix(c.Global.AdminPath, "/") {
		c.Global.AdminPath = "/" + c.Global.AdminPath
	}
	c.Global.AdminPath = strings.TrimRight(c.Global.AdminPath, "/")
	for i := range c.Servers {
		if strings.TrimSpace(c.Servers[i].DesiredMap) == "" {
			c.Servers[i].DesiredMap = c.Global.DesiredMap
		}
	}
}

func (c *Config) validate() error {
	g := c.Global
	if g.Username == "" {
		return fmt.Errorf("global.username is required")
	}
	if g.Password == "" {
		return fmt.Errorf("global.password is required")
	}
	if g.PollInterval <= 0 {
		return fmt.Errorf("global.poll_interval must be positive, got %v", g.PollInterval)
	}
	if g.RequestTimeout <= 0 {
		return fmt.Errorf("global.request_timeout must be positive, got %v", g.RequestTimeout)
	}
	if g.UnresponsiveThreshold <= 0 {
		return fmt.Errorf("global.unresponsive_threshold must be positive, got %d", g.UnresponsiveThreshold)
	}
	if g.RequestsPerSecond < 0 {
		return fmt.Errorf("global.requests_per_second must not be negative")
	}
	if len(c.Servers) == 0 {
		return fmt.Errorf("servers: at least one server is required")
	}

	seen := make(map[string]bool, len(c.Servers))
	for i, s := range c.Servers {
		if s.Name == "" {
			return fmt.Errorf("servers[%d]: name is required", i)
		}
		if seen[s.Name] {
			return fmt.Errorf("servers[%d]: duplicate name %q", i, s.Name)
		}
		seen[s.Name] = true
		if _, err := fleet.NewEndpoint(g.ServerAddress, s.Port); err != nil {
			return fmt.Errorf("servers[%d] %q: %w", i, s.Name, err)
		}
		if strings.TrimSpace(s.DesiredMap) == "" {
			return fmt.Errorf("servers[%d] %q: desired_map is required", i, s.Name)
		}
		if !s.Disabled && s.GameMode == "" {
			return fmt.Errorf("servers[%d] %q: game_mode is required", i, s.Name)
		}
	}
	return nil
}

// Settings returns the shared settings consumed by the rotation controller.
func (c *Config) Settings() fleet.GlobalSettings {
	g := c.Global
	return fleet.GlobalSettings{
		ServerAddress:         g.ServerAddress,
		Username:              g.Username,
		Password:              g.Password,
		DesiredMap:            g.DesiredMap,
		AdminPath:             g.AdminPath,
		PollInterval:          g.PollInterval,
		RequestTimeout:        g.RequestTimeout,
		UnresponsiveThreshold: g.UnresponsiveThreshold,
		RequestsPerSecond:     g.RequestsPerSecond,
	}
}

// Enabled returns the descriptors that are not disabled, in file order.
func (c *Config) Enabled() []fleet.ServerDescriptor {
	out := make([]fleet.ServerDescriptor, 0, len(c.Servers))
	for _, s := range c.Servers {
		if !s.Disabled {
			out = append(out, s)
		}
	}
	return out
}
