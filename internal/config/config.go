// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/FairForge/intellinspect/internal/dataset"
	"github.com/FairForge/intellinspect/internal/events"
	"github.com/FairForge/intellinspect/internal/logging"
	"github.com/FairForge/intellinspect/internal/oracle"
	"github.com/FairForge/intellinspect/internal/replay"
	"github.com/FairForge/intellinspect/internal/retention"
	"github.com/FairForge/intellinspect/internal/store"
	"gopkg.in/yaml.v3"
)

// Config is the complete service configuration
type Config struct {
	Server    ServerConfig       `yaml:"server"`
	Store     store.Config       `yaml:"store"`
	Oracle    oracle.Config      `yaml:"oracle"`
	Datasets  DatasetsConfig     `yaml:"datasets"`
	Replay    replay.Config      `yaml:"replay"`
	Redis     events.RedisConfig `yaml:"redis"`
	Retention retention.Config   `yaml:"retention"`
}

// ServerConfig holds the HTTP listener and logger settings
type ServerConfig struct {
	Port      int    `yaml:"port"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// DatasetsConfig locates raw and normalized dataset files.
// Local ingest is confined to InboxDir.
type DatasetsConfig struct {
	DataDir   string           `yaml:"data_dir"`
	InboxDir  string           `yaml:"inbox_dir"`
	Watch     bool             `yaml:"watch"`
	CacheSize int              `yaml:"cache_size"`
	Polarity  dataset.Polarity `yaml:",inline"`
	S3        dataset.S3Config `yaml:"s3"`
}

// Logging returns the logger settings
func (s ServerConfig) Logging() *logging.LoggerConfig {
	return &logging.LoggerConfig{Level: s.LogLevel, Format: s.LogFormat}
}

// Default returns a configuration that runs locally without any external services
// other than the ML service.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080, LogLevel: "info"},
		Store:  store.Config{Driver: store.DriverSQLite, DSN: "intellinspect.db"},
		Oracle: oracle.Config{BaseURL: "http://localhost:8000"},
		Datasets: DatasetsConfig{
			DataDir:   "data",
			InboxDir:  "inbox",
			CacheSize: 8,
			Polarity:  dataset.DefaultPolarity(),
		},
		Replay: replay.DefaultConfig(),
	}
}

// Load reads path (optional), applies INTELLINSPECT_* overrides, defaults and validation
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 -- operator supplied config path
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := LoadFromEnv(cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills in anything left empty and propagates shared settings
func (c *Config) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = logging.LevelInfo
	}
	if c.Server.LogFormat == "" {
		c.Server.LogFormat = logging.FormatJSON
	}
	if c.Store.Driver == "" {
		c.Store.Driver = store.DriverMemory
	}
	if c.Datasets.DataDir == "" {
		c.Datasets.DataDir = "data"
	}
	if c.Datasets.InboxDir == "" {
		c.Datasets.InboxDir = "inbox"
	}
	if c.Datasets.CacheSize <= 0 {
		c.Datasets.CacheSize = 8
	}
	if c.Datasets.Polarity.Column == "" {
		c.Datasets.Polarity.Column = dataset.DefaultPolarity().Column
	}
	if c.Redis.ChannelPrefix == "" {
		c.Redis.ChannelPrefix = "intellinspect"
	}

	c.Oracle.ApplyDefaults()
	c.Replay.Polarity = c.Datasets.Polarity
	c.Replay.ApplyDefaults()
	c.Retention.ApplyDefaults()
}

// Validate checks the whole configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.Server.Port)
	}
	if err := c.Server.Logging().Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Datasets.Polarity.PassValue == c.Datasets.Polarity.DefectValue {
		return errors.New("config: pass_value and defect_value must differ")
	}
	if c.Datasets.Watch && c.Datasets.InboxDir == "" {
		return errors.New("config: inbox_dir is required when watch is enabled")
	}
	if samePath(c.Datasets.InboxDir, c.Datasets.DataDir) {
		return errors.New("config: inbox_dir and data_dir must be different directories")
	}

	for _, v := range []interface{ Validate() error }{
		&c.Store, &c.Oracle, &c.Replay, &c.Retention,
	} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func samePath(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}
