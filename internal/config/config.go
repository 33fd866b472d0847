package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server          ServerConfig          `yaml:"server"`
	Database        DatabaseConfig        `yaml:"database"`
	Logging         LoggingConfig         `yaml:"logging"`
	Repository      RepositoryConfig      `yaml:"repository"`
	Materialization MaterializationConfig `yaml:"materialization"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
	Host string `yaml:"host"`
}

type DatabaseConfig struct {
	URL            string        `yaml:"url"`
	MaxConnections int           `yaml:"max_connections"`
	MinConnections int           `yaml:"min_connections"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
}

type LoggingConfig struct {
	Development bool `yaml:"development"`
}

type RepositoryConfig struct {
	Type string `yaml:"type"` // "postgres" or "inmemory"
}

// MaterializationConfig holds the tunables of the materialization window
// policy. Zero values are replaced by the documented defaults.
type MaterializationConfig struct {
	DefaultTimezone      string   `yaml:"default_timezone"`
	LookaheadDays        int      `yaml:"lookahead_days"`
	MinUpcomingInstances int      `yaml:"min_upcoming_instances"`
	MaxBatchSize         int      `yaml:"max_batch_size"`
	EnableCatchup        bool     `yaml:"enable_catchup"`
	GraceDays            int      `yaml:"materialization_grace_days"`
	DefaultFilters       []string `yaml:"default_filters"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.yml"
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	var cfg Config
	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "localhost"
	}
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Database.MaxConnections == 0 {
		c.Database.MaxConnections = 5
	}
	if c.Database.MinConnections == 0 {
		c.Database.MinConnections = 1
	}
	if c.Database.IdleTimeout == 0 {
		c.Database.IdleTimeout = 5 * time.Minute
	}
	if c.Repository.Type == "" {
		c.Repository.Type = "inmemory"
	}
	if c.Materialization.DefaultTimezone == "" {
		if tz := os.Getenv("TZ"); tz != "" {
			c.Materialization.DefaultTimezone = tz
		} else {
			c.Materialization.DefaultTimezone = "UTC"
		}
	}
	if c.Materialization.LookaheadDays == 0 {
		c.Materialization.LookaheadDays = 30
	}
	if c.Materialization.MinUpcomingInstances == 0 {
		c.Materialization.MinUpcomingInstances = 1
	}
	if c.Materialization.MaxBatchSize == 0 {
		c.Materialization.MaxBatchSize = 100
	}
	if c.Materialization.GraceDays == 0 {
		c.Materialization.GraceDays = 3
	}
}

func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}
