// Package config provides configuration management for Hivemind.
// It supports loading configuration from environment variables, config files, and defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration sections for Hivemind.
type Config struct {
	Graph     GraphConfig     `mapstructure:"graph"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Docker    DockerConfig    `mapstructure:"docker"`
	Lifecycle LifecycleConfig `mapstructure:"lifecycle"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// GraphConfig holds Neo4j connection configuration.
type GraphConfig struct {
	URI      string `mapstructure:"uri"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

// NATSConfig holds NATS messaging configuration.
// An empty URL selects the in-memory event bus.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	ClientID      string `mapstructure:"clientId"`
	MaxReconnects int    `mapstructure:"maxReconnects"`
}

// DockerConfig holds the container runtime configuration.
// When Enabled is false the Lifecycle Manager simulates deployments.
type DockerConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Host       string `mapstructure:"host"`
	APIVersion string `mapstructure:"apiVersion"`
	AgentImage string `mapstructure:"agentImage"`
	Network    string `mapstructure:"network"`
}

// LifecycleConfig holds Lifecycle Manager tuning.
type LifecycleConfig struct {
	NeedAssessmentInterval int `mapstructure:"needAssessmentInterval"` // seconds
	PerfMonitorInterval    int `mapstructure:"perfMonitorInterval"`    // seconds
	MaxConcurrentBuilds    int `mapstructure:"maxConcurrentBuilds"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// NeedAssessmentDuration returns the need assessment interval as a time.Duration.
func (l *LifecycleConfig) NeedAssessmentDuration() time.Duration {
	return time.Duration(l.NeedAssessmentInterval) * time.Second
}

// PerfMonitorDuration returns the performance monitoring interval as a time.Duration.
func (l *LifecycleConfig) PerfMonitorDuration() time.Duration {
	return time.Duration(l.PerfMonitorInterval) * time.Second
}

func detectDefaultLogFormat() string {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "json"
	}
	if env := os.Getenv("HIVEMIND_ENV"); env == "production" || env == "prod" {
		return "json"
	}
	return "text"
}

func setDefaults(v *viper.Viper) {
	// Graph defaults
	v.SetDefault("graph.uri", "bolt://localhost:7687")
	v.SetDefault("graph.user", "neo4j")
	v.SetDefault("graph.password", "")
	v.SetDefault("graph.database", "neo4j")

	// NATS defaults - empty URL means use in-memory event bus
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.clientId", "hivemind-core")
	v.SetDefault("nats.maxReconnects", 10)

	// Docker defaults
	v.SetDefault("docker.enabled", true)
	v.SetDefault("docker.host", "unix:///var/run/docker.sock")
	v.SetDefault("docker.apiVersion", "1.41")
	v.SetDefault("docker.agentImage", "hivemind/agent-base:latest")
	v.SetDefault("docker.network", "hivemind-network")

	// Lifecycle defaults
	v.SetDefault("lifecycle.needAssessmentInterval", 900)
	v.SetDefault("lifecycle.perfMonitorInterval", 300)
	v.SetDefault("lifecycle.maxConcurrentBuilds", 3)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.outputPath", "stdout")
}

// Load reads configuration from environment variables, config file, and defaults.
// Environment variables use the prefix HIVEMIND_ with snake_case naming.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default locations.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("HIVEMIND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/hivemind/")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validate checks that all required configuration fields are set.
func validate(cfg *Config) error {
	var errs []string

	if cfg.Graph.URI == "" {
		errs = append(errs, "graph.uri is required")
	}
	if cfg.Graph.User == "" {
		errs = append(errs, "graph.user is required")
	}

	if cfg.Lifecycle.NeedAssessmentInterval <= 0 {
		errs = append(errs, "lifecycle.needAssessmentInterval must be positive")
	}
	if cfg.Lifecycle.PerfMonitorInterval <= 0 {
		errs = append(errs, "lifecycle.perfMonitorInterval must be positive")
	}
	if cfg.Lifecycle.MaxConcurrentBuilds <= 0 {
		errs = append(errs, "lifecycle.maxConcurrentBuilds must be positive")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}

	return nil
}
