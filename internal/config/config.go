// Package config loads and validates the node's YAML configuration,
// with environment-variable overrides layered on top.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"KoordeDHT/internal/logger"
)

type TracingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

type TelemetryConfig struct {
	Tracing TracingConfig `yaml:"tracing"`
}

type FileLoggerConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"maxSize"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAge     int    `yaml:"maxAge"`
	Compress   bool   `yaml:"compress"`
}

type LoggerConfig struct {
	Active   bool             `yaml:"active"`
	Level    string           `yaml:"level"`
	Encoding string           `yaml:"encoding"`
	Mode     string           `yaml:"mode"`
	File     FileLoggerConfig `yaml:"file"`
}

type Route53Config struct {
	HostedZoneID string `yaml:"hostedZoneId"`
	DomainSuffix string `yaml:"domainSuffix"`
	TTL          int64  `yaml:"ttl"`
}

type BootstrapConfig struct {
	Mode    string        `yaml:"mode"` // "static" or "dns"
	Peer    string        `yaml:"peer"`
	Route53 Route53Config `yaml:"route53"`
}

type DHTConfig struct {
	ManifestPath string `yaml:"manifestPath"`
	ImagesDir    string `yaml:"imagesDir"`
	JoinTTL      int    `yaml:"joinTTL"`
	SearchTTL    int    `yaml:"searchTTL"`
}

type NodeConfig struct {
	ID        string `yaml:"id"` // optional override, 0..255 (decimal, or hex with 0x prefix)
	Bind      string `yaml:"bind"`
	Mode      string `yaml:"mode"` // "public" or "private", picks the advertised interface
	Port      int    `yaml:"port"`
	ImagePort int    `yaml:"imagePort"`
}

type Config struct {
	Logger    LoggerConfig    `yaml:"logger"`
	Node      NodeConfig      `yaml:"node"`
	DHT       DHTConfig       `yaml:"dht"`
	Bootstrap BootstrapConfig `yaml:"bootstrap"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// LoadConfig reads and parses the YAML configuration file at path. Only
// syntactic parsing is performed here; call ValidateConfig afterward.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnvOverrides layers environment-variable overrides for the
// deployment-specific fields on top of the loaded file.
//
//	NODE_ID, NODE_BIND, NODE_MODE, NODE_PORT, NODE_IMAGE_PORT
//	BOOTSTRAP_MODE, BOOTSTRAP_PEER
//	REGISTER_ZONE_ID, REGISTER_SUFFIX, REGISTER_TTL
//	TRACE_ENABLED, TRACE_EXPORTER
//	LOGGER_ENABLED, LOGGER_LEVEL, LOGGER_ENCODING, LOGGER_MODE, LOGGER_FILE_PATH
func (cfg *Config) ApplyEnvOverrides() {
	if v := os.Getenv("NODE_ID"); v != "" {
		cfg.Node.ID = v
	}
	if v := os.Getenv("NODE_BIND"); v != "" {
		cfg.Node.Bind = v
	}
	if v := os.Getenv("NODE_MODE"); v != "" {
		cfg.Node.Mode = v
	}
	if v := os.Getenv("NODE_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Node.Port = p
		}
	}
	if v := os.Getenv("NODE_IMAGE_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Node.ImagePort = p
		}
	}
	if v := os.Getenv("BOOTSTRAP_MODE"); v != "" {
		cfg.Bootstrap.Mode = v
	}
	if v := os.Getenv("BOOTSTRAP_PEER"); v != "" {
		cfg.Bootstrap.Peer = v
	}
	if v := os.Getenv("REGISTER_ZONE_ID"); v != "" {
		cfg.Bootstrap.Route53.HostedZoneID = v
	}
	if v := os.Getenv("REGISTER_SUFFIX"); v != "" {
		cfg.Bootstrap.Route53.DomainSuffix = v
	}
	if v := os.Getenv("REGISTER_TTL"); v != "" {
		if ttl, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Bootstrap.Route53.TTL = ttl
		}
	}
	if v := os.Getenv("TRACE_ENABLED"); v != "" {
		v = strings.ToLower(v)
		cfg.Telemetry.Tracing.Enabled = v == "true" || v == "1" || v == "yes"
	}
	if v := os.Getenv("TRACE_EXPORTER"); v != "" {
		cfg.Telemetry.Tracing.Exporter = v
	}
	if v := os.Getenv("LOGGER_ENABLED"); v != "" {
		v = strings.ToLower(v)
		cfg.Logger.Active = v == "true" || v == "1" || v == "yes"
	}
	if v := os.Getenv("LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("LOGGER_ENCODING"); v != "" {
		cfg.Logger.Encoding = v
	}
	if v := os.Getenv("LOGGER_MODE"); v != "" {
		cfg.Logger.Mode = v
	}
	if v := os.Getenv("LOGGER_FILE_PATH"); v != "" {
		cfg.Logger.File.Path = v
	}
}

// ValidateConfig performs structural validation of the loaded
// configuration and accumulates every problem found into a single error.
func (cfg *Config) ValidateConfig() error {
	var errs []string

	switch cfg.Logger.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("invalid logger.level: %s", cfg.Logger.Level))
	}
	switch cfg.Logger.Encoding {
	case "console", "json":
	default:
		errs = append(errs, fmt.Sprintf("invalid logger.encoding: %s", cfg.Logger.Encoding))
	}
	switch cfg.Logger.Mode {
	case "stdout":
	case "file":
		if cfg.Logger.File.Path == "" {
			errs = append(errs, "logger.file.path is required when mode=file")
		}
	default:
		errs = append(errs, fmt.Sprintf("invalid logger.mode: %s", cfg.Logger.Mode))
	}

	if cfg.Node.Port < 0 || cfg.Node.Port > 65535 {
		errs = append(errs, fmt.Sprintf("node.port must be in [0,65535], got %d", cfg.Node.Port))
	}
	if cfg.Node.ImagePort < 0 || cfg.Node.ImagePort > 65535 {
		errs = append(errs, fmt.Sprintf("node.imagePort must be in [0,65535], got %d", cfg.Node.ImagePort))
	}
	if cfg.Node.ID != "" {
		v, err := strconv.ParseUint(cfg.Node.ID, 0, 16)
		if err != nil || v > 255 {
			errs = append(errs, fmt.Sprintf("node.id must be an integer in [0,255], got %q", cfg.Node.ID))
		}
	}
	switch cfg.Node.Mode {
	case "public", "private":
	default:
		errs = append(errs, fmt.Sprintf("invalid node.mode: %s", cfg.Node.Mode))
	}

	if cfg.DHT.ManifestPath == "" {
		errs = append(errs, "dht.manifestPath is required")
	}
	if cfg.DHT.ImagesDir == "" {
		errs = append(errs, "dht.imagesDir is required")
	}
	if cfg.DHT.JoinTTL <= 0 {
		errs = append(errs, "dht.joinTTL must be > 0")
	}
	if cfg.DHT.SearchTTL <= 0 {
		errs = append(errs, "dht.searchTTL must be > 0")
	}

	switch cfg.Bootstrap.Mode {
	case "static":
		if cfg.Bootstrap.Peer != "" {
			if _, _, err := net.SplitHostPort(cfg.Bootstrap.Peer); err != nil {
				errs = append(errs, fmt.Sprintf("invalid bootstrap.peer %q: %v", cfg.Bootstrap.Peer, err))
			}
		}
	case "dns":
		if cfg.Bootstrap.Route53.HostedZoneID == "" {
			errs = append(errs, "bootstrap.route53.hostedZoneId is required when bootstrap.mode=dns")
		}
		if cfg.Bootstrap.Route53.DomainSuffix == "" {
			errs = append(errs, "bootstrap.route53.domainSuffix is required when bootstrap.mode=dns")
		}
		if cfg.Bootstrap.Route53.TTL <= 0 {
			errs = append(errs, "bootstrap.route53.ttl must be > 0 when bootstrap.mode=dns")
		}
	default:
		errs = append(errs, fmt.Sprintf("invalid bootstrap.mode: %s (must be static or dns)", cfg.Bootstrap.Mode))
	}

	if cfg.Telemetry.Tracing.Enabled {
		switch cfg.Telemetry.Tracing.Exporter {
		case "stdout":
		default:
			errs = append(errs, fmt.Sprintf("invalid telemetry.tracing.exporter: %s (only stdout is supported)", cfg.Telemetry.Tracing.Exporter))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// LogConfig emits the loaded configuration at DEBUG level, useful for
// diagnosing start-up issues.
func (cfg *Config) LogConfig(lgr logger.Logger) {
	lgr.Debug("loaded configuration",
		logger.F("logger.active", cfg.Logger.Active),
		logger.F("logger.level", cfg.Logger.Level),
		logger.F("logger.encoding", cfg.Logger.Encoding),
		logger.F("logger.mode", cfg.Logger.Mode),

		logger.F("node.id", cfg.Node.ID),
		logger.F("node.bind", cfg.Node.Bind),
		logger.F("node.mode", cfg.Node.Mode),
		logger.F("node.port", cfg.Node.Port),
		logger.F("node.imagePort", cfg.Node.ImagePort),

		logger.F("dht.manifestPath", cfg.DHT.ManifestPath),
		logger.F("dht.imagesDir", cfg.DHT.ImagesDir),
		logger.F("dht.joinTTL", cfg.DHT.JoinTTL),
		logger.F("dht.searchTTL", cfg.DHT.SearchTTL),

		logger.F("bootstrap.mode", cfg.Bootstrap.Mode),
		logger.F("bootstrap.peer", cfg.Bootstrap.Peer),
		logger.F("bootstrap.route53.hostedZoneId", cfg.Bootstrap.Route53.HostedZoneID),
		logger.F("bootstrap.route53.domainSuffix", cfg.Bootstrap.Route53.DomainSuffix),

		logger.F("telemetry.tracing.enabled", cfg.Telemetry.Tracing.Enabled),
		logger.F("telemetry.tracing.exporter", cfg.Telemetry.Tracing.Exporter),
	)
}
