package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/faidon-laboratory/lab-services/pkg/observability"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration of one lab service process. It is built
// once by LoadConfig and treated as read-only afterwards.
type Config struct {
	Service    ServiceConfig    `yaml:"service"`
	Server     ServerConfig     `yaml:"server"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Simulation SimulationConfig `yaml:"simulation"`
	Upstreams  UpstreamConfig   `yaml:"upstreams"`
}

// ServiceConfig identifies the service in logs, spans and metrics
type ServiceConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	MetricsPort     string        `yaml:"metrics_port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
}

// TelemetryConfig holds collector settings
type TelemetryConfig struct {
	// Endpoint is the collector host:port. Empty means local-only logging.
	Endpoint     string        `yaml:"endpoint"`
	Protocol     string        `yaml:"protocol"`
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
	LogLevel     string        `yaml:"log_level"`
}

// SimulationConfig controls the synthetic behaviour of the handlers
type SimulationConfig struct {
	FailRate          float64 `yaml:"fail_rate"`
	ReadinessDelaySec int     `yaml:"readiness_delay_sec"`
	Greeting          string  `yaml:"greeting"`
}

// UpstreamConfig holds the addresses the gateway calls
type UpstreamConfig struct {
	UserServiceURL         string        `yaml:"user_service_url"`
	NotificationServiceURL string        `yaml:"notification_service_url"`
	Timeout                time.Duration `yaml:"timeout"`
}

// Default returns the built-in defaults for a service named serviceName.
func Default(serviceName string) *Config {
	return &Config{
		Service: ServiceConfig{
			Name:        serviceName,
			Version:     "1.0.0",
			Environment: "development",
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8000",
			MetricsPort:     "9090",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxBodyBytes:    1 << 20,
		},
		Telemetry: TelemetryConfig{
			Protocol:     observability.ProtocolHTTP,
			ProbeTimeout: observability.DefaultProbeTimeout,
			LogLevel:     "debug",
		},
		Simulation: SimulationConfig{
			FailRate:          0.02,
			ReadinessDelaySec: 10,
			Greeting:          "hello",
		},
		Upstreams: UpstreamConfig{
			UserServiceURL:         "http://user-service:80",
			NotificationServiceURL: "http://notification-service:80",
			Timeout:                5 * time.Second,
		},
	}
}

// LoadConfig builds the configuration from defaults, the optional YAML file
// named by CONFIG_FILE and the environment, in increasing precedence.
func LoadConfig(serviceName string) (*Config, error) {
	cfg := Default(serviceName)

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadFile overlays the keys present in a YAML file.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnv overlays environment variables. Unset or unparsable variables
// keep the current value.
func (c *Config) applyEnv() {
	c.Service.Name = getEnv("SERVICE_NAME", c.Service.Name)
	c.Service.Version = getEnv("SERVICE_VERSION", c.Service.Version)
	c.Service.Environment = getEnv("ENVIRONMENT", c.Service.Environment)

	c.Server.Host = getEnv("LISTEN_HOST", c.Server.Host)
	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.Server.MetricsPort = getEnv("METRICS_PORT", c.Server.MetricsPort)
	c.Server.ShutdownTimeout = getEnvDuration("SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)

	c.Telemetry.Endpoint = getEnv("ALLOY_URL", c.Telemetry.Endpoint)
	c.Telemetry.Protocol = getEnv("OTEL_PROTOCOL", c.Telemetry.Protocol)
	c.Telemetry.ProbeTimeout = getEnvDuration("OTEL_PROBE_TIMEOUT", c.Telemetry.ProbeTimeout)
	c.Telemetry.LogLevel = getEnv("LOG_LEVEL", c.Telemetry.LogLevel)

	c.Simulation.FailRate = getEnvFloat("FAIL_RATE", c.Simulation.FailRate)
	c.Simulation.ReadinessDelaySec = getEnvInt("READINESS_DELAY_SEC", c.Simulation.ReadinessDelaySec)
	c.Simulation.Greeting = getEnv("GREETING", c.Simulation.Greeting)

	c.Upstreams.UserServiceURL = getEnv("USER_SERVICE_URL", c.Upstreams.UserServiceURL)
	c.Upstreams.NotificationServiceURL = getEnv("NOTIFICATION_SERVICE_URL", c.Upstreams.NotificationServiceURL)
	c.Upstreams.Timeout = getEnvDuration("UPSTREAM_TIMEOUT", c.Upstreams.Timeout)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Service.Name) == "" {
		errs = append(errs, errors.New("service name is required"))
	}
	if c.Server.Port == "" {
		errs = append(errs, errors.New("server port is required"))
	}
	if c.Server.MetricsPort == "" {
		errs = append(errs, errors.New("metrics port is required"))
	}
	if c.Server.Port != "" && c.Server.Port == c.Server.MetricsPort {
		errs = append(errs, errors.New("server port and metrics port must be different"))
	}
	if c.Server.ShutdownTimeout < 0 {
		errs = append(errs, errors.New("shutdown timeout must not be negative"))
	}
	switch c.Telemetry.Protocol {
	case observability.ProtocolHTTP, observability.ProtocolGRPC:
	default:
		errs = append(errs, fmt.Errorf("invalid telemetry protocol: %s (must be %s or %s)",
			c.Telemetry.Protocol, observability.ProtocolHTTP, observability.ProtocolGRPC))
	}
	if c.Simulation.FailRate < 0 || c.Simulation.FailRate > 1 {
		errs = append(errs, fmt.Errorf("fail rate must be within [0,1], got %v", c.Simulation.FailRate))
	}
	if c.Simulation.ReadinessDelaySec < 0 {
		errs = append(errs, fmt.Errorf("readiness delay must not be negative, got %d", c.Simulation.ReadinessDelaySec))
	}
	if c.Upstreams.Timeout <= 0 {
		errs = append(errs, errors.New("upstream timeout must be positive"))
	}

	return errors.Join(errs...)
}

// APIAddr is the listen address of the API server
func (c *Config) APIAddr() string {
	return net.JoinHostPort(c.Server.Host, c.Server.Port)
}

// MetricsAddr is the listen address of the metrics server
func (c *Config) MetricsAddr() string {
	return net.JoinHostPort(c.Server.Host, c.Server.MetricsPort)
}

// ReadinessDelay returns the startup delay before /readyz reports ready
func (c *Config) ReadinessDelay() time.Duration {
	return time.Duration(c.Simulation.ReadinessDelaySec) * time.Second
}

// TelemetryConfig converts the loaded values into the façade configuration
func (c *Config) TelemetryConfig() observability.Config {
	return observability.Config{
		ServiceName:    c.Service.Name,
		ServiceVersion: c.Service.Version,
		Environment:    c.Service.Environment,
		Endpoint:       c.Telemetry.Endpoint,
		Protocol:       c.Telemetry.Protocol,
		ProbeTimeout:   c.Telemetry.ProbeTimeout,
		LogLevel:       observability.ParseLogLevel(c.Telemetry.LogLevel),
	}
}

// Fields summarizes the configuration for the startup log line
func (c *Config) Fields() observability.Fields {
	return observability.Fields{
		"port":            c.Server.Port,
		"metrics_port":    c.Server.MetricsPort,
		"fail_rate":       c.Simulation.FailRate,
		"ready_delay_sec": c.Simulation.ReadinessDelaySec,
		"collector":       c.Telemetry.Endpoint,
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
