package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/faidon-laboratory/lab-services/pkg/observability"
)

var envKeys = []string{
	"CONFIG_FILE", "SERVICE_NAME", "SERVICE_VERSION", "ENVIRONMENT", "LISTEN_HOST",
	"PORT", "METRICS_PORT", "SHUTDOWN_TIMEOUT", "ALLOY_URL", "OTEL_PROTOCOL",
	"OTEL_PROBE_TIMEOUT", "LOG_LEVEL", "FAIL_RATE", "READINESS_DELAY_SEC", "GREETING",
	"USER_SERVICE_URL", "NOTIFICATION_SERVICE_URL", "UPSTREAM_TIMEOUT",
}

// clearEnv blanks every variable LoadConfig reads for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
	}
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("user-service")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Service.Name != "user-service" {
		t.Errorf("Service.Name = %q, want user-service", cfg.Service.Name)
	}
	if cfg.Service.Version != "1.0.0" {
		t.Errorf("Service.Version = %q, want 1.0.0", cfg.Service.Version)
	}
	if cfg.Service.Environment != "development" {
		t.Errorf("Service.Environment = %q, want development", cfg.Service.Environment)
	}
	if cfg.Telemetry.Endpoint != "" {
		t.Errorf("Telemetry.Endpoint = %q, want empty", cfg.Telemetry.Endpoint)
	}
	if cfg.Telemetry.Protocol != observability.ProtocolHTTP {
		t.Errorf("Telemetry.Protocol = %q", cfg.Telemetry.Protocol)
	}
	if cfg.Simulation.FailRate != 0.02 {
		t.Errorf("Simulation.FailRate = %v, want 0.02", cfg.Simulation.FailRate)
	}
	if cfg.ReadinessDelay() != 10*time.Second {
		t.Errorf("ReadinessDelay() = %v, want 10s", cfg.ReadinessDelay())
	}
	if cfg.Simulation.Greeting != "hello" {
		t.Errorf("Simulation.Greeting = %q, want hello", cfg.Simulation.Greeting)
	}
	if cfg.APIAddr() != "0.0.0.0:8000" {
		t.Errorf("APIAddr() = %q", cfg.APIAddr())
	}
	if cfg.MetricsAddr() != "0.0.0.0:9090" {
		t.Errorf("MetricsAddr() = %q", cfg.MetricsAddr())
	}
	if cfg.Upstreams.Timeout != 5*time.Second {
		t.Errorf("Upstreams.Timeout = %v", cfg.Upstreams.Timeout)
	}
}

func TestLoadConfig_Environment(t *testing.T) {
	clearEnv(t)
	t.Setenv("SERVICE_NAME", "gateway-canary")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("ALLOY_URL", "alloy:4318")
	t.Setenv("OTEL_PROTOCOL", "grpc")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("PORT", "8080")
	t.Setenv("FAIL_RATE", "0.5")
	t.Setenv("READINESS_DELAY_SEC", "0")
	t.Setenv("UPSTREAM_TIMEOUT", "750ms")

	cfg, err := LoadConfig("api-gateway")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	tc := cfg.TelemetryConfig()
	if tc.ServiceName != "gateway-canary" {
		t.Errorf("ServiceName = %q", tc.ServiceName)
	}
	if tc.Environment != "production" {
		t.Errorf("Environment = %q", tc.Environment)
	}
	if tc.Endpoint != "alloy:4318" {
		t.Errorf("Endpoint = %q", tc.Endpoint)
	}
	if tc.Protocol != observability.ProtocolGRPC {
		t.Errorf("Protocol = %q", tc.Protocol)
	}
	if tc.LogLevel != observability.WarnLevel {
		t.Errorf("LogLevel = %v", tc.LogLevel)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("Port = %q", cfg.Server.Port)
	}
	if cfg.Simulation.FailRate != 0.5 {
		t.Errorf("FailRate = %v", cfg.Simulation.FailRate)
	}
	if cfg.ReadinessDelay() != 0 {
		t.Errorf("ReadinessDelay() = %v", cfg.ReadinessDelay())
	}
	if cfg.Upstreams.Timeout != 750*time.Millisecond {
		t.Errorf("Upstreams.Timeout = %v", cfg.Upstreams.Timeout)
	}
}

func TestLoadConfig_InvalidValuesKeepDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("FAIL_RATE", "lots")
	t.Setenv("READINESS_DELAY_SEC", "soon")
	t.Setenv("SHUTDOWN_TIMEOUT", "forever")

	cfg, err := LoadConfig("user-service")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Simulation.FailRate != 0.02 {
		t.Errorf("FailRate = %v, want default", cfg.Simulation.FailRate)
	}
	if cfg.Simulation.ReadinessDelaySec != 10 {
		t.Errorf("ReadinessDelaySec = %v, want default", cfg.Simulation.ReadinessDelaySec)
	}
	if cfg.Server.ShutdownTimeout != 30*time.Second {
		t.Errorf("ShutdownTimeout = %v, want default", cfg.Server.ShutdownTimeout)
	}
}

func TestLoadConfig_FileOverlay(t *testing.T) {
	clearEnv(t)
	path := writeConfigFile(t, `
service:
  version: 2.0.0
telemetry:
  endpoint: alloy:4318
  probe_timeout: 500ms
simulation:
  fail_rate: 0.25
  greeting: hi
server:
  port: "7000"
`)
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("GREETING", "hey")

	cfg, err := LoadConfig("notification-service")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Service.Name != "notification-service" {
		t.Errorf("Service.Name = %q, keys absent from the file keep defaults", cfg.Service.Name)
	}
	if cfg.Service.Version != "2.0.0" {
		t.Errorf("Service.Version = %q", cfg.Service.Version)
	}
	if cfg.Telemetry.Endpoint != "alloy:4318" {
		t.Errorf("Telemetry.Endpoint = %q", cfg.Telemetry.Endpoint)
	}
	if cfg.Telemetry.ProbeTimeout != 500*time.Millisecond {
		t.Errorf("Telemetry.ProbeTimeout = %v", cfg.Telemetry.ProbeTimeout)
	}
	if cfg.Simulation.FailRate != 0.25 {
		t.Errorf("Simulation.FailRate = %v", cfg.Simulation.FailRate)
	}
	if cfg.Simulation.Greeting != "hey" {
		t.Errorf("Simulation.Greeting = %q, environment must win over the file", cfg.Simulation.Greeting)
	}
	if cfg.Server.Port != "7000" {
		t.Errorf("Server.Port = %q", cfg.Server.Port)
	}
}

func TestLoadConfig_FileErrors(t *testing.T) {
	clearEnv(t)

	t.Run("missing file", func(t *testing.T) {
		t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
		if _, err := LoadConfig("user-service"); err == nil {
			t.Error("expected error for missing file")
		}
	})

	t.Run("malformed yaml", func(t *testing.T) {
		t.Setenv("CONFIG_FILE", writeConfigFile(t, "service: [unterminated"))
		_, err := LoadConfig("user-service")
		if err == nil || !strings.Contains(err.Error(), "failed to parse config file") {
			t.Errorf("expected parse error, got %v", err)
		}
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{name: "empty service name", mutate: func(c *Config) { c.Service.Name = " " }, wantErr: "service name is required"},
		{name: "same ports", mutate: func(c *Config) { c.Server.MetricsPort = c.Server.Port }, wantErr: "must be different"},
		{name: "missing port", mutate: func(c *Config) { c.Server.Port = "" }, wantErr: "server port is required"},
		{name: "fail rate above one", mutate: func(c *Config) { c.Simulation.FailRate = 1.5 }, wantErr: "fail rate"},
		{name: "negative fail rate", mutate: func(c *Config) { c.Simulation.FailRate = -0.1 }, wantErr: "fail rate"},
		{name: "negative readiness delay", mutate: func(c *Config) { c.Simulation.ReadinessDelaySec = -1 }, wantErr: "readiness delay"},
		{name: "unknown protocol", mutate: func(c *Config) { c.Telemetry.Protocol = "thrift" }, wantErr: "invalid telemetry protocol"},
		{name: "zero upstream timeout", mutate: func(c *Config) { c.Upstreams.Timeout = 0 }, wantErr: "upstream timeout"},
		{name: "fail rate bounds are inclusive", mutate: func(c *Config) { c.Simulation.FailRate = 1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default("user-service")
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadConfig_RejectsInvalid(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")

	_, err := LoadConfig("user-service")
	if err == nil || !strings.Contains(err.Error(), "configuration validation failed") {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestFields(t *testing.T) {
	fields := Default("user-service").Fields()
	if fields["port"] != "8000" || fields["metrics_port"] != "9090" {
		t.Errorf("unexpected fields %v", fields)
	}
}
