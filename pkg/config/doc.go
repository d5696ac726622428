// Package config loads the configuration of a lab service.
//
// # Overview
//
// Values come from built-in defaults, then an optional YAML file named by
// CONFIG_FILE, then environment variables. Later sources win.
//
// # Environment
//
// Service identity:
//
//	SERVICE_NAME="user-service"
//	SERVICE_VERSION="1.0.0"
//	ENVIRONMENT="development"
//
// Telemetry (an empty ALLOY_URL keeps the service in local-only mode):
//
//	ALLOY_URL="grafana-alloy.monitoring.svc.cluster.local:4318"
//	OTEL_PROTOCOL="http/protobuf"  # or grpc
//	OTEL_PROBE_TIMEOUT="2s"
//	LOG_LEVEL="debug"
//
// Server and simulation:
//
//	PORT="8000"
//	METRICS_PORT="9090"
//	SHUTDOWN_TIMEOUT="30s"
//	FAIL_RATE="0.02"
//	READINESS_DELAY_SEC="10"
//	GREETING="hello"
//
// Gateway upstreams:
//
//	USER_SERVICE_URL="http://user-service:80"
//	NOTIFICATION_SERVICE_URL="http://notification-service:80"
//	UPSTREAM_TIMEOUT="5s"
//
// # YAML File
//
//	service:
//	  name: api-gateway
//	telemetry:
//	  endpoint: alloy:4318
//	simulation:
//	  fail_rate: 0.1
//
// # Usage
//
//	cfg, err := config.LoadConfig("user-service")
//	if err != nil {
//		return err
//	}
//	tel := observability.New(ctx, cfg.TelemetryConfig())
package config
