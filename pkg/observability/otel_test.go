package observability

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

func TestCheckEndpoint(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	tests := []struct {
		name     string
		endpoint string
		timeout  time.Duration
		wantErr  bool
	}{
		{name: "listening", endpoint: ln.Addr().String(), timeout: time.Second},
		{name: "skip dial", endpoint: "alloy:4318", timeout: -1},
		{name: "refused", endpoint: "127.0.0.1:1", timeout: time.Second, wantErr: true},
		{name: "no port", endpoint: "alloy", timeout: -1, wantErr: true},
		{name: "zero port", endpoint: "alloy:0", timeout: -1, wantErr: true},
		{name: "with scheme", endpoint: "http://alloy:4318", timeout: -1, wantErr: true},
		{name: "with path", endpoint: "alloy:4318/v1", timeout: -1, wantErr: true},
		{name: "empty host", endpoint: ":4318", timeout: -1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkEndpoint(context.Background(), tt.endpoint, tt.timeout)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewResource(t *testing.T) {
	res, err := newResource(context.Background(), Config{
		ServiceName:    "api-gateway",
		ServiceVersion: "2.1.0",
		Environment:    "staging",
	})
	require.NoError(t, err)

	attrs := res.Attributes()
	assert.Contains(t, attrs, semconv.ServiceName("api-gateway"))
	assert.Contains(t, attrs, semconv.ServiceVersion("2.1.0"))
	assert.Contains(t, attrs, semconv.DeploymentEnvironment("staging"))
	assert.Contains(t, attrs, attribute.String("telemetry.sdk.language", "go"))
}

func TestNewOTelBackend_GRPC(t *testing.T) {
	cfg := testConfig()
	cfg.Endpoint = "127.0.0.1:4317"
	cfg.Protocol = ProtocolGRPC

	b, err := newOTelBackend(context.Background(), cfg, &options{})
	require.NoError(t, err)
	assert.True(t, b.active())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = b.shutdown(ctx)
}
