package observability

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"
)

// checkEndpoint validates a collector host:port and, when timeout is
// positive, dials it once to make sure something is listening.
func checkEndpoint(ctx context.Context, endpoint string, timeout time.Duration) error {
	u, err := url.Parse("http://" + endpoint)
	if err != nil {
		return fmt.Errorf("invalid collector endpoint %q: %w", endpoint, err)
	}
	if u.Hostname() == "" {
		return fmt.Errorf("invalid collector endpoint %q: missing host", endpoint)
	}
	if u.Path != "" || u.RawQuery != "" || u.User != nil {
		return fmt.Errorf("invalid collector endpoint %q: expected host:port", endpoint)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil || port <= 0 || port > 65535 {
		return fmt.Errorf("invalid collector endpoint %q: missing or invalid port", endpoint)
	}

	if timeout <= 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", u.Host)
	if err != nil {
		return fmt.Errorf("collector endpoint %q unreachable: %w", endpoint, err)
	}
	_ = conn.Close()
	return nil
}
