// Package loadgen drives traffic against the API gateway so that logs,
// traces and metrics keep flowing in the lab.
package loadgen

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// DefaultSchedule fires one round every two seconds.
const DefaultSchedule = "@every 2s"

// Request is one call made on every round.
type Request struct {
	Name   string
	Method string
	Path   string
	// Body returns the JSON payload; nil means no body.
	Body func() string
}

// Result is the outcome of one request.
type Result struct {
	Name       string
	StatusCode int
	Duration   time.Duration
	Err        error
}

// GatewayRequests covers every gateway endpoint.
func GatewayRequests() []Request {
	return []Request{
		{
			Name:   "process_user",
			Method: http.MethodPost,
			Path:   "/process-user",
			Body: func() string {
				return fmt.Sprintf(`{"user_id":"user_%s","action":"login","message":"Welcome back"}`, shortID())
			},
		},
		{
			Name:   "get_user",
			Method: http.MethodGet,
			Path:   "/api/users/42",
		},
		{
			Name:   "create_user",
			Method: http.MethodPost,
			Path:   "/api/users",
			Body: func() string {
				id := shortID()
				return fmt.Sprintf(`{"name":"Load User %s","email":"load-%s@example.com"}`, id, id)
			},
		},
		{
			Name:   "get_notifications",
			Method: http.MethodGet,
			Path:   "/api/notifications?limit=5",
		},
		{
			Name:   "process_workflow",
			Method: http.MethodPost,
			Path:   "/api/process",
			Body: func() string {
				return fmt.Sprintf(`{"workflow_id":"wf_%s","data":"load"}`, shortID())
			},
		},
	}
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// Generator sends rounds of requests to a target.
type Generator struct {
	target      string
	client      *http.Client
	logger      *logrus.Logger
	concurrency int
	requests    []Request
}

// New creates a generator for target, e.g. "http://api-gateway:80".
func New(target string, client *http.Client, logger *logrus.Logger, concurrency int, requests []Request) *Generator {
	if concurrency <= 0 {
		concurrency = len(requests)
	}
	return &Generator{
		target:      strings.TrimRight(target, "/"),
		client:      client,
		logger:      logger,
		concurrency: concurrency,
		requests:    requests,
	}
}

// Round sends every request once, at most concurrency at a time, and
// returns the results in request order.
func (g *Generator) Round(ctx context.Context) []Result {
	results := make([]Result, len(g.requests))

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.concurrency)
	for i, req := range g.requests {
		eg.Go(func() error {
			results[i] = g.send(ctx, req)
			return nil
		})
	}
	_ = eg.Wait()

	for _, res := range results {
		entry := g.logger.WithFields(logrus.Fields{
			"request":     res.Name,
			"status_code": res.StatusCode,
			"duration_ms": res.Duration.Milliseconds(),
		})
		switch {
		case res.Err != nil:
			entry.WithError(res.Err).Warn("Request failed")
		case res.StatusCode >= http.StatusInternalServerError:
			entry.Warn("Request returned server error")
		default:
			entry.Debug("Request completed")
		}
	}
	return results
}

func (g *Generator) send(ctx context.Context, r Request) Result {
	start := time.Now()
	res := Result{Name: r.Name}

	var body io.Reader
	if r.Body != nil {
		body = strings.NewReader(r.Body())
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, g.target+r.Path, body)
	if err != nil {
		res.Err = fmt.Errorf("failed to create request: %w", err)
		return res
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := g.client.Do(req)
	res.Duration = time.Since(start)
	if err != nil {
		res.Err = err
		return res
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	res.StatusCode = resp.StatusCode
	return res
}

// Run fires a round on every tick of the cron schedule until ctx is done,
// then waits for the running round to finish.
func (g *Generator) Run(ctx context.Context, schedule string) error {
	c := cron.New()

	var (
		mu     sync.Mutex
		rounds int
	)
	_, err := c.AddFunc(schedule, func() {
		results := g.Round(ctx)

		mu.Lock()
		rounds++
		n := rounds
		mu.Unlock()

		failed := 0
		for _, res := range results {
			if res.Err != nil || res.StatusCode >= http.StatusInternalServerError {
				failed++
			}
		}
		g.logger.WithFields(logrus.Fields{
			"round":    n,
			"requests": len(results),
			"failed":   failed,
		}).Info("Load round completed")
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}

	c.Start()
	g.logger.WithFields(logrus.Fields{"target": g.target, "schedule": schedule}).Info("Load generator started")

	<-ctx.Done()
	<-c.Stop().Done()
	g.logger.Info("Load generator stopped")
	return nil
}
