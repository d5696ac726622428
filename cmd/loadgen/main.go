package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/faidon-laboratory/lab-services/pkg/loadgen"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

type options struct {
	target      string
	schedule    string
	concurrency int
	timeout     time.Duration
	once        bool
	logLevel    string
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var opts options

	flagSet := pflag.NewFlagSet("loadgen", pflag.ContinueOnError)
	flagSet.StringVar(&opts.target, "target", getEnv("TARGET_URL", "http://api-gateway:80"), "base URL of the API gateway")
	flagSet.StringVar(&opts.schedule, "schedule", loadgen.DefaultSchedule, "cron schedule of request rounds")
	flagSet.IntVar(&opts.concurrency, "concurrency", 0, "maximum requests in flight per round (0 means all at once)")
	flagSet.DurationVar(&opts.timeout, "timeout", 10*time.Second, "per-request timeout")
	flagSet.BoolVar(&opts.once, "once", false, "send a single round and exit")
	flagSet.StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	logger := setupLogger(opts.logLevel)
	gen := loadgen.New(opts.target, &http.Client{Timeout: opts.timeout}, logger, opts.concurrency, loadgen.GatewayRequests())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.once {
		results := gen.Round(ctx)
		for _, res := range results {
			if res.Err != nil {
				return fmt.Errorf("%s: %w", res.Name, res.Err)
			}
		}
		logger.Infof("Sent %d requests to %s", len(results), opts.target)
		return nil
	}

	return gen.Run(ctx, opts.schedule)
}

func setupLogger(logLevel string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	return logger
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
