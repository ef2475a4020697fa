package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shipquery/shipquery/internal/cli/shipqueryctl"
)

func main() {
	timeout := parseDurationWithDefault(strings.TrimSpace(os.Getenv("SHIPQUERY_CLI_TIMEOUT")), 10*time.Second)
	options := shipqueryctl.Options{
		BaseURL: envOr("SHIPQUERY_API_URL", "http://localhost:8080"),
		APIKey:  strings.TrimSpace(os.Getenv("SHIPQUERY_API_KEY")),
		Timeout: timeout,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	}

	code := shipqueryctl.Run(context.Background(), os.Args[1:], options)
	os.Exit(code)
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseDurationWithDefault(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil || parsed <= 0 {
		fmt.Fprintf(os.Stderr, "invalid SHIPQUERY_CLI_TIMEOUT %q, using %s\n", raw, fallback)
		return fallback
	}
	return parsed
}
