package main

import (
	"os"

	"github.com/noah-isme/coastmedia-api/internal/obs"
)

func main() {
	logger := obs.NewLogger(envOrDefault("OBS_LOG_FORMAT", "console"), envOrDefault("OBS_LOG_LEVEL", "info")).
		With().Str("component", "catalogctl").Logger()
	if err := newRootCmd(logger).Execute(); err != nil {
		os.Exit(1)
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
