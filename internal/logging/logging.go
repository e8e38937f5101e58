package logging

import (
	"log/slog"
	"os"
)

// Setup configures structured JSON logging for the service and installs it
// as the process default. Every line carries the service name and network so
// divergence logs from different deployments stay distinguishable.
func Setup(service, network string) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{})

	logger := slog.New(handler).With(
		slog.String("service", service),
		slog.String("network", network),
	)
	slog.SetDefault(logger)
	return logger
}
