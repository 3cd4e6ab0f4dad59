package application

import (
	"context"
	"errors"
	"log/slog"

	"github.com/example/fitness-tracker/internal/aggregate"
	"github.com/example/fitness-tracker/internal/logging"
	"github.com/example/fitness-tracker/internal/sensor"
	"github.com/example/fitness-tracker/internal/store"
)

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

func serviceLogger(ctx context.Context, base *slog.Logger, serviceName, operation string, attrs ...any) *slog.Logger {
	logger := logging.FromContext(ctx)
	if logger == nil {
		logger = base
	}
	if logger == nil {
		logger = slog.Default()
	}

	pairs := []any{"service", serviceName}
	if operation != "" {
		pairs = append(pairs, "operation", operation)
	}
	if len(attrs) > 0 {
		pairs = append(pairs, attrs...)
	}
	return logger.With(pairs...)
}

// ErrorKind maps sentinel and typed errors to a stable logging label.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, store.ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrSessionClosed):
		return "session_closed"
	case errors.Is(err, sensor.ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, sensor.ErrUnavailable):
		return "sensor_unavailable"
	case errors.Is(err, store.ErrUnavailable):
		return "store_unavailable"
	}

	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return "validation"
	}
	var accessErr *sensor.AccessError
	if errors.As(err, &accessErr) {
		return "access"
	}
	var storeErr *store.StoreError
	if errors.As(err, &storeErr) {
		return "store"
	}
	var aggErr *aggregate.AggregationError
	if errors.As(err, &aggErr) {
		return "aggregation"
	}

	return "unexpected"
}
