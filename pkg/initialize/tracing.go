package initialize

import (
	"context"
	"log/slog"

	"github.com/nite-coder/refresh-dns/pkg/config"
	"github.com/nite-coder/refresh-dns/pkg/tracing"
)

// Tracing installs the global tracer provider when tracing is enabled.
// The returned function flushes pending spans and is safe to call when tracing is off.
func Tracing(mainOptions config.Options) (func(context.Context) error, error) {
	tp, err := tracing.NewTracerProvider(mainOptions.Tracing)
	if err != nil {
		return nil, err
	}

	if tp == nil {
		return func(context.Context) error { return nil }, nil
	}

	slog.Info("tracing enabled", "endpoint", mainOptions.Tracing.Endpoint)
	return tp.Shutdown, nil
}
