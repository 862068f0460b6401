package initialize

import (
	"context"
	"log/slog"
	"testing"

	"github.com/nite-coder/refresh-dns/pkg/config"
	"github.com/stretchr/testify/assert"
)

func TestLogger(t *testing.T) {
	origin := slog.Default()
	t.Cleanup(func() { slog.SetDefault(origin) })

	opts := config.NewOptions()
	opts.Logging.Output = ""
	assert.NoError(t, Logger(opts))
	assert.NotEqual(t, origin, slog.Default())

	opts.Logging.Level = "loud"
	assert.Error(t, Logger(opts))
}

func TestTracingDisabled(t *testing.T) {
	shutdown, err := Tracing(config.NewOptions())
	assert.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
