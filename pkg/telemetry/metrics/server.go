package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/nite-coder/refresh-dns/pkg/config"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// slogErrorLogger adapts slog.Logger to promhttp.Logger interface.
type slogErrorLogger struct{}

func (l *slogErrorLogger) Println(v ...interface{}) {
	slog.Error("promhttp error", "details", fmt.Sprint(v...))
}

type Server struct {
	server   *http.Server
	listener net.Listener
}

// Listen binds the scrape endpoint described by opts without serving it yet.
func Listen(opts config.PrometheusOptions, gatherer prom.Gatherer) (*Server, error) {
	path := opts.Path
	if len(path) == 0 {
		path = config.DefaultMetricsPath
	}

	ln, err := net.Listen("tcp", opts.Bind)
	if err != nil {
		return nil, fmt.Errorf("metrics: failed to listen on '%s': %w", opts.Bind, err)
	}

	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		ErrorLog:      &slogErrorLogger{},
		ErrorHandling: promhttp.ContinueOnError,
	}))

	return &Server{
		listener: ln,
		server: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Serve blocks until ctx is done and the server has shut down.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.Serve(s.listener)
	}()

	slog.Info("prometheus metrics listening", "addr", s.Addr())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}
