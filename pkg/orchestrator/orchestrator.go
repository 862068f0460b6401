package orchestrator

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/nite-coder/refresh-dns/pkg/log"
	"github.com/nite-coder/refresh-dns/pkg/refresher"
	"github.com/nite-coder/refresh-dns/pkg/resolver"
	"github.com/nite-coder/refresh-dns/pkg/telemetry/metrics"
	"golang.org/x/sync/errgroup"
)

// Resolver is the capability shared by all refreshers. Lookup must be safe
// for concurrent use, Maintain keeps it up to date until ctx is done.
type Resolver interface {
	Lookup(ctx context.Context, name string) (resolver.Result, error)
	Maintain(ctx context.Context) error
	Clone() Resolver
}

type handle struct {
	*resolver.Resolver
}

func (h handle) Clone() Resolver {
	return handle{h.Resolver.Clone()}
}

// FromResolver adapts a dns resolver to the orchestrator.
func FromResolver(r *resolver.Resolver) Resolver {
	return handle{r}
}

type Options struct {
	Clock   refresher.Clock
	Output  io.Writer
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Policy  refresher.Policy
}

type Orchestrator struct {
	resolver Resolver
	names    []string
	options  Options
}

// New prepares one refresher per name. The same name may appear twice, it is
// then refreshed twice. An empty list is legal.
func New(res Resolver, names []string, opts Options) *Orchestrator {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	return &Orchestrator{
		resolver: res,
		names:    names,
		options:  opts,
	}
}

// Run blocks until ctx is done or the resolver's maintenance task returns,
// whichever comes first, and then stops every refresher. It returns the first
// refresher error, which is always a clock failure.
func (o *Orchestrator) Run(ctx context.Context) error {
	logger := o.options.Logger
	if logger == nil {
		logger = log.FromContext(ctx)
	}

	g, ctx := errgroup.WithContext(ctx)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	output := &syncWriter{w: o.options.Output}

	for _, name := range o.names {
		r := refresher.New(name, o.resolver.Clone(), refresher.Options{
			Clock:   o.options.Clock,
			Output:  output,
			Logger:  logger,
			Metrics: o.options.Metrics,
			Policy:  o.options.Policy,
		})

		g.Go(func() error {
			return r.Run(ctx)
		})
	}

	logger.Info("refreshing names", "count", len(o.names))

	g.Go(func() error {
		defer cancel()

		err := o.resolver.Maintain(ctx)
		if err != nil {
			logger.Error("resolver maintenance stopped", "error", err)
		}
		return err
	})

	return g.Wait()
}

// syncWriter serializes whole lines written by concurrent refreshers.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (w *syncWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.w.Write(p)
}
