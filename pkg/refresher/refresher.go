package refresher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/nite-coder/refresh-dns/pkg/clock"
	"github.com/nite-coder/refresh-dns/pkg/config"
	"github.com/nite-coder/refresh-dns/pkg/log"
	"github.com/nite-coder/refresh-dns/pkg/resolver"
	"github.com/nite-coder/refresh-dns/pkg/telemetry/metrics"
	"github.com/nite-coder/refresh-dns/pkg/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	k8sclock "k8s.io/utils/clock"
)

var ErrAttemptTimeout = errors.New("lookup attempt timed out")

type Resolver interface {
	Lookup(ctx context.Context, name string) (resolver.Result, error)
}

type Clock interface {
	Now() time.Time
	NewTimer(d time.Duration) k8sclock.Timer
	DelayUntil(ctx context.Context, deadline time.Time) error
}

type Options struct {
	Clock   Clock
	Output  io.Writer
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Policy  Policy
}

// Refresher keeps one name warm.
type Refresher struct {
	name     string
	resolver Resolver
	clock    Clock
	output   io.Writer
	logger   *slog.Logger
	metrics  *metrics.Metrics
	policy   Policy
}

func New(name string, res Resolver, opts Options) *Refresher {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}

	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	if opts.Policy.AttemptTimeout <= 0 {
		opts.Policy.AttemptTimeout = config.DefaultAttemptTimeout
	}

	if opts.Policy.FallbackTTL <= 0 {
		opts.Policy.FallbackTTL = config.DefaultFallbackTTL
	}

	return &Refresher{
		name:     name,
		resolver: res,
		clock:    opts.Clock,
		output:   opts.Output,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		policy:   opts.Policy,
	}
}

func (r *Refresher) Name() string {
	return r.name
}

// Run drives the refresh cycle until ctx is done, then returns nil.
// The only error it returns wraps clock.ErrClockFailure.
func (r *Refresher) Run(ctx context.Context) error {
	logger := r.logger
	if logger == nil {
		logger = log.FromContext(ctx)
	}
	logger = logger.With("name", r.name)

	var state State = Init{}

	for {
		var ev Event
		var cost time.Duration

		switch s := state.(type) {
		case Init:
			ev = Issue{}
		case Pending:
			ev, cost = r.await(ctx, s)
		case Valid:
			if err := r.clock.DelayUntil(ctx, s.Until); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("refresher '%s': %w", r.name, err)
			}
			ev = Expired{}
		}

		if ctx.Err() != nil {
			return nil
		}

		now := r.clock.Now()
		next, err := r.policy.Next(state, ev, now)
		if err != nil {
			return err
		}

		r.report(logger, ev, next, now, cost)
		state = next
	}
}

// await runs the lookup for a Pending state and returns the event that ends it.
func (r *Refresher) await(ctx context.Context, p Pending) (Event, time.Duration) {
	start := r.clock.Now()

	lookupCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	lookupCtx, span := tracing.Tracer().Start(lookupCtx, "refresh.lookup",
		trace.WithAttributes(attribute.String("dns.question.name", r.name)),
	)
	defer span.End()

	timer := r.clock.NewTimer(max(p.Deadline.Sub(start), 0))
	defer timer.Stop()

	done := make(chan Event, 1)
	go func() {
		result, err := r.resolver.Lookup(lookupCtx, r.name)
		if err != nil {
			done <- Failed{Err: err}
			return
		}
		done <- Resolved{Result: result}
	}()

	var ev Event
	select {
	case ev = <-done:
	case <-timer.C():
		ev = Failed{Err: fmt.Errorf("%w after %s", ErrAttemptTimeout, r.policy.AttemptTimeout)}
	case <-ctx.Done():
		return nil, 0
	}

	switch e := ev.(type) {
	case Resolved:
		span.SetAttributes(
			attribute.String("dns.answer.name", e.Result.Name),
			attribute.Int("dns.answer.count", len(e.Result.Records)),
		)
	case Failed:
		span.RecordError(e.Err)
		span.SetStatus(codes.Error, e.Err.Error())
	}

	return ev, r.clock.Now().Sub(start)
}

// report performs the side effects of a transition.
func (r *Refresher) report(logger *slog.Logger, ev Event, next State, now time.Time, cost time.Duration) {
	switch e := ev.(type) {
	case Resolved:
		fmt.Fprintf(r.output, "%s: %s\n", r.name, e.Result.Name)

		validFor := remaining(e.Result.ValidUntil, now)
		logger.Info("resolved",
			"valid_seconds", int64(validFor/time.Second),
			"records", e.Result.Records,
		)
		r.metrics.ObserveLookup(r.name, metrics.ResultSuccess, cost, validFor)
	case Failed:
		retryIn := remaining(next.(Valid).Until, now)
		logger.Error("lookup failed",
			"error", e.Err.Error(),
			"retry_seconds", int64(retryIn/time.Second),
		)
		r.metrics.ObserveLookup(r.name, resultLabel(e.Err), cost, retryIn)
	case Expired:
		logger.Debug("refresh")
		r.metrics.ObserveRefresh(r.name)
	}
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, ErrAttemptTimeout):
		return metrics.ResultTimeout
	case errors.Is(err, resolver.ErrNotFound):
		return metrics.ResultNotFound
	default:
		return metrics.ResultError
	}
}
