package refreshdns

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"syscall"

	"github.com/nite-coder/blackbear/pkg/cast"
	"github.com/nite-coder/refresh-dns/internal/pkg/safety"
	"github.com/nite-coder/refresh-dns/pkg/clock"
	"github.com/nite-coder/refresh-dns/pkg/config"
	"github.com/nite-coder/refresh-dns/pkg/initialize"
	"github.com/nite-coder/refresh-dns/pkg/orchestrator"
	"github.com/nite-coder/refresh-dns/pkg/refresher"
	"github.com/nite-coder/refresh-dns/pkg/resolver"
	"github.com/nite-coder/refresh-dns/pkg/telemetry/metrics"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
	_ "go.uber.org/automaxprocs"
)

const (
	// ExitUsage is returned when no name is given (EX_USAGE).
	ExitUsage = 64
	// ExitFailure is returned when the refresh loop can't go on.
	ExitFailure = 1

	usage = "usage: refresh-dns <name> [<name> ...]"
)

type options struct {
	version string
	build   string
	flags   []cli.Flag
	output  io.Writer
	init    func(*cli.Context, config.Options) error
}

type Option func(*options)

// WithVersion sets the application version.
func WithVersion(version string) Option {
	return func(o *options) {
		o.version = version
	}
}

// WithFlags adds custom CLI flags.
func WithFlags(flags ...cli.Flag) Option {
	return func(o *options) {
		o.flags = append(o.flags, flags...)
	}
}

// WithOutput replaces stdout as the destination of resolution lines.
func WithOutput(w io.Writer) Option {
	return func(o *options) {
		o.output = w
	}
}

// WithInit registers a hook that runs after the configuration is loaded and
// validated, before any name is refreshed.
func WithInit(fn func(*cli.Context, config.Options) error) Option {
	return func(o *options) {
		o.init = fn
	}
}

// Run parses os.Args and keeps the requested names warm until SIGINT or SIGTERM.
func Run(opts ...Option) error {
	return NewApp(opts...).Run(os.Args)
}

// NewApp builds the command line application.
func NewApp(opts ...Option) *cli.App {
	opt := &options{
		version: "0.0.0",
		build:   "unknown",
		output:  os.Stdout,
	}

	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" {
				opt.build = setting.Value
				break
			}
		}
	}

	for _, o := range opts {
		o(opt)
	}

	return &cli.App{
		Name:      "refresh-dns",
		Usage:     "keep dns names warm by resolving them again whenever their ttl runs out",
		ArgsUsage: "<name> [<name> ...]",
		Version:   opt.version,
		// the built-in version flag prints through the package-level cli.VersionPrinter
		HideVersion: true,
		Flags: append([]cli.Flag{
			&cli.BoolFlag{
				Name:    "version",
				Aliases: []string{"v"},
				Usage:   "Print the version and exit",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "",
				Usage:   "The path to the configuration file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level: debug, info, warn or error",
			},
			&cli.StringFlag{
				Name:  "log-handler",
				Usage: "Log format: text or json",
			},
			&cli.StringFlag{
				Name:  "log-output",
				Usage: "Log destination: stderr or a file path",
			},
			&cli.StringSliceFlag{
				Name:  "server",
				Usage: "Upstream dns server (ip[:port]), may be repeated; defaults to resolv.conf",
			},
			&cli.DurationFlag{
				Name:  "attempt-timeout",
				Usage: "How long a single lookup may take",
			},
			&cli.DurationFlag{
				Name:  "fallback-ttl",
				Usage: "How long to wait before retrying a failed lookup",
			},
			&cli.BoolFlag{
				Name:  "validate-servers",
				Usage: "Probe the upstream servers at startup and drop the unresponsive ones",
			},
			&cli.StringFlag{
				Name:  "metrics-bind",
				Usage: "Serve prometheus metrics on this address",
			},
		}, opt.flags...),
		Action: func(cCtx *cli.Context) error {
			defer func() {
				if r := recover(); r != nil {
					var err error
					switch v := r.(type) {
					case error:
						err = v
					default:
						err = fmt.Errorf("%v", v)
					}

					stackTrace := debug.Stack()
					slog.Error("unknown error",
						slog.String("error", err.Error()),
						slog.String("stack", cast.B2S(stackTrace)),
					)
					os.Exit(ExitFailure)
				}
			}()

			if cCtx.Bool("version") {
				fmt.Fprintf(cCtx.App.Writer, "version=%s, build=%s, go=%s\n", cCtx.App.Version, opt.build, runtime.Version())
				return nil
			}

			mainOptions, err := config.Load(cCtx.String("config"))
			if err != nil {
				slog.Error("failed to load config", "error", err.Error())
				return err
			}

			applyFlags(cCtx, &mainOptions)
			mainOptions.Names = append(mainOptions.Names, cCtx.Args().Slice()...)

			if len(mainOptions.Names) == 0 {
				return cli.Exit(usage, ExitUsage)
			}

			if err := config.ValidateConfig(mainOptions); err != nil {
				slog.Error("invalid config", "error", err.Error())
				return err
			}

			if err := initialize.Logger(mainOptions); err != nil {
				slog.Error("failed to initialize logger", "error", err.Error())
				return err
			}

			if opt.init != nil {
				if err := opt.init(cCtx, mainOptions); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(cCtx.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			err = run(ctx, mainOptions, opt.output)
			if errors.Is(err, clock.ErrClockFailure) {
				slog.Error("refresh loop aborted", "error", err)
				return cli.Exit(err.Error(), ExitFailure)
			}

			if err != nil {
				slog.Error("refresh-dns stopped", "error", err.Error())
			}

			return err
		},
	}
}

func applyFlags(cCtx *cli.Context, mainOptions *config.Options) {
	if cCtx.IsSet("log-level") {
		mainOptions.Logging.Level = cCtx.String("log-level")
	}

	if cCtx.IsSet("log-handler") {
		mainOptions.Logging.Handler = cCtx.String("log-handler")
	}

	if cCtx.IsSet("log-output") {
		mainOptions.Logging.Output = cCtx.String("log-output")
	}

	if cCtx.IsSet("server") {
		mainOptions.Resolver.Servers = cCtx.StringSlice("server")
	}

	if cCtx.IsSet("attempt-timeout") {
		mainOptions.Refresh.AttemptTimeout = cCtx.Duration("attempt-timeout")
	}

	if cCtx.IsSet("fallback-ttl") {
		mainOptions.Refresh.FallbackTTL = cCtx.Duration("fallback-ttl")
	}

	if cCtx.IsSet("validate-servers") {
		mainOptions.Resolver.Validate = cCtx.Bool("validate-servers")
	}

	if cCtx.IsSet("metrics-bind") {
		mainOptions.Metrics.Prometheus.Enabled = true
		mainOptions.Metrics.Prometheus.Bind = cCtx.String("metrics-bind")
	}
}

// run wires the resolver, telemetry and orchestrator together and blocks
// until ctx is done or a refresher fails.
func run(ctx context.Context, mainOptions config.Options, output io.Writer) error {
	shutdownTracing, err := initialize.Tracing(mainOptions)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			slog.Warn("failed to flush traces", "error", err)
		}
	}()

	res, err := resolver.NewResolver(resolver.Options{
		Servers:    mainOptions.Resolver.Servers,
		ResolvConf: mainOptions.Resolver.ResolvConf,
		Hostsfile:  mainOptions.Resolver.Hostsfile,
		Order:      mainOptions.Resolver.Order,
		Timeout:    mainOptions.Resolver.Timeout,
		SkipTest:   !mainOptions.Resolver.Validate,
	})
	if err != nil {
		return err
	}

	slog.Debug("resolver ready", "servers", res.Servers())

	var m *metrics.Metrics
	if mainOptions.Metrics.Prometheus.Enabled {
		reg := prom.NewRegistry()
		m = metrics.New(reg, mainOptions.Metrics.Prometheus.Buckets)

		server, err := metrics.Listen(mainOptions.Metrics.Prometheus, reg)
		if err != nil {
			return err
		}

		go safety.Go(ctx, func() {
			if err := server.Serve(ctx); err != nil {
				slog.Error("prometheus metrics server stopped", "error", err)
			}
		})
	}

	o := orchestrator.New(orchestrator.FromResolver(res), mainOptions.Names, orchestrator.Options{
		Clock:   clock.Real(),
		Output:  output,
		Metrics: m,
		Policy: refresher.Policy{
			AttemptTimeout: mainOptions.Refresh.AttemptTimeout,
			FallbackTTL:    mainOptions.Refresh.FallbackTTL,
		},
	})

	return o.Run(ctx)
}
