package config

import (
	"fmt"
	"net"
	"strings"
)

// ValidateConfig checks the options before any refresher is started.
func ValidateConfig(opts Options) error {
	if err := validateLogging(opts.Logging); err != nil {
		return err
	}

	if err := validateRefresh(opts.Refresh); err != nil {
		return err
	}

	if err := validateResolver(opts.Resolver); err != nil {
		return err
	}

	if err := validateMetrics(opts.Metrics); err != nil {
		return err
	}

	return validateTracing(opts.Tracing)
}

func validateLogging(opts LoggingOptions) error {
	switch strings.ToLower(strings.TrimSpace(opts.Level)) {
	case "", "debug", "info", "warn", "error":
	default:
		return newInvalidConfig([]string{"logging", "level"}, opts.Level, fmt.Sprintf("unknown log level '%s'", opts.Level))
	}

	switch strings.ToLower(strings.TrimSpace(opts.Handler)) {
	case "", "text", "json":
	default:
		return newInvalidConfig([]string{"logging", "handler"}, opts.Handler, fmt.Sprintf("handler '%s' is not supported", opts.Handler))
	}

	// stdout is reserved for resolution output
	if strings.ToLower(strings.TrimSpace(opts.Output)) == "stdout" {
		return newInvalidConfig([]string{"logging", "output"}, opts.Output, "stdout is reserved for resolution output")
	}

	return nil
}

func validateRefresh(opts RefreshOptions) error {
	if opts.AttemptTimeout <= 0 {
		return newInvalidConfig([]string{"refresh", "attempt_timeout"}, opts.AttemptTimeout, "attempt_timeout must be positive")
	}

	if opts.FallbackTTL <= 0 {
		return newInvalidConfig([]string{"refresh", "fallback_ttl"}, opts.FallbackTTL, "fallback_ttl must be positive")
	}

	if opts.AttemptTimeout >= opts.FallbackTTL {
		return newInvalidConfig([]string{"refresh", "attempt_timeout"}, opts.AttemptTimeout,
			fmt.Sprintf("attempt_timeout %s must be shorter than fallback_ttl %s", opts.AttemptTimeout, opts.FallbackTTL))
	}

	return nil
}

func validateResolver(opts ResolverOptions) error {
	for _, server := range opts.Servers {
		server = strings.TrimSpace(server)
		if len(server) == 0 {
			continue
		}

		host, _, err := net.SplitHostPort(server)
		if err != nil {
			host = server
		}

		if net.ParseIP(strings.Trim(host, "[]")) == nil {
			return newInvalidConfig([]string{"resolver", "servers"}, server, fmt.Sprintf("server '%s' is not an ip address", server))
		}
	}

	for _, order := range opts.Order {
		switch strings.ToLower(strings.TrimSpace(order)) {
		case "a", "aaaa":
		default:
			return newInvalidConfig([]string{"resolver", "order"}, order, fmt.Sprintf("unknown order '%s'", order))
		}
	}

	if opts.Timeout < 0 {
		return newInvalidConfig([]string{"resolver", "timeout"}, opts.Timeout, "timeout can't be negative")
	}

	return nil
}

func validateMetrics(opts MetricsOptions) error {
	if !opts.Prometheus.Enabled {
		return nil
	}

	if len(opts.Prometheus.Bind) == 0 {
		return newInvalidConfig([]string{"metrics", "prometheus", "bind"}, opts.Prometheus.Bind, "bind can't be empty when prometheus is enabled")
	}

	if _, _, err := net.SplitHostPort(opts.Prometheus.Bind); err != nil {
		return newInvalidConfig([]string{"metrics", "prometheus", "bind"}, opts.Prometheus.Bind, err.Error())
	}

	if len(opts.Prometheus.Path) > 0 && !strings.HasPrefix(opts.Prometheus.Path, "/") {
		return newInvalidConfig([]string{"metrics", "prometheus", "path"}, opts.Prometheus.Path, "path must start with '/'")
	}

	return nil
}

func validateTracing(opts TracingOptions) error {
	if !opts.Enabled {
		return nil
	}

	if opts.SamplingRate < 0 || opts.SamplingRate > 1 {
		return newInvalidConfig([]string{"tracing", "sampling_rate"}, opts.SamplingRate, "sampling_rate must be between 0 and 1")
	}

	return nil
}
