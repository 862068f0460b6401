package config

import (
	"time"
)

const (
	DefaultAttemptTimeout = 100 * time.Millisecond
	DefaultFallbackTTL    = 10 * time.Second
	DefaultMetricsPath    = "/metrics"
)

type Options struct {
	configPath string          `yaml:"-" json:"-"`
	Names      []string        `yaml:"names" json:"names"`
	Logging    LoggingOptions  `yaml:"logging" json:"logging"`
	Resolver   ResolverOptions `yaml:"resolver" json:"resolver"`
	Refresh    RefreshOptions  `yaml:"refresh" json:"refresh"`
	Metrics    MetricsOptions  `yaml:"metrics" json:"metrics"`
	Tracing    TracingOptions  `yaml:"tracing" json:"tracing"`
}

func NewOptions() Options {
	return Options{
		Names: make([]string, 0),
		Logging: LoggingOptions{
			Level:   "info",
			Handler: "text",
			Output:  "stderr",
		},
		Refresh: RefreshOptions{
			AttemptTimeout: DefaultAttemptTimeout,
			FallbackTTL:    DefaultFallbackTTL,
		},
		Metrics: MetricsOptions{
			Prometheus: PrometheusOptions{
				Path: DefaultMetricsPath,
			},
		},
	}
}

func (opt Options) ConfigPath() string {
	return opt.configPath
}

type LoggingOptions struct {
	Level   string `yaml:"level" json:"level"`
	Handler string `yaml:"handler" json:"handler"`
	Output  string `yaml:"output" json:"output"`
}

type ResolverOptions struct {
	// dns servers for querying; empty means the servers listed in resolv.conf
	Servers    []string      `yaml:"servers" json:"servers"`
	ResolvConf string        `yaml:"resolv_conf" json:"resolv_conf"`
	Hostsfile  string        `yaml:"hosts_file" json:"hosts_file"`
	Order      []string      `yaml:"order" json:"order"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`
	Validate   bool          `yaml:"validate" json:"validate"`
}

type RefreshOptions struct {
	AttemptTimeout time.Duration `yaml:"attempt_timeout" json:"attempt_timeout"`
	FallbackTTL    time.Duration `yaml:"fallback_ttl" json:"fallback_ttl"`
}

type MetricsOptions struct {
	Prometheus PrometheusOptions `yaml:"prometheus" json:"prometheus"`
}

type PrometheusOptions struct {
	Bind    string    `yaml:"bind" json:"bind"`
	Path    string    `yaml:"path" json:"path"`
	Buckets []float64 `yaml:"buckets" json:"buckets"`
	Enabled bool      `yaml:"enabled" json:"enabled"`
}

type TracingOptions struct {
	ServiceName  string        `yaml:"service_name" json:"service_name"`
	Endpoint     string        `yaml:"endpoint" json:"endpoint"`
	SamplingRate float64       `yaml:"sampling_rate" json:"sampling_rate"`
	Flush        time.Duration `yaml:"flush" json:"flush"`
	Timeout      time.Duration `yaml:"timeout" json:"timeout"`
	Enabled      bool          `yaml:"enabled" json:"enabled"`
	Insecure     bool          `yaml:"insecure" json:"insecure"`
}
