package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/miekg/dns"
	"k8s.io/utils/clock"
)

// MaxTTL is the validity given to answers that don't come from the network,
// IP literals and hosts file entries.
const MaxTTL = 24 * time.Hour

// Result is one successful lookup.
type Result struct {
	ValidUntil time.Time
	// Name is the canonical, fully qualified name that was answered.
	Name    string
	Records []string
}

type Options struct {
	Clock clock.PassiveClock
	// dns server for querying; empty means the servers in ResolvConf
	Servers    []string
	ResolvConf string
	Hostsfile  string
	Order      []string
	Timeout    time.Duration
	SkipTest   bool
}

// Resolver queries upstream servers directly and keeps no result cache,
// the TTL of every answer is reported back to the caller instead.
// It is safe for concurrent use.
type Resolver struct {
	options *Options
	client  *dns.Client
	// tcp retries the answers that didn't fit in a udp reply
	tcp    *dns.Client
	shared *shared
}

// shared is the state all clones of a Resolver see. It changes only when
// Maintain reloads the configuration files.
type shared struct {
	mu      sync.RWMutex
	servers []string
	search  []string
	ndots   int
	hosts   map[string][]string
}

func NewResolver(option Options) (*Resolver, error) {
	if len(option.Order) == 0 {
		option.Order = []string{"a", "aaaa"}
	}

	if len(option.ResolvConf) == 0 {
		option.ResolvConf = defaultResolvConf
	}

	if len(option.Hostsfile) == 0 {
		option.Hostsfile = defaultHostsPath()
	}

	if option.Timeout <= 0 {
		option.Timeout = 5 * time.Second
	}

	if option.Clock == nil {
		option.Clock = clock.RealClock{}
	}

	for _, order := range option.Order {
		if _, err := queryType(order); err != nil {
			return nil, err
		}
	}

	sysConf, err := LoadSystemConfig(option.ResolvConf)
	if err != nil {
		return nil, err
	}

	servers := normalizeServers(option.Servers)
	if len(servers) == 0 {
		servers = sysConf.Servers
	}

	if len(servers) == 0 {
		return nil, fmt.Errorf("dns: %w; can't get dns server", ErrNoServer)
	}

	if !option.SkipTest {
		servers, err = ValidateDNSServer(servers)
		if err != nil {
			return nil, err
		}
	}

	hosts, err := loadHostsFile(option.Hostsfile)
	if err != nil {
		return nil, fmt.Errorf("dns: failed to load hosts file: %w", err)
	}

	r := &Resolver{
		options: &option,
		client:  newClient("", option.Timeout),
		tcp:     newClient("tcp", option.Timeout),
		shared: &shared{
			servers: servers,
			search:  sysConf.Search,
			ndots:   sysConf.Ndots,
			hosts:   hosts,
		},
	}

	return r, nil
}

func newClient(network string, timeout time.Duration) *dns.Client {
	return &dns.Client{
		Net:     network,
		Timeout: timeout,
	}
}

// Clone returns an independent handle that shares configuration with r.
func (r *Resolver) Clone() *Resolver {
	return &Resolver{
		options: r.options,
		client:  newClient("", r.options.Timeout),
		tcp:     newClient("tcp", r.options.Timeout),
		shared:  r.shared,
	}
}

// Servers returns the upstream servers currently in use.
func (r *Resolver) Servers() []string {
	r.shared.mu.RLock()
	defer r.shared.mu.RUnlock()

	return slices.Clone(r.shared.servers)
}

// Lookup resolves host to its addresses. A failed lookup returns a
// *NoRecordsFoundError when the upstream denied the name, any other error
// means no usable answer was received.
func (r *Resolver) Lookup(ctx context.Context, host string) (Result, error) {
	host = strings.TrimSpace(host)
	if len(host) == 0 {
		return Result{}, errors.New("dns: empty host")
	}

	now := r.options.Clock.Now()

	if ip := net.ParseIP(strings.Trim(host, "[]")); ip != nil {
		return Result{Name: ip.String(), Records: []string{ip.String()}, ValidUntil: now.Add(MaxTTL)}, nil
	}

	r.shared.mu.RLock()
	ips := slices.Clone(r.shared.hosts[hostsKey(host)])
	servers := r.shared.servers
	conf := dns.ClientConfig{
		Search: r.shared.search,
		Ndots:  r.shared.ndots,
	}
	r.shared.mu.RUnlock()

	if len(ips) > 0 {
		return Result{Name: dns.CanonicalName(host), Records: ips, ValidUntil: now.Add(MaxTTL)}, nil
	}

	var notFound *NoRecordsFoundError
	var lastErr error

	for _, name := range conf.NameList(host) {
		for _, order := range r.options.Order {
			qtype, _ := queryType(order)

			result, err := r.query(ctx, servers, name, qtype)
			if err == nil {
				return result, nil
			}

			if ctxErr := ctx.Err(); ctxErr != nil {
				return Result{}, fmt.Errorf("dns: lookup '%s' aborted: %w", host, ctxErr)
			}

			var nrf *NoRecordsFoundError
			if errors.As(err, &nrf) {
				notFound = earliest(notFound, nrf)
				continue
			}

			lastErr = err
		}
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return Result{}, fmt.Errorf("dns: lookup '%s' aborted: %w", host, ctxErr)
	}

	if lastErr != nil {
		return Result{}, lastErr
	}

	if notFound == nil {
		return Result{}, fmt.Errorf("dns: %w; can't resolve '%s'", ErrNotFound, host)
	}

	notFound.Name = dns.CanonicalName(host)
	return Result{}, notFound
}

// query asks the servers in turn until one of them gives a definite answer.
func (r *Resolver) query(ctx context.Context, servers []string, name string, qtype uint16) (Result, error) {
	m := new(dns.Msg)
	m.SetQuestion(name, qtype)

	var lastErr error

	for _, server := range servers {
		in, _, err := r.client.ExchangeContext(ctx, m, server)
		if err == nil && in.Truncated {
			slog.Debug("dns: truncated reply, retrying over tcp", "name", name, "server", server)
			in, _, err = r.tcp.ExchangeContext(ctx, m, server)
		}
		if err != nil {
			slog.Debug("dns: failed to query server", "name", name, "server", server, "error", err)
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}

		if in.Rcode != dns.RcodeSuccess && in.Rcode != dns.RcodeNameError {
			slog.Debug("dns: server returned error code", "name", name, "server", server, "code", dns.RcodeToString[in.Rcode])
			lastErr = fmt.Errorf("dns: server %s answered %s for '%s'", server, dns.RcodeToString[in.Rcode], name)
			continue
		}

		now := r.options.Clock.Now()

		var records []string
		var minTTL uint32
		for i, answer := range in.Answer {
			switch rr := answer.(type) {
			case *dns.A:
				if qtype == dns.TypeA {
					records = append(records, rr.A.String())
				}
			case *dns.AAAA:
				if qtype == dns.TypeAAAA {
					records = append(records, rr.AAAA.String())
				}
			}

			// cname ttls bound the whole chain
			if i == 0 || answer.Header().Ttl < minTTL {
				minTTL = answer.Header().Ttl
			}
		}

		if len(records) > 0 {
			return Result{
				Name:       dns.CanonicalName(name),
				Records:    slices.Compact(records),
				ValidUntil: now.Add(time.Duration(minTTL) * time.Second),
			}, nil
		}

		return Result{}, &NoRecordsFoundError{
			Name:       dns.CanonicalName(name),
			QueryType:  dns.TypeToString[qtype],
			ValidUntil: negativeValidUntil(in, now),
		}
	}

	if lastErr == nil {
		lastErr = ErrNoServer
	}

	return Result{}, fmt.Errorf("dns: can't resolve '%s' %s: %w", name, dns.TypeToString[qtype], lastErr)
}

// negativeValidUntil applies the negative caching ttl of the SOA in the
// authority section, the lower of the record ttl and the SOA minimum.
func negativeValidUntil(in *dns.Msg, now time.Time) time.Time {
	for _, rr := range in.Ns {
		if soa, ok := rr.(*dns.SOA); ok {
			ttl := min(soa.Hdr.Ttl, soa.Minttl)
			return now.Add(time.Duration(ttl) * time.Second)
		}
	}
	return time.Time{}
}

func earliest(current, next *NoRecordsFoundError) *NoRecordsFoundError {
	if current == nil {
		return next
	}

	if !next.HasHint() {
		return current
	}

	if !current.HasHint() || next.ValidUntil.Before(current.ValidUntil) {
		return next
	}

	return current
}

func queryType(order string) (uint16, error) {
	switch strings.ToLower(strings.TrimSpace(order)) {
	case "a":
		return dns.TypeA, nil
	case "aaaa":
		return dns.TypeAAAA, nil
	default:
		return 0, fmt.Errorf("dns: unknown order '%s'", order)
	}
}

// ValidateDNSServer validates a list of DNS servers by sending a query to each of them
// and checking if they respond with a valid answer. It returns a list of valid servers
// and an error if no valid server is found.
func ValidateDNSServer(servers []string) ([]string, error) {
	m := new(dns.Msg)
	m.SetQuestion(".", dns.TypeNS)
	m.RecursionDesired = true

	c := new(dns.Client)
	c.Timeout = 5 * time.Second

	result := make([]string, 0)
	for _, server := range servers {
		resp, _, err := c.Exchange(m, server)
		if err != nil {
			slog.Debug("DNS server is not responding", "server", server, "error", err)
			continue
		}

		if resp == nil {
			slog.Debug("no response from DNS server", "server", server)
			continue
		}

		if resp.Rcode != dns.RcodeSuccess && resp.Rcode != dns.RcodeNameError {
			slog.Debug("DNS server returned error code", "server", server, "code", dns.RcodeToString[resp.Rcode])
			continue
		}

		result = append(result, server)
	}

	if len(result) == 0 {
		return nil, fmt.Errorf("dns: %w; no valid DNS server found", ErrNoServer)
	}

	return result, nil
}
