package resolver

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"
)

const testSOA = "example. 3600 IN SOA ns.example. admin.example. 1 7200 3600 1209600 2"

func mustRR(t *testing.T, s string) dns.RR {
	t.Helper()
	rr, err := dns.NewRR(s)
	require.NoError(t, err)
	return rr
}

// testZone answers like a small authoritative server for "example.".
func testZone(t *testing.T) dns.HandlerFunc {
	return func(w dns.ResponseWriter, req *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(req)

		q := req.Question[0]
		switch {
		case q.Name == "a.example." && q.Qtype == dns.TypeA:
			m.Answer = append(m.Answer, mustRR(t, "a.example. 5 IN A 192.0.2.1"))
		case q.Name == "alias.example." && q.Qtype == dns.TypeA:
			m.Answer = append(m.Answer,
				mustRR(t, "alias.example. 3 IN CNAME a.example."),
				mustRR(t, "a.example. 5 IN A 192.0.2.1"),
			)
		case q.Name == "v6.example." && q.Qtype == dns.TypeAAAA:
			m.Answer = append(m.Answer, mustRR(t, "v6.example. 7 IN AAAA 2001:db8::1"))
		case q.Name == "v6.example.", q.Name == "a.example.", q.Name == "alias.example.":
			m.Ns = append(m.Ns, mustRR(t, testSOA))
		case q.Name == "c.example.":
			m.Rcode = dns.RcodeNameError
			m.Ns = append(m.Ns, mustRR(t, testSOA))
		case q.Name == "bare.example.":
			m.Rcode = dns.RcodeNameError
		case q.Name == "servfail.example.":
			m.Rcode = dns.RcodeServerFailure
		case q.Name == "b.example.":
			// never answer
			return
		case q.Name == "." && q.Qtype == dns.TypeNS:
			m.Answer = append(m.Answer, mustRR(t, ". 518400 IN NS a.root-servers.net."))
		default:
			m.Rcode = dns.RcodeNameError
		}

		_ = w.WriteMsg(m)
	}
}

func startDNSServer(t *testing.T, handler dns.Handler) string {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	started := make(chan struct{})
	server := &dns.Server{
		PacketConn:        pc,
		Handler:           handler,
		NotifyStartedFunc: func() { close(started) },
	}

	go func() {
		_ = server.ActivateAndServe()
	}()
	<-started

	t.Cleanup(func() {
		_ = server.Shutdown()
	})

	return pc.LocalAddr().String()
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func newTestResolver(t *testing.T, fc *testingclock.FakeClock) *Resolver {
	t.Helper()

	addr := startDNSServer(t, testZone(t))
	dir := t.TempDir()

	r, err := NewResolver(Options{
		Clock:      fc,
		Servers:    []string{addr},
		ResolvConf: writeFile(t, dir, "resolv.conf", "search example\noptions ndots:1\n"),
		Hostsfile:  writeFile(t, dir, "hosts", "127.0.0.1 localhost\n192.0.2.10 hosted.example # pinned\n"),
		Timeout:    time.Second,
		SkipTest:   true,
	})
	require.NoError(t, err)

	return r
}

func TestLookup(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	fc := testingclock.NewFakeClock(t0)
	r := newTestResolver(t, fc)
	ctx := context.Background()

	t.Run("a record", func(t *testing.T) {
		result, err := r.Lookup(ctx, "a.example")
		require.NoError(t, err)
		assert.Equal(t, "a.example.", result.Name)
		assert.Equal(t, []string{"192.0.2.1"}, result.Records)
		assert.Equal(t, t0.Add(5*time.Second), result.ValidUntil)
	})

	t.Run("cname ttl bounds validity", func(t *testing.T) {
		result, err := r.Lookup(ctx, "alias.example.")
		require.NoError(t, err)
		assert.Equal(t, "alias.example.", result.Name)
		assert.Equal(t, []string{"192.0.2.1"}, result.Records)
		assert.Equal(t, t0.Add(3*time.Second), result.ValidUntil)
	})

	t.Run("falls back to aaaa", func(t *testing.T) {
		result, err := r.Lookup(ctx, "V6.Example")
		require.NoError(t, err)
		assert.Equal(t, "v6.example.", result.Name)
		assert.Equal(t, []string{"2001:db8::1"}, result.Records)
		assert.Equal(t, t0.Add(7*time.Second), result.ValidUntil)
	})

	t.Run("search domain", func(t *testing.T) {
		result, err := r.Lookup(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, "a.example.", result.Name)
	})

	t.Run("nxdomain carries soa hint", func(t *testing.T) {
		_, err := r.Lookup(ctx, "c.example")
		assert.ErrorIs(t, err, ErrNotFound)

		var nrf *NoRecordsFoundError
		require.ErrorAs(t, err, &nrf)
		assert.True(t, nrf.HasHint())
		assert.Equal(t, "c.example.", nrf.Name)
		assert.Equal(t, t0.Add(2*time.Second), nrf.ValidUntil)
	})

	t.Run("nxdomain without soa", func(t *testing.T) {
		_, err := r.Lookup(ctx, "bare.example")

		var nrf *NoRecordsFoundError
		require.ErrorAs(t, err, &nrf)
		assert.False(t, nrf.HasHint())
	})

	t.Run("server failure is not a hint", func(t *testing.T) {
		_, err := r.Lookup(ctx, "servfail.example")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrNotFound)
	})

	t.Run("silent server", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
		defer cancel()

		_, err := r.Lookup(ctx, "b.example")
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.NotErrorIs(t, err, ErrNotFound)
	})

	t.Run("ip literal", func(t *testing.T) {
		result, err := r.Lookup(ctx, "192.0.2.99")
		require.NoError(t, err)
		assert.Equal(t, []string{"192.0.2.99"}, result.Records)
		assert.Equal(t, t0.Add(MaxTTL), result.ValidUntil)
	})

	t.Run("hosts file", func(t *testing.T) {
		result, err := r.Lookup(ctx, "hosted.example.")
		require.NoError(t, err)
		assert.Equal(t, "hosted.example.", result.Name)
		assert.Equal(t, []string{"192.0.2.10"}, result.Records)
		assert.Equal(t, t0.Add(MaxTTL), result.ValidUntil)
	})

	t.Run("empty name", func(t *testing.T) {
		_, err := r.Lookup(ctx, " ")
		assert.Error(t, err)
	})
}

func TestNewResolver(t *testing.T) {
	t.Run("servers from resolv.conf", func(t *testing.T) {
		dir := t.TempDir()
		r, err := NewResolver(Options{
			ResolvConf: writeFile(t, dir, "resolv.conf", "nameserver 127.0.0.1\nnameserver ::1\n"),
			Hostsfile:  writeFile(t, dir, "hosts", ""),
			SkipTest:   true,
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"127.0.0.1:53", "[::1]:53"}, r.Servers())
	})

	t.Run("explicit servers get default port", func(t *testing.T) {
		dir := t.TempDir()
		r, err := NewResolver(Options{
			Servers:    []string{"8.8.8.8", "1.1.1.1:5353"},
			ResolvConf: filepath.Join(dir, "missing.conf"),
			Hostsfile:  writeFile(t, dir, "hosts", ""),
			SkipTest:   true,
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"8.8.8.8:53", "1.1.1.1:5353"}, r.Servers())
	})

	t.Run("no server", func(t *testing.T) {
		dir := t.TempDir()
		_, err := NewResolver(Options{
			ResolvConf: writeFile(t, dir, "resolv.conf", "search example\n"),
			SkipTest:   true,
		})
		assert.ErrorIs(t, err, ErrNoServer)
	})

	t.Run("unknown order", func(t *testing.T) {
		_, err := NewResolver(Options{
			Servers:  []string{"127.0.0.1"},
			Order:    []string{"mx"},
			SkipTest: true,
		})
		assert.Error(t, err)
	})

	t.Run("missing hosts file", func(t *testing.T) {
		dir := t.TempDir()
		_, err := NewResolver(Options{
			Servers:   []string{"127.0.0.1"},
			Hostsfile: filepath.Join(dir, "hosts"),
			SkipTest:  true,
		})
		assert.Error(t, err)
	})
}

func TestValidateDNSServer(t *testing.T) {
	addr := startDNSServer(t, testZone(t))

	validServers, err := ValidateDNSServer([]string{addr})
	require.NoError(t, err)
	assert.Equal(t, []string{addr}, validServers)

	_, err = ValidateDNSServer(nil)
	assert.ErrorIs(t, err, ErrNoServer)
}

func TestClone(t *testing.T) {
	fc := testingclock.NewFakeClock(time.Now())
	r := newTestResolver(t, fc)

	clone := r.Clone()
	assert.NotSame(t, r.client, clone.client)
	assert.Equal(t, r.Servers(), clone.Servers())

	result, err := clone.Lookup(context.Background(), "a.example")
	require.NoError(t, err)
	assert.Equal(t, []string{"192.0.2.1"}, result.Records)
}

func TestMaintainReloadsHosts(t *testing.T) {
	dir := t.TempDir()
	hostsfile := writeFile(t, dir, "hosts", "192.0.2.10 pinned.example\n")

	r, err := NewResolver(Options{
		Servers:    []string{"127.0.0.1"},
		ResolvConf: filepath.Join(dir, "resolv.conf"),
		Hostsfile:  hostsfile,
		SkipTest:   true,
	})
	require.NoError(t, err)
	clone := r.Clone()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- r.Maintain(ctx)
	}()

	assert.Eventually(t, func() bool {
		// rewrite until the watcher is up and picked it up
		_ = os.WriteFile(hostsfile, []byte("192.0.2.20 pinned.example\n"), 0o600)

		result, err := clone.Lookup(context.Background(), "pinned.example")
		return err == nil && result.Records[0] == "192.0.2.20"
	}, 3*time.Second, 50*time.Millisecond)

	writeFile(t, dir, "resolv.conf", "search example\noptions ndots:2\n")
	assert.Eventually(t, func() bool {
		r.shared.mu.RLock()
		defer r.shared.mu.RUnlock()
		return r.shared.ndots == 2
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"127.0.0.1:53"}, r.Servers())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("maintain did not stop")
	}
}

func startTCPDNSServer(t *testing.T, addr string, handler dns.Handler) {
	t.Helper()

	ln, err := net.Listen("tcp", addr)
	require.NoError(t, err)

	started := make(chan struct{})
	server := &dns.Server{
		Listener:          ln,
		Handler:           handler,
		NotifyStartedFunc: func() { close(started) },
	}

	go func() {
		_ = server.ActivateAndServe()
	}()
	<-started

	t.Cleanup(func() {
		_ = server.Shutdown()
	})
}

// largeZone only fits its answer in a tcp reply.
func largeZone(t *testing.T) dns.HandlerFunc {
	return func(w dns.ResponseWriter, req *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(req)

		if w.RemoteAddr().Network() == "udp" {
			m.Truncated = true
		} else {
			m.Answer = append(m.Answer, mustRR(t, "big.example. 30 IN A 192.0.2.30"))
		}

		_ = w.WriteMsg(m)
	}
}

func TestLookupTruncated(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	fc := testingclock.NewFakeClock(t0)
	dir := t.TempDir()

	newResolver := func(addr string) *Resolver {
		r, err := NewResolver(Options{
			Clock:      fc,
			Servers:    []string{addr},
			ResolvConf: filepath.Join(dir, "resolv.conf"),
			Hostsfile:  writeFile(t, dir, "hosts", ""),
			Order:      []string{"a"},
			Timeout:    time.Second,
			SkipTest:   true,
		})
		require.NoError(t, err)
		return r
	}

	t.Run("retried over tcp", func(t *testing.T) {
		addr := startDNSServer(t, largeZone(t))
		startTCPDNSServer(t, addr, largeZone(t))

		result, err := newResolver(addr).Lookup(context.Background(), "big.example.")
		require.NoError(t, err)
		assert.Equal(t, []string{"192.0.2.30"}, result.Records)
		assert.Equal(t, t0.Add(30*time.Second), result.ValidUntil)
	})

	t.Run("tcp unavailable is not a denial", func(t *testing.T) {
		addr := startDNSServer(t, largeZone(t))

		_, err := newResolver(addr).Lookup(context.Background(), "big.example.")
		require.Error(t, err)

		var nrf *NoRecordsFoundError
		assert.False(t, errors.As(err, &nrf))
		assert.NotErrorIs(t, err, ErrNotFound)
	})
}
