package resolver

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/miekg/dns"
)

const (
	defaultResolvConf = "/etc/resolv.conf"
	defaultHostsfile  = "/etc/hosts"
	defaultPort       = "53"
)

// SystemConfig is the part of resolv.conf the resolver cares about.
type SystemConfig struct {
	Servers []string
	Search  []string
	Ndots   int
}

// LoadSystemConfig parses a resolv.conf style file. A missing file yields the
// defaults (no servers, no search list, ndots 1).
func LoadSystemConfig(path string) (SystemConfig, error) {
	result := SystemConfig{Ndots: 1}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return result, nil
	}

	conf, err := dns.ClientConfigFromFile(path)
	if err != nil {
		return result, fmt.Errorf("dns: failed to read '%s': %w", path, err)
	}

	port := conf.Port
	if len(port) == 0 {
		port = defaultPort
	}

	for _, server := range conf.Servers {
		result.Servers = append(result.Servers, net.JoinHostPort(server, port))
	}

	result.Search = conf.Search
	result.Ndots = conf.Ndots

	return result, nil
}

// GetDNSServers returns the name servers configured for this host.
func GetDNSServers() []string {
	conf, err := LoadSystemConfig(defaultResolvConf)
	if err != nil {
		return nil
	}
	return conf.Servers
}

func normalizeServers(servers []string) []string {
	newServers := make([]string, 0, len(servers))

	for _, server := range servers {
		server = strings.TrimSpace(server)

		if len(server) == 0 {
			continue
		}

		targetHost, targetPort, err := net.SplitHostPort(server)
		if err != nil {
			targetHost = strings.Trim(server, "[]")
		}

		if len(targetPort) == 0 {
			targetPort = defaultPort
		}

		newServers = append(newServers, net.JoinHostPort(targetHost, targetPort))
	}

	return newServers
}
