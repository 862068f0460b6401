package resolver

import (
	"bufio"
	"errors"
	"net"
	"os"
	"strings"
)

// loadHostsFile parses an /etc/hosts style file into hostname -> addresses.
func loadHostsFile(path string) (map[string][]string, error) {
	hosts := make(map[string][]string)

	if len(path) == 0 {
		return hosts, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = line[:idx]
		}

		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}

		ip := net.ParseIP(fields[0])
		if ip == nil {
			continue
		}

		for _, host := range fields[1:] {
			host = hostsKey(host)
			hosts[host] = append(hosts[host], ip.String())
		}
	}

	return hosts, scanner.Err()
}

func hostsKey(host string) string {
	return strings.ToLower(strings.TrimSuffix(host, "."))
}

func defaultHostsPath() string {
	if _, err := os.Stat(defaultHostsfile); errors.Is(err, os.ErrNotExist) {
		return ""
	}
	return defaultHostsfile
}
