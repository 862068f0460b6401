package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Maintain is the resolver's background task. It reloads resolv.conf and the
// hosts file whenever they change on disk, and returns nil once ctx is done.
func (r *Resolver) Maintain(ctx context.Context) error {
	reloaders := make(map[string]func() error)

	if len(r.options.ResolvConf) > 0 {
		reloaders[filepath.Clean(r.options.ResolvConf)] = r.reloadSystemConfig
	}

	if len(r.options.Hostsfile) > 0 {
		reloaders[filepath.Clean(r.options.Hostsfile)] = r.reloadHosts
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("dns: configuration files are not watched", "error", err)
		<-ctx.Done()
		return nil
	}
	defer watcher.Close()

	// watch directories, editors and resolvconf replace files instead of writing them
	dirs := make(map[string]struct{})
	for path := range reloaders {
		dirs[filepath.Dir(path)] = struct{}{}
	}

	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			slog.Warn("dns: failed to watch directory", "dir", dir, "error", err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			reload, found := reloaders[filepath.Clean(event.Name)]
			if !found || !event.Has(fsnotify.Create|fsnotify.Write|fsnotify.Rename) {
				continue
			}

			if err := reload(); err != nil {
				slog.Warn("dns: failed to reload configuration", "path", event.Name, "error", err)
				continue
			}

			slog.Info("dns: configuration reloaded", "path", event.Name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("dns: watcher error", "error", err)
		}
	}
}

func (r *Resolver) reloadSystemConfig() error {
	sysConf, err := LoadSystemConfig(r.options.ResolvConf)
	if err != nil {
		return err
	}

	r.shared.mu.Lock()
	defer r.shared.mu.Unlock()

	r.shared.search = sysConf.Search
	r.shared.ndots = sysConf.Ndots

	// explicitly configured servers win over resolv.conf
	if len(normalizeServers(r.options.Servers)) == 0 {
		if len(sysConf.Servers) == 0 {
			return fmt.Errorf("dns: %w; '%s' lists no nameserver", ErrNoServer, r.options.ResolvConf)
		}
		r.shared.servers = sysConf.Servers
	}

	return nil
}

func (r *Resolver) reloadHosts() error {
	hosts, err := loadHostsFile(r.options.Hostsfile)
	if err != nil {
		return err
	}

	r.shared.mu.Lock()
	r.shared.hosts = hosts
	r.shared.mu.Unlock()

	return nil
}
