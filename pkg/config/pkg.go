package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads the yaml options file at path on top of NewOptions defaults.
// An empty path returns the defaults.
func Load(path string) (Options, error) {
	mainOpts := NewOptions()

	path = strings.TrimSpace(path)
	if len(path) == 0 {
		return mainOpts, nil
	}

	path = filepath.Clean(path)
	if !fileExist(path) {
		return mainOpts, fmt.Errorf("config: file '%s' not found", path)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return mainOpts, fmt.Errorf("config: read file error: %w", err)
	}

	mainOpts, err = parseContent(mainOpts, content)
	if err != nil {
		return mainOpts, fmt.Errorf("config: yaml unmarshal failed, path: %s, error: %w", path, err)
	}

	mainOpts.configPath = path
	return mainOpts, nil
}

func parseContent(base Options, content []byte) (Options, error) {
	result := base

	err := yaml.Unmarshal(content, &result)
	if err != nil {
		return base, err
	}

	return result, nil
}

func fileExist(file string) bool {
	_, err := os.Stat(file)
	return !errors.Is(err, os.ErrNotExist)
}
