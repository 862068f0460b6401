package config

import "strings"

type ErrInvalidConfig struct {
	Structure []string
	Value     any
	Message   string
}

func newInvalidConfig(structure []string, value any, message string) ErrInvalidConfig {
	return ErrInvalidConfig{
		Structure: structure,
		Value:     value,
		Message:   message,
	}
}

func (e ErrInvalidConfig) Error() string {
	if len(e.Structure) == 0 {
		return "invalid config: " + e.Message
	}
	return "invalid config: " + strings.Join(e.Structure, ".") + ": " + e.Message
}
