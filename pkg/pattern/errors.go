package pattern

import (
	"fmt"
	"strings"
)

// InvalidValue describes one config key whose value failed validation.
type InvalidValue struct {
	Key      string
	Expected string
	Got      any
}

// ConfigError reports malformed pattern configuration. It is produced
// at construction time only.
type ConfigError struct {
	Kind        Kind
	MissingKeys []string
	Invalid     []InvalidValue
}

func (e *ConfigError) Error() string {
	var parts []string
	if len(e.MissingKeys) > 0 {
		parts = append(parts, fmt.Sprintf("missing keys: %s", strings.Join(e.MissingKeys, ", ")))
	}
	for _, iv := range e.Invalid {
		parts = append(parts, fmt.Sprintf("%s: expected %s, got %v", iv.Key, iv.Expected, iv.Got))
	}
	if len(parts) == 0 {
		parts = append(parts, "invalid config")
	}
	return fmt.Sprintf("%s config: %s", e.Kind, strings.Join(parts, "; "))
}

func missingKey(kind Kind, keys ...string) *ConfigError {
	return &ConfigError{Kind: kind, MissingKeys: keys}
}

func invalidValue(kind Kind, key, expected string, got any) *ConfigError {
	return &ConfigError{Kind: kind, Invalid: []InvalidValue{{Key: key, Expected: expected, Got: got}}}
}
