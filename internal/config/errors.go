package config

import "fmt"

// ConfigurationError reports a configuration that cannot drive an analysis.
// Key names the offending config key, or is empty when the problem spans
// several keys.
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Key == "" {
		return "configuration error: " + e.Reason
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Key, e.Reason)
}
