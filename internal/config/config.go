// Package config holds the service configuration and the hot-reloadable
// dependency graph file loading.
package config

// Config holds all configuration for the service
type Config struct {
	// DatabasePath is the SQLite file backing the event store
	DatabasePath string

	// GraphConfigPath is an optional YAML file seeding the service graph.
	// When set, the file is watched and re-merged on change.
	GraphConfigPath string

	// APIPort is the port the HTTP API listens on
	APIPort int

	// LogLevel is the default logging level (debug, info, warn, error)
	LogLevel string

	// PackageLogLevels overrides the log level per package,
	// e.g. {"analysis.*": "debug"}
	PackageLogLevels map[string]string

	// RetentionDays prunes events older than this many days; 0 disables
	RetentionDays int

	// TracingEnabled indicates whether OpenTelemetry tracing is enabled
	TracingEnabled bool

	// TracingEndpoint is the OTLP gRPC endpoint for trace export
	TracingEndpoint string

	// TracingTLSCAPath is the path to the CA certificate for TLS verification
	TracingTLSCAPath string

	// TracingTLSInsecure skips TLS certificate verification
	TracingTLSInsecure bool
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return NewConfigError("DatabasePath must not be empty")
	}
	if c.APIPort < 1 || c.APIPort > 65535 {
		return NewConfigError("APIPort must be between 1 and 65535")
	}
	if c.RetentionDays < 0 {
		return NewConfigError("RetentionDays must not be negative")
	}
	if c.TracingEnabled && c.TracingEndpoint == "" {
		return NewConfigError("TracingEndpoint must be set when tracing is enabled")
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	message string
}

// NewConfigError creates a new configuration error
func NewConfigError(message string) *ConfigError {
	return &ConfigError{message: message}
}

// Error returns the error message
func (e *ConfigError) Error() string {
	return e.message
}
