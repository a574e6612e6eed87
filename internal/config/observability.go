package config

// TelemetryConfig holds OpenTelemetry trace export configuration.
//
// Traces are exported over OTLP/HTTP to a local collector or agent.
// See internal/observability for the tracer setup.
type TelemetryConfig struct {
	// Enabled turns trace export on. Off by default.
	Enabled bool `mapstructure:"enabled"`
	// OTLPEndpoint is the collector's OTLP/HTTP endpoint (default: localhost:4318).
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	// Environment is the deployment environment tag (default: dev).
	Environment string `mapstructure:"environment"`
	// ServiceName is the reported service name (default: quill).
	ServiceName string `mapstructure:"service_name"`
}
