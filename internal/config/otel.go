package config

// OtelConfig configures trace export. Tracing is off unless an OTLP endpoint
// is set.
type OtelConfig struct {
	ExporterEndpoint string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	Insecure         bool    `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	ServiceName      string  `env:"OTEL_SERVICE_NAME"           envDefault:"vaguinhas-api"`
	SamplingRate     float64 `env:"OTEL_SAMPLING_RATE"          envDefault:"1.0"`
}

// Enabled reports whether spans are exported.
func (c OtelConfig) Enabled() bool {
	return c.ExporterEndpoint != ""
}
