// Package config loads and watches the deptrack configuration file.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// CorrelationConfig is the configuration surface the correlation core
// consumes.
type CorrelationConfig struct {
	// SetCorrelationHeaders enables header injection on outbound calls.
	SetCorrelationHeaders bool `yaml:"set_correlation_headers" json:"setCorrelationHeaders"`

	// ExcludedDomains lists host suffixes that must not receive
	// correlation headers.
	ExcludedDomains []string `yaml:"excluded_domains" json:"excludedDomains"`

	// LegacyHeaders additionally writes the old root/parent id header
	// pair for components that only understand the two-header scheme.
	LegacyHeaders bool `yaml:"legacy_headers" json:"legacyHeaders"`
}

// TelemetryConfig configures the OTLP export of emitted records.
type TelemetryConfig struct {
	Endpoint    string            `yaml:"endpoint" json:"endpoint"`
	ServiceName string            `yaml:"service_name" json:"serviceName"`
	Environment string            `yaml:"environment" json:"environment"`
	Insecure    bool              `yaml:"insecure" json:"insecure"`
	Headers     map[string]string `yaml:"headers" json:"headers"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Pretty bool   `yaml:"pretty" json:"pretty"`
}

// Probe is a synthetic outbound target the agent binary calls periodically
// to exercise the instrumentation.
type Probe struct {
	URL      string        `yaml:"url" json:"url"`
	Interval time.Duration `yaml:"interval" json:"interval"`
}

// UnmarshalYAML accepts Go duration strings ("10s", "1m") for the
// interval, which plain yaml decoding of time.Duration does not.
func (p *Probe) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		URL      string `yaml:"url"`
		Interval string `yaml:"interval"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	p.URL = raw.URL
	p.Interval = 0
	if raw.Interval != "" {
		d, err := time.ParseDuration(raw.Interval)
		if err != nil {
			return fmt.Errorf("probe interval: %w", err)
		}
		p.Interval = d
	}
	return nil
}

// Config is the root configuration document.
type Config struct {
	// InstrumentationKey identifies this component to the telemetry
	// backend and is the key the identity resolver maps to an app id.
	InstrumentationKey string `yaml:"instrumentation_key" json:"instrumentationKey"`

	// IngestionHost is the telemetry backend's own host; outbound calls
	// to it are self-traffic and are never recorded.
	IngestionHost string `yaml:"ingestion_host" json:"ingestionHost"`

	// HTTPStack selects the event schema generation: "modern" (default)
	// or "legacy".
	HTTPStack string `yaml:"http_stack" json:"httpStack"`

	// AppIDs optionally maps instrumentation keys to application ids for
	// deployments without an identity endpoint.
	AppIDs map[string]string `yaml:"app_ids" json:"appIds"`

	Correlation CorrelationConfig `yaml:"correlation" json:"correlation"`
	Telemetry   TelemetryConfig   `yaml:"telemetry" json:"telemetry"`
	Logging     LoggingConfig     `yaml:"logging" json:"logging"`

	// MetricsListen is the bind address for the Prometheus endpoint.
	MetricsListen string `yaml:"metrics_listen" json:"metricsListen"`

	Probes []Probe `yaml:"probes" json:"probes"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		HTTPStack: "modern",
		Correlation: CorrelationConfig{
			SetCorrelationHeaders: true,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "deptrack",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		MetricsListen: ":9464",
	}
}

// Validate checks the document for values the runtime cannot work with.
func (c *Config) Validate() error {
	switch c.HTTPStack {
	case "", "modern", "legacy":
	default:
		return fmt.Errorf("http_stack: unknown value %q (want modern or legacy)", c.HTTPStack)
	}
	for i, probe := range c.Probes {
		if probe.URL == "" {
			return fmt.Errorf("probes[%d]: url is required", i)
		}
	}
	return nil
}
