package metrics

import (
	"fmt"
	"time"
)

// InfluxConfig points at an InfluxDB v2 bucket. An empty URL disables the sink.
type InfluxConfig struct {
	URL    string `json:"url"`
	Token  string `json:"token"`
	Org    string `json:"org"`
	Bucket string `json:"bucket"`
}

// Enabled reports whether an endpoint is configured.
func (c InfluxConfig) Enabled() bool { return c.URL != "" }

// Config defines settings for metrics sinks.
type Config struct {
	PrometheusEnabled bool         `json:"prometheus_enabled"`
	PrometheusAddr    string       `json:"prometheus_addr"`
	Influx            InfluxConfig `json:"influx"`
	// WindowMS is the span of the orders-per-minute throughput window.
	WindowMS int `json:"window_ms"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.PrometheusAddr == "" {
		c.PrometheusAddr = ":9090"
	}
	if c.WindowMS == 0 {
		c.WindowMS = 60000
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.WindowMS < 0 {
		return fmt.Errorf("window_ms must be positive")
	}
	if c.Influx.Enabled() && (c.Influx.Org == "" || c.Influx.Bucket == "") {
		return fmt.Errorf("influx org and bucket are required")
	}
	return nil
}

// Window returns the throughput window span.
func (c Config) Window() time.Duration { return time.Duration(c.WindowMS) * time.Millisecond }
