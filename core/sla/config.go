package sla

import (
	"fmt"
	"time"
)

// Config holds SLA thresholds and the watchdog tick interval.
type Config struct {
	QueueWaitMS int `json:"queue_wait_ms"`
	DeliveryMS  int `json:"delivery_ms"`
	IntervalMS  int `json:"interval_ms"`
}

// SetDefaults fills unset values.
func (c *Config) SetDefaults() {
	if c.QueueWaitMS == 0 {
		c.QueueWaitMS = 5 * 60 * 1000
	}
	if c.DeliveryMS == 0 {
		c.DeliveryMS = 60 * 60 * 1000
	}
	if c.IntervalMS == 0 {
		c.IntervalMS = 10000
	}
}

// Validate checks the thresholds.
func (c Config) Validate() error {
	if c.QueueWaitMS < 0 || c.DeliveryMS < 0 {
		return fmt.Errorf("sla thresholds must be >= 0")
	}
	if c.IntervalMS < 0 {
		return fmt.Errorf("sla.interval_ms must be >= 0")
	}
	return nil
}

// QueueWait returns the queue-wait threshold.
func (c Config) QueueWait() time.Duration { return time.Duration(c.QueueWaitMS) * time.Millisecond }

// Delivery returns the delivery-duration threshold.
func (c Config) Delivery() time.Duration { return time.Duration(c.DeliveryMS) * time.Millisecond }

// Interval returns the tick interval, 10s when unset.
func (c Config) Interval() time.Duration {
	if c.IntervalMS <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.IntervalMS) * time.Millisecond
}
