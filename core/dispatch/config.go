package dispatch

import "fmt"

// Config defines matching settings.
type Config struct {
	// DistanceThreshold is the band, in path cells, within which a less
	// loaded courier is preferred over the nearest one.
	DistanceThreshold *float64 `json:"distance_threshold"`
	// PathCandidates is how many ranked couriers get an explicit path.
	PathCandidates int `json:"path_candidates"`
}

// SetDefaults fills unset values.
func (c *Config) SetDefaults() {
	if c.DistanceThreshold == nil {
		d := 1.0
		c.DistanceThreshold = &d
	}
	if c.PathCandidates <= 0 {
		c.PathCandidates = 3
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.DistanceThreshold != nil && *c.DistanceThreshold < 0 {
		return fmt.Errorf("dispatch.distance_threshold must be >= 0")
	}
	return nil
}

// Threshold returns the configured distance threshold or its default.
func (c Config) Threshold() float64 {
	if c.DistanceThreshold == nil {
		return 1.0
	}
	return *c.DistanceThreshold
}
