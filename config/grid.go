package config

import "fmt"

// GridConfig controls map generation when no saved map exists.
type GridConfig struct {
	Size int `json:"size"`
	// WallProbability is nil when unset so that 0 stays a valid value.
	WallProbability *float64 `json:"wall_probability"`
	// Attempts is how many candidate maps are generated; the most open wins.
	Attempts int `json:"attempts"`
	// Seed makes generation reproducible. 0 seeds from the clock.
	Seed int64 `json:"seed"`
}

// SetDefaults applies sane defaults.
func (c *GridConfig) SetDefaults() {
	if c.Size == 0 {
		c.Size = 100
	}
	if c.WallProbability == nil {
		wp := 0.3
		c.WallProbability = &wp
	}
	if c.Attempts == 0 {
		c.Attempts = 3
	}
}

// Validate checks ranges.
func (c GridConfig) Validate() error {
	if c.Size < 10 || c.Size > 1000 {
		return fmt.Errorf("grid.size must be between 10 and 1000")
	}
	if wp := c.Wall(); wp < 0 || wp > 1 {
		return fmt.Errorf("grid.wall_probability must be between 0 and 1")
	}
	if c.Attempts < 1 {
		return fmt.Errorf("grid.attempts must be >= 1")
	}
	return nil
}

// Wall returns the wall probability or its default.
func (c GridConfig) Wall() float64 {
	if c.WallProbability == nil {
		return 0.3
	}
	return *c.WallProbability
}

// FleetConfig controls the roster seeded on first start.
type FleetConfig struct {
	DefaultSize int `json:"default_size"`
}

// SetDefaults applies sane defaults.
func (c *FleetConfig) SetDefaults() {
	if c.DefaultSize == 0 {
		c.DefaultSize = 5
	}
}

// Validate checks ranges.
func (c FleetConfig) Validate() error {
	if c.DefaultSize < 0 {
		return fmt.Errorf("fleet.default_size must be >= 0")
	}
	return nil
}
