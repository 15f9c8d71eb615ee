package config

import "fmt"

// SimulationConfig bounds a single simulation run.
type SimulationConfig struct {
	MaxOrders   int `json:"max_orders"`
	MaxCouriers int `json:"max_couriers"`
}

// SetDefaults applies sane defaults.
func (c *SimulationConfig) SetDefaults() {
	if c.MaxOrders == 0 {
		c.MaxOrders = 1000
	}
	if c.MaxCouriers == 0 {
		c.MaxCouriers = 100
	}
}

// Validate checks ranges.
func (c SimulationConfig) Validate() error {
	if c.MaxOrders < 0 || c.MaxCouriers < 0 {
		return fmt.Errorf("simulation limits must be >= 0")
	}
	return nil
}
