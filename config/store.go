package config

import (
	"fmt"
)

// StoreConfig selects where the map, orders and couriers are persisted.
type StoreConfig struct {
	// Backend selects the store type: "json" or "sqlite".
	Backend string `json:"backend"`
	// Path is a directory for json and a database file for sqlite.
	Path string `json:"path"`
}

// SetDefaults applies sane defaults.
func (c *StoreConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "json"
	}
	if c.Path == "" {
		if c.Backend == "sqlite" {
			c.Path = "./data/gridcourier.db"
		} else {
			c.Path = "./data"
		}
	}
}

// Validate checks mandatory fields.
func (c StoreConfig) Validate() error {
	if c.Backend != "json" && c.Backend != "sqlite" {
		return fmt.Errorf("unknown backend %s", c.Backend)
	}
	if c.Path == "" {
		return fmt.Errorf("path is required")
	}
	return nil
}
