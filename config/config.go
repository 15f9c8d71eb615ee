package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/gridcourier/core/dispatch"
	"github.com/kilianp07/gridcourier/core/metrics"
	"github.com/kilianp07/gridcourier/core/sla"
	"github.com/kilianp07/gridcourier/infra/mqtt"
)

// EnvPrefix marks environment overrides, e.g. GC_GRID__SIZE=200.
const EnvPrefix = "GC_"

type Config struct {
	Grid       GridConfig       `json:"grid"`
	Dispatch   dispatch.Config  `json:"dispatch"`
	SLA        sla.Config       `json:"sla"`
	Store      StoreConfig      `json:"store"`
	Fleet      FleetConfig      `json:"fleet"`
	Simulation SimulationConfig `json:"simulation"`
	Metrics    metrics.Config   `json:"metrics"`
	MQTT       mqtt.Config      `json:"mqtt"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	cfg.SetDefaults()
	return &cfg
}

// SetDefaults fills every section.
func (c *Config) SetDefaults() {
	c.Grid.SetDefaults()
	c.Dispatch.SetDefaults()
	c.SLA.SetDefaults()
	c.Store.SetDefaults()
	c.Fleet.SetDefaults()
	c.Simulation.SetDefaults()
	c.Metrics.SetDefaults()
	c.MQTT.SetDefaults()
}

// Validate checks every section and joins the failures.
func (c Config) Validate() error {
	return errors.Join(
		c.Grid.Validate(),
		c.Dispatch.Validate(),
		c.SLA.Validate(),
		c.Store.Validate(),
		c.Fleet.Validate(),
		c.Simulation.Validate(),
		c.Metrics.Validate(),
		c.MQTT.Validate(),
	)
}

// Load reads a YAML or JSON file, applies GC_ environment overrides and
// defaults, then validates. An empty path loads defaults and the environment.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		ext := strings.ToLower(filepath.Ext(path))
		var parser koanf.Parser
		switch ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", ext)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, err
		}
	}
	// Optional environment overrides
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
