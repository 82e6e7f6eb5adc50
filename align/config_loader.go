package align

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads the configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return ParseConfig(data)
}

// ParseConfig parses and validates configuration YAML
func ParseConfig(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks required fields. The anchor baseline is not checked here;
// the solver reports a degenerate pair when it is used.
func (c *Config) Validate() error {
	if c.Plan.Anchors.A1 == nil {
		return fmt.Errorf("plan.anchors.a1 is required")
	}
	if c.Plan.Anchors.A2 == nil {
		return fmt.Errorf("plan.anchors.a2 is required")
	}
	if c.Plan.UnitScale < 0 {
		return fmt.Errorf("plan.unitScale must be positive, got %g", c.Plan.UnitScale)
	}
	if err := c.Applier().Validate(); err != nil {
		return fmt.Errorf("apply: %w", err)
	}
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port out of range: %d", c.HTTP.Port)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch c.Log.Encoding {
	case "", "json", "console":
	default:
		return fmt.Errorf("log.encoding must be json or console, got %q", c.Log.Encoding)
	}
	return nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}
