// Package profile holds the spectral index thresholds that drive land
// cover classification. Profiles let one deployment carry different
// cutoffs for different biomes without code changes.
package profile

import (
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Thresholds are the index cutoffs for one profile. Water compares
// against NDWI, Forest and Agriculture against NDVI, BuiltUp against
// NDBI.
type Thresholds struct {
	Water       float64 `yaml:"water"`
	Forest      float64 `yaml:"forest"`
	Agriculture float64 `yaml:"agriculture"`
	BuiltUp     float64 `yaml:"built_up"`
}

// Default returns the stock Sentinel-2 thresholds.
func Default() Thresholds {
	return Thresholds{Water: 0.3, Forest: 0.6, Agriculture: 0.35, BuiltUp: 0.3}
}

// Validate rejects cutoffs a normalized difference index can never
// reach, and orderings that make a class unreachable.
func (t Thresholds) Validate() error {
	check := func(name string, v float64) error {
		if v < -1 || v > 1 {
			return eris.Errorf("profile: %s threshold %.3f outside [-1, 1]", name, v)
		}
		return nil
	}
	if err := check("water", t.Water); err != nil {
		return err
	}
	if err := check("forest", t.Forest); err != nil {
		return err
	}
	if err := check("agriculture", t.Agriculture); err != nil {
		return err
	}
	if err := check("built_up", t.BuiltUp); err != nil {
		return err
	}
	if t.Agriculture >= t.Forest {
		return eris.Errorf("profile: agriculture threshold %.3f must be below forest threshold %.3f",
			t.Agriculture, t.Forest)
	}
	return nil
}

// Overrides is one profile entry in the YAML file. Nil fields fall
// back to the defaults section.
type Overrides struct {
	Water       *float64 `yaml:"water"`
	Forest      *float64 `yaml:"forest"`
	Agriculture *float64 `yaml:"agriculture"`
	BuiltUp     *float64 `yaml:"built_up"`
}

func (t Thresholds) apply(o Overrides) Thresholds {
	if o.Water != nil {
		t.Water = *o.Water
	}
	if o.Forest != nil {
		t.Forest = *o.Forest
	}
	if o.Agriculture != nil {
		t.Agriculture = *o.Agriculture
	}
	if o.BuiltUp != nil {
		t.BuiltUp = *o.BuiltUp
	}
	return t
}

// Config is a resolved profile set.
type Config struct {
	defaults Thresholds
	profiles map[string]Thresholds
}

// NewConfig returns a profile set holding only the stock defaults.
func NewConfig() *Config {
	return &Config{defaults: Default(), profiles: map[string]Thresholds{}}
}

// Load reads profiles from a YAML file and resolves every entry
// against the defaults section.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "profile: read config %s", path)
	}

	// The YAML has a top-level "classification" key
	var wrapper struct {
		Classification struct {
			Defaults Overrides            `yaml:"defaults"`
			Profiles map[string]Overrides `yaml:"profiles"`
		} `yaml:"classification"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "profile: parse config")
	}

	cfg := &Config{
		defaults: Default().apply(wrapper.Classification.Defaults),
		profiles: make(map[string]Thresholds, len(wrapper.Classification.Profiles)),
	}
	if err := cfg.defaults.Validate(); err != nil {
		return nil, eris.Wrap(err, "profile: defaults")
	}

	for name, ov := range wrapper.Classification.Profiles {
		resolved := cfg.defaults.apply(ov)
		if err := resolved.Validate(); err != nil {
			return nil, eris.Wrapf(err, "profile: %s", name)
		}
		cfg.profiles[name] = resolved
	}
	return cfg, nil
}

// Defaults returns the resolved defaults section.
func (c *Config) Defaults() Thresholds {
	return c.defaults
}

// Get resolves a profile by name. The empty name means defaults.
func (c *Config) Get(name string) (Thresholds, error) {
	if name == "" {
		return c.defaults, nil
	}
	t, ok := c.profiles[name]
	if !ok {
		return Thresholds{}, eris.Errorf("profile: unknown profile %q", name)
	}
	return t, nil
}

// Names lists the named profiles in sorted order.
func (c *Config) Names() []string {
	names := make([]string, 0, len(c.profiles))
	for name := range c.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
