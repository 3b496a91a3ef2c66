package sim

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/LuizPaulo1002/neuramaint/internal/model"
)

// Profile describes physically plausible behavior for one sensor type:
// where healthy values live, where failing values live, and how much the
// signal wanders between ticks.
type Profile struct {
	NormalMin   float64 `yaml:"normal_min"`
	NormalMax   float64 `yaml:"normal_max"`
	CriticalMin float64 `yaml:"critical_min"`
	CriticalMax float64 `yaml:"critical_max"`
	Noise       float64 `yaml:"noise"`
	TrendStep   float64 `yaml:"trend_step"`
}

// DefaultProfiles returns the built-in per-type profiles.
func DefaultProfiles() map[model.SensorType]Profile {
	return map[model.SensorType]Profile{
		model.SensorTemperature: {NormalMin: 40, NormalMax: 70, CriticalMin: 85, CriticalMax: 120, Noise: 2, TrendStep: 1.5},
		model.SensorVibration:   {NormalMin: 20, NormalMax: 45, CriticalMin: 60, CriticalMax: 90, Noise: 3, TrendStep: 2},
		model.SensorPressure:    {NormalMin: 6, NormalMax: 10, CriticalMin: 12, CriticalMax: 18, Noise: 0.4, TrendStep: 0.3},
		// Flow fails low: a starved pump draws less than it should.
		model.SensorFlow:     {NormalMin: 70, NormalMax: 95, CriticalMin: 30, CriticalMax: 50, Noise: 2.5, TrendStep: 1.8},
		model.SensorRotation: {NormalMin: 1600, NormalMax: 1800, CriticalMin: 800, CriticalMax: 1200, Noise: 20, TrendStep: 15},
	}
}

// LoadProfiles reads per-type profile overrides from a YAML file and merges
// them over the defaults. Unknown sensor types are rejected.
func LoadProfiles(path string) (map[model.SensorType]Profile, error) {
	profiles := DefaultProfiles()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profiles file %s: %w", path, err)
	}

	var overrides map[model.SensorType]Profile
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("failed to parse profiles file %s: %w", path, err)
	}

	for typ, p := range overrides {
		if !model.ValidSensorType(typ) {
			return nil, fmt.Errorf("unknown sensor type in profiles file: %s", typ)
		}
		profiles[typ] = p
	}
	return profiles, nil
}
