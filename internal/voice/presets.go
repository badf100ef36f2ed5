package voice

import (
	_ "embed"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed presets.yaml
var presetsYAML []byte

// Settings are the tunable synthesis parameters. Nil fields are unset and
// fall back to the selected preset.
type Settings struct {
	Stability       *float64 `json:"stability,omitempty" yaml:"stability"`
	SimilarityBoost *float64 `json:"similarityBoost,omitempty" yaml:"similarity_boost"`
	Style           *float64 `json:"style,omitempty" yaml:"style"`
	UseSpeakerBoost *bool    `json:"useSpeakerBoost,omitempty" yaml:"use_speaker_boost"`
}

// Float returns a pointer to v, for building Settings literals.
func Float(v float64) *float64 { return &v }

// Bool returns a pointer to v, for building Settings literals.
func Bool(v bool) *bool { return &v }

// overlay returns s with every non-nil field of o applied on top.
func (s Settings) overlay(o *Settings) Settings {
	if o == nil {
		return s
	}
	if o.Stability != nil {
		s.Stability = o.Stability
	}
	if o.SimilarityBoost != nil {
		s.SimilarityBoost = o.SimilarityBoost
	}
	if o.Style != nil {
		s.Style = o.Style
	}
	if o.UseSpeakerBoost != nil {
		s.UseSpeakerBoost = o.UseSpeakerBoost
	}
	return s
}

// Preset is a named Settings bundle.
type Preset struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Settings    Settings `json:"settings"`
}

type presetFile struct {
	Presets map[string]struct {
		Description string `yaml:"description"`
		Settings    `yaml:",inline"`
	} `yaml:"presets"`
}

func parsePresets(data []byte) (map[string]Preset, error) {
	var f presetFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing presets: %w", err)
	}
	out := make(map[string]Preset, len(f.Presets))
	for name, p := range f.Presets {
		if errs := ValidateSettings(p.Settings); len(errs) > 0 {
			return nil, fmt.Errorf("preset %q: %v", name, errs)
		}
		out[name] = Preset{Name: name, Description: p.Description, Settings: p.Settings}
	}
	return out, nil
}

var builtinPresets = func() map[string]Preset {
	p, err := parsePresets(presetsYAML)
	if err != nil {
		panic(err)
	}
	return p
}()

// LookupPreset returns the built-in preset with the given name.
func LookupPreset(name string) (Preset, bool) {
	p, ok := builtinPresets[name]
	return p, ok
}

// Presets lists the built-in presets sorted by name.
func Presets() []Preset {
	out := make([]Preset, 0, len(builtinPresets))
	for _, p := range builtinPresets {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
