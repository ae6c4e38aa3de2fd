package spline

import (
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/brendadeeznuts1111/wncaab-perf-v3.1-sub000/errors"
)

// Preset is a named, reusable render configuration persisted as YAML under
// the preset directory.
type Preset struct {
	Name    string  `yaml:"name" json:"name"`
	Method  string  `yaml:"method" json:"method"`
	Samples int     `yaml:"samples" json:"samples"`
	Points  []Point `yaml:"points" json:"points"`
}

var presetName = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]{0,63}$`)

// PresetStore persists presets as presets/<name>.yaml.
type PresetStore struct {
	dir string
}

// NewPresetStore returns a store rooted at dir, creating it if needed.
func NewPresetStore(dir string) (*PresetStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create preset dir %s", dir)
	}
	return &PresetStore{dir: dir}, nil
}

// Store validates and writes the preset. The name is restricted to a safe
// charset so a preset can never escape the store directory.
func (ps *PresetStore) Store(p Preset) (string, error) {
	if !presetName.MatchString(p.Name) {
		return "", errors.Newf("invalid preset name %q", p.Name)
	}
	if p.Method == "" {
		p.Method = MethodCatmullRom
	}
	if _, err := NewEngine().Render(p.Method, p.Points, max(p.Samples, 2)); err != nil {
		return "", errors.Wrap(err, "preset does not render")
	}

	data, err := yaml.Marshal(p)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal preset")
	}

	path := filepath.Join(ps.dir, p.Name+".yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", errors.Wrapf(err, "failed to write preset %s", path)
	}
	return path, nil
}

// Load reads a preset by name.
func (ps *PresetStore) Load(name string) (*Preset, error) {
	if !presetName.MatchString(name) {
		return nil, errors.Newf("invalid preset name %q", name)
	}
	data, err := os.ReadFile(filepath.Join(ps.dir, name+".yaml"))
	if err != nil {
		return nil, errors.Wrapf(err, "preset %s not found", name)
	}
	var p Preset
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, errors.Wrapf(err, "preset %s is corrupt", name)
	}
	return &p, nil
}
