package version

import (
	"encoding/json"
	"os"
	"regexp"
	"sync"

	"github.com/Masterminds/semver/v3"

	"github.com/brendadeeznuts1111/wncaab-perf-v3.1-sub000/errors"
)

// Bump types accepted by Registry.Bump and Registry.BumpAll.
const (
	BumpMajor = "major"
	BumpMinor = "minor"
	BumpPatch = "patch"
)

// Update strategies. Linked entities move together on a global bump;
// independent entities only move when targeted directly.
const (
	StrategyLinked      = "linked"
	StrategyIndependent = "independent"
)

// FileRef points at a file carrying an entity's version string. Pattern is a
// regex with exactly one capture group around the semver.
type FileRef struct {
	Path    string `json:"path"`
	Pattern string `json:"pattern"`
}

// Entity is one versioned component in the registry file.
type Entity struct {
	ID              string    `json:"id"`
	DisplayName     string    `json:"displayName"`
	Type            string    `json:"type"`
	UpdateStrategy  string    `json:"updateStrategy"`
	ParentVersionID string    `json:"parentVersionId,omitempty"`
	Files           []FileRef `json:"files"`
	DisplayInUI     bool      `json:"displayInUi"`

	// CurrentVersion is extracted from the first file ref at load time,
	// never persisted in the registry file itself.
	CurrentVersion string `json:"currentVersion,omitempty"`
}

// BumpResult reports what a bump changed.
type BumpResult struct {
	Entity     string   `json:"entity"`
	OldVersion string   `json:"oldVersion"`
	NewVersion string   `json:"newVersion"`
	Affected   []string `json:"affected"`
}

// Registry holds version entities loaded from a JSON registry file.
// Mutations rewrite the referenced files and set CurrentVersion in place to
// the version written; Reload re-reads it from disk.
type Registry struct {
	path     string
	mu       sync.RWMutex
	entities []Entity
}

// LoadRegistry reads and resolves the registry at path.
func LoadRegistry(path string) (*Registry, error) {
	r := &Registry{path: path}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-reads the registry file and re-extracts current versions.
func (r *Registry) Reload() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return errors.Wrapf(err, "failed to read version registry %s", r.path)
	}

	var entities []Entity
	if err := json.Unmarshal(data, &entities); err != nil {
		return errors.Wrapf(err, "failed to parse version registry %s", r.path)
	}

	for i := range entities {
		v, err := extractVersion(entities[i].Files)
		if err != nil {
			return errors.Wrapf(err, "entity %s", entities[i].ID)
		}
		entities[i].CurrentVersion = v
	}

	r.mu.Lock()
	r.entities = entities
	r.mu.Unlock()
	return nil
}

// Path returns the registry file path (watched for hot reload).
func (r *Registry) Path() string { return r.path }

// Entities returns a copy of all entities.
func (r *Registry) Entities() []Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entity, len(r.entities))
	copy(out, r.entities)
	return out
}

// Displayable returns entities flagged for UI display.
func (r *Registry) Displayable() []Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Entity
	for _, e := range r.entities {
		if e.DisplayInUI {
			out = append(out, e)
		}
	}
	return out
}

// Get returns the entity with the given id.
func (r *Registry) Get(id string) (Entity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entities {
		if e.ID == id {
			return e, true
		}
	}
	return Entity{}, false
}

// Bump performs a targeted bump of one entity, rewriting every file ref.
func (r *Registry) Bump(entityID, bumpType string) (*BumpResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := -1
	for i := range r.entities {
		if r.entities[i].ID == entityID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, errors.Newf("unknown version entity %q", entityID)
	}

	e := &r.entities[idx]
	next, err := nextVersion(e.CurrentVersion, bumpType)
	if err != nil {
		return nil, err
	}

	if err := rewriteFiles(e.Files, next); err != nil {
		return nil, errors.Wrapf(err, "bump of %s", entityID)
	}

	result := &BumpResult{
		Entity:     entityID,
		OldVersion: e.CurrentVersion,
		NewVersion: next,
		Affected:   []string{entityID},
	}
	e.CurrentVersion = next
	return result, nil
}

// BumpAll performs a global bump across every linked entity. The reported
// old/new versions are taken from the first linked entity; all linked
// entities end on their own incremented version.
func (r *Registry) BumpAll(bumpType string) (*BumpResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := &BumpResult{Entity: "global"}
	for i := range r.entities {
		e := &r.entities[i]
		if e.UpdateStrategy != StrategyLinked {
			continue
		}

		next, err := nextVersion(e.CurrentVersion, bumpType)
		if err != nil {
			return nil, errors.Wrapf(err, "entity %s", e.ID)
		}
		if err := rewriteFiles(e.Files, next); err != nil {
			return nil, errors.Wrapf(err, "bump of %s", e.ID)
		}

		if result.OldVersion == "" {
			result.OldVersion = e.CurrentVersion
			result.NewVersion = next
		}
		e.CurrentVersion = next
		result.Affected = append(result.Affected, e.ID)
	}

	if len(result.Affected) == 0 {
		return nil, errors.New("no linked entities in registry")
	}
	return result, nil
}

func nextVersion(current, bumpType string) (string, error) {
	v, err := semver.NewVersion(current)
	if err != nil {
		return "", errors.Wrapf(err, "current version %q is not semver", current)
	}

	var next semver.Version
	switch bumpType {
	case BumpMajor:
		next = v.IncMajor()
	case BumpMinor:
		next = v.IncMinor()
	case BumpPatch:
		next = v.IncPatch()
	default:
		return "", errors.Newf("unknown bump type %q", bumpType)
	}
	return next.String(), nil
}

// extractVersion pulls the current version out of the first file ref.
func extractVersion(files []FileRef) (string, error) {
	if len(files) == 0 {
		return "", errors.New("entity has no file refs")
	}
	ref := files[0]

	re, err := regexp.Compile(ref.Pattern)
	if err != nil {
		return "", errors.Wrapf(err, "bad version pattern %q", ref.Pattern)
	}
	if re.NumSubexp() != 1 {
		return "", errors.Newf("pattern %q must have exactly one capture group", ref.Pattern)
	}

	data, err := os.ReadFile(ref.Path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to read %s", ref.Path)
	}

	m := re.FindSubmatch(data)
	if m == nil {
		return "", errors.Newf("no version match in %s", ref.Path)
	}
	return string(m[1]), nil
}

// rewriteFiles replaces the captured version in every file ref with next.
func rewriteFiles(files []FileRef, next string) error {
	for _, ref := range files {
		re, err := regexp.Compile(ref.Pattern)
		if err != nil {
			return errors.Wrapf(err, "bad version pattern %q", ref.Pattern)
		}

		data, err := os.ReadFile(ref.Path)
		if err != nil {
			return errors.Wrapf(err, "failed to read %s", ref.Path)
		}

		loc := re.FindSubmatchIndex(data)
		if loc == nil {
			return errors.Newf("no version match in %s", ref.Path)
		}
		// loc[2]:loc[3] is the capture group span
		out := make([]byte, 0, len(data)+len(next))
		out = append(out, data[:loc[2]]...)
		out = append(out, next...)
		out = append(out, data[loc[3]:]...)

		if err := os.WriteFile(ref.Path, out, 0o644); err != nil {
			return errors.Wrapf(err, "failed to write %s", ref.Path)
		}
	}
	return nil
}
