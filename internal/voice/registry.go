package voice

import (
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/book-expert/logger"

	"github.com/Reality-Reimagined/voiceai/internal/core"
)

// Registry maps voice ids to profiles.
//
// Reads go through an atomically published, never-mutated map, so Resolve
// takes no lock. Writers serialise on mu, copy the map, and publish the copy.
type Registry struct {
	mu       sync.Mutex
	profiles atomic.Pointer[map[string]*Profile]
	defaults Config
	log      *logger.Logger
}

// Initialize builds a registry holding the default profile and every valid
// profile file found in dir. Only a broken default configuration is an error;
// unreadable or malformed profile files are logged and skipped.
func Initialize(defaultCfg Config, dir string, log *logger.Logger) (*Registry, error) {
	registry, err := NewRegistry(defaultCfg, log)
	if err != nil {
		return nil, err
	}

	loaded := registry.LoadDir(dir)
	log.Info("Voice registry initialized with %d profile(s) from %s", loaded, dir)

	return registry, nil
}

// NewRegistry creates a registry containing only the default profile.
func NewRegistry(defaultCfg Config, log *logger.Logger) (*Registry, error) {
	err := defaultCfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("failed to build default voice profile: %w", err)
	}

	defaultProfile, err := newProfile(DefaultID, defaultCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build default voice profile: %w", err)
	}

	registry := &Registry{defaults: defaultCfg.clone(), log: log}
	initial := map[string]*Profile{DefaultID: defaultProfile}
	registry.profiles.Store(&initial)

	return registry, nil
}

// LoadDir inserts every valid profile file in dir and returns how many were
// loaded. A missing directory loads nothing.
func (r *Registry) LoadDir(dir string) int {
	files, err := ListProfileFiles(dir)
	if err != nil {
		r.log.Warn("Failed to scan voice config directory '%s': %v", dir, err)

		return 0
	}

	loaded := make(map[string]*Profile, len(files))

	for _, path := range files {
		id := IDFromPath(path)

		idErr := ValidateID(id)
		if idErr != nil {
			r.log.Warn("Skipping voice config '%s': %v", path, idErr)

			continue
		}

		cfg, loadErr := LoadProfileFile(path)
		if loadErr != nil {
			r.log.Warn("Skipping voice config '%s': %v", path, loadErr)

			continue
		}

		profile, profileErr := newProfile(id, r.withDefaults(cfg))
		if profileErr != nil {
			r.log.Warn("Skipping voice config '%s': %v", path, profileErr)

			continue
		}

		loaded[id] = profile
	}

	if len(loaded) == 0 {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	next := maps.Clone(*r.profiles.Load())
	maps.Copy(next, loaded)
	r.profiles.Store(&next)

	return len(loaded)
}

// Register stores a new profile under id, replacing any existing profile with
// the same id. The old configuration is discarded, not merged. cfg is stored
// as given; only an empty id is rejected.
func (r *Registry) Register(id string, cfg Config) (*Profile, error) {
	profile, err := newProfile(id, cfg)
	if err != nil {
		return nil, core.E(core.ErrValidation, "register voice", id, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	next := maps.Clone(*r.profiles.Load())
	next[id] = profile
	r.profiles.Store(&next)

	return profile, nil
}

// Resolve returns the profile registered under id, or the default profile when
// id is empty or unknown.
func (r *Registry) Resolve(id string) *Profile {
	profiles := *r.profiles.Load()

	if id != "" {
		profile, ok := profiles[id]
		if ok {
			return profile
		}
	}

	return profiles[DefaultID]
}

// Lookup returns the profile registered under id without falling back.
func (r *Registry) Lookup(id string) (*Profile, bool) {
	profile, ok := (*r.profiles.Load())[id]

	return profile, ok
}

// List returns all profiles sorted by id.
func (r *Registry) List() []*Profile {
	profiles := *r.profiles.Load()
	ids := slices.Sorted(maps.Keys(profiles))

	out := make([]*Profile, 0, len(ids))
	for _, id := range ids {
		out = append(out, profiles[id])
	}

	return out
}

// Defaults returns the configuration the default profile was built from.
func (r *Registry) Defaults() Config {
	return r.defaults.clone()
}

// withDefaults fills the model and language of a file-loaded config from the
// default voice when the file leaves them out.
func (r *Registry) withDefaults(cfg Config) Config {
	if cfg.Model == "" {
		cfg.Model = r.defaults.Model
	}

	if cfg.Language == "" {
		cfg.Language = r.defaults.Language
	}

	return cfg
}
