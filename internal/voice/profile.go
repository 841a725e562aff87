// Package voice maintains the registry of named voice profiles.
//
// A profile maps a voice id to the synthesis configuration used for it. The
// registry is populated at startup from a directory of profile files and
// grows when callers register cloned voices. Profiles are immutable; a
// re-registration replaces the entry rather than mutating it.
package voice

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
)

// DefaultID is the id of the profile that always exists.
const DefaultID = "default"

var (
	// ErrEmptyID is returned when a profile id is empty.
	ErrEmptyID = errors.New("voice id cannot be empty")
	// ErrInvalidID is returned when a voice name cannot be used as a file stem.
	ErrInvalidID = errors.New("voice id must match [A-Za-z0-9_-]{1,64}")
	// ErrModelEmpty is returned when a profile configuration names no model.
	ErrModelEmpty = errors.New("model cannot be empty")
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Config is the synthesis configuration of a voice. The field names mirror the
// keys of the on-disk profile files.
type Config struct {
	Model         string   `toml:"model"                 yaml:"model"                 json:"model"`
	RefAudio      string   `toml:"ref_audio"             yaml:"ref_audio"             json:"ref_audio,omitempty"`
	RefText       string   `toml:"ref_text"              yaml:"ref_text"              json:"ref_text,omitempty"`
	StyleTags     []string `toml:"style_tags,omitempty"  yaml:"style_tags,omitempty"  json:"style_tags,omitempty"`
	Language      string   `toml:"language"              yaml:"language"              json:"language"`
	RemoveSilence bool     `toml:"remove_silence"        yaml:"remove_silence"        json:"remove_silence"`
	OutputDir     string   `toml:"output_dir,omitempty"  yaml:"output_dir,omitempty"  json:"output_dir,omitempty"`

	Name        string `toml:"name,omitempty"        yaml:"name,omitempty"        json:"name,omitempty"`
	Gender      string `toml:"gender,omitempty"      yaml:"gender,omitempty"      json:"gender,omitempty"`
	Accent      string `toml:"accent,omitempty"      yaml:"accent,omitempty"      json:"accent,omitempty"`
	Description string `toml:"description,omitempty" yaml:"description,omitempty" json:"description,omitempty"`
}

// Validate checks the fields a synthesis engine cannot do without.
func (c Config) Validate() error {
	if c.Model == "" {
		return ErrModelEmpty
	}

	return nil
}

// clone returns a deep copy so that a stored profile never aliases caller memory.
func (c Config) clone() Config {
	c.StyleTags = slices.Clone(c.StyleTags)

	return c
}

// Profile is an immutable, named voice configuration.
type Profile struct {
	id     string
	config Config
}

func newProfile(id string, cfg Config) (*Profile, error) {
	if id == "" {
		return nil, ErrEmptyID
	}

	return &Profile{id: id, config: cfg.clone()}, nil
}

// ID returns the voice id.
func (p *Profile) ID() string {
	return p.id
}

// Config returns a copy of the profile's configuration.
func (p *Profile) Config() Config {
	return p.config.clone()
}

// ValidateID reports whether id can be used as a profile file stem.
func ValidateID(id string) error {
	if id == "" {
		return ErrEmptyID
	}

	if !idPattern.MatchString(id) {
		return fmt.Errorf("%w: got %q", ErrInvalidID, id)
	}

	return nil
}
