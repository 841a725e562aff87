package voice

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// File and directory permissions.
const (
	filePermissions = 0o600
	dirPermissions  = 0o750
)

const (
	extTOML = ".toml"
	extYAML = ".yaml"
	extYML  = ".yml"
)

// ErrUnsupportedProfileFormat is returned for profile files that are neither
// TOML nor YAML.
var ErrUnsupportedProfileFormat = errors.New("unsupported profile file format")

// ListProfileFiles returns the profile files in dir, sorted by name. A missing
// directory yields no files and no error.
func ListProfileFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var files []string

	for _, entry := range entries {
		if entry.IsDir() || !isProfileFile(entry.Name()) {
			continue
		}

		files = append(files, filepath.Join(dir, entry.Name()))
	}

	sort.Strings(files)

	return files, nil
}

// IDFromPath derives a voice id from a profile file name.
func IDFromPath(path string) string {
	base := filepath.Base(path)

	return strings.TrimSuffix(base, filepath.Ext(base))
}

// LoadProfileFile parses a TOML or YAML profile file.
func LoadProfileFile(path string) (Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read profile file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case extTOML:
		err = toml.Unmarshal(data, &cfg)
	case extYAML, extYML:
		err = yaml.Unmarshal(data, &cfg)
	default:
		return cfg, fmt.Errorf("%w: %s", ErrUnsupportedProfileFormat, path)
	}

	if err != nil {
		return cfg, fmt.Errorf("failed to parse profile file: %w", err)
	}

	return cfg, nil
}

// WriteProfileFile writes cfg as <dir>/<id>.toml so that the voice survives a
// restart. The file is written to a sibling temp file and renamed into place.
func WriteProfileFile(dir, id string, cfg Config) (string, error) {
	err := ValidateID(id)
	if err != nil {
		return "", err
	}

	data, err := toml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to encode profile: %w", err)
	}

	err = os.MkdirAll(dir, dirPermissions)
	if err != nil {
		return "", fmt.Errorf("failed to create voice config directory: %w", err)
	}

	path := filepath.Join(dir, id+extTOML)
	tmpPath := path + ".tmp"

	err = os.WriteFile(tmpPath, data, filePermissions)
	if err != nil {
		return "", fmt.Errorf("failed to write profile: %w", err)
	}

	err = os.Rename(tmpPath, path)
	if err != nil {
		_ = os.Remove(tmpPath)

		return "", fmt.Errorf("failed to install profile: %w", err)
	}

	return path, nil
}

func isProfileFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case extTOML, extYAML, extYML:
		return true
	default:
		return false
	}
}
