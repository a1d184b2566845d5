// Package settings persists the operator's Google credentials and the child
// profile in a TOML file and watches that file for edits.
package settings

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/teemow/memorylane/internal/config"
)

const (
	appDirName   = "memorylane"
	fileName     = "settings.toml"
	birthdayForm = "2006-01-02"
)

// ChildProfile describes the child the journal is about.
type ChildProfile struct {
	Name string `toml:"name,omitempty" json:"name,omitempty"`

	// Birthday is stored as YYYY-MM-DD.
	Birthday string `toml:"birthday,omitempty" json:"birthday,omitempty"`
}

// BirthdayTime parses Birthday. The zero time is returned when it is unset.
func (p ChildProfile) BirthdayTime() (time.Time, error) {
	if p.Birthday == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(birthdayForm, p.Birthday)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid birthday %q: %w", p.Birthday, err)
	}
	return t, nil
}

// Settings is the on-disk document.
type Settings struct {
	Google config.Config `toml:"google" json:"google"`
	Child  ChildProfile  `toml:"child" json:"child"`
}

// DefaultPath returns $XDG_CONFIG_HOME/memorylane/settings.toml, falling back
// to the platform config directory.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get config directory: %w", err)
	}
	return filepath.Join(dir, appDirName, fileName), nil
}

// Load reads the settings file at path. A missing file yields zero Settings
// and no error.
func Load(path string) (Settings, error) {
	var s Settings

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return s, fmt.Errorf("failed to read settings: %w", err)
	}

	if err := toml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("failed to parse settings %s: %w", path, err)
	}
	s.Google = s.Google.Normalize()
	return s, nil
}

// Save writes s to path with owner-only permissions, creating the parent
// directory if needed.
func Save(path string, s Settings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	data, err := toml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	// Write to a sibling file and rename so watchers never see a partial file.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace settings: %w", err)
	}
	return nil
}
