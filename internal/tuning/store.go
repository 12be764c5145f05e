// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package tuning persists the controller tuning as a YAML profile so gains
// set over the link survive a restart.
package tuning

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/relabs-tech/diffdrive/internal/control"
)

// ErrNotFound is returned by Load when no profile has been saved yet.
var ErrNotFound = errors.New("tuning profile not found")

// Profile is the on-disk document.
type Profile struct {
	SavedAt time.Time      `yaml:"saved_at"`
	Robot   string         `yaml:"robot,omitempty"`
	Tuning  control.Tuning `yaml:"tuning"`
}

// Store reads and writes one profile file.
type Store struct {
	path  string
	robot string
}

// NewStore returns a store for path. robot is recorded in saved profiles.
func NewStore(path, robot string) *Store {
	return &Store{path: path, robot: robot}
}

// Path returns the profile file path.
func (s *Store) Path() string { return s.path }

// Load reads the saved tuning. Missing fields keep their defaults.
func (s *Store) Load() (control.Tuning, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return control.Tuning{}, fmt.Errorf("%s: %w", s.path, ErrNotFound)
		}
		return control.Tuning{}, fmt.Errorf("read tuning file: %w", err)
	}

	p := Profile{Tuning: control.DefaultTuning()}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return control.Tuning{}, fmt.Errorf("unmarshal tuning yaml: %w", err)
	}
	if err := p.Tuning.Validate(); err != nil {
		return control.Tuning{}, fmt.Errorf("tuning file %s: %w", s.path, err)
	}
	return p.Tuning, nil
}

// Save writes t, replacing the previous profile atomically.
func (s *Store) Save(t control.Tuning) error {
	if err := t.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(Profile{SavedAt: time.Now().UTC(), Robot: s.robot, Tuning: t})
	if err != nil {
		return fmt.Errorf("marshal tuning yaml: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create tuning dir: %w", err)
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write tuning file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace tuning file: %w", err)
	}
	return nil
}

// LoadOrDefault returns the saved tuning, or def when none was saved.
// Other errors are returned with def.
func (s *Store) LoadOrDefault(def control.Tuning) (control.Tuning, error) {
	t, err := s.Load()
	if errors.Is(err, ErrNotFound) {
		return def, nil
	}
	if err != nil {
		return def, err
	}
	return t, nil
}
