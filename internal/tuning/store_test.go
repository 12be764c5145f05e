// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package tuning

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/diffdrive/internal/control"
)

func TestSaveLoad(t *testing.T) {
	t.Parallel()
	s := NewStore(filepath.Join(t.TempDir(), "profiles", "tuning.yaml"), "ESP32")

	want := control.DefaultTuning()
	want.Kp = 12.5
	want.RotationBias = -3
	require.NoError(t, s.Save(want))

	got, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	raw, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Contains(t, string(raw), "robot: ESP32")
	assert.Contains(t, string(raw), "kp: 12.5")
}

func TestLoadMissing(t *testing.T) {
	t.Parallel()
	s := NewStore(filepath.Join(t.TempDir(), "none.yaml"), "")

	_, err := s.Load()
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := s.LoadOrDefault(control.DefaultTuning())
	require.NoError(t, err)
	assert.Equal(t, control.DefaultTuning(), got)
}

func TestPartialFileKeepsDefaults(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tuning:\n  kd: 7\n"), 0o644))

	got, err := NewStore(path, "").Load()
	require.NoError(t, err)
	want := control.DefaultTuning()
	want.Kd = 7
	assert.Equal(t, want, got)
}

func TestRejectsBadFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	garbled := filepath.Join(dir, "garbled.yaml")
	require.NoError(t, os.WriteFile(garbled, []byte("tuning: [1, 2"), 0o644))
	_, err := NewStore(garbled, "").Load()
	assert.ErrorContains(t, err, "unmarshal")

	inf := filepath.Join(dir, "inf.yaml")
	require.NoError(t, os.WriteFile(inf, []byte("tuning:\n  kp: .inf\n"), 0o644))
	_, err = NewStore(inf, "").Load()
	assert.ErrorContains(t, err, "kp")
}

func TestSaveRejectsNonFinite(t *testing.T) {
	t.Parallel()
	s := NewStore(filepath.Join(t.TempDir(), "tuning.yaml"), "")
	bad := control.DefaultTuning()
	bad.Kp = math.NaN()

	require.Error(t, s.Save(bad))
	_, err := os.Stat(s.Path())
	assert.True(t, os.IsNotExist(err))
}
