// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package control

import (
	"fmt"
	"math"
)

// Tuning holds the runtime-adjustable gains and shaper constants.
// Ki is carried for the legacy protocol but is not part of the control law.
type Tuning struct {
	Kp             float64 `yaml:"kp" json:"kp"`
	Ki             float64 `yaml:"ki" json:"ki"`
	Kd             float64 `yaml:"kd" json:"kd"`
	NoControlScale float64 `yaml:"no_control_scale" json:"no_control_scale"`
	NormalScale    float64 `yaml:"normal_scale" json:"normal_scale"`
	RotationScale  float64 `yaml:"rotation_scale" json:"rotation_scale"`
	VelocityBias   float64 `yaml:"velocity_bias" json:"velocity_bias"`
	RotationBias   float64 `yaml:"rotation_bias" json:"rotation_bias"`
}

// DefaultTuning returns the empirically tuned defaults.
func DefaultTuning() Tuning {
	return Tuning{
		Kp:             20,
		Ki:             0,
		Kd:             4,
		NoControlScale: 2.0,
		NormalScale:    6.5,
		RotationScale:  6.0,
		VelocityBias:   0.75,
		RotationBias:   0,
	}
}

// Validate rejects NaN and infinite values.
func (t Tuning) Validate() error {
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"kp", t.Kp},
		{"ki", t.Ki},
		{"kd", t.Kd},
		{"no_control_scale", t.NoControlScale},
		{"normal_scale", t.NormalScale},
		{"rotation_scale", t.RotationScale},
		{"velocity_bias", t.VelocityBias},
		{"rotation_bias", t.RotationBias},
	} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return fmt.Errorf("tuning %s is not finite: %v", f.name, f.v)
		}
	}
	return nil
}
