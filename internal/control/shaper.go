// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package control

import "math"

const (
	// LinearPWMScale converts the normalized linear velocity into PWM units
	// before heading corrections are mixed in.
	LinearPWMScale = 100
	// MaxPWM is the output clamp.
	MaxPWM = 255

	linearDeadband = 0.01
)

// PWMCommand is a left/right drive pair in [-MaxPWM, MaxPWM].
type PWMCommand struct {
	Left  int16 `json:"left"`
	Right int16 `json:"right"`
}

// Shape mixes the heading adjustment into a PWM pair.
//
// While idle and settled nothing is driven. While idle but unsettled, or
// while driving, the correction is scaled with speed and both wheels are
// kept on the side of the range matching the commanded direction. With no
// linear velocity the robot spins in place.
func Shape(mode Mode, adjustment, normalizedLinear float64, t Tuning) PWMCommand {
	scaledLinear := normalizedLinear * LinearPWMScale

	switch {
	case mode == ModeNoControlAdjusted:
		return PWMCommand{}

	case mode == ModeNoControl || math.Abs(scaledLinear) > linearDeadband:
		factor := t.NormalScale
		if mode == ModeNoControl {
			factor = t.NoControlScale
		}
		adj := adjustment * factor * (math.Abs(normalizedLinear) + t.VelocityBias)
		left := truncate(scaledLinear - adj)
		right := truncate(scaledLinear + adj)
		lo, hi := -MaxPWM, 0
		if scaledLinear > 0 {
			lo, hi = 0, MaxPWM
		}
		return PWMCommand{Left: clamp(left, lo, hi), Right: clamp(right, lo, hi)}

	default:
		left := truncate(-t.RotationScale*adjustment + t.RotationBias)
		right := truncate(t.RotationScale*adjustment + t.RotationBias)
		return PWMCommand{Left: clamp(left, -MaxPWM, MaxPWM), Right: clamp(right, -MaxPWM, MaxPWM)}
	}
}

// truncate rounds toward zero and saturates so huge gains cannot wrap.
func truncate(v float64) int {
	switch {
	case math.IsNaN(v):
		return 0
	case v > math.MaxInt32:
		return math.MaxInt32
	case v < math.MinInt32:
		return math.MinInt32
	}
	return int(v)
}

func clamp(v, lo, hi int) int16 {
	if v < lo {
		return int16(lo)
	}
	if v > hi {
		return int16(hi)
	}
	return int16(v)
}
