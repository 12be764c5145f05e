// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package control

// Mode is the idle state machine of the controller.
type Mode int

const (
	// ModeNormal tracks the commanded velocities.
	ModeNormal Mode = iota
	// ModeNoControl holds heading while no command is active.
	ModeNoControl
	// ModeNoControlAdjusted follows the measured heading and applies no
	// correction.
	ModeNoControlAdjusted
)

func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeNoControl:
		return "no-control"
	case ModeNoControlAdjusted:
		return "no-control-adjusted"
	}
	return "unknown"
}
