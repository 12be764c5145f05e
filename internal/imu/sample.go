// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import "fmt"

// Sample is one gyro + accelerometer reading in physical units.
type Sample struct {
	Gx float64 `json:"gx"` // rad/s
	Gy float64 `json:"gy"`
	Gz float64 `json:"gz"`

	Ax float64 `json:"ax"` // m/s²
	Ay float64 `json:"ay"`
	Az float64 `json:"az"`
}

// Reader returns the next IMU sample.
type Reader interface {
	ReadSample() (Sample, error)
}

// Axis selects one of the three sensor axes.
type Axis byte

const (
	AxisX Axis = 'x'
	AxisY Axis = 'y'
	AxisZ Axis = 'z'
)

// ParseAxis accepts "x", "y" or "z".
func ParseAxis(s string) (Axis, error) {
	switch s {
	case "x", "X":
		return AxisX, nil
	case "y", "Y":
		return AxisY, nil
	case "z", "Z":
		return AxisZ, nil
	}
	return 0, fmt.Errorf("invalid axis %q", s)
}

func (a Axis) String() string { return string(a) }

// Gyro returns the angular rate on axis a.
func (s Sample) Gyro(a Axis) float64 {
	switch a {
	case AxisX:
		return s.Gx
	case AxisY:
		return s.Gy
	default:
		return s.Gz
	}
}

// Accel returns the acceleration on axis a.
func (s Sample) Accel(a Axis) float64 {
	switch a {
	case AxisX:
		return s.Ax
	case AxisY:
		return s.Ay
	default:
		return s.Az
	}
}
