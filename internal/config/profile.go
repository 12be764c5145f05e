// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

// Robot variants.
const (
	RobotDIY      = "DIY"
	RobotDIYESP32 = "DIY_ESP32"
)

// Heading sources for the controller.
const (
	HeadingSourceGyro  = "gyro"
	HeadingSourceFused = "fused"
)

// Pins names the GPIO lines of a variant, as known to periph's gpioreg.
type Pins struct {
	PWMLeft        string
	PWMRight       string
	DirectionLeft  string
	DirectionRight string
	StopLeft       string
	StopRight      string
	HallLeft       string
	HallRight      string
}

// RobotProfile is the fixed description of a robot variant.
type RobotProfile struct {
	Type       string
	TypeString string // reported by the feature command
	Bluetooth  bool
	StatusLEDs bool
	Pins       Pins
}

var profiles = map[string]RobotProfile{
	RobotDIY: {
		Type:       RobotDIY,
		TypeString: "Arduino",
		Pins: Pins{
			PWMLeft: "GPIO9", PWMRight: "GPIO10",
			DirectionLeft: "GPIO11", DirectionRight: "GPIO12",
			StopLeft: "GPIO5", StopRight: "GPIO21",
			HallLeft: "GPIO0", HallRight: "GPIO1",
		},
	},
	RobotDIYESP32: {
		Type:       RobotDIYESP32,
		TypeString: "ESP32",
		Bluetooth:  true,
		Pins: Pins{
			PWMLeft: "GPIO6", PWMRight: "GPIO7",
			DirectionLeft: "GPIO10", DirectionRight: "GPIO20",
			StopLeft: "GPIO5", StopRight: "GPIO21",
			HallLeft: "GPIO0", HallRight: "GPIO1",
		},
	},
}

// ProfileFor returns the profile of a robot type, falling back to DIY.
func ProfileFor(robotType string) RobotProfile {
	if p, ok := profiles[robotType]; ok {
		return p
	}
	return profiles[RobotDIY]
}

// Profile returns the profile of the configured robot type with the
// configured pins.
func (c *Config) Profile() RobotProfile {
	p := ProfileFor(c.RobotType)
	p.Pins = c.Pins
	return p
}
