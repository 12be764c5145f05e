// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package telemetry holds the values the robot reports about itself and
// their line encodings on the command link.
package telemetry

import (
	"math"
	"strconv"
	"time"
)

// Frame is emitted on every estimator tick.
type Frame struct {
	Time       time.Time `json:"time"`
	WheelOmega float64   `json:"wheel_omega"` // rad/s from odometry
	IMUOmega   float64   `json:"imu_omega"`   // rad/s from the gyro window
	FusedOmega float64   `json:"fused_omega"` // rad/s Kalman estimate
	FusedSpeed float64   `json:"fused_speed"` // m/s Kalman estimate
	LeftPWM    int16     `json:"left_pwm"`
	RightPWM   int16     `json:"right_pwm"`
	LeftCount  uint32    `json:"left_count"`
	RightCount uint32    `json:"right_count"`
}

// Lines renders the frame as the e/i/k/p/c link messages.
func (f Frame) Lines() []string {
	return []string{
		"e" + strconv.FormatFloat(f.WheelOmega, 'f', 6, 64),
		"i" + strconv.FormatFloat(f.IMUOmega, 'f', 6, 64),
		"k" + strconv.FormatFloat(f.FusedOmega, 'f', 6, 64),
		"p" + strconv.Itoa(int(f.LeftPWM)) + "," + strconv.Itoa(int(f.RightPWM)),
		"c" + strconv.FormatUint(uint64(f.LeftCount), 10) + "," + strconv.FormatUint(uint64(f.RightCount), 10),
	}
}

// Battery is emitted once a second.
type Battery struct {
	Time    time.Time `json:"time"`
	Percent int       `json:"percent"`
	Voltage float64   `json:"voltage"`
}

// Line renders the battery report as a v link message.
func (b Battery) Line() string {
	return "v" + strconv.Itoa(b.Percent) + "," + strconv.FormatFloat(b.Voltage, 'f', 2, 64)
}

// Divider window of the battery sense input, volts.
const (
	BatteryEmpty = 2.77
	BatteryFull  = 3.23
)

// BatteryPercent maps a divider voltage onto 0..100 inside the
// BatteryEmpty..BatteryFull window, clamping outside it.
func BatteryPercent(v float64) int {
	cv := int(math.Round(v * 100))
	lo, hi := int(math.Round(BatteryEmpty*100)), int(math.Round(BatteryFull*100))
	if cv < lo {
		cv = lo
	}
	if cv > hi {
		cv = hi
	}
	return (cv - lo) * 100 / (hi - lo)
}

// Sink receives telemetry from the front-end.
type Sink interface {
	Frame(Frame)
	Battery(Battery)
}

// Fanout delivers telemetry to several sinks in order.
type Fanout []Sink

func (f Fanout) Frame(fr Frame) {
	for _, s := range f {
		s.Frame(fr)
	}
}

func (f Fanout) Battery(b Battery) {
	for _, s := range f {
		s.Battery(b)
	}
}

// Throttled forwards at most one frame per Interval, using the frame time.
// Battery reports always pass.
type Throttled struct {
	Sink     Sink
	Interval time.Duration
	last     time.Time
}

func (t *Throttled) Frame(fr Frame) {
	if !t.last.IsZero() && fr.Time.Sub(t.last) < t.Interval {
		return
	}
	t.last = fr.Time
	t.Sink.Frame(fr)
}

func (t *Throttled) Battery(b Battery) { t.Sink.Battery(b) }
