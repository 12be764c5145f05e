// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package control closes the heading loop of a differential-drive robot:
// it integrates heading from the yaw rate, integrates a target heading from
// the commanded turn rate, runs a PD law on the difference, ramps the linear
// velocity and shapes the result into a PWM pair.
package control

import (
	"log"
	"math"
	"time"
)

// YawSource supplies the filtered yaw rate in the raw gyro axis sign.
// Reading it consumes the current window.
type YawSource interface {
	FilteredYawRate() float64
}

// YawFunc adapts a function to YawSource.
type YawFunc func() float64

func (f YawFunc) FilteredYawRate() float64 { return f() }

// InputScale is the full-scale value of the command link.
const InputScale = 255

// Params holds the fixed timing and thresholds of the controller.
type Params struct {
	UpdateInterval   time.Duration
	AccelerationRate float64 // normalized units per second
	DecelerationRate float64
	SoftBound        float64 // rad, error is clamped here
	HardBound        float64 // rad, controller resets past this
	SettleThreshold  float64 // rad, NoControl -> NoControlAdjusted
	Negligible       float64 // normalized command considered zero
	AttenuationFloor float64 // linear target above which turns are attenuated
}

// DefaultParams returns the canonical timing and thresholds.
func DefaultParams() Params {
	return Params{
		UpdateInterval:   100 * time.Millisecond,
		AccelerationRate: 0.5,
		DecelerationRate: 0.9,
		SoftBound:        2.0,
		HardBound:        3.0,
		SettleThreshold:  0.1,
		Negligible:       0.001,
		AttenuationFloor: 0.01,
	}
}

// Command is the normalized operator command.
type Command struct {
	Linear  float64 `json:"linear"`
	Angular float64 `json:"angular"`
}

// HeadingState is the integrated heading loop state in radians.
type HeadingState struct {
	Heading       float64 `json:"heading"`
	TargetHeading float64 `json:"target_heading"`
	LastError     float64 `json:"last_error"`
}

// Controller is the heading/velocity controller. It is driven by Update
// from a single goroutine and never blocks.
type Controller struct {
	params Params
	tuning Tuning
	yaw    YawSource

	cmd        Command
	state      HeadingState
	ramped     float64
	adjustment float64
	mode       Mode
	dt         float64
	lastTick   time.Time
	resets     int

	onFault func()
}

// New returns a controller reading yaw from y.
func New(p Params, t Tuning, y YawSource) *Controller {
	d := DefaultParams()
	if p.UpdateInterval <= 0 {
		p.UpdateInterval = d.UpdateInterval
	}
	if p.AccelerationRate <= 0 {
		p.AccelerationRate = d.AccelerationRate
	}
	if p.DecelerationRate <= 0 {
		p.DecelerationRate = d.DecelerationRate
	}
	if p.SoftBound <= 0 {
		p.SoftBound = d.SoftBound
	}
	if p.HardBound <= 0 {
		p.HardBound = d.HardBound
	}
	if p.SettleThreshold <= 0 {
		p.SettleThreshold = d.SettleThreshold
	}
	if p.Negligible <= 0 {
		p.Negligible = d.Negligible
	}
	if p.AttenuationFloor <= 0 {
		p.AttenuationFloor = d.AttenuationFloor
	}
	return &Controller{
		params: p,
		tuning: t,
		yaw:    y,
		dt:     p.UpdateInterval.Seconds(),
	}
}

// OnFault registers a hook run after a hard-bound reset, typically the
// estimator reset.
func (c *Controller) OnFault(f func()) { c.onFault = f }

// Begin resets the controller and starts the tick clock at now.
func (c *Controller) Begin(now time.Time) {
	c.Reset()
	c.lastTick = now
}

// Update runs one control tick if the update interval has elapsed since the
// last one and reports whether it did.
func (c *Controller) Update(now time.Time) bool {
	if c.lastTick.IsZero() {
		c.Begin(now)
		return false
	}
	elapsed := now.Sub(c.lastTick)
	if elapsed >= 0 && elapsed < c.params.UpdateInterval {
		return false
	}
	c.lastTick = now

	c.dt = elapsed.Seconds()
	if c.dt <= 0 {
		c.dt = c.params.UpdateInterval.Seconds()
	}

	omega := -c.yaw.FilteredYawRate()
	c.state.Heading += omega * c.dt

	c.ramped = Ramp(c.ramped, c.cmd.Linear, c.params.AccelerationRate, c.params.DecelerationRate, c.dt)

	c.updateMode()

	if c.mode == ModeNoControlAdjusted {
		c.state.TargetHeading = c.state.Heading
	} else {
		c.state.TargetHeading += c.cmd.Angular * c.dt
	}

	e := c.state.TargetHeading - c.state.Heading
	if math.Abs(e) > c.params.HardBound {
		log.Printf("controller: heading error %.2f rad past hard bound, resetting", e)
		c.Reset()
		c.resets++
		if c.onFault != nil {
			c.onFault()
		}
		return true
	}
	if math.Abs(e) > c.params.SoftBound {
		e = math.Copysign(c.params.SoftBound, e)
	}

	c.adjustment = c.tuning.Kp*e + c.tuning.Kd*(e-c.state.LastError)/c.dt
	c.state.LastError = e
	return true
}

// updateMode applies at most one transition of the idle state machine.
func (c *Controller) updateMode() {
	idle := math.Abs(c.cmd.Angular) < c.params.Negligible && math.Abs(c.cmd.Linear) < c.params.Negligible

	switch c.mode {
	case ModeNormal:
		if idle {
			c.state.Heading = c.state.TargetHeading
			c.state.LastError = 0
			c.setMode(ModeNoControl)
		}
	case ModeNoControl:
		if !idle {
			c.setMode(ModeNormal)
		} else if math.Abs(c.state.TargetHeading-c.state.Heading) < c.params.SettleThreshold {
			c.state.TargetHeading = c.state.Heading
			c.setMode(ModeNoControlAdjusted)
		}
	case ModeNoControlAdjusted:
		if !idle {
			c.setMode(ModeNormal)
		}
	}
}

func (c *Controller) setMode(m Mode) {
	if m != c.mode {
		log.Printf("controller: mode %s -> %s", c.mode, m)
	}
	c.mode = m
}

// Ramp moves current toward target without overshoot. Growing in
// magnitude on the same side of zero uses accel; every other move uses
// decel.
func Ramp(current, target, accel, decel, dt float64) float64 {
	if current == target {
		return current
	}
	speedingUp := false
	if (current >= 0 && target >= 0) || (current <= 0 && target <= 0) {
		speedingUp = math.Abs(target) > math.Abs(current)
	}
	rate := decel
	if speedingUp {
		rate = accel
	}
	step := rate * dt
	if target > current {
		return math.Min(current+step, target)
	}
	return math.Max(current-step, target)
}

// Reset zeroes the heading state, the command and the ramp, and returns to
// ModeNormal.
func (c *Controller) Reset() {
	c.cmd = Command{}
	c.state = HeadingState{}
	c.ramped = 0
	c.adjustment = 0
	c.mode = ModeNormal
	c.dt = c.params.UpdateInterval.Seconds()
}

// SetTargetLinear stores a linear target given on the ±255 link scale.
func (c *Controller) SetTargetLinear(v float64) {
	c.cmd.Linear = v / InputScale
}

// SetTargetAngular stores an angular target given on the ±255 link scale.
// When both targets are significant the turn rate is attenuated by the
// forward speed, and mirrored when reversing so the robot steers like a car.
func (c *Controller) SetTargetAngular(v float64) {
	a := v / InputScale
	lin := c.cmd.Linear
	if math.Abs(lin) > c.params.AttenuationFloor && math.Abs(a) > c.params.Negligible {
		a *= 1 - math.Abs(lin)
		if lin < 0 {
			a = -a
		}
	}
	c.cmd.Angular = a
}

// SetCommand sets linear then angular, so attenuation sees the new linear
// target.
func (c *Controller) SetCommand(linear, angular float64) {
	c.SetTargetLinear(linear)
	c.SetTargetAngular(angular)
}

// PWM shapes the current state into a PWM pair.
func (c *Controller) PWM() PWMCommand {
	return Shape(c.mode, c.adjustment, c.ramped, c.tuning)
}

// Tuning returns the active tuning.
func (c *Controller) Tuning() Tuning { return c.tuning }

// SetTuning replaces the tuning.
func (c *Controller) SetTuning(t Tuning) { c.tuning = t }

// Command returns the normalized targets.
func (c *Controller) Command() Command { return c.cmd }

// State returns the heading loop state.
func (c *Controller) State() HeadingState { return c.state }

// Mode returns the idle state machine mode.
func (c *Controller) Mode() Mode { return c.mode }

// RampedLinear returns the normalized ramped linear velocity.
func (c *Controller) RampedLinear() float64 { return c.ramped }

// HeadingAdjustment returns the last PD output.
func (c *Controller) HeadingAdjustment() float64 { return c.adjustment }

// Dt returns the step used by the last tick in seconds.
func (c *Controller) Dt() float64 { return c.dt }

// Resets returns how many hard-bound resets have happened.
func (c *Controller) Resets() int { return c.resets }
