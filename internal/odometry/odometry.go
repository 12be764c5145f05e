// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package odometry turns hall-sensor pulse counts into wheel and robot
// velocities by dead reckoning.
package odometry

import (
	"math"
	"time"
)

// Geometry and cadence defaults for the DIY chassis.
const (
	DefaultPulsesPerRevolution = 30 // 15 magnets, both edges
	DefaultWheelDiameter       = 0.16
	DefaultWheelBase           = 0.43
	DefaultInterval            = 250 * time.Millisecond
	DefaultStaleAfter          = 1000 * time.Millisecond
)

// Params describes the wheel geometry and sampling cadence.
type Params struct {
	PulsesPerRevolution int
	WheelDiameter       float64 // metres
	WheelBase           float64 // metres
	Interval            time.Duration
	StaleAfter          time.Duration
}

// DefaultParams returns the DIY chassis geometry.
func DefaultParams() Params {
	return Params{
		PulsesPerRevolution: DefaultPulsesPerRevolution,
		WheelDiameter:       DefaultWheelDiameter,
		WheelBase:           DefaultWheelBase,
		Interval:            DefaultInterval,
		StaleAfter:          DefaultStaleAfter,
	}
}

// Direction reports the travel direction of each wheel as -1, 0 or +1.
// Hall sensors only count edges, so the sign has to come from the motor
// command side.
type Direction func() (left, right int)

// Odometry samples a PulseSource on a fixed cadence. Between cadence
// boundaries the last computed velocities are returned unchanged.
type Odometry struct {
	src       PulseSource
	params    Params
	direction Direction

	leftVelocity  float64
	rightVelocity float64
	linear        float64
	angular       float64
	lastUpdate    time.Time
}

// New returns an Odometry reading pulses from src.
func New(src PulseSource, p Params) *Odometry {
	if p.PulsesPerRevolution <= 0 {
		p.PulsesPerRevolution = DefaultPulsesPerRevolution
	}
	if p.WheelDiameter <= 0 {
		p.WheelDiameter = DefaultWheelDiameter
	}
	if p.WheelBase <= 0 {
		p.WheelBase = DefaultWheelBase
	}
	if p.Interval <= 0 {
		p.Interval = DefaultInterval
	}
	if p.StaleAfter <= 0 {
		p.StaleAfter = DefaultStaleAfter
	}
	return &Odometry{src: src, params: p}
}

// SetDirection installs the wheel direction hook. A nil hook treats every
// pulse as forward travel.
func (o *Odometry) SetDirection(d Direction) { o.direction = d }

// Update drains the pulse counters if the cadence interval has elapsed and
// reports whether new velocities were computed.
func (o *Odometry) Update(now time.Time) bool {
	if !o.lastUpdate.IsZero() && now.Sub(o.lastUpdate) < o.params.Interval {
		return false
	}
	left, right := o.src.Drain()

	ls, rs := 1, 1
	if o.direction != nil {
		ls, rs = o.direction()
	}
	o.leftVelocity = float64(ls) * o.countsToVelocity(left)
	o.rightVelocity = float64(rs) * o.countsToVelocity(right)
	o.linear = (o.leftVelocity + o.rightVelocity) / 2
	o.angular = (o.rightVelocity - o.leftVelocity) / o.params.WheelBase
	o.lastUpdate = now
	return true
}

func (o *Odometry) countsToVelocity(count uint32) float64 {
	windowsPerMinute := float64(time.Minute) / float64(o.params.Interval)
	rpm := float64(count) / float64(o.params.PulsesPerRevolution) * windowsPerMinute
	return rpm * math.Pi * o.params.WheelDiameter / 60
}

// Valid reports whether the velocities were refreshed recently enough to
// be trusted.
func (o *Odometry) Valid(now time.Time) bool {
	return !o.lastUpdate.IsZero() && now.Sub(o.lastUpdate) < o.params.StaleAfter
}

// Angular returns the robot angular velocity in rad/s.
func (o *Odometry) Angular() float64 { return o.angular }

// Linear returns the robot linear velocity in m/s.
func (o *Odometry) Linear() float64 { return o.linear }

// Wheels returns the per-wheel linear velocities in m/s.
func (o *Odometry) Wheels() (left, right float64) { return o.leftVelocity, o.rightVelocity }

// WheelBase returns the distance between the wheels in metres.
func (o *Odometry) WheelBase() float64 { return o.params.WheelBase }

// LastUpdate returns the time of the last cadence update.
func (o *Odometry) LastUpdate() time.Time { return o.lastUpdate }

// PulsesForVelocity returns how many edges a wheel moving at v m/s produces
// in one cadence interval. Mock pulse sources use it to synthesise motion.
func (p Params) PulsesForVelocity(v float64) float64 {
	revsPerSecond := v / (math.Pi * p.WheelDiameter)
	return revsPerSecond * float64(p.PulsesPerRevolution) * p.Interval.Seconds()
}
