// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/relabs-tech/diffdrive/internal/imu"
	"github.com/relabs-tech/diffdrive/internal/odometry"
)

// MockChassis simulates the wheels, gyro and battery of a robot driven by
// the PWM it is fed. It lets the full stack run without hardware.
type MockChassis struct {
	mu       sync.Mutex
	pwm      PWMSource
	geom     odometry.Params
	maxSpeed float64 // m/s at PWM 255
	rng      *rand.Rand
	noise    float64 // gyro noise stddev, rad/s
	bias     float64 // gyro Z offset, rad/s
	start    time.Time
	now      func() time.Time

	last           time.Time
	fracL, fracR   float64
	countL, countR uint32
}

// NewMockChassis returns a simulated chassis with the given geometry.
func NewMockChassis(geom odometry.Params) *MockChassis {
	return &MockChassis{
		geom:     geom,
		maxSpeed: 1.0,
		rng:      rand.New(rand.NewPCG(1, 2)),
		noise:    0.002,
		bias:     0.01,
		start:    time.Now(),
		now:      time.Now,
	}
}

// SetPWMSource wires the motor side whose output drives the simulation.
func (m *MockChassis) SetPWMSource(p PWMSource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pwm = p
}

func (m *MockChassis) wheelSpeeds() (vl, vr float64) {
	if m.pwm == nil {
		return 0, 0
	}
	l, r := m.pwm.Current()
	return float64(l) / 255 * m.maxSpeed, float64(r) / 255 * m.maxSpeed
}

// advance accumulates the pulses produced since the last call.
func (m *MockChassis) advance() {
	now := m.now()
	if m.last.IsZero() {
		m.last = now
		return
	}
	dt := now.Sub(m.last).Seconds()
	m.last = now

	vl, vr := m.wheelSpeeds()
	perMetre := float64(m.geom.PulsesPerRevolution) / (math.Pi * m.geom.WheelDiameter)
	m.fracL += math.Abs(vl) * dt * perMetre
	m.fracR += math.Abs(vr) * dt * perMetre

	wl, wr := math.Floor(m.fracL), math.Floor(m.fracR)
	m.countL += uint32(wl)
	m.countR += uint32(wr)
	m.fracL -= wl
	m.fracR -= wr
}

// Drain implements PulseCounter.
func (m *MockChassis) Drain() (left, right uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.advance()
	left, right = m.countL, m.countR
	m.countL, m.countR = 0, 0
	return left, right
}

// Peek implements PulseCounter.
func (m *MockChassis) Peek() (left, right uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.advance()
	return m.countL, m.countR
}

// ReadSample implements imu.Reader. The Z gyro reads the negated robot
// yaw rate, matching the mounting of the real board.
func (m *MockChassis) ReadSample() (imu.Sample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	vl, vr := m.wheelSpeeds()
	omega := (vr - vl) / m.geom.WheelBase
	return imu.Sample{
		Gz: -omega + m.bias + m.rng.NormFloat64()*m.noise,
		Gx: m.rng.NormFloat64() * m.noise,
		Gy: m.rng.NormFloat64() * m.noise,
		Az: standardGravity,
	}, nil
}

// ReadVoltage implements BatterySource with a slow discharge curve.
func (m *MockChassis) ReadVoltage() (float64, error) {
	elapsed := m.now().Sub(m.start).Hours()
	return math.Max(3.2-0.1*elapsed, 2.7), nil
}
