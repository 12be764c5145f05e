// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/diffdrive/internal/imu"
	"github.com/relabs-tech/diffdrive/internal/telemetry"
)

type fakePulses struct {
	l, r   uint32
	drains int
}

func (f *fakePulses) Drain() (uint32, uint32) {
	f.drains++
	return f.l, f.r
}

func (f *fakePulses) Peek() (uint32, uint32) { return f.l, f.r }

type fakeGyro struct {
	s   imu.Sample
	err error
}

func (f *fakeGyro) ReadSample() (imu.Sample, error) { return f.s, f.err }

type fakePWM struct{ l, r int16 }

func (f *fakePWM) Current() (int16, int16) { return f.l, f.r }

type fakeBattery struct {
	v   float64
	err error
}

func (f *fakeBattery) ReadVoltage() (float64, error) { return f.v, f.err }

type recordingSink struct {
	frames    []telemetry.Frame
	batteries []telemetry.Battery
}

func (r *recordingSink) Frame(f telemetry.Frame)     { r.frames = append(r.frames, f) }
func (r *recordingSink) Battery(b telemetry.Battery) { r.batteries = append(r.batteries, b) }

// wheelVelocity is the speed of a wheel producing n edges per window with
// the default geometry.
func wheelVelocity(n float64) float64 {
	return n / 30 * 240 * math.Pi * 0.16 / 60
}

func TestFusedAngularBetweenSources(t *testing.T) {
	t.Parallel()

	p := DefaultParams()
	// Right wheel only, sized so the wheel-derived omega is exactly 0.5 rad/s.
	p.Odometry.WheelBase = wheelVelocity(6) / 0.5
	pulses := &fakePulses{r: 6}
	gyro := &fakeGyro{s: imu.Sample{Gz: -0.4}}

	f := NewFrontEnd(p, pulses, gyro)
	f.SetPWMSource(&fakePWM{})

	t0 := time.Unix(1000, 0)
	for i := 0; i < 30; i++ {
		now := t0.Add(time.Duration(i) * 10 * time.Millisecond)
		f.SampleGyro(now)
		require.True(t, f.UpdateEstimator(now))
	}

	fr := f.LastFrame()
	assert.InDelta(t, 0.5, fr.WheelOmega, 1e-9)
	assert.InDelta(t, 0.4, fr.IMUOmega, 1e-9)

	got := f.Fused(t0.Add(295 * time.Millisecond)).Angular
	assert.Greater(t, got, 0.4)
	assert.Less(t, got, 0.5)
}

func TestEstimatorGate(t *testing.T) {
	t.Parallel()
	pulses := &fakePulses{}
	f := NewFrontEnd(DefaultParams(), pulses, nil)
	t0 := time.Unix(1000, 0)

	assert.True(t, f.UpdateEstimator(t0))
	assert.False(t, f.UpdateEstimator(t0.Add(9*time.Millisecond)))
	assert.True(t, f.UpdateEstimator(t0.Add(10*time.Millisecond)))

	// Odometry keeps its own 250 ms cadence.
	assert.Equal(t, 1, pulses.drains)
}

func TestGyroBiasAndWindow(t *testing.T) {
	t.Parallel()
	gyro := &fakeGyro{s: imu.Sample{Gz: 0.31}}
	f := NewFrontEnd(DefaultParams(), &fakePulses{}, gyro)
	f.SetBias(imu.Bias{Gz: 0.01})
	t0 := time.Unix(1000, 0)

	f.SampleGyro(t0)
	f.SampleGyro(t0.Add(5 * time.Millisecond)) // gated
	f.SampleGyro(t0.Add(10 * time.Millisecond))

	assert.InDelta(t, 0.3, f.FilteredYawRate(), 1e-12)
	// Drained: the next read holds the last mean.
	assert.InDelta(t, 0.3, f.FilteredYawRate(), 1e-12)
	assert.InDelta(t, 0, f.FusedYawRate(), 1e-12)
}

func TestGyroReadErrorDropsSample(t *testing.T) {
	t.Parallel()
	gyro := &fakeGyro{err: errors.New("spi timeout")}
	f := NewFrontEnd(DefaultParams(), &fakePulses{}, gyro)

	f.SampleGyro(time.Unix(1000, 0))

	assert.Zero(t, f.FilteredYawRate())
}

func TestNoIMU(t *testing.T) {
	t.Parallel()
	f := NewFrontEnd(DefaultParams(), &fakePulses{}, nil)
	f.SampleGyro(time.Unix(1000, 0))

	assert.False(t, f.IMUReady())
	assert.Zero(t, f.FilteredYawRate())

	f.UpdateEstimator(time.Unix(1000, 0))
	assert.False(t, f.Estimator().HighUncertainty(), "wheels are fresh")
}

func TestTelemetryFrame(t *testing.T) {
	t.Parallel()
	sink := &recordingSink{}
	f := NewFrontEnd(DefaultParams(), &fakePulses{l: 4, r: 9}, nil)
	f.SetPWMSource(&fakePWM{l: 100, r: -50})
	f.SetSink(sink)

	f.UpdateEstimator(time.Unix(1000, 0))

	require.Len(t, sink.frames, 1)
	fr := sink.frames[0]
	assert.Equal(t, int16(100), fr.LeftPWM)
	assert.Equal(t, int16(-50), fr.RightPWM)
	assert.Equal(t, uint32(4), fr.LeftCount)
	assert.Equal(t, uint32(9), fr.RightCount)
	assert.Less(t, fr.WheelOmega, 0.0, "right wheel runs backwards")
}

func TestCommandedAccel(t *testing.T) {
	t.Parallel()
	f := NewFrontEnd(DefaultParams(), &fakePulses{}, nil)

	alpha, a := f.commandedAccel()
	assert.Equal(t, fallbackAngularAccel, alpha)
	assert.Equal(t, fallbackLinearAccel, a)

	f.SetPWMSource(&fakePWM{l: -255, r: 255})
	alpha, a = f.commandedAccel()
	assert.InDelta(t, 0, a, 1e-12)
	assert.InDelta(t, 4.0/0.43, alpha, 1e-9)
}

func TestBatteryGate(t *testing.T) {
	t.Parallel()
	sink := &recordingSink{}
	bat := &fakeBattery{v: 3.0}
	f := NewFrontEnd(DefaultParams(), &fakePulses{}, nil)
	f.SetSink(sink)

	t0 := time.Unix(1000, 0)
	assert.False(t, f.UpdateBattery(t0), "no source wired")

	f.SetBatterySource(bat)
	assert.True(t, f.UpdateBattery(t0))
	assert.False(t, f.UpdateBattery(t0.Add(999*time.Millisecond)))

	bat.err = errors.New("i2c nack")
	assert.False(t, f.UpdateBattery(t0.Add(time.Second)))

	bat.err = nil
	bat.v = 3.23
	assert.True(t, f.UpdateBattery(t0.Add(2*time.Second)))

	require.Len(t, sink.batteries, 2)
	assert.Equal(t, "v50,3.00", sink.batteries[0].Line())
	assert.Equal(t, 100, f.LastBattery().Percent)
}

func TestMockChassisClosedLoop(t *testing.T) {
	t.Parallel()
	geom := DefaultParams().Odometry
	m := NewMockChassis(geom)
	m.noise, m.bias = 0, 0
	clock := time.Unix(1000, 0)
	m.now = func() time.Time { return clock }
	m.SetPWMSource(&fakePWM{l: -255, r: 255})

	m.Drain()
	clock = clock.Add(time.Second)
	l, r := m.Peek()
	want := uint32(math.Floor(1.0 / (math.Pi * geom.WheelDiameter) * float64(geom.PulsesPerRevolution)))
	assert.Equal(t, want, l)
	assert.Equal(t, want, r)

	s, err := m.ReadSample()
	require.NoError(t, err)
	assert.InDelta(t, -2.0/geom.WheelBase, s.Gz, 1e-9)

	l, r = m.Drain()
	assert.Equal(t, want, l)
	l, r = m.Peek()
	assert.Zero(t, l)
	assert.Zero(t, r)
}
