// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/diffdrive/internal/config"
	"github.com/relabs-tech/diffdrive/internal/control"
	"github.com/relabs-tech/diffdrive/internal/motors"
	"github.com/relabs-tech/diffdrive/internal/odometry"
	"github.com/relabs-tech/diffdrive/internal/sensors"
	"github.com/relabs-tech/diffdrive/internal/tuning"
)

var t0 = time.Unix(2000, 0)

type testRig struct {
	robot *Robot
	ctrl  *control.Controller
	act   *motors.Actuator
	drv   *motors.MockDriver
	store *tuning.Store
}

// newRig wires a robot without an IMU so the heading only follows the
// command.
func newRig(t *testing.T) *testRig {
	t.Helper()
	drv := &motors.MockDriver{}
	act := motors.NewActuator(drv, motors.DefaultUpdateInterval)
	front := sensors.NewFrontEnd(sensors.DefaultParams(), &odometry.Counter{}, nil)
	front.SetPWMSource(act)
	ctrl := control.New(control.DefaultParams(), control.DefaultTuning(), front)
	store := tuning.NewStore(filepath.Join(t.TempDir(), "tuning.yaml"), "Arduino")
	r := NewRobot(config.ProfileFor(config.RobotDIY), front, ctrl, act, store, 0)
	return &testRig{robot: r, ctrl: ctrl, act: act, drv: drv, store: store}
}

// line runs one protocol line and returns the reply, if any.
func (rig *testRig) line(now time.Time, s string) string {
	var reply string
	rig.robot.Handle(now, Inbound{Line: s, Source: "test", Reply: func(r string) { reply = r }})
	return reply
}

// run steps the loop every 2 ms from after until after+d and returns the
// final time.
func (rig *testRig) run(after time.Time, d time.Duration) time.Time {
	now := after
	for now.Sub(after) < d {
		now = now.Add(2 * time.Millisecond)
		rig.robot.Step(now)
	}
	return now
}

func TestRobotDrivesForward(t *testing.T) {
	t.Parallel()
	rig := newRig(t)
	rig.robot.Step(t0)

	rig.line(t0, "c200,0")
	rig.run(t0, 2*time.Second)

	l, r, stop, writes := rig.drv.Snapshot()
	assert.Greater(t, l, int16(0))
	assert.Greater(t, r, int16(0))
	assert.False(t, stop)
	assert.Positive(t, writes)

	s := rig.robot.Status()
	assert.Equal(t, "Arduino", s.Robot)
	assert.Equal(t, control.ModeNormal.String(), s.Mode)
	assert.InDelta(t, 200.0/255, s.RampedLinear, 1e-9)
	assert.Equal(t, l, s.LeftPWM)
	assert.False(t, s.IMUReady)
}

func TestRobotFeatureReply(t *testing.T) {
	t.Parallel()
	rig := newRig(t)
	assert.Equal(t, "fArduino:", rig.line(t0, "f"))
}

func TestRobotDropsBadLines(t *testing.T) {
	t.Parallel()
	rig := newRig(t)
	rig.robot.Step(t0)

	assert.Empty(t, rig.line(t0, "c1,2,3"))
	assert.Empty(t, rig.line(t0, "x"))
	assert.Equal(t, control.Command{}, rig.ctrl.Command())
}

func TestRobotHeartbeatExpiry(t *testing.T) {
	t.Parallel()
	rig := newRig(t)
	rig.robot.Step(t0)

	rig.line(t0, "h100")
	rig.line(t0, "c100,0")

	rig.robot.Step(t0.Add(50 * time.Millisecond))
	require.NotZero(t, rig.ctrl.Command().Linear)

	rig.robot.Step(t0.Add(150 * time.Millisecond))
	assert.Equal(t, control.Command{}, rig.ctrl.Command())

	// A fresh command after expiry is honoured again.
	rig.line(t0.Add(160*time.Millisecond), "c100,0")
	rig.robot.Step(t0.Add(170 * time.Millisecond))
	assert.NotZero(t, rig.ctrl.Command().Linear)
}

func TestRobotTuningIsSaved(t *testing.T) {
	t.Parallel()
	rig := newRig(t)

	assert.Empty(t, rig.line(t0, "m12.5,3,2,6.5,6,0.75,0"))
	assert.Equal(t, "m12.50,3.00,2.00,6.50,6.00,0.75,0.00", rig.line(t0, "m"))

	saved, err := rig.store.Load()
	require.NoError(t, err)
	assert.Equal(t, 12.5, saved.Kp)
	assert.Equal(t, 3.0, saved.Kd)
}

func TestRobotEmergencyStop(t *testing.T) {
	t.Parallel()
	rig := newRig(t)
	rig.robot.Step(t0)
	rig.line(t0, "c200,0")
	now := rig.run(t0, time.Second)

	rig.line(now, "s1")
	assert.True(t, rig.act.Stopped())
	assert.Equal(t, control.Command{}, rig.ctrl.Command())

	rig.line(now, "c200,0")
	now = rig.run(now, 500*time.Millisecond)
	l, r, stop, _ := rig.drv.Snapshot()
	assert.True(t, stop)
	assert.Zero(t, l)
	assert.Zero(t, r)
	assert.True(t, rig.robot.Status().EmergencyStop)

	// Releasing the stop also zeroes the targets, so drive again.
	rig.line(now, "s0")
	rig.line(now, "c200,0")
	rig.run(now, 500*time.Millisecond)
	l, _, stop, _ = rig.drv.Snapshot()
	assert.False(t, stop)
	assert.Greater(t, l, int16(0))
}

func TestRobotRunStopsMotors(t *testing.T) {
	t.Parallel()
	rig := newRig(t)
	ctx, cancel := context.WithCancel(context.Background())
	inbound := make(chan Inbound)
	errc := make(chan error, 1)
	go func() { errc <- rig.robot.Run(ctx, inbound) }()

	replies := make(chan string, 1)
	inbound <- Inbound{Line: "f", Source: "test", Reply: func(s string) { replies <- s }}
	assert.Equal(t, "fArduino:", <-replies)

	cancel()
	require.NoError(t, <-errc)
	assert.True(t, rig.drv.Closed)
}

func TestOpenMockHardware(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.MockHardware = true

	hw, err := openHardware(cfg)
	require.NoError(t, err)
	defer hw.close()

	assert.NotNil(t, hw.mock)
	assert.NotNil(t, hw.gyro)
	assert.NotNil(t, hw.battery)
	assert.Nil(t, hw.hall)
	assert.IsType(t, &motors.MockDriver{}, hw.driver)
}

func TestGyroBiasWithoutCalibrationFile(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.CalibrateOnStart = false
	cfg.CalibrationFile = filepath.Join(t.TempDir(), "missing.json")

	m := sensors.NewMockChassis(odometryParams(cfg))
	assert.Zero(t, gyroBias(context.Background(), cfg, m))
	assert.Zero(t, gyroBias(context.Background(), cfg, nil))
}

func TestGyroBiasCalibratesAndSaves(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.CalibrationSamples = 20
	cfg.GyroInterval = 1
	cfg.CalibrationFile = filepath.Join(t.TempDir(), "calibration.json")

	m := sensors.NewMockChassis(odometryParams(cfg))
	b := gyroBias(context.Background(), cfg, m)
	assert.InDelta(t, 0.01, b.Gz, 0.005, "mock gyro carries a small Z offset")

	cfg.CalibrateOnStart = false
	assert.Equal(t, b, gyroBias(context.Background(), cfg, m), "saved file is loaded")
}
