// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/relabs-tech/diffdrive/internal/config"
	"github.com/relabs-tech/diffdrive/internal/control"
	"github.com/relabs-tech/diffdrive/internal/kalman"
	"github.com/relabs-tech/diffdrive/internal/motors"
	"github.com/relabs-tech/diffdrive/internal/protocol"
	"github.com/relabs-tech/diffdrive/internal/sensors"
	"github.com/relabs-tech/diffdrive/internal/telemetry"
	"github.com/relabs-tech/diffdrive/internal/tuning"
)

// Status is a snapshot of the robot taken after every controller tick.
type Status struct {
	Time            time.Time               `json:"time"`
	Robot           string                  `json:"robot"`
	Mode            string                  `json:"mode"`
	Command         control.Command         `json:"command"`
	Heading         control.HeadingState    `json:"heading"`
	RampedLinear    float64                 `json:"ramped_linear"`
	Adjustment      float64                 `json:"heading_adjustment"`
	LeftPWM         int16                   `json:"left_pwm"`
	RightPWM        int16                   `json:"right_pwm"`
	EmergencyStop   bool                    `json:"emergency_stop"`
	Fused           kalman.VelocityEstimate `json:"fused"`
	HighUncertainty bool                    `json:"high_uncertainty"`
	IMUReady        bool                    `json:"imu_ready"`
	Battery         telemetry.Battery       `json:"battery"`
	Resets          int                     `json:"resets"`
	HeartbeatMs     int64                   `json:"heartbeat_ms"`
}

// StatusSource is read by the display, the web API and the MQTT link.
type StatusSource interface {
	Status() Status
}

// Inbound is one protocol line received by a transport. Reply sends a line
// back on the same transport and must not block.
type Inbound struct {
	Line   string
	Source string
	Reply  func(string)
}

// Robot owns the control core and runs it on a single goroutine. Transports
// reach it only through the inbound channel.
type Robot struct {
	profile config.RobotProfile
	front   *sensors.FrontEnd
	ctrl    *control.Controller
	act     *motors.Actuator
	disp    *protocol.Dispatcher
	store   *tuning.Store
	loop    time.Duration
	now     func() time.Time

	mu     sync.RWMutex
	status Status
}

// NewRobot wires the core. store may be nil, in which case tuning changes
// are not persisted.
func NewRobot(profile config.RobotProfile, front *sensors.FrontEnd, ctrl *control.Controller, act *motors.Actuator, store *tuning.Store, loop time.Duration) *Robot {
	if loop <= 0 {
		loop = 2 * time.Millisecond
	}
	r := &Robot{
		profile: profile,
		front:   front,
		ctrl:    ctrl,
		act:     act,
		store:   store,
		loop:    loop,
		now:     time.Now,
	}
	r.disp = protocol.NewDispatcher(r)
	ctrl.OnFault(front.ResetEstimator)
	return r
}

// SetCommand sets the targets on the ±255 link scale.
func (r *Robot) SetCommand(linear, angular float64) { r.ctrl.SetCommand(linear, angular) }

// SetEmergencyStop engages or releases the motor brake.
func (r *Robot) SetEmergencyStop(on bool) {
	if err := r.act.SetEmergencyStop(on); err != nil {
		log.Printf("robot: %v", err)
	}
}

// Tuning returns the active controller tuning.
func (r *Robot) Tuning() control.Tuning { return r.ctrl.Tuning() }

// SetTuning applies t and saves it when a store is wired.
func (r *Robot) SetTuning(t control.Tuning) {
	r.ctrl.SetTuning(t)
	if r.store == nil {
		return
	}
	if err := r.store.Save(t); err != nil {
		log.Printf("robot: saving tuning: %v", err)
	}
}

// RobotType is the name reported by the feature command.
func (r *Robot) RobotType() string { return r.profile.TypeString }

// HasStatusLEDs reports the status LED feature flag.
func (r *Robot) HasStatusLEDs() bool { return r.profile.StatusLEDs }

// Handle runs one inbound line. Bad lines are logged and dropped.
func (r *Robot) Handle(now time.Time, in Inbound) {
	reply, err := r.disp.Handle(now, in.Line)
	if err != nil {
		log.Printf("robot: %s: %v", in.Source, err)
		return
	}
	if reply != "" && in.Reply != nil {
		in.Reply(reply)
	}
}

// Step runs one pass of the control loop. Every stage gates itself on
// elapsed time, so Step can be called as often as the loop ticks.
func (r *Robot) Step(now time.Time) {
	r.front.SampleGyro(now)
	r.front.UpdateEstimator(now)
	r.front.UpdateBattery(now)

	if r.disp.Heartbeat().Trip(now) {
		log.Printf("robot: heartbeat expired, zeroing targets")
		r.ctrl.SetCommand(0, 0)
	}

	ticked := r.ctrl.Update(now)
	r.act.Apply(now, r.ctrl.PWM())
	if ticked {
		r.snapshot(now)
	}
}

func (r *Robot) snapshot(now time.Time) {
	l, rt := r.act.Current()
	s := Status{
		Time:            now,
		Robot:           r.profile.TypeString,
		Mode:            r.ctrl.Mode().String(),
		Command:         r.ctrl.Command(),
		Heading:         r.ctrl.State(),
		RampedLinear:    r.ctrl.RampedLinear(),
		Adjustment:      r.ctrl.HeadingAdjustment(),
		LeftPWM:         l,
		RightPWM:        rt,
		EmergencyStop:   r.act.Stopped(),
		Fused:           r.front.Estimator().Velocity(),
		HighUncertainty: r.front.Estimator().HighUncertainty(),
		IMUReady:        r.front.IMUReady(),
		Battery:         r.front.LastBattery(),
		Resets:          r.ctrl.Resets(),
		HeartbeatMs:     r.disp.Heartbeat().Interval().Milliseconds(),
	}
	r.mu.Lock()
	r.status = s
	r.mu.Unlock()
}

// Status returns the last snapshot. Safe from any goroutine.
func (r *Robot) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// Run drives the loop until ctx is done, then stops the motors.
func (r *Robot) Run(ctx context.Context, inbound <-chan Inbound) error {
	ticker := time.NewTicker(r.loop)
	defer ticker.Stop()
	log.Printf("robot: control loop running every %s", r.loop)

	for {
		select {
		case <-ctx.Done():
			log.Println("robot: stopping motors")
			if err := r.act.Close(); err != nil {
				log.Printf("robot: closing motors: %v", err)
			}
			return nil
		case in := <-inbound:
			r.Handle(r.now(), in)
		case <-ticker.C:
			r.Step(r.now())
		}
	}
}
