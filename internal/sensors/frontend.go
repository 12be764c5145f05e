// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"log"
	"time"

	"github.com/relabs-tech/diffdrive/internal/imu"
	"github.com/relabs-tech/diffdrive/internal/kalman"
	"github.com/relabs-tech/diffdrive/internal/odometry"
	"github.com/relabs-tech/diffdrive/internal/telemetry"
)

// PulseCounter is the hall pulse counter pair shared with the edge
// watchers.
type PulseCounter interface {
	Drain() (left, right uint32)
	Peek() (left, right uint32)
}

// PWMSource returns the last PWM pair applied to the motors.
type PWMSource interface {
	Current() (left, right int16)
}

// BatterySource reads the battery divider voltage.
type BatterySource interface {
	ReadVoltage() (float64, error)
}

// Fallback commanded accelerations used when no PWM source is wired.
const (
	fallbackAngularAccel = 0.05 // rad/s²
	fallbackLinearAccel  = 0.2  // m/s²
)

// Params configures the front-end timing and signal routing.
type Params struct {
	GyroInterval      time.Duration
	EstimatorInterval time.Duration
	BatteryInterval   time.Duration
	WindowSize        int
	YawAxis           imu.Axis
	ForwardAxis       imu.Axis
	MaxLinearAccel    float64 // m/s² at full PWM
	MaxAngularAccel   float64 // rad/s² at full PWM difference
	Odometry          odometry.Params
	Kalman            kalman.Params
}

// DefaultParams returns the DIY chassis settings.
func DefaultParams() Params {
	return Params{
		GyroInterval:      10 * time.Millisecond,
		EstimatorInterval: 10 * time.Millisecond,
		BatteryInterval:   1000 * time.Millisecond,
		WindowSize:        imu.DefaultWindowSize,
		YawAxis:           imu.AxisZ,
		ForwardAxis:       imu.AxisX,
		MaxLinearAccel:    1.0,
		MaxAngularAccel:   2.0,
		Odometry:          odometry.DefaultParams(),
	}
}

// FrontEnd turns wheel pulses and gyro samples into fused velocity
// estimates. All methods run on the control goroutine; only the pulse
// counters are shared with other goroutines.
type FrontEnd struct {
	params  Params
	counter PulseCounter
	odo     *odometry.Odometry
	gyro    imu.Reader
	bias    imu.Bias
	window  *imu.YawRateWindow
	est     *kalman.Estimator
	pwm     PWMSource
	battery BatterySource
	sink    telemetry.Sink

	imuReady    bool
	imuLinear   float64
	lastGyro    time.Time
	lastTick    time.Time
	lastBattery time.Time
	lastFrame   telemetry.Frame
	lastBatt    telemetry.Battery
}

// NewFrontEnd wires a front-end. gyro may be nil when no IMU initialised;
// the IMU is then treated as unavailable for the lifetime of the front-end.
func NewFrontEnd(p Params, counter PulseCounter, gyro imu.Reader) *FrontEnd {
	if p.GyroInterval <= 0 {
		p.GyroInterval = 10 * time.Millisecond
	}
	if p.EstimatorInterval <= 0 {
		p.EstimatorInterval = 10 * time.Millisecond
	}
	if p.BatteryInterval <= 0 {
		p.BatteryInterval = time.Second
	}
	if p.YawAxis == 0 {
		p.YawAxis = imu.AxisZ
	}
	if p.ForwardAxis == 0 {
		p.ForwardAxis = imu.AxisX
	}
	f := &FrontEnd{
		params:   p,
		counter:  counter,
		odo:      odometry.New(counter, p.Odometry),
		gyro:     gyro,
		window:   imu.NewYawRateWindow(p.WindowSize),
		est:      kalman.NewEstimator(p.Kalman),
		imuReady: gyro != nil,
	}
	return f
}

// SetBias installs the gyro bias subtracted from every sample.
func (f *FrontEnd) SetBias(b imu.Bias) { f.bias = b }

// SetPWMSource wires the motor side so the predict step and the wheel
// direction follow the applied PWM.
func (f *FrontEnd) SetPWMSource(p PWMSource) {
	f.pwm = p
	f.odo.SetDirection(func() (int, int) {
		l, r := p.Current()
		return direction(l), direction(r)
	})
}

// SetBatterySource wires the battery divider reader.
func (f *FrontEnd) SetBatterySource(b BatterySource) { f.battery = b }

// SetSink wires the telemetry consumer.
func (f *FrontEnd) SetSink(s telemetry.Sink) { f.sink = s }

// IMUReady reports whether the gyro initialised.
func (f *FrontEnd) IMUReady() bool { return f.imuReady }

// Estimator exposes the Kalman estimator.
func (f *FrontEnd) Estimator() *kalman.Estimator { return f.est }

// Odometry exposes the wheel odometry.
func (f *FrontEnd) Odometry() *odometry.Odometry { return f.odo }

// SampleGyro reads one IMU sample into the yaw-rate window once the gyro
// interval has elapsed. Read errors drop the sample.
func (f *FrontEnd) SampleGyro(now time.Time) {
	if !f.imuReady {
		return
	}
	if !f.lastGyro.IsZero() && now.Sub(f.lastGyro) < f.params.GyroInterval {
		return
	}
	s, err := f.gyro.ReadSample()
	if err != nil {
		log.Printf("sensors: gyro read error: %v", err)
		f.lastGyro = now
		return
	}
	s = f.bias.Apply(s)
	f.window.Add(s.Gyro(f.params.YawAxis))

	if !f.lastGyro.IsZero() {
		dt := now.Sub(f.lastGyro).Seconds()
		f.imuLinear += s.Accel(f.params.ForwardAxis) * dt
	}
	f.lastGyro = now
}

// imuYawRate is the gyro window mean in the robot frame, where a positive
// rate turns left like the wheel-derived omega.
func (f *FrontEnd) imuYawRate() float64 {
	if !f.imuReady {
		return 0
	}
	return -f.window.Mean()
}

// commandedAccel derives the predict inputs from the last applied PWM.
func (f *FrontEnd) commandedAccel() (alpha, a float64) {
	if f.pwm == nil {
		return fallbackAngularAccel, fallbackLinearAccel
	}
	l, r := f.pwm.Current()
	a = (float64(l) + float64(r)) / 2 / 255 * f.params.MaxLinearAccel
	alpha = (float64(r) - float64(l)) / 255 * f.params.MaxAngularAccel / f.odo.WheelBase()
	return alpha, a
}

// UpdateEstimator runs one estimator tick if the estimator interval has
// elapsed and reports whether it did.
func (f *FrontEnd) UpdateEstimator(now time.Time) bool {
	if !f.lastTick.IsZero() && now.Sub(f.lastTick) < f.params.EstimatorInterval {
		return false
	}
	f.odo.Update(now)
	wWheel := f.odo.Angular()
	vWheel := f.odo.Linear()
	wIMU := f.imuYawRate()
	wheelsValid := f.odo.Valid(now)

	// Zero-velocity update: a parked robot pins the integrated IMU speed.
	if wheelsValid && vWheel == 0 && f.motorsIdle() {
		f.imuLinear = 0
	}

	alpha, a := f.commandedAccel()
	f.est.PredictAngular(alpha)
	if wheelsValid {
		f.est.Angular.UpdateWheel(wWheel)
		f.est.Linear.UpdateWheel(vWheel)
	}
	if f.imuReady {
		f.est.Angular.UpdateIMU(wIMU)
		f.est.Linear.UpdateIMU(f.imuLinear)
	}
	f.est.PredictLinear(a)
	f.est.SetHighUncertainty(!wheelsValid && !f.imuReady)

	v := f.est.Velocity()
	fr := telemetry.Frame{
		Time:       now,
		WheelOmega: wWheel,
		IMUOmega:   wIMU,
		FusedOmega: v.Angular,
		FusedSpeed: v.Linear,
	}
	if f.pwm != nil {
		fr.LeftPWM, fr.RightPWM = f.pwm.Current()
	}
	fr.LeftCount, fr.RightCount = f.counter.Peek()
	f.lastFrame = fr
	if f.sink != nil {
		f.sink.Frame(fr)
	}

	f.lastTick = now
	return true
}

func (f *FrontEnd) motorsIdle() bool {
	if f.pwm == nil {
		return false
	}
	l, r := f.pwm.Current()
	return l == 0 && r == 0
}

// Fused returns the fused velocity, running an estimator tick first if one
// is due.
func (f *FrontEnd) Fused(now time.Time) kalman.VelocityEstimate {
	f.UpdateEstimator(now)
	return f.est.Velocity()
}

// FilteredYawRate drains the gyro window and returns its mean in the raw
// gyro axis sign.
func (f *FrontEnd) FilteredYawRate() float64 {
	if !f.imuReady {
		return 0
	}
	return f.window.Drain()
}

// FusedYawRate returns the last fused angular velocity in the raw gyro
// axis sign, so it can stand in for FilteredYawRate.
func (f *FrontEnd) FusedYawRate() float64 {
	return -f.est.Velocity().Angular
}

// ResetEstimator resets both Kalman channels.
func (f *FrontEnd) ResetEstimator() {
	f.est.Reset()
	f.imuLinear = 0
}

// UpdateBattery reads the battery once the battery interval has elapsed.
func (f *FrontEnd) UpdateBattery(now time.Time) bool {
	if f.battery == nil {
		return false
	}
	if !f.lastBattery.IsZero() && now.Sub(f.lastBattery) < f.params.BatteryInterval {
		return false
	}
	f.lastBattery = now
	v, err := f.battery.ReadVoltage()
	if err != nil {
		log.Printf("sensors: battery read error: %v", err)
		return false
	}
	b := telemetry.Battery{Time: now, Percent: telemetry.BatteryPercent(v), Voltage: v}
	f.lastBatt = b
	if f.sink != nil {
		f.sink.Battery(b)
	}
	return true
}

// LastFrame returns the most recent telemetry frame.
func (f *FrontEnd) LastFrame() telemetry.Frame { return f.lastFrame }

// LastBattery returns the most recent battery report.
func (f *FrontEnd) LastBattery() telemetry.Battery { return f.lastBatt }

// direction maps a PWM value onto a wheel direction. A stopped motor keeps
// counting coasting pulses as forward travel.
func direction(pwm int16) int {
	if pwm < 0 {
		return -1
	}
	return 1
}
