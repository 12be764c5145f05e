// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package kalman fuses wheel odometry and gyroscope readings into angular and
// linear velocity estimates with two independent scalar Kalman filters.
package kalman

// Defaults used when a Params field is left at zero.
const (
	DefaultDt                    = 0.01 // seconds
	DefaultProcessNoise          = 0.1
	DefaultMeasurementNoiseWheel = 0.5
	DefaultMeasurementNoiseIMU   = 1.0
	initialCovariance            = 1.0

	highUncertaintyNoiseFactor      = 10.0
	highUncertaintyCovarianceFactor = 2.0
)

// Channel is a single scalar filter for one fused quantity.
type Channel struct {
	Estimate              float64
	Covariance            float64
	ProcessNoise          float64
	ProcessNoiseDefault   float64
	MeasurementNoiseWheel float64
	MeasurementNoiseIMU   float64
}

// NewChannel returns a channel at estimate 0 and covariance 1.
func NewChannel(processNoise, wheelNoise, imuNoise float64) Channel {
	return Channel{
		Covariance:            initialCovariance,
		ProcessNoise:          processNoise,
		ProcessNoiseDefault:   processNoise,
		MeasurementNoiseWheel: wheelNoise,
		MeasurementNoiseIMU:   imuNoise,
	}
}

// Predict advances the estimate by dt*cmdAccel and grows the covariance.
func (c *Channel) Predict(cmdAccel, dt float64) {
	c.Estimate += dt * cmdAccel
	c.Covariance += c.ProcessNoise
}

// UpdateWheel corrects the estimate with a wheel-derived measurement.
func (c *Channel) UpdateWheel(z float64) {
	c.update(z, c.MeasurementNoiseWheel)
}

// UpdateIMU corrects the estimate with an inertial measurement.
func (c *Channel) UpdateIMU(z float64) {
	c.update(z, c.MeasurementNoiseIMU)
}

func (c *Channel) update(z, r float64) {
	k := c.Covariance / (c.Covariance + r)
	c.Estimate += k * (z - c.Estimate)
	c.Covariance *= 1 - k
}

func (c *Channel) reset() {
	c.Estimate = 0
	c.Covariance = initialCovariance
	c.ProcessNoise = c.ProcessNoiseDefault
}

// Params configures an Estimator. Zero fields take the package defaults.
type Params struct {
	Dt                    float64
	ProcessNoise          float64
	MeasurementNoiseWheel float64
	MeasurementNoiseIMU   float64
}

func (p Params) withDefaults() Params {
	if p.Dt <= 0 {
		p.Dt = DefaultDt
	}
	if p.ProcessNoise <= 0 {
		p.ProcessNoise = DefaultProcessNoise
	}
	if p.MeasurementNoiseWheel <= 0 {
		p.MeasurementNoiseWheel = DefaultMeasurementNoiseWheel
	}
	if p.MeasurementNoiseIMU <= 0 {
		p.MeasurementNoiseIMU = DefaultMeasurementNoiseIMU
	}
	return p
}

// VelocityEstimate is the fused output of the estimator.
type VelocityEstimate struct {
	Angular float64 `json:"angular"` // rad/s
	Linear  float64 `json:"linear"`  // m/s
}

// Estimator owns the angular and linear channels. It has no clock of its
// own: callers decide when to predict and which measurements to apply.
type Estimator struct {
	Angular Channel
	Linear  Channel

	dt              float64
	highUncertainty bool
}

// NewEstimator builds an estimator from p.
func NewEstimator(p Params) *Estimator {
	p = p.withDefaults()
	return &Estimator{
		Angular: NewChannel(p.ProcessNoise, p.MeasurementNoiseWheel, p.MeasurementNoiseIMU),
		Linear:  NewChannel(p.ProcessNoise, p.MeasurementNoiseWheel, p.MeasurementNoiseIMU),
		dt:      p.Dt,
	}
}

// Dt returns the nominal prediction step in seconds.
func (e *Estimator) Dt() float64 { return e.dt }

// PredictAngular runs the angular predict step with the nominal dt.
func (e *Estimator) PredictAngular(cmdAlpha float64) { e.Angular.Predict(cmdAlpha, e.dt) }

// PredictLinear runs the linear predict step with the nominal dt.
func (e *Estimator) PredictLinear(cmdAccel float64) { e.Linear.Predict(cmdAccel, e.dt) }

// SetHighUncertainty enters or leaves high-uncertainty mode. Entering
// raises process noise and inflates covariance once; staying in the mode
// has no further effect. Leaving restores the default process noise.
func (e *Estimator) SetHighUncertainty(on bool) {
	if on == e.highUncertainty {
		return
	}
	e.highUncertainty = on
	for _, c := range []*Channel{&e.Angular, &e.Linear} {
		if on {
			c.ProcessNoise = c.ProcessNoiseDefault * highUncertaintyNoiseFactor
			c.Covariance *= highUncertaintyCovarianceFactor
		} else {
			c.ProcessNoise = c.ProcessNoiseDefault
		}
	}
}

// HighUncertainty reports whether the estimator is in high-uncertainty mode.
func (e *Estimator) HighUncertainty() bool { return e.highUncertainty }

// Reset puts both channels back to their initial state.
func (e *Estimator) Reset() {
	e.Angular.reset()
	e.Linear.reset()
	e.highUncertainty = false
}

// Velocity returns the current fused estimate.
func (e *Estimator) Velocity() VelocityEstimate {
	return VelocityEstimate{Angular: e.Angular.Estimate, Linear: e.Linear.Estimate}
}
