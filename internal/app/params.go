// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"github.com/relabs-tech/diffdrive/internal/config"
	"github.com/relabs-tech/diffdrive/internal/control"
	"github.com/relabs-tech/diffdrive/internal/imu"
	"github.com/relabs-tech/diffdrive/internal/kalman"
	"github.com/relabs-tech/diffdrive/internal/odometry"
	"github.com/relabs-tech/diffdrive/internal/sensors"
)

func odometryParams(cfg *config.Config) odometry.Params {
	return odometry.Params{
		PulsesPerRevolution: cfg.PulsesPerRevolution,
		WheelDiameter:       cfg.WheelDiameter,
		WheelBase:           cfg.WheelBase,
		Interval:            config.Interval(cfg.OdometryInterval),
		StaleAfter:          config.Interval(cfg.WheelStaleAfter),
	}
}

func sensorParams(cfg *config.Config) sensors.Params {
	p := sensors.DefaultParams()
	p.GyroInterval = config.Interval(cfg.GyroInterval)
	p.EstimatorInterval = config.Interval(cfg.EstimatorInterval)
	p.BatteryInterval = config.Interval(cfg.BatteryInterval)
	p.WindowSize = cfg.YawWindowSize
	// Axes were validated by the config loader.
	p.YawAxis, _ = imu.ParseAxis(cfg.GyroAxis)
	p.ForwardAxis, _ = imu.ParseAxis(cfg.ForwardAxis)
	p.Odometry = odometryParams(cfg)
	p.Kalman = kalman.Params{
		Dt:                    config.Interval(cfg.EstimatorInterval).Seconds(),
		ProcessNoise:          cfg.KalmanProcessNoise,
		MeasurementNoiseWheel: cfg.KalmanNoiseWheel,
		MeasurementNoiseIMU:   cfg.KalmanNoiseIMU,
	}
	return p
}

func controlParams(cfg *config.Config) control.Params {
	p := control.DefaultParams()
	p.UpdateInterval = config.Interval(cfg.ControlInterval)
	p.AccelerationRate = cfg.AccelerationRate
	p.DecelerationRate = cfg.DecelerationRate
	p.SoftBound = cfg.HeadingSoftBound
	p.HardBound = cfg.HeadingHardBound
	p.SettleThreshold = cfg.SettleThreshold
	return p
}
