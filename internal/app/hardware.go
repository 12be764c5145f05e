// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"periph.io/x/conn/v3/physic"

	"github.com/relabs-tech/diffdrive/internal/config"
	"github.com/relabs-tech/diffdrive/internal/imu"
	"github.com/relabs-tech/diffdrive/internal/motors"
	"github.com/relabs-tech/diffdrive/internal/odometry"
	"github.com/relabs-tech/diffdrive/internal/sensors"
)

// hardware is the set of devices the control core runs against, real or
// simulated.
type hardware struct {
	counter sensors.PulseCounter
	gyro    imu.Reader            // nil when the IMU did not initialise
	battery sensors.BatterySource // nil when no ADC answered
	driver  motors.Driver
	hall    *sensors.HallWatcher // nil in mock mode
	mock    *sensors.MockChassis // nil on real hardware
	closers []func() error
}

// openHardware opens the devices named by cfg. Motors and hall sensors are
// required; the IMU and the battery ADC degrade to absent on failure.
func openHardware(cfg *config.Config) (*hardware, error) {
	if cfg.MockHardware {
		log.Println("hardware: using mock chassis")
		m := sensors.NewMockChassis(odometryParams(cfg))
		return &hardware{
			counter: m,
			gyro:    m,
			battery: m,
			driver:  &motors.MockDriver{},
			mock:    m,
		}, nil
	}

	hw := &hardware{}
	pins := cfg.Pins

	counter := &odometry.Counter{}
	hall, err := sensors.NewHallWatcher(pins.HallLeft, pins.HallRight, counter)
	if err != nil {
		return nil, fmt.Errorf("hardware: %w", err)
	}
	hw.counter, hw.hall = counter, hall

	drv, err := motors.NewPeriphDriver(motors.Pins{
		PWMLeft:        pins.PWMLeft,
		PWMRight:       pins.PWMRight,
		DirectionLeft:  pins.DirectionLeft,
		DirectionRight: pins.DirectionRight,
		StopLeft:       pins.StopLeft,
		StopRight:      pins.StopRight,
	}, physic.Frequency(cfg.MotorPWMFrequency)*physic.Hertz)
	if err != nil {
		return nil, fmt.Errorf("hardware: %w", err)
	}
	hw.driver = drv

	gyro, err := sensors.NewMPU9250Gyro(sensors.MPU9250Options{
		SPIDevice:  cfg.IMUSPIDevice,
		CSPin:      cfg.IMUCSPin,
		GyroRange:  cfg.IMUGyroRange,
		AccelRange: cfg.IMUAccelRange,
	})
	if err != nil {
		log.Printf("hardware: IMU unavailable, running on wheel odometry only: %v", err)
	} else {
		hw.gyro = gyro
	}

	bat, err := sensors.NewADCBattery(sensors.BatteryOptions{
		I2CBus:  cfg.BatteryI2CBus,
		Address: cfg.BatteryI2CAddr,
		Channel: cfg.BatteryChannel,
		Scale:   cfg.BatteryScale,
	})
	if err != nil {
		log.Printf("hardware: battery monitor unavailable: %v", err)
	} else {
		hw.battery = bat
		hw.closers = append(hw.closers, bat.Close)
	}

	return hw, nil
}

func (h *hardware) close() {
	for _, c := range h.closers {
		if err := c(); err != nil {
			log.Printf("hardware: close: %v", err)
		}
	}
}

// gyroBias returns the bias to subtract from every gyro sample. With
// CALIBRATE_ON_START the robot must rest while samples are taken and the
// result is saved; otherwise the saved calibration is used.
func gyroBias(ctx context.Context, cfg *config.Config, gyro imu.Reader) imu.Bias {
	if gyro == nil {
		return imu.Bias{}
	}
	if cfg.CalibrateOnStart {
		log.Printf("calibration: sampling %d resting readings, keep the robot still", cfg.CalibrationSamples)
		cal, err := imu.Calibrate(ctx, gyro, cfg.CalibrationSamples, config.Interval(cfg.GyroInterval))
		if err == nil {
			log.Printf("calibration: gyro bias %+.4f %+.4f %+.4f rad/s, confidence %.2f",
				cal.Bias.Gx, cal.Bias.Gy, cal.Bias.Gz, cal.Confidence)
			if serr := imu.SaveCalibration(cfg.CalibrationFile, cal); serr != nil {
				log.Printf("calibration: %v", serr)
			}
			return cal.Bias
		}
		log.Printf("calibration: %v, falling back to %s", err, cfg.CalibrationFile)
	}

	cal, err := imu.LoadCalibration(cfg.CalibrationFile)
	if errors.Is(err, imu.ErrNoCalibration) {
		log.Printf("calibration: no file at %s, gyro bias left at zero", cfg.CalibrationFile)
		return imu.Bias{}
	}
	if err != nil {
		log.Printf("calibration: %v, gyro bias left at zero", err)
		return imu.Bias{}
	}
	log.Printf("calibration: loaded %s (taken %s)", cfg.CalibrationFile, cal.CalibrationAt)
	return cal.Bias
}
