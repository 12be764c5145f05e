// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"
	"log"
	"math"

	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/devices/v3/mpu9250"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/diffdrive/internal/imu"
)

const standardGravity = 9.80665

// Full-scale sensitivities per range setting, LSB per unit.
var (
	gyroLSBPerDegree = [4]float64{131, 65.5, 32.8, 16.4}
	accelLSBPerG     = [4]float64{16384, 8192, 4096, 2048}
)

// MPU9250Options selects the bus wiring and sensor ranges.
type MPU9250Options struct {
	SPIDevice  string
	CSPin      string
	GyroRange  byte // 0=±250°/s .. 3=±2000°/s
	AccelRange byte // 0=±2g .. 3=±16g
}

// MPU9250Gyro reads gyro and accelerometer samples from an MPU9250 over SPI
// and converts them to rad/s and m/s².
type MPU9250Gyro struct {
	dev        *mpu9250.MPU9250
	gyroScale  float64
	accelScale float64
}

// NewMPU9250Gyro opens and initialises the IMU.
func NewMPU9250Gyro(o MPU9250Options) (*MPU9250Gyro, error) {
	if o.GyroRange > 3 || o.AccelRange > 3 {
		return nil, fmt.Errorf("IMU: range out of bounds (gyro %d, accel %d)", o.GyroRange, o.AccelRange)
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("IMU: periph host init: %w", err)
	}

	cs := gpioreg.ByName(o.CSPin)
	if cs == nil {
		return nil, fmt.Errorf("IMU: CS pin %q not found", o.CSPin)
	}

	tr, err := mpu9250.NewSpiTransport(o.SPIDevice, cs)
	if err != nil {
		return nil, fmt.Errorf("IMU: SPI transport (%s): %w", o.SPIDevice, err)
	}

	dev, err := mpu9250.New(*tr)
	if err != nil {
		return nil, fmt.Errorf("IMU: device creation: %w", err)
	}
	if err := dev.Init(); err != nil {
		return nil, fmt.Errorf("IMU: initialization: %w", err)
	}

	if err := dev.SetGyroRange(o.GyroRange); err != nil {
		return nil, fmt.Errorf("IMU: set gyro range: %w", err)
	}
	if err := dev.SetAccelRange(o.AccelRange); err != nil {
		return nil, fmt.Errorf("IMU: set accel range: %w", err)
	}
	log.Printf("IMU: gyro range %d (±%d°/s), accel range %d (±%dg)",
		o.GyroRange, []int{250, 500, 1000, 2000}[o.GyroRange],
		o.AccelRange, []int{2, 4, 8, 16}[o.AccelRange])

	// The chip's own offset registers are loaded here; the resting bias
	// run on top of it is done by imu.Calibrate.
	if err := dev.Calibrate(); err != nil {
		log.Printf("IMU: warning: on-chip calibration failed: %v", err)
	}

	return &MPU9250Gyro{
		dev:        dev,
		gyroScale:  math.Pi / 180 / gyroLSBPerDegree[o.GyroRange],
		accelScale: standardGravity / accelLSBPerG[o.AccelRange],
	}, nil
}

// ReadSample reads all six axes.
func (g *MPU9250Gyro) ReadSample() (imu.Sample, error) {
	gx, err := g.dev.GetRotationX()
	if err != nil {
		return imu.Sample{}, fmt.Errorf("IMU gyro X: %w", err)
	}
	gy, err := g.dev.GetRotationY()
	if err != nil {
		return imu.Sample{}, fmt.Errorf("IMU gyro Y: %w", err)
	}
	gz, err := g.dev.GetRotationZ()
	if err != nil {
		return imu.Sample{}, fmt.Errorf("IMU gyro Z: %w", err)
	}
	ax, err := g.dev.GetAccelerationX()
	if err != nil {
		return imu.Sample{}, fmt.Errorf("IMU accel X: %w", err)
	}
	ay, err := g.dev.GetAccelerationY()
	if err != nil {
		return imu.Sample{}, fmt.Errorf("IMU accel Y: %w", err)
	}
	az, err := g.dev.GetAccelerationZ()
	if err != nil {
		return imu.Sample{}, fmt.Errorf("IMU accel Z: %w", err)
	}

	return imu.Sample{
		Gx: float64(gx) * g.gyroScale,
		Gy: float64(gy) * g.gyroScale,
		Gz: float64(gz) * g.gyroScale,
		Ax: float64(ax) * g.accelScale,
		Ay: float64(ay) * g.accelScale,
		Az: float64(az) * g.accelScale,
	}, nil
}
