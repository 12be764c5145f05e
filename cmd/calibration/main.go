// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// ./cmd/calibration/main.go
//
// Gyro bias calibration for the robot IMU. The robot must rest on a flat
// surface while the samples are taken. The result is written to
// CALIBRATION_FILE, which the robot loads at start when CALIBRATE_ON_START
// is off.
//
// Run:
//
//	go run ./cmd/calibration -config diffdrive_config.txt
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/relabs-tech/diffdrive/internal/config"
	"github.com/relabs-tech/diffdrive/internal/imu"
	"github.com/relabs-tech/diffdrive/internal/odometry"
	"github.com/relabs-tech/diffdrive/internal/sensors"
)

func main() {
	in := bufio.NewReader(os.Stdin)

	// Parse command-line flags
	configPath := flag.String("config", "diffdrive_config.txt", "Path to configuration file")
	samples := flag.Int("samples", 0, "Number of resting samples (0 uses CALIBRATION_SAMPLES)")
	flag.Parse()

	fmt.Println("=== Gyro bias calibration ===")

	if err := config.InitGlobal(*configPath); err != nil {
		fatal(fmt.Errorf("failed to load config from %s: %w", *configPath, err))
	}
	cfg := config.Get()

	n := cfg.CalibrationSamples
	if *samples > 0 {
		n = *samples
	}

	var gyro imu.Reader
	if cfg.MockHardware {
		fmt.Println("MOCK_HARDWARE is set, calibrating the simulated gyro")
		gyro = sensors.NewMockChassis(odometryParams(cfg))
	} else {
		g, err := sensors.NewMPU9250Gyro(sensors.MPU9250Options{
			SPIDevice:  cfg.IMUSPIDevice,
			CSPin:      cfg.IMUCSPin,
			GyroRange:  cfg.IMUGyroRange,
			AccelRange: cfg.IMUAccelRange,
		})
		if err != nil {
			fatal(fmt.Errorf("IMU init failed: %w", err))
		}
		gyro = g
	}

	fmt.Println("Place the robot on a stable surface and do not touch it.")
	waitEnter(in, fmt.Sprintf("Press ENTER to start capturing %d samples...", n))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cal, err := imu.Calibrate(ctx, gyro, n, config.Interval(cfg.GyroInterval))
	if err != nil {
		fatal(err)
	}

	fmt.Printf("Gyro bias   X=%+.5f Y=%+.5f Z=%+.5f rad/s\n", cal.Bias.Gx, cal.Bias.Gy, cal.Bias.Gz)
	fmt.Printf("Gyro stddev X=%.5f Y=%.5f Z=%.5f rad/s\n", cal.StdDev.Gx, cal.StdDev.Gy, cal.StdDev.Gz)
	fmt.Printf("Confidence  %.2f\n", cal.Confidence)
	if cal.Confidence < 0.5 {
		fmt.Println("Warning: the robot moved during capture, consider running again.")
	}

	if err := imu.SaveCalibration(cfg.CalibrationFile, cal); err != nil {
		fatal(err)
	}
	fmt.Printf("Saved to %s\n", cfg.CalibrationFile)
}

func odometryParams(cfg *config.Config) odometry.Params {
	return odometry.Params{
		PulsesPerRevolution: cfg.PulsesPerRevolution,
		WheelDiameter:       cfg.WheelDiameter,
		WheelBase:           cfg.WheelBase,
	}
}

// ---------- Console helpers ----------

func waitEnter(in *bufio.Reader, prompt string) {
	fmt.Print(prompt)
	_, _ = in.ReadString('\n')
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
	os.Exit(1)
}
