// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"time"
)

// DefaultCalibrationSamples is the resting sample count used for the gyro
// bias estimate.
const DefaultCalibrationSamples = 600

// Stillness thresholds on the gyro standard deviation, rad/s.
const (
	stillStdGood = 0.005
	stillStdBad  = 0.05
)

// Bias is the resting offset per axis: gyro in rad/s, horizontal
// accelerometer axes in m/s². Z acceleration carries gravity and is left
// alone.
type Bias struct {
	Gx float64 `json:"gx"`
	Gy float64 `json:"gy"`
	Gz float64 `json:"gz"`
	Ax float64 `json:"ax"`
	Ay float64 `json:"ay"`
}

// Apply subtracts the bias from s.
func (b Bias) Apply(s Sample) Sample {
	s.Gx -= b.Gx
	s.Gy -= b.Gy
	s.Gz -= b.Gz
	s.Ax -= b.Ax
	s.Ay -= b.Ay
	return s
}

// Calibration is the result of a resting bias run. It is also the JSON
// document written by the calibration tool.
type Calibration struct {
	CalibrationAt string  `json:"calibration_at"` // RFC3339
	Samples       int     `json:"samples"`
	Bias          Bias    `json:"bias"`
	StdDev        Bias    `json:"gyro_stddev"`
	Confidence    float64 `json:"confidence"`
}

// Calibrate reads n resting samples from r, interval apart, and returns the
// per-axis mean as the gyro bias.
func Calibrate(ctx context.Context, r Reader, n int, interval time.Duration) (Calibration, error) {
	if n <= 0 {
		n = DefaultCalibrationSamples
	}
	xs := make([]Sample, 0, n)
	for len(xs) < n {
		if err := ctx.Err(); err != nil {
			return Calibration{}, fmt.Errorf("gyro calibration: %w", err)
		}
		s, err := r.ReadSample()
		if err != nil {
			return Calibration{}, fmt.Errorf("gyro calibration sample %d: %w", len(xs), err)
		}
		xs = append(xs, s)
		if interval > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(interval):
			}
		}
	}

	var mean Bias
	for _, s := range xs {
		mean.Gx += s.Gx
		mean.Gy += s.Gy
		mean.Gz += s.Gz
		mean.Ax += s.Ax
		mean.Ay += s.Ay
	}
	fn := float64(len(xs))
	mean.Gx /= fn
	mean.Gy /= fn
	mean.Gz /= fn
	mean.Ax /= fn
	mean.Ay /= fn

	var std Bias
	for _, s := range xs {
		std.Gx += (s.Gx - mean.Gx) * (s.Gx - mean.Gx)
		std.Gy += (s.Gy - mean.Gy) * (s.Gy - mean.Gy)
		std.Gz += (s.Gz - mean.Gz) * (s.Gz - mean.Gz)
	}
	std.Gx = math.Sqrt(std.Gx / fn)
	std.Gy = math.Sqrt(std.Gy / fn)
	std.Gz = math.Sqrt(std.Gz / fn)

	return Calibration{
		CalibrationAt: time.Now().Format(time.RFC3339),
		Samples:       len(xs),
		Bias:          mean,
		StdDev:        std,
		Confidence:    stillnessConfidence(std),
	}, nil
}

// stillnessConfidence maps the mean gyro standard deviation to 0..1.
func stillnessConfidence(std Bias) float64 {
	s := (std.Gx + std.Gy + std.Gz) / 3
	switch {
	case s <= stillStdGood:
		return 1
	case s >= stillStdBad:
		return 0
	}
	return 1 - (s-stillStdGood)/(stillStdBad-stillStdGood)
}

// SaveCalibration writes c as indented JSON.
func SaveCalibration(path string, c Calibration) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write calibration %s: %w", path, err)
	}
	return nil
}

// ErrNoCalibration is returned by LoadCalibration when the file is absent.
var ErrNoCalibration = errors.New("no calibration file")

// LoadCalibration reads a file written by SaveCalibration.
func LoadCalibration(path string) (Calibration, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Calibration{}, ErrNoCalibration
	}
	if err != nil {
		return Calibration{}, fmt.Errorf("read calibration %s: %w", path, err)
	}
	var c Calibration
	if err := json.Unmarshal(b, &c); err != nil {
		return Calibration{}, fmt.Errorf("parse calibration %s: %w", path, err)
	}
	return c, nil
}
