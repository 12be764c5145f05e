// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

// DefaultWindowSize matches the larger of the two chassis variants.
const DefaultWindowSize = 25

// YawRateWindow collects bias-corrected yaw-rate samples between reads.
//
// Samples accumulate in a ring until the window is drained. Once full the
// oldest sample is overwritten. The mean is taken over the samples actually
// stored, and an empty window reports the mean of the last drain.
type YawRateWindow struct {
	buf   []float64
	next  int
	count int
	last  float64
}

// NewYawRateWindow returns a window holding up to size samples.
func NewYawRateWindow(size int) *YawRateWindow {
	if size <= 0 {
		size = DefaultWindowSize
	}
	return &YawRateWindow{buf: make([]float64, size)}
}

// Add stores one sample.
func (w *YawRateWindow) Add(v float64) {
	w.buf[w.next] = v
	w.next = (w.next + 1) % len(w.buf)
	if w.count < len(w.buf) {
		w.count++
	}
}

// Mean returns the mean of the stored samples without consuming them.
func (w *YawRateWindow) Mean() float64 {
	if w.count == 0 {
		return w.last
	}
	var sum float64
	for i := 0; i < w.count; i++ {
		sum += w.buf[i]
	}
	return sum / float64(w.count)
}

// Drain returns the mean and empties the window.
func (w *YawRateWindow) Drain() float64 {
	m := w.Mean()
	w.last = m
	w.count = 0
	w.next = 0
	return m
}

// Len returns the number of stored samples.
func (w *YawRateWindow) Len() int { return w.count }

// Size returns the window capacity.
func (w *YawRateWindow) Size() int { return len(w.buf) }
