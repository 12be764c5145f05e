// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package odometry

import "sync/atomic"

// PulseSource is the narrow view the odometry needs of the wheel pulse
// counters: a swap-and-zero of both counts.
type PulseSource interface {
	Drain() (left, right uint32)
}

// Counter holds the left and right hall pulse counts. The edge-watch side
// calls Left/Right; the control loop calls Drain. Each counter is swapped to
// zero atomically so no edge counted mid-drain is lost.
type Counter struct {
	left  atomic.Uint32
	right atomic.Uint32
}

// Left records one edge on the left wheel.
func (c *Counter) Left() { c.left.Add(1) }

// Right records one edge on the right wheel.
func (c *Counter) Right() { c.right.Add(1) }

// Drain returns both counts and zeroes them.
func (c *Counter) Drain() (left, right uint32) {
	return c.left.Swap(0), c.right.Swap(0)
}

// Peek returns the counts accumulated since the last drain without
// zeroing them.
func (c *Counter) Peek() (left, right uint32) {
	return c.left.Load(), c.right.Load()
}
