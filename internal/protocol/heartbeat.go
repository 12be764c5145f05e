// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package protocol

import "time"

// Heartbeat is the link liveness watchdog. It only answers whether the link
// went quiet; stopping the robot is up to the caller.
type Heartbeat struct {
	interval time.Duration
	last     time.Time
	tripped  bool
}

// Update records a sign of life.
func (h *Heartbeat) Update(now time.Time) {
	h.last = now
	h.tripped = false
}

// SetInterval sets the watchdog interval and counts as a sign of life.
// Zero disables the watchdog.
func (h *Heartbeat) SetInterval(d time.Duration, now time.Time) {
	if d < 0 {
		d = 0
	}
	h.interval = d
	h.Update(now)
}

// Interval returns the configured interval.
func (h *Heartbeat) Interval() time.Duration { return h.interval }

// Expired reports whether the interval has passed since the last sign of
// life. A disabled watchdog never expires.
func (h *Heartbeat) Expired(now time.Time) bool {
	if h.interval <= 0 {
		return false
	}
	return now.Sub(h.last) >= h.interval
}

// Trip reports true once per expiry, so the caller acts a single time
// until the next sign of life.
func (h *Heartbeat) Trip(now time.Time) bool {
	if h.tripped || !h.Expired(now) {
		return false
	}
	h.tripped = true
	return true
}
