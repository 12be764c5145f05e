// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package motors

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/relabs-tech/diffdrive/internal/control"
)

// DefaultUpdateInterval is the minimum spacing between two bridge writes.
const DefaultUpdateInterval = 20 * time.Millisecond

// Actuator applies shaped PWM commands to a Driver at a bounded rate and
// owns the emergency stop. Current is safe to call from other goroutines.
type Actuator struct {
	drv      Driver
	interval time.Duration

	mu          sync.Mutex
	left, right int16
	stopped     bool
	last        time.Time
}

// NewActuator wraps drv. A non-positive interval uses DefaultUpdateInterval.
func NewActuator(drv Driver, interval time.Duration) *Actuator {
	if interval <= 0 {
		interval = DefaultUpdateInterval
	}
	return &Actuator{drv: drv, interval: interval}
}

// Apply writes cmd to the bridge if the update interval has elapsed and
// reports whether a write happened. While the emergency stop is on the
// bridge is held at zero.
func (a *Actuator) Apply(now time.Time, cmd control.PWMCommand) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.last.IsZero() && now.Sub(a.last) < a.interval {
		return false
	}
	a.last = now
	if a.stopped {
		cmd = control.PWMCommand{}
	}
	if err := a.drv.Drive(cmd.Left, cmd.Right); err != nil {
		log.Printf("motors: drive %d,%d: %v", cmd.Left, cmd.Right, err)
		return false
	}
	a.left, a.right = cmd.Left, cmd.Right
	return true
}

// SetEmergencyStop engages or releases the brake lines. Engaging also
// zeroes both motors immediately, bypassing the update interval.
func (a *Actuator) SetEmergencyStop(on bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if on == a.stopped {
		return nil
	}
	if err := a.drv.SetStop(on); err != nil {
		return fmt.Errorf("motors: set stop %v: %w", on, err)
	}
	a.stopped = on
	if on {
		if err := a.drv.Drive(0, 0); err != nil {
			return fmt.Errorf("motors: zero on stop: %w", err)
		}
		a.left, a.right = 0, 0
	}
	log.Printf("motors: emergency stop %v", on)
	return nil
}

// Stopped reports whether the emergency stop is engaged.
func (a *Actuator) Stopped() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stopped
}

// Current returns the last PWM pair written to the bridge.
func (a *Actuator) Current() (left, right int16) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.left, a.right
}

// Close zeroes the motors and releases the driver.
func (a *Actuator) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.left, a.right = 0, 0
	return a.drv.Close()
}
