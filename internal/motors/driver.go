// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package motors drives the two wheel motors from signed PWM commands.
package motors

import (
	"fmt"
	"log"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

// Driver writes signed PWM values to the motor bridge.
// This allows plugging in the periph implementation or a mock for
// development on PC.
type Driver interface {
	Drive(left, right int16) error
	SetStop(on bool) error
	Close() error
}

// Pins names the GPIOs of the motor bridge.
type Pins struct {
	PWMLeft, PWMRight             string
	DirectionLeft, DirectionRight string
	StopLeft, StopRight           string
}

// PeriphDriver drives a direction+PWM bridge through periph.io.
type PeriphDriver struct {
	pwmL, pwmR   gpio.PinIO
	dirL, dirR   gpio.PinIO
	stopL, stopR gpio.PinIO
	freq         physic.Frequency
}

// NewPeriphDriver resolves and configures the bridge pins. Stop pins are
// optional; an empty name leaves that side without an emergency brake line.
func NewPeriphDriver(p Pins, freq physic.Frequency) (*PeriphDriver, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("motors: periph host init: %w", err)
	}
	if freq <= 0 {
		freq = physic.KiloHertz
	}
	d := &PeriphDriver{freq: freq}

	var err error
	for _, b := range []struct {
		name  string
		pin   *gpio.PinIO
		need  bool
		label string
	}{
		{p.PWMLeft, &d.pwmL, true, "left PWM"},
		{p.PWMRight, &d.pwmR, true, "right PWM"},
		{p.DirectionLeft, &d.dirL, true, "left direction"},
		{p.DirectionRight, &d.dirR, true, "right direction"},
		{p.StopLeft, &d.stopL, false, "left stop"},
		{p.StopRight, &d.stopR, false, "right stop"},
	} {
		if b.name == "" && !b.need {
			continue
		}
		pin := gpioreg.ByName(b.name)
		if pin == nil {
			return nil, fmt.Errorf("motors: %s pin %q not found", b.label, b.name)
		}
		if err = pin.Out(gpio.Low); err != nil {
			return nil, fmt.Errorf("motors: %s pin %q: %w", b.label, b.name, err)
		}
		*b.pin = pin
	}
	log.Printf("motors: bridge ready (PWM %s/%s, dir %s/%s, %s)",
		p.PWMLeft, p.PWMRight, p.DirectionLeft, p.DirectionRight, freq)
	return d, nil
}

func duty(v int16) gpio.Duty {
	a := int64(v)
	if a < 0 {
		a = -a
	}
	if a > 255 {
		a = 255
	}
	return gpio.Duty(a * int64(gpio.DutyMax) / 255)
}

// Drive sets direction and duty on both sides. The right motor is mounted
// mirrored, so its direction line has the opposite polarity.
func (d *PeriphDriver) Drive(left, right int16) error {
	dirL := gpio.Low
	if left < 0 {
		dirL = gpio.High
	}
	dirR := gpio.High
	if right < 0 {
		dirR = gpio.Low
	}
	if err := d.dirL.Out(dirL); err != nil {
		return fmt.Errorf("motors: left direction: %w", err)
	}
	if err := d.pwmL.PWM(duty(left), d.freq); err != nil {
		return fmt.Errorf("motors: left PWM: %w", err)
	}
	if err := d.dirR.Out(dirR); err != nil {
		return fmt.Errorf("motors: right direction: %w", err)
	}
	if err := d.pwmR.PWM(duty(right), d.freq); err != nil {
		return fmt.Errorf("motors: right PWM: %w", err)
	}
	return nil
}

// SetStop drives the brake lines high while the emergency stop is on.
func (d *PeriphDriver) SetStop(on bool) error {
	lvl := gpio.Low
	if on {
		lvl = gpio.High
	}
	for _, p := range []gpio.PinIO{d.stopL, d.stopR} {
		if p == nil {
			continue
		}
		if err := p.Out(lvl); err != nil {
			return fmt.Errorf("motors: stop pin %s: %w", p.Name(), err)
		}
	}
	return nil
}

// Close stops both motors and releases the pins.
func (d *PeriphDriver) Close() error {
	err := d.Drive(0, 0)
	for _, p := range []gpio.PinIO{d.pwmL, d.pwmR, d.dirL, d.dirR, d.stopL, d.stopR} {
		if p == nil {
			continue
		}
		if herr := p.Halt(); herr != nil {
			log.Printf("motors: halt %s: %v", p.Name(), herr)
		}
	}
	return err
}

// MockDriver records the last values written. Used for development on PC
// and in tests.
type MockDriver struct {
	mu          sync.Mutex
	Left, Right int16
	Stop        bool
	Writes      int
	Closed      bool
}

func (m *MockDriver) Drive(left, right int16) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Left, m.Right = left, right
	m.Writes++
	return nil
}

func (m *MockDriver) SetStop(on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Stop = on
	return nil
}

func (m *MockDriver) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}

// Snapshot returns the recorded state.
func (m *MockDriver) Snapshot() (left, right int16, stop bool, writes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Left, m.Right, m.Stop, m.Writes
}
