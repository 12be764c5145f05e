// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"
	"log"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/ads1x15"
	"periph.io/x/host/v3"
)

// BatteryOptions selects the ADC wiring of the battery divider.
type BatteryOptions struct {
	I2CBus  string
	Address uint16
	Channel int     // 0-3, single-ended
	Scale   float64 // multiplier from ADC volts to divider volts
}

// ADCBattery reads the battery divider through an ADS1115.
type ADCBattery struct {
	bus   i2c.BusCloser
	pin   ads1x15.PinADC
	scale float64
}

var adsChannels = [4]ads1x15.Channel{ads1x15.Channel0, ads1x15.Channel1, ads1x15.Channel2, ads1x15.Channel3}

// NewADCBattery opens the I2C bus and binds the ADC channel.
func NewADCBattery(o BatteryOptions) (*ADCBattery, error) {
	if o.Channel < 0 || o.Channel > 3 {
		return nil, fmt.Errorf("battery ADC: channel must be 0-3, got %d", o.Channel)
	}
	if o.Scale <= 0 {
		o.Scale = 1
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("battery ADC: periph host init: %w", err)
	}

	bus, err := i2creg.Open(o.I2CBus)
	if err != nil {
		return nil, fmt.Errorf("battery ADC: I2C open: %w", err)
	}

	opts := ads1x15.DefaultOpts
	if o.Address != 0 {
		opts.I2cAddress = o.Address
	}
	adc, err := ads1x15.NewADS1115(bus, &opts)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("battery ADC: init: %w", err)
	}

	pin, err := adc.PinForChannel(adsChannels[o.Channel], 4096*physic.MilliVolt, physic.Hertz, ads1x15.SaveEnergy)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("battery ADC: channel %d: %w", o.Channel, err)
	}

	log.Printf("battery ADC: ADS1115 at 0x%02X channel %d", opts.I2cAddress, o.Channel)
	return &ADCBattery{bus: bus, pin: pin, scale: o.Scale}, nil
}

// ReadVoltage returns the divider voltage in volts.
func (b *ADCBattery) ReadVoltage() (float64, error) {
	s, err := b.pin.Read()
	if err != nil {
		return 0, fmt.Errorf("battery ADC read: %w", err)
	}
	return float64(s.V) / float64(physic.Volt) * b.scale, nil
}

// Close releases the ADC channel and the bus.
func (b *ADCBattery) Close() error {
	if err := b.pin.Halt(); err != nil {
		log.Printf("battery ADC: halt: %v", err)
	}
	return b.bus.Close()
}
