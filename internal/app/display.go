// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"image"
	"log"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"
)

const (
	displayWidth  = 128
	displayHeight = 64
)

// StatusDisplay shows the robot status on an SSD1306 OLED.
type StatusDisplay struct {
	bus i2c.BusCloser
	dev *ssd1306.Dev
}

// OpenStatusDisplay opens the OLED on the named I2C bus ("" for the first
// one) and shows the splash screen.
func OpenStatusDisplay(busName, robot string) (*StatusDisplay, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph: %w", err)
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("failed to open I2C bus: %w", err)
	}
	dev, err := ssd1306.NewI2C(bus, &ssd1306.DefaultOpts)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("failed to initialize display: %w", err)
	}
	log.Printf("display: initialized on bus %q", busName)

	d := &StatusDisplay{bus: bus, dev: dev}
	if err := d.draw(renderSplash(robot)); err != nil {
		log.Printf("display: error showing splash: %v", err)
	}
	return d, nil
}

func (d *StatusDisplay) draw(img *image1bit.VerticalLSB) error {
	return d.dev.Draw(d.dev.Bounds(), img, image.Point{})
}

// Run redraws the status every interval until ctx is done, then blanks
// the panel.
func (d *StatusDisplay) Run(ctx context.Context, src StatusSource, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer d.close()

	log.Println("display: starting update loop")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := d.draw(renderStatus(src.Status())); err != nil {
				log.Printf("display: error updating display: %v", err)
			}
		}
	}
}

func (d *StatusDisplay) close() {
	if err := d.dev.Halt(); err != nil {
		log.Printf("display: halt: %v", err)
	}
	if err := d.bus.Close(); err != nil {
		log.Printf("display: close bus: %v", err)
	}
}

// canvas is a blank frame with a 7x13 text drawer.
type canvas struct {
	img    *image1bit.VerticalLSB
	drawer *font.Drawer
}

func newCanvas() *canvas {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, displayWidth, displayHeight))
	return &canvas{
		img: img,
		drawer: &font.Drawer{
			Dst:  img,
			Src:  &image.Uniform{image1bit.On},
			Face: basicfont.Face7x13,
		},
	}
}

// line draws text on baseline row (1-based, 13 px per row).
func (c *canvas) line(row int, text string) {
	c.drawer.Dot = fixed.P(0, row*13)
	c.drawer.DrawString(text)
}

func renderSplash(robot string) *image1bit.VerticalLSB {
	c := newCanvas()
	c.drawer.Dot = fixed.P(10, 26)
	c.drawer.DrawString("diffdrive")
	c.drawer.Dot = fixed.P(10, 43)
	c.drawer.DrawString(robot)
	return c.img
}

// renderStatus lays the status out on four text rows.
func renderStatus(s Status) *image1bit.VerticalLSB {
	c := newCanvas()
	if s.Time.IsZero() {
		c.line(2, "Robot")
		c.line(3, "Waiting...")
		return c.img
	}

	mode := s.Mode
	if s.EmergencyStop {
		mode = "STOP"
	}
	c.line(1, fmt.Sprintf("%-10s %3d%%", mode, s.Battery.Percent))
	c.line(2, fmt.Sprintf("H:%+6.2f T:%+6.2f", s.Heading.Heading, s.Heading.TargetHeading))
	pwm := fmt.Sprintf("P:%4d %4d", s.LeftPWM, s.RightPWM)
	if s.HighUncertainty {
		pwm += " NOFIX"
	}
	c.line(3, pwm)
	c.line(4, fmt.Sprintf("v:%+5.2f w:%+5.2f", s.Fused.Linear, s.Fused.Angular))
	return c.img
}
