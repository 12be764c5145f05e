// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// EdgeCounter receives one call per hall edge.
type EdgeCounter interface {
	Left()
	Right()
}

// edgePollTimeout bounds each WaitForEdge so cancellation is noticed.
const edgePollTimeout = 100 * time.Millisecond

// HallWatcher counts both edges of the two wheel hall sensors.
type HallWatcher struct {
	left, right gpio.PinIO
	counter     EdgeCounter
}

// NewHallWatcher configures the named pins as pulled-up inputs with edge
// detection on both edges.
func NewHallWatcher(leftPin, rightPin string, counter EdgeCounter) (*HallWatcher, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("hall: periph host init: %w", err)
	}
	l, err := openHallPin("left", leftPin)
	if err != nil {
		return nil, err
	}
	r, err := openHallPin("right", rightPin)
	if err != nil {
		return nil, err
	}
	return &HallWatcher{left: l, right: r, counter: counter}, nil
}

func openHallPin(side, name string) (gpio.PinIO, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("%s hall: pin %q not found", side, name)
	}
	if err := p.In(gpio.PullUp, gpio.BothEdges); err != nil {
		return nil, fmt.Errorf("%s hall: configure %s: %w", side, name, err)
	}
	return p, nil
}

// Run watches both pins until ctx is cancelled.
func (h *HallWatcher) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return watchEdges(ctx, h.left, h.counter.Left) })
	g.Go(func() error { return watchEdges(ctx, h.right, h.counter.Right) })
	err := g.Wait()
	for _, p := range []gpio.PinIO{h.left, h.right} {
		if herr := p.Halt(); herr != nil {
			log.Printf("hall: halt %s: %v", p.Name(), herr)
		}
	}
	return err
}

func watchEdges(ctx context.Context, p gpio.PinIO, count func()) error {
	for ctx.Err() == nil {
		if p.WaitForEdge(edgePollTimeout) {
			count()
		}
	}
	return nil
}
