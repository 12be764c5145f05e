// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	serial "github.com/jacobsa/go-serial/serial"
	"golang.org/x/sync/errgroup"

	"github.com/relabs-tech/diffdrive/internal/protocol"
	"github.com/relabs-tech/diffdrive/internal/telemetry"
)

// SerialLink carries the line protocol over a serial port: commands in,
// replies and telemetry out.
type SerialLink struct {
	port io.ReadWriteCloser
	name string
	out  chan string
}

// OpenSerialLink opens the named port at baud, 8N1.
func OpenSerialLink(name string, baud int) (*SerialLink, error) {
	serialOpts := serial.OpenOptions{
		PortName:              name,
		BaudRate:              uint(baud),
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}

	port, err := serial.Open(serialOpts)
	if err != nil {
		return nil, fmt.Errorf("serial: open %s: %w", name, err)
	}
	log.Printf("serial: port opened on %s at %d baud", serialOpts.PortName, serialOpts.BaudRate)
	return NewSerialLink(port, name), nil
}

// NewSerialLink wraps an already open port.
func NewSerialLink(port io.ReadWriteCloser, name string) *SerialLink {
	return &SerialLink{port: port, name: name, out: make(chan string, 64)}
}

// send queues a line for the writer. Lines are dropped when the port cannot
// keep up, so the control loop never waits on it.
func (l *SerialLink) send(line string) {
	select {
	case l.out <- line:
	default:
	}
}

func (l *SerialLink) Frame(fr telemetry.Frame) {
	for _, line := range fr.Lines() {
		l.send(line)
	}
}

func (l *SerialLink) Battery(b telemetry.Battery) { l.send(b.Line()) }

// Run reads commands into inbound and writes queued lines until ctx is done
// or the port fails. The port is closed on return.
func (l *SerialLink) Run(ctx context.Context, inbound chan<- Inbound) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-ctx.Done()
		if err := l.port.Close(); err != nil {
			log.Printf("serial: close %s: %v", l.name, err)
		}
		return nil
	})

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case line := <-l.out:
				if _, err := io.WriteString(l.port, line+"\n"); err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return fmt.Errorf("serial: write %s: %w", l.name, err)
				}
			}
		}
	})

	g.Go(func() error {
		framer := protocol.NewFramer(l.port)
		for {
			line, err := framer.Next()
			if err != nil {
				if errors.Is(err, protocol.ErrMalformed) {
					log.Printf("serial: %v", err)
					continue
				}
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("serial: read %s: %w", l.name, err)
			}
			select {
			case inbound <- Inbound{Line: line, Source: "serial", Reply: l.send}:
			case <-ctx.Done():
				return nil
			}
		}
	})

	return g.Wait()
}
