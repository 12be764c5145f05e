// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package protocol

import (
	"fmt"
	"time"
)

// Dispatcher routes lines to the command table. It is used from the control
// goroutine only.
type Dispatcher struct {
	robot Robot
	hb    *Heartbeat
	cmds  map[byte]*Command
}

// NewDispatcher builds the dispatch table for r.
func NewDispatcher(r Robot) *Dispatcher {
	d := &Dispatcher{
		robot: r,
		hb:    &Heartbeat{},
		cmds:  make(map[byte]*Command, len(commands)),
	}
	for _, c := range commands {
		d.cmds[c.Header] = c
	}
	return d
}

// Heartbeat returns the link watchdog fed by c and h lines.
func (d *Dispatcher) Heartbeat() *Heartbeat { return d.hb }

// Handle runs one line and returns its reply, if any. A line that fails to
// parse leaves the robot untouched.
func (d *Dispatcher) Handle(now time.Time, line string) (string, error) {
	if line == "" {
		return "", fmt.Errorf("protocol: empty line: %w", ErrMalformed)
	}
	if len(line) > MaxMessageSize {
		return "", fmt.Errorf("protocol: line of %d bytes exceeds %d: %w", len(line), MaxMessageSize, ErrMalformed)
	}
	cmd, ok := d.cmds[line[0]]
	if !ok {
		return "", fmt.Errorf("protocol: header %q: %w", line[0], ErrUnknownHeader)
	}
	reply, err := cmd.Run(d.robot, d.hb, now, line[1:])
	if err != nil {
		return "", fmt.Errorf("protocol: %c: %w", cmd.Header, err)
	}
	return reply, nil
}
