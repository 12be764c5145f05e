// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package protocol

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/relabs-tech/diffdrive/internal/control"
)

// Robot is what the link commands act on.
type Robot interface {
	SetCommand(linear, angular float64)
	SetEmergencyStop(on bool)
	Tuning() control.Tuning
	SetTuning(control.Tuning)
	RobotType() string
	HasStatusLEDs() bool
}

// Command is one entry of the dispatch table. Run returns the reply line,
// empty when the command has none.
type Command struct {
	Header      byte
	Run         func(r Robot, hb *Heartbeat, now time.Time, body string) (string, error)
	Description string
}

var (
	ControlCommand = &Command{
		Header: 'c',
		Run: func(r Robot, hb *Heartbeat, now time.Time, body string) (string, error) {
			v, err := parseFloats(body, 2)
			if err != nil {
				return "", err
			}
			r.SetCommand(v[0], v[1])
			hb.Update(now)
			return "", nil
		},
		Description: "Set linear and angular targets on the ±255 scale. Input: <linear>,<angular>.",
	}
	HeartbeatCommand = &Command{
		Header: 'h',
		Run: func(r Robot, hb *Heartbeat, now time.Time, body string) (string, error) {
			ms, err := strconv.ParseInt(strings.TrimSpace(body), 10, 64)
			if err != nil || ms < 0 {
				return "", fmt.Errorf("heartbeat interval %q: %w", body, ErrMalformed)
			}
			hb.SetInterval(time.Duration(ms)*time.Millisecond, now)
			return "", nil
		},
		Description: "Set the heartbeat interval in milliseconds, 0 disables. Input: <ms>.",
	}
	FeatureCommand = &Command{
		Header: 'f',
		Run: func(r Robot, hb *Heartbeat, now time.Time, body string) (string, error) {
			msg := "f" + r.RobotType() + ":"
			if r.HasStatusLEDs() {
				msg += "ls:"
			}
			return msg, nil
		},
		Description: "Report the robot type and features.",
	}
	TuningCommand = &Command{
		Header: 'm',
		Run: func(r Robot, hb *Heartbeat, now time.Time, body string) (string, error) {
			t := r.Tuning()
			if strings.TrimSpace(body) == "" {
				return FormatTuning(t), nil
			}
			v, err := parseFloats(body, 7)
			if err != nil {
				return "", err
			}
			t.Kp, t.Kd = v[0], v[1]
			t.NoControlScale, t.NormalScale, t.RotationScale = v[2], v[3], v[4]
			t.VelocityBias, t.RotationBias = v[5], v[6]
			r.SetTuning(t)
			return "", nil
		},
		Description: "Set or read tuning. Input: <kp>,<kd>,<noControl>,<normal>,<rotation>,<velBias>,<rotBias> or empty.",
	}
	StopCommand = &Command{
		Header: 's',
		Run: func(r Robot, hb *Heartbeat, now time.Time, body string) (string, error) {
			var on bool
			switch strings.TrimSpace(body) {
			case "1":
				on = true
			case "0":
			default:
				return "", fmt.Errorf("stop flag %q: %w", body, ErrMalformed)
			}
			r.SetCommand(0, 0)
			r.SetEmergencyStop(on)
			return "", nil
		},
		Description: "Engage (1) or release (0) the emergency stop. Also zeroes both targets.",
	}
	LegacyPIDCommand = &Command{
		Header: 'p',
		Run: func(r Robot, hb *Heartbeat, now time.Time, body string) (string, error) {
			v, err := parseFloats(body, 4)
			if err != nil {
				return "", err
			}
			// v[0] is the enable flag sent by older clients; the controller is
			// always on.
			t := r.Tuning()
			if v[1] > 0 {
				t.Kp = v[1]
			}
			if v[2] > 0 {
				t.Ki = v[2]
			}
			if v[3] > 0 {
				t.Kd = v[3]
			}
			r.SetTuning(t)
			return "", nil
		},
		Description: "Legacy gain update. Input: <enable>,<kp>,<ki>,<kd>; non-positive gains are ignored.",
	}
)

var commands = []*Command{
	ControlCommand,
	HeartbeatCommand,
	FeatureCommand,
	TuningCommand,
	StopCommand,
	LegacyPIDCommand,
}

// Commands returns the dispatch table ordered by header.
func Commands() []*Command {
	out := append([]*Command(nil), commands...)
	sort.Slice(out, func(i, j int) bool { return out[i].Header < out[j].Header })
	return out
}

// FormatTuning renders the m reply with two decimals per value.
func FormatTuning(t control.Tuning) string {
	vals := []float64{t.Kp, t.Kd, t.NoControlScale, t.NormalScale, t.RotationScale, t.VelocityBias, t.RotationBias}
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.FormatFloat(v, 'f', 2, 64)
	}
	return "m" + strings.Join(parts, ",")
}

// parseFloats splits body on ',' or ':' and parses exactly n finite values.
func parseFloats(body string, n int) ([]float64, error) {
	fields := strings.FieldsFunc(body, func(r rune) bool { return r == ',' || r == ':' })
	if len(fields) != n {
		return nil, fmt.Errorf("want %d values, got %d in %q: %w", n, len(fields), body, ErrMalformed)
	}
	out := make([]float64, n)
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("value %q: %w", f, ErrMalformed)
		}
		out[i] = v
	}
	return out, nil
}
