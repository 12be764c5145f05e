// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package protocol implements the line-oriented command link: framing,
// the header-byte dispatch table and the heartbeat watchdog.
package protocol

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// MaxMessageSize is the longest accepted line, header included.
const MaxMessageSize = 60

var (
	// ErrMalformed marks a line whose body cannot be parsed.
	ErrMalformed = errors.New("malformed message")
	// ErrUnknownHeader marks a line whose first byte names no command.
	ErrUnknownHeader = errors.New("unknown header")
)

// Framer splits a byte stream into protocol lines.
type Framer struct {
	r *bufio.Reader
}

// NewFramer reads lines from r.
func NewFramer(r io.Reader) *Framer {
	return &Framer{r: bufio.NewReader(r)}
}

// Next returns the next non-empty line without its terminator. Lines longer
// than MaxMessageSize are consumed and reported as ErrMalformed so the
// caller can log them and keep reading. Any other error comes from the
// underlying reader.
func (f *Framer) Next() (string, error) {
	for {
		line, err := f.r.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) && strings.TrimSpace(line) != "" {
				return "", fmt.Errorf("protocol: partial line at EOF: %w", err)
			}
			return "", err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			continue
		}
		if len(line) > MaxMessageSize {
			return "", fmt.Errorf("protocol: line of %d bytes exceeds %d: %w", len(line), MaxMessageSize, ErrMalformed)
		}
		return line, nil
	}
}

// SplitLines breaks a message that may carry several protocol lines into
// its non-empty lines, as a websocket frame may.
func SplitLines(msg string) []string {
	var out []string
	for _, l := range strings.Split(msg, "\n") {
		l = strings.TrimRight(l, "\r")
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}
