// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/relabs-tech/diffdrive/internal/config"
)

// RunMockConsole drives the control core against the simulated chassis.
// Protocol lines are read from in; replies and a status line every
// 100 ms go to out.
func RunMockConsole(ctx context.Context, in io.Reader, out io.Writer) error {
	cfg := *config.Get()
	cfg.MockHardware = true

	hw, err := openHardware(&cfg)
	if err != nil {
		return err
	}
	defer hw.close()
	robot, _ := newCore(ctx, &cfg, hw)

	inbound := make(chan Inbound)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return robot.Run(ctx, inbound) })

	g.Go(func() error {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if s := robot.Status(); !s.Time.IsZero() {
					fmt.Fprintln(out, statusLine(s))
				}
			}
		}
	})

	// The scanner goroutine is left blocked on in when ctx ends first.
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case line, ok := <-lines:
				if !ok {
					return nil
				}
				line = strings.TrimSpace(line)
				if line == "" {
					continue
				}
				msg := Inbound{Line: line, Source: "console", Reply: func(r string) { fmt.Fprintln(out, "< "+r) }}
				select {
				case inbound <- msg:
				case <-ctx.Done():
					return nil
				}
			}
		}
	})

	return g.Wait()
}

func statusLine(s Status) string {
	return fmt.Sprintf("%-19s HEAD=%+6.2f TGT=%+6.2f LIN=%+5.2f PWM=%4d,%4d W=%+6.3f V=%+6.3f BAT=%3d%%",
		s.Mode, s.Heading.Heading, s.Heading.TargetHeading, s.RampedLinear,
		s.LeftPWM, s.RightPWM, s.Fused.Angular, s.Fused.Linear, s.Battery.Percent)
}
