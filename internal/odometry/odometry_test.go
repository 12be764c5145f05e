// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package odometry

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounterDrain(t *testing.T) {
	t.Parallel()
	var c Counter
	for i := 0; i < 7; i++ {
		c.Left()
	}
	for i := 0; i < 3; i++ {
		c.Right()
	}

	l, r := c.Peek()
	assert.Equal(t, uint32(7), l)
	assert.Equal(t, uint32(3), r)

	l, r = c.Drain()
	assert.Equal(t, uint32(7), l)
	assert.Equal(t, uint32(3), r)

	l, r = c.Drain()
	assert.Zero(t, l)
	assert.Zero(t, r)
}

func TestCounterConcurrentDrainLosesNothing(t *testing.T) {
	t.Parallel()
	var c Counter
	const edges = 10000

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < edges; i++ {
			c.Left()
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < edges; i++ {
			c.Right()
		}
	}()

	var totalL, totalR uint32
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for {
		l, r := c.Drain()
		totalL += l
		totalR += r
		select {
		case <-done:
			l, r = c.Drain()
			totalL += l
			totalR += r
			assert.Equal(t, uint32(edges), totalL)
			assert.Equal(t, uint32(edges), totalR)
			return
		default:
		}
	}
}

type fixedPulses struct{ l, r uint32 }

func (f *fixedPulses) Drain() (uint32, uint32) { return f.l, f.r }

func TestOdometryVelocities(t *testing.T) {
	t.Parallel()
	src := &fixedPulses{l: 30, r: 30}
	o := New(src, DefaultParams())
	now := time.Unix(100, 0)

	require.True(t, o.Update(now))

	// One revolution per 250 ms window is 240 rpm.
	want := 240 * math.Pi * DefaultWheelDiameter / 60
	l, r := o.Wheels()
	assert.InDelta(t, want, l, 1e-9)
	assert.InDelta(t, want, r, 1e-9)
	assert.InDelta(t, want, o.Linear(), 1e-9)
	assert.InDelta(t, 0, o.Angular(), 1e-9)
}

func TestOdometryAngular(t *testing.T) {
	t.Parallel()
	src := &fixedPulses{l: 0, r: 6}
	o := New(src, DefaultParams())

	o.Update(time.Unix(100, 0))

	_, vr := o.Wheels()
	assert.InDelta(t, vr/DefaultWheelBase, o.Angular(), 1e-9)
	assert.InDelta(t, vr/2, o.Linear(), 1e-9)
}

func TestOdometryCadence(t *testing.T) {
	t.Parallel()
	src := &fixedPulses{l: 15, r: 15}
	o := New(src, DefaultParams())
	t0 := time.Unix(100, 0)

	require.True(t, o.Update(t0))
	first := o.Linear()

	src.l, src.r = 0, 0
	assert.False(t, o.Update(t0.Add(100*time.Millisecond)))
	assert.Equal(t, first, o.Linear(), "values must hold between cadence boundaries")

	assert.True(t, o.Update(t0.Add(250*time.Millisecond)))
	assert.Zero(t, o.Linear())
}

func TestOdometryValidity(t *testing.T) {
	t.Parallel()
	o := New(&fixedPulses{}, DefaultParams())
	t0 := time.Unix(100, 0)

	assert.False(t, o.Valid(t0), "never updated")

	o.Update(t0)
	assert.True(t, o.Valid(t0.Add(999*time.Millisecond)))
	assert.False(t, o.Valid(t0.Add(1000*time.Millisecond)))
}

func TestOdometryDirection(t *testing.T) {
	t.Parallel()
	o := New(&fixedPulses{l: 6, r: 6}, DefaultParams())
	o.SetDirection(func() (int, int) { return -1, 1 })

	o.Update(time.Unix(100, 0))

	l, r := o.Wheels()
	assert.Less(t, l, 0.0)
	assert.Greater(t, r, 0.0)
	assert.InDelta(t, 0, o.Linear(), 1e-9)
	assert.InDelta(t, 2*r/DefaultWheelBase, o.Angular(), 1e-9)
}

func TestPulsesForVelocity(t *testing.T) {
	t.Parallel()
	p := DefaultParams()
	v := 240 * math.Pi * p.WheelDiameter / 60
	assert.InDelta(t, 30, p.PulsesForVelocity(v), 1e-9)
}
