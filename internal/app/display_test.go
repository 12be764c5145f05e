// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/diffdrive/internal/control"
	"github.com/relabs-tech/diffdrive/internal/telemetry"
)

func lit(pix []byte) int {
	n := 0
	for _, b := range pix {
		for ; b != 0; b &= b - 1 {
			n++
		}
	}
	return n
}

func TestRenderStatus(t *testing.T) {
	t.Parallel()

	waiting := renderStatus(Status{})
	assert.Equal(t, image.Rect(0, 0, displayWidth, displayHeight), waiting.Bounds())
	assert.Positive(t, lit(waiting.Pix))

	s := Status{Time: t0, Mode: "normal", LeftPWM: 120, RightPWM: 118}
	running := renderStatus(s)
	assert.NotEqual(t, waiting.Pix, running.Pix)

	s.EmergencyStop = true
	assert.NotEqual(t, running.Pix, renderStatus(s).Pix, "stop replaces the mode")
}

func TestRenderSplash(t *testing.T) {
	t.Parallel()
	assert.NotEqual(t, renderSplash("Arduino").Pix, renderSplash("ESP32").Pix)
}

func TestConsoleFormatting(t *testing.T) {
	t.Parallel()

	fr, err := json.Marshal(telemetry.Frame{WheelOmega: 0.5, LeftPWM: -20, RightPWM: 30, LeftCount: 1, RightCount: 2})
	require.NoError(t, err)
	assert.Equal(t, "[TELE] wheel= +0.500 imu= +0.000 fused= +0.000 v=+0.000 pwm= -20,  30 cnt=1,2", formatFrame(fr))

	b, err := json.Marshal(telemetry.Battery{Percent: 64, Voltage: 3.07})
	require.NoError(t, err)
	assert.Equal(t, "[BATT]  64% 3.07V", formatBattery(b))

	st, err := json.Marshal(Status{
		Time:          t0,
		Robot:         "ESP32",
		Mode:          control.ModeNoControl.String(),
		Heading:       control.HeadingState{Heading: 0.25, TargetHeading: -0.5},
		EmergencyStop: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "[STATE] ESP32 no-control heading=+0.25 target=-0.50 pwm=0,0 resets=0 STOP", formatState(st))

	assert.Empty(t, formatFrame([]byte("{")))
	assert.Empty(t, formatState([]byte("nope")))
}

func TestMockConsoleStatusLine(t *testing.T) {
	t.Parallel()
	line := statusLine(Status{Mode: "normal", LeftPWM: 80, RightPWM: 90, Battery: telemetry.Battery{Percent: 93}})
	assert.Contains(t, line, "normal")
	assert.Contains(t, line, "PWM=  80,  90")
	assert.Contains(t, line, "BAT= 93%")
}
