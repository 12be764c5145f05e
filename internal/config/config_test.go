// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "diffdrive.config")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	t.Parallel()
	c := Default()
	require.NoError(t, c.validate())
	assert.Equal(t, RobotDIY, c.RobotType)
	assert.Equal(t, "GPIO9", c.Pins.PWMLeft)
	assert.Equal(t, 30, c.PulsesPerRevolution)
}

func TestLoadOverridesDefaults(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, `
# robot
PIN_PWM_LEFT=GPIO13
ROBOT_TYPE=DIY_ESP32
MOCK_HARDWARE=true
WHEEL_BASE=0.5
CONTROL_INTERVAL=50
GYRO_AXIS=Y
BATTERY_I2C_ADDR=0x49
HEADING_SOURCE=fused
MQTT_BROKER=tcp://localhost:1883
`)
	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, RobotDIYESP32, c.RobotType)
	assert.True(t, c.MockHardware)
	assert.Equal(t, 0.5, c.WheelBase)
	assert.Equal(t, 50*time.Millisecond, Interval(c.ControlInterval))
	assert.Equal(t, "y", c.GyroAxis)
	assert.Equal(t, uint16(0x49), c.BatteryI2CAddr)
	assert.Equal(t, HeadingSourceFused, c.HeadingSource)
	assert.Equal(t, "tcp://localhost:1883", c.MQTTBroker)

	assert.Equal(t, "GPIO13", c.Pins.PWMLeft, "override survives a later ROBOT_TYPE")
	assert.Equal(t, "GPIO7", c.Pins.PWMRight, "ESP32 table")
	assert.Equal(t, 0.16, c.WheelDiameter, "untouched keys keep defaults")

	p := c.Profile()
	assert.Equal(t, "ESP32", p.TypeString)
	assert.True(t, p.Bluetooth)
	assert.Equal(t, "GPIO13", p.Pins.PWMLeft)
}

func TestLoadErrors(t *testing.T) {
	t.Parallel()
	for _, tc := range []struct {
		name, body, want string
	}{
		{"no equals", "ROBOT_TYPE DIY\n", "invalid config line 1"},
		{"unknown key", "NOPE=1\n", "unknown config key"},
		{"unknown pin", "PIN_LED=GPIO4\n", "unknown config key"},
		{"bad robot", "ROBOT_TYPE=TANK\n", "ROBOT_TYPE"},
		{"negative interval", "CONTROL_INTERVAL=-1\n", "CONTROL_INTERVAL must be > 0"},
		{"bad float", "WHEEL_BASE=wide\n", "invalid WHEEL_BASE"},
		{"zero float", "KALMAN_NOISE_IMU=0\n", "KALMAN_NOISE_IMU must be"},
		{"gyro range", "IMU_GYRO_RANGE=4\n", "IMU_GYRO_RANGE must be 0-3"},
		{"axis", "GYRO_AXIS=w\n", "GYRO_AXIS"},
		{"heading source", "HEADING_SOURCE=compass\n", "HEADING_SOURCE"},
		{"bounds", "HEADING_SOFT_BOUND=3\nHEADING_HARD_BOUND=2\n", "must exceed"},
		{"missing hall pin", "PIN_HALL_LEFT=\n", "PIN_HALL_LEFT"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := Load(writeConfig(t, tc.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()
	_, err := Load(filepath.Join(t.TempDir(), "missing.config"))
	assert.ErrorContains(t, err, "failed to open config file")
}

func TestMockSkipsPinChecks(t *testing.T) {
	t.Parallel()
	c, err := Load(writeConfig(t, "MOCK_HARDWARE=true\nPIN_HALL_LEFT=\n"))
	require.NoError(t, err)
	assert.Empty(t, c.Pins.HallLeft)
}

func TestProfileFallback(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "Arduino", ProfileFor("unknown").TypeString)
	assert.False(t, ProfileFor(RobotDIY).Bluetooth)
}

func TestShippedConfigLoads(t *testing.T) {
	t.Parallel()
	c, err := Load(filepath.Join("..", "..", "diffdrive_config.txt"))
	require.NoError(t, err)
	assert.Equal(t, RobotDIY, c.RobotType)
	assert.Equal(t, "/dev/ttyAMA0", c.SerialPort)
	assert.Equal(t, 100, c.TelemetryInterval)
	assert.Equal(t, Default().Pins, c.Pins)
}
