// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Config holds all application configuration values.
type Config struct {
	// Robot
	RobotType    string // DIY or DIY_ESP32, selects the pin table
	MockHardware bool   // simulate the chassis instead of opening GPIO/SPI/I2C
	Pins         Pins   // starts from the robot profile, PIN_* keys override

	// Geometry
	WheelDiameter       float64 // metres
	WheelBase           float64 // metres
	PulsesPerRevolution int

	// Timing, milliseconds
	LoopInterval      int
	GyroInterval      int
	EstimatorInterval int
	OdometryInterval  int
	WheelStaleAfter   int
	ControlInterval   int
	MotorInterval     int
	BatteryInterval   int
	TelemetryInterval int // link and MQTT frame rate

	// Kalman noise
	KalmanProcessNoise float64
	KalmanNoiseWheel   float64
	KalmanNoiseIMU     float64

	// Controller
	AccelerationRate float64
	DecelerationRate float64
	HeadingSoftBound float64
	HeadingHardBound float64
	SettleThreshold  float64
	HeadingSource    string // "gyro" or "fused"

	// IMU
	IMUSPIDevice       string
	IMUCSPin           string
	IMUGyroRange       byte // 0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s
	IMUAccelRange      byte // 0=±2g, 1=±4g, 2=±8g, 3=±16g
	GyroAxis           string
	ForwardAxis        string
	YawWindowSize      int
	CalibrateOnStart   bool
	CalibrationSamples int
	CalibrationFile    string

	// Battery
	BatteryI2CBus  string
	BatteryI2CAddr uint16
	BatteryChannel int
	BatteryScale   float64 // divider ratio applied to the ADC reading

	// Motors
	MotorPWMFrequency int // Hz

	// Serial link
	SerialPort     string
	SerialBaudRate int

	// Web Server
	WebServerPort int

	// MQTT
	MQTTBroker          string
	MQTTClientIDRobot   string
	MQTTClientIDConsole string
	TopicTelemetry      string
	TopicBattery        string
	TopicState          string
	TopicCommand        string

	// Display
	DisplayEnabled        bool
	DisplayI2CBus         string
	DisplayUpdateInterval int // milliseconds

	// Persistence
	TuningFile string
}

// Package-level singleton: InitGlobal sets it once, Get reads it under a
// read lock.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Default returns the DIY robot configuration with every value set.
func Default() *Config {
	c := &Config{
		RobotType: RobotDIY,

		WheelDiameter:       0.16,
		WheelBase:           0.43,
		PulsesPerRevolution: 30,

		LoopInterval:      2,
		GyroInterval:      10,
		EstimatorInterval: 10,
		OdometryInterval:  250,
		WheelStaleAfter:   1000,
		ControlInterval:   100,
		MotorInterval:     20,
		BatteryInterval:   1000,
		TelemetryInterval: 100,

		KalmanProcessNoise: 0.1,
		KalmanNoiseWheel:   0.5,
		KalmanNoiseIMU:     1.0,

		AccelerationRate: 0.5,
		DecelerationRate: 0.9,
		HeadingSoftBound: 2.0,
		HeadingHardBound: 3.0,
		SettleThreshold:  0.1,
		HeadingSource:    HeadingSourceGyro,

		IMUSPIDevice:       "/dev/spidev0.0",
		IMUCSPin:           "GPIO8",
		IMUGyroRange:       0,
		IMUAccelRange:      0,
		GyroAxis:           "z",
		ForwardAxis:        "x",
		YawWindowSize:      25,
		CalibrateOnStart:   true,
		CalibrationSamples: 600,
		CalibrationFile:    "calibration.json",

		BatteryI2CBus:  "",
		BatteryI2CAddr: 0x48,
		BatteryChannel: 0,
		BatteryScale:   1.0,

		MotorPWMFrequency: 1000,

		SerialBaudRate: 115200,

		WebServerPort: 8080,

		MQTTClientIDRobot:   "diffdrive-robot",
		MQTTClientIDConsole: "diffdrive-console",
		TopicTelemetry:      "diffdrive/telemetry",
		TopicBattery:        "diffdrive/battery",
		TopicState:          "diffdrive/state",
		TopicCommand:        "diffdrive/command",

		DisplayI2CBus:         "",
		DisplayUpdateInterval: 500,

		TuningFile: "tuning.yaml",
	}
	c.Pins = ProfileFor(c.RobotType).Pins
	return c
}

// Load reads the configuration file on top of Default.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := Default()
	pinOverrides := map[string]string{}
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Pin keys are applied after ROBOT_TYPE, wherever it appears.
		if strings.HasPrefix(key, "PIN_") {
			if _, ok := pinKeys[key]; !ok {
				return nil, fmt.Errorf("config line %d: unknown config key: %q", lineNum, key)
			}
			pinOverrides[key] = value
			continue
		}
		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	cfg.Pins = ProfileFor(cfg.RobotType).Pins
	for key, value := range pinOverrides {
		*pinKeys[key](&cfg.Pins) = value
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

var pinKeys = map[string]func(*Pins) *string{
	"PIN_PWM_LEFT":        func(p *Pins) *string { return &p.PWMLeft },
	"PIN_PWM_RIGHT":       func(p *Pins) *string { return &p.PWMRight },
	"PIN_DIRECTION_LEFT":  func(p *Pins) *string { return &p.DirectionLeft },
	"PIN_DIRECTION_RIGHT": func(p *Pins) *string { return &p.DirectionRight },
	"PIN_STOP_LEFT":       func(p *Pins) *string { return &p.StopLeft },
	"PIN_STOP_RIGHT":      func(p *Pins) *string { return &p.StopRight },
	"PIN_HALL_LEFT":       func(p *Pins) *string { return &p.HallLeft },
	"PIN_HALL_RIGHT":      func(p *Pins) *string { return &p.HallRight },
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	var err error
	switch key {
	// Robot
	case "ROBOT_TYPE":
		if _, ok := profiles[value]; !ok {
			return fmt.Errorf("ROBOT_TYPE must be %s or %s, got %q", RobotDIY, RobotDIYESP32, value)
		}
		c.RobotType = value
	case "MOCK_HARDWARE":
		c.MockHardware, err = parseBool(key, value)

	// Geometry
	case "WHEEL_DIAMETER":
		c.WheelDiameter, err = parsePositive(key, value)
	case "WHEEL_BASE":
		c.WheelBase, err = parsePositive(key, value)
	case "PULSES_PER_REVOLUTION":
		c.PulsesPerRevolution, err = parsePositiveInt(key, value)

	// Timing
	case "LOOP_INTERVAL":
		c.LoopInterval, err = parsePositiveInt(key, value)
	case "GYRO_INTERVAL":
		c.GyroInterval, err = parsePositiveInt(key, value)
	case "ESTIMATOR_INTERVAL":
		c.EstimatorInterval, err = parsePositiveInt(key, value)
	case "ODOMETRY_INTERVAL":
		c.OdometryInterval, err = parsePositiveInt(key, value)
	case "WHEEL_STALE_AFTER":
		c.WheelStaleAfter, err = parsePositiveInt(key, value)
	case "CONTROL_INTERVAL":
		c.ControlInterval, err = parsePositiveInt(key, value)
	case "MOTOR_INTERVAL":
		c.MotorInterval, err = parsePositiveInt(key, value)
	case "BATTERY_INTERVAL":
		c.BatteryInterval, err = parsePositiveInt(key, value)
	case "TELEMETRY_INTERVAL":
		c.TelemetryInterval, err = parsePositiveInt(key, value)

	// Kalman noise
	case "KALMAN_PROCESS_NOISE":
		c.KalmanProcessNoise, err = parsePositive(key, value)
	case "KALMAN_NOISE_WHEEL":
		c.KalmanNoiseWheel, err = parsePositive(key, value)
	case "KALMAN_NOISE_IMU":
		c.KalmanNoiseIMU, err = parsePositive(key, value)

	// Controller
	case "ACCELERATION_RATE":
		c.AccelerationRate, err = parsePositive(key, value)
	case "DECELERATION_RATE":
		c.DecelerationRate, err = parsePositive(key, value)
	case "HEADING_SOFT_BOUND":
		c.HeadingSoftBound, err = parsePositive(key, value)
	case "HEADING_HARD_BOUND":
		c.HeadingHardBound, err = parsePositive(key, value)
	case "SETTLE_THRESHOLD":
		c.SettleThreshold, err = parsePositive(key, value)
	case "HEADING_SOURCE":
		if value != HeadingSourceGyro && value != HeadingSourceFused {
			return fmt.Errorf("HEADING_SOURCE must be %s or %s, got %q", HeadingSourceGyro, HeadingSourceFused, value)
		}
		c.HeadingSource = value

	// IMU
	case "IMU_SPI_DEVICE":
		c.IMUSPIDevice = value
	case "IMU_CS_PIN":
		c.IMUCSPin = value
	case "IMU_GYRO_RANGE":
		c.IMUGyroRange, err = parseRange(key, value, "0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s")
	case "IMU_ACCEL_RANGE":
		c.IMUAccelRange, err = parseRange(key, value, "0=±2g, 1=±4g, 2=±8g, 3=±16g")
	case "GYRO_AXIS":
		c.GyroAxis, err = parseAxis(key, value)
	case "FORWARD_AXIS":
		c.ForwardAxis, err = parseAxis(key, value)
	case "YAW_WINDOW_SIZE":
		c.YawWindowSize, err = parsePositiveInt(key, value)
	case "CALIBRATE_ON_START":
		c.CalibrateOnStart, err = parseBool(key, value)
	case "CALIBRATION_SAMPLES":
		c.CalibrationSamples, err = parsePositiveInt(key, value)
	case "CALIBRATION_FILE":
		c.CalibrationFile = value

	// Battery
	case "BATTERY_I2C_BUS":
		c.BatteryI2CBus = value
	case "BATTERY_I2C_ADDR":
		addr, perr := strconv.ParseUint(value, 0, 16)
		if perr != nil {
			return fmt.Errorf("invalid BATTERY_I2C_ADDR %q: %w", value, perr)
		}
		c.BatteryI2CAddr = uint16(addr)
	case "BATTERY_CHANNEL":
		ch, perr := strconv.Atoi(value)
		if perr != nil {
			return fmt.Errorf("invalid BATTERY_CHANNEL %q: %w", value, perr)
		}
		if ch < 0 || ch > 3 {
			return fmt.Errorf("BATTERY_CHANNEL must be 0-3, got %d", ch)
		}
		c.BatteryChannel = ch
	case "BATTERY_SCALE":
		c.BatteryScale, err = parsePositive(key, value)

	// Motors
	case "MOTOR_PWM_FREQUENCY":
		c.MotorPWMFrequency, err = parsePositiveInt(key, value)

	// Serial link
	case "SERIAL_PORT":
		c.SerialPort = value
	case "SERIAL_BAUD_RATE":
		c.SerialBaudRate, err = parsePositiveInt(key, value)

	// Web Server
	case "WEB_SERVER_PORT":
		port, perr := strconv.Atoi(value)
		if perr != nil {
			return fmt.Errorf("invalid WEB_SERVER_PORT %q: %w", value, perr)
		}
		c.WebServerPort = port

	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_ROBOT":
		c.MQTTClientIDRobot = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "TOPIC_TELEMETRY":
		c.TopicTelemetry = value
	case "TOPIC_BATTERY":
		c.TopicBattery = value
	case "TOPIC_STATE":
		c.TopicState = value
	case "TOPIC_COMMAND":
		c.TopicCommand = value

	// Display
	case "DISPLAY_ENABLED":
		c.DisplayEnabled, err = parseBool(key, value)
	case "DISPLAY_I2C_BUS":
		c.DisplayI2CBus = value
	case "DISPLAY_UPDATE_INTERVAL":
		c.DisplayUpdateInterval, err = parsePositiveInt(key, value)

	// Persistence
	case "TUNING_FILE":
		c.TuningFile = value

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return err
}

func parseBool(key, value string) (bool, error) {
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return b, nil
}

// parsePositiveInt parses an integer greater than zero.
func parsePositiveInt(key, value string) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("%s must be > 0, got %d", key, v)
	}
	return v, nil
}

func parsePositive(key, value string) (float64, error) {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if !(v > 0) || math.IsInf(v, 1) {
		return 0, fmt.Errorf("%s must be a positive finite number, got %v", key, v)
	}
	return v, nil
}

func parseRange(key, value, legend string) (byte, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if v < 0 || v > 3 {
		return 0, fmt.Errorf("%s must be 0-3 (%s), got %d", key, legend, v)
	}
	return byte(v), nil
}

func parseAxis(key, value string) (string, error) {
	v := strings.ToLower(value)
	if v != "x" && v != "y" && v != "z" {
		return "", fmt.Errorf("%s must be x, y or z, got %q", key, value)
	}
	return v, nil
}

// validate checks cross-field constraints.
func (c *Config) validate() error {
	if c.HeadingHardBound <= c.HeadingSoftBound {
		return fmt.Errorf("HEADING_HARD_BOUND (%v) must exceed HEADING_SOFT_BOUND (%v)", c.HeadingHardBound, c.HeadingSoftBound)
	}
	if c.WheelStaleAfter < c.OdometryInterval {
		return fmt.Errorf("WHEEL_STALE_AFTER (%d) must be at least ODOMETRY_INTERVAL (%d)", c.WheelStaleAfter, c.OdometryInterval)
	}
	if c.LoopInterval > c.EstimatorInterval {
		return fmt.Errorf("LOOP_INTERVAL (%d) must not exceed ESTIMATOR_INTERVAL (%d)", c.LoopInterval, c.EstimatorInterval)
	}
	if !c.MockHardware {
		if c.Pins.PWMLeft == "" || c.Pins.PWMRight == "" || c.Pins.DirectionLeft == "" || c.Pins.DirectionRight == "" {
			return fmt.Errorf("motor PWM and direction pins are required")
		}
		if c.Pins.HallLeft == "" || c.Pins.HallRight == "" {
			return fmt.Errorf("PIN_HALL_LEFT and PIN_HALL_RIGHT are required")
		}
	}
	return nil
}

// Interval converts a millisecond field to a duration.
func Interval(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// InitGlobal initializes the global configuration from file. Only the first
// call loads; later calls return nil.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
