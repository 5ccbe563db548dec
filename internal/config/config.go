// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Config holds all application configuration values.
type Config struct {
	// MQTT
	MQTTBroker     string
	MQTTClientID   string
	TopicTelemetry string
	TopicCommand   string

	// IMU Hardware
	IMUMock    bool
	IMUI2CBus  string // "" selects the first bus registered by periph
	IMUI2CAddr uint16

	// Motor pins (H-bridge: EN is the PWM pin, IN1/IN2 select direction)
	MotorLeftENPin   string
	MotorLeftIN1Pin  string
	MotorLeftIN2Pin  string
	MotorRightENPin  string
	MotorRightIN1Pin string
	MotorRightIN2Pin string

	// PWM frequency range in Hz. The floor keeps slow wheels above stall.
	PWMMinFreq int
	PWMMaxFreq int

	// Calibration
	CalibrationFile    string
	CalibrationSamples int

	// Timing
	SampleInterval    int // milliseconds
	ControlInterval   int // milliseconds
	TelemetryInterval int // milliseconds

	// Rate-hold PID defaults
	PIDKp          float64
	PIDKi          float64
	PIDKd          float64
	PIDOutputLimit float64

	// Consecutive failed sensor ticks before a session gives up.
	SensorMaxFailures int

	// Web Server
	WebServerPort int

	// Display
	DisplayEnabled        bool
	DisplayI2CAddr        uint16
	DisplayUpdateInterval int // milliseconds

	// GPS
	GPSEnabled    bool
	GPSSerialPort string
	GPSBaudRate   int
}

// Package-level unexported variables for singleton pattern:
//   - globalConfig: only reachable through InitGlobal() and Get().
//   - configOnce: ensures InitGlobal() only runs once, even if called multiple times.
//   - configMu: RWMutex protects concurrent access.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Default returns the configuration used for keys missing from the file.
// Pin names follow the Raspberry Pi GPIO numbering used by periph.
func Default() *Config {
	return &Config{
		MQTTBroker:     "tcp://localhost:1883",
		MQTTClientID:   "inertial-rover",
		TopicTelemetry: "rover/telemetry",
		TopicCommand:   "rover/command",

		IMUI2CAddr: 0x68,

		MotorLeftENPin:   "GPIO12",
		MotorLeftIN1Pin:  "GPIO5",
		MotorLeftIN2Pin:  "GPIO6",
		MotorRightENPin:  "GPIO13",
		MotorRightIN1Pin: "GPIO20",
		MotorRightIN2Pin: "GPIO21",

		PWMMinFreq: 5,
		PWMMaxFreq: 100,

		CalibrationFile:    "rover_calibration.json",
		CalibrationSamples: 100,

		SampleInterval:    10,
		ControlInterval:   50,
		TelemetryInterval: 200,

		PIDKp:          0.02,
		PIDKi:          0.01,
		PIDKd:          0,
		PIDOutputLimit: 1,

		SensorMaxFailures: 5,

		WebServerPort: 8080,

		DisplayI2CAddr:        0x3C,
		DisplayUpdateInterval: 250,

		GPSSerialPort: "/dev/serial0",
		GPSBaudRate:   9600,
	}
}

// Load reads the configuration file and returns a Config struct.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads KEY=VALUE lines on top of Default().
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	scanner := bufio.NewScanner(r)
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

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	var err error
	switch key {
	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID":
		c.MQTTClientID = value
	case "TOPIC_TELEMETRY":
		c.TopicTelemetry = value
	case "TOPIC_COMMAND":
		c.TopicCommand = value

	// IMU Hardware
	case "IMU_MOCK":
		c.IMUMock, err = parseBool(key, value)
	case "IMU_I2C_BUS":
		c.IMUI2CBus = value
	case "IMU_I2C_ADDR":
		c.IMUI2CAddr, err = parseAddr(key, value)

	// Motor pins
	case "MOTOR_LEFT_EN_PIN":
		c.MotorLeftENPin = value
	case "MOTOR_LEFT_IN1_PIN":
		c.MotorLeftIN1Pin = value
	case "MOTOR_LEFT_IN2_PIN":
		c.MotorLeftIN2Pin = value
	case "MOTOR_RIGHT_EN_PIN":
		c.MotorRightENPin = value
	case "MOTOR_RIGHT_IN1_PIN":
		c.MotorRightIN1Pin = value
	case "MOTOR_RIGHT_IN2_PIN":
		c.MotorRightIN2Pin = value

	case "PWM_MIN_FREQ":
		c.PWMMinFreq, err = parsePositiveInt(key, value)
	case "PWM_MAX_FREQ":
		c.PWMMaxFreq, err = parsePositiveInt(key, value)

	// Calibration
	case "CALIBRATION_FILE":
		c.CalibrationFile = value
	case "CALIBRATION_SAMPLES":
		c.CalibrationSamples, err = parsePositiveInt(key, value)

	// Timing
	case "SAMPLE_INTERVAL":
		c.SampleInterval, err = parsePositiveInt(key, value)
	case "CONTROL_INTERVAL":
		c.ControlInterval, err = parsePositiveInt(key, value)
	case "TELEMETRY_INTERVAL":
		c.TelemetryInterval, err = parsePositiveInt(key, value)

	// PID
	case "PID_KP":
		c.PIDKp, err = parseFloat(key, value)
	case "PID_KI":
		c.PIDKi, err = parseFloat(key, value)
	case "PID_KD":
		c.PIDKd, err = parseFloat(key, value)
	case "PID_OUTPUT_LIMIT":
		c.PIDOutputLimit, err = parseFloat(key, value)
		if err == nil && (c.PIDOutputLimit <= 0 || c.PIDOutputLimit > 1) {
			err = fmt.Errorf("PID_OUTPUT_LIMIT must be in (0, 1], got %v", c.PIDOutputLimit)
		}
	case "SENSOR_MAX_FAILURES":
		c.SensorMaxFailures, err = parsePositiveInt(key, value)

	// Web Server
	case "WEB_SERVER_PORT":
		c.WebServerPort, err = parsePositiveInt(key, value)

	// Display
	case "DISPLAY_ENABLED":
		c.DisplayEnabled, err = parseBool(key, value)
	case "DISPLAY_I2C_ADDR":
		c.DisplayI2CAddr, err = parseAddr(key, value)
	case "DISPLAY_UPDATE_INTERVAL":
		c.DisplayUpdateInterval, err = parsePositiveInt(key, value)

	// GPS
	case "GPS_ENABLED":
		c.GPSEnabled, err = parseBool(key, value)
	case "GPS_SERIAL_PORT":
		c.GPSSerialPort = value
	case "GPS_BAUD_RATE":
		c.GPSBaudRate, err = parsePositiveInt(key, value)

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return err
}

// validate checks cross-field constraints.
func (c *Config) validate() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	if c.CalibrationFile == "" {
		return fmt.Errorf("CALIBRATION_FILE is required")
	}
	if c.PWMMinFreq > c.PWMMaxFreq {
		return fmt.Errorf("PWM_MIN_FREQ (%d) must not exceed PWM_MAX_FREQ (%d)", c.PWMMinFreq, c.PWMMaxFreq)
	}
	if c.SampleInterval > c.ControlInterval {
		return fmt.Errorf("SAMPLE_INTERVAL (%dms) must not exceed CONTROL_INTERVAL (%dms)", c.SampleInterval, c.ControlInterval)
	}
	// The ssd1306 driver always talks to 0x3C.
	if c.DisplayI2CAddr != 0x3C {
		return fmt.Errorf("DISPLAY_I2C_ADDR 0x%02X unsupported, the SSD1306 driver uses 0x3C", c.DisplayI2CAddr)
	}
	if c.GPSEnabled && c.GPSSerialPort == "" {
		return fmt.Errorf("GPS_SERIAL_PORT is required when GPS_ENABLED=true")
	}
	return nil
}

func parsePositiveInt(key, value string) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %d", key, v)
	}
	return v, nil
}

func parseFloat(key, value string) (float64, error) {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return v, nil
}

func parseBool(key, value string) (bool, error) {
	v, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return v, nil
}

func parseAddr(key, value string) (uint16, error) {
	addr, err := strconv.ParseUint(value, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return uint16(addr), nil
}

// InitGlobal initializes the global configuration from file.
// Uses sync.Once to ensure this only runs once, even if called multiple times.
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
