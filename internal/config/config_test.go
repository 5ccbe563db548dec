// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseDefaultsWhenEmpty(t *testing.T) {
	cfg, err := Parse(strings.NewReader("# only a comment\n\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	def := Default()
	if cfg.PWMMinFreq != def.PWMMinFreq || cfg.PWMMaxFreq != def.PWMMaxFreq {
		t.Errorf("PWM range = %d..%d, want %d..%d", cfg.PWMMinFreq, cfg.PWMMaxFreq, def.PWMMinFreq, def.PWMMaxFreq)
	}
	if cfg.IMUI2CAddr != 0x68 {
		t.Errorf("IMUI2CAddr = 0x%02X, want 0x68", cfg.IMUI2CAddr)
	}
}

func TestParseOverrides(t *testing.T) {
	in := `
MQTT_BROKER = tcp://rover.local:1883
IMU_MOCK=true
IMU_I2C_ADDR=0x69
PID_KI=0.1
PID_OUTPUT_LIMIT=0.5
CONTROL_INTERVAL=50
SAMPLE_INTERVAL=10
DISPLAY_ENABLED=1
`
	cfg, err := Parse(strings.NewReader(in))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.MQTTBroker != "tcp://rover.local:1883" {
		t.Errorf("MQTTBroker = %q", cfg.MQTTBroker)
	}
	if !cfg.IMUMock || !cfg.DisplayEnabled {
		t.Errorf("bool keys not applied: mock=%v display=%v", cfg.IMUMock, cfg.DisplayEnabled)
	}
	if cfg.IMUI2CAddr != 0x69 {
		t.Errorf("IMUI2CAddr = 0x%02X, want 0x69", cfg.IMUI2CAddr)
	}
	if cfg.PIDKi != 0.1 || cfg.PIDOutputLimit != 0.5 {
		t.Errorf("PID = ki %v limit %v", cfg.PIDKi, cfg.PIDOutputLimit)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no equals", "MQTT_BROKER", "invalid config line 1"},
		{"unknown key", "NOPE=1", "unknown config key"},
		{"bad int", "CONTROL_INTERVAL=fast", "invalid CONTROL_INTERVAL"},
		{"negative", "SAMPLE_INTERVAL=-3", "must be positive"},
		{"limit range", "PID_OUTPUT_LIMIT=2", "PID_OUTPUT_LIMIT"},
		{"pwm order", "PWM_MIN_FREQ=200", "PWM_MIN_FREQ"},
		{"sample slower than control", "SAMPLE_INTERVAL=100", "SAMPLE_INTERVAL"},
		{"line number", "\n\nBAD", "line 3"},
		{"display address", "DISPLAY_I2C_ADDR=0x3D", "DISPLAY_I2C_ADDR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.in))
			if err == nil {
				t.Fatalf("expected error containing %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not contain %q", err, tt.want)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestInitGlobalOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rover_config.txt")
	if err := os.WriteFile(path, []byte("WEB_SERVER_PORT=9090\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := InitGlobal(path); err != nil {
		t.Fatalf("InitGlobal: %v", err)
	}
	// Second call is a no-op even with a bad path.
	if err := InitGlobal("does-not-exist"); err != nil {
		t.Fatalf("second InitGlobal: %v", err)
	}
	if got := Get().WebServerPort; got != 9090 {
		t.Errorf("WebServerPort = %d, want 9090", got)
	}
}
