// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package drive

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/inertial_rover/internal/config"
)

// HBridge is one L298N-style channel: a PWM enable pin and two direction pins.
type HBridge struct {
	name         string
	en, in1, in2 gpio.PinOut

	mu   sync.Mutex
	freq physic.Frequency
	duty gpio.Duty
}

func NewHBridge(name string, en, in1, in2 gpio.PinOut) *HBridge {
	return &HBridge{name: name, en: en, in1: in1, in2: in2}
}

func (h *HBridge) String() string { return h.name }

// SetDirection sets IN1/IN2. Stopped lets the motor coast.
func (h *HBridge) SetDirection(d Direction) error {
	a, b := gpio.Low, gpio.Low
	switch d {
	case Forward:
		a = gpio.High
	case Reverse:
		b = gpio.High
	}
	if err := h.in1.Out(a); err != nil {
		return fmt.Errorf("%s IN1: %w", h.name, err)
	}
	if err := h.in2.Out(b); err != nil {
		return fmt.Errorf("%s IN2: %w", h.name, err)
	}
	return nil
}

func (h *HBridge) SetPWMFrequency(hz int) error {
	if hz <= 0 {
		return fmt.Errorf("%s: invalid PWM frequency %d", h.name, hz)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.freq = physic.Frequency(hz) * physic.Hertz
	return h.writeLocked()
}

// SetPWMDuty takes a duty on the 0..1023 scale.
func (h *HBridge) SetPWMDuty(duty int) error {
	duty = min(max(duty, 0), DutyMax)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.duty = gpio.Duty(int64(duty) * int64(gpio.DutyMax) / DutyMax)
	return h.writeLocked()
}

func (h *HBridge) writeLocked() error {
	if h.freq == 0 {
		// Frequency not known yet; the next SetPWMFrequency writes.
		return nil
	}
	if h.duty == 0 {
		if err := h.en.Out(gpio.Low); err != nil {
			return fmt.Errorf("%s EN: %w", h.name, err)
		}
		return nil
	}
	if err := h.en.PWM(h.duty, h.freq); err != nil {
		return fmt.Errorf("%s EN PWM: %w", h.name, err)
	}
	return nil
}

// OpenHBridges resolves the motor pins named in cfg.
func OpenHBridges(cfg *config.Config) (left, right *HBridge, err error) {
	if _, err := host.Init(); err != nil {
		return nil, nil, fmt.Errorf("periph host init: %w", err)
	}
	left, err = openHBridge("left",
		cfg.MotorLeftENPin, cfg.MotorLeftIN1Pin, cfg.MotorLeftIN2Pin)
	if err != nil {
		return nil, nil, err
	}
	right, err = openHBridge("right",
		cfg.MotorRightENPin, cfg.MotorRightIN1Pin, cfg.MotorRightIN2Pin)
	if err != nil {
		return nil, nil, err
	}
	return left, right, nil
}

func openHBridge(name, en, in1, in2 string) (*HBridge, error) {
	pins := make([]gpio.PinIO, 3)
	for i, n := range []string{en, in1, in2} {
		p := gpioreg.ByName(n)
		if p == nil {
			return nil, fmt.Errorf("%s motor: unknown pin %q", name, n)
		}
		pins[i] = p
	}
	return NewHBridge(name+" motor", pins[0], pins[1], pins[2]), nil
}
