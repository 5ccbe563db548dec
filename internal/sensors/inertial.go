// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sync"

	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/inertial_rover/internal/config"
	"github.com/relabs-tech/inertial_rover/internal/imu"
	"github.com/relabs-tech/inertial_rover/internal/orientation"
)

// ErrNoRegisters is returned by Registers for sources without a register map.
var ErrNoRegisters = errors.New("IMU source has no register access")

// Inertial wraps a raw IMU reader with the current calibration offsets.
// Offsets may be replaced at any time by calibration; every read uses one
// consistent copy of them.
type Inertial struct {
	name      string
	src       imu.Reader
	lsbPerDPS float64
	closer    io.Closer

	mu  sync.RWMutex
	off orientation.Offsets
}

// Reading is one full snapshot, used for telemetry and the display.
type Reading struct {
	Raw  imu.Raw           `json:"raw"`
	DPS  orientation.Rates `json:"dps"`
	Tilt orientation.Tilt  `json:"tilt"`
}

// NewInertial wraps src. The gyro scale is the MPU6050 ±250°/s one.
func NewInertial(name string, src imu.Reader) *Inertial {
	return &Inertial{name: name, src: src, lsbPerDPS: imu.GyroLSBPerDPS}
}

// Open builds the vehicle's IMU from configuration: the mock source when
// IMU_MOCK is set, otherwise an MPU6050 on the configured I2C bus.
// yawDPS drives the mock's yaw gyro and is ignored for real hardware.
func Open(cfg *config.Config, yawDPS func() float64) (*Inertial, error) {
	if cfg.IMUMock {
		log.Println("sensors: using mock IMU")
		return NewInertial("mock", imu.NewMock(yawDPS)), nil
	}

	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("IMU: periph host init: %w", err)
	}

	bus, err := i2creg.Open(cfg.IMUI2CBus)
	if err != nil {
		return nil, fmt.Errorf("IMU: open I2C bus %q: %w", cfg.IMUI2CBus, err)
	}

	dev, err := imu.NewMPU6050(bus, cfg.IMUI2CAddr)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("IMU: %w", err)
	}
	log.Printf("sensors: %s ready on bus %q", dev, bus)

	s := NewInertial(dev.String(), dev)
	s.closer = bus
	return s, nil
}

// Close releases the bus, if this Inertial opened one.
func (s *Inertial) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

func (s *Inertial) String() string { return s.name }

// Offsets returns a copy of the current offsets.
func (s *Inertial) Offsets() orientation.Offsets {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.off
}

// SetOffsets replaces both offset vectors.
func (s *Inertial) SetOffsets(off orientation.Offsets) {
	s.mu.Lock()
	s.off = off
	s.mu.Unlock()
}

// SetGyroOffsets replaces the gyro offsets (pitch, roll, yaw rate counts).
func (s *Inertial) SetGyroOffsets(g [3]float64) {
	s.mu.Lock()
	s.off.Gyro = g
	s.mu.Unlock()
}

// SetTiltOffsets replaces the tilt offsets (roll, pitch degrees).
func (s *Inertial) SetTiltOffsets(t [2]float64) {
	s.mu.Lock()
	s.off.Tilt = t
	s.mu.Unlock()
}

func (s *Inertial) ReadAccelRaw() (imu.Triple, error) {
	return s.src.ReadAccelRaw()
}

func (s *Inertial) ReadGyroRaw() (imu.Triple, error) {
	return s.src.ReadGyroRaw()
}

// CalibratedRates returns offset-corrected gyro rates in counts.
func (s *Inertial) CalibratedRates() (orientation.Rates, error) {
	g, err := s.src.ReadGyroRaw()
	if err != nil {
		return orientation.Rates{}, err
	}
	return orientation.CalibratedRates(g, s.Offsets()), nil
}

// AngularVelocityDPS returns offset-corrected gyro rates in degrees/second.
func (s *Inertial) AngularVelocityDPS() (orientation.Rates, error) {
	g, err := s.src.ReadGyroRaw()
	if err != nil {
		return orientation.Rates{}, err
	}
	return orientation.AngularVelocityDPS(g, s.Offsets(), s.lsbPerDPS), nil
}

// YawRateDPS is the control loop's measurement.
func (s *Inertial) YawRateDPS() (float64, error) {
	r, err := s.AngularVelocityDPS()
	if err != nil {
		return 0, err
	}
	return r.Yaw, nil
}

// TiltRaw returns roll and pitch without tilt offsets.
func (s *Inertial) TiltRaw() (roll, pitch float64, err error) {
	a, err := s.src.ReadAccelRaw()
	if err != nil {
		return 0, 0, err
	}
	roll, pitch = orientation.TiltRaw(a)
	return roll, pitch, nil
}

// Tilt returns offset-corrected roll, pitch and their combined magnitude.
func (s *Inertial) Tilt() (orientation.Tilt, error) {
	a, err := s.src.ReadAccelRaw()
	if err != nil {
		return orientation.Tilt{}, err
	}
	return orientation.TiltFrom(a, s.Offsets()), nil
}

// Read takes one accel and one gyro reading and derives everything from
// them under a single offsets copy.
func (s *Inertial) Read() (Reading, error) {
	a, err := s.src.ReadAccelRaw()
	if err != nil {
		return Reading{}, err
	}
	g, err := s.src.ReadGyroRaw()
	if err != nil {
		return Reading{}, err
	}
	off := s.Offsets()
	return Reading{
		Raw:  imu.Raw{Accel: a, Gyro: g},
		DPS:  orientation.AngularVelocityDPS(g, off, s.lsbPerDPS),
		Tilt: orientation.TiltFrom(a, off),
	}, nil
}

// Registers dumps the device registers for debugging.
func (s *Inertial) Registers() ([]imu.RegisterValue, error) {
	d, ok := s.src.(imu.RegisterDumper)
	if !ok {
		return nil, fmt.Errorf("%s: %w", s.name, ErrNoRegisters)
	}
	return d.DumpRegisters()
}
