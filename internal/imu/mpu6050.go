// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import (
	"encoding/binary"
	"fmt"
	"log"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/mmr"
)

// MPU6050 register map (subset used here).
const (
	regGyroConfig  = 0x1B // FS_SEL in bits 4:3
	regAccelConfig = 0x1C // AFS_SEL in bits 4:3
	regAccelXOutH  = 0x3B // ACCEL_XOUT_H .. ACCEL_ZOUT_L, big-endian int16 x3
	regGyroXOutH   = 0x43 // GYRO_XOUT_H .. GYRO_ZOUT_L, big-endian int16 x3
	regPwrMgmt1    = 0x6B // SLEEP bit 6, CLKSEL 2:0
	regWhoAmI      = 0x75

	whoAmIMPU6050 = 0x68

	// DefaultAddr is the I2C address with AD0 tied low.
	DefaultAddr = 0x68
)

// GyroLSBPerDPS is the gyro scale at FS_SEL=0 (±250°/s).
const GyroLSBPerDPS = 131.0

// MPU6050 reads raw accelerometer and gyroscope registers over I2C.
type MPU6050 struct {
	name string
	dev  mmr.Dev8
}

// NewMPU6050 wakes the device at addr on bus and selects the ±2g / ±250°/s
// ranges the unit conversions in this project assume.
func NewMPU6050(bus i2c.Bus, addr uint16) (*MPU6050, error) {
	d := &MPU6050{
		name: fmt.Sprintf("MPU6050@0x%02X", addr),
		dev: mmr.Dev8{
			Conn:  &i2c.Dev{Bus: bus, Addr: addr},
			Order: binary.BigEndian,
		},
	}

	if err := d.dev.WriteUint8(regPwrMgmt1, 0x00); err != nil {
		return nil, fmt.Errorf("%s: wake: %w", d.name, err)
	}

	id, err := d.dev.ReadUint8(regWhoAmI)
	if err != nil {
		return nil, fmt.Errorf("%s: read WHO_AM_I: %w", d.name, err)
	}
	if id != whoAmIMPU6050 {
		// Clones answer with other IDs but share the register layout.
		log.Printf("Warning: %s: unexpected WHO_AM_I 0x%02X (want 0x%02X)", d.name, id, whoAmIMPU6050)
	}

	if err := d.dev.WriteUint8(regGyroConfig, 0x00); err != nil {
		return nil, fmt.Errorf("%s: set gyro range: %w", d.name, err)
	}
	if err := d.dev.WriteUint8(regAccelConfig, 0x00); err != nil {
		return nil, fmt.Errorf("%s: set accel range: %w", d.name, err)
	}
	return d, nil
}

// ReadAccelRaw reads ACCEL_XOUT_H..ACCEL_ZOUT_L.
func (d *MPU6050) ReadAccelRaw() (Triple, error) {
	var t Triple
	if err := d.dev.ReadStruct(regAccelXOutH, &t); err != nil {
		return Triple{}, fmt.Errorf("%s accel: %w", d.name, err)
	}
	return t, nil
}

// ReadGyroRaw reads GYRO_XOUT_H..GYRO_ZOUT_L.
func (d *MPU6050) ReadGyroRaw() (Triple, error) {
	var t Triple
	if err := d.dev.ReadStruct(regGyroXOutH, &t); err != nil {
		return Triple{}, fmt.Errorf("%s gyro: %w", d.name, err)
	}
	return t, nil
}

func (d *MPU6050) String() string { return d.name }
