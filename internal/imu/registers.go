// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import "fmt"

// RegisterInfo describes one register of the debug map.
type RegisterInfo struct {
	Addr   uint8  `json:"addr"`
	Name   string `json:"name"`
	Access string `json:"access"` // "R" or "RW"
}

// RegisterValue is a register read back from the device.
type RegisterValue struct {
	RegisterInfo
	Value uint8 `json:"value"`
}

// RegisterDumper is implemented by sources that expose raw registers.
type RegisterDumper interface {
	DumpRegisters() ([]RegisterValue, error)
}

// mpu6050Map lists the configuration and status registers worth inspecting.
var mpu6050Map = []RegisterInfo{
	{0x19, "SMPLRT_DIV", "RW"},
	{0x1A, "CONFIG", "RW"},
	{regGyroConfig, "GYRO_CONFIG", "RW"},
	{regAccelConfig, "ACCEL_CONFIG", "RW"},
	{0x38, "INT_ENABLE", "RW"},
	{0x3A, "INT_STATUS", "R"},
	{regAccelXOutH, "ACCEL_XOUT_H", "R"},
	{regAccelXOutH + 1, "ACCEL_XOUT_L", "R"},
	{regAccelXOutH + 2, "ACCEL_YOUT_H", "R"},
	{regAccelXOutH + 3, "ACCEL_YOUT_L", "R"},
	{regAccelXOutH + 4, "ACCEL_ZOUT_H", "R"},
	{regAccelXOutH + 5, "ACCEL_ZOUT_L", "R"},
	{regGyroXOutH, "GYRO_XOUT_H", "R"},
	{regGyroXOutH + 1, "GYRO_XOUT_L", "R"},
	{regGyroXOutH + 2, "GYRO_YOUT_H", "R"},
	{regGyroXOutH + 3, "GYRO_YOUT_L", "R"},
	{regGyroXOutH + 4, "GYRO_ZOUT_H", "R"},
	{regGyroXOutH + 5, "GYRO_ZOUT_L", "R"},
	{regPwrMgmt1, "PWR_MGMT_1", "RW"},
	{0x6C, "PWR_MGMT_2", "RW"},
	{regWhoAmI, "WHO_AM_I", "R"},
}

// ReadRegister reads one byte.
func (d *MPU6050) ReadRegister(reg uint8) (uint8, error) {
	v, err := d.dev.ReadUint8(reg)
	if err != nil {
		return 0, fmt.Errorf("%s read 0x%02X: %w", d.name, reg, err)
	}
	return v, nil
}

// WriteRegister writes one byte.
func (d *MPU6050) WriteRegister(reg, value uint8) error {
	if err := d.dev.WriteUint8(reg, value); err != nil {
		return fmt.Errorf("%s write 0x%02X: %w", d.name, reg, err)
	}
	return nil
}

// DumpRegisters reads every register of the debug map.
func (d *MPU6050) DumpRegisters() ([]RegisterValue, error) {
	out := make([]RegisterValue, 0, len(mpu6050Map))
	for _, info := range mpu6050Map {
		v, err := d.ReadRegister(info.Addr)
		if err != nil {
			return nil, err
		}
		out = append(out, RegisterValue{RegisterInfo: info, Value: v})
	}
	return out, nil
}
