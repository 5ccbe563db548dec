// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

// Triple is one raw 3-axis register reading in sensor counts.
type Triple struct {
	X int16 `json:"x"`
	Y int16 `json:"y"`
	Z int16 `json:"z"`
}

// Floats returns the triple as float64 components.
func (t Triple) Floats() [3]float64 {
	return [3]float64{float64(t.X), float64(t.Y), float64(t.Z)}
}

// Raw represents a single raw accel+gyro sample.
type Raw struct {
	Accel Triple `json:"accel"`
	Gyro  Triple `json:"gyro"`
}

// Reader is anything that can provide raw accelerometer and gyroscope
// triples: the MPU6050 driver, or the mock used without hardware.
type Reader interface {
	ReadAccelRaw() (Triple, error)
	ReadGyroRaw() (Triple, error)
}
