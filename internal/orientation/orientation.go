// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package orientation converts raw inertial readings into calibrated
// angular rates and accelerometer tilt.
//
// Axis convention: gyro X is pitch rate, gyro Y is roll rate, gyro Z is yaw
// rate. Gyro offsets are stored in that order and tilt offsets as
// (roll, pitch). Every function here is pure given its inputs.
package orientation

import (
	"math"

	"github.com/relabs-tech/inertial_rover/internal/imu"
)

const radToDeg = 180.0 / math.Pi

// Offsets are the zero-offsets subtracted from raw readings.
type Offsets struct {
	Gyro [3]float64 `json:"gyro"` // pitch rate, roll rate, yaw rate (counts)
	Tilt [2]float64 `json:"tilt"` // roll, pitch (degrees)
}

// Rates are angular rates plus their Euclidean norm (Spin).
// Units are whatever produced them: counts or degrees/second.
type Rates struct {
	Pitch float64 `json:"pitch"`
	Roll  float64 `json:"roll"`
	Yaw   float64 `json:"yaw"`
	Spin  float64 `json:"spin"`
}

// Tilt is the static orientation from the gravity vector, in degrees.
type Tilt struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Total float64 `json:"total"`
}

// CalibratedRates subtracts the gyro offsets from a raw gyro triple.
// The result is still in sensor counts.
func CalibratedRates(gyro imu.Triple, off Offsets) Rates {
	g := gyro.Floats()
	r := Rates{
		Pitch: g[0] - off.Gyro[0],
		Roll:  g[1] - off.Gyro[1],
		Yaw:   g[2] - off.Gyro[2],
	}
	r.Spin = math.Sqrt(r.Pitch*r.Pitch + r.Roll*r.Roll + r.Yaw*r.Yaw)
	return r
}

// AngularVelocityDPS converts calibrated rates to degrees/second using
// lsbPerDPS counts per °/s (131 for an MPU6050 at ±250°/s).
func AngularVelocityDPS(gyro imu.Triple, off Offsets, lsbPerDPS float64) Rates {
	r := CalibratedRates(gyro, off)
	return Rates{
		Pitch: r.Pitch / lsbPerDPS,
		Roll:  r.Roll / lsbPerDPS,
		Yaw:   r.Yaw / lsbPerDPS,
		Spin:  r.Spin / lsbPerDPS,
	}
}

// TiltRaw computes roll and pitch in degrees from raw accelerometer counts.
// Only the ratios matter, so no unit conversion is needed:
//
//	roll  = atan2(ax, sqrt(ay² + az²))
//	pitch = atan2(ay, sqrt(ax² + az²))
func TiltRaw(accel imu.Triple) (roll, pitch float64) {
	a := accel.Floats()
	ax, ay, az := a[0], a[1], a[2]
	roll = math.Atan2(ax, math.Sqrt(ay*ay+az*az)) * radToDeg
	pitch = math.Atan2(ay, math.Sqrt(ax*ax+az*az)) * radToDeg
	return roll, pitch
}

// TiltFrom applies tilt offsets to TiltRaw.
func TiltFrom(accel imu.Triple, off Offsets) Tilt {
	roll, pitch := TiltRaw(accel)
	t := Tilt{
		Roll:  roll - off.Tilt[0],
		Pitch: pitch - off.Tilt[1],
	}
	t.Total = math.Sqrt(t.Roll*t.Roll + t.Pitch*t.Pitch)
	return t
}
