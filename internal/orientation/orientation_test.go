// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"math"
	"testing"

	"github.com/relabs-tech/inertial_rover/internal/imu"
)

const eps = 1e-9

func near(a, b float64) bool { return math.Abs(a-b) < eps }

func TestCalibratedRatesSubtractsOffsets(t *testing.T) {
	off := Offsets{Gyro: [3]float64{10, -20, 5}}
	r := CalibratedRates(imu.Triple{X: 13, Y: -16, Z: 5}, off)
	if !near(r.Pitch, 3) || !near(r.Roll, 4) || !near(r.Yaw, 0) {
		t.Errorf("rates = %+v, want pitch 3 roll 4 yaw 0", r)
	}
	if !near(r.Spin, 5) {
		t.Errorf("spin = %v, want 5", r.Spin)
	}
}

func TestAngularVelocityDPS(t *testing.T) {
	r := AngularVelocityDPS(imu.Triple{X: 131, Y: -262, Z: 1310 + 12}, Offsets{Gyro: [3]float64{0, 0, 12}}, imu.GyroLSBPerDPS)
	if !near(r.Pitch, 1) || !near(r.Roll, -2) || !near(r.Yaw, 10) {
		t.Errorf("dps = %+v", r)
	}
	if !near(r.Spin, math.Sqrt(1+4+100)) {
		t.Errorf("spin = %v", r.Spin)
	}
}

func TestTiltRaw(t *testing.T) {
	tests := []struct {
		name        string
		accel       imu.Triple
		roll, pitch float64
	}{
		{"level", imu.Triple{Z: 16384}, 0, 0},
		{"rolled 90", imu.Triple{X: 16384}, 90, 0},
		{"pitched -90", imu.Triple{Y: -16384}, 0, -90},
		{"rolled 45", imu.Triple{X: 1000, Z: 1000}, 45, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			roll, pitch := TiltRaw(tt.accel)
			if math.Abs(roll-tt.roll) > 1e-6 || math.Abs(pitch-tt.pitch) > 1e-6 {
				t.Errorf("TiltRaw = (%v, %v), want (%v, %v)", roll, pitch, tt.roll, tt.pitch)
			}
		})
	}
}

func TestTiltFromAppliesOffsets(t *testing.T) {
	off := Offsets{Tilt: [2]float64{45, 0}}
	tilt := TiltFrom(imu.Triple{X: 1000, Z: 1000}, off)
	if math.Abs(tilt.Roll) > 1e-6 || math.Abs(tilt.Pitch) > 1e-6 || math.Abs(tilt.Total) > 1e-6 {
		t.Errorf("tilt = %+v, want zero", tilt)
	}

	tilt = TiltFrom(imu.Triple{Z: 1}, Offsets{Tilt: [2]float64{3, 4}})
	if !near(tilt.Roll, -3) || !near(tilt.Pitch, -4) || !near(tilt.Total, 5) {
		t.Errorf("tilt = %+v, want -3, -4, 5", tilt)
	}
}
