// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import (
	"math"
	"time"
)

// Mock generates smooth, plausible readings for running without hardware.
// The yaw gyro follows yawDPS so a closed loop around it behaves sensibly.
type Mock struct {
	start  time.Time
	yawDPS func() float64
}

// Constant biases, in counts, so calibration has something to remove.
const (
	mockGyroBiasX = 40
	mockGyroBiasY = -25
	mockGyroBiasZ = 12
	mockOneG      = 16384 // counts per g at ±2g
)

// NewMock creates a mock source. yawDPS may be nil for a vehicle at rest.
func NewMock(yawDPS func() float64) *Mock {
	return &Mock{start: time.Now(), yawDPS: yawDPS}
}

func (m *Mock) ReadAccelRaw() (Triple, error) {
	elapsed := time.Since(m.start).Seconds()
	roll := 2 * math.Pi / 180 * math.Sin(elapsed*0.5)
	pitch := 1.5 * math.Pi / 180 * math.Cos(elapsed*0.3)

	return Triple{
		X: int16(mockOneG * math.Sin(roll)),
		Y: int16(mockOneG * math.Sin(pitch)),
		Z: int16(mockOneG * math.Cos(roll) * math.Cos(pitch)),
	}, nil
}

func (m *Mock) ReadGyroRaw() (Triple, error) {
	var yaw float64
	if m.yawDPS != nil {
		yaw = m.yawDPS()
	}
	z := math.Max(math.MinInt16, math.Min(math.MaxInt16, yaw*GyroLSBPerDPS+mockGyroBiasZ))
	return Triple{
		X: mockGyroBiasX,
		Y: mockGyroBiasY,
		Z: int16(z),
	}, nil
}
