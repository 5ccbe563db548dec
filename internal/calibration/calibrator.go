// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package calibration

import (
	"context"
	"fmt"
	"log"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/relabs-tech/inertial_rover/internal/imu"
)

// Stillness heuristics. Gyro thresholds are in raw counts, tilt thresholds
// in degrees. Above the "bad" deviation confidence drops to confFloor.
const (
	gyroStdGood = 3.0
	gyroStdBad  = 12.0
	tiltStdGood = 0.2
	tiltStdBad  = 1.0

	confFloor = 0.05
)

// Sensor is what calibration needs from the inertial adapter.
type Sensor interface {
	ReadGyroRaw() (imu.Triple, error)
	TiltRaw() (roll, pitch float64, err error)
	SetGyroOffsets([3]float64)
	SetTiltOffsets([2]float64)
}

// Result describes one completed capture.
type Result struct {
	Name       string    `json:"name"`
	Samples    int       `json:"samples"`
	Offsets    []float64 `json:"offsets"`
	StdDev     []float64 `json:"stddev"`
	Confidence float64   `json:"confidence"`
	At         time.Time `json:"at"`
}

// Axes names the components of Offsets and StdDev, in stored order.
func (r Result) Axes() []string {
	return AxisNames(r.Name)
}

// AxisNames returns the component names of the named offset vector.
func AxisNames(name string) []string {
	switch name {
	case NameGyro:
		return []string{"pitch", "roll", "yaw"}
	case NameTilt:
		return []string{"roll", "pitch"}
	}
	return nil
}

// Calibrator captures still-vehicle samples, persists the per-axis mean and
// installs it on the sensor.
type Calibrator struct {
	sensor   Sensor
	store    Store
	interval time.Duration
}

// NewCalibrator samples every interval; zero means back-to-back reads.
func NewCalibrator(sensor Sensor, store Store, interval time.Duration) *Calibrator {
	return &Calibrator{sensor: sensor, store: store, interval: interval}
}

// CalibrateGyro averages n raw gyro readings into new gyro offsets.
// The vehicle must be motionless.
func (c *Calibrator) CalibrateGyro(ctx context.Context, n int) (Result, error) {
	cols, err := c.capture(ctx, n, 3, func() ([]float64, error) {
		g, err := c.sensor.ReadGyroRaw()
		if err != nil {
			return nil, err
		}
		f := g.Floats()
		return f[:], nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("gyro calibration: %w", err)
	}

	res := summarize(NameGyro, cols, gyroStdGood, gyroStdBad)
	if err := c.store.Save(NameGyro, res.Offsets); err != nil {
		return Result{}, fmt.Errorf("gyro calibration: %w", err)
	}
	c.sensor.SetGyroOffsets([3]float64{res.Offsets[0], res.Offsets[1], res.Offsets[2]})

	log.Printf("calibration: gyro offsets pitch=%.2f roll=%.2f yaw=%.2f counts | stddev=(%.2f, %.2f, %.2f) | confidence=%.2f",
		res.Offsets[0], res.Offsets[1], res.Offsets[2], res.StdDev[0], res.StdDev[1], res.StdDev[2], res.Confidence)
	return res, nil
}

// CalibrateTilt averages n raw tilt readings taken at the reference
// orientation into new tilt offsets.
func (c *Calibrator) CalibrateTilt(ctx context.Context, n int) (Result, error) {
	cols, err := c.capture(ctx, n, 2, func() ([]float64, error) {
		roll, pitch, err := c.sensor.TiltRaw()
		if err != nil {
			return nil, err
		}
		return []float64{roll, pitch}, nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("tilt calibration: %w", err)
	}

	res := summarize(NameTilt, cols, tiltStdGood, tiltStdBad)
	if err := c.store.Save(NameTilt, res.Offsets); err != nil {
		return Result{}, fmt.Errorf("tilt calibration: %w", err)
	}
	c.sensor.SetTiltOffsets([2]float64{res.Offsets[0], res.Offsets[1]})

	log.Printf("calibration: tilt offsets roll=%.2f° pitch=%.2f° | stddev=(%.3f, %.3f) | confidence=%.2f",
		res.Offsets[0], res.Offsets[1], res.StdDev[0], res.StdDev[1], res.Confidence)
	return res, nil
}

// capture reads n samples of width components and returns them per axis.
func (c *Calibrator) capture(ctx context.Context, n, width int, read func() ([]float64, error)) ([][]float64, error) {
	if n <= 0 {
		return nil, fmt.Errorf("sample count must be positive, got %d", n)
	}
	cols := make([][]float64, width)
	for i := range cols {
		cols[i] = make([]float64, 0, n)
	}

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, err := read()
		if err != nil {
			return nil, fmt.Errorf("sample %d/%d: %w", i+1, n, err)
		}
		for axis := range cols {
			cols[axis] = append(cols[axis], v[axis])
		}
		if c.interval > 0 && i < n-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.interval):
			}
		}
	}
	return cols, nil
}

func summarize(name string, cols [][]float64, good, bad float64) Result {
	res := Result{
		Name:    name,
		Samples: len(cols[0]),
		Offsets: make([]float64, len(cols)),
		StdDev:  make([]float64, len(cols)),
		At:      time.Now(),
	}
	var meanStd float64
	for axis, col := range cols {
		mean, std := stat.PopMeanStdDev(col, nil)
		res.Offsets[axis] = mean
		res.StdDev[axis] = std
		meanStd += std
	}
	res.Confidence = stillnessConfidence(meanStd/float64(len(cols)), good, bad)
	return res
}

// stillnessConfidence maps an average standard deviation to [confFloor, 1].
func stillnessConfidence(s, good, bad float64) float64 {
	switch {
	case s <= good:
		return 1.0
	case s >= bad:
		return confFloor
	default:
		t := (s - good) / (bad - good)
		return 1.0 - (1.0-confFloor)*t
	}
}
