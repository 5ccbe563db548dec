// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"errors"
	"math"
	"testing"

	"github.com/relabs-tech/inertial_rover/internal/config"
	"github.com/relabs-tech/inertial_rover/internal/imu"
	"github.com/relabs-tech/inertial_rover/internal/orientation"
)

type fixedReader struct {
	accel, gyro imu.Triple
	err         error
}

func (f *fixedReader) ReadAccelRaw() (imu.Triple, error) { return f.accel, f.err }
func (f *fixedReader) ReadGyroRaw() (imu.Triple, error)  { return f.gyro, f.err }

func TestYawRateUsesOffsets(t *testing.T) {
	src := &fixedReader{gyro: imu.Triple{X: 0, Y: 0, Z: 262 + 30}}
	s := NewInertial("test", src)
	s.SetGyroOffsets([3]float64{0, 0, 30})

	yaw, err := s.YawRateDPS()
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(yaw-2) > 1e-9 {
		t.Errorf("yaw = %v, want 2", yaw)
	}
}

func TestTiltAndRawTilt(t *testing.T) {
	src := &fixedReader{accel: imu.Triple{X: 1000, Z: 1000}}
	s := NewInertial("test", src)
	s.SetTiltOffsets([2]float64{40, 0})

	roll, _, err := s.TiltRaw()
	if err != nil || math.Abs(roll-45) > 1e-6 {
		t.Fatalf("TiltRaw roll = %v err=%v", roll, err)
	}
	tilt, err := s.Tilt()
	if err != nil || math.Abs(tilt.Roll-5) > 1e-6 || math.Abs(tilt.Total-5) > 1e-6 {
		t.Errorf("Tilt = %+v err=%v", tilt, err)
	}
}

func TestReadPropagatesBusError(t *testing.T) {
	busErr := errors.New("nack")
	s := NewInertial("test", &fixedReader{err: busErr})
	if _, err := s.Read(); !errors.Is(err, busErr) {
		t.Errorf("Read err = %v", err)
	}
	if _, err := s.YawRateDPS(); !errors.Is(err, busErr) {
		t.Errorf("YawRateDPS err = %v", err)
	}
}

func TestSetOffsetsRoundTrip(t *testing.T) {
	s := NewInertial("test", &fixedReader{})
	want := orientation.Offsets{Gyro: [3]float64{1, 2, 3}, Tilt: [2]float64{4, 5}}
	s.SetOffsets(want)
	if got := s.Offsets(); got != want {
		t.Errorf("Offsets = %+v, want %+v", got, want)
	}
}

func TestOpenMock(t *testing.T) {
	cfg := config.Default()
	cfg.IMUMock = true
	s, err := Open(cfg, func() float64 { return 0 })
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	r, err := s.Read()
	if err != nil {
		t.Fatal(err)
	}
	if r.Tilt.Total > 5 {
		t.Errorf("mock tilt too large: %+v", r.Tilt)
	}
}

func TestRegistersUnsupported(t *testing.T) {
	s := NewInertial("test", &fixedReader{})
	if _, err := s.Registers(); !errors.Is(err, ErrNoRegisters) {
		t.Errorf("err = %v, want ErrNoRegisters", err)
	}
}
