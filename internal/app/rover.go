// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/relabs-tech/inertial_rover/internal/calibration"
	"github.com/relabs-tech/inertial_rover/internal/config"
	"github.com/relabs-tech/inertial_rover/internal/control"
	"github.com/relabs-tech/inertial_rover/internal/drive"
	"github.com/relabs-tech/inertial_rover/internal/gps"
	"github.com/relabs-tech/inertial_rover/internal/orientation"
	"github.com/relabs-tech/inertial_rover/internal/sensors"
)

// mockSpinDPS is the yaw rate the mock vehicle reaches at full steering.
const mockSpinDPS = 90.0

var (
	// ErrBusy is returned when calibration is requested while the vehicle
	// is moving or another calibration runs, and when a drive command or
	// rate-hold request arrives during a calibration capture.
	ErrBusy = errors.New("rover busy")
	// ErrUnknownCalibration is returned for a kind other than gyro or tilt.
	ErrUnknownCalibration = errors.New("unknown calibration kind")
)

// Rover ties the sensor, calibration and control layers together for the
// command surfaces (HTTP, websocket, MQTT, display).
type Rover struct {
	cfg        *config.Config
	sensor     *sensors.Inertial
	ctrl       *control.Controller
	calibrator *calibration.Calibrator
	gps        *gps.Receiver

	// calMu is held exclusively for a calibration capture. Commands that
	// move the vehicle hold it shared while they are applied.
	calMu       sync.RWMutex
	calibrating atomic.Bool
}

// NewRover wires the components. rx may be nil when GPS is disabled.
func NewRover(cfg *config.Config, sensor *sensors.Inertial, ctrl *control.Controller, cal *calibration.Calibrator, rx *gps.Receiver) *Rover {
	return &Rover{cfg: cfg, sensor: sensor, ctrl: ctrl, calibrator: cal, gps: rx}
}

// Telemetry is the full vehicle snapshot published over MQTT and served
// by /api/state.
type Telemetry struct {
	Time        time.Time           `json:"time"`
	Drive       drive.State         `json:"drive"`
	IMU         *sensors.Reading    `json:"imu,omitempty"`
	IMUError    string              `json:"imu_error,omitempty"`
	Offsets     orientation.Offsets `json:"offsets"`
	Calibrating bool                `json:"calibrating"`
	Control     control.Status      `json:"control"`
	GPS         *gps.Fix            `json:"gps,omitempty"`
}

func (r *Rover) Snapshot() Telemetry {
	t := Telemetry{
		Time:        time.Now(),
		Drive:       r.ctrl.Mixer().State(),
		Offsets:     r.sensor.Offsets(),
		Calibrating: r.calibrating.Load(),
		Control:     r.ctrl.State(),
	}
	if reading, err := r.sensor.Read(); err != nil {
		t.IMUError = err.Error()
	} else {
		t.IMU = &reading
	}
	if r.gps != nil {
		if fix, ok := r.gps.Latest(); ok {
			t.GPS = &fix
		}
	}
	return t
}

// Drive applies a direct command, taking over from any rate-hold session.
// It is refused with ErrBusy while a calibration capture runs.
func (r *Rover) Drive(throttle, steering float64) error {
	if !r.calMu.TryRLock() {
		return fmt.Errorf("%w: calibration in progress", ErrBusy)
	}
	defer r.calMu.RUnlock()
	return r.ctrl.Apply(throttle, steering)
}

func (r *Rover) Stop() error {
	return r.ctrl.Stop()
}

// RateHoldRequest starts a rate-hold session. Unset gains fall back to
// the configured defaults.
type RateHoldRequest struct {
	TargetDPS   float64  `json:"target_dps"`
	DurationS   float64  `json:"duration_s"`
	Throttle    float64  `json:"throttle"`
	Kp          *float64 `json:"kp,omitempty"`
	Ki          *float64 `json:"ki,omitempty"`
	Kd          *float64 `json:"kd,omitempty"`
	OutputLimit *float64 `json:"output_limit,omitempty"`
}

func (req RateHoldRequest) params(cfg *config.Config) control.Params {
	p := control.Params{
		TargetDPS:   req.TargetDPS,
		Duration:    time.Duration(req.DurationS * float64(time.Second)),
		Period:      time.Duration(cfg.ControlInterval) * time.Millisecond,
		Kp:          cfg.PIDKp,
		Ki:          cfg.PIDKi,
		Kd:          cfg.PIDKd,
		OutputLimit: cfg.PIDOutputLimit,
		Throttle:    drive.Clamp(req.Throttle),
	}
	if req.Kp != nil {
		p.Kp = *req.Kp
	}
	if req.Ki != nil {
		p.Ki = *req.Ki
	}
	if req.Kd != nil {
		p.Kd = *req.Kd
	}
	if req.OutputLimit != nil {
		p.OutputLimit = *req.OutputLimit
	}
	return p
}

// StartRateHold runs a session detached from the caller; it ends on its
// own timeout, on Stop or Drive, or when the rover shuts down.
func (r *Rover) StartRateHold(req RateHoldRequest) (*control.Session, error) {
	if !r.calMu.TryRLock() {
		return nil, fmt.Errorf("%w: calibration in progress", ErrBusy)
	}
	defer r.calMu.RUnlock()
	return r.ctrl.Start(context.Background(), req.params(r.cfg))
}

// Calibrate runs a gyro or tilt calibration with the motors stopped.
// samples <= 0 uses the configured count.
func (r *Rover) Calibrate(ctx context.Context, kind string, samples int) (calibration.Result, error) {
	if samples <= 0 {
		samples = r.cfg.CalibrationSamples
	}
	if kind != calibration.NameGyro && kind != calibration.NameTilt {
		return calibration.Result{}, fmt.Errorf("%w: %q", ErrUnknownCalibration, kind)
	}
	if !r.calMu.TryLock() {
		return calibration.Result{}, fmt.Errorf("%w: calibration or drive command in progress", ErrBusy)
	}
	defer r.calMu.Unlock()
	r.calibrating.Store(true)
	defer r.calibrating.Store(false)

	if r.ctrl.Running() {
		return calibration.Result{}, fmt.Errorf("%w: rate-hold session running", ErrBusy)
	}
	if err := r.ctrl.Stop(); err != nil {
		log.Printf("Warning: calibration: stopping motors: %v", err)
	}

	log.Printf("calibration: %s capture of %d samples started", kind, samples)
	if kind == calibration.NameGyro {
		return r.calibrator.CalibrateGyro(ctx, samples)
	}
	return r.calibrator.CalibrateTilt(ctx, samples)
}

// RunRover opens the hardware described by cfg and serves the command
// surfaces until ctx is cancelled or one of them fails. Motors are
// stopped on every exit path.
func RunRover(ctx context.Context, cfg *config.Config) error {
	log.Println("rover: starting inertial rover")

	var left, right drive.Actuator
	if cfg.IMUMock {
		log.Println("rover: mock mode, motor outputs disabled")
	} else {
		l, r, err := drive.OpenHBridges(cfg)
		if err != nil {
			return err
		}
		left, right = l, r
	}
	mixer := drive.NewMixer(left, right, cfg.PWMMinFreq, cfg.PWMMaxFreq)

	// The mock gyro follows the commanded steering so rate-hold converges.
	sensor, err := sensors.Open(cfg, func() float64 {
		return mixer.Command().Steering * mockSpinDPS
	})
	if err != nil {
		return err
	}
	defer sensor.Close()

	store := calibration.NewFileStore(cfg.CalibrationFile)
	sensor.SetOffsets(calibration.LoadOffsets(store))
	log.Printf("rover: calibration offsets %+v from %s", sensor.Offsets(), store.Path())

	sample := time.Duration(cfg.SampleInterval) * time.Millisecond
	ctrl := control.NewController(mixer, sensor, sample, cfg.SensorMaxFailures)
	defer func() {
		if err := ctrl.Stop(); err != nil {
			log.Printf("Warning: rover: final motor stop: %v", err)
		}
	}()

	var rx *gps.Receiver
	if cfg.GPSEnabled {
		rx = gps.NewReceiver()
	}
	rover := NewRover(cfg, sensor, ctrl, calibration.NewCalibrator(sensor, store, sample), rx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return RunWeb(gctx, fmt.Sprintf(":%d", cfg.WebServerPort), rover.Handler())
	})
	g.Go(func() error {
		return RunTelemetry(gctx, cfg, rover)
	})
	if cfg.DisplayEnabled {
		g.Go(func() error {
			// The display is a convenience; losing it must not stop the rover.
			if err := RunDisplay(gctx, cfg, rover.Snapshot); err != nil {
				log.Printf("Warning: display: %v", err)
			}
			return nil
		})
	}
	if rx != nil {
		g.Go(func() error {
			if err := RunGPS(gctx, cfg, rx); err != nil {
				log.Printf("Warning: gps: %v", err)
			}
			return nil
		})
	}

	err = g.Wait()
	log.Println("rover: shutting down")
	return err
}
