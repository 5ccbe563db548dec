// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package control

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/relabs-tech/inertial_rover/internal/averager"
	"github.com/relabs-tech/inertial_rover/internal/drive"
)

// Mode is the controller state.
type Mode int

const (
	Idle Mode = iota
	Running
)

func (m Mode) String() string {
	if m == Running {
		return "running"
	}
	return "idle"
}

func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *Mode) UnmarshalText(b []byte) error {
	switch string(b) {
	case "running":
		*m = Running
	case "idle":
		*m = Idle
	default:
		return fmt.Errorf("unknown controller mode %q", b)
	}
	return nil
}

// YawSource provides the instantaneous yaw rate in °/s.
type YawSource interface {
	YawRateDPS() (float64, error)
}

// Params configures one rate-hold session.
type Params struct {
	TargetDPS   float64
	Duration    time.Duration
	Period      time.Duration
	Kp, Ki, Kd  float64
	OutputLimit float64
	Throttle    float64
}

func (p Params) validate() error {
	switch {
	case p.Duration <= 0:
		return fmt.Errorf("duration must be positive, got %v", p.Duration)
	case p.Period <= 0:
		return fmt.Errorf("control period must be positive, got %v", p.Period)
	case p.OutputLimit <= 0 || p.OutputLimit > 1:
		return fmt.Errorf("output limit must be in (0, 1], got %v", p.OutputLimit)
	}
	return nil
}

// SessionState is a snapshot of a running or finished session.
type SessionState struct {
	ID          string    `json:"id"`
	TargetDPS   float64   `json:"target_dps"`
	MeasuredDPS float64   `json:"measured_dps"`
	ErrorDPS    float64   `json:"error_dps"` // target minus measured, last tick
	Integral    float64   `json:"integral"`
	Output      float64   `json:"output"`
	Ticks       int       `json:"ticks"`
	Skipped     int       `json:"skipped"`
	StartedAt   time.Time `json:"started_at"`
	Elapsed     float64   `json:"elapsed_s"`
	Error       string    `json:"error,omitempty"`
}

// Status is the controller as seen from outside.
type Status struct {
	Mode    Mode          `json:"mode"`
	Session *SessionState `json:"session,omitempty"`
	Last    *SessionState `json:"last,omitempty"`
}

// Controller arbitrates actuation between rate-hold sessions and direct
// commands. Only one of them holds the mixer at a time.
type Controller struct {
	mixer        *drive.Mixer
	yaw          YawSource
	samplePeriod time.Duration
	maxFailures  int

	cmdMu sync.Mutex // serializes Start, Apply and Stop

	mu      sync.Mutex
	session *Session
	last    *SessionState
}

// NewController samples yaw every samplePeriod. A session fails after
// maxFailures consecutive bad samples.
func NewController(mixer *drive.Mixer, yaw YawSource, samplePeriod time.Duration, maxFailures int) *Controller {
	return &Controller{
		mixer:        mixer,
		yaw:          yaw,
		samplePeriod: samplePeriod,
		maxFailures:  maxFailures,
	}
}

func (c *Controller) Mixer() *drive.Mixer { return c.mixer }

// Start takes over the mixer and runs a rate-hold session until its
// duration elapses, it is stopped, ctx is done, or the sensor fails.
// Any session already running is stopped first.
func (c *Controller) Start(ctx context.Context, p Params) (*Session, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	c.stopSession()

	sctx, cancel := context.WithCancel(ctx)
	s := &Session{
		id:     uuid.NewString(),
		params: p,
		ctrl:   c,
		cancel: cancel,
		done:   make(chan struct{}),
		pid:    NewPID(p.TargetDPS, p.Kp, p.Ki, p.Kd, p.OutputLimit, p.Period.Seconds()),
	}
	s.state = SessionState{ID: s.id, TargetDPS: p.TargetDPS, StartedAt: time.Now()}

	c.mu.Lock()
	c.session = s
	c.mu.Unlock()

	log.Printf("ratehold: session %s started target=%.1f°/s duration=%v period=%v", s.id, p.TargetDPS, p.Duration, p.Period)
	go s.run(sctx)
	return s, nil
}

// Apply stops any session and drives the mixer directly.
func (c *Controller) Apply(throttle, steering float64) error {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	c.stopSession()
	return c.mixer.Set(throttle, steering)
}

// Stop ends any session and stops both motors.
func (c *Controller) Stop() error {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	c.stopSession()
	return c.mixer.Stop()
}

func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session != nil
}

func (c *Controller) State() Status {
	c.mu.Lock()
	s, last := c.session, c.last
	c.mu.Unlock()

	st := Status{Mode: Idle, Last: last}
	if s != nil {
		snap := s.Snapshot()
		st.Mode = Running
		st.Session = &snap
	}
	return st
}

func (c *Controller) stopSession() {
	c.mu.Lock()
	s := c.session
	c.mu.Unlock()
	if s != nil {
		s.Stop()
	}
}

func (c *Controller) finish(s *Session) {
	snap := s.Snapshot()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == s {
		c.session = nil
	}
	c.last = &snap
}

// Session is one rate-hold run.
type Session struct {
	id     string
	params Params
	ctrl   *Controller
	cancel context.CancelFunc
	done   chan struct{}
	pid    *PID

	mu    sync.Mutex
	state SessionState
	ended bool
	err   error
}

func (s *Session) ID() string { return s.id }

func (s *Session) Done() <-chan struct{} { return s.done }

// Wait blocks until the session has ended and the motors are stopped.
// It returns nil for a timeout or explicit stop.
func (s *Session) Wait() error {
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Stop cancels the session and waits for it to release the mixer.
func (s *Session) Stop() {
	s.cancel()
	<-s.done
}

func (s *Session) Snapshot() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state
	if !s.ended {
		st.Elapsed = time.Since(st.StartedAt).Seconds()
	}
	return st
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	defer s.ctrl.finish(s)

	c := s.ctrl
	sample := averager.Scalar(c.yaw.YawRateDPS)
	err := averager.With(sample, c.samplePeriod, c.maxFailures, func(avg *averager.Averager) error {
		return s.loop(ctx, avg)
	})

	// Motors stop before the outcome becomes visible to Wait.
	if stopErr := c.mixer.Stop(); stopErr != nil {
		log.Printf("Warning: ratehold: session %s: stopping motors: %v", s.id, stopErr)
	}

	s.mu.Lock()
	s.err = err
	s.ended = true
	s.state.Elapsed = time.Since(s.state.StartedAt).Seconds()
	if err != nil {
		s.state.Error = err.Error()
	}
	st := s.state
	s.mu.Unlock()

	if err != nil {
		log.Printf("ratehold: session %s failed after %d ticks: %v", s.id, st.Ticks, err)
	} else {
		log.Printf("ratehold: session %s finished | ticks=%d skipped=%d integral=%.3f", s.id, st.Ticks, st.Skipped, st.Integral)
	}
}

func (s *Session) loop(ctx context.Context, avg *averager.Averager) error {
	p := s.params
	mixer := s.ctrl.mixer

	if err := mixer.Set(p.Throttle, 0); err != nil {
		log.Printf("Warning: ratehold: session %s: %v", s.id, err)
	}

	start := time.Now()
	deadline := time.NewTimer(p.Duration)
	defer deadline.Stop()
	ticker := time.NewTicker(p.Period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-deadline.C:
			return nil
		case now := <-ticker.C:
			if now.Sub(start) >= p.Duration {
				return nil
			}
			if err := s.tick(avg); err != nil {
				return err
			}
		}
	}
}

// tick runs one control step. Only an unavailable sensor is returned.
func (s *Session) tick(avg *averager.Averager) error {
	measured, ok, err := avg.ReadScalar()
	if err != nil {
		if errors.Is(err, averager.ErrSensorUnavailable) {
			return err
		}
		log.Printf("Warning: ratehold: session %s: %v", s.id, err)
	}
	if !ok {
		s.mu.Lock()
		s.state.Skipped++
		s.mu.Unlock()
		return nil
	}

	out := s.pid.Update(measured)
	if err := s.ctrl.mixer.Set(s.params.Throttle, out); err != nil {
		log.Printf("Warning: ratehold: session %s: %v", s.id, err)
	}

	s.mu.Lock()
	s.state.MeasuredDPS = measured
	s.state.ErrorDPS = s.pid.LastError()
	s.state.Integral = s.pid.Integral()
	s.state.Output = out
	s.state.Ticks++
	s.mu.Unlock()
	return nil
}
