// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package drive

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

// DutyMax is the top of the 0..1023 duty scale used by the actuators.
const DutyMax = 1023

// Direction is the H-bridge mode of one wheel.
type Direction int

const (
	Stopped Direction = iota
	Forward
	Reverse
)

func (d Direction) String() string {
	switch d {
	case Forward:
		return "forward"
	case Reverse:
		return "reverse"
	default:
		return "stopped"
	}
}

func (d Direction) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Direction) UnmarshalText(b []byte) error {
	switch string(b) {
	case "forward":
		*d = Forward
	case "reverse":
		*d = Reverse
	case "stopped":
		*d = Stopped
	default:
		return fmt.Errorf("unknown direction %q", b)
	}
	return nil
}

// Command is the throttle/steering pair, each in [-1, 1].
type Command struct {
	Throttle float64 `json:"throttle"`
	Steering float64 `json:"steering"`
}

// MotorState is what was last written to one wheel.
type MotorState struct {
	Direction   Direction `json:"direction"`
	Speed       float64   `json:"speed"` // magnitude in [0, 1]
	FrequencyHz int       `json:"frequency_hz"`
	Duty        int       `json:"duty"`
}

// State is a snapshot of the mixer.
type State struct {
	Command Command    `json:"command"`
	Left    MotorState `json:"left"`
	Right   MotorState `json:"right"`
}

// Actuator drives one motor channel.
type Actuator interface {
	SetDirection(d Direction) error
	SetPWMFrequency(hz int) error
	SetPWMDuty(duty int) error
}

// Clamp limits v to [-1, 1]. NaN maps to 0.
func Clamp(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v > 1:
		return 1
	case v < -1:
		return -1
	}
	return v
}

// Mix blends throttle and steering into left/right wheel speeds.
// At |steering| == 1 the throttle term vanishes and the vehicle turns in place.
func Mix(throttle, steering float64) (left, right float64) {
	throttle = Clamp(throttle)
	steering = Clamp(steering)
	base := throttle * (1 - math.Abs(steering))
	return Clamp(base + steering), Clamp(base - steering)
}

// WheelState converts a signed wheel speed into actuation parameters.
// Frequency scales linearly with speed but never drops below minFreq.
func WheelState(speed float64, minFreq, maxFreq int) MotorState {
	speed = Clamp(speed)
	st := MotorState{Speed: math.Abs(speed)}
	switch {
	case speed > 0:
		st.Direction = Forward
	case speed < 0:
		st.Direction = Reverse
	default:
		st.Direction = Stopped
	}
	st.FrequencyHz = max(minFreq, int(math.Round(float64(maxFreq)*st.Speed)))
	st.Duty = min(DutyMax, int(math.Round(st.Speed*DutyMax)))
	return st
}

// Mixer owns both wheels. The last Set wins.
type Mixer struct {
	left, right Actuator
	minFreq     int
	maxFreq     int

	mu    sync.Mutex
	state State
}

func NewMixer(left, right Actuator, minFreq, maxFreq int) *Mixer {
	return &Mixer{
		left:    left,
		right:   right,
		minFreq: minFreq,
		maxFreq: maxFreq,
		state: State{
			Left:  WheelState(0, minFreq, maxFreq),
			Right: WheelState(0, minFreq, maxFreq),
		},
	}
}

// Set clamps the command, recomputes both wheels and writes them out.
// Mixer state is updated even if an actuator write fails.
func (m *Mixer) Set(throttle, steering float64) error {
	cmd := Command{Throttle: Clamp(throttle), Steering: Clamp(steering)}
	l, r := Mix(cmd.Throttle, cmd.Steering)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.state = State{
		Command: cmd,
		Left:    WheelState(l, m.minFreq, m.maxFreq),
		Right:   WheelState(r, m.minFreq, m.maxFreq),
	}
	return errors.Join(
		apply("left", m.left, m.state.Left),
		apply("right", m.right, m.state.Right),
	)
}

func (m *Mixer) Stop() error { return m.Set(0, 0) }

func (m *Mixer) Command() Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Command
}

func (m *Mixer) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func apply(side string, a Actuator, st MotorState) error {
	if a == nil {
		return nil
	}
	if err := a.SetDirection(st.Direction); err != nil {
		return fmt.Errorf("%s motor direction: %w", side, err)
	}
	if err := a.SetPWMFrequency(st.FrequencyHz); err != nil {
		return fmt.Errorf("%s motor frequency: %w", side, err)
	}
	if err := a.SetPWMDuty(st.Duty); err != nil {
		return fmt.Errorf("%s motor duty: %w", side, err)
	}
	return nil
}
