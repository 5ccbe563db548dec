// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package control

import "math"

// IntegralLimit bounds the integral accumulator in both directions.
const IntegralLimit = 100.0

// PID is a discrete controller with a fixed time step.
type PID struct {
	Kp, Ki, Kd  float64
	Target      float64
	OutputLimit float64
	DT          float64 // seconds

	integral  float64
	lastError float64
	primed    bool
}

func NewPID(target, kp, ki, kd, outputLimit, dt float64) *PID {
	return &PID{Kp: kp, Ki: ki, Kd: kd, Target: target, OutputLimit: outputLimit, DT: dt}
}

// Update folds one measurement and returns the clamped output.
func (p *PID) Update(measured float64) float64 {
	err := p.Target - measured

	p.integral = clampAbs(p.integral+err*p.DT, IntegralLimit)

	// First tick has no previous error; treat it as steady.
	if !p.primed {
		p.lastError = err
		p.primed = true
	}
	var derivative float64
	if p.DT > 0 {
		derivative = (err - p.lastError) / p.DT
	}
	p.lastError = err

	out := p.Kp*err + p.Ki*p.integral + p.Kd*derivative
	return clampAbs(out, p.OutputLimit)
}

func (p *PID) Integral() float64  { return p.integral }
func (p *PID) LastError() float64 { return p.lastError }

func clampAbs(v, limit float64) float64 {
	return math.Max(-limit, math.Min(limit, v))
}
