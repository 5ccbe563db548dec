// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/relabs-tech/inertial_rover/internal/sensors"
)

// StaticDir holds the bundled browser UI served at /.
var StaticDir = "web"

// Handler returns the rover's HTTP API:
//
//	GET  /?t=<throttle>&s=<steering>  direct drive, either value optional
//	GET  /api/state                   telemetry snapshot
//	GET  /api/registers               IMU register dump
//	POST /api/ratehold                start a rate-hold session (JSON body)
//	POST /api/stop                    stop motors and any session
//	POST /api/calibrate?kind=gyro|tilt&samples=N
//	GET  /ws                          websocket drive stream
//
// Any other path is served from StaticDir.
func (r *Rover) Handler() http.Handler {
	mux := http.NewServeMux()
	static := http.FileServer(http.Dir(StaticDir))

	mux.HandleFunc("/", func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		if req.URL.Path == "/" && (q.Has("t") || q.Has("s")) {
			r.handleCommand(w, req)
			return
		}
		static.ServeHTTP(w, req)
	})
	mux.HandleFunc("GET /api/state", r.handleState)
	mux.HandleFunc("GET /api/registers", r.handleRegisters)
	mux.HandleFunc("POST /api/ratehold", r.handleRateHold)
	mux.HandleFunc("POST /api/stop", r.handleStop)
	mux.HandleFunc("POST /api/calibrate", r.handleCalibrate)
	mux.HandleFunc("GET /ws", r.HandleDriveWS)
	return mux
}

// handleCommand keeps the value of whichever parameter is absent.
func (r *Rover) handleCommand(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")

	cmd := r.ctrl.Mixer().Command()
	q := req.URL.Query()
	for _, p := range []struct {
		key string
		dst *float64
	}{{"t", &cmd.Throttle}, {"s", &cmd.Steering}} {
		if !q.Has(p.key) {
			continue
		}
		v, err := strconv.ParseFloat(q.Get(p.key), 64)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid %s: %q", p.key, q.Get(p.key)), http.StatusBadRequest)
			return
		}
		*p.dst = v
	}

	if err := r.Drive(cmd.Throttle, cmd.Steering); err != nil {
		if errors.Is(err, ErrBusy) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		log.Printf("Warning: web: drive: %v", err)
	}
	writeJSON(w, http.StatusOK, r.ctrl.Mixer().Command())
}

func (r *Rover) handleState(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, r.Snapshot())
}

func (r *Rover) handleRegisters(w http.ResponseWriter, req *http.Request) {
	regs, err := r.sensor.Registers()
	if errors.Is(err, sensors.ErrNoRegisters) {
		http.Error(w, err.Error(), http.StatusNotImplemented)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, regs)
}

func (r *Rover) handleRateHold(w http.ResponseWriter, req *http.Request) {
	var body RateHoldRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return
	}
	s, err := r.StartRateHold(body)
	if errors.Is(err, ErrBusy) {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusAccepted, s.Snapshot())
}

func (r *Rover) handleStop(w http.ResponseWriter, req *http.Request) {
	if err := r.Stop(); err != nil {
		log.Printf("Warning: web: stop: %v", err)
	}
	writeJSON(w, http.StatusOK, r.ctrl.Mixer().State())
}

func (r *Rover) handleCalibrate(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()
	samples := 0
	if q.Has("samples") {
		n, err := strconv.Atoi(q.Get("samples"))
		if err != nil || n <= 0 {
			http.Error(w, fmt.Sprintf("invalid samples: %q", q.Get("samples")), http.StatusBadRequest)
			return
		}
		samples = n
	}

	res, err := r.Calibrate(req.Context(), q.Get("kind"), samples)
	switch {
	case errors.Is(err, ErrUnknownCalibration):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrBusy):
		http.Error(w, err.Error(), http.StatusConflict)
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("json encode error: %v", err)
	}
}

// RunWeb serves h on addr until ctx is done.
func RunWeb(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: h}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("web server listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}
