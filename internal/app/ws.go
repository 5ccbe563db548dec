// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/inertial_rover/internal/control"
	"github.com/relabs-tech/inertial_rover/internal/drive"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// WSMessage is a client request on /ws.
type WSMessage struct {
	Action   string           `json:"action"` // drive, stop, state, ratehold, calibrate
	Throttle float64          `json:"throttle,omitempty"`
	Steering float64          `json:"steering,omitempty"`
	Kind     string           `json:"kind,omitempty"`    // calibrate: gyro or tilt
	Samples  int              `json:"samples,omitempty"` // calibrate
	RateHold *RateHoldRequest `json:"ratehold,omitempty"`
}

// WSResponse is a server message on /ws.
type WSResponse struct {
	Type    string     `json:"type"` // state, phase, complete, error
	Phase   string     `json:"phase,omitempty"`
	State   *Telemetry `json:"state,omitempty"`
	Results any        `json:"results,omitempty"`
	Message string     `json:"message,omitempty"`
}

type wsSession struct {
	rover  *Rover
	conn   *websocket.Conn
	closed chan struct{}
	mu     sync.Mutex
}

// HandleDriveWS streams drive commands from a browser or joystick client.
// Every accepted message is answered with a state snapshot. Closing the
// socket stops the motors if this client's command is still in effect.
func (r *Rover) HandleDriveWS(w http.ResponseWriter, req *http.Request) {
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		log.Printf("ws: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	s := &wsSession{rover: r, conn: conn, closed: make(chan struct{})}
	defer close(s.closed)
	// held is the command this client last applied, nil once it no longer
	// owns the motors.
	var held *drive.Command

	for {
		var msg WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("ws: read error: %v", err)
			}
			break
		}

		switch msg.Action {
		case "drive":
			if err := r.Drive(msg.Throttle, msg.Steering); err != nil {
				s.sendError(err.Error())
				continue
			}
			cmd := r.ctrl.Mixer().Command()
			held = &cmd
			s.sendState()

		case "stop":
			held = nil
			if err := r.Stop(); err != nil {
				s.sendError(err.Error())
				continue
			}
			s.sendState()

		case "state":
			s.sendState()

		case "ratehold":
			if msg.RateHold == nil {
				s.sendError("ratehold: missing parameters")
				continue
			}
			sess, err := r.StartRateHold(*msg.RateHold)
			if err != nil {
				s.sendError(err.Error())
				continue
			}
			s.sendState()
			go s.watchSession(sess)

		case "calibrate":
			s.send(WSResponse{Type: "phase", Phase: msg.Kind})
			res, err := r.Calibrate(req.Context(), msg.Kind, msg.Samples)
			if err != nil {
				s.sendError(err.Error())
				continue
			}
			s.send(WSResponse{Type: "complete", Phase: msg.Kind, Results: res})

		default:
			s.sendError(fmt.Sprintf("unknown action %q", msg.Action))
		}
	}

	// A dropped joystick connection must not leave the vehicle driving,
	// but commands or sessions issued since by other clients stand.
	if held != nil && !r.ctrl.Running() && r.ctrl.Mixer().Command() == *held {
		if err := r.Stop(); err != nil {
			log.Printf("Warning: ws: stop on disconnect: %v", err)
		}
	}
}

func (s *wsSession) send(resp WSResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.WriteJSON(resp); err != nil {
		log.Printf("ws: write error: %v", err)
	}
}

// watchSession reports the end of a rate-hold session to the client.
func (s *wsSession) watchSession(sess *control.Session) {
	select {
	case <-sess.Done():
	case <-s.closed:
		return
	}
	resp := WSResponse{Type: "complete", Phase: "ratehold", Results: sess.Snapshot()}
	if err := sess.Wait(); err != nil {
		resp.Message = err.Error()
	}
	s.send(resp)
}

func (s *wsSession) sendState() {
	t := s.rover.Snapshot()
	s.send(WSResponse{Type: "state", State: &t})
}

func (s *wsSession) sendError(message string) {
	s.send(WSResponse{
		Type:    "error",
		Message: message,
	})
}
