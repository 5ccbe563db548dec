// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/inertial_rover/internal/calibration"
	"github.com/relabs-tech/inertial_rover/internal/config"
	"github.com/relabs-tech/inertial_rover/internal/control"
	"github.com/relabs-tech/inertial_rover/internal/drive"
	"github.com/relabs-tech/inertial_rover/internal/gps"
	"github.com/relabs-tech/inertial_rover/internal/imu"
	"github.com/relabs-tech/inertial_rover/internal/sensors"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

// newTestRover builds a rover on the mock IMU with no motor outputs.
func newTestRover(t *testing.T) *Rover {
	t.Helper()
	cfg := config.Default()
	cfg.IMUMock = true
	cfg.CalibrationFile = filepath.Join(t.TempDir(), "cal.json")
	cfg.SampleInterval = 2
	cfg.ControlInterval = 10

	mixer := drive.NewMixer(nil, nil, cfg.PWMMinFreq, cfg.PWMMaxFreq)
	sensor := sensors.NewInertial("mock", imu.NewMock(func() float64 {
		return mixer.Command().Steering * mockSpinDPS
	}))
	store := calibration.NewFileStore(cfg.CalibrationFile)
	ctrl := control.NewController(mixer, sensor, 2*time.Millisecond, cfg.SensorMaxFailures)
	t.Cleanup(func() { ctrl.Stop() })

	return NewRover(cfg, sensor, ctrl, calibration.NewCalibrator(sensor, store, 0), nil)
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCommandEndpoint(t *testing.T) {
	r := newTestRover(t)
	h := r.Handler()

	rec := do(t, h, http.MethodGet, "/?t=0.25", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("ACAO = %q", got)
	}
	var cmd drive.Command
	if err := json.Unmarshal(rec.Body.Bytes(), &cmd); err != nil {
		t.Fatal(err)
	}
	if cmd.Throttle != 0.25 || cmd.Steering != 0 {
		t.Errorf("command = %+v", cmd)
	}

	// Steering alone keeps the previous throttle.
	do(t, h, http.MethodGet, "/?s=-1", "")
	if c := r.ctrl.Mixer().Command(); c.Throttle != 0.25 || c.Steering != -1 {
		t.Errorf("command = %+v, want throttle kept", c)
	}

	st := r.ctrl.Mixer().State()
	if st.Left.Direction != drive.Reverse || st.Right.Direction != drive.Forward {
		t.Errorf("wheels = %v/%v", st.Left.Direction, st.Right.Direction)
	}
}

func TestCommandEndpointClampsAndRejects(t *testing.T) {
	r := newTestRover(t)
	h := r.Handler()

	do(t, h, http.MethodGet, "/?t=5&s=-7", "")
	if c := r.ctrl.Mixer().Command(); c.Throttle != 1 || c.Steering != -1 {
		t.Errorf("command = %+v, want clamped", c)
	}

	rec := do(t, h, http.MethodGet, "/?t=fast", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if c := r.ctrl.Mixer().Command(); c.Throttle != 1 {
		t.Errorf("rejected command changed state: %+v", c)
	}
}

func TestStateEndpoint(t *testing.T) {
	r := newTestRover(t)
	rec := do(t, r.Handler(), http.MethodGet, "/api/state", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var tel Telemetry
	if err := json.Unmarshal(rec.Body.Bytes(), &tel); err != nil {
		t.Fatal(err)
	}
	if tel.IMU == nil {
		t.Fatalf("no IMU reading: %s", rec.Body)
	}
	if tel.Control.Mode != control.Idle {
		t.Errorf("mode = %v", tel.Control.Mode)
	}
	if tel.GPS != nil {
		t.Errorf("gps present without receiver")
	}
}

func TestCalibrateEndpoint(t *testing.T) {
	r := newTestRover(t)
	h := r.Handler()

	rec := do(t, h, http.MethodPost, "/api/calibrate?kind=gyro&samples=10", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	// The mock gyro at rest reads its fixed biases.
	want := [3]float64{40, -25, 12}
	if got := r.sensor.Offsets().Gyro; got != want {
		t.Errorf("gyro offsets = %v, want %v", got, want)
	}
	stored := calibration.LoadOffsets(calibration.NewFileStore(r.cfg.CalibrationFile))
	if stored.Gyro != want {
		t.Errorf("persisted offsets = %v", stored.Gyro)
	}
	yaw, err := r.sensor.YawRateDPS()
	if err != nil || yaw != 0 {
		t.Errorf("calibrated yaw at rest = %v, %v", yaw, err)
	}

	for _, target := range []string{
		"/api/calibrate?kind=compass",
		"/api/calibrate?kind=gyro&samples=zero",
		"/api/calibrate?kind=tilt&samples=-3",
	} {
		if rec := do(t, h, http.MethodPost, target, ""); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", target, rec.Code)
		}
	}
}

func TestCalibrateRefusedWhileRateHold(t *testing.T) {
	r := newTestRover(t)
	h := r.Handler()

	rec := do(t, h, http.MethodPost, "/api/ratehold", `{"target_dps": 20, "duration_s": 5}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("ratehold status = %d: %s", rec.Code, rec.Body)
	}
	if !r.ctrl.Running() {
		t.Fatal("no session running")
	}

	if rec := do(t, h, http.MethodPost, "/api/calibrate?kind=tilt", ""); rec.Code != http.StatusConflict {
		t.Errorf("calibrate status = %d, want 409", rec.Code)
	}

	if rec := do(t, h, http.MethodPost, "/api/stop", ""); rec.Code != http.StatusOK {
		t.Errorf("stop status = %d", rec.Code)
	}
	if r.ctrl.Running() {
		t.Error("session still running after stop")
	}
	if c := r.ctrl.Mixer().Command(); c != (drive.Command{}) {
		t.Errorf("command = %+v, want stopped", c)
	}
}

func TestRateHoldSteersTowardTarget(t *testing.T) {
	r := newTestRover(t)
	s, err := r.StartRateHold(RateHoldRequest{TargetDPS: 30, DurationS: 5})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Stop()
	waitFor(t, 2*time.Second, func() bool { return r.ctrl.Mixer().Command().Steering > 0 })
}

func TestRateHoldBadRequests(t *testing.T) {
	r := newTestRover(t)
	h := r.Handler()
	for _, body := range []string{`{`, `{"target_dps": 10, "duration_s": 0}`, `{"target_dps": 10, "duration_s": 1, "output_limit": 3}`} {
		if rec := do(t, h, http.MethodPost, "/api/ratehold", body); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestRegistersUnavailableOnMock(t *testing.T) {
	r := newTestRover(t)
	if rec := do(t, r.Handler(), http.MethodGet, "/api/registers", ""); rec.Code != http.StatusNotImplemented {
		t.Errorf("status = %d, want 501", rec.Code)
	}
}

func TestDriveWebsocket(t *testing.T) {
	r := newTestRover(t)
	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := conn.WriteJSON(WSMessage{Action: "drive", Throttle: 0.5, Steering: 0.1}); err != nil {
		t.Fatal(err)
	}
	var resp WSResponse
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Type != "state" || resp.State == nil || resp.State.Drive.Command.Throttle != 0.5 {
		t.Errorf("response = %+v", resp)
	}

	if err := conn.WriteJSON(WSMessage{Action: "jump"}); err != nil {
		t.Fatal(err)
	}
	resp = WSResponse{}
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Type != "error" {
		t.Errorf("response type = %q, want error", resp.Type)
	}

	conn.Close()
	waitFor(t, time.Second, func() bool { return r.ctrl.Mixer().Command() == drive.Command{} })
}

func TestHandleCommandPayloads(t *testing.T) {
	r := newTestRover(t)

	if err := r.HandleCommand([]byte(`{"throttle": 0.3, "steering": -0.2}`)); err != nil {
		t.Fatal(err)
	}
	if c := r.ctrl.Mixer().Command(); c.Throttle != 0.3 || c.Steering != -0.2 {
		t.Errorf("command = %+v", c)
	}

	if err := r.HandleCommand([]byte(`{"action": "ratehold", "ratehold": {"target_dps": 15, "duration_s": 5}}`)); err != nil {
		t.Fatal(err)
	}
	if !r.ctrl.Running() {
		t.Error("ratehold not started")
	}

	if err := r.HandleCommand([]byte(`{"action": "stop"}`)); err != nil {
		t.Fatal(err)
	}
	if r.ctrl.Running() || r.ctrl.Mixer().Command() != (drive.Command{}) {
		t.Error("stop did not stop")
	}

	for _, bad := range []string{`not json`, `{"action": "fly"}`, `{"action": "ratehold"}`} {
		if err := r.HandleCommand([]byte(bad)); err == nil {
			t.Errorf("HandleCommand(%s) accepted", bad)
		}
	}
}

func TestStatusDisplay(t *testing.T) {
	r := newTestRover(t)
	if err := r.Drive(0.5, 0); err != nil {
		t.Fatal(err)
	}
	tel := r.Snapshot()
	tel.GPS = &gps.Fix{Latitude: 51.5, Longitude: -0.7, Validity: "A"}

	lines := statusLines(tel)
	if len(lines) != 4 {
		t.Fatalf("lines = %q", lines)
	}
	if !strings.Contains(lines[0], "T: 0.50") {
		t.Errorf("first line = %q", lines[0])
	}
	if !strings.Contains(lines[3], "51.500") {
		t.Errorf("gps line = %q", lines[3])
	}

	img := renderStatus(tel)
	lit := false
	for _, b := range img.Pix {
		if b != 0 {
			lit = true
			break
		}
	}
	if !lit {
		t.Error("rendered status is blank")
	}
}

func TestPrintTelemetry(t *testing.T) {
	r := newTestRover(t)
	_ = r.Drive(0.2, 0)

	// Round-trip through JSON as the MQTT console does.
	b, err := json.Marshal(r.Snapshot())
	if err != nil {
		t.Fatal(err)
	}
	var tel Telemetry
	if err := json.Unmarshal(b, &tel); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	printTelemetry(&out, tel)
	if !strings.Contains(out.String(), "[DRIVE] T= 0.20") || !strings.Contains(out.String(), "forward") {
		t.Errorf("output = %q", out.String())
	}
	if !strings.Contains(out.String(), "[IMU  ]") {
		t.Errorf("missing IMU line: %q", out.String())
	}
}

func TestRunConsolePrintsReadings(t *testing.T) {
	r := newTestRover(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	var out bytes.Buffer
	if err := RunConsole(ctx, r.sensor, 5*time.Millisecond, &out); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "PITCH=") || !strings.Contains(out.String(), "TILT R=") {
		t.Errorf("console output = %q", out.String())
	}
}

func TestDriveRefusedDuringCalibration(t *testing.T) {
	r := newTestRover(t)
	store := calibration.NewFileStore(r.cfg.CalibrationFile)
	r.calibrator = calibration.NewCalibrator(r.sensor, store, 2*time.Millisecond)
	h := r.Handler()

	type outcome struct {
		res calibration.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := r.Calibrate(context.Background(), calibration.NameGyro, 100)
		done <- outcome{res, err}
	}()
	waitFor(t, time.Second, r.calibrating.Load)

	if err := r.Drive(0, 1); !errors.Is(err, ErrBusy) {
		t.Errorf("Drive during capture = %v, want ErrBusy", err)
	}
	if rec := do(t, h, http.MethodGet, "/?t=0.5", ""); rec.Code != http.StatusConflict {
		t.Errorf("command endpoint status = %d, want 409", rec.Code)
	}
	if err := r.HandleCommand([]byte(`{"throttle":0.3,"steering":0.3}`)); !errors.Is(err, ErrBusy) {
		t.Errorf("MQTT command during capture = %v, want ErrBusy", err)
	}
	if _, err := r.StartRateHold(RateHoldRequest{TargetDPS: 10, DurationS: 1}); !errors.Is(err, ErrBusy) {
		t.Errorf("StartRateHold during capture = %v, want ErrBusy", err)
	}
	if !r.Snapshot().Calibrating {
		t.Error("snapshot does not report calibration")
	}

	var out outcome
	select {
	case out = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("calibration did not finish")
	}
	if out.err != nil {
		t.Fatal(out.err)
	}
	if want := [3]float64{40, -25, 12}; r.sensor.Offsets().Gyro != want {
		t.Errorf("gyro offsets = %v, want %v", r.sensor.Offsets().Gyro, want)
	}
	if c := r.ctrl.Mixer().Command(); c != (drive.Command{}) {
		t.Errorf("command after capture = %+v, want stopped", c)
	}

	// Driving works again once the capture is over.
	if err := r.Drive(0.2, 0); err != nil {
		t.Errorf("Drive after capture = %v", err)
	}
}

func TestWebsocketCloseKeepsOtherClientsCommands(t *testing.T) {
	r := newTestRover(t)
	h := r.Handler()
	srv := httptest.NewServer(h)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	driveAndClose := func(after func()) {
		t.Helper()
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			t.Fatal(err)
		}
		if err := conn.WriteJSON(WSMessage{Action: "drive", Throttle: 0.4}); err != nil {
			t.Fatal(err)
		}
		var resp WSResponse
		if err := conn.ReadJSON(&resp); err != nil {
			t.Fatal(err)
		}
		after()
		conn.Close()
		// Give the handler time to observe the close.
		time.Sleep(100 * time.Millisecond)
	}

	// A later HTTP command replaces the websocket one and must survive.
	driveAndClose(func() {
		if rec := do(t, h, http.MethodGet, "/?t=0.7&s=0", ""); rec.Code != http.StatusOK {
			t.Fatalf("command status = %d", rec.Code)
		}
	})
	if c := r.ctrl.Mixer().Command(); c.Throttle != 0.7 {
		t.Errorf("command after close = %+v, want throttle 0.7", c)
	}

	// A rate-hold session started elsewhere keeps running.
	driveAndClose(func() {
		if rec := do(t, h, http.MethodPost, "/api/ratehold", `{"target_dps": 20, "duration_s": 5}`); rec.Code != http.StatusAccepted {
			t.Fatalf("ratehold status = %d: %s", rec.Code, rec.Body)
		}
	})
	if !r.ctrl.Running() {
		t.Error("rate-hold session ended by websocket close")
	}
}

func TestWebsocketReportsRateHoldEnd(t *testing.T) {
	r := newTestRover(t)
	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	req := &RateHoldRequest{TargetDPS: 20, DurationS: 0.05}
	if err := conn.WriteJSON(WSMessage{Action: "ratehold", RateHold: req}); err != nil {
		t.Fatal(err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var resp WSResponse
	if err := conn.ReadJSON(&resp); err != nil || resp.Type != "state" {
		t.Fatalf("first response = %+v, %v", resp, err)
	}
	resp = WSResponse{}
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Type != "complete" || resp.Phase != "ratehold" || resp.Message != "" {
		t.Errorf("end response = %+v", resp)
	}
	if r.ctrl.Running() {
		t.Error("session still running")
	}
}
