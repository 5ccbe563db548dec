// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// ./cmd/calibration/main.go
//
// Guided calibration for the rover IMU. Captures:
//  1. Gyro: static bias with the vehicle still
//  2. Tilt: level reference (roll/pitch offsets) with the vehicle on flat ground
//
// Offsets are written to the calibration file named in the config, the same
// file the rover loads at startup. An optional report with stddev and
// confidence per step can be written with -report.
//
// Run:
//
//	go run ./cmd/calibration -config ./rover_config.txt
//
// The rover daemon must not be running: both processes would own the IMU bus.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/relabs-tech/inertial_rover/internal/calibration"
	"github.com/relabs-tech/inertial_rover/internal/config"
	"github.com/relabs-tech/inertial_rover/internal/orientation"
	"github.com/relabs-tech/inertial_rover/internal/sensors"
)

// Report is the optional summary written after a guided run.
type Report struct {
	SchemaVersion int                  `json:"schema_version"`
	CalibrationAt string               `json:"calibration_at"`
	IMU           string               `json:"imu"`
	Steps         []calibration.Result `json:"steps"`
	Overall       float64              `json:"overall_confidence"`
	OffsetsFile   string               `json:"offsets_file"`
}

func main() {
	in := bufio.NewReader(os.Stdin)

	configPath := flag.String("config", "./rover_config.txt", "path to configuration file")
	samples := flag.Int("samples", 0, "samples per step (0 = CALIBRATION_SAMPLES from config)")
	only := flag.String("only", "", "run a single step: gyro or tilt")
	reportPath := flag.String("report", "", "optional path for a JSON report")
	flag.Parse()

	if err := config.InitGlobal(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Failed to load config from %s: %v\n", *configPath, err)
		os.Exit(1)
	}
	cfg := config.Get()

	n := *samples
	if n <= 0 {
		n = cfg.CalibrationSamples
	}
	steps, err := selectSteps(*only)
	if err != nil {
		fatal(err)
	}

	fmt.Println("=== Guided Calibration (Gyro + Tilt) ===")
	fmt.Printf("This workflow will prompt you in the console and store offsets in %s\n\n", cfg.CalibrationFile)

	// Motors are idle during calibration.
	sensor, err := sensors.Open(cfg, func() float64 { return 0 })
	if err != nil {
		fatal(fmt.Errorf("IMU init failed: %w", err))
	}
	defer sensor.Close()

	store := calibration.NewFileStore(cfg.CalibrationFile)
	sensor.SetOffsets(calibration.LoadOffsets(store))
	cal := calibration.NewCalibrator(sensor, store, time.Duration(cfg.SampleInterval)*time.Millisecond)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rep := Report{
		SchemaVersion: 1,
		CalibrationAt: time.Now().Format(time.RFC3339),
		IMU:           sensor.String(),
		OffsetsFile:   store.Path(),
	}

	for i, step := range steps {
		fmt.Printf("Step %d/%d: %s\n", i+1, len(steps), step.title)
		for _, line := range step.instructions {
			fmt.Println(line)
		}
		waitEnter(in, fmt.Sprintf("Press ENTER to start capture (%d samples)...", n))

		res, err := step.run(cal, ctx, n)
		if err != nil {
			fatal(err)
		}
		printResult(os.Stdout, res)
		if res.Name == calibration.NameGyro {
			printResidual(os.Stdout, sensor)
		}
		rep.Steps = append(rep.Steps, res)
		fmt.Println()
	}

	rep.Overall = overallConfidence(rep.Steps)

	if *reportPath != "" {
		if err := writeReport(*reportPath, rep); err != nil {
			fatal(err)
		}
		fmt.Printf("Report saved to %s\n", *reportPath)
	}

	fmt.Println("Calibration complete.")
	fmt.Printf("Overall confidence: %.2f\n", rep.Overall)
	fmt.Printf("Saved to %s\n", store.Path())
}

type step struct {
	title        string
	instructions []string
	run          func(c *calibration.Calibrator, ctx context.Context, n int) (calibration.Result, error)
}

var gyroStep = step{
	title: "Gyro static bias",
	instructions: []string{
		"Place the rover on a stable surface and do not touch it.",
	},
	run: (*calibration.Calibrator).CalibrateGyro,
}

var tiltStep = step{
	title: "Tilt level reference",
	instructions: []string{
		"Place the rover on flat, level ground.",
		"The current roll and pitch become the zero reference.",
	},
	run: (*calibration.Calibrator).CalibrateTilt,
}

func selectSteps(only string) ([]step, error) {
	switch strings.ToLower(strings.TrimSpace(only)) {
	case "":
		return []step{gyroStep, tiltStep}, nil
	case calibration.NameGyro:
		return []step{gyroStep}, nil
	case calibration.NameTilt:
		return []step{tiltStep}, nil
	default:
		return nil, fmt.Errorf("unknown step %q (want gyro or tilt)", only)
	}
}

func printResult(out io.Writer, res calibration.Result) {
	var off, sd []string
	for i, l := range res.Axes() {
		if i < len(res.Offsets) {
			off = append(off, fmt.Sprintf("%s=%.2f", l, res.Offsets[i]))
		}
		if i < len(res.StdDev) {
			sd = append(sd, fmt.Sprintf("%s=%.2f", l, res.StdDev[i]))
		}
	}
	fmt.Fprintf(out, "%s offsets: %s | confidence=%.2f\n", res.Name, strings.Join(off, " "), res.Confidence)
	fmt.Fprintf(out, "%s stddev:  %s\n", res.Name, strings.Join(sd, " "))
}

type rateReader interface {
	CalibratedRates() (orientation.Rates, error)
}

// printResidual reads the gyro once more with the new offsets applied.
// A still vehicle should show a few counts at most.
func printResidual(out io.Writer, r rateReader) {
	rates, err := r.CalibratedRates()
	if err != nil {
		fmt.Fprintf(out, "gyro residual: read error: %v\n", err)
		return
	}
	fmt.Fprintf(out, "gyro residual: pitch=%.2f roll=%.2f yaw=%.2f counts\n", rates.Pitch, rates.Roll, rates.Yaw)
}

// overallConfidence is the weakest step; one noisy capture spoils the set.
func overallConfidence(steps []calibration.Result) float64 {
	if len(steps) == 0 {
		return 0
	}
	overall := 1.0
	for _, s := range steps {
		overall = min(overall, s.Confidence)
	}
	return overall
}

func writeReport(path string, rep Report) error {
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// ---------- Console helpers ----------

func waitEnter(in *bufio.Reader, prompt string) {
	fmt.Print(prompt)
	_, _ = in.ReadString('\n')
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
	os.Exit(1)
}
