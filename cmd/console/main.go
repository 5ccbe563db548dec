// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/relabs-tech/inertial_rover/internal/app"
	"github.com/relabs-tech/inertial_rover/internal/calibration"
	"github.com/relabs-tech/inertial_rover/internal/config"
	"github.com/relabs-tech/inertial_rover/internal/sensors"
)

func main() {
	configPath := flag.String("config", "./rover_config.txt", "path to configuration file")
	interval := flag.Duration("interval", 200*time.Millisecond, "print interval")
	flag.Parse()

	log.Println("starting inertial-rover console (local IMU)")

	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	cfg := config.Get()

	// Motors are not driven here, so the mock gyro stays still.
	sensor, err := sensors.Open(cfg, func() float64 { return 0 })
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	defer sensor.Close()
	sensor.SetOffsets(calibration.LoadOffsets(calibration.NewFileStore(cfg.CalibrationFile)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := app.RunConsole(ctx, sensor, *interval, os.Stdout); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
