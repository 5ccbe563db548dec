// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"

	"github.com/relabs-tech/inertial_rover/internal/config"
	"github.com/relabs-tech/inertial_rover/internal/gps"
)

// RunGPS feeds rx from the configured serial port until ctx is done.
func RunGPS(ctx context.Context, cfg *config.Config, rx *gps.Receiver) error {
	port, err := gps.OpenSerial(cfg.GPSSerialPort, cfg.GPSBaudRate)
	if err != nil {
		return err
	}
	defer port.Close()

	// Closing the port unblocks the pending read.
	stop := context.AfterFunc(ctx, func() { port.Close() })
	defer stop()

	err = rx.Run(ctx, port)
	if ctx.Err() != nil {
		return nil
	}
	return err
}
