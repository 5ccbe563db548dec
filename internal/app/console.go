// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/relabs-tech/inertial_rover/internal/sensors"
)

// RunConsole prints local IMU readings every interval until ctx is done.
// It talks to the sensor directly, with no broker involved.
func RunConsole(ctx context.Context, sensor *sensors.Inertial, interval time.Duration, out io.Writer) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		r, err := sensor.Read()
		if err != nil {
			return err
		}
		fmt.Fprintf(out,
			"PITCH=%7.2f  ROLL=%7.2f  YAW=%7.2f °/s  SPIN=%6.2f | TILT R=%6.2f P=%6.2f T=%6.2f\n",
			r.DPS.Pitch, r.DPS.Roll, r.DPS.Yaw, r.DPS.Spin,
			r.Tilt.Roll, r.Tilt.Pitch, r.Tilt.Total,
		)
	}
}
