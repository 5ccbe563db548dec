// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"image"
	"log"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/inertial_rover/internal/config"
)

const (
	displayWidth  = 128
	displayHeight = 64
	lineHeight    = 13
)

// RunDisplay shows the rover status on an SSD1306 OLED, refreshed every
// DISPLAY_UPDATE_INTERVAL from snapshot.
func RunDisplay(ctx context.Context, cfg *config.Config, snapshot func() Telemetry) error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}

	bus, err := i2creg.Open(cfg.IMUI2CBus)
	if err != nil {
		return fmt.Errorf("failed to open I2C bus: %w", err)
	}
	defer bus.Close()

	dev, err := ssd1306.NewI2C(bus, &ssd1306.DefaultOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize display: %w", err)
	}
	defer dev.Halt()
	log.Printf("display: initialized at 0x%02X", cfg.DisplayI2CAddr)

	if err := dev.Draw(dev.Bounds(), renderLines("Inertial Rover", "starting..."), image.Point{}); err != nil {
		log.Printf("display: error showing splash: %v", err)
	}

	ticker := time.NewTicker(time.Duration(cfg.DisplayUpdateInterval) * time.Millisecond)
	defer ticker.Stop()

	log.Println("display: starting update loop")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		if err := dev.Draw(dev.Bounds(), renderStatus(snapshot()), image.Point{}); err != nil {
			log.Printf("display: error updating display: %v", err)
		}
	}
}

// statusLines formats a snapshot into at most four 18-column lines.
func statusLines(t Telemetry) []string {
	cmd := t.Drive.Command
	lines := []string{fmt.Sprintf("T:%5.2f S:%5.2f", cmd.Throttle, cmd.Steering)}

	if t.IMU != nil {
		lines = append(lines,
			fmt.Sprintf("Yaw: %6.1f d/s", t.IMU.DPS.Yaw),
			fmt.Sprintf("Tilt:%5.1f/%5.1f", t.IMU.Tilt.Roll, t.IMU.Tilt.Pitch),
		)
	} else {
		lines = append(lines, "IMU error", "")
	}

	if s := t.Control.Session; s != nil {
		lines = append(lines, fmt.Sprintf("HOLD %5.1f>%5.1f", s.MeasuredDPS, s.TargetDPS))
	} else if t.GPS != nil && t.GPS.Valid() {
		lines = append(lines, fmt.Sprintf("%.3f,%.3f", t.GPS.Latitude, t.GPS.Longitude))
	} else {
		lines = append(lines, t.Control.Mode.String())
	}
	return lines
}

func renderStatus(t Telemetry) *image1bit.VerticalLSB {
	return renderLines(statusLines(t)...)
}

func renderLines(lines ...string) *image1bit.VerticalLSB {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, displayWidth, displayHeight))
	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	for i, line := range lines {
		drawer.Dot = fixed.P(0, lineHeight*(i+1))
		drawer.DrawBytes([]byte(line))
	}
	return img
}
