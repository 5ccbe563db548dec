// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/inertial_rover/internal/config"
)

// RunConsoleMQTT prints rover telemetry from the broker until ctx is done.
func RunConsoleMQTT(ctx context.Context, cfg *config.Config, out io.Writer) error {
	client := newMQTTClient(cfg, cfg.MQTTClientID+"-console", func(c mqtt.Client) {
		token := c.Subscribe(cfg.TopicTelemetry, 0, func(_ mqtt.Client, msg mqtt.Message) {
			var t Telemetry
			if err := json.Unmarshal(msg.Payload(), &t); err != nil {
				log.Printf("console: telemetry unmarshal error: %v", err)
				return
			}
			printTelemetry(out, t)
		})
		token.Wait()
		if token.Error() != nil {
			log.Printf("console: subscribe %s: %v", cfg.TopicTelemetry, token.Error())
			return
		}
		log.Printf("console: subscribed to %s", cfg.TopicTelemetry)
	})
	client.Connect()

	<-ctx.Done()
	log.Println("console: shutting down")
	client.Disconnect(250)
	return nil
}

func printTelemetry(out io.Writer, t Telemetry) {
	d := t.Drive
	fmt.Fprintf(out,
		"[DRIVE] T=%5.2f S=%5.2f | L=%-7s %4d/%3dHz | R=%-7s %4d/%3dHz\n",
		d.Command.Throttle, d.Command.Steering,
		d.Left.Direction, d.Left.Duty, d.Left.FrequencyHz,
		d.Right.Direction, d.Right.Duty, d.Right.FrequencyHz,
	)
	if t.IMU != nil {
		fmt.Fprintf(out,
			"[IMU  ] PITCH=%7.2f ROLL=%7.2f YAW=%7.2f °/s SPIN=%6.2f | TILT R=%6.2f P=%6.2f T=%6.2f°\n",
			t.IMU.DPS.Pitch, t.IMU.DPS.Roll, t.IMU.DPS.Yaw, t.IMU.DPS.Spin,
			t.IMU.Tilt.Roll, t.IMU.Tilt.Pitch, t.IMU.Tilt.Total,
		)
	} else if t.IMUError != "" {
		fmt.Fprintf(out, "[IMU  ] error: %s\n", t.IMUError)
	}
	if s := t.Control.Session; s != nil {
		fmt.Fprintf(out,
			"[HOLD ] %s target=%6.1f measured=%6.1f err=%6.1f out=%5.2f I=%7.3f ticks=%d\n",
			s.ID[:8], s.TargetDPS, s.MeasuredDPS, s.ErrorDPS, s.Output, s.Integral, s.Ticks,
		)
	}
	if f := t.GPS; f != nil {
		fmt.Fprintf(out,
			"[GPS  ] time=%s date=%s lat=%.6f lon=%.6f speed=%.1fkn course=%.1f° validity=%s\n",
			f.Time, f.Date, f.Latitude, f.Longitude, f.SpeedKnots, f.CourseDeg, f.Validity,
		)
	}
}
