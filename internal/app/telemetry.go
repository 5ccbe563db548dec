// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/inertial_rover/internal/config"
)

// MQTTCommand is the payload accepted on TOPIC_COMMAND.
//
//	{"throttle": 0.3, "steering": -0.1}
//	{"action": "stop"}
//	{"action": "ratehold", "ratehold": {"target_dps": 30, "duration_s": 5}}
type MQTTCommand struct {
	Action   string           `json:"action,omitempty"` // "" means drive
	Throttle float64          `json:"throttle"`
	Steering float64          `json:"steering"`
	RateHold *RateHoldRequest `json:"ratehold,omitempty"`
}

// HandleCommand decodes and applies one MQTT command payload.
func (r *Rover) HandleCommand(payload []byte) error {
	var cmd MQTTCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return fmt.Errorf("command unmarshal: %w", err)
	}
	switch cmd.Action {
	case "", "drive":
		return r.Drive(cmd.Throttle, cmd.Steering)
	case "stop":
		return r.Stop()
	case "ratehold":
		if cmd.RateHold == nil {
			return fmt.Errorf("ratehold: missing parameters")
		}
		_, err := r.StartRateHold(*cmd.RateHold)
		return err
	default:
		return fmt.Errorf("unknown action %q", cmd.Action)
	}
}

// newMQTTClient builds a client that keeps retrying the broker in the
// background and runs onConnect after every (re)connection.
func newMQTTClient(cfg *config.Config, clientID string, onConnect func(mqtt.Client)) mqtt.Client {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(2 * time.Second).
		SetOnConnectHandler(func(c mqtt.Client) {
			log.Printf("connected to MQTT broker at %s", cfg.MQTTBroker)
			if onConnect != nil {
				onConnect(c)
			}
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Printf("Warning: MQTT connection lost: %v", err)
		})
	return mqtt.NewClient(opts)
}

// RunTelemetry publishes rover snapshots to TOPIC_TELEMETRY every
// TELEMETRY_INTERVAL and applies commands received on TOPIC_COMMAND.
// An unreachable broker is retried; it never stops the rover.
func RunTelemetry(ctx context.Context, cfg *config.Config, r *Rover) error {
	client := newMQTTClient(cfg, cfg.MQTTClientID, func(c mqtt.Client) {
		token := c.Subscribe(cfg.TopicCommand, 0, func(_ mqtt.Client, msg mqtt.Message) {
			if err := r.HandleCommand(msg.Payload()); err != nil {
				log.Printf("telemetry: command on %s: %v", msg.Topic(), err)
			}
		})
		token.Wait()
		if token.Error() != nil {
			log.Printf("telemetry: subscribe %s: %v", cfg.TopicCommand, token.Error())
			return
		}
		log.Printf("telemetry: subscribed to MQTT topic %s", cfg.TopicCommand)
	})
	client.Connect()
	defer client.Disconnect(250)

	ticker := time.NewTicker(time.Duration(cfg.TelemetryInterval) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		if !client.IsConnectionOpen() {
			continue
		}

		payload, err := json.Marshal(r.Snapshot())
		if err != nil {
			log.Printf("telemetry: json marshal error: %v", err)
			continue
		}
		if token := client.Publish(cfg.TopicTelemetry, 0, true, payload); token.Wait() && token.Error() != nil {
			log.Printf("telemetry: MQTT publish error: %v", token.Error())
		}
	}
}
