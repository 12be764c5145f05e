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
	"github.com/google/uuid"

	"github.com/relabs-tech/diffdrive/internal/config"
	"github.com/relabs-tech/diffdrive/internal/protocol"
	"github.com/relabs-tech/diffdrive/internal/telemetry"
)

// Topics names the MQTT topics of one robot.
type Topics struct {
	Telemetry string
	Battery   string
	State     string
	Command   string
}

// Reply is the topic replies to command lines are published on.
func (t Topics) Reply() string { return t.Command + "/reply" }

func topicsFrom(cfg *config.Config) Topics {
	return Topics{
		Telemetry: cfg.TopicTelemetry,
		Battery:   cfg.TopicBattery,
		State:     cfg.TopicState,
		Command:   cfg.TopicCommand,
	}
}

type mqttMessage struct {
	topic    string
	retained bool
	payload  []byte
}

// MQTTLink publishes telemetry and status as JSON and accepts protocol
// lines on the command topic.
type MQTTLink struct {
	client        mqtt.Client
	topics        Topics
	src           StatusSource
	stateInterval time.Duration
	out           chan mqttMessage
}

// uniqueClientID suffixes base so several robots can share a broker.
func uniqueClientID(base string) string {
	return base + "-" + uuid.NewString()[:8]
}

// ConnectMQTT connects to the configured broker.
func ConnectMQTT(cfg *config.Config, src StatusSource) (*MQTTLink, error) {
	clientID := uniqueClientID(cfg.MQTTClientIDRobot)
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(clientID).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt: connect %s: %w", cfg.MQTTBroker, token.Error())
	}
	log.Printf("mqtt: connected to MQTT broker at %s as %s", cfg.MQTTBroker, clientID)
	return newMQTTLink(client, topicsFrom(cfg), src, time.Second), nil
}

func newMQTTLink(client mqtt.Client, topics Topics, src StatusSource, stateInterval time.Duration) *MQTTLink {
	return &MQTTLink{
		client:        client,
		topics:        topics,
		src:           src,
		stateInterval: stateInterval,
		out:           make(chan mqttMessage, 64),
	}
}

func (m *MQTTLink) enqueue(topic string, retained bool, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Printf("mqtt: json marshal error: %v", err)
		return
	}
	select {
	case m.out <- mqttMessage{topic: topic, retained: retained, payload: payload}:
	default:
	}
}

func (m *MQTTLink) Frame(fr telemetry.Frame) { m.enqueue(m.topics.Telemetry, false, fr) }

func (m *MQTTLink) Battery(b telemetry.Battery) { m.enqueue(m.topics.Battery, true, b) }

func (m *MQTTLink) reply(line string) {
	select {
	case m.out <- mqttMessage{topic: m.topics.Reply(), payload: []byte(line)}:
	default:
	}
}

// Run subscribes to the command topic and publishes queued messages and a
// periodic status until ctx is done.
func (m *MQTTLink) Run(ctx context.Context, inbound chan<- Inbound) error {
	token := m.client.Subscribe(m.topics.Command, 0, func(_ mqtt.Client, msg mqtt.Message) {
		for _, line := range protocol.SplitLines(string(msg.Payload())) {
			select {
			case inbound <- Inbound{Line: line, Source: "mqtt", Reply: m.reply}:
			case <-ctx.Done():
				return
			}
		}
	})
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("mqtt: subscribe %s: %w", m.topics.Command, token.Error())
	}
	log.Printf("mqtt: subscribed to %s", m.topics.Command)

	ticker := time.NewTicker(m.stateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("mqtt: disconnecting")
			m.client.Disconnect(250)
			return nil
		case msg := <-m.out:
			m.publish(msg)
		case <-ticker.C:
			s := m.src.Status()
			if s.Time.IsZero() {
				continue
			}
			payload, err := json.Marshal(s)
			if err != nil {
				log.Printf("mqtt: json marshal error: %v", err)
				continue
			}
			m.publish(mqttMessage{topic: m.topics.State, retained: true, payload: payload})
		}
	}
}

func (m *MQTTLink) publish(msg mqttMessage) {
	token := m.client.Publish(msg.topic, 0, msg.retained, msg.payload)
	token.Wait()
	if token.Error() != nil {
		log.Printf("mqtt: publish %s error: %v", msg.topic, token.Error())
	}
}
