// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/diffdrive/internal/config"
	"github.com/relabs-tech/diffdrive/internal/telemetry"
)

// RunConsoleMQTT prints what the robot publishes and sends every line read
// from in to the command topic.
func RunConsoleMQTT(ctx context.Context, in io.Reader, out io.Writer) error {
	cfg := config.Get()
	topics := topicsFrom(cfg)

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(uniqueClientID(cfg.MQTTClientIDConsole))

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Printf("console: connected to MQTT broker at %s", cfg.MQTTBroker)
	defer client.Disconnect(250)

	subs := map[string]func([]byte) string{
		topics.Telemetry: formatFrame,
		topics.Battery:   formatBattery,
		topics.State:     formatState,
		topics.Reply():   func(p []byte) string { return "[REPLY] " + string(p) },
	}
	for topic, format := range subs {
		token := client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
			if line := format(msg.Payload()); line != "" {
				fmt.Fprintln(out, line)
			}
		})
		token.Wait()
		if token.Error() != nil {
			return token.Error()
		}
		log.Printf("console: subscribed to %s", topic)
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			log.Println("console: shutting down")
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			token := client.Publish(topics.Command, 0, false, line)
			token.Wait()
			if token.Error() != nil {
				log.Printf("console: publish error: %v", token.Error())
			}
		}
	}
}

func formatFrame(p []byte) string {
	var f telemetry.Frame
	if err := json.Unmarshal(p, &f); err != nil {
		log.Printf("console: telemetry unmarshal error: %v", err)
		return ""
	}
	return fmt.Sprintf("[TELE] wheel=%+7.3f imu=%+7.3f fused=%+7.3f v=%+6.3f pwm=%4d,%4d cnt=%d,%d",
		f.WheelOmega, f.IMUOmega, f.FusedOmega, f.FusedSpeed, f.LeftPWM, f.RightPWM, f.LeftCount, f.RightCount)
}

func formatBattery(p []byte) string {
	var b telemetry.Battery
	if err := json.Unmarshal(p, &b); err != nil {
		log.Printf("console: battery unmarshal error: %v", err)
		return ""
	}
	return fmt.Sprintf("[BATT] %3d%% %.2fV", b.Percent, b.Voltage)
}

func formatState(p []byte) string {
	var s Status
	if err := json.Unmarshal(p, &s); err != nil {
		log.Printf("console: state unmarshal error: %v", err)
		return ""
	}
	stop := ""
	if s.EmergencyStop {
		stop = " STOP"
	}
	return fmt.Sprintf("[STATE] %s %s heading=%+.2f target=%+.2f pwm=%d,%d resets=%d%s",
		s.Robot, s.Mode, s.Heading.Heading, s.Heading.TargetHeading, s.LeftPWM, s.RightPWM, s.Resets, stop)
}
