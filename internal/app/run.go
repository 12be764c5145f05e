// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"log"

	"golang.org/x/sync/errgroup"

	"github.com/relabs-tech/diffdrive/internal/config"
	"github.com/relabs-tech/diffdrive/internal/control"
	"github.com/relabs-tech/diffdrive/internal/motors"
	"github.com/relabs-tech/diffdrive/internal/sensors"
	"github.com/relabs-tech/diffdrive/internal/telemetry"
	"github.com/relabs-tech/diffdrive/internal/tuning"
)

// RunRobot opens the hardware, wires the control core to every configured
// transport and runs until ctx is cancelled or a transport fails.
func RunRobot(ctx context.Context) error {
	cfg := config.Get()
	profile := cfg.Profile()
	log.Printf("robot: starting %s (%s)", profile.TypeString, profile.Type)

	hw, err := openHardware(cfg)
	if err != nil {
		return err
	}
	defer hw.close()

	robot, front := newCore(ctx, cfg, hw)

	inbound := make(chan Inbound, 16)
	var sinks telemetry.Fanout
	g, ctx := errgroup.WithContext(ctx)

	if cfg.SerialPort != "" {
		link, err := OpenSerialLink(cfg.SerialPort, cfg.SerialBaudRate)
		if err != nil {
			return err
		}
		sinks = append(sinks, link)
		g.Go(func() error { return link.Run(ctx, inbound) })
	}

	if hw.hall != nil {
		g.Go(func() error { return hw.hall.Run(ctx) })
	}

	if cfg.WebServerPort > 0 {
		web := NewWebLink(fmt.Sprintf(":%d", cfg.WebServerPort), robot)
		sinks = append(sinks, web)
		g.Go(func() error { return web.Run(ctx, inbound) })
	}

	if cfg.MQTTBroker != "" {
		link, err := ConnectMQTT(cfg, robot)
		if err != nil {
			log.Printf("robot: %v, continuing without MQTT", err)
		} else {
			sinks = append(sinks, link)
			g.Go(func() error { return link.Run(ctx, inbound) })
		}
	}

	if cfg.DisplayEnabled {
		d, err := OpenStatusDisplay(cfg.DisplayI2CBus, profile.TypeString)
		if err != nil {
			log.Printf("robot: %v, continuing without display", err)
		} else {
			g.Go(func() error { return d.Run(ctx, robot, config.Interval(cfg.DisplayUpdateInterval)) })
		}
	}

	front.SetSink(&telemetry.Throttled{Sink: sinks, Interval: config.Interval(cfg.TelemetryInterval)})
	g.Go(func() error { return robot.Run(ctx, inbound) })

	return g.Wait()
}

// newCore builds the control core on top of hw.
func newCore(ctx context.Context, cfg *config.Config, hw *hardware) (*Robot, *sensors.FrontEnd) {
	profile := cfg.Profile()
	front := sensors.NewFrontEnd(sensorParams(cfg), hw.counter, hw.gyro)
	act := motors.NewActuator(hw.driver, config.Interval(cfg.MotorInterval))
	front.SetPWMSource(act)
	if hw.mock != nil {
		hw.mock.SetPWMSource(act)
	}
	if hw.battery != nil {
		front.SetBatterySource(hw.battery)
	}
	front.SetBias(gyroBias(ctx, cfg, hw.gyro))

	var yaw control.YawSource = front
	if cfg.HeadingSource == config.HeadingSourceFused {
		yaw = control.YawFunc(front.FusedYawRate)
	}
	log.Printf("robot: heading integrates the %s yaw rate", cfg.HeadingSource)

	store := tuning.NewStore(cfg.TuningFile, profile.TypeString)
	tn, err := store.LoadOrDefault(control.DefaultTuning())
	if err != nil {
		log.Printf("robot: %v, using default tuning", err)
	}
	ctrl := control.New(controlParams(cfg), tn, yaw)
	return NewRobot(profile, front, ctrl, act, store, config.Interval(cfg.LoopInterval)), front
}
