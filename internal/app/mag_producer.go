// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/relabs-tech/field_computer/internal/config"
	"github.com/relabs-tech/field_computer/internal/mag"
	"github.com/relabs-tech/field_computer/internal/sensors"
)

// RunMagProducer samples the magnetometer and publishes the field and the
// derived heading over MQTT.
func RunMagProducer() {
	// Load config.
	if err := config.InitGlobal("./field_config.txt"); err != nil {
		fmt.Printf("mag: config init failed: %v\n", err)
		return
	}
	cfg := config.Get()

	// Bring the sensor up on the configured bus.
	mgr := sensors.GetMagManager()
	if err := mgr.Init(); err != nil {
		fmt.Printf("mag: sensor init failed: %v\n", err)
		return
	}
	defer mgr.Close()

	info, err := mgr.Info()
	if err != nil {
		fmt.Printf("mag: info read failed: %v\n", err)
		return
	}
	fmt.Printf("[MAG] %s ±%.0f µT, %.3f µT resolution\n", info.Name, info.MaxValue, info.Resolution)

	// Samples flow through the field source so a stored calibration, when
	// configured, is applied before publishing.
	src, err := sensors.NewFieldSource(cfg.MagCalibrationFile)
	if err != nil {
		fmt.Printf("mag: field source init failed: %v\n", err)
		return
	}

	// MQTT client.
	clientID := cfg.MQTTClientIDMag
	if clientID == "" {
		clientID = "field-mag-producer"
	}
	opts := mqtt.NewClientOptions().AddBroker(cfg.MQTTBroker).SetClientID(clientID)
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		fmt.Printf("mag: mqtt connect error: %v\n", token.Error())
		return
	}
	defer client.Disconnect(250)

	magTopic := cfg.TopicMag
	if magTopic == "" {
		magTopic = "field/mag"
	}
	headingTopic := cfg.TopicHeading
	if headingTopic == "" {
		headingTopic = "field/heading"
	}

	ms := cfg.MagSampleInterval
	if ms <= 0 {
		ms = 100
	}
	interval := time.Duration(ms) * time.Millisecond

	fmt.Println("mag: producer started")
	for {
		ready, err := mgr.DataReady()
		if err != nil {
			fmt.Printf("mag: status read error: %v\n", err)
			time.Sleep(interval)
			continue
		}
		if !ready {
			time.Sleep(time.Millisecond)
			continue
		}

		sample, err := src.Next()
		if err != nil {
			fmt.Printf("mag: read error: %v\n", err)
			time.Sleep(interval)
			continue
		}
		sample.Source = "lis3mdl"
		sample.Norm = sample.FieldNorm()
		sample.Time = time.Now().UTC().Format(time.RFC3339)

		heading := mag.Heading{
			MagneticDeg: mag.HeadingFromField(sample.XuT, sample.YuT),
			Source:      sample.Source,
			Time:        sample.Time,
		}
		heading.TrueDeg = mag.TrueHeading(heading.MagneticDeg, cfg.MagDeclinationDeg)

		if b, err := json.Marshal(sample); err == nil {
			t := client.Publish(magTopic, 0, false, b)
			t.Wait()
		}
		if b, err := json.Marshal(heading); err == nil {
			t := client.Publish(headingTopic, 0, false, b)
			t.Wait()
		}

		time.Sleep(interval)
	}
}
