package main

import (
	"encoding/json"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/relabs-tech/field_computer/internal/mag"
)

func main() {
	log.Println("starting field-computer MQTT producer (mock)")

	// 1) Connect to MQTT broker on the Pi
	opts := mqtt.NewClientOptions().
		AddBroker("tcp://localhost:1883").
		SetClientID("field-producer-mock")

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.Fatalf("MQTT connect error: %v", token.Error())
	}
	defer client.Disconnect(250)

	src := mag.NewMockSource()
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for t := range ticker.C {
		sample, err := src.Next()
		if err != nil {
			log.Printf("error from mock source: %v", err)
			continue
		}
		sample.Source = "mock"
		sample.Time = t.UTC().Format(time.RFC3339)

		payload, err := json.Marshal(sample)
		if err != nil {
			log.Printf("json marshal error: %v", err)
			continue
		}

		token := client.Publish("field/mag", 0, true, payload)
		token.Wait()

		hdg := mag.Heading{
			MagneticDeg: mag.HeadingFromField(sample.XuT, sample.YuT),
			Source:      "mock",
			Time:        sample.Time,
		}
		hdg.TrueDeg = hdg.MagneticDeg

		hdgPayload, err := json.Marshal(hdg)
		if err != nil {
			log.Printf("json marshal error: %v", err)
			continue
		}

		token = client.Publish("field/heading", 0, true, hdgPayload)
		token.Wait()

		log.Printf("%s published field: %+v", t.Format(time.RFC3339), sample)
	}
}
