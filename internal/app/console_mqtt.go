package app

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/field_computer/internal/config"
	"github.com/relabs-tech/field_computer/internal/gps"
	"github.com/relabs-tech/field_computer/internal/mag"
)

func RunConsoleMQTT() error {
	if err := config.InitGlobal("./field_config.txt"); err != nil {
		return err
	}
	cfg := config.Get()

	clientID := cfg.MQTTClientIDConsole
	if clientID == "" {
		clientID = "field-console-subscriber"
	}
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(clientID)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Printf("console: connected to MQTT broker at %s", cfg.MQTTBroker)

	magTopic := cfg.TopicMag
	if magTopic == "" {
		magTopic = "field/mag"
	}
	headingTopic := cfg.TopicHeading
	if headingTopic == "" {
		headingTopic = "field/heading"
	}
	courseTopic := cfg.TopicGPSCourse
	if courseTopic == "" {
		courseTopic = "field/gps_course"
	}

	// Subscribe to magnetometer samples
	magToken := client.Subscribe(magTopic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var s mag.Sample
		if err := json.Unmarshal(msg.Payload(), &s); err != nil {
			log.Printf("console: mag unmarshal error: %v", err)
			return
		}

		fmt.Printf(
			"[MAG ]  mx=%6d my=%6d mz=%6d  x=%7.2fµT y=%7.2fµT z=%7.2fµT  |B|=%6.2fµT\n",
			s.Mx, s.My, s.Mz, s.XuT, s.YuT, s.ZuT, s.Norm,
		)
	})
	magToken.Wait()
	if magToken.Error() != nil {
		return magToken.Error()
	}
	log.Printf("console: subscribed to %s", magTopic)

	// Subscribe to headings
	headingToken := client.Subscribe(headingTopic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var h mag.Heading
		if err := json.Unmarshal(msg.Payload(), &h); err != nil {
			log.Printf("console: heading unmarshal error: %v", err)
			return
		}

		fmt.Printf(
			"[HDG ]  MAG=%6.2f°  TRUE=%6.2f°\n",
			h.MagneticDeg, h.TrueDeg,
		)
	})
	headingToken.Wait()
	if headingToken.Error() != nil {
		return headingToken.Error()
	}
	log.Printf("console: subscribed to %s", headingTopic)

	// Subscribe to GPS course
	gpsToken := client.Subscribe(courseTopic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var f gps.Fix
		if err := json.Unmarshal(msg.Payload(), &f); err != nil {
			log.Printf("console: gps unmarshal error: %v", err)
			return
		}

		fmt.Printf(
			"[GPS ]  time=%s date=%s lat=%.6f lon=%.6f speed=%.1fkn course=%.1f° var=%.1f° validity=%s\n",
			f.Time, f.Date, f.Latitude, f.Longitude, f.SpeedKnots, f.CourseDeg, f.VariationDeg, f.Validity,
		)
	})
	gpsToken.Wait()
	if gpsToken.Error() != nil {
		return gpsToken.Error()
	}
	log.Printf("console: subscribed to %s", courseTopic)

	// Wait for Ctrl+C
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("console: shutting down")
	client.Disconnect(250)
	return nil
}
