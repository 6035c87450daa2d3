package app

import (
	"bufio"
	"encoding/json"
	"log"
	"strings"

	nmea "github.com/adrianmo/go-nmea"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	serial "github.com/jacobsa/go-serial/serial"

	"github.com/relabs-tech/field_computer/internal/config"
	"github.com/relabs-tech/field_computer/internal/gps"
)

// RunCourseProducer opens the GPS serial port, parses NMEA sentences, and
// publishes course-over-ground fixes as JSON to MQTT. The fixes carry the
// receiver's magnetic variation so consumers can cross-check the
// magnetometer heading.
func RunCourseProducer() error {
	if err := config.InitGlobal("./field_config.txt"); err != nil {
		return err
	}
	cfg := config.Get()

	// ---- 1) Connect to MQTT broker ----
	clientID := cfg.MQTTClientIDGPS
	if clientID == "" {
		clientID = "field-gps-producer"
	}
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(clientID)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Printf("GPS producer connected to MQTT broker at %s", cfg.MQTTBroker)

	topic := cfg.TopicGPSCourse
	if topic == "" {
		topic = "field/gps_course"
	}

	// ---- 2) Open GPS serial port ----
	serialOpts := serial.OpenOptions{
		PortName:              cfg.GPSSerialPort,
		BaudRate:              uint(cfg.GPSBaudRate),
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}

	port, err := serial.Open(serialOpts)
	if err != nil {
		return err
	}
	defer port.Close()
	log.Printf("GPS serial port opened on %s at %d baud", serialOpts.PortName, serialOpts.BaudRate)

	reader := bufio.NewReader(port)

	// We accumulate data mainly from RMC; extend to GGA/GSA/etc. if needed.
	var current gps.Fix

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			log.Printf("GPS read error: %v", err)
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		// NMEA sentences usually start with '$'
		if !strings.HasPrefix(line, "$") {
			continue
		}

		sentence, err := nmea.Parse(line)
		if err != nil {
			// noisy GPS or partial sentences; log at debug if too chatty
			continue
		}

		switch sentence.DataType() {
		case nmea.TypeRMC:
			m := sentence.(nmea.RMC)

			// Fill Fix from RMC data
			current.Time = m.Time.String()
			current.Date = m.Date.String()
			current.Latitude = m.Latitude   // decimal degrees
			current.Longitude = m.Longitude // decimal degrees
			current.SpeedKnots = m.Speed    // already in knots
			current.CourseDeg = m.Course    // in degrees
			current.VariationDeg = m.Variation
			current.Validity = string(m.Validity)

			// Publish each RMC as one course fix
			payload, err := json.Marshal(current)
			if err != nil {
				log.Printf("GPS JSON marshal error: %v", err)
				continue
			}

			token := client.Publish(topic, 0, true, payload)
			token.Wait()
			if token.Error() != nil {
				log.Printf("GPS publish error: %v", token.Error())
				continue
			}

			log.Printf("published course fix: %+v", current)

		default:
			// ignore other sentence types (GGA, GSA, etc.)
		}
	}
}
