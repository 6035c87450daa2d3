package main

import (
	"log"

	"github.com/relabs-tech/field_computer/internal/app"
)

func main() {
	log.Println("starting field-computer GPS course producer (NMEA → MQTT)")

	if err := app.RunCourseProducer(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
