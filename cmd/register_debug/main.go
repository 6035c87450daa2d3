// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/relabs-tech/field_computer/internal/app"
	"github.com/relabs-tech/field_computer/internal/config"
	"github.com/relabs-tech/field_computer/internal/sensors"
)

func main() {
	log.Println("starting LIS3MDL register debug tool (standalone)")

	if err := config.InitGlobal("field_config.txt"); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	log.Println("Initializing magnetometer manager...")
	magManager := sensors.GetMagManager()
	if err := magManager.Init(); err != nil {
		log.Printf("Warning: magnetometer initialization had issues: %v", err)
		log.Println("Continuing anyway - the sensor can be bound later with an init command")
	}

	if magManager.Ready() {
		log.Println("Magnetometer available")
	} else {
		log.Println("Warning: magnetometer not available")
	}

	http.HandleFunc("/ws", app.HandleRegisterDebugWS)

	// WebSocket endpoint for guided field calibration
	http.HandleFunc("/ws/calibration", app.HandleCalibrationWS)

	// API endpoint for live field data
	http.HandleFunc("/api/field", app.HandleFieldData)

	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "web/register_debug.html")
	})

	port := config.Get().RegisterDebugPort
	if port == 0 {
		port = 8081
	}
	addr := fmt.Sprintf(":%d", port)
	log.Printf("Register debug tool listening on %s", addr)
	log.Printf("Open http://localhost%s in your browser", addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
