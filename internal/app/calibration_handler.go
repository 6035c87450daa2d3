// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/relabs-tech/field_computer/internal/sensors"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// CalibrationSession holds the state of an active calibration
type CalibrationSession struct {
	Conn         *websocket.Conn
	mu           sync.Mutex
	currentPhase string
	results      CalibrationResult
}

// CalibrationResult is what gets saved to the calibration file
type CalibrationResult struct {
	Version   int       `json:"version"`
	Sensor    string    `json:"sensor"`
	Timestamp time.Time `json:"timestamp"`

	// Static noise characterization (raw counts)
	NoiseStdDevX    float64 `json:"noise_stddev_x"`
	NoiseStdDevY    float64 `json:"noise_stddev_y"`
	NoiseStdDevZ    float64 `json:"noise_stddev_z"`
	NoiseConfidence float64 `json:"noise_confidence"`

	// Hard-iron offsets (raw counts)
	OffsetX float64 `json:"offset_x"`
	OffsetY float64 `json:"offset_y"`
	OffsetZ float64 `json:"offset_z"`

	// Soft-iron scale factors (diagonal approximation)
	ScaleX float64 `json:"scale_x"`
	ScaleY float64 `json:"scale_y"`
	ScaleZ float64 `json:"scale_z"`

	// Field range covered per axis while rotating
	RangeX            float64 `json:"range_x"`
	RangeY            float64 `json:"range_y"`
	RangeZ            float64 `json:"range_z"`
	SphereConfidence  float64 `json:"sphere_confidence"`
	SphereSampleCount int     `json:"sphere_sample_count"`

	TotalSamples int `json:"total_samples"`
}

// WebSocket message types
type WSMessage struct {
	Action string `json:"action"` // init, next, cancel
}

type WSResponse struct {
	Type     string                 `json:"type"` // phase, step, progress, stats, complete, error
	Phase    string                 `json:"phase,omitempty"`
	Step     string                 `json:"step,omitempty"`
	Progress float64                `json:"progress,omitempty"`
	Stats    map[string]interface{} `json:"stats,omitempty"`
	Results  interface{}            `json:"results,omitempty"`
	Message  string                 `json:"message,omitempty"`
}

// HandleCalibrationWS handles the WebSocket connection for calibration
func HandleCalibrationWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("calibration: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	session := &CalibrationSession{
		Conn: conn,
		results: CalibrationResult{
			Version:   1,
			Sensor:    "lis3mdl",
			Timestamp: time.Now(),
			ScaleX:    1.0,
			ScaleY:    1.0,
			ScaleZ:    1.0,
		},
	}

	// Main message loop
	for {
		var msg WSMessage
		err := conn.ReadJSON(&msg)
		if err != nil {
			log.Printf("calibration: websocket read error: %v", err)
			break
		}

		switch msg.Action {
		case "init":
			if !sensors.GetMagManager().Ready() {
				session.sendError("magnetometer not initialized")
				continue
			}
			log.Printf("calibration: session started")

		case "next":
			session.mu.Lock()
			err := session.runNextStep()
			session.mu.Unlock()
			if err != nil {
				session.sendError(err.Error())
			}

		case "cancel":
			log.Printf("calibration: cancelled by user")
			return
		}
	}
}

func (s *CalibrationSession) runNextStep() error {
	// State machine for calibration phases
	switch s.currentPhase {
	case "":
		// Start with the static noise measurement
		s.currentPhase = "noise"
		return s.runNoiseStep()

	case "noise":
		// Move to the rotation phase
		s.currentPhase = "sphere"
		return s.runSphereStep()

	case "sphere":
		// Complete calibration
		return s.complete()
	}

	return nil
}

// runNoiseStep samples the field while the device sits still and
// characterizes the per-axis noise.
func (s *CalibrationSession) runNoiseStep() error {
	s.sendPhase("noise")
	s.sendStep("noise-static", "noise")

	mgr := sensors.GetMagManager()

	s.sendProgress(5)
	time.Sleep(1 * time.Second) // Give user time to place device

	samples := make([][3]float64, 0, 100)
	for i := 0; i < 100; i++ {
		sample, err := mgr.ReadSample()
		if err != nil {
			return err
		}
		samples = append(samples, [3]float64{
			float64(sample.Mx),
			float64(sample.My),
			float64(sample.Mz),
		})
		s.sendProgress(5 + float64(i)*0.9)
		time.Sleep(100 * time.Millisecond)
	}

	s.results.NoiseStdDevX = stddev(samples, 0)
	s.results.NoiseStdDevY = stddev(samples, 1)
	s.results.NoiseStdDevZ = stddev(samples, 2)
	s.results.TotalSamples += len(samples)

	// Calculate confidence
	avgStdDev := (s.results.NoiseStdDevX + s.results.NoiseStdDevY + s.results.NoiseStdDevZ) / 3.0
	if avgStdDev > 0 {
		s.results.NoiseConfidence = 100.0 / (1.0 + avgStdDev)
	}

	s.sendStats()
	s.sendActionReady()
	return nil
}

// runSphereStep collects samples while the user rotates the device through
// all orientations and derives hard-iron offsets and soft-iron scales.
func (s *CalibrationSession) runSphereStep() error {
	s.sendPhase("sphere")
	s.sendStep("sphere-rotate", "sphere")
	s.sendProgress(0)

	mgr := sensors.GetMagManager()

	time.Sleep(2 * time.Second) // Give user time to start moving

	samples := make([][3]float64, 0, 200)
	minX, minY, minZ := math.MaxFloat64, math.MaxFloat64, math.MaxFloat64
	maxX, maxY, maxZ := -math.MaxFloat64, -math.MaxFloat64, -math.MaxFloat64

	for i := 0; i < 200; i++ {
		sample, err := mgr.ReadSample()
		if err != nil {
			return err
		}

		mx, my, mz := float64(sample.Mx), float64(sample.My), float64(sample.Mz)
		samples = append(samples, [3]float64{mx, my, mz})

		// Track min/max for each axis
		if mx < minX {
			minX = mx
		}
		if mx > maxX {
			maxX = mx
		}
		if my < minY {
			minY = my
		}
		if my > maxY {
			maxY = my
		}
		if mz < minZ {
			minZ = mz
		}
		if mz > maxZ {
			maxZ = mz
		}

		s.sendProgress(float64(i) * 0.5)
		time.Sleep(100 * time.Millisecond)
	}

	// Calculate hard-iron offsets (center of ellipsoid)
	s.results.OffsetX = (maxX + minX) / 2.0
	s.results.OffsetY = (maxY + minY) / 2.0
	s.results.OffsetZ = (maxZ + minZ) / 2.0

	// Calculate soft-iron scale factors (diagonal approximation)
	rangeX := maxX - minX
	rangeY := maxY - minY
	rangeZ := maxZ - minZ
	avgRange := (rangeX + rangeY + rangeZ) / 3.0

	s.results.ScaleX = avgRange / rangeX
	s.results.ScaleY = avgRange / rangeY
	s.results.ScaleZ = avgRange / rangeZ

	s.results.RangeX = rangeX
	s.results.RangeY = rangeY
	s.results.RangeZ = rangeZ
	s.results.SphereSampleCount = len(samples)
	s.results.TotalSamples += len(samples)

	// Calculate confidence based on range coverage
	minRange := math.Min(rangeX, math.Min(rangeY, rangeZ))
	maxRange := math.Max(rangeX, math.Max(rangeY, rangeZ))
	rangeRatio := minRange / maxRange
	s.results.SphereConfidence = rangeRatio * 100.0

	s.sendProgress(100)
	s.sendStats()

	// Don't send action ready - auto-proceed to complete
	time.Sleep(1 * time.Second)
	return s.complete()
}

func (s *CalibrationSession) complete() error {
	// Save results to file
	filename := fmt.Sprintf("mag_%d_field_calibration.json", time.Now().Unix())

	// Use current directory
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current directory: %w", err)
	}

	filepath := filepath.Join(cwd, filename)

	data, err := json.MarshalIndent(s.results, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal calibration results: %w", err)
	}

	if err := os.WriteFile(filepath, data, 0644); err != nil {
		return fmt.Errorf("failed to write calibration file: %w", err)
	}

	log.Printf("calibration: saved results to %s", filepath)

	// Send completion message
	s.Conn.WriteJSON(WSResponse{
		Type:    "complete",
		Results: map[string]interface{}{"filename": filename},
	})

	return nil
}

func (s *CalibrationSession) sendPhase(phase string) {
	s.Conn.WriteJSON(WSResponse{
		Type:  "phase",
		Phase: phase,
	})
}

func (s *CalibrationSession) sendStep(step, phase string) {
	s.Conn.WriteJSON(WSResponse{
		Type:  "step",
		Step:  step,
		Phase: phase,
	})
}

func (s *CalibrationSession) sendProgress(progress float64) {
	s.Conn.WriteJSON(WSResponse{
		Type:     "progress",
		Progress: progress,
	})
}

func (s *CalibrationSession) sendStats() {
	stats := map[string]interface{}{
		"noise":   s.results.NoiseConfidence,
		"sphere":  s.results.SphereConfidence,
		"samples": s.results.TotalSamples,
	}
	s.Conn.WriteJSON(WSResponse{
		Type:  "stats",
		Stats: stats,
	})
}

func (s *CalibrationSession) sendActionReady() {
	s.Conn.WriteJSON(WSResponse{
		Type:    "action",
		Message: "ready",
	})
}

func (s *CalibrationSession) sendError(message string) {
	resp := WSResponse{
		Type:    "error",
		Message: message,
	}
	s.Conn.WriteJSON(resp)
}

// Helper functions for statistics
func mean(data [][3]float64, axis int) float64 {
	sum := 0.0
	for _, v := range data {
		sum += v[axis]
	}
	return sum / float64(len(data))
}

func stddev(data [][3]float64, axis int) float64 {
	if len(data) == 0 {
		return 0
	}
	m := mean(data, axis)
	variance := 0.0
	for _, v := range data {
		diff := v[axis] - m
		variance += diff * diff
	}
	variance /= float64(len(data))
	return math.Sqrt(variance)
}
