// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text


// ./cmd/calibration/main.go
//
// Guided calibration for the LIS3MDL magnetometer in this project.
// Calibrates:
//  1. Noise floor: static capture (device still) to estimate per-axis noise standard deviation
//  2. Mag: guided 3D rotation to estimate hard-iron offset + per-axis soft-iron scale (min/max method)
//
// Output:
//
//	Writes a JSON file in the working directory including calibration date/time and quality/confidence.
//
// Run:
//
//	go run ./cmd/calibration
//
// Notes / assumptions:
//   - Reads raw samples via internal/sensors MagManager returning internal/mag.Sample.
//   - Stores calibration in RAW UNITS (counts). Applying this calibration later requires consistent units.
//   - Mag calibration here uses a practical min/max ellipsoid approximation (offset + diagonal scale). It is
//     robust and easy, though not as accurate as a full 3x3 ellipsoid fit.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/relabs-tech/field_computer/internal/config"
	"github.com/relabs-tech/field_computer/internal/mag"
	"github.com/relabs-tech/field_computer/internal/sensors"
)

const (
	sampleHz = 100 // target loop frequency (best-effort)

	// Noise floor
	noiseStaticDuration = 10 * time.Second

	// Mag rotation
	magDurationDefault = 60 * time.Second

	// Generic quality heuristics (in raw counts; tune as needed)
	stillStdGood = 3.0  // "good" standard deviation threshold for stillness
	stillStdBad  = 12.0 // "bad" threshold; above this confidence drops steeply

	// Confidence floor (we never want hard zero unless we error out)
	confFloor = 0.05
)

// ---------- Data model (JSON output) ----------

type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

type PhaseStats struct {
	Samples     int      `json:"samples"`
	DurationSec float64  `json:"duration_sec"`
	Mean        Vec3     `json:"mean"`
	MeanAbs     Vec3     `json:"mean_abs"`
	StdDev      Vec3     `json:"stddev"`
	Notes       []string `json:"notes,omitempty"`
}

type CalibrationResult struct {
	SchemaVersion int    `json:"schema_version"`
	CalibrationAt string `json:"calibration_at"` // RFC3339
	Sensor        string `json:"sensor"`

	// Noise floor (counts)
	NoiseStdDev Vec3 `json:"noise_stddev"`

	// Hard/soft iron approximation (counts)
	// CorrectedMagAxis = (raw - offset) / scale
	MagOffset Vec3 `json:"mag_offset"`
	MagScale  Vec3 `json:"mag_scale"`

	// Confidence components and overall
	Confidence struct {
		Noise   float64 `json:"noise"`
		Mag     float64 `json:"mag"`
		Overall float64 `json:"overall"`
	} `json:"confidence"`

	// Supporting stats
	NoiseStats PhaseStats `json:"noise_stats"`
	MagStats   PhaseStats `json:"mag_stats"`

	Notes []string `json:"notes,omitempty"`
}

// ---------- Main ----------

func main() {
	in := bufio.NewReader(os.Stdin)

	// Parse command-line flags
	configPath := flag.String("config", "field_config.txt", "Path to configuration file")
	flag.Parse()

	fmt.Println("=== Guided Magnetometer Calibration ===")
	fmt.Println("This workflow will prompt you in the console and store results in a JSON file.")
	fmt.Println()

	// Initialize configuration
	if err := config.InitGlobal(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Failed to load config from %s: %v\n", *configPath, err)
		os.Exit(1)
	}

	// Init magnetometer
	mgr := sensors.GetMagManager()
	if err := mgr.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: magnetometer init failed: %v\n", err)
		os.Exit(1)
	}
	defer mgr.Close()

	readFn := func() (mag.Sample, error) { return mgr.ReadSample() }

	res := CalibrationResult{
		SchemaVersion: 1,
		CalibrationAt: time.Now().Format(time.RFC3339),
		Sensor:        "lis3mdl",
	}

	// ---------------- Noise floor ----------------
	fmt.Println("Step 1/2 — Sensor noise floor")
	fmt.Println("Place the device on a stable surface away from moving metal and do not touch it.")
	waitEnter(in, "Press ENTER to start noise floor capture (10s)...")

	_, nStats, err := captureSamples(readFn, noiseStaticDuration, func(s mag.Sample) Vec3 {
		return Vec3{X: float64(s.Mx), Y: float64(s.My), Z: float64(s.Mz)}
	})
	if err != nil {
		fatal(err)
	}
	res.NoiseStats = nStats
	res.NoiseStdDev = nStats.StdDev

	noiseConf := stillnessConfidence(nStats.StdDev)
	res.Confidence.Noise = noiseConf

	fmt.Printf("Noise std dev (counts): X=%.2f Y=%.2f Z=%.2f | confidence=%.2f\n",
		res.NoiseStdDev.X, res.NoiseStdDev.Y, res.NoiseStdDev.Z, noiseConf)

	// ---------------- Mag calibration ----------------
	fmt.Println("\nStep 2/2 — Magnetometer calibration (offset + diagonal scale)")
	fmt.Println("Rotate the device through all orientations (3D).")
	fmt.Println("Move away from large metal objects and power cables if possible.")
	fmt.Println("You can stop early by pressing ENTER again.")
	fmt.Println()

	waitEnter(in, "Press ENTER to start magnetometer capture (default 60s, ENTER to stop earlier)...")

	magOffset, magScale, magConf, magStats, err := guidedMag(in, readFn, magDurationDefault)
	if err != nil {
		fatal(err)
	}
	res.MagOffset = magOffset
	res.MagScale = magScale
	res.Confidence.Mag = magConf
	res.MagStats = magStats

	fmt.Printf("Mag offset (counts): X=%.2f Y=%.2f Z=%.2f\n", magOffset.X, magOffset.Y, magOffset.Z)
	fmt.Printf("Mag scale (counts):  X=%.2f Y=%.2f Z=%.2f | confidence=%.2f\n",
		magScale.X, magScale.Y, magScale.Z, magConf)

	// ---------------- Overall confidence + store ----------------
	res.Confidence.Overall = overallConfidence(res.Confidence.Noise, res.Confidence.Mag)

	if err := writeResult(res); err != nil {
		fatal(err)
	}

	fmt.Println("\nCalibration complete.")
	fmt.Printf("Overall confidence: %.2f\n", res.Confidence.Overall)
}

// ---------- Guided mag calibration ----------

func guidedMag(in *bufio.Reader, readFn func() (mag.Sample, error), maxDur time.Duration) (offset Vec3, scale Vec3, confidence float64, stats PhaseStats, err error) {
	magSamples, st, err := captureUntilEnterOrTimeout(in, readFn, maxDur, func(s mag.Sample) Vec3 {
		return Vec3{X: float64(s.Mx), Y: float64(s.My), Z: float64(s.Mz)}
	})
	if err != nil {
		return Vec3{}, Vec3{}, 0, PhaseStats{}, err
	}
	stats = st

	// Min/max per axis
	minV := Vec3{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)}
	maxV := Vec3{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)}
	for _, s := range magSamples {
		minV.X = math.Min(minV.X, s.X)
		minV.Y = math.Min(minV.Y, s.Y)
		minV.Z = math.Min(minV.Z, s.Z)
		maxV.X = math.Max(maxV.X, s.X)
		maxV.Y = math.Max(maxV.Y, s.Y)
		maxV.Z = math.Max(maxV.Z, s.Z)
	}

	offset = Vec3{
		X: (maxV.X + minV.X) / 2,
		Y: (maxV.Y + minV.Y) / 2,
		Z: (maxV.Z + minV.Z) / 2,
	}
	halfRange := Vec3{
		X: (maxV.X - minV.X) / 2,
		Y: (maxV.Y - minV.Y) / 2,
		Z: (maxV.Z - minV.Z) / 2,
	}

	// Guard
	if halfRange.X < 1 || halfRange.Y < 1 || halfRange.Z < 1 {
		stats.Notes = append(stats.Notes, "insufficient_mag_excitation: rotate more in 3D / move away from metal")
		return offset, Vec3{X: 1, Y: 1, Z: 1}, confFloor, stats, nil
	}

	// Store scale in "counts" half-range as the divisor: corrected = (raw-offset)/halfRange
	scale = halfRange

	// Confidence based on coverage and sphericity after correction
	coverage := magCoverageConfidence(halfRange)
	sphericity := magSphericityConfidence(magSamples, offset, scale)

	confidence = clamp01(0.55*coverage + 0.45*sphericity)
	if confidence < confFloor {
		confidence = confFloor
	}
	return offset, scale, confidence, stats, nil
}

func magCoverageConfidence(halfRange Vec3) float64 {
	// Encourage balanced excitation across axes
	m := (halfRange.X + halfRange.Y + halfRange.Z) / 3
	if m <= 0 {
		return confFloor
	}
	cv := std3(halfRange.X, halfRange.Y, halfRange.Z) / m
	return clamp01(1.0 - (cv / 0.7))
}

func magSphericityConfidence(samples []Vec3, offset Vec3, halfRange Vec3) float64 {
	// Apply simple correction: (raw-offset)/halfRange (dimensionless) then check norm stability.
	// If rotation covers all orientations, norms should be near-constant.
	n := len(samples)
	if n < 50 {
		return confFloor
	}
	norms := make([]float64, 0, n)
	for _, s := range samples {
		x := (s.X - offset.X) / safeDiv(halfRange.X)
		y := (s.Y - offset.Y) / safeDiv(halfRange.Y)
		z := (s.Z - offset.Z) / safeDiv(halfRange.Z)
		norms = append(norms, math.Sqrt(x*x+y*y+z*z))
	}
	mean, sd := meanStd(norms)
	if mean <= 0 {
		return confFloor
	}
	cv := sd / mean
	// map: cv 0.05 -> ~0.9, cv 0.15 -> ~0.7, cv 0.35 -> ~0.3
	return clamp01(1.0 - (cv / 0.5))
}

// ---------- Sampling helpers ----------

func captureSamples(readFn func() (mag.Sample, error), dur time.Duration, f func(mag.Sample) Vec3) ([]Vec3, PhaseStats, error) {
	start := time.Now()
	deadline := start.Add(dur)

	targetPeriod := time.Second / time.Duration(sampleHz)

	var values []Vec3
	for time.Now().Before(deadline) {
		s, err := readFn()
		if err != nil {
			return nil, PhaseStats{}, err
		}
		values = append(values, f(s))
		time.Sleep(targetPeriod)
	}
	stats := computeStats(values, dur)
	return values, stats, nil
}

func captureUntilEnterOrTimeout(in *bufio.Reader, readFn func() (mag.Sample, error), maxDur time.Duration, f func(mag.Sample) Vec3) ([]Vec3, PhaseStats, error) {
	start := time.Now()
	deadline := start.Add(maxDur)

	// Non-blocking ENTER detector: we start a goroutine waiting for newline
	stopCh := make(chan struct{}, 1)
	go func() {
		_, _ = in.ReadString('\n')
		stopCh <- struct{}{}
	}()

	targetPeriod := time.Second / time.Duration(sampleHz)

	var values []Vec3
	for {
		select {
		case <-stopCh:
			dur := time.Since(start)
			stats := computeStats(values, dur)
			return values, stats, nil
		default:
			if time.Now().After(deadline) {
				dur := time.Since(start)
				stats := computeStats(values, dur)
				stats.Notes = append(stats.Notes, "stopped_by_timeout")
				return values, stats, nil
			}
			s, err := readFn()
			if err != nil {
				return nil, PhaseStats{}, err
			}
			values = append(values, f(s))
			time.Sleep(targetPeriod)
		}
	}
}

func computeStats(values []Vec3, dur time.Duration) PhaseStats {
	n := len(values)
	if n == 0 {
		return PhaseStats{Samples: 0, DurationSec: dur.Seconds()}
	}
	var sx, sy, sz float64
	var sax, say, saz float64
	for _, v := range values {
		sx += v.X
		sy += v.Y
		sz += v.Z
		sax += math.Abs(v.X)
		say += math.Abs(v.Y)
		saz += math.Abs(v.Z)
	}
	mean := Vec3{X: sx / float64(n), Y: sy / float64(n), Z: sz / float64(n)}
	meanAbs := Vec3{X: sax / float64(n), Y: say / float64(n), Z: saz / float64(n)}

	var vx, vy, vz float64
	for _, v := range values {
		dx := v.X - mean.X
		dy := v.Y - mean.Y
		dz := v.Z - mean.Z
		vx += dx * dx
		vy += dy * dy
		vz += dz * dz
	}
	std := Vec3{
		X: math.Sqrt(vx / float64(n)),
		Y: math.Sqrt(vy / float64(n)),
		Z: math.Sqrt(vz / float64(n)),
	}

	return PhaseStats{
		Samples:     n,
		DurationSec: dur.Seconds(),
		Mean:        mean,
		MeanAbs:     meanAbs,
		StdDev:      std,
	}
}

// ---------- Confidence heuristics ----------

func stillnessConfidence(std Vec3) float64 {
	// Use average std dev across axes.
	s := (std.X + std.Y + std.Z) / 3
	switch {
	case s <= stillStdGood:
		return 1.0
	case s >= stillStdBad:
		return confFloor
	default:
		// Linear interpolation between good and bad
		t := (s - stillStdGood) / (stillStdBad - stillStdGood)
		return clamp01(1.0 - 0.95*t)
	}
}

func overallConfidence(noise, mag float64) float64 {
	// Weighted; the rotation phase dominates, the noise floor sanity-checks the setup.
	wN, wM := 0.30, 0.70
	return clamp01(wN*noise + wM*mag)
}

// ---------- Output ----------

func writeResult(res CalibrationResult) error {
	ts := time.Now().Format("2006-01-02T15-04-05Z07-00")
	name := fmt.Sprintf("%s_%s_field_calibration.json", res.Sensor, ts)

	b, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(name, b, 0o644); err != nil {
		return err
	}
	fmt.Printf("\nWrote: %s\n", name)
	return nil
}

// ---------- Console helpers ----------

func waitEnter(in *bufio.Reader, prompt string) {
	fmt.Print(prompt)
	_, _ = in.ReadString('\n')
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
	os.Exit(1)
}

// ---------- Small math helpers ----------

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

func safeDiv(x float64) float64 {
	if math.Abs(x) < 1e-9 {
		if x >= 0 {
			return 1e-9
		}
		return -1e-9
	}
	return x
}

func meanStd(xs []float64) (mean float64, sd float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	for _, v := range xs {
		mean += v
	}
	mean /= float64(len(xs))
	var s float64
	for _, v := range xs {
		d := v - mean
		s += d * d
	}
	sd = math.Sqrt(s / float64(len(xs)))
	return mean, sd
}

func std3(a, b, c float64) float64 {
	m := (a + b + c) / 3
	return math.Sqrt(((a-m)*(a-m) + (b-m)*(b-m) + (c-m)*(c-m)) / 3)
}
