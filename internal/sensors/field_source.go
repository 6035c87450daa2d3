// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"os"

	"github.com/relabs-tech/field_computer/internal/config"
	"github.com/relabs-tech/field_computer/internal/lis3mdl"
	"github.com/relabs-tech/field_computer/internal/mag"
)

// FieldCalibration is the subset of the guided calibration output applied at
// runtime. Offsets and scales are in raw counts, per-axis:
// corrected = (raw - offset) * avgScale / scale, which removes the hard-iron
// offset and equalizes the soft-iron scale while preserving the average
// field magnitude.
type FieldCalibration struct {
	Sensor    string `json:"sensor"`
	MagOffset struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
		Z float64 `json:"z"`
	} `json:"mag_offset"`
	MagScale struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
		Z float64 `json:"z"`
	} `json:"mag_scale"`
}

// LoadFieldCalibration reads a calibration file written by the guided
// calibration tool.
func LoadFieldCalibration(path string) (*FieldCalibration, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading calibration file: %w", err)
	}
	var cal FieldCalibration
	if err := json.Unmarshal(b, &cal); err != nil {
		return nil, fmt.Errorf("parsing calibration file %s: %w", path, err)
	}
	if cal.MagScale.X <= 0 || cal.MagScale.Y <= 0 || cal.MagScale.Z <= 0 {
		return nil, fmt.Errorf("calibration file %s: scale components must be positive", path)
	}
	return &cal, nil
}

// FieldSource adapts the magnetometer manager to mag.SampleSource, applying
// hard-iron and soft-iron corrections from a stored calibration when one is
// configured.
type FieldSource struct {
	mgr *MagManager
	cal *FieldCalibration

	// lsbPerGauss converts corrected counts back to µT for the configured
	// range.
	lsbPerGauss float64
}

// NewFieldSource returns a source reading through the magnetometer manager,
// which must be initialized first. calPath selects the calibration file to
// apply; empty reads uncorrected.
func NewFieldSource(calPath string) (*FieldSource, error) {
	mgr := GetMagManager()
	if !mgr.Ready() {
		return nil, fmt.Errorf("mag: manager not initialized")
	}

	s := &FieldSource{
		mgr:         mgr,
		lsbPerGauss: lis3mdl.Range(config.Get().MagRange).LSBPerGauss(),
	}
	if calPath != "" {
		cal, err := LoadFieldCalibration(calPath)
		if err != nil {
			return nil, err
		}
		s.cal = cal
		log.Printf("mag: calibration loaded from %s: offset=(%.1f, %.1f, %.1f) scale=(%.1f, %.1f, %.1f)",
			calPath, cal.MagOffset.X, cal.MagOffset.Y, cal.MagOffset.Z,
			cal.MagScale.X, cal.MagScale.Y, cal.MagScale.Z)
	}
	return s, nil
}

// Next reads one sample and applies the loaded corrections, if any.
func (s *FieldSource) Next() (mag.Sample, error) {
	sample, err := s.mgr.ReadSample()
	if err != nil || s.cal == nil {
		return sample, err
	}
	return s.cal.apply(sample, s.lsbPerGauss), nil
}

// apply corrects one sample's counts and rebuilds its µT values.
func (c *FieldCalibration) apply(s mag.Sample, lsbPerGauss float64) mag.Sample {
	avg := (c.MagScale.X + c.MagScale.Y + c.MagScale.Z) / 3

	x := (float64(s.Mx) - c.MagOffset.X) * avg / c.MagScale.X
	y := (float64(s.My) - c.MagOffset.Y) * avg / c.MagScale.Y
	z := (float64(s.Mz) - c.MagOffset.Z) * avg / c.MagScale.Z

	s.Mx = int16(math.Round(x))
	s.My = int16(math.Round(y))
	s.Mz = int16(math.Round(z))
	s.XuT = x / lsbPerGauss * 100
	s.YuT = y / lsbPerGauss * 100
	s.ZuT = z / lsbPerGauss * 100
	return s
}
