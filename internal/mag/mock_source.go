// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package mag

import (
	"math"
	"time"
)

type mockSource struct {
	start time.Time
}

// NewMockSource creates a mock field source that sweeps an Earth-strength
// field through a full rotation once a minute.
func NewMockSource() SampleSource {
	return &mockSource{start: time.Now()}
}

func (m *mockSource) Next() (Sample, error) {
	elapsed := time.Since(m.start).Seconds()

	// 30 µT horizontal component rotating at 6°/s plus a constant 40 µT
	// vertical component, 50 µT total.
	angle := math.Mod(elapsed*6, 360) * math.Pi / 180.0
	s := Sample{
		XuT: 30 * math.Cos(angle),
		YuT: 30 * math.Sin(angle),
		ZuT: 40,
	}
	// Raw counts at the ±4 gauss scale.
	s.Mx = int16(s.XuT / 100 * 6842)
	s.My = int16(s.YuT / 100 * 6842)
	s.Mz = int16(s.ZuT / 100 * 6842)
	s.Norm = s.FieldNorm()
	return s, nil
}
