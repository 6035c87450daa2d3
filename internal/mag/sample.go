package mag

import "math"

// Sample is one magnetometer reading carrying both the raw sensor counts
// and the field converted to microtesla.
type Sample struct {
	Source string  `json:"source,omitempty"`
	Mx     int16   `json:"mx"`
	My     int16   `json:"my"`
	Mz     int16   `json:"mz"`
	XuT    float64 `json:"x_ut"`
	YuT    float64 `json:"y_ut"`
	ZuT    float64 `json:"z_ut"`
	Norm   float64 `json:"norm_ut"`
	Time   string  `json:"time,omitempty"`
}

// SampleSource is anything that can provide samples over time:
// the real sensor, a mock, a replay source from file, etc.
type SampleSource interface {
	Next() (Sample, error)
}

// FieldNorm returns the magnitude of the converted field in microtesla.
func (s Sample) FieldNorm() float64 {
	return math.Sqrt(s.XuT*s.XuT + s.YuT*s.YuT + s.ZuT*s.ZuT)
}
