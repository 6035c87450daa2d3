package mag

import "math"

// Heading is the compass heading derived from the measured field.
type Heading struct {
	MagneticDeg float64 `json:"magnetic_deg"`
	TrueDeg     float64 `json:"true_deg"`
	Source      string  `json:"source,omitempty"`
	Time        string  `json:"time,omitempty"`
}

// HeadingFromField computes the magnetic heading in degrees from the
// horizontal field components, assuming the sensor is level.
//
//	heading = atan2(y, x)
//
// normalized to [0, 360).
func HeadingFromField(x, y float64) float64 {
	deg := math.Atan2(y, x) * 180.0 / math.Pi
	if deg < 0 {
		deg += 360
	}
	return deg
}

// TrueHeading applies the local magnetic declination to a magnetic heading
// and normalizes the result to [0, 360).
func TrueHeading(magneticDeg, declinationDeg float64) float64 {
	deg := math.Mod(magneticDeg+declinationDeg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}
