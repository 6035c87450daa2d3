package sensors

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/relabs-tech/field_computer/internal/mag"
)

func writeCalibration(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cal.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing calibration file: %v", err)
	}
	return path
}

func TestLoadFieldCalibration(t *testing.T) {
	path := writeCalibration(t, `{
		"schema_version": 1,
		"sensor": "lis3mdl",
		"mag_offset": {"x": 120.5, "y": -80.25, "z": 15},
		"mag_scale": {"x": 3400, "y": 3500, "z": 3300},
		"confidence": {"overall": 0.91}
	}`)

	cal, err := LoadFieldCalibration(path)
	if err != nil {
		t.Fatalf("LoadFieldCalibration failed: %v", err)
	}
	if cal.Sensor != "lis3mdl" {
		t.Errorf("Expected sensor lis3mdl, got %q", cal.Sensor)
	}
	if cal.MagOffset.X != 120.5 || cal.MagOffset.Y != -80.25 || cal.MagOffset.Z != 15 {
		t.Errorf("Unexpected offsets: %+v", cal.MagOffset)
	}
	if cal.MagScale.X != 3400 || cal.MagScale.Y != 3500 || cal.MagScale.Z != 3300 {
		t.Errorf("Unexpected scales: %+v", cal.MagScale)
	}
}

func TestLoadFieldCalibrationMissingFile(t *testing.T) {
	if _, err := LoadFieldCalibration(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("Expected error for missing file, got nil")
	}
}

func TestLoadFieldCalibrationRejectsBadScale(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"zero scale", `{"mag_offset": {"x": 0, "y": 0, "z": 0}, "mag_scale": {"x": 0, "y": 3500, "z": 3300}}`},
		{"negative scale", `{"mag_offset": {"x": 0, "y": 0, "z": 0}, "mag_scale": {"x": 3400, "y": -1, "z": 3300}}`},
		{"missing scale", `{"mag_offset": {"x": 0, "y": 0, "z": 0}}`},
		{"not json", `offset=12`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeCalibration(t, tc.content)
			if _, err := LoadFieldCalibration(path); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}

func TestFieldCalibrationApply(t *testing.T) {
	cal := &FieldCalibration{}
	cal.MagOffset.X = 100
	cal.MagOffset.Y = -50
	cal.MagOffset.Z = 0
	cal.MagScale.X = 2000
	cal.MagScale.Y = 1000
	cal.MagScale.Z = 1500

	// avg scale is 1500; each axis corrects to exactly 1500 counts.
	in := mag.Sample{Mx: 2100, My: 950, Mz: 1500}
	out := cal.apply(in, 6842)

	if out.Mx != 1500 || out.My != 1500 || out.Mz != 1500 {
		t.Errorf("Expected corrected counts (1500, 1500, 1500), got (%d, %d, %d)", out.Mx, out.My, out.Mz)
	}

	wantUT := 1500.0 / 6842 * 100
	for i, got := range []float64{out.XuT, out.YuT, out.ZuT} {
		if math.Abs(got-wantUT) > 1e-9 {
			t.Errorf("Axis %d: expected %v µT, got %v", i, wantUT, got)
		}
	}
}

func TestFieldCalibrationApplyIdentity(t *testing.T) {
	// Unit scales and zero offsets must not disturb the counts.
	cal := &FieldCalibration{}
	cal.MagScale.X = 1
	cal.MagScale.Y = 1
	cal.MagScale.Z = 1

	in := mag.Sample{Mx: -321, My: 7, Mz: 12345}
	out := cal.apply(in, 6842)
	if out.Mx != in.Mx || out.My != in.My || out.Mz != in.Mz {
		t.Errorf("Expected counts unchanged, got (%d, %d, %d)", out.Mx, out.My, out.Mz)
	}
}
