package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "field_config.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return path
}

const minimalConfig = `MQTT_BROKER=tcp://localhost:1883
MAG_BUS=i2c
GPS_SERIAL_PORT=/dev/ttyAMA0
GPS_BAUD_RATE=9600
MAG_SAMPLE_INTERVAL=100
`

func TestLoadMinimal(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.MQTTBroker != "tcp://localhost:1883" {
		t.Errorf("Expected broker tcp://localhost:1883, got %q", cfg.MQTTBroker)
	}
	if cfg.MagBus != "i2c" {
		t.Errorf("Expected bus i2c, got %q", cfg.MagBus)
	}
	if cfg.GPSBaudRate != 9600 {
		t.Errorf("Expected baud rate 9600, got %d", cfg.GPSBaudRate)
	}
	if cfg.MagSampleInterval != 100 {
		t.Errorf("Expected sample interval 100, got %d", cfg.MagSampleInterval)
	}
}

func TestLoadSensorDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.MagRange != 0 {
		t.Errorf("Expected default range 0 (±4 gauss), got %d", cfg.MagRange)
	}
	if cfg.MagDataRate != 1 {
		t.Errorf("Expected default data rate code 1 (155 Hz), got %d", cfg.MagDataRate)
	}
	if cfg.MagPerfMode != 3 {
		t.Errorf("Expected default performance mode 3 (ultra-high), got %d", cfg.MagPerfMode)
	}
	if cfg.MagOpMode != 0 {
		t.Errorf("Expected default operation mode 0 (continuous), got %d", cfg.MagOpMode)
	}
}

func TestLoadFull(t *testing.T) {
	content := `# Field computer configuration
MQTT_BROKER=tcp://broker:1883
MQTT_CLIENT_ID_MAG=mag_producer

TOPIC_MAG=field/mag
TOPIC_HEADING=field/heading
TOPIC_GPS_COURSE=field/gps_course

MAG_BUS=spi
MAG_SPI_PORT=SPI0.0
MAG_SPI_CS_PIN=GPIO8
MAG_SPI_FREQ_HZ=4000000
MAG_RANGE=2
MAG_DATA_RATE=3
MAG_PERF_MODE=1
MAG_OP_MODE=1
MAG_DECLINATION_DEG=-2.5
MAG_CALIBRATION_FILE=./lis3mdl_cal.json

GPS_SERIAL_PORT=/dev/ttyUSB0
GPS_BAUD_RATE=4800
MAG_SAMPLE_INTERVAL=50

WEB_SERVER_PORT=8080
DISPLAY_I2C_BUS=1
DISPLAY_CONTENT=heading

REGISTER_DEBUG_PORT=8081
REGISTER_DEBUG_ALLOWED_RANGES=0x20-0x23,0x30-0x33
REGISTER_DEBUG_MIN_BUS_SPEED=100000
REGISTER_DEBUG_MAX_BUS_SPEED=10000000
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.MagSPIPort != "SPI0.0" || cfg.MagSPICSPin != "GPIO8" {
		t.Errorf("Expected SPI0.0/GPIO8, got %q/%q", cfg.MagSPIPort, cfg.MagSPICSPin)
	}
	if cfg.MagSPIFreqHz != 4000000 {
		t.Errorf("Expected SPI frequency 4000000, got %d", cfg.MagSPIFreqHz)
	}
	if cfg.MagRange != 2 || cfg.MagDataRate != 3 || cfg.MagPerfMode != 1 || cfg.MagOpMode != 1 {
		t.Errorf("Unexpected sensor settings: range=%d rate=%d perf=%d op=%d",
			cfg.MagRange, cfg.MagDataRate, cfg.MagPerfMode, cfg.MagOpMode)
	}
	if cfg.MagDeclinationDeg != -2.5 {
		t.Errorf("Expected declination -2.5, got %v", cfg.MagDeclinationDeg)
	}
	if cfg.MagCalibrationFile != "./lis3mdl_cal.json" {
		t.Errorf("Expected calibration file ./lis3mdl_cal.json, got %q", cfg.MagCalibrationFile)
	}
	if cfg.DisplayI2CBus != "1" || cfg.DisplayContent != "heading" {
		t.Errorf("Unexpected display settings: bus=%q content=%q", cfg.DisplayI2CBus, cfg.DisplayContent)
	}
	if cfg.RegisterDebugAllowedRanges != "0x20-0x23,0x30-0x33" {
		t.Errorf("Unexpected allowed ranges %q", cfg.RegisterDebugAllowedRanges)
	}
	if cfg.RegisterDebugMaxBusSpeed != 10000000 {
		t.Errorf("Expected max bus speed 10000000, got %d", cfg.RegisterDebugMaxBusSpeed)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name    string
		line    string
		wantErr string
	}{
		{"range too large", "MAG_RANGE=4", "MAG_RANGE must be 0-3"},
		{"rate odd code too large", "MAG_DATA_RATE=9", "MAG_DATA_RATE must be"},
		{"rate negative", "MAG_DATA_RATE=-1", "MAG_DATA_RATE must be"},
		{"perf mode out of range", "MAG_PERF_MODE=5", "MAG_PERF_MODE must be 0-3"},
		{"op mode reserved", "MAG_OP_MODE=2", "MAG_OP_MODE must be"},
		{"negative spi freq", "MAG_SPI_FREQ_HZ=-1", "must not be negative"},
		{"bad declination", "MAG_DECLINATION_DEG=west", "invalid MAG_DECLINATION_DEG"},
		{"unknown key", "MAG_GAIN=7", "unknown config key"},
		{"missing equals", "MAG_RANGE", "invalid config line"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, minimalConfig+tc.line+"\n"))
			if err == nil {
				t.Fatalf("Expected error for %q, got nil", tc.line)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("Expected error containing %q, got %q", tc.wantErr, err.Error())
			}
		})
	}
}

func TestLoadRejectsMissingRequired(t *testing.T) {
	cases := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			"no broker",
			"MAG_BUS=i2c\nGPS_SERIAL_PORT=/dev/ttyAMA0\nGPS_BAUD_RATE=9600\nMAG_SAMPLE_INTERVAL=100\n",
			"MQTT_BROKER is required",
		},
		{
			"no bus",
			"MQTT_BROKER=tcp://localhost:1883\nGPS_SERIAL_PORT=/dev/ttyAMA0\nGPS_BAUD_RATE=9600\nMAG_SAMPLE_INTERVAL=100\n",
			"MAG_BUS must be",
		},
		{
			"spi without cs pin",
			"MQTT_BROKER=tcp://localhost:1883\nMAG_BUS=spi\nMAG_SPI_PORT=SPI0.0\nGPS_SERIAL_PORT=/dev/ttyAMA0\nGPS_BAUD_RATE=9600\nMAG_SAMPLE_INTERVAL=100\n",
			"MAG_SPI_CS_PIN is required",
		},
		{
			"softspi without pins",
			"MQTT_BROKER=tcp://localhost:1883\nMAG_BUS=softspi\nGPS_SERIAL_PORT=/dev/ttyAMA0\nGPS_BAUD_RATE=9600\nMAG_SAMPLE_INTERVAL=100\n",
			"required when MAG_BUS=softspi",
		},
		{
			"no sample interval",
			"MQTT_BROKER=tcp://localhost:1883\nMAG_BUS=i2c\nGPS_SERIAL_PORT=/dev/ttyAMA0\nGPS_BAUD_RATE=9600\n",
			"MAG_SAMPLE_INTERVAL is required",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.content))
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("Expected error containing %q, got %q", tc.wantErr, err.Error())
			}
		})
	}
}

func TestLoadSkipsCommentsAndBlankLines(t *testing.T) {
	content := "# leading comment\n\n" + minimalConfig + "\n# trailing comment\n   \n"
	if _, err := Load(writeConfig(t, content)); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
}
