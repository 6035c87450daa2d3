package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Config holds all application configuration values.
type Config struct {
	// MQTT
	MQTTBroker          string
	MQTTClientIDMag     string
	MQTTClientIDGPS     string
	MQTTClientIDConsole string
	MQTTClientIDWeb     string
	MQTTClientIDDisplay string

	// Topics
	TopicMag       string
	TopicHeading   string
	TopicGPSCourse string

	// Magnetometer bus selection: "i2c", "spi" or "softspi"
	MagBus string

	// Magnetometer I2C binding
	MagI2CBus  string
	MagI2CAddr uint16

	// Magnetometer hardware SPI binding
	MagSPIPort   string
	MagSPICSPin  string
	MagSPIFreqHz int64

	// Magnetometer software SPI binding
	MagSoftSCKPin  string
	MagSoftMOSIPin string
	MagSoftMISOPin string
	MagSoftCSPin   string

	// Magnetometer Settings
	// Range: 0=±4, 1=±8, 2=±12, 3=±16 gauss
	MagRange byte
	// Data rate code: even codes 0-14 select 0.625-80 Hz, odd codes 1/3/5/7
	// select the fast 155/300/560/1000 Hz rates
	MagDataRate byte
	// Performance mode: 0=low power, 1=medium, 2=high, 3=ultra-high
	MagPerfMode byte
	// Operation mode: 0=continuous, 1=single-shot, 3=power-down
	MagOpMode byte

	// Magnetic declination in degrees, added to the magnetic heading to get
	// true heading
	MagDeclinationDeg float64

	// Path to a calibration file written by the guided calibration tool.
	// Empty disables runtime corrections.
	MagCalibrationFile string

	// GPS
	GPSSerialPort string
	GPSBaudRate   int

	// Timing
	MagSampleInterval int // milliseconds

	// Web Server
	WebServerPort int
	WebStaticDir  string

	// Display. The SSD1306 driver binds the controller's fixed 0x3C
	// address, so only the bus is selectable.
	DisplayI2CBus         string
	DisplayUpdateInterval int    // milliseconds
	DisplayContent        string // what to show: "mag", "heading", "gps"

	// Register Debug
	RegisterDebugPort          int
	RegisterDebugAllowedRanges string // e.g. "0x20-0x23,0x30-0x33"
	RegisterDebugMinBusSpeed   int64  // Hz
	RegisterDebugMaxBusSpeed   int64  // Hz
}

// Package-level unexported variables for singleton pattern:
//   - globalConfig: unexported (lowercase) so other packages cannot access it directly.
//     This enforces encapsulation and prevents external code from modifying config without proper locking.
//     Has package-level scope (visible to all functions in this package, persists for program lifetime).
//   - configOnce: ensures InitGlobal() only runs once, even if called multiple times.
//   - configMu: RWMutex protects concurrent access. Write lock (Lock) for initialization,
//     read lock (RLock) for Get() allows multiple concurrent readers without blocking each other.
//
// External code must use InitGlobal() to set and Get() to read, ensuring thread safety.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Load reads the configuration file and returns a Config struct.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	// Sensor setting defaults match the driver's post-init state: ±4 gauss
	// (0), 155 Hz fast rate, ultra-high performance, continuous mode (0).
	cfg := &Config{
		MagDataRate: 1,
		MagPerfMode: 3,
	}
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Validate required fields
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	switch key {
	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_MAG":
		c.MQTTClientIDMag = value
	case "MQTT_CLIENT_ID_GPS":
		c.MQTTClientIDGPS = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value
	case "MQTT_CLIENT_ID_DISPLAY":
		c.MQTTClientIDDisplay = value

	// Topics
	case "TOPIC_MAG":
		c.TopicMag = value
	case "TOPIC_HEADING":
		c.TopicHeading = value
	case "TOPIC_GPS_COURSE":
		c.TopicGPSCourse = value

	// Magnetometer bus
	case "MAG_BUS":
		c.MagBus = value
	case "MAG_I2C_BUS":
		c.MagI2CBus = value
	case "MAG_I2C_ADDR":
		addr, err := strconv.ParseUint(value, 0, 16)
		if err != nil {
			return fmt.Errorf("invalid MAG_I2C_ADDR %q: %w", value, err)
		}
		c.MagI2CAddr = uint16(addr)
	case "MAG_SPI_PORT":
		c.MagSPIPort = value
	case "MAG_SPI_CS_PIN":
		c.MagSPICSPin = value
	case "MAG_SPI_FREQ_HZ":
		freq, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid MAG_SPI_FREQ_HZ %q: %w", value, err)
		}
		if freq < 0 {
			return fmt.Errorf("MAG_SPI_FREQ_HZ must not be negative, got %d", freq)
		}
		c.MagSPIFreqHz = freq
	case "MAG_SOFT_SCK_PIN":
		c.MagSoftSCKPin = value
	case "MAG_SOFT_MOSI_PIN":
		c.MagSoftMOSIPin = value
	case "MAG_SOFT_MISO_PIN":
		c.MagSoftMISOPin = value
	case "MAG_SOFT_CS_PIN":
		c.MagSoftCSPin = value

	// Magnetometer Settings
	case "MAG_RANGE":
		rangeVal, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid MAG_RANGE %q: %w", value, err)
		}
		if rangeVal < 0 || rangeVal > 3 {
			return fmt.Errorf("MAG_RANGE must be 0-3 (0=±4, 1=±8, 2=±12, 3=±16 gauss), got %d", rangeVal)
		}
		c.MagRange = byte(rangeVal)
	case "MAG_DATA_RATE":
		val, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid MAG_DATA_RATE %q: %w", value, err)
		}
		even := val >= 0 && val <= 14 && val%2 == 0
		fast := val == 1 || val == 3 || val == 5 || val == 7
		if !even && !fast {
			return fmt.Errorf("MAG_DATA_RATE must be an even code 0-14 (0.625-80 Hz) or 1/3/5/7 (fast 155-1000 Hz), got %d", val)
		}
		c.MagDataRate = byte(val)
	case "MAG_PERF_MODE":
		val, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid MAG_PERF_MODE %q: %w", value, err)
		}
		if val < 0 || val > 3 {
			return fmt.Errorf("MAG_PERF_MODE must be 0-3 (0=low power, 1=medium, 2=high, 3=ultra-high), got %d", val)
		}
		c.MagPerfMode = byte(val)
	case "MAG_OP_MODE":
		val, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid MAG_OP_MODE %q: %w", value, err)
		}
		if val != 0 && val != 1 && val != 3 {
			return fmt.Errorf("MAG_OP_MODE must be 0 (continuous), 1 (single-shot) or 3 (power-down), got %d", val)
		}
		c.MagOpMode = byte(val)
	case "MAG_DECLINATION_DEG":
		decl, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid MAG_DECLINATION_DEG %q: %w", value, err)
		}
		c.MagDeclinationDeg = decl
	case "MAG_CALIBRATION_FILE":
		c.MagCalibrationFile = value

	// GPS
	case "GPS_SERIAL_PORT":
		c.GPSSerialPort = value
	case "GPS_BAUD_RATE":
		rate, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid GPS_BAUD_RATE %q: %w", value, err)
		}
		c.GPSBaudRate = rate

	// Timing
	case "MAG_SAMPLE_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid MAG_SAMPLE_INTERVAL %q: %w", value, err)
		}
		c.MagSampleInterval = interval

	// Web Server
	case "WEB_SERVER_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid WEB_SERVER_PORT %q: %w", value, err)
		}
		c.WebServerPort = port
	case "WEB_STATIC_DIR":
		c.WebStaticDir = value

	// Display
	case "DISPLAY_I2C_BUS":
		c.DisplayI2CBus = value
	case "DISPLAY_UPDATE_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_UPDATE_INTERVAL %q: %w", value, err)
		}
		c.DisplayUpdateInterval = interval
	case "DISPLAY_CONTENT":
		c.DisplayContent = value

	// Register Debug
	case "REGISTER_DEBUG_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid REGISTER_DEBUG_PORT %q: %w", value, err)
		}
		c.RegisterDebugPort = port
	case "REGISTER_DEBUG_ALLOWED_RANGES":
		c.RegisterDebugAllowedRanges = value
	case "REGISTER_DEBUG_MIN_BUS_SPEED":
		speed, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid REGISTER_DEBUG_MIN_BUS_SPEED %q: %w", value, err)
		}
		c.RegisterDebugMinBusSpeed = speed
	case "REGISTER_DEBUG_MAX_BUS_SPEED":
		speed, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid REGISTER_DEBUG_MAX_BUS_SPEED %q: %w", value, err)
		}
		c.RegisterDebugMaxBusSpeed = speed

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

// validate checks that all required fields are set.
func (c *Config) validate() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	switch c.MagBus {
	case "i2c":
		// Empty MAG_I2C_BUS selects the first available bus and a zero
		// MAG_I2C_ADDR selects the factory default address.
	case "spi":
		if c.MagSPIPort == "" {
			return fmt.Errorf("MAG_SPI_PORT is required when MAG_BUS=spi")
		}
		if c.MagSPICSPin == "" {
			return fmt.Errorf("MAG_SPI_CS_PIN is required when MAG_BUS=spi")
		}
	case "softspi":
		if c.MagSoftSCKPin == "" || c.MagSoftMOSIPin == "" || c.MagSoftMISOPin == "" || c.MagSoftCSPin == "" {
			return fmt.Errorf("MAG_SOFT_SCK_PIN, MAG_SOFT_MOSI_PIN, MAG_SOFT_MISO_PIN and MAG_SOFT_CS_PIN are required when MAG_BUS=softspi")
		}
	default:
		return fmt.Errorf("MAG_BUS must be i2c, spi or softspi, got %q", c.MagBus)
	}
	if c.GPSSerialPort == "" {
		return fmt.Errorf("GPS_SERIAL_PORT is required")
	}
	if c.GPSBaudRate == 0 {
		return fmt.Errorf("GPS_BAUD_RATE is required")
	}
	if c.MagSampleInterval == 0 {
		return fmt.Errorf("MAG_SAMPLE_INTERVAL is required")
	}
	return nil
}

// InitGlobal initializes the global configuration from file.
// Uses sync.Once to ensure this only runs once, even if called multiple times.
// Acquires write lock (configMu.Lock) during initialization to prevent concurrent access.
// This is the only function that can set globalConfig.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
// Uses read lock (configMu.RLock) to allow multiple concurrent readers without blocking.
// This is thread-safe and efficient for concurrent access across goroutines.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
