// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"

	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/field_computer/internal/config"
	"github.com/relabs-tech/field_computer/internal/lis3mdl"
	"github.com/relabs-tech/field_computer/internal/mag"
)

// MagManager owns the magnetometer binding and serializes all access to it.
// The driver itself is not safe for concurrent use, so every caller goes
// through the manager's mutex.
type MagManager struct {
	mu      sync.Mutex
	dev     *lis3mdl.Dev
	i2cBus  i2c.BusCloser
	spiPort spi.PortCloser
	freqHz  int64 // bus speed override set by the register debug tool
}

var (
	magManager *MagManager
	magOnce    sync.Once
)

// GetMagManager returns the process-wide magnetometer manager.
func GetMagManager() *MagManager {
	magOnce.Do(func() {
		magManager = &MagManager{}
	})
	return magManager
}

// Init opens the configured bus and brings the sensor to its operating
// configuration. Safe to call again; the previous binding is released first.
func (m *MagManager) Init() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initLocked()
}

// Reinitialize closes the current binding and runs the full init sequence
// again. Used by the register debug tool to recover a misconfigured sensor.
func (m *MagManager) Reinitialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initLocked()
}

func (m *MagManager) initLocked() error {
	cfg := config.Get()
	if cfg == nil {
		return fmt.Errorf("mag: config not initialized")
	}

	if _, err := host.Init(); err != nil {
		return fmt.Errorf("mag: periph host init: %w", err)
	}

	m.closeLocked()
	if m.dev == nil {
		m.dev = lis3mdl.New()
	}

	switch cfg.MagBus {
	case "i2c":
		bus, err := i2creg.Open(cfg.MagI2CBus)
		if err != nil {
			return fmt.Errorf("mag: opening I2C bus %q: %w", cfg.MagI2CBus, err)
		}
		if m.freqHz > 0 {
			if err := bus.SetSpeed(physic.Frequency(m.freqHz) * physic.Hertz); err != nil {
				bus.Close()
				return fmt.Errorf("mag: setting I2C bus speed: %w", err)
			}
		}
		if err := m.dev.BeginI2C(bus, cfg.MagI2CAddr); err != nil {
			bus.Close()
			return err
		}
		m.i2cBus = bus
	case "spi":
		port, err := spireg.Open(cfg.MagSPIPort)
		if err != nil {
			return fmt.Errorf("mag: opening SPI port %q: %w", cfg.MagSPIPort, err)
		}
		cs := gpioreg.ByName(cfg.MagSPICSPin)
		if cs == nil {
			port.Close()
			return fmt.Errorf("mag: CS pin %q not found", cfg.MagSPICSPin)
		}
		freq := cfg.MagSPIFreqHz
		if m.freqHz > 0 {
			freq = m.freqHz
		}
		if err := m.dev.BeginSPI(port, cs, physic.Frequency(freq)*physic.Hertz); err != nil {
			port.Close()
			return err
		}
		m.spiPort = port
	case "softspi":
		sck := gpioreg.ByName(cfg.MagSoftSCKPin)
		if sck == nil {
			return fmt.Errorf("mag: SCK pin %q not found", cfg.MagSoftSCKPin)
		}
		mosi := gpioreg.ByName(cfg.MagSoftMOSIPin)
		if mosi == nil {
			return fmt.Errorf("mag: MOSI pin %q not found", cfg.MagSoftMOSIPin)
		}
		miso := gpioreg.ByName(cfg.MagSoftMISOPin)
		if miso == nil {
			return fmt.Errorf("mag: MISO pin %q not found", cfg.MagSoftMISOPin)
		}
		cs := gpioreg.ByName(cfg.MagSoftCSPin)
		if cs == nil {
			return fmt.Errorf("mag: CS pin %q not found", cfg.MagSoftCSPin)
		}
		if err := m.dev.BeginSoftSPI(sck, mosi, miso, cs, physic.Frequency(m.freqHz)*physic.Hertz); err != nil {
			return err
		}
	default:
		return fmt.Errorf("mag: unsupported bus %q", cfg.MagBus)
	}

	if err := m.applySettingsLocked(cfg); err != nil {
		return err
	}
	log.Printf("mag: %s initialized on %s", m.dev, cfg.MagBus)
	return nil
}

// applySettingsLocked pushes the configured sensor settings on top of the
// driver's init defaults.
func (m *MagManager) applySettingsLocked(cfg *config.Config) error {
	perf := lis3mdl.PerformanceMode(cfg.MagPerfMode)
	if err := m.dev.SetPerformanceMode(perf); err != nil {
		return fmt.Errorf("mag: setting performance mode: %w", err)
	}
	log.Printf("mag: performance mode set to %d (%s)", cfg.MagPerfMode, perf)

	rate := lis3mdl.DataRate(cfg.MagDataRate)
	if err := m.dev.SetDataRate(rate); err != nil {
		return fmt.Errorf("mag: setting data rate: %w", err)
	}
	log.Printf("mag: data rate set to %d (%s)", cfg.MagDataRate, rate)

	rng := lis3mdl.Range(cfg.MagRange)
	if err := m.dev.SetRange(rng); err != nil {
		return fmt.Errorf("mag: setting range: %w", err)
	}
	log.Printf("mag: range set to %d (%s)", cfg.MagRange, rng)

	op := lis3mdl.OperationMode(cfg.MagOpMode)
	if err := m.dev.SetOperationMode(op); err != nil {
		return fmt.Errorf("mag: setting operation mode: %w", err)
	}
	log.Printf("mag: operation mode set to %d (%s)", cfg.MagOpMode, op)
	return nil
}

func (m *MagManager) closeLocked() {
	if m.i2cBus != nil {
		m.i2cBus.Close()
		m.i2cBus = nil
	}
	if m.spiPort != nil {
		m.spiPort.Close()
		m.spiPort = nil
	}
}

// Ready reports whether the sensor passed its init sequence.
func (m *MagManager) Ready() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dev != nil && m.dev.Ready()
}

// ReadSample reads the current field and converts it with the configured
// range. Raw counts and microtesla values are filled; the caller owns the
// source tag, norm and timestamp.
func (m *MagManager) ReadSample() (mag.Sample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dev == nil || !m.dev.Ready() {
		return mag.Sample{}, fmt.Errorf("mag: not initialized")
	}
	if err := m.dev.Read(); err != nil {
		return mag.Sample{}, fmt.Errorf("mag: reading field: %w", err)
	}
	mx, my, mz := m.dev.Raw()
	gx, gy, gz := m.dev.Gauss()
	return mag.Sample{
		Mx: mx, My: my, Mz: mz,
		XuT: gx * 100, YuT: gy * 100, ZuT: gz * 100,
	}, nil
}

// DataReady reports whether a fresh sample is waiting in the output registers.
func (m *MagManager) DataReady() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dev == nil {
		return false, fmt.Errorf("mag: not initialized")
	}
	return m.dev.DataReady()
}

// Info returns the static sensor description.
func (m *MagManager) Info() (lis3mdl.Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dev == nil {
		return lis3mdl.Info{}, fmt.Errorf("mag: not initialized")
	}
	return m.dev.Info(), nil
}

// ReadRegister reads a single register for the debug tooling.
func (m *MagManager) ReadRegister(reg byte) (byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dev == nil {
		return 0, fmt.Errorf("mag: not initialized")
	}
	return m.dev.ReadRegister(reg)
}

// WriteRegister writes a single register for the debug tooling.
func (m *MagManager) WriteRegister(reg, value byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dev == nil {
		return fmt.Errorf("mag: not initialized")
	}
	return m.dev.WriteRegister(reg, value)
}

// ReadAllRegisters reads every documented register and returns the values
// keyed by address.
func (m *MagManager) ReadAllRegisters() (map[byte]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readRegistersLocked(false)
}

// ExportRegisterConfig reads the writable registers only, the set a config
// export needs to reproduce the sensor state.
func (m *MagManager) ExportRegisterConfig() (map[byte]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readRegistersLocked(true)
}

func (m *MagManager) readRegistersLocked(writableOnly bool) (map[byte]byte, error) {
	if m.dev == nil {
		return nil, fmt.Errorf("mag: not initialized")
	}
	regs := make(map[byte]byte)
	for _, info := range getLIS3MDLRegisterMap() {
		if writableOnly && !strings.Contains(info.Access, "W") {
			continue
		}
		addr, err := strconv.ParseUint(info.Address, 0, 8)
		if err != nil {
			continue
		}
		v, err := m.dev.ReadRegister(byte(addr))
		if err != nil {
			return nil, fmt.Errorf("mag: reading %s: %w", info.Name, err)
		}
		regs[byte(addr)] = v
	}
	return regs, nil
}

// GetRegisterMap returns the register metadata for the debug tooling.
func (m *MagManager) GetRegisterMap() []RegisterInfo {
	return getLIS3MDLRegisterMap()
}

// SetBusSpeed changes the bus clock in Hz. An I2C bus takes the new speed
// directly; SPI bindings are reopened since the frequency is fixed when the
// port is connected.
func (m *MagManager) SetBusSpeed(hz int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if hz <= 0 {
		return fmt.Errorf("mag: invalid bus speed %d", hz)
	}
	m.freqHz = hz
	if m.i2cBus != nil {
		return m.i2cBus.SetSpeed(physic.Frequency(hz) * physic.Hertz)
	}
	return m.initLocked()
}

// BusSpeed returns the active bus speed override in Hz, or 0 when the
// configured default is in effect.
func (m *MagManager) BusSpeed() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.freqHz
}

// Close powers the sensor down and releases the bus.
func (m *MagManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var err error
	if m.dev != nil {
		err = m.dev.Halt()
	}
	m.closeLocked()
	return err
}

// ReadMagSample reads one sample through the shared manager.
func ReadMagSample() (mag.Sample, error) {
	return GetMagManager().ReadSample()
}
