// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package lis3mdl controls an ST LIS3MDL three-axis magnetometer over I2C,
// hardware SPI or bit-banged SPI.
//
// The device is bound to exactly one bus at a time with BeginI2C, BeginSPI
// or BeginSoftSPI; binding verifies the chip identity, resets it and applies
// a default configuration of ultra-high performance, 155 Hz, ±4 gauss,
// continuous measurement. All methods are blocking bus transactions and the
// handle is not safe for concurrent use.
package lis3mdl

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

// ErrNoTransport is returned when the device is used before a successful
// BeginI2C, BeginSPI or BeginSoftSPI call.
var ErrNoTransport = errors.New("lis3mdl: not bound to a bus")

// ErrInvalidDevice is returned when the chip at the bound address does not
// identify itself as a LIS3MDL.
var ErrInvalidDevice = errors.New("lis3mdl: unexpected device identity")

// settleTime is the wait the device needs after a reset or a rate change
// before its registers are reliable again.
const settleTime = 10 * time.Millisecond

// defaultSPIFreq is used when BeginSPI is called with a zero frequency.
const defaultSPIFreq = 1 * physic.MegaHertz

// Dev is a handle to one LIS3MDL. The zero value is unbound; call one of
// the Begin methods before anything else.
type Dev struct {
	t     transport
	ready bool

	sensorID int32

	// rangeBuffered mirrors the on-device range field. Read converts with
	// this cache instead of re-querying the device, so every range-mutating
	// path must keep it current.
	rangeBuffered Range

	// Last sample, raw counts and converted gauss. Mutated only by Read.
	x, y, z          float64
	rawX, rawY, rawZ int16
}

var _ conn.Resource = &Dev{}

// New returns an unbound handle.
func New() *Dev {
	return &Dev{}
}

// BeginI2C binds the device on an I2C bus and brings it to the default
// configuration. addr 0 selects the factory default address.
func (d *Dev) BeginI2C(bus i2c.Bus, addr uint16) error {
	if addr == 0 {
		addr = DefaultAddr
	}
	return d.begin(&i2cTransport{dev: i2c.Dev{Bus: bus, Addr: addr}})
}

// BeginSPI binds the device on a hardware SPI port with a dedicated chip
// select pin and brings it to the default configuration. freq 0 selects
// 1 MHz.
func (d *Dev) BeginSPI(port spi.Port, cs gpio.PinOut, freq physic.Frequency) error {
	if cs == nil {
		return errors.New("lis3mdl: chip select pin is required")
	}
	if freq == 0 {
		freq = defaultSPIFreq
	}
	return d.begin(&spiTransport{port: port, cs: cs, freq: freq})
}

// BeginSoftSPI binds the device over four GPIO pins clocked in software and
// brings it to the default configuration. freq bounds the bit clock; 0
// clocks as fast as the pins allow.
func (d *Dev) BeginSoftSPI(sck, mosi gpio.PinOut, miso gpio.PinIn, cs gpio.PinOut, freq physic.Frequency) error {
	t := &softSPI{sck: sck, mosi: mosi, miso: miso, cs: cs}
	if freq > 0 {
		t.halfPeriod = freq.Period() / 2
	}
	return d.begin(t)
}

// begin swaps in the new transport, dropping any previous binding, and runs
// the identity check and default configuration. The handle is Ready only
// when every step succeeded.
func (d *Dev) begin(t transport) error {
	d.t = t
	d.ready = false
	if err := t.open(); err != nil {
		return fmt.Errorf("lis3mdl: opening %s: %w", t, err)
	}
	var id [1]byte
	if err := d.readReg(regWhoAmI, id[:]); err != nil {
		return fmt.Errorf("lis3mdl: reading identity: %w", err)
	}
	if id[0] != deviceID {
		return fmt.Errorf("%w: got 0x%02X, want 0x%02X", ErrInvalidDevice, id[0], deviceID)
	}
	if err := d.Reset(); err != nil {
		return err
	}
	// SetDataRate re-asserts ultra-high mode for 155 Hz; the explicit set
	// first keeps the order the device is validated against.
	if err := d.SetPerformanceMode(UltraHighMode); err != nil {
		return err
	}
	if err := d.SetDataRate(DataRate155Hz); err != nil {
		return err
	}
	if err := d.SetRange(Range4Gauss); err != nil {
		return err
	}
	if err := d.SetOperationMode(ContinuousMode); err != nil {
		return err
	}
	d.ready = true
	return nil
}

// Ready reports whether the last Begin call completed the identity check
// and default configuration.
func (d *Dev) Ready() bool {
	return d.ready
}

// Reset reboots the device's configuration registers. The range register
// reverts to its power-on default, so the cached range is re-read rather
// than assumed.
func (d *Dev) Reset() error {
	if err := d.writeBits(regCtrl2, 1, 2, 1); err != nil {
		return err
	}
	time.Sleep(settleTime)
	_, err := d.GetRange()
	return err
}

// SetPerformanceMode selects the operative mode. X/Y and Z are configured
// through separate registers; both fields are written to the same value in
// one call so the axes never diverge.
func (d *Dev) SetPerformanceMode(m PerformanceMode) error {
	if err := d.writeBits(regCtrl1, 2, 5, byte(m)); err != nil {
		return err
	}
	return d.writeBits(regCtrl4, 2, 2, byte(m))
}

// GetPerformanceMode reads back the X/Y operative mode. The Z field is kept
// in sync by SetPerformanceMode and is not verified independently.
func (d *Dev) GetPerformanceMode() (PerformanceMode, error) {
	v, err := d.readBits(regCtrl1, 2, 5)
	return PerformanceMode(v), err
}

// SetDataRate selects the output data rate. The four fast rates double as a
// performance mode selection and force their paired mode first.
func (d *Dev) SetDataRate(dr DataRate) error {
	if m, fast := dr.fastModePair(); fast {
		if err := d.SetPerformanceMode(m); err != nil {
			return err
		}
	}
	// The settling wait applies to every rate change, not only the fast
	// ones. Inherited from the vendor sequence; unverified for slow rates.
	time.Sleep(settleTime)
	return d.writeBits(regCtrl1, 4, 1, byte(dr))
}

// GetDataRate reads back the output data rate selector.
func (d *Dev) GetDataRate() (DataRate, error) {
	v, err := d.readBits(regCtrl1, 4, 1)
	return DataRate(v), err
}

// SetRange selects the full-scale range and with it the scale factor Read
// applies to raw counts.
func (d *Dev) SetRange(r Range) error {
	if err := d.writeBits(regCtrl2, 2, 5, byte(r)); err != nil {
		return err
	}
	d.rangeBuffered = r
	return nil
}

// GetRange reads the full-scale range from the device and refreshes the
// cached value used by Read.
func (d *Dev) GetRange() (Range, error) {
	v, err := d.readBits(regCtrl2, 2, 5)
	if err != nil {
		return d.rangeBuffered, err
	}
	d.rangeBuffered = Range(v)
	return d.rangeBuffered, nil
}

// SetOperationMode selects continuous, single-shot or power-down
// measurement.
func (d *Dev) SetOperationMode(m OperationMode) error {
	return d.writeBits(regCtrl3, 2, 0, byte(m))
}

// GetOperationMode reads back the measurement mode.
func (d *Dev) GetOperationMode() (OperationMode, error) {
	v, err := d.readBits(regCtrl3, 2, 0)
	return OperationMode(v), err
}

// SetIntThreshold sets the interrupt trip level in raw counts, applied to
// all enabled axes. The device requires the top bit clear, so the value is
// capped at 0x7FFF.
func (d *Dev) SetIntThreshold(v uint16) error {
	v &= 0x7FFF
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], v)
	return d.writeReg(regIntThsL, buf[:])
}

// GetIntThreshold reads back the interrupt trip level.
func (d *Dev) GetIntThreshold() (uint16, error) {
	var buf [2]byte
	if err := d.readReg(regIntThsL, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(buf[:]), nil
}

// ConfigureInterrupt programs the interrupt pin: which axes trip it, the
// pin polarity, whether the source latches until read, and the master
// enable. Every bit of the register is driver-owned, so this is a plain
// overwrite rather than a read-modify-write.
func (d *Dev) ConfigureInterrupt(enableX, enableY, enableZ, polarity, latch, enable bool) error {
	v := byte(0x08) // reserved, must stay set
	v |= bit(enableX) << 7
	v |= bit(enableY) << 6
	v |= bit(enableZ) << 5
	v |= bit(polarity) << 2
	v |= bit(latch) << 1
	v |= bit(enable)
	return d.writeReg(regIntCfg, []byte{v})
}

// SelfTest switches the built-in self-test stimulus on or off.
func (d *Dev) SelfTest(enable bool) error {
	return d.writeBits(regCtrl1, 1, 0, bit(enable))
}

// Read fetches one sample, six bytes in a single auto-incrementing
// transaction, and converts it to gauss with the cached range's scale
// factor. On failure the previously stored sample is left untouched.
func (d *Dev) Read() error {
	var buf [6]byte
	if err := d.readReg(regOutXL, buf[:]); err != nil {
		return err
	}
	d.rawX = int16(binary.LittleEndian.Uint16(buf[0:2]))
	d.rawY = int16(binary.LittleEndian.Uint16(buf[2:4]))
	d.rawZ = int16(binary.LittleEndian.Uint16(buf[4:6]))
	scale := d.rangeBuffered.LSBPerGauss()
	d.x = float64(d.rawX) / scale
	d.y = float64(d.rawY) / scale
	d.z = float64(d.rawZ) / scale
	return nil
}

// Raw returns the raw counts stored by the last successful Read.
func (d *Dev) Raw() (x, y, z int16) {
	return d.rawX, d.rawY, d.rawZ
}

// Gauss returns the converted field stored by the last successful Read.
func (d *Dev) Gauss() (x, y, z float64) {
	return d.x, d.y, d.z
}

// ReadField fetches one sample and returns the field per axis in µT. Unlike
// Read it always converts with the ±4 gauss scale, whatever range is
// configured; the two paths agree only at ±4 gauss. On failure all three
// values are NaN.
func (d *Dev) ReadField() (x, y, z float64, err error) {
	var buf [6]byte
	if err := d.readReg(regOutXL, buf[:]); err != nil {
		nan := math.NaN()
		return nan, nan, nan, err
	}
	const scale = 4.0 * 100.0 / 32768.0
	x = float64(int16(binary.LittleEndian.Uint16(buf[0:2]))) * scale
	y = float64(int16(binary.LittleEndian.Uint16(buf[2:4]))) * scale
	z = float64(int16(binary.LittleEndian.Uint16(buf[4:6]))) * scale
	return x, y, z, nil
}

// DataReady reports whether a new X/Y/Z sample is available since the last
// read.
func (d *Dev) DataReady() (bool, error) {
	var st [1]byte
	if err := d.readReg(regStatus, st[:]); err != nil {
		return false, err
	}
	return st[0]&statusZYXDA != 0, nil
}

// SampleRate returns the nominal output frequency for the currently
// configured data rate. It is a lookup, not a measurement.
func (d *Dev) SampleRate() (physic.Frequency, error) {
	dr, err := d.GetDataRate()
	if err != nil {
		return 0, err
	}
	return dr.Frequency(), nil
}

// Event is one measurement in the unified sensor format: the field per axis
// in µT and the time the sample was taken.
type Event struct {
	SensorID int32
	Type     string
	Time     time.Time
	X, Y, Z  float64
}

// Info is static sensor metadata in the unified sensor format, in µT. The
// min/max span is the widest ±16 gauss setting; the resolution is one count
// at the ±4 gauss default.
type Info struct {
	Name       string
	Version    int32
	SensorID   int32
	Type       string
	MinValue   float64
	MaxValue   float64
	Resolution float64
	MinDelay   time.Duration
}

const eventType = "magnetic field"

// Event fetches one sample and wraps it as a timestamped event in µT.
func (d *Dev) Event() (Event, error) {
	if err := d.Read(); err != nil {
		return Event{}, err
	}
	return Event{
		SensorID: d.sensorID,
		Type:     eventType,
		Time:     time.Now(),
		X:        d.x * 100,
		Y:        d.y * 100,
		Z:        d.z * 100,
	}, nil
}

// Info returns the static sensor description.
func (d *Dev) Info() Info {
	return Info{
		Name:       "LIS3MDL",
		Version:    1,
		SensorID:   d.sensorID,
		Type:       eventType,
		MinValue:   -1600,
		MaxValue:   1600,
		Resolution: 0.015,
	}
}

// String implements conn.Resource.
func (d *Dev) String() string {
	if d.t == nil {
		return "LIS3MDL{unbound}"
	}
	return fmt.Sprintf("LIS3MDL{%s}", d.t)
}

// Halt implements conn.Resource, powering the magnetometer down. Halting an
// unbound handle is a no-op.
func (d *Dev) Halt() error {
	if d.t == nil {
		return nil
	}
	return d.SetOperationMode(PowerDownMode)
}

// ReadRegister returns the value of a single register. Intended for register
// inspection tooling; normal callers use the typed accessors.
func (d *Dev) ReadRegister(reg byte) (byte, error) {
	var b [1]byte
	if err := d.readReg(reg, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadRegisters fills buf starting at register reg, auto-incrementing the
// address across the span.
func (d *Dev) ReadRegisters(reg byte, buf []byte) error {
	return d.readReg(reg, buf)
}

// WriteRegister stores one value at register reg. Intended for register
// inspection tooling; normal callers use the typed mutators.
func (d *Dev) WriteRegister(reg, value byte) error {
	return d.writeReg(reg, []byte{value})
}

func (d *Dev) readReg(reg byte, buf []byte) error {
	if d.t == nil {
		return ErrNoTransport
	}
	return d.t.read(reg, buf)
}

func (d *Dev) writeReg(reg byte, data []byte) error {
	if d.t == nil {
		return ErrNoTransport
	}
	return d.t.write(reg, data)
}

// readBits extracts a width-bit field at the given offset of a one-byte
// register.
func (d *Dev) readBits(reg byte, width, shift uint) (byte, error) {
	var b [1]byte
	if err := d.readReg(reg, b[:]); err != nil {
		return 0, err
	}
	return (b[0] >> shift) & (1<<width - 1), nil
}

// writeBits replaces a width-bit field at the given offset of a one-byte
// register, preserving every bit outside the field.
func (d *Dev) writeBits(reg byte, width, shift uint, value byte) error {
	var b [1]byte
	if err := d.readReg(reg, b[:]); err != nil {
		return err
	}
	mask := byte(1<<width-1) << shift
	b[0] = b[0]&^mask | value<<shift&mask
	return d.writeReg(reg, b[:])
}

func bit(b bool) byte {
	if b {
		return 1
	}
	return 0
}
