// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package lis3mdl

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

// SPI frame address flags. The first frame of every transaction carries the
// register address; bit 7 selects read, bit 6 enables address auto-increment
// for the following frames.
const (
	spiRead    = 0x80
	spiAutoInc = 0x40
)

// i2cAutoInc is the subaddress MSB that enables address auto-increment on
// multi-byte I2C transfers, datasheet section 6.1.1.
const i2cAutoInc = 0x80

// transport moves bytes to and from device registers over one bus kind.
// The addressing and auto-increment convention is fixed per implementation.
type transport interface {
	fmt.Stringer
	// open claims the bus resources. Called once per binding, before any
	// register access.
	open() error
	// read fills buf starting at register reg, auto-incrementing.
	read(reg byte, buf []byte) error
	// write stores data starting at register reg, auto-incrementing.
	write(reg byte, data []byte) error
}

// i2cTransport talks to the device through an i2c.Dev.
type i2cTransport struct {
	dev i2c.Dev
}

func (t *i2cTransport) open() error {
	// Nothing to claim; the first register access probes the bus.
	return nil
}

func (t *i2cTransport) read(reg byte, buf []byte) error {
	if len(buf) > 1 {
		reg |= i2cAutoInc
	}
	return t.dev.Tx([]byte{reg}, buf)
}

func (t *i2cTransport) write(reg byte, data []byte) error {
	if len(data) > 1 {
		reg |= i2cAutoInc
	}
	return t.dev.Tx(append([]byte{reg}, data...), nil)
}

func (t *i2cTransport) String() string {
	return t.dev.String()
}

// spiTransport talks to the device through a hardware SPI port with the chip
// select driven manually, so the device can share a port with others.
type spiTransport struct {
	port spi.Port
	cs   gpio.PinOut
	freq physic.Frequency
	conn spi.Conn
}

func (t *spiTransport) open() error {
	c, err := t.port.Connect(t.freq, spi.Mode0|spi.NoCS, 8)
	if err != nil {
		return err
	}
	t.conn = c
	return t.cs.Out(gpio.High)
}

func (t *spiTransport) read(reg byte, buf []byte) error {
	w := make([]byte, len(buf)+1)
	r := make([]byte, len(buf)+1)
	w[0] = reg | spiRead | spiAutoInc
	if err := t.cs.Out(gpio.Low); err != nil {
		return err
	}
	err := t.conn.Tx(w, r)
	if csErr := t.cs.Out(gpio.High); err == nil {
		err = csErr
	}
	if err != nil {
		return err
	}
	copy(buf, r[1:])
	return nil
}

func (t *spiTransport) write(reg byte, data []byte) error {
	w := make([]byte, len(data)+1)
	w[0] = reg | spiAutoInc
	copy(w[1:], data)
	if err := t.cs.Out(gpio.Low); err != nil {
		return err
	}
	err := t.conn.Tx(w, nil)
	if csErr := t.cs.Out(gpio.High); err == nil {
		err = csErr
	}
	return err
}

func (t *spiTransport) String() string {
	return fmt.Sprintf("%s/cs=%s", t.port, t.cs)
}

// softSPI bit-bangs SPI mode 0, MSB first, over four GPIO pins. halfPeriod
// of 0 clocks as fast as the pins allow.
type softSPI struct {
	sck, mosi, cs gpio.PinOut
	miso          gpio.PinIn
	halfPeriod    time.Duration
}

func (t *softSPI) open() error {
	if err := t.cs.Out(gpio.High); err != nil {
		return err
	}
	if err := t.sck.Out(gpio.Low); err != nil {
		return err
	}
	if err := t.mosi.Out(gpio.Low); err != nil {
		return err
	}
	return t.miso.In(gpio.PullNoChange, gpio.NoEdge)
}

func (t *softSPI) read(reg byte, buf []byte) error {
	if err := t.cs.Out(gpio.Low); err != nil {
		return err
	}
	err := t.transact(reg|spiRead|spiAutoInc, nil, buf)
	if csErr := t.cs.Out(gpio.High); err == nil {
		err = csErr
	}
	return err
}

func (t *softSPI) write(reg byte, data []byte) error {
	if err := t.cs.Out(gpio.Low); err != nil {
		return err
	}
	err := t.transact(reg|spiAutoInc, data, nil)
	if csErr := t.cs.Out(gpio.High); err == nil {
		err = csErr
	}
	return err
}

// transact clocks the address byte, then data out, then reads in. CS is
// managed by the caller so the whole exchange stays in one frame.
func (t *softSPI) transact(addr byte, out, in []byte) error {
	if _, err := t.exchange(addr); err != nil {
		return err
	}
	for _, b := range out {
		if _, err := t.exchange(b); err != nil {
			return err
		}
	}
	for i := range in {
		b, err := t.exchange(0x00)
		if err != nil {
			return err
		}
		in[i] = b
	}
	return nil
}

// exchange clocks one byte out on MOSI while sampling MISO, mode 0: data is
// set before the rising edge and sampled on it.
func (t *softSPI) exchange(out byte) (byte, error) {
	var in byte
	for i := 7; i >= 0; i-- {
		if err := t.mosi.Out(gpio.Level(out&(1<<uint(i)) != 0)); err != nil {
			return 0, err
		}
		t.wait()
		if err := t.sck.Out(gpio.High); err != nil {
			return 0, err
		}
		if t.miso.Read() == gpio.High {
			in |= 1 << uint(i)
		}
		t.wait()
		if err := t.sck.Out(gpio.Low); err != nil {
			return 0, err
		}
	}
	return in, nil
}

func (t *softSPI) wait() {
	if t.halfPeriod > 0 {
		time.Sleep(t.halfPeriod)
	}
}

func (t *softSPI) String() string {
	return fmt.Sprintf("softspi(sck=%s mosi=%s miso=%s cs=%s)", t.sck, t.mosi, t.miso, t.cs)
}
