package lis3mdl

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"
	"time"

	"periph.io/x/conn/v3/physic"
)

// memTransport is an in-memory register file standing in for a bus-attached
// device. Like the real transports it auto-increments the register address
// across multi-byte transfers.
type memTransport struct {
	regs   map[byte]byte
	writes []regWrite

	openErr  error
	readErr  error
	writeErr error
}

type regWrite struct {
	reg  byte
	data []byte
}

var _ transport = &memTransport{}

func newMemTransport() *memTransport {
	return &memTransport{regs: map[byte]byte{regWhoAmI: deviceID}}
}

func (m *memTransport) open() error { return m.openErr }

func (m *memTransport) read(reg byte, buf []byte) error {
	if m.readErr != nil {
		return m.readErr
	}
	for i := range buf {
		buf[i] = m.regs[reg+byte(i)]
	}
	return nil
}

func (m *memTransport) write(reg byte, data []byte) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	m.writes = append(m.writes, regWrite{reg: reg, data: append([]byte(nil), data...)})
	for i, b := range data {
		m.regs[reg+byte(i)] = b
	}
	return nil
}

func (m *memTransport) String() string { return "mem" }

func newTestDev(t *testing.T) (*Dev, *memTransport) {
	t.Helper()
	m := newMemTransport()
	d := New()
	if err := d.begin(m); err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	return d, m
}

func setSample(m *memTransport, x, y, z int16) {
	var buf [6]byte
	binary.LittleEndian.PutUint16(buf[0:2], uint16(x))
	binary.LittleEndian.PutUint16(buf[2:4], uint16(y))
	binary.LittleEndian.PutUint16(buf[4:6], uint16(z))
	for i, b := range buf {
		m.regs[regOutXL+byte(i)] = b
	}
}

func TestBeginDefaults(t *testing.T) {
	d, m := newTestDev(t)

	if !d.Ready() {
		t.Fatal("Expected device to be ready after begin")
	}
	// Ultra-high X/Y mode and the 155 Hz fast rate share CTRL_REG1.
	if got := m.regs[regCtrl1]; got != 0x62 {
		t.Errorf("Expected CTRL_REG1 0x62, got 0x%02X", got)
	}
	if got := m.regs[regCtrl4]; got != 0x0C {
		t.Errorf("Expected CTRL_REG4 0x0C, got 0x%02X", got)
	}
	if got := m.regs[regCtrl2] & 0x60; got != 0x00 {
		t.Errorf("Expected ±4 gauss range bits, got 0x%02X", got)
	}
	if got := m.regs[regCtrl3] & 0x03; got != 0x00 {
		t.Errorf("Expected continuous mode bits, got 0x%02X", got)
	}

	if pm, err := d.GetPerformanceMode(); err != nil || pm != UltraHighMode {
		t.Errorf("Expected ultra-high mode, got %v (err %v)", pm, err)
	}
	if dr, err := d.GetDataRate(); err != nil || dr != DataRate155Hz {
		t.Errorf("Expected 155 Hz, got %v (err %v)", dr, err)
	}
	if r, err := d.GetRange(); err != nil || r != Range4Gauss {
		t.Errorf("Expected ±4 gauss, got %v (err %v)", r, err)
	}
	if om, err := d.GetOperationMode(); err != nil || om != ContinuousMode {
		t.Errorf("Expected continuous mode, got %v (err %v)", om, err)
	}
}

func TestBeginWrongIdentity(t *testing.T) {
	m := newMemTransport()
	m.regs[regWhoAmI] = 0x42
	d := New()

	err := d.begin(m)
	if !errors.Is(err, ErrInvalidDevice) {
		t.Fatalf("Expected ErrInvalidDevice, got %v", err)
	}
	if d.Ready() {
		t.Error("Expected device not ready after identity mismatch")
	}
	if len(m.writes) != 0 {
		t.Errorf("Expected no register writes after identity mismatch, got %d", len(m.writes))
	}
}

func TestBeginOpenFailure(t *testing.T) {
	m := newMemTransport()
	m.openErr = errors.New("bus unavailable")
	d := New()

	if err := d.begin(m); !errors.Is(err, m.openErr) {
		t.Fatalf("Expected open error, got %v", err)
	}
	if d.Ready() {
		t.Error("Expected device not ready after open failure")
	}
}

func TestUnbound(t *testing.T) {
	d := New()

	if err := d.Read(); !errors.Is(err, ErrNoTransport) {
		t.Errorf("Expected ErrNoTransport from Read, got %v", err)
	}
	if err := d.SetRange(Range8Gauss); !errors.Is(err, ErrNoTransport) {
		t.Errorf("Expected ErrNoTransport from SetRange, got %v", err)
	}
	if _, err := d.DataReady(); !errors.Is(err, ErrNoTransport) {
		t.Errorf("Expected ErrNoTransport from DataReady, got %v", err)
	}
	if _, _, _, err := d.ReadField(); !errors.Is(err, ErrNoTransport) {
		t.Errorf("Expected ErrNoTransport from ReadField, got %v", err)
	}
	if err := d.Halt(); err != nil {
		t.Errorf("Expected Halt on unbound device to be a no-op, got %v", err)
	}
	if got := d.String(); got != "LIS3MDL{unbound}" {
		t.Errorf("Expected unbound string, got %q", got)
	}
}

func TestReadConversion(t *testing.T) {
	tests := []struct {
		r     Range
		scale float64
	}{
		{Range4Gauss, 6842},
		{Range8Gauss, 3421},
		{Range12Gauss, 2281},
		{Range16Gauss, 1711},
	}

	d, m := newTestDev(t)
	setSample(m, 1000, -2000, 500)

	for _, tt := range tests {
		t.Run(tt.r.String(), func(t *testing.T) {
			if err := d.SetRange(tt.r); err != nil {
				t.Fatalf("SetRange failed: %v", err)
			}
			if err := d.Read(); err != nil {
				t.Fatalf("Read failed: %v", err)
			}
			rx, ry, rz := d.Raw()
			if rx != 1000 || ry != -2000 || rz != 500 {
				t.Errorf("Expected raw (1000,-2000,500), got (%d,%d,%d)", rx, ry, rz)
			}
			x, y, z := d.Gauss()
			wantX, wantY, wantZ := 1000/tt.scale, -2000/tt.scale, 500/tt.scale
			if math.Abs(x-wantX) > 1e-12 || math.Abs(y-wantY) > 1e-12 || math.Abs(z-wantZ) > 1e-12 {
				t.Errorf("Expected (%v,%v,%v) gauss, got (%v,%v,%v)", wantX, wantY, wantZ, x, y, z)
			}
		})
	}
}

func TestReadFieldIgnoresRange(t *testing.T) {
	// ReadField converts with the ±4 gauss scale no matter what range is
	// configured, so the same raw sample yields the same µT at every range.
	d, m := newTestDev(t)
	setSample(m, 1000, -2000, 500)

	for _, r := range []Range{Range4Gauss, Range8Gauss, Range12Gauss, Range16Gauss} {
		t.Run(r.String(), func(t *testing.T) {
			if err := d.SetRange(r); err != nil {
				t.Fatalf("SetRange failed: %v", err)
			}
			x, y, z, err := d.ReadField()
			if err != nil {
				t.Fatalf("ReadField failed: %v", err)
			}
			if math.Abs(x-12.20703125) > 1e-12 {
				t.Errorf("Expected x 12.20703125, got %v", x)
			}
			if math.Abs(y+24.4140625) > 1e-12 {
				t.Errorf("Expected y -24.4140625, got %v", y)
			}
			if math.Abs(z-6.103515625) > 1e-12 {
				t.Errorf("Expected z 6.103515625, got %v", z)
			}
		})
	}
}

func TestReadFieldNaNOnFailure(t *testing.T) {
	d, m := newTestDev(t)
	m.readErr = errors.New("bus gone")

	x, y, z, err := d.ReadField()
	if err == nil {
		t.Fatal("Expected an error")
	}
	if !math.IsNaN(x) || !math.IsNaN(y) || !math.IsNaN(z) {
		t.Errorf("Expected NaN values on failure, got (%v,%v,%v)", x, y, z)
	}
}

func TestReadFailureKeepsLastSample(t *testing.T) {
	d, m := newTestDev(t)
	setSample(m, 100, 200, 300)
	if err := d.Read(); err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	m.readErr = errors.New("bus gone")
	if err := d.Read(); err == nil {
		t.Fatal("Expected an error")
	}
	if x, y, z := d.Raw(); x != 100 || y != 200 || z != 300 {
		t.Errorf("Expected previous sample to be kept, got (%d,%d,%d)", x, y, z)
	}
}

func TestDataRatePerformancePairing(t *testing.T) {
	tests := []struct {
		rate DataRate
		want PerformanceMode
	}{
		// The eight plain rates leave the mode where it was.
		{DataRate0_625Hz, MediumMode},
		{DataRate1_25Hz, MediumMode},
		{DataRate2_5Hz, MediumMode},
		{DataRate5Hz, MediumMode},
		{DataRate10Hz, MediumMode},
		{DataRate20Hz, MediumMode},
		{DataRate40Hz, MediumMode},
		{DataRate80Hz, MediumMode},
		// The four fast rates force their paired mode.
		{DataRate155Hz, UltraHighMode},
		{DataRate300Hz, HighMode},
		{DataRate560Hz, MediumMode},
		{DataRate1000Hz, LowPowerMode},
	}

	d, m := newTestDev(t)
	for _, tt := range tests {
		t.Run(tt.rate.String(), func(t *testing.T) {
			if err := d.SetPerformanceMode(MediumMode); err != nil {
				t.Fatalf("SetPerformanceMode failed: %v", err)
			}
			if err := d.SetDataRate(tt.rate); err != nil {
				t.Fatalf("SetDataRate failed: %v", err)
			}
			if dr, err := d.GetDataRate(); err != nil || dr != tt.rate {
				t.Errorf("Expected rate %v, got %v (err %v)", tt.rate, dr, err)
			}
			if pm, err := d.GetPerformanceMode(); err != nil || pm != tt.want {
				t.Errorf("Expected mode %v, got %v (err %v)", tt.want, pm, err)
			}
			// The Z axis field must follow the X/Y one.
			if gotZ := (m.regs[regCtrl4] >> 2) & 0x03; gotZ != byte(tt.want) {
				t.Errorf("Expected Z mode bits %02b, got %02b", byte(tt.want), gotZ)
			}
		})
	}
}

func TestBitFieldWritePreservesNeighbors(t *testing.T) {
	d, m := newTestDev(t)

	m.regs[regCtrl1] = 0xFF
	if err := d.writeBits(regCtrl1, 4, 1, 0); err != nil {
		t.Fatalf("writeBits failed: %v", err)
	}
	if got := m.regs[regCtrl1]; got != 0xE1 {
		t.Errorf("Expected 0xE1, got 0x%02X", got)
	}

	m.regs[regCtrl1] = 0x00
	if err := d.writeBits(regCtrl1, 2, 5, 0b11); err != nil {
		t.Fatalf("writeBits failed: %v", err)
	}
	if got := m.regs[regCtrl1]; got != 0x60 {
		t.Errorf("Expected 0x60, got 0x%02X", got)
	}
	if got, err := d.readBits(regCtrl1, 2, 5); err != nil || got != 0b11 {
		t.Errorf("Expected field value 0b11, got %02b (err %v)", got, err)
	}

	// Values wider than the field must be masked down, not smeared.
	m.regs[regCtrl3] = 0xA8
	if err := d.writeBits(regCtrl3, 2, 0, 0xFF); err != nil {
		t.Fatalf("writeBits failed: %v", err)
	}
	if got := m.regs[regCtrl3]; got != 0xAB {
		t.Errorf("Expected 0xAB, got 0x%02X", got)
	}
}

func TestSelfTestSharesRegister(t *testing.T) {
	d, m := newTestDev(t)
	if err := d.SetDataRate(DataRate300Hz); err != nil {
		t.Fatalf("SetDataRate failed: %v", err)
	}

	if err := d.SelfTest(true); err != nil {
		t.Fatalf("SelfTest failed: %v", err)
	}
	if m.regs[regCtrl1]&0x01 == 0 {
		t.Error("Expected self-test bit set")
	}
	if dr, _ := d.GetDataRate(); dr != DataRate300Hz {
		t.Errorf("Expected rate to survive self-test toggle, got %v", dr)
	}
	if pm, _ := d.GetPerformanceMode(); pm != HighMode {
		t.Errorf("Expected mode to survive self-test toggle, got %v", pm)
	}

	if err := d.SelfTest(false); err != nil {
		t.Fatalf("SelfTest failed: %v", err)
	}
	if m.regs[regCtrl1]&0x01 != 0 {
		t.Error("Expected self-test bit cleared")
	}
}

func TestRangeCacheRefreshedByReset(t *testing.T) {
	d, m := newTestDev(t)
	if err := d.SetRange(Range16Gauss); err != nil {
		t.Fatalf("SetRange failed: %v", err)
	}

	// A reset reverts the range register to its power-on default behind the
	// driver's back; the cache must be re-read, not assumed.
	m.regs[regCtrl2] = 0x00
	if err := d.Reset(); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if d.rangeBuffered != Range4Gauss {
		t.Fatalf("Expected cached range ±4 gauss after reset, got %v", d.rangeBuffered)
	}

	setSample(m, 1000, 0, 0)
	if err := d.Read(); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	x, _, _ := d.Gauss()
	if want := 1000.0 / 6842.0; math.Abs(x-want) > 1e-12 {
		t.Errorf("Expected %v gauss, got %v", want, x)
	}
}

func TestResetSetsSoftResetBit(t *testing.T) {
	d, m := newTestDev(t)
	m.writes = nil

	if err := d.Reset(); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if len(m.writes) == 0 {
		t.Fatal("Expected a register write")
	}
	w := m.writes[0]
	if w.reg != regCtrl2 || len(w.data) != 1 || w.data[0]&0x04 == 0 {
		t.Errorf("Expected soft-reset bit write to CTRL_REG2, got reg 0x%02X data %v", w.reg, w.data)
	}
}

func TestConfigureInterrupt(t *testing.T) {
	tests := []struct {
		name                    string
		x, y, z, pol, latch, en bool
		want                    byte
	}{
		{"all off", false, false, false, false, false, false, 0x08},
		{"x", true, false, false, false, false, false, 0x88},
		{"y", false, true, false, false, false, false, 0x48},
		{"z", false, false, true, false, false, false, 0x28},
		{"polarity", false, false, false, true, false, false, 0x0C},
		{"latch", false, false, false, false, true, false, 0x0A},
		{"enable", false, false, false, false, false, true, 0x09},
		{"all on", true, true, true, true, true, true, 0xEF},
	}

	d, m := newTestDev(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := d.ConfigureInterrupt(tt.x, tt.y, tt.z, tt.pol, tt.latch, tt.en); err != nil {
				t.Fatalf("ConfigureInterrupt failed: %v", err)
			}
			if got := m.regs[regIntCfg]; got != tt.want {
				t.Errorf("Expected 0x%02X, got 0x%02X", tt.want, got)
			}
		})
	}
}

func TestIntThreshold(t *testing.T) {
	d, m := newTestDev(t)

	// The top bit is reserved and must be forced clear.
	if err := d.SetIntThreshold(0xFFFF); err != nil {
		t.Fatalf("SetIntThreshold failed: %v", err)
	}
	if got := m.regs[regIntThsL]; got != 0xFF {
		t.Errorf("Expected low byte 0xFF, got 0x%02X", got)
	}
	if got := m.regs[regIntThsL+1]; got != 0x7F {
		t.Errorf("Expected high byte 0x7F, got 0x%02X", got)
	}
	if v, err := d.GetIntThreshold(); err != nil || v != 0x7FFF {
		t.Errorf("Expected 0x7FFF, got 0x%04X (err %v)", v, err)
	}

	if err := d.SetIntThreshold(1234); err != nil {
		t.Fatalf("SetIntThreshold failed: %v", err)
	}
	if v, err := d.GetIntThreshold(); err != nil || v != 1234 {
		t.Errorf("Expected 1234, got %d (err %v)", v, err)
	}
	// Both bytes go out in one auto-incrementing transfer.
	last := m.writes[len(m.writes)-1]
	if last.reg != regIntThsL || len(last.data) != 2 {
		t.Errorf("Expected a single 2-byte write at 0x%02X, got reg 0x%02X data %v", regIntThsL, last.reg, last.data)
	}
}

func TestDataReady(t *testing.T) {
	tests := []struct {
		status byte
		want   bool
	}{
		{0x00, false},
		{0x08, true},
		{0xF7, false},
		{0xFF, true},
	}

	d, m := newTestDev(t)
	for _, tt := range tests {
		m.regs[regStatus] = tt.status
		got, err := d.DataReady()
		if err != nil {
			t.Fatalf("DataReady failed: %v", err)
		}
		if got != tt.want {
			t.Errorf("Expected %v for status 0x%02X, got %v", tt.want, tt.status, got)
		}
	}
}

func TestSampleRate(t *testing.T) {
	rates := []DataRate{
		DataRate0_625Hz, DataRate1_25Hz, DataRate2_5Hz, DataRate5Hz,
		DataRate10Hz, DataRate20Hz, DataRate40Hz, DataRate80Hz,
		DataRate155Hz, DataRate300Hz, DataRate560Hz, DataRate1000Hz,
	}

	d, _ := newTestDev(t)
	for _, dr := range rates {
		if err := d.SetDataRate(dr); err != nil {
			t.Fatalf("SetDataRate failed: %v", err)
		}
		got, err := d.SampleRate()
		if err != nil {
			t.Fatalf("SampleRate failed: %v", err)
		}
		if got != dr.Frequency() {
			t.Errorf("Expected %v for %v, got %v", dr.Frequency(), dr, got)
		}
	}
	if DataRate0_625Hz.Frequency() != 625*physic.MilliHertz {
		t.Errorf("Expected 625 mHz, got %v", DataRate0_625Hz.Frequency())
	}
	if DataRate155Hz.Frequency() != 155*physic.Hertz {
		t.Errorf("Expected 155 Hz, got %v", DataRate155Hz.Frequency())
	}
}

func TestEvent(t *testing.T) {
	d, m := newTestDev(t)
	setSample(m, 1000, -2000, 500)

	before := time.Now()
	ev, err := d.Event()
	if err != nil {
		t.Fatalf("Event failed: %v", err)
	}
	if ev.Type != "magnetic field" {
		t.Errorf("Expected magnetic field type, got %q", ev.Type)
	}
	if ev.SensorID != 0 {
		t.Errorf("Expected sensor ID 0, got %d", ev.SensorID)
	}
	if ev.Time.Before(before) {
		t.Errorf("Expected timestamp at or after %v, got %v", before, ev.Time)
	}
	// µT is gauss × 100 at the configured ±4 gauss range.
	if want := 1000.0 / 6842.0 * 100.0; math.Abs(ev.X-want) > 1e-12 {
		t.Errorf("Expected X %v µT, got %v", want, ev.X)
	}
	if want := -2000.0 / 6842.0 * 100.0; math.Abs(ev.Y-want) > 1e-12 {
		t.Errorf("Expected Y %v µT, got %v", want, ev.Y)
	}
}

func TestInfo(t *testing.T) {
	d, _ := newTestDev(t)

	info := d.Info()
	if info.Name != "LIS3MDL" {
		t.Errorf("Expected name LIS3MDL, got %q", info.Name)
	}
	if info.Version != 1 {
		t.Errorf("Expected version 1, got %d", info.Version)
	}
	if info.MinValue != -1600 || info.MaxValue != 1600 {
		t.Errorf("Expected ±1600 µT range, got %v..%v", info.MinValue, info.MaxValue)
	}
	if info.Resolution != 0.015 {
		t.Errorf("Expected 0.015 µT resolution, got %v", info.Resolution)
	}
	if info.MinDelay != 0 {
		t.Errorf("Expected zero min delay, got %v", info.MinDelay)
	}
}

func TestHaltPowersDown(t *testing.T) {
	d, m := newTestDev(t)

	if err := d.Halt(); err != nil {
		t.Fatalf("Halt failed: %v", err)
	}
	if got := m.regs[regCtrl3] & 0x03; got != byte(PowerDownMode) {
		t.Errorf("Expected power-down mode bits, got %02b", got)
	}
	if om, err := d.GetOperationMode(); err != nil || om != PowerDownMode {
		t.Errorf("Expected power-down mode, got %v (err %v)", om, err)
	}
}

func TestRebindReplacesTransport(t *testing.T) {
	d, _ := newTestDev(t)

	bad := newMemTransport()
	bad.regs[regWhoAmI] = 0x00
	if err := d.begin(bad); !errors.Is(err, ErrInvalidDevice) {
		t.Fatalf("Expected ErrInvalidDevice, got %v", err)
	}
	if d.Ready() {
		t.Error("Expected device not ready after failed rebind")
	}

	bad.regs[regWhoAmI] = deviceID
	if err := d.begin(bad); err != nil {
		t.Fatalf("Expected rebind to succeed, got %v", err)
	}
	if !d.Ready() {
		t.Error("Expected device ready after successful rebind")
	}
	if got := d.String(); got != "LIS3MDL{mem}" {
		t.Errorf("Expected LIS3MDL{mem}, got %q", got)
	}
}

func TestRawRegisterAccess(t *testing.T) {
	d, m := newTestDev(t)

	if err := d.WriteRegister(regIntCfg, 0xA8); err != nil {
		t.Fatalf("WriteRegister failed: %v", err)
	}
	if got, err := d.ReadRegister(regIntCfg); err != nil || got != 0xA8 {
		t.Errorf("Expected 0xA8, got 0x%02X (err %v)", got, err)
	}

	setSample(m, 258, 772, 1286)
	var buf [6]byte
	if err := d.ReadRegisters(regOutXL, buf[:]); err != nil {
		t.Fatalf("ReadRegisters failed: %v", err)
	}
	if buf[0] != 0x02 || buf[1] != 0x01 {
		t.Errorf("Expected X bytes 0x02/0x01, got 0x%02X/0x%02X", buf[0], buf[1])
	}
}

func TestSettingStrings(t *testing.T) {
	if got := Range12Gauss.String(); got != "±12 gauss" {
		t.Errorf("Expected ±12 gauss, got %q", got)
	}
	if got := UltraHighMode.String(); got != "ultra-high" {
		t.Errorf("Expected ultra-high, got %q", got)
	}
	if got := PowerDownMode.String(); got != "power-down" {
		t.Errorf("Expected power-down, got %q", got)
	}
	if got := DataRate80Hz.String(); got != "80Hz" {
		t.Errorf("Expected 80Hz, got %q", got)
	}
}
