package lis3mdl

import (
	"fmt"

	"periph.io/x/conn/v3/physic"
)

// Register map, datasheet section 7.
const (
	regWhoAmI  = 0x0F
	regCtrl1   = 0x20 // TEMP_EN | OM[1:0] | DO[2:0] | FAST_ODR | ST
	regCtrl2   = 0x21 // FS[1:0] at 6:5, REBOOT at 3, SOFT_RST at 2
	regCtrl3   = 0x22 // MD[1:0] at 1:0
	regCtrl4   = 0x23 // OMZ[1:0] at 3:2
	regStatus  = 0x27
	regOutXL   = 0x28 // X low, X high, Y low, Y high, Z low, Z high
	regIntCfg  = 0x30
	regIntThsL = 0x32 // 16-bit threshold, low byte first
)

// deviceID is the WHO_AM_I value of a LIS3MDL.
const deviceID = 0x3D

// DefaultAddr is the I2C address with the SDO/SA1 pad pulled low. Boards
// that pull it high answer on 0x1E instead.
const DefaultAddr = 0x1C

// statusZYXDA is the data-ready flag for the full XYZ set.
const statusZYXDA = 0x08

// PerformanceMode trades noise against conversion time for the X/Y axes and,
// through a second register field, the Z axis. The driver always keeps the
// two fields identical.
type PerformanceMode uint8

const (
	LowPowerMode  PerformanceMode = 0b00
	MediumMode    PerformanceMode = 0b01
	HighMode      PerformanceMode = 0b10
	UltraHighMode PerformanceMode = 0b11
)

func (m PerformanceMode) String() string {
	switch m {
	case LowPowerMode:
		return "low power"
	case MediumMode:
		return "medium"
	case HighMode:
		return "high"
	case UltraHighMode:
		return "ultra-high"
	}
	return fmt.Sprintf("PerformanceMode(%d)", uint8(m))
}

// DataRate is the output data rate field of CTRL_REG1, including FAST_ODR.
// The four fast rates each imply a performance mode; setting one through
// SetDataRate applies the paired mode first.
type DataRate uint8

const (
	DataRate0_625Hz DataRate = 0b0000
	DataRate1_25Hz  DataRate = 0b0010
	DataRate2_5Hz   DataRate = 0b0100
	DataRate5Hz     DataRate = 0b0110
	DataRate10Hz    DataRate = 0b1000
	DataRate20Hz    DataRate = 0b1010
	DataRate40Hz    DataRate = 0b1100
	DataRate80Hz    DataRate = 0b1110
	DataRate155Hz   DataRate = 0b0001 // FAST_ODR, ultra-high
	DataRate300Hz   DataRate = 0b0011 // FAST_ODR, high
	DataRate560Hz   DataRate = 0b0101 // FAST_ODR, medium
	DataRate1000Hz  DataRate = 0b0111 // FAST_ODR, low power
)

// Frequency returns the nominal output rate, or 0 for an undefined code.
func (dr DataRate) Frequency() physic.Frequency {
	switch dr {
	case DataRate0_625Hz:
		return 625 * physic.MilliHertz
	case DataRate1_25Hz:
		return 1250 * physic.MilliHertz
	case DataRate2_5Hz:
		return 2500 * physic.MilliHertz
	case DataRate5Hz:
		return 5 * physic.Hertz
	case DataRate10Hz:
		return 10 * physic.Hertz
	case DataRate20Hz:
		return 20 * physic.Hertz
	case DataRate40Hz:
		return 40 * physic.Hertz
	case DataRate80Hz:
		return 80 * physic.Hertz
	case DataRate155Hz:
		return 155 * physic.Hertz
	case DataRate300Hz:
		return 300 * physic.Hertz
	case DataRate560Hz:
		return 560 * physic.Hertz
	case DataRate1000Hz:
		return 1000 * physic.Hertz
	}
	return 0
}

func (dr DataRate) String() string {
	if f := dr.Frequency(); f != 0 {
		return f.String()
	}
	return fmt.Sprintf("DataRate(0b%04b)", uint8(dr))
}

// fastModePair returns the performance mode implied by a fast-ODR rate.
func (dr DataRate) fastModePair() (PerformanceMode, bool) {
	switch dr {
	case DataRate155Hz:
		return UltraHighMode, true
	case DataRate300Hz:
		return HighMode, true
	case DataRate560Hz:
		return MediumMode, true
	case DataRate1000Hz:
		return LowPowerMode, true
	}
	return 0, false
}

// Range selects the measurement full scale and with it the sensitivity used
// to convert raw counts to gauss.
type Range uint8

const (
	Range4Gauss  Range = 0b00 // power-on default
	Range8Gauss  Range = 0b01
	Range12Gauss Range = 0b10
	Range16Gauss Range = 0b11
)

// LSBPerGauss returns the sensitivity divisor for the range, datasheet
// table 3.
func (r Range) LSBPerGauss() float64 {
	switch r {
	case Range16Gauss:
		return 1711
	case Range12Gauss:
		return 2281
	case Range8Gauss:
		return 3421
	case Range4Gauss:
		return 6842
	}
	return 1
}

func (r Range) String() string {
	switch r {
	case Range4Gauss:
		return "±4 gauss"
	case Range8Gauss:
		return "±8 gauss"
	case Range12Gauss:
		return "±12 gauss"
	case Range16Gauss:
		return "±16 gauss"
	}
	return fmt.Sprintf("Range(%d)", uint8(r))
}

// OperationMode is the conversion mode field of CTRL_REG3. Note that 0b10
// is a second power-down encoding on the device; the driver only ever
// writes the three named values.
type OperationMode uint8

const (
	ContinuousMode OperationMode = 0b00
	SingleMode     OperationMode = 0b01
	PowerDownMode  OperationMode = 0b11
)

func (m OperationMode) String() string {
	switch m {
	case ContinuousMode:
		return "continuous"
	case SingleMode:
		return "single-shot"
	case PowerDownMode:
		return "power-down"
	}
	return fmt.Sprintf("OperationMode(%d)", uint8(m))
}
