// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

// RegisterInfo describes a single device register for the debug tooling.
type RegisterInfo struct {
	Address     string
	Name        string
	Description string
	Access      string // "R", "W", "RW"
	Default     string
	BitFields   []BitField
}

// BitField describes one named field within a register.
type BitField struct {
	Bits        string `json:"bits"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Values      string `json:"values,omitempty"`
}

// getLIS3MDLRegisterMap returns metadata for all LIS3MDL registers.
// This provides register names, descriptions, access types, and bit field definitions.
func getLIS3MDLRegisterMap() []RegisterInfo {
	return []RegisterInfo{
		// Device Identification
		{Address: "0x0F", Name: "WHO_AM_I", Description: "Device ID (should be 0x3D)", Access: "R", Default: "0x3D"},

		// Control Registers
		{Address: "0x20", Name: "CTRL_REG1", Description: "Control 1 (rate, X/Y performance, self-test)", Access: "RW", Default: "0x10",
			BitFields: []BitField{
				{Bits: "7", Name: "TEMP_EN", Description: "Temperature sensor enable", Values: "0=Disabled, 1=Enabled"},
				{Bits: "6:5", Name: "OM", Description: "X and Y axes operative mode", Values: "0=Low power, 1=Medium, 2=High, 3=Ultra-high"},
				{Bits: "4:2", Name: "DO", Description: "Output data rate", Values: "0=0.625Hz, 1=1.25Hz, 2=2.5Hz, 3=5Hz, 4=10Hz, 5=20Hz, 6=40Hz, 7=80Hz"},
				{Bits: "1", Name: "FAST_ODR", Description: "Rates above 80 Hz, paired with OM", Values: "0=Disabled, 1=155/300/560/1000Hz by OM"},
				{Bits: "0", Name: "ST", Description: "Self-test", Values: "0=Disabled, 1=Enabled"},
			}},
		{Address: "0x21", Name: "CTRL_REG2", Description: "Control 2 (full scale, reset)", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "6:5", Name: "FS", Description: "Full scale selection", Values: "0=±4 gauss, 1=±8 gauss, 2=±12 gauss, 3=±16 gauss"},
				{Bits: "3", Name: "REBOOT", Description: "Reboot memory content", Values: "0=Normal, 1=Reboot"},
				{Bits: "2", Name: "SOFT_RST", Description: "Configuration and user register reset", Values: "0=Normal, 1=Reset"},
			}},
		{Address: "0x22", Name: "CTRL_REG3", Description: "Control 3 (power, SPI mode, operation mode)", Access: "RW", Default: "0x03",
			BitFields: []BitField{
				{Bits: "5", Name: "LP", Description: "Low-power mode (forces DO=0.625Hz)", Values: "0=Disabled, 1=Enabled"},
				{Bits: "2", Name: "SIM", Description: "SPI interface mode", Values: "0=4-wire, 1=3-wire"},
				{Bits: "1:0", Name: "MD", Description: "System operating mode", Values: "0=Continuous, 1=Single, 2/3=Power-down"},
			}},
		{Address: "0x23", Name: "CTRL_REG4", Description: "Control 4 (Z performance, endianness)", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "3:2", Name: "OMZ", Description: "Z axis operative mode", Values: "0=Low power, 1=Medium, 2=High, 3=Ultra-high"},
				{Bits: "1", Name: "BLE", Description: "Data byte order", Values: "0=Little endian, 1=Big endian"},
			}},
		{Address: "0x24", Name: "CTRL_REG5", Description: "Control 5 (fast read, block data update)", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "7", Name: "FAST_READ", Description: "Read the high byte only", Values: "0=Disabled, 1=Enabled"},
				{Bits: "6", Name: "BDU", Description: "Block data update", Values: "0=Continuous, 1=Wait until MSB and LSB read"},
			}},

		// Status
		{Address: "0x27", Name: "STATUS_REG", Description: "Data ready and overrun status", Access: "R", Default: "0x00",
			BitFields: []BitField{
				{Bits: "7", Name: "ZYXOR", Description: "X, Y and Z data overrun", Values: ""},
				{Bits: "6", Name: "ZOR", Description: "Z data overrun", Values: ""},
				{Bits: "5", Name: "YOR", Description: "Y data overrun", Values: ""},
				{Bits: "4", Name: "XOR", Description: "X data overrun", Values: ""},
				{Bits: "3", Name: "ZYXDA", Description: "X, Y and Z new data available", Values: "0=Not ready, 1=Data ready"},
				{Bits: "2", Name: "ZDA", Description: "Z new data available", Values: ""},
				{Bits: "1", Name: "YDA", Description: "Y new data available", Values: ""},
				{Bits: "0", Name: "XDA", Description: "X new data available", Values: ""},
			}},

		// Output Data Registers (Read-Only)
		{Address: "0x28", Name: "OUT_X_L", Description: "Magnetometer X-Axis Low Byte", Access: "R"},
		{Address: "0x29", Name: "OUT_X_H", Description: "Magnetometer X-Axis High Byte", Access: "R"},
		{Address: "0x2A", Name: "OUT_Y_L", Description: "Magnetometer Y-Axis Low Byte", Access: "R"},
		{Address: "0x2B", Name: "OUT_Y_H", Description: "Magnetometer Y-Axis High Byte", Access: "R"},
		{Address: "0x2C", Name: "OUT_Z_L", Description: "Magnetometer Z-Axis Low Byte", Access: "R"},
		{Address: "0x2D", Name: "OUT_Z_H", Description: "Magnetometer Z-Axis High Byte", Access: "R"},
		{Address: "0x2E", Name: "TEMP_OUT_L", Description: "Temperature Low Byte", Access: "R"},
		{Address: "0x2F", Name: "TEMP_OUT_H", Description: "Temperature High Byte", Access: "R"},

		// Interrupt Configuration
		{Address: "0x30", Name: "INT_CFG", Description: "Interrupt configuration", Access: "RW", Default: "0x08",
			BitFields: []BitField{
				{Bits: "7", Name: "XIEN", Description: "X axis interrupt generation", Values: "0=Disabled, 1=Enabled"},
				{Bits: "6", Name: "YIEN", Description: "Y axis interrupt generation", Values: "0=Disabled, 1=Enabled"},
				{Bits: "5", Name: "ZIEN", Description: "Z axis interrupt generation", Values: "0=Disabled, 1=Enabled"},
				{Bits: "3", Name: "RESERVED", Description: "Reserved", Values: "Always 1"},
				{Bits: "2", Name: "IEA", Description: "Interrupt active level", Values: "0=Active low, 1=Active high"},
				{Bits: "1", Name: "LIR", Description: "Latch interrupt request", Values: "0=Latched, 1=Not latched"},
				{Bits: "0", Name: "IEN", Description: "Interrupt enable on INT pin", Values: "0=Disabled, 1=Enabled"},
			}},
		{Address: "0x31", Name: "INT_SRC", Description: "Interrupt source", Access: "R", Default: "0x00",
			BitFields: []BitField{
				{Bits: "7", Name: "PTH_X", Description: "X exceeds threshold, positive side", Values: ""},
				{Bits: "6", Name: "PTH_Y", Description: "Y exceeds threshold, positive side", Values: ""},
				{Bits: "5", Name: "PTH_Z", Description: "Z exceeds threshold, positive side", Values: ""},
				{Bits: "4", Name: "NTH_X", Description: "X exceeds threshold, negative side", Values: ""},
				{Bits: "3", Name: "NTH_Y", Description: "Y exceeds threshold, negative side", Values: ""},
				{Bits: "2", Name: "NTH_Z", Description: "Z exceeds threshold, negative side", Values: ""},
				{Bits: "1", Name: "MROI", Description: "Internal measurement range overflow", Values: ""},
				{Bits: "0", Name: "INT", Description: "Interrupt event occurred", Values: ""},
			}},
		{Address: "0x32", Name: "INT_THS_L", Description: "Interrupt threshold low byte", Access: "RW", Default: "0x00"},
		{Address: "0x33", Name: "INT_THS_H", Description: "Interrupt threshold high byte (bit 7 must be 0)", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "7", Name: "RESERVED", Description: "Reserved", Values: "Always 0"},
				{Bits: "6:0", Name: "THS", Description: "Threshold high bits", Values: "0-127"},
			}},
	}
}
