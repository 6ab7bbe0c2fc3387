package ecoble

import (
	"errors"
	"fmt"
)

var ErrSettingsLength = errors.New("settings blob length mismatch")

// Settings blobs are fixed-layout packed records. Field order and widths are
// the firmware contract; both encode and decode walk the layout positionally
// and the total length is checked before decode. The codec does not clamp
// values, callers validate ranges.

// Energy monitor settings blob layout, 10 bytes:
//
//	0-1  reportingInterval  u16 seconds
//	2-3  highUsageThreshold u16 watts
//	4-5  standbyThreshold   u16 watts
//	6    applianceDetection u8  0/1
//	7    notifications      u8  0/1
//	8-9  costPerKwh         u16 cents
const ENERGY_SETTINGS_BLOB_SIZE = 10

// Smart bin settings blob layout, 8 bytes:
//
//	0    notifyWhenFull     u8  0/1
//	1    fullThreshold      u8  percent
//	2-3  weightCalibration  u16 thousandths
//	4    autoDetectMaterials u8 0/1
//	5    weightTracking     u8  0/1
//	6-7  lidCloseTimeout    u16 seconds
const BIN_SETTINGS_BLOB_SIZE = 8

// Opcode written to the bin settings characteristic to trigger a tare of the
// weight sensor.
const BIN_CALIBRATE_OPCODE byte = 0xC1

// EnergySettingsRecord is the wire form of the energy monitor settings.
type EnergySettingsRecord struct {
	ReportingIntervalSeconds uint16
	HighUsageThresholdWatt   uint16
	StandbyThresholdWatt     uint16
	ApplianceDetection       bool
	Notifications            bool
	CostPerKwhCents          uint16
}

// BinSettingsRecord is the wire form of the smart bin settings.
type BinSettingsRecord struct {
	NotifyWhenFull          bool
	FullThresholdPercent    uint8
	WeightCalibrationThous  uint16
	AutoDetectMaterials     bool
	WeightTracking          bool
	LidCloseTimeoutSeconds  uint16
}

func EncodeEnergySettings(rec EnergySettingsRecord) []byte {
	buf := make([]byte, ENERGY_SETTINGS_BLOB_SIZE)
	putUint16(buf[0:2], rec.ReportingIntervalSeconds)
	putUint16(buf[2:4], rec.HighUsageThresholdWatt)
	putUint16(buf[4:6], rec.StandbyThresholdWatt)
	buf[6] = boolByte(rec.ApplianceDetection)
	buf[7] = boolByte(rec.Notifications)
	putUint16(buf[8:10], rec.CostPerKwhCents)
	return buf
}

func DecodeEnergySettings(data []byte) (EnergySettingsRecord, error) {
	var rec EnergySettingsRecord
	if len(data) != ENERGY_SETTINGS_BLOB_SIZE {
		return rec, fmt.Errorf("%w: energy settings blob requires %d bytes, got %d",
			ErrSettingsLength, ENERGY_SETTINGS_BLOB_SIZE, len(data))
	}
	rec.ReportingIntervalSeconds = decodeUint16(data[0:2])
	rec.HighUsageThresholdWatt = decodeUint16(data[2:4])
	rec.StandbyThresholdWatt = decodeUint16(data[4:6])
	rec.ApplianceDetection = data[6] != 0
	rec.Notifications = data[7] != 0
	rec.CostPerKwhCents = decodeUint16(data[8:10])
	return rec, nil
}

func EncodeBinSettings(rec BinSettingsRecord) []byte {
	buf := make([]byte, BIN_SETTINGS_BLOB_SIZE)
	buf[0] = boolByte(rec.NotifyWhenFull)
	buf[1] = rec.FullThresholdPercent
	putUint16(buf[2:4], rec.WeightCalibrationThous)
	buf[4] = boolByte(rec.AutoDetectMaterials)
	buf[5] = boolByte(rec.WeightTracking)
	putUint16(buf[6:8], rec.LidCloseTimeoutSeconds)
	return buf
}

func DecodeBinSettings(data []byte) (BinSettingsRecord, error) {
	var rec BinSettingsRecord
	if len(data) != BIN_SETTINGS_BLOB_SIZE {
		return rec, fmt.Errorf("%w: bin settings blob requires %d bytes, got %d",
			ErrSettingsLength, BIN_SETTINGS_BLOB_SIZE, len(data))
	}
	rec.NotifyWhenFull = data[0] != 0
	rec.FullThresholdPercent = data[1]
	rec.WeightCalibrationThous = decodeUint16(data[2:4])
	rec.AutoDetectMaterials = data[4] != 0
	rec.WeightTracking = data[5] != 0
	rec.LidCloseTimeoutSeconds = decodeUint16(data[6:8])
	return rec, nil
}

// BinCalibrationCommand returns the frame written to the bin settings
// characteristic to calibrate the weight sensor.
func BinCalibrationCommand() []byte {
	return []byte{BIN_CALIBRATE_OPCODE, 0x00}
}
