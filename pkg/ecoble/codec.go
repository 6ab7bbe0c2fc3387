// Package ecoble implements the EcoCart BLE GATT profile: service and
// characteristic tables, the payload codec and the central contract used to
// talk to the devices.
package ecoble

// Telemetry payloads are big-endian. A buffer shorter than the field width
// decodes to zero/false/nil, never to an error.

func decodeUint8(data []byte) uint8 {
	if len(data) < 1 {
		return 0
	}
	return data[0]
}

func decodeUint16(data []byte) uint16 {
	if len(data) < 2 {
		return 0
	}
	return uint16(data[0])<<8 | uint16(data[1])
}

func decodeUint32(data []byte) uint32 {
	if len(data) < 4 {
		return 0
	}
	return uint32(data[0])<<24 | uint32(data[1])<<16 | uint32(data[2])<<8 | uint32(data[3])
}

func putUint16(buf []byte, value uint16) {
	buf[0] = byte(value >> 8)
	buf[1] = byte(value)
}

func boolByte(value bool) byte {
	if value {
		return 1
	}
	return 0
}

// DecodePower decodes an instantaneous power payload in watts.
func DecodePower(data []byte) float64 {
	return float64(decodeUint16(data))
}

// DecodeVoltage decodes a voltage payload. Raw value is decivolts.
func DecodeVoltage(data []byte) float64 {
	return float64(decodeUint16(data)) / 10
}

// DecodeCurrent decodes a current payload. Raw value is centiamps.
func DecodeCurrent(data []byte) float64 {
	return float64(decodeUint16(data)) / 100
}

// DecodeEnergyKWh decodes a cumulative energy payload. Raw value is Wh.
func DecodeEnergyKWh(data []byte) float64 {
	return float64(decodeUint32(data)) / 1000
}

// DecodeFrequency decodes a grid frequency payload in hertz.
func DecodeFrequency(data []byte) float64 {
	return float64(decodeUint8(data))
}

// DecodePowerFactor decodes a power factor payload. Raw 0-100 maps to 0.00-1.00.
func DecodePowerFactor(data []byte) float64 {
	return float64(decodeUint8(data)) / 100
}

// DecodeBatteryLevel decodes a battery percentage payload.
func DecodeBatteryLevel(data []byte) uint8 {
	return decodeUint8(data)
}

// DecodeWeight decodes a bin content weight payload in grams.
func DecodeWeight(data []byte) float64 {
	return float64(decodeUint16(data))
}

// DecodeFillLevel decodes a fill percentage payload.
func DecodeFillLevel(data []byte) uint8 {
	return decodeUint8(data)
}

// DecodeLidStatus decodes a lid status payload. Zero is closed, nonzero open.
func DecodeLidStatus(data []byte) bool {
	return decodeUint8(data) != 0
}

// DecodeAppliance decodes a firmware appliance classification code into its
// label. Unknown codes (including zero) decode to nil.
func DecodeAppliance(data []byte) *string {
	if label, ok := applianceLabels[decodeUint8(data)]; ok {
		return &label
	}
	return nil
}

// DecodeMaterial decodes a firmware material classification code into its
// label. Unknown codes (including zero) decode to nil.
func DecodeMaterial(data []byte) *string {
	if label, ok := materialLabels[decodeUint8(data)]; ok {
		return &label
	}
	return nil
}
