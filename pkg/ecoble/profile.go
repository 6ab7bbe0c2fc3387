package ecoble

import (
	"strings"
)

// Device model discriminated by advertised service UUID.
type Model string

// Device family. Used as topic/route fragment.
type Family string

const (
	MODEL_ECO_ENERGY_PRO Model = "ECO_ENERGY_PRO"
	MODEL_SMART_METER    Model = "SMART_METER"
	MODEL_ECO_BIN_PRO    Model = "ECO_BIN_PRO"
	MODEL_SMART_RECYCLER Model = "SMART_RECYCLER"

	FAMILY_MONITOR Family = "monitor"
	FAMILY_BIN     Family = "bin"
)

const (
	SERVICE_UUID_ECO_ENERGY_PRO = "0000ee00-0000-1000-8000-00805f9b34fb"
	SERVICE_UUID_SMART_METER    = "0000ee01-0000-1000-8000-00805f9b34fb"
	SERVICE_UUID_ECO_BIN_PRO    = "000000ff-0000-1000-8000-00805f9b34fb"
	SERVICE_UUID_SMART_RECYCLER = "0000aa00-0000-1000-8000-00805f9b34fb"

	CHAR_UUID_POWER           = "0000ee10-0000-1000-8000-00805f9b34fb"
	CHAR_UUID_VOLTAGE         = "0000ee11-0000-1000-8000-00805f9b34fb"
	CHAR_UUID_CURRENT         = "0000ee12-0000-1000-8000-00805f9b34fb"
	CHAR_UUID_ENERGY          = "0000ee13-0000-1000-8000-00805f9b34fb"
	CHAR_UUID_FREQUENCY       = "0000ee14-0000-1000-8000-00805f9b34fb"
	CHAR_UUID_POWER_FACTOR    = "0000ee15-0000-1000-8000-00805f9b34fb"
	CHAR_UUID_MONITOR_BATTERY = "0000ee16-0000-1000-8000-00805f9b34fb"
	CHAR_UUID_APPLIANCE       = "0000ee17-0000-1000-8000-00805f9b34fb"
	CHAR_UUID_ENERGY_SETTINGS = "0000ee1f-0000-1000-8000-00805f9b34fb"

	CHAR_UUID_WEIGHT       = "0000ff01-0000-1000-8000-00805f9b34fb"
	CHAR_UUID_FILL_LEVEL   = "0000ff02-0000-1000-8000-00805f9b34fb"
	CHAR_UUID_BIN_BATTERY  = "0000ff03-0000-1000-8000-00805f9b34fb"
	CHAR_UUID_LID_STATUS   = "0000ff04-0000-1000-8000-00805f9b34fb"
	CHAR_UUID_MATERIAL     = "0000ff05-0000-1000-8000-00805f9b34fb"
	CHAR_UUID_BIN_SETTINGS = "0000ff0f-0000-1000-8000-00805f9b34fb"
)

// Field is the semantic tag of a characteristic payload.
type Field int

const (
	FIELD_UNKNOWN Field = iota
	FIELD_POWER
	FIELD_VOLTAGE
	FIELD_CURRENT
	FIELD_ENERGY
	FIELD_FREQUENCY
	FIELD_POWER_FACTOR
	FIELD_BATTERY_LEVEL
	FIELD_APPLIANCE
	FIELD_WEIGHT
	FIELD_FILL_LEVEL
	FIELD_LID_STATUS
	FIELD_MATERIAL_TYPE
	FIELD_ENERGY_SETTINGS
	FIELD_BIN_SETTINGS
)

func (f Field) String() string {
	switch f {
	case FIELD_POWER:
		return "power"
	case FIELD_VOLTAGE:
		return "voltage"
	case FIELD_CURRENT:
		return "current"
	case FIELD_ENERGY:
		return "energy"
	case FIELD_FREQUENCY:
		return "frequency"
	case FIELD_POWER_FACTOR:
		return "power_factor"
	case FIELD_BATTERY_LEVEL:
		return "battery_level"
	case FIELD_APPLIANCE:
		return "appliance"
	case FIELD_WEIGHT:
		return "weight"
	case FIELD_FILL_LEVEL:
		return "fill_level"
	case FIELD_LID_STATUS:
		return "lid_status"
	case FIELD_MATERIAL_TYPE:
		return "material_type"
	case FIELD_ENERGY_SETTINGS:
		return "energy_settings"
	case FIELD_BIN_SETTINGS:
		return "bin_settings"
	default:
		return "unknown"
	}
}

var energyModelByService = map[string]Model{
	SERVICE_UUID_ECO_ENERGY_PRO: MODEL_ECO_ENERGY_PRO,
	SERVICE_UUID_SMART_METER:    MODEL_SMART_METER,
}

var binModelByService = map[string]Model{
	SERVICE_UUID_ECO_BIN_PRO:    MODEL_ECO_BIN_PRO,
	SERVICE_UUID_SMART_RECYCLER: MODEL_SMART_RECYCLER,
}

var serviceByModel = map[Model]string{
	MODEL_ECO_ENERGY_PRO: SERVICE_UUID_ECO_ENERGY_PRO,
	MODEL_SMART_METER:    SERVICE_UUID_SMART_METER,
	MODEL_ECO_BIN_PRO:    SERVICE_UUID_ECO_BIN_PRO,
	MODEL_SMART_RECYCLER: SERVICE_UUID_SMART_RECYCLER,
}

var energyFieldByChar = map[string]Field{
	CHAR_UUID_POWER:           FIELD_POWER,
	CHAR_UUID_VOLTAGE:         FIELD_VOLTAGE,
	CHAR_UUID_CURRENT:         FIELD_CURRENT,
	CHAR_UUID_ENERGY:          FIELD_ENERGY,
	CHAR_UUID_FREQUENCY:       FIELD_FREQUENCY,
	CHAR_UUID_POWER_FACTOR:    FIELD_POWER_FACTOR,
	CHAR_UUID_MONITOR_BATTERY: FIELD_BATTERY_LEVEL,
	CHAR_UUID_APPLIANCE:       FIELD_APPLIANCE,
	CHAR_UUID_ENERGY_SETTINGS: FIELD_ENERGY_SETTINGS,
}

var binFieldByChar = map[string]Field{
	CHAR_UUID_WEIGHT:       FIELD_WEIGHT,
	CHAR_UUID_FILL_LEVEL:   FIELD_FILL_LEVEL,
	CHAR_UUID_BIN_BATTERY:  FIELD_BATTERY_LEVEL,
	CHAR_UUID_LID_STATUS:   FIELD_LID_STATUS,
	CHAR_UUID_MATERIAL:     FIELD_MATERIAL_TYPE,
	CHAR_UUID_BIN_SETTINGS: FIELD_BIN_SETTINGS,
}

// Telemetry characteristics read on connect and on periodic refresh.
// Settings characteristics are excluded: those are written, not polled.
var energyTelemetryChars = []string{
	CHAR_UUID_POWER,
	CHAR_UUID_VOLTAGE,
	CHAR_UUID_CURRENT,
	CHAR_UUID_ENERGY,
	CHAR_UUID_FREQUENCY,
	CHAR_UUID_POWER_FACTOR,
	CHAR_UUID_MONITOR_BATTERY,
	CHAR_UUID_APPLIANCE,
}

var binTelemetryChars = []string{
	CHAR_UUID_WEIGHT,
	CHAR_UUID_FILL_LEVEL,
	CHAR_UUID_BIN_BATTERY,
	CHAR_UUID_LID_STATUS,
	CHAR_UUID_MATERIAL,
}

var applianceLabels = map[uint8]string{
	1:  "fridge",
	2:  "washing machine",
	3:  "dishwasher",
	4:  "oven",
	5:  "microwave",
	6:  "kettle",
	7:  "television",
	8:  "computer",
	9:  "heater",
	10: "air conditioner",
}

var materialLabels = map[uint8]string{
	1: "plastic",
	2: "paper",
	3: "glass",
	4: "metal",
	5: "organic",
	6: "electronic",
}

func normalizeUUID(uuid string) string {
	return strings.ToLower(strings.TrimSpace(uuid))
}

// EnergyModelFor maps a candidate's advertised service UUIDs to an energy
// monitor model. First matching UUID in the candidate's declared order wins.
func EnergyModelFor(serviceUUIDs []string) (Model, bool) {
	for _, uuid := range serviceUUIDs {
		if model, ok := energyModelByService[normalizeUUID(uuid)]; ok {
			return model, true
		}
	}
	return "", false
}

// BinModelFor maps a candidate's advertised service UUIDs to a smart bin
// model. First matching UUID in the candidate's declared order wins.
func BinModelFor(serviceUUIDs []string) (Model, bool) {
	for _, uuid := range serviceUUIDs {
		if model, ok := binModelByService[normalizeUUID(uuid)]; ok {
			return model, true
		}
	}
	return "", false
}

func IsEnergyMonitor(serviceUUIDs []string) bool {
	_, ok := EnergyModelFor(serviceUUIDs)
	return ok
}

func IsSmartBin(serviceUUIDs []string) bool {
	_, ok := BinModelFor(serviceUUIDs)
	return ok
}

func ServiceUUIDForModel(model Model) (string, bool) {
	uuid, ok := serviceByModel[model]
	return uuid, ok
}

// FieldForCharacteristic resolves a characteristic UUID to its semantic
// field tag, across both families.
func FieldForCharacteristic(charUUID string) (Field, bool) {
	norm := normalizeUUID(charUUID)
	if field, ok := energyFieldByChar[norm]; ok {
		return field, true
	}
	if field, ok := binFieldByChar[norm]; ok {
		return field, true
	}
	return FIELD_UNKNOWN, false
}

// EnergyTelemetryCharacteristics returns the ordered characteristic UUIDs
// read to populate an energy monitor reading.
func EnergyTelemetryCharacteristics() []string {
	out := make([]string, len(energyTelemetryChars))
	copy(out, energyTelemetryChars)
	return out
}

// BinTelemetryCharacteristics returns the ordered characteristic UUIDs read
// to populate a smart bin reading.
func BinTelemetryCharacteristics() []string {
	out := make([]string, len(binTelemetryChars))
	copy(out, binTelemetryChars)
	return out
}
