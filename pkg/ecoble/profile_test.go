package ecoble

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnergyModelResolution(t *testing.T) {

	assert := assert.New(t)

	model, ok := EnergyModelFor([]string{SERVICE_UUID_ECO_ENERGY_PRO})
	assert.True(ok)
	assert.Equal(MODEL_ECO_ENERGY_PRO, model)

	model, ok = EnergyModelFor([]string{"0000ffff-0000-1000-8000-00805f9b34fb", SERVICE_UUID_SMART_METER})
	assert.True(ok)
	assert.Equal(MODEL_SMART_METER, model)

	// first matching UUID in the candidate's declared order wins
	model, _ = EnergyModelFor([]string{SERVICE_UUID_SMART_METER, SERVICE_UUID_ECO_ENERGY_PRO})
	assert.Equal(MODEL_SMART_METER, model)

	_, ok = EnergyModelFor([]string{"00001234-0000-1000-8000-00805f9b34fb"})
	assert.False(ok)
}

func TestBinModelResolution(t *testing.T) {

	assert := assert.New(t)

	model, ok := BinModelFor([]string{SERVICE_UUID_ECO_BIN_PRO})
	assert.True(ok)
	assert.Equal(MODEL_ECO_BIN_PRO, model)

	model, ok = BinModelFor([]string{SERVICE_UUID_SMART_RECYCLER})
	assert.True(ok)
	assert.Equal(MODEL_SMART_RECYCLER, model)

	_, ok = BinModelFor([]string{SERVICE_UUID_ECO_ENERGY_PRO})
	assert.False(ok)
}

func TestFamilyPredicates(t *testing.T) {

	assert := assert.New(t)

	assert.True(IsEnergyMonitor([]string{SERVICE_UUID_ECO_ENERGY_PRO}))
	assert.True(IsSmartBin([]string{SERVICE_UUID_SMART_RECYCLER}))
	assert.False(IsEnergyMonitor([]string{"00001234-0000-1000-8000-00805f9b34fb"}))
	assert.False(IsSmartBin([]string{}))
	assert.False(IsEnergyMonitor(nil))

	// UUID comparison is case-insensitive
	assert.True(IsEnergyMonitor([]string{"0000EE00-0000-1000-8000-00805F9B34FB"}))
}

func TestFieldForCharacteristic(t *testing.T) {

	assert := assert.New(t)

	field, ok := FieldForCharacteristic(CHAR_UUID_POWER)
	assert.True(ok)
	assert.Equal(FIELD_POWER, field)

	field, ok = FieldForCharacteristic(CHAR_UUID_FILL_LEVEL)
	assert.True(ok)
	assert.Equal(FIELD_FILL_LEVEL, field)

	field, ok = FieldForCharacteristic("0000dead-0000-1000-8000-00805f9b34fb")
	assert.False(ok)
	assert.Equal(FIELD_UNKNOWN, field)
}

func TestTelemetryCharacteristicSets(t *testing.T) {

	assert := assert.New(t)

	energy := EnergyTelemetryCharacteristics()
	assert.Contains(energy, CHAR_UUID_POWER)
	assert.Contains(energy, CHAR_UUID_APPLIANCE)
	assert.NotContains(energy, CHAR_UUID_ENERGY_SETTINGS)

	bin := BinTelemetryCharacteristics()
	assert.Contains(bin, CHAR_UUID_WEIGHT)
	assert.Contains(bin, CHAR_UUID_MATERIAL)
	assert.NotContains(bin, CHAR_UUID_BIN_SETTINGS)
}
