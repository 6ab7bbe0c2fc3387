package domain

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/Havanyani/ecocartapp-sub009/pkg/ecoble"

	"github.com/carlmjohnson/versioninfo"
)

// Sensor ids match the telemetry field slugs, so a sensor's state topic is
// the field's telemetry topic.
const (
	SENSOR_ID_BRIDGE_STATE  = "bridge"
	SENSOR_ID_POWER         = "power"
	SENSOR_ID_VOLTAGE       = "voltage"
	SENSOR_ID_CURRENT       = "current"
	SENSOR_ID_ENERGY        = "energy"
	SENSOR_ID_FREQUENCY     = "frequency"
	SENSOR_ID_POWER_FACTOR  = "power_factor"
	SENSOR_ID_BATTERY_LEVEL = "battery_level"
	SENSOR_ID_APPLIANCE     = "appliance"
	SENSOR_ID_WEIGHT        = "weight"
	SENSOR_ID_FILL_LEVEL    = "fill_level"
	SENSOR_ID_LID_STATUS    = "lid_status"
	SENSOR_ID_MATERIAL_TYPE = "material_type"

	SWITCH_ID_NOTIFICATIONS    = "notifications"
	SWITCH_ID_NOTIFY_WHEN_FULL = "notify_when_full"

	INPUT_NUMBER_ID_HIGH_USAGE_THRESHOLD = "high_usage_threshold"
	INPUT_NUMBER_ID_FULL_THRESHOLD       = "full_threshold"

	STATE_CLASS_MEASUREMENT      = "measurement"
	STATE_CLASS_TOTAL_INCREASING = "total_increasing"
	DEVICE_CLASS_BATTERY         = "battery"
	DEVICE_CLASS_CURRENT         = "current"
	DEVICE_CLASS_ENERGY          = "energy"
	DEVICE_CLASS_FREQUENCY       = "frequency"
	DEVICE_CLASS_POWER           = "power"
	DEVICE_CLASS_POWER_FACTOR    = "power_factor"
	DEVICE_CLASS_VOLTAGE         = "voltage"
	DEVICE_CLASS_WEIGHT          = "weight"
	DEVICE_CLASS_CONNECTIVITY    = "connectivity"
	ENTITY_CLASS_DIAGNOSTIC      = "diagnostic"
	ENTITY_CLASS_CONFIG          = "config"
	SENSOR_TYPE_SENSOR           = "sensor"
	SENSOR_TYPE_BINARY           = "binary_sensor"
	INPUT_NUMBER_MODE_BOX        = "box"
	INPUT_NUMBER_MODE_SLIDER     = "slider"
)

func BridgeDevice(baseTopic string) DiscoveryDevice {
	return DiscoveryDevice{
		Id:           fmt.Sprintf("ecocart_bridge_%s", md5HashShort(baseTopic)),
		Manufacturer: "EcoCart",
		Model:        "EcoCart Bridge",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("EcoCart %s", md5HashShort(baseTopic)),
	}
}

// MonitorDiscoveryDevice derives the HA device of one energy monitor. Ids
// hash the BLE address because discovery topic segments cannot carry colons.
func MonitorDiscoveryDevice(bridge DiscoveryDevice, device Device) DiscoveryDevice {
	model, _ := ecoble.EnergyModelFor(device.Metadata.ServiceUUIDs)
	return discoveryDeviceFor(bridge, device, "eco_monitor", string(model))
}

func BinDiscoveryDevice(bridge DiscoveryDevice, device Device) DiscoveryDevice {
	model, _ := ecoble.BinModelFor(device.Metadata.ServiceUUIDs)
	return discoveryDeviceFor(bridge, device, "eco_bin", string(model))
}

func discoveryDeviceFor(bridge DiscoveryDevice, device Device, prefix string, model string) DiscoveryDevice {
	name := device.Name
	if name == "" {
		name = model
	}
	manufacturer := device.Metadata.Manufacturer
	if manufacturer == "" {
		manufacturer = "EcoCart"
	}
	return DiscoveryDevice{
		Id:           fmt.Sprintf("%s_%s", prefix, md5HashShort(device.Id)),
		Name:         fmt.Sprintf("%s %s", name, md5HashShort(device.Id)),
		Model:        model,
		Manufacturer: manufacturer,
		Version:      device.Metadata.Firmware,
		ViaDevice:    bridge.Id,
	}
}

func IdDevice(device DiscoveryDevice) DiscoveryDevice {
	return DiscoveryDevice{
		Id:   device.Id,
		Name: device.Name,
	}
}

func BridgeSensors(bridgeDevice DiscoveryDevice) []GenericSensor {

	var sensors []GenericSensor

	// Bridge connectivity
	sensors = append(sensors, GenericSensor{
		Device:         bridgeDevice,
		Id:             SENSOR_ID_BRIDGE_STATE,
		SensorType:     SENSOR_TYPE_BINARY,
		Name:           "Connection state",
		DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(bridgeDevice.Id, SENSOR_ID_BRIDGE_STATE),
	})

	return sensors
}

func MonitorSensors(monitorDevice DiscoveryDevice, deviceId string) []GenericSensor {

	var sensors []GenericSensor

	// Power
	sensors = append(sensors, GenericSensor{
		Device:            monitorDevice,
		Family:            ecoble.FAMILY_MONITOR,
		DeviceId:          deviceId,
		Id:                SENSOR_ID_POWER,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Power",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_POWER,
		UnitOfMeasurement: "W",
		UniqueId:          uniqueId(monitorDevice.Id, SENSOR_ID_POWER),
	})

	// Energy counter
	sensors = append(sensors, GenericSensor{
		Device:            monitorDevice,
		Family:            ecoble.FAMILY_MONITOR,
		DeviceId:          deviceId,
		Id:                SENSOR_ID_ENERGY,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Energy",
		StateClass:        STATE_CLASS_TOTAL_INCREASING,
		DeviceClass:       DEVICE_CLASS_ENERGY,
		UnitOfMeasurement: "kWh",
		UniqueId:          uniqueId(monitorDevice.Id, SENSOR_ID_ENERGY),
	})

	// Voltage
	sensors = append(sensors, GenericSensor{
		Device:            monitorDevice,
		Family:            ecoble.FAMILY_MONITOR,
		DeviceId:          deviceId,
		Id:                SENSOR_ID_VOLTAGE,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Voltage",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_VOLTAGE,
		UnitOfMeasurement: "V",
		EnabledByDefault:  optionalBool(false),
		UniqueId:          uniqueId(monitorDevice.Id, SENSOR_ID_VOLTAGE),
	})

	// Current
	sensors = append(sensors, GenericSensor{
		Device:            monitorDevice,
		Family:            ecoble.FAMILY_MONITOR,
		DeviceId:          deviceId,
		Id:                SENSOR_ID_CURRENT,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Current",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_CURRENT,
		UnitOfMeasurement: "A",
		EnabledByDefault:  optionalBool(false),
		UniqueId:          uniqueId(monitorDevice.Id, SENSOR_ID_CURRENT),
	})

	// Grid frequency
	sensors = append(sensors, GenericSensor{
		Device:            monitorDevice,
		Family:            ecoble.FAMILY_MONITOR,
		DeviceId:          deviceId,
		Id:                SENSOR_ID_FREQUENCY,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Grid frequency",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_FREQUENCY,
		UnitOfMeasurement: "Hz",
		Icon:              "mdi:sine-wave",
		EnabledByDefault:  optionalBool(false),
		UniqueId:          uniqueId(monitorDevice.Id, SENSOR_ID_FREQUENCY),
	})

	// Power factor
	sensors = append(sensors, GenericSensor{
		Device:           monitorDevice,
		Family:           ecoble.FAMILY_MONITOR,
		DeviceId:         deviceId,
		Id:               SENSOR_ID_POWER_FACTOR,
		SensorType:       SENSOR_TYPE_SENSOR,
		Name:             "Power factor",
		StateClass:       STATE_CLASS_MEASUREMENT,
		DeviceClass:      DEVICE_CLASS_POWER_FACTOR,
		EnabledByDefault: optionalBool(false),
		UniqueId:         uniqueId(monitorDevice.Id, SENSOR_ID_POWER_FACTOR),
	})

	// Device battery
	sensors = append(sensors, GenericSensor{
		Device:            monitorDevice,
		Family:            ecoble.FAMILY_MONITOR,
		DeviceId:          deviceId,
		Id:                SENSOR_ID_BATTERY_LEVEL,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Battery",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_BATTERY,
		UnitOfMeasurement: "%",
		EntityCategory:    ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:          uniqueId(monitorDevice.Id, SENSOR_ID_BATTERY_LEVEL),
	})

	// Detected appliance
	sensors = append(sensors, GenericSensor{
		Device:     monitorDevice,
		Family:     ecoble.FAMILY_MONITOR,
		DeviceId:   deviceId,
		Id:         SENSOR_ID_APPLIANCE,
		SensorType: SENSOR_TYPE_SENSOR,
		Name:       "Detected appliance",
		Icon:       "mdi:power-plug",
		UniqueId:   uniqueId(monitorDevice.Id, SENSOR_ID_APPLIANCE),
	})

	return sensors
}

func MonitorSwitches(monitorDevice DiscoveryDevice, deviceId string) []GenericSwitch {

	var switches []GenericSwitch

	// Notifications
	switches = append(switches, GenericSwitch{
		Device:   monitorDevice,
		Family:   ecoble.FAMILY_MONITOR,
		DeviceId: deviceId,
		Id:       SWITCH_ID_NOTIFICATIONS,
		Name:     "Notifications",
		UniqueId: uniqueId(monitorDevice.Id, SWITCH_ID_NOTIFICATIONS),
		Icon:     "mdi:bell-ring",
	})

	return switches
}

func MonitorInputNumbers(monitorDevice DiscoveryDevice, deviceId string) []GenericInputNumber {

	var inputNumbers []GenericInputNumber

	// High usage threshold
	inputNumbers = append(inputNumbers, GenericInputNumber{
		Device:       monitorDevice,
		Family:       ecoble.FAMILY_MONITOR,
		DeviceId:     deviceId,
		Id:           INPUT_NUMBER_ID_HIGH_USAGE_THRESHOLD,
		Name:         "High usage threshold",
		UniqueId:     uniqueId(monitorDevice.Id, INPUT_NUMBER_ID_HIGH_USAGE_THRESHOLD),
		Icon:         "mdi:flash-alert",
		Max:          10000,
		Min:          0,
		Step:         50,
		Mode:         INPUT_NUMBER_MODE_BOX,
		InitialValue: 3000,
	})

	return inputNumbers
}

func BinSensors(binDevice DiscoveryDevice, deviceId string) []GenericSensor {

	var sensors []GenericSensor

	// Content weight
	sensors = append(sensors, GenericSensor{
		Device:            binDevice,
		Family:            ecoble.FAMILY_BIN,
		DeviceId:          deviceId,
		Id:                SENSOR_ID_WEIGHT,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Weight",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_WEIGHT,
		UnitOfMeasurement: "g",
		UniqueId:          uniqueId(binDevice.Id, SENSOR_ID_WEIGHT),
	})

	// Fill level
	sensors = append(sensors, GenericSensor{
		Device:            binDevice,
		Family:            ecoble.FAMILY_BIN,
		DeviceId:          deviceId,
		Id:                SENSOR_ID_FILL_LEVEL,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Fill level",
		StateClass:        STATE_CLASS_MEASUREMENT,
		UnitOfMeasurement: "%",
		Icon:              "mdi:trash-can",
		UniqueId:          uniqueId(binDevice.Id, SENSOR_ID_FILL_LEVEL),
	})

	// Device battery
	sensors = append(sensors, GenericSensor{
		Device:            binDevice,
		Family:            ecoble.FAMILY_BIN,
		DeviceId:          deviceId,
		Id:                SENSOR_ID_BATTERY_LEVEL,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Battery",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_BATTERY,
		UnitOfMeasurement: "%",
		EntityCategory:    ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:          uniqueId(binDevice.Id, SENSOR_ID_BATTERY_LEVEL),
	})

	// Lid status
	sensors = append(sensors, GenericSensor{
		Device:     binDevice,
		Family:     ecoble.FAMILY_BIN,
		DeviceId:   deviceId,
		Id:         SENSOR_ID_LID_STATUS,
		SensorType: SENSOR_TYPE_SENSOR,
		Name:       "Lid",
		Icon:       "mdi:trash-can-outline",
		UniqueId:   uniqueId(binDevice.Id, SENSOR_ID_LID_STATUS),
	})

	// Detected material
	sensors = append(sensors, GenericSensor{
		Device:     binDevice,
		Family:     ecoble.FAMILY_BIN,
		DeviceId:   deviceId,
		Id:         SENSOR_ID_MATERIAL_TYPE,
		SensorType: SENSOR_TYPE_SENSOR,
		Name:       "Detected material",
		Icon:       "mdi:recycle",
		UniqueId:   uniqueId(binDevice.Id, SENSOR_ID_MATERIAL_TYPE),
	})

	return sensors
}

func BinSwitches(binDevice DiscoveryDevice, deviceId string) []GenericSwitch {

	var switches []GenericSwitch

	// Notify when full
	switches = append(switches, GenericSwitch{
		Device:   binDevice,
		Family:   ecoble.FAMILY_BIN,
		DeviceId: deviceId,
		Id:       SWITCH_ID_NOTIFY_WHEN_FULL,
		Name:     "Notify when full",
		UniqueId: uniqueId(binDevice.Id, SWITCH_ID_NOTIFY_WHEN_FULL),
		Icon:     "mdi:bell-alert",
	})

	return switches
}

func BinInputNumbers(binDevice DiscoveryDevice, deviceId string) []GenericInputNumber {

	var inputNumbers []GenericInputNumber

	// Full threshold
	inputNumbers = append(inputNumbers, GenericInputNumber{
		Device:       binDevice,
		Family:       ecoble.FAMILY_BIN,
		DeviceId:     deviceId,
		Id:           INPUT_NUMBER_ID_FULL_THRESHOLD,
		Name:         "Full threshold",
		UniqueId:     uniqueId(binDevice.Id, INPUT_NUMBER_ID_FULL_THRESHOLD),
		Icon:         "mdi:gauge",
		Max:          100,
		Min:          0,
		Step:         5,
		Mode:         INPUT_NUMBER_MODE_SLIDER,
		InitialValue: 80,
	})

	return inputNumbers
}

func uniqueId(baseId, id string) string {
	return fmt.Sprintf("uid_%s_%s", baseId, id)
}

func md5Hash(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])
}

func md5HashShort(text string) string {
	hash := md5Hash(text)
	return hash[0:8]
}

func optionalBool(value bool) *bool {
	return &value
}
