package domain

import "github.com/Havanyani/ecocartapp-sub009/pkg/ecoble"

// Home Assistant discovery models. Id is the entity slug within the device;
// Family and DeviceId locate the state/command topics.

type DiscoveryDevice struct {
	Id           string
	Name         string
	Version      string
	Model        string
	Manufacturer string
	ViaDevice    string
}

type GenericSensor struct {
	Device            DiscoveryDevice
	Family            ecoble.Family
	DeviceId          string
	Id                string
	SensorType        string
	Name              string
	UniqueId          string
	UnitOfMeasurement string
	StateClass        string // measurement, total_increasing (for acc energy)
	DeviceClass       string // voltage, current, power, energy, weight
	EntityCategory    string // diagnostic, config, nil
	EnabledByDefault  *bool
	Icon              string
}

type GenericSwitch struct {
	Device   DiscoveryDevice
	Family   ecoble.Family
	DeviceId string
	Id       string
	Name     string
	UniqueId string
	Icon     string
}

type GenericInputNumber struct {
	Device       DiscoveryDevice
	Family       ecoble.Family
	DeviceId     string
	Id           string
	Name         string
	UniqueId     string
	Icon         string
	Max          float64
	Min          float64
	Step         float64
	Mode         string
	InitialValue float64
}
