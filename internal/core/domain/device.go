package domain

import (
	"github.com/Havanyani/ecocartapp-sub009/pkg/ecoble"
)

type DeviceType string

type ConnectionStatus string

const (
	DEVICE_TYPE_ENERGY_MONITOR DeviceType = "energy_monitor"
	DEVICE_TYPE_SMART_BIN      DeviceType = "smart_bin"

	CONNECTION_STATUS_CONNECTED    ConnectionStatus = "connected"
	CONNECTION_STATUS_DISCONNECTED ConnectionStatus = "disconnected"
)

type DeviceMetadata struct {
	ServiceUUIDs []string `json:"serviceUUIDs"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Firmware     string   `json:"firmware,omitempty"`
}

// Device is owned by the transport side and referenced by the adapters.
// Adapters never persist it, only the Reading/Settings/Stats triple.
type Device struct {
	Id               string           `json:"id"`
	Name             string           `json:"name"`
	Type             DeviceType       `json:"type"`
	ConnectionStatus ConnectionStatus `json:"connectionStatus"`
	Metadata         DeviceMetadata   `json:"metadata"`
}

func DeviceFromDescriptor(desc ecoble.Descriptor, deviceType DeviceType) Device {
	return Device{
		Id:               desc.ID,
		Name:             desc.Name,
		Type:             deviceType,
		ConnectionStatus: CONNECTION_STATUS_DISCONNECTED,
		Metadata: DeviceMetadata{
			ServiceUUIDs: append([]string{}, desc.ServiceUUIDs...),
		},
	}
}

func (d Device) Descriptor() ecoble.Descriptor {
	return ecoble.Descriptor{
		ID:           d.Id,
		Name:         d.Name,
		ServiceUUIDs: append([]string{}, d.Metadata.ServiceUUIDs...),
	}
}
