package ecoble

import (
	"context"
)

// Descriptor identifies an advertised device.
type Descriptor struct {
	ID           string
	Name         string
	ServiceUUIDs []string
}

// Event is a transport event delivered to the subscribed handler.
// The concrete types below are the only implementations.
type Event interface {
	centralEvent()
}

// ConnectedEvent signals an established link to a device.
type ConnectedEvent struct {
	Device Descriptor
}

// DisconnectedEvent signals a dropped link, whether requested or not.
type DisconnectedEvent struct {
	DeviceID string
}

// DataEvent carries a characteristic payload, from a notification or a read.
type DataEvent struct {
	DeviceID           string
	ServiceUUID        string
	CharacteristicUUID string
	Data               []byte
}

func (ConnectedEvent) centralEvent()    {}
func (DisconnectedEvent) centralEvent() {}
func (DataEvent) centralEvent()         {}

type EventHandler func(event Event)

// Central is the BLE central used to reach EcoCart devices. Handlers may be
// invoked from the radio goroutine; callers must not block inside them.
type Central interface {
	Open() error
	Close() error
	Connect(ctx context.Context, deviceID string) error
	Disconnect(ctx context.Context, deviceID string) error
	Read(ctx context.Context, deviceID string, serviceUUID string, charUUID string) ([]byte, error)
	Write(ctx context.Context, deviceID string, serviceUUID string, charUUID string, data []byte) error
	Subscribe(handler EventHandler)
}
