package domain

import "github.com/Havanyani/ecocartapp-sub009/pkg/ecoble"

const (
	ACTOR_ID_MASTER       = "master"
	ACTOR_ID_TRANSPORT    = "transport"
	ACTOR_ID_MQTT         = "mqtt"
	ACTOR_ID_MONITOR      = "energy_monitor"
	ACTOR_ID_BIN          = "smart_bin"
	ACTOR_ID_HA_DISCOVERY = "hadiscovery"
)

// Transport actor requests. All radio I/O is serialized behind these.

type TransportConnectRequest struct {
	ActorRequestMixIn
	DeviceId string
}

type TransportConnectResponse struct {
	ActorResponseMixIn
	DeviceId string
}

type TransportDisconnectRequest struct {
	ActorRequestMixIn
	DeviceId string
}

type TransportDisconnectResponse struct {
	ActorResponseMixIn
	DeviceId string
}

type TransportReadAllRequest struct {
	ActorRequestMixIn
	DeviceId            string
	ServiceUUID         string
	CharacteristicUUIDs []string
}

type TransportReadAllResponse struct {
	ActorResponseMixIn
	DeviceId string
	// Characteristic UUID -> payload. Characteristics that failed to read
	// are omitted.
	Values map[string][]byte
}

type TransportWriteRequest struct {
	ActorRequestMixIn
	DeviceId           string
	ServiceUUID        string
	CharacteristicUUID string
	Data               []byte
}

type TransportWriteResponse struct {
	ActorResponseMixIn
	DeviceId string
}

// Transport events, republished from the central onto the event stream.

type TransportDeviceConnected struct {
	Device ecoble.Descriptor
}

type TransportDeviceDisconnected struct {
	DeviceId string
}

type TransportDataReceived struct {
	DeviceId           string
	ServiceUUID        string
	CharacteristicUUID string
	Data               []byte
}

// MQTT actor requests.

type PublishMessageRequest struct {
	ActorRequestMixIn
	Topic   string
	Payload string
	Retain  bool
}

type PublishMessageResponse struct {
	ActorResponseMixIn
}

type PublishDiscoveryRequest struct {
	ActorRequestMixIn
	Sensors      []GenericSensor
	Switches     []GenericSwitch
	InputNumbers []GenericInputNumber
}

type PublishDiscoveryResponse struct {
	ActorResponseMixIn
}

// Health fan-out.

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}
