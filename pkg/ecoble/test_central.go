package ecoble

import (
	"context"
	"fmt"
	"sync"
)

// TestCentral is an in-memory Central for tests. Peripherals are scripted
// with characteristic values, failures are injected per device, and events
// are emitted synchronously on the caller's goroutine.
type TestCentral struct {
	mu          sync.Mutex
	handler     EventHandler
	peripherals map[string]*TestPeripheral
	connected   map[string]bool
	failConnect map[string]bool
	failWrite   bool

	connectCalls    []string
	disconnectCalls []string
	writes          []TestWrite
}

type TestPeripheral struct {
	Descriptor Descriptor
	Values     map[string][]byte
}

type TestWrite struct {
	DeviceID           string
	ServiceUUID        string
	CharacteristicUUID string
	Data               []byte
}

func CreateTestCentral() *TestCentral {
	return &TestCentral{
		peripherals: map[string]*TestPeripheral{},
		connected:   map[string]bool{},
		failConnect: map[string]bool{},
	}
}

func (c *TestCentral) Open() error {
	return nil
}

func (c *TestCentral) Close() error {
	return nil
}

func (c *TestCentral) Subscribe(handler EventHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
}

func (c *TestCentral) Connect(_ context.Context, deviceID string) error {
	c.mu.Lock()
	c.connectCalls = append(c.connectCalls, deviceID)
	if c.failConnect[deviceID] {
		c.mu.Unlock()
		return fmt.Errorf("connect refused: %s", deviceID)
	}
	per, ok := c.peripherals[deviceID]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("no such device: %s", deviceID)
	}
	c.connected[deviceID] = true
	c.mu.Unlock()
	c.emit(ConnectedEvent{Device: per.Descriptor})
	return nil
}

func (c *TestCentral) Disconnect(_ context.Context, deviceID string) error {
	c.mu.Lock()
	c.disconnectCalls = append(c.disconnectCalls, deviceID)
	delete(c.connected, deviceID)
	c.mu.Unlock()
	c.emit(DisconnectedEvent{DeviceID: deviceID})
	return nil
}

func (c *TestCentral) Read(_ context.Context, deviceID, serviceUUID, charUUID string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	per, ok := c.peripherals[deviceID]
	if !ok {
		return nil, fmt.Errorf("no such device: %s", deviceID)
	}
	value, ok := per.Values[charUUID]
	if !ok {
		return nil, fmt.Errorf("no such characteristic: %s %s", deviceID, charUUID)
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (c *TestCentral) Write(_ context.Context, deviceID, serviceUUID, charUUID string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failWrite {
		return fmt.Errorf("write refused: %s %s", deviceID, charUUID)
	}
	per, ok := c.peripherals[deviceID]
	if !ok {
		return fmt.Errorf("no such device: %s", deviceID)
	}
	stored := make([]byte, len(data))
	copy(stored, data)
	if per.Values == nil {
		per.Values = map[string][]byte{}
	}
	per.Values[charUUID] = stored
	c.writes = append(c.writes, TestWrite{
		DeviceID:           deviceID,
		ServiceUUID:        serviceUUID,
		CharacteristicUUID: charUUID,
		Data:               stored,
	})
	return nil
}

// AddPeripheral scripts a device with its characteristic values.
func (c *TestCentral) AddPeripheral(desc Descriptor, values map[string][]byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	copied := map[string][]byte{}
	for k, v := range values {
		copied[k] = append([]byte{}, v...)
	}
	c.peripherals[desc.ID] = &TestPeripheral{Descriptor: desc, Values: copied}
}

func (c *TestCentral) SetValue(deviceID, charUUID string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if per, ok := c.peripherals[deviceID]; ok {
		per.Values[charUUID] = append([]byte{}, data...)
	}
}

func (c *TestCentral) SetFailConnect(deviceID string, fail bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failConnect[deviceID] = fail
}

func (c *TestCentral) SetFailWrite(fail bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failWrite = fail
}

// EmitData pushes a characteristic notification to the subscribed handler.
func (c *TestCentral) EmitData(deviceID, serviceUUID, charUUID string, data []byte) {
	c.emit(DataEvent{
		DeviceID:           deviceID,
		ServiceUUID:        serviceUUID,
		CharacteristicUUID: charUUID,
		Data:               append([]byte{}, data...),
	})
}

func (c *TestCentral) EmitConnected(desc Descriptor) {
	c.emit(ConnectedEvent{Device: desc})
}

func (c *TestCentral) EmitDisconnected(deviceID string) {
	c.emit(DisconnectedEvent{DeviceID: deviceID})
}

func (c *TestCentral) ConnectCalls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string{}, c.connectCalls...)
}

func (c *TestCentral) DisconnectCalls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string{}, c.disconnectCalls...)
}

func (c *TestCentral) Writes() []TestWrite {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]TestWrite{}, c.writes...)
}

func (c *TestCentral) IsConnected(deviceID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected[deviceID]
}

func (c *TestCentral) emit(event Event) {
	c.mu.Lock()
	handler := c.handler
	c.mu.Unlock()
	if handler != nil {
		handler(event)
	}
}
