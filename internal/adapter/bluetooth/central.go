package bluetooth

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Havanyani/ecocartapp-sub009/pkg/ecoble"

	"go.uber.org/zap"
	"tinygo.org/x/bluetooth"
)

const (
	// Scan is bounded here because the radio API has no deadline of its own.
	scanTimeout     = 30 * time.Second
	readBufferBytes = 512
)

var knownServiceUUIDs = []string{
	ecoble.SERVICE_UUID_ECO_ENERGY_PRO,
	ecoble.SERVICE_UUID_SMART_METER,
	ecoble.SERVICE_UUID_ECO_BIN_PRO,
	ecoble.SERVICE_UUID_SMART_RECYCLER,
}

type deviceLink struct {
	descriptor ecoble.Descriptor
	device     bluetooth.Device
	// Key is the lowercase characteristic UUID.
	chars map[string]bluetooth.DeviceCharacteristic
}

// BluetoothCentral drives EcoCart devices through the host adapter. Device
// ids are BLE addresses.
type BluetoothCentral struct {
	adapter *bluetooth.Adapter
	logger  *zap.Logger

	mu      sync.Mutex
	handler ecoble.EventHandler
	links   map[string]*deviceLink
}

var _ ecoble.Central = (*BluetoothCentral)(nil)

func NewBluetoothCentral(logger *zap.Logger) *BluetoothCentral {
	return &BluetoothCentral{
		adapter: bluetooth.DefaultAdapter,
		logger:  logger,
		links:   map[string]*deviceLink{},
	}
}

func (a *BluetoothCentral) Open() error {
	if err := a.adapter.Enable(); err != nil {
		return fmt.Errorf("enable adapter: %w", err)
	}
	a.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if connected {
			return
		}
		a.onLinkDropped(device.Address.String())
	})
	return nil
}

func (a *BluetoothCentral) Close() error {
	a.mu.Lock()
	links := make([]*deviceLink, 0, len(a.links))
	for _, link := range a.links {
		links = append(links, link)
	}
	a.links = map[string]*deviceLink{}
	a.mu.Unlock()

	for _, link := range links {
		if err := link.device.Disconnect(); err != nil {
			a.logger.Debug("disconnect on close failed",
				zap.String("device", link.descriptor.ID), zap.Error(err))
		}
	}
	return nil
}

func (a *BluetoothCentral) Subscribe(handler ecoble.EventHandler) {
	a.mu.Lock()
	a.handler = handler
	a.mu.Unlock()
}

func (a *BluetoothCentral) Connect(ctx context.Context, deviceID string) error {
	if a.hasLink(deviceID) {
		return nil
	}

	found, err := a.scanForAddress(ctx, deviceID)
	if err != nil {
		return err
	}

	device, err := a.adapter.Connect(found.Address, bluetooth.ConnectionParams{})
	if err != nil {
		return fmt.Errorf("connect %s: %w", deviceID, err)
	}

	link, err := a.discoverLink(device, deviceID, found.LocalName())
	if err != nil {
		_ = device.Disconnect()
		return err
	}

	a.mu.Lock()
	a.links[linkKey(deviceID)] = link
	a.mu.Unlock()

	a.logger.Info("device connected", zap.String("device", deviceID),
		zap.Strings("services", link.descriptor.ServiceUUIDs))
	a.emit(ecoble.ConnectedEvent{Device: link.descriptor})
	return nil
}

func (a *BluetoothCentral) Disconnect(ctx context.Context, deviceID string) error {
	a.mu.Lock()
	link, ok := a.links[linkKey(deviceID)]
	if ok {
		delete(a.links, linkKey(deviceID))
	}
	a.mu.Unlock()
	if !ok {
		return nil
	}

	err := link.device.Disconnect()
	a.emit(ecoble.DisconnectedEvent{DeviceID: link.descriptor.ID})
	if err != nil {
		return fmt.Errorf("disconnect %s: %w", deviceID, err)
	}
	return nil
}

func (a *BluetoothCentral) Read(ctx context.Context, deviceID string, serviceUUID string, charUUID string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	char, err := a.characteristic(deviceID, charUUID)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, readBufferBytes)
	n, err := char.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("read %s %s: %w", deviceID, charUUID, err)
	}
	return buf[:n], nil
}

func (a *BluetoothCentral) Write(ctx context.Context, deviceID string, serviceUUID string, charUUID string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	char, err := a.characteristic(deviceID, charUUID)
	if err != nil {
		return err
	}
	if _, err := char.Write(data); err != nil {
		return fmt.Errorf("write %s %s: %w", deviceID, charUUID, err)
	}
	return nil
}

func (a *BluetoothCentral) scanForAddress(ctx context.Context, deviceID string) (bluetooth.ScanResult, error) {
	scanCtx, cancel := context.WithTimeout(ctx, scanTimeout)
	defer cancel()

	go func() {
		<-scanCtx.Done()
		_ = a.adapter.StopScan()
	}()

	var found bluetooth.ScanResult
	var matched bool
	err := a.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
		if !strings.EqualFold(result.Address.String(), deviceID) {
			return
		}
		found = result
		matched = true
		_ = adapter.StopScan()
	})
	if err != nil {
		return bluetooth.ScanResult{}, fmt.Errorf("scan for %s: %w", deviceID, err)
	}
	if !matched {
		return bluetooth.ScanResult{}, fmt.Errorf("device %s not found", deviceID)
	}
	return found, nil
}

// discoverLink walks the device's services and keeps only the EcoCart ones.
// Notifications are enabled best effort: read-only polling still works for
// characteristics that reject them.
func (a *BluetoothCentral) discoverLink(device bluetooth.Device, deviceID string, name string) (*deviceLink, error) {
	services, err := device.DiscoverServices(nil)
	if err != nil {
		return nil, fmt.Errorf("discover services %s: %w", deviceID, err)
	}

	link := &deviceLink{
		device: device,
		chars:  map[string]bluetooth.DeviceCharacteristic{},
	}
	var serviceUUIDs []string
	for _, service := range services {
		serviceUUID := service.UUID().String()
		if !isKnownService(serviceUUID) {
			continue
		}
		chars, err := service.DiscoverCharacteristics(nil)
		if err != nil {
			return nil, fmt.Errorf("discover characteristics %s: %w", deviceID, err)
		}
		serviceUUIDs = append(serviceUUIDs, serviceUUID)
		for _, char := range chars {
			charUUID := char.UUID().String()
			link.chars[charUUID] = char
			a.enableNotifications(char, deviceID, serviceUUID, charUUID)
		}
	}
	if len(serviceUUIDs) == 0 {
		return nil, fmt.Errorf("device %s has no ecocart service", deviceID)
	}

	link.descriptor = ecoble.Descriptor{
		ID:           deviceID,
		Name:         name,
		ServiceUUIDs: serviceUUIDs,
	}
	return link, nil
}

func (a *BluetoothCentral) enableNotifications(char bluetooth.DeviceCharacteristic, deviceID string, serviceUUID string, charUUID string) {
	if _, ok := ecoble.FieldForCharacteristic(charUUID); !ok {
		return
	}
	err := char.EnableNotifications(func(buf []byte) {
		// The stack reuses the notification buffer.
		data := append([]byte(nil), buf...)
		a.emit(ecoble.DataEvent{
			DeviceID:           deviceID,
			ServiceUUID:        serviceUUID,
			CharacteristicUUID: charUUID,
			Data:               data,
		})
	})
	if err != nil {
		a.logger.Debug("notifications unavailable", zap.String("device", deviceID),
			zap.String("characteristic", charUUID), zap.Error(err))
	}
}

func (a *BluetoothCentral) characteristic(deviceID string, charUUID string) (bluetooth.DeviceCharacteristic, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	link, ok := a.links[linkKey(deviceID)]
	if !ok {
		return bluetooth.DeviceCharacteristic{}, fmt.Errorf("device %s not connected", deviceID)
	}
	char, ok := link.chars[strings.ToLower(charUUID)]
	if !ok {
		return bluetooth.DeviceCharacteristic{}, fmt.Errorf("device %s has no characteristic %s", deviceID, charUUID)
	}
	return char, nil
}

func (a *BluetoothCentral) onLinkDropped(address string) {
	a.mu.Lock()
	link, ok := a.links[linkKey(address)]
	if ok {
		delete(a.links, linkKey(address))
	}
	a.mu.Unlock()
	if !ok {
		return
	}
	a.logger.Info("device link dropped", zap.String("device", link.descriptor.ID))
	a.emit(ecoble.DisconnectedEvent{DeviceID: link.descriptor.ID})
}

func (a *BluetoothCentral) hasLink(deviceID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.links[linkKey(deviceID)]
	return ok
}

func (a *BluetoothCentral) emit(event ecoble.Event) {
	a.mu.Lock()
	handler := a.handler
	a.mu.Unlock()
	if handler != nil {
		handler(event)
	}
}

func isKnownService(serviceUUID string) bool {
	for _, known := range knownServiceUUIDs {
		if known == serviceUUID {
			return true
		}
	}
	return false
}

func linkKey(deviceID string) string {
	return strings.ToLower(deviceID)
}
