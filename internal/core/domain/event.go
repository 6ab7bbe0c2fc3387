package domain

import "fmt"

// Domain events are closed sets per family, published on the actor system
// event stream. The structs below are the only implementations.

// Energy monitor family

type MonitorEventMixIn struct {
	Id string
}

type MonitorEvent interface {
	MonitorEvent() string
	DeviceId() string
}

func (e MonitorEventMixIn) MonitorEvent() string {
	return fmt.Sprintf("%T", e)
}

func (e MonitorEventMixIn) DeviceId() string {
	return e.Id
}

type MonitorConnectedEvent struct {
	MonitorEventMixIn
	Device Device
}

type MonitorDisconnectedEvent struct {
	MonitorEventMixIn
}

// MonitorReadingUpdatedEvent carries the full reading snapshot. It is
// emitted after the initial read on connect and whenever a field without a
// dedicated changed event is decoded.
type MonitorReadingUpdatedEvent struct {
	MonitorEventMixIn
	Reading EnergyReading
}

type MonitorSettingsChangedEvent struct {
	MonitorEventMixIn
	Settings EnergySettings
}

type PowerChangedEvent struct {
	MonitorEventMixIn
	Power float64
}

type EnergyChangedEvent struct {
	MonitorEventMixIn
	Energy float64
}

type HighEnergyUsageEvent struct {
	MonitorEventMixIn
	Power     float64
	Threshold float64
}

type EnergyStatsResetEvent struct {
	MonitorEventMixIn
}

// Smart bin family

type BinEventMixIn struct {
	Id string
}

type BinEvent interface {
	BinEvent() string
	DeviceId() string
}

func (e BinEventMixIn) BinEvent() string {
	return fmt.Sprintf("%T", e)
}

func (e BinEventMixIn) DeviceId() string {
	return e.Id
}

type BinConnectedEvent struct {
	BinEventMixIn
	Device Device
}

type BinDisconnectedEvent struct {
	BinEventMixIn
}

// BinReadingUpdatedEvent carries the full reading snapshot, emitted the same
// way as its monitor counterpart.
type BinReadingUpdatedEvent struct {
	BinEventMixIn
	Reading BinReading
}

type BinSettingsChangedEvent struct {
	BinEventMixIn
	Settings BinSettings
}

type BinWeightChangedEvent struct {
	BinEventMixIn
	Weight float64
}

type BinFillLevelChangedEvent struct {
	BinEventMixIn
	FillLevel uint8
}

type BinFullEvent struct {
	BinEventMixIn
	FillLevel uint8
	Threshold int
}

type BinEmptiedEvent struct {
	BinEventMixIn
}

type BinCalibratedEvent struct {
	BinEventMixIn
}

// ensure interface compliance
var _ MonitorEvent = (*MonitorConnectedEvent)(nil)
var _ BinEvent = (*BinFullEvent)(nil)
