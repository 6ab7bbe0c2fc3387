package domain

import "fmt"

// MonitorRequest

// MonitorRequest marks requests routed to the energy monitor adapter.
type MonitorRequest interface {
	ActorRequest
	MonitorCommand() string
}

type MonitorRequestMixIn struct {
	ActorRequestMixIn
}

func (r MonitorRequestMixIn) MonitorCommand() string {
	return fmt.Sprintf("%T", r)
}

// BinRequest

// BinRequest marks requests routed to the smart bin adapter.
type BinRequest interface {
	ActorRequest
	BinCommand() string
}

type BinRequestMixIn struct {
	ActorRequestMixIn
}

func (r BinRequestMixIn) BinCommand() string {
	return fmt.Sprintf("%T", r)
}

// Energy monitor commands

type MonitorConnectRequest struct {
	MonitorRequestMixIn
	Device Device
}

type MonitorConnectResponse struct {
	ActorResponseMixIn
	// False when the device is unsupported or the transport connect failed
	Accepted bool
}

type MonitorDisconnectRequest struct {
	MonitorRequestMixIn
	DeviceId string
}

type MonitorDisconnectResponse struct {
	ActorResponseMixIn
	Ok bool
}

type MonitorReadingRequest struct {
	MonitorRequestMixIn
	DeviceId string
}

type MonitorReadingResponse struct {
	ActorResponseMixIn
	// Nil when the device is unknown
	Reading *EnergyReading
}

type MonitorSettingsRequest struct {
	MonitorRequestMixIn
	DeviceId string
}

type MonitorSettingsResponse struct {
	ActorResponseMixIn
	Settings *EnergySettings
}

type MonitorStatsRequest struct {
	MonitorRequestMixIn
	DeviceId string
}

type MonitorStatsResponse struct {
	ActorResponseMixIn
	Stats *EnergyStats
}

type MonitorUpdateSettingsRequest struct {
	MonitorRequestMixIn
	DeviceId string
	Patch    EnergySettingsPatch
}

type MonitorUpdateSettingsResponse struct {
	ActorResponseMixIn
	// True only if the device write succeeded
	Ok       bool
	Settings *EnergySettings
}

type MonitorResetStatsRequest struct {
	MonitorRequestMixIn
	DeviceId string
}

type MonitorResetStatsResponse struct {
	ActorResponseMixIn
	Ok bool
}

type MonitorEnergyCostRequest struct {
	MonitorRequestMixIn
	DeviceId string
	KWh      float64
}

type MonitorEnergyCostResponse struct {
	ActorResponseMixIn
	Cost float64
}

type MonitorRecommendationsRequest struct {
	MonitorRequestMixIn
	DeviceId string
}

type MonitorRecommendationsResponse struct {
	ActorResponseMixIn
	Recommendations []string
}

// EnergyDayRolloverTick is sent by the midnight cron. The adapter folds the
// finished day into the daily bucket and zeroes the today counters.
type EnergyDayRolloverTick struct {
	MonitorRequestMixIn
}

// Smart bin commands

type BinConnectRequest struct {
	BinRequestMixIn
	Device Device
}

type BinConnectResponse struct {
	ActorResponseMixIn
	// False when the device is unsupported or the transport connect failed
	Accepted bool
}

type BinDisconnectRequest struct {
	BinRequestMixIn
	DeviceId string
}

type BinDisconnectResponse struct {
	ActorResponseMixIn
	Ok bool
}

type BinReadingRequest struct {
	BinRequestMixIn
	DeviceId string
}

type BinReadingResponse struct {
	ActorResponseMixIn
	Reading *BinReading
}

type BinSettingsRequest struct {
	BinRequestMixIn
	DeviceId string
}

type BinSettingsResponse struct {
	ActorResponseMixIn
	Settings *BinSettings
}

type BinStatsRequest struct {
	BinRequestMixIn
	DeviceId string
}

type BinStatsResponse struct {
	ActorResponseMixIn
	Stats *BinStats
}

type BinUpdateSettingsRequest struct {
	BinRequestMixIn
	DeviceId string
	Patch    BinSettingsPatch
}

type BinUpdateSettingsResponse struct {
	ActorResponseMixIn
	Ok       bool
	Settings *BinSettings
}

type BinEmptiedRequest struct {
	BinRequestMixIn
	DeviceId string
}

type BinEmptiedResponse struct {
	ActorResponseMixIn
	Ok bool
}

type BinCalibrateRequest struct {
	BinRequestMixIn
	DeviceId string
}

type BinCalibrateResponse struct {
	ActorResponseMixIn
	Ok bool
}

// ensure interface compliance
var _ MonitorRequest = (*MonitorConnectRequest)(nil)
var _ BinRequest = (*BinCalibrateRequest)(nil)
