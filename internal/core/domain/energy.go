package domain

import (
	"math"
	"time"

	"github.com/Havanyani/ecocartapp-sub009/pkg/ecoble"
)

const STORE_KEY_ENERGY_MONITOR = "energy_monitor/state"

// EnergyReading is the latest decoded telemetry of one energy monitor.
// Fields are replaced one at a time by the decode path; Timestamp tracks the
// last field update.
type EnergyReading struct {
	// Instantaneous power draw in watts
	Power float64 `json:"power"`
	// Mains voltage in volts, one decimal
	Voltage float64 `json:"voltage"`
	// Current in amps, two decimals
	Current float64 `json:"current"`
	// Cumulative energy counter of the device in kWh
	Energy float64 `json:"energy"`
	// Grid frequency in hertz
	Frequency float64 `json:"frequency"`
	// Power factor, 0.00-1.00
	PowerFactor float64 `json:"powerFactor"`
	// Device battery percent
	BatteryLevel uint8 `json:"batteryLevel"`
	// Firmware appliance classification, nil when unknown
	Appliance *string   `json:"appliance"`
	Timestamp time.Time `json:"timestamp"`
}

type EnergySettings struct {
	ReportingIntervalSeconds int     `json:"reportingInterval"`
	HighUsageThresholdWatt   float64 `json:"highUsageThreshold"`
	StandbyThresholdWatt     float64 `json:"standbyThreshold"`
	EnableApplianceDetection bool    `json:"enableApplianceDetection"`
	EnableNotifications      bool    `json:"enableNotifications"`
	CostPerKwh               float64 `json:"costPerKwh"`
}

// DefaultEnergySettings is the baseline applied when nothing was persisted.
func DefaultEnergySettings() EnergySettings {
	return EnergySettings{
		ReportingIntervalSeconds: 60,
		HighUsageThresholdWatt:   3000,
		StandbyThresholdWatt:     5,
		EnableApplianceDetection: true,
		EnableNotifications:      true,
		CostPerKwh:               0.15,
	}
}

// EnergySettingsPatch is a partial settings update. Nil fields are left
// untouched by Merge.
type EnergySettingsPatch struct {
	ReportingIntervalSeconds *int     `json:"reportingInterval,omitempty"`
	HighUsageThresholdWatt   *float64 `json:"highUsageThreshold,omitempty"`
	StandbyThresholdWatt     *float64 `json:"standbyThreshold,omitempty"`
	EnableApplianceDetection *bool    `json:"enableApplianceDetection,omitempty"`
	EnableNotifications      *bool    `json:"enableNotifications,omitempty"`
	CostPerKwh               *float64 `json:"costPerKwh,omitempty"`
}

// Merge applies the patch and returns the result. Thresholds and rates are
// clamped to be non-negative.
func (s EnergySettings) Merge(patch EnergySettingsPatch) EnergySettings {
	if patch.ReportingIntervalSeconds != nil {
		s.ReportingIntervalSeconds = clampNonNegativeInt(*patch.ReportingIntervalSeconds)
	}
	if patch.HighUsageThresholdWatt != nil {
		s.HighUsageThresholdWatt = clampNonNegative(*patch.HighUsageThresholdWatt)
	}
	if patch.StandbyThresholdWatt != nil {
		s.StandbyThresholdWatt = clampNonNegative(*patch.StandbyThresholdWatt)
	}
	if patch.EnableApplianceDetection != nil {
		s.EnableApplianceDetection = *patch.EnableApplianceDetection
	}
	if patch.EnableNotifications != nil {
		s.EnableNotifications = *patch.EnableNotifications
	}
	if patch.CostPerKwh != nil {
		s.CostPerKwh = clampNonNegative(*patch.CostPerKwh)
	}
	return s
}

// Record converts to the wire form written to the settings characteristic.
func (s EnergySettings) Record() ecoble.EnergySettingsRecord {
	return ecoble.EnergySettingsRecord{
		ReportingIntervalSeconds: uint16(clampNonNegativeInt(s.ReportingIntervalSeconds)),
		HighUsageThresholdWatt:   uint16(math.Round(clampNonNegative(s.HighUsageThresholdWatt))),
		StandbyThresholdWatt:     uint16(math.Round(clampNonNegative(s.StandbyThresholdWatt))),
		ApplianceDetection:       s.EnableApplianceDetection,
		Notifications:            s.EnableNotifications,
		CostPerKwhCents:          uint16(math.Round(clampNonNegative(s.CostPerKwh) * 100)),
	}
}

func EnergySettingsFromRecord(rec ecoble.EnergySettingsRecord) EnergySettings {
	return EnergySettings{
		ReportingIntervalSeconds: int(rec.ReportingIntervalSeconds),
		HighUsageThresholdWatt:   float64(rec.HighUsageThresholdWatt),
		StandbyThresholdWatt:     float64(rec.StandbyThresholdWatt),
		EnableApplianceDetection: rec.ApplianceDetection,
		EnableNotifications:      rec.Notifications,
		CostPerKwh:               float64(rec.CostPerKwhCents) / 100,
	}
}

type PowerSample struct {
	Timestamp time.Time `json:"timestamp"`
	Power     float64   `json:"power"`
}

type EnergyStats struct {
	// Accumulated energy since the last midnight rollover or reset, kWh
	TotalEnergyToday float64 `json:"totalEnergyToday"`
	// Accumulated cost of TotalEnergyToday at the configured rate
	TotalEnergyCost float64 `json:"totalEnergyCost"`
	// Highest power sample seen since the last reset, watts
	PeakUsage float64 `json:"peakUsage"`
	// Running mean over PowerSamples power samples
	AveragePower float64 `json:"averagePower"`
	PowerSamples int     `json:"powerSamples"`
	// Bounded, oldest dropped first
	UsageHistory []PowerSample `json:"usageHistory"`
	// Label -> times the classifier reported a new appliance
	DetectedAppliances map[string]int `json:"detectedAppliances"`
	// Date (2006-01-02) -> kWh
	DailyUsage map[string]float64 `json:"dailyUsage"`
	// Hour (2006-01-02T15) -> kWh
	HourlyUsage map[string]float64 `json:"hourlyUsage"`
}

func NewEnergyStats() EnergyStats {
	return EnergyStats{
		DetectedAppliances: map[string]int{},
		DailyUsage:         map[string]float64{},
		HourlyUsage:        map[string]float64{},
	}
}

// EnergyMonitorState is the persisted snapshot of the energy monitor
// adapter, one JSON blob under STORE_KEY_ENERGY_MONITOR.
type EnergyMonitorState struct {
	Readings map[string]EnergyReading  `json:"readings"`
	Settings map[string]EnergySettings `json:"settings"`
	Stats    map[string]EnergyStats    `json:"stats"`
}

func NewEnergyMonitorState() EnergyMonitorState {
	return EnergyMonitorState{
		Readings: map[string]EnergyReading{},
		Settings: map[string]EnergySettings{},
		Stats:    map[string]EnergyStats{},
	}
}

func clampNonNegative(value float64) float64 {
	if value < 0 {
		return 0
	}
	return value
}

func clampNonNegativeInt(value int) int {
	if value < 0 {
		return 0
	}
	return value
}
