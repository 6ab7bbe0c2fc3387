package domain

import (
	"math"
	"time"

	"github.com/Havanyani/ecocartapp-sub009/pkg/ecoble"
)

const STORE_KEY_SMART_BIN = "smart_bin/state"

// BinReading is the latest decoded telemetry of one smart bin.
type BinReading struct {
	// Content weight in grams, weight calibration applied
	Weight float64 `json:"weight"`
	// Fill percent, 0-100
	FillLevel uint8 `json:"fillLevel"`
	// Device battery percent
	BatteryLevel uint8 `json:"batteryLevel"`
	IsLidOpen    bool  `json:"isLidOpen"`
	// Firmware material classification, nil when unknown
	MaterialType *string   `json:"materialType"`
	Timestamp    time.Time `json:"timestamp"`
}

type BinSettings struct {
	NotifyWhenFull         bool    `json:"notifyWhenFull"`
	FullThresholdPercent   int     `json:"fullThreshold"`
	WeightCalibration      float64 `json:"weightCalibration"`
	AutoDetectMaterials    bool    `json:"autoDetectMaterials"`
	EnableWeightTracking   bool    `json:"enableWeightTracking"`
	LidCloseTimeoutSeconds int     `json:"lidCloseTimeout"`
}

// DefaultBinSettings is the baseline applied when nothing was persisted.
func DefaultBinSettings() BinSettings {
	return BinSettings{
		NotifyWhenFull:         true,
		FullThresholdPercent:   80,
		WeightCalibration:      1.0,
		AutoDetectMaterials:    true,
		EnableWeightTracking:   true,
		LidCloseTimeoutSeconds: 30,
	}
}

// BinSettingsPatch is a partial settings update. Nil fields are left
// untouched by Merge.
type BinSettingsPatch struct {
	NotifyWhenFull         *bool    `json:"notifyWhenFull,omitempty"`
	FullThresholdPercent   *int     `json:"fullThreshold,omitempty"`
	WeightCalibration      *float64 `json:"weightCalibration,omitempty"`
	AutoDetectMaterials    *bool    `json:"autoDetectMaterials,omitempty"`
	EnableWeightTracking   *bool    `json:"enableWeightTracking,omitempty"`
	LidCloseTimeoutSeconds *int     `json:"lidCloseTimeout,omitempty"`
}

// Merge applies the patch and returns the result. The full threshold is
// clamped to 0-100, the rest to non-negative.
func (s BinSettings) Merge(patch BinSettingsPatch) BinSettings {
	if patch.NotifyWhenFull != nil {
		s.NotifyWhenFull = *patch.NotifyWhenFull
	}
	if patch.FullThresholdPercent != nil {
		s.FullThresholdPercent = clampPercent(*patch.FullThresholdPercent)
	}
	if patch.WeightCalibration != nil {
		s.WeightCalibration = clampNonNegative(*patch.WeightCalibration)
	}
	if patch.AutoDetectMaterials != nil {
		s.AutoDetectMaterials = *patch.AutoDetectMaterials
	}
	if patch.EnableWeightTracking != nil {
		s.EnableWeightTracking = *patch.EnableWeightTracking
	}
	if patch.LidCloseTimeoutSeconds != nil {
		s.LidCloseTimeoutSeconds = clampNonNegativeInt(*patch.LidCloseTimeoutSeconds)
	}
	return s
}

// Record converts to the wire form written to the settings characteristic.
func (s BinSettings) Record() ecoble.BinSettingsRecord {
	return ecoble.BinSettingsRecord{
		NotifyWhenFull:         s.NotifyWhenFull,
		FullThresholdPercent:   uint8(clampPercent(s.FullThresholdPercent)),
		WeightCalibrationThous: uint16(math.Round(clampNonNegative(s.WeightCalibration) * 1000)),
		AutoDetectMaterials:    s.AutoDetectMaterials,
		WeightTracking:         s.EnableWeightTracking,
		LidCloseTimeoutSeconds: uint16(clampNonNegativeInt(s.LidCloseTimeoutSeconds)),
	}
}

func BinSettingsFromRecord(rec ecoble.BinSettingsRecord) BinSettings {
	return BinSettings{
		NotifyWhenFull:         rec.NotifyWhenFull,
		FullThresholdPercent:   int(rec.FullThresholdPercent),
		WeightCalibration:      float64(rec.WeightCalibrationThous) / 1000,
		AutoDetectMaterials:    rec.AutoDetectMaterials,
		EnableWeightTracking:   rec.WeightTracking,
		LidCloseTimeoutSeconds: int(rec.LidCloseTimeoutSeconds),
	}
}

type WeightSample struct {
	Timestamp time.Time `json:"timestamp"`
	Weight    float64   `json:"weight"`
}

type FillSample struct {
	Timestamp time.Time `json:"timestamp"`
	FillLevel uint8     `json:"fillLevel"`
}

type BinStats struct {
	// Weight added since the bin was last emptied, grams
	TotalWeight float64 `json:"totalWeight"`
	// Running mean over FillSamples fill samples
	AverageFillLevel float64    `json:"averageFillLevel"`
	FillSamples      int        `json:"fillSamples"`
	EmptyCount       int        `json:"emptyCount"`
	LastEmptied      *time.Time `json:"lastEmptied"`
	// Label -> times the classifier reported a new material
	MaterialsDetected map[string]int `json:"materialsDetected"`
	// Bounded, oldest dropped first
	WeightHistory []WeightSample `json:"weightHistory"`
	FillHistory   []FillSample   `json:"fillHistory"`
}

func NewBinStats() BinStats {
	return BinStats{
		MaterialsDetected: map[string]int{},
	}
}

// SmartBinState is the persisted snapshot of the smart bin adapter, one
// JSON blob under STORE_KEY_SMART_BIN.
type SmartBinState struct {
	Readings map[string]BinReading  `json:"readings"`
	Settings map[string]BinSettings `json:"settings"`
	Stats    map[string]BinStats    `json:"stats"`
}

func NewSmartBinState() SmartBinState {
	return SmartBinState{
		Readings: map[string]BinReading{},
		Settings: map[string]BinSettings{},
		Stats:    map[string]BinStats{},
	}
}

func clampPercent(value int) int {
	if value < 0 {
		return 0
	}
	if value > 100 {
		return 100
	}
	return value
}
