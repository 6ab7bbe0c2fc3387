package service

import (
	"fmt"

	"github.com/Havanyani/ecocartapp-sub009/internal/core/domain"
)

// EfficiencyAdvisor derives usage advisories from the current reading and
// settings. Pure; no state.
type EfficiencyAdvisor struct {
}

// Recommendations returns advisory strings for the given reading. The list
// is empty when no condition holds or when reading/settings are missing.
func (a EfficiencyAdvisor) Recommendations(reading *domain.EnergyReading, settings *domain.EnergySettings) []string {
	recs := []string{}
	if reading == nil || settings == nil {
		return recs
	}
	if reading.Power > settings.StandbyThresholdWatt {
		recs = append(recs, fmt.Sprintf(
			"Draw of %.0f W exceeds the standby threshold of %.0f W. Unplug the device or put it on a smart plug schedule when idle.",
			reading.Power, settings.StandbyThresholdWatt))
	}
	if reading.Power > settings.HighUsageThresholdWatt {
		recs = append(recs, fmt.Sprintf(
			"Device is using more power than the configured %.0f W limit (%.0f W). Check for heavy or faulty loads.",
			settings.HighUsageThresholdWatt, reading.Power))
	}
	return recs
}

// EnergyCost prices an amount of energy at the configured rate. Zero when
// settings are missing.
func (a EfficiencyAdvisor) EnergyCost(kWh float64, settings *domain.EnergySettings) float64 {
	if settings == nil {
		return 0
	}
	return kWh * settings.CostPerKwh
}
