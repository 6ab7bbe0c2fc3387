package service

import (
	"time"

	"github.com/Havanyani/ecocartapp-sub009/internal/core/domain"
)

const DEFAULT_HISTORY_LIMIT = 288

const (
	dayKeyFormat  = "2006-01-02"
	hourKeyFormat = "2006-01-02T15"
)

// EnergyUsageTracker folds decoded energy monitor samples into the
// cumulative stats. Pure; the adapter owns the state and replaces it with
// each result.
type EnergyUsageTracker struct {
	HistoryLimit int
}

func (t EnergyUsageTracker) historyLimit() int {
	if t.HistoryLimit > 0 {
		return t.HistoryLimit
	}
	return DEFAULT_HISTORY_LIMIT
}

// ApplyPowerSample records an instantaneous power sample: peak, running
// average and bounded history.
func (t EnergyUsageTracker) ApplyPowerSample(stats domain.EnergyStats, power float64, at time.Time) domain.EnergyStats {
	stats = ensureEnergyMaps(stats)
	if power > stats.PeakUsage {
		stats.PeakUsage = power
	}
	stats.PowerSamples++
	stats.AveragePower += (power - stats.AveragePower) / float64(stats.PowerSamples)
	stats.UsageHistory = append(stats.UsageHistory, domain.PowerSample{Timestamp: at, Power: power})
	if limit := t.historyLimit(); len(stats.UsageHistory) > limit {
		stats.UsageHistory = stats.UsageHistory[len(stats.UsageHistory)-limit:]
	}
	return stats
}

// ApplyEnergyTotal folds the device's cumulative energy counter into the
// day totals. Non-positive deltas are ignored: the device counter never
// goes backwards except across a firmware reset, which must not produce
// negative usage.
func (t EnergyUsageTracker) ApplyEnergyTotal(stats domain.EnergyStats, prevKWh float64, newKWh float64, costPerKwh float64, at time.Time) domain.EnergyStats {
	stats = ensureEnergyMaps(stats)
	delta := newKWh - prevKWh
	if delta <= 0 {
		return stats
	}
	stats.TotalEnergyToday += delta
	stats.TotalEnergyCost += delta * costPerKwh
	stats.DailyUsage[at.Format(dayKeyFormat)] += delta
	stats.HourlyUsage[at.Format(hourKeyFormat)] += delta
	return stats
}

// ApplyApplianceDetection counts classifier transitions to a new label.
func (t EnergyUsageTracker) ApplyApplianceDetection(stats domain.EnergyStats, prev *string, next *string) domain.EnergyStats {
	stats = ensureEnergyMaps(stats)
	if next == nil {
		return stats
	}
	if prev != nil && *prev == *next {
		return stats
	}
	stats.DetectedAppliances[*next]++
	return stats
}

// Reset zeroes the day totals, peak and average and clears the usage
// history. Detected appliances and the daily/hourly buckets survive.
func (t EnergyUsageTracker) Reset(stats domain.EnergyStats) domain.EnergyStats {
	stats = ensureEnergyMaps(stats)
	stats.TotalEnergyToday = 0
	stats.TotalEnergyCost = 0
	stats.PeakUsage = 0
	stats.AveragePower = 0
	stats.PowerSamples = 0
	stats.UsageHistory = nil
	return stats
}

// Rollover closes the day at midnight: today's totals restart at zero.
// The daily/hourly buckets already hold the finished day.
func (t EnergyUsageTracker) Rollover(stats domain.EnergyStats) domain.EnergyStats {
	stats = ensureEnergyMaps(stats)
	stats.TotalEnergyToday = 0
	stats.TotalEnergyCost = 0
	return stats
}

func ensureEnergyMaps(stats domain.EnergyStats) domain.EnergyStats {
	if stats.DetectedAppliances == nil {
		stats.DetectedAppliances = map[string]int{}
	}
	if stats.DailyUsage == nil {
		stats.DailyUsage = map[string]float64{}
	}
	if stats.HourlyUsage == nil {
		stats.HourlyUsage = map[string]float64{}
	}
	return stats
}
