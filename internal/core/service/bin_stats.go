package service

import (
	"time"

	"github.com/Havanyani/ecocartapp-sub009/internal/core/domain"
)

// BinUsageTracker folds decoded smart bin samples into the cumulative
// stats. Pure, like EnergyUsageTracker.
type BinUsageTracker struct {
	HistoryLimit int
}

func (t BinUsageTracker) historyLimit() int {
	if t.HistoryLimit > 0 {
		return t.HistoryLimit
	}
	return DEFAULT_HISTORY_LIMIT
}

// ApplyWeightSample accumulates added content weight and keeps a bounded
// history. Weight drops (content taken out) do not reduce the total.
func (t BinUsageTracker) ApplyWeightSample(stats domain.BinStats, prevWeight float64, weight float64, at time.Time) domain.BinStats {
	stats = ensureBinMaps(stats)
	if delta := weight - prevWeight; delta > 0 {
		stats.TotalWeight += delta
	}
	stats.WeightHistory = append(stats.WeightHistory, domain.WeightSample{Timestamp: at, Weight: weight})
	if limit := t.historyLimit(); len(stats.WeightHistory) > limit {
		stats.WeightHistory = stats.WeightHistory[len(stats.WeightHistory)-limit:]
	}
	return stats
}

// ApplyFillSample records a fill level sample: running average and bounded
// history.
func (t BinUsageTracker) ApplyFillSample(stats domain.BinStats, fillLevel uint8, at time.Time) domain.BinStats {
	stats = ensureBinMaps(stats)
	stats.FillSamples++
	stats.AverageFillLevel += (float64(fillLevel) - stats.AverageFillLevel) / float64(stats.FillSamples)
	stats.FillHistory = append(stats.FillHistory, domain.FillSample{Timestamp: at, FillLevel: fillLevel})
	if limit := t.historyLimit(); len(stats.FillHistory) > limit {
		stats.FillHistory = stats.FillHistory[len(stats.FillHistory)-limit:]
	}
	return stats
}

// ApplyMaterialDetection counts classifier transitions to a new label.
func (t BinUsageTracker) ApplyMaterialDetection(stats domain.BinStats, prev *string, next *string) domain.BinStats {
	stats = ensureBinMaps(stats)
	if next == nil {
		return stats
	}
	if prev != nil && *prev == *next {
		return stats
	}
	stats.MaterialsDetected[*next]++
	return stats
}

// RegisterEmptied marks an emptying: the content-scoped aggregates restart,
// the empty counter and detection history survive.
func (t BinUsageTracker) RegisterEmptied(stats domain.BinStats, at time.Time) domain.BinStats {
	stats = ensureBinMaps(stats)
	stats.EmptyCount++
	emptied := at
	stats.LastEmptied = &emptied
	stats.TotalWeight = 0
	stats.AverageFillLevel = 0
	stats.FillSamples = 0
	return stats
}

func ensureBinMaps(stats domain.BinStats) domain.BinStats {
	if stats.MaterialsDetected == nil {
		stats.MaterialsDetected = map[string]int{}
	}
	return stats
}
