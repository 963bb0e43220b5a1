package model

import (
	"time"

	"ai-analysis-ops/internal/domain"
)

// Tier is a purchase level fixing total parts and per-part duration
// expectations.
type Tier string

const (
	TierLow  Tier = "low"
	TierMid  Tier = "mid"
	TierHigh Tier = "high"
)

// TierConfig holds the fixed per-tier generation parameters.
type TierConfig struct {
	TotalParts            int
	EstimatedPartDuration time.Duration
	// MaxGenerationRetries bounds in-run part retries inside the
	// executor; the durable retry queue has its own independent cap.
	MaxGenerationRetries int
	// MinPartsForPartial is the least number of completed parts that
	// still counts as a deliverable partial result.
	MinPartsForPartial int
}

var tierConfigs = map[Tier]TierConfig{
	TierLow:  {TotalParts: 1, EstimatedPartDuration: 30 * time.Second, MaxGenerationRetries: 2, MinPartsForPartial: 1},
	TierMid:  {TotalParts: 2, EstimatedPartDuration: 45 * time.Second, MaxGenerationRetries: 3, MinPartsForPartial: 1},
	TierHigh: {TotalParts: 6, EstimatedPartDuration: 60 * time.Second, MaxGenerationRetries: 5, MinPartsForPartial: 4},
}

// ConfigForTier returns the fixed configuration for a tier, or
// domain.ErrUnknownTier for anything outside the three levels.
func ConfigForTier(t Tier) (TierConfig, error) {
	cfg, ok := tierConfigs[t]
	if !ok {
		return TierConfig{}, domain.ErrUnknownTier
	}
	return cfg, nil
}

// Valid reports whether t is one of the three purchase levels.
func (t Tier) Valid() bool {
	_, ok := tierConfigs[t]
	return ok
}
