package model

import (
	"math"
	"sort"
	"sync"
	"time"
)

// PartialResult is one completed generation step held in memory while
// an operation is in flight.
type PartialResult struct {
	PartNumber  int
	Content     string
	TokenCount  int
	CompletedAt time.Time
}

// PartialResults tracks per-part output during a single generation
// run, so already-completed parts survive a mid-run failure and the
// redrive only regenerates what is missing.
type PartialResults struct {
	mu         sync.RWMutex
	sessionID  string
	totalParts int
	parts      map[int]PartialResult
}

func NewPartialResults(sessionID string, totalParts int) *PartialResults {
	return &PartialResults{
		sessionID:  sessionID,
		totalParts: totalParts,
		parts:      make(map[int]PartialResult),
	}
}

func (p *PartialResults) MarkComplete(partNumber int, content string, tokens int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.parts[partNumber] = PartialResult{
		PartNumber:  partNumber,
		Content:     content,
		TokenCount:  tokens,
		CompletedAt: time.Now(),
	}
}

// Has reports whether a part already completed in this run.
func (p *PartialResults) Has(partNumber int) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.parts[partNumber]
	return ok
}

// Completed returns the finished parts ordered by part number.
func (p *PartialResults) Completed() []PartialResult {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]PartialResult, 0, len(p.parts))
	for _, pr := range p.parts {
		out = append(out, pr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PartNumber < out[j].PartNumber })
	return out
}

// Missing returns the part numbers not yet completed, ascending.
func (p *PartialResults) Missing() []int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var missing []int
	for i := 1; i <= p.totalParts; i++ {
		if _, ok := p.parts[i]; !ok {
			missing = append(missing, i)
		}
	}
	return missing
}

// Percentage returns completion as a rounded percentage.
func (p *PartialResults) Percentage() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.totalParts <= 0 {
		return 0
	}
	return int(math.Round(float64(len(p.parts)) / float64(p.totalParts) * 100))
}
