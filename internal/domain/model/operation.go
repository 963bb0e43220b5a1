package model

import (
	"math"
	"time"
)

// OperationState is the lifecycle state of a purchased analysis operation.
type OperationState string

const (
	StateInitialized   OperationState = "initialized"
	StateGenerating    OperationState = "generating"
	StatePartCompleted OperationState = "part_completed"
	StateFailed        OperationState = "failed"
	StatePaused        OperationState = "paused"
	StateCancelled     OperationState = "cancelled"
	StateCompleted     OperationState = "completed"
)

// validTransitions is the full transition table. Terminal states
// (completed, cancelled) have no outgoing edges. Self-transitions are
// never valid; unknown states are invalid as source or target.
var validTransitions = map[OperationState][]OperationState{
	StateInitialized:   {StateGenerating, StateCancelled},
	StateGenerating:    {StatePartCompleted, StateFailed, StatePaused, StateCancelled},
	StatePartCompleted: {StateGenerating, StateCompleted, StatePaused, StateCancelled},
	StatePaused:        {StateGenerating, StateCancelled},
	StateFailed:        {StateGenerating, StateCancelled},
	StateCompleted:     {},
	StateCancelled:     {},
}

// IsValidTransition reports whether from -> to is a permitted state
// change. It is a pure function with no side effects; every mutator
// must consult it before persisting anything.
func IsValidTransition(from, to OperationState) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, t := range targets {
		if t == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the state permits no further transitions.
func (s OperationState) IsTerminal() bool {
	return s == StateCompleted || s == StateCancelled
}

// Known reports whether s is one of the lifecycle states.
func (s OperationState) Known() bool {
	_, ok := validTransitions[s]
	return ok
}

// TriggerSource identifies who or what caused the most recent transition.
type TriggerSource string

const (
	TriggerUser       TriggerSource = "user"
	TriggerSystem     TriggerSource = "system"
	TriggerAdmin      TriggerSource = "admin"
	TriggerRetryQueue TriggerSource = "retry_queue"
)

// Operation is one purchased multi-part analysis job tracked end-to-end.
// The row is denormalized state; the event log is the canonical history.
type Operation struct {
	OperationID string
	SessionID   string
	Tier        Tier
	State       OperationState

	TotalParts     int
	CompletedParts int
	CurrentPart    *int

	StartedAt             *time.Time
	LastPartCompletedAt   *time.Time
	CompletedAt           *time.Time
	EstimatedCompletionAt *time.Time

	LastError   string
	LastErrorAt *time.Time
	FailedPart  *int
	RetryCount  int

	TriggeredBy TriggerSource
	AdminNotes  string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Progress returns the completion percentage, rounded to the nearest
// integer. Computed fresh on every read; never stored.
func (o *Operation) Progress() int {
	if o.TotalParts <= 0 {
		return 0
	}
	return int(math.Round(float64(o.CompletedParts) / float64(o.TotalParts) * 100))
}

// EstimateCompletion projects the finish time from the remaining parts
// and the tier's expected per-part duration.
func (o *Operation) EstimateCompletion(now time.Time) time.Time {
	cfg, err := ConfigForTier(o.Tier)
	if err != nil {
		return now
	}
	remaining := o.TotalParts - o.CompletedParts
	if remaining < 0 {
		remaining = 0
	}
	return now.Add(time.Duration(remaining) * cfg.EstimatedPartDuration)
}
