package model

import "time"

// EventType identifies a state transition or noteworthy action on an
// operation.
type EventType string

const (
	EventOperationStarted   EventType = "operation_started"
	EventPartStarted        EventType = "part_started"
	EventPartCompleted      EventType = "part_completed"
	EventPartFailed         EventType = "part_failed"
	EventOperationCompleted EventType = "operation_completed"
	EventOperationFailed    EventType = "operation_failed"
	EventOperationPaused    EventType = "operation_paused"
	EventOperationResumed   EventType = "operation_resumed"
	EventOperationCancelled EventType = "operation_cancelled"
	EventOperationRetried   EventType = "operation_retried"
	EventAdminIntervention  EventType = "admin_intervention"
)

// ActorType identifies who performed the action behind an event.
type ActorType string

const (
	ActorSystem ActorType = "system"
	ActorAdmin  ActorType = "admin"
	ActorUser   ActorType = "user"
)

// OperationEvent is one immutable record in an operation's history.
// Events are write-once, read-many; the ordered sequence for an
// operation is the canonical audit trail and must replay to the same
// state the denormalized row holds.
type OperationEvent struct {
	ID          string
	OperationID string
	SessionID   string
	EventType   EventType
	PartNumber  *int

	PreviousState OperationState
	NewState      OperationState

	ErrorCode    string
	ErrorMessage string
	DurationMs   *int64
	TokenCount   *int

	ActorType ActorType
	ActorID   string
	Metadata  map[string]any
	CreatedAt time.Time
}

// ReplayState folds an ordered event sequence into the state and
// completed-part count it implies. Used to verify the denormalized
// Operation row against the log.
func ReplayState(events []*OperationEvent) (OperationState, int) {
	state := StateInitialized
	completed := 0
	for _, e := range events {
		if e.NewState != "" {
			state = e.NewState
		}
		if e.EventType == EventPartCompleted {
			completed++
		}
	}
	return state, completed
}
