package usecase

import (
	"context"
	"fmt"
	"time"

	"ai-analysis-ops/internal/domain"
	"ai-analysis-ops/internal/domain/model"
	"ai-analysis-ops/internal/domain/ports/repository"
	"ai-analysis-ops/internal/infra/metrics"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

// Compile-time check
var _ OperationUseCase = (*operationUC)(nil)

// Actor identifies who is performing a mutation.
type Actor struct {
	Type model.ActorType
	ID   string
}

var SystemActor = Actor{Type: model.ActorSystem, ID: "engine"}

// OperationUseCase is the lifecycle engine for analysis operations.
// Every mutator validates the transition against the state machine
// before touching storage, and writes the operation row together with
// its event in one transaction so the denormalized state and the
// event log can never diverge.
type OperationUseCase interface {
	Create(ctx context.Context, sessionID string, tier model.Tier, trigger model.TriggerSource) (*model.Operation, error)
	Start(ctx context.Context, operationID string, actor Actor) error
	StartPart(ctx context.Context, operationID string, partNumber int, actor Actor) error
	CompletePart(ctx context.Context, operationID string, partNumber int, durationMs int64, tokenCount int, actor Actor) error
	Fail(ctx context.Context, operationID string, partNumber *int, errorCode, errorMessage string, actor Actor) error
	Pause(ctx context.Context, operationID string, actor Actor, note string) error
	Resume(ctx context.Context, operationID string, actor Actor, note string) error
	Cancel(ctx context.Context, operationID string, actor Actor, note string) error
	Retry(ctx context.Context, operationID string, actor Actor, trigger model.TriggerSource) error
	RetryBySession(ctx context.Context, sessionID string, actor Actor, trigger model.TriggerSource) error
	AddAdminNote(ctx context.Context, operationID string, actor Actor, note string) error

	Get(ctx context.Context, operationID string) (*model.Operation, error)
	GetBySession(ctx context.Context, sessionID string) (*model.Operation, error)
	// ListByState returns up to limit operations in the given state,
	// oldest first.
	ListByState(ctx context.Context, state model.OperationState, limit int) ([]*model.Operation, error)
	Events(ctx context.Context, operationID string) ([]*model.OperationEvent, error)
	// VerifyHistory replays the event log and reports whether it agrees
	// with the denormalized row.
	VerifyHistory(ctx context.Context, operationID string) (bool, error)
}

type operationUC struct {
	ops    repository.OperationRepository
	events repository.OperationEventRepository
	tm     repository.TransactionManager
	log    *zerolog.Logger
}

func NewOperationUseCase(
	ops repository.OperationRepository,
	events repository.OperationEventRepository,
	tm repository.TransactionManager,
	logger *zerolog.Logger,
) *operationUC {
	l := logger.With().Str("component", "OperationUC").Logger()
	return &operationUC{ops: ops, events: events, tm: tm, log: &l}
}

func (u *operationUC) Create(ctx context.Context, sessionID string, tier model.Tier, trigger model.TriggerSource) (*model.Operation, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("create operation: %w: sessionID required", domain.ErrInvalidArgument)
	}
	cfg, err := model.ConfigForTier(tier)
	if err != nil {
		return nil, fmt.Errorf("create operation: %w", err)
	}

	now := time.Now()
	op := &model.Operation{
		OperationID: uuid.NewString(),
		SessionID:   sessionID,
		Tier:        tier,
		State:       model.StateInitialized,
		TotalParts:  cfg.TotalParts,
		TriggeredBy: trigger,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	est := op.EstimateCompletion(now)
	op.EstimatedCompletionAt = &est

	if err := u.ops.Save(ctx, repository.NoTX, op); err != nil {
		return nil, fmt.Errorf("create operation: %w", err)
	}
	u.log.Info().Str("operation_id", op.OperationID).Str("session_id", sessionID).Str("tier", string(tier)).Msg("operation created")
	return op, nil
}

// transition applies one validated state change plus its event(s)
// atomically. mutate adjusts the loaded operation after the state is
// set; extraEvents may emit a follow-up event in the same transaction.
func (u *operationUC) transition(
	ctx context.Context,
	op *model.Operation,
	to model.OperationState,
	ev *model.OperationEvent,
	mutate func(op *model.Operation),
) error {
	from := op.State
	if !model.IsValidTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s (operation %s)", domain.ErrInvalidTransition, from, to, op.OperationID)
	}

	now := time.Now()
	op.State = to
	op.UpdatedAt = now
	if mutate != nil {
		mutate(op)
	}

	ev.ID = ulid.Make().String()
	ev.OperationID = op.OperationID
	ev.SessionID = op.SessionID
	ev.PreviousState = from
	ev.NewState = to
	ev.CreatedAt = now

	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := u.ops.Save(ctx, tx, op); err != nil {
			return err
		}
		return u.events.Append(ctx, tx, ev)
	})
	if err != nil {
		// Roll the in-memory copy back so callers do not observe a
		// state the store never accepted.
		op.State = from
		return fmt.Errorf("transition %s -> %s: %w", from, to, err)
	}

	metrics.IncOperationTransition(string(from), string(to))
	u.log.Info().
		Str("operation_id", op.OperationID).
		Str("from", string(from)).
		Str("to", string(to)).
		Str("event", string(ev.EventType)).
		Msg("operation transition")
	return nil
}

func (u *operationUC) Start(ctx context.Context, operationID string, actor Actor) error {
	op, err := u.Get(ctx, operationID)
	if err != nil {
		return err
	}
	return u.transition(ctx, op, model.StateGenerating,
		&model.OperationEvent{
			EventType: model.EventOperationStarted,
			ActorType: actor.Type,
			ActorID:   actor.ID,
		},
		func(op *model.Operation) {
			now := time.Now()
			op.StartedAt = &now
			part := 1
			op.CurrentPart = &part
			est := op.EstimateCompletion(now)
			op.EstimatedCompletionAt = &est
		})
}

func (u *operationUC) StartPart(ctx context.Context, operationID string, partNumber int, actor Actor) error {
	op, err := u.Get(ctx, operationID)
	if err != nil {
		return err
	}
	if partNumber < 1 || partNumber > op.TotalParts {
		return fmt.Errorf("start part: %w: part %d of %d", domain.ErrInvalidArgument, partNumber, op.TotalParts)
	}
	return u.transition(ctx, op, model.StateGenerating,
		&model.OperationEvent{
			EventType:  model.EventPartStarted,
			PartNumber: &partNumber,
			ActorType:  actor.Type,
			ActorID:    actor.ID,
		},
		func(op *model.Operation) {
			op.CurrentPart = &partNumber
		})
}

func (u *operationUC) CompletePart(ctx context.Context, operationID string, partNumber int, durationMs int64, tokenCount int, actor Actor) error {
	op, err := u.Get(ctx, operationID)
	if err != nil {
		return err
	}
	if op.CompletedParts >= op.TotalParts {
		return fmt.Errorf("complete part: %w: all %d parts already completed", domain.ErrInvalidArgument, op.TotalParts)
	}

	err = u.transition(ctx, op, model.StatePartCompleted,
		&model.OperationEvent{
			EventType:  model.EventPartCompleted,
			PartNumber: &partNumber,
			DurationMs: &durationMs,
			TokenCount: &tokenCount,
			ActorType:  actor.Type,
			ActorID:    actor.ID,
		},
		func(op *model.Operation) {
			now := time.Now()
			op.CompletedParts++
			op.LastPartCompletedAt = &now
			op.CurrentPart = nil
			est := op.EstimateCompletion(now)
			op.EstimatedCompletionAt = &est
		})
	if err != nil {
		return err
	}

	if op.CompletedParts >= op.TotalParts {
		return u.transition(ctx, op, model.StateCompleted,
			&model.OperationEvent{
				EventType: model.EventOperationCompleted,
				ActorType: actor.Type,
				ActorID:   actor.ID,
			},
			func(op *model.Operation) {
				now := time.Now()
				op.CompletedAt = &now
				op.EstimatedCompletionAt = &now
			})
	}
	return nil
}

func (u *operationUC) Fail(ctx context.Context, operationID string, partNumber *int, errorCode, errorMessage string, actor Actor) error {
	op, err := u.Get(ctx, operationID)
	if err != nil {
		return err
	}
	ev := &model.OperationEvent{
		EventType:    model.EventOperationFailed,
		PartNumber:   partNumber,
		ErrorCode:    errorCode,
		ErrorMessage: model.TruncateError(errorMessage, model.MaxStoredErrorLen),
		ActorType:    actor.Type,
		ActorID:      actor.ID,
	}
	return u.transition(ctx, op, model.StateFailed, ev, func(op *model.Operation) {
		now := time.Now()
		op.LastError = model.TruncateError(errorMessage, model.MaxStoredErrorLen)
		op.LastErrorAt = &now
		op.FailedPart = partNumber
		op.CurrentPart = nil
	})
}

func (u *operationUC) Pause(ctx context.Context, operationID string, actor Actor, note string) error {
	op, err := u.Get(ctx, operationID)
	if err != nil {
		return err
	}
	return u.transition(ctx, op, model.StatePaused,
		&model.OperationEvent{
			EventType: model.EventOperationPaused,
			ActorType: actor.Type,
			ActorID:   actor.ID,
		},
		func(op *model.Operation) {
			appendNote(op, note)
			if actor.Type == model.ActorAdmin {
				op.TriggeredBy = model.TriggerAdmin
			}
		})
}

func (u *operationUC) Resume(ctx context.Context, operationID string, actor Actor, note string) error {
	op, err := u.Get(ctx, operationID)
	if err != nil {
		return err
	}
	return u.transition(ctx, op, model.StateGenerating,
		&model.OperationEvent{
			EventType: model.EventOperationResumed,
			ActorType: actor.Type,
			ActorID:   actor.ID,
		},
		func(op *model.Operation) {
			appendNote(op, note)
			est := op.EstimateCompletion(time.Now())
			op.EstimatedCompletionAt = &est
		})
}

func (u *operationUC) Cancel(ctx context.Context, operationID string, actor Actor, note string) error {
	op, err := u.Get(ctx, operationID)
	if err != nil {
		return err
	}
	return u.transition(ctx, op, model.StateCancelled,
		&model.OperationEvent{
			EventType: model.EventOperationCancelled,
			ActorType: actor.Type,
			ActorID:   actor.ID,
		},
		func(op *model.Operation) {
			appendNote(op, note)
			op.CurrentPart = nil
		})
}

// Retry moves a failed operation back into generation. This is the
// only path that increments RetryCount.
func (u *operationUC) Retry(ctx context.Context, operationID string, actor Actor, trigger model.TriggerSource) error {
	op, err := u.Get(ctx, operationID)
	if err != nil {
		return err
	}
	return u.retry(ctx, op, actor, trigger)
}

func (u *operationUC) RetryBySession(ctx context.Context, sessionID string, actor Actor, trigger model.TriggerSource) error {
	op, err := u.GetBySession(ctx, sessionID)
	if err != nil {
		return err
	}
	return u.retry(ctx, op, actor, trigger)
}

func (u *operationUC) retry(ctx context.Context, op *model.Operation, actor Actor, trigger model.TriggerSource) error {
	return u.transition(ctx, op, model.StateGenerating,
		&model.OperationEvent{
			EventType: model.EventOperationRetried,
			ActorType: actor.Type,
			ActorID:   actor.ID,
			Metadata:  map[string]any{"retry_count": op.RetryCount + 1},
		},
		func(op *model.Operation) {
			op.RetryCount++
			op.TriggeredBy = trigger
			est := op.EstimateCompletion(time.Now())
			op.EstimatedCompletionAt = &est
		})
}

// AddAdminNote records an admin_intervention event without a state
// change. The note is appended to the row and the event is written in
// the same transaction.
func (u *operationUC) AddAdminNote(ctx context.Context, operationID string, actor Actor, note string) error {
	op, err := u.Get(ctx, operationID)
	if err != nil {
		return err
	}
	now := time.Now()
	appendNote(op, note)
	op.UpdatedAt = now

	ev := &model.OperationEvent{
		ID:            ulid.Make().String(),
		OperationID:   op.OperationID,
		SessionID:     op.SessionID,
		EventType:     model.EventAdminIntervention,
		PreviousState: op.State,
		NewState:      op.State,
		ActorType:     actor.Type,
		ActorID:       actor.ID,
		Metadata:      map[string]any{"note": note},
		CreatedAt:     now,
	}
	return u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := u.ops.Save(ctx, tx, op); err != nil {
			return err
		}
		return u.events.Append(ctx, tx, ev)
	})
}

func (u *operationUC) Get(ctx context.Context, operationID string) (*model.Operation, error) {
	return u.ops.FindByOperationID(ctx, repository.NoTX, operationID)
}

func (u *operationUC) GetBySession(ctx context.Context, sessionID string) (*model.Operation, error) {
	return u.ops.FindBySessionID(ctx, repository.NoTX, sessionID)
}

func (u *operationUC) ListByState(ctx context.Context, state model.OperationState, limit int) ([]*model.Operation, error) {
	if !state.Known() {
		return nil, fmt.Errorf("list operations: %w: state %q", domain.ErrInvalidArgument, state)
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return u.ops.ListByState(ctx, repository.NoTX, state, limit)
}

func (u *operationUC) Events(ctx context.Context, operationID string) ([]*model.OperationEvent, error) {
	return u.events.ListForOperation(ctx, repository.NoTX, operationID)
}

func (u *operationUC) VerifyHistory(ctx context.Context, operationID string) (bool, error) {
	op, err := u.Get(ctx, operationID)
	if err != nil {
		return false, err
	}
	events, err := u.Events(ctx, operationID)
	if err != nil {
		return false, err
	}
	state, completed := model.ReplayState(events)
	ok := state == op.State && completed == op.CompletedParts
	if !ok {
		u.log.Warn().
			Str("operation_id", operationID).
			Str("row_state", string(op.State)).
			Str("replayed_state", string(state)).
			Int("row_parts", op.CompletedParts).
			Int("replayed_parts", completed).
			Msg("event log disagrees with operation row")
	}
	return ok, nil
}

func appendNote(op *model.Operation, note string) {
	if note == "" {
		return
	}
	if op.AdminNotes != "" {
		op.AdminNotes += "\n"
	}
	op.AdminNotes += note
}
