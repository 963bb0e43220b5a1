package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ai-analysis-ops/internal/domain"
	"ai-analysis-ops/internal/domain/model"
	"ai-analysis-ops/internal/domain/ports/adapter"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ adapter.JobExecutor = (*analysisExecutor)(nil)

// CircuitBreaker gates calls to the AI service. Allow returns
// domain.ErrCircuitOpen while the breaker refuses traffic.
type CircuitBreaker interface {
	Allow() error
	RecordSuccess()
	RecordFailureErr(err error)
}

const partRetryDelay = 2 * time.Second

// analysisExecutor runs one analysis operation end to end: it walks
// the tier's parts, calls the AI service behind the circuit breaker,
// and drives the operation lifecycle as parts complete or fail.
type analysisExecutor struct {
	ops     OperationUseCase
	ai      adapter.AIServiceAdapter
	breaker CircuitBreaker
	metrics MetricsUseCase
	log     *zerolog.Logger
}

func NewAnalysisExecutor(
	ops OperationUseCase,
	ai adapter.AIServiceAdapter,
	breaker CircuitBreaker,
	metrics MetricsUseCase,
	logger *zerolog.Logger,
) *analysisExecutor {
	l := logger.With().Str("component", "AnalysisExecutor").Logger()
	return &analysisExecutor{ops: ops, ai: ai, breaker: breaker, metrics: metrics, log: &l}
}

// Execute runs or resumes the analysis for sessionID. The returned
// bool reports full success; a false with a nil error means the run
// stopped for a non-failure reason (pause or cancellation).
func (e *analysisExecutor) Execute(ctx context.Context, sessionID string, tier model.Tier, problemStatement string) (bool, error) {
	cfg, err := model.ConfigForTier(tier)
	if err != nil {
		return false, err
	}

	op, err := e.resolveOperation(ctx, sessionID, tier)
	if err != nil {
		return false, err
	}
	if op.State.IsTerminal() {
		return op.State == model.StateCompleted, nil
	}

	partial := model.NewPartialResults(sessionID, op.TotalParts)
	for p := 1; p <= op.CompletedParts; p++ {
		partial.MarkComplete(p, "", 0)
	}

	runStart := time.Now()
	for part := op.CompletedParts + 1; part <= op.TotalParts; part++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		// A fresh reload catches admin pause/cancel between parts.
		op, err = e.ops.Get(ctx, op.OperationID)
		if err != nil {
			return false, err
		}
		switch op.State {
		case model.StatePaused:
			e.log.Info().Str("operation_id", op.OperationID).Int("part", part).Msg("operation paused, stopping run")
			return false, nil
		case model.StateCancelled:
			e.log.Info().Str("operation_id", op.OperationID).Int("part", part).Msg("operation cancelled, stopping run")
			return false, nil
		}

		if op.State == model.StatePartCompleted {
			if err := e.ops.StartPart(ctx, op.OperationID, part, SystemActor); err != nil {
				return false, err
			}
		}

		content, usage, dur, genErr := e.generatePart(ctx, cfg, tier, problemStatement, part)
		if genErr != nil {
			e.failRun(ctx, op, tier, part, partial, cfg, runStart, genErr)
			return false, genErr
		}

		tokens := usage.TotalTokens
		partial.MarkComplete(part, content, tokens)
		if err := e.ops.CompletePart(ctx, op.OperationID, part, dur.Milliseconds(), tokens, SystemActor); err != nil {
			return false, err
		}
		e.metrics.RecordPartCompletion(ctx, sessionID, tier, part, dur.Milliseconds())
	}

	e.metrics.RecordSuccess(ctx, sessionID, tier, time.Since(runStart).Milliseconds())
	e.log.Info().
		Str("session_id", sessionID).
		Str("tier", string(tier)).
		Dur("took", time.Since(runStart)).
		Msg("analysis completed")
	return true, nil
}

// resolveOperation finds the session's current operation, creating
// and starting a new one when none exists yet. A failed operation is
// expected to have been moved back to generating by the caller before
// Execute runs.
func (e *analysisExecutor) resolveOperation(ctx context.Context, sessionID string, tier model.Tier) (*model.Operation, error) {
	op, err := e.ops.GetBySession(ctx, sessionID)
	if errors.Is(err, domain.ErrNotFound) {
		op, err = e.ops.Create(ctx, sessionID, tier, model.TriggerSystem)
		if err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	if op.State == model.StateInitialized {
		if err := e.ops.Start(ctx, op.OperationID, SystemActor); err != nil {
			return nil, err
		}
		return e.ops.Get(ctx, op.OperationID)
	}
	return op, nil
}

// generatePart produces one part, retrying transient errors up to the
// tier's per-generation limit. Every AI call goes through the breaker.
func (e *analysisExecutor) generatePart(ctx context.Context, cfg model.TierConfig, tier model.Tier, problemStatement string, part int) (string, adapter.Usage, time.Duration, error) {
	messages := buildPartPrompt(tier, cfg.TotalParts, part, problemStatement)

	// Pre-count the prompt locally. The count backfills the usage
	// report for gateways that omit one.
	promptTokens, err := e.ai.CountTokens(ctx, messages)
	if err != nil {
		e.log.Debug().Err(err).Int("part", part).Msg("could not count prompt tokens")
		promptTokens = 0
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxGenerationRetries; attempt++ {
		if err := e.breaker.Allow(); err != nil {
			return "", adapter.Usage{}, 0, err
		}

		start := time.Now()
		content, usage, err := e.ai.Complete(ctx, messages)
		took := time.Since(start)
		if err == nil {
			e.breaker.RecordSuccess()
			if usage.TotalTokens == 0 {
				usage.PromptTokens = promptTokens
				usage.TotalTokens = promptTokens
			}
			return content, usage, took, nil
		}

		e.breaker.RecordFailureErr(err)
		lastErr = err
		if !domain.IsRetryable(err) || errors.Is(ctx.Err(), context.Canceled) {
			break
		}
		e.log.Warn().
			Err(err).
			Int("part", part).
			Int("attempt", attempt).
			Int("max_attempts", cfg.MaxGenerationRetries).
			Msg("part generation failed, retrying")
		select {
		case <-ctx.Done():
			return "", adapter.Usage{}, 0, ctx.Err()
		case <-time.After(partRetryDelay):
		}
	}
	return "", adapter.Usage{}, 0, lastErr
}

// failRun records the failure on the operation and in metrics. When
// enough parts completed before the failure, the run also counts as a
// partial success.
func (e *analysisExecutor) failRun(ctx context.Context, op *model.Operation, tier model.Tier, part int, partial *model.PartialResults, cfg model.TierConfig, runStart time.Time, genErr error) {
	code := domain.ErrorCode(genErr)
	if err := e.ops.Fail(ctx, op.OperationID, &part, code, genErr.Error(), SystemActor); err != nil {
		e.log.Error().Err(err).Str("operation_id", op.OperationID).Msg("failed to record operation failure")
	}
	e.metrics.RecordFailure(ctx, op.SessionID, tier, time.Since(runStart).Milliseconds(), code, genErr.Error())

	if completed := len(partial.Completed()); completed >= cfg.MinPartsForPartial {
		e.metrics.Record(ctx, RecordMetricParams{
			SessionID: op.SessionID,
			Tier:      tier,
			EventType: model.MetricPartialSuccess,
			Metadata:  map[string]any{"completedParts": completed, "totalParts": op.TotalParts},
		})
		e.log.Info().
			Str("session_id", op.SessionID).
			Int("completed_parts", completed).
			Int("total_parts", op.TotalParts).
			Msg("partial results available despite failure")
	}
}

func buildPartPrompt(tier model.Tier, totalParts, part int, problemStatement string) []adapter.Message {
	system := fmt.Sprintf(
		"You are an expert analyst producing a %s-tier analysis in %d parts. "+
			"Write part %d only. Be thorough and do not repeat earlier parts.",
		tier, totalParts, part)
	user := fmt.Sprintf("Problem statement:\n%s\n\nProduce part %d of %d of the analysis.", problemStatement, part, totalParts)
	return []adapter.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}
}
