// File: internal/usecase/analysis_executor_test.go
package usecase

import (
	"context"
	"errors"
	"testing"

	"ai-analysis-ops/internal/domain"
	"ai-analysis-ops/internal/domain/model"
	"ai-analysis-ops/internal/domain/ports/adapter"
)

type executorTestDeps struct {
	ops        *memOperationRepo
	metricRepo *memMetricRepo
	ai         *stubAI
	breaker    *stubBreaker
	opsUC      OperationUseCase
	executor   adapter.JobExecutor
}

func newExecutorDeps() *executorTestDeps {
	deps := &executorTestDeps{
		ops:        newMemOperationRepo(),
		metricRepo: newMemMetricRepo(),
		ai:         &stubAI{},
		breaker:    &stubBreaker{},
	}
	deps.opsUC = NewOperationUseCase(deps.ops, newMemEventRepo(), &mockTxManager{}, newTestLogger())
	metrics := NewMetricsUseCase(deps.metricRepo, newTestLogger())
	deps.executor = NewAnalysisExecutor(deps.opsUC, deps.ai, deps.breaker, metrics, newTestLogger())
	return deps
}

func (d *executorTestDeps) countMetric(eventType model.MetricEventType) int {
	n := 0
	for _, r := range d.metricRepo.raw {
		if r.EventType == eventType {
			n++
		}
	}
	return n
}

func TestAnalysisExecutor_Execute(t *testing.T) {
	ctx := context.Background()

	t.Run("runs a fresh session through every part", func(t *testing.T) {
		deps := newExecutorDeps()
		ok, err := deps.executor.Execute(ctx, "sess-1", model.TierMid, "analyze churn")
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if !ok {
			t.Fatal("expected a successful run")
		}

		op, err := deps.opsUC.GetBySession(ctx, "sess-1")
		if err != nil {
			t.Fatalf("GetBySession: %v", err)
		}
		if op.State != model.StateCompleted {
			t.Errorf("state = %s, want completed", op.State)
		}
		if op.CompletedParts != 2 {
			t.Errorf("CompletedParts = %d, want 2", op.CompletedParts)
		}
		if deps.ai.calls != 2 {
			t.Errorf("AI calls = %d, want 2", deps.ai.calls)
		}
		if deps.breaker.successes != 2 {
			t.Errorf("breaker successes = %d, want 2", deps.breaker.successes)
		}
		if got := deps.countMetric(model.MetricPartComplete); got != 2 {
			t.Errorf("part_complete metrics = %d, want 2", got)
		}
		if got := deps.countMetric(model.MetricSuccess); got != 1 {
			t.Errorf("success metrics = %d, want 1", got)
		}
	})

	t.Run("resumes from already completed parts", func(t *testing.T) {
		deps := newExecutorDeps()
		op, err := deps.opsUC.Create(ctx, "sess-1", model.TierMid, model.TriggerUser)
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if err := deps.opsUC.Start(ctx, op.OperationID, SystemActor); err != nil {
			t.Fatalf("Start: %v", err)
		}
		if err := deps.opsUC.CompletePart(ctx, op.OperationID, 1, 500, 200, SystemActor); err != nil {
			t.Fatalf("CompletePart: %v", err)
		}

		ok, err := deps.executor.Execute(ctx, "sess-1", model.TierMid, "analyze churn")
		if err != nil || !ok {
			t.Fatalf("Execute = (%v, %v), want success", ok, err)
		}
		if deps.ai.calls != 1 {
			t.Errorf("AI calls = %d, want 1 (only the missing part)", deps.ai.calls)
		}
	})

	t.Run("terminal operations are not rerun", func(t *testing.T) {
		deps := newExecutorDeps()
		if _, err := deps.executor.Execute(ctx, "sess-1", model.TierLow, "x"); err != nil {
			t.Fatalf("first run: %v", err)
		}
		calls := deps.ai.calls

		ok, err := deps.executor.Execute(ctx, "sess-1", model.TierLow, "x")
		if err != nil {
			t.Fatalf("second run: %v", err)
		}
		if !ok {
			t.Error("a completed operation should report success")
		}
		if deps.ai.calls != calls {
			t.Errorf("AI called again on a terminal operation")
		}
	})

	t.Run("permanent error fails the operation on the failing part", func(t *testing.T) {
		deps := newExecutorDeps()
		deps.ai.CompleteFunc = func(context.Context, []adapter.Message) (string, adapter.Usage, error) {
			return "", adapter.Usage{}, errors.New("invalid api key")
		}

		ok, err := deps.executor.Execute(ctx, "sess-1", model.TierLow, "x")
		if ok || err == nil {
			t.Fatalf("Execute = (%v, %v), want failure", ok, err)
		}

		op, _ := deps.opsUC.GetBySession(ctx, "sess-1")
		if op.State != model.StateFailed {
			t.Errorf("state = %s, want failed", op.State)
		}
		if op.FailedPart == nil || *op.FailedPart != 1 {
			t.Errorf("FailedPart = %v, want 1", op.FailedPart)
		}
		// A permanent error must not burn the retry budget.
		if deps.ai.calls != 1 {
			t.Errorf("AI calls = %d, want 1", deps.ai.calls)
		}
		if got := deps.countMetric(model.MetricFailure); got != 1 {
			t.Errorf("failure metrics = %d, want 1", got)
		}
	})

	t.Run("open breaker blocks generation", func(t *testing.T) {
		deps := newExecutorDeps()
		deps.breaker.allowErr = domain.ErrCircuitOpen

		ok, err := deps.executor.Execute(ctx, "sess-1", model.TierLow, "x")
		if ok || !errors.Is(err, domain.ErrCircuitOpen) {
			t.Fatalf("Execute = (%v, %v), want ErrCircuitOpen", ok, err)
		}
		if deps.ai.calls != 0 {
			t.Errorf("AI calls = %d, want 0", deps.ai.calls)
		}
		op, _ := deps.opsUC.GetBySession(ctx, "sess-1")
		if op.State != model.StateFailed {
			t.Errorf("state = %s, want failed", op.State)
		}
	})

	t.Run("paused operation stops the run without failing", func(t *testing.T) {
		deps := newExecutorDeps()
		op, _ := deps.opsUC.Create(ctx, "sess-1", model.TierMid, model.TriggerUser)
		deps.opsUC.Start(ctx, op.OperationID, SystemActor)
		if err := deps.opsUC.Pause(ctx, op.OperationID, Actor{Type: model.ActorAdmin, ID: "a"}, ""); err != nil {
			t.Fatalf("Pause: %v", err)
		}

		ok, err := deps.executor.Execute(ctx, "sess-1", model.TierMid, "x")
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if ok {
			t.Error("a paused run must not report success")
		}
		got, _ := deps.opsUC.GetBySession(ctx, "sess-1")
		if got.State != model.StatePaused {
			t.Errorf("state = %s, want paused", got.State)
		}
		if deps.ai.calls != 0 {
			t.Errorf("AI calls = %d, want 0", deps.ai.calls)
		}
	})

	t.Run("records a partial success when enough parts finished", func(t *testing.T) {
		deps := newExecutorDeps()
		deps.ai.CompleteFunc = func(context.Context, []adapter.Message) (string, adapter.Usage, error) {
			if deps.ai.calls == 1 {
				return "part one", adapter.Usage{TotalTokens: 50}, nil
			}
			return "", adapter.Usage{}, errors.New("invalid response format")
		}

		ok, err := deps.executor.Execute(ctx, "sess-1", model.TierMid, "x")
		if ok || err == nil {
			t.Fatalf("Execute = (%v, %v), want failure", ok, err)
		}
		if got := deps.countMetric(model.MetricPartialSuccess); got != 1 {
			t.Errorf("partial_success metrics = %d, want 1", got)
		}
		op, _ := deps.opsUC.GetBySession(ctx, "sess-1")
		if op.CompletedParts != 1 {
			t.Errorf("CompletedParts = %d, want 1", op.CompletedParts)
		}
	})

	t.Run("rejects an unknown tier", func(t *testing.T) {
		deps := newExecutorDeps()
		_, err := deps.executor.Execute(ctx, "sess-1", model.Tier("gold"), "x")
		if !errors.Is(err, domain.ErrUnknownTier) {
			t.Errorf("err = %v, want ErrUnknownTier", err)
		}
	})

	t.Run("local prompt count backfills a missing usage report", func(t *testing.T) {
		deps := newExecutorDeps()
		deps.ai.CountTokensFunc = func(_ context.Context, _ []adapter.Message) (int, error) {
			return 42, nil
		}
		deps.ai.CompleteFunc = func(_ context.Context, _ []adapter.Message) (string, adapter.Usage, error) {
			return "generated", adapter.Usage{}, nil
		}

		ok, err := deps.executor.Execute(ctx, "sess-1", model.TierLow, "analyze churn")
		if err != nil || !ok {
			t.Fatalf("Execute = (%v, %v), want success", ok, err)
		}
		if deps.ai.countCalls == 0 {
			t.Fatal("expected the prompt to be counted before generation")
		}

		op, err := deps.opsUC.GetBySession(ctx, "sess-1")
		if err != nil {
			t.Fatalf("GetBySession: %v", err)
		}
		events, err := deps.opsUC.Events(ctx, op.OperationID)
		if err != nil {
			t.Fatalf("Events: %v", err)
		}
		found := false
		for _, ev := range events {
			if ev.EventType == model.EventPartCompleted {
				found = true
				if ev.TokenCount == nil || *ev.TokenCount != 42 {
					t.Errorf("part_completed token count = %v, want 42", ev.TokenCount)
				}
			}
		}
		if !found {
			t.Fatal("no part_completed event recorded")
		}
	})
}
