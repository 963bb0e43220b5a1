package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"ai-analysis-ops/internal/domain"
	"ai-analysis-ops/internal/domain/model"
	"ai-analysis-ops/internal/domain/ports/repository"
	"ai-analysis-ops/internal/usecase"
)

// operationResponse is the wire shape for one operation, with the
// derived progress and estimate fields computed at read time.
type operationResponse struct {
	OperationID           string     `json:"operationId"`
	SessionID             string     `json:"sessionId"`
	Tier                  string     `json:"tier"`
	State                 string     `json:"state"`
	TotalParts            int        `json:"totalParts"`
	CompletedParts        int        `json:"completedParts"`
	CurrentPart           *int       `json:"currentPart,omitempty"`
	Progress              int        `json:"progress"`
	StartedAt             *time.Time `json:"startedAt,omitempty"`
	CompletedAt           *time.Time `json:"completedAt,omitempty"`
	EstimatedCompletionAt *time.Time `json:"estimatedCompletionAt,omitempty"`
	LastError             string     `json:"lastError,omitempty"`
	FailedPart            *int       `json:"failedPart,omitempty"`
	RetryCount            int        `json:"retryCount"`
	TriggeredBy           string     `json:"triggeredBy"`
	AdminNotes            string     `json:"adminNotes,omitempty"`
	CreatedAt             time.Time  `json:"createdAt"`
	UpdatedAt             time.Time  `json:"updatedAt"`
}

func toOperationResponse(op *model.Operation) operationResponse {
	return operationResponse{
		OperationID:           op.OperationID,
		SessionID:             op.SessionID,
		Tier:                  string(op.Tier),
		State:                 string(op.State),
		TotalParts:            op.TotalParts,
		CompletedParts:        op.CompletedParts,
		CurrentPart:           op.CurrentPart,
		Progress:              op.Progress(),
		StartedAt:             op.StartedAt,
		CompletedAt:           op.CompletedAt,
		EstimatedCompletionAt: op.EstimatedCompletionAt,
		LastError:             op.LastError,
		FailedPart:            op.FailedPart,
		RetryCount:            op.RetryCount,
		TriggeredBy:           string(op.TriggeredBy),
		AdminNotes:            op.AdminNotes,
		CreatedAt:             op.CreatedAt,
		UpdatedAt:             op.UpdatedAt,
	}
}

type noteRequest struct {
	Note string `json:"note"`
}

func (s *Server) adminActor(r *http.Request) usecase.Actor {
	id := "admin"
	if c := ClaimsFrom(r.Context()); c != nil && c.Subject != "" {
		id = c.Subject
	}
	return usecase.Actor{Type: model.ActorAdmin, ID: id}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, "Not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrInvalidTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrUnknownTier):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, "Internal error", http.StatusInternalServerError)
	}
}

func decodeNote(r *http.Request) string {
	var req noteRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	return req.Note
}

func (s *Server) getOperation(w http.ResponseWriter, r *http.Request) {
	op, err := s.ops.Get(r.Context(), chi.URLParam(r, "operationID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOperationResponse(op))
}

func (s *Server) getSessionOperation(w http.ResponseWriter, r *http.Request) {
	op, err := s.ops.GetBySession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOperationResponse(op))
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.ops.Events(r.Context(), chi.URLParam(r, "operationID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (s *Server) verifyHistory(w http.ResponseWriter, r *http.Request) {
	ok, err := s.ops.VerifyHistory(r.Context(), chi.URLParam(r, "operationID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"consistent": ok})
}

func (s *Server) pauseOperation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "operationID")
	if err := s.ops.Pause(r.Context(), id, s.adminActor(r), decodeNote(r)); err != nil {
		writeError(w, err)
		return
	}
	s.operationAfterChange(w, r, id)
}

func (s *Server) resumeOperation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "operationID")
	if err := s.ops.Resume(r.Context(), id, s.adminActor(r), decodeNote(r)); err != nil {
		writeError(w, err)
		return
	}
	s.operationAfterChange(w, r, id)
}

func (s *Server) cancelOperation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "operationID")
	if err := s.ops.Cancel(r.Context(), id, s.adminActor(r), decodeNote(r)); err != nil {
		writeError(w, err)
		return
	}
	// A cancelled operation must not be redriven by the queue.
	if op, err := s.ops.Get(r.Context(), id); err == nil {
		s.queue.Cancel(r.Context(), op.SessionID)
	}
	s.operationAfterChange(w, r, id)
}

func (s *Server) retryOperation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "operationID")
	if err := s.ops.Retry(r.Context(), id, s.adminActor(r), model.TriggerAdmin); err != nil {
		writeError(w, err)
		return
	}
	s.operationAfterChange(w, r, id)
}

func (s *Server) addNote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "operationID")
	note := decodeNote(r)
	if note == "" {
		http.Error(w, "note is required", http.StatusBadRequest)
		return
	}
	if err := s.ops.AddAdminNote(r.Context(), id, s.adminActor(r), note); err != nil {
		writeError(w, err)
		return
	}
	s.operationAfterChange(w, r, id)
}

func (s *Server) operationAfterChange(w http.ResponseWriter, r *http.Request, id string) {
	op, err := s.ops.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOperationResponse(op))
}

func (s *Server) queueStats(w http.ResponseWriter, r *http.Request) {
	stats := s.queue.Stats(r.Context())
	writeJSON(w, http.StatusOK, map[string]int{
		"pending":    stats.Pending,
		"processing": stats.Processing,
		"completed":  stats.Completed,
		"failed":     stats.Failed,
		"cancelled":  stats.Cancelled,
		"total":      stats.Total,
	})
}

func (s *Server) cancelQueueItem(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	s.queue.Cancel(r.Context(), sessionID)
	writeJSON(w, http.StatusOK, map[string]string{"sessionId": sessionID, "status": "cancelled"})
}

func (s *Server) breakerStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.breaker.Stats())
}

func (s *Server) breakerReset(w http.ResponseWriter, r *http.Request) {
	s.breaker.ForceReset()
	s.log.Warn().Str("admin", s.adminActor(r).ID).Msg("circuit breaker reset via admin API")
	writeJSON(w, http.StatusOK, s.breaker.Stats())
}

func (s *Server) failureRate(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.alerts.FailureRateStats())
}

func hoursParam(r *http.Request) int {
	hours, _ := strconv.Atoi(r.URL.Query().Get("hours"))
	if hours <= 0 || hours > 24*31 {
		hours = 24
	}
	return hours
}

func (s *Server) metricsHistory(w http.ResponseWriter, r *http.Request) {
	hist, err := s.metrics.RecentHistorical(r.Context(), hoursParam(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hist)
}

func (s *Server) metricsErrors(w http.ResponseWriter, r *http.Request) {
	end := time.Now()
	start := end.Add(-time.Duration(hoursParam(r)) * time.Hour)
	summary, err := s.metrics.ErrorSummary(r.Context(), start, end)
	if err != nil {
		writeError(w, err)
		return
	}
	type errorEntry struct {
		ErrorCode      string    `json:"errorCode"`
		Count          int       `json:"count"`
		LastOccurrence time.Time `json:"lastOccurrence"`
	}
	out := make([]errorEntry, 0, len(summary))
	for _, e := range summary {
		out = append(out, errorEntry{ErrorCode: e.ErrorCode, Count: e.Count, LastOccurrence: e.LastOccurrence})
	}
	writeJSON(w, http.StatusOK, map[string]any{"errors": out})
}

func (s *Server) listOperations(w http.ResponseWriter, r *http.Request) {
	state := model.OperationState(r.URL.Query().Get("state"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	ops, err := s.ops.ListByState(r.Context(), state, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]operationResponse, 0, len(ops))
	for _, op := range ops {
		out = append(out, toOperationResponse(op))
	}
	writeJSON(w, http.StatusOK, map[string]any{"operations": out})
}

func (s *Server) recentMetrics(w http.ResponseWriter, r *http.Request) {
	minutes, _ := strconv.Atoi(r.URL.Query().Get("minutes"))
	if minutes <= 0 {
		minutes = 60
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	since := time.Now().Add(-time.Duration(minutes) * time.Minute)
	rows, err := s.metrics.Recent(r.Context(), since, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"metrics": rows})
}

func (s *Server) recentAlerts(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	alerts, err := s.alertLog.ListRecent(r.Context(), repository.NoTX, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}
