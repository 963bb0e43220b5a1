package adapter

import (
	"context"

	"ai-analysis-ops/internal/domain/model"
)

// JobExecutor performs the actual multi-part analysis generation for a
// session. Implementations write their own result artifacts and drive
// per-part operation transitions; the engine only needs the final
// success/failure outcome. Execute may return an error for transient
// and permanent failures alike; classification happens in the caller.
type JobExecutor interface {
	Execute(ctx context.Context, sessionID string, tier model.Tier, problemStatement string) (bool, error)
}
