package redis

import (
	"context"
	"time"

	"ai-analysis-ops/internal/usecase"

	"github.com/rs/zerolog"
)

var _ usecase.CooldownStore = (*cooldownStore)(nil)

// cooldownStore keeps alert dedup timestamps in Redis so suppression
// holds across replicas and restarts. Failures degrade to "never
// sent", which at worst re-sends an alert early.
type cooldownStore struct {
	client RedisClient
	log    *zerolog.Logger
}

func NewCooldownStore(client RedisClient, logger *zerolog.Logger) *cooldownStore {
	l := logger.With().Str("component", "CooldownStore").Logger()
	return &cooldownStore{client: client, log: &l}
}

func cooldownKey(key string) string { return "alert:cooldown:" + key }

func (s *cooldownStore) LastSent(ctx context.Context, key string) (time.Time, bool) {
	v, err := s.client.Get(ctx, cooldownKey(key))
	if err != nil || v == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func (s *cooldownStore) MarkSent(ctx context.Context, key string, at time.Time) {
	// TTL twice the cooldown keeps Redis tidy without cutting the
	// suppression window short.
	err := s.client.Set(ctx, cooldownKey(key), at.Format(time.RFC3339Nano), 2*usecase.AlertCooldown)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("failed to record alert cooldown")
	}
}
