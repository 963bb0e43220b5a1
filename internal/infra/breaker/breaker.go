// Package breaker implements a three-state circuit breaker guarding
// calls to the AI service.
package breaker

import (
	"sync"
	"time"

	"ai-analysis-ops/internal/domain"
	"ai-analysis-ops/internal/infra/metrics"

	"github.com/rs/zerolog"
)

type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// Stats is a read-only snapshot of the breaker for admin inspection.
type Stats struct {
	Service          string     `json:"service"`
	State            State      `json:"state"`
	FailureCount     int        `json:"failureCount"`
	FailureThreshold int        `json:"failureThreshold"`
	LastFailureAt    *time.Time `json:"lastFailureAt,omitempty"`
	OpenedAt         *time.Time `json:"openedAt,omitempty"`
	CooldownSeconds  int        `json:"cooldownSeconds"`
	LastError        string     `json:"lastError,omitempty"`
}

// OnOpenFunc is called once each time the breaker trips open.
type OnOpenFunc func(service string, failureCount int, lastError string)

// Breaker counts consecutive failures and refuses traffic once the
// threshold is reached. After the cooldown a single probe is let
// through; its outcome decides between closing and reopening.
type Breaker struct {
	service   string
	threshold int
	cooldown  time.Duration
	onOpen    OnOpenFunc
	log       *zerolog.Logger

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure *time.Time
	openedAt    *time.Time
	lastError   string
	probing     bool
}

func New(service string, threshold int, cooldown time.Duration, onOpen OnOpenFunc, logger *zerolog.Logger) *Breaker {
	l := logger.With().Str("component", "Breaker").Str("service", service).Logger()
	b := &Breaker{
		service:   service,
		threshold: threshold,
		cooldown:  cooldown,
		onOpen:    onOpen,
		log:       &l,
		state:     StateClosed,
	}
	metrics.SetBreakerState(service, stateValue(StateClosed))
	return b
}

// Allow reports whether a call may proceed. While open it returns
// domain.ErrCircuitOpen until the cooldown elapses, then admits one
// probe in half_open.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateHalfOpen:
		if b.probing {
			return domain.ErrCircuitOpen
		}
		b.probing = true
		return nil
	case StateOpen:
		if b.openedAt != nil && time.Since(*b.openedAt) >= b.cooldown {
			b.setState(StateHalfOpen)
			b.probing = true
			b.log.Info().Msg("circuit breaker half-open, admitting probe")
			return nil
		}
		return domain.ErrCircuitOpen
	}
	return nil
}

// RecordSuccess resets the failure count. A successful half-open
// probe closes the breaker.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.probing = false
	if b.state != StateClosed {
		b.setState(StateClosed)
		b.openedAt = nil
		b.lastError = ""
		b.log.Info().Msg("circuit breaker closed")
	}
}

// RecordFailure counts a failure. Reaching the threshold, or failing
// the half-open probe, opens the breaker and fires the onOpen hook.
func (b *Breaker) RecordFailure() {
	b.RecordFailureErr(nil)
}

// RecordFailureErr is RecordFailure with the error retained for stats
// and the open alert.
func (b *Breaker) RecordFailureErr(err error) {
	b.mu.Lock()

	now := time.Now()
	b.failures++
	b.lastFailure = &now
	if err != nil {
		b.lastError = err.Error()
	}
	b.probing = false

	trip := b.state == StateHalfOpen || (b.state == StateClosed && b.failures >= b.threshold)
	var count int
	var lastErr string
	if trip {
		b.setState(StateOpen)
		b.openedAt = &now
		count = b.failures
		lastErr = b.lastError
		b.log.Warn().Int("failures", count).Msg("circuit breaker opened")
	}
	b.mu.Unlock()

	if trip && b.onOpen != nil {
		b.onOpen(b.service, count, lastErr)
	}
}

// ForceReset closes the breaker immediately. Admin use only.
func (b *Breaker) ForceReset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.setState(StateClosed)
	b.failures = 0
	b.openedAt = nil
	b.lastError = ""
	b.probing = false
	b.log.Warn().Msg("circuit breaker force-reset")
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Service:          b.service,
		State:            b.state,
		FailureCount:     b.failures,
		FailureThreshold: b.threshold,
		LastFailureAt:    b.lastFailure,
		OpenedAt:         b.openedAt,
		CooldownSeconds:  int(b.cooldown.Seconds()),
		LastError:        b.lastError,
	}
}

// setState must be called with the mutex held.
func (b *Breaker) setState(s State) {
	if b.state == s {
		return
	}
	b.state = s
	metrics.SetBreakerState(b.service, stateValue(s))
	metrics.IncBreakerTransition(b.service, string(s))
}

func stateValue(s State) int {
	switch s {
	case StateHalfOpen:
		return 1
	case StateOpen:
		return 2
	default:
		return 0
	}
}
