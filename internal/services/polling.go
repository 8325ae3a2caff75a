package services

import (
	"context"
	"log"
	"time"

	"github.com/lanepos/backend/internal/providers"
)

// PollConfig bounds how long a pending payment is polled before the attempt
// is declared timed out.
type PollConfig struct {
	MaxAttempts int
	Interval    time.Duration
}

// PollNoWait requests back-to-back status checks with no pause between
// attempts. A zero Interval means "use the coordinator default".
const PollNoWait time.Duration = -1

func DefaultPollConfig() PollConfig {
	return PollConfig{MaxAttempts: 60, Interval: 2 * time.Second}
}

type PollOutcome string

const (
	PollApproved PollOutcome = "approved"
	PollDeclined PollOutcome = "declined"
	// PollTimeout means the polling window closed without a terminal answer.
	// The physical terminal may still complete the charge, so the attempt is
	// flagged for manual reconciliation instead of being treated as declined.
	PollTimeout PollOutcome = "timeout"
)

type PollResult struct {
	Outcome  PollOutcome
	Attempts int
	Result   *providers.Result
	Decline  *providers.DeclinedError
}

// PollingCoordinator resolves a pending handle to a terminal outcome within
// bounded time. It is stateless; each resolution runs in the caller's
// goroutine, so polling one order never blocks any other order.
type PollingCoordinator struct {
	defaults PollConfig
}

func NewPollingCoordinator(defaults PollConfig) *PollingCoordinator {
	if defaults.MaxAttempts <= 0 {
		defaults.MaxAttempts = 60
	}
	if defaults.Interval == 0 {
		defaults.Interval = 2 * time.Second
	}
	return &PollingCoordinator{defaults: defaults}
}

func (pc *PollingCoordinator) Defaults() PollConfig {
	return pc.defaults
}

// Resolve polls the adapter until it reports approved or declined, the
// attempt ceiling is reached, or ctx is cancelled. Cancellation is observed
// within one tick interval and never produces a false decline.
func (pc *PollingCoordinator) Resolve(ctx context.Context, adapter providers.Adapter, transactionID string, target providers.Target, cfg PollConfig) (*PollResult, error) {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = pc.defaults.MaxAttempts
	}
	if cfg.Interval == 0 {
		cfg.Interval = pc.defaults.Interval
	}
	wait := cfg.Interval
	if wait < 0 {
		wait = 0
	}

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		status, err := adapter.CheckStatus(ctx, transactionID, target)
		if err != nil {
			return nil, err
		}

		switch status.Status {
		case providers.StatusApproved:
			return &PollResult{Outcome: PollApproved, Attempts: attempt, Result: status.Result}, nil
		case providers.StatusDeclined:
			return &PollResult{Outcome: PollDeclined, Attempts: attempt, Decline: status.Decline}, nil
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	log.Printf("[POLL] Transaction %s still pending after %d attempts", transactionID, cfg.MaxAttempts)
	return &PollResult{Outcome: PollTimeout, Attempts: cfg.MaxAttempts}, nil
}
