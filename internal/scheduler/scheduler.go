// Package scheduler drives periodic syncs for every active account.
package scheduler

import (
	"context"
	"time"

	"PosTrack/internal/persistence"
	"PosTrack/internal/syncer"

	"github.com/rs/zerolog"
)

// AccountSource lists the accounts due for a scheduled sync.
type AccountSource interface {
	ListActiveAccounts(ctx context.Context) ([]persistence.Account, error)
}

// SyncRunner runs one sync pass for an account.
type SyncRunner interface {
	SyncAccount(ctx context.Context, acct persistence.Account, trigger string) (syncer.Summary, error)
}

// Scheduler ticks at a fixed interval and syncs each active account in
// turn. One account's failure never blocks the others.
type Scheduler struct {
	accounts AccountSource
	sync     SyncRunner
	interval time.Duration
	log      zerolog.Logger
}

func New(accounts AccountSource, sync SyncRunner, interval time.Duration, log zerolog.Logger) *Scheduler {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Scheduler{
		accounts: accounts,
		sync:     sync,
		interval: interval,
		log:      log,
	}
}

// Run blocks until the context is cancelled, syncing all active accounts
// once per interval.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info().Dur("interval", s.interval).Msg("scheduler started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	accounts, err := s.accounts.ListActiveAccounts(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("list active accounts failed")
		return
	}

	for _, acct := range accounts {
		if ctx.Err() != nil {
			return
		}

		summary, err := s.sync.SyncAccount(ctx, acct, "scheduled")
		if err != nil {
			s.log.Error().Err(err).Str("account", acct.Name).Msg("scheduled sync failed")
			continue
		}
		s.log.Info().
			Str("account", acct.Name).
			Int("trades", summary.TradesIngested).
			Int("positions", summary.PositionsTouched).
			Int("failures", len(summary.Failures)).
			Msg("scheduled sync complete")
	}
}
