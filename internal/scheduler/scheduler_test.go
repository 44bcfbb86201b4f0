package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"PosTrack/internal/persistence"
	"PosTrack/internal/scheduler"
	"PosTrack/internal/syncer"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeAccounts struct {
	accounts []persistence.Account
}

func (f *fakeAccounts) ListActiveAccounts(context.Context) ([]persistence.Account, error) {
	return f.accounts, nil
}

type fakeRunner struct {
	mu      sync.Mutex
	synced  []string
	failFor string
	ping    chan struct{}
}

func (f *fakeRunner) SyncAccount(_ context.Context, acct persistence.Account, trigger string) (syncer.Summary, error) {
	f.mu.Lock()
	f.synced = append(f.synced, acct.Name+"/"+trigger)
	f.mu.Unlock()

	select {
	case f.ping <- struct{}{}:
	default:
	}

	if acct.Name == f.failFor {
		return syncer.Summary{}, errors.New("exchange down")
	}
	return syncer.Summary{Account: acct.Name}, nil
}

func (f *fakeRunner) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.synced...)
}

func TestScheduler_SyncsAllActiveAccounts(t *testing.T) {
	accounts := &fakeAccounts{accounts: []persistence.Account{
		{Name: "alpha"}, {Name: "beta"},
	}}
	runner := &fakeRunner{ping: make(chan struct{}, 16)}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := scheduler.New(accounts, runner, 10*time.Millisecond, zerolog.Nop())
	done := make(chan error, 1)
	go func() { done <- sched.Run(ctx) }()

	// Wait for at least one full pass over both accounts.
	for i := 0; i < 2; i++ {
		select {
		case <-runner.ping:
		case <-time.After(2 * time.Second):
			t.Fatal("scheduler never ticked")
		}
	}

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	calls := runner.calls()
	require.Contains(t, calls, "alpha/scheduled")
	require.Contains(t, calls, "beta/scheduled")
}

func TestScheduler_OneFailureDoesNotBlockOthers(t *testing.T) {
	accounts := &fakeAccounts{accounts: []persistence.Account{
		{Name: "broken"}, {Name: "healthy"},
	}}
	runner := &fakeRunner{failFor: "broken", ping: make(chan struct{}, 16)}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := scheduler.New(accounts, runner, 10*time.Millisecond, zerolog.Nop())
	go sched.Run(ctx)

	for i := 0; i < 2; i++ {
		select {
		case <-runner.ping:
		case <-time.After(2 * time.Second):
			t.Fatal("scheduler never ticked")
		}
	}
	cancel()

	require.Contains(t, runner.calls(), "healthy/scheduled")
}
