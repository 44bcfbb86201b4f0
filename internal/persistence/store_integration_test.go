package persistence_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"PosTrack/internal/fill"
	"PosTrack/internal/persistence"
	"PosTrack/internal/position"
	"PosTrack/internal/testutil"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var openedAt = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// ----------------------------------------------------------------------------
// Fixtures
// ----------------------------------------------------------------------------

func setupStore(t *testing.T) (*persistence.Store, *sql.DB, func()) {
	t.Helper()
	testutil.RequireIntegration(t)

	db, cleanup := testutil.SetupTestDB(t)
	if err := persistence.NewMigrator(db, "../../migrations").Up(context.Background()); err != nil {
		cleanup()
		t.Fatalf("apply migrations: %v", err)
	}
	return persistence.NewStore(db), db, cleanup
}

func mustPosition(account, symbol string) *position.Position {
	return &position.Position{
		ID:           uuid.New(),
		Account:      account,
		Symbol:       symbol,
		Side:         position.SideLong,
		Leverage:     10,
		Status:       position.StatusOpen,
		OpenedAt:     openedAt,
		AvgOpenPrice: decimal.NewFromInt(100),
		Quantity:     decimal.NewFromInt(10),
		PeakQuantity: decimal.NewFromInt(10),
		PeakNotional: decimal.NewFromInt(1000),
		PeakMargin:   decimal.NewFromInt(100),
		RealizedPnl:  decimal.Zero,
		FeeTotal:     decimal.RequireFromString("0.4"),
	}
}

func mustTrade(p *position.Position, orderID string, side fill.Side, qty, price string, at time.Time) position.Trade {
	return position.Trade{
		ID:         uuid.New(),
		PositionID: p.ID,
		OrderID:    orderID,
		Account:    p.Account,
		Symbol:     p.Symbol,
		Side:       side,
		Tag:        fill.TagLong,
		OrderKind:  "MARKET",
		Quantity:   decimal.RequireFromString(qty),
		Price:      decimal.RequireFromString(price),
		Fee:        decimal.RequireFromString("0.04"),
		ExecutedAt: at,
	}
}

// ----------------------------------------------------------------------------
// Tests
// ----------------------------------------------------------------------------

func TestStore_UpsertPositionKeepsRowIdentity(t *testing.T) {
	store, db, cleanup := setupStore(t)
	defer cleanup()
	ctx := context.Background()

	p := mustPosition("acct-upsert", "BTCUSDT")
	require.NoError(t, store.UpsertPosition(ctx, p))
	originalID := p.ID

	// A later sync folds the same cycle again, now closed, under a fresh
	// in-memory id. The natural-key conflict must continue the stored row.
	closedAt := openedAt.Add(time.Hour)
	replay := mustPosition("acct-upsert", "BTCUSDT")
	replay.Status = position.StatusClosed
	replay.ClosedAt = &closedAt
	replay.Quantity = decimal.Zero
	replay.AvgClosePrice = decimal.NewNullDecimal(decimal.NewFromInt(110))
	replay.RealizedPnl = decimal.NewFromInt(100)

	require.NoError(t, store.UpsertPosition(ctx, replay))
	require.Equal(t, originalID, replay.ID, "conflict must rewrite to the surviving row id")

	var count int
	var status string
	require.NoError(t, db.QueryRow(
		`SELECT COUNT(*) FROM positions WHERE account = $1`, "acct-upsert").Scan(&count))
	require.NoError(t, db.QueryRow(
		`SELECT status FROM positions WHERE id = $1`, originalID).Scan(&status))
	require.Equal(t, 1, count)
	require.Equal(t, "CLOSED", status)
}

func TestStore_InsertTradesSkipsDuplicates(t *testing.T) {
	store, _, cleanup := setupStore(t)
	defer cleanup()
	ctx := context.Background()

	p := mustPosition("acct-trades", "ETHUSDT")
	require.NoError(t, store.UpsertPosition(ctx, p))

	t1 := mustTrade(p, "1", fill.SideBuy, "10", "100", openedAt)
	t2 := mustTrade(p, "2", fill.SideSell, "10", "110", openedAt.Add(time.Hour))

	inserted, err := store.InsertTrades(ctx, []position.Trade{t1, t2})
	require.NoError(t, err)
	require.Equal(t, 2, inserted)

	// A replayed order id conflicts even under a fresh row id; only the
	// genuinely new trade counts.
	dup := mustTrade(p, "1", fill.SideBuy, "10", "100", openedAt)
	t3 := mustTrade(p, "3", fill.SideBuy, "5", "105", openedAt.Add(2*time.Hour))

	inserted, err = store.InsertTrades(ctx, []position.Trade{dup, t3})
	require.NoError(t, err)
	require.Equal(t, 1, inserted)

	known, err := store.IsKnownTrade("acct-trades", "2")
	require.NoError(t, err)
	require.True(t, known)

	known, err = store.IsKnownTrade("acct-trades", "999")
	require.NoError(t, err)
	require.False(t, known)
}

func TestStore_AccountLifecycle(t *testing.T) {
	store, db, cleanup := setupStore(t)
	defer cleanup()
	ctx := context.Background()

	_, err := db.Exec(
		`INSERT INTO accounts (name, api_key, api_secret) VALUES ($1, $2, $3)`,
		"acct-life", "key", "secret")
	require.NoError(t, err)

	acct, err := store.GetAccount(ctx, "acct-life")
	require.NoError(t, err)
	require.Equal(t, "acct-life", acct.Name)
	require.True(t, acct.Active)
	require.Nil(t, acct.LastSyncAt)

	_, err = store.GetAccount(ctx, "ghost")
	require.True(t, errors.Is(err, persistence.ErrNotFound))

	active, err := store.ListActiveAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)

	syncedAt := openedAt.Add(time.Hour)
	require.NoError(t, store.TouchAccountSync(ctx, "acct-life", syncedAt))

	acct, err = store.GetAccount(ctx, "acct-life")
	require.NoError(t, err)
	require.NotNil(t, acct.LastSyncAt)
	require.True(t, acct.LastSyncAt.Equal(syncedAt))
}

func TestStore_RecordsSnapshotsAndRuns(t *testing.T) {
	store, db, cleanup := setupStore(t)
	defer cleanup()
	ctx := context.Background()

	snap := persistence.Snapshot{
		ID:            uuid.New(),
		Account:       "acct-runs",
		WalletBalance: decimal.NewFromInt(1000),
		UnrealizedPnl: decimal.RequireFromString("25.5"),
		TotalEquity:   decimal.RequireFromString("1025.5"),
		TakenAt:       openedAt,
	}
	require.NoError(t, store.InsertSnapshot(ctx, snap))

	run := persistence.SyncRun{
		ID:               uuid.New(),
		Account:          "acct-runs",
		TriggeredBy:      "manual",
		StartedAt:        openedAt,
		FinishedAt:       openedAt.Add(time.Minute),
		TradesIngested:   2,
		PositionsTouched: 1,
		Failures:         []persistence.SymbolFailure{{Symbol: "DOGEUSDT", Error: "window closed"}},
	}
	require.NoError(t, store.InsertSyncRun(ctx, run))

	var failures string
	require.NoError(t, db.QueryRow(
		`SELECT failures::text FROM sync_runs WHERE id = $1`, run.ID).Scan(&failures))
	require.JSONEq(t, `[{"symbol": "DOGEUSDT", "error": "window closed"}]`, failures)

	var snapCount int
	require.NoError(t, db.QueryRow(
		`SELECT COUNT(*) FROM account_snapshots WHERE account = $1`, "acct-runs").Scan(&snapCount))
	require.Equal(t, 1, snapCount)
}
