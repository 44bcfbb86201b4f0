package persistence

import (
	"PosTrack/internal/position"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Store is the Postgres persistence layer. All writes are idempotent by
// natural key: positions conflict on (account, symbol, side, opened_at),
// trades on (account, order_id).
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Account is a registered exchange account to sync.
type Account struct {
	ID         uuid.UUID
	Name       string
	APIKey     string
	APISecret  string
	Active     bool
	LastSyncAt *time.Time
}

// Snapshot is one account equity reading taken during a sync.
type Snapshot struct {
	ID            uuid.UUID
	Account       string
	WalletBalance decimal.Decimal
	UnrealizedPnl decimal.Decimal
	TotalEquity   decimal.Decimal
	TakenAt       time.Time
}

// SyncRun records one completed sync pass and its outcome.
type SyncRun struct {
	ID               uuid.UUID
	Account          string
	TriggeredBy      string
	StartedAt        time.Time
	FinishedAt       time.Time
	TradesIngested   int
	PositionsTouched int
	Failures         []SymbolFailure
}

// SymbolFailure is one symbol whose sync failed inside an otherwise
// successful run.
type SymbolFailure struct {
	Symbol string `json:"symbol"`
	Error  string `json:"error"`
}

// UpsertPosition inserts or refreshes a position by its natural key and
// rewrites p.ID with the row's identity, so trade rows always reference
// the persisted position even when a prior run created it.
func (s *Store) UpsertPosition(ctx context.Context, p *position.Position) error {
	const query = `
		INSERT INTO positions
			(id, account, symbol, side, leverage, status, opened_at, closed_at,
			 avg_open_price, avg_close_price, quantity, peak_quantity,
			 peak_notional, peak_margin, realized_pnl, fee_total, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, NOW())
		ON CONFLICT (account, symbol, side, opened_at) DO UPDATE SET
			leverage        = EXCLUDED.leverage,
			status          = EXCLUDED.status,
			closed_at       = EXCLUDED.closed_at,
			avg_open_price  = EXCLUDED.avg_open_price,
			avg_close_price = EXCLUDED.avg_close_price,
			quantity        = EXCLUDED.quantity,
			peak_quantity   = EXCLUDED.peak_quantity,
			peak_notional   = EXCLUDED.peak_notional,
			peak_margin     = EXCLUDED.peak_margin,
			realized_pnl    = EXCLUDED.realized_pnl,
			fee_total       = EXCLUDED.fee_total,
			updated_at      = NOW()
		RETURNING id`

	var closedAt sql.NullTime
	if p.ClosedAt != nil {
		closedAt = sql.NullTime{Time: *p.ClosedAt, Valid: true}
	}

	err := s.db.QueryRowContext(ctx, query,
		p.ID, p.Account, p.Symbol, string(p.Side), p.Leverage, string(p.Status),
		p.OpenedAt, closedAt,
		p.AvgOpenPrice, p.AvgClosePrice, p.Quantity, p.PeakQuantity,
		p.PeakNotional, p.PeakMargin, p.RealizedPnl, p.FeeTotal,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("upsert position %s/%s/%s: %w", p.Account, p.Symbol, p.Side, err)
	}
	return nil
}

// InsertTrades writes trades with a multi-row INSERT, skipping order ids
// already present. Returns how many rows were actually inserted.
func (s *Store) InsertTrades(ctx context.Context, trades []position.Trade) (int, error) {
	if len(trades) == 0 {
		return 0, nil
	}

	query := `INSERT INTO trades
		(id, position_id, account, order_id, symbol, side, position_tag,
		 order_kind, quantity, price, fee, executed_at)
		VALUES `

	values := make([]string, 0, len(trades))
	args := make([]interface{}, 0, len(trades)*12)

	for i, t := range trades {
		base := i * 12
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6,
			base+7, base+8, base+9, base+10, base+11, base+12,
		))
		args = append(args,
			t.ID, t.PositionID, t.Account, t.OrderID, t.Symbol, string(t.Side),
			string(t.Tag), t.OrderKind, t.Quantity, t.Price, t.Fee, t.ExecutedAt,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (account, order_id) DO NOTHING"

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("insert trades: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(inserted), nil
}

// IsKnownTrade checks whether an order id was already ingested for the
// account. Bounded so a slow database cannot stall a sync pass.
func (s *Store) IsKnownTrade(account, orderID string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM trades WHERE account = $1 AND order_id = $2 LIMIT 1`,
		account, orderID,
	).Scan(&exists)

	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// InsertSnapshot appends an account equity snapshot.
func (s *Store) InsertSnapshot(ctx context.Context, snap Snapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO account_snapshots
			(id, account, wallet_balance, unrealized_pnl, total_equity, taken_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		snap.ID, snap.Account, snap.WalletBalance, snap.UnrealizedPnl,
		snap.TotalEquity, snap.TakenAt,
	)
	if err != nil {
		return fmt.Errorf("insert snapshot for %s: %w", snap.Account, err)
	}
	return nil
}

// InsertSyncRun records a finished sync pass.
func (s *Store) InsertSyncRun(ctx context.Context, run SyncRun) error {
	failures, err := json.Marshal(run.Failures)
	if err != nil {
		return fmt.Errorf("marshal failures: %w", err)
	}
	if run.Failures == nil {
		failures = []byte("[]")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sync_runs
			(id, account, triggered_by, started_at, finished_at,
			 trades_ingested, positions_touched, failures)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		run.ID, run.Account, run.TriggeredBy, run.StartedAt, run.FinishedAt,
		run.TradesIngested, run.PositionsTouched, failures,
	)
	if err != nil {
		return fmt.Errorf("insert sync run for %s: %w", run.Account, err)
	}
	return nil
}

// ListActiveAccounts returns every account the scheduler should sync.
func (s *Store) ListActiveAccounts(ctx context.Context) ([]Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, api_key, api_secret, active, last_sync_at
		FROM accounts
		WHERE active
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		var a Account
		var lastSync sql.NullTime
		if err := rows.Scan(&a.ID, &a.Name, &a.APIKey, &a.APISecret, &a.Active, &lastSync); err != nil {
			return nil, err
		}
		if lastSync.Valid {
			t := lastSync.Time
			a.LastSyncAt = &t
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// GetAccount looks an account up by name.
func (s *Store) GetAccount(ctx context.Context, name string) (Account, error) {
	var a Account
	var lastSync sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, api_key, api_secret, active, last_sync_at
		FROM accounts
		WHERE name = $1`,
		name,
	).Scan(&a.ID, &a.Name, &a.APIKey, &a.APISecret, &a.Active, &lastSync)
	if err == sql.ErrNoRows {
		return Account{}, fmt.Errorf("account %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return Account{}, fmt.Errorf("get account %q: %w", name, err)
	}
	if lastSync.Valid {
		t := lastSync.Time
		a.LastSyncAt = &t
	}
	return a, nil
}

// TouchAccountSync stamps the account's last successful sync time.
func (s *Store) TouchAccountSync(ctx context.Context, name string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET last_sync_at = $2 WHERE name = $1`, name, at)
	if err != nil {
		return fmt.Errorf("touch account %q: %w", name, err)
	}
	return nil
}
