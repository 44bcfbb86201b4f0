package query

import (
	"context"
	"database/sql"
	"fmt"

	"PosTrack/internal/persistence"
	"PosTrack/internal/position"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StatusFilter selects which positions a listing returns.
type StatusFilter string

const (
	FilterOpen   StatusFilter = "open"
	FilterClosed StatusFilter = "closed"
	FilterAll    StatusFilter = "all"
)

// Service provides read-only access to reconciled positions, trades and
// snapshots. Derived values (trade counts, volume, profit percent) are
// computed at query time, never stored.
type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

const positionColumns = `
	id, account, symbol, side, leverage, status, opened_at, closed_at,
	avg_open_price, avg_close_price, quantity, peak_quantity,
	peak_notional, peak_margin, realized_pnl, fee_total`

// ListPositions returns an account's positions newest first.
func (s *Service) ListPositions(ctx context.Context, account string, filter StatusFilter, limit int) ([]PositionSummary, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `SELECT` + positionColumns + ` FROM positions WHERE account = $1`
	args := []interface{}{account}

	switch filter {
	case FilterOpen:
		query += ` AND status = 'OPEN'`
	case FilterClosed:
		query += ` AND status = 'CLOSED'`
	case FilterAll, "":
	default:
		return nil, fmt.Errorf("unknown status filter %q", filter)
	}

	query += fmt.Sprintf(` ORDER BY opened_at DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	defer rows.Close()

	var out []PositionSummary
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetPosition returns one position with its trades and derived stats.
func (s *Service) GetPosition(ctx context.Context, id uuid.UUID) (*PositionDetail, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT`+positionColumns+` FROM positions WHERE id = $1`, id)

	p, err := scanPosition(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("position %s: %w", id, persistence.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get position %s: %w", id, err)
	}

	trades, err := s.tradesForPosition(ctx, id)
	if err != nil {
		return nil, err
	}

	return &PositionDetail{
		PositionSummary: p,
		Trades:          trades,
		Stats:           computeStats(p, trades),
	}, nil
}

// ListSnapshots returns an account's equity snapshots newest first.
func (s *Service) ListSnapshots(ctx context.Context, account string, limit int) ([]SnapshotResponse, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account, wallet_balance, unrealized_pnl, total_equity, taken_at
		FROM account_snapshots
		WHERE account = $1
		ORDER BY taken_at DESC
		LIMIT $2`, account, limit)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var out []SnapshotResponse
	for rows.Next() {
		var snap SnapshotResponse
		if err := rows.Scan(&snap.ID, &snap.Account, &snap.WalletBalance,
			&snap.UnrealizedPnl, &snap.TotalEquity, &snap.TakenAt); err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

func (s *Service) tradesForPosition(ctx context.Context, positionID uuid.UUID) ([]TradeSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, order_id, side, order_kind, quantity, price, fee, executed_at
		FROM trades
		WHERE position_id = $1
		ORDER BY executed_at, order_id`, positionID)
	if err != nil {
		return nil, fmt.Errorf("trades for position %s: %w", positionID, err)
	}
	defer rows.Close()

	var out []TradeSummary
	for rows.Next() {
		var t TradeSummary
		if err := rows.Scan(&t.ID, &t.OrderID, &t.Side, &t.OrderKind,
			&t.Quantity, &t.Price, &t.Fee, &t.ExecutedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// computeStats derives per-position trade statistics. A trade opens the
// position when its order side matches the exposure side (buys on a long,
// sells on a short); everything else closes.
func computeStats(p PositionSummary, trades []TradeSummary) PositionStats {
	stats := PositionStats{
		TotalVolume: decimal.Zero,
		NetPnl:      p.RealizedPnl.Sub(p.FeeTotal),
	}

	opensOn := "BUY"
	if p.Side == string(position.SideShort) {
		opensOn = "SELL"
	}

	for _, t := range trades {
		if t.Side == opensOn {
			stats.OpenTrades++
		} else {
			stats.CloseTrades++
		}
		stats.TotalVolume = stats.TotalVolume.Add(t.Quantity.Mul(t.Price))
	}

	if p.PeakMargin.Sign() > 0 {
		pct := p.RealizedPnl.Div(p.PeakMargin).Mul(decimal.NewFromInt(100))
		stats.ProfitPercent = decimal.NullDecimal{Decimal: pct, Valid: true}
	}

	return stats
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPosition(row rowScanner) (PositionSummary, error) {
	var p PositionSummary
	var closedAt sql.NullTime

	err := row.Scan(
		&p.ID, &p.Account, &p.Symbol, &p.Side, &p.Leverage, &p.Status,
		&p.OpenedAt, &closedAt,
		&p.AvgOpenPrice, &p.AvgClosePrice, &p.Quantity, &p.PeakQuantity,
		&p.PeakNotional, &p.PeakMargin, &p.RealizedPnl, &p.FeeTotal,
	)
	if err != nil {
		return PositionSummary{}, err
	}
	if closedAt.Valid {
		t := closedAt.Time
		p.ClosedAt = &t
	}
	return p, nil
}
