package syncer

import (
	"context"
	"fmt"

	"PosTrack/internal/observability"
	"PosTrack/internal/position"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// PositionStore is the write side of reconciliation.
type PositionStore interface {
	UpsertPosition(ctx context.Context, p *position.Position) error
	InsertTrades(ctx context.Context, trades []position.Trade) (int, error)
}

// Outcome summarizes what one reconciliation pass changed.
type Outcome struct {
	TradesIngested   int
	PositionsTouched int

	// IngestedByPosition counts fresh trades per persisted position id, so
	// callers can tell which positions this pass actually advanced.
	IngestedByPosition map[uuid.UUID]int
}

// Reconciler lands fold results in Postgres idempotently. Positions match
// existing rows by natural key, so an open position from a previous run is
// continued rather than duplicated; trades are deduplicated by order id
// through the two-tier checker plus the insert's conflict clause.
type Reconciler struct {
	store   PositionStore
	dedup   *TradeDedup
	feeRate decimal.Decimal
	metrics *observability.Metrics
	log     zerolog.Logger
}

func NewReconciler(store PositionStore, dedup *TradeDedup, feeRate decimal.Decimal, metrics *observability.Metrics, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		store:   store,
		dedup:   dedup,
		feeRate: feeRate,
		metrics: metrics,
		log:     log,
	}
}

// ReconcileChannel persists every position a channel fold produced.
func (r *Reconciler) ReconcileChannel(ctx context.Context, account string, res position.FoldResult) (Outcome, error) {
	out := Outcome{IngestedByPosition: make(map[uuid.UUID]int)}

	if res.DroppedFills > 0 && r.metrics != nil {
		r.metrics.FillsDropped.Add(float64(res.DroppedFills))
	}
	if res.OverCloseFills > 0 && r.metrics != nil {
		r.metrics.FillsOverClose.Add(float64(res.OverCloseFills))
	}

	for _, p := range res.Positions {
		// The upsert rewrites p.ID with the persisted row's identity, so
		// trades always reference the surviving position row.
		if err := r.store.UpsertPosition(ctx, p); err != nil {
			if r.metrics != nil {
				r.metrics.PersistErrors.WithLabelValues("upsert_position").Inc()
			}
			return out, fmt.Errorf("reconcile %s/%s: %w", p.Symbol, p.Side, err)
		}
		out.PositionsTouched++

		if r.metrics != nil {
			if p.Status == position.StatusClosed {
				r.metrics.PositionsClosed.Inc()
			} else {
				r.metrics.PositionsOpened.Inc()
			}
		}

		fresh := r.freshTrades(account, p)
		if len(fresh) == 0 {
			continue
		}

		inserted, err := r.store.InsertTrades(ctx, fresh)
		if err != nil {
			if r.metrics != nil {
				r.metrics.PersistErrors.WithLabelValues("insert_trades").Inc()
			}
			return out, fmt.Errorf("reconcile trades for %s/%s: %w", p.Symbol, p.Side, err)
		}
		out.TradesIngested += inserted
		out.IngestedByPosition[p.ID] += inserted

		for _, t := range fresh {
			r.dedup.Mark(account, t.OrderID)
		}

		if r.metrics != nil {
			r.metrics.TradesIngested.Add(float64(inserted))
		}
		if inserted < len(fresh) {
			r.log.Debug().
				Str("symbol", p.Symbol).
				Int("skipped", len(fresh)-inserted).
				Msg("trades already present, skipped by conflict clause")
		}
	}

	return out, nil
}

func (r *Reconciler) freshTrades(account string, p *position.Position) []position.Trade {
	trades := p.Trades(r.feeRate)
	fresh := trades[:0]
	for _, t := range trades {
		if r.dedup.Seen(account, t.OrderID) {
			continue
		}
		fresh = append(fresh, t)
	}
	return fresh
}
