package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"PosTrack/internal/position"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/shopspring/decimal"
)

// ClosedPositionEvent is the outbound payload for a sealed position,
// published to postrack.positions.closed.{symbol}.
type ClosedPositionEvent struct {
	PositionID    uuid.UUID           `json:"positionId"`
	Account       string              `json:"account"`
	Symbol        string              `json:"symbol"`
	Side          string              `json:"side"`
	Leverage      int                 `json:"leverage"`
	OpenedAt      time.Time           `json:"openedAt"`
	ClosedAt      time.Time           `json:"closedAt"`
	AvgOpenPrice  decimal.Decimal     `json:"avgOpenPrice"`
	AvgClosePrice decimal.NullDecimal `json:"avgClosePrice"`
	PeakQuantity  decimal.Decimal     `json:"peakQuantity"`
	RealizedPnl   decimal.Decimal     `json:"realizedPnl"`
	FeeTotal      decimal.Decimal     `json:"feeTotal"`
}

// PositionPublisher publishes closed positions to JetStream for downstream
// consumers. Publish failures are non-fatal upstream: consumers can always
// query the API instead.
type PositionPublisher struct {
	js jetstream.JetStream
}

func NewPositionPublisher(js jetstream.JetStream) *PositionPublisher {
	return &PositionPublisher{js: js}
}

// PublishPositionClosed emits one closed-position event.
func (pp *PositionPublisher) PublishPositionClosed(ctx context.Context, p *position.Position) error {
	if p.ClosedAt == nil {
		return fmt.Errorf("position %s is not closed", p.ID)
	}

	evt := ClosedPositionEvent{
		PositionID:    p.ID,
		Account:       p.Account,
		Symbol:        p.Symbol,
		Side:          string(p.Side),
		Leverage:      p.Leverage,
		OpenedAt:      p.OpenedAt,
		ClosedAt:      *p.ClosedAt,
		AvgOpenPrice:  p.AvgOpenPrice,
		AvgClosePrice: p.AvgClosePrice,
		PeakQuantity:  p.PeakQuantity,
		RealizedPnl:   p.RealizedPnl,
		FeeTotal:      p.FeeTotal,
	}

	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal closed position: %w", err)
	}

	subject := fmt.Sprintf("%s.%s", PositionClosedSubject, p.Symbol)
	if _, err := pp.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}
