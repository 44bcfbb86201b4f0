package position

import (
	"PosTrack/internal/fill"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ExposureSide is the market direction a position is exposed to.
type ExposureSide string

const (
	SideLong  ExposureSide = "LONG"
	SideShort ExposureSide = "SHORT"
)

// Direction classifies what a fill does to its channel's position.
type Direction int

const (
	Increasing Direction = iota
	Decreasing
)

func (d Direction) String() string {
	if d == Increasing {
		return "Increasing"
	}
	return "Decreasing"
}

// Status is the lifecycle state of a position record.
type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusClosed Status = "CLOSED"
)

// ChannelKey identifies one accumulation channel. Hedge-mode accounts run
// up to two channels per symbol (LONG and SHORT); one-way accounts run a
// single BOTH channel whose exposure side is inferred from fill history.
type ChannelKey struct {
	Symbol string
	Tag    fill.PositionTag
}

// Position is one reconstructed open-to-close exposure cycle on a channel.
// At most one position per channel is OPEN at any time.
type Position struct {
	ID       uuid.UUID
	Account  string
	Symbol   string
	Side     ExposureSide
	Leverage int // captured at open, fixed for the position's life
	Status   Status

	OpenedAt time.Time
	ClosedAt *time.Time

	AvgOpenPrice  decimal.Decimal
	AvgClosePrice decimal.NullDecimal // price of the last decreasing fill

	Quantity     decimal.Decimal // live quantity, zero once closed
	PeakQuantity decimal.Decimal
	PeakNotional decimal.Decimal
	PeakMargin   decimal.Decimal

	RealizedPnl decimal.Decimal
	FeeTotal    decimal.Decimal

	Fills []fill.Fill
}

// Trade is one fill bound to the position it acted on. Exactly one trade
// row exists per exchange order id.
type Trade struct {
	ID         uuid.UUID
	PositionID uuid.UUID
	OrderID    string
	Account    string
	Symbol     string
	Side       fill.Side
	Tag        fill.PositionTag
	OrderKind  string
	Quantity   decimal.Decimal
	Price      decimal.Decimal
	Fee        decimal.Decimal
	ExecutedAt time.Time
}

// Trades materializes one trade row per constituent fill, attributing the
// fee at the given default rate when the fill carries none.
func (p *Position) Trades(feeRate decimal.Decimal) []Trade {
	out := make([]Trade, 0, len(p.Fills))
	for _, f := range p.Fills {
		out = append(out, Trade{
			ID:         uuid.New(),
			PositionID: p.ID,
			OrderID:    f.OrderID,
			Account:    p.Account,
			Symbol:     f.Symbol,
			Side:       f.Side,
			Tag:        f.Tag,
			OrderKind:  f.OrderKind,
			Quantity:   f.Quantity,
			Price:      f.Price,
			Fee:        f.FeeAmount(feeRate),
			ExecutedAt: f.FilledAt,
		})
	}
	return out
}

// IsOpen reports whether the position still carries exposure.
func (p *Position) IsOpen() bool {
	return p.Status == StatusOpen
}
