package position

import (
	"PosTrack/internal/fill"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// closeEpsilon is the residual quantity below which a position is treated
// as fully closed. Exchange quantity steps are coarser than 1e-4, so any
// smaller remainder is rounding dust, not exposure.
var closeEpsilon = decimal.New(1, -4)

// FoldResult is the outcome of folding one channel's fill sequence.
// Positions are emitted in chronological order; if the channel still holds
// exposure after the last fill, the final entry is OPEN.
type FoldResult struct {
	Positions []*Position

	// DroppedFills counts decreasing fills that arrived on an empty
	// channel. They belong to exposure opened before the fetch window and
	// are skipped entirely.
	DroppedFills int

	// OverCloseFills counts decreasing fills whose quantity exceeded the
	// live position. The close is clamped to the live quantity and the
	// excess discarded; a channel position never reverses.
	OverCloseFills int
}

// accumulator folds a single channel's time-ordered fills into positions.
// It is single-use: one channel, one pass.
type accumulator struct {
	account  string
	key      ChannelKey
	leverage int
	feeRate  decimal.Decimal

	current   *Position
	totalCost decimal.Decimal // cost basis of the live quantity

	result FoldResult
}

// FoldChannel replays a channel's fills through the position state machine.
// The fills must already be sorted by (time, order id) as GroupFills emits
// them; leverage applies to every position the channel produces.
func FoldChannel(account string, key ChannelKey, fills []fill.Fill, leverage int, feeRate decimal.Decimal) FoldResult {
	if leverage < 1 {
		leverage = 1
	}

	acc := &accumulator{
		account:  account,
		key:      key,
		leverage: leverage,
		feeRate:  feeRate,
	}

	for _, f := range fills {
		acc.apply(f)
	}

	if acc.current != nil {
		acc.result.Positions = append(acc.result.Positions, acc.current)
		acc.current = nil
	}

	return acc.result
}

func (a *accumulator) apply(f fill.Fill) {
	// Case 1: empty channel. A decreasing fill has nothing to act on and
	// is dropped; an increasing fill opens a new position. Unified
	// channels re-infer their side here after every close.
	if a.current == nil {
		side := channelSide(a.key, f)
		if Classify(f, side) == Decreasing {
			a.result.DroppedFills++
			return
		}
		a.open(f, side)
		return
	}

	if Classify(f, a.current.Side) == Increasing {
		a.increase(f)
		return
	}
	a.decrease(f)
}

func (a *accumulator) open(f fill.Fill, side ExposureSide) {
	notional := f.Quantity.Mul(f.Price)

	a.current = &Position{
		ID:           uuid.New(),
		Account:      a.account,
		Symbol:       a.key.Symbol,
		Side:         side,
		Leverage:     a.leverage,
		Status:       StatusOpen,
		OpenedAt:     f.FilledAt,
		AvgOpenPrice: f.Price,
		Quantity:     f.Quantity,
		PeakQuantity: f.Quantity,
		PeakNotional: notional,
		PeakMargin:   notional.Div(decimal.NewFromInt(int64(a.leverage))),
		RealizedPnl:  decimal.Zero,
		FeeTotal:     f.FeeAmount(a.feeRate),
		Fills:        []fill.Fill{f},
	}
	a.totalCost = notional
}

func (a *accumulator) increase(f fill.Fill) {
	p := a.current

	a.totalCost = a.totalCost.Add(f.Quantity.Mul(f.Price))
	p.Quantity = p.Quantity.Add(f.Quantity)
	p.AvgOpenPrice = a.totalCost.Div(p.Quantity)

	// High-water marks are valued at the current fill's price.
	if p.Quantity.GreaterThan(p.PeakQuantity) {
		p.PeakQuantity = p.Quantity
	}
	if value := p.Quantity.Mul(f.Price); value.GreaterThan(p.PeakNotional) {
		p.PeakNotional = value
		p.PeakMargin = value.Div(decimal.NewFromInt(int64(p.Leverage)))
	}

	p.FeeTotal = p.FeeTotal.Add(f.FeeAmount(a.feeRate))
	p.Fills = append(p.Fills, f)
}

func (a *accumulator) decrease(f fill.Fill) {
	p := a.current

	closeQty := f.Quantity
	if closeQty.GreaterThan(p.Quantity) {
		closeQty = p.Quantity
		a.result.OverCloseFills++
	}

	// Realized PnL on the closed quantity against the average open price.
	diff := f.Price.Sub(p.AvgOpenPrice)
	if p.Side == SideShort {
		diff = diff.Neg()
	}
	p.RealizedPnl = p.RealizedPnl.Add(closeQty.Mul(diff))

	p.AvgClosePrice = decimal.NullDecimal{Decimal: f.Price, Valid: true}
	p.FeeTotal = p.FeeTotal.Add(f.FeeAmount(a.feeRate))
	p.Fills = append(p.Fills, f)

	remaining := p.Quantity.Sub(closeQty)
	if remaining.LessThanOrEqual(closeEpsilon) {
		closedAt := f.FilledAt
		p.Quantity = decimal.Zero
		p.Status = StatusClosed
		p.ClosedAt = &closedAt

		a.result.Positions = append(a.result.Positions, p)
		a.current = nil
		a.totalCost = decimal.Zero
		return
	}

	// Partial close: the open price stays put, only the cost basis of the
	// remaining quantity shrinks.
	p.Quantity = remaining
	a.totalCost = remaining.Mul(p.AvgOpenPrice)
}
