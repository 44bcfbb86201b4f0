package fill

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the order direction as reported by the exchange.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// PositionTag identifies the accumulation channel a fill belongs to.
// Hedge-mode accounts tag every order LONG or SHORT; one-way accounts
// tag everything BOTH and the exposure side is inferred from history.
type PositionTag string

const (
	TagLong    PositionTag = "LONG"
	TagShort   PositionTag = "SHORT"
	TagUnified PositionTag = "BOTH"
)

// StatusFilled is the only terminal order status that participates in
// position reconstruction.
const StatusFilled = "FILLED"

// DefaultFeeRate is the taker-fee estimate applied when the exchange
// record carries no authoritative fee (0.04% of notional).
var DefaultFeeRate = decimal.RequireFromString("0.0004")

// Fill is one executed order, validated and canonicalized by the
// Normalizer. OrderID is globally unique per account and serves as the
// idempotence key for the whole pipeline.
type Fill struct {
	OrderID   string
	Symbol    string
	Side      Side
	Tag       PositionTag
	Quantity  decimal.Decimal // executed quantity, > 0
	Price     decimal.Decimal // average execution price, > 0
	Notional  decimal.Decimal // cumulative quote volume (qty * price)
	Fee       decimal.NullDecimal
	OrderKind string
	FilledAt  time.Time
}

// FeeAmount returns the fee attributed to this fill: the authoritative
// exchange fee when present, otherwise rate * notional.
func (f Fill) FeeAmount(rate decimal.Decimal) decimal.Decimal {
	if f.Fee.Valid {
		return f.Fee.Decimal
	}
	return f.Notional.Mul(rate)
}
