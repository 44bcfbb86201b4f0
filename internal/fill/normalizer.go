package fill

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// RawOrder is the untrusted order record as returned by the exchange
// transport. All numeric fields arrive as strings; the Normalizer is the
// only component that parses them. Downstream code never sees this type.
type RawOrder struct {
	OrderID      int64
	Symbol       string
	Status       string
	Side         string
	PositionSide string
	Type         string
	ExecutedQty  string
	AvgPrice     string
	CumQuote     string
	Commission   string // empty unless the source provides an authoritative fee
	Time         int64  // epoch milliseconds
}

// RejectReason classifies why a raw order was excluded from position
// reconstruction. Rejections are counted, never fatal to a batch.
type RejectReason string

const (
	RejectNotFilled       RejectReason = "not_filled"
	RejectBadQuantity     RejectReason = "bad_quantity"
	RejectBadPrice        RejectReason = "bad_price"
	RejectMissingTime     RejectReason = "missing_time"
	RejectUnknownSide     RejectReason = "unknown_side"
	RejectUnknownTag      RejectReason = "unknown_position_side"
	RejectUnparsableField RejectReason = "unparsable_field"
)

// RejectError reports a normalization rejection with its reason.
type RejectError struct {
	Reason RejectReason
	Detail string
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("fill rejected (%s): %s", e.Reason, e.Detail)
}

func reject(reason RejectReason, format string, args ...interface{}) error {
	return &RejectError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// Normalize validates a raw order and converts it into a Fill.
// Only terminal FILLED orders with positive quantity and price pass.
// A returned *RejectError means "skip and count", not "abort the batch".
func Normalize(raw RawOrder) (Fill, error) {
	if raw.Status != StatusFilled {
		return Fill{}, reject(RejectNotFilled, "order %d status %q", raw.OrderID, raw.Status)
	}
	if raw.Time <= 0 {
		return Fill{}, reject(RejectMissingTime, "order %d has no fill timestamp", raw.OrderID)
	}

	var side Side
	switch raw.Side {
	case string(SideBuy):
		side = SideBuy
	case string(SideSell):
		side = SideSell
	default:
		return Fill{}, reject(RejectUnknownSide, "order %d side %q", raw.OrderID, raw.Side)
	}

	var tag PositionTag
	switch raw.PositionSide {
	case string(TagLong):
		tag = TagLong
	case string(TagShort):
		tag = TagShort
	case string(TagUnified), "":
		tag = TagUnified
	default:
		return Fill{}, reject(RejectUnknownTag, "order %d positionSide %q", raw.OrderID, raw.PositionSide)
	}

	qty, err := decimal.NewFromString(raw.ExecutedQty)
	if err != nil {
		return Fill{}, reject(RejectUnparsableField, "order %d executedQty %q: %v", raw.OrderID, raw.ExecutedQty, err)
	}
	if qty.Sign() <= 0 {
		return Fill{}, reject(RejectBadQuantity, "order %d executedQty %s", raw.OrderID, qty)
	}

	price, err := decimal.NewFromString(raw.AvgPrice)
	if err != nil {
		return Fill{}, reject(RejectUnparsableField, "order %d avgPrice %q: %v", raw.OrderID, raw.AvgPrice, err)
	}
	if price.Sign() <= 0 {
		return Fill{}, reject(RejectBadPrice, "order %d avgPrice %s", raw.OrderID, price)
	}

	notional := qty.Mul(price)
	if raw.CumQuote != "" {
		if cq, err := decimal.NewFromString(raw.CumQuote); err == nil && cq.Sign() > 0 {
			notional = cq
		}
	}

	var fee decimal.NullDecimal
	if raw.Commission != "" {
		c, err := decimal.NewFromString(raw.Commission)
		if err != nil {
			return Fill{}, reject(RejectUnparsableField, "order %d commission %q: %v", raw.OrderID, raw.Commission, err)
		}
		fee = decimal.NullDecimal{Decimal: c, Valid: true}
	}

	kind := raw.Type
	if kind == "" {
		kind = "MARKET"
	}

	return Fill{
		OrderID:   fmt.Sprintf("%d", raw.OrderID),
		Symbol:    raw.Symbol,
		Side:      side,
		Tag:       tag,
		Quantity:  qty,
		Price:     price,
		Notional:  notional,
		Fee:       fee,
		OrderKind: kind,
		FilledAt:  time.UnixMilli(raw.Time).UTC(),
	}, nil
}

// NormalizeBatch converts a slice of raw orders, returning the accepted
// fills plus a count of rejections per reason.
func NormalizeBatch(raws []RawOrder) ([]Fill, map[RejectReason]int) {
	fills := make([]Fill, 0, len(raws))
	rejected := make(map[RejectReason]int)

	for _, raw := range raws {
		f, err := Normalize(raw)
		if err != nil {
			var re *RejectError
			if errors.As(err, &re) {
				rejected[re.Reason]++
			} else {
				rejected[RejectUnparsableField]++
			}
			continue
		}
		fills = append(fills, f)
	}

	return fills, rejected
}
