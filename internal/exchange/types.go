package exchange

import "github.com/shopspring/decimal"

// Order is one row of the futures order history endpoint. Numeric fields
// stay as strings until the normalizer parses them.
type Order struct {
	OrderID      int64  `json:"orderId"`
	Symbol       string `json:"symbol"`
	Status       string `json:"status"`
	Side         string `json:"side"`
	PositionSide string `json:"positionSide"`
	Type         string `json:"type"`
	ExecutedQty  string `json:"executedQty"`
	AvgPrice     string `json:"avgPrice"`
	CumQuote     string `json:"cumQuote"`
	Time         int64  `json:"time"`
	UpdateTime   int64  `json:"updateTime"`
}

// PositionRisk is one row of the position risk endpoint, used for symbol
// discovery and per-symbol leverage.
type PositionRisk struct {
	Symbol           string `json:"symbol"`
	PositionAmt      string `json:"positionAmt"`
	EntryPrice       string `json:"entryPrice"`
	MarkPrice        string `json:"markPrice"`
	UnRealizedProfit string `json:"unRealizedProfit"`
	Leverage         string `json:"leverage"`
	PositionSide     string `json:"positionSide"`
}

// AccountInfo is the futures account summary used for equity snapshots.
type AccountInfo struct {
	TotalWalletBalance    string `json:"totalWalletBalance"`
	TotalUnrealizedProfit string `json:"totalUnrealizedProfit"`
	TotalMarginBalance    string `json:"totalMarginBalance"`
	AvailableBalance      string `json:"availableBalance"`
	UpdateTime            int64  `json:"updateTime"`
}

// ActiveSymbols returns the symbols worth fetching order history for:
// anything with live exposure or unrealized PnL.
func ActiveSymbols(risks []PositionRisk) []string {
	seen := make(map[string]bool)
	var symbols []string

	for _, r := range risks {
		if seen[r.Symbol] {
			continue
		}
		amt := parseDecimal(r.PositionAmt)
		upnl := parseDecimal(r.UnRealizedProfit)
		if amt.IsZero() && upnl.IsZero() {
			continue
		}
		seen[r.Symbol] = true
		symbols = append(symbols, r.Symbol)
	}

	return symbols
}

// LeverageBySymbol extracts the configured leverage per symbol, defaulting
// to 1 when the exchange reports nothing usable.
func LeverageBySymbol(risks []PositionRisk) map[string]int {
	out := make(map[string]int, len(risks))
	for _, r := range risks {
		lev := int(parseDecimal(r.Leverage).IntPart())
		if lev < 1 {
			lev = 1
		}
		if existing, ok := out[r.Symbol]; !ok || lev > existing {
			out[r.Symbol] = lev
		}
	}
	return out
}

func parseDecimal(v string) decimal.Decimal {
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero
	}
	return d
}
