package query

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PositionSummary is one position row for API listings.
type PositionSummary struct {
	ID            uuid.UUID           `json:"id"`
	Account       string              `json:"account"`
	Symbol        string              `json:"symbol"`
	Side          string              `json:"side"`
	Leverage      int                 `json:"leverage"`
	Status        string              `json:"status"`
	OpenedAt      time.Time           `json:"openedAt"`
	ClosedAt      *time.Time          `json:"closedAt,omitempty"`
	AvgOpenPrice  decimal.Decimal     `json:"avgOpenPrice"`
	AvgClosePrice decimal.NullDecimal `json:"avgClosePrice"`
	Quantity      decimal.Decimal     `json:"quantity"`
	PeakQuantity  decimal.Decimal     `json:"peakQuantity"`
	PeakNotional  decimal.Decimal     `json:"peakNotional"`
	PeakMargin    decimal.Decimal     `json:"peakMargin"`
	RealizedPnl   decimal.Decimal     `json:"realizedPnl"`
	FeeTotal      decimal.Decimal     `json:"feeTotal"`
}

// TradeSummary is one constituent trade of a position.
type TradeSummary struct {
	ID         uuid.UUID       `json:"id"`
	OrderID    string          `json:"orderId"`
	Side       string          `json:"side"`
	OrderKind  string          `json:"orderKind"`
	Quantity   decimal.Decimal `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	Fee        decimal.Decimal `json:"fee"`
	ExecutedAt time.Time       `json:"executedAt"`
}

// PositionStats carries values derived at query time, not stored.
type PositionStats struct {
	OpenTrades  int             `json:"openTrades"`
	CloseTrades int             `json:"closeTrades"`
	TotalVolume decimal.Decimal `json:"totalVolume"`
	NetPnl      decimal.Decimal `json:"netPnl"`

	// Realized PnL over peak margin, in percent. Null when the position
	// never reserved margin.
	ProfitPercent decimal.NullDecimal `json:"profitPercent"`
}

// PositionDetail is the full position view: row, trades, derived stats.
type PositionDetail struct {
	PositionSummary
	Trades []TradeSummary `json:"trades"`
	Stats  PositionStats  `json:"stats"`
}

// SnapshotResponse is one account equity reading.
type SnapshotResponse struct {
	ID            uuid.UUID       `json:"id"`
	Account       string          `json:"account"`
	WalletBalance decimal.Decimal `json:"walletBalance"`
	UnrealizedPnl decimal.Decimal `json:"unrealizedPnl"`
	TotalEquity   decimal.Decimal `json:"totalEquity"`
	TakenAt       time.Time       `json:"takenAt"`
}
