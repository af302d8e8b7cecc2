package models

// TradeKind distinguishes purchases from redemptions.
type TradeKind string

const (
	TradeBuy  TradeKind = "buy"
	TradeSell TradeKind = "sell"
)

// TradeStatus is the settlement state of a trade. A buy placed by amount
// starts out pending and becomes settled exactly once, when the reconciler
// fixes its share count and price. Sells are settled at creation.
type TradeStatus string

const (
	TradePending TradeStatus = "pending"
	TradeSettled TradeStatus = "settled"
)

// Trade is a single buy or sell record for a fund. For a pending buy,
// Shares and Price stay zero until settlement resolves them; Amount is the
// currency spent. After settlement both are fixed permanently.
type Trade struct {
	ID        int64       `json:"id"`
	FundID    int64       `json:"fund_id"`
	Kind      TradeKind   `json:"kind"`
	TradeTime string      `json:"trade_time"` // "2006-01-02 15:04:05", market local time
	Amount    float64     `json:"amount"`
	Shares    float64     `json:"shares"`
	Price     float64     `json:"price"`
	Fee       float64     `json:"fee"`
	Note      string      `json:"note"`
	Status    TradeStatus `json:"status"`
}

// Fund is a tracked pooled investment instrument.
type Fund struct {
	ID      int64  `json:"id"`
	Code    string `json:"code"`
	Name    string `json:"name"`
	Account string `json:"account"`
}

// Position is the weighted-average aggregate of a fund's trade history.
// It is never edited directly; it is recomputed wholesale from the trades.
type Position struct {
	Shares     float64 `json:"shares"`
	CostAmount float64 `json:"cost_amount"`
}

// Account is a free-text grouping for funds, displayed in a fixed order.
type Account struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	SortOrder int64  `json:"sort_order"`
}

// Quote is an ephemeral valuation snapshot for one fund. EstimatedNAV and
// EstimatedRate are the intraday estimate; OfficialNAV/OfficialNAVDate carry
// the last published end-of-day value when the source knows it. The prior
// fields hold the previous session's confirmed change, when available
// (empty PriorActualDate means unknown).
type Quote struct {
	OK              bool    `json:"ok"`
	EstimatedNAV    float64 `json:"estimated_nav"`
	EstimatedRate   float64 `json:"estimated_rate"`
	OfficialNAV     float64 `json:"official_nav"`
	OfficialNAVDate string  `json:"official_nav_date"` // "2006-01-02", empty if unknown
	PriorActualRate float64 `json:"prior_actual_rate"`
	PriorActualDate string  `json:"prior_actual_date"` // "2006-01-02", empty if unknown
	SourceTime      string  `json:"source_time"`       // provider's own timestamp text
	IsOfficial      bool    `json:"is_official"`       // estimate confirmed final for the day
	Error           string  `json:"error,omitempty"`
}

// Metrics are the display-ready valuation figures derived from a position
// and a quote.
type Metrics struct {
	MarketValue float64 `json:"market_value"`
	TodayPnl    float64 `json:"today_pnl"`
	TotalPnl    float64 `json:"total_pnl"`
	TotalRate   float64 `json:"total_rate"`
}
