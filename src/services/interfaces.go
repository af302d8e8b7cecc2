package services

import (
	"github.com/username/fundfolio/src/models"
)

// QuoteSource delivers live valuations for fund codes. Implementations do
// their own transport and parsing; a failed fetch comes back as an error and
// is surfaced by the scheduler as a Quote with OK=false, never as a halt.
type QuoteSource interface {
	Fetch(code string) (models.Quote, error)
	FundName(code string) (string, error)
}

// HoldingView is one fund's row in the portfolio: identity, position, the
// latest quote, and the projected valuation metrics. RateIsActual marks
// that TodayPnl was computed from the prior session's confirmed rate rather
// than the live estimate.
type HoldingView struct {
	Fund         models.Fund     `json:"fund"`
	Position     models.Position `json:"position"`
	Quote        *models.Quote   `json:"quote,omitempty"`
	Metrics      *models.Metrics `json:"metrics,omitempty"`
	RateIsActual bool            `json:"rate_is_actual"`
}

// PortfolioSummary aggregates the metrics across a holdings listing.
type PortfolioSummary struct {
	MarketValue float64 `json:"market_value"`
	TodayPnl    float64 `json:"today_pnl"`
	TotalPnl    float64 `json:"total_pnl"`
}

// NewTradeRequest is a trade entry from the API. A buy normally carries
// only Amount (and Fee) and goes in pending; a buy with explicit Shares and
// Price, or any sell, is recorded settled as given.
type NewTradeRequest struct {
	Kind      models.TradeKind `json:"kind"`
	TradeTime string           `json:"trade_time"`
	Amount    float64          `json:"amount"`
	Shares    float64          `json:"shares"`
	Price     float64          `json:"price"`
	Fee       float64          `json:"fee"`
	Note      string           `json:"note"`
}

// PortfolioService is the orchestration layer between the API surface, the
// store, the settlement reconciler and the valuation scheduler.
type PortfolioService interface {
	// AttachScheduler hands over the scheduler that this service feeds with
	// tracked funds and pokes after mutations. Called once during wiring.
	AttachScheduler(sched *ValuationScheduler)

	// HandleQuote consumes one (fund, quote) event from the scheduler:
	// caches the quote, runs settlement reconciliation, and broadcasts the
	// refreshed holding.
	HandleQuote(fund models.Fund, quote models.Quote)

	Holdings(account string) ([]HoldingView, PortfolioSummary, error)
	AddFund(code, account string) (models.Fund, error)
	DeleteFund(id int64) error
	Trades(fundID int64) ([]models.Trade, error)
	AddTrade(fundID int64, req NewTradeRequest) (models.Trade, error)
}
