package services

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/username/fundfolio/src/logger"
	"github.com/username/fundfolio/src/market"
	"github.com/username/fundfolio/src/models"
	"github.com/username/fundfolio/src/processors"
	"github.com/username/fundfolio/src/store"
	"github.com/username/fundfolio/src/utils"
)

const (
	// Latest quotes are kept warm long enough to survive the non-trading
	// polling interval with margin.
	quoteCacheExpiration = 10 * time.Minute
	quoteCacheCleanup    = 30 * time.Minute
)

type portfolioServiceImpl struct {
	store      store.Store
	source     QuoteSource
	calendar   *market.Calendar
	settlement *processors.SettlementProcessor
	positions  *processors.PositionProcessor
	quotes     *cache.Cache // fundID -> latest models.Quote
	broadcast  func(event string, payload interface{})
	scheduler  *ValuationScheduler
	now        func() time.Time
}

// NewPortfolioService builds the orchestration layer. broadcast may be nil
// when no streaming consumer is attached.
func NewPortfolioService(
	st store.Store,
	source QuoteSource,
	cal *market.Calendar,
	settlement *processors.SettlementProcessor,
	positions *processors.PositionProcessor,
	broadcast func(event string, payload interface{}),
	now func() time.Time,
) PortfolioService {
	if now == nil {
		now = time.Now
	}
	if broadcast == nil {
		broadcast = func(string, interface{}) {}
	}
	return &portfolioServiceImpl{
		store:      st,
		source:     source,
		calendar:   cal,
		settlement: settlement,
		positions:  positions,
		quotes:     cache.New(quoteCacheExpiration, quoteCacheCleanup),
		broadcast:  broadcast,
		now:        now,
	}
}

// AttachScheduler hands the service the scheduler it feeds with tracked
// funds and pokes on mutations. Called once during wiring.
func (s *portfolioServiceImpl) AttachScheduler(sched *ValuationScheduler) {
	s.scheduler = sched
}

// HandleQuote is the scheduler's emit callback: it caches the quote, runs
// settlement reconciliation against it, and broadcasts the refreshed
// holding. Reconciliation only ever runs against quote data for the same
// fund the quote was fetched for.
func (s *portfolioServiceImpl) HandleQuote(fund models.Fund, quote models.Quote) {
	s.quotes.Set(quoteKey(fund.ID), quote, cache.DefaultExpiration)

	if !quote.OK {
		s.broadcast("quote_error", map[string]interface{}{
			"fund_id": fund.ID,
			"code":    fund.Code,
			"error":   quote.Error,
		})
		return
	}

	if _, err := s.settlement.ReconcilePending(fund.ID, quote, s.now()); err != nil {
		logger.L.Error("Settlement reconciliation failed", "fundID", fund.ID, "error", err)
	}

	holding, err := s.holdingView(fund)
	if err != nil {
		logger.L.Error("Building holding view failed", "fundID", fund.ID, "error", err)
		return
	}
	s.broadcast("holding_update", holding)
}

// Holdings lists the funds (optionally filtered to one account) with their
// positions, latest quotes and projected metrics, plus the aggregate
// portfolio summary.
func (s *portfolioServiceImpl) Holdings(account string) ([]HoldingView, PortfolioSummary, error) {
	funds, err := s.store.Funds()
	if err != nil {
		return nil, PortfolioSummary{}, fmt.Errorf("listing funds: %w", err)
	}

	views := []HoldingView{}
	var summary PortfolioSummary
	for _, f := range funds {
		if account != "" && f.Account != account {
			continue
		}
		view, err := s.holdingView(f)
		if err != nil {
			return nil, PortfolioSummary{}, err
		}
		if view.Metrics != nil {
			summary.MarketValue += view.Metrics.MarketValue
			summary.TodayPnl += view.Metrics.TodayPnl
			summary.TotalPnl += view.Metrics.TotalPnl
		}
		views = append(views, view)
	}
	return views, summary, nil
}

func (s *portfolioServiceImpl) holdingView(fund models.Fund) (HoldingView, error) {
	pos, err := s.store.LoadPosition(fund.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return HoldingView{}, fmt.Errorf("loading position for fund %d: %w", fund.ID, err)
	}

	view := HoldingView{Fund: fund, Position: pos}
	if v, ok := s.quotes.Get(quoteKey(fund.ID)); ok {
		quote := v.(models.Quote)
		view.Quote = &quote
		if quote.OK {
			rate, usedActual := s.rateForPnl(quote)
			m := processors.ProjectMetrics(pos, quote.EstimatedNAV, rate)
			view.Metrics = &m
			view.RateIsActual = usedActual
		}
	}
	return view, nil
}

// rateForPnl chooses which day-change figure prices today's P&L: the prior
// session's confirmed rate when it is dated today, or when today is not a
// trading session (the estimate is then a day-old echo); otherwise the live
// intraday estimate.
func (s *portfolioServiceImpl) rateForPnl(q models.Quote) (float64, bool) {
	if q.PriorActualDate == "" {
		return q.EstimatedRate, false
	}
	now := s.now().In(s.calendar.Location())
	if q.PriorActualDate == now.Format(utils.DateFormat) {
		return q.PriorActualRate, true
	}
	if !s.calendar.IsSession(now) {
		return q.PriorActualRate, true
	}
	return q.EstimatedRate, false
}

// AddFund registers a fund by code, resolving its display name from the
// quote source, and refreshes the scheduler's tracked list.
func (s *portfolioServiceImpl) AddFund(code, account string) (models.Fund, error) {
	name, err := s.source.FundName(code)
	if err != nil {
		return models.Fund{}, fmt.Errorf("resolving name for fund code %s: %w", code, err)
	}
	fund, err := s.store.CreateFund(code, name, account)
	if err != nil {
		return models.Fund{}, err
	}
	s.refreshTrackedFunds()
	return fund, nil
}

// DeleteFund removes the fund, its trades and its position.
func (s *portfolioServiceImpl) DeleteFund(id int64) error {
	if err := s.store.DeleteFund(id); err != nil {
		return err
	}
	s.quotes.Delete(quoteKey(id))
	s.refreshTrackedFunds()
	return nil
}

func (s *portfolioServiceImpl) Trades(fundID int64) ([]models.Trade, error) {
	if _, err := s.store.Fund(fundID); err != nil {
		return nil, err
	}
	return s.store.LoadTrades(fundID)
}

// AddTrade records a trade and recomputes the fund's position from its full
// history. A buy entered by amount alone goes in pending for the settlement
// reconciler; a sell, or a buy with explicit shares and price, is settled
// as given.
func (s *portfolioServiceImpl) AddTrade(fundID int64, req NewTradeRequest) (models.Trade, error) {
	if _, err := s.store.Fund(fundID); err != nil {
		return models.Trade{}, err
	}
	if _, err := utils.ParseTradeTime(req.TradeTime, s.calendar.Location()); err != nil {
		return models.Trade{}, fmt.Errorf("invalid trade time %q: %w", req.TradeTime, err)
	}
	if req.Fee < 0 {
		return models.Trade{}, errors.New("fee must not be negative")
	}

	trade := models.Trade{
		FundID:    fundID,
		Kind:      req.Kind,
		TradeTime: req.TradeTime,
		Amount:    req.Amount,
		Shares:    req.Shares,
		Price:     req.Price,
		Fee:       req.Fee,
		Note:      req.Note,
	}

	switch req.Kind {
	case models.TradeBuy:
		if req.Amount <= 0 {
			return models.Trade{}, errors.New("a buy requires a positive amount")
		}
		if req.Shares > 0 && req.Price > 0 {
			trade.Status = models.TradeSettled
		} else {
			trade.Status = models.TradePending
			trade.Shares = 0
			trade.Price = 0
		}
	case models.TradeSell:
		if req.Shares <= 0 || req.Price <= 0 {
			return models.Trade{}, errors.New("a sell requires positive shares and price")
		}
		trade.Status = models.TradeSettled
	default:
		return models.Trade{}, fmt.Errorf("unknown trade kind %q", req.Kind)
	}

	saved, err := s.store.SaveTrade(trade)
	if err != nil {
		return models.Trade{}, fmt.Errorf("saving trade: %w", err)
	}

	trades, err := s.store.LoadTrades(fundID)
	if err != nil {
		return models.Trade{}, fmt.Errorf("reloading trades: %w", err)
	}
	pos := s.positions.Recompute(trades)
	if err := s.store.SavePosition(fundID, pos.Shares, pos.CostAmount); err != nil {
		return models.Trade{}, fmt.Errorf("saving position: %w", err)
	}

	if s.scheduler != nil {
		s.scheduler.TriggerNow()
	}
	return saved, nil
}

// refreshTrackedFunds pushes the current fund list to the scheduler and
// asks for an immediate cycle so new funds get a quote without waiting out
// the interval.
func (s *portfolioServiceImpl) refreshTrackedFunds() {
	if s.scheduler == nil {
		return
	}
	funds, err := s.store.Funds()
	if err != nil {
		logger.L.Error("Refreshing tracked funds failed", "error", err)
		return
	}
	s.scheduler.SetTrackedFunds(funds)
	s.scheduler.TriggerNow()
}

func quoteKey(fundID int64) string {
	return strconv.FormatInt(fundID, 10)
}
