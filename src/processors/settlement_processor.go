package processors

import (
	"fmt"
	"time"

	"github.com/username/fundfolio/src/logger"
	"github.com/username/fundfolio/src/market"
	"github.com/username/fundfolio/src/models"
	"github.com/username/fundfolio/src/store"
	"github.com/username/fundfolio/src/utils"
)

// Purchases placed before the exchange close count for the trade date;
// later ones count for the next session.
const settlementCutoffHour = 15

// SettlementProcessor resolves pending buy trades into settled ones once
// their confirmation date has arrived, using the most authoritative price
// available in the quote. Settlement is terminal: a resolved trade is never
// re-opened, even if a corrected official NAV shows up later.
type SettlementProcessor struct {
	store     store.Store
	calendar  *market.Calendar
	positions *PositionProcessor
}

func NewSettlementProcessor(st store.Store, cal *market.Calendar, positions *PositionProcessor) *SettlementProcessor {
	return &SettlementProcessor{
		store:     st,
		calendar:  cal,
		positions: positions,
	}
}

// ReconcilePending scans the fund's pending buys and settles every one whose
// confirmation date has been reached and for which the quote carries a
// usable price. It reports whether anything was resolved so the caller knows
// to refresh dependent state. The position is recomputed once per pass, not
// per trade.
func (p *SettlementProcessor) ReconcilePending(fundID int64, quote models.Quote, now time.Time) (bool, error) {
	trades, err := p.store.LoadTrades(fundID)
	if err != nil {
		return false, fmt.Errorf("loading trades for fund %d: %w", fundID, err)
	}

	loc := p.calendar.Location()
	today := utils.DateOf(now, loc)

	changed := false
	for i, t := range trades {
		if t.Kind != models.TradeBuy || t.Status != models.TradePending || t.Amount <= 0 {
			continue
		}

		targetDate := p.settlementDate(t, now)
		if today.Before(targetDate) {
			continue
		}

		price, ok := settlementPrice(quote, targetDate, loc)
		if !ok {
			// No usable price yet; the trade stays pending and is retried
			// on the next pass.
			continue
		}

		shares := t.Amount / price
		if err := p.store.ResolveTrade(t.ID, shares, price); err != nil {
			return changed, fmt.Errorf("resolving trade %d: %w", t.ID, err)
		}
		trades[i].Shares = shares
		trades[i].Price = price
		trades[i].Status = models.TradeSettled
		changed = true

		logger.L.Info("Settled pending buy",
			"fundID", fundID, "tradeID", t.ID,
			"amount", t.Amount, "price", price, "shares", shares,
			"settlementDate", targetDate.Format(market.DateFormat))
	}

	if changed {
		pos := p.positions.Recompute(trades)
		if err := p.store.SavePosition(fundID, pos.Shares, pos.CostAmount); err != nil {
			return changed, fmt.Errorf("saving position for fund %d: %w", fundID, err)
		}
	}
	return changed, nil
}

// settlementDate applies the T+1 convention: a buy placed strictly before
// the 15:00 cutoff confirms on the next session after its trade date; a
// later one confirms on the session after that.
func (p *SettlementProcessor) settlementDate(t models.Trade, now time.Time) time.Time {
	loc := p.calendar.Location()
	tradeTime, err := utils.ParseTradeTime(t.TradeTime, loc)
	if err != nil {
		// A malformed timestamp must not fail the whole pass; treating the
		// trade as placed right now is the safe fallback.
		logger.L.Warn("Unparseable trade time, falling back to now", "tradeID", t.ID, "tradeTime", t.TradeTime)
		tradeTime = now.In(loc)
	}

	baseDate := utils.DateOf(tradeTime, loc)
	local := tradeTime.In(loc)
	if local.Hour() >= settlementCutoffHour {
		baseDate = p.calendar.NextSession(baseDate, 1)
	}
	return p.calendar.NextSession(baseDate, 1)
}

// settlementPrice picks the settlement price from a quote: the official NAV
// when it is dated on or after the settlement date, otherwise a positive
// intraday estimate. The estimate is provisional but final once used.
func settlementPrice(q models.Quote, targetDate time.Time, loc *time.Location) (float64, bool) {
	if q.OfficialNAV > 0 && q.OfficialNAVDate != "" {
		navDate, err := utils.ParseDate(q.OfficialNAVDate, loc)
		if err == nil && !navDate.Before(targetDate) {
			return q.OfficialNAV, true
		}
	}
	if q.EstimatedNAV > 0 {
		return q.EstimatedNAV, true
	}
	return 0, false
}
