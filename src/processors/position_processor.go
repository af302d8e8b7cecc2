package processors

import (
	"sort"

	"github.com/username/fundfolio/src/models"
)

// Shares within this distance of zero after a full replay are floating-point
// residue from liquidation; the position snaps to exactly zero.
const zeroShareEpsilon = 1e-4

// PositionProcessor replays a fund's ordered trade history into a single
// weighted-average position. It is pure: same history in, same position out.
type PositionProcessor struct{}

func NewPositionProcessor() *PositionProcessor {
	return &PositionProcessor{}
}

// Recompute performs a single left-to-right pass over the trades, ordered by
// trade time ascending, and returns the resulting position.
//
// Settled buys add their shares and spent amount (plus fee) to the running
// cost. A buy still awaiting settlement contributes nothing; it is invisible
// to cost basis until the reconciler resolves it. Sells are clamped to the
// shares currently held (no short positions) and reduce the cost basis by
// the average cost of the sold shares plus the sell fee.
func (p *PositionProcessor) Recompute(trades []models.Trade) models.Position {
	ordered := make([]models.Trade, len(trades))
	copy(ordered, trades)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].TradeTime < ordered[j].TradeTime
	})

	var shares, cost float64
	for _, t := range ordered {
		switch t.Kind {
		case models.TradeBuy:
			if t.Status == models.TradeSettled && t.Shares > 0 {
				shares += t.Shares
				cost += t.Amount + t.Fee
			}
		case models.TradeSell:
			avgCost := 0.0
			if shares > 0 && cost > 0 {
				avgCost = cost / shares
			}
			qty := t.Shares
			if qty > shares {
				qty = shares
			}
			shares -= qty
			cost -= avgCost * qty
			cost -= t.Fee
		}
	}

	if shares < zeroShareEpsilon {
		shares = 0
		cost = 0
	}
	if cost < 0 {
		// Sell fees can outrun the remaining basis on a near-empty position.
		cost = 0
	}
	return models.Position{Shares: shares, CostAmount: cost}
}
