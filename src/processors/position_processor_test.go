package processors

import (
	"math"
	"testing"

	"github.com/username/fundfolio/src/models"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestRecomputeBuyThenPartialSell(t *testing.T) {
	p := NewPositionProcessor()

	trades := []models.Trade{
		{Kind: models.TradeBuy, TradeTime: "2024-03-01 10:00:00", Amount: 1000, Shares: 1000, Price: 1.0, Fee: 5, Status: models.TradeSettled},
		{Kind: models.TradeSell, TradeTime: "2024-03-05 10:00:00", Shares: 400, Price: 1.20, Fee: 2, Status: models.TradeSettled},
	}

	pos := p.Recompute(trades)

	if !almostEqual(pos.Shares, 600) {
		t.Errorf("Shares = %v, want 600", pos.Shares)
	}
	// Cost after buy: 1005, avg 1.005. Sell removes 400*1.005 plus the fee.
	if !almostEqual(pos.CostAmount, 601.0) {
		t.Errorf("CostAmount = %v, want 601.0", pos.CostAmount)
	}
}

func TestRecomputePendingBuyIsInvisible(t *testing.T) {
	p := NewPositionProcessor()

	trades := []models.Trade{
		{Kind: models.TradeBuy, TradeTime: "2024-03-01 10:00:00", Amount: 1000, Status: models.TradePending},
	}

	pos := p.Recompute(trades)
	if pos.Shares != 0 || pos.CostAmount != 0 {
		t.Errorf("pending buy must not contribute, got %+v", pos)
	}
}

func TestRecomputeOversellClampsToHeld(t *testing.T) {
	p := NewPositionProcessor()

	trades := []models.Trade{
		{Kind: models.TradeBuy, TradeTime: "2024-03-01 10:00:00", Amount: 100, Shares: 100, Price: 1.0, Status: models.TradeSettled},
		{Kind: models.TradeSell, TradeTime: "2024-03-05 10:00:00", Shares: 250, Price: 1.1, Status: models.TradeSettled},
	}

	pos := p.Recompute(trades)
	if pos.Shares != 0 {
		t.Errorf("Shares = %v, want 0 (no short positions)", pos.Shares)
	}
	if pos.CostAmount != 0 {
		t.Errorf("CostAmount = %v, want 0 after liquidation", pos.CostAmount)
	}
}

func TestRecomputeSnapsFloatResidueToZero(t *testing.T) {
	p := NewPositionProcessor()

	// Three thirds of a position leave ~1e-13 shares behind.
	trades := []models.Trade{
		{Kind: models.TradeBuy, TradeTime: "2024-03-01 10:00:00", Amount: 100, Shares: 100, Price: 1.0, Status: models.TradeSettled},
		{Kind: models.TradeSell, TradeTime: "2024-03-02 10:00:00", Shares: 100.0 / 3, Price: 1.0, Status: models.TradeSettled},
		{Kind: models.TradeSell, TradeTime: "2024-03-03 10:00:00", Shares: 100.0 / 3, Price: 1.0, Status: models.TradeSettled},
		{Kind: models.TradeSell, TradeTime: "2024-03-04 10:00:00", Shares: 100.0 / 3, Price: 1.0, Status: models.TradeSettled},
	}

	pos := p.Recompute(trades)
	if pos.Shares != 0 || pos.CostAmount != 0 {
		t.Errorf("residue must snap to zero, got %+v", pos)
	}
}

func TestRecomputeOrdersByTradeTime(t *testing.T) {
	p := NewPositionProcessor()

	// Sell arrives first in the slice but later in time; the replay must
	// sort before applying.
	trades := []models.Trade{
		{Kind: models.TradeSell, TradeTime: "2024-03-05 10:00:00", Shares: 50, Price: 1.0, Status: models.TradeSettled},
		{Kind: models.TradeBuy, TradeTime: "2024-03-01 10:00:00", Amount: 100, Shares: 100, Price: 1.0, Status: models.TradeSettled},
	}

	pos := p.Recompute(trades)
	if !almostEqual(pos.Shares, 50) {
		t.Errorf("Shares = %v, want 50", pos.Shares)
	}
	if !almostEqual(pos.CostAmount, 50) {
		t.Errorf("CostAmount = %v, want 50", pos.CostAmount)
	}
}

func TestRecomputeIsIdempotent(t *testing.T) {
	p := NewPositionProcessor()

	trades := []models.Trade{
		{Kind: models.TradeBuy, TradeTime: "2024-03-01 10:00:00", Amount: 1000, Shares: 800, Price: 1.25, Fee: 5, Status: models.TradeSettled},
		{Kind: models.TradeSell, TradeTime: "2024-03-05 10:00:00", Shares: 300, Price: 1.20, Fee: 2, Status: models.TradeSettled},
	}

	first := p.Recompute(trades)
	second := p.Recompute(trades)
	if first != second {
		t.Errorf("Recompute not deterministic: %+v vs %+v", first, second)
	}
}

func TestRecomputeNeverNegativeCost(t *testing.T) {
	p := NewPositionProcessor()

	// Heavy sell fees against a nearly liquidated position.
	trades := []models.Trade{
		{Kind: models.TradeBuy, TradeTime: "2024-03-01 10:00:00", Amount: 10, Shares: 10, Price: 1.0, Status: models.TradeSettled},
		{Kind: models.TradeSell, TradeTime: "2024-03-02 10:00:00", Shares: 9, Price: 1.0, Fee: 5, Status: models.TradeSettled},
	}

	pos := p.Recompute(trades)
	if pos.CostAmount < 0 {
		t.Errorf("CostAmount must not go negative, got %v", pos.CostAmount)
	}
}
