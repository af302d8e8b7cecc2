package processors

import (
	"math"
	"testing"

	"github.com/username/fundfolio/src/models"
)

func TestProjectMetrics(t *testing.T) {
	pos := models.Position{Shares: 600, CostAmount: 601}
	m := ProjectMetrics(pos, 1.3, 0.01)

	if !almostEqual(m.MarketValue, 780) {
		t.Errorf("MarketValue = %v, want 780", m.MarketValue)
	}
	if !almostEqual(m.TodayPnl, 7.8) {
		t.Errorf("TodayPnl = %v, want 7.8", m.TodayPnl)
	}
	if !almostEqual(m.TotalPnl, 179) {
		t.Errorf("TotalPnl = %v, want 179", m.TotalPnl)
	}
	if math.Abs(m.TotalRate-179.0/601.0) > 1e-9 {
		t.Errorf("TotalRate = %v, want %v", m.TotalRate, 179.0/601.0)
	}
}

func TestProjectMetricsEmptyPosition(t *testing.T) {
	m := ProjectMetrics(models.Position{}, 1.3, 0.01)
	if m != (models.Metrics{}) {
		t.Errorf("empty position must yield zero metrics, got %+v", m)
	}
}

func TestProjectMetricsNegativeRate(t *testing.T) {
	pos := models.Position{Shares: 100, CostAmount: 130}
	m := ProjectMetrics(pos, 1.2, -0.02)

	if !almostEqual(m.MarketValue, 120) {
		t.Errorf("MarketValue = %v, want 120", m.MarketValue)
	}
	if !almostEqual(m.TodayPnl, -2.4) {
		t.Errorf("TodayPnl = %v, want -2.4", m.TodayPnl)
	}
	if !almostEqual(m.TotalPnl, -10) {
		t.Errorf("TotalPnl = %v, want -10", m.TotalPnl)
	}
}
