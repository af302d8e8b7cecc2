package processors

import "github.com/username/fundfolio/src/models"

// ProjectMetrics turns a position and a valuation into display-ready
// figures. The rate is caller-selected: the previous session's confirmed
// rate when that figure is fresh and applicable, otherwise the live
// intraday estimate.
func ProjectMetrics(pos models.Position, estimatedNAV, rate float64) models.Metrics {
	if pos.Shares <= 0 {
		return models.Metrics{}
	}
	marketValue := pos.Shares * estimatedNAV
	todayPnl := marketValue * rate
	totalPnl := marketValue - pos.CostAmount
	totalRate := 0.0
	if pos.CostAmount != 0 {
		totalRate = totalPnl / pos.CostAmount
	}
	return models.Metrics{
		MarketValue: marketValue,
		TodayPnl:    todayPnl,
		TotalPnl:    totalPnl,
		TotalRate:   totalRate,
	}
}
