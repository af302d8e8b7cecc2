package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/username/fundfolio/src/logger"
	"github.com/username/fundfolio/src/models"
	"github.com/username/fundfolio/src/services"
	"github.com/username/fundfolio/src/store"
	"github.com/username/fundfolio/src/utils"
)

type TradeHandler struct {
	portfolio services.PortfolioService
}

func NewTradeHandler(portfolio services.PortfolioService) *TradeHandler {
	return &TradeHandler{portfolio: portfolio}
}

// HandleListTrades returns a fund's trade history, oldest first.
// GET /api/funds/{id}/trades
func (h *TradeHandler) HandleListTrades(w http.ResponseWriter, r *http.Request) {
	fundID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		utils.SendJSONError(w, "invalid fund id", http.StatusBadRequest)
		return
	}
	trades, err := h.portfolio.Trades(fundID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			utils.SendJSONError(w, "fund not found", http.StatusNotFound)
			return
		}
		logger.L.Error("Listing trades failed", "fundID", fundID, "error", err)
		utils.SendJSONError(w, "failed to list trades", http.StatusInternalServerError)
		return
	}
	if trades == nil {
		trades = []models.Trade{} // never null in JSON
	}
	utils.SendJSON(w, trades, http.StatusOK)
}

// HandleCreateTrade records a buy or sell for a fund.
// POST /api/funds/{id}/trades
func (h *TradeHandler) HandleCreateTrade(w http.ResponseWriter, r *http.Request) {
	fundID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		utils.SendJSONError(w, "invalid fund id", http.StatusBadRequest)
		return
	}

	var req services.NewTradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	trade, err := h.portfolio.AddTrade(fundID, req)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			utils.SendJSONError(w, "fund not found", http.StatusNotFound)
			return
		}
		logger.L.Warn("Creating trade rejected", "fundID", fundID, "error", err)
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	utils.SendJSON(w, trade, http.StatusCreated)
}
