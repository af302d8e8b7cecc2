package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/username/fundfolio/src/logger"
	"github.com/username/fundfolio/src/services"
	"github.com/username/fundfolio/src/store"
	"github.com/username/fundfolio/src/utils"
)

type FundHandler struct {
	portfolio services.PortfolioService
}

func NewFundHandler(portfolio services.PortfolioService) *FundHandler {
	return &FundHandler{portfolio: portfolio}
}

// HandleListFunds returns the holdings (optionally one account's) together
// with the aggregate summary.
// GET /api/funds?account=...
func (h *FundHandler) HandleListFunds(w http.ResponseWriter, r *http.Request) {
	account := r.URL.Query().Get("account")
	holdings, summary, err := h.portfolio.Holdings(account)
	if err != nil {
		logger.L.Error("Listing holdings failed", "error", err)
		utils.SendJSONError(w, "failed to list holdings", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, map[string]interface{}{
		"holdings": holdings,
		"summary":  summary,
	}, http.StatusOK)
}

// HandleCreateFund registers a new fund by code. The display name is
// resolved from the quote source.
// POST /api/funds
func (h *FundHandler) HandleCreateFund(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code    string `json:"code"`
		Account string `json:"account"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Code == "" {
		utils.SendJSONError(w, "fund code is required", http.StatusBadRequest)
		return
	}

	fund, err := h.portfolio.AddFund(req.Code, req.Account)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateFund) {
			utils.SendJSONError(w, "fund code already exists", http.StatusConflict)
			return
		}
		logger.L.Error("Creating fund failed", "code", req.Code, "error", err)
		utils.SendJSONError(w, "failed to create fund", http.StatusBadGateway)
		return
	}
	utils.SendJSON(w, fund, http.StatusCreated)
}

// HandleDeleteFund removes a fund and cascades to its trades and position.
// DELETE /api/funds/{id}
func (h *FundHandler) HandleDeleteFund(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		utils.SendJSONError(w, "invalid fund id", http.StatusBadRequest)
		return
	}
	if err := h.portfolio.DeleteFund(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			utils.SendJSONError(w, "fund not found", http.StatusNotFound)
			return
		}
		logger.L.Error("Deleting fund failed", "fundID", id, "error", err)
		utils.SendJSONError(w, "failed to delete fund", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
