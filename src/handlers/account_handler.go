package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/username/fundfolio/src/logger"
	"github.com/username/fundfolio/src/models"
	"github.com/username/fundfolio/src/store"
	"github.com/username/fundfolio/src/utils"
)

type AccountHandler struct {
	store store.Store
}

func NewAccountHandler(st store.Store) *AccountHandler {
	return &AccountHandler{store: st}
}

// HandleListAccounts returns the account groupings in display order.
// GET /api/accounts
func (h *AccountHandler) HandleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.store.Accounts()
	if err != nil {
		logger.L.Error("Listing accounts failed", "error", err)
		utils.SendJSONError(w, "failed to list accounts", http.StatusInternalServerError)
		return
	}
	if accounts == nil {
		accounts = []models.Account{}
	}
	utils.SendJSON(w, accounts, http.StatusOK)
}

// HandleCreateAccount adds a new grouping at the end of the display order.
// POST /api/accounts
func (h *AccountHandler) HandleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.store.CreateAccount(req.Name); err != nil {
		if errors.Is(err, store.ErrDuplicateAccount) {
			utils.SendJSONError(w, "account already exists", http.StatusConflict)
			return
		}
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// HandleRenameAccount renames a grouping and reassigns its funds.
// POST /api/accounts/rename
func (h *AccountHandler) HandleRenameAccount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OldName string `json:"old_name"`
		NewName string `json:"new_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.store.RenameAccount(req.OldName, req.NewName); err != nil {
		switch {
		case errors.Is(err, store.ErrDefaultAccount):
			utils.SendJSONError(w, "the default account cannot be renamed", http.StatusForbidden)
		case errors.Is(err, store.ErrDuplicateAccount):
			utils.SendJSONError(w, "account name already exists", http.StatusConflict)
		case errors.Is(err, store.ErrNotFound):
			utils.SendJSONError(w, "account not found", http.StatusNotFound)
		default:
			utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSetAccountOrder persists a new display order.
// POST /api/accounts/order
func (h *AccountHandler) HandleSetAccountOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Names []string `json:"names"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.store.SetAccountOrder(req.Names); err != nil {
		logger.L.Error("Reordering accounts failed", "error", err)
		utils.SendJSONError(w, "failed to reorder accounts", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleDeleteAccount removes an empty, non-default grouping.
// DELETE /api/accounts/{name}
func (h *AccountHandler) HandleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := h.store.DeleteAccount(name); err != nil {
		switch {
		case errors.Is(err, store.ErrDefaultAccount):
			utils.SendJSONError(w, "the default account cannot be deleted", http.StatusForbidden)
		case errors.Is(err, store.ErrAccountInUse):
			utils.SendJSONError(w, "account still has funds assigned", http.StatusConflict)
		case errors.Is(err, store.ErrNotFound):
			utils.SendJSONError(w, "account not found", http.StatusNotFound)
		default:
			utils.SendJSONError(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
