package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/username/fundfolio/src/logger"
	"github.com/username/fundfolio/src/security"
	"github.com/username/fundfolio/src/utils"
)

type AuthHandler struct {
	authService  *security.AuthService
	passwordHash string
}

// NewAuthHandler hashes the configured operator password once at startup.
func NewAuthHandler(authService *security.AuthService, adminPassword string) (*AuthHandler, error) {
	hash, err := authService.HashPassword(adminPassword)
	if err != nil {
		return nil, err
	}
	return &AuthHandler{
		authService:  authService,
		passwordHash: hash,
	}, nil
}

// HandleLogin exchanges the operator password for an access token.
// POST /api/auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.authService.CompareHashAndPassword(h.passwordHash, req.Password); err != nil {
		logger.L.Warn("Failed login attempt", "remoteAddr", r.RemoteAddr)
		utils.SendJSONError(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	token, err := h.authService.GenerateToken("operator")
	if err != nil {
		utils.SendJSONError(w, "failed to issue token", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, map[string]string{"token": token}, http.StatusOK)
}
