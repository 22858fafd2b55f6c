package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fleetdesk/console/internal/services"
	"github.com/fleetdesk/console/pkg/logger"
)

// AuthHandler handles operator login.
type AuthHandler struct {
	Service *services.OperatorService
}

func NewAuthHandler(service *services.OperatorService) *AuthHandler {
	return &AuthHandler{Service: service}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// POST /auth/login
func (h *AuthHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}

	token, op, err := h.Service.Login(r.Context(), req.Email, req.Password)
	if errors.Is(err, services.ErrInvalidCredentials) {
		http.Error(w, "Invalid email or password", http.StatusUnauthorized)
		return
	}
	if err != nil {
		logger.Log.WithError(err).Error("Login failed")
		http.Error(w, "Login failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token":    token,
		"operator": op,
	})
}

type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	FleetID  string `json:"fleet_id"`
	Password string `json:"password"`
}

// POST /admin/operators
func (h *AuthHandler) RegisterOperatorHandler(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}

	op, err := h.Service.Register(r.Context(), req.Email, req.Name, req.Role, req.FleetID, req.Password)
	if err != nil {
		logger.Log.WithError(err).Warn("Operator registration failed")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusCreated, op)
}
