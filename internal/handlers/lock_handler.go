package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fleetdesk/console/internal/models"
	"github.com/fleetdesk/console/internal/services"
	"github.com/fleetdesk/console/internal/store"
	"github.com/fleetdesk/console/pkg/logger"
	"github.com/fleetdesk/console/pkg/middleware"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// LockHandler exposes the lock affordance of lockable records.
type LockHandler struct {
	Service *services.LockService
}

func NewLockHandler(service *services.LockService) *LockHandler {
	return &LockHandler{Service: service}
}

type toggleLockRequest struct {
	// Current is the lock state the console last rendered.
	Current *models.LockState `json:"current"`
}

// GET /{collection}/{id}/lock
func (h *LockHandler) GetLockHandler(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	vars := mux.Vars(r)

	aff, err := h.Service.Affordance(r.Context(), vars["collection"], vars["id"], claims.UserID)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "Record not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logger.Log.WithError(err).Error("Failed to read lock state")
		http.Error(w, "Failed to read lock state", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, aff)
}

// POST /{collection}/{id}/lock/toggle
func (h *LockHandler) ToggleLockHandler(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	vars := mux.Vars(r)

	var req toggleLockRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request payload", http.StatusBadRequest)
			return
		}
	}

	locked, err := h.Service.ToggleLock(r.Context(), vars["collection"], vars["id"], claims.UserID, req.Current)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "Record not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logger.Log.WithError(err).WithFields(logrus.Fields{
			"collection": vars["collection"],
			"doc_id":     vars["id"],
		}).Error("Lock toggle failed")
		http.Error(w, "Failed to update lock state", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"is_locked": locked})
}
