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

// EntityHandler serves drivers and transactions.
type EntityHandler struct {
	Service *services.EntityService
}

func NewEntityHandler(service *services.EntityService) *EntityHandler {
	return &EntityHandler{Service: service}
}

func (h *EntityHandler) fail(w http.ResponseWriter, err error, action string) {
	switch {
	case errors.Is(err, services.ErrRecordLocked):
		http.Error(w, "Record is locked by another operator", http.StatusLocked)
	case errors.Is(err, services.ErrInvalidLock):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, "Record not found", http.StatusNotFound)
	case errors.Is(err, services.ErrUnknownCollection):
		http.Error(w, "Unknown collection", http.StatusNotFound)
	default:
		logger.Log.WithError(err).Errorf("Failed to %s record", action)
		http.Error(w, "Failed to "+action+" record", http.StatusInternalServerError)
	}
}

// POST /{collection}
func (h *EntityHandler) CreateHandler(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	collection := mux.Vars(r)["collection"]
	record, ok := models.NewLockable(collection)
	if !ok {
		http.Error(w, "Unknown collection", http.StatusNotFound)
		return
	}
	if err := json.NewDecoder(r.Body).Decode(record); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}

	id, err := h.Service.Create(r.Context(), collection, claims.UserID, record)
	if err != nil {
		h.fail(w, err, "create")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// GET /{collection}/{id}
func (h *EntityHandler) GetHandler(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	vars := mux.Vars(r)

	record, err := h.Service.Get(r.Context(), vars["collection"], vars["id"], claims.UserID)
	if err != nil {
		h.fail(w, err, "fetch")
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// PUT /{collection}/{id}
func (h *EntityHandler) UpdateHandler(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	vars := mux.Vars(r)
	record, ok := models.NewLockable(vars["collection"])
	if !ok {
		http.Error(w, "Unknown collection", http.StatusNotFound)
		return
	}
	if err := json.NewDecoder(r.Body).Decode(record); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}

	if err := h.Service.Update(r.Context(), vars["collection"], vars["id"], claims.UserID, record); err != nil {
		h.fail(w, err, "update")
		return
	}
	logrus.WithFields(logrus.Fields{"operatorID": claims.UserID, "docID": vars["id"]}).Info("Record updated via API")
	writeMessage(w, http.StatusOK, "Record updated")
}

// DELETE /{collection}/{id}
func (h *EntityHandler) DeleteHandler(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	vars := mux.Vars(r)

	if err := h.Service.Delete(r.Context(), vars["collection"], vars["id"], claims.UserID); err != nil {
		h.fail(w, err, "delete")
		return
	}
	writeMessage(w, http.StatusOK, "Record deleted")
}

type statusRequest struct {
	Status string `json:"status"`
}

// PATCH /drivers/{id}/status
func (h *EntityHandler) SetDriverStatusHandler(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Status == "" {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}

	if err := h.Service.SetStatus(r.Context(), mux.Vars(r)["id"], claims.UserID, req.Status); err != nil {
		h.fail(w, err, "update")
		return
	}
	writeMessage(w, http.StatusOK, "Status updated")
}
