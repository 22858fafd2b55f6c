package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fleetdesk/console/internal/models"
	"github.com/fleetdesk/console/internal/services"
	"github.com/fleetdesk/console/pkg/logger"
	"github.com/fleetdesk/console/pkg/middleware"
	"github.com/gorilla/mux"
)

type NotificationHandler struct {
	Service *services.NotificationService
}

func NewNotificationHandler(service *services.NotificationService) *NotificationHandler {
	return &NotificationHandler{Service: service}
}

// GET /notifications
func (h *NotificationHandler) GetNotificationsHandler(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	view, err := h.Service.Snapshot(r.Context(), viewerFromClaims(claims))
	if err != nil {
		logger.Log.Errorf("Failed to fetch notifications: %v", err)
		http.Error(w, "Failed to get notifications", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// POST /admin/notifications
func (h *NotificationHandler) SendNotificationHandler(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var spec models.NotificationSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}

	id, err := h.Service.Send(r.Context(), spec, claims.UserID, claims.Name)
	if errors.Is(err, services.ErrInvalidNotification) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		logger.Log.Errorf("Failed to send notification: %v", err)
		http.Error(w, "Failed to send notification", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// POST /notifications/{id}/read
func (h *NotificationHandler) MarkAsReadHandler(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if err := h.Service.MarkAsRead(r.Context(), mux.Vars(r)["id"], claims.UserID); err != nil {
		logger.Log.Errorf("Failed to mark notification as read: %v", err)
		http.Error(w, "Failed to mark as read", http.StatusInternalServerError)
		return
	}
	writeMessage(w, http.StatusOK, "Notification marked as read")
}

type markAllRequest struct {
	IDs []string `json:"ids"`
}

// POST /notifications/read-all
// Without ids, every notification currently visible to the operator is marked.
func (h *NotificationHandler) MarkAllAsReadHandler(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req markAllRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request payload", http.StatusBadRequest)
			return
		}
	}
	if len(req.IDs) == 0 {
		view, err := h.Service.Snapshot(r.Context(), viewerFromClaims(claims))
		if err != nil {
			logger.Log.Errorf("Failed to fetch notifications: %v", err)
			http.Error(w, "Failed to mark all as read", http.StatusInternalServerError)
			return
		}
		for _, n := range view.Notifications {
			req.IDs = append(req.IDs, n.ID)
		}
	}

	if err := h.Service.MarkAllAsRead(r.Context(), req.IDs, claims.UserID); err != nil {
		logger.Log.Errorf("Failed to mark all notifications as read: %v", err)
		http.Error(w, "Failed to mark all as read", http.StatusInternalServerError)
		return
	}
	writeMessage(w, http.StatusOK, "Notifications marked as read")
}

// DELETE /notifications/{id}
func (h *NotificationHandler) DeleteNotificationHandler(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if err := h.Service.DeleteForUser(r.Context(), mux.Vars(r)["id"], claims.UserID); err != nil {
		logger.Log.Errorf("Failed to delete notification: %v", err)
		http.Error(w, "Failed to delete notification", http.StatusInternalServerError)
		return
	}
	writeMessage(w, http.StatusOK, "Notification deleted")
}

// POST /notifications/clear-read
func (h *NotificationHandler) ClearReadHandler(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if err := h.Service.ClearAllRead(r.Context(), claims.UserID); err != nil {
		logger.Log.Errorf("Failed to clear read notifications: %v", err)
		http.Error(w, "Failed to clear read notifications", http.StatusInternalServerError)
		return
	}
	writeMessage(w, http.StatusOK, "Read notifications cleared")
}

// POST /admin/notifications/cleanup
func (h *NotificationHandler) CleanupHandler(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.Service.CleanupExpired(r.Context())
	if err != nil {
		logger.Log.Errorf("Failed to clean up notifications: %v", err)
		http.Error(w, "Failed to clean up notifications", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}
