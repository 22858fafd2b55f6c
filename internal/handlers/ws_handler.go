package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/fleetdesk/console/internal/models"
	"github.com/fleetdesk/console/internal/realtime"
	"github.com/fleetdesk/console/internal/services"
	"github.com/fleetdesk/console/pkg/logger"
	"github.com/fleetdesk/console/pkg/middleware"
	"github.com/gorilla/websocket"
)

// feedWriteWait bounds one frame write. Stores may deliver on the goroutine
// of the write that caused the change.
var feedWriteWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// RealtimeHandler serves the WebSocket feeds of the console.
type RealtimeHandler struct {
	Notifications *services.NotificationService
	Hub           *realtime.Hub
}

func NewRealtimeHandler(notifications *services.NotificationService, hub *realtime.Hub) *RealtimeHandler {
	return &RealtimeHandler{Notifications: notifications, Hub: hub}
}

type notificationFrame struct {
	Type          string                `json:"type"`
	Notifications []models.Notification `json:"notifications"`
	UnreadCount   int                   `json:"unread_count"`
	ReadIDs       map[string]bool       `json:"read_ids"`
}

// GET /notifications/ws
// Streams the operator's notification center: one frame per change.
func (h *RealtimeHandler) NotificationsWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.WithError(err).Warn("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var writeMu sync.Mutex
	unsubscribe, err := h.Notifications.Subscribe(ctx, viewerFromClaims(claims),
		func(notifications []models.Notification, unreadCount int, readIDs map[string]bool) {
			writeMu.Lock()
			defer writeMu.Unlock()
			_ = conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			err := conn.WriteJSON(notificationFrame{
				Type:          "notifications",
				Notifications: notifications,
				UnreadCount:   unreadCount,
				ReadIDs:       readIDs,
			})
			if err != nil {
				cancel()
			}
		})
	if err != nil {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscription failed"))
		return
	}
	defer unsubscribe()

	logger.Log.WithField("user_id", claims.UserID).Info("Notification feed connected")
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	logger.Log.WithField("user_id", claims.UserID).Info("Notification feed disconnected")
}

// GET /ws/cues
// Delivers lock cues for the operator's own toggles.
func (h *RealtimeHandler) CueWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.WithError(err).Warn("WebSocket upgrade failed")
		return
	}
	realtime.NewClient(h.Hub, conn, claims.UserID).Run()
}
