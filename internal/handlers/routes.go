package handlers

import (
	"net/http"

	"github.com/fleetdesk/console/internal/models"
	"github.com/fleetdesk/console/pkg/middleware"
	"github.com/gorilla/mux"
)

// lockableCollections restricts record routes to collections carrying a lock.
const lockableCollections = "{collection:drivers|transactions}"

// Router groups the handlers served by the console API.
type Router struct {
	Auth          *AuthHandler
	Entities      *EntityHandler
	Locks         *LockHandler
	Notifications *NotificationHandler
	Realtime      *RealtimeHandler
	JWTSecret     string
	// Activity, when set, records the last activity of authenticated operators.
	Activity middleware.ActivityRecorder
}

// Build wires every route onto a new mux.Router.
func (rt *Router) Build() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/auth/login", rt.Auth.LoginHandler).Methods("POST")
	router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeMessage(w, http.StatusOK, "ok")
	}).Methods("GET")

	protected := router.NewRoute().Subrouter()
	protected.Use(middleware.AuthMiddleware(rt.JWTSecret))
	if rt.Activity != nil {
		protected.Use(middleware.UpdateLastActiveMiddleware(rt.Activity))
	}

	// Realtime feeds
	protected.HandleFunc("/notifications/ws", rt.Realtime.NotificationsWebSocketHandler).Methods("GET")
	protected.HandleFunc("/ws/cues", rt.Realtime.CueWebSocketHandler).Methods("GET")

	// Notification center
	protected.HandleFunc("/notifications", rt.Notifications.GetNotificationsHandler).Methods("GET")
	protected.HandleFunc("/notifications/read-all", rt.Notifications.MarkAllAsReadHandler).Methods("POST")
	protected.HandleFunc("/notifications/clear-read", rt.Notifications.ClearReadHandler).Methods("POST")
	protected.HandleFunc("/notifications/{id}/read", rt.Notifications.MarkAsReadHandler).Methods("POST")
	protected.HandleFunc("/notifications/{id}", rt.Notifications.DeleteNotificationHandler).Methods("DELETE")

	// Lockable records
	protected.HandleFunc("/drivers/{id}/status", rt.Entities.SetDriverStatusHandler).Methods("PATCH")
	protected.HandleFunc("/"+lockableCollections, rt.Entities.CreateHandler).Methods("POST")
	protected.HandleFunc("/"+lockableCollections+"/{id}", rt.Entities.GetHandler).Methods("GET")
	protected.HandleFunc("/"+lockableCollections+"/{id}", rt.Entities.UpdateHandler).Methods("PUT")
	protected.HandleFunc("/"+lockableCollections+"/{id}", rt.Entities.DeleteHandler).Methods("DELETE")
	protected.HandleFunc("/"+lockableCollections+"/{id}/lock", rt.Locks.GetLockHandler).Methods("GET")
	protected.HandleFunc("/"+lockableCollections+"/{id}/lock/toggle", rt.Locks.ToggleLockHandler).Methods("POST")

	// Admin routes
	admin := router.PathPrefix("/admin").Subrouter()
	admin.Use(middleware.AuthMiddleware(rt.JWTSecret))
	admin.Use(middleware.RequireRole(models.RoleAdmin))
	admin.HandleFunc("/operators", rt.Auth.RegisterOperatorHandler).Methods("POST")
	admin.HandleFunc("/notifications", rt.Notifications.SendNotificationHandler).Methods("POST")
	admin.HandleFunc("/notifications/cleanup", rt.Notifications.CleanupHandler).Methods("POST")

	router.Use(middleware.LoggingMiddleware)
	return router
}
