package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/fleetdesk/console/internal/services"
	jwtutil "github.com/fleetdesk/console/pkg/jwt"
	"github.com/fleetdesk/console/pkg/logger"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.WithError(err).Warn("Failed to encode response")
	}
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

func viewerFromClaims(claims *jwtutil.Claims) services.Viewer {
	return services.Viewer{
		UserID:    claims.UserID,
		Role:      claims.Role,
		CreatedAt: time.UnixMilli(claims.AccountCreated),
	}
}
