package middleware

import (
	"context"
	"net/http"
)

// ActivityRecorder stamps operator activity.
type ActivityRecorder interface {
	UpdateLastActive(ctx context.Context, operatorID string) error
}

// UpdateLastActiveMiddleware records the authenticated operator's activity
// on every request. Failures never block the request.
func UpdateLastActiveMiddleware(recorder ActivityRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if claims := GetUserFromContext(r.Context()); claims != nil {
				_ = recorder.UpdateLastActive(r.Context(), claims.UserID)
			}
			next.ServeHTTP(w, r)
		})
	}
}
