package api

import (
	"context"
	"log/slog"
	"net/http"

	lperrs "github.com/linkpulse/linkpulse/internal/errors"
	"github.com/linkpulse/linkpulse/internal/serverutil"
	"github.com/linkpulse/linkpulse/logger"
)

// Authentication itself lives in the fronting layer; this service only needs
// the identity it resolved, passed along in a header.
const userHeader = "X-User-ID"

type contextKey string

const userIDKey contextKey = "userID"

func requireUserMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid := r.Header.Get(userHeader)
		if uid == "" {
			sErr := lperrs.E("Unauthenticated", http.StatusUnauthorized)
			if err := serverutil.WriteJSON(w, sErr.Status, sErr); err != nil {
				slog.Error("error writing response", "error", err)
			}
			return
		}

		ctx := logger.Ctx(r.Context(), slog.String("user_id", uid))
		ctx = context.WithValue(ctx, userIDKey, uid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// userID fetches the calling user set by requireUserMiddleware.
func userID(r *http.Request) string {
	uid, _ := r.Context().Value(userIDKey).(string)
	return uid
}
