package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"flower-storefront/internal/models"
	"flower-storefront/internal/session"
)

type contextKey struct{}

var sessionKey contextKey

// SessionSource resolves a bearer token to a live session
type SessionSource interface {
	Get(token string) (*session.Session, error)
}

// SessionAuth requires a valid session token in the Authorization header
func SessionAuth(sessions SessionSource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				slog.Warn("Authentication failed: missing session token", "remote_addr", r.RemoteAddr)
				writeErrorResponse(w, http.StatusUnauthorized, "unauthorized", "Session token required", nil)
				return
			}

			s, err := sessions.Get(token)
			if err != nil {
				message := "Invalid session token"
				if errors.Is(err, session.ErrSessionNotFound) {
					message = "Session expired, start a new one"
				}
				slog.Warn("Authentication failed", "remote_addr", r.RemoteAddr, "error", err)
				writeErrorResponse(w, http.StatusUnauthorized, "unauthorized", message, nil)
				return
			}

			slog.Debug("Authentication successful", "remote_addr", r.RemoteAddr, "session_id", s.ID)
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))
		})
	}
}

// BearerToken extracts the token from "Authorization: Bearer <token>"
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// WithSession returns a copy of ctx carrying s
func WithSession(ctx context.Context, s *session.Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// SessionFromContext returns the session placed by SessionAuth
func SessionFromContext(ctx context.Context) (*session.Session, bool) {
	s, ok := ctx.Value(sessionKey).(*session.Session)
	return s, ok && s != nil
}

// writeErrorResponse is a helper function to write error responses
func writeErrorResponse(w http.ResponseWriter, statusCode int, code, message string, details []models.ErrorDetail) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(models.ErrorResponse{
		Code:    code,
		Message: message,
		Details: details,
	})
}
