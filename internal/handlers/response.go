package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"flower-storefront/internal/catalog"
	"flower-storefront/internal/checkout"
	"flower-storefront/internal/client"
	"flower-storefront/internal/middleware"
	"flower-storefront/internal/models"
	"flower-storefront/internal/reconcile"
	"flower-storefront/internal/session"
)

// writeJSONResponse is a helper function to write JSON responses
func writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
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

// writeDomainError maps errors from the storefront packages to HTTP responses
func writeDomainError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var validationErr *reconcile.ValidationError

	switch {
	case errors.As(err, &validationErr):
		writeErrorResponse(w, http.StatusBadRequest, "bad_request", "Invalid request", []models.ErrorDetail{
			{Field: validationErr.Field, Issue: validationErr.Err.Error()},
		})
	case errors.Is(err, reconcile.ErrUnknownProduct), errors.Is(err, catalog.ErrProductNotFound):
		writeErrorResponse(w, http.StatusNotFound, "not_found", "Product not found", nil)
	case errors.Is(err, reconcile.ErrNotInCart):
		writeErrorResponse(w, http.StatusNotFound, "not_found", "Product is not in the cart", nil)
	case errors.Is(err, checkout.ErrEmptyCart):
		writeErrorResponse(w, http.StatusConflict, "conflict", "Cart is empty", nil)
	case errors.Is(err, checkout.ErrNotAuthenticated):
		writeErrorResponse(w, http.StatusForbidden, "forbidden", "Checkout requires a linked account, reopen the app from Telegram", nil)
	case client.IsConnectivity(err):
		slog.Warn("Backend unreachable", "operation", op, "path", r.URL.Path, "error", err)
		writeErrorResponse(w, http.StatusServiceUnavailable, "backend_unavailable", "Service Unavailable", nil)
	case client.IsRemoteRejection(err):
		slog.Warn("Backend rejected request", "operation", op, "path", r.URL.Path, "error", err)
		writeErrorResponse(w, http.StatusBadGateway, "bad_gateway", "Bad Gateway", nil)
	default:
		slog.Error("Request failed", "operation", op, "path", r.URL.Path, "error", err)
		writeErrorResponse(w, http.StatusInternalServerError, "internal_error", fmt.Sprintf("Failed to %s", op), nil)
	}
}

// currentSession returns the authenticated session or writes a 401
func currentSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		writeErrorResponse(w, http.StatusUnauthorized, "unauthorized", "Session token required", nil)
	}
	return s, ok
}
