package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"flower-storefront/internal/models"
	"flower-storefront/internal/session"
)

// StartSessionRequest is sent by the Mini-App on launch
type StartSessionRequest struct {
	InitData string `json:"initData"`
	DeviceID string `json:"deviceId"`
}

// SessionResponse describes a started session
type SessionResponse struct {
	Token          string               `json:"token"`
	SessionID      string               `json:"sessionId"`
	DeviceID       string               `json:"deviceId"`
	Mode           string               `json:"mode"`
	IdentityState  string               `json:"identityState"`
	IdentitySource string               `json:"identitySource,omitempty"`
	User           *models.UserIdentity `json:"user,omitempty"`
	IsNewUser      bool                 `json:"isNewUser"`
	CartCount      int                  `json:"cartCount"`
	FavoriteCount  int                  `json:"favoriteCount"`
}

// SessionHandler handles session lifecycle requests
type SessionHandler struct {
	manager *session.Manager
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(manager *session.Manager) *SessionHandler {
	return &SessionHandler{manager: manager}
}

// StartSession handles POST /v1/session
func (h *SessionHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req StartSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		writeErrorResponse(w, http.StatusBadRequest, "bad_request", "Invalid JSON", nil)
		return
	}
	if req.InitData == "" {
		req.InitData = r.Header.Get("X-Telegram-Init-Data")
	}

	s, token, err := h.manager.Start(r.Context(), session.StartRequest{
		InitData: req.InitData,
		DeviceID: req.DeviceID,
	})
	if err != nil {
		slog.Error("Failed to start session", "error", err, "remote_addr", r.RemoteAddr)
		writeErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to start session", nil)
		return
	}

	writeJSONResponse(w, http.StatusCreated, SessionResponse{
		Token:          token,
		SessionID:      s.ID,
		DeviceID:       s.DeviceID,
		Mode:           string(s.Cart.Mode()),
		IdentityState:  s.Resolution.State.String(),
		IdentitySource: string(s.Resolution.Source),
		User:           s.Identity(),
		IsNewUser:      s.Resolution.IsNew,
		CartCount:      s.Cart.CartCount(),
		FavoriteCount:  len(s.Cart.Favorites()),
	})
}

// EndSession handles DELETE /v1/session
func (h *SessionHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	s, ok := currentSession(w, r)
	if !ok {
		return
	}
	h.manager.End(s.ID)
	w.WriteHeader(http.StatusNoContent)
}
