package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

const maxErrorMessageLength = 512

// ConnectivityError means no response reached the client: dial/transport failure,
// context cancellation, or the circuit breaker refusing the call.
type ConnectivityError struct {
	Op  string
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("%s: backend unreachable: %v", e.Op, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// RemoteError is a non-2xx response from the backend
type RemoteError struct {
	Op      string
	Status  int
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: backend rejected request with status %d: %s", e.Op, e.Status, e.Message)
}

// IsConnectivity reports whether err is a connectivity failure
func IsConnectivity(err error) bool {
	var ce *ConnectivityError
	return errors.As(err, &ce)
}

// IsRemoteRejection reports whether err is a non-2xx backend response
func IsRemoteRejection(err error) bool {
	var re *RemoteError
	return errors.As(err, &re)
}

// StatusOf returns the HTTP status carried by a RemoteError, or 0
func StatusOf(err error) int {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Status
	}
	return 0
}

// IsNotFound reports whether the backend answered 404
func IsNotFound(err error) bool {
	return StatusOf(err) == http.StatusNotFound
}

// parseErrorMessage extracts a human readable message from an error body.
// The backend answers {"error": "..."}; anything else is returned as text.
func parseErrorMessage(status int, body []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}

	text := strings.TrimSpace(string(body))
	if text == "" {
		return http.StatusText(status)
	}
	if len(text) > maxErrorMessageLength {
		text = text[:maxErrorMessageLength] + "..."
	}
	return text
}
