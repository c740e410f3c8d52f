package api

import (
	"encoding/json"
	"errors"
	"net/http"
)

// APIError is a non-2xx response from the service with its extracted
// human-readable message.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// IsAuth reports whether the error is an authorization failure.
func (e *APIError) IsAuth() bool {
	return e.Status == http.StatusUnauthorized
}

// parseAPIError extracts the server-provided message from an error body.
// The service is inconsistent about the field name, so both "error" and
// "message" are accepted.
func parseAPIError(status int, body []byte) *APIError {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	msg := ""
	if len(body) > 0 {
		if err := json.Unmarshal(body, &payload); err == nil {
			if payload.Error != "" {
				msg = payload.Error
			} else {
				msg = payload.Message
			}
		}
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &APIError{Status: status, Message: msg}
}

// ErrorMessage returns the user-facing message for any error coming out
// of the client: the server message for APIErrors, err.Error() otherwise.
func ErrorMessage(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
