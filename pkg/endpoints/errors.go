package endpoints

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// ErrorDetail maps a failed attempt to a category the user can act on.
// Unknown statuses get a composite of the raw status, transport error and server error text.
func ErrorDetail(status int, statusText, body, transportErr string) string {
	switch status {
	case 0:
		return "Network Error: The server is unreachable."
	case http.StatusBadRequest:
		return "Bad Request: The input URL might be incorrect."
	case http.StatusUnauthorized:
		return "Unauthorized: Please check the API key."
	case http.StatusTooManyRequests:
		return "Too Many Requests: You are being rate-limited."
	case http.StatusServiceUnavailable:
		return "Service Unavailable: The server is temporarily overloaded."
	}

	textStatus := "error"
	if status >= 200 && status <= 299 {
		textStatus = "parsererror"
	}
	msg := fmt.Sprintf("Status: %s, Error: %s", textStatus, transportErr)
	if body != "" {
		var parsed struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal([]byte(body), &parsed); err != nil {
			msg += ", Unable to parse server response."
		} else if parsed.Error != "" {
			msg += ", Server Error: " + parsed.Error
		}
	}

	reason := statusText
	if reason == "" {
		reason = transportErr
	}
	return fmt.Sprintf("%s, HTTP %d: %s", msg, status, reason)
}
