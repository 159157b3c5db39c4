package httputil

import (
	"encoding/json"
	"net/http"

	apperrors "waprofiles/internal/errors"
)

// Envelope is the body of every successful API response.
type Envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Version string      `json:"version,omitempty"`
}

// WriteJSON encodes v with status. Encoding errors are returned for logging;
// the status line is already sent by then.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// WriteSuccess writes {success:true, message, data}.
func WriteSuccess(w http.ResponseWriter, status int, message string, data interface{}) error {
	return WriteJSON(w, status, Envelope{Success: true, Message: message, Data: data})
}

// WriteError maps err to its HTTP status and writes the failure envelope.
func WriteError(w http.ResponseWriter, err error, requestID string) error {
	return WriteJSON(w, apperrors.HTTPStatusCode(err), apperrors.ToHTTPResponse(err, requestID))
}
