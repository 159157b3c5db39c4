package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	apperrors "waprofiles/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteSuccess(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, WriteSuccess(rec, http.StatusCreated, "Profile created successfully", map[string]int{"id": 1}))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"success":true,"message":"Profile created successfully","data":{"id":1}}`, rec.Body.String())
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		code    string
		message string
	}{
		{name: "not authenticated", err: apperrors.NewNotAuthenticatedError("2"), status: http.StatusConflict, code: "NOT_AUTHENTICATED"},
		{name: "session missing", err: apperrors.NewSessionNotFoundError("2"), status: http.StatusNotFound, code: "NOT_FOUND", message: "WhatsApp client not initialized"},
		{name: "provider", err: apperrors.NewProviderError("2", "send_text", errors.New("number not on WhatsApp")), status: http.StatusBadGateway, code: "PROVIDER_ERROR", message: "number not on WhatsApp"},
		{name: "pairing timeout", err: apperrors.NewPairingTimeoutError("9", 5, 0), status: http.StatusRequestTimeout, code: "PAIRING_TIMEOUT"},
		{name: "plain error", err: errors.New("boom"), status: http.StatusInternalServerError, code: "INTERNAL_ERROR", message: "An internal error occurred"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			require.NoError(t, WriteError(rec, tt.err, "req_1"))
			assert.Equal(t, tt.status, rec.Code)

			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.code, body["code"])
			assert.Equal(t, "req_1", body["request_id"])
			if tt.message != "" {
				assert.Equal(t, tt.message, body["message"])
			}
		})
	}
}
