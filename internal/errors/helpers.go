package errors

import (
	"fmt"
	"net/http"
	"time"
)

// Common error creators for frequent use cases

// NewValidationError creates a validation error with field context
func NewValidationError(field, value, message string) *AppError {
	return New(ErrCodeValidationFailed, message).
		WithContext("field", field).
		WithContext("value", value).
		WithUserMessage(fmt.Sprintf("Invalid %s: %s", field, message))
}

// NewConfigError creates a configuration error
func NewConfigError(key, message string) *AppError {
	return New(ErrCodeInvalidConfig, message).
		WithContext("config_key", key).
		WithUserMessage("Configuration error")
}

// NewDatabaseError creates a database error with operation context
func NewDatabaseError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeDatabaseQuery, fmt.Sprintf("database %s failed", operation)).
		WithContext("operation", operation).
		WithUserMessage("Database operation failed")
}

// NewTimeoutError creates a timeout error with context
func NewTimeoutError(operation string, duration string) *AppError {
	return New(ErrCodeTimeout, fmt.Sprintf("%s timed out after %s", operation, duration)).
		WithContext("operation", operation).
		WithContext("timeout", duration).
		WithUserMessage("Operation timed out, please try again")
}

// NewAuthError creates an authentication error
func NewAuthError(reason string) *AppError {
	return New(ErrCodeAuthentication, "authentication failed").
		WithContext("reason", reason).
		WithUserMessage(reason)
}

// NewForbiddenError creates an authorization error
func NewForbiddenError(reason string) *AppError {
	return New(ErrCodeAuthorization, "authorization failed").
		WithContext("reason", reason).
		WithUserMessage(reason)
}

// NewNotFoundError creates a not found error with resource context
func NewNotFoundError(resource, identifier string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource)).
		WithContext("resource", resource).
		WithContext("identifier", identifier).
		WithUserMessage(fmt.Sprintf("%s not found", resource))
}

// Session lifecycle errors

// NewSessionNotFoundError reports that no session exists for a profile.
func NewSessionNotFoundError(profileID string) *AppError {
	return New(ErrCodeNotFound, "session not found").
		WithContext("profile_id", profileID).
		WithUserMessage("WhatsApp client not initialized")
}

// NewNotAuthenticatedError reports a session whose pairing has not completed.
func NewNotAuthenticatedError(profileID string) *AppError {
	return New(ErrCodeNotAuthenticated, "session is not authenticated").
		WithContext("profile_id", profileID).
		WithUserMessage("WhatsApp client is not authenticated. Please scan the QR code first.")
}

// NewAlreadyAuthenticatedError reports a pairing request on an authenticated session.
func NewAlreadyAuthenticatedError(profileID string) *AppError {
	return New(ErrCodeAlreadyAuthenticated, "session is already authenticated").
		WithContext("profile_id", profileID).
		WithUserMessage("WhatsApp client is already authenticated. No need for QR code.")
}

// NewPairingTimeoutError reports that bounded polling for a pairing code ran out.
func NewPairingTimeoutError(profileID string, attempts int, interval time.Duration) *AppError {
	appErr := New(ErrCodePairingTimeout, fmt.Sprintf("no pairing code after %d attempts", attempts)).
		WithContext("profile_id", profileID).
		WithContext("attempts", attempts).
		WithContext("interval", interval.String()).
		WithUserMessage("Failed to generate QR code. Please try again.")
	appErr.Retryable = true
	return appErr
}

// NewQueryTimeoutError reports a directory query that exceeded its deadline.
func NewQueryTimeoutError(profileID, query string, timeout time.Duration) *AppError {
	appErr := New(ErrCodeQueryTimeout, fmt.Sprintf("%s timed out after %s", query, timeout)).
		WithContext("profile_id", profileID).
		WithContext("query", query).
		WithUserMessage(fmt.Sprintf("Timed out while fetching %s", query))
	appErr.Retryable = true
	return appErr
}

// NewProviderInitError wraps a failure raised while starting a provider connection.
// The provider's message is surfaced unchanged.
func NewProviderInitError(profileID string, err error) *AppError {
	return Wrap(err, ErrCodeProviderInit, err.Error()).
		WithContext("profile_id", profileID).
		WithUserMessage(err.Error())
}

// NewProviderError wraps an opaque provider failure. The provider's message is
// surfaced unchanged.
func NewProviderError(profileID, operation string, err error) *AppError {
	return Wrap(err, ErrCodeProvider, err.Error()).
		WithContext("profile_id", profileID).
		WithContext("operation", operation).
		WithUserMessage(err.Error())
}

// HTTP helpers

// HTTPStatusCode maps error codes to appropriate HTTP status codes
func HTTPStatusCode(err error) int {
	code := GetCode(err)

	switch code {
	case ErrCodeValidationFailed, ErrCodeInvalidInput, ErrCodeInvalidConfig, ErrCodeAlreadyAuthenticated:
		return http.StatusBadRequest
	case ErrCodeAuthentication:
		return http.StatusUnauthorized
	case ErrCodeAuthorization:
		return http.StatusForbidden
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeNotAuthenticated:
		return http.StatusConflict
	case ErrCodeTimeout, ErrCodePairingTimeout:
		return http.StatusRequestTimeout
	case ErrCodeQueryTimeout:
		return http.StatusGatewayTimeout
	case ErrCodeProviderInit, ErrCodeProvider:
		return http.StatusBadGateway
	case ErrCodeDatabaseConnection, ErrCodeDatabaseQuery, ErrCodeDatabaseMigration:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// HTTPErrorResponse is the failure body shared by every API route.
type HTTPErrorResponse struct {
	Success   bool                   `json:"success"`
	Message   string                 `json:"message"`
	Code      ErrorCode              `json:"code"`
	Retryable bool                   `json:"retryable,omitempty"`
	Errors    interface{}            `json:"errors,omitempty"`
	Context   map[string]interface{} `json:"context,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// ToHTTPResponse converts an error to a standardized HTTP response
func ToHTTPResponse(err error, requestID string) HTTPErrorResponse {
	response := HTTPErrorResponse{
		Success:   false,
		RequestID: requestID,
		Code:      ErrCodeInternalError,
		Message:   GetUserMessage(err),
	}

	appErr, ok := As(err)
	if !ok {
		return response
	}

	response.Code = appErr.Code
	response.Retryable = appErr.Retryable
	if len(appErr.Context) > 0 {
		publicContext := make(map[string]interface{})
		for k, v := range appErr.Context {
			switch k {
			case "password", "token", "secret", "value":
			case "errors":
				response.Errors = v
			default:
				publicContext[k] = v
			}
		}
		if len(publicContext) > 0 {
			response.Context = publicContext
		}
	}

	return response
}
