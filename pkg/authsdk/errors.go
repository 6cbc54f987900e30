package authsdk

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/aussiebroadwan/selfie/pkg/httpx"
)

// Error codes carried in the "error" field of every error response.
const (
	ErrorCodeInvalidRequest       = "invalid_request"
	ErrorCodeInvalidCredentials   = "invalid_credentials"
	ErrorCodeAuthenticationFailed = "authentication_failed"
	ErrorCodeInvalidToken         = "invalid_token"
	ErrorCodeTokenExpired         = "token_expired"
	ErrorCodeNotFound             = "not_found"
	ErrorCodeAlreadyExists        = "already_exists"
	ErrorCodeWeakPassphrase       = "weak_passphrase"
	ErrorCodeTOTPAlreadyEnabled   = "totp_already_enabled"
	ErrorCodeTOTPNotEnabled       = "totp_not_enabled"
	ErrorCodeTOTPSetupPending     = "totp_setup_pending"
	ErrorCodeRateLimited          = "rate_limit_exceeded"
	ErrorCodeDeliveryFailed       = "delivery_failed"
	ErrorCodeServerError          = "server_error"
)

// APIError is the error body returned by the identity service. Handlers use
// it to write responses; the client returns it for any non-success status.
type APIError struct {
	StatusCode int `json:"-"`

	Code        string            `json:"error"`
	Description string            `json:"error_description"`
	Details     map[string]string `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Is matches any APIError with the same code, so callers can write
// errors.Is(err, authsdk.ErrInvalidCredentials).
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	return ok && t.Code == e.Code
}

// WriteError writes e as a JSON response.
func (e *APIError) WriteError(w http.ResponseWriter) {
	if e.StatusCode == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	}
	httpx.WriteJSON(w, e.StatusCode, e)
}

// WithDescription returns a copy of e with a different description.
func (e *APIError) WithDescription(desc string) *APIError {
	c := *e
	c.Description = desc
	return &c
}

var (
	ErrInvalidRequest = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidRequest,
		Description: "the request is malformed or missing required parameters",
	}
	ErrInvalidCredentials = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidCredentials,
		Description: "invalid credentials",
	}
	ErrAuthenticationFailed = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeAuthenticationFailed,
		Description: "authentication failed",
	}
	ErrInvalidToken = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidToken,
		Description: "the token is missing or invalid",
	}
	ErrTokenExpired = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeTokenExpired,
		Description: "the token has expired",
	}
	ErrNotFound = &APIError{
		StatusCode:  http.StatusNotFound,
		Code:        ErrorCodeNotFound,
		Description: "not found",
	}
	ErrAlreadyExists = &APIError{
		StatusCode:  http.StatusConflict,
		Code:        ErrorCodeAlreadyExists,
		Description: "an account with this email already exists",
	}
	ErrWeakPassphrase = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeWeakPassphrase,
		Description: "passphrase is too weak",
	}
	ErrTOTPAlreadyEnabled = &APIError{
		StatusCode:  http.StatusConflict,
		Code:        ErrorCodeTOTPAlreadyEnabled,
		Description: "two-factor authentication is already enabled",
	}
	ErrTOTPNotEnabled = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeTOTPNotEnabled,
		Description: "two-factor authentication is not enabled",
	}
	ErrTOTPSetupPending = &APIError{
		StatusCode:  http.StatusConflict,
		Code:        ErrorCodeTOTPSetupPending,
		Description: "two-factor setup is already in progress",
	}
	ErrRateLimited = &APIError{
		StatusCode:  http.StatusTooManyRequests,
		Code:        ErrorCodeRateLimited,
		Description: "too many failed attempts, try again later",
	}
	ErrDeliveryFailed = &APIError{
		StatusCode:  http.StatusBadGateway,
		Code:        ErrorCodeDeliveryFailed,
		Description: "the email could not be delivered",
	}
	ErrServerError = &APIError{
		StatusCode:  http.StatusInternalServerError,
		Code:        ErrorCodeServerError,
		Description: "internal server error",
	}
)

// NewValidationError reports per-field validation failures.
func NewValidationError(details map[string]string) *APIError {
	return &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidRequest,
		Description: "validation failed",
		Details:     details,
	}
}

// parseErrorResponse turns a non-2xx response into an *APIError.
func parseErrorResponse(resp *http.Response, body []byte) error {
	var apiErr APIError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Code != "" {
		apiErr.StatusCode = resp.StatusCode
		return &apiErr
	}

	return &APIError{
		StatusCode:  resp.StatusCode,
		Code:        ErrorCodeServerError,
		Description: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
	}
}
