package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aussiebroadwan/selfie/internal/identity/service"
	"github.com/aussiebroadwan/selfie/pkg/authsdk"
	"github.com/aussiebroadwan/selfie/pkg/slogx"
)

// maxBodyBytes caps every JSON request body.
const maxBodyBytes = 64 << 10

// errorMap pairs each service error with the response it produces.
var errorMap = []struct {
	err error
	api *authsdk.APIError
}{
	{service.ErrInvalidCredentials, authsdk.ErrInvalidCredentials},
	{service.ErrAuthenticationFailed, authsdk.ErrAuthenticationFailed},
	{service.ErrInvalidToken, authsdk.ErrInvalidToken},
	{service.ErrTokenExpired, authsdk.ErrTokenExpired},
	{service.ErrNotFound, authsdk.ErrNotFound},
	{service.ErrAlreadyExists, authsdk.ErrAlreadyExists},
	{service.ErrTOTPAlreadyEnabled, authsdk.ErrTOTPAlreadyEnabled},
	{service.ErrTOTPNotEnabled, authsdk.ErrTOTPNotEnabled},
	{service.ErrTOTPSetupPending, authsdk.ErrTOTPSetupPending},
	{service.ErrRateLimitExceeded, authsdk.ErrRateLimited},
	{service.ErrDeliveryFailed, authsdk.ErrDeliveryFailed},
}

// writeServiceError maps err onto its API error. Anything unrecognised is a
// 500 with a generic message.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var weak *service.WeakPassphraseError
	if errors.As(err, &weak) {
		authsdk.ErrWeakPassphrase.WithDescription(weak.Reason).WriteError(w)
		return
	}

	for _, m := range errorMap {
		if errors.Is(err, m.err) {
			m.api.WriteError(w)
			return
		}
	}

	if !errors.Is(err, service.ErrInternal) {
		slogx.FromContext(r.Context()).Error("unmapped service error", "err", err)
	}
	authsdk.ErrServerError.WriteError(w)
}

// validator is implemented by every authsdk request type.
type validator interface {
	Validate() map[string]string
}

// decodeRequest reads a JSON body into v and validates it. It writes the
// error response itself and reports whether the handler should continue.
func decodeRequest(w http.ResponseWriter, r *http.Request, v validator) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		authsdk.ErrInvalidRequest.WithDescription("request body must be valid JSON").WriteError(w)
		return false
	}
	if details := v.Validate(); details != nil {
		authsdk.NewValidationError(details).WriteError(w)
		return false
	}
	return true
}
