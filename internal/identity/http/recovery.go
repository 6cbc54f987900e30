package http

import (
	"net/http"

	"github.com/aussiebroadwan/selfie/internal/identity/service"
	"github.com/aussiebroadwan/selfie/pkg/authsdk"
	"github.com/aussiebroadwan/selfie/pkg/httpx"
)

type RecoveryHandler struct {
	Identity *service.IdentityService
}

// HandleInitiate handles POST /v1/password-reset
//
//	@Summary		Request a password reset
//	@Description	Emails a reset link valid for one hour. The account must have a verified email.
//	@Tags			Recovery
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.EmailRequest	true	"Account email"
//	@Success		202		{object}	authsdk.MessageResponse	"Reset email sent"
//	@Failure		400		{object}	authsdk.APIError		"Validation failed"
//	@Failure		401		{object}	authsdk.APIError		"Email not verified"
//	@Failure		404		{object}	authsdk.APIError		"Unknown email"
//	@Failure		502		{object}	authsdk.APIError		"Email could not be sent"
//	@Router			/v1/password-reset [post].
func (h *RecoveryHandler) HandleInitiate(w http.ResponseWriter, r *http.Request) {
	var req authsdk.EmailRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	if err := h.Identity.InitiatePasswordReset(r.Context(), req.Email); err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusAccepted, authsdk.MessageResponse{Message: "password reset email sent"})
}

// HandleConfirm handles POST /v1/password-reset/confirm
//
//	@Summary		Complete a password reset
//	@Description	Sets a new passphrase using the token from the reset email. The token cannot be reused.
//	@Tags			Recovery
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.PasswordResetConfirmRequest	true	"Token and new passphrase"
//	@Success		200		{object}	authsdk.MessageResponse				"Passphrase updated"
//	@Failure		400		{object}	authsdk.APIError					"Validation failed or passphrase too weak"
//	@Failure		401		{object}	authsdk.APIError					"Unknown or expired token"
//	@Router			/v1/password-reset/confirm [post].
func (h *RecoveryHandler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	var req authsdk.PasswordResetConfirmRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	if err := h.Identity.CompletePasswordReset(r.Context(), req.Token, req.NewPassphrase); err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.MessageResponse{Message: "passphrase updated"})
}
