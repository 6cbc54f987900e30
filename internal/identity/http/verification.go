package http

import (
	"net/http"
	"strings"

	"github.com/aussiebroadwan/selfie/internal/identity/service"
	"github.com/aussiebroadwan/selfie/pkg/authsdk"
	"github.com/aussiebroadwan/selfie/pkg/httpx"
)

type VerificationHandler struct {
	Identity *service.IdentityService
}

// HandleVerify handles GET /v1/verify-email
//
//	@Summary		Verify email
//	@Description	Confirms the email address holding the token and activates the account. Repeating the call for a verified account is a no-op.
//	@Tags			Verification
//	@Produce		json
//	@Param			token	query		string					true	"Verification token from the email link"
//	@Success		200		{object}	authsdk.MessageResponse	"Email verified"
//	@Failure		400		{object}	authsdk.APIError		"Missing token"
//	@Failure		401		{object}	authsdk.APIError		"Unknown or used token"
//	@Router			/v1/verify-email [get].
func (h *VerificationHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		authsdk.NewValidationError(map[string]string{"token": "required"}).WriteError(w)
		return
	}

	if err := h.Identity.VerifyEmail(r.Context(), token); err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.MessageResponse{Message: "email verified"})
}

// HandleResend handles POST /v1/verify-email/resend
//
//	@Summary		Resend verification email
//	@Description	Mints a new verification token for an unverified account and emails it. The previous link stops working.
//	@Tags			Verification
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.EmailRequest	true	"Account email"
//	@Success		202		{object}	authsdk.MessageResponse	"Verification email sent"
//	@Failure		400		{object}	authsdk.APIError		"Validation failed"
//	@Failure		404		{object}	authsdk.APIError		"Unknown email"
//	@Failure		502		{object}	authsdk.APIError		"Email could not be sent"
//	@Router			/v1/verify-email/resend [post].
func (h *VerificationHandler) HandleResend(w http.ResponseWriter, r *http.Request) {
	var req authsdk.EmailRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	if err := h.Identity.ResendVerification(r.Context(), req.Email); err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusAccepted, authsdk.MessageResponse{Message: "verification email sent"})
}
