package http

import (
	"net/http"

	"github.com/aussiebroadwan/selfie/internal/identity/service"
	"github.com/aussiebroadwan/selfie/pkg/authsdk"
	"github.com/aussiebroadwan/selfie/pkg/httpx"
)

// TwoFactorHandler handles TOTP setup, confirmation and removal for the
// authenticated user.
type TwoFactorHandler struct {
	Identity *service.IdentityService
}

// HandleSetup handles POST /v1/2fa/setup
//
//	@Summary		Start TOTP setup
//	@Description	Generates a TOTP secret and provisioning URI. 2FA stays off until confirmed with /v1/2fa/enable.
//	@Tags			Two-Factor
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.TOTPSetupResponse	"Secret and otpauth:// URI"
//	@Failure		401	{object}	authsdk.APIError			"Missing or invalid access token"
//	@Failure		409	{object}	authsdk.APIError			"2FA already enabled or setup already pending"
//	@Router			/v1/2fa/setup [post].
func (h *TwoFactorHandler) HandleSetup(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.UserIDFromContext(r.Context())
	if !ok {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	setup, err := h.Identity.SetupTOTP(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, authsdk.TOTPSetupResponse{
		Secret:          setup.Secret,
		ProvisioningURI: setup.ProvisioningURI,
	})
}

// HandleEnable handles POST /v1/2fa/enable
//
//	@Summary		Enable TOTP
//	@Description	Confirms the pending secret with a current code and turns 2FA on.
//	@Tags			Two-Factor
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.TOTPCodeRequest	true	"Current TOTP code"
//	@Success		200		{object}	authsdk.MessageResponse	"2FA enabled"
//	@Failure		400		{object}	authsdk.APIError		"Validation failed or no pending setup"
//	@Failure		401		{object}	authsdk.APIError		"Wrong code or invalid access token"
//	@Failure		409		{object}	authsdk.APIError		"2FA already enabled"
//	@Router			/v1/2fa/enable [post].
func (h *TwoFactorHandler) HandleEnable(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.UserIDFromContext(r.Context())
	if !ok {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	var req authsdk.TOTPCodeRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	if err := h.Identity.EnableTOTP(r.Context(), userID, req.Code); err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.MessageResponse{Message: "two-factor authentication enabled"})
}

// HandleDisable handles POST /v1/2fa/disable
//
//	@Summary		Disable TOTP
//	@Description	Checks a current code and removes the TOTP secret.
//	@Tags			Two-Factor
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.TOTPCodeRequest	true	"Current TOTP code"
//	@Success		200		{object}	authsdk.MessageResponse	"2FA disabled"
//	@Failure		400		{object}	authsdk.APIError		"Validation failed or 2FA not enabled"
//	@Failure		401		{object}	authsdk.APIError		"Wrong code or invalid access token"
//	@Router			/v1/2fa/disable [post].
func (h *TwoFactorHandler) HandleDisable(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.UserIDFromContext(r.Context())
	if !ok {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	var req authsdk.TOTPCodeRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	if err := h.Identity.DisableTOTP(r.Context(), userID, req.Code); err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.MessageResponse{Message: "two-factor authentication disabled"})
}
