package http

import (
	"net/http"

	"github.com/aussiebroadwan/selfie/internal/identity/domain"
	"github.com/aussiebroadwan/selfie/internal/identity/service"
	"github.com/aussiebroadwan/selfie/pkg/authsdk"
	"github.com/aussiebroadwan/selfie/pkg/httpx"
)

// AccountHandler serves registration, login, token refresh and the current
// user's profile.
type AccountHandler struct {
	Identity *service.IdentityService
}

// HandleRegister handles POST /v1/register
//
//	@Summary		Register an account
//	@Description	Creates an account in pending_verification and emails a verification link.
//	@Tags			Account
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.RegisterRequest	true	"Email and passphrase"
//	@Success		201		{object}	authsdk.UserResponse	"The new account"
//	@Failure		400		{object}	authsdk.APIError		"Validation failed or passphrase too weak"
//	@Failure		409		{object}	authsdk.APIError		"Email already registered"
//	@Failure		502		{object}	authsdk.APIError		"Account created but the email could not be sent"
//	@Router			/v1/register [post].
func (h *AccountHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req authsdk.RegisterRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	user, err := h.Identity.Register(r.Context(), req.Email, req.Passphrase)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, userResponse(user))
}

// HandleLogin handles POST /v1/login
//
//	@Summary		Log in
//	@Description	Exchanges email, passphrase and (when enabled) a TOTP code for an access and refresh token.
//	@Tags			Account
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.LoginRequest	true	"Credentials"
//	@Success		200		{object}	authsdk.TokenResponse	"Token pair"
//	@Failure		400		{object}	authsdk.APIError		"Validation failed"
//	@Failure		401		{object}	authsdk.APIError		"Invalid credentials or missing TOTP code"
//	@Failure		429		{object}	authsdk.APIError		"Account locked after repeated failures"
//	@Router			/v1/login [post].
func (h *AccountHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req authsdk.LoginRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	pair, err := h.Identity.Login(r.Context(), req.Email, req.Passphrase, req.TOTPCode)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, tokenResponse(pair))
}

// HandleRefresh handles POST /v1/token/refresh
//
//	@Summary		Refresh tokens
//	@Description	Exchanges a refresh token, sent as the bearer credential, for a new token pair.
//	@Tags			Account
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.TokenResponse	"Token pair"
//	@Failure		401	{object}	authsdk.APIError		"Missing or invalid refresh token"
//	@Router			/v1/token/refresh [post].
func (h *AccountHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	raw, err := httpx.BearerToken(r)
	if err != nil {
		authsdk.ErrInvalidToken.WithDescription("missing bearer refresh token").WriteError(w)
		return
	}

	pair, err := h.Identity.Refresh(r.Context(), raw)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, tokenResponse(pair))
}

// HandleMe handles GET /v1/me
//
//	@Summary		Current account
//	@Description	Returns the account behind the access token.
//	@Tags			Account
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.UserResponse	"The account"
//	@Failure		401	{object}	authsdk.APIError		"Missing or invalid access token"
//	@Failure		404	{object}	authsdk.APIError		"Account no longer exists"
//	@Router			/v1/me [get].
func (h *AccountHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.UserIDFromContext(r.Context())
	if !ok {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	user, err := h.Identity.Me(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, userResponse(user))
}

func userResponse(u domain.PublicUser) authsdk.UserResponse {
	return authsdk.UserResponse{
		ID:            u.ID,
		Email:         u.Email,
		EmailVerified: u.EmailVerified,
		Status:        string(u.Status),
		TOTPEnabled:   u.TOTPEnabled,
		CreatedAt:     u.CreatedAt,
		LastLogin:     u.LastLogin,
	}
}

func tokenResponse(p domain.TokenPair) authsdk.TokenResponse {
	return authsdk.TokenResponse{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		TokenType:    p.TokenType,
		ExpiresIn:    p.ExpiresIn,
	}
}
