package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"

	identityhttp "github.com/aussiebroadwan/selfie/internal/identity/http"
	"github.com/aussiebroadwan/selfie/internal/identity/mail"
	"github.com/aussiebroadwan/selfie/internal/identity/service"
	"github.com/aussiebroadwan/selfie/internal/identity/store"
	"github.com/aussiebroadwan/selfie/internal/identity/store/drivers/sqlite"
	"github.com/aussiebroadwan/selfie/pkg/authsdk"
	"github.com/aussiebroadwan/selfie/pkg/cryptox"
	"github.com/aussiebroadwan/selfie/pkg/jwtx"
)

const (
	issuer     = "https://selfie.test"
	passphrase = "k8#Vq!2mZr$Lp9wX"
	newPass    = "Zq7!mT$e4Rw#Lk2v"
)

type outbox struct {
	mu   sync.Mutex
	last map[mail.Kind]string
}

func (o *outbox) Deliver(_ context.Context, _ string, kind mail.Kind, token string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.last[kind] = token
	return nil
}

func (o *outbox) token(kind mail.Kind) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.last[kind]
}

type testServer struct {
	client *authsdk.Client
	url    string
	outbox *outbox
	store  store.Store
	keys   *jwtx.KeyManager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())

	keys, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{Issuer: issuer})
	require.NoError(t, err)

	box := &outbox{last: map[mail.Kind]string{}}
	identity := &service.IdentityService{
		Users:  store.NewUsers(st),
		Hasher: cryptox.PasswordHasher{Pepper: "test-pepper"},
		Tokens: &service.TokenService{Keys: keys, Issuer: issuer},
		TOTP:   &service.TOTPService{Issuer: "Selfie"},
		Mail:   box,
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	router := identityhttp.NewRouter(keys.KeySet, keys.Verifier, "test", st, identity, logger)
	router.ApplyRoutes()

	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		srv.Close()
		_ = st.Close()
	})

	return &testServer{
		client: authsdk.NewClient(srv.URL),
		url:    srv.URL,
		outbox: box,
		store:  st,
		keys:   keys,
	}
}

func currentCode(t *testing.T, secret string) string {
	t.Helper()
	code, err := totp.GenerateCodeCustom(secret, time.Now().UTC(), totp.ValidateOpts{
		Period:    30,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	return code
}

func requireAPIError(t *testing.T, err error, want *authsdk.APIError) {
	t.Helper()
	require.Error(t, err)
	var apiErr *authsdk.APIError
	require.True(t, errors.As(err, &apiErr), "want *authsdk.APIError, got %T: %v", err, err)
	require.Equal(t, want.Code, apiErr.Code)
	require.Equal(t, want.StatusCode, apiErr.StatusCode)
}

func TestAccountFlow(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	user, err := ts.client.Register(ctx, authsdk.RegisterRequest{Email: "alice@example.com", Passphrase: passphrase})
	require.NoError(t, err)
	require.Equal(t, "pending_verification", user.Status)

	_, err = ts.client.Register(ctx, authsdk.RegisterRequest{Email: "alice@example.com", Passphrase: passphrase})
	requireAPIError(t, err, authsdk.ErrAlreadyExists)

	session, err := ts.client.Login(ctx, "alice@example.com", passphrase, "")
	require.NoError(t, err)

	me, err := session.Me(ctx)
	require.NoError(t, err)
	require.Equal(t, user.ID, me.ID)
	require.NotNil(t, me.LastLogin)

	require.NoError(t, ts.client.VerifyEmail(ctx, ts.outbox.token(mail.KindVerification)))
	me, err = session.Me(ctx)
	require.NoError(t, err)
	require.True(t, me.EmailVerified)
	require.Equal(t, "active", me.Status)

	tokens, err := ts.client.Refresh(ctx, session.RefreshToken())
	require.NoError(t, err)
	require.Equal(t, "Bearer", tokens.TokenType)
	require.Equal(t, 900, tokens.ExpiresIn)

	_, err = ts.client.Refresh(ctx, session.AccessToken())
	requireAPIError(t, err, authsdk.ErrInvalidToken)
}

func TestValidationErrors(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		req   authsdk.RegisterRequest
		field string
	}{
		{"bad email", authsdk.RegisterRequest{Email: "not-an-email", Passphrase: passphrase}, "email"},
		{"display name email", authsdk.RegisterRequest{Email: "Alice <a@example.com>", Passphrase: passphrase}, "email"},
		{"short passphrase", authsdk.RegisterRequest{Email: "a@example.com", Passphrase: "short"}, "passphrase"},
		{"overlong passphrase", authsdk.RegisterRequest{Email: "a@example.com", Passphrase: strings.Repeat("aB3$xY7!", 1000)}, "passphrase"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ts.client.Register(ctx, tt.req)
			requireAPIError(t, err, authsdk.ErrInvalidRequest)
			var apiErr *authsdk.APIError
			require.True(t, errors.As(err, &apiErr))
			require.Contains(t, apiErr.Details, tt.field)
		})
	}

	_, err := ts.client.Register(ctx, authsdk.RegisterRequest{Email: "weak@example.com", Passphrase: "password1234"})
	requireAPIError(t, err, authsdk.ErrWeakPassphrase)
	require.Contains(t, err.Error(), "too weak")

	resp, err := http.Post(ts.url+"/v1/login", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGateRejectsMissingAndWrongTokens(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	resp, err := http.Get(ts.url + "/v1/me")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Contains(t, resp.Header.Get("WWW-Authenticate"), "Bearer")

	_, err = ts.client.Register(ctx, authsdk.RegisterRequest{Email: "bob@example.com", Passphrase: passphrase})
	require.NoError(t, err)
	tokens, err := ts.client.LoginTokens(ctx, authsdk.LoginRequest{Email: "bob@example.com", Passphrase: passphrase})
	require.NoError(t, err)

	// A refresh token never stands in for an access token.
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.url+"/v1/me", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+tokens.RefreshToken)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLoginLockout(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	_, err := ts.client.Register(ctx, authsdk.RegisterRequest{Email: "carol@example.com", Passphrase: passphrase})
	require.NoError(t, err)

	_, err = ts.client.Login(ctx, "nobody@example.com", passphrase, "")
	requireAPIError(t, err, authsdk.ErrInvalidCredentials)

	for i := 0; i < 5; i++ {
		_, err := ts.client.Login(ctx, "carol@example.com", newPass, "")
		requireAPIError(t, err, authsdk.ErrInvalidCredentials)
	}
	_, err = ts.client.Login(ctx, "carol@example.com", passphrase, "")
	requireAPIError(t, err, authsdk.ErrRateLimited)
}

func TestTwoFactorFlow(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	_, err := ts.client.Register(ctx, authsdk.RegisterRequest{Email: "dave@example.com", Passphrase: passphrase})
	require.NoError(t, err)
	session, err := ts.client.Login(ctx, "dave@example.com", passphrase, "")
	require.NoError(t, err)

	err = session.EnableTOTP(ctx, "123456")
	requireAPIError(t, err, authsdk.ErrTOTPNotEnabled)

	setup, err := session.SetupTOTP(ctx)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(setup.ProvisioningURI, "otpauth://totp/"))

	_, err = session.SetupTOTP(ctx)
	requireAPIError(t, err, authsdk.ErrTOTPSetupPending)

	require.NoError(t, session.EnableTOTP(ctx, currentCode(t, setup.Secret)))

	_, err = session.SetupTOTP(ctx)
	requireAPIError(t, err, authsdk.ErrTOTPAlreadyEnabled)

	_, err = ts.client.Login(ctx, "dave@example.com", passphrase, "")
	requireAPIError(t, err, authsdk.ErrAuthenticationFailed)

	session, err = ts.client.Login(ctx, "dave@example.com", passphrase, currentCode(t, setup.Secret))
	require.NoError(t, err)

	me, err := session.Me(ctx)
	require.NoError(t, err)
	require.True(t, me.TOTPEnabled)

	require.NoError(t, session.DisableTOTP(ctx, currentCode(t, setup.Secret)))
	_, err = ts.client.Login(ctx, "dave@example.com", passphrase, "")
	require.NoError(t, err)
}

func TestPasswordResetFlow(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	_, err := ts.client.Register(ctx, authsdk.RegisterRequest{Email: "erin@example.com", Passphrase: passphrase})
	require.NoError(t, err)

	err = ts.client.RequestPasswordReset(ctx, "erin@example.com")
	requireAPIError(t, err, authsdk.ErrAuthenticationFailed)

	err = ts.client.RequestPasswordReset(ctx, "nobody@example.com")
	requireAPIError(t, err, authsdk.ErrNotFound)

	require.NoError(t, ts.client.ResendVerification(ctx, "erin@example.com"))
	require.NoError(t, ts.client.VerifyEmail(ctx, ts.outbox.token(mail.KindVerification)))

	require.NoError(t, ts.client.RequestPasswordReset(ctx, "erin@example.com"))
	token := ts.outbox.token(mail.KindReset)

	err = ts.client.ResetPassword(ctx, "bogus-token", newPass)
	requireAPIError(t, err, authsdk.ErrInvalidToken)

	require.NoError(t, ts.client.ResetPassword(ctx, token, newPass))

	err = ts.client.ResetPassword(ctx, token, passphrase)
	requireAPIError(t, err, authsdk.ErrInvalidToken)

	_, err = ts.client.Login(ctx, "erin@example.com", newPass, "")
	require.NoError(t, err)
}

func TestSystemEndpoints(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	live, err := ts.client.GetLiveness(ctx)
	require.NoError(t, err)
	require.Equal(t, "ok", live.Status)
	require.Equal(t, "test", live.Version)

	ready, err := ts.client.GetReadiness(ctx)
	require.NoError(t, err)
	require.Equal(t, "ready", ready.Status)
	require.Equal(t, "ok", ready.Checks.Store)

	jwks, err := ts.client.GetJWKS(ctx)
	require.NoError(t, err)
	require.Len(t, jwks.Keys, 1)
	require.Equal(t, ts.keys.Signer.KID(), jwks.Keys[0].Kid)
	require.Equal(t, "OKP", jwks.Keys[0].Kty)

	resp, err := http.Get(ts.url + "/swagger/doc.json")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var doc map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	require.Equal(t, "2.0", doc["swagger"])

	require.NoError(t, ts.store.Close())
	_, err = ts.client.GetReadiness(ctx)
	require.Error(t, err)
}
