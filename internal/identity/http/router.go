package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/selfie/internal/identity/service"
	"github.com/aussiebroadwan/selfie/internal/identity/store"
	"github.com/aussiebroadwan/selfie/pkg/httpx"
	"github.com/aussiebroadwan/selfie/pkg/jwtx"
	"github.com/aussiebroadwan/selfie/pkg/slogx"

	_ "github.com/aussiebroadwan/selfie/api/identity" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// PublicRoutes bypass the access-token gate. Everything else requires a
// valid access token.
var PublicRoutes = []httpx.PublicRoute{
	"GET /livez",
	"GET /readyz",
	"GET /.well-known/jwks.json",
	"GET /swagger/",
	"POST /v1/register",
	"POST /v1/login",
	"POST /v1/token/refresh",
	"GET /v1/verify-email",
	"POST /v1/verify-email/resend",
	"POST /v1/password-reset",
	"POST /v1/password-reset/confirm",
}

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	keys         *jwtx.KeySet
	verifier     jwtx.Verifier
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store    store.Store
	Identity *service.IdentityService
}

func NewRouter(
	keys *jwtx.KeySet,
	verifier jwtx.Verifier,
	buildVersion string,
	st store.Store,
	identity *service.IdentityService,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		keys:         keys,
		verifier:     verifier,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		Identity:     identity,
		logger:       logger,
	}

	// Logging wraps the gate so rejected requests are logged too.
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
		httpx.Gate(r.verifier, PublicRoutes...),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAccount()
	r.registerVerification()
	r.registerRecovery()
	r.registerTwoFactor()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			Selfie Identity Service API
//	@version		0.1.0
//	@description	Account registration, login with optional TOTP second factor, email verification and password recovery.
//	@description
//	@description				Access and refresh tokens are EdDSA-signed JWTs and can be verified offline using the JWKS endpoint.
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/selfie
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT token. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerAccount() {
	h := &AccountHandler{Identity: r.Identity}

	r.Mux.HandleFunc("POST /v1/register", h.HandleRegister)
	r.Mux.HandleFunc("POST /v1/login", h.HandleLogin)
	r.Mux.HandleFunc("POST /v1/token/refresh", h.HandleRefresh)
	r.Mux.HandleFunc("GET /v1/me", h.HandleMe)
}

func (r *Router) registerVerification() {
	h := &VerificationHandler{Identity: r.Identity}

	r.Mux.HandleFunc("GET /v1/verify-email", h.HandleVerify)
	r.Mux.HandleFunc("POST /v1/verify-email/resend", h.HandleResend)
}

func (r *Router) registerRecovery() {
	h := &RecoveryHandler{Identity: r.Identity}

	r.Mux.HandleFunc("POST /v1/password-reset", h.HandleInitiate)
	r.Mux.HandleFunc("POST /v1/password-reset/confirm", h.HandleConfirm)
}

func (r *Router) registerTwoFactor() {
	h := &TwoFactorHandler{Identity: r.Identity}

	r.Mux.HandleFunc("POST /v1/2fa/setup", h.HandleSetup)
	r.Mux.HandleFunc("POST /v1/2fa/enable", h.HandleEnable)
	r.Mux.HandleFunc("POST /v1/2fa/disable", h.HandleDisable)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez", LivezHandler(r.startTime, r.buildVersion))
	r.Mux.Handle("GET /readyz", ReadyzHandler(r.startTime, r.buildVersion, r.store, r.keys))
	r.Mux.Handle("GET /.well-known/jwks.json", JWKSHandler(r.keys))
}
