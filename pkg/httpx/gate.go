package httpx

import (
	"errors"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/selfie/pkg/jwtx"
	"github.com/aussiebroadwan/selfie/pkg/slogx"
)

var ErrNoBearer = errors.New("httpx: missing bearer token")

// PublicRoute is an allowlist entry of the form "METHOD /path". A path ending
// in "/" matches every path below it.
type PublicRoute string

func (p PublicRoute) matches(r *http.Request) bool {
	method, path, ok := strings.Cut(string(p), " ")
	if !ok || method != r.Method {
		return false
	}
	if strings.HasSuffix(path, "/") {
		return strings.HasPrefix(r.URL.Path, path)
	}
	return r.URL.Path == path
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header.
func BearerToken(r *http.Request) (string, error) {
	authz := r.Header.Get("Authorization")
	scheme, raw, ok := strings.Cut(authz, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrNoBearer
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrNoBearer
	}
	return raw, nil
}

// Gate requires a valid access token on every request except those matching
// public. The verified subject is attached with ContextWithClaims.
func Gate(v jwtx.Verifier, public ...PublicRoute) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, p := range public {
				if p.matches(r) {
					next.ServeHTTP(w, r)
					return
				}
			}

			raw, err := BearerToken(r)
			if err != nil {
				WriteBearerError(w, "missing bearer token")
				return
			}

			claims, err := v.Verify(raw, jwtx.KindAccess)
			if err != nil {
				slogx.FromContext(r.Context()).Warn("jwt verify failed", "err", err)
				if errors.Is(err, jwtx.ErrExpired) {
					WriteBearerError(w, "token expired")
					return
				}
				WriteBearerError(w, "token verification failed")
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithClaims(r.Context(), claims)))
		})
	}
}

// WriteBearerError writes an RFC 6750 invalid_token response.
func WriteBearerError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	WriteJSON(w, http.StatusUnauthorized, map[string]string{
		"error":             "invalid_token",
		"error_description": desc,
	})
}
