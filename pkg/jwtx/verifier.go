package jwtx

import "errors"

// Verifier validates a token of the expected kind and returns its claims.
type Verifier interface {
	Verify(token string, kind Kind) (Claims, error)
}

var (
	ErrMalformed    = errors.New("jwtx: malformed token")
	ErrInvalidSig   = errors.New("jwtx: invalid signature")
	ErrIssuer       = errors.New("jwtx: issuer mismatch")
	ErrExpired      = errors.New("jwtx: token expired")
	ErrInvalidClaim = errors.New("jwtx: invalid claims")
	ErrKindMismatch = errors.New("jwtx: token kind mismatch")
)
