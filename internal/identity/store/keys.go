package store

// Key families. Every record a repository writes lives under one of these
// prefixes.
const (
	prefixUser       = "user:"
	prefixEmail      = "email_idx:"
	prefixVerify     = "verify:"
	prefixReset      = "reset:"
	prefixSigningKey = "signing_key:"

	// signingKeyHead names the last created signing key. Creators read it
	// inside their transaction so concurrent creates conflict.
	signingKeyHead = "signing_key_head"
)

func userKey(id string) string        { return prefixUser + id }
func emailKey(email string) string    { return prefixEmail + email }
func verifyKey(token string) string   { return prefixVerify + token }
func resetKey(token string) string    { return prefixReset + token }
func signingKeyKey(kid string) string { return prefixSigningKey + kid }

// PrefixUpperBound returns the smallest string greater than every string with
// the given prefix, or "" when no such bound exists.
func PrefixUpperBound(prefix string) string {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xff {
			b[i]++
			return string(b[:i+1])
		}
	}
	return ""
}
