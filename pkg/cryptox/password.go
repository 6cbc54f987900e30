package cryptox

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters for newly created hashes. Verification always uses the
// parameters embedded in the stored hash.
const (
	memory      = 19 * 1024 // KiB
	iterations  = 2
	parallelism = 1
	keyLength   = 32
	saltLength  = 16
)

// Bounds on the parameters Verify accepts from a stored hash.
const (
	maxMemory     = 256 * 1024 // KiB
	maxIterations = 10
	maxKeyLength  = 64
)

// dummyHash has the parameters Hash uses and matches no passphrase anyone
// knows.
const dummyHash = "$argon2id$v=19$m=19456,t=2,p=1$itifvUG2TdnqK8pIYOOpjg$OqHi+ib5tm7nbExodw1S/0iuBQ8R7/cMZ263Jl8P0WM"

var (
	ErrPasswordMismatch = errors.New("cryptox: password does not match")
	ErrMalformedHash    = errors.New("cryptox: malformed password hash")
)

// PasswordHasher produces and checks PHC-format Argon2id hashes. Pepper is
// appended to every passphrase before hashing and is never stored.
type PasswordHasher struct {
	Pepper string
}

// Hash returns "$argon2id$v=19$m=..,t=..,p=..$salt$hash" with a fresh salt.
func (h PasswordHasher) Hash(passphrase string) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("cryptox: read salt: %w", err)
	}

	sum := argon2.IDKey([]byte(passphrase+h.Pepper), salt, iterations, memory, parallelism, keyLength)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		memory,
		iterations,
		parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(sum),
	), nil
}

// Verify recomputes the hash of passphrase and compares in constant time.
// It returns ErrPasswordMismatch on a wrong passphrase and ErrMalformedHash
// when encoded cannot be parsed.
func (h PasswordHasher) Verify(passphrase, encoded string) error {
	// ["", "argon2id", "v=19", "m=X,t=Y,p=Z", "salt", "hash"]
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return ErrMalformedHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return ErrMalformedHash
	}

	var mem, iters uint32
	var par uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mem, &iters, &par); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedHash, err)
	}
	if par == 0 || iters == 0 || iters > maxIterations || mem < 8*uint32(par) || mem > maxMemory {
		return fmt.Errorf("%w: parameters out of range", ErrMalformedHash)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return fmt.Errorf("%w: salt: %v", ErrMalformedHash, err)
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(want) == 0 || len(want) > maxKeyLength {
		return ErrMalformedHash
	}

	got := argon2.IDKey([]byte(passphrase+h.Pepper), salt, iters, mem, par, uint32(len(want))) // #nosec G115

	if subtle.ConstantTimeCompare(got, want) != 1 {
		return ErrPasswordMismatch
	}
	return nil
}

// VerifyDummy does the work of one Verify against a hash nothing matches and
// always returns ErrPasswordMismatch. Callers use it when there is no stored
// hash so the miss costs the same as a wrong passphrase.
func (h PasswordHasher) VerifyDummy(passphrase string) error {
	if err := h.Verify(passphrase, dummyHash); err != nil {
		return err
	}
	return ErrPasswordMismatch
}
