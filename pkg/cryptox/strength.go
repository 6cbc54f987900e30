package cryptox

import "github.com/nbutton23/zxcvbn-go"

// Minimum strength accepted for a new passphrase.
const (
	MinStrengthScore = 3
	MinEntropyBits   = 50.0
)

// MaxStrengthInput bounds the runes the estimator looks at. zxcvbn matching
// grows super-linearly with input length.
const MaxStrengthInput = 128

// Strength is the zxcvbn estimate for a passphrase.
type Strength struct {
	Score   int     // 0..4
	Entropy float64 // bits
}

// Acceptable reports whether the estimate clears both thresholds.
func (s Strength) Acceptable() bool {
	return s.Score >= MinStrengthScore && s.Entropy >= MinEntropyBits
}

// EstimateStrength scores passphrase. Context tokens (the user's email, for
// instance) are treated as dictionary words so passphrases built from them
// score lower.
//
// Only the first MaxStrengthInput runes are scored.
func EstimateStrength(passphrase string, context ...string) Strength {
	m := zxcvbn.PasswordStrength(truncateRunes(passphrase, MaxStrengthInput), context)
	return Strength{Score: m.Score, Entropy: m.Entropy}
}

func truncateRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
