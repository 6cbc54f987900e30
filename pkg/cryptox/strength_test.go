package cryptox_test

import (
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/selfie/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func TestEstimateStrength(t *testing.T) {
	tests := []struct {
		name       string
		passphrase string
		context    []string
		acceptable bool
	}{
		{"common word", "password", nil, false},
		{"common word with digits", "password123", nil, false},
		{"keyboard walk", "qwertyuiop", nil, false},
		{"short random", "aZ9!", nil, false},
		{"long random", "tR7#vQ2!mZ9@kP4$wX", nil, true},
		{"long random mixed", "Gq8%nL3^bW6&yH1*", nil, true},
		{"email echoed back", "alice@example.com", []string{"alice@example.com"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := cryptox.EstimateStrength(tt.passphrase, tt.context...)
			require.Equal(t, tt.acceptable, s.Acceptable(), "score=%d entropy=%.1f", s.Score, s.Entropy)
		})
	}
}

func TestStrengthThresholds(t *testing.T) {
	require.False(t, cryptox.Strength{Score: 2, Entropy: 90}.Acceptable())
	require.False(t, cryptox.Strength{Score: 4, Entropy: 49.9}.Acceptable())
	require.True(t, cryptox.Strength{Score: 3, Entropy: 50}.Acceptable())
}

func TestEstimateStrengthBoundsInput(t *testing.T) {
	long := strings.Repeat("aB3$xY7!", 2000)

	start := time.Now()
	got := cryptox.EstimateStrength(long)
	require.Less(t, time.Since(start), 5*time.Second)

	require.Equal(t, cryptox.EstimateStrength(long[:cryptox.MaxStrengthInput]), got)
	require.Equal(t, cryptox.EstimateStrength(strings.Repeat("é", cryptox.MaxStrengthInput)),
		cryptox.EstimateStrength(strings.Repeat("é", 4*cryptox.MaxStrengthInput)), "counts runes, not bytes")
}
