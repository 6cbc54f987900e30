package service

import (
	"encoding/base32"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/aussiebroadwan/selfie/pkg/cryptox"
)

// TOTP parameters: RFC 6238 defaults, one step of skew either side.
const (
	totpSecretSize = 32
	totpPeriod     = 30
	totpSkew       = 1
	totpDigits     = otp.DigitsSix
	totpAlgorithm  = otp.AlgorithmSHA1
)

// TOTPService generates and checks time-based one-time codes.
type TOTPService struct {
	Issuer string
	Now    func() time.Time
}

func (s *TOTPService) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

var secretEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// GenerateSecret returns 32 random bytes, base32-encoded.
func (s *TOTPService) GenerateSecret() (string, error) {
	raw, err := cryptox.RandomBytes(totpSecretSize)
	if err != nil {
		return "", err
	}
	return secretEncoding.EncodeToString(raw), nil
}

// ProvisioningURI builds the otpauth:// URI that enrolls secret in an
// authenticator app under accountName.
func (s *TOTPService) ProvisioningURI(secret, accountName string) (string, error) {
	raw, err := secretEncoding.DecodeString(strings.TrimRight(strings.ToUpper(secret), "="))
	if err != nil {
		return "", fmt.Errorf("totp: decode secret: %w", err)
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.Issuer,
		AccountName: accountName,
		Period:      totpPeriod,
		SecretSize:  uint(len(raw)),
		Secret:      raw,
		Digits:      totpDigits,
		Algorithm:   totpAlgorithm,
	})
	if err != nil {
		return "", fmt.Errorf("totp: provisioning uri: %w", err)
	}
	return key.URL(), nil
}

// VerifyCode reports whether code is valid for secret at the current step or
// one step either side.
func (s *TOTPService) VerifyCode(secret, code string) bool {
	ok, err := totp.ValidateCustom(strings.TrimSpace(code), secret, s.now().UTC(), totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkew,
		Digits:    totpDigits,
		Algorithm: totpAlgorithm,
	})
	return err == nil && ok
}
