package authsdk

import (
	"net/mail"
	"strings"
	"unicode/utf8"
)

// Passphrase length bounds, in characters.
const (
	MinPassphraseLength = 12
	MaxPassphraseLength = 128
)

const (
	reasonRequired       = "required"
	reasonEmail          = "must be a valid email address"
	reasonPassphrase     = "must be at least 12 characters"
	reasonPassphraseLong = "must be at most 128 characters"
	reasonTOTPCode       = "must be exactly 6 digits"
)

func (r RegisterRequest) Validate() map[string]string {
	errs := make(map[string]string)
	validateEmail(errs, "email", r.Email)
	validatePassphrase(errs, "passphrase", r.Passphrase)
	return nilIfEmpty(errs)
}

func (r LoginRequest) Validate() map[string]string {
	errs := make(map[string]string)
	validateEmail(errs, "email", r.Email)
	if r.Passphrase == "" {
		errs["passphrase"] = reasonRequired
	}
	if r.TOTPCode != "" && !isTOTPCode(r.TOTPCode) {
		errs["totp_code"] = reasonTOTPCode
	}
	return nilIfEmpty(errs)
}

func (r EmailRequest) Validate() map[string]string {
	errs := make(map[string]string)
	validateEmail(errs, "email", r.Email)
	return nilIfEmpty(errs)
}

func (r PasswordResetConfirmRequest) Validate() map[string]string {
	errs := make(map[string]string)
	if strings.TrimSpace(r.Token) == "" {
		errs["token"] = reasonRequired
	}
	validatePassphrase(errs, "new_passphrase", r.NewPassphrase)
	return nilIfEmpty(errs)
}

func (r TOTPCodeRequest) Validate() map[string]string {
	errs := make(map[string]string)
	switch {
	case r.Code == "":
		errs["code"] = reasonRequired
	case !isTOTPCode(r.Code):
		errs["code"] = reasonTOTPCode
	}
	return nilIfEmpty(errs)
}

func validateEmail(errs map[string]string, field, email string) {
	if email == "" {
		errs[field] = reasonRequired
		return
	}
	// Reject display-name forms such as "Alice <alice@example.com>".
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		errs[field] = reasonEmail
	}
}

func validatePassphrase(errs map[string]string, field, p string) {
	switch {
	case p == "":
		errs[field] = reasonRequired
	case utf8.RuneCountInString(p) < MinPassphraseLength:
		errs[field] = reasonPassphrase
	case utf8.RuneCountInString(p) > MaxPassphraseLength:
		errs[field] = reasonPassphraseLong
	}
}

func isTOTPCode(code string) bool {
	if len(code) != 6 {
		return false
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func nilIfEmpty(errs map[string]string) map[string]string {
	if len(errs) == 0 {
		return nil
	}
	return errs
}
