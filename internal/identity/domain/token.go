package domain

import "time"

// TokenPair is the result of a successful login or refresh.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    int // access token lifetime in seconds
}

// PublicUser is the view of a User that may leave the service.
type PublicUser struct {
	ID            string
	Email         string
	EmailVerified bool
	Status        Status
	TOTPEnabled   bool
	CreatedAt     time.Time
	LastLogin     *time.Time
}

func (u *User) Public() PublicUser {
	return PublicUser{
		ID:            u.ID,
		Email:         u.Email,
		EmailVerified: u.EmailVerified,
		Status:        u.Status,
		TOTPEnabled:   u.TOTPEnabled,
		CreatedAt:     u.CreatedAt,
		LastLogin:     u.LastLogin,
	}
}

// TOTPSetup is returned when a secret is generated but not yet confirmed.
type TOTPSetup struct {
	Secret          string
	ProvisioningURI string
}
