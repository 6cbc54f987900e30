package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/selfie/internal/identity/mail"
	"github.com/aussiebroadwan/selfie/internal/identity/store"
	"github.com/aussiebroadwan/selfie/internal/identity/store/drivers/sqlite"
	"github.com/aussiebroadwan/selfie/pkg/cryptox"
	"github.com/aussiebroadwan/selfie/pkg/jwtx"
)

const (
	testIssuer  = "https://selfie.test"
	strongPass  = "k8#Vq!2mZr$Lp9wX"
	otherStrong = "Zq7!mT$e4Rw#Lk2v"
	weakPass    = "password1234"
	testEmail   = "alice@example.com"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2030, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type delivery struct {
	To    string
	Kind  mail.Kind
	Token string
}

// recordingDeliverer keeps every message and fails while err is set.
type recordingDeliverer struct {
	mu   sync.Mutex
	sent []delivery
	err  error
}

func (d *recordingDeliverer) Deliver(_ context.Context, to string, kind mail.Kind, token string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, delivery{To: to, Kind: kind, Token: token})
	return nil
}

func (d *recordingDeliverer) last(t *testing.T, kind mail.Kind) delivery {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := len(d.sent) - 1; i >= 0; i-- {
		if d.sent[i].Kind == kind {
			return d.sent[i]
		}
	}
	t.Fatalf("no %s delivery recorded", kind)
	return delivery{}
}

func (d *recordingDeliverer) fail(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

var errSMTPDown = errors.New("smtp down")

type harness struct {
	svc   *IdentityService
	users *store.Users
	mail  *recordingDeliverer
	clock *clock
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	s, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.ApplyMigrations())
	t.Cleanup(func() { _ = s.Close() })

	clk := newClock()
	keys, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{Issuer: testIssuer, Now: clk.Now})
	require.NoError(t, err)

	users := store.NewUsers(s)
	users.Now = clk.Now
	deliverer := &recordingDeliverer{}

	return &harness{
		svc: &IdentityService{
			Users:  users,
			Hasher: cryptox.PasswordHasher{Pepper: "test-pepper"},
			Tokens: &TokenService{Keys: keys, Issuer: testIssuer, Now: clk.Now},
			TOTP:   &TOTPService{Issuer: "Selfie", Now: clk.Now},
			Mail:   deliverer,
			Now:    clk.Now,
		},
		users: users,
		mail:  deliverer,
		clock: clk,
	}
}

// register creates a user and returns its id.
func (h *harness) register(t *testing.T, email string) string {
	t.Helper()
	u, err := h.svc.Register(context.Background(), email, strongPass)
	require.NoError(t, err)
	return u.ID
}

// registerVerified creates a user and confirms its email.
func (h *harness) registerVerified(t *testing.T, email string) string {
	t.Helper()
	id := h.register(t, email)
	require.NoError(t, h.svc.VerifyEmail(context.Background(), h.mail.last(t, mail.KindVerification).Token))
	return id
}

// code returns the TOTP code for secret at the harness clock, shifted by
// steps periods.
func (h *harness) code(t *testing.T, secret string, steps int) string {
	t.Helper()
	at := h.clock.Now().Add(time.Duration(steps*totpPeriod) * time.Second)
	code, err := totp.GenerateCodeCustom(secret, at, totp.ValidateOpts{
		Period:    totpPeriod,
		Digits:    totpDigits,
		Algorithm: totpAlgorithm,
	})
	require.NoError(t, err)
	return code
}

// wrongCode returns a code that differs from code in its last digit.
func wrongCode(code string) string {
	b := []byte(code)
	last := len(b) - 1
	b[last] = '0' + (b[last]-'0'+1)%10
	return string(b)
}

// enableTOTP runs setup and enable for id and returns the secret.
func (h *harness) enableTOTP(t *testing.T, id string) string {
	t.Helper()
	setup, err := h.svc.SetupTOTP(context.Background(), id)
	require.NoError(t, err)
	require.NoError(t, h.svc.EnableTOTP(context.Background(), id, h.code(t, setup.Secret, 0)))
	return setup.Secret
}
