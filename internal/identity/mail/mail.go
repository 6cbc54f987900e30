// Package mail delivers the verification and password reset links minted by
// the identity service.
package mail

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/aussiebroadwan/selfie/pkg/slogx"
)

// Kind selects the message template.
type Kind string

const (
	KindVerification Kind = "verification"
	KindReset        Kind = "reset"
)

func (k Kind) Valid() bool { return k == KindVerification || k == KindReset }

// Deliverer sends token to the owner of address. A returned error is terminal
// for the calling operation; implementations do not retry.
type Deliverer interface {
	Deliver(ctx context.Context, to string, kind Kind, token string) error
}

// Link returns the front-end URL a recipient follows for kind.
func Link(appURL string, kind Kind, token string) string {
	path := "/verify-email"
	if kind == KindReset {
		path = "/reset-password"
	}
	return strings.TrimRight(appURL, "/") + path + "?token=" + url.QueryEscape(token)
}

// LogDeliverer writes links to the request logger instead of sending mail.
type LogDeliverer struct {
	AppURL string
}

func (d LogDeliverer) Deliver(ctx context.Context, to string, kind Kind, token string) error {
	if !kind.Valid() {
		return fmt.Errorf("mail: unknown kind %q", kind)
	}
	slogx.FromContext(ctx).Info("mail delivery",
		slog.String("to", to),
		slog.String("kind", string(kind)),
		slog.String("link", Link(d.AppURL, kind, token)),
	)
	return nil
}
