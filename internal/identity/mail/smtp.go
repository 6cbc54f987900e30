package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

// TLSMode selects how the SMTP connection is secured.
type TLSMode string

const (
	TLSStartTLS TLSMode = "starttls" // plain connect, then STARTTLS (587)
	TLSImplicit TLSMode = "implicit" // TLS from the first byte (465)
	TLSNone     TLSMode = "none"     // local relays only
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	AppName  string
	AppURL   string
	TLS      TLSMode
	Timeout  time.Duration
}

func (c SMTPConfig) addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// SMTPDeliverer renders HTML messages and sends them through one SMTP
// session per message.
type SMTPDeliverer struct {
	cfg SMTPConfig
	now func() time.Time
}

func NewSMTPDeliverer(cfg SMTPConfig) (*SMTPDeliverer, error) {
	if cfg.Host == "" || cfg.Port == 0 || cfg.From == "" {
		return nil, fmt.Errorf("mail: smtp host, port and from are required")
	}
	switch cfg.TLS {
	case "":
		cfg.TLS = TLSStartTLS
	case TLSStartTLS, TLSImplicit, TLSNone:
	default:
		return nil, fmt.Errorf("mail: unknown tls mode %q", cfg.TLS)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.AppName == "" {
		cfg.AppName = "Selfie"
	}
	return &SMTPDeliverer{cfg: cfg, now: time.Now}, nil
}

func (d *SMTPDeliverer) Deliver(ctx context.Context, to string, kind Kind, token string) error {
	if !kind.Valid() {
		return fmt.Errorf("mail: unknown kind %q", kind)
	}

	body, err := render(kind, templateData{
		AppName: d.cfg.AppName,
		Link:    Link(d.cfg.AppURL, kind, token),
	})
	if err != nil {
		return err
	}

	return d.send(ctx, to, buildMessage(d.cfg.From, to, subjects[kind], body, d.now()))
}

func buildMessage(from, to, subject, body string, date time.Time) []byte {
	var b strings.Builder
	header := func(k, v string) {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(v)
		b.WriteString("\r\n")
	}
	header("From", from)
	header("To", to)
	header("Subject", mime.QEncoding.Encode("utf-8", subject))
	header("Date", date.Format(time.RFC1123Z))
	header("MIME-Version", "1.0")
	header("Content-Type", "text/html; charset=UTF-8")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(b.String())
}

func (d *SMTPDeliverer) dial(ctx context.Context) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: d.cfg.Timeout}
	if d.cfg.TLS == TLSImplicit {
		td := &tls.Dialer{NetDialer: dialer, Config: &tls.Config{ServerName: d.cfg.Host}}
		return td.DialContext(ctx, "tcp", d.cfg.addr())
	}
	return dialer.DialContext(ctx, "tcp", d.cfg.addr())
}

func (d *SMTPDeliverer) send(ctx context.Context, to string, msg []byte) error {
	conn, err := d.dial(ctx)
	if err != nil {
		return fmt.Errorf("mail: dial %s: %w", d.cfg.addr(), err)
	}

	deadline := time.Now().Add(d.cfg.Timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	_ = conn.SetDeadline(deadline)

	c, err := smtp.NewClient(conn, d.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("mail: smtp handshake: %w", err)
	}
	defer c.Close()

	if err := c.Hello("localhost"); err != nil {
		return fmt.Errorf("mail: hello: %w", err)
	}
	if d.cfg.TLS == TLSStartTLS {
		if err := c.StartTLS(&tls.Config{ServerName: d.cfg.Host}); err != nil {
			return fmt.Errorf("mail: starttls: %w", err)
		}
	}
	if d.cfg.Username != "" {
		if err := c.Auth(smtp.PlainAuth("", d.cfg.Username, d.cfg.Password, d.cfg.Host)); err != nil {
			return fmt.Errorf("mail: auth: %w", err)
		}
	}
	if err := c.Mail(d.cfg.From); err != nil {
		return fmt.Errorf("mail: sender: %w", err)
	}
	if err := c.Rcpt(to); err != nil {
		return fmt.Errorf("mail: recipient: %w", err)
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("mail: data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("mail: write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("mail: close data: %w", err)
	}
	return c.Quit()
}
