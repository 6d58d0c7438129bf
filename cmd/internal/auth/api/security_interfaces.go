package authapi

import (
	"context"
	"errors"
	"net"
	"strings"
)

// ErrCaptchaRequired is returned when captcha is enabled but no token was sent.
var ErrCaptchaRequired = errors.New("captcha required")

// ErrCaptchaInvalid is returned when the captcha token fails verification.
var ErrCaptchaInvalid = errors.New("captcha invalid")

// CaptchaVerifier verifies a client-supplied captcha token. Implementations
// call out to the captcha provider; the default is a no-op.
type CaptchaVerifier interface {
	Verify(ctx context.Context, token string, ip net.IP) error
}

// NoopCaptchaVerifier accepts every token.
type NoopCaptchaVerifier struct{}

// Verify always succeeds.
func (NoopCaptchaVerifier) Verify(context.Context, string, net.IP) error { return nil }

// WelcomeMessage describes a post-registration email.
type WelcomeMessage struct {
	UserID string
	Email  string
	Name   string
}

// PasswordResetMessage carries a reset link secret to the account owner.
// Token is the plain secret; it must never be logged or audited.
type PasswordResetMessage struct {
	UserID string
	Email  string
	Token  string
}

// EmailSender delivers transactional auth emails. Failures are logged, never
// surfaced to the client.
type EmailSender interface {
	SendWelcome(ctx context.Context, msg WelcomeMessage) error
	SendPasswordReset(ctx context.Context, msg PasswordResetMessage) error
}

// NoopEmailSender drops every message.
type NoopEmailSender struct{}

// SendWelcome does nothing.
func (NoopEmailSender) SendWelcome(context.Context, WelcomeMessage) error { return nil }

// SendPasswordReset does nothing.
func (NoopEmailSender) SendPasswordReset(context.Context, PasswordResetMessage) error { return nil }

func normalizeCaptchaToken(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 4096 {
		return ""
	}
	return s
}
