// Package email delivers two-factor codes to account holders.
package email

import (
	"context"

	"github.com/pkg/errors"

	"github.com/jrsteele09/auth-service/users"
)

// TwoFactorSubject is the subject line of every two-factor code email
const TwoFactorSubject = "2FA Code"

var ErrDeliveryFailed = errors.New("email delivery failed")

// Client sends one message. A nil error means the provider accepted it.
type Client interface {
	SendEmail(ctx context.Context, recipient users.Email, subject, content string) error
}
