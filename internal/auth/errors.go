package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charlesng35/authcore/internal/auth/providers"
)

// Error kinds returned by the authentication core. Callers match them with errors.Is.
var (
	ErrInvalidInput = errors.New("auth: invalid input")
	ErrInvalidEmail = fmt.Errorf("%w: email", ErrInvalidInput)
	ErrInvalidCode  = fmt.Errorf("%w: code", ErrInvalidInput)

	ErrOTPNotFound          = errors.New("auth: otp not found")
	ErrOTPExpired           = errors.New("auth: otp expired")
	ErrOTPMismatch          = errors.New("auth: otp mismatch")
	ErrOTPAttemptsExhausted = errors.New("auth: otp attempts exhausted")
	ErrOTPRateLimited       = errors.New("auth: otp requests rate limited")
	ErrOTPDelivery          = errors.New("auth: otp delivery failed")

	ErrProviderDisabled     = providers.ErrProviderDisabled
	ErrProviderUnknown      = providers.ErrProviderUnknown
	ErrMissingProviderEmail = errors.New("auth: provider did not supply an email")
	ErrProviderConflict     = errors.New("auth: email registered through another provider")
	ErrOAuthState           = errors.New("auth: invalid oauth state")

	ErrSessionIssuance = errors.New("auth: session issuance failed")
	ErrSessionInvalid  = errors.New("auth: session invalid")
	ErrSessionExpired  = errors.New("auth: session expired")

	ErrUserNotFound = errors.New("auth: user not found")
)

// ProviderConflictError carries the linkage detail behind ErrProviderConflict. It is meant for
// internal diagnostics only and must not be rendered to end users.
type ProviderConflictError struct {
	Email    string
	Provider string
	Existing []string
}

func (e *ProviderConflictError) Error() string {
	existing := "otp"
	if len(e.Existing) > 0 {
		existing = strings.Join(e.Existing, ",")
	}
	return fmt.Sprintf("auth: email already registered through %s, refusing %s", existing, e.Provider)
}

func (e *ProviderConflictError) Unwrap() error {
	return ErrProviderConflict
}
