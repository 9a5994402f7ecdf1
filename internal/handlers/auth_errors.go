package handlers

import (
	"errors"

	iauth "github.com/charlesng35/authcore/internal/auth"
	"github.com/charlesng35/authcore/internal/auth/providers"
	appErrors "github.com/charlesng35/authcore/pkg/errors"
)

// authError maps authentication core failures onto API errors. OTP failures keep their kind so
// the client can react; OAuth failures other than provider availability collapse into a single
// generic error.
func authError(err error) *appErrors.AppError {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, iauth.ErrInvalidEmail):
		return appErrors.ErrInvalidEmail
	case errors.Is(err, iauth.ErrInvalidCode):
		return appErrors.ErrInvalidCode
	case errors.Is(err, iauth.ErrInvalidInput):
		return appErrors.ErrBadRequest
	case errors.Is(err, iauth.ErrOTPNotFound):
		return appErrors.ErrOTPNotFound
	case errors.Is(err, iauth.ErrOTPExpired):
		return appErrors.ErrOTPExpired
	case errors.Is(err, iauth.ErrOTPMismatch):
		return appErrors.ErrOTPMismatch
	case errors.Is(err, iauth.ErrOTPAttemptsExhausted):
		return appErrors.ErrOTPAttemptsExhausted
	case errors.Is(err, iauth.ErrOTPRateLimited):
		return appErrors.ErrOTPRateLimited
	case errors.Is(err, iauth.ErrOTPDelivery):
		return appErrors.ErrOTPDelivery.WithInternal(err)
	case errors.Is(err, iauth.ErrProviderDisabled):
		return appErrors.ErrProviderDisabled
	case errors.Is(err, iauth.ErrProviderUnknown):
		return appErrors.ErrProviderUnknown
	case errors.Is(err, iauth.ErrProviderConflict),
		errors.Is(err, iauth.ErrMissingProviderEmail),
		errors.Is(err, iauth.ErrOAuthState),
		errors.Is(err, providers.ErrAuthorizationDenied):
		return appErrors.ErrAuthenticationFailed
	case errors.Is(err, iauth.ErrSessionExpired):
		return appErrors.ErrSessionExpired
	case errors.Is(err, iauth.ErrSessionInvalid), errors.Is(err, iauth.ErrUserNotFound):
		return appErrors.ErrUnauthorized
	default:
		return appErrors.ErrInternalServer.WithInternal(err)
	}
}
