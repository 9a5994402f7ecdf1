package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError provides a structured error that can be rendered to API consumers.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e == nil {
		return "<nil>"
	}

	if e.Internal != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Internal)
	}

	return e.Message
}

// Unwrap exposes the internal error for errors.Is / errors.As compatibility.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Internal
}

// WithInternal returns a copy of the AppError with an attached internal error.
func (e *AppError) WithInternal(err error) *AppError {
	if e == nil {
		return nil
	}

	cpy := *e
	cpy.Internal = err
	return &cpy
}

// Is matches AppErrors by code so copies made via WithInternal still compare equal.
func (e *AppError) Is(target error) bool {
	var other *AppError
	if !errors.As(target, &other) || other == nil || e == nil {
		return false
	}
	return e.Code == other.Code
}

// Common errors exposed to the rest of the application.
var (
	ErrUnauthorized = &AppError{
		Code:       "UNAUTHORIZED",
		Message:    "Authentication required",
		StatusCode: http.StatusUnauthorized,
	}

	ErrSessionExpired = &AppError{
		Code:       "auth.session_expired",
		Message:    "Session expired, please sign in again",
		StatusCode: http.StatusUnauthorized,
	}

	ErrForbidden = &AppError{
		Code:       "FORBIDDEN",
		Message:    "Permission denied",
		StatusCode: http.StatusForbidden,
	}

	ErrNotFound = &AppError{
		Code:       "NOT_FOUND",
		Message:    "Resource not found",
		StatusCode: http.StatusNotFound,
	}

	ErrBadRequest = &AppError{
		Code:       "BAD_REQUEST",
		Message:    "Invalid request",
		StatusCode: http.StatusBadRequest,
	}

	ErrInternalServer = &AppError{
		Code:       "INTERNAL_SERVER_ERROR",
		Message:    "Internal server error",
		StatusCode: http.StatusInternalServerError,
	}

	ErrRateLimit = &AppError{
		Code:       "RATE_LIMIT_EXCEEDED",
		Message:    "Too many requests, please slow down",
		StatusCode: http.StatusTooManyRequests,
	}

	ErrCSRFInvalid = &AppError{
		Code:       "CSRF_TOKEN_INVALID",
		Message:    "Invalid CSRF token",
		StatusCode: http.StatusForbidden,
	}
)

// Authentication flow errors. OTP failures are user-actionable and carry specific
// messages; OAuth failures other than ErrProviderDisabled are rendered generically.
var (
	ErrInvalidEmail = &AppError{
		Code:       "auth.invalid_input",
		Message:    "A valid email address is required",
		StatusCode: http.StatusBadRequest,
	}

	ErrInvalidCode = &AppError{
		Code:       "auth.invalid_input",
		Message:    "A verification code is required",
		StatusCode: http.StatusBadRequest,
	}

	ErrOTPNotFound = &AppError{
		Code:       "auth.otp_not_found",
		Message:    "No pending code for this email, request a new one",
		StatusCode: http.StatusBadRequest,
	}

	ErrOTPExpired = &AppError{
		Code:       "auth.otp_expired",
		Message:    "The code has expired, request a new one",
		StatusCode: http.StatusBadRequest,
	}

	ErrOTPMismatch = &AppError{
		Code:       "auth.otp_mismatch",
		Message:    "The code is incorrect",
		StatusCode: http.StatusUnauthorized,
	}

	ErrOTPAttemptsExhausted = &AppError{
		Code:       "auth.otp_attempts_exhausted",
		Message:    "Too many incorrect attempts, request a new code",
		StatusCode: http.StatusUnauthorized,
	}

	ErrOTPRateLimited = &AppError{
		Code:       "auth.otp_rate_limited",
		Message:    "Too many codes requested, try again later",
		StatusCode: http.StatusTooManyRequests,
	}

	ErrOTPDelivery = &AppError{
		Code:       "auth.otp_delivery_failed",
		Message:    "The code could not be delivered, try again later",
		StatusCode: http.StatusBadGateway,
	}

	ErrProviderDisabled = &AppError{
		Code:       "auth.provider_disabled",
		Message:    "This sign-in provider is not enabled",
		StatusCode: http.StatusForbidden,
	}

	ErrProviderUnknown = &AppError{
		Code:       "auth.provider_unknown",
		Message:    "Unknown sign-in provider",
		StatusCode: http.StatusNotFound,
	}

	ErrAuthenticationFailed = &AppError{
		Code:       "auth.authentication_failed",
		Message:    "Authentication failed",
		StatusCode: http.StatusUnauthorized,
	}
)

// New builds a new application error with the provided metadata.
func New(code, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap turns any error into an AppError while keeping the original error for logging.
func Wrap(err error, message string) *AppError {
	return &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Internal:   err,
	}
}

// FromError converts a generic error into an AppError, defaulting to ErrInternalServer.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	return ErrInternalServer.WithInternal(err)
}

// NewBadRequest wraps validation errors with a helpful message.
func NewBadRequest(message string) *AppError {
	return &AppError{
		Code:       ErrBadRequest.Code,
		Message:    message,
		StatusCode: ErrBadRequest.StatusCode,
	}
}
