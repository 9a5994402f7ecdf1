package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/authcore/internal/auth"
	"github.com/charlesng35/authcore/internal/models"
	"github.com/charlesng35/authcore/pkg/response"
)

// OTPService is the email-code half of the authentication core.
type OTPService interface {
	RequestOTP(ctx context.Context, email string) error
	ConfirmOTP(ctx context.Context, email, code string) (*iauth.Result, error)
}

// OTPHandler exposes the one-time-passcode login flow.
type OTPHandler struct {
	svc     OTPService
	cookies CookieConfig
}

func NewOTPHandler(svc OTPService, cookies CookieConfig) *OTPHandler {
	return &OTPHandler{svc: svc, cookies: cookies.withDefaults()}
}

type otpRequest struct {
	Email string `json:"email" validate:"required,email,max=320"`
}

type otpConfirmRequest struct {
	Email string `json:"email" validate:"required,email,max=320"`
	Code  string `json:"code" validate:"required,otpcode"`
}

type sessionResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type loginResponse struct {
	User    *models.User    `json:"user"`
	Session sessionResponse `json:"session"`
}

// POST /api/auth/otp/request
func (h *OTPHandler) Request(c *gin.Context) {
	var req otpRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.svc.RequestOTP(requestContext(c), req.Email); err != nil {
		response.Error(c, authError(err))
		return
	}

	response.Accepted(c, gin.H{"status": "pending"})
}

// POST /api/auth/otp/confirm
func (h *OTPHandler) Confirm(c *gin.Context) {
	var req otpConfirmRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.svc.ConfirmOTP(requestContext(c), req.Email, req.Code)
	if err != nil {
		response.Error(c, authError(err))
		return
	}

	h.cookies.setSession(c, result.Session)
	response.Success(c, http.StatusOK, newLoginResponse(result))
}

func newLoginResponse(result *iauth.Result) loginResponse {
	return loginResponse{
		User: result.User,
		Session: sessionResponse{
			Token:     result.Session.Token,
			ExpiresAt: result.Session.ExpiresAt,
		},
	}
}
