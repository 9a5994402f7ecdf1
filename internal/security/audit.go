package security

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/charlesng35/authcore/internal/app"
	"github.com/charlesng35/authcore/internal/auth/providers"
)

// CheckStatus captures the outcome of a security audit check.
type CheckStatus string

const (
	StatusPass CheckStatus = "pass"
	StatusWarn CheckStatus = "warn"
	StatusFail CheckStatus = "fail"
)

const (
	recommendedSecretBytes = 48
	maxRecommendedSession  = 30 * 24 * time.Hour
	minRecommendedOTP      = 6
	maxRecommendedOTPTTL   = 30 * time.Minute
	maxRecommendedAttempts = 10
)

// Check contains the result of a single audit verification.
type Check struct {
	ID          string      `json:"id"`
	Status      CheckStatus `json:"status"`
	Message     string      `json:"message"`
	Remediation string      `json:"remediation,omitempty"`
}

// Result aggregates all checks with a simple status summary.
type Result struct {
	CheckedAt time.Time      `json:"checked_at"`
	Checks    []Check        `json:"checks"`
	Summary   map[string]int `json:"summary"`
}

// Failed reports whether any check failed outright.
func (r Result) Failed() bool {
	return r.Summary[string(StatusFail)] > 0
}

// AuditService evaluates the authentication configuration for risky settings.
type AuditService struct {
	cfg *app.Config
	now func() time.Time
}

// NewAuditService constructs the audit service over the loaded configuration.
func NewAuditService(cfg *app.Config) *AuditService {
	return &AuditService{cfg: cfg, now: time.Now}
}

// WithClock overrides the clock used in results.
func (s *AuditService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Run executes all audit checks and returns their outcome.
func (s *AuditService) Run() Result {
	var checks []Check
	if s.cfg == nil {
		checks = []Check{{
			ID:          "configuration",
			Status:      StatusFail,
			Message:     "Configuration not loaded.",
			Remediation: "Load configuration before running the security audit.",
		}}
	} else {
		checks = []Check{
			s.checkSessionSecret(),
			s.checkSessionTTL(),
			s.checkCookieSecure(),
			s.checkOTPPolicy(),
			s.checkMailDelivery(),
		}
		checks = append(checks, s.checkProviders()...)
	}

	summary := map[string]int{
		string(StatusPass): 0,
		string(StatusWarn): 0,
		string(StatusFail): 0,
	}
	for _, check := range checks {
		summary[string(check.Status)]++
	}

	return Result{
		CheckedAt: s.now().UTC(),
		Checks:    checks,
		Summary:   summary,
	}
}

func (s *AuditService) checkSessionSecret() Check {
	const id = "session_secret_strength"

	raw, err := app.DecodeKey(s.cfg.Auth.Session.Secret)
	length := len(raw)
	switch {
	case err != nil || length == 0:
		return Check{
			ID:          id,
			Status:      StatusFail,
			Message:     "Session signing secret is missing or unreadable.",
			Remediation: "Set AUTHCORE_AUTH_SESSION_SECRET to a random value of at least 32 bytes.",
		}
	case length < app.MinSessionSecretBytes:
		return Check{
			ID:          id,
			Status:      StatusFail,
			Message:     fmt.Sprintf("Session signing secret is too short (%d bytes).", length),
			Remediation: "Use a randomly generated secret of at least 32 bytes.",
		}
	case length < recommendedSecretBytes:
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     fmt.Sprintf("Session signing secret is %d bytes. Consider 48 bytes or more.", length),
			Remediation: "Rotate AUTHCORE_AUTH_SESSION_SECRET to a longer random value.",
		}
	default:
		return Check{
			ID:      id,
			Status:  StatusPass,
			Message: fmt.Sprintf("Session signing secret length is %d bytes.", length),
		}
	}
}

func (s *AuditService) checkSessionTTL() Check {
	const id = "session_ttl"

	ttl := s.cfg.Auth.Session.TTL
	switch {
	case ttl <= 0:
		return Check{
			ID:      id,
			Status:  StatusWarn,
			Message: "Session TTL is not configured; the default lifetime applies.",
		}
	case ttl > maxRecommendedSession:
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     fmt.Sprintf("Session TTL (%s) exceeds the recommended maximum (%s).", ttl, maxRecommendedSession),
			Remediation: "Reduce auth.session.ttl to limit exposure of a leaked token.",
		}
	default:
		return Check{ID: id, Status: StatusPass, Message: fmt.Sprintf("Session TTL is %s.", ttl)}
	}
}

func (s *AuditService) checkCookieSecure() Check {
	const id = "session_cookie_secure"

	if s.cfg.Auth.Session.CookieSecure {
		return Check{ID: id, Status: StatusPass, Message: "Session cookies are marked Secure."}
	}
	if isLocal(s.cfg.Server.PublicURL) {
		return Check{ID: id, Status: StatusPass, Message: "Insecure session cookies allowed for a local deployment."}
	}
	return Check{
		ID:          id,
		Status:      StatusWarn,
		Message:     "Session cookies are sent over plain HTTP.",
		Remediation: "Enable auth.session.cookie_secure behind TLS.",
	}
}

func (s *AuditService) checkOTPPolicy() Check {
	const id = "otp_policy"

	otp := s.cfg.Auth.OTP
	var issues []string
	if otp.Length > 0 && otp.Length < minRecommendedOTP {
		issues = append(issues, fmt.Sprintf("codes are %d characters", otp.Length))
	}
	if otp.TTL > maxRecommendedOTPTTL {
		issues = append(issues, fmt.Sprintf("codes live for %s", otp.TTL))
	}
	if otp.MaxAttempts > maxRecommendedAttempts {
		issues = append(issues, fmt.Sprintf("%d guesses are allowed", otp.MaxAttempts))
	}
	if otp.RequestLimit <= 0 {
		issues = append(issues, "code requests are not rate limited")
	}

	if len(issues) > 0 {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     "Weak one-time code policy: " + strings.Join(issues, "; ") + ".",
			Remediation: "Use 6+ character codes, a TTL of 30 minutes or less, at most 10 attempts and a request limit.",
		}
	}
	return Check{ID: id, Status: StatusPass, Message: "One-time code policy within recommended bounds."}
}

func (s *AuditService) checkMailDelivery() Check {
	const id = "otp_delivery"

	if !s.cfg.Email.SMTP.Enabled {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     "SMTP is disabled; email sign-in codes cannot be delivered.",
			Remediation: "Configure email.smtp to enable the email code flow.",
		}
	}
	if strings.TrimSpace(s.cfg.Email.SMTP.From) == "" {
		return Check{
			ID:          id,
			Status:      StatusFail,
			Message:     "SMTP is enabled without a sender address.",
			Remediation: "Set email.smtp.from.",
		}
	}
	return Check{ID: id, Status: StatusPass, Message: "SMTP delivery configured."}
}

func (s *AuditService) checkProviders() []Check {
	var checks []Check
	for _, cfg := range s.cfg.Auth.ProviderConfigs(s.cfg.Server.PublicURL) {
		if !cfg.Enabled {
			continue
		}
		id := "oauth_" + cfg.Type
		switch {
		case strings.TrimSpace(cfg.ClientID) == "" || strings.TrimSpace(cfg.ClientSecret) == "":
			checks = append(checks, Check{
				ID:          id,
				Status:      StatusFail,
				Message:     fmt.Sprintf("%s sign-in is enabled without client credentials.", cfg.Type),
				Remediation: fmt.Sprintf("Set client_id and client_secret under auth.oauth.providers.%s.", cfg.Type),
			})
		case !strings.HasPrefix(cfg.RedirectURL, "https://") && !isLocal(cfg.RedirectURL):
			checks = append(checks, Check{
				ID:          id,
				Status:      StatusWarn,
				Message:     fmt.Sprintf("%s callback URL is not HTTPS.", cfg.Type),
				Remediation: "Serve the callback over TLS or set server.public_url to an https URL.",
			})
		case cfg.Type != providers.GitHub && cfg.Issuer != "" && !strings.HasPrefix(cfg.Issuer, "https://"):
			checks = append(checks, Check{
				ID:          id,
				Status:      StatusFail,
				Message:     fmt.Sprintf("%s OIDC issuer is not HTTPS.", cfg.Type),
				Remediation: fmt.Sprintf("Point auth.oauth.providers.%s.issuer at an https URL.", cfg.Type),
			})
		default:
			checks = append(checks, Check{ID: id, Status: StatusPass, Message: fmt.Sprintf("%s sign-in configured.", cfg.Type)})
		}
	}
	return checks
}

func isLocal(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return raw == ""
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}
