package security

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/authcore/internal/app"
)

func findCheck(t *testing.T, result Result, id string) Check {
	t.Helper()
	for _, check := range result.Checks {
		if check.ID == id {
			return check
		}
	}
	t.Fatalf("check %s not found in %+v", id, result.Checks)
	return Check{}
}

func strongConfig() *app.Config {
	cfg := &app.Config{}
	cfg.Server.PublicURL = "https://auth.example.com"
	cfg.Auth.Session = app.SessionSettings{
		Secret:       strings.Repeat("a1", 48),
		TTL:          24 * time.Hour,
		CookieSecure: true,
	}
	cfg.Auth.OTP = app.OTPSettings{Length: 6, TTL: 10 * time.Minute, MaxAttempts: 5, RequestLimit: 5}
	cfg.Email.SMTP.Enabled = true
	cfg.Email.SMTP.From = "no-reply@example.com"
	cfg.Auth.OAuth.Providers.GitHub = app.ProviderSettings{Enabled: true, ClientID: "id", ClientSecret: "secret"}
	return cfg
}

func TestAuditServiceRunPasses(t *testing.T) {
	svc := NewAuditService(strongConfig())
	fixed := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	svc.WithClock(func() time.Time { return fixed })

	result := svc.Run()
	require.Equal(t, fixed, result.CheckedAt)
	require.Len(t, result.Checks, 6)
	require.Equal(t, 6, result.Summary[string(StatusPass)], "%+v", result.Checks)
	require.False(t, result.Failed())
}

func TestAuditServiceFlagsWeakSettings(t *testing.T) {
	cfg := strongConfig()
	cfg.Auth.Session.Secret = "short"
	cfg.Auth.Session.TTL = 90 * 24 * time.Hour
	cfg.Auth.Session.CookieSecure = false
	cfg.Auth.OTP = app.OTPSettings{Length: 4, TTL: time.Hour, MaxAttempts: 50}
	cfg.Email.SMTP.Enabled = false
	cfg.Auth.OAuth.Providers.Google = app.ProviderSettings{Enabled: true}

	result := NewAuditService(cfg).Run()
	require.True(t, result.Failed())

	require.Equal(t, StatusFail, findCheck(t, result, "session_secret_strength").Status)
	require.Equal(t, StatusWarn, findCheck(t, result, "session_ttl").Status)
	require.Equal(t, StatusWarn, findCheck(t, result, "session_cookie_secure").Status)
	require.Equal(t, StatusWarn, findCheck(t, result, "otp_delivery").Status)
	require.Equal(t, StatusFail, findCheck(t, result, "oauth_google").Status)
	require.Equal(t, StatusPass, findCheck(t, result, "oauth_github").Status)

	otp := findCheck(t, result, "otp_policy")
	require.Equal(t, StatusWarn, otp.Status)
	require.Contains(t, otp.Message, "not rate limited")
}

func TestAuditServiceLocalDeployment(t *testing.T) {
	cfg := strongConfig()
	cfg.Server.PublicURL = "http://localhost:8000"
	cfg.Auth.Session.CookieSecure = false

	result := NewAuditService(cfg).Run()
	require.Equal(t, StatusPass, findCheck(t, result, "session_cookie_secure").Status)
	require.Equal(t, StatusPass, findCheck(t, result, "oauth_github").Status)
}

func TestAuditServiceWithoutConfig(t *testing.T) {
	result := NewAuditService(nil).Run()
	require.True(t, result.Failed())
	require.Len(t, result.Checks, 1)
}
