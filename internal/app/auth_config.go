package app

import (
	"strings"

	"github.com/charlesng35/authcore/internal/auth"
	"github.com/charlesng35/authcore/internal/auth/providers"
)

const callbackPathFormat = "/api/auth/oauth/%s/callback"

// SessionIssuerConfig converts AuthConfig into SessionIssuer parameters. The revocation store is
// attached by the caller.
func (c AuthConfig) SessionIssuerConfig() auth.SessionConfig {
	ttl := c.Session.TTL
	if ttl <= 0 {
		ttl = auth.DefaultSessionTTL
	}

	return auth.SessionConfig{
		Secret: c.Session.Secret,
		Issuer: c.Session.Issuer,
		TTL:    ttl,
	}
}

// OTPStoreConfig converts AuthConfig into OTP store parameters keyed by digestKey.
func (c AuthConfig) OTPStoreConfig(digestKey []byte) auth.OTPConfig {
	length := c.OTP.Length
	if length <= 0 {
		length = auth.DefaultOTPLength
	}
	ttl := c.OTP.TTL
	if ttl <= 0 {
		ttl = auth.DefaultOTPTTL
	}
	attempts := c.OTP.MaxAttempts
	if attempts <= 0 {
		attempts = auth.DefaultOTPMaxAttempts
	}

	return auth.OTPConfig{
		Length:      length,
		TTL:         ttl,
		MaxAttempts: attempts,
		DigestKey:   digestKey,
	}
}

// DispatcherConfig converts AuthConfig into OTP delivery parameters.
func (c AuthConfig) DispatcherConfig() auth.DispatcherConfig {
	return auth.DispatcherConfig{
		Async:   c.OTP.AsyncDelivery,
		Timeout: c.OTP.DeliveryTimeout,
		Rate:    c.OTP.DeliveryRate,
		Burst:   c.OTP.DeliveryBurst,
	}
}

// CoreOptions converts AuthConfig into Core tuning options.
func (c AuthConfig) CoreOptions() auth.CoreOptions {
	return auth.CoreOptions{
		RequestLimit:  c.OTP.RequestLimit,
		RequestWindow: c.OTP.RequestWindow,
	}
}

// ResolverConfig converts AuthConfig into IdentityResolver parameters, rejecting unknown policies.
func (c AuthConfig) ResolverConfig() (auth.ResolverConfig, error) {
	policy, err := auth.ParseLinkPolicy(c.OAuth.LinkPolicy)
	if err != nil {
		return auth.ResolverConfig{}, err
	}
	return auth.ResolverConfig{Policy: policy}, nil
}

// ProviderConfigs lists the OAuth provider settings. A provider without an explicit redirect URL
// gets the callback route under publicURL.
func (c AuthConfig) ProviderConfigs(publicURL string) []providers.ProviderConfig {
	entries := []struct {
		kind     string
		settings ProviderSettings
	}{
		{providers.GitHub, c.OAuth.Providers.GitHub},
		{providers.GitLab, c.OAuth.Providers.GitLab},
		{providers.Google, c.OAuth.Providers.Google},
	}

	base := strings.TrimRight(strings.TrimSpace(publicURL), "/")
	configs := make([]providers.ProviderConfig, 0, len(entries))
	for _, entry := range entries {
		s := entry.settings
		redirect := strings.TrimSpace(s.RedirectURL)
		if redirect == "" && base != "" {
			redirect = base + strings.Replace(callbackPathFormat, "%s", entry.kind, 1)
		}
		configs = append(configs, providers.ProviderConfig{
			Type:         entry.kind,
			Enabled:      s.Enabled,
			ClientID:     strings.TrimSpace(s.ClientID),
			ClientSecret: s.ClientSecret,
			RedirectURL:  redirect,
			Scopes:       trimScopes(s.Scopes),
			Issuer:       strings.TrimSpace(s.Issuer),
			AuthURL:      strings.TrimSpace(s.AuthURL),
			TokenURL:     strings.TrimSpace(s.TokenURL),
			APIURL:       strings.TrimSpace(s.APIURL),
		})
	}
	return configs
}

func trimScopes(scopes []string) []string {
	out := make([]string, 0, len(scopes))
	for _, scope := range scopes {
		if scope = strings.TrimSpace(scope); scope != "" {
			out = append(out, scope)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
