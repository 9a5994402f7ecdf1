package app

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

const sessionSecretBytes = 48

// ApplyRuntimeDefaults ensures critical secrets are populated even when no configuration file is supplied.
// It returns a map describing which keys were generated so callers can log the event without exposing values.
// A generated session secret invalidates every session and pending OTP on restart.
func ApplyRuntimeDefaults(cfg *Config) (map[string]bool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	generated := make(map[string]bool)

	if strings.TrimSpace(cfg.Auth.Session.Secret) == "" {
		secret, err := generateHexKey(sessionSecretBytes)
		if err != nil {
			return nil, fmt.Errorf("generate session secret: %w", err)
		}
		cfg.Auth.Session.Secret = secret
		generated["auth.session.secret"] = true
	}

	return generated, nil
}

func generateHexKey(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("length must be positive")
	}
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
