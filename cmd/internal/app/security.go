package app

import (
	"errors"
	"fmt"

	"kitchenhero/cmd/internal/auth/session"
	"kitchenhero/cmd/security/token"
)

// ValidateSecurityConfig enforces the key policy at startup.
// A weak or reused key stops the process; there is no fallback mode.
func ValidateSecurityConfig(cfg session.Config) error {
	keys := []struct {
		env string
		val string
	}{
		{env: "KH_AUTH_SIGNING_KEY", val: cfg.SigningKey},
		{env: "KH_AUTH_REFRESH_HMAC_KEY", val: cfg.RefreshHMACKey},
	}
	for _, k := range keys {
		if _, err := token.CheckKey(k.val, token.MinKeyBytes); err != nil {
			switch {
			case errors.Is(err, token.ErrHMACKeyMissing):
				return fmt.Errorf("security policy: %s is missing", k.env)
			case errors.Is(err, token.ErrHMACKeyTooShort):
				return fmt.Errorf("security policy: %s is too short (min %d bytes)", k.env, token.MinKeyBytes)
			default:
				return err
			}
		}
	}
	if cfg.SigningKey == cfg.RefreshHMACKey {
		return errors.New("security policy: KH_AUTH_SIGNING_KEY and KH_AUTH_REFRESH_HMAC_KEY must differ")
	}
	return nil
}
