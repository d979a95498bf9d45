package config

import "time"

type SecurityConfig interface {
	GetCookieSecret() []byte
	GetCookieMaxAge() time.Duration
	GetLoginRateLimit() float64
	GetLoginRateBurst() int
}

type Security struct{}

var _ SecurityConfig = Security{}

// GetCookieSecret returns the HMAC key for the signed session cookie. The
// default only exists so DEV boots without configuration.
func (Security) GetCookieSecret() []byte {
	return []byte(GetEnv("COOKIE_SECRET", "dev-only-cookie-secret"))
}

func (Security) GetCookieMaxAge() time.Duration {
	return 24 * time.Hour
}

// GetLoginRateLimit is login attempts per second, per email.
func (Security) GetLoginRateLimit() float64 {
	return 1.0
}

func (Security) GetLoginRateBurst() int {
	return 5
}
