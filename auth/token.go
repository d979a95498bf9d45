package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math/big"
)

const tokenGenerationLength = 32

// NewSessionToken returns an unpredictable opaque token. Session IDs double as
// revocation handles, so the generator must be CSPRNG-backed and never reuse a
// prior value.
func NewSessionToken() (string, error) {
	bytes := make([]byte, tokenGenerationLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}

// NewOTPCode returns a fresh 6-digit numeric code, zero padded.
func NewOTPCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
