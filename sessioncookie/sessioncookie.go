// Package sessioncookie encodes the client-held half of the session record: a
// signed cookie carrying the session ID, principal ID and role. The cookie
// proves "this browser started a login"; the bearer API key, carried
// separately, proves the login completed.
package sessioncookie

import (
	"errors"
	"fmt"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/shelfward/shelfward-server/principals"
)

// CookieName is the name of the signed session cookie.
const CookieName = "shelfward_session"

// ErrInvalid is returned for any cookie that fails signature or shape checks.
// The gate treats every flavour of invalid the same way, so no detail leaks.
var ErrInvalid = errors.New("invalid session cookie")

// Claims is the payload carried by the cookie. Values are opaque to the
// server beyond equality comparison against the persisted principal.
type Claims struct {
	SessionID   string
	PrincipalID string
	Role        principals.RoleType
}

// Encode signs the claims into a compact cookie value.
func Encode(secret []byte, c Claims) (string, error) {
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{
		"sid":  c.SessionID,
		"sub":  c.PrincipalID,
		"role": string(c.Role),
	})
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("signing session cookie: %w", err)
	}
	return signed, nil
}

// Decode verifies the signature and extracts the claims. Only HMAC signing is
// accepted; anything else, including alg "none", is rejected.
func Decode(secret []byte, raw string) (Claims, error) {
	token, err := jwtlib.Parse(raw, func(t *jwtlib.Token) (any, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return Claims{}, ErrInvalid
	}

	mapClaims, ok := token.Claims.(jwtlib.MapClaims)
	if !ok {
		return Claims{}, ErrInvalid
	}

	sid, _ := mapClaims["sid"].(string)
	sub, _ := mapClaims["sub"].(string)
	role, _ := mapClaims["role"].(string)
	if sid == "" || sub == "" {
		return Claims{}, ErrInvalid
	}

	return Claims{
		SessionID:   sid,
		PrincipalID: sub,
		Role:        principals.RoleType(role),
	}, nil
}
