package principals

import (
	"fmt"
	"time"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// RoleType represents a principal's role on either side of the platform
type RoleType string

const (
	// Reader side
	RoleClient RoleType = "client" // A reader account on the public side

	// Admin side
	RoleUser       RoleType = "user"        // Back-office account without admin rights
	RoleAdmin      RoleType = "admin"       // Can manage clients and catalogue data
	RoleSuperAdmin RoleType = "super_admin" // Can manage admin accounts and settings
)

// Principal is an admin user or a client/reader. The SessionID/APIKey pair is
// the authoritative statement of "currently logged in": APIKey is only ever
// non-nil while SessionID is non-nil, and clearing the session clears both
// (plus any pending OTP code).
type Principal struct {
	ID           string   `json:"id,omitempty"`    // Unique identifier for the principal
	Email        string   `json:"email,omitempty"` // Principal's email address
	Role         RoleType `json:"role,omitempty"`
	PasswordHash string   `json:"-"` // Hashed version of the password - never serialize

	Blocked    bool `json:"blocked,omitempty"`     // Blocked principals may not log in
	MFAEnabled bool `json:"mfa_enabled,omitempty"` // Whether login requires the OTP second step

	SessionID *string `json:"-"` // Current login session ID, nil when logged out
	OTPCode   *string `json:"-"` // Pending 6-digit OTP code, nil outside the MFA window
	APIKey    *string `json:"-"` // Bearer key proving a completed login

	DateJoined time.Time `json:"date_joined,omitempty"`
	LastLogin  time.Time `json:"last_login,omitempty"`
}

// LoggedIn reports whether the principal has completed a login.
func (p *Principal) LoggedIn() bool {
	return p.SessionID != nil && p.APIKey != nil
}

// OTPPending reports whether the principal is inside the MFA window: a login
// session exists but no bearer key has been issued yet.
func (p *Principal) OTPPending() bool {
	return p.MFAEnabled && p.SessionID != nil && p.APIKey == nil
}

// IsAdmin returns true for roles allowed on the administrative surface.
func (p *Principal) IsAdmin() bool {
	return p.Role == RoleAdmin || p.Role == RoleSuperAdmin
}

// ValidatePasswordStrength checks if password meets security requirements:
// - At least 8 characters long
// - Contains uppercase and lowercase letters
// - Contains at least one number
func ValidatePasswordStrength(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters long")
	}

	var (
		hasUpper  bool
		hasLower  bool
		hasNumber bool
	)

	for _, char := range password {
		if unicode.IsUpper(char) {
			hasUpper = true
		} else if unicode.IsLower(char) {
			hasLower = true
		} else if unicode.IsDigit(char) {
			hasNumber = true
		}
	}

	if !hasUpper {
		return fmt.Errorf("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return fmt.Errorf("password must contain at least one lowercase letter")
	}
	if !hasNumber {
		return fmt.Errorf("password must contain at least one number")
	}

	return nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
