package server

import (
	"fmt"
	"time"

	"github.com/shelfward/shelfward-server/principals"
)

// Fixed request/response pairs, one per endpoint. The public surface never
// carries a generic dynamic payload; every shape is declared here and
// response shapes are re-validated before encoding.

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	PrincipalID string              `json:"principal_id"`
	Role        principals.RoleType `json:"role"`
	OTPPending  bool                `json:"otp_pending"`
	APIKey      string              `json:"api_key,omitempty"`
}

func (r loginResponse) ValidateShape() error {
	if r.PrincipalID == "" {
		return fmt.Errorf("principal_id is empty")
	}
	if !r.OTPPending && r.APIKey == "" {
		return fmt.Errorf("completed login carries no api key")
	}
	if r.OTPPending && r.APIKey != "" {
		return fmt.Errorf("pending login carries an api key")
	}
	return nil
}

type otpRequestResponse struct {
	Sent bool `json:"sent"`
}

func (r otpRequestResponse) ValidateShape() error {
	if !r.Sent {
		return fmt.Errorf("sent must be true on success")
	}
	return nil
}

type otpVerifyRequest struct {
	Code string `json:"code"`
}

type otpVerifyResponse struct {
	APIKey string `json:"api_key"`
}

func (r otpVerifyResponse) ValidateShape() error {
	if r.APIKey == "" {
		return fmt.Errorf("api_key is empty")
	}
	return nil
}

type logoutResponse struct {
	LoggedOut bool `json:"logged_out"`
}

func (r logoutResponse) ValidateShape() error {
	if !r.LoggedOut {
		return fmt.Errorf("logged_out must be true on success")
	}
	return nil
}

type signupRequest struct {
	Email      string              `json:"email"`
	Password   string              `json:"password"`
	Role       principals.RoleType `json:"role,omitempty"`
	MFAEnabled bool                `json:"mfa_enabled,omitempty"`
}

type principalResponse struct {
	ID         string              `json:"id"`
	Email      string              `json:"email"`
	Role       principals.RoleType `json:"role"`
	Blocked    bool                `json:"blocked"`
	MFAEnabled bool                `json:"mfa_enabled"`
	DateJoined time.Time           `json:"date_joined"`
	LastLogin  time.Time           `json:"last_login,omitempty"`
}

func (r principalResponse) ValidateShape() error {
	if r.ID == "" || r.Email == "" {
		return fmt.Errorf("id and email are required")
	}
	if r.Role == "" {
		return fmt.Errorf("role is required")
	}
	return nil
}

func toPrincipalResponse(p *principals.Principal) principalResponse {
	return principalResponse{
		ID:         p.ID,
		Email:      p.Email,
		Role:       p.Role,
		Blocked:    p.Blocked,
		MFAEnabled: p.MFAEnabled,
		DateJoined: p.DateJoined,
		LastLogin:  p.LastLogin,
	}
}

type revokeResponse struct {
	PrincipalID string `json:"principal_id"`
	Revoked     bool   `json:"revoked"`
}

func (r revokeResponse) ValidateShape() error {
	if r.PrincipalID == "" {
		return fmt.Errorf("principal_id is empty")
	}
	return nil
}

// clientDetailDocument is the cached detail projection for a reader account.
// It is what the entity detail cache stores under "client:{id}".
type clientDetailDocument struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	Blocked    bool      `json:"blocked"`
	MFAEnabled bool      `json:"mfa_enabled"`
	DateJoined time.Time `json:"date_joined"`
}

type clientUpdateRequest struct {
	Email      *string `json:"email,omitempty"`
	MFAEnabled *bool   `json:"mfa_enabled,omitempty"`
}
