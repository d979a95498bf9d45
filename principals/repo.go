package principals

import (
	"context"
	"errors"
)

// ErrNotFound is returned by all Repo implementations when no principal
// matches the given id or email.
var ErrNotFound = errors.New("principal not found")

// Repo is the narrow contract over the credential store. Implementations must
// uphold the session invariant: ClearSession removes SessionID, APIKey and
// OTPCode together, never individually.
type Repo interface {
	// Upsert inserts or replaces the record, assigning an ID when empty.
	Upsert(ctx context.Context, principal *Principal) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*Principal, error)
	GetByEmail(ctx context.Context, email string) (*Principal, error)
	List(ctx context.Context, offset, limit int) ([]*Principal, error)

	// SetSession records a freshly allocated session ID (login started).
	SetSession(ctx context.Context, id, sessionID string) error
	// SetAPIKey records the bearer key and marks the login as completed.
	SetAPIKey(ctx context.Context, id, apiKey string) error
	// SetOTP stores the pending 6-digit code for the MFA window.
	SetOTP(ctx context.Context, id, code string) error
	// ClearOTP removes a pending code without touching the session.
	ClearOTP(ctx context.Context, id string) error
	// ClearSession logs the principal out: session ID, API key and any
	// pending OTP code are removed in one update.
	ClearSession(ctx context.Context, id string) error

	SetBlocked(ctx context.Context, id string, blocked bool) error
}
