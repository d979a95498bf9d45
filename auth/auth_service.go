package auth

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shelfward/shelfward-server/mailer"
	"github.com/shelfward/shelfward-server/principals"
)

// Repos holds all repository dependencies for the Service
type Repos struct {
	Principals principals.Repo // Repository for principal credential records
}

// Service drives the login state machine:
//
//	UNAUTHENTICATED -> CREDENTIALS_VERIFIED -> LOGGED_IN
//	                                        -> OTP_PENDING -> OTP_VERIFIED -> LOGGED_IN
//
// State is not held in memory; it is derived from the persisted principal
// record (SessionID set, APIKey set, OTPCode set), so any server instance can
// continue a login another one started.
type Service struct {
	repos    Repos
	mail     mailer.Mailer
	nowTime  func() time.Time       // nowTime function (injectable for testing)
	newToken func() (string, error) // session ID / API key generator
	newOTP   func() (string, error) // 6-digit code generator
	log      zerolog.Logger
}

// ServiceOption defines a function type to modify the Service instance.
type ServiceOption func(*Service)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowTime = nowFunc
	}
}

// WithTokenSource overrides the session/API key generator (primarily for testing)
func WithTokenSource(fn func() (string, error)) ServiceOption {
	return func(s *Service) {
		s.newToken = fn
	}
}

// WithOTPSource overrides the OTP code generator (primarily for testing)
func WithOTPSource(fn func() (string, error)) ServiceOption {
	return func(s *Service) {
		s.newOTP = fn
	}
}

// WithLogger sets the service logger.
func WithLogger(l zerolog.Logger) ServiceOption {
	return func(s *Service) {
		s.log = l
	}
}

// NewService initializes a new Service with required dependencies.
func NewService(repos Repos, mail mailer.Mailer, options ...ServiceOption) (*Service, error) {
	if repos.Principals == nil {
		return nil, errors.New("[NewService] Principals repo is required")
	}
	if mail == nil {
		return nil, errors.New("[NewService] mailer is required")
	}

	service := &Service{
		repos:    repos,
		mail:     mail,
		nowTime:  time.Now,
		newToken: NewSessionToken,
		newOTP:   NewOTPCode,
		log:      log.Logger,
	}

	for _, opt := range options {
		opt(service)
	}

	return service, nil
}

// LoginResult describes the outcome of a successful credential check.
type LoginResult struct {
	Principal  *principals.Principal
	SessionID  string
	APIKey     string // empty while the OTP step is still pending
	OTPPending bool
}

// VerifyCredentials is the first step of the state machine. A blocked account
// fails identically to a missing one so the login path never confirms an
// account exists. A principal with a live session may not start a second
// concurrent login.
func (s *Service) VerifyCredentials(ctx context.Context, email, password string) (*LoginResult, error) {
	p, err := s.repos.Principals.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, principals.ErrNotFound) {
			return nil, principals.ErrNotFound
		}
		return nil, errors.Wrap(err, "[Service.VerifyCredentials] GetByEmail")
	}

	if p.Blocked {
		return nil, principals.ErrNotFound
	}

	if !principals.CheckPasswordHash(password, p.PasswordHash) {
		return nil, ErrCredentialMismatch
	}

	if p.SessionID != nil {
		return nil, ErrAlreadyLoggedIn
	}

	sessionID, err := s.newToken()
	if err != nil {
		return nil, errors.Wrap(err, "[Service.VerifyCredentials] generating session id")
	}
	if err := s.repos.Principals.SetSession(ctx, p.ID, sessionID); err != nil {
		return nil, errors.Wrap(err, "[Service.VerifyCredentials] SetSession")
	}
	p.SessionID = &sessionID

	result := &LoginResult{Principal: p, SessionID: sessionID}

	// The MFA window: a session exists but no bearer key until the OTP step
	// completes via RequestOTP/VerifyOTP.
	if p.MFAEnabled {
		result.OTPPending = true
		return result, nil
	}

	apiKey, err := s.newToken()
	if err != nil {
		return nil, errors.Wrap(err, "[Service.VerifyCredentials] generating api key")
	}
	if err := s.repos.Principals.SetAPIKey(ctx, p.ID, apiKey); err != nil {
		return nil, errors.Wrap(err, "[Service.VerifyCredentials] SetAPIKey")
	}
	p.APIKey = &apiKey
	result.APIKey = apiKey
	return result, nil
}

// RequestOTP generates and persists a fresh 6-digit code and hands it to the
// mail collaborator. Valid only inside the OTP_PENDING window. Re-invocation
// regenerates the code, superseding the previous one.
func (s *Service) RequestOTP(ctx context.Context, principalID string) error {
	p, err := s.repos.Principals.GetByID(ctx, principalID)
	if err != nil {
		return errors.Wrap(err, "[Service.RequestOTP] GetByID")
	}

	if !p.MFAEnabled {
		return ErrMFADisabled
	}
	if p.APIKey != nil {
		return ErrAlreadyLoggedIn
	}
	if p.SessionID == nil {
		return ErrNotLoggedIn
	}

	code, err := s.newOTP()
	if err != nil {
		return errors.Wrap(err, "[Service.RequestOTP] generating code")
	}
	if err := s.repos.Principals.SetOTP(ctx, p.ID, code); err != nil {
		return errors.Wrap(err, "[Service.RequestOTP] SetOTP")
	}

	// Delivery is fire-and-forget: the persisted code stands even if the
	// email never leaves, the client can simply request another.
	if err := s.mail.SendOTP(ctx, p.Email, code); err != nil {
		s.log.Warn().Str("principal_id", p.ID).Err(err).Msg("otp delivery failed")
	}
	return nil
}

// VerifyOTP completes the MFA step. A mismatch leaves the session untouched so
// the client can retry; a match clears the code and issues the bearer key.
func (s *Service) VerifyOTP(ctx context.Context, principalID, code string) (*LoginResult, error) {
	p, err := s.repos.Principals.GetByID(ctx, principalID)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.VerifyOTP] GetByID")
	}

	if !p.MFAEnabled {
		return nil, ErrMFADisabled
	}
	if p.APIKey != nil {
		return nil, ErrAlreadyLoggedIn
	}
	if p.SessionID == nil {
		return nil, ErrNotLoggedIn
	}

	if p.OTPCode == nil || *p.OTPCode != code {
		return nil, ErrCredentialMismatch
	}

	if err := s.repos.Principals.ClearOTP(ctx, p.ID); err != nil {
		return nil, errors.Wrap(err, "[Service.VerifyOTP] ClearOTP")
	}
	p.OTPCode = nil

	apiKey, err := s.newToken()
	if err != nil {
		return nil, errors.Wrap(err, "[Service.VerifyOTP] generating api key")
	}
	if err := s.repos.Principals.SetAPIKey(ctx, p.ID, apiKey); err != nil {
		return nil, errors.Wrap(err, "[Service.VerifyOTP] SetAPIKey")
	}
	p.APIKey = &apiKey

	return &LoginResult{Principal: p, SessionID: *p.SessionID, APIKey: apiKey}, nil
}

// Logout clears the session record. Valid from LOGGED_IN, or from OTP_PENDING
// to abandon a half-completed login.
func (s *Service) Logout(ctx context.Context, principalID string) error {
	p, err := s.repos.Principals.GetByID(ctx, principalID)
	if err != nil {
		return errors.Wrap(err, "[Service.Logout] GetByID")
	}
	if p.SessionID == nil {
		return ErrNotLoggedIn
	}
	if err := s.repos.Principals.ClearSession(ctx, p.ID); err != nil {
		return errors.Wrap(err, "[Service.Logout] ClearSession")
	}
	return nil
}

// Register creates a new principal and mails the initial password. The record
// starts logged out; the new account goes through the normal login flow.
func (s *Service) Register(ctx context.Context, email, password string, role principals.RoleType, mfaEnabled bool) (*principals.Principal, error) {
	if err := principals.ValidatePasswordStrength(password); err != nil {
		return nil, errors.Wrap(ErrWeakPassword, err.Error())
	}

	if _, err := s.repos.Principals.GetByEmail(ctx, email); err == nil {
		return nil, ErrDuplicateEmail
	} else if !errors.Is(err, principals.ErrNotFound) {
		return nil, errors.Wrap(err, "[Service.Register] GetByEmail")
	}

	hash, err := principals.HashPassword(password)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.Register] hashing password")
	}

	p := &principals.Principal{
		Email:        email,
		Role:         role,
		PasswordHash: hash,
		MFAEnabled:   mfaEnabled,
		DateJoined:   s.nowTime(),
	}
	if err := s.repos.Principals.Upsert(ctx, p); err != nil {
		return nil, errors.Wrap(err, "[Service.Register] Upsert")
	}

	if err := s.mail.SendPassword(ctx, p.Email, "/auth/login", password); err != nil {
		s.log.Warn().Str("principal_id", p.ID).Err(err).Msg("welcome mail delivery failed")
	}
	return p, nil
}
