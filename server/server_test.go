package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/shelfward/shelfward-server/auth"
	"github.com/shelfward/shelfward-server/cache"
	"github.com/shelfward/shelfward-server/cache/memcache"
	"github.com/shelfward/shelfward-server/internal/config"
	"github.com/shelfward/shelfward-server/principals"
	"github.com/shelfward/shelfward-server/principals/repofake"
	"github.com/shelfward/shelfward-server/registry"
	"github.com/shelfward/shelfward-server/revocation"
	"github.com/shelfward/shelfward-server/server"
	"github.com/shelfward/shelfward-server/sessioncookie"
	"github.com/stretchr/testify/require"

	"github.com/rs/zerolog"
)

type captureMailer struct {
	mu       sync.Mutex
	otpCodes []string
}

func (m *captureMailer) SendOTP(_ context.Context, _, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.otpCodes = append(m.otpCodes, code)
	return nil
}

func (m *captureMailer) SendPassword(context.Context, string, string, string) error {
	return nil
}

type testFixture struct {
	server *server.Server
	repo   *repofake.FakePrincipalRepo
	conns  *registry.Registry
	mail   *captureMailer
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	repo := repofake.NewFakePrincipalRepo()
	mail := &captureMailer{}

	authService, err := auth.NewService(auth.Repos{Principals: repo}, mail, auth.WithLogger(zerolog.Nop()))
	require.NoError(t, err)

	conns := registry.New()
	revoker, err := revocation.NewCoordinator(repo, conns, zerolog.Nop())
	require.NoError(t, err)

	srv, err := server.New(config.New(), auth.Repos{Principals: repo}, authService, conns, revoker, cache.New(memcache.New()))
	require.NoError(t, err)

	return &testFixture{server: srv, repo: repo, conns: conns, mail: mail}
}

func (f *testFixture) seedPrincipal(t *testing.T, email, password string, role principals.RoleType, mfa bool) string {
	t.Helper()
	hash, err := principals.HashPassword(password)
	require.NoError(t, err)

	p := &principals.Principal{Email: email, PasswordHash: hash, Role: role, MFAEnabled: mfa}
	require.NoError(t, f.repo.Upsert(context.Background(), p))
	return p.ID
}

// do fires a request at the server and decodes the JSON body, if any.
func (f *testFixture) do(t *testing.T, method, path string, body any, cookie *http.Cookie, bearer string) (int, map[string]any) {
	t.Helper()

	var reqBody bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&reqBody).Encode(body))
	}

	req := httptest.NewRequest(method, path, &reqBody)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec.Code, decoded
}

// login runs the credential step and returns the session cookie plus the API
// key (empty while OTP is pending).
func (f *testFixture) login(t *testing.T, email, password string) (*http.Cookie, string) {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, server.RouteAuthLogin, bytes.NewBufferString(
		fmt.Sprintf(`{"email":%q,"password":%q}`, email, password)))
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		APIKey     string `json:"api_key"`
		OTPPending bool   `json:"otp_pending"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessioncookie.CookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie, "login response must carry the session cookie")
	return cookie, resp.APIKey
}

func TestLoginIssuesCookieAndKey(t *testing.T) {
	f := setupTestFixture(t)
	f.seedPrincipal(t, "reader@example.com", "Passw0rd", principals.RoleClient, false)

	cookie, apiKey := f.login(t, "reader@example.com", "Passw0rd")
	require.NotEmpty(t, cookie.Value)
	require.NotEmpty(t, apiKey)

	status, body := f.do(t, http.MethodGet, server.RouteAuthMe, nil, cookie, apiKey)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "reader@example.com", body["email"])
}

func TestLoginUnknownEmailLooksLikeBadCredentials(t *testing.T) {
	f := setupTestFixture(t)

	status, body := f.do(t, http.MethodPost, server.RouteAuthLogin,
		map[string]string{"email": "nobody@example.com", "password": "Passw0rd"}, nil, "")
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "credential_mismatch", body["error"])
}

func TestSecondConcurrentLoginConflicts(t *testing.T) {
	f := setupTestFixture(t)
	f.seedPrincipal(t, "reader@example.com", "Passw0rd", principals.RoleClient, false)
	f.login(t, "reader@example.com", "Passw0rd")

	status, body := f.do(t, http.MethodPost, server.RouteAuthLogin,
		map[string]string{"email": "reader@example.com", "password": "Passw0rd"}, nil, "")
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, "already_logged_in", body["error"])
}

func TestGateRejectsMissingCookie(t *testing.T) {
	f := setupTestFixture(t)

	status, body := f.do(t, http.MethodGet, server.RouteAuthMe, nil, nil, "")
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "not_logged_in", body["error"])
}

func TestGateRejectsForgedCookie(t *testing.T) {
	f := setupTestFixture(t)

	forged, err := sessioncookie.Encode([]byte("attacker-secret"), sessioncookie.Claims{
		SessionID:   "sess-1",
		PrincipalID: "p-1",
		Role:        principals.RoleAdmin,
	})
	require.NoError(t, err)

	status, body := f.do(t, http.MethodGet, server.RouteAuthMe, nil,
		&http.Cookie{Name: sessioncookie.CookieName, Value: forged}, "")
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "not_logged_in", body["error"])
}

func TestGateRejectsStaleSession(t *testing.T) {
	f := setupTestFixture(t)
	id := f.seedPrincipal(t, "reader@example.com", "Passw0rd", principals.RoleClient, false)
	cookie, apiKey := f.login(t, "reader@example.com", "Passw0rd")

	// Server-side revocation: the cookie still verifies but no longer
	// matches the persisted session ID.
	require.NoError(t, f.repo.ClearSession(context.Background(), id))

	status, body := f.do(t, http.MethodGet, server.RouteAuthMe, nil, cookie, apiKey)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "session_expired", body["error"])
}

func TestGateRejectsWrongBearerKey(t *testing.T) {
	f := setupTestFixture(t)
	f.seedPrincipal(t, "reader@example.com", "Passw0rd", principals.RoleClient, false)
	cookie, _ := f.login(t, "reader@example.com", "Passw0rd")

	status, body := f.do(t, http.MethodGet, server.RouteAuthMe, nil, cookie, "wrong-key")
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "unauthorized", body["error"])
}

func TestOTPFlowEndToEnd(t *testing.T) {
	f := setupTestFixture(t)
	f.seedPrincipal(t, "careful@example.com", "Passw0rd", principals.RoleClient, true)

	cookie, apiKey := f.login(t, "careful@example.com", "Passw0rd")
	require.Empty(t, apiKey, "no bearer key before the OTP step")

	// Cookie alone is not a completed login, and the gate says why.
	status, body := f.do(t, http.MethodGet, server.RouteAuthMe, nil, cookie, "")
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "otp_pending", body["error"])

	status, _ = f.do(t, http.MethodPost, server.RouteAuthOTPRequest, nil, cookie, "")
	require.Equal(t, http.StatusOK, status)
	require.Len(t, f.mail.otpCodes, 1)

	// A wrong code is rejected and the session survives for a retry.
	status, body = f.do(t, http.MethodPost, server.RouteAuthOTPVerify,
		map[string]string{"code": "000000"}, cookie, "")
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "credential_mismatch", body["error"])

	status, body = f.do(t, http.MethodPost, server.RouteAuthOTPVerify,
		map[string]string{"code": f.mail.otpCodes[0]}, cookie, "")
	require.Equal(t, http.StatusOK, status)
	key, _ := body["api_key"].(string)
	require.NotEmpty(t, key)

	status, _ = f.do(t, http.MethodGet, server.RouteAuthMe, nil, cookie, key)
	require.Equal(t, http.StatusOK, status)
}

func TestLogoutInvalidatesCookieAndKey(t *testing.T) {
	f := setupTestFixture(t)
	f.seedPrincipal(t, "reader@example.com", "Passw0rd", principals.RoleClient, false)
	cookie, apiKey := f.login(t, "reader@example.com", "Passw0rd")

	status, _ := f.do(t, http.MethodPost, server.RouteAuthLogout, nil, cookie, "")
	require.Equal(t, http.StatusOK, status)

	status, body := f.do(t, http.MethodGet, server.RouteAuthMe, nil, cookie, apiKey)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "session_expired", body["error"])
}

func TestLoginRateLimited(t *testing.T) {
	f := setupTestFixture(t)

	var last int
	for i := 0; i < 6; i++ {
		last, _ = f.do(t, http.MethodPost, server.RouteAuthLogin,
			map[string]string{"email": "guess@example.com", "password": "WrongPw1"}, nil, "")
	}
	require.Equal(t, http.StatusTooManyRequests, last)

	// A different identifier is not affected.
	status, _ := f.do(t, http.MethodPost, server.RouteAuthLogin,
		map[string]string{"email": "other@example.com", "password": "WrongPw1"}, nil, "")
	require.Equal(t, http.StatusUnauthorized, status)
}

func TestSignupThenLogin(t *testing.T) {
	f := setupTestFixture(t)

	status, body := f.do(t, http.MethodPost, server.RouteAuthSignup,
		map[string]any{"email": "new@example.com", "password": "Passw0rd"}, nil, "")
	require.Equal(t, http.StatusCreated, status)
	require.Equal(t, "client", body["role"], "public signup may not self-assign admin roles")

	cookie, apiKey := f.login(t, "new@example.com", "Passw0rd")
	require.NotEmpty(t, cookie.Value)
	require.NotEmpty(t, apiKey)
}

func TestSignupRejectsWeakPassword(t *testing.T) {
	f := setupTestFixture(t)

	status, body := f.do(t, http.MethodPost, server.RouteAuthSignup,
		map[string]any{"email": "new@example.com", "password": "short"}, nil, "")
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "weak_password", body["error"])
}

func TestAdminBlockForcesLogout(t *testing.T) {
	f := setupTestFixture(t)
	f.seedPrincipal(t, "admin@example.com", "AdminPw1", principals.RoleAdmin, false)
	clientID := f.seedPrincipal(t, "reader@example.com", "Passw0rd", principals.RoleClient, false)

	adminCookie, adminKey := f.login(t, "admin@example.com", "AdminPw1")
	clientCookie, clientKey := f.login(t, "reader@example.com", "Passw0rd")

	status, body := f.do(t, http.MethodPost, "/admin/principals/"+clientID+"/block", nil, adminCookie, adminKey)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, true, body["revoked"])

	// The blocked reader's next request hits the gate, push or no push.
	status, body = f.do(t, http.MethodGet, server.RouteAuthMe, nil, clientCookie, clientKey)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "session_expired", body["error"])

	p, err := f.repo.GetByID(context.Background(), clientID)
	require.NoError(t, err)
	require.True(t, p.Blocked)
	require.Nil(t, p.SessionID)

	// And a blocked account cannot log back in.
	status, body = f.do(t, http.MethodPost, server.RouteAuthLogin,
		map[string]string{"email": "reader@example.com", "password": "Passw0rd"}, nil, "")
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "credential_mismatch", body["error"])
}

func TestAdminRoutesRejectNonAdmins(t *testing.T) {
	f := setupTestFixture(t)
	f.seedPrincipal(t, "reader@example.com", "Passw0rd", principals.RoleClient, false)
	targetID := f.seedPrincipal(t, "victim@example.com", "Passw0rd", principals.RoleClient, false)

	cookie, apiKey := f.login(t, "reader@example.com", "Passw0rd")

	status, body := f.do(t, http.MethodPost, "/admin/principals/"+targetID+"/block", nil, cookie, apiKey)
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, "forbidden", body["error"])
}

func TestAdminDeleteRevokesThenRemoves(t *testing.T) {
	f := setupTestFixture(t)
	f.seedPrincipal(t, "admin@example.com", "AdminPw1", principals.RoleAdmin, false)
	clientID := f.seedPrincipal(t, "reader@example.com", "Passw0rd", principals.RoleClient, false)
	f.login(t, "reader@example.com", "Passw0rd")

	adminCookie, adminKey := f.login(t, "admin@example.com", "AdminPw1")

	status, _ := f.do(t, http.MethodDelete, "/admin/principals/"+clientID, nil, adminCookie, adminKey)
	require.Equal(t, http.StatusOK, status)

	_, err := f.repo.GetByID(context.Background(), clientID)
	require.ErrorIs(t, err, principals.ErrNotFound)
}

func TestClientDetailAndPartialUpdate(t *testing.T) {
	f := setupTestFixture(t)
	clientID := f.seedPrincipal(t, "reader@example.com", "Passw0rd", principals.RoleClient, false)
	cookie, apiKey := f.login(t, "reader@example.com", "Passw0rd")

	status, body := f.do(t, http.MethodGet, "/clients/"+clientID, nil, cookie, apiKey)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "reader@example.com", body["email"])

	status, _ = f.do(t, http.MethodPatch, "/clients/"+clientID,
		map[string]string{"email": "renamed@example.com"}, cookie, apiKey)
	require.Equal(t, http.StatusOK, status)

	// The follow-up read must reflect the update, never a stale entry.
	status, body = f.do(t, http.MethodGet, "/clients/"+clientID, nil, cookie, apiKey)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "renamed@example.com", body["email"])
}

func TestClientDetailUnknownIDIs404(t *testing.T) {
	f := setupTestFixture(t)
	f.seedPrincipal(t, "reader@example.com", "Passw0rd", principals.RoleClient, false)
	cookie, apiKey := f.login(t, "reader@example.com", "Passw0rd")

	status, body := f.do(t, http.MethodGet, "/clients/no-such-id", nil, cookie, apiKey)
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, "not_found", body["error"])
}
