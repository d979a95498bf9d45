package revocation_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shelfward/shelfward-server/internal/utils"
	"github.com/shelfward/shelfward-server/principals"
	"github.com/shelfward/shelfward-server/principals/repofake"
	"github.com/shelfward/shelfward-server/registry"
	"github.com/shelfward/shelfward-server/revocation"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	sent    [][]byte
	sendErr error
	closed  bool
}

func (t *fakeTransport) Send(message []byte) error {
	if t.sendErr != nil {
		return t.sendErr
	}
	t.sent = append(t.sent, message)
	return nil
}

func (t *fakeTransport) Close() error {
	t.closed = true
	return nil
}

type fixture struct {
	repo    *repofake.FakePrincipalRepo
	reg     *registry.Registry
	revoker *revocation.Coordinator
}

func setup(t *testing.T) *fixture {
	t.Helper()

	repo := repofake.NewFakePrincipalRepo()
	reg := registry.New()
	revoker, err := revocation.NewCoordinator(repo, reg, zerolog.Nop())
	require.NoError(t, err)
	return &fixture{repo: repo, reg: reg, revoker: revoker}
}

func (f *fixture) loggedInClient(t *testing.T, id string) *principals.Principal {
	t.Helper()

	p := &principals.Principal{
		ID:        id,
		Email:     id + "@example.com",
		Role:      principals.RoleClient,
		SessionID: utils.Ptr("session-" + id),
		APIKey:    utils.Ptr("key-" + id),
	}
	require.NoError(t, f.repo.Upsert(context.Background(), p))
	return p
}

func TestRevokePushesExactlyOneEvent(t *testing.T) {
	f := setup(t)
	f.loggedInClient(t, "C1")

	tr := &fakeTransport{}
	f.reg.Register(registry.KindClient, "C1", tr)

	require.NoError(t, f.revoker.Revoke(context.Background(), registry.KindClient, "C1", "blocked"))

	require.Len(t, tr.sent, 1)
	var event revocation.Event
	require.NoError(t, json.Unmarshal(tr.sent[0], &event))
	require.Equal(t, registry.KindClient, event.Name)
	require.Equal(t, "C1", event.ID)
	require.Equal(t, "blocked", event.Reason)

	stored, err := f.repo.GetByID(context.Background(), "C1")
	require.NoError(t, err)
	require.Nil(t, stored.SessionID)
	require.Nil(t, stored.APIKey)
}

func TestRevokeWithoutConnectionStillClearsSession(t *testing.T) {
	f := setup(t)
	f.loggedInClient(t, "C1")

	require.NoError(t, f.revoker.Revoke(context.Background(), registry.KindClient, "C1", "blocked"))

	stored, err := f.repo.GetByID(context.Background(), "C1")
	require.NoError(t, err)
	require.Nil(t, stored.SessionID)
	require.Nil(t, stored.APIKey)
}

func TestRevokeSurfacesPersistenceFailureAndSkipsPush(t *testing.T) {
	f := setup(t)

	tr := &fakeTransport{}
	f.reg.Register(registry.KindClient, "missing", tr)

	err := f.revoker.Revoke(context.Background(), registry.KindClient, "missing", "blocked")
	require.ErrorIs(t, err, principals.ErrNotFound)

	// The push step is only attempted after persistence succeeds.
	require.Empty(t, tr.sent)
}

func TestRevokeSwallowsPushFailureAndPrunesHandle(t *testing.T) {
	f := setup(t)
	f.loggedInClient(t, "C1")

	tr := &fakeTransport{sendErr: fmt.Errorf("broken pipe")}
	f.reg.Register(registry.KindClient, "C1", tr)

	require.NoError(t, f.revoker.Revoke(context.Background(), registry.KindClient, "C1", "deleted"))

	require.True(t, tr.closed)
	_, ok := f.reg.Lookup(registry.KindClient, "C1")
	require.False(t, ok)

	stored, err := f.repo.GetByID(context.Background(), "C1")
	require.NoError(t, err)
	require.Nil(t, stored.SessionID)
}

func TestKindFor(t *testing.T) {
	require.Equal(t, registry.KindClient, revocation.KindFor(principals.RoleClient))
	require.Equal(t, registry.KindUser, revocation.KindFor(principals.RoleUser))
	require.Equal(t, registry.KindUser, revocation.KindFor(principals.RoleAdmin))
	require.Equal(t, registry.KindUser, revocation.KindFor(principals.RoleSuperAdmin))
}
