// Package storetest holds the behavioral suite every store.Store
// implementation must pass.
package storetest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kiranshivaraju/appauth/internal/store"
	"github.com/kiranshivaraju/appauth/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises s. Each subtest gets a fresh store from newStore.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"UserByNameCaseInsensitive", testUserByName},
		{"UserDuplicateName", testUserDuplicate},
		{"UserPassword", testUserPassword},
		{"ListUsers", testListUsers},
		{"APIKeysByIdentPrefix", testAPIKeysByIdent},
		{"APIKeysByIdentLikeMetacharacters", testAPIKeysLikeEscape},
		{"SessionLifecycle", testSessionLifecycle},
		{"SessionPromoteOnce", testSessionPromoteOnce},
		{"SessionEndByNextCookie", testSessionEndByNext},
		{"SessionCookieReuseAfterDone", testSessionCookieReuse},
		{"PermissionUnion", testPermissionUnion},
		{"PermissionRevoke", testPermissionRevoke},
		{"TxCommit", testTxCommit},
		{"TxRollback", testTxRollback},
		{"TxNested", testTxNested},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, newStore(t))
		})
	}
}

func ptr(s string) *string { return &s }

func createUser(t *testing.T, s store.Store, name string, password *string) *models.User {
	t.Helper()
	u := &models.User{Name: name, Password: password}
	require.NoError(t, s.CreateUser(context.Background(), u))
	require.NotZero(t, u.ID)
	return u
}

func testUserByName(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := createUser(t, s, "Alice", ptr("hash"))

	for _, name := range []string{"Alice", "alice", "ALICE"} {
		got, err := s.GetUserByName(ctx, name)
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)
		assert.Equal(t, "Alice", got.Name)
		require.NotNil(t, got.Password)
		assert.Equal(t, "hash", *got.Password)
	}

	for _, name := range []string{"Alic", "alice ", "%", "Al_ce"} {
		_, err := s.GetUserByName(ctx, name)
		assert.ErrorIs(t, err, store.ErrNotFound, "name %q", name)
	}

	got, err := s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.Name)

	_, err = s.GetUser(ctx, u.ID+1000)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testUserDuplicate(t *testing.T, s store.Store) {
	createUser(t, s, "bob", nil)

	err := s.CreateUser(context.Background(), &models.User{Name: "BOB"})
	assert.ErrorIs(t, err, store.ErrDuplicateKey)
}

func testUserPassword(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := createUser(t, s, "carol", nil)

	got, err := s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Password)

	require.NoError(t, s.SetUserPassword(ctx, u.ID, ptr("h2")))
	got, err = s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Password)
	assert.Equal(t, "h2", *got.Password)

	require.NoError(t, s.SetUserPassword(ctx, u.ID, nil))
	got, err = s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Password)

	assert.ErrorIs(t, s.SetUserPassword(ctx, u.ID+1000, nil), store.ErrNotFound)
}

func testListUsers(t *testing.T, s store.Store) {
	ctx := context.Background()

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)

	b := createUser(t, s, "bob", ptr("hb"))
	a := createUser(t, s, "Alice", nil)

	users, err = s.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, b.ID, users[0].ID)
	assert.Equal(t, "bob", users[0].Name)
	require.NotNil(t, users[0].Password)
	assert.Equal(t, "hb", *users[0].Password)
	assert.Equal(t, a.ID, users[1].ID)
	assert.Nil(t, users[1].Password)
}

func testAPIKeysByIdent(t *testing.T, s store.Store) {
	ctx := context.Background()
	u1 := createUser(t, s, "svc1", nil)
	u2 := createUser(t, s, "svc2", nil)

	k1 := &models.APIKey{UserID: u1.ID, Key: "abc-hash1"}
	k2 := &models.APIKey{UserID: u2.ID, Key: "abc-hash2"}
	k3 := &models.APIKey{UserID: u1.ID, Key: "abcd-hash3"}
	for _, k := range []*models.APIKey{k1, k2, k3} {
		require.NoError(t, s.CreateAPIKey(ctx, k))
	}

	keys, err := s.APIKeysByIdent(ctx, "abc")
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Equal(t, k1.ID, keys[0].ID)
	assert.Equal(t, k2.ID, keys[1].ID)
	assert.Equal(t, u2.ID, keys[1].UserID)

	keys, err = s.APIKeysByIdent(ctx, "ab")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func testAPIKeysLikeEscape(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := createUser(t, s, "svc", nil)
	require.NoError(t, s.CreateAPIKey(ctx, &models.APIKey{UserID: u.ID, Key: "a_c-hash"}))
	require.NoError(t, s.CreateAPIKey(ctx, &models.APIKey{UserID: u.ID, Key: "abc-hash"}))

	for _, ident := range []string{"%", "a%", "_bc", "a_"} {
		keys, err := s.APIKeysByIdent(ctx, ident)
		require.NoError(t, err)
		assert.Empty(t, keys, "ident %q", ident)
	}

	keys, err := s.APIKeysByIdent(ctx, "a_c")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.True(t, strings.HasPrefix(keys[0].Key, "a_c-"))
}

func testSessionLifecycle(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := createUser(t, s, "dave", nil)

	sess := &models.Session{UserID: u.ID, Cookie: "c1"}
	require.NoError(t, s.CreateSession(ctx, sess))
	assert.NotZero(t, sess.ID)
	assert.False(t, sess.CreatedAt.IsZero())

	got, err := s.FindSession(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionActive, got.State())

	n, err := s.AssignNextCookies(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err = s.FindSession(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, got.NextCookie)
	assert.Equal(t, models.SessionPendingRotation, got.State())
	next := *got.NextCookie

	byNext, err := s.FindSession(ctx, next)
	require.NoError(t, err)
	assert.Equal(t, got.ID, byNext.ID)

	n, err = s.AssignNextCookies(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "pending sessions keep their next cookie")

	ended, err := s.EndSession(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), ended)

	_, err = s.FindSession(ctx, "c1")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.FindSession(ctx, next)
	assert.ErrorIs(t, err, store.ErrNotFound)

	ended, err = s.EndSession(ctx, "c1")
	require.NoError(t, err)
	assert.Zero(t, ended)

	live, err := s.ListSessions(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, live)
}

func testSessionPromoteOnce(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := createUser(t, s, "erin", nil)
	sess := &models.Session{UserID: u.ID, Cookie: "old"}
	require.NoError(t, s.CreateSession(ctx, sess))
	_, err := s.AssignNextCookies(ctx)
	require.NoError(t, err)
	got, err := s.FindSession(ctx, "old")
	require.NoError(t, err)
	next := *got.NextCookie

	ok, err := s.PromoteNextCookie(ctx, sess.ID, "wrong")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.PromoteNextCookie(ctx, sess.ID, next)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.PromoteNextCookie(ctx, sess.ID, next)
	require.NoError(t, err)
	assert.False(t, ok, "promotion happens exactly once")

	_, err = s.FindSession(ctx, "old")
	assert.ErrorIs(t, err, store.ErrNotFound)

	got, err = s.FindSession(ctx, next)
	require.NoError(t, err)
	assert.Equal(t, next, got.Cookie)
	assert.Nil(t, got.NextCookie)
}

func testSessionEndByNext(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := createUser(t, s, "frank", nil)
	require.NoError(t, s.CreateSession(ctx, &models.Session{UserID: u.ID, Cookie: "c"}))
	_, err := s.AssignNextCookies(ctx)
	require.NoError(t, err)
	got, err := s.FindSession(ctx, "c")
	require.NoError(t, err)

	n, err := s.EndSession(ctx, *got.NextCookie)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.FindSession(ctx, "c")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testSessionCookieReuse(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := createUser(t, s, "gina", nil)
	require.NoError(t, s.CreateSession(ctx, &models.Session{UserID: u.ID, Cookie: "dup"}))

	err := s.CreateSession(ctx, &models.Session{UserID: u.ID, Cookie: "dup"})
	assert.ErrorIs(t, err, store.ErrDuplicateKey)

	_, err = s.EndSession(ctx, "dup")
	require.NoError(t, err)
	require.NoError(t, s.CreateSession(ctx, &models.Session{UserID: u.ID, Cookie: "dup"}))
}

func testPermissionUnion(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := createUser(t, s, "hank", nil)
	other := createUser(t, s, "ivy", nil)

	require.NoError(t, s.GrantUserPermission(ctx, u.ID, "View"))
	require.NoError(t, s.GrantUserPermission(ctx, u.ID, "View"))
	require.NoError(t, s.GrantUserPermission(ctx, other.ID, "Delete"))
	require.NoError(t, s.GrantGroupPermission(ctx, "Manager", "Edit"))
	require.NoError(t, s.GrantGroupPermission(ctx, "Manager", "View"))
	require.NoError(t, s.GrantGroupPermission(ctx, "Admin", "Admin"))

	names, err := s.PermissionNames(ctx, u.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"View"}, names)

	names, err = s.PermissionNames(ctx, u.ID, []string{"Manager"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Edit", "View"}, names)

	names, err = s.PermissionNames(ctx, u.ID, []string{"manager"})
	require.NoError(t, err)
	assert.Equal(t, []string{"View"}, names, "roles match exactly")

	names, err = s.PermissionNames(ctx, other.ID, []string{"Admin", "Nope"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Admin", "Delete"}, names)

	names, err = s.PermissionNames(ctx, u.ID+1000, []string{})
	require.NoError(t, err)
	assert.NotNil(t, names)
	assert.Empty(t, names)
}

func testPermissionRevoke(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := createUser(t, s, "jay", nil)
	require.NoError(t, s.GrantUserPermission(ctx, u.ID, "View"))

	require.NoError(t, s.RevokeUserPermission(ctx, u.ID, "View"))
	assert.ErrorIs(t, s.RevokeUserPermission(ctx, u.ID, "View"), store.ErrNotFound)

	names, err := s.PermissionNames(ctx, u.ID, nil)
	require.NoError(t, err)
	assert.Empty(t, names)
}

func testTxCommit(t *testing.T, s store.Store) {
	ctx := context.Background()
	err := s.WithTx(ctx, func(ctx context.Context) error {
		return s.CreateUser(ctx, &models.User{Name: "kim"})
	})
	require.NoError(t, err)

	_, err = s.GetUserByName(ctx, "kim")
	assert.NoError(t, err)
}

func testTxRollback(t *testing.T, s store.Store) {
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(ctx context.Context) error {
		u := &models.User{Name: "lee"}
		if err := s.CreateUser(ctx, u); err != nil {
			return err
		}
		if err := s.CreateSession(ctx, &models.Session{UserID: u.ID, Cookie: "x"}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.GetUserByName(ctx, "lee")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.FindSession(ctx, "x")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testTxNested(t *testing.T, s store.Store) {
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(ctx context.Context) error {
		if err := s.WithTx(ctx, func(ctx context.Context) error {
			return s.CreateUser(ctx, &models.User{Name: "max"})
		}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.GetUserByName(ctx, "max")
	assert.ErrorIs(t, err, store.ErrNotFound, "inner work joins the outer transaction")
}
