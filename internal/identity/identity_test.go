package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Joseda-hg/plantcare/internal/access"
	"github.com/Joseda-hg/plantcare/internal/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *db.Store {
	t.Helper()
	conn, err := db.Open(db.Options{DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return db.NewStore(conn, db.DriverSQLite)
}

func TestSeedCreatesRolesAndAdmin(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, Seed(ctx, store, "admin@example.com", "s3cret"))
	require.NoError(t, Seed(ctx, store, "admin@example.com", "ignored"))

	user, err := store.GetUserByEmail(ctx, "admin@example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{access.RoleAdmin, access.RoleUser}, user.Roles)

	svc := New(store, "secret", false, nil)
	_, err = svc.Authenticate(ctx, "admin@example.com", "s3cret")
	assert.NoError(t, err)
	_, err = svc.Authenticate(ctx, "admin@example.com", "ignored")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestSeedPromotesExistingUser(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	svc := New(store, "secret", false, nil)

	_, err := svc.AddUser(ctx, "gardener@example.com", "pw", false)
	require.NoError(t, err)
	require.NoError(t, Seed(ctx, store, "gardener@example.com", ""))

	user, err := store.GetUserByEmail(ctx, "gardener@example.com")
	require.NoError(t, err)
	assert.Contains(t, user.Roles, access.RoleAdmin)
}

func TestSeedWithoutPasswordFailsForNewAdmin(t *testing.T) {
	store := newTestStore(t)
	err := Seed(context.Background(), store, "admin@example.com", "")
	assert.ErrorIs(t, err, ErrPasswordRequired)
}

func TestLoginSetsSessionAndPrincipal(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	svc := New(store, "secret", false, nil)

	_, err := svc.AddUser(ctx, "user@example.com", "pw", false)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/account/login", nil)
	principal, err := svc.Login(rec, req, "User@Example.com", "pw")
	require.NoError(t, err)
	assert.True(t, principal.Authenticated)
	assert.False(t, principal.HasRole(access.RoleAdmin))

	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)

	next := httptest.NewRequest(http.MethodGet, "/plants", nil)
	for _, c := range cookies {
		next.AddCookie(c)
	}
	resolved := svc.Principal(next)
	assert.True(t, resolved.Authenticated)
	assert.Equal(t, "user@example.com", resolved.Email)
	assert.Equal(t, []string{access.RoleUser}, resolved.Roles)

	logout := httptest.NewRecorder()
	require.NoError(t, svc.Logout(logout, next))
	cleared := httptest.NewRequest(http.MethodGet, "/plants", nil)
	for _, c := range logout.Result().Cookies() {
		cleared.AddCookie(c)
	}
	assert.False(t, svc.Principal(cleared).Authenticated)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	svc := New(store, "secret", false, nil)
	_, err := svc.AddUser(ctx, "user@example.com", "pw", false)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/account/login", nil)

	_, err = svc.Login(rec, req, "user@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(rec, req, "nobody@example.com", "pw")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Empty(t, rec.Result().Cookies())
}

func TestPrincipalIgnoresForeignCookies(t *testing.T) {
	svc := New(newTestStore(t), "secret", false, nil)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionName, Value: "forged"})
	assert.Equal(t, access.AnonymousPrincipal, svc.Principal(req))
}

func TestResetPassword(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	svc := New(store, "secret", false, nil)
	_, err := svc.AddUser(ctx, "user@example.com", "old", false)
	require.NoError(t, err)

	require.NoError(t, svc.ResetPassword(ctx, "user@example.com", "new"))
	_, err = svc.Authenticate(ctx, "user@example.com", "new")
	assert.NoError(t, err)
	assert.ErrorIs(t, svc.ResetPassword(ctx, "missing@example.com", "x"), db.ErrNotFound)
}

func TestSessionCookieSecureFlag(t *testing.T) {
	for _, secure := range []bool{false, true} {
		store := newTestStore(t)
		svc := New(store, "secret", secure, nil)
		_, err := svc.AddUser(context.Background(), "user@example.com", "pw", false)
		require.NoError(t, err)

		rec := httptest.NewRecorder()
		_, err = svc.Login(rec, httptest.NewRequest(http.MethodPost, "/account/login", nil), "user@example.com", "pw")
		require.NoError(t, err)

		cookies := rec.Result().Cookies()
		require.NotEmpty(t, cookies)
		for _, c := range cookies {
			assert.Equal(t, secure, c.Secure, c.Name)
			assert.True(t, c.HttpOnly, c.Name)
		}
	}
}
