package auth_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/getsentry/repro/internal/auth"
	"github.com/getsentry/repro/internal/auth/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestLazyUser_Get(t *testing.T) {
	t.Run("Returns anonymous without touching the store when there is no session", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		store := mocks.NewMockStore(ctrl)

		lazy := auth.NewLazyUser(store, "")
		authenticated, err := lazy.IsAuthenticated(context.Background())
		require.NoError(t, err)
		assert.False(t, authenticated)
		assert.True(t, lazy.Resolved())
	})

	t.Run("Loads the user once and caches it", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		store := mocks.NewMockStore(ctrl)
		bob := &auth.User{ID: 7, Username: "bob", IsStaff: true}
		store.EXPECT().UserForSession(gomock.Any(), "key").Return(bob, nil).Times(1)

		lazy := auth.NewLazyUser(store, "key")
		for i := 0; i < 3; i++ {
			user, err := lazy.Get(context.Background())
			require.NoError(t, err)
			assert.Equal(t, bob, user)
		}
	})

	t.Run("Treats an unknown session as anonymous", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		store := mocks.NewMockStore(ctrl)
		store.EXPECT().UserForSession(gomock.Any(), "stale").Return(nil, auth.ErrSessionNotFound)

		lazy := auth.NewLazyUser(store, "stale")
		authenticated, err := lazy.IsAuthenticated(context.Background())
		require.NoError(t, err)
		assert.False(t, authenticated)
	})

	t.Run("Propagates store errors and stays unresolved", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		store := mocks.NewMockStore(ctrl)
		want := errors.New("database is locked")
		store.EXPECT().UserForSession(gomock.Any(), "key").Return(nil, want)

		lazy := auth.NewLazyUser(store, "key")
		_, err := lazy.IsAuthenticated(context.Background())
		assert.ErrorIs(t, err, want)
		assert.False(t, lazy.Resolved())
	})
}

func TestSessionMiddleware(t *testing.T) {
	t.Run("Attaches an unresolved user carrying the cookie value", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		store := mocks.NewMockStore(ctrl)

		var lazy *auth.LazyUser
		h := auth.SessionMiddleware(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			lazy, _ = auth.UserFromContext(r.Context())
		}))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: "abc"})
		h.ServeHTTP(httptest.NewRecorder(), req)

		require.NotNil(t, lazy)
		assert.Equal(t, "abc", lazy.SessionKey())
		assert.False(t, lazy.Resolved())
	})
}

func TestLoginAndLogout(t *testing.T) {
	t.Run("Login sets the session cookie", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		store := mocks.NewMockStore(ctrl)
		store.EXPECT().CreateSession(gomock.Any(), int64(3)).Return("new-key", nil)

		rec := httptest.NewRecorder()
		err := auth.Login(context.Background(), rec, store, &auth.User{ID: 3, Username: "ann"})
		require.NoError(t, err)

		cookies := rec.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, auth.SessionCookieName, cookies[0].Name)
		assert.Equal(t, "new-key", cookies[0].Value)
	})

	t.Run("Logout deletes the session and expires the cookie", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		store := mocks.NewMockStore(ctrl)
		store.EXPECT().DeleteSession(gomock.Any(), "old-key").Return(nil)

		ctx := auth.WithUser(context.Background(), auth.NewLazyUser(store, "old-key"))
		rec := httptest.NewRecorder()
		require.NoError(t, auth.Logout(ctx, rec, store))

		cookies := rec.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, "", cookies[0].Value)
		assert.True(t, cookies[0].MaxAge < 0)
	})
}
