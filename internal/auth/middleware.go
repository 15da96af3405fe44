package auth

import (
	"context"
	"fmt"
	"net/http"
)

const SessionCookieName = "sessionid"

type userKey struct{}

func WithUser(ctx context.Context, user *LazyUser) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

func UserFromContext(ctx context.Context) (*LazyUser, bool) {
	user, ok := ctx.Value(userKey{}).(*LazyUser)
	return user, ok
}

// SessionMiddleware attaches an unresolved LazyUser built from the session cookie.
func SessionMiddleware(store Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var sessionKey string
			if cookie, err := r.Cookie(SessionCookieName); err == nil {
				sessionKey = cookie.Value
			}
			ctx := WithUser(r.Context(), NewLazyUser(store, sessionKey))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Login creates a session for user and sets the session cookie on w.
func Login(ctx context.Context, w http.ResponseWriter, store Store, user *User) error {
	key, err := store.CreateSession(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("unable to log in user %s: %w", user.Username, err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    key,
		Path:     "/",
		MaxAge:   int(SessionTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Logout deletes the request's session, if any, and expires the cookie.
func Logout(ctx context.Context, w http.ResponseWriter, store Store) error {
	if user, ok := UserFromContext(ctx); ok && user.SessionKey() != "" {
		if err := store.DeleteSession(ctx, user.SessionKey()); err != nil {
			return fmt.Errorf("unable to log out: %w", err)
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:   SessionCookieName,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
	return nil
}
