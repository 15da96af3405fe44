package auth

import (
	"context"
	"errors"
	"sync"
)

// LazyUser is the request's authentication state. The user is loaded from the
// store on first access and cached for the rest of the request.
type LazyUser struct {
	store      Store
	sessionKey string

	mu       sync.Mutex
	user     *User
	resolved bool
}

func NewLazyUser(store Store, sessionKey string) *LazyUser {
	return &LazyUser{store: store, sessionKey: sessionKey}
}

// Get resolves the user. Requests without a session key are anonymous and never
// reach the store.
func (l *LazyUser) Get(ctx context.Context) (*User, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.resolved {
		return l.user, nil
	}
	if l.sessionKey == "" {
		l.set(anonymous())
		return l.user, nil
	}

	user, err := l.store.UserForSession(ctx, l.sessionKey)
	if errors.Is(err, ErrSessionNotFound) {
		l.set(anonymous())
		return l.user, nil
	}
	if err != nil {
		return nil, err
	}
	l.set(user)
	return l.user, nil
}

func anonymous() *User {
	user := AnonymousUser
	return &user
}

func (l *LazyUser) set(user *User) {
	l.user = user
	l.resolved = true
}

func (l *LazyUser) IsAuthenticated(ctx context.Context) (bool, error) {
	user, err := l.Get(ctx)
	if err != nil {
		return false, err
	}
	return user.IsAuthenticated(), nil
}

// Resolved reports whether the user has already been loaded.
func (l *LazyUser) Resolved() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.resolved
}

func (l *LazyUser) SessionKey() string {
	return l.sessionKey
}
