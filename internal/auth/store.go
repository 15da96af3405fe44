package auth

import (
	"context"
	"errors"
	"time"
)

//go:generate mockgen -source=store.go -destination=mocks/store_mock.go -package=mocks

// Store persists users and their login sessions.
type Store interface {
	UserForSession(ctx context.Context, sessionKey string) (*User, error)
	Authenticate(ctx context.Context, username string, password string) (*User, error)
	CreateSession(ctx context.Context, userID int64) (string, error)
	DeleteSession(ctx context.Context, sessionKey string) error
	CreateUser(ctx context.Context, input NewUser) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)
}

type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	IsStaff      bool
	IsSuperuser  bool
	DateJoined   time.Time
}

// AnonymousUser stands in for requests without a valid session.
var AnonymousUser = User{}

func (u *User) IsAuthenticated() bool {
	return u != nil && u.ID != 0
}

type NewUser struct {
	Username    string
	Email       string
	Password    string
	IsStaff     bool
	IsSuperuser bool
}

const SessionTTL = 14 * 24 * time.Hour

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserExists         = errors.New("user already exists")
	ErrSessionNotFound    = errors.New("session not found or expired")
	ErrEmptyUsername      = errors.New("username must not be empty")
	ErrEmptyPassword      = errors.New("password must not be empty")
)
