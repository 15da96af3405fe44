package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/getsentry/repro/internal/async"
	_ "github.com/glebarez/go-sqlite"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const (
	driverName = "sqlite"

	// SQLite leaves foreign keys off per connection unless asked, which would
	// make ON DELETE CASCADE a no-op.
	foreignKeysPragma = "_pragma=foreign_keys(1)"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS auth_user (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL DEFAULT '',
		password TEXT NOT NULL,
		is_staff INTEGER NOT NULL DEFAULT 0,
		is_superuser INTEGER NOT NULL DEFAULT 0,
		date_joined INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS auth_session (
		session_key TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL REFERENCES auth_user(id) ON DELETE CASCADE,
		expire_date INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS auth_session_expire_date ON auth_session(expire_date)`,
}

// SQLiteStore is the Store used by the capture harness. Every query refuses to
// run from an event-loop task, the way a synchronous ORM does.
type SQLiteStore struct {
	db       *sql.DB
	hashCost int
	now      func() time.Time
	logger   *logrus.Logger
}

type StoreOption func(*SQLiteStore)

// WithHashCost sets the bcrypt cost used for new passwords.
func WithHashCost(cost int) StoreOption {
	return func(s *SQLiteStore) { s.hashCost = cost }
}

func WithClock(now func() time.Time) StoreOption {
	return func(s *SQLiteStore) { s.now = now }
}

// OpenSQLiteStore opens (or creates) the database file at path.
func OpenSQLiteStore(path string, logger *logrus.Logger, opts ...StoreOption) (*SQLiteStore, error) {
	db, err := sql.Open(driverName, dataSourceName(path))
	if err != nil {
		return nil, fmt.Errorf("unable to open sqlite database %s: %w", path, err)
	}
	// A single connection keeps ":memory:" databases shared and serialises writers.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{
		db:       db,
		hashCost: bcrypt.DefaultCost,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func dataSourceName(path string) string {
	if strings.Contains(path, "?") {
		return path + "&" + foreignKeysPragma
	}
	return path + "?" + foreignKeysPragma
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates the schema if it does not exist yet.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if err := async.EnsureSync(ctx, "migrate"); err != nil {
		return err
	}
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("unable to apply migration: %w", err)
		}
	}
	s.logger.Infof("Applied %d migration statements", len(schema))
	return nil
}

func (s *SQLiteStore) UserForSession(ctx context.Context, sessionKey string) (*User, error) {
	if err := async.EnsureSync(ctx, "session user lookup"); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(
		ctx,
		`SELECT u.id, u.username, u.email, u.password, u.is_staff, u.is_superuser, u.date_joined
		FROM auth_session s JOIN auth_user u ON u.id = s.user_id
		WHERE s.session_key = ? AND s.expire_date > ?`,
		sessionKey,
		s.now().Unix(),
	)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("unable to load user for session: %w", err)
	}
	return user, nil
}

func (s *SQLiteStore) Authenticate(ctx context.Context, username string, password string) (*User, error) {
	if err := async.EnsureSync(ctx, "authenticate"); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, username, email, password, is_staff, is_superuser, date_joined
		FROM auth_user WHERE username = ?`,
		username,
	)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("unable to load user %s: %w", username, err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

func (s *SQLiteStore) CreateSession(ctx context.Context, userID int64) (string, error) {
	if err := async.EnsureSync(ctx, "create session"); err != nil {
		return "", err
	}
	key := uuid.NewString()
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO auth_session (session_key, user_id, expire_date) VALUES (?, ?, ?)`,
		key,
		userID,
		s.now().Add(SessionTTL).Unix(),
	)
	if err != nil {
		return "", fmt.Errorf("unable to create session for user %d: %w", userID, err)
	}
	return key, nil
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionKey string) error {
	if err := async.EnsureSync(ctx, "delete session"); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM auth_session WHERE session_key = ?`, sessionKey); err != nil {
		return fmt.Errorf("unable to delete session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CreateUser(ctx context.Context, input NewUser) (*User, error) {
	if err := async.EnsureSync(ctx, "create user"); err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.Username) == "" {
		return nil, ErrEmptyUsername
	}
	if input.Password == "" {
		return nil, ErrEmptyPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.hashCost)
	if err != nil {
		return nil, fmt.Errorf("unable to hash password: %w", err)
	}

	joined := s.now().UTC().Truncate(time.Second)
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO auth_user (username, email, password, is_staff, is_superuser, date_joined)
		VALUES (?, ?, ?, ?, ?, ?)`,
		input.Username,
		input.Email,
		string(hash),
		input.IsStaff,
		input.IsSuperuser,
		joined.Unix(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, fmt.Errorf("%w: %s", ErrUserExists, input.Username)
		}
		return nil, fmt.Errorf("unable to insert user %s: %w", input.Username, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("unable to read id of user %s: %w", input.Username, err)
	}
	return &User{
		ID:           id,
		Username:     input.Username,
		Email:        input.Email,
		PasswordHash: string(hash),
		IsStaff:      input.IsStaff,
		IsSuperuser:  input.IsSuperuser,
		DateJoined:   joined,
	}, nil
}

func (s *SQLiteStore) ListUsers(ctx context.Context) ([]User, error) {
	if err := async.EnsureSync(ctx, "list users"); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, username, email, password, is_staff, is_superuser, date_joined FROM auth_user ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("unable to list users: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			s.logger.Errorf("Error encountered when closing user rows %v", err)
		}
	}()

	var users []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan user: %w", err)
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("unable to iterate users: %w", err)
	}
	return users, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*User, error) {
	var user User
	var joined int64
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.IsStaff,
		&user.IsSuperuser,
		&joined,
	)
	if err != nil {
		return nil, err
	}
	user.DateJoined = time.Unix(joined, 0).UTC()
	return &user, nil
}
