package auth

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user already exists")
)

const bcryptCost = 12

type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	Approved  bool      `json:"approved"`
	CreatedAt time.Time `json:"created_at"`
}

type UserStore interface {
	FindByEmail(ctx context.Context, email string) (User, string, error)
	FindByID(ctx context.Context, id string) (User, error)
	Create(ctx context.Context, u User, password string) (User, error)
	SetApproved(ctx context.Context, id string, approved bool) error
	SetPassword(ctx context.Context, id, oldPassword, newPassword string) error
}

var ErrWrongPassword = errors.New("incorrect old password")

// SQLUserStore reads the users table. Emails are stored lower-cased.
type SQLUserStore struct {
	db *sql.DB
}

func NewSQLUserStore(db *sql.DB) *SQLUserStore { return &SQLUserStore{db: db} }

// FindByEmail returns the user and its bcrypt hash.
func (s *SQLUserStore) FindByEmail(ctx context.Context, email string) (User, string, error) {
	var u User
	var hash string
	var created int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, name, role, approved, password_hash, created_at FROM users WHERE email=$1`,
		strings.ToLower(strings.TrimSpace(email))).
		Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.Approved, &hash, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, "", ErrUserNotFound
	}
	if err != nil {
		return User{}, "", err
	}
	u.CreatedAt = time.Unix(created, 0).UTC()
	return u, hash, nil
}

func (s *SQLUserStore) FindByID(ctx context.Context, id string) (User, error) {
	var u User
	var created int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, name, role, approved, created_at FROM users WHERE id=$1`, id).
		Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.Approved, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, err
	}
	u.CreatedAt = time.Unix(created, 0).UTC()
	return u, nil
}

func (s *SQLUserStore) Create(ctx context.Context, u User, password string) (User, error) {
	if password == "" {
		return User{}, errors.New("password required")
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if u.Email == "" {
		return User{}, errors.New("email required")
	}
	if _, _, err := s.FindByEmail(ctx, u.Email); err == nil {
		return User{}, ErrUserExists
	} else if !errors.Is(err, ErrUserNotFound) {
		return User{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return User{}, err
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Role == "" {
		u.Role = "student"
	}
	u.CreatedAt = time.Now().UTC().Truncate(time.Second)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, name, role, approved, password_hash, created_at) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		u.ID, u.Email, u.Name, u.Role, u.Approved, string(hash), u.CreatedAt.Unix())
	if err != nil {
		return User{}, err
	}
	return u, nil
}

func (s *SQLUserStore) SetApproved(ctx context.Context, id string, approved bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET approved=$1 WHERE id=$2`, approved, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SetPassword replaces the hash after checking oldPassword.
func (s *SQLUserStore) SetPassword(ctx context.Context, id, oldPassword, newPassword string) error {
	var stored string
	err := s.db.QueryRowContext(ctx, `SELECT password_hash FROM users WHERE id=$1`, id).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrUserNotFound
	}
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(stored), []byte(oldPassword)) != nil {
		return ErrWrongPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcryptCost)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `UPDATE users SET password_hash=$1 WHERE id=$2`, string(hash), id)
	return err
}

// EnsureUser creates u unless its email is already registered.
func EnsureUser(ctx context.Context, s UserStore, u User, password string) (User, error) {
	if existing, _, err := s.FindByEmail(ctx, u.Email); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrUserNotFound) {
		return User{}, err
	}
	return s.Create(ctx, u, password)
}
