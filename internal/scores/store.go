// Package scores persists score records posted after a graded session.
package scores

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

var ErrInvalidRecord = errors.New("invalid score record")

// Record is the body of the score-save API.
type Record struct {
	ID        int64     `json:"id,omitempty"`
	Name      string    `json:"name" validate:"required"`
	Role      string    `json:"role"`
	Email     string    `json:"email" validate:"required,email"`
	TestName  string    `json:"test_name" validate:"required"`
	TestType  string    `json:"test_type" validate:"required,oneof=reading listening"`
	Score     float64   `json:"score" validate:"gte=0,lte=9"`
	Duration  int       `json:"duration" validate:"gte=0"` // seconds
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// SaveResponse is what the score-save API answers.
type SaveResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

var (
	validateOnce sync.Once
	recordV      *validator.Validate
)

// Validate checks field constraints and that the score is a half band.
func Validate(r Record) error {
	validateOnce.Do(func() { recordV = validator.New() })
	if err := recordV.Struct(r); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if r.Score*2 != math.Trunc(r.Score*2) {
		return fmt.Errorf("%w: score %v is not a half band", ErrInvalidRecord, r.Score)
	}
	return nil
}

type Store interface {
	Insert(ctx context.Context, r Record) (Record, error)
	ListByEmail(ctx context.Context, email string) ([]Record, error)
	List(ctx context.Context) ([]Record, error)
}

type SQLStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, now: time.Now}
}

func (s *SQLStore) Insert(ctx context.Context, r Record) (Record, error) {
	if err := Validate(r); err != nil {
		return Record{}, err
	}
	r.CreatedAt = s.now().UTC().Truncate(time.Second)
	err := s.db.QueryRowContext(ctx, `INSERT INTO scores (name,role,email,test_name,test_type,score,duration_sec,created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`,
		r.Name, r.Role, r.Email, r.TestName, r.TestType, r.Score, r.Duration, r.CreatedAt.Unix()).Scan(&r.ID)
	if err != nil {
		return Record{}, err
	}
	return r, nil
}

func (s *SQLStore) ListByEmail(ctx context.Context, email string) ([]Record, error) {
	return s.query(ctx, `SELECT id,name,role,email,test_name,test_type,score,duration_sec,created_at
		FROM scores WHERE email=$1 ORDER BY created_at DESC, id DESC`, email)
}

func (s *SQLStore) List(ctx context.Context) ([]Record, error) {
	return s.query(ctx, `SELECT id,name,role,email,test_name,test_type,score,duration_sec,created_at
		FROM scores ORDER BY created_at DESC, id DESC`)
}

func (s *SQLStore) query(ctx context.Context, q string, args ...any) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		var r Record
		var created int64
		if err := rows.Scan(&r.ID, &r.Name, &r.Role, &r.Email, &r.TestName, &r.TestType, &r.Score, &r.Duration, &created); err != nil {
			return nil, err
		}
		r.CreatedAt = time.Unix(created, 0).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}
