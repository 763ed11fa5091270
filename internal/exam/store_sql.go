package exam

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) PutTest(ctx context.Context, t Test) error {
	if err := Validate(&t); err != nil {
		return err
	}
	body, err := json.Marshal(t)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO tests (slug,type,level,title,duration_min,body_json,updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (slug) DO UPDATE SET type=EXCLUDED.type, level=EXCLUDED.level, title=EXCLUDED.title,
		  duration_min=EXCLUDED.duration_min, body_json=EXCLUDED.body_json, updated_at=EXCLUDED.updated_at`,
		t.Slug, string(t.Type), string(t.Level), t.Title, t.Duration, string(body), time.Now().Unix())
	return err
}

func (s *SQLStore) GetTest(ctx context.Context, slug string) (*Test, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body_json FROM tests WHERE slug=$1`, slug).Scan(&body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTestNotFound
		}
		return nil, err
	}
	var t Test
	if err := json.Unmarshal([]byte(body), &t); err != nil {
		return nil, fmt.Errorf("decode test %s: %w", slug, err)
	}
	return &t, nil
}

func (s *SQLStore) ListTests(ctx context.Context, typ TestType) ([]TestSummary, error) {
	q := `SELECT slug,type,level,title,duration_min FROM tests`
	args := []any{}
	if typ != "" {
		q += ` WHERE type=$1`
		args = append(args, string(typ))
	}
	q += ` ORDER BY slug`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []TestSummary{}
	for rows.Next() {
		var ts TestSummary
		var typ, lvl string
		if err := rows.Scan(&ts.Slug, &typ, &lvl, &ts.Title, &ts.Duration); err != nil {
			return nil, err
		}
		ts.Type, ts.Level = TestType(typ), Level(lvl)
		out = append(out, ts)
	}
	return out, rows.Err()
}
