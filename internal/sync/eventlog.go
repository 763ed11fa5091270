package syncx

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/mind-engage/ieltsprep/internal/events"
	"github.com/mind-engage/ieltsprep/internal/session"
)

type Event struct {
	Offset    int64           `json:"offset"`
	SiteID    string          `json:"site_id"`
	Type      string          `json:"type"`
	Key       string          `json:"key"`
	Data      json.RawMessage `json:"data"`
	CreatedAt int64           `json:"created_at"`
}

type EventRepo struct {
	db     *sql.DB
	siteID string
}

func NewEventRepo(db *sql.DB, siteID string) *EventRepo {
	if siteID == "" {
		siteID = "local"
	}
	return &EventRepo{db: db, siteID: siteID}
}

func (r *EventRepo) Append(ctx context.Context, typ, key string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO event_log (site_id, typ, key, data, created_at)
		 VALUES ($1,$2,$3,$4,$5)`,
		r.siteID, typ, key, string(raw), time.Now().Unix())
	return err
}

// Since returns up to limit events with an offset greater than after.
func (r *EventRepo) Since(ctx context.Context, after int64, limit int) ([]Event, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT "offset", site_id, typ, key, data, created_at FROM event_log
		 WHERE "offset" > $1 ORDER BY "offset" LIMIT $2`, after, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Event{}
	for rows.Next() {
		var e Event
		var data string
		if err := rows.Scan(&e.Offset, &e.SiteID, &e.Type, &e.Key, &data, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Data = json.RawMessage(data)
		out = append(out, e)
	}
	return out, rows.Err()
}

// SessionLog appends session lifecycle events to the log.
type SessionLog struct {
	Repo   *EventRepo
	Logger *zap.Logger
}

func (l SessionLog) SessionStarted(ctx context.Context, info session.Info) {
	l.append(ctx, events.TypeSessionStarted, info.SessionID, info)
}

func (l SessionLog) SessionGraded(ctx context.Context, g session.Graded) {
	l.append(ctx, events.TypeSessionGraded, g.SessionID, events.NewGradedPayload(g))
}

func (l SessionLog) SessionClosed(ctx context.Context, info session.Info) {
	l.append(ctx, events.TypeSessionClosed, info.SessionID, info)
}

func (l SessionLog) append(ctx context.Context, typ, key string, data any) {
	if err := l.Repo.Append(ctx, typ, key, data); err != nil && l.Logger != nil {
		l.Logger.Error("event log append failed", zap.String("event_type", typ), zap.String("key", key), zap.Error(err))
	}
}
