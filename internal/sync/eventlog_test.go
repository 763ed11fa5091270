package syncx_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/mind-engage/ieltsprep/internal/db"
	"github.com/mind-engage/ieltsprep/internal/events"
	"github.com/mind-engage/ieltsprep/internal/grading"
	"github.com/mind-engage/ieltsprep/internal/session"
	syncx "github.com/mind-engage/ieltsprep/internal/sync"
)

func TestSessionLog(t *testing.T) {
	ctx := context.Background()
	h, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	h.SetMaxOpenConns(1)
	defer h.Close()
	require.NoError(t, db.EnsureSchema(ctx, h, db.DriverSQLite))

	repo := syncx.NewEventRepo(h, "")
	log := syncx.SessionLog{Repo: repo}

	info := session.Info{SessionID: "s1", TestSlug: "cam-18-l1"}
	log.SessionStarted(ctx, info)
	log.SessionGraded(ctx, session.Graded{
		Info:    info,
		Outcome: grading.Outcome{Summary: grading.Summary{Correct: 35, Total: 40}, Band: 8},
		Reason:  session.ReasonManual,
	})

	all, err := repo.Since(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, events.TypeSessionStarted, all[0].Type)
	assert.Equal(t, "local", all[0].SiteID)
	assert.Equal(t, "s1", all[1].Key)

	var p events.GradedPayload
	require.NoError(t, json.Unmarshal(all[1].Data, &p))
	assert.Equal(t, 8.0, p.Band)

	rest, err := repo.Since(ctx, all[0].Offset, 10)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, events.TypeSessionGraded, rest[0].Type)
}
