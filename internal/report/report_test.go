package report_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/ieltsprep/internal/exam"
	"github.com/mind-engage/ieltsprep/internal/grading"
	"github.com/mind-engage/ieltsprep/internal/report"
	"github.com/mind-engage/ieltsprep/internal/scores"
	"github.com/mind-engage/ieltsprep/internal/session"
)

type backend struct {
	srv        *httptest.Server
	scorePosts int32
	loginCalls int32
	mu         sync.Mutex
	last       scores.Record
	fail       bool
}

func newBackend(t *testing.T) *backend {
	b := &backend{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/checkLogin", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&b.loginCalls, 1)
		c, err := r.Cookie(report.CookieName)
		if err != nil || c.Value != "good" {
			_ = json.NewEncoder(w).Encode(map[string]any{"loggedIn": false})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"loggedIn": true,
			"user":     map[string]any{"id": "u1", "name": "Ana", "email": "ana@example.com", "role": "student"},
		})
	})
	mux.HandleFunc("/api/scores", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&b.scorePosts, 1)
		var rec scores.Record
		_ = json.NewDecoder(r.Body).Decode(&rec)
		b.mu.Lock()
		b.last = rec
		fail := b.fail
		b.mu.Unlock()
		if fail {
			w.WriteHeader(http.StatusBadGateway)
			_ = json.NewEncoder(w).Encode(scores.SaveResponse{Message: "upstream down"})
			return
		}
		_ = json.NewEncoder(w).Encode(scores.SaveResponse{Success: true, Message: "Score saved"})
	})
	b.srv = httptest.NewServer(mux)
	t.Cleanup(b.srv.Close)
	return b
}

func (b *backend) factory() report.Factory {
	return report.Factory{
		Scores:   report.NewHTTPScoreClient(report.HTTPScoreConfig{URL: b.srv.URL + "/api/scores", Timeout: time.Second}),
		Identity: report.NewHTTPIdentityChecker(b.srv.URL, time.Second),
	}
}

func graded(credential string) session.Graded {
	return session.Graded{
		Info: session.Info{
			SessionID: "s1",
			TestSlug:  "cam-18-l1",
			TestTitle: "Cambridge 18 Listening 1",
			TestType:  exam.TypeListening,
			User:      session.User{Name: "stale", Email: "stale@example.com"},
		},
		Outcome:        grading.Outcome{Band: 7.5, Summary: grading.Summary{Correct: 33, Total: 40}},
		Reason:         session.ReasonManual,
		ElapsedSeconds: 1790,
		Credential:     credential,
	}
}

func TestReportSavesOnce(t *testing.T) {
	b := newBackend(t)
	r := b.factory().New()

	state, err := r.Report(context.Background(), graded("good"))
	require.NoError(t, err)
	assert.Equal(t, report.OutcomeSaved, state.Status)

	_, err = r.Report(context.Background(), graded("good"))
	assert.ErrorIs(t, err, report.ErrAlreadyAttempted)

	assert.Equal(t, int32(1), atomic.LoadInt32(&b.scorePosts))
	assert.Equal(t, int32(1), atomic.LoadInt32(&b.loginCalls))

	b.mu.Lock()
	defer b.mu.Unlock()
	assert.Equal(t, scores.Record{
		Name: "Ana", Role: "student", Email: "ana@example.com",
		TestName: "Cambridge 18 Listening 1", TestType: "listening",
		Score: 7.5, Duration: 1790,
	}, b.last)
}

func TestReportConcurrentCallsMakeOneRequest(t *testing.T) {
	b := newBackend(t)
	r := b.factory().New()

	var wg sync.WaitGroup
	var attempted int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Report(context.Background(), graded("good")); err == nil {
				atomic.AddInt32(&attempted, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), attempted)
	assert.Equal(t, int32(1), atomic.LoadInt32(&b.scorePosts))
}

func TestReportRequiresLogin(t *testing.T) {
	b := newBackend(t)
	r := b.factory().New()

	state, err := r.Report(context.Background(), graded("bad"))
	require.NoError(t, err)
	assert.Equal(t, "error", state.Status)
	assert.Contains(t, state.Message, report.ErrNotAuthenticated.Error())
	assert.Zero(t, atomic.LoadInt32(&b.scorePosts))

	// no retry on the same session
	_, err = r.Report(context.Background(), graded("good"))
	assert.ErrorIs(t, err, report.ErrAlreadyAttempted)
}

func TestReportSurfacesSaveFailure(t *testing.T) {
	b := newBackend(t)
	b.fail = true
	r := b.factory().New()

	state, err := r.Report(context.Background(), graded("good"))
	require.NoError(t, err)
	assert.Equal(t, "error", state.Status)
	assert.Contains(t, state.Message, "upstream down")
	assert.Equal(t, int32(1), atomic.LoadInt32(&b.scorePosts))
}

type countingObserver struct {
	mu       sync.Mutex
	outcomes []string
}

func (c *countingObserver) ScoreReported(o string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outcomes = append(c.outcomes, o)
}

type memScores struct{ recs []scores.Record }

func (m *memScores) Insert(_ context.Context, r scores.Record) (scores.Record, error) {
	if err := scores.Validate(r); err != nil {
		return scores.Record{}, err
	}
	m.recs = append(m.recs, r)
	return r, nil
}

func (m *memScores) ListByEmail(context.Context, string) ([]scores.Record, error) { return m.recs, nil }
func (m *memScores) List(context.Context) ([]scores.Record, error)                { return m.recs, nil }

func TestLocalClients(t *testing.T) {
	store := &memScores{}
	obs := &countingObserver{}
	verify := func(tok string) (session.User, error) {
		if tok != "good" {
			return session.User{}, errors.New("bad token")
		}
		return session.User{ID: "u1", Name: "Ana", Email: "ana@example.com", Role: "student"}, nil
	}
	f := report.Factory{
		Scores:   report.StoreScoreClient{Store: store},
		Identity: report.JWTIdentityChecker{Verify: verify},
		Observer: obs,
	}

	state, err := f.New().Report(context.Background(), graded("good"))
	require.NoError(t, err)
	assert.Equal(t, report.OutcomeSaved, state.Status)
	require.Len(t, store.recs, 1)

	state, err = f.New().Report(context.Background(), graded("expired"))
	require.NoError(t, err)
	assert.Equal(t, "error", state.Status)

	assert.Equal(t, []string{report.OutcomeSaved, report.OutcomeUnauthorized}, obs.outcomes)
}
