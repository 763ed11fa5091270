package exam_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/mind-engage/ieltsprep/internal/db"
	"github.com/mind-engage/ieltsprep/internal/exam"
	"github.com/mind-engage/ieltsprep/internal/exam/examtest"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	h, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	h.SetMaxOpenConns(1)
	require.NoError(t, db.EnsureSchema(context.Background(), h, db.DriverSQLite))
	t.Cleanup(func() { h.Close() })
	return h
}

func TestValidate(t *testing.T) {
	require.NoError(t, exam.Validate(examtest.Listening("ok", 30)))

	tests := []struct {
		name   string
		mutate func(*exam.Test)
	}{
		{"zero duration", func(t *exam.Test) { t.Duration = 0 }},
		{"bad type", func(t *exam.Test) { t.Type = "speaking" }},
		{"bad level", func(t *exam.Test) { t.Level = "expert" }},
		{"duplicate passage", func(t *exam.Test) { t.Passages[1].Number = 1 }},
		{"duplicate question", func(t *exam.Test) { t.Passages[0].Groups[0].Questions[1].Number = 1 }},
		{"gap in numbering", func(t *exam.Test) { t.Passages[3].Groups[0].Questions[9].Number = 41 }},
		{"unknown question type", func(t *exam.Test) { t.Passages[0].Groups[0].Questions[0].Type = "essay" }},
		{"no passages", func(t *exam.Test) { t.Passages = nil }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tt := examtest.Listening("bad", 30)
			tc.mutate(tt)
			err := exam.Validate(tt)
			require.Error(t, err)
			assert.ErrorIs(t, err, exam.ErrInvalidTest)
		})
	}
}

func TestTestHelpers(t *testing.T) {
	tt := examtest.Listening("helpers", 30)

	nums := tt.QuestionNumbers()
	require.Len(t, nums, 40)
	assert.Equal(t, 1, nums[0])
	assert.Equal(t, 40, nums[39])

	assert.Equal(t, 1, tt.PassageOf(10))
	assert.Equal(t, 2, tt.PassageOf(11))
	assert.Equal(t, 0, tt.PassageOf(99))
	assert.Equal(t, 1, tt.FirstPassage())

	key := tt.AnswerKey()
	assert.Equal(t, []string{"B", "D"}, key[6])

	view := tt.StudentView()
	for _, p := range view.Passages {
		for _, g := range p.Groups {
			for _, q := range g.Questions {
				assert.Nil(t, q.Answer, "question %d leaked its answer", q.Number)
			}
		}
	}
	q6, ok := view.Question(6)
	require.True(t, ok)
	assert.True(t, q6.MultiSelect)
	assert.True(t, exam.IsMultiSelect(q6))

	// the original keeps its answers
	q1, _ := tt.Question(1)
	assert.Equal(t, []string{"answer 1"}, q1.Answer)
}

func TestSQLStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := exam.NewSQLStore(openDB(t))

	_, err := store.GetTest(ctx, "missing")
	assert.ErrorIs(t, err, exam.ErrTestNotFound)

	require.NoError(t, store.PutTest(ctx, *examtest.Listening("l-1", 30)))
	reading := examtest.Listening("r-1", 60)
	reading.Type = exam.TypeReading
	require.NoError(t, store.PutTest(ctx, *reading))

	got, err := store.GetTest(ctx, "l-1")
	require.NoError(t, err)
	assert.Equal(t, examtest.Listening("l-1", 30), got)

	// upsert replaces
	updated := examtest.Listening("l-1", 45)
	require.NoError(t, store.PutTest(ctx, *updated))
	got, err = store.GetTest(ctx, "l-1")
	require.NoError(t, err)
	assert.Equal(t, 45, got.Duration)

	all, err := store.ListTests(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "l-1", all[0].Slug)

	listening, err := store.ListTests(ctx, exam.TypeListening)
	require.NoError(t, err)
	require.Len(t, listening, 1)

	bad := examtest.Listening("bad", 0)
	assert.ErrorIs(t, store.PutTest(ctx, *bad), exam.ErrInvalidTest)
}

func TestHTTPLoader(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		assert.Equal(t, "Bearer svc-token", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/tests/by-slug/cam-18-l1":
			_ = json.NewEncoder(w).Encode(examtest.Listening("cam-18-l1", 30))
		case "/tests/by-slug/broken":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	l := exam.NewHTTPLoader(srv.URL, 2*time.Second)
	l.Token = "svc-token"
	ctx := context.Background()

	got, err := l.Load(ctx, "cam-18-l1")
	require.NoError(t, err)
	assert.Equal(t, "cam-18-l1", got.Slug)
	assert.Len(t, got.QuestionNumbers(), 40)

	_, err = l.Load(ctx, "nope")
	assert.ErrorIs(t, err, exam.ErrTestNotFound)

	_, err = l.Load(ctx, "broken")
	require.Error(t, err)
	assert.False(t, errors.Is(err, exam.ErrTestNotFound))

	// no retries
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

type countingLoader struct {
	calls   int32
	release chan struct{}
}

func (c *countingLoader) Load(_ context.Context, slug string) (*exam.Test, error) {
	atomic.AddInt32(&c.calls, 1)
	<-c.release
	return examtest.Listening(slug, 30), nil
}

type mapCache struct {
	mu sync.Mutex
	m  map[string]exam.Test
}

func (c *mapCache) Get(_ context.Context, slug string) (*exam.Test, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.m[slug]
	if !ok {
		return nil, false, nil
	}
	return &t, true, nil
}

func (c *mapCache) Set(_ context.Context, t *exam.Test, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[t.Slug] = *t
	return nil
}

func TestCachingLoaderDeduplicates(t *testing.T) {
	next := &countingLoader{release: make(chan struct{})}
	cache := &mapCache{m: map[string]exam.Test{}}
	l := exam.NewCachingLoader(next, cache, time.Minute, time.Second, nil)

	var wg sync.WaitGroup
	results := make([]*exam.Test, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tt, err := l.Load(context.Background(), "shared")
			assert.NoError(t, err)
			results[i] = tt
		}(i)
	}
	// let the goroutines pile up on the in-flight call
	time.Sleep(50 * time.Millisecond)
	close(next.release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&next.calls))
	for _, r := range results {
		require.NotNil(t, r)
		assert.Equal(t, "shared", r.Slug)
	}

	// served from cache afterwards
	_, err := l.Load(context.Background(), "shared")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&next.calls))
}

type ctxLoader struct {
	calls   int32
	release chan struct{}
}

func (c *ctxLoader) Load(ctx context.Context, slug string) (*exam.Test, error) {
	atomic.AddInt32(&c.calls, 1)
	select {
	case <-c.release:
		return examtest.Listening(slug, 30), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestCachingLoaderSurvivesCallerCancel(t *testing.T) {
	next := &ctxLoader{release: make(chan struct{})}
	l := exam.NewCachingLoader(next, nil, time.Minute, 5*time.Second, nil)

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := l.Load(first, "shared")
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return atomic.LoadInt32(&next.calls) == 1 }, time.Second, 5*time.Millisecond)

	second := make(chan *exam.Test, 1)
	go func() {
		tt, err := l.Load(context.Background(), "shared")
		assert.NoError(t, err)
		second <- tt
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(next.release)
	select {
	case tt := <-second:
		require.NotNil(t, tt)
		assert.Equal(t, "shared", tt.Slug)
	case <-time.After(2 * time.Second):
		t.Fatal("second caller never received the shared fetch")
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&next.calls))
}

func TestStoreLoader(t *testing.T) {
	ctx := context.Background()
	store := exam.NewInMemoryStore()
	require.NoError(t, store.PutTest(ctx, *examtest.Listening("mem", 30)))

	l := exam.StoreLoader{Store: store}
	got, err := l.Load(ctx, "mem")
	require.NoError(t, err)
	assert.Equal(t, "mem", got.Slug)

	_, err = l.Load(ctx, "other")
	assert.ErrorIs(t, err, exam.ErrTestNotFound)
}

func TestImportDir(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	for _, slug := range []string{"cam-18-l1", "cam-18-l2"} {
		raw, err := json.Marshal(examtest.Listening(slug, 30))
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, slug+".json"), raw, 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	store := exam.NewInMemoryStore()
	n, err := exam.ImportDir(ctx, store, dir)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	list, err := store.ListTests(ctx, exam.TypeListening)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "zz-bad.json"), []byte(`{"slug":"bad"}`), 0o644))
	_, err = exam.ImportDir(ctx, store, dir)
	assert.ErrorIs(t, err, exam.ErrInvalidTest)
	assert.Contains(t, err.Error(), "zz-bad.json")
}
