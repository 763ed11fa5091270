package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mind-engage/ieltsprep/internal/exam"
	"github.com/mind-engage/ieltsprep/internal/grading"
)

// ScoreReporter saves one graded session. A non-nil error means no save was
// attempted and the stored ReportState is left as is.
type ScoreReporter interface {
	Report(ctx context.Context, g Graded) (ReportState, error)
}

// Observer receives lifecycle notifications. Calls happen after the session
// lock is released.
type Observer interface {
	SessionStarted(ctx context.Context, info Info)
	SessionGraded(ctx context.Context, g Graded)
	SessionClosed(ctx context.Context, info Info)
}

type ManagerOption func(*Manager)

// WithTicker replaces the one-second ticker used to drive session timers.
func WithTicker(fn func() Ticker) ManagerOption {
	return func(m *Manager) { m.newTicker = fn }
}

func WithObservers(obs ...Observer) ManagerOption {
	return func(m *Manager) { m.observers = append(m.observers, obs...) }
}

// WithReporter installs a factory that builds one ScoreReporter per session.
func WithReporter(fn func() ScoreReporter) ManagerOption {
	return func(m *Manager) { m.newReporter = fn }
}

func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// WithReportTimeout bounds the score save that follows grading.
func WithReportTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) { m.reportTimeout = d }
}

// WithRetention keeps graded sessions readable for d after they finish. Zero
// disables the background sweep.
func WithRetention(d time.Duration) ManagerOption {
	return func(m *Manager) { m.retention = d }
}

// Manager owns live sessions and their timer goroutines.
type Manager struct {
	loader exam.Loader
	policy grading.Policy
	logger *zap.Logger

	newTicker     func() Ticker
	newReporter   func() ScoreReporter
	observers     []Observer
	now           func() time.Time
	reportTimeout time.Duration
	retention     time.Duration

	root   context.Context
	stop   context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex
	byID   map[string]*Session
	closed bool
}

func NewManager(loader exam.Loader, policy grading.Policy, logger *zap.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		loader:        loader,
		policy:        policy,
		logger:        logger,
		newTicker:     func() Ticker { return NewTicker(time.Second) },
		now:           time.Now,
		reportTimeout: 10 * time.Second,
		retention:     30 * time.Minute,
		byID:          map[string]*Session{},
	}
	for _, o := range opts {
		o(m)
	}
	m.root, m.stop = context.WithCancel(context.Background())
	if m.retention > 0 {
		m.wg.Add(1)
		go m.sweepLoop()
	}
	return m
}

func (m *Manager) sweepLoop() {
	defer m.wg.Done()
	every := m.retention / 2
	if every > time.Minute {
		every = time.Minute
	}
	if every < time.Second {
		every = time.Second
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-m.root.Done():
			return
		case <-t.C:
			if n := m.Sweep(); n > 0 {
				m.logger.Debug("graded sessions evicted", zap.Int("count", n))
			}
		}
	}
}

// Sweep drops graded sessions whose retention has lapsed and returns how many
// were removed. Active sessions are never touched.
func (m *Manager) Sweep() int {
	cutoff := m.now().Add(-m.retention)
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.byID {
		if g, ok := s.gradedCopy(); ok && !g.FinishedAt.After(cutoff) {
			delete(m.byID, id)
			n++
		}
	}
	return n
}

// Start loads the test once, starts the countdown and shows the first passage.
func (m *Manager) Start(ctx context.Context, slug string, u User, credential string) (*Session, error) {
	t, err := m.loader.Load(ctx, slug)
	if err != nil {
		return nil, err
	}

	s := newSession(uuid.NewString(), t, u, credential, m.policy, m.now)
	if m.newReporter != nil {
		s.reporter = m.newReporter()
	}
	tctx, cancel := context.WithCancel(m.root)
	s.cancel = cancel

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		cancel()
		return nil, errors.New("session manager is shut down")
	}
	m.byID[s.ID()] = s
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		RunTimer(tctx, s, m.newTicker(), func() {
			m.finish(context.WithoutCancel(tctx), s, ReasonTimeout)
		})
	}()

	m.logger.Info("session started",
		zap.String("session_id", s.ID()),
		zap.String("slug", slug),
		zap.String("user", u.Email),
		zap.Int("duration_min", t.Duration))
	for _, o := range m.observers {
		o.SessionStarted(ctx, s.Info())
	}
	return s, nil
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byID[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Submit is the manual submit path.
func (m *Manager) Submit(ctx context.Context, id string) (Graded, error) {
	s, err := m.Get(id)
	if err != nil {
		return Graded{}, err
	}
	return m.finish(ctx, s, ReasonManual)
}

func (m *Manager) finish(ctx context.Context, s *Session, reason Reason) (Graded, error) {
	g, err := s.submit(reason)
	if err != nil {
		if reason == ReasonTimeout {
			m.logger.Debug("timeout submit skipped", zap.String("session_id", s.ID()), zap.Error(err))
		}
		return Graded{}, err
	}
	if s.cancel != nil {
		s.cancel()
	}

	fields := []zap.Field{
		zap.String("session_id", s.ID()),
		zap.String("reason", string(reason)),
		zap.Int("correct", g.Outcome.Summary.Correct),
		zap.Int("total", g.Outcome.Summary.Total),
		zap.Float64("band", g.Outcome.Band),
		zap.Int("elapsed_sec", g.ElapsedSeconds),
	}
	if reason == ReasonTimeout && len(g.Missing) > 0 {
		m.logger.Warn("time expired with unanswered questions", append(fields, zap.Ints("missing", g.Missing))...)
	} else {
		m.logger.Info("session graded", fields...)
	}

	for _, o := range m.observers {
		o.SessionGraded(ctx, g)
	}
	if s.reporter != nil {
		_ = m.report(ctx, s, g)
	}
	return g, nil
}

func (m *Manager) report(ctx context.Context, s *Session, g Graded) error {
	rctx, cancel := context.WithTimeout(ctx, m.reportTimeout)
	defer cancel()
	state, err := s.reporter.Report(rctx, g)
	if err != nil {
		return err
	}
	s.setReport(state)
	return nil
}

// Report re-runs the score save path for a graded session. The reporter's
// one-shot guard makes repeat calls return an error without a network call.
func (m *Manager) Report(ctx context.Context, id string) (ReportState, error) {
	s, err := m.Get(id)
	if err != nil {
		return ReportState{}, err
	}
	g, ok := s.gradedCopy()
	if !ok {
		return ReportState{}, ErrNotGraded
	}
	if s.reporter == nil {
		return ReportState{}, errors.New("no score reporter configured")
	}
	if err := m.report(ctx, s, g); err != nil {
		return ReportState{}, err
	}
	return s.ReportState(), nil
}

// Close tears a session down: the timer stops and nothing is submitted.
func (m *Manager) Close(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.byID[id]
	delete(m.byID, id)
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	if s.close() {
		for _, o := range m.observers {
			o.SessionClosed(ctx, s.Info())
		}
	}
	return nil
}

// Shutdown stops every timer and waits for the timer goroutines to exit.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	sessions := make([]*Session, 0, len(m.byID))
	for _, s := range m.byID {
		sessions = append(sessions, s)
	}
	m.byID = map[string]*Session{}
	m.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
	m.stop()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len is the number of sessions held in memory, graded ones included until
// they are swept.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID)
}
