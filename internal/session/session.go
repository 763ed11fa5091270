package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mind-engage/ieltsprep/internal/exam"
	"github.com/mind-engage/ieltsprep/internal/grading"
)

var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrIncompleteAnswers = errors.New("answers incomplete")
	ErrAlreadySubmitted  = errors.New("session already submitted")
	ErrSessionClosed     = errors.New("session closed")
	ErrNotGraded         = errors.New("session not graded")
)

// IncompleteError blocks a manual submit while time remains.
type IncompleteError struct {
	Missing []int
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("%d question(s) unanswered", len(e.Missing))
}

func (e *IncompleteError) Is(target error) bool { return target == ErrIncompleteAnswers }

type Status string

const (
	StatusActive    Status = "active"
	StatusSubmitted Status = "submitted"
	StatusExpired   Status = "expired"
	StatusClosed    Status = "closed"
)

type Reason string

const (
	ReasonManual  Reason = "manual"
	ReasonTimeout Reason = "timeout"
	ReasonClosed  Reason = "closed"
)

type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// ReportState is the outcome of the score save for one session.
type ReportState struct {
	Status  string `json:"status"` // pending|saved|error
	Message string `json:"message,omitempty"`
}

// Info identifies a session to observers.
type Info struct {
	SessionID string        `json:"session_id"`
	TestSlug  string        `json:"test_slug"`
	TestTitle string        `json:"test_title"`
	TestType  exam.TestType `json:"test_type"`
	User      User          `json:"user"`
	StartedAt time.Time     `json:"started_at"`
}

// Graded is produced exactly once per session.
type Graded struct {
	Info
	Outcome        grading.Outcome `json:"outcome"`
	Reason         Reason          `json:"reason"`
	ElapsedSeconds int             `json:"elapsed_seconds"`
	Missing        []int           `json:"missing,omitempty"`
	FinishedAt     time.Time       `json:"finished_at"`
	Credential     string          `json:"-"`
}

// Session is one student's timed attempt at a test. All methods are safe for
// concurrent use.
type Session struct {
	mu sync.Mutex

	info       Info
	test       *exam.Test
	credential string
	policy     grading.Policy

	answers *AnswerStore
	timer   Timer
	nav     *Navigator

	status   Status
	graded   *Graded
	report   ReportState
	reporter ScoreReporter
	cancel   func()
	now      func() time.Time
}

func newSession(id string, t *exam.Test, u User, credential string, p grading.Policy, now func() time.Time) *Session {
	s := &Session{
		info: Info{
			SessionID: id,
			TestSlug:  t.Slug,
			TestTitle: t.Title,
			TestType:  t.Type,
			User:      u,
			StartedAt: now(),
		},
		test:       t,
		credential: credential,
		policy:     p,
		answers:    NewAnswerStore(t),
		nav:        NewNavigator(t),
		status:     StatusActive,
		now:        now,
	}
	s.timer.Start(t.Duration)
	return s
}

func (s *Session) ID() string { return s.info.SessionID }

func (s *Session) Info() Info { return s.info }

// Tick advances the countdown; it implements Tickable.
func (s *Session) Tick() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusActive {
		return false
	}
	return s.timer.Tick()
}

func (s *Session) SetAnswer(qn int, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.activeLocked(); err != nil {
		return err
	}
	return s.answers.Set(qn, value)
}

func (s *Session) SetAnswers(qn int, values []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.activeLocked(); err != nil {
		return err
	}
	return s.answers.SetSequence(qn, values)
}

func (s *Session) ToggleAnswer(qn int, option string, checked bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.activeLocked(); err != nil {
		return err
	}
	return s.answers.Toggle(qn, option, checked)
}

// Answer returns the stored answer for qn, nil when unanswered.
func (s *Session) Answer(qn int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.answers.Answers()[qn]
}

func (s *Session) SelectPassage(p int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.activeLocked(); err != nil {
		return err
	}
	return s.nav.SelectPassage(p)
}

func (s *Session) ScrollToQuestion(qn int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.activeLocked(); err != nil {
		return false, err
	}
	return s.nav.ScrollToQuestion(qn)
}

// Committed forwards the render-commit signal for passage p.
func (s *Session) Committed(p int) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nav.Committed(p)
}

func (s *Session) activeLocked() error {
	switch s.status {
	case StatusActive:
		return nil
	case StatusClosed:
		return ErrSessionClosed
	default:
		return ErrAlreadySubmitted
	}
}

// submit grades the current answers. A manual submit is refused with
// *IncompleteError while time remains and answers are missing; a timeout
// submit always proceeds.
func (s *Session) submit(reason Reason) (Graded, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.activeLocked(); err != nil {
		return Graded{}, err
	}

	missing := s.answers.Missing()
	if reason == ReasonManual && len(missing) > 0 && s.timer.Remaining > 0 {
		return Graded{}, &IncompleteError{Missing: missing}
	}

	out, err := s.policy.Evaluate(s.test, s.answers.Answers())
	if err != nil {
		return Graded{}, err
	}

	s.timer.Stop()
	if reason == ReasonTimeout {
		s.status = StatusExpired
	} else {
		s.status = StatusSubmitted
	}
	g := Graded{
		Info:           s.info,
		Outcome:        out,
		Reason:         reason,
		ElapsedSeconds: s.timer.Elapsed(),
		Missing:        missing,
		FinishedAt:     s.now(),
		Credential:     s.credential,
	}
	s.graded = &g
	if s.reporter != nil {
		s.report = ReportState{Status: "pending"}
	}
	return g, nil
}

// close tears the session down without grading. It reports true only when
// an active session was closed.
func (s *Session) close() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	if s.status != StatusActive {
		return false
	}
	s.timer.Stop()
	s.status = StatusClosed
	return true
}

func (s *Session) setReport(r ReportState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.report = r
}

func (s *Session) ReportState() ReportState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.report
}

func (s *Session) gradedCopy() (Graded, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.graded == nil {
		return Graded{}, false
	}
	return *s.graded, true
}

// View is the JSON shape the front end renders.
type View struct {
	ID           string           `json:"id"`
	LoadState    exam.LoadState   `json:"load_state"`
	Test         exam.Test        `json:"test"`
	Status       Status           `json:"status"`
	Timer        Timer            `json:"timer"`
	Passage      int              `json:"active_passage"`
	Highlighted  int              `json:"highlighted_question,omitempty"`
	PendingFocus int              `json:"pending_focus,omitempty"`
	Answers      map[int][]string `json:"answers"`
	Answered     []int            `json:"answered"`
	Result       *Graded          `json:"result,omitempty"`
	Report       *ReportState     `json:"report,omitempty"`
}

func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := View{
		ID:           s.info.SessionID,
		LoadState:    exam.LoadSuccess,
		Test:         s.test.StudentView(),
		Status:       s.status,
		Timer:        s.timer,
		Passage:      s.nav.Active(),
		Highlighted:  s.nav.Highlighted(),
		PendingFocus: s.nav.Pending(),
		Answers:      s.answers.Answers(),
		Answered:     s.answers.Answered(),
	}
	if s.graded != nil {
		g := *s.graded
		v.Result = &g
	}
	if s.report.Status != "" {
		r := s.report
		v.Report = &r
	}
	return v
}
