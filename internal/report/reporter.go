// Package report sends a graded session's score to the score-save API once.
package report

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/mind-engage/ieltsprep/internal/scores"
	"github.com/mind-engage/ieltsprep/internal/session"
)

var (
	ErrAlreadyAttempted = errors.New("score save already attempted for this session")
	ErrNotAuthenticated = errors.New("not authenticated")
)

// Outcome values passed to an OutcomeObserver.
const (
	OutcomeSaved        = "saved"
	OutcomeError        = "error"
	OutcomeUnauthorized = "unauthenticated"
)

// ScoreClient posts one score record.
type ScoreClient interface {
	SaveScore(ctx context.Context, rec scores.Record, credential string) (scores.SaveResponse, error)
}

// Identity is the answer of the "who am I" check.
type Identity struct {
	LoggedIn bool          `json:"loggedIn"`
	User     *session.User `json:"user,omitempty"`
}

type IdentityChecker interface {
	CheckLogin(ctx context.Context, credential string) (Identity, error)
}

type OutcomeObserver interface {
	ScoreReported(outcome string)
}

// Reporter saves the score of one session. Only the first Report call does
// any work; later calls return ErrAlreadyAttempted.
type Reporter struct {
	scores    ScoreClient
	identity  IdentityChecker
	observer  OutcomeObserver
	logger    *zap.Logger
	attempted atomic.Bool
}

func (r *Reporter) Report(ctx context.Context, g session.Graded) (session.ReportState, error) {
	if !r.attempted.CompareAndSwap(false, true) {
		return session.ReportState{}, ErrAlreadyAttempted
	}

	id, err := r.identity.CheckLogin(ctx, g.Credential)
	if err != nil {
		return r.fail(g, OutcomeError, fmt.Errorf("identity check: %w", err)), nil
	}
	if !id.LoggedIn {
		return r.fail(g, OutcomeUnauthorized, ErrNotAuthenticated), nil
	}

	user := g.User
	if id.User != nil {
		user = *id.User
	}
	rec := scores.Record{
		Name:     user.Name,
		Role:     user.Role,
		Email:    user.Email,
		TestName: g.TestTitle,
		TestType: string(g.TestType),
		Score:    g.Outcome.Band,
		Duration: g.ElapsedSeconds,
	}
	resp, err := r.scores.SaveScore(ctx, rec, g.Credential)
	if err != nil {
		return r.fail(g, OutcomeError, err), nil
	}
	if !resp.Success {
		msg := resp.Message
		if msg == "" {
			msg = "score was not saved"
		}
		return r.fail(g, OutcomeError, errors.New(msg)), nil
	}

	r.observe(OutcomeSaved)
	r.logger.Info("score saved",
		zap.String("session_id", g.SessionID),
		zap.String("email", rec.Email),
		zap.Float64("band", rec.Score))
	return session.ReportState{Status: OutcomeSaved, Message: resp.Message}, nil
}

func (r *Reporter) fail(g session.Graded, outcome string, err error) session.ReportState {
	r.observe(outcome)
	r.logger.Warn("score save failed", zap.String("session_id", g.SessionID), zap.Error(err))
	return session.ReportState{Status: "error", Message: err.Error()}
}

func (r *Reporter) observe(outcome string) {
	if r.observer != nil {
		r.observer.ScoreReported(outcome)
	}
}

// Factory builds a fresh Reporter for each session.
type Factory struct {
	Scores   ScoreClient
	Identity IdentityChecker
	Observer OutcomeObserver
	Logger   *zap.Logger
}

func (f Factory) New() *Reporter {
	logger := f.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reporter{scores: f.Scores, identity: f.Identity, observer: f.Observer, logger: logger}
}

// SessionReporter adapts New to session.WithReporter.
func (f Factory) SessionReporter() session.ScoreReporter {
	return f.New()
}
