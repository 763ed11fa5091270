package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	auth "github.com/mind-engage/ieltsprep/internal/auth/middleware"
	"github.com/mind-engage/ieltsprep/internal/rbac"
	"github.com/mind-engage/ieltsprep/internal/session"
)

// callerUser builds the session user from the authenticated claims.
func callerUser(r *http.Request) session.User {
	c := auth.ClaimsFromContext(r.Context())
	if c == nil {
		return session.User{}
	}
	return session.User{ID: c.Sub, Name: c.Name, Email: c.Email, Role: c.Role}
}

// ownedSession resolves {id}. Sessions of other users look missing unless the
// caller is an admin.
func ownedSession(w http.ResponseWriter, r *http.Request, mgr *session.Manager) (*session.Session, bool) {
	s, err := mgr.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	sub := auth.SubjectFromContext(r.Context())
	if s.Info().User.ID != sub && rbac.RoleFromContext(r.Context()) != rbac.RoleAdmin {
		writeError(w, session.ErrSessionNotFound)
		return nil, false
	}
	return s, true
}

// POST /api/sessions {slug}
func StartSessionHandler(mgr *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Slug string `json:"slug"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Slug) == "" {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "slug required"})
			return
		}
		s, err := mgr.Start(r.Context(), strings.TrimSpace(req.Slug), callerUser(r), auth.TokenFromRequest(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, s.View())
	}
}

func GetSessionHandler(mgr *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := ownedSession(w, r, mgr)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, s.View())
	}
}

// DELETE /api/sessions/{id} stops the timer without submitting.
func CloseSessionHandler(mgr *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := ownedSession(w, r, mgr)
		if !ok {
			return
		}
		if err := mgr.Close(r.Context(), s.ID()); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type answerResponse struct {
	QuestionNumber int      `json:"question_number"`
	Answer         []string `json:"answer"`
}

// PUT /api/sessions/{id}/answers/{qn} {value} or {values} for positional types.
func SetAnswerHandler(mgr *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := ownedSession(w, r, mgr)
		if !ok {
			return
		}
		qn, ok := intParam(w, r, "qn")
		if !ok {
			return
		}
		var req struct {
			Value  *string  `json:"value"`
			Values []string `json:"values"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		var err error
		switch {
		case req.Values != nil:
			err = s.SetAnswers(qn, req.Values)
		case req.Value != nil:
			err = s.SetAnswer(qn, *req.Value)
		default:
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "value or values required"})
			return
		}
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, answerResponse{QuestionNumber: qn, Answer: s.Answer(qn)})
	}
}

// POST /api/sessions/{id}/answers/{qn}/toggle {option, checked}
func ToggleAnswerHandler(mgr *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := ownedSession(w, r, mgr)
		if !ok {
			return
		}
		qn, ok := intParam(w, r, "qn")
		if !ok {
			return
		}
		var req struct {
			Option  string `json:"option"`
			Checked bool   `json:"checked"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		if err := s.ToggleAnswer(qn, req.Option, req.Checked); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, answerResponse{QuestionNumber: qn, Answer: s.Answer(qn)})
	}
}

type navigationResponse struct {
	ActivePassage       int `json:"active_passage"`
	HighlightedQuestion int `json:"highlighted_question,omitempty"`
}

// POST /api/sessions/{id}/passage {passage_number}
func SelectPassageHandler(mgr *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := ownedSession(w, r, mgr)
		if !ok {
			return
		}
		var req struct {
			Passage int `json:"passage_number"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		if err := s.SelectPassage(req.Passage); err != nil {
			writeError(w, err)
			return
		}
		v := s.View()
		writeJSON(w, http.StatusOK, navigationResponse{ActivePassage: v.Passage, HighlightedQuestion: v.Highlighted})
	}
}

// POST /api/sessions/{id}/focus {question_number}. The response is the
// committed state, so a passage switch and its focus land in one round trip.
func FocusQuestionHandler(mgr *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := ownedSession(w, r, mgr)
		if !ok {
			return
		}
		var req struct {
			Question int `json:"question_number"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		immediate, err := s.ScrollToQuestion(req.Question)
		if err != nil {
			writeError(w, err)
			return
		}
		if !immediate {
			s.Committed(s.View().Passage)
		}
		v := s.View()
		writeJSON(w, http.StatusOK, navigationResponse{ActivePassage: v.Passage, HighlightedQuestion: v.Highlighted})
	}
}

// POST /api/sessions/{id}/submit
func SubmitSessionHandler(mgr *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := ownedSession(w, r, mgr)
		if !ok {
			return
		}
		if _, err := mgr.Submit(r.Context(), s.ID()); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.View())
	}
}

// GET /api/sessions/{id}/report is the outcome of the one score save attempt.
func ReportStateHandler(mgr *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := ownedSession(w, r, mgr)
		if !ok {
			return
		}
		if s.View().Result == nil {
			writeError(w, session.ErrNotGraded)
			return
		}
		writeJSON(w, http.StatusOK, s.ReportState())
	}
}

// RetryReportHandler asks the reporter to save a graded session's score. The
// reporter is one-shot, so after the automatic save this answers 409.
func RetryReportHandler(mgr *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := ownedSession(w, r, mgr)
		if !ok {
			return
		}
		state, err := mgr.Report(r.Context(), s.ID())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, state)
	}
}
