package session

import (
	"errors"
	"fmt"
	"sort"

	"github.com/mind-engage/ieltsprep/internal/exam"
)

var (
	ErrUnknownQuestion = errors.New("unknown question")
	ErrUnknownOption   = errors.New("unknown option")
	ErrAnswerKind      = errors.New("answer kind does not match question")
)

// AnswerStore holds a student's current answers keyed by question number.
// A question is answered iff its stored sequence is non-empty. It is not safe
// for concurrent use; Session serializes access.
type AnswerStore struct {
	questions map[int]exam.Question
	answers   map[int][]string
}

func NewAnswerStore(t *exam.Test) *AnswerStore {
	s := &AnswerStore{questions: map[int]exam.Question{}, answers: map[int][]string{}}
	for _, qn := range t.QuestionNumbers() {
		q, _ := t.Question(qn)
		s.questions[qn] = q
	}
	return s
}

// Set replaces the answer to a single-valued question. An empty value clears it.
func (s *AnswerStore) Set(qn int, value string) error {
	q, ok := s.questions[qn]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownQuestion, qn)
	}
	if exam.IsMultiSelect(q) {
		return fmt.Errorf("%w: question %d takes toggles", ErrAnswerKind, qn)
	}
	if value == "" {
		delete(s.answers, qn)
		return nil
	}
	s.answers[qn] = []string{value}
	return nil
}

// SetSequence replaces a positional answer, such as a matching item with
// several slots. Blank slots are kept; an all-blank sequence clears it.
func (s *AnswerStore) SetSequence(qn int, values []string) error {
	q, ok := s.questions[qn]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownQuestion, qn)
	}
	if exam.IsMultiSelect(q) {
		return fmt.Errorf("%w: question %d takes toggles", ErrAnswerKind, qn)
	}
	blank := true
	for _, v := range values {
		if v != "" {
			blank = false
			break
		}
	}
	if blank {
		delete(s.answers, qn)
		return nil
	}
	s.answers[qn] = append([]string(nil), values...)
	return nil
}

// Toggle checks or unchecks one option of a multi-select question. The stored
// sequence follows the question's option order, not the order of toggles.
func (s *AnswerStore) Toggle(qn int, option string, checked bool) error {
	q, ok := s.questions[qn]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownQuestion, qn)
	}
	if !exam.IsMultiSelect(q) {
		return fmt.Errorf("%w: question %d takes a single value", ErrAnswerKind, qn)
	}
	if len(q.Options) > 0 && indexOf(q.Options, option) < 0 {
		return fmt.Errorf("%w: %q on question %d", ErrUnknownOption, option, qn)
	}

	cur := s.answers[qn]
	has := indexOf(cur, option) >= 0
	switch {
	case checked && !has:
		cur = append(cur, option)
	case !checked && has:
		next := make([]string, 0, len(cur)-1)
		for _, v := range cur {
			if v != option {
				next = append(next, v)
			}
		}
		cur = next
	}
	if len(q.Options) > 0 {
		sort.SliceStable(cur, func(i, j int) bool {
			return indexOf(q.Options, cur[i]) < indexOf(q.Options, cur[j])
		})
	}

	if len(cur) == 0 {
		delete(s.answers, qn)
	} else {
		s.answers[qn] = cur
	}
	return nil
}

// Answers returns a copy of every non-empty answer.
func (s *AnswerStore) Answers() map[int][]string {
	out := make(map[int][]string, len(s.answers))
	for qn, v := range s.answers {
		out[qn] = append([]string(nil), v...)
	}
	return out
}

func (s *AnswerStore) IsAnswered(qn int) bool {
	return len(s.answers[qn]) > 0
}

// Answered returns the answered question numbers in ascending order.
func (s *AnswerStore) Answered() []int {
	out := make([]int, 0, len(s.answers))
	for qn, v := range s.answers {
		if len(v) > 0 {
			out = append(out, qn)
		}
	}
	sort.Ints(out)
	return out
}

// Missing returns the unanswered question numbers in ascending order.
func (s *AnswerStore) Missing() []int {
	var out []int
	for qn := range s.questions {
		if !s.IsAnswered(qn) {
			out = append(out, qn)
		}
	}
	sort.Ints(out)
	return out
}

func indexOf(list []string, v string) int {
	for i, s := range list {
		if s == v {
			return i
		}
	}
	return -1
}
