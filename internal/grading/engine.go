package grading

import (
	"github.com/mind-engage/ieltsprep/internal/exam"
)

// Key maps question_number to its accepted answers.
type Key map[int][]string

// Result maps question_number to correctness. It is never mutated after Grade
// returns it.
type Result map[int]bool

// Matcher decides whether a non-empty student answer matches the expected
// values for one question. Both sides are already normalized.
type Matcher interface {
	Match(expected, given []string) bool
}

// Option tunes how Grade compares answers.
type Option func(*config)

type config struct {
	types   map[int]exam.QuestionType
	ordered map[exam.QuestionType]bool
}

// WithQuestionTypes tells Grade the type of each question so per-type
// matchers can be selected. Without it every question uses containment.
func WithQuestionTypes(types map[int]exam.QuestionType) Option {
	return func(c *config) { c.types = types }
}

// WithOrderedTypes makes the listed question types compare positionally.
func WithOrderedTypes(types ...exam.QuestionType) Option {
	return func(c *config) {
		for _, t := range types {
			c.ordered[t] = true
		}
	}
}

// Grade returns one entry per question in key. An empty student answer is
// incorrect. Otherwise the answer is correct when the lengths match and every
// expected value (trimmed, lowercased) is present among the student values.
// Grade does not modify either map.
func Grade(key Key, student map[int][]string, opts ...Option) Result {
	cfg := &config{ordered: map[exam.QuestionType]bool{}}
	for _, o := range opts {
		o(cfg)
	}

	out := make(Result, len(key))
	for qn, expected := range key {
		given := student[qn]
		if len(given) == 0 {
			out[qn] = false
			continue
		}
		m := cfg.matcherFor(qn)
		out[qn] = m.Match(normalizeAll(expected), normalizeAll(given))
	}
	return out
}

// GradeTest grades against t's answer key with t's question types.
func GradeTest(t *exam.Test, student map[int][]string, opts ...Option) Result {
	types := map[int]exam.QuestionType{}
	for _, qn := range t.QuestionNumbers() {
		q, _ := t.Question(qn)
		types[qn] = q.Type
	}
	opts = append([]Option{WithQuestionTypes(types)}, opts...)
	return Grade(Key(t.AnswerKey()), student, opts...)
}

func (c *config) matcherFor(qn int) Matcher {
	if t, ok := c.types[qn]; ok && c.ordered[t] {
		return positional{}
	}
	return containment{}
}

type containment struct{}

func (containment) Match(expected, given []string) bool {
	if len(expected) != len(given) {
		return false
	}
	have := toSet(given)
	for _, e := range expected {
		if _, ok := have[e]; !ok {
			return false
		}
	}
	return true
}

type positional struct{}

func (positional) Match(expected, given []string) bool {
	if len(expected) != len(given) {
		return false
	}
	for i := range expected {
		if expected[i] != given[i] {
			return false
		}
	}
	return true
}

// Summary is the aggregate of a Result.
type Summary struct {
	Correct int `json:"correct"`
	Total   int `json:"total"`
}

func Summarize(r Result) Summary {
	s := Summary{Total: len(r)}
	for _, ok := range r {
		if ok {
			s.Correct++
		}
	}
	return s
}

func toSet(arr []string) map[string]struct{} {
	m := make(map[string]struct{}, len(arr))
	for _, s := range arr {
		m[s] = struct{}{}
	}
	return m
}
