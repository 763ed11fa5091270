package exam

import "sort"

type TestType string

const (
	TypeReading   TestType = "reading"
	TypeListening TestType = "listening"
)

type Level string

const (
	LevelAcademic Level = "academic"
	LevelGeneral  Level = "general"
)

type QuestionType string

const (
	QMultipleChoice      QuestionType = "multiple-choice"
	QFillInBlank         QuestionType = "fill-in-blank"
	QFillInBlankOptional QuestionType = "fill-in-blank-optional"
	QTrueFalseNotGiven   QuestionType = "true-false-not-given"
	QMatching            QuestionType = "matching"
	QMap                 QuestionType = "map"
	QCorrectOptional     QuestionType = "correct-optional"
)

// ContentType tells the front end how to render a Content value.
type ContentType string

const (
	ContentText  ContentType = "text"
	ContentImage ContentType = "image"
	ContentHTML  ContentType = "html"
)

type Content struct {
	Type  ContentType `json:"type" validate:"required,oneof=text image html"`
	Value string      `json:"value"`
}

type Question struct {
	Number  int          `json:"question_number" validate:"gt=0"`
	Type    QuestionType `json:"question_type" validate:"required,question_type"`
	Text    string       `json:"question_text"`
	Options []string     `json:"options,omitempty"`
	Answer  []string     `json:"answer,omitempty"` // accepted values; positional for matching

	// MultiSelect is only filled in on student views, where Answer is gone.
	MultiSelect bool `json:"multi_select,omitempty"`
}

type QuestionGroup struct {
	Title       string     `json:"title,omitempty"`
	Instruction string     `json:"instruction,omitempty"`
	Content     *Content   `json:"content,omitempty"`
	GivenWords  []string   `json:"given_words,omitempty"`
	Questions   []Question `json:"questions" validate:"dive"`
}

type Passage struct {
	Number   int             `json:"passage_number" validate:"gt=0"`
	Title    string          `json:"title,omitempty"`
	Content  *Content        `json:"content,omitempty"`
	AudioURL string          `json:"audio_url,omitempty"`
	Groups   []QuestionGroup `json:"question_groups" validate:"dive"`
}

// Test is immutable once loaded for a session.
type Test struct {
	Slug     string    `json:"slug" validate:"required"`
	Type     TestType  `json:"type" validate:"required,oneof=reading listening"`
	Level    Level     `json:"level" validate:"required,oneof=academic general"`
	Title    string    `json:"title" validate:"required"`
	Duration int       `json:"duration" validate:"gt=0"` // minutes
	Passages []Passage `json:"passages" validate:"required,min=1,dive"`
}

type TestSummary struct {
	Slug     string   `json:"slug"`
	Type     TestType `json:"type"`
	Level    Level    `json:"level"`
	Title    string   `json:"title"`
	Duration int      `json:"duration"`
}

func (t *Test) Summary() TestSummary {
	return TestSummary{Slug: t.Slug, Type: t.Type, Level: t.Level, Title: t.Title, Duration: t.Duration}
}

// AnswerKey maps question_number to its accepted answers.
func (t *Test) AnswerKey() map[int][]string {
	key := make(map[int][]string)
	t.eachQuestion(func(_ int, q Question) {
		key[q.Number] = append([]string(nil), q.Answer...)
	})
	return key
}

// QuestionNumbers returns every question number in ascending order.
func (t *Test) QuestionNumbers() []int {
	var out []int
	t.eachQuestion(func(_ int, q Question) { out = append(out, q.Number) })
	sort.Ints(out)
	return out
}

// Question looks up a question by number.
func (t *Test) Question(number int) (Question, bool) {
	var (
		found Question
		ok    bool
	)
	t.eachQuestion(func(_ int, q Question) {
		if q.Number == number {
			found, ok = q, true
		}
	})
	return found, ok
}

// PassageOf returns the passage number holding the question, or 0.
func (t *Test) PassageOf(number int) int {
	p := 0
	t.eachQuestion(func(passage int, q Question) {
		if q.Number == number {
			p = passage
		}
	})
	return p
}

func (t *Test) HasPassage(n int) bool {
	for _, p := range t.Passages {
		if p.Number == n {
			return true
		}
	}
	return false
}

// FirstPassage is the passage shown when a session starts.
func (t *Test) FirstPassage() int {
	first := 0
	for _, p := range t.Passages {
		if first == 0 || p.Number < first {
			first = p.Number
		}
	}
	return first
}

// StudentView returns a deep copy with every answer stripped.
func (t *Test) StudentView() Test {
	out := *t
	out.Passages = make([]Passage, len(t.Passages))
	for i, p := range t.Passages {
		p.Groups = make([]QuestionGroup, len(t.Passages[i].Groups))
		for j, g := range t.Passages[i].Groups {
			qs := make([]Question, len(g.Questions))
			for k, q := range g.Questions {
				q.MultiSelect = IsMultiSelect(q)
				q.Answer = nil
				qs[k] = q
			}
			g.Questions = qs
			p.Groups[j] = g
		}
		out.Passages[i] = p
	}
	return out
}

// IsMultiSelect reports whether answers to q are captured as a set of
// checked options rather than a single value.
func IsMultiSelect(q Question) bool {
	return q.MultiSelect || (q.Type == QMultipleChoice && len(q.Answer) > 1)
}

func (t *Test) eachQuestion(fn func(passage int, q Question)) {
	for _, p := range t.Passages {
		for _, g := range p.Groups {
			for _, q := range g.Questions {
				fn(p.Number, q)
			}
		}
	}
}
