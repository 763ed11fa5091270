// Package examtest builds test definitions for unit tests.
package examtest

import (
	"fmt"

	"github.com/mind-engage/ieltsprep/internal/exam"
)

// Listening returns a valid 40-question listening test: four passages of ten
// questions. Question 6 is a multi-select multiple-choice item accepting
// "B" and "D"; question 15 is a matching item with answer ["iii", "i"];
// every other answer is "answer N".
func Listening(slug string, durationMin int) *exam.Test {
	t := &exam.Test{
		Slug:     slug,
		Type:     exam.TypeListening,
		Level:    exam.LevelAcademic,
		Title:    "Listening " + slug,
		Duration: durationMin,
	}
	n := 1
	for p := 1; p <= 4; p++ {
		g := exam.QuestionGroup{Instruction: fmt.Sprintf("Questions %d-%d", n, n+9)}
		for i := 0; i < 10; i++ {
			g.Questions = append(g.Questions, question(n))
			n++
		}
		t.Passages = append(t.Passages, exam.Passage{
			Number:   p,
			Title:    fmt.Sprintf("Section %d", p),
			AudioURL: fmt.Sprintf("/media/audio/%s/%d.mp3", slug, p),
			Groups:   []exam.QuestionGroup{g},
		})
	}
	return t
}

// Answers returns a fully correct answer sheet for a Listening fixture.
func Answers(t *exam.Test) map[int][]string {
	return t.AnswerKey()
}

func question(n int) exam.Question {
	switch n {
	case 6:
		return exam.Question{
			Number:  n,
			Type:    exam.QMultipleChoice,
			Text:    "Choose TWO letters",
			Options: []string{"A", "B", "C", "D", "E"},
			Answer:  []string{"B", "D"},
		}
	case 15:
		return exam.Question{
			Number:  n,
			Type:    exam.QMatching,
			Text:    "Match the headings",
			Options: []string{"i", "ii", "iii"},
			Answer:  []string{"iii", "i"},
		}
	default:
		return exam.Question{
			Number: n,
			Type:   exam.QFillInBlank,
			Text:   fmt.Sprintf("Question %d", n),
			Answer: []string{fmt.Sprintf("answer %d", n)},
		}
	}
}
