package exam

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	ErrTestNotFound = errors.New("test not found")
	ErrInvalidTest  = errors.New("invalid test definition")
)

var questionTypes = map[QuestionType]bool{
	QMultipleChoice:      true,
	QFillInBlank:         true,
	QFillInBlankOptional: true,
	QTrueFalseNotGiven:   true,
	QMatching:            true,
	QMap:                 true,
	QCorrectOptional:     true,
}

var (
	validateOnce sync.Once
	structV      *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		structV = validator.New(validator.WithRequiredStructEnabled())
		_ = structV.RegisterValidation("question_type", func(fl validator.FieldLevel) bool {
			return questionTypes[QuestionType(fl.Field().String())]
		})
	})
	return structV
}

// Validate checks struct constraints and the numbering invariants: passage
// numbers are unique, question numbers are unique and contiguous from 1.
func Validate(t *Test) error {
	if t == nil {
		return fmt.Errorf("%w: nil test", ErrInvalidTest)
	}
	if err := structValidator().Struct(t); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTest, err)
	}

	passages := map[int]bool{}
	for _, p := range t.Passages {
		if passages[p.Number] {
			return fmt.Errorf("%w: duplicate passage_number %d", ErrInvalidTest, p.Number)
		}
		passages[p.Number] = true
	}

	seen := map[int]bool{}
	n := 0
	var dup error
	t.eachQuestion(func(_ int, q Question) {
		if seen[q.Number] && dup == nil {
			dup = fmt.Errorf("%w: duplicate question_number %d", ErrInvalidTest, q.Number)
		}
		seen[q.Number] = true
		n++
	})
	if dup != nil {
		return dup
	}
	if n == 0 {
		return fmt.Errorf("%w: test has no questions", ErrInvalidTest)
	}
	for i := 1; i <= n; i++ {
		if !seen[i] {
			return fmt.Errorf("%w: question numbers must be contiguous 1..%d, missing %d", ErrInvalidTest, n, i)
		}
	}
	return nil
}
