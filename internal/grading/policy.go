package grading

import (
	"github.com/mind-engage/ieltsprep/internal/exam"
)

// Policy selects the comparison options and band scale used for a test.
type Policy struct {
	OrderedMatching bool
	Scales          map[exam.TestType]string // falls back to ScaleLegacy
}

// Outcome is a graded answer sheet.
type Outcome struct {
	Result  Result  `json:"result"`
	Summary Summary `json:"summary"`
	Band    float64 `json:"band"`
	Scale   string  `json:"scale"`
}

func (p Policy) ScaleFor(typ exam.TestType) string {
	if name := p.Scales[typ]; name != "" {
		return name
	}
	return ScaleLegacy
}

// Evaluate grades student against t and converts the correct count to a band.
func (p Policy) Evaluate(t *exam.Test, student map[int][]string) (Outcome, error) {
	var opts []Option
	if p.OrderedMatching {
		opts = append(opts, WithOrderedTypes(exam.QMatching))
	}
	res := GradeTest(t, student, opts...)
	sum := Summarize(res)
	scale := p.ScaleFor(t.Type)
	band, err := BandFor(scale, sum.Correct)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Result: res, Summary: sum, Band: band, Scale: scale}, nil
}
