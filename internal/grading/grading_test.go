package grading_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/ieltsprep/internal/exam"
	"github.com/mind-engage/ieltsprep/internal/exam/examtest"
	"github.com/mind-engage/ieltsprep/internal/grading"
)

func TestGradeRules(t *testing.T) {
	key := grading.Key{
		1: {"Paris"},
		2: {"B", "D"},
		3: {"iii", "i"},
		4: {"river"},
		5: {"A"},
	}
	student := map[int][]string{
		1: {"Paris "},
		2: {"d", " b"},
		3: {"i", "iii"},
		4: {},
		5: {"A", "C"},
	}

	got := grading.Grade(key, student)
	assert.Equal(t, grading.Result{1: true, 2: true, 3: true, 4: false, 5: false}, got)
}

func TestGradeCases(t *testing.T) {
	tests := []struct {
		name     string
		expected []string
		given    []string
		want     bool
	}{
		{"case and whitespace", []string{"paris"}, []string{"Paris "}, true},
		{"unanswered", []string{"paris"}, nil, false},
		{"subset of multi", []string{"B", "D"}, []string{"B"}, false},
		{"superset", []string{"B"}, []string{"B", "D"}, false},
		{"inner spacing matters", []string{"new york"}, []string{"new  york"}, false},
		{"duplicate student values", []string{"a", "b"}, []string{"a", "a"}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := grading.Grade(grading.Key{1: tc.expected}, map[int][]string{1: tc.given})
			assert.Equal(t, tc.want, got[1])
		})
	}
}

func TestGradeOneEntryPerKey(t *testing.T) {
	tt := examtest.Listening("keys", 30)
	student := map[int][]string{1: {"answer 1"}, 99: {"stray"}}

	got := grading.GradeTest(tt, student)
	require.Len(t, got, 40)
	_, extra := got[99]
	assert.False(t, extra)
	assert.True(t, got[1])
}

func TestGradeIsPure(t *testing.T) {
	tt := examtest.Listening("pure", 30)
	student := examtest.Answers(tt)
	student[6] = []string{"D", "B"}
	before := map[int][]string{6: append([]string(nil), student[6]...)}

	a := grading.GradeTest(tt, student)
	b := grading.GradeTest(tt, student)
	assert.Equal(t, a, b)
	assert.Equal(t, before[6], student[6])
	assert.Equal(t, 40, grading.Summarize(a).Correct)
}

func TestOrderedMatching(t *testing.T) {
	tt := examtest.Listening("ordered", 30)
	student := examtest.Answers(tt)
	student[15] = []string{"i", "iii"}
	student[6] = []string{"D", "B"}

	loose := grading.GradeTest(tt, student)
	assert.True(t, loose[15])

	strict := grading.GradeTest(tt, student, grading.WithOrderedTypes(exam.QMatching))
	assert.False(t, strict[15])
	// multiple choice stays order-independent
	assert.True(t, strict[6])
}

func TestLegacyBandTable(t *testing.T) {
	tests := []struct {
		correct int
		want    float64
	}{
		{0, 0}, {1, 0}, {2, 0},
		{3, 2.5}, {4, 2.5},
		{5, 3.0}, {7, 3.0},
		{12, 4.0}, {22, 5.5}, {29, 6.5},
		{35, 8.0}, {36, 8.0},
		{38, 8.5},
		{39, 0},
		{40, 9.0},
		{41, 0},
	}
	for _, tc := range tests {
		got, err := grading.BandFor(grading.ScaleLegacy, tc.correct)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "correct=%d", tc.correct)
	}
}

func TestBandTablesMonotonic(t *testing.T) {
	for _, name := range []string{
		grading.ScaleLegacyFixed,
		grading.ScaleListening,
		grading.ScaleReadingAcademic,
		grading.ScaleReadingGeneral,
	} {
		prev := 0.0
		for c := 0; c <= 40; c++ {
			b, err := grading.BandFor(name, c)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, b, prev, "%s at %d", name, c)
			prev = b
		}
		assert.Equal(t, 9.0, prev, name)
	}

	fixed, _ := grading.BandFor(grading.ScaleLegacyFixed, 39)
	assert.Equal(t, 9.0, fixed)
	general, _ := grading.BandFor(grading.ScaleReadingGeneral, 39)
	assert.Equal(t, 8.5, general)
}

func TestUnknownScale(t *testing.T) {
	_, err := grading.BandFor("toefl", 10)
	assert.Error(t, err)
	assert.Contains(t, grading.ScaleNames(), grading.ScaleLegacy)
}

func TestPolicyEvaluate(t *testing.T) {
	tt := examtest.Listening("policy", 30)
	student := examtest.Answers(tt)
	delete(student, 40)

	out, err := grading.Policy{}.Evaluate(tt, student)
	require.NoError(t, err)
	assert.Equal(t, grading.Summary{Correct: 39, Total: 40}, out.Summary)
	assert.Equal(t, grading.ScaleLegacy, out.Scale)
	assert.Equal(t, 0.0, out.Band)

	p := grading.Policy{Scales: map[exam.TestType]string{exam.TypeListening: grading.ScaleListening}}
	out, err = p.Evaluate(tt, student)
	require.NoError(t, err)
	assert.Equal(t, 9.0, out.Band)

	_, err = grading.Policy{Scales: map[exam.TestType]string{exam.TypeListening: "nope"}}.Evaluate(tt, student)
	assert.Error(t, err)
}
