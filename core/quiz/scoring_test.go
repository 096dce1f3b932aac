package quiz

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeOption(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Option
	}{
		{name: "empty", in: "", want: ""},
		{name: "blank", in: "   ", want: ""},
		{name: "upper", in: "B", want: OptionB},
		{name: "lower", in: "c", want: OptionC},
		{name: "padded", in: "  d ", want: OptionD},
		{name: "first letter only", in: "a) Paris", want: OptionA},
		{name: "out of range", in: "E", want: ""},
		{name: "digit", in: "1", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeOption(tt.in))
		})
	}
}

func TestQuestion_IsCorrect(t *testing.T) {
	q := Question{ID: "q1", CorrectOption: OptionB, Marks: 2}

	assert.True(t, q.IsCorrect("B"))
	assert.True(t, q.IsCorrect("b"))
	assert.True(t, q.IsCorrect(" b "))
	assert.False(t, q.IsCorrect("A"))
	assert.False(t, q.IsCorrect(""))
	assert.False(t, q.IsCorrect("z"))

	lowerKey := Question{ID: "q2", CorrectOption: "c", Marks: 1}
	assert.True(t, lowerKey.IsCorrect("C"), "the answer key is compared case-insensitively too")
}

func TestScore(t *testing.T) {
	q1 := Question{ID: "q1", CorrectOption: OptionA, Marks: 2}
	q2 := Question{ID: "q2", CorrectOption: OptionC, Marks: 3}
	q3 := Question{ID: "q3", CorrectOption: OptionD, Marks: 5}

	tests := []struct {
		name      string
		responses []Response
		wantScore int
		wantTotal int
	}{
		{name: "no questions", responses: nil, wantScore: 0, wantTotal: 0},
		{
			name:      "all correct",
			responses: []Response{{q1, "A"}, {q2, "C"}, {q3, "D"}},
			wantScore: 10, wantTotal: 10,
		},
		{
			name:      "mixed case selections",
			responses: []Response{{q1, "a"}, {q2, "c"}, {q3, "b"}},
			wantScore: 5, wantTotal: 10,
		},
		{
			name:      "unanswered questions still count toward total",
			responses: []Response{{q1, ""}, {q2, ""}, {q3, "D"}},
			wantScore: 5, wantTotal: 10,
		},
		{
			name:      "invalid symbols are wrong",
			responses: []Response{{q1, "X"}, {q2, "?"}},
			wantScore: 0, wantTotal: 5,
		},
		{
			name:      "all wrong",
			responses: []Response{{q1, "B"}, {q2, "D"}, {q3, "A"}},
			wantScore: 0, wantTotal: 10,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, total := Score(tt.responses)
			assert.Equal(t, tt.wantScore, score)
			assert.Equal(t, tt.wantTotal, total)
			assert.LessOrEqual(t, score, total)
		})
	}
}

func TestScoreSelections(t *testing.T) {
	questions := []Question{
		{ID: "q1", CorrectOption: OptionA, Marks: 1},
		{ID: "q2", CorrectOption: OptionB, Marks: 1},
		{ID: "q3", CorrectOption: OptionC, Marks: 2},
	}

	score, total := ScoreSelections(questions, map[string]string{
		"q1":      "a",
		"q3":      "C",
		"unknown": "A",
	})
	assert.Equal(t, 3, score)
	assert.Equal(t, 4, total)

	score, total = ScoreSelections(questions, nil)
	assert.Equal(t, 0, score)
	assert.Equal(t, 4, total)
}
