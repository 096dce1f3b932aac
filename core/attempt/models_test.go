package attempt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/edusmart/assessment/core/quiz"
)

func TestLatestSelections(t *testing.T) {
	t0 := time.Date(2021, 3, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		answers []Answer
		want    map[string]string
	}{
		{name: "no answers", want: map[string]string{}},
		{
			name: "latest wins",
			answers: []Answer{
				{QuestionID: "q1", SelectedOption: quiz.OptionB, AnsweredAt: t0},
				{QuestionID: "q2", SelectedOption: quiz.OptionC, AnsweredAt: t0.Add(time.Second)},
				{QuestionID: "q1", SelectedOption: quiz.OptionA, AnsweredAt: t0.Add(2 * time.Second)},
			},
			want: map[string]string{"q1": "A", "q2": "C"},
		},
		{
			name: "out of order input",
			answers: []Answer{
				{QuestionID: "q1", SelectedOption: quiz.OptionD, AnsweredAt: t0.Add(time.Minute)},
				{QuestionID: "q1", SelectedOption: quiz.OptionA, AnsweredAt: t0},
			},
			want: map[string]string{"q1": "D"},
		},
		{
			name: "ties keep the last recorded",
			answers: []Answer{
				{QuestionID: "q1", SelectedOption: quiz.OptionA, AnsweredAt: t0},
				{QuestionID: "q1", SelectedOption: quiz.OptionB, AnsweredAt: t0},
			},
			want: map[string]string{"q1": "B"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LatestSelections(tt.answers))
		})
	}
}

func TestComputeStats(t *testing.T) {
	tests := []struct {
		name     string
		attempts []Attempt
		want     Stats
	}{
		{name: "no attempts", want: Stats{}},
		{
			name:     "only running attempts",
			attempts: []Attempt{{Score: 0}, {Score: 0}},
			want:     Stats{TotalAttempts: 2},
		},
		{
			name:     "zero scores",
			attempts: []Attempt{{Completed: true}, {Completed: true}},
			want:     Stats{TotalAttempts: 2, CompletedAttempts: 2},
		},
		{
			name:     "mixed",
			attempts: []Attempt{{Completed: true, Score: 3}, {Completed: true, Score: 6}, {Score: 0}},
			want:     Stats{TotalAttempts: 3, CompletedAttempts: 2, AverageScore: 3, HighestScore: 6},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComputeStats(tt.attempts))
		})
	}
}

func TestAttempt_clock(t *testing.T) {
	t0 := time.Date(2021, 3, 1, 9, 0, 0, 0, time.UTC)
	qz := quiz.Quiz{ID: "qz", DurationMinutes: 2}
	a := NewAttempt(qz, "stdt", t0)

	assert.True(t, a.IsTimed())
	assert.Equal(t, t0.Add(2*time.Minute), a.Deadline())
	assert.Equal(t, int64(120), a.RemainingSeconds(t0))
	assert.Equal(t, int64(119), a.RemainingSeconds(t0.Add(time.Second)))

	// the quiz duration is snapshotted when the attempt starts
	qz.DurationMinutes = 60
	assert.Equal(t, int64(0), a.RemainingSeconds(t0.Add(2*time.Minute)))

	// completion does not stop the clock
	a.Complete(1, 1, t0.Add(time.Minute))
	assert.Equal(t, int64(60), a.RemainingSeconds(t0.Add(time.Minute)))

	untimed := NewAttempt(quiz.Quiz{ID: "qz"}, "stdt", t0)
	assert.False(t, untimed.IsTimed())
	assert.True(t, untimed.Deadline().IsZero())
	assert.Equal(t, Unlimited, untimed.RemainingSeconds(t0.Add(1000*time.Hour)))
}
