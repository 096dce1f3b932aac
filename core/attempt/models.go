package attempt

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/edusmart/assessment/core"
	"github.com/edusmart/assessment/core/quiz"
)

// Unlimited is what RemainingSeconds reports for untimed quizzes.
const Unlimited int64 = math.MaxInt64

var (
	// errors
	ErrNotFound             = core.NewKindError(core.ErrNotFound, "attempt not found")
	ErrNotOwner             = core.NewKindError(core.ErrForbidden, "attempt does not belong to this student")
	ErrAttemptCompleted     = core.NewKindError(core.ErrConflict, "attempt already completed")
	ErrAttemptLimitExceeded = core.NewKindError(core.ErrConflict, "maximum number of attempts reached")
	// ErrActiveAttemptExists is returned by Repository.CreateAttempt when the student already has an active
	// attempt on the quiz, typically because a concurrent start won the race.
	ErrActiveAttemptExists = core.NewKindError(core.ErrConflict, "an attempt is already in progress")
)

type Status string

const (
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
)

type (
	Attempt struct {
		ID              string     `json:"id"`
		QuizID          string     `json:"quiz_id"`
		StudentID       string     `json:"student_id"`
		Score           int        `json:"score"`
		TotalMarks      int        `json:"total_marks"`
		Completed       bool       `json:"completed"`
		Status          Status     `json:"status"`
		DurationMinutes int        `json:"duration_minutes"` // quiz duration when the attempt started; 0 is untimed
		StartedAt       time.Time  `json:"started_at"`
		CompletedAt     *time.Time `json:"completed_at"`
	}

	Answer struct {
		ID             string      `json:"id"`
		AttemptID      string      `json:"attempt_id"`
		QuestionID     string      `json:"question_id"`
		SelectedOption quiz.Option `json:"selected_option"`
		IsCorrect      bool        `json:"is_correct"`
		AnsweredAt     time.Time   `json:"answered_at"`
	}

	// QueryFilter applies AND operation on its set fields.
	QueryFilter struct {
		StudentID string
		QuizID    string
		Completed *bool
	}

	// AnswerFilter applies AND operation on its set fields.
	AnswerFilter struct {
		AttemptID string
		StudentID string
		QuizID    string
	}

	Repository interface {
		// CreateAttempt atomically inserts `a` unless the student already has an active attempt on the quiz
		// (ErrActiveAttemptExists) or has used up maxAttempts (ErrAttemptLimitExceeded).
		CreateAttempt(ctx context.Context, a Attempt, maxAttempts int) (Attempt, error)
		GetAttempt(ctx context.Context, id string) (Attempt, error)
		GetActiveAttempt(ctx context.Context, quizID, studentID string) (Attempt, error)
		CountCompletedAttempts(ctx context.Context, quizID, studentID string) (int, error)
		// QueryAttempts defaults to the most recently started first.
		QueryAttempts(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering) ([]Attempt, error)
		// TopScorers returns the best completed attempts of a quiz: highest score first, earliest completion on ties.
		TopScorers(ctx context.Context, quizID string, limit int) ([]Attempt, error)
		// UpdateAttempt persists the completion fields of `a`.
		UpdateAttempt(ctx context.Context, a Attempt) (Attempt, error)
		// CompleteIfActive persists the completion fields of `a` only if the stored attempt is not completed yet.
		// It reports whether the update happened.
		CompleteIfActive(ctx context.Context, a Attempt) (bool, error)
	}

	AnswerRepository interface {
		CreateAnswer(ctx context.Context, ans Answer) (Answer, error)
		// QueryAnswers returns answers ordered by AnsweredAt, oldest first.
		QueryAnswers(ctx context.Context, filter AnswerFilter) ([]Answer, error)
		CountAnswers(ctx context.Context, filter AnswerFilter) (int, error)
	}
)

// NewAttempt starts an attempt of `qz` for `studentID` at `now`.
func NewAttempt(qz quiz.Quiz, studentID string, now time.Time) Attempt {
	return Attempt{
		QuizID:          qz.ID,
		StudentID:       studentID,
		Status:          StatusInProgress,
		DurationMinutes: qz.DurationMinutes,
		StartedAt:       now.UTC(),
	}
}

// Complete moves the attempt to its terminal state. Calling it again overwrites the score and completion time.
func (a *Attempt) Complete(score, totalMarks int, now time.Time) {
	completedAt := now.UTC()
	a.Score = score
	a.TotalMarks = totalMarks
	a.Completed = true
	a.Status = StatusCompleted
	a.CompletedAt = &completedAt
}

func (a Attempt) IsActive() bool { return !a.Completed }

func (a Attempt) IsTimed() bool { return a.DurationMinutes > 0 }

// RemainingSeconds returns the seconds left at `now`, floored at 0, or Unlimited for untimed attempts.
func (a Attempt) RemainingSeconds(now time.Time) int64 {
	if !a.IsTimed() {
		return Unlimited
	}
	elapsed := int64(now.Sub(a.StartedAt) / time.Second)
	remaining := int64(a.DurationMinutes)*60 - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Deadline is the instant a timed attempt runs out of time; zero for untimed attempts.
func (a Attempt) Deadline() time.Time {
	if !a.IsTimed() {
		return time.Time{}
	}
	return a.StartedAt.Add(time.Duration(a.DurationMinutes) * time.Minute)
}

// LatestSelections keeps, per question, the option of the most recent answer.
// Answers with equal AnsweredAt resolve to the one recorded last.
func LatestSelections(answers []Answer) map[string]string {
	sorted := make([]Answer, len(answers))
	copy(sorted, answers)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].AnsweredAt.Before(sorted[j].AnsweredAt) })

	selections := make(map[string]string, len(sorted))
	for _, ans := range sorted {
		selections[ans.QuestionID] = string(ans.SelectedOption)
	}
	return selections
}

// Stats aggregates the attempts of a quiz. Running attempts count with their current score.
type Stats struct {
	TotalAttempts     int     `json:"total_attempts"`
	CompletedAttempts int     `json:"completed_attempts"`
	AverageScore      float64 `json:"average_score"`
	HighestScore      int     `json:"highest_score"`
}

func ComputeStats(attempts []Attempt) Stats {
	stats := Stats{TotalAttempts: len(attempts)}
	var sum int
	for i, a := range attempts {
		if a.Completed {
			stats.CompletedAttempts++
		}
		if i == 0 || a.Score > stats.HighestScore {
			stats.HighestScore = a.Score
		}
		sum += a.Score
	}
	if len(attempts) > 0 {
		stats.AverageScore = float64(sum) / float64(len(attempts))
	}
	return stats
}
