package enrollment

import (
	"context"
	"time"

	"github.com/edusmart/assessment/core"
)

var (
	// errors
	ErrNotFound   = core.NewKindError(core.ErrNotFound, "enrollment not found")
	ErrSyncFailed = core.NewKindError(core.ErrDependencyFailure, "enrollment synchronization failed")
)

type (
	// Enrollment tracks a student's progress on a quiz of a course they are enrolled in.
	Enrollment struct {
		StudentID       string    `json:"student_id"`
		QuizID          string    `json:"quiz_id"`
		Completed       bool      `json:"completed"`
		ScorePercentage float64   `json:"score_percentage"`
		UpdatedAt       time.Time `json:"updated_at"`
	}

	Repository interface {
		// UpsertEnrollment creates or replaces the (StudentID, QuizID) enrollment,
		// unless the stored one was updated after e.UpdatedAt.
		UpsertEnrollment(ctx context.Context, e Enrollment) error
		GetEnrollment(ctx context.Context, studentID, quizID string) (Enrollment, error)
	}
)

// ScorePercentage is score*100/totalMarks, or 0 when there are no marks to earn.
func ScorePercentage(score, totalMarks int) float64 {
	if totalMarks <= 0 {
		return 0
	}
	return float64(score) * 100 / float64(totalMarks)
}
