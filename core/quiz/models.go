package quiz

import (
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/edusmart/assessment/core"
)

var (
	// errors
	ErrNotFound         = core.NewKindError(core.ErrNotFound, "quiz not found")
	ErrQuestionNotFound = core.NewKindError(core.ErrNotFound, "question not found")
)

// Option is an answer choice symbol: one of A, B, C or D.
type Option string

const (
	OptionA Option = "A"
	OptionB Option = "B"
	OptionC Option = "C"
	OptionD Option = "D"
)

var Options = []Option{OptionA, OptionB, OptionC, OptionD}

// NormalizeOption keeps the upper-cased first non-blank character of `s`.
// Anything that is not one of the four options yields the empty Option.
func NormalizeOption(s string) Option {
	s = core.CleanString(s)
	if s == "" {
		return ""
	}
	first := Option(unicode.ToUpper([]rune(s)[0]))
	for _, opt := range Options {
		if first == opt {
			return opt
		}
	}
	return ""
}

func (o Option) Valid() bool { return o != "" && NormalizeOption(string(o)) == o }

type (
	Quiz struct {
		ID              string `json:"id" db:"id"`
		CourseID        string `json:"course_id" db:"course_id"`
		Title           string `json:"title" db:"title"`
		DurationMinutes int    `json:"duration_minutes" db:"duration_minutes"` // 0 means untimed
		TotalMarks      int    `json:"total_marks" db:"total_marks"`
		MaxAttempts     int    `json:"max_attempts" db:"max_attempts"`
	}

	Question struct {
		ID            string    `json:"id"`
		QuizID        string    `json:"quiz_id"`
		Text          string    `json:"text"`
		Options       [4]string `json:"options"` // texts of A, B, C, D
		CorrectOption Option    `json:"-"`
		Marks         int       `json:"marks"`
	}

	// Repository gives read access to quiz definitions and their questions.
	Repository interface {
		GetQuiz(ctx context.Context, id string) (Quiz, error)
		GetQuestion(ctx context.Context, id string) (Question, error)
		// GetQuestionsForQuiz returns the quiz questions in their display order.
		GetQuestionsForQuiz(ctx context.Context, quizID string) ([]Question, error)
	}
)

func (q Quiz) IsTimed() bool { return q.DurationMinutes > 0 }

func (q Quiz) Duration() time.Duration { return time.Duration(q.DurationMinutes) * time.Minute }

// IsCorrect compares `selected` with the correct option, ignoring case and surrounding blanks.
func (q Question) IsCorrect(selected string) bool {
	sel := NormalizeOption(selected)
	return sel != "" && sel == NormalizeOption(string(q.CorrectOption))
}

// OptionText returns the text shown for `opt`, or "" for an invalid option.
func (q Question) OptionText(opt Option) string {
	i := strings.Index("ABCD", string(opt))
	if opt == "" || i < 0 {
		return ""
	}
	return q.Options[i]
}
