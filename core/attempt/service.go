package attempt

import (
	"context"
	"fmt"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/edusmart/assessment/core"
	"github.com/edusmart/assessment/core/quiz"
	"github.com/edusmart/assessment/core/student"
)

var NowFunc = time.Now // mockable

// maxStartTries bounds the resume-or-create loop of StartOrResume when concurrent starts keep colliding.
const maxStartTries = 3

type (
	Deps struct {
		Attempts  Repository
		Answers   AnswerRepository
		Quizzes   quiz.Repository
		Students  student.Directory
		Cache     core.Cache          // optional, defaults to core.NoopCache
		Publisher CompletionPublisher // optional
		Logger    core.Logger
	}

	// Service runs the attempt lifecycle: IN_PROGRESS --(complete | time out | finalize)--> COMPLETED.
	Service struct {
		repo      Repository
		answers   AnswerRepository
		quizzes   quiz.Repository
		students  student.Directory
		cache     core.Cache
		publisher CompletionPublisher
		logger    core.Logger
	}
)

func NewService(deps Deps) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(deps.Attempts, "Attempts"),
		vala.IsNotNil(deps.Answers, "Answers"),
		vala.IsNotNil(deps.Quizzes, "Quizzes"),
		vala.IsNotNil(deps.Students, "Students"),
		vala.IsNotNil(deps.Logger, "Logger"),
	).CheckAndPanic()

	svc := &Service{
		repo:      deps.Attempts,
		answers:   deps.Answers,
		quizzes:   deps.Quizzes,
		students:  deps.Students,
		cache:     deps.Cache,
		publisher: deps.Publisher,
		logger:    deps.Logger,
	}
	if svc.cache == nil {
		svc.cache = core.NoopCache()
	}
	if svc.publisher == nil {
		svc.publisher = Publishers(nil)
	}
	return svc
}

// StartOrResume returns the student's active attempt on the quiz, or starts a new one if the student
// has attempts left. Concurrent calls for the same student and quiz all end up with the same attempt.
func (svc *Service) StartOrResume(ctx context.Context, quizID, studentID string) (Attempt, error) {
	qz, err := svc.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return Attempt{}, errors.Wrap(err, "getting quiz")
	}
	if _, err = svc.students.GetStudent(ctx, studentID); err != nil {
		return Attempt{}, errors.Wrap(err, "getting student")
	}

	for try := 0; try < maxStartTries; try++ {
		a, err := svc.repo.GetActiveAttempt(ctx, quizID, studentID)
		if err == nil {
			return a, nil
		} else if !errors.Is(err, ErrNotFound) {
			return Attempt{}, errors.Wrap(err, "getting active attempt")
		}

		if qz.MaxAttempts > 0 {
			used, err := svc.repo.CountCompletedAttempts(ctx, quizID, studentID)
			if err != nil {
				return Attempt{}, errors.Wrap(err, "counting completed attempts")
			}
			if used >= qz.MaxAttempts {
				return Attempt{}, ErrAttemptLimitExceeded
			}
		}

		a, err = svc.repo.CreateAttempt(ctx, NewAttempt(qz, studentID, NowFunc()), qz.MaxAttempts)
		switch {
		case err == nil:
			svc.invalidate(ctx, a)
			return a, nil
		case errors.Is(err, ErrActiveAttemptExists):
			continue // lost the race; resume the winner's attempt
		case errors.Is(err, ErrAttemptLimitExceeded):
			return Attempt{}, ErrAttemptLimitExceeded
		default:
			return Attempt{}, errors.Wrap(err, "creating attempt")
		}
	}
	return Attempt{}, errors.Wrap(ErrActiveAttemptExists, "starting attempt")
}

// CompleteAttempt records the final score of an attempt. A second call overwrites score, totalMarks and completedAt;
// callers that must not re-grade use Finalize instead.
func (svc *Service) CompleteAttempt(ctx context.Context, attemptID string, score, totalMarks int) (Attempt, error) {
	a, err := svc.repo.GetAttempt(ctx, attemptID)
	if err != nil {
		return Attempt{}, errors.Wrap(err, "getting attempt")
	}

	a.Complete(score, totalMarks, NowFunc())
	if a, err = svc.repo.UpdateAttempt(ctx, a); err != nil {
		return Attempt{}, errors.Wrap(err, "updating attempt")
	}

	svc.completed(ctx, a)
	return a, nil
}

// RemainingSeconds returns the seconds left on the attempt clock, or Unlimited for untimed quizzes.
func (svc *Service) RemainingSeconds(ctx context.Context, attemptID string) (int64, error) {
	a, err := svc.repo.GetAttempt(ctx, attemptID)
	if err != nil {
		return 0, errors.Wrap(err, "getting attempt")
	}
	return a.RemainingSeconds(NowFunc()), nil
}

// ExpireIfOver completes the attempt with its current score if its time is up.
// It reports true only to the caller that actually expired the attempt.
func (svc *Service) ExpireIfOver(ctx context.Context, attemptID string) (bool, error) {
	a, err := svc.repo.GetAttempt(ctx, attemptID)
	if err != nil {
		return false, errors.Wrap(err, "getting attempt")
	}
	if a.Completed {
		return false, nil
	}

	now := NowFunc()
	if a.RemainingSeconds(now) > 0 {
		return false, nil
	}

	a.Complete(a.Score, a.TotalMarks, now)
	ok, err := svc.repo.CompleteIfActive(ctx, a)
	if err != nil {
		return false, errors.Wrap(err, "completing attempt")
	}
	if !ok {
		return false, nil // completed concurrently
	}

	svc.logger.Info(fmt.Sprintf("attempt %s expired", a.ID), map[string]interface{}{
		"attempt_id": a.ID,
		"quiz_id":    a.QuizID,
		"student_id": a.StudentID,
		"deadline":   a.Deadline(),
	})
	svc.completed(ctx, a)
	return true, nil
}

// Finalize grades the attempt from its recorded answers and completes it.
// The latest answer per question counts; unanswered questions score 0 but count toward the total.
func (svc *Service) Finalize(ctx context.Context, studentID, attemptID string) (Attempt, error) {
	a, err := svc.GetAttemptForStudent(ctx, studentID, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	if a.Completed {
		return Attempt{}, ErrAttemptCompleted
	}

	questions, err := svc.quizzes.GetQuestionsForQuiz(ctx, a.QuizID)
	if err != nil {
		return Attempt{}, errors.Wrap(err, "getting quiz questions")
	}
	answers, err := svc.answers.QueryAnswers(ctx, AnswerFilter{AttemptID: a.ID})
	if err != nil {
		return Attempt{}, errors.Wrap(err, "querying answers")
	}

	score, totalMarks := quiz.ScoreSelections(questions, LatestSelections(answers))
	a.Complete(score, totalMarks, NowFunc())
	ok, err := svc.repo.CompleteIfActive(ctx, a)
	if err != nil {
		return Attempt{}, errors.Wrap(err, "completing attempt")
	}
	if !ok {
		return Attempt{}, ErrAttemptCompleted
	}

	svc.completed(ctx, a)
	return a, nil
}

// SubmitAnswers records a whole answer sheet (question ID -> selected option) and finalizes the attempt.
func (svc *Service) SubmitAnswers(ctx context.Context, studentID, attemptID string, selections map[string]string) (Attempt, error) {
	a, err := svc.GetAttemptForStudent(ctx, studentID, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	if a.Completed {
		return Attempt{}, ErrAttemptCompleted
	}

	questions, err := svc.quizzes.GetQuestionsForQuiz(ctx, a.QuizID)
	if err != nil {
		return Attempt{}, errors.Wrap(err, "getting quiz questions")
	}
	known := make(map[string]bool, len(questions))
	for _, q := range questions {
		known[q.ID] = true
	}
	for qID := range selections {
		if !known[qID] {
			return Attempt{}, quiz.ErrQuestionNotFound
		}
	}

	// record in question order so answer timestamps follow the quiz layout
	for _, q := range questions {
		sel, ok := selections[q.ID]
		if !ok {
			continue
		}
		if _, err = svc.RecordAnswer(ctx, studentID, attemptID, q.ID, sel); err != nil {
			return Attempt{}, errors.Wrap(err, "recording answer")
		}
	}
	return svc.Finalize(ctx, studentID, attemptID)
}

// ScoreSelections grades a full answer sheet against the quiz without recording anything.
func (svc *Service) ScoreSelections(ctx context.Context, quizID string, selections map[string]string) (score, totalMarks int, err error) {
	if _, err = svc.quizzes.GetQuiz(ctx, quizID); err != nil {
		return 0, 0, errors.Wrap(err, "getting quiz")
	}
	questions, err := svc.quizzes.GetQuestionsForQuiz(ctx, quizID)
	if err != nil {
		return 0, 0, errors.Wrap(err, "getting quiz questions")
	}
	score, totalMarks = quiz.ScoreSelections(questions, selections)
	return score, totalMarks, nil
}

// completed runs the side effects of a persisted completion. They never fail the completion itself.
func (svc *Service) completed(ctx context.Context, a Attempt) {
	svc.invalidate(ctx, a)
	svc.publisher.Publish(completedEvent(a))
}

func (svc *Service) invalidate(ctx context.Context, a Attempt) {
	partitions := []core.CachePartition{core.StudentPartition(a.StudentID), core.QuizPartition(a.QuizID)}
	if err := svc.cache.Invalidate(ctx, partitions...); err != nil {
		svc.logger.Error(fmt.Sprintf("invalidating cache: %v", err), errors.Wrap(err, "invalidating cache"), map[string]interface{}{
			"partitions": partitions,
		})
	}
}
