package attempt_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edusmart/assessment/core"
	"github.com/edusmart/assessment/core/attempt"
	"github.com/edusmart/assessment/core/quiz"
	"github.com/edusmart/assessment/core/student"
	"github.com/edusmart/assessment/tests"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func mockNow(t *testing.T) *clock {
	c := &clock{now: time.Date(2021, 3, 1, 9, 0, 0, 0, time.UTC)}
	attempt.NowFunc = c.Now
	t.Cleanup(func() { attempt.NowFunc = time.Now })
	return c
}

func TestService_StartOrResume(t *testing.T) {
	clk := mockNow(t)
	env := testutil.NewEnv(t)
	ctx := context.Background()
	qz, _ := env.CreateQuiz(t, 15, 0, 1, 1)
	alice := env.CreateStudent(t, "Alice")

	a, err := env.AttemptSvc.StartOrResume(ctx, qz.ID, alice.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, attempt.StatusInProgress, a.Status)
	assert.False(t, a.Completed)
	assert.Zero(t, a.Score)
	assert.Equal(t, 15, a.DurationMinutes)
	assert.True(t, a.StartedAt.Equal(clk.Now()))
	assert.Nil(t, a.CompletedAt)

	clk.Advance(time.Minute)
	resumed, err := env.AttemptSvc.StartOrResume(ctx, qz.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, resumed.ID)
	assert.True(t, resumed.StartedAt.Equal(a.StartedAt), "resuming keeps the original clock")

	tests := []struct {
		name      string
		quizID    string
		studentID string
		wantErr   error
	}{
		{name: "unknown quiz", quizID: "nope", studentID: alice.ID, wantErr: quiz.ErrNotFound},
		{name: "unknown student", quizID: qz.ID, studentID: "nope", wantErr: student.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.AttemptSvc.StartOrResume(ctx, tt.quizID, tt.studentID)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, core.ErrNotFound)
		})
	}
}

func TestService_StartOrResume_attemptLimit(t *testing.T) {
	mockNow(t)
	env := testutil.NewEnv(t)
	ctx := context.Background()
	limited, _ := env.CreateQuiz(t, 0, 2, 1)
	unlimited, _ := env.CreateQuiz(t, 0, 0, 1)
	bob := env.CreateStudent(t, "Bob")

	for i := 0; i < 2; i++ {
		a, err := env.AttemptSvc.StartOrResume(ctx, limited.ID, bob.ID)
		require.NoError(t, err)
		_, err = env.AttemptSvc.CompleteAttempt(ctx, a.ID, 1, 1)
		require.NoError(t, err)
	}
	_, err := env.AttemptSvc.StartOrResume(ctx, limited.ID, bob.ID)
	assert.ErrorIs(t, err, attempt.ErrAttemptLimitExceeded)
	assert.ErrorIs(t, err, core.ErrConflict)

	for i := 0; i < 5; i++ {
		a, err := env.AttemptSvc.StartOrResume(ctx, unlimited.ID, bob.ID)
		require.NoError(t, err)
		_, err = env.AttemptSvc.CompleteAttempt(ctx, a.ID, 0, 1)
		require.NoError(t, err)
	}
}

func TestService_StartOrResume_concurrent(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	qz, _ := env.CreateQuiz(t, 10, 1, 1)
	carol := env.CreateStudent(t, "Carol")

	const n = 20
	ids := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, err := env.AttemptSvc.StartOrResume(ctx, qz.ID, carol.ID)
			ids[i], errs[i] = a.ID, err
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	attempts, err := env.Attempts.QueryAttempts(ctx, attempt.QueryFilter{QuizID: qz.ID, StudentID: carol.ID}, nil)
	require.NoError(t, err)
	assert.Len(t, attempts, 1)
}

func TestService_CompleteAttempt(t *testing.T) {
	clk := mockNow(t)
	env := testutil.NewEnv(t)
	ctx := context.Background()
	qz, _ := env.CreateQuiz(t, 0, 0, 5)
	dan := env.CreateStudent(t, "Dan")

	a, err := env.AttemptSvc.StartOrResume(ctx, qz.ID, dan.ID)
	require.NoError(t, err)

	clk.Advance(time.Minute)
	first, err := env.AttemptSvc.CompleteAttempt(ctx, a.ID, 3, 5)
	require.NoError(t, err)
	assert.True(t, first.Completed)
	assert.Equal(t, attempt.StatusCompleted, first.Status)
	assert.Equal(t, 3, first.Score)
	if assert.NotNil(t, first.CompletedAt) {
		assert.True(t, first.CompletedAt.Equal(clk.Now()))
	}

	// a second completion overwrites the first one
	clk.Advance(time.Minute)
	second, err := env.AttemptSvc.CompleteAttempt(ctx, a.ID, 4, 5)
	require.NoError(t, err)
	assert.Equal(t, 4, second.Score)
	assert.True(t, second.CompletedAt.After(*first.CompletedAt))

	stored, err := env.AttemptSvc.GetAttempt(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, second, stored)

	enr, err := env.Sync.GetEnrollment(ctx, dan.ID, qz.ID)
	require.NoError(t, err)
	assert.True(t, enr.Completed)
	assert.InDelta(t, 80.0, enr.ScorePercentage, 0.001)

	_, err = env.AttemptSvc.CompleteAttempt(ctx, "nope", 1, 1)
	assert.ErrorIs(t, err, attempt.ErrNotFound)
}

func TestService_RemainingSeconds(t *testing.T) {
	clk := mockNow(t)
	env := testutil.NewEnv(t)
	ctx := context.Background()
	timed, _ := env.CreateQuiz(t, 10, 0, 1)
	untimed, _ := env.CreateQuiz(t, 0, 0, 1)
	erin := env.CreateStudent(t, "Erin")

	a, err := env.AttemptSvc.StartOrResume(ctx, timed.ID, erin.ID)
	require.NoError(t, err)
	u, err := env.AttemptSvc.StartOrResume(ctx, untimed.ID, erin.ID)
	require.NoError(t, err)

	tests := []struct {
		name      string
		attemptID string
		advance   time.Duration
		want      int64
	}{
		{name: "fresh", attemptID: a.ID, want: 600},
		{name: "partial elapsed seconds are dropped", attemptID: a.ID, advance: 90*time.Second + 500*time.Millisecond, want: 510},
		{name: "deadline", attemptID: a.ID, advance: 510 * time.Second, want: 0},
		{name: "overdue", attemptID: a.ID, advance: time.Hour, want: 0},
		{name: "untimed", attemptID: u.ID, want: attempt.Unlimited},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clk.Advance(tt.advance)
			got, err := env.AttemptSvc.RemainingSeconds(ctx, tt.attemptID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err = env.AttemptSvc.RemainingSeconds(ctx, "nope")
	assert.ErrorIs(t, err, attempt.ErrNotFound)
}

func TestService_ExpireIfOver(t *testing.T) {
	clk := mockNow(t)
	env := testutil.NewEnv(t)
	ctx := context.Background()
	qz, questions := env.CreateQuiz(t, 5, 0, 1, 1)
	frank := env.CreateStudent(t, "Frank")

	a, err := env.AttemptSvc.StartOrResume(ctx, qz.ID, frank.ID)
	require.NoError(t, err)
	_, err = env.AttemptSvc.RecordAnswer(ctx, frank.ID, a.ID, questions[0].ID, "A")
	require.NoError(t, err)

	clk.Advance(4 * time.Minute)
	expired, err := env.AttemptSvc.ExpireIfOver(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, expired)

	clk.Advance(time.Minute)
	const n = 10
	results := make([]bool, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := env.AttemptSvc.ExpireIfOver(ctx, a.ID)
			assert.NoError(t, err)
			results[i] = ok
		}(i)
	}
	wg.Wait()

	var count int
	for _, ok := range results {
		if ok {
			count++
		}
	}
	assert.Equal(t, 1, count, "exactly one caller expires the attempt")

	stored, err := env.AttemptSvc.GetAttempt(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, stored.Completed)
	assert.Equal(t, 0, stored.Score, "expiry keeps the current score")
	assert.True(t, env.Logger.Logged("info", "expired"))

	_, err = env.AttemptSvc.RecordAnswer(ctx, frank.ID, a.ID, questions[1].ID, "B")
	assert.ErrorIs(t, err, attempt.ErrAttemptCompleted)

	// untimed attempts never expire
	untimed, _ := env.CreateQuiz(t, 0, 0, 1)
	u, err := env.AttemptSvc.StartOrResume(ctx, untimed.ID, frank.ID)
	require.NoError(t, err)
	clk.Advance(24 * time.Hour)
	expired, err = env.AttemptSvc.ExpireIfOver(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, expired)
}

func TestService_RecordAnswer(t *testing.T) {
	mockNow(t)
	env := testutil.NewEnv(t)
	ctx := context.Background()
	qz, questions := env.CreateQuiz(t, 0, 0, 2, 3)
	other, otherQuestions := env.CreateQuiz(t, 0, 0, 1)
	grace := env.CreateStudent(t, "Grace")
	heidi := env.CreateStudent(t, "Heidi")

	active, err := env.AttemptSvc.StartOrResume(ctx, qz.ID, grace.ID)
	require.NoError(t, err)
	done, err := env.AttemptSvc.StartOrResume(ctx, other.ID, grace.ID)
	require.NoError(t, err)
	_, err = env.AttemptSvc.CompleteAttempt(ctx, done.ID, 0, 1)
	require.NoError(t, err)

	tests := []struct {
		name       string
		studentID  string
		attemptID  string
		questionID string
		selected   string
		wantErr    error
		wantOpt    quiz.Option
		wantRight  bool
	}{
		{name: "unknown attempt", studentID: grace.ID, attemptID: "nope", questionID: questions[0].ID, selected: "A", wantErr: attempt.ErrNotFound},
		{name: "not owner of a completed attempt", studentID: heidi.ID, attemptID: done.ID, questionID: otherQuestions[0].ID, selected: "A", wantErr: attempt.ErrNotOwner},
		{name: "completed attempt", studentID: grace.ID, attemptID: done.ID, questionID: otherQuestions[0].ID, selected: "A", wantErr: attempt.ErrAttemptCompleted},
		{name: "unknown question", studentID: grace.ID, attemptID: active.ID, questionID: "nope", selected: "A", wantErr: quiz.ErrQuestionNotFound},
		{name: "question of another quiz", studentID: grace.ID, attemptID: active.ID, questionID: otherQuestions[0].ID, selected: "A", wantErr: quiz.ErrQuestionNotFound},
		{name: "correct", studentID: grace.ID, attemptID: active.ID, questionID: questions[0].ID, selected: "a", wantOpt: quiz.OptionA, wantRight: true},
		{name: "wrong", studentID: grace.ID, attemptID: active.ID, questionID: questions[1].ID, selected: "D", wantOpt: quiz.OptionD},
		{name: "unreadable option", studentID: grace.ID, attemptID: active.ID, questionID: questions[1].ID, selected: "?", wantOpt: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ans, err := env.AttemptSvc.RecordAnswer(ctx, tt.studentID, tt.attemptID, tt.questionID, tt.selected)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, ans.ID)
			assert.Equal(t, tt.attemptID, ans.AttemptID)
			assert.Equal(t, tt.wantOpt, ans.SelectedOption)
			assert.Equal(t, tt.wantRight, ans.IsCorrect)
		})
	}

	count, err := env.AttemptSvc.AnswerCountByStudent(ctx, grace.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestService_Finalize(t *testing.T) {
	clk := mockNow(t)
	env := testutil.NewEnv(t)
	ctx := context.Background()
	qz, questions := env.CreateQuiz(t, 0, 0, 2, 3, 5) // correct: A, B, C
	ivan := env.CreateStudent(t, "Ivan")

	a, err := env.AttemptSvc.StartOrResume(ctx, qz.ID, ivan.ID)
	require.NoError(t, err)

	record := func(questionID, selected string) {
		clk.Advance(time.Second)
		_, err := env.AttemptSvc.RecordAnswer(ctx, ivan.ID, a.ID, questionID, selected)
		require.NoError(t, err)
	}
	record(questions[0].ID, "B")
	record(questions[1].ID, "B")
	record(questions[0].ID, "A") // the latest answer counts
	record(questions[1].ID, "C")

	_, err = env.AttemptSvc.Finalize(ctx, "someone-else", a.ID)
	assert.ErrorIs(t, err, attempt.ErrNotOwner)

	done, err := env.AttemptSvc.Finalize(ctx, ivan.ID, a.ID)
	require.NoError(t, err)
	assert.True(t, done.Completed)
	assert.Equal(t, 2, done.Score)
	assert.Equal(t, 10, done.TotalMarks, "unanswered questions count toward the total")

	_, err = env.AttemptSvc.Finalize(ctx, ivan.ID, a.ID)
	assert.ErrorIs(t, err, attempt.ErrAttemptCompleted)

	answers, err := env.AttemptSvc.AnswersByAttempt(ctx, ivan.ID, a.ID)
	require.NoError(t, err)
	assert.Len(t, answers, 4, "re-answers are kept")
}

func TestService_SubmitAnswers(t *testing.T) {
	mockNow(t)
	env := testutil.NewEnv(t)
	ctx := context.Background()
	qz, questions := env.CreateQuiz(t, 0, 0, 1, 2, 3, 4) // correct: A, B, C, D
	judy := env.CreateStudent(t, "Judy")

	a, err := env.AttemptSvc.StartOrResume(ctx, qz.ID, judy.ID)
	require.NoError(t, err)

	_, err = env.AttemptSvc.SubmitAnswers(ctx, judy.ID, a.ID, map[string]string{"nope": "A"})
	assert.ErrorIs(t, err, quiz.ErrQuestionNotFound)
	count, err := env.AttemptSvc.AnswerCountByStudent(ctx, judy.ID)
	require.NoError(t, err)
	assert.Zero(t, count, "nothing is recorded for a rejected sheet")

	sheet := map[string]string{
		questions[0].ID: "a",
		questions[1].ID: "C",
		questions[3].ID: " d ",
	}
	wantScore, wantTotal, err := env.AttemptSvc.ScoreSelections(ctx, qz.ID, sheet)
	require.NoError(t, err)
	assert.Equal(t, 5, wantScore)
	assert.Equal(t, 10, wantTotal)

	done, err := env.AttemptSvc.SubmitAnswers(ctx, judy.ID, a.ID, sheet)
	require.NoError(t, err)
	assert.True(t, done.Completed)
	assert.Equal(t, wantScore, done.Score)
	assert.Equal(t, wantTotal, done.TotalMarks)

	_, _, err = env.AttemptSvc.ScoreSelections(ctx, "nope", sheet)
	assert.ErrorIs(t, err, quiz.ErrNotFound)
}

func TestService_cacheInvalidation(t *testing.T) {
	mockNow(t)
	env := testutil.NewEnv(t)
	ctx := context.Background()
	qz1, _ := env.CreateQuiz(t, 0, 0, 1)
	qz2, _ := env.CreateQuiz(t, 0, 0, 1)
	kim := env.CreateStudent(t, "Kim")
	partition := core.StudentPartition(kim.ID)

	_, err := env.AttemptSvc.StartOrResume(ctx, qz1.ID, kim.ID)
	require.NoError(t, err)

	attempts, err := env.AttemptSvc.AttemptsByStudent(ctx, kim.ID, nil)
	require.NoError(t, err)
	assert.Len(t, attempts, 1)
	assert.Equal(t, 1, env.Cache.Len(partition))

	stats, err := env.AttemptSvc.QuizStats(ctx, qz2.ID)
	require.NoError(t, err)
	assert.Equal(t, attempt.Stats{}, stats)
	assert.Equal(t, 1, env.Cache.Len(core.QuizPartition(qz2.ID)))

	// starting an attempt evicts both the student's and the quiz's entries
	b, err := env.AttemptSvc.StartOrResume(ctx, qz2.ID, kim.ID)
	require.NoError(t, err)
	assert.Zero(t, env.Cache.Len(partition))
	assert.Zero(t, env.Cache.Len(core.QuizPartition(qz2.ID)))

	attempts, err = env.AttemptSvc.AttemptsByStudent(ctx, kim.ID, nil)
	require.NoError(t, err)
	assert.Len(t, attempts, 2)

	// so does completing it
	_, err = env.AttemptSvc.Finalize(ctx, kim.ID, b.ID)
	require.NoError(t, err)
	assert.Zero(t, env.Cache.Len(partition))

	completed, err := env.AttemptSvc.CompletedAttemptsByStudent(ctx, kim.ID)
	require.NoError(t, err)
	if assert.Len(t, completed, 1) {
		assert.Equal(t, b.ID, completed[0].ID)
	}
}

// pausingRepository holds the first QueryAttempts call once it has read from the store,
// until release is closed.
type pausingRepository struct {
	attempt.Repository
	once    sync.Once
	loaded  chan struct{}
	release chan struct{}
}

func (repo *pausingRepository) QueryAttempts(ctx context.Context, filter attempt.QueryFilter, ordering []core.DBOrdering) ([]attempt.Attempt, error) {
	attempts, err := repo.Repository.QueryAttempts(ctx, filter, ordering)
	repo.once.Do(func() {
		close(repo.loaded)
		<-repo.release
	})
	return attempts, err
}

func TestService_cacheConcurrentWrite(t *testing.T) {
	mockNow(t)
	env := testutil.NewEnv(t)
	ctx := context.Background()
	qz, _ := env.CreateQuiz(t, 0, 0, 1)
	ben := env.CreateStudent(t, "Ben")

	repo := &pausingRepository{Repository: env.Attempts, loaded: make(chan struct{}), release: make(chan struct{})}
	svc := attempt.NewService(attempt.Deps{
		Attempts:  repo,
		Answers:   env.Answers,
		Quizzes:   env.Catalog,
		Students:  env.Catalog,
		Cache:     env.Cache,
		Publisher: env.Sync,
		Logger:    env.Logger,
	})

	read := make(chan []attempt.Attempt)
	go func() {
		attempts, err := svc.AttemptsByStudent(ctx, ben.ID, nil)
		assert.NoError(t, err)
		read <- attempts
	}()

	// the reader has loaded no attempts and not cached them yet
	<-repo.loaded
	a, err := svc.StartOrResume(ctx, qz.ID, ben.ID)
	require.NoError(t, err)
	close(repo.release)
	assert.Empty(t, <-read)

	attempts, err := svc.AttemptsByStudent(ctx, ben.ID, nil)
	require.NoError(t, err)
	if assert.Len(t, attempts, 1, "a result loaded before the write must not be served after it") {
		assert.Equal(t, a.ID, attempts[0].ID)
	}
}

func TestService_leaderboard(t *testing.T) {
	clk := mockNow(t)
	env := testutil.NewEnv(t)
	ctx := context.Background()
	qz, _ := env.CreateQuiz(t, 0, 0, 10)

	complete := func(name string, score int) attempt.Attempt {
		stdt := env.CreateStudent(t, name)
		a, err := env.AttemptSvc.StartOrResume(ctx, qz.ID, stdt.ID)
		require.NoError(t, err)
		clk.Advance(time.Minute)
		a, err = env.AttemptSvc.CompleteAttempt(ctx, a.ID, score, 10)
		require.NoError(t, err)
		return a
	}
	early := complete("Early", 8)
	low := complete("Low", 4)
	late := complete("Late", 8)

	// still running: never ranked, but averaged with its score of 0
	leo := env.CreateStudent(t, "Leo")
	_, err := env.AttemptSvc.StartOrResume(ctx, qz.ID, leo.ID)
	require.NoError(t, err)

	top, err := env.AttemptSvc.TopScorers(ctx, qz.ID, 0)
	require.NoError(t, err)
	ids := make([]string, 0, len(top))
	for _, a := range top {
		ids = append(ids, a.ID)
	}
	assert.Equal(t, []string{early.ID, late.ID, low.ID}, ids)

	top, err = env.AttemptSvc.TopScorers(ctx, qz.ID, 1)
	require.NoError(t, err)
	if assert.Len(t, top, 1) {
		assert.Equal(t, early.ID, top[0].ID)
	}

	stats, err := env.AttemptSvc.QuizStats(ctx, qz.ID)
	require.NoError(t, err)
	assert.Equal(t, attempt.Stats{TotalAttempts: 4, CompletedAttempts: 3, AverageScore: 5, HighestScore: 8}, stats)

	_, err = env.AttemptSvc.QuizStats(ctx, "nope")
	assert.ErrorIs(t, err, quiz.ErrNotFound)
}

func TestService_latest(t *testing.T) {
	clk := mockNow(t)
	env := testutil.NewEnv(t)
	ctx := context.Background()
	qz1, q1 := env.CreateQuiz(t, 0, 0, 1)
	qz2, q2 := env.CreateQuiz(t, 0, 0, 1)
	mia := env.CreateStudent(t, "Mia")

	_, err := env.AttemptSvc.LatestAttemptByStudent(ctx, mia.ID)
	assert.ErrorIs(t, err, attempt.ErrNotFound)
	answers, err := env.AttemptSvc.LatestAnswersByStudent(ctx, mia.ID)
	require.NoError(t, err)
	assert.Empty(t, answers)

	first, err := env.AttemptSvc.StartOrResume(ctx, qz1.ID, mia.ID)
	require.NoError(t, err)
	_, err = env.AttemptSvc.RecordAnswer(ctx, mia.ID, first.ID, q1[0].ID, "A")
	require.NoError(t, err)

	clk.Advance(time.Minute)
	second, err := env.AttemptSvc.StartOrResume(ctx, qz2.ID, mia.ID)
	require.NoError(t, err)
	_, err = env.AttemptSvc.RecordAnswer(ctx, mia.ID, second.ID, q2[0].ID, "B")
	require.NoError(t, err)

	latest, err := env.AttemptSvc.LatestAttemptByStudent(ctx, mia.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)

	answers, err = env.AttemptSvc.LatestAnswersByStudent(ctx, mia.ID)
	require.NoError(t, err)
	if assert.Len(t, answers, 1) {
		assert.Equal(t, q2[0].ID, answers[0].QuestionID)
	}

	answers, err = env.AttemptSvc.AnswersByStudentAndQuiz(ctx, mia.ID, qz1.ID)
	require.NoError(t, err)
	if assert.Len(t, answers, 1) {
		assert.Equal(t, q1[0].ID, answers[0].QuestionID)
	}

	_, err = env.AttemptSvc.AnswersByAttempt(ctx, "someone-else", first.ID)
	assert.ErrorIs(t, err, attempt.ErrNotOwner)
}
