package echoapi

import (
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/edusmart/assessment/core"
	"github.com/edusmart/assessment/core/attempt"
	"github.com/edusmart/assessment/core/quiz"
)

var (
	contextObjectKey = "object"

	errAttemptNotFoundInCtx = errors.New("attempt object not found in echo.Context")
	errScoreAboveTotal      = "cannot exceed total_marks"
)

type attemptApi struct {
	svc         *attempt.Service
	enrollments EnrollmentReader
	validate    *validator.Validate
}

func registerAttemptAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := attemptApi{
		svc:         deps.AttemptSvc,
		enrollments: deps.Enrollments,
		validate:    deps.Validate,
	}

	qg := g.Group("/quizzes/:quizID", jwt)
	qg.POST("/attempts", api.start, studentMiddleware)
	qg.GET("/attempts", api.queryByQuiz, staffMiddleware())
	qg.GET("/top-scorers", api.topScorers)
	qg.GET("/stats", api.stats, staffMiddleware())
	qg.POST("/score", api.score, staffMiddleware())
	qg.GET("/enrollment", api.enrollment, studentMiddleware)
	qg.GET("/answers", api.queryQuizAnswers, studentMiddleware)

	ag := g.Group("/attempts", jwt)
	ag.GET("", api.query, studentMiddleware)
	ag.GET("/latest", api.latest, studentMiddleware)
	ag.GET("/active", api.queryActive, staffMiddleware())

	// detail endpoints
	dg := ag.Group("/:id", attemptObjectMiddleware(api.svc))
	dg.GET("", api.retrieve)
	dg.GET("/remaining", api.remaining)
	dg.GET("/answers", api.queryAnswers)
	dg.POST("/answers", api.recordAnswer, studentMiddleware)
	dg.POST("/submit", api.submit, studentMiddleware)
	dg.POST("/finalize", api.finalize, studentMiddleware)
	dg.POST("/expire", api.expire)
	dg.PUT("/completion", api.complete, staffMiddleware())

	sg := g.Group("/answers", jwt, studentMiddleware)
	sg.GET("/count", api.answerCount)
	sg.GET("/latest", api.latestAnswers)
}

// Handlers

func (api *attemptApi) start(ctx echo.Context) error {
	studentID, err := getContextStudentID(ctx)
	if err != nil {
		return err
	}

	a, err := api.svc.StartOrResume(ctx.Request().Context(), ctx.Param("quizID"), studentID)
	if err != nil {
		return errors.Wrap(err, "starting attempt")
	}
	return ctx.JSON(http.StatusOK, newAttemptResponse(a))
}

func (api *attemptApi) query(ctx echo.Context) error {
	studentID, err := getContextStudentID(ctx)
	if err != nil {
		return err
	}

	var attempts []attempt.Attempt
	if completed, _ := strconv.ParseBool(ctx.QueryParam("completed")); completed {
		attempts, err = api.svc.CompletedAttemptsByStudent(ctx.Request().Context(), studentID)
	} else {
		ordering := new(Ordering)
		ordering.Bind(ctx)
		attempts, err = api.svc.AttemptsByStudent(ctx.Request().Context(), studentID, ordering.Orderings)
	}
	if err != nil {
		return errors.Wrap(err, "querying attempts")
	}
	return ctx.JSON(http.StatusOK, newAttemptResponses(attempts))
}

func (api *attemptApi) latest(ctx echo.Context) error {
	studentID, err := getContextStudentID(ctx)
	if err != nil {
		return err
	}

	a, err := api.svc.LatestAttemptByStudent(ctx.Request().Context(), studentID)
	if err != nil {
		return errors.Wrap(err, "getting latest attempt")
	}
	return ctx.JSON(http.StatusOK, newAttemptResponse(a))
}

func (api *attemptApi) queryActive(ctx echo.Context) error {
	attempts, err := api.svc.ActiveAttempts(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying active attempts")
	}
	return ctx.JSON(http.StatusOK, newAttemptResponses(attempts))
}

func (api *attemptApi) queryByQuiz(ctx echo.Context) error {
	ordering := new(Ordering)
	ordering.Bind(ctx)

	attempts, err := api.svc.AttemptsByQuiz(ctx.Request().Context(), ctx.Param("quizID"), ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying quiz attempts")
	}
	return ctx.JSON(http.StatusOK, newAttemptResponses(attempts))
}

func (api *attemptApi) topScorers(ctx echo.Context) error {
	attempts, err := api.svc.TopScorers(ctx.Request().Context(), ctx.Param("quizID"), bindLimit(ctx))
	if err != nil {
		return errors.Wrap(err, "querying top scorers")
	}
	if attempts == nil {
		attempts = []attempt.Attempt{}
	}
	return ctx.JSON(http.StatusOK, attempts)
}

func (api *attemptApi) stats(ctx echo.Context) error {
	stats, err := api.svc.QuizStats(ctx.Request().Context(), ctx.Param("quizID"))
	if err != nil {
		return errors.Wrap(err, "computing quiz stats")
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (api *attemptApi) score(ctx echo.Context) error {
	var data AnswerSheet
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AnswerSheet")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	score, totalMarks, err := api.svc.ScoreSelections(ctx.Request().Context(), ctx.Param("quizID"), data.Answers)
	if err != nil {
		return errors.Wrap(err, "scoring answer sheet")
	}
	return ctx.JSON(http.StatusOK, ScoreResponse{Score: score, TotalMarks: totalMarks})
}

func (api *attemptApi) enrollment(ctx echo.Context) error {
	studentID, err := getContextStudentID(ctx)
	if err != nil {
		return err
	}

	e, err := api.enrollments.GetEnrollment(ctx.Request().Context(), studentID, ctx.Param("quizID"))
	if err != nil {
		return errors.Wrap(err, "getting enrollment")
	}
	return ctx.JSON(http.StatusOK, e)
}

func (api *attemptApi) queryQuizAnswers(ctx echo.Context) error {
	studentID, err := getContextStudentID(ctx)
	if err != nil {
		return err
	}

	answers, err := api.svc.AnswersByStudentAndQuiz(ctx.Request().Context(), studentID, ctx.Param("quizID"))
	if err != nil {
		return errors.Wrap(err, "querying quiz answers")
	}
	return ctx.JSON(http.StatusOK, nonNilAnswers(answers))
}

func (api *attemptApi) retrieve(ctx echo.Context) error {
	a, ok := ctx.Get(contextObjectKey).(attempt.Attempt)
	if !ok {
		return errors.Wrap(errAttemptNotFoundInCtx, "retrieving object from context")
	}
	return ctx.JSON(http.StatusOK, newAttemptResponse(a))
}

func (api *attemptApi) remaining(ctx echo.Context) error {
	a, ok := ctx.Get(contextObjectKey).(attempt.Attempt)
	if !ok {
		return errors.Wrap(errAttemptNotFoundInCtx, "retrieving object from context")
	}

	secs, err := api.svc.RemainingSeconds(ctx.Request().Context(), a.ID)
	if err != nil {
		return errors.Wrap(err, "getting remaining seconds")
	}
	return ctx.JSON(http.StatusOK, RemainingResponse{Timed: a.IsTimed(), RemainingSeconds: remainingPtr(secs)})
}

func (api *attemptApi) queryAnswers(ctx echo.Context) error {
	a, ok := ctx.Get(contextObjectKey).(attempt.Attempt)
	if !ok {
		return errors.Wrap(errAttemptNotFoundInCtx, "retrieving object from context")
	}

	answers, err := api.svc.AnswersByAttempt(ctx.Request().Context(), a.StudentID, a.ID)
	if err != nil {
		return errors.Wrap(err, "querying attempt answers")
	}
	return ctx.JSON(http.StatusOK, nonNilAnswers(answers))
}

func (api *attemptApi) recordAnswer(ctx echo.Context) error {
	studentID, err := getContextStudentID(ctx)
	if err != nil {
		return err
	}

	var data RecordAnswerRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RecordAnswerRequest")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}
	if err = api.expireIfOver(ctx, studentID); err != nil {
		return err
	}

	ans, err := api.svc.RecordAnswer(ctx.Request().Context(), studentID, ctx.Param("id"), data.QuestionID, data.SelectedOption)
	if err != nil {
		return errors.Wrap(err, "recording answer")
	}
	return ctx.JSON(http.StatusCreated, ans)
}

func (api *attemptApi) submit(ctx echo.Context) error {
	studentID, err := getContextStudentID(ctx)
	if err != nil {
		return err
	}

	var data AnswerSheet
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AnswerSheet")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}
	if err = api.expireIfOver(ctx, studentID); err != nil {
		return err
	}

	a, err := api.svc.SubmitAnswers(ctx.Request().Context(), studentID, ctx.Param("id"), data.Answers)
	if err != nil {
		return errors.Wrap(err, "submitting answers")
	}
	return ctx.JSON(http.StatusOK, newAttemptResponse(a))
}

func (api *attemptApi) finalize(ctx echo.Context) error {
	studentID, err := getContextStudentID(ctx)
	if err != nil {
		return err
	}

	a, err := api.svc.Finalize(ctx.Request().Context(), studentID, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finalizing attempt")
	}
	return ctx.JSON(http.StatusOK, newAttemptResponse(a))
}

func (api *attemptApi) expire(ctx echo.Context) error {
	a, ok := ctx.Get(contextObjectKey).(attempt.Attempt)
	if !ok {
		return errors.Wrap(errAttemptNotFoundInCtx, "retrieving object from context")
	}

	expired, err := api.svc.ExpireIfOver(ctx.Request().Context(), a.ID)
	if err != nil {
		return errors.Wrap(err, "expiring attempt")
	}
	if a, err = api.svc.GetAttempt(ctx.Request().Context(), a.ID); err != nil {
		return errors.Wrap(err, "getting attempt")
	}
	return ctx.JSON(http.StatusOK, ExpireResponse{Expired: expired, Attempt: newAttemptResponse(a)})
}

func (api *attemptApi) complete(ctx echo.Context) error {
	a, ok := ctx.Get(contextObjectKey).(attempt.Attempt)
	if !ok {
		return errors.Wrap(errAttemptNotFoundInCtx, "retrieving object from context")
	}

	var data CompleteAttemptRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CompleteAttemptRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	a, err := api.svc.CompleteAttempt(ctx.Request().Context(), a.ID, *data.Score, *data.TotalMarks)
	if err != nil {
		return errors.Wrap(err, "completing attempt")
	}
	return ctx.JSON(http.StatusOK, newAttemptResponse(a))
}

func (api *attemptApi) answerCount(ctx echo.Context) error {
	studentID, err := getContextStudentID(ctx)
	if err != nil {
		return err
	}

	count, err := api.svc.AnswerCountByStudent(ctx.Request().Context(), studentID)
	if err != nil {
		return errors.Wrap(err, "counting answers")
	}
	return ctx.JSON(http.StatusOK, CountResponse{Count: count})
}

func (api *attemptApi) latestAnswers(ctx echo.Context) error {
	studentID, err := getContextStudentID(ctx)
	if err != nil {
		return err
	}

	answers, err := api.svc.LatestAnswersByStudent(ctx.Request().Context(), studentID)
	if err != nil {
		return errors.Wrap(err, "querying latest answers")
	}
	return ctx.JSON(http.StatusOK, nonNilAnswers(answers))
}

// expireIfOver completes the student's attempt if its time is up, in which case answering it is a conflict.
func (api *attemptApi) expireIfOver(ctx echo.Context, studentID string) error {
	a, err := api.svc.GetAttemptForStudent(ctx.Request().Context(), studentID, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting attempt")
	}
	if a.Completed {
		return attempt.ErrAttemptCompleted
	}

	expired, err := api.svc.ExpireIfOver(ctx.Request().Context(), a.ID)
	if err != nil {
		return errors.Wrap(err, "expiring attempt")
	}
	if expired {
		return errors.Wrap(attempt.ErrAttemptCompleted, "attempt time is up")
	}
	return nil
}

// attemptObjectMiddleware loads the `:id` attempt into the context if the caller owns it or is staff.
func attemptObjectMiddleware(svc *attempt.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}

			a, err := svc.GetAttempt(ctx.Request().Context(), ctx.Param("id"))
			if err != nil {
				return errors.Wrap(err, "getting attempt")
			}
			if claims.isStaff() || (claims.IsStudent && claims.Subject == a.StudentID) {
				ctx.Set(contextObjectKey, a)
				return next(ctx)
			}
			return attempt.ErrNotOwner
		}
	}
}

type (
	AttemptResponse struct {
		attempt.Attempt
		// RemainingSeconds is null for untimed quizzes.
		RemainingSeconds *int64 `json:"remaining_seconds"`
	}

	RemainingResponse struct {
		Timed            bool   `json:"timed"`
		RemainingSeconds *int64 `json:"remaining_seconds"`
	}

	ExpireResponse struct {
		Expired bool            `json:"expired"`
		Attempt AttemptResponse `json:"attempt"`
	}

	ScoreResponse struct {
		Score      int `json:"score"`
		TotalMarks int `json:"total_marks"`
	}

	CountResponse struct {
		Count int `json:"count"`
	}

	RecordAnswerRequest struct {
		QuestionID     string `json:"question_id" validate:"required"`
		SelectedOption string `json:"selected_option" validate:"required,answer_option"`
	}

	// AnswerSheet maps question IDs to selected options.
	AnswerSheet struct {
		Answers map[string]string `json:"answers" validate:"required,dive,keys,required,endkeys,required,answer_option"`
	}

	CompleteAttemptRequest struct {
		Score      *int `json:"score" validate:"required,min=0"`
		TotalMarks *int `json:"total_marks" validate:"required,min=0"`
	}
)

func newAttemptResponse(a attempt.Attempt) AttemptResponse {
	return AttemptResponse{Attempt: a, RemainingSeconds: remainingPtr(a.RemainingSeconds(attempt.NowFunc()))}
}

func newAttemptResponses(attempts []attempt.Attempt) []AttemptResponse {
	resp := make([]AttemptResponse, 0, len(attempts))
	for _, a := range attempts {
		resp = append(resp, newAttemptResponse(a))
	}
	return resp
}

func remainingPtr(secs int64) *int64 {
	if secs == attempt.Unlimited {
		return nil
	}
	return &secs
}

func nonNilAnswers(answers []attempt.Answer) []attempt.Answer {
	if answers == nil {
		return []attempt.Answer{}
	}
	return answers
}

func (r *RecordAnswerRequest) Validate(validate *validator.Validate) error {
	r.QuestionID = core.CleanString(r.QuestionID)
	return validate.Struct(r)
}

func (s *AnswerSheet) Validate(validate *validator.Validate) error {
	if err := validate.Struct(s); err != nil {
		return err
	}
	for qID, sel := range s.Answers {
		s.Answers[qID] = string(quiz.NormalizeOption(sel))
	}
	return nil
}

func (r *CompleteAttemptRequest) Validate(validate *validator.Validate) error {
	if err := validate.Struct(r); err != nil {
		return err
	}
	if *r.Score > *r.TotalMarks {
		return core.NewValidationError(nil, core.FieldError{Field: "score", Error: errScoreAboveTotal})
	}
	return nil
}
