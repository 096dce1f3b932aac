package testutil

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/edusmart/assessment/core"
	"github.com/edusmart/assessment/core/attempt"
	"github.com/edusmart/assessment/core/enrollment"
	"github.com/edusmart/assessment/core/quiz"
	"github.com/edusmart/assessment/core/student"
	inmemcache "github.com/edusmart/assessment/storage/cache/inmem"
	dummydb "github.com/edusmart/assessment/storage/database/dummy"
)

type (
	// Catalog seeds and serves the quizzes, questions and students owned by other services.
	Catalog interface {
		quiz.Repository
		student.Directory
		AddQuiz(qz quiz.Quiz) quiz.Quiz
		AddQuestion(q quiz.Question) quiz.Question
		AddStudent(s student.Student) student.Student
	}

	// Env wires the attempt service on top of the in-memory database.
	Env struct {
		DB          *dummydb.DB
		Catalog     Catalog
		Attempts    attempt.Repository
		Answers     attempt.AnswerRepository
		Enrollments enrollment.Repository
		Cache       *inmemcache.Cache
		Logger      *Logger
		Sync        *enrollment.SynchronizerMock
		AttemptSvc  *attempt.Service
	}
)

// NewEnv builds an Env whose enrollment synchronizer runs synchronously.
// Extra publishers receive completion events after the synchronizer.
func NewEnv(t *testing.T, publishers ...attempt.CompletionPublisher) *Env {
	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("NewEnv() failed: %v", err)
	}

	env := &Env{
		DB:          db,
		Catalog:     dummydb.NewCatalogRepository(db),
		Attempts:    dummydb.NewAttemptRepository(db),
		Answers:     dummydb.NewAnswerRepository(db),
		Enrollments: dummydb.NewEnrollmentRepository(db),
		Cache:       inmemcache.New(),
		Logger:      NewLogger(),
	}
	env.Sync = enrollment.NewSynchronizerMock(env.Enrollments, env.Logger)
	env.AttemptSvc = attempt.NewService(attempt.Deps{
		Attempts:  env.Attempts,
		Answers:   env.Answers,
		Quizzes:   env.Catalog,
		Students:  env.Catalog,
		Cache:     env.Cache,
		Publisher: append(attempt.Publishers{env.Sync}, publishers...),
		Logger:    env.Logger,
	})
	return env
}

// CreateQuiz adds a quiz with one question per entry of marks. Correct options cycle through A, B, C, D.
func (env *Env) CreateQuiz(t *testing.T, durationMinutes, maxAttempts int, marks ...int) (quiz.Quiz, []quiz.Question) {
	var total int
	for _, m := range marks {
		total += m
	}
	qz := env.Catalog.AddQuiz(quiz.Quiz{
		CourseID:        "course-1",
		Title:           fmt.Sprintf("Quiz %d min", durationMinutes),
		DurationMinutes: durationMinutes,
		TotalMarks:      total,
		MaxAttempts:     maxAttempts,
	})

	questions := make([]quiz.Question, 0, len(marks))
	for i, m := range marks {
		questions = append(questions, env.Catalog.AddQuestion(quiz.Question{
			QuizID:        qz.ID,
			Text:          fmt.Sprintf("Question %d", i+1),
			Options:       [4]string{"one", "two", "three", "four"},
			CorrectOption: quiz.Options[i%len(quiz.Options)],
			Marks:         m,
		}))
	}
	return qz, questions
}

func (env *Env) CreateStudent(t *testing.T, name string) student.Student {
	return env.Catalog.AddStudent(student.Student{
		Name:  name,
		Email: strings.ToLower(name) + "@test.edu",
	})
}

// Logger records every message it gets.
type Logger struct {
	mu      sync.Mutex
	entries []LogEntry
}

type LogEntry struct {
	Level string
	Msg   string
	Args  []interface{}
}

var _ core.Logger = (*Logger)(nil)

func NewLogger() *Logger { return &Logger{} }

func (l *Logger) log(level, msg string, args []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, LogEntry{Level: level, Msg: msg, Args: args})
}

func (l *Logger) Debug(msg string, args ...interface{}) { l.log("debug", msg, args) }
func (l *Logger) Info(msg string, args ...interface{})  { l.log("info", msg, args) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.log("warn", msg, args) }
func (l *Logger) Error(msg string, args ...interface{}) { l.log("error", msg, args) }
func (l *Logger) Fatal(msg string, args ...interface{}) { l.log("fatal", msg, args) }

// Entries returns the recorded entries of the given level, or all of them if level is empty.
func (l *Logger) Entries(level string) []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var entries []LogEntry
	for _, e := range l.entries {
		if level == "" || e.Level == level {
			entries = append(entries, e)
		}
	}
	return entries
}

// Logged reports whether a message of the given level contains substr.
func (l *Logger) Logged(level, substr string) bool {
	for _, e := range l.Entries(level) {
		if strings.Contains(e.Msg, substr) {
			return true
		}
	}
	return false
}
