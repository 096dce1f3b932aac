package dummydb

import (
	"sync"

	"github.com/edusmart/assessment/core/attempt"
	"github.com/edusmart/assessment/core/enrollment"
	"github.com/edusmart/assessment/core/quiz"
	"github.com/edusmart/assessment/core/student"
)

type (
	// DB is an in-memory stand-in for the postgres database, used by tests and local runs.
	DB struct {
		attempt    *attemptTable
		answer     *answerTable
		enrollment *enrollmentTable
		catalog    *catalogTable
	}

	attemptTable struct {
		sync.RWMutex
		table map[string]*attempt.Attempt
	}

	answerTable struct {
		sync.RWMutex
		rows []attempt.Answer // insertion order
	}

	enrollmentTable struct {
		sync.RWMutex
		table map[enrollmentKey]*enrollment.Enrollment
	}

	enrollmentKey struct {
		studentID string
		quizID    string
	}

	// catalogTable holds the data owned by other services: quizzes, questions and students.
	catalogTable struct {
		sync.RWMutex
		quizzes   map[string]*quiz.Quiz
		questions []quiz.Question // display order
		students  map[string]*student.Student
	}
)

func Open() (*DB, error) {
	db := &DB{
		attempt:    &attemptTable{table: make(map[string]*attempt.Attempt)},
		answer:     &answerTable{},
		enrollment: &enrollmentTable{table: make(map[enrollmentKey]*enrollment.Enrollment)},
		catalog: &catalogTable{
			quizzes:  make(map[string]*quiz.Quiz),
			students: make(map[string]*student.Student),
		},
	}
	return db, nil
}
