package student

import (
	"context"
	"net/mail"

	"github.com/edusmart/assessment/core"
)

var ErrNotFound = core.NewKindError(core.ErrNotFound, "student not found")

type (
	Student struct {
		ID    string `json:"id" db:"id"`
		Name  string `json:"name" db:"name"`
		Email string `json:"email" db:"email"`
	}

	// Directory looks students up in the identity store owned by the user management service.
	Directory interface {
		GetStudent(ctx context.Context, id string) (Student, error)
	}
)

func (s Student) Address() mail.Address {
	return mail.Address{Name: s.Name, Address: s.Email}
}
