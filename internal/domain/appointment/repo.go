package appointment

import (
	"context"

	"github.com/google/uuid"
)

// Change is what a transition writes besides the new status.
type Change struct {
	To   Status
	Date *string
	Time *string
}

type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// Transition applies ch only while the stored status is one of from and
	// returns the updated row. ErrInvalidTransition means the row moved on.
	Transition(ctx context.Context, id uuid.UUID, from []Status, ch Change) (*Appointment, error)
	// ListByPatient and ListByDoctor return every status when statuses is empty.
	ListByPatient(ctx context.Context, patientID uuid.UUID, statuses []Status) ([]*Appointment, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, statuses []Status) ([]*Appointment, error)
	// CompleteConfirmedBefore moves confirmed appointments dated before
	// dateKey to completed and returns them.
	CompleteConfirmedBefore(ctx context.Context, dateKey string) ([]*Appointment, error)
}
