package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for appointments.
type Repository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	SetStatus(ctx context.Context, id uuid.UUID, status string) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error)
	ListByRange(ctx context.Context, from, to time.Time) ([]*Appointment, error)

	// CountOverlapping counts BOOKED appointments intersecting the
	// given window, excluding the one being edited when exclude is
	// non-nil.
	CountOverlapping(ctx context.Context, start, end time.Time, exclude *uuid.UUID) (int, error)
}
