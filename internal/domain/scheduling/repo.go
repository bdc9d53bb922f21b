package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AvailabilityRepository stores doctor availability profiles.
type AvailabilityRepository interface {
	// Upsert creates or replaces the doctor's availability profile.
	Upsert(ctx context.Context, a *Availability) error
	// GetByDoctor returns ErrNotFound when the doctor has no profile.
	GetByDoctor(ctx context.Context, doctorID uuid.UUID) (*Availability, error)
}

// AppointmentRepository stores appointments. Implementations must provide two
// atomic primitives: insert-if-absent on the slot key (CreateIfSlotFree) and
// compare-and-set on the status (UpdateStatus).
type AppointmentRepository interface {
	// CreateIfSlotFree inserts the appointment unless a non-cancelled
	// appointment already holds (doctor_id, date, slot_start), in which case
	// it returns ErrSlotConflict and writes nothing.
	CreateIfSlotFree(ctx context.Context, a *Appointment) error

	// GetByID returns ErrNotFound for an unknown id.
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// ListByDoctorDate returns all appointments (any status) for the
	// doctor's calendar date, ordered by slot start.
	ListByDoctorDate(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]*Appointment, error)

	// UpdateStatus performs a compare-and-set: the row is updated only if its
	// stored status still equals from. It returns the updated appointment, or
	// ErrNotFound when no row with the id has status from (the caller
	// disambiguates a missing row from a lost race by re-reading).
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error)

	// UpdateDetails rewrites the free-text fields. Nil leaves a field as is.
	UpdateDetails(ctx context.Context, id uuid.UUID, reason, notes *string) (*Appointment, error)

	// List returns appointments matching the filter, ordered by date then
	// slot start ascending, plus the total match count.
	List(ctx context.Context, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error)
}
