package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medbook/medbook/internal/platform/metrics"
	"github.com/medbook/medbook/internal/platform/notification"
)

// Service orchestrates scheduling use cases: it resolves the principal's
// permissions, delegates slot arithmetic to the Calendar and Allocator, and
// publishes lifecycle events. All role and ownership checks live here; the
// components below it trust their inputs.
type Service struct {
	calendar     *Calendar
	allocator    *Allocator
	availability AvailabilityRepository
	appointments AppointmentRepository
	events       *notification.Dispatcher
	metrics      *metrics.SchedulingMetrics
	logger       zerolog.Logger
}

func NewService(
	availability AvailabilityRepository,
	appointments AppointmentRepository,
	events *notification.Dispatcher,
	m *metrics.SchedulingMetrics,
	logger zerolog.Logger,
) *Service {
	calendar := NewCalendar(availability)
	return &Service{
		calendar:     calendar,
		allocator:    NewAllocator(calendar, appointments),
		availability: availability,
		appointments: appointments,
		events:       events,
		metrics:      m,
		logger:       logger,
	}
}

// BookingRequest is the input to BookAppointment.
type BookingRequest struct {
	DoctorID  uuid.UUID `json:"doctor_id"`
	PatientID uuid.UUID `json:"patient_id,omitempty"`
	Date      string    `json:"date"`
	SlotStart TimeOfDay `json:"slot_start"`
	Reason    string    `json:"reason"`
}

// UpsertAvailability stores the doctor's weekly profile. Doctors manage their
// own profile; admins may manage any.
func (s *Service) UpsertAvailability(ctx context.Context, p Principal, a *Availability) error {
	switch p.Role {
	case RoleAdmin:
	case RoleDoctor:
		if a.DoctorID != p.UserID {
			return fmt.Errorf("%w: doctors manage only their own availability", ErrForbidden)
		}
	default:
		return fmt.Errorf("%w: role %s may not manage availability", ErrForbidden, p.Role)
	}
	if err := a.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSlot, err)
	}
	now := time.Now()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	if err := s.availability.Upsert(ctx, a); err != nil {
		return err
	}
	s.logger.Info().Str("doctor_id", a.DoctorID.String()).
		Int("slots_per_day", len(a.DailySlots)).
		Msg("availability updated")
	return nil
}

// GetAvailability returns the doctor's profile. Any authenticated principal
// may read it.
func (s *Service) GetAvailability(ctx context.Context, doctorID uuid.UUID) (*Availability, error) {
	return s.calendar.Profile(ctx, doctorID)
}

// ListAvailableSlots returns the doctor's free slot starts on the date. The
// read is not a hold: any returned slot can be taken by a concurrent booking.
func (s *Service) ListAvailableSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]TimeOfDay, error) {
	return s.allocator.AvailableSlots(ctx, doctorID, date)
}

// BookAppointment reserves a slot for a patient. Patients book for
// themselves; admins may book on a patient's behalf; doctors do not book.
func (s *Service) BookAppointment(ctx context.Context, p Principal, req BookingRequest) (*Appointment, error) {
	patientID := req.PatientID
	switch p.Role {
	case RolePatient:
		if patientID != uuid.Nil && patientID != p.UserID {
			return nil, fmt.Errorf("%w: patients book only for themselves", ErrForbidden)
		}
		patientID = p.UserID
	case RoleAdmin:
		if patientID == uuid.Nil {
			return nil, fmt.Errorf("%w: patient_id is required", ErrInvalidSlot)
		}
	default:
		return nil, fmt.Errorf("%w: role %s may not book appointments", ErrForbidden, p.Role)
	}

	date, err := ParseDate(req.Date)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSlot, err)
	}

	appt, err := s.allocator.Reserve(ctx, req.DoctorID, patientID, date, req.SlotStart, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, ErrSlotConflict):
			s.metrics.ObserveReservation("conflict")
		case errors.Is(err, ErrInvalidSlot), errors.Is(err, ErrNotFound):
			s.metrics.ObserveReservation("invalid")
		default:
			s.metrics.ObserveReservation("error")
		}
		return nil, err
	}
	s.metrics.ObserveReservation("booked")
	s.emit(appt, "")
	s.logger.Info().
		Str("appointment_id", appt.ID.String()).
		Str("doctor_id", appt.DoctorID.String()).
		Str("date", appt.Date.Format("2006-01-02")).
		Str("slot", appt.SlotStart.String()).
		Msg("appointment booked")
	return appt, nil
}

// GetAppointment returns the appointment if the principal may see it:
// patients and doctors see their own, admins see all.
func (s *Service) GetAppointment(ctx context.Context, p Principal, id uuid.UUID) (*Appointment, error) {
	appt, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkOwnership(p, appt); err != nil {
		return nil, err
	}
	return appt, nil
}

// ChangeStatus drives the appointment along one lifecycle edge. The edge and
// the acting role are validated against the current stored status; a
// concurrent transition is absorbed by re-reading, up to a bounded number of
// attempts.
func (s *Service) ChangeStatus(ctx context.Context, p Principal, id uuid.UUID, to Status) (*Appointment, error) {
	if !to.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, to)
	}
	for attempt := 0; attempt < 3; attempt++ {
		appt, err := s.appointments.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := s.checkOwnership(p, appt); err != nil {
			return nil, err
		}
		if err := CheckTransition(appt.Status, to, p.Role); err != nil {
			return nil, err
		}
		updated, err := s.appointments.UpdateStatus(ctx, id, appt.Status, to)
		if errors.Is(err, ErrNotFound) {
			continue // status moved underneath us, re-read
		}
		if err != nil {
			return nil, err
		}
		s.metrics.ObserveTransition(string(to))
		s.emit(updated, string(appt.Status))
		s.logger.Info().
			Str("appointment_id", id.String()).
			Str("from", string(appt.Status)).
			Str("to", string(to)).
			Str("actor_role", p.Role).
			Msg("appointment status changed")
		return updated, nil
	}
	return nil, fmt.Errorf("%w: status change for %s kept losing races", ErrUnavailable, id)
}

// CancelAppointment cancels the appointment and frees its slot. Cancelling an
// already-cancelled appointment succeeds without effect.
func (s *Service) CancelAppointment(ctx context.Context, p Principal, id uuid.UUID) (*Appointment, error) {
	appt, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkOwnership(p, appt); err != nil {
		return nil, err
	}
	if appt.Status == StatusCancelled {
		return appt, nil
	}
	if err := CheckTransition(appt.Status, StatusCancelled, p.Role); err != nil {
		return nil, err
	}
	updated, err := s.allocator.Release(ctx, id)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveTransition(string(StatusCancelled))
	s.emit(updated, string(appt.Status))
	s.logger.Info().
		Str("appointment_id", id.String()).
		Str("actor_role", p.Role).
		Msg("appointment cancelled")
	return updated, nil
}

// UpdateDetails rewrites the free-text fields of a non-terminal appointment.
// Patients edit the reason on their own appointments, doctors edit the notes
// on theirs, admins edit both.
func (s *Service) UpdateDetails(ctx context.Context, p Principal, id uuid.UUID, reason, notes *string) (*Appointment, error) {
	appt, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkOwnership(p, appt); err != nil {
		return nil, err
	}
	if appt.Status.Terminal() {
		return nil, fmt.Errorf("%w: appointment is %s", ErrInvalidTransition, appt.Status)
	}
	switch p.Role {
	case RoleAdmin:
	case RolePatient:
		if notes != nil {
			return nil, fmt.Errorf("%w: patients may not edit notes", ErrForbidden)
		}
	case RoleDoctor:
		if reason != nil {
			return nil, fmt.Errorf("%w: doctors may not edit the reason", ErrForbidden)
		}
	default:
		return nil, fmt.Errorf("%w: role %s may not edit appointments", ErrForbidden, p.Role)
	}
	return s.appointments.UpdateDetails(ctx, id, reason, notes)
}

// ListAppointments returns appointments matching the filter. Non-admin
// principals are implicitly scoped to their own appointments regardless of
// the filter they pass.
func (s *Service) ListAppointments(ctx context.Context, p Principal, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error) {
	switch p.Role {
	case RoleAdmin:
	case RolePatient:
		f.PatientID = &p.UserID
	case RoleDoctor:
		f.DoctorID = &p.UserID
	default:
		return nil, 0, fmt.Errorf("%w: role %s may not list appointments", ErrForbidden, p.Role)
	}
	return s.appointments.List(ctx, f, limit, offset)
}

func (s *Service) checkOwnership(p Principal, appt *Appointment) error {
	switch p.Role {
	case RoleAdmin:
		return nil
	case RolePatient:
		if appt.PatientID == p.UserID {
			return nil
		}
	case RoleDoctor:
		if appt.DoctorID == p.UserID {
			return nil
		}
	}
	return fmt.Errorf("%w: appointment belongs to someone else", ErrForbidden)
}

func (s *Service) emit(appt *Appointment, oldStatus string) {
	if s.events == nil {
		return
	}
	s.events.Emit(notification.Event{
		AppointmentID: appt.ID,
		DoctorID:      appt.DoctorID,
		PatientID:     appt.PatientID,
		OldStatus:     oldStatus,
		NewStatus:     string(appt.Status),
		Timestamp:     time.Now().UTC(),
	})
}
