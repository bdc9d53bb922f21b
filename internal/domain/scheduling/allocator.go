package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Allocator is the only component that reserves or frees slot keys. It
// guarantees at most one non-cancelled appointment per
// (doctor_id, date, slot_start), leaning on the repository's atomic
// insert-if-absent and compare-and-set primitives so that reservations on
// different keys never contend.
type Allocator struct {
	calendar     *Calendar
	appointments AppointmentRepository
	now          func() time.Time
}

func NewAllocator(calendar *Calendar, appointments AppointmentRepository) *Allocator {
	return &Allocator{
		calendar:     calendar,
		appointments: appointments,
		now:          time.Now,
	}
}

// AvailableSlots returns SlotsFor minus the slot starts held by non-cancelled
// appointments on that date, ordered ascending.
func (al *Allocator) AvailableSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]TimeOfDay, error) {
	date = DateOnly(date)
	offered, err := al.calendar.SlotsFor(ctx, doctorID, date)
	if err != nil {
		return nil, err
	}
	if len(offered) == 0 {
		return nil, nil
	}
	booked, err := al.appointments.ListByDoctorDate(ctx, doctorID, date)
	if err != nil {
		return nil, err
	}
	taken := make(map[TimeOfDay]bool, len(booked))
	for _, a := range booked {
		if a.Status != StatusCancelled {
			taken[a.SlotStart] = true
		}
	}
	var free []TimeOfDay
	for _, s := range offered {
		if !taken[s] {
			free = append(free, s)
		}
	}
	return free, nil
}

// Reserve admits a booking request into a free slot. It validates the slot
// against the doctor's calendar and the allocator's clock, then creates the
// appointment in pending status with the doctor's current fee captured as the
// price. A racing reservation on the same key loses with ErrSlotConflict and
// leaves no partial state.
func (al *Allocator) Reserve(ctx context.Context, doctorID, patientID uuid.UUID, date time.Time, slotStart TimeOfDay, reason string) (*Appointment, error) {
	date = DateOnly(date)
	profile, err := al.calendar.Profile(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	if date.Before(DateOnly(al.now())) {
		return nil, fmt.Errorf("%w: date %s is in the past", ErrInvalidSlot, date.Format("2006-01-02"))
	}
	if !profile.WorksOn(date.Weekday()) {
		return nil, fmt.Errorf("%w: %s is not a working day", ErrInvalidSlot, date.Weekday())
	}
	offered := false
	for _, s := range profile.DailySlots {
		if s == slotStart {
			offered = true
			break
		}
	}
	if !offered {
		return nil, fmt.Errorf("%w: %s is not an offered slot", ErrInvalidSlot, slotStart)
	}

	now := al.now()
	appt := &Appointment{
		ID:         uuid.New(),
		DoctorID:   doctorID,
		PatientID:  patientID,
		Date:       date,
		SlotStart:  slotStart,
		Status:     StatusPending,
		Reason:     reason,
		PriceCents: profile.FeeCents,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := al.appointments.CreateIfSlotFree(ctx, appt); err != nil {
		return nil, err
	}
	return appt, nil
}

// Release drives the appointment to cancelled, freeing its slot key.
// Releasing an already-cancelled appointment is a no-op, not an error.
// A completed appointment cannot be released.
func (al *Allocator) Release(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	// CAS with a bounded retry: a concurrent transition changes the stored
	// status between our read and the update, in which case we re-read and
	// re-evaluate against the fresh state.
	for attempt := 0; attempt < 3; attempt++ {
		appt, err := al.appointments.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if appt.Status == StatusCancelled {
			return appt, nil
		}
		if !CanTransition(appt.Status, StatusCancelled) {
			return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, appt.Status, StatusCancelled)
		}
		updated, err := al.appointments.UpdateStatus(ctx, id, appt.Status, StatusCancelled)
		if errors.Is(err, ErrNotFound) {
			continue // lost the race, re-read
		}
		if err != nil {
			return nil, err
		}
		return updated, nil
	}
	return nil, fmt.Errorf("%w: release of %s kept losing status races", ErrUnavailable, id)
}
