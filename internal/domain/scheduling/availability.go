package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Calendar answers what a doctor could offer on a given date, ignoring
// existing bookings. Which of those slots are actually free is the
// Allocator's concern.
type Calendar struct {
	availability AvailabilityRepository
}

func NewCalendar(availability AvailabilityRepository) *Calendar {
	return &Calendar{availability: availability}
}

// Profile returns the doctor's availability profile.
func (c *Calendar) Profile(ctx context.Context, doctorID uuid.UUID) (*Availability, error) {
	return c.availability.GetByDoctor(ctx, doctorID)
}

// SlotsFor returns the ordered slot starts schedulable in principle on the
// date: empty when the weekday is not a working day, the full daily slot
// sequence otherwise. Pure read.
func (c *Calendar) SlotsFor(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]TimeOfDay, error) {
	profile, err := c.availability.GetByDoctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	if !profile.WorksOn(date.Weekday()) {
		return nil, nil
	}
	slots := make([]TimeOfDay, len(profile.DailySlots))
	copy(slots, profile.DailySlots)
	return slots, nil
}
