package scheduling

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Roles recognised by the scheduling core. The identity layer is trusted to
// have authenticated the principal; scheduling only checks the role value.
const (
	RolePatient = "patient"
	RoleDoctor  = "doctor"
	RoleAdmin   = "admin"
)

// Principal is the authenticated actor performing an operation.
type Principal struct {
	UserID uuid.UUID
	Role   string
}

// TimeOfDay is a clock time within a day, stored as minutes since midnight.
// It marshals as "HH:MM".
type TimeOfDay int

// ParseTimeOfDay parses a "HH:MM" string.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return TimeOfDay(t.Hour()*60 + t.Minute()), nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// Minutes returns the offset from midnight in minutes.
func (t TimeOfDay) Minutes() int { return int(t) }

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Availability is a doctor's weekly bookable profile: which weekdays they
// work, the slot start times offered on each working day, how long a session
// occupies, and the consultation fee captured into appointments at booking.
type Availability struct {
	DoctorID             uuid.UUID      `db:"doctor_id" json:"doctor_id"`
	WorkingDays          []time.Weekday `db:"working_days" json:"working_days"`
	DailySlots           []TimeOfDay    `db:"daily_slots" json:"daily_slots"`
	SessionLengthMinutes int            `db:"session_length_minutes" json:"session_length_minutes"`
	FeeCents             int64          `db:"fee_cents" json:"fee_cents"`
	CreatedAt            time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time      `db:"updated_at" json:"updated_at"`
}

// Validate checks the availability invariants: a positive session length and
// fee, valid weekdays, and strictly increasing daily slots spaced at least a
// session length apart so sessions never overlap.
func (a *Availability) Validate() error {
	if a.DoctorID == uuid.Nil {
		return fmt.Errorf("doctor_id is required")
	}
	if a.SessionLengthMinutes <= 0 {
		return fmt.Errorf("session_length_minutes must be positive")
	}
	if a.FeeCents <= 0 {
		return fmt.Errorf("fee_cents must be positive")
	}
	if len(a.WorkingDays) == 0 {
		return fmt.Errorf("working_days must not be empty")
	}
	seen := map[time.Weekday]bool{}
	for _, d := range a.WorkingDays {
		if d < time.Sunday || d > time.Saturday {
			return fmt.Errorf("invalid weekday: %d", d)
		}
		if seen[d] {
			return fmt.Errorf("duplicate weekday: %s", d)
		}
		seen[d] = true
	}
	if len(a.DailySlots) == 0 {
		return fmt.Errorf("daily_slots must not be empty")
	}
	for i, s := range a.DailySlots {
		if s < 0 || s.Minutes() >= 24*60 {
			return fmt.Errorf("slot %s out of range", s)
		}
		if i > 0 && s.Minutes() < a.DailySlots[i-1].Minutes()+a.SessionLengthMinutes {
			return fmt.Errorf("slot %s overlaps the %d-minute session starting at %s",
				s, a.SessionLengthMinutes, a.DailySlots[i-1])
		}
	}
	if last := a.DailySlots[len(a.DailySlots)-1]; last.Minutes()+a.SessionLengthMinutes > 24*60 {
		return fmt.Errorf("slot %s runs past midnight", last)
	}
	return nil
}

// WorksOn reports whether the weekday is one of the doctor's working days.
func (a *Availability) WorksOn(day time.Weekday) bool {
	for _, d := range a.WorkingDays {
		if d == day {
			return true
		}
	}
	return false
}

// Status is an appointment's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

// Terminal reports whether no further transition is permitted from s.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

// Appointment is one booked unit of a doctor's time. The slot key
// (doctor_id, date, slot_start) is unique among non-cancelled appointments.
// Appointments are never deleted; cancellation is a terminal status.
type Appointment struct {
	ID         uuid.UUID `db:"id" json:"id"`
	DoctorID   uuid.UUID `db:"doctor_id" json:"doctor_id"`
	PatientID  uuid.UUID `db:"patient_id" json:"patient_id"`
	Date       time.Time `db:"visit_date" json:"date"`
	SlotStart  TimeOfDay `db:"slot_start" json:"slot_start"`
	Status     Status    `db:"status" json:"status"`
	Reason     string    `db:"reason" json:"reason"`
	Notes      string    `db:"notes" json:"notes"`
	PriceCents int64     `db:"price_cents" json:"price_cents"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// DateOnly truncates t to a UTC calendar date.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a "2006-01-02" calendar date.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return d, nil
}

// AppointmentFilter narrows List queries. Nil fields are ignored.
type AppointmentFilter struct {
	DoctorID  *uuid.UUID
	PatientID *uuid.UUID
	StatusIn  []Status
	From      *time.Time // inclusive
	To        *time.Time // inclusive
}
