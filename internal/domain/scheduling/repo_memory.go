package scheduling

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// slotKey identifies one reservable unit of a doctor's time.
type slotKey struct {
	doctorID uuid.UUID
	date     time.Time
	start    TimeOfDay
}

// memoryAvailabilityRepo is an in-memory AvailabilityRepository for tests and
// single-process deployments.
type memoryAvailabilityRepo struct {
	mu       sync.RWMutex
	profiles map[uuid.UUID]Availability
}

func NewMemoryAvailabilityRepo() AvailabilityRepository {
	return &memoryAvailabilityRepo{profiles: make(map[uuid.UUID]Availability)}
}

func (r *memoryAvailabilityRepo) Upsert(_ context.Context, a *Availability) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *a
	stored.WorkingDays = append([]time.Weekday(nil), a.WorkingDays...)
	stored.DailySlots = append([]TimeOfDay(nil), a.DailySlots...)
	r.profiles[a.DoctorID] = stored
	return nil
}

func (r *memoryAvailabilityRepo) GetByDoctor(_ context.Context, doctorID uuid.UUID) (*Availability, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stored, ok := r.profiles[doctorID]
	if !ok {
		return nil, ErrNotFound
	}
	out := stored
	out.WorkingDays = append([]time.Weekday(nil), stored.WorkingDays...)
	out.DailySlots = append([]TimeOfDay(nil), stored.DailySlots...)
	return &out, nil
}

// memoryAppointmentRepo is an in-memory AppointmentRepository. One mutex
// serialises the slot-key check with the insert and the status compare with
// the set, giving the same atomicity the SQL implementation gets from its
// partial unique index and conditional UPDATE.
type memoryAppointmentRepo struct {
	mu    sync.RWMutex
	byID  map[uuid.UUID]Appointment
	byKey map[slotKey]uuid.UUID // non-cancelled holder of each slot key
}

func NewMemoryAppointmentRepo() AppointmentRepository {
	return &memoryAppointmentRepo{
		byID:  make(map[uuid.UUID]Appointment),
		byKey: make(map[slotKey]uuid.UUID),
	}
}

func keyOf(a *Appointment) slotKey {
	return slotKey{doctorID: a.DoctorID, date: DateOnly(a.Date), start: a.SlotStart}
}

func (r *memoryAppointmentRepo) CreateIfSlotFree(_ context.Context, a *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := keyOf(a)
	if _, taken := r.byKey[key]; taken {
		return ErrSlotConflict
	}
	r.byKey[key] = a.ID
	r.byID[a.ID] = *a
	return nil
}

func (r *memoryAppointmentRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := a
	return &out, nil
}

func (r *memoryAppointmentRepo) ListByDoctorDate(_ context.Context, doctorID uuid.UUID, date time.Time) ([]*Appointment, error) {
	date = DateOnly(date)
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Appointment
	for _, a := range r.byID {
		if a.DoctorID == doctorID && DateOnly(a.Date).Equal(date) {
			c := a
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SlotStart < out[j].SlotStart })
	return out, nil
}

func (r *memoryAppointmentRepo) UpdateStatus(_ context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok || a.Status != from {
		return nil, ErrNotFound
	}
	a.Status = to
	a.UpdatedAt = time.Now()
	r.byID[id] = a
	if to == StatusCancelled {
		// Free the slot key, but only if this appointment still holds it.
		key := keyOf(&a)
		if r.byKey[key] == id {
			delete(r.byKey, key)
		}
	}
	out := a
	return &out, nil
}

func (r *memoryAppointmentRepo) UpdateDetails(_ context.Context, id uuid.UUID, reason, notes *string) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	if reason != nil {
		a.Reason = *reason
	}
	if notes != nil {
		a.Notes = *notes
	}
	a.UpdatedAt = time.Now()
	r.byID[id] = a
	out := a
	return &out, nil
}

func (r *memoryAppointmentRepo) List(_ context.Context, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var matched []*Appointment
	for _, a := range r.byID {
		if f.DoctorID != nil && a.DoctorID != *f.DoctorID {
			continue
		}
		if f.PatientID != nil && a.PatientID != *f.PatientID {
			continue
		}
		if len(f.StatusIn) > 0 {
			found := false
			for _, s := range f.StatusIn {
				if a.Status == s {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		if f.From != nil && DateOnly(a.Date).Before(DateOnly(*f.From)) {
			continue
		}
		if f.To != nil && DateOnly(a.Date).After(DateOnly(*f.To)) {
			continue
		}
		c := a
		matched = append(matched, &c)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].Date.Equal(matched[j].Date) {
			return matched[i].Date.Before(matched[j].Date)
		}
		return matched[i].SlotStart < matched[j].SlotStart
	})
	total := len(matched)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return matched[offset:end], total, nil
}
