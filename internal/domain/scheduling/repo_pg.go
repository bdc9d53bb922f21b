package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// wrapStorageErr maps driver-level failures onto the package error taxonomy.
func wrapStorageErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}

// isUniqueViolation reports whether err is a unique-constraint violation on
// the named index.
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == constraint
}

func weekdaysToInts(days []time.Weekday) []int16 {
	out := make([]int16, len(days))
	for i, d := range days {
		out[i] = int16(d)
	}
	return out
}

func intsToWeekdays(ints []int16) []time.Weekday {
	out := make([]time.Weekday, len(ints))
	for i, v := range ints {
		out[i] = time.Weekday(v)
	}
	return out
}

func slotsToInts(slots []TimeOfDay) []int16 {
	out := make([]int16, len(slots))
	for i, s := range slots {
		out[i] = int16(s)
	}
	return out
}

func intsToSlots(ints []int16) []TimeOfDay {
	out := make([]TimeOfDay, len(ints))
	for i, v := range ints {
		out[i] = TimeOfDay(v)
	}
	return out
}

// =========== Availability Repository ===========

type availabilityRepoPG struct{ pool *pgxpool.Pool }

func NewAvailabilityRepoPG(pool *pgxpool.Pool) AvailabilityRepository {
	return &availabilityRepoPG{pool: pool}
}

const availCols = `doctor_id, working_days, daily_slots, session_length_minutes, fee_cents, created_at, updated_at`

func (r *availabilityRepoPG) scanAvailability(row pgx.Row) (*Availability, error) {
	var a Availability
	var days, slots []int16
	err := row.Scan(&a.DoctorID, &days, &slots, &a.SessionLengthMinutes, &a.FeeCents, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, wrapStorageErr(err)
	}
	a.WorkingDays = intsToWeekdays(days)
	a.DailySlots = intsToSlots(slots)
	return &a, nil
}

func (r *availabilityRepoPG) Upsert(ctx context.Context, a *Availability) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO doctor_availability (doctor_id, working_days, daily_slots, session_length_minutes, fee_cents)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (doctor_id) DO UPDATE SET
			working_days = EXCLUDED.working_days,
			daily_slots = EXCLUDED.daily_slots,
			session_length_minutes = EXCLUDED.session_length_minutes,
			fee_cents = EXCLUDED.fee_cents,
			updated_at = NOW()`,
		a.DoctorID, weekdaysToInts(a.WorkingDays), slotsToInts(a.DailySlots), a.SessionLengthMinutes, a.FeeCents)
	return wrapStorageErr(err)
}

func (r *availabilityRepoPG) GetByDoctor(ctx context.Context, doctorID uuid.UUID) (*Availability, error) {
	return r.scanAvailability(r.pool.QueryRow(ctx,
		`SELECT `+availCols+` FROM doctor_availability WHERE doctor_id = $1`, doctorID))
}

// =========== Appointment Repository ===========

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

const apptCols = `id, doctor_id, patient_id, visit_date, slot_start, status, reason, notes, price_cents, created_at, updated_at`

func (r *appointmentRepoPG) scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var slot int16
	err := row.Scan(&a.ID, &a.DoctorID, &a.PatientID, &a.Date, &slot, &a.Status,
		&a.Reason, &a.Notes, &a.PriceCents, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, wrapStorageErr(err)
	}
	a.SlotStart = TimeOfDay(slot)
	a.Date = DateOnly(a.Date)
	return &a, nil
}

// CreateIfSlotFree relies on the appointment_slot_key partial unique index:
// the insert and the availability check are one atomic statement, so two
// racing inserts on the same key cannot both commit.
func (r *appointmentRepoPG) CreateIfSlotFree(ctx context.Context, a *Appointment) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO appointment (id, doctor_id, patient_id, visit_date, slot_start, status, reason, notes, price_cents)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		a.ID, a.DoctorID, a.PatientID, a.Date, int16(a.SlotStart), a.Status, a.Reason, a.Notes, a.PriceCents)
	if isUniqueViolation(err, "appointment_slot_key") {
		return ErrSlotConflict
	}
	return wrapStorageErr(err)
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return r.scanAppointment(r.pool.QueryRow(ctx,
		`SELECT `+apptCols+` FROM appointment WHERE id = $1`, id))
}

func (r *appointmentRepoPG) ListByDoctorDate(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]*Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+apptCols+` FROM appointment
		WHERE doctor_id = $1 AND visit_date = $2
		ORDER BY slot_start ASC`, doctorID, DateOnly(date))
	if err != nil {
		return nil, wrapStorageErr(err)
	}
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := r.scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, wrapStorageErr(rows.Err())
}

// UpdateStatus is the compare-and-set primitive: the WHERE clause pins the
// expected current status, so a concurrent transition makes this a zero-row
// update instead of a lost write.
func (r *appointmentRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	return r.scanAppointment(r.pool.QueryRow(ctx, `
		UPDATE appointment SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING `+apptCols, id, from, to))
}

func (r *appointmentRepoPG) UpdateDetails(ctx context.Context, id uuid.UUID, reason, notes *string) (*Appointment, error) {
	return r.scanAppointment(r.pool.QueryRow(ctx, `
		UPDATE appointment SET
			reason = COALESCE($2, reason),
			notes = COALESCE($3, notes),
			updated_at = NOW()
		WHERE id = $1
		RETURNING `+apptCols, id, reason, notes))
}

func (r *appointmentRepoPG) List(ctx context.Context, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.DoctorID != nil {
		where += fmt.Sprintf(` AND doctor_id = $%d`, idx)
		args = append(args, *f.DoctorID)
		idx++
	}
	if f.PatientID != nil {
		where += fmt.Sprintf(` AND patient_id = $%d`, idx)
		args = append(args, *f.PatientID)
		idx++
	}
	if len(f.StatusIn) > 0 {
		where += fmt.Sprintf(` AND status = ANY($%d)`, idx)
		statuses := make([]string, len(f.StatusIn))
		for i, s := range f.StatusIn {
			statuses[i] = string(s)
		}
		args = append(args, statuses)
		idx++
	}
	if f.From != nil {
		where += fmt.Sprintf(` AND visit_date >= $%d`, idx)
		args = append(args, DateOnly(*f.From))
		idx++
	}
	if f.To != nil {
		where += fmt.Sprintf(` AND visit_date <= $%d`, idx)
		args = append(args, DateOnly(*f.To))
		idx++
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM appointment`+where, args...).Scan(&total); err != nil {
		return nil, 0, wrapStorageErr(err)
	}

	query := `SELECT ` + apptCols + ` FROM appointment` + where +
		fmt.Sprintf(` ORDER BY visit_date ASC, slot_start ASC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, wrapStorageErr(err)
	}
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := r.scanAppointment(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, wrapStorageErr(rows.Err())
}
