package scheduling

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type testEnv struct {
	svc     *Service
	profile *Availability
	doctor  Principal
	patient Principal
	admin   Principal
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	availRepo := NewMemoryAvailabilityRepo()
	apptRepo := NewMemoryAppointmentRepo()
	svc := NewService(availRepo, apptRepo, nil, nil, zerolog.Nop())
	svc.allocator.now = func() time.Time {
		return time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	}

	profile := validProfile()
	doctor := Principal{UserID: profile.DoctorID, Role: RoleDoctor}
	if err := svc.UpsertAvailability(context.Background(), doctor, profile); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	return &testEnv{
		svc:     svc,
		profile: profile,
		doctor:  doctor,
		patient: Principal{UserID: uuid.New(), Role: RolePatient},
		admin:   Principal{UserID: uuid.New(), Role: RoleAdmin},
	}
}

func (e *testEnv) book(t *testing.T, slot TimeOfDay) *Appointment {
	t.Helper()
	appt, err := e.svc.BookAppointment(context.Background(), e.patient, BookingRequest{
		DoctorID:  e.profile.DoctorID,
		Date:      "2026-09-07",
		SlotStart: slot,
		Reason:    "checkup",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return appt
}

func TestUpsertAvailability_DoctorManagesOwnOnly(t *testing.T) {
	env := newTestEnv(t)
	other := validProfile()
	err := env.svc.UpsertAvailability(context.Background(), env.doctor, other)
	if !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
	if err := env.svc.UpsertAvailability(context.Background(), env.admin, other); err != nil {
		t.Errorf("expected admin upsert to succeed, got %v", err)
	}
}

func TestUpsertAvailability_PatientForbidden(t *testing.T) {
	env := newTestEnv(t)
	err := env.svc.UpsertAvailability(context.Background(), env.patient, env.profile)
	if !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
}

func TestUpsertAvailability_InvalidProfile(t *testing.T) {
	env := newTestEnv(t)
	bad := validProfile()
	bad.DoctorID = env.doctor.UserID
	bad.DailySlots = nil
	err := env.svc.UpsertAvailability(context.Background(), env.doctor, bad)
	if !errors.Is(err, ErrInvalidSlot) {
		t.Errorf("expected ErrInvalidSlot, got %v", err)
	}
}

func TestBookAppointment_PatientBooksSelf(t *testing.T) {
	env := newTestEnv(t)
	appt := env.book(t, 9*60)
	if appt.PatientID != env.patient.UserID {
		t.Errorf("expected patient %s, got %s", env.patient.UserID, appt.PatientID)
	}
	if appt.Status != StatusPending {
		t.Errorf("expected pending, got %s", appt.Status)
	}
}

func TestBookAppointment_PatientCannotBookForOthers(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.BookAppointment(context.Background(), env.patient, BookingRequest{
		DoctorID:  env.profile.DoctorID,
		PatientID: uuid.New(),
		Date:      "2026-09-07",
		SlotStart: 9 * 60,
	})
	if !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
}

func TestBookAppointment_AdminBooksOnBehalf(t *testing.T) {
	env := newTestEnv(t)
	target := uuid.New()
	appt, err := env.svc.BookAppointment(context.Background(), env.admin, BookingRequest{
		DoctorID:  env.profile.DoctorID,
		PatientID: target,
		Date:      "2026-09-07",
		SlotStart: 9 * 60,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if appt.PatientID != target {
		t.Errorf("expected patient %s, got %s", target, appt.PatientID)
	}
}

func TestBookAppointment_AdminRequiresPatient(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.BookAppointment(context.Background(), env.admin, BookingRequest{
		DoctorID:  env.profile.DoctorID,
		Date:      "2026-09-07",
		SlotStart: 9 * 60,
	})
	if !errors.Is(err, ErrInvalidSlot) {
		t.Errorf("expected ErrInvalidSlot, got %v", err)
	}
}

func TestBookAppointment_DoctorForbidden(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.BookAppointment(context.Background(), env.doctor, BookingRequest{
		DoctorID:  env.profile.DoctorID,
		Date:      "2026-09-07",
		SlotStart: 9 * 60,
	})
	if !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
}

func TestBookAppointment_DoubleBooking(t *testing.T) {
	env := newTestEnv(t)
	env.book(t, 9*60)
	other := Principal{UserID: uuid.New(), Role: RolePatient}
	_, err := env.svc.BookAppointment(context.Background(), other, BookingRequest{
		DoctorID:  env.profile.DoctorID,
		Date:      "2026-09-07",
		SlotStart: 9 * 60,
	})
	if !errors.Is(err, ErrSlotConflict) {
		t.Errorf("expected ErrSlotConflict, got %v", err)
	}
}

func TestBookAppointment_PriceImmutableAfterFeeChange(t *testing.T) {
	env := newTestEnv(t)
	appt := env.book(t, 9*60)
	bookedPrice := appt.PriceCents

	// Doctor raises the fee after the booking.
	raised := *env.profile
	raised.FeeCents = bookedPrice * 2
	if err := env.svc.UpsertAvailability(context.Background(), env.doctor, &raised); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := env.svc.GetAppointment(context.Background(), env.patient, appt.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.PriceCents != bookedPrice {
		t.Errorf("expected price %d to be unchanged, got %d", bookedPrice, got.PriceCents)
	}

	// A new booking captures the raised fee.
	fresh := env.book(t, 10*60)
	if fresh.PriceCents != raised.FeeCents {
		t.Errorf("expected new booking at %d, got %d", raised.FeeCents, fresh.PriceCents)
	}
}

func TestChangeStatus_DoctorConfirms(t *testing.T) {
	env := newTestEnv(t)
	appt := env.book(t, 9*60)
	updated, err := env.svc.ChangeStatus(context.Background(), env.doctor, appt.ID, StatusConfirmed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Status != StatusConfirmed {
		t.Errorf("expected confirmed, got %s", updated.Status)
	}
}

func TestChangeStatus_PatientCannotConfirm(t *testing.T) {
	env := newTestEnv(t)
	appt := env.book(t, 9*60)
	_, err := env.svc.ChangeStatus(context.Background(), env.patient, appt.ID, StatusConfirmed)
	if !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
}

func TestChangeStatus_CompleteRequiresConfirmed(t *testing.T) {
	env := newTestEnv(t)
	appt := env.book(t, 9*60)
	_, err := env.svc.ChangeStatus(context.Background(), env.doctor, appt.ID, StatusCompleted)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
	if _, err := env.svc.ChangeStatus(context.Background(), env.doctor, appt.ID, StatusConfirmed); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	updated, err := env.svc.ChangeStatus(context.Background(), env.doctor, appt.ID, StatusCompleted)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Status != StatusCompleted {
		t.Errorf("expected completed, got %s", updated.Status)
	}
}

func TestChangeStatus_RepeatedConfirmFails(t *testing.T) {
	env := newTestEnv(t)
	appt := env.book(t, 9*60)
	if _, err := env.svc.ChangeStatus(context.Background(), env.doctor, appt.ID, StatusConfirmed); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := env.svc.ChangeStatus(context.Background(), env.doctor, appt.ID, StatusConfirmed)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestChangeStatus_StrangerForbidden(t *testing.T) {
	env := newTestEnv(t)
	appt := env.book(t, 9*60)
	stranger := Principal{UserID: uuid.New(), Role: RoleDoctor}
	_, err := env.svc.ChangeStatus(context.Background(), stranger, appt.ID, StatusConfirmed)
	if !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
}

func TestChangeStatus_UnknownAppointment(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.ChangeStatus(context.Background(), env.admin, uuid.New(), StatusConfirmed)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestChangeStatus_UnknownStatus(t *testing.T) {
	env := newTestEnv(t)
	appt := env.book(t, 9*60)
	_, err := env.svc.ChangeStatus(context.Background(), env.doctor, appt.ID, Status("archived"))
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestCancelAppointment_PatientCancelsOwn(t *testing.T) {
	env := newTestEnv(t)
	appt := env.book(t, 9*60)
	cancelled, err := env.svc.CancelAppointment(context.Background(), env.patient, appt.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cancelled.Status != StatusCancelled {
		t.Errorf("expected cancelled, got %s", cancelled.Status)
	}

	// Slot is free for someone else.
	other := Principal{UserID: uuid.New(), Role: RolePatient}
	if _, err := env.svc.BookAppointment(context.Background(), other, BookingRequest{
		DoctorID:  env.profile.DoctorID,
		Date:      "2026-09-07",
		SlotStart: 9 * 60,
	}); err != nil {
		t.Errorf("expected rebooking to succeed, got %v", err)
	}
}

func TestCancelAppointment_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	appt := env.book(t, 9*60)
	if _, err := env.svc.CancelAppointment(context.Background(), env.patient, appt.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	again, err := env.svc.CancelAppointment(context.Background(), env.patient, appt.ID)
	if err != nil {
		t.Fatalf("expected repeated cancel to succeed, got %v", err)
	}
	if again.Status != StatusCancelled {
		t.Errorf("expected cancelled, got %s", again.Status)
	}
}

func TestCancelAppointment_CompletedFails(t *testing.T) {
	env := newTestEnv(t)
	appt := env.book(t, 9*60)
	if _, err := env.svc.ChangeStatus(context.Background(), env.doctor, appt.ID, StatusConfirmed); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := env.svc.ChangeStatus(context.Background(), env.doctor, appt.ID, StatusCompleted); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := env.svc.CancelAppointment(context.Background(), env.patient, appt.ID)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestCancelAppointment_StrangerForbidden(t *testing.T) {
	env := newTestEnv(t)
	appt := env.book(t, 9*60)
	stranger := Principal{UserID: uuid.New(), Role: RolePatient}
	_, err := env.svc.CancelAppointment(context.Background(), stranger, appt.ID)
	if !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
}

func TestGetAppointment_Scoping(t *testing.T) {
	env := newTestEnv(t)
	appt := env.book(t, 9*60)

	if _, err := env.svc.GetAppointment(context.Background(), env.patient, appt.ID); err != nil {
		t.Errorf("expected owner read to succeed, got %v", err)
	}
	if _, err := env.svc.GetAppointment(context.Background(), env.doctor, appt.ID); err != nil {
		t.Errorf("expected doctor read to succeed, got %v", err)
	}
	if _, err := env.svc.GetAppointment(context.Background(), env.admin, appt.ID); err != nil {
		t.Errorf("expected admin read to succeed, got %v", err)
	}
	stranger := Principal{UserID: uuid.New(), Role: RolePatient}
	if _, err := env.svc.GetAppointment(context.Background(), stranger, appt.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
}

func TestListAppointments_ImplicitScoping(t *testing.T) {
	env := newTestEnv(t)
	mine := env.book(t, 9*60)
	other := Principal{UserID: uuid.New(), Role: RolePatient}
	if _, err := env.svc.BookAppointment(context.Background(), other, BookingRequest{
		DoctorID:  env.profile.DoctorID,
		Date:      "2026-09-07",
		SlotStart: 10 * 60,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A patient sees only their own, even when filtering for someone else.
	items, total, err := env.svc.ListAppointments(context.Background(), env.patient,
		AppointmentFilter{PatientID: &other.UserID}, 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || len(items) != 1 || items[0].ID != mine.ID {
		t.Errorf("expected only own appointment, got %d items", len(items))
	}

	// The doctor sees both.
	_, total, err = env.svc.ListAppointments(context.Background(), env.doctor, AppointmentFilter{}, 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 2 {
		t.Errorf("expected 2 appointments for the doctor, got %d", total)
	}

	// Admin with a status filter.
	items, _, err = env.svc.ListAppointments(context.Background(), env.admin,
		AppointmentFilter{StatusIn: []Status{StatusPending}}, 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 {
		t.Errorf("expected 2 pending appointments, got %d", len(items))
	}
}

func TestUpdateDetails_RoleFields(t *testing.T) {
	env := newTestEnv(t)
	appt := env.book(t, 9*60)
	reason := "follow-up"
	notes := "bring previous results"

	updated, err := env.svc.UpdateDetails(context.Background(), env.patient, appt.ID, &reason, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Reason != reason {
		t.Errorf("expected reason %q, got %q", reason, updated.Reason)
	}

	if _, err := env.svc.UpdateDetails(context.Background(), env.patient, appt.ID, nil, &notes); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden for patient notes edit, got %v", err)
	}

	updated, err = env.svc.UpdateDetails(context.Background(), env.doctor, appt.ID, nil, &notes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Notes != notes {
		t.Errorf("expected notes %q, got %q", notes, updated.Notes)
	}

	if _, err := env.svc.UpdateDetails(context.Background(), env.doctor, appt.ID, &reason, nil); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden for doctor reason edit, got %v", err)
	}
}

func TestUpdateDetails_TerminalRejected(t *testing.T) {
	env := newTestEnv(t)
	appt := env.book(t, 9*60)
	if _, err := env.svc.CancelAppointment(context.Background(), env.patient, appt.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	reason := "changed my mind"
	_, err := env.svc.UpdateDetails(context.Background(), env.patient, appt.ID, &reason, nil)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestListAvailableSlots(t *testing.T) {
	env := newTestEnv(t)
	env.book(t, 9*60)
	slots, err := env.svc.ListAvailableSlots(context.Background(), env.profile.DoctorID, monday)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(slots) != len(env.profile.DailySlots)-1 {
		t.Errorf("expected %d slots, got %d", len(env.profile.DailySlots)-1, len(slots))
	}
}
