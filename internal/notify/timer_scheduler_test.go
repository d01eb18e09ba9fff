package notify

import (
	"testing"
	"time"
)

func newTestScheduler(t *testing.T, now time.Time, deliver func(Reminder)) *TimerScheduler {
	t.Helper()
	scheduler := NewTimerScheduler(TimerSchedulerConfig{
		Clock:    func() time.Time { return now },
		Location: time.UTC,
		Deliver:  deliver,
	})
	t.Cleanup(scheduler.Close)
	return scheduler
}

func TestReminderIDsAreDeterministic(t *testing.T) {
	if VisitReminderID("700000000000001") != VisitReminderID("700000000000001") {
		t.Fatalf("visit reminder id not stable")
	}
	if VisitReminderID("700000000000001") == VisitReminderID("700000000000002") {
		t.Fatalf("distinct patients must get distinct visit reminder ids")
	}

	doseID := DoseReminderID("Penta", "1ª Dose", "700000000000001")
	if doseID != DoseReminderID("Penta", "1ª Dose", "700000000000001") {
		t.Fatalf("dose reminder id not stable")
	}
	if doseID == DoseReminderID("Penta", "2ª Dose", "700000000000001") {
		t.Fatalf("distinct doses must get distinct reminder ids")
	}
	if doseID == VisitReminderID("700000000000001") {
		t.Fatalf("visit and dose reminders must never collide")
	}
}

func TestScheduleVisitReminderBooksFutureDate(t *testing.T) {
	now := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	scheduler := newTestScheduler(t, now, func(Reminder) {})

	if err := scheduler.ScheduleVisitReminder("15/03/2025", "Maria da Silva", "700000000000001"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !scheduler.Pending(VisitReminderID("700000000000001")) {
		t.Fatalf("expected a pending timer for the visit reminder")
	}
}

func TestSchedulePastDateCancelsInsteadOfBooking(t *testing.T) {
	now := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	scheduler := newTestScheduler(t, now, func(Reminder) {})

	if err := scheduler.ScheduleVisitReminder("15/03/2025", "Maria da Silva", "700000000000001"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := scheduler.ScheduleVisitReminder("01/01/2025", "Maria da Silva", "700000000000001"); err != nil {
		t.Fatalf("past date must cancel silently, got %v", err)
	}
	if scheduler.Pending(VisitReminderID("700000000000001")) {
		t.Fatalf("past date left a pending timer")
	}
}

func TestScheduleEmptyDateCancels(t *testing.T) {
	now := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	scheduler := newTestScheduler(t, now, func(Reminder) {})

	if err := scheduler.ScheduleVisitReminder("15/03/2025", "Maria da Silva", "700000000000001"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := scheduler.ScheduleVisitReminder("", "Maria da Silva", "700000000000001"); err != nil {
		t.Fatalf("empty date must cancel silently, got %v", err)
	}
	if scheduler.Pending(VisitReminderID("700000000000001")) {
		t.Fatalf("empty date left a pending timer")
	}
}

func TestScheduleUnparseableDateCancelsAndErrors(t *testing.T) {
	now := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	scheduler := newTestScheduler(t, now, func(Reminder) {})

	if err := scheduler.ScheduleVisitReminder("15/03/2025", "Maria da Silva", "700000000000001"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := scheduler.ScheduleVisitReminder("2025-03-15", "Maria da Silva", "700000000000001"); err == nil {
		t.Fatalf("expected parse error for wrong layout")
	}
	if scheduler.Pending(VisitReminderID("700000000000001")) {
		t.Fatalf("bad date left a pending timer")
	}
}

func TestRescheduleReplacesExistingTimer(t *testing.T) {
	now := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	scheduler := newTestScheduler(t, now, func(Reminder) {})

	if err := scheduler.ScheduleVisitReminder("15/03/2025", "Maria da Silva", "700000000000001"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := scheduler.ScheduleVisitReminder("20/03/2025", "Maria da Silva", "700000000000001"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !scheduler.Pending(VisitReminderID("700000000000001")) {
		t.Fatalf("expected one replaced pending timer")
	}
}

func TestCancelDoseReminderIsIdempotent(t *testing.T) {
	now := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	scheduler := newTestScheduler(t, now, func(Reminder) {})

	if err := scheduler.ScheduleDoseReminder("Penta", "1ª Dose", "15/03/2025", "Maria da Silva", "700000000000001"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := scheduler.CancelDoseReminder("Penta", "1ª Dose", "700000000000001"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := scheduler.CancelDoseReminder("Penta", "1ª Dose", "700000000000001"); err != nil {
		t.Fatalf("cancel must stay silent when nothing is booked, got %v", err)
	}
	if scheduler.Pending(DoseReminderID("Penta", "1ª Dose", "700000000000001")) {
		t.Fatalf("cancelled reminder still pending")
	}
}

func TestReminderFiresAtEightLocalTime(t *testing.T) {
	now := time.Date(2025, time.March, 15, 7, 59, 59, 900_000_000, time.UTC)
	fired := make(chan Reminder, 1)
	scheduler := newTestScheduler(t, now, func(r Reminder) { fired <- r })

	if err := scheduler.ScheduleVisitReminder("15/03/2025", "Maria da Silva", "700000000000001"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case reminder := <-fired:
		if reminder.CNS != "700000000000001" || reminder.Kind != "VISITA_GERAL" {
			t.Fatalf("unexpected reminder payload: %+v", reminder)
		}
		expected := time.Date(2025, time.March, 15, 8, 0, 0, 0, time.UTC)
		if !reminder.TriggerAt.Equal(expected) {
			t.Fatalf("expected trigger at %v, got %v", expected, reminder.TriggerAt)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("reminder did not fire")
	}

	if scheduler.Pending(VisitReminderID("700000000000001")) {
		t.Fatalf("fired reminder should remove its timer")
	}
}
