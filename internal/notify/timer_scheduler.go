package notify

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	reminderDateLayout = "02/01/2006"
	reminderHour       = 8
)

var noOpLogger = zap.NewNop()

// Reminder is the payload delivered when a scheduled reminder fires.
type Reminder struct {
	ID          uuid.UUID
	Kind        string
	CNS         string
	PatientName string
	VaccineName string
	DoseLabel   string
	Date        string
	TriggerAt   time.Time
}

// TimerSchedulerConfig configures the in-process reminder scheduler.
type TimerSchedulerConfig struct {
	Clock    func() time.Time
	Location *time.Location
	Deliver  func(Reminder)
	Logger   *zap.Logger
}

// TimerScheduler keeps one timer per reminder id. Scheduling an id that
// already has a timer replaces it; past or empty dates cancel instead of
// scheduling, matching the alarm semantics the mobile client had.
type TimerScheduler struct {
	clock    func() time.Time
	location *time.Location
	deliver  func(Reminder)
	logger   *zap.Logger

	mu     sync.Mutex
	timers map[uuid.UUID]*time.Timer
}

// NewTimerScheduler constructs a TimerScheduler.
func NewTimerScheduler(cfg TimerSchedulerConfig) *TimerScheduler {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	location := cfg.Location
	if location == nil {
		location = time.Local
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	deliver := cfg.Deliver
	scheduler := &TimerScheduler{
		clock:    clock,
		location: location,
		logger:   logger,
		timers:   make(map[uuid.UUID]*time.Timer),
	}
	if deliver == nil {
		deliver = scheduler.logReminder
	}
	scheduler.deliver = deliver
	return scheduler
}

// ScheduleVisitReminder books the 08:00 reminder for a scheduled home visit.
func (s *TimerScheduler) ScheduleVisitReminder(visitDate, patientName, cns string) error {
	return s.schedule(Reminder{
		ID:          VisitReminderID(cns),
		Kind:        kindVisit,
		CNS:         cns,
		PatientName: patientName,
		Date:        visitDate,
	})
}

// CancelVisitReminder drops a patient's visit reminder if one is pending.
func (s *TimerScheduler) CancelVisitReminder(cns string) error {
	s.cancel(VisitReminderID(cns))
	return nil
}

// ScheduleDoseReminder books the 08:00 reminder for a booked dose.
func (s *TimerScheduler) ScheduleDoseReminder(vaccineName, doseLabel, scheduledDate, patientName, cns string) error {
	return s.schedule(Reminder{
		ID:          DoseReminderID(vaccineName, doseLabel, cns),
		Kind:        kindDose,
		CNS:         cns,
		PatientName: patientName,
		VaccineName: vaccineName,
		DoseLabel:   doseLabel,
		Date:        scheduledDate,
	})
}

// CancelDoseReminder drops one dose reminder if one is pending.
func (s *TimerScheduler) CancelDoseReminder(vaccineName, doseLabel, cns string) error {
	s.cancel(DoseReminderID(vaccineName, doseLabel, cns))
	return nil
}

// Pending reports whether a timer exists for the given reminder id.
func (s *TimerScheduler) Pending(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[id]
	return ok
}

// Close stops every pending timer.
func (s *TimerScheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
}

func (s *TimerScheduler) schedule(reminder Reminder) error {
	if reminder.Date == "" {
		s.cancel(reminder.ID)
		return nil
	}

	day, err := time.ParseInLocation(reminderDateLayout, reminder.Date, s.location)
	if err != nil {
		s.cancel(reminder.ID)
		return fmt.Errorf("parse reminder date %q: %w", reminder.Date, err)
	}

	triggerAt := time.Date(day.Year(), day.Month(), day.Day(), reminderHour, 0, 0, 0, s.location)
	now := s.clock()
	if triggerAt.Before(now) {
		s.logger.Warn("reminder date already past, cancelling",
			zap.String("kind", reminder.Kind),
			zap.String("cns", reminder.CNS),
			zap.String("date", reminder.Date))
		s.cancel(reminder.ID)
		return nil
	}
	reminder.TriggerAt = triggerAt

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.timers[reminder.ID]; ok {
		existing.Stop()
	}
	s.timers[reminder.ID] = time.AfterFunc(triggerAt.Sub(now), func() {
		s.mu.Lock()
		delete(s.timers, reminder.ID)
		s.mu.Unlock()
		s.deliver(reminder)
	})

	s.logger.Info("reminder scheduled",
		zap.String("kind", reminder.Kind),
		zap.String("cns", reminder.CNS),
		zap.Time("trigger_at", triggerAt))
	return nil
}

func (s *TimerScheduler) cancel(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if timer, ok := s.timers[id]; ok {
		timer.Stop()
		delete(s.timers, id)
	}
}

func (s *TimerScheduler) logReminder(reminder Reminder) {
	s.logger.Info("reminder due",
		zap.String("kind", reminder.Kind),
		zap.String("cns", reminder.CNS),
		zap.String("patient", reminder.PatientName),
		zap.String("vaccine", reminder.VaccineName),
		zap.String("dose", reminder.DoseLabel),
		zap.String("date", reminder.Date))
}
