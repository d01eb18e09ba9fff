package notify

import (
	"fmt"

	"github.com/google/uuid"
)

// Reminder kinds. The kind participates in the identity hash so a visit and a
// dose reminder for the same person can never collide.
const (
	kindVisit = "VISITA_GERAL"
	kindDose  = "DOSE"
)

// reminderNamespace scopes the deterministic reminder ids.
var reminderNamespace = uuid.MustParse("7f1ed5bc-9d2a-4c33-8a0f-35c1d1a86a10")

// Scheduler is the reminder capability the reconciliation engine consumes.
// Implementations must honor deterministic identity: scheduling twice with
// the same identity fields replaces, and cancellation finds the same id
// without stored state.
type Scheduler interface {
	ScheduleVisitReminder(visitDate, patientName, cns string) error
	CancelVisitReminder(cns string) error
	ScheduleDoseReminder(vaccineName, doseLabel, scheduledDate, patientName, cns string) error
	CancelDoseReminder(vaccineName, doseLabel, cns string) error
}

// VisitReminderID derives the stable id of a patient's visit reminder.
func VisitReminderID(cns string) uuid.UUID {
	return uuid.NewSHA1(reminderNamespace, []byte(kindVisit+"|"+cns))
}

// DoseReminderID derives the stable id of one dose reminder.
func DoseReminderID(vaccineName, doseLabel, cns string) uuid.UUID {
	return uuid.NewSHA1(reminderNamespace, fmt.Appendf(nil, "%s|%s|%s|%s", kindDose, vaccineName, doseLabel, cns))
}
