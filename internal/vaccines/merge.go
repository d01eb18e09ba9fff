package vaccines

// MergeResult carries the merged dose card plus the rows the repair pass had
// to correct. Corrected rows must be persisted and queued for re-sync by the
// caller; the merge itself never touches storage.
type MergeResult struct {
	Doses    []Dose
	Repaired []Dose
}

// Merge overlays locally saved dose rows onto the canonical calendar and
// repairs sequence inconsistencies. Saved rows replace the calendar entry with
// the same (vaccine name, dose label); unmatched entries stay as pending
// placeholders; ordering always follows the calendar.
//
// Repair invariant: within one vaccine's sequence, no pending dose may be
// followed by an applied dose or one carrying a booked date. Violations are
// forced back to the pending baseline instead of being rejected: the merge
// self-heals and never fails.
func Merge(calendar, saved []Dose) MergeResult {
	savedByIdentity := make(map[string]Dose, len(saved))
	for _, dose := range saved {
		savedByIdentity[dose.VaccineName+"|"+dose.DoseLabel] = dose
	}

	merged := make([]Dose, 0, len(calendar))
	for _, entry := range calendar {
		if stored, ok := savedByIdentity[entry.VaccineName+"|"+entry.DoseLabel]; ok {
			merged = append(merged, stored)
			continue
		}
		merged = append(merged, entry)
	}

	var repaired []Dose
	for i := range merged {
		if merged[i].Status != DoseStatusPending {
			continue
		}
		// Single forward pass over the rest of this vaccine's group.
		for j := i + 1; j < len(merged) && merged[j].VaccineName == merged[i].VaccineName; j++ {
			if merged[j].Status != DoseStatusApplied && merged[j].ScheduledFor == "" {
				continue
			}
			cleared := merged[j].ClearApplication()
			merged[j] = cleared
			repaired = append(repaired, cleared)
		}
	}

	return MergeResult{Doses: merged, Repaired: repaired}
}
