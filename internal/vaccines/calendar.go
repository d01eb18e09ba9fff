package vaccines

// calendarEntry is one slot of the canonical immunization calendar.
type calendarEntry struct {
	vaccineName string
	doseLabel   string
}

// defaultCalendar is the canonical ordered immunization calendar. It is static
// data, never persisted: the merged dose card is recomputed from it on read.
var defaultCalendar = []calendarEntry{
	// up to 12 months
	{"BCG", "Dose Única"},
	{"Hepatite B", "Dose ao Nascer"},
	{"Penta", "1ª Dose"},
	{"Penta", "2ª Dose"},
	{"Penta", "3ª Dose"},
	{"Rotavírus humano", "1ª Dose"},
	{"Rotavírus humano", "2ª Dose"},
	{"Pneumocócica 10V (conjugada)", "1ª Dose"},
	{"Pneumocócica 10V (conjugada)", "2ª Dose"},
	{"VIP", "1ª Dose"},
	{"VIP", "2ª Dose"},
	{"VIP", "3ª Dose"},
	{"Meningocócica C (conjugada)", "1ª Dose"},
	{"Meningocócica C (conjugada)", "2ª Dose"},
	{"Febre Amarela", "Dose"},
	{"Tríplice viral", "1ª Dose"},
	{"Covid-19", "1ª Dose"},
	{"Covid-19", "2ª Dose"},
	{"Covid-19", "3ª Dose"},

	// from 12 months on
	{"Pneumocócica 10V (conjugada)", "Reforço"},
	{"Meningocócica C (conjugada)", "Reforço"},
	{"DTP", "1º Reforço"},
	{"DTP", "2º Reforço"},
	{"VOP", "1º Reforço"},
	{"VOP", "2º Reforço"},
	{"Tetraviral", "Uma dose"},
	{"Varicela", "Uma dose"},
	{"Febre Amarela", "Dose de Reforço"},
	{"Hepatite A", "Uma dose"},
	{"HPV", "Dose 1"},
	{"HPV", "2ª Dose"},
	{"Pneumocócica 23V (povos indígenas)", "Uma dose"},

	// campaigns and other strategies
	{"Campanha/Outra", "Dose"},
	{"Estratégia/Outra", "Dose"},
	{"Influenza (Gripe)", "Dose"},
	{"Sarampo", "Dose"},
	{"Meningocócica ACWY", "Dose"},
	{"Difteria e Tétano (dT)", "Dose"},
	{"Poliomielite (Campanha)", "Dose"},
}

// DefaultCalendar materializes the canonical calendar for one individual as
// pending placeholder doses, in calendar order.
func DefaultCalendar(cns string) []Dose {
	doses := make([]Dose, 0, len(defaultCalendar))
	for _, entry := range defaultCalendar {
		doses = append(doses, Dose{
			CNS:         cns,
			Key:         DoseKey(entry.vaccineName, entry.doseLabel),
			VaccineName: entry.vaccineName,
			DoseLabel:   entry.doseLabel,
			Status:      DoseStatusPending,
		})
	}
	return doses
}

// CalendarSize reports the number of entries in the canonical calendar.
func CalendarSize() int {
	return len(defaultCalendar)
}
