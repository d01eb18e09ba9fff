package vaccines

import "testing"

func TestNextDoseFollowsSeriesChains(t *testing.T) {
	tests := []struct {
		name            string
		vaccineName     string
		doseLabel       string
		expectedDose    string
		expectedVaccine string
	}{
		{name: "penta first to second", vaccineName: "Penta", doseLabel: "1ª Dose", expectedDose: "2ª Dose", expectedVaccine: "Penta"},
		{name: "penta second to third", vaccineName: "Penta", doseLabel: "2ª Dose", expectedDose: "3ª Dose", expectedVaccine: "Penta"},
		{name: "penta crosses into dtp", vaccineName: "Penta", doseLabel: "3ª Dose", expectedDose: "1º Reforço", expectedVaccine: "DTP"},
		{name: "dtp first to second booster", vaccineName: "DTP", doseLabel: "1º Reforço", expectedDose: "2º Reforço", expectedVaccine: "DTP"},
		{name: "vip crosses into vop", vaccineName: "VIP", doseLabel: "3ª Dose", expectedDose: "1º Reforço", expectedVaccine: "VOP"},
		{name: "vop booster chain", vaccineName: "VOP", doseLabel: "1º Reforço", expectedDose: "2º Reforço", expectedVaccine: "VOP"},
		{name: "hpv first to second", vaccineName: "HPV", doseLabel: "1ª Dose", expectedDose: "2ª Dose", expectedVaccine: "HPV"},
		{name: "hpv numeric label variant", vaccineName: "HPV", doseLabel: "Dose 1", expectedDose: "2ª Dose", expectedVaccine: "HPV"},
		{name: "rotavirus first to second", vaccineName: "Rotavírus humano", doseLabel: "1ª Dose", expectedDose: "2ª Dose", expectedVaccine: "Rotavírus humano"},
		{name: "pneumo first to second", vaccineName: "Pneumocócica 10V (conjugada)", doseLabel: "1ª Dose", expectedDose: "2ª Dose", expectedVaccine: "Pneumocócica 10V (conjugada)"},
		{name: "meningo second to booster", vaccineName: "Meningocócica C (conjugada)", doseLabel: "2ª Dose", expectedDose: "Reforço", expectedVaccine: "Meningocócica C (conjugada)"},
		{name: "covid third to fourth", vaccineName: "Covid-19", doseLabel: "3ª Dose", expectedDose: "4ª Dose", expectedVaccine: "Covid-19"},
		{name: "case insensitive lookup", vaccineName: "penta", doseLabel: "1ª dose", expectedDose: "2ª Dose", expectedVaccine: "Penta"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			successor, ok := NextDose(tc.vaccineName, tc.doseLabel)
			if !ok {
				t.Fatalf("expected a successor for %s %s", tc.vaccineName, tc.doseLabel)
			}
			if successor.DoseLabel != tc.expectedDose {
				t.Fatalf("expected dose %q, got %q", tc.expectedDose, successor.DoseLabel)
			}
			if successor.VaccineName != tc.expectedVaccine {
				t.Fatalf("expected vaccine %q, got %q", tc.expectedVaccine, successor.VaccineName)
			}
		})
	}
}

func TestNextDoseStopsAtTerminalDoses(t *testing.T) {
	tests := []struct {
		name        string
		vaccineName string
		doseLabel   string
	}{
		{name: "single dose marker", vaccineName: "BCG", doseLabel: "Dose Única"},
		{name: "at birth marker", vaccineName: "Hepatite B", doseLabel: "Ao nascer"},
		{name: "final dose marker", vaccineName: "Hepatite A", doseLabel: "Dose Final"},
		{name: "last dtp booster", vaccineName: "DTP", doseLabel: "2º Reforço"},
		{name: "last vop booster", vaccineName: "VOP", doseLabel: "2º Reforço"},
		{name: "rotavirus series end", vaccineName: "Rotavírus humano", doseLabel: "2ª Dose"},
		{name: "hpv series end", vaccineName: "HPV", doseLabel: "2ª Dose"},
		{name: "pneumo booster end", vaccineName: "Pneumocócica 10V (conjugada)", doseLabel: "Reforço"},
		{name: "meningo booster end", vaccineName: "Meningocócica C (conjugada)", doseLabel: "Reforço"},
		{name: "unknown vaccine", vaccineName: "Imaginária", doseLabel: "1ª Dose"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if successor, ok := NextDose(tc.vaccineName, tc.doseLabel); ok {
				t.Fatalf("expected no successor, got %s %s", successor.VaccineName, successor.DoseLabel)
			}
		})
	}
}

func TestDoseKeyNormalization(t *testing.T) {
	tests := []struct {
		name        string
		vaccineName string
		doseLabel   string
		expected    string
	}{
		{name: "ordinal stripped", vaccineName: "Penta", doseLabel: "1ª Dose", expected: "PENTA_1_DOSE"},
		{name: "spaces and slash in name", vaccineName: "Febre Amarela", doseLabel: "Dose Única", expected: "FEBRE_AMARELA_DOSE_UNICA"},
		{name: "hyphenated name", vaccineName: "COVID-19", doseLabel: "2ª Dose", expected: "COVID_19_2_DOSE"},
		{name: "accented booster", doseLabel: "1º Reforço", vaccineName: "DTP", expected: "DTP_1º_REFORÇO"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if key := DoseKey(tc.vaccineName, tc.doseLabel); key != tc.expected {
				t.Fatalf("expected key %q, got %q", tc.expected, key)
			}
		})
	}
}

func TestDoseKeyIsStable(t *testing.T) {
	first := DoseKey("Hepatite B", "Ao Nascer")
	second := DoseKey("Hepatite B", "Ao Nascer")
	if first != second {
		t.Fatalf("expected identical keys, got %q and %q", first, second)
	}
}
