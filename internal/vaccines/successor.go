package vaccines

import (
	"fmt"
	"strings"
)

// Successor names the dose that follows the current one in the immunization
// calendar. The vaccine name may differ from the current one: national program
// sequences rename mid-series (Penta's 3rd dose is followed by DTP's booster).
type Successor struct {
	DoseLabel   string
	VaccineName string
}

// terminalMarkers are label phrases that close a sequence outright.
var terminalMarkers = []string{
	"única",
	"unica",
	"ao nascer",
	"nascimento",
	"uma dose",
	"dose final",
	"3º reforço",
}

// NextDose resolves the successor of (vaccineName, doseLabel). It is pure and
// deterministic: inputs are trimmed and lowercased before matching, terminal
// doses and unrecognized pairs both report ok=false. An unknown pair is not
// an error; the calendar simply has nothing after it.
func NextDose(vaccineName, doseLabel string) (Successor, bool) {
	dose := strings.ToLower(strings.TrimSpace(doseLabel))
	vaccine := strings.ToLower(strings.TrimSpace(vaccineName))

	isDose := func(number int) bool {
		variants := []string{
			fmt.Sprintf("%dª dose", number),
			fmt.Sprintf("%da dose", number),
			fmt.Sprintf("dose %d", number),
			fmt.Sprintf("dose%d", number),
			fmt.Sprintf("dose %d completa", number),
		}
		for _, variant := range variants {
			if strings.Contains(dose, variant) {
				return true
			}
		}
		return false
	}

	terminal := strings.Contains(dose, "2º reforço")
	for _, marker := range terminalMarkers {
		if strings.Contains(dose, marker) {
			terminal = true
			break
		}
	}
	switch {
	case strings.Contains(vaccine, "rotavírus") && isDose(2):
		terminal = true
	case strings.Contains(vaccine, "pneumocócica") && strings.Contains(dose, "reforço"):
		terminal = true
	case strings.Contains(vaccine, "meningocócica c (conjugada)") && strings.Contains(dose, "reforço"):
		terminal = true
	case strings.Contains(vaccine, "hpv") && isDose(2):
		terminal = true
	}
	if terminal {
		return Successor{}, false
	}

	switch vaccine {
	case "penta":
		switch {
		case isDose(1):
			return Successor{DoseLabel: "2ª Dose", VaccineName: "Penta"}, true
		case isDose(2):
			return Successor{DoseLabel: "3ª Dose", VaccineName: "Penta"}, true
		case isDose(3):
			// Sequence continues under the DTP name.
			return Successor{DoseLabel: "1º Reforço", VaccineName: "DTP"}, true
		}
	case "dtp":
		if strings.Contains(dose, "1º reforço") {
			return Successor{DoseLabel: "2º Reforço", VaccineName: vaccineName}, true
		}
	case "vip":
		switch {
		case isDose(1):
			return Successor{DoseLabel: "2ª Dose", VaccineName: "VIP"}, true
		case isDose(2):
			return Successor{DoseLabel: "3ª Dose", VaccineName: "VIP"}, true
		case isDose(3):
			// Sequence continues under the VOP name.
			return Successor{DoseLabel: "1º Reforço", VaccineName: "VOP"}, true
		}
	case "hpv":
		if isDose(1) {
			return Successor{DoseLabel: "2ª Dose", VaccineName: vaccineName}, true
		}
	case "covid-19", "campanha/outra":
		switch {
		case isDose(1):
			return Successor{DoseLabel: "2ª Dose", VaccineName: vaccineName}, true
		case isDose(2):
			return Successor{DoseLabel: "3ª Dose", VaccineName: vaccineName}, true
		case isDose(3):
			return Successor{DoseLabel: "4ª Dose", VaccineName: vaccineName}, true
		}
	case "rotavírus humano", "pneumocócica 10v (conjugada)":
		if isDose(1) {
			return Successor{DoseLabel: "2ª Dose", VaccineName: vaccineName}, true
		}
	case "meningocócica c (conjugada)":
		switch {
		case isDose(1):
			return Successor{DoseLabel: "2ª Dose", VaccineName: vaccineName}, true
		case isDose(2):
			return Successor{DoseLabel: "Reforço", VaccineName: vaccineName}, true
		}
	case "vop":
		if strings.Contains(dose, "1º reforço") {
			return Successor{DoseLabel: "2º Reforço", VaccineName: "VOP"}, true
		}
	}

	return Successor{}, false
}
