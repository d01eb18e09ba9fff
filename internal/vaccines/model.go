package vaccines

import "strings"

// DoseStatus enumerates the lifecycle states of one dose row.
type DoseStatus string

const (
	// DoseStatusPending marks a dose from the canonical calendar not yet acted on.
	DoseStatusPending DoseStatus = "Pendente"
	// DoseStatusScheduled marks a dose with a future application date booked.
	DoseStatusScheduled DoseStatus = "Agendada"
	// DoseStatusApplied marks a dose that was administered.
	DoseStatusApplied DoseStatus = "Aplicada"
	// DoseStatusCancelled marks a dose whose application was revoked.
	DoseStatusCancelled DoseStatus = "Cancelada"
)

// Dose models one vaccine dose of an individual. Identity is the composite
// (cns_individuo, vacina_key); the numeric id exists only for SQLite.
type Dose struct {
	ID              int64      `gorm:"column:id;primaryKey;autoIncrement"`
	CNS             string     `gorm:"column:cns_individuo;size:190;not null;uniqueIndex:idx_vacina_composite,priority:1"`
	Key             string     `gorm:"column:vacina_key;size:190;not null;uniqueIndex:idx_vacina_composite,priority:2"`
	VaccineName     string     `gorm:"column:nome_vacina;size:190;not null"`
	DoseLabel       string     `gorm:"column:dose;size:64;not null"`
	Status          DoseStatus `gorm:"column:status;size:32;not null;default:'Pendente'"`
	AppliedAt       string     `gorm:"column:data_aplicacao;size:10;not null;default:''"`
	Lot             string     `gorm:"column:lote;size:64;not null;default:''"`
	Laboratory      string     `gorm:"column:lab_produt;size:190;not null;default:''"`
	Facility        string     `gorm:"column:unidade;size:190;not null;default:''"`
	AgentSignature  string     `gorm:"column:assinatura_acs;size:190;not null;default:''"`
	ScheduledFor    string     `gorm:"column:data_agendada;size:10;not null;default:''"`
	Synchronized    bool       `gorm:"column:is_synchronized;not null;default:false"`
	UpdatedAtMillis int64      `gorm:"column:ultima_atualizacao;not null;default:0"`
}

// TableName provides the explicit table binding for GORM.
func (Dose) TableName() string {
	return "vacinas"
}

// ClearApplication resets a dose to its calendar baseline: pending, no
// application data, no booking. The sync flag is cleared so the repaired
// row travels on the next push.
func (d Dose) ClearApplication() Dose {
	d.Status = DoseStatusPending
	d.AppliedAt = ""
	d.Lot = ""
	d.Laboratory = ""
	d.Facility = ""
	d.AgentSignature = ""
	d.ScheduledFor = ""
	d.Synchronized = false
	return d
}

var accentReplacer = strings.NewReplacer(
	"Ã", "A",
	"ª", "",
	"Á", "A",
	"É", "E",
	"Í", "I",
	"Ó", "O",
	"Ú", "U",
)

var separatorReplacer = strings.NewReplacer(
	" ", "_",
	"/", "_",
	"-", "_",
)

// DoseKey derives the normalized composite key for (vaccine name, dose label).
// Uppercase, separators unified to underscores, ordinal markers and accents
// stripped from the label. Both halves of a sequence ("Penta", "2ª Dose")
// and its remote path segment share this key.
func DoseKey(vaccineName, doseLabel string) string {
	namePart := separatorReplacer.Replace(strings.ToUpper(vaccineName))
	dosePart := accentReplacer.Replace(strings.ReplaceAll(strings.ToUpper(doseLabel), " ", "_"))
	return namePart + "_" + dosePart
}
