package remote

import (
	"github.com/mobile-luiz/VacinACS/internal/registry"
	"github.com/mobile-luiz/VacinACS/internal/vaccines"
)

// IndividualRecord is the flat wire shape stored at individuos/{sanitizedCns}.
// The json tags are the authoritative local-field ↔ remote-key mapping table.
// deletePending stays local-only and never crosses the wire.
type IndividualRecord struct {
	Name            string `json:"nome"`
	CNS             string `json:"cns"`
	BirthDate       string `json:"dataNascimento"`
	Address         string `json:"endereco"`
	FamilyRecord    string `json:"prontuarioFamilia"`
	MotherName      string `json:"nomeMae"`
	FatherName      string `json:"nomePai"`
	Phone           string `json:"celular"`
	Email           string `json:"email"`
	VisitStatus     string `json:"statusVisita"`
	UpdatedAtMillis int64  `json:"ultimaAtualizacao"`
	UpdatedAtText   string `json:"ultimaAtualizacaoStr"`
	RegisteredByUID string `json:"registeredByUid"`
	Synchronized    bool   `json:"synchronized"`
}

// DoseRecord is the flat wire shape stored at
// individuos/{sanitizedCns}/vacinas/{vacinaKey}. Patient identity fields are
// implied by the path and therefore excluded.
type DoseRecord struct {
	VaccineName     string `json:"nomeVacina"`
	DoseLabel       string `json:"dose"`
	Status          string `json:"status"`
	AppliedAt       string `json:"dataAplicacao,omitempty"`
	Lot             string `json:"lote,omitempty"`
	Laboratory      string `json:"labProdut,omitempty"`
	Facility        string `json:"unidade,omitempty"`
	AgentSignature  string `json:"assinaturaAcs,omitempty"`
	ScheduledFor    string `json:"dataAgendada,omitempty"`
	UpdatedAtMillis int64  `json:"ultimaAtualizacao"`
}

// EncodeIndividual maps a local row to its wire shape, stamping the owning
// agent and marking the payload as synchronized.
func EncodeIndividual(individual registry.Individual, agentUID string) IndividualRecord {
	return IndividualRecord{
		Name:            individual.Name,
		CNS:             individual.CNS,
		BirthDate:       individual.BirthDate,
		Address:         individual.Address,
		FamilyRecord:    individual.FamilyRecord,
		MotherName:      individual.MotherName,
		FatherName:      individual.FatherName,
		Phone:           individual.Phone,
		Email:           individual.Email,
		VisitStatus:     string(individual.VisitStatus),
		UpdatedAtMillis: individual.UpdatedAtMillis,
		UpdatedAtText:   individual.UpdatedAtText,
		RegisteredByUID: agentUID,
		Synchronized:    true,
	}
}

// ToIndividual maps a pulled record onto the local model. The delete-pending
// flag is zero-valued here; the store's upsert preserves the local value.
func (r IndividualRecord) ToIndividual() registry.Individual {
	return registry.Individual{
		CNS:             r.CNS,
		Name:            r.Name,
		BirthDate:       r.BirthDate,
		MotherName:      r.MotherName,
		FatherName:      r.FatherName,
		Phone:           r.Phone,
		Email:           r.Email,
		Address:         r.Address,
		FamilyRecord:    r.FamilyRecord,
		VisitStatus:     registry.VisitStatus(r.VisitStatus),
		UpdatedAtMillis: r.UpdatedAtMillis,
		UpdatedAtText:   r.UpdatedAtText,
		Synchronized:    r.Synchronized,
		RegisteredByUID: r.RegisteredByUID,
	}
}

// EncodeDose maps a local dose row to its wire shape.
func EncodeDose(dose vaccines.Dose) DoseRecord {
	return DoseRecord{
		VaccineName:     dose.VaccineName,
		DoseLabel:       dose.DoseLabel,
		Status:          string(dose.Status),
		AppliedAt:       dose.AppliedAt,
		Lot:             dose.Lot,
		Laboratory:      dose.Laboratory,
		Facility:        dose.Facility,
		AgentSignature:  dose.AgentSignature,
		ScheduledFor:    dose.ScheduledFor,
		UpdatedAtMillis: dose.UpdatedAtMillis,
	}
}
