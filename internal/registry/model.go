package registry

import (
	"errors"
	"fmt"
	"strings"
)

// VisitStatus enumerates the home-visit workflow states of an individual.
type VisitStatus string

const (
	// VisitStatusNone marks an individual without any visit activity.
	VisitStatusNone VisitStatus = "Sem visita"
	// VisitStatusScheduled marks an individual with a scheduled home visit.
	VisitStatusScheduled VisitStatus = "Agendado"
	// VisitStatusVisited marks an individual whose visit has been registered.
	VisitStatusVisited VisitStatus = "Visitado"
)

const maxIdentifierLength = 190

var (
	// ErrInvalidCNS indicates that a health card number is empty or exceeds storage bounds.
	ErrInvalidCNS = errors.New("registry: invalid cns")
	// ErrDuplicateCNS indicates an attempted insert of an already registered cns.
	ErrDuplicateCNS = errors.New("registry: cns already registered")
	// ErrNotFound indicates that no individual matches the given cns.
	ErrNotFound = errors.New("registry: individual not found")
)

// CNS represents a validated national health card number.
type CNS string

// NewCNS validates raw input and returns a CNS.
func NewCNS(rawInput string) (CNS, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidCNS)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidCNS, maxIdentifierLength)
	}
	return CNS(trimmed), nil
}

// String returns the underlying card number.
func (c CNS) String() string {
	return string(c)
}

// Individual models a registered person with visit and synchronization state.
// The cns column is the stable identity; the numeric id exists only for SQLite.
type Individual struct {
	ID              int64       `gorm:"column:id;primaryKey;autoIncrement"`
	CNS             string      `gorm:"column:cns;size:190;not null;uniqueIndex:idx_individuo_cns"`
	Name            string      `gorm:"column:nome;size:190;not null"`
	BirthDate       string      `gorm:"column:data_nascimento;size:10;not null;default:''"`
	MotherName      string      `gorm:"column:nome_mae;size:190;not null;default:''"`
	FatherName      string      `gorm:"column:nome_pai;size:190;not null;default:''"`
	Phone           string      `gorm:"column:celular;size:32;not null;default:''"`
	Email           string      `gorm:"column:email;size:190;not null;default:''"`
	Address         string      `gorm:"column:endereco;size:255;not null;default:''"`
	FamilyRecord    string      `gorm:"column:prontuario_familia;size:64;not null;default:''"`
	VisitStatus     VisitStatus `gorm:"column:status_visita;size:32;not null;default:'Sem visita'"`
	UpdatedAtMillis int64       `gorm:"column:ultima_atualizacao;not null;index:idx_individuo_sync,priority:2"`
	UpdatedAtText   string      `gorm:"column:ultima_atualizacao_str;size:10;not null;default:''"`
	Synchronized    bool        `gorm:"column:is_synchronized;not null;default:false;index:idx_individuo_sync,priority:1"`
	DeletePending   bool        `gorm:"column:delete_pending;not null;default:false"`
	RegisteredByUID string      `gorm:"column:registered_by_uid;size:190;not null;default:'';index:idx_individuo_agent"`
}

// TableName provides the explicit table binding for GORM.
func (Individual) TableName() string {
	return "individuo"
}
