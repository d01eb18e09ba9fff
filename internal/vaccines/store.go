package vaccines

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()

	// ErrNotFound indicates that no dose matches the composite key.
	ErrNotFound = errors.New("vaccines: dose not found")
)

// upsertColumns lists the columns rewritten when a composite key collides.
// Mirrors the table's replace-on-conflict contract: last write wins.
var upsertColumns = []string{
	"nome_vacina",
	"dose",
	"status",
	"data_aplicacao",
	"lote",
	"lab_produt",
	"unidade",
	"assinatura_acs",
	"data_agendada",
	"is_synchronized",
	"ultima_atualizacao",
}

// StoreConfig configures the local store adapter for dose rows.
type StoreConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Store provides CRUD and sync-flag access to the vacinas table.
type Store struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// NewStore constructs a Store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Store{db: cfg.Database, clock: clock, logger: logger}, nil
}

// SaveOrUpdate upserts a dose by its composite key, stamping the update time
// when the caller did not.
func (s *Store) SaveOrUpdate(ctx context.Context, dose Dose) error {
	if dose.UpdatedAtMillis == 0 {
		dose.UpdatedAtMillis = s.clock().UnixMilli()
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "cns_individuo"},
			{Name: "vacina_key"},
		},
		DoUpdates: clause.AssignmentColumns(upsertColumns),
	}).Create(&dose).Error
	if err != nil {
		return err
	}
	s.logger.Debug("dose saved",
		zap.String("cns", dose.CNS),
		zap.String("vacina_key", dose.Key))
	return nil
}

// Get loads one dose by composite key.
func (s *Store) Get(ctx context.Context, cns, key string) (Dose, error) {
	var dose Dose
	err := s.db.WithContext(ctx).
		Where("cns_individuo = ? AND vacina_key = ?", cns, key).
		Take(&dose).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Dose{}, ErrNotFound
	}
	if err != nil {
		return Dose{}, err
	}
	return dose, nil
}

// ListByCNS returns every dose of one individual, ordered by key.
func (s *Store) ListByCNS(ctx context.Context, cns string) ([]Dose, error) {
	var doses []Dose
	err := s.db.WithContext(ctx).
		Where("cns_individuo = ?", cns).
		Order("vacina_key ASC").
		Find(&doses).Error
	return doses, err
}

// ListByAgent returns the doses of every individual registered by an agent.
func (s *Store) ListByAgent(ctx context.Context, agentUID string) ([]Dose, error) {
	var doses []Dose
	err := s.db.WithContext(ctx).
		Joins("JOIN individuo ON individuo.cns = vacinas.cns_individuo").
		Where("individuo.registered_by_uid = ?", agentUID).
		Find(&doses).Error
	return doses, err
}

// ListUnsyncedByCNS returns the unsynced doses of one individual.
func (s *Store) ListUnsyncedByCNS(ctx context.Context, cns string) ([]Dose, error) {
	var doses []Dose
	err := s.db.WithContext(ctx).
		Where("cns_individuo = ? AND is_synchronized = ?", cns, false).
		Find(&doses).Error
	return doses, err
}

// ListUnsynced returns every unsynced dose, oldest update first.
func (s *Store) ListUnsynced(ctx context.Context) ([]Dose, error) {
	var doses []Dose
	err := s.db.WithContext(ctx).
		Where("is_synchronized = ?", false).
		Order("ultima_atualizacao ASC").
		Find(&doses).Error
	return doses, err
}

// MarkSynced flags a dose as pushed with the timestamp sent to the remote.
func (s *Store) MarkSynced(ctx context.Context, cns, key string, updatedAtMillis int64) error {
	result := s.db.WithContext(ctx).Model(&Dose{}).
		Where("cns_individuo = ? AND vacina_key = ?", cns, key).
		Updates(map[string]any{
			"is_synchronized":    true,
			"ultima_atualizacao": updatedAtMillis,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteByCNS removes every dose of one individual. Invoked only after the
// remote subtree deletion succeeded.
func (s *Store) DeleteByCNS(ctx context.Context, cns string) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("cns_individuo = ?", cns).
		Delete(&Dose{})
	if result.Error != nil {
		return 0, result.Error
	}
	s.logger.Debug("doses deleted for individual",
		zap.String("cns", cns),
		zap.Int64("rows", result.RowsAffected))
	return result.RowsAffected, nil
}

// Delete removes one dose by composite key (cancelled bookings).
func (s *Store) Delete(ctx context.Context, cns, key string) error {
	result := s.db.WithContext(ctx).
		Where("cns_individuo = ? AND vacina_key = ?", cns, key).
		Delete(&Dose{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
