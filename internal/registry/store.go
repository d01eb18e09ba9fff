package registry

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()
)

// StoreConfig configures the local store adapter for individuals.
type StoreConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Store provides CRUD and sync-flag access to the individuo table.
// Instances are cheap wrappers over the shared connection.
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

// mutableColumns lists every column an upsert may write. delete_pending is
// deliberately absent: it is local-only state and must survive pulled updates.
func mutableColumns(individual Individual) map[string]any {
	return map[string]any{
		"nome":                   individual.Name,
		"data_nascimento":        individual.BirthDate,
		"nome_mae":               individual.MotherName,
		"nome_pai":               individual.FatherName,
		"celular":                individual.Phone,
		"email":                  individual.Email,
		"endereco":               individual.Address,
		"prontuario_familia":     individual.FamilyRecord,
		"status_visita":          individual.VisitStatus,
		"ultima_atualizacao":     individual.UpdatedAtMillis,
		"ultima_atualizacao_str": individual.UpdatedAtText,
		"is_synchronized":        individual.Synchronized,
		"registered_by_uid":      individual.RegisteredByUID,
	}
}

// Insert registers a new individual, rejecting duplicate card numbers before
// the row reaches the database constraint.
func (s *Store) Insert(ctx context.Context, individual Individual) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&Individual{}).
		Where("cns = ?", individual.CNS).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrDuplicateCNS
	}
	if err := s.db.WithContext(ctx).Create(&individual).Error; err != nil {
		return err
	}
	s.logger.Debug("individual inserted", zap.String("cns", individual.CNS))
	return nil
}

// SaveOrUpdate upserts an individual by cns. On update the delete-pending flag
// is left untouched so that a pulled remote record cannot resurrect a row the
// agent queued for deletion.
func (s *Store) SaveOrUpdate(ctx context.Context, individual Individual) error {
	result := s.db.WithContext(ctx).Model(&Individual{}).
		Where("cns = ?", individual.CNS).
		Updates(mutableColumns(individual))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Create(&individual).Error; err != nil {
		return err
	}
	s.logger.Debug("individual created on upsert", zap.String("cns", individual.CNS))
	return nil
}

// FindByCNS loads one individual.
func (s *Store) FindByCNS(ctx context.Context, cns string) (Individual, error) {
	var individual Individual
	err := s.db.WithContext(ctx).Where("cns = ?", cns).Take(&individual).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Individual{}, ErrNotFound
	}
	if err != nil {
		return Individual{}, err
	}
	return individual, nil
}

// ListActive returns every individual not queued for deletion, newest first.
func (s *Store) ListActive(ctx context.Context) ([]Individual, error) {
	var individuals []Individual
	err := s.db.WithContext(ctx).
		Where("delete_pending = ?", false).
		Order("ultima_atualizacao DESC").
		Find(&individuals).Error
	return individuals, err
}

// ListActiveByAgent returns active individuals registered by one agent.
func (s *Store) ListActiveByAgent(ctx context.Context, agentUID string) ([]Individual, error) {
	var individuals []Individual
	err := s.db.WithContext(ctx).
		Where("delete_pending = ? AND registered_by_uid = ?", false, agentUID).
		Order("ultima_atualizacao DESC").
		Find(&individuals).Error
	return individuals, err
}

// CountByAgent counts active individuals for an agent.
func (s *Store) CountByAgent(ctx context.Context, agentUID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Individual{}).
		Where("delete_pending = ? AND registered_by_uid = ?", false, agentUID).
		Count(&count).Error
	return count, err
}

// SearchByAgent pages through an agent's active individuals, optionally
// filtering by a name or cns fragment.
func (s *Store) SearchByAgent(ctx context.Context, agentUID, query string, offset, limit int) ([]Individual, error) {
	tx := s.db.WithContext(ctx).
		Where("delete_pending = ? AND registered_by_uid = ?", false, agentUID)
	if query != "" {
		wildcard := "%" + query + "%"
		tx = tx.Where("nome LIKE ? OR cns LIKE ?", wildcard, wildcard)
	}
	if limit > 0 {
		tx = tx.Offset(offset).Limit(limit)
	}
	var individuals []Individual
	err := tx.Order("ultima_atualizacao DESC").Find(&individuals).Error
	return individuals, err
}

// ListByVisitStatus filters an agent's active individuals on visit status.
func (s *Store) ListByVisitStatus(ctx context.Context, agentUID string, status VisitStatus, query string) ([]Individual, error) {
	tx := s.db.WithContext(ctx).
		Where("delete_pending = ? AND registered_by_uid = ? AND status_visita = ?", false, agentUID, status)
	if query != "" {
		wildcard := "%" + query + "%"
		tx = tx.Where("nome LIKE ? OR cns LIKE ?", wildcard, wildcard)
	}
	var individuals []Individual
	err := tx.Order("ultima_atualizacao DESC").Find(&individuals).Error
	return individuals, err
}

// ListUnsynced returns rows awaiting push, oldest update first so that items
// stuck behind repeated failures do not starve newer ones.
func (s *Store) ListUnsynced(ctx context.Context) ([]Individual, error) {
	var individuals []Individual
	err := s.db.WithContext(ctx).
		Where("is_synchronized = ? AND delete_pending = ?", false, false).
		Order("ultima_atualizacao ASC").
		Find(&individuals).Error
	return individuals, err
}

// MarkSynced flags a row as pushed, stamping the timestamp that was written
// to the remote store.
func (s *Store) MarkSynced(ctx context.Context, cns string, updatedAtMillis int64) error {
	result := s.db.WithContext(ctx).Model(&Individual{}).
		Where("cns = ?", cns).
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

// MarkUnsynced clears the sync flag, queueing the row for the next push.
func (s *Store) MarkUnsynced(ctx context.Context, cns string) error {
	result := s.db.WithContext(ctx).Model(&Individual{}).
		Where("cns = ?", cns).
		Updates(map[string]any{
			"is_synchronized":    false,
			"ultima_atualizacao": s.clock().UnixMilli(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateVisitStatus records a visit-state transition and clears the sync flag.
// The visit date lands in the text column that drives reminder scheduling.
func (s *Store) UpdateVisitStatus(ctx context.Context, cns string, status VisitStatus, visitDate string) error {
	result := s.db.WithContext(ctx).Model(&Individual{}).
		Where("cns = ?", cns).
		Updates(map[string]any{
			"status_visita":          status,
			"ultima_atualizacao_str": visitDate,
			"ultima_atualizacao":     s.clock().UnixMilli(),
			"is_synchronized":        false,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	s.logger.Debug("visit status updated",
		zap.String("cns", cns),
		zap.String("status", string(status)))
	return nil
}

// MarkForDeletion soft-deletes a row pending remote deletion confirmation.
func (s *Store) MarkForDeletion(ctx context.Context, cns string) error {
	return s.setDeletePending(ctx, cns, true)
}

// UnmarkForDeletion reverts a pending deletion.
func (s *Store) UnmarkForDeletion(ctx context.Context, cns string) error {
	return s.setDeletePending(ctx, cns, false)
}

func (s *Store) setDeletePending(ctx context.Context, cns string, pending bool) error {
	result := s.db.WithContext(ctx).Model(&Individual{}).
		Where("cns = ?", cns).
		Updates(map[string]any{
			"delete_pending":     pending,
			"is_synchronized":    false,
			"ultima_atualizacao": s.clock().UnixMilli(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// PendingDeletions returns the card numbers queued for remote deletion.
func (s *Store) PendingDeletions(ctx context.Context) ([]string, error) {
	var cnss []string
	err := s.db.WithContext(ctx).Model(&Individual{}).
		Where("delete_pending = ?", true).
		Pluck("cns", &cnss).Error
	return cnss, err
}

// HardDelete removes a row permanently. Callers invoke it only after the
// corresponding remote subtree deletion succeeded.
func (s *Store) HardDelete(ctx context.Context, cns string) error {
	result := s.db.WithContext(ctx).Where("cns = ?", cns).Delete(&Individual{})
	if result.Error != nil {
		return result.Error
	}
	s.logger.Debug("individual hard-deleted",
		zap.String("cns", cns),
		zap.Int64("rows", result.RowsAffected))
	return nil
}
