package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/printshop/backend/internal/domain/accounting"
	"github.com/printshop/backend/internal/domain/shared"
	"github.com/printshop/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// ---------------------------------------------------------------------------
// Sync runs
// ---------------------------------------------------------------------------

// GormSyncRunRepository implements accounting.SyncRunRepository using GORM
type GormSyncRunRepository struct {
	db *gorm.DB
}

var _ accounting.SyncRunRepository = (*GormSyncRunRepository)(nil)

// NewGormSyncRunRepository creates a new GormSyncRunRepository
func NewGormSyncRunRepository(db *gorm.DB) *GormSyncRunRepository {
	return &GormSyncRunRepository{db: db}
}

// Create inserts a new run
func (r *GormSyncRunRepository) Create(ctx context.Context, run *accounting.SyncRun) error {
	return translateError(r.db.WithContext(ctx).Create(models.SyncRunModelFromDomain(run)).Error)
}

// Update saves the status, message and counters of a run
func (r *GormSyncRunRepository) Update(ctx context.Context, run *accounting.SyncRun) error {
	result := r.db.WithContext(ctx).
		Model(&models.SyncRunModel{}).
		Where("id = ?", run.ID).
		Select("finished_at", "status", "message", "counters").
		Updates(models.SyncRunModelFromDomain(run))
	if result.Error != nil {
		return translateError(result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// FindByID finds a run by its ID
func (r *GormSyncRunRepository) FindByID(ctx context.Context, id uuid.UUID) (*accounting.SyncRun, error) {
	var model models.SyncRunModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// ListRecent returns the most recent runs, newest first
func (r *GormSyncRunRepository) ListRecent(ctx context.Context, limit int) ([]accounting.SyncRun, error) {
	var rows []models.SyncRunModel
	if err := r.db.WithContext(ctx).
		Order("started_at DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	runs := make([]accounting.SyncRun, 0, len(rows))
	for i := range rows {
		runs = append(runs, *rows[i].ToDomain())
	}
	return runs, nil
}

// ---------------------------------------------------------------------------
// Sync log
// ---------------------------------------------------------------------------

// logBatchSize bounds the rows per INSERT statement
const logBatchSize = 200

// GormSyncLogRepository implements accounting.SyncLogRepository using GORM.
// It has no update path.
type GormSyncLogRepository struct {
	db *gorm.DB
}

var _ accounting.SyncLogRepository = (*GormSyncLogRepository)(nil)

// NewGormSyncLogRepository creates a new GormSyncLogRepository
func NewGormSyncLogRepository(db *gorm.DB) *GormSyncLogRepository {
	return &GormSyncLogRepository{db: db}
}

// Append inserts log entries
func (r *GormSyncLogRepository) Append(ctx context.Context, entries ...*accounting.SyncLogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	rows := make([]*models.SyncLogModel, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, models.SyncLogModelFromDomain(e))
	}
	return translateError(r.db.WithContext(ctx).CreateInBatches(rows, logBatchSize).Error)
}

// ListRecent returns the most recent entries, newest first
func (r *GormSyncLogRepository) ListRecent(ctx context.Context, limit int) ([]accounting.SyncLogEntry, error) {
	var rows []models.SyncLogModel
	if err := r.db.WithContext(ctx).
		Order("attempted_at DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return logEntries(rows), nil
}

// ListByRun returns the entries of one run in write order
func (r *GormSyncLogRepository) ListByRun(ctx context.Context, runID uuid.UUID) ([]accounting.SyncLogEntry, error) {
	var rows []models.SyncLogModel
	if err := r.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("attempted_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return logEntries(rows), nil
}

func logEntries(rows []models.SyncLogModel) []accounting.SyncLogEntry {
	entries := make([]accounting.SyncLogEntry, 0, len(rows))
	for i := range rows {
		entries = append(entries, rows[i].ToDomain())
	}
	return entries
}

// ---------------------------------------------------------------------------
// Sync state
// ---------------------------------------------------------------------------

// GormSyncStateRepository implements accounting.SyncStateRepository using GORM
type GormSyncStateRepository struct {
	db *gorm.DB
}

var _ accounting.SyncStateRepository = (*GormSyncStateRepository)(nil)

// NewGormSyncStateRepository creates a new GormSyncStateRepository
func NewGormSyncStateRepository(db *gorm.DB) *GormSyncStateRepository {
	return &GormSyncStateRepository{db: db}
}

// Get returns the saved state, or a zero state when none exists
func (r *GormSyncStateRepository) Get(ctx context.Context) (*accounting.SyncState, error) {
	var model models.SyncStateModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", models.SyncStateRowID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &accounting.SyncState{}, nil
	}
	if err != nil {
		return nil, err
	}
	return model.ToDomain(), nil
}

// Save upserts the single state row
func (r *GormSyncStateRepository) Save(ctx context.Context, state *accounting.SyncState) error {
	return translateError(r.db.WithContext(ctx).Save(models.SyncStateModelFromDomain(state)).Error)
}
