package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/printshop/backend/internal/domain/accounting"
	"github.com/printshop/backend/internal/domain/shared"
	"github.com/printshop/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormInvoiceRepository implements accounting.InvoiceRepository using GORM
type GormInvoiceRepository struct {
	db *gorm.DB
}

var _ accounting.InvoiceRepository = (*GormInvoiceRepository)(nil)

// NewGormInvoiceRepository creates a new GormInvoiceRepository
func NewGormInvoiceRepository(db *gorm.DB) *GormInvoiceRepository {
	return &GormInvoiceRepository{db: db}
}

// WithTx returns a new repository instance with the given transaction
func (r *GormInvoiceRepository) WithTx(tx *gorm.DB) *GormInvoiceRepository {
	return &GormInvoiceRepository{db: tx}
}

func preloadItems(db *gorm.DB) *gorm.DB {
	return db.Preload("Items", func(db *gorm.DB) *gorm.DB {
		return db.Order("line_no ASC")
	})
}

// FindByID finds an invoice with its items
func (r *GormInvoiceRepository) FindByID(ctx context.Context, id uuid.UUID) (*accounting.Invoice, error) {
	var model models.InvoiceModel
	if err := preloadItems(r.db.WithContext(ctx)).First(&model, "id = ?", id).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// FindByKey finds an invoice by its natural key
func (r *GormInvoiceRepository) FindByKey(ctx context.Context, key accounting.NaturalKey) (*accounting.Invoice, error) {
	if key.Number == "" {
		return nil, shared.ErrNotFound
	}
	var model models.InvoiceModel
	if err := preloadItems(r.db.WithContext(ctx)).
		Where("doc_number = ? AND doc_type = ?", key.Number, string(key.Type)).
		First(&model).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// FindPending returns pending invoices, oldest first
func (r *GormInvoiceRepository) FindPending(ctx context.Context, limit int) ([]accounting.Invoice, error) {
	query := preloadItems(r.db.WithContext(ctx)).
		Where("sync_status = ?", accounting.InvoiceSyncPending).
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []models.InvoiceModel
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	invoices := make([]accounting.Invoice, 0, len(rows))
	for i := range rows {
		invoices = append(invoices, *rows[i].ToDomain())
	}
	return invoices, nil
}

// Create inserts an invoice and its items
func (r *GormInvoiceRepository) Create(ctx context.Context, invoice *accounting.Invoice) error {
	if invoice.ID == uuid.Nil {
		invoice.ID = uuid.New()
	}
	model := models.InvoiceModelFromDomain(invoice)
	return translateError(r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(model).Error; err != nil {
			return err
		}
		if len(model.Items) == 0 {
			return nil
		}
		return tx.Create(&model.Items).Error
	}))
}

// Update saves the invoice and replaces its items
func (r *GormInvoiceRepository) Update(ctx context.Context, invoice *accounting.Invoice) error {
	model := models.InvoiceModelFromDomain(invoice)
	return translateError(r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.InvoiceModel{}).
			Where("id = ?", invoice.ID).
			Select("*").
			Omit("id", "created_at", clause.Associations).
			Updates(model)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return shared.ErrNotFound
		}

		if err := tx.Where("invoice_id = ?", invoice.ID).Delete(&models.InvoiceItemModel{}).Error; err != nil {
			return err
		}
		if len(model.Items) == 0 {
			return nil
		}
		return tx.Create(&model.Items).Error
	}))
}

// MarkSynced writes the push result columns without touching the items
func (r *GormInvoiceRepository) MarkSynced(ctx context.Context, invoice *accounting.Invoice) error {
	result := r.db.WithContext(ctx).
		Model(&models.InvoiceModel{}).
		Where("id = ?", invoice.ID).
		Updates(map[string]any{
			"doc_number":  invoice.DocNumber,
			"external_id": invoice.ExternalID,
			"sync_status": invoice.SyncStatus,
			"sync_error":  invoice.SyncError,
			"synced_at":   invoice.SyncedAt,
			"updated_at":  invoice.UpdatedAt,
		})
	if result.Error != nil {
		return translateError(result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// CountByKey counts invoices with the natural key
func (r *GormInvoiceRepository) CountByKey(ctx context.Context, key accounting.NaturalKey) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.InvoiceModel{}).
		Where("doc_number = ? AND doc_type = ?", key.Number, string(key.Type)).
		Count(&count).Error
	return count, err
}
