package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/printshop/backend/internal/domain/accounting"
	"github.com/printshop/backend/internal/domain/shared"
	"github.com/printshop/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormOrderRepository implements accounting.OrderRepository using GORM
type GormOrderRepository struct {
	db *gorm.DB
}

var _ accounting.OrderRepository = (*GormOrderRepository)(nil)

// NewGormOrderRepository creates a new GormOrderRepository
func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

// FindByKey finds an order by its document number
func (r *GormOrderRepository) FindByKey(ctx context.Context, key accounting.NaturalKey) (*accounting.Order, error) {
	if key.Type != accounting.DocTypeOrder {
		return nil, shared.ErrNotFound
	}
	var model models.OrderModel
	if err := r.db.WithContext(ctx).Where("doc_number = ?", key.Number).First(&model).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// Create inserts a new order
func (r *GormOrderRepository) Create(ctx context.Context, order *accounting.Order) error {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	return translateError(r.db.WithContext(ctx).Create(models.OrderModelFromDomain(order)).Error)
}

// Update saves every field of an existing order
func (r *GormOrderRepository) Update(ctx context.Context, order *accounting.Order) error {
	result := r.db.WithContext(ctx).
		Model(&models.OrderModel{}).
		Where("id = ?", order.ID).
		Select("*").
		Omit("id", "created_at").
		Updates(models.OrderModelFromDomain(order))
	if result.Error != nil {
		return translateError(result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}
