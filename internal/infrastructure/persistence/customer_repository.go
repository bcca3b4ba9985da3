package persistence

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/printshop/backend/internal/domain/accounting"
	"github.com/printshop/backend/internal/domain/shared"
	"github.com/printshop/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormCustomerRepository implements accounting.CustomerRepository using GORM
type GormCustomerRepository struct {
	db *gorm.DB
}

var _ accounting.CustomerRepository = (*GormCustomerRepository)(nil)

// NewGormCustomerRepository creates a new GormCustomerRepository
func NewGormCustomerRepository(db *gorm.DB) *GormCustomerRepository {
	return &GormCustomerRepository{db: db}
}

// FindByID finds a customer by its ID
func (r *GormCustomerRepository) FindByID(ctx context.Context, id uuid.UUID) (*accounting.Customer, error) {
	var model models.CustomerModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// FindByExternalID finds a customer by its remote client id
func (r *GormCustomerRepository) FindByExternalID(ctx context.Context, externalID string) (*accounting.Customer, error) {
	var model models.CustomerModel
	if err := r.db.WithContext(ctx).
		Where("external_id = ?", externalID).
		First(&model).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// List returns one page of customers with the total count. Rows are ordered
// by name unless the filter names another whitelisted column.
func (r *GormCustomerRepository) List(ctx context.Context, filter accounting.ListFilter) ([]accounting.Customer, int64, error) {
	filter.Normalize()

	query := r.db.WithContext(ctx).Model(&models.CustomerModel{})
	if search := strings.TrimSpace(filter.Search); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(email) LIKE ? OR external_id = ?", like, like, search)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.CustomerModel
	if err := query.Order(customerSort.clause(filter.SortBy, filter.SortOrder)).
		Offset(filter.Offset()).
		Limit(filter.PageSize).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}

	customers := make([]accounting.Customer, 0, len(rows))
	for i := range rows {
		customers = append(customers, *rows[i].ToDomain())
	}
	return customers, total, nil
}

// Create inserts a new customer
func (r *GormCustomerRepository) Create(ctx context.Context, customer *accounting.Customer) error {
	if customer.ID == uuid.Nil {
		customer.ID = uuid.New()
	}
	return translateError(r.db.WithContext(ctx).Create(models.CustomerModelFromDomain(customer)).Error)
}

// Update saves the remote fields of an existing customer
func (r *GormCustomerRepository) Update(ctx context.Context, customer *accounting.Customer) error {
	model := models.CustomerModelFromDomain(customer)
	result := r.db.WithContext(ctx).
		Model(&models.CustomerModel{}).
		Where("id = ?", customer.ID).
		Updates(map[string]any{
			"name":       model.Name,
			"email":      model.Email,
			"phone":      model.Phone,
			"vat_id":     model.VATID,
			"updated_at": model.UpdatedAt,
		})
	if result.Error != nil {
		return translateError(result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}
