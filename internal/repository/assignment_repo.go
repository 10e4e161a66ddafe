package repository

import (
	"context"

	"gestoria/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AssignmentRepository interface {
	Create(ctx context.Context, a *model.ClientTaxAssignment) error
	Update(ctx context.Context, a *model.ClientTaxAssignment) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.ClientTaxAssignment, error)
	FindActive(ctx context.Context, clientID uuid.UUID, modelCode string) (*model.ClientTaxAssignment, error)
	ListByClient(ctx context.Context, clientID uuid.UUID) ([]model.ClientTaxAssignment, error)
	// ListActive returns active assignments of active clients, client preloaded.
	ListActive(ctx context.Context) ([]model.ClientTaxAssignment, error)
	ListActiveByModel(ctx context.Context, modelCode string) ([]model.ClientTaxAssignment, error)
}

type assignmentRepository struct {
	db *gorm.DB
}

func NewAssignmentRepository(db *gorm.DB) AssignmentRepository {
	return &assignmentRepository{db: db}
}

func (r *assignmentRepository) Create(ctx context.Context, a *model.ClientTaxAssignment) error {
	return GetDB(ctx, r.db).Omit("Client").Create(a).Error
}

func (r *assignmentRepository) Update(ctx context.Context, a *model.ClientTaxAssignment) error {
	return GetDB(ctx, r.db).Omit("Client").Save(a).Error
}

func (r *assignmentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.ClientTaxAssignment{}).Error
}

func (r *assignmentRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.ClientTaxAssignment, error) {
	var a model.ClientTaxAssignment
	if err := GetDB(ctx, r.db).Preload("Client").First(&a, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *assignmentRepository) FindActive(ctx context.Context, clientID uuid.UUID, modelCode string) (*model.ClientTaxAssignment, error) {
	var a model.ClientTaxAssignment
	err := GetDB(ctx, r.db).
		Where("client_id = ? AND tax_model_code = ? AND is_active = ? AND end_date IS NULL", clientID, modelCode, true).
		First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *assignmentRepository) ListByClient(ctx context.Context, clientID uuid.UUID) ([]model.ClientTaxAssignment, error) {
	var list []model.ClientTaxAssignment
	err := GetDB(ctx, r.db).Where("client_id = ?", clientID).Order("tax_model_code ASC, start_date DESC").Find(&list).Error
	return list, err
}

func (r *assignmentRepository) activeQuery(ctx context.Context) *gorm.DB {
	return GetDB(ctx, r.db).
		Joins("Client").
		Where("client_tax_assignments.is_active = ? AND client_tax_assignments.end_date IS NULL", true).
		Where("Client.is_active = ?", true)
}

func (r *assignmentRepository) ListActive(ctx context.Context) ([]model.ClientTaxAssignment, error) {
	var list []model.ClientTaxAssignment
	err := r.activeQuery(ctx).
		Order("Client.business_name ASC, client_tax_assignments.tax_model_code ASC").
		Find(&list).Error
	return list, err
}

func (r *assignmentRepository) ListActiveByModel(ctx context.Context, modelCode string) ([]model.ClientTaxAssignment, error) {
	var list []model.ClientTaxAssignment
	err := r.activeQuery(ctx).
		Where("client_tax_assignments.tax_model_code = ?", modelCode).
		Order("Client.business_name ASC").
		Find(&list).Error
	return list, err
}
