package repository

import (
	"context"

	"gestoria/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TemplateRepository interface {
	Create(ctx context.Context, t *model.DocumentTemplate) error
	Update(ctx context.Context, t *model.DocumentTemplate) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.DocumentTemplate, error)
	List(ctx context.Context, templateType string) ([]model.DocumentTemplate, error)

	CreateNotification(ctx context.Context, t *model.NotificationTemplate) error
	UpdateNotification(ctx context.Context, t *model.NotificationTemplate) error
	DeleteNotification(ctx context.Context, id uuid.UUID) error
	FindNotificationByID(ctx context.Context, id uuid.UUID) (*model.NotificationTemplate, error)
	ListNotifications(ctx context.Context, templateType string) ([]model.NotificationTemplate, error)
}

type templateRepository struct {
	db *gorm.DB
}

func NewTemplateRepository(db *gorm.DB) TemplateRepository {
	return &templateRepository{db: db}
}

func (r *templateRepository) Create(ctx context.Context, t *model.DocumentTemplate) error {
	return GetDB(ctx, r.db).Create(t).Error
}

func (r *templateRepository) Update(ctx context.Context, t *model.DocumentTemplate) error {
	return GetDB(ctx, r.db).Save(t).Error
}

func (r *templateRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.DocumentTemplate{}).Error
}

func (r *templateRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.DocumentTemplate, error) {
	var t model.DocumentTemplate
	if err := GetDB(ctx, r.db).First(&t, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *templateRepository) List(ctx context.Context, templateType string) ([]model.DocumentTemplate, error) {
	var list []model.DocumentTemplate
	query := GetDB(ctx, r.db).Order("name ASC")
	if templateType != "" {
		query = query.Where("type = ?", templateType)
	}
	err := query.Find(&list).Error
	return list, err
}

func (r *templateRepository) CreateNotification(ctx context.Context, t *model.NotificationTemplate) error {
	return GetDB(ctx, r.db).Create(t).Error
}

func (r *templateRepository) UpdateNotification(ctx context.Context, t *model.NotificationTemplate) error {
	return GetDB(ctx, r.db).Save(t).Error
}

func (r *templateRepository) DeleteNotification(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.NotificationTemplate{}).Error
}

func (r *templateRepository) FindNotificationByID(ctx context.Context, id uuid.UUID) (*model.NotificationTemplate, error) {
	var t model.NotificationTemplate
	if err := GetDB(ctx, r.db).First(&t, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *templateRepository) ListNotifications(ctx context.Context, templateType string) ([]model.NotificationTemplate, error) {
	var list []model.NotificationTemplate
	query := GetDB(ctx, r.db).Order("name ASC")
	if templateType != "" {
		query = query.Where("type = ?", templateType)
	}
	err := query.Find(&list).Error
	return list, err
}
