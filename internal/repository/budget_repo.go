package repository

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"gestoria/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BudgetFilter narrows List. Zero values are ignored.
type BudgetFilter struct {
	Status string
	Type   string
	Year   int
	Search string
}

// BudgetStats aggregates budgets per status.
type BudgetStats struct {
	Total         int64           `json:"total"`
	Draft         int64           `json:"draft"`
	Sent          int64           `json:"sent"`
	Accepted      int64           `json:"accepted"`
	Rejected      int64           `json:"rejected"`
	AcceptedTotal decimal.Decimal `json:"accepted_total"`
}

type BudgetRepository interface {
	Create(ctx context.Context, b *model.Budget) error
	Update(ctx context.Context, b *model.Budget) error
	ReplaceItems(ctx context.Context, budgetID uuid.UUID, items []model.BudgetItem) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Budget, error)
	List(ctx context.Context, filter BudgetFilter, page, limit int) ([]model.Budget, int64, error)
	// NextNumber returns the next PRE-YYYY-NNN number for year, counting deleted budgets too.
	NextNumber(ctx context.Context, year int) (string, error)
	Stats(ctx context.Context, year int) (BudgetStats, error)
}

type budgetRepository struct {
	db *gorm.DB
}

func NewBudgetRepository(db *gorm.DB) BudgetRepository {
	return &budgetRepository{db: db}
}

func (r *budgetRepository) Create(ctx context.Context, b *model.Budget) error {
	return GetDB(ctx, r.db).Create(b).Error
}

func (r *budgetRepository) Update(ctx context.Context, b *model.Budget) error {
	return GetDB(ctx, r.db).Omit("Items").Save(b).Error
}

func (r *budgetRepository) ReplaceItems(ctx context.Context, budgetID uuid.UUID, items []model.BudgetItem) error {
	db := GetDB(ctx, r.db)
	if err := db.Where("budget_id = ?", budgetID).Delete(&model.BudgetItem{}).Error; err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	for i := range items {
		items[i].BudgetID = budgetID
	}
	return db.Create(&items).Error
}

func (r *budgetRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.Budget{}).Error
}

func (r *budgetRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Budget, error) {
	var b model.Budget
	err := GetDB(ctx, r.db).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		First(&b, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *budgetRepository) List(ctx context.Context, filter BudgetFilter, page, limit int) ([]model.Budget, int64, error) {
	var budgets []model.Budget
	var total int64

	query := GetDB(ctx, r.db).Model(&model.Budget{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.Year > 0 {
		query = query.Where("year = ?", filter.Year)
	}
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		query = query.Where("number LIKE ? OR prospect_name LIKE ? OR tax_id LIKE ?", like, like, like)
	}
	query = query.Session(&gorm.Session{})

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := query.Order("created_at DESC").Offset(offset(page, limit)).Limit(limit).Find(&budgets).Error; err != nil {
		return nil, 0, err
	}
	return budgets, total, nil
}

func (r *budgetRepository) NextNumber(ctx context.Context, year int) (string, error) {
	prefix := fmt.Sprintf("PRE-%d-", year)

	var last []string
	// FOR UPDATE locks the scanned range on MySQL; sqlite ignores it.
	err := GetDB(ctx, r.db).Unscoped().Model(&model.Budget{}).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("number LIKE ?", prefix+"%").
		Order("LENGTH(number) DESC, number DESC").
		Limit(1).
		Pluck("number", &last).Error
	if err != nil {
		return "", err
	}

	next := 1
	if len(last) > 0 {
		n, err := strconv.Atoi(strings.TrimPrefix(last[0], prefix))
		if err != nil {
			return "", fmt.Errorf("malformed budget number %q: %w", last[0], err)
		}
		next = n + 1
	}
	return fmt.Sprintf("%s%03d", prefix, next), nil
}

func (r *budgetRepository) Stats(ctx context.Context, year int) (BudgetStats, error) {
	type row struct {
		Status string
		Count  int64
		Amount decimal.Decimal
	}
	var rows []row

	query := GetDB(ctx, r.db).Model(&model.Budget{}).
		Select("status, COUNT(*) AS count, COALESCE(SUM(total), 0) AS amount").
		Group("status")
	if year > 0 {
		query = query.Where("year = ?", year)
	}
	if err := query.Scan(&rows).Error; err != nil {
		return BudgetStats{}, err
	}

	stats := BudgetStats{AcceptedTotal: decimal.Zero}
	for _, rw := range rows {
		stats.Total += rw.Count
		switch rw.Status {
		case model.BudgetStatusDraft:
			stats.Draft = rw.Count
		case model.BudgetStatusSent:
			stats.Sent = rw.Count
		case model.BudgetStatusAccepted:
			stats.Accepted = rw.Count
			stats.AcceptedTotal = rw.Amount.Round(2)
		case model.BudgetStatusRejected:
			stats.Rejected = rw.Count
		}
	}
	return stats, nil
}
