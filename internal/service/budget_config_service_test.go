package service

import (
	"context"
	"testing"
	"time"

	"gestoria/internal/cache"
	"gestoria/internal/database"
	"gestoria/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBudgetConfigCaching(t *testing.T) {
	r := newRepos(t)
	ctx := context.Background()
	_, err := database.SeedPricingConfig(ctx, r.db, model.BudgetTypeAutonomo)
	require.NoError(t, err)

	mem := cache.NewMemoryCache(time.Minute, time.Minute)
	svc := NewBudgetConfigService(r.pricing, r.audit, r.tx, mem)

	cfg, err := svc.GetConfig(ctx, "autonomo")
	require.NoError(t, err)
	assert.Equal(t, model.BudgetTypeAutonomo, cfg.BudgetType)
	assert.Len(t, cfg.InvoiceBrackets, 5)
	assert.Len(t, cfg.Models, 6)

	cached, err := mem.Get(ctx, pricingCacheKey(model.BudgetTypeAutonomo))
	require.NoError(t, err)
	assert.NotEmpty(t, cached)

	req := *cfg
	req.MonthlyMinimum = decimal.NewFromInt(75)
	req.Models = req.Models[:1]
	off := false
	req.Services[0].IsActive = &off
	updated, err := svc.UpdateConfig(ctx, model.BudgetTypeAutonomo, req, "")
	require.NoError(t, err)
	assert.True(t, updated.MonthlyMinimum.Equal(decimal.NewFromInt(75)))

	_, err = mem.Get(ctx, pricingCacheKey(model.BudgetTypeAutonomo))
	assert.ErrorIs(t, err, cache.ErrMiss)

	again, err := svc.GetConfig(ctx, model.BudgetTypeAutonomo)
	require.NoError(t, err)
	assert.Len(t, again.Models, 1)
	require.NotNil(t, again.Services[0].IsActive)
	assert.False(t, *again.Services[0].IsActive)

	calc, err := svc.CalculatorConfig(ctx, model.BudgetTypeAutonomo)
	require.NoError(t, err)
	assert.Len(t, calc.Models, 1)
	assert.Len(t, calc.Services, len(again.Services)-1)
}

func TestBudgetConfigValidation(t *testing.T) {
	r := newRepos(t)
	ctx := context.Background()
	svc := NewBudgetConfigService(r.pricing, r.audit, r.tx, nil)

	_, err := svc.GetConfig(ctx, model.BudgetTypeEmpresa)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.GetConfig(ctx, "SOCIEDAD")
	assert.ErrorIs(t, err, ErrInvalidInput)

	max := decimal.NewFromInt(10)
	bad := PricingConfigDTO{
		InvoiceBrackets: []BracketDTO{{Min: decimal.NewFromInt(20), Max: &max, Value: decimal.NewFromInt(45)}},
		RevenueBrackets: []BracketDTO{{Min: decimal.Zero, Value: decimal.NewFromInt(1)}},
	}
	_, err = svc.UpdateConfig(ctx, model.BudgetTypeEmpresa, bad, "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	good := bad
	good.InvoiceBrackets = []BracketDTO{{Min: decimal.Zero, Value: decimal.NewFromInt(45)}}
	good.Models = []ModelPriceDTO{{Code: "303", Name: "IVA", Price: decimal.NewFromInt(15)}, {Code: "303", Name: "IVA", Price: decimal.NewFromInt(15)}}
	_, err = svc.UpdateConfig(ctx, model.BudgetTypeEmpresa, good, "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	good.Models = good.Models[:1]
	created, err := svc.UpdateConfig(ctx, model.BudgetTypeEmpresa, good, "")
	require.NoError(t, err)
	assert.Equal(t, "Tarifa empresa", created.Name)

	got, err := svc.GetConfig(ctx, model.BudgetTypeEmpresa)
	require.NoError(t, err)
	assert.Len(t, got.InvoiceBrackets, 1)
	assert.Nil(t, got.InvoiceBrackets[0].Max)
}
