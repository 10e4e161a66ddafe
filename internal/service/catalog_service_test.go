package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriceWithVAT(t *testing.T) {
	tests := []struct {
		base, vat, want string
	}{
		{"100", "21", "121.00"},
		{"12.34", "21", "14.93"},
		{"50", "0", "50.00"},
		{"9.99", "10", "10.99"},
	}
	for _, tt := range tests {
		got := PriceWithVAT(decimal.RequireFromString(tt.base), decimal.RequireFromString(tt.vat))
		assert.Equal(t, tt.want, got.StringFixed(2), "%s + %s%%", tt.base, tt.vat)
	}
}

func TestCatalogService(t *testing.T) {
	r := newRepos(t)
	svc := NewCatalogService(r.catalog)
	ctx := context.Background()

	item, err := svc.CreateItem(ctx, CatalogItemRequest{
		Key: "  Alta-Autonomo ", Title: "Alta de autónomo", Unit: "trámite", BasePrice: decimal.RequireFromString("60"),
	})
	require.NoError(t, err)
	assert.Equal(t, "alta-autonomo", item.Key)
	assert.Equal(t, "21.00", item.VATPct)
	assert.Equal(t, "72.60", item.PriceWithVAT)
	assert.True(t, item.IsActive)

	_, err = svc.CreateItem(ctx, CatalogItemRequest{Key: "ALTA-AUTONOMO", Title: "dup"})
	assert.ErrorIs(t, err, ErrConflict)

	_, err = svc.CreateItem(ctx, CatalogItemRequest{Key: "negativo", Title: "x", BasePrice: decimal.NewFromInt(-1)})
	assert.ErrorIs(t, err, ErrInvalidInput)

	zero, inactive := decimal.Zero, false
	updated, err := svc.UpdateItem(ctx, item.ID, CatalogItemRequest{
		Key: "alta-autonomo", Title: "Alta de autónomo", BasePrice: decimal.RequireFromString("60"), VATPct: &zero, IsActive: &inactive,
	})
	require.NoError(t, err)
	assert.Equal(t, "60.00", updated.PriceWithVAT)
	assert.False(t, updated.IsActive)

	active, err := svc.ListItems(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := svc.ListItems(ctx, false)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "0.00", all[0].VATPct)

	require.NoError(t, svc.DeleteItem(ctx, item.ID))
	_, err = svc.GetItem(ctx, item.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
