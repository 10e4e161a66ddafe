package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"gestoria/internal/model"
	"gestoria/internal/tax"
	"gestoria/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestEnv(t *testing.T) (*env, *bytes.Buffer) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	out := &bytes.Buffer{}
	now := time.Date(2025, 5, 10, 9, 0, 0, 0, time.UTC)
	return &env{db: db, log: logger.Nop(), out: out, now: func() time.Time { return now }}, out
}

func TestMigrateSeedAndRefresh(t *testing.T) {
	e, out := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, runMigrate(ctx, e, []string{"--skip-fixups"}))
	assert.Contains(t, out.String(), "schema migrated")

	out.Reset()
	require.NoError(t, runSeed(ctx, e, nil))
	assert.Contains(t, out.String(), "owner created: false")

	var roles int64
	require.NoError(t, e.db.Model(&model.Role{}).Count(&roles).Error)
	assert.EqualValues(t, 3, roles)

	out.Reset()
	require.NoError(t, runSeed(ctx, e, nil))
	assert.Contains(t, out.String(), "tax models: 0, fiscal periods: 0", "seeding twice creates nothing")

	out.Reset()
	require.NoError(t, runPeriodRefresh(ctx, e, nil))
	assert.Contains(t, out.String(), "periods opened:")

	out.Reset()
	require.NoError(t, runCalendarRefresh(ctx, e, nil))
	assert.Contains(t, out.String(), "calendar entries updated: 0", "already refreshed above")
}

func TestDueReportJSON(t *testing.T) {
	e, out := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, runMigrate(ctx, e, []string{"--skip-fixups"}))

	require.NoError(t, runDueReport(ctx, e, []string{"--year", "2025", "--json"}))
	var report tax.FilterReport
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.Equal(t, 2025, report.Year)
	assert.Empty(t, report.Due)

	out.Reset()
	require.NoError(t, runDueReport(ctx, e, nil))
	assert.Contains(t, out.String(), "DUE 2025")
}

func TestFlagErrors(t *testing.T) {
	e, _ := newTestEnv(t)
	ctx := context.Background()

	assert.Error(t, runDueReport(ctx, e, []string{"--year", "soon"}))
	assert.Error(t, runMarkOverdue(ctx, e, []string{"--force"}))
	assert.NoError(t, runGenerate(ctx, e, []string{"-h"}))
}

func TestCommandNamesSorted(t *testing.T) {
	names := commandNames()
	require.Len(t, names, len(commands))
	assert.IsNonDecreasing(t, names)
}
