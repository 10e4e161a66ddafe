package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"gestoria/internal/model"
	"gestoria/internal/websocket"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memPeriodStore is an in-memory FiscalPeriodStore.
type memPeriodStore struct {
	periods []model.FiscalPeriod
	failOn  uuid.UUID
	writes  int
}

func (m *memPeriodStore) ListForRefresh(context.Context) ([]model.FiscalPeriod, error) {
	out := make([]model.FiscalPeriod, len(m.periods))
	copy(out, m.periods)
	return out, nil
}

func (m *memPeriodStore) UpdateStatus(_ context.Context, id uuid.UUID, status string) error {
	if id == m.failOn {
		return errors.New("disk full")
	}
	for i := range m.periods {
		if m.periods[i].ID == id {
			m.periods[i].Status = status
			m.writes++
		}
	}
	return nil
}

func (m *memPeriodStore) status(label string) string {
	for _, p := range m.periods {
		if p.Label == label {
			return p.Status
		}
	}
	return ""
}

func period2025(label string, startMonth, endMonth time.Month, endDay int, status string) model.FiscalPeriod {
	p := model.FiscalPeriod{Year: 2025, Label: label, Status: status}
	p.ID = uuid.New()
	p.StartsAt = day(2025, startMonth, 1)
	p.EndsAt = day(2025, endMonth, endDay)
	return p
}

func TestPeriodStatusUpdaterRun(t *testing.T) {
	store := &memPeriodStore{periods: []model.FiscalPeriod{
		period2025("1T", 1, 3, 31, model.PeriodStatusOpen),
		period2025("2T", 4, 6, 30, model.PeriodStatusPending),
		period2025("3T", 7, 9, 30, model.PeriodStatusPending),
		period2025("4T", 10, 12, 31, model.PeriodStatusPending),
	}}
	updater := NewPeriodStatusUpdater(store, nil, nil)
	ctx := context.Background()

	result, err := updater.Run(ctx, day(2025, 5, 10))
	require.NoError(t, err)
	assert.Equal(t, RefreshResult{OpenedCount: 1, ClosedCount: 1, UnchangedCount: 2}, result)
	assert.Equal(t, model.PeriodStatusClosed, store.status("1T"))
	assert.Equal(t, model.PeriodStatusOpen, store.status("2T"))
	assert.Equal(t, model.PeriodStatusPending, store.status("3T"))

	writes := store.writes
	again, err := updater.Run(ctx, day(2025, 5, 10))
	require.NoError(t, err)
	assert.Equal(t, RefreshResult{UnchangedCount: 4}, again)
	assert.Equal(t, writes, store.writes)
}

func TestPeriodStatusUpdaterReopensExtendedPeriod(t *testing.T) {
	p := period2025("3T", 7, 11, 30, model.PeriodStatusClosed)
	store := &memPeriodStore{periods: []model.FiscalPeriod{p}}

	result, err := NewPeriodStatusUpdater(store, nil, nil).Run(context.Background(), day(2025, 10, 15))
	require.NoError(t, err)
	assert.Equal(t, 1, result.OpenedCount)
	assert.Equal(t, model.PeriodStatusOpen, store.status("3T"))
}

func TestPeriodStatusUpdaterStopsOnFirstError(t *testing.T) {
	first := period2025("1T", 1, 3, 31, model.PeriodStatusPending)
	second := period2025("2T", 4, 6, 30, model.PeriodStatusPending)
	store := &memPeriodStore{periods: []model.FiscalPeriod{first, second}, failOn: first.ID}

	result, err := NewPeriodStatusUpdater(store, nil, nil).Run(context.Background(), day(2025, 8, 1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 0, result.ClosedCount)
	assert.Equal(t, model.PeriodStatusPending, store.status("2T"))
}

func TestPeriodStatusUpdaterRefreshesCalendar(t *testing.T) {
	r := newRepos(t)
	ctx := context.Background()
	open := r.entry(t, "303", "3T", 2025, day(2025, 10, 1), day(2025, 10, 20), model.CalendarStatusPendiente)
	closed := r.entry(t, "303", "2T", 2025, day(2025, 7, 1), day(2025, 7, 20), model.CalendarStatusAbierto)
	r.entry(t, "303", "4T", 2026, day(2026, 1, 1), day(2026, 1, 30), model.CalendarStatusPendiente)

	updater := NewPeriodStatusUpdater(r.periods, r.calendar, nil)
	result, err := updater.Run(ctx, day(2025, 10, 15))
	require.NoError(t, err)
	assert.Equal(t, 2, result.CalendarUpdated)

	got, err := r.calendar.FindByID(ctx, open.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CalendarStatusAbierto, got.Status)
	got, err = r.calendar.FindByID(ctx, closed.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CalendarStatusCerrado, got.Status)
}

func TestFiscalPeriodServiceCRUD(t *testing.T) {
	r := newRepos(t)
	ctx := context.Background()
	n := &recordingNotifier{}
	svc := NewFiscalPeriodService(r.periods, NewPeriodStatusUpdater(r.periods, r.calendar, nil), n)
	svc.(*fiscalPeriodService).now = fixedClock(day(2025, 10, 15))

	created, err := svc.CreatePeriod(ctx, FiscalPeriodRequest{
		Year: 2025, Label: "4T", Kind: model.PeriodKindQuarter, StartsAt: "01/10/2025", EndsAt: "2025-12-31",
	})
	require.NoError(t, err)
	assert.Equal(t, model.PeriodStatusOpen, created.Status)
	assert.Equal(t, "2025-10-01", created.StartsAt)

	_, err = svc.CreatePeriod(ctx, FiscalPeriodRequest{
		Year: 2025, Label: "4T", Kind: model.PeriodKindQuarter, StartsAt: "2025-10-01", EndsAt: "2025-12-31",
	})
	assert.ErrorIs(t, err, ErrConflict)

	_, err = svc.CreatePeriod(ctx, FiscalPeriodRequest{
		Year: 2025, Label: "M13", Kind: model.PeriodKindMonth, StartsAt: "2025-12-31", EndsAt: "2025-12-01",
	})
	assert.ErrorIs(t, err, ErrInvalidInput)

	updated, err := svc.UpdatePeriod(ctx, created.ID, FiscalPeriodRequest{
		Year: 2025, Label: "4T", Kind: model.PeriodKindQuarter, StartsAt: "2025-10-01", EndsAt: "2025-10-10",
	})
	require.NoError(t, err)
	assert.Equal(t, model.PeriodStatusClosed, updated.Status)

	result, err := svc.RefreshStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.UnchangedCount)
	require.Len(t, n.logs, 1)
	assert.Equal(t, websocket.LevelSuccess, n.logs[0].Level)

	require.NoError(t, svc.DeletePeriod(ctx, created.ID))
	_, err = svc.GetPeriod(ctx, created.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
