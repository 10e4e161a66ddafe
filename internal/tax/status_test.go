package tax

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"gestoria/internal/model"
)

func TestNextPeriodStatus(t *testing.T) {
	start, end := day(2025, 10, 1), day(2025, 10, 20)
	now := time.Date(2025, 10, 10, 15, 30, 0, 0, time.UTC)

	for _, current := range []string{model.PeriodStatusPending, model.PeriodStatusClosed, model.PeriodStatusOpen} {
		assert.Equal(t, model.PeriodStatusOpen, NextPeriodStatus(current, start, end, now), current)
	}
}

func TestNextPeriodStatusInclusiveBounds(t *testing.T) {
	start, end := day(2025, 10, 1), day(2025, 10, 20)
	assert.Equal(t, model.PeriodStatusOpen, NextPeriodStatus(model.PeriodStatusPending, start, end, time.Date(2025, 10, 1, 0, 0, 1, 0, time.UTC)))
	assert.Equal(t, model.PeriodStatusOpen, NextPeriodStatus(model.PeriodStatusPending, start, end, time.Date(2025, 10, 20, 23, 59, 0, 0, time.UTC)))
	assert.Equal(t, model.PeriodStatusClosed, NextPeriodStatus(model.PeriodStatusOpen, start, end, day(2025, 10, 21)))
}

func TestNextPeriodStatusBeforeStartKeepsStatus(t *testing.T) {
	start, end := day(2025, 11, 1), day(2025, 11, 20)
	now := day(2025, 10, 1)
	assert.Equal(t, model.PeriodStatusPending, NextPeriodStatus(model.PeriodStatusPending, start, end, now))
	assert.Equal(t, model.PeriodStatusClosed, NextPeriodStatus(model.PeriodStatusClosed, start, end, now))
}

func TestNextPeriodStatusClosedStaysClosedAndIsIdempotent(t *testing.T) {
	start, end := day(2025, 1, 1), day(2025, 1, 20)
	now := day(2025, 6, 1)

	status := model.PeriodStatusOpen
	for i := 0; i < 3; i++ {
		status = NextPeriodStatus(status, start, end, now)
		assert.Equal(t, model.PeriodStatusClosed, status)
	}
}

func TestCalendarStatusAt(t *testing.T) {
	start, end := day(2025, 10, 1), day(2025, 10, 20)
	assert.Equal(t, model.CalendarStatusPendiente, CalendarStatusAt(start, end, day(2025, 9, 30)))
	assert.Equal(t, model.CalendarStatusAbierto, CalendarStatusAt(start, end, day(2025, 10, 20)))
	assert.Equal(t, model.CalendarStatusCerrado, CalendarStatusAt(start, end, day(2025, 10, 21)))
}
