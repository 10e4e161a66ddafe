package service

import (
	"context"
	"testing"

	"gestoria/internal/model"
	"gestoria/internal/repository"
	"gestoria/internal/websocket"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type obligationFixture struct {
	repos      repos
	notifier   *recordingNotifier
	assign     ClientTaxService
	obligation ObligationService
	client     *model.Client
	m10        *model.TaxCalendarEntry
}

// newObligationFixture seeds an EMPRESA client with three open windows for
// October 2025: 349 M10, 349 3T and 303 M10.
func newObligationFixture(t *testing.T) obligationFixture {
	t.Helper()
	r := newRepos(t)
	n := &recordingNotifier{}
	now := fixedClock(day(2025, 10, 15))

	assign := NewClientTaxService(r.assignments, r.clients, r.models, r.calendar, r.filings, r.audit, n)
	assign.(*clientTaxService).now = now
	obligation := NewObligationService(r.filings, r.assignments, r.clients, r.calendar, r.audit, n)
	obligation.(*obligationService).now = now

	client := r.client(t, "Innoquest SL", "B12345678", model.ClientTypeEmpresa)
	m10 := r.entry(t, "349", "M10", 2025, day(2025, 10, 1), day(2025, 10, 20), model.CalendarStatusAbierto)
	r.entry(t, "349", "3T", 2025, day(2025, 10, 1), day(2025, 10, 20), model.CalendarStatusAbierto)
	r.entry(t, "303", "M10", 2025, day(2025, 10, 1), day(2025, 10, 20), model.CalendarStatusAbierto)

	return obligationFixture{repos: r, notifier: n, assign: assign, obligation: obligation, client: client, m10: m10}
}

func (f obligationFixture) assign349(t *testing.T) *AssignmentResponse {
	t.Helper()
	resp, err := f.assign.CreateAssignment(context.Background(), CreateAssignmentRequest{
		ClientID:     f.client.ID.String(),
		TaxModelCode: "349",
		Periodicity:  model.PeriodicityMensual,
		StartDate:    "2025-01-01",
	}, "")
	require.NoError(t, err)
	return resp
}

func TestAssignmentGeneratesOnlyMatchingPeriods(t *testing.T) {
	f := newObligationFixture(t)
	ctx := context.Background()

	resp := f.assign349(t)
	assert.Equal(t, 1, resp.GeneratedFilings)
	assert.True(t, resp.IsActive)
	assert.Equal(t, 1, f.notifier.count(websocket.NotifyTax))

	filings, total, err := f.obligation.ListFilings(ctx, FilingListQuery{ClientID: f.client.ID.String()}, 1, 20)
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	assert.Equal(t, "M10", filings[0].Period)
	assert.Equal(t, f.m10.ID.String(), filings[0].CalendarEntryID)
	assert.Equal(t, "2025-10-20", filings[0].DueDate)
	assert.Equal(t, 5, filings[0].DaysToDue)
	assert.Equal(t, model.FilingStatusPending, filings[0].Status)
}

func TestDueReportAgreesWithGeneration(t *testing.T) {
	f := newObligationFixture(t)
	ctx := context.Background()
	f.assign349(t)

	report, err := f.obligation.DueReport(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 2025, report.Year)
	require.Len(t, report.Due, 1)
	assert.Equal(t, "Innoquest SL", report.Due[0].ClientName)
	assert.Equal(t, []string{"M10"}, report.Due[0].Periods)
	assert.Empty(t, report.Skipped)

	result, err := f.obligation.GenerateAuto(ctx)
	require.NoError(t, err)
	assert.Equal(t, GenerationResult{Assignments: 1, Created: 0, Existing: 1}, result)
}

func TestGenerateForPeriodRequiresOpenEntry(t *testing.T) {
	f := newObligationFixture(t)
	ctx := context.Background()
	f.assign349(t)

	closed := f.repos.entry(t, "349", "M09", 2025, day(2025, 9, 1), day(2025, 9, 20), model.CalendarStatusCerrado)
	_, err := f.obligation.GenerateForPeriod(ctx, closed.ID.String())
	assert.ErrorIs(t, err, ErrInvalidInput)

	result, err := f.obligation.GenerateForPeriod(ctx, f.m10.ID.String())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Existing)

	_, err = f.obligation.GenerateForPeriod(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGenerationSkipsWindowsBeforeStart(t *testing.T) {
	f := newObligationFixture(t)
	ctx := context.Background()

	_, err := f.assign.CreateAssignment(ctx, CreateAssignmentRequest{
		ClientID:     f.client.ID.String(),
		TaxModelCode: "303",
		Periodicity:  model.PeriodicityMensual,
		StartDate:    "2025-11-01",
	}, "")
	require.NoError(t, err)

	result, err := f.obligation.GenerateForClient(ctx, f.client.ID.String())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Created)
	assert.Equal(t, 1, result.Skipped)
}

func TestGenerateAutoMaterialisesFraccionadoInstalments(t *testing.T) {
	f := newObligationFixture(t)
	ctx := context.Background()

	october := f.repos.entry(t, "202", "Octubre", 2025, day(2025, 10, 1), day(2025, 10, 20), model.CalendarStatusAbierto)
	f.repos.entry(t, "202", "Diciembre", 2025, day(2025, 12, 1), day(2025, 12, 22), model.CalendarStatusPendiente)
	f.repos.entry(t, "202", "Extra", 2025, day(2025, 10, 1), day(2025, 10, 20), model.CalendarStatusAbierto)

	require.NoError(t, f.repos.assignments.Create(ctx, &model.ClientTaxAssignment{
		ClientID:     f.client.ID,
		TaxModelCode: "202",
		Periodicity:  model.PeriodicityFraccionado,
		StartDate:    day(2025, 1, 1),
		IsActive:     true,
	}))

	result, err := f.obligation.GenerateAuto(ctx)
	require.NoError(t, err)
	assert.Equal(t, GenerationResult{Assignments: 1, Created: 1}, result)

	filings, total, err := f.obligation.ListFilings(ctx, FilingListQuery{ClientID: f.client.ID.String()}, 1, 20)
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	assert.Equal(t, "Octubre", filings[0].Period)
	assert.Equal(t, october.ID.String(), filings[0].CalendarEntryID)

	// the due report keeps matching label shapes only
	report, err := f.obligation.DueReport(ctx, 2025)
	require.NoError(t, err)
	assert.Empty(t, report.Due)

	again, err := f.obligation.GenerateAuto(ctx)
	require.NoError(t, err)
	assert.Equal(t, GenerationResult{Assignments: 1, Existing: 1}, again)
}

func TestCompleteAndMarkOverdue(t *testing.T) {
	f := newObligationFixture(t)
	ctx := context.Background()
	f.assign349(t)

	// A second client whose filing is left pending.
	other := f.repos.client(t, "Tienda Sur SL", "B87654321", model.ClientTypeEmpresa)
	_, err := f.assign.CreateAssignment(ctx, CreateAssignmentRequest{
		ClientID: other.ID.String(), TaxModelCode: "349", Periodicity: model.PeriodicityMensual, StartDate: "2025-01-01",
	}, "")
	require.NoError(t, err)

	filings, _, err := f.obligation.ListFilings(ctx, FilingListQuery{ClientID: f.client.ID.String()}, 1, 20)
	require.NoError(t, err)
	require.Len(t, filings, 1)

	userID := uuid.NewString()
	done, err := f.obligation.CompleteFiling(ctx, filings[0].ID, CompleteFilingRequest{Amount: "123.456"}, userID)
	require.NoError(t, err)
	assert.Equal(t, model.FilingStatusCompleted, done.Status)
	require.NotNil(t, done.Amount)
	assert.Equal(t, "123.46", *done.Amount)
	require.NotNil(t, done.CompletedBy)
	assert.Equal(t, userID, *done.CompletedBy)

	_, err = f.obligation.CompleteFiling(ctx, filings[0].ID, CompleteFilingRequest{}, userID)
	assert.ErrorIs(t, err, ErrConflict)
	_, err = f.obligation.UpdateFiling(ctx, filings[0].ID, UpdateFilingRequest{Status: model.FilingStatusInProgress})
	assert.ErrorIs(t, err, ErrConflict)

	n, err := f.obligation.MarkOverdue(ctx, day(2025, 10, 20))
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	n, err = f.obligation.MarkOverdue(ctx, day(2025, 10, 21))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.Equal(t, 1, countAction(f.notifier, websocket.ActionReminder))

	stats, err := f.obligation.Stats(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, repository.FilingStats{Total: 2, Completed: 1, Overdue: 1}, *stats)

	own, err := f.obligation.Stats(ctx, f.client.ID.String())
	require.NoError(t, err)
	assert.EqualValues(t, 1, own.Total)
	assert.EqualValues(t, 1, own.Completed)
}

func TestUpdateFilingAmount(t *testing.T) {
	f := newObligationFixture(t)
	ctx := context.Background()
	f.assign349(t)

	filings, _, err := f.obligation.ListFilings(ctx, FilingListQuery{}, 1, 20)
	require.NoError(t, err)
	require.Len(t, filings, 1)

	bad := "doce"
	_, err = f.obligation.UpdateFiling(ctx, filings[0].ID, UpdateFilingRequest{Amount: &bad})
	assert.ErrorIs(t, err, ErrInvalidInput)

	amount, notes := "80", "pendiente de firma"
	updated, err := f.obligation.UpdateFiling(ctx, filings[0].ID, UpdateFilingRequest{
		Status: model.FilingStatusInProgress, Amount: &amount, Notes: &notes,
	})
	require.NoError(t, err)
	assert.Equal(t, model.FilingStatusInProgress, updated.Status)
	assert.Equal(t, "80.00", *updated.Amount)
	assert.Equal(t, notes, updated.Notes)
}

func countAction(n *recordingNotifier, action string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, e := range n.notifications {
		if e.Action == action {
			c++
		}
	}
	return c
}
