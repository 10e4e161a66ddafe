package service

import (
	"context"
	"errors"
	"testing"

	"gestoria/internal/database"
	"gestoria/internal/model"
	"gestoria/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRenderer struct{ err error }

func (s stubRenderer) Render(b model.Budget) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []byte("%PDF-" + b.Number), nil
}

func newBudgetService(t *testing.T) (BudgetService, repos, *recordingNotifier) {
	t.Helper()
	r := newRepos(t)
	ctx := context.Background()
	for _, bt := range []string{model.BudgetTypeAutonomo, model.BudgetTypeEmpresa} {
		_, err := database.SeedPricingConfig(ctx, r.db, bt)
		require.NoError(t, err)
	}
	n := &recordingNotifier{}
	pricing := NewBudgetConfigService(r.pricing, r.audit, r.tx, nil)
	svc := NewBudgetService(r.budgets, r.clients, r.assignments, r.audit, r.tx, pricing, stubRenderer{}, n)
	svc.(*budgetService).now = fixedClock(day(2025, 3, 10))
	return svc, r, n
}

// staleNumbers hands out an already used number for the first calls to
// NextNumber, as a concurrent create would.
type staleNumbers struct {
	repository.BudgetRepository
	stale int
	calls int
}

func (s *staleNumbers) NextNumber(ctx context.Context, year int) (string, error) {
	s.calls++
	if s.calls <= s.stale {
		return "PRE-2025-001", nil
	}
	return s.BudgetRepository.NextNumber(ctx, year)
}

func empresaRequest(name, taxID string) BudgetRequest {
	return BudgetRequest{
		BudgetInput: BudgetInput{
			Type:          model.BudgetTypeEmpresa,
			InvoiceCount:  40,
			PayrollCount:  3,
			AnnualRevenue: decimal.NewFromInt(120000),
			Periodicity:   "trimestral",
			TaxRegime:     "normal",
			TaxModels:     []string{"303", "130"},
			Services:      []string{"censos_aeat"},
		},
		ProspectName: name,
		TaxID:        taxID,
		Email:        "info@example.com",
	}
}

func TestBudgetLifecycle(t *testing.T) {
	svc, r, n := newBudgetService(t)
	ctx := context.Background()

	first, err := svc.CreateBudget(ctx, empresaRequest("Innoquest SL", "b-1234567.8"), "")
	require.NoError(t, err)
	assert.Equal(t, "PRE-2025-001", first.Number)
	assert.Equal(t, model.BudgetStatusDraft, first.Status)
	assert.Equal(t, "B12345678", first.TaxID)
	assert.Equal(t, "TRIMESTRAL", first.Periodicity)
	assert.NotEmpty(t, first.Items)
	assert.NotEqual(t, "0.00", first.Total)

	second, err := svc.CreateBudget(ctx, empresaRequest("Tienda Sur SL", "B87654321"), "")
	require.NoError(t, err)
	assert.Equal(t, "PRE-2025-002", second.Number)

	_, err = svc.Accept(ctx, first.ID, "")
	require.NoError(t, err)
	_, err = svc.Send(ctx, first.ID, "")
	assert.ErrorIs(t, err, ErrConflict)

	sent, err := svc.Send(ctx, second.ID, "")
	require.NoError(t, err)
	assert.NotNil(t, sent.SentAt)
	rejected, err := svc.Reject(ctx, second.ID, "  precio  ", "")
	require.NoError(t, err)
	assert.Equal(t, "precio", rejected.RejectReason)

	_, err = svc.UpdateBudget(ctx, second.ID, empresaRequest("Tienda Sur SL", "B87654321"), "")
	assert.ErrorIs(t, err, ErrConflict)

	converted, err := svc.Convert(ctx, first.ID, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"303"}, converted.AssignedModels)
	assert.Equal(t, []string{"130"}, converted.SkippedModels)
	assert.Equal(t, "B12345678", converted.Client.TaxID)
	require.NotNil(t, converted.Budget.ClientID)
	assert.Equal(t, converted.Client.ID, *converted.Budget.ClientID)

	clientID := uuid.MustParse(converted.Client.ID)
	assignments, err := r.assignments.ListByClient(ctx, clientID)
	require.NoError(t, err)
	require.Len(t, assignments, 1)
	assert.Equal(t, model.PeriodicityMensual, assignments[0].Periodicity)

	_, err = svc.Convert(ctx, first.ID, "")
	assert.ErrorIs(t, err, ErrConflict)
	assert.ErrorIs(t, svc.DeleteBudget(ctx, first.ID, ""), ErrConflict)

	stats, err := svc.Stats(ctx, 2025)
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.Total)
	assert.EqualValues(t, 1, stats.Accepted)
	assert.EqualValues(t, 1, stats.Rejected)
	assert.Equal(t, 50.0, stats.ConversionRate)

	assert.Positive(t, n.count("general"))
}

func TestConvertRejectsDuplicateTaxID(t *testing.T) {
	svc, r, _ := newBudgetService(t)
	ctx := context.Background()
	r.client(t, "Innoquest SL", "B12345678", model.ClientTypeEmpresa)

	b, err := svc.CreateBudget(ctx, empresaRequest("Innoquest SL", "B12345678"), "")
	require.NoError(t, err)
	_, err = svc.Accept(ctx, b.ID, "")
	require.NoError(t, err)

	_, err = svc.Convert(ctx, b.ID, "")
	assert.ErrorIs(t, err, ErrConflict)
}

func TestConvertNeedsValidTaxID(t *testing.T) {
	svc, _, _ := newBudgetService(t)
	ctx := context.Background()

	b, err := svc.CreateBudget(ctx, empresaRequest("Sin NIF", ""), "")
	require.NoError(t, err)
	_, err = svc.Convert(ctx, b.ID, "")
	assert.ErrorIs(t, err, ErrConflict, "draft budgets cannot be converted")

	_, err = svc.Accept(ctx, b.ID, "")
	require.NoError(t, err)
	_, err = svc.Convert(ctx, b.ID, "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestBudgetCalculateValidation(t *testing.T) {
	svc, _, _ := newBudgetService(t)
	ctx := context.Background()

	in := empresaRequest("x", "").BudgetInput
	in.InvoiceCount = -1
	_, err := svc.Calculate(ctx, in)
	assert.ErrorIs(t, err, ErrInvalidInput)

	in = empresaRequest("x", "").BudgetInput
	in.TaxModels = []string{"999"}
	_, err = svc.Calculate(ctx, in)
	assert.ErrorIs(t, err, ErrInvalidInput)

	in = empresaRequest("x", "").BudgetInput
	in.Type = "COOPERATIVA"
	_, err = svc.Calculate(ctx, in)
	assert.ErrorIs(t, err, ErrInvalidInput)

	res, err := svc.Calculate(ctx, empresaRequest("x", "").BudgetInput)
	require.NoError(t, err)
	assert.True(t, res.Total.Equal(res.Subtotal.Add(res.VATTotal)))
}

func TestUpdateAndRecalculateBudget(t *testing.T) {
	svc, _, _ := newBudgetService(t)
	ctx := context.Background()

	b, err := svc.CreateBudget(ctx, empresaRequest("Innoquest SL", "B12345678"), "")
	require.NoError(t, err)

	req := empresaRequest("Innoquest SL", "B12345678")
	req.InvoiceCount = 200
	updated, err := svc.UpdateBudget(ctx, b.ID, req, "")
	require.NoError(t, err)
	assert.Equal(t, 200, updated.InvoiceCount)
	assert.NotEqual(t, b.Total, updated.Total)

	again, err := svc.Recalculate(ctx, b.ID, "")
	require.NoError(t, err)
	assert.Equal(t, updated.Total, again.Total)
	assert.Len(t, again.Items, len(updated.Items))

	got, err := svc.GetBudget(ctx, b.ID)
	require.NoError(t, err)
	assert.Len(t, got.Items, len(updated.Items))
}

func TestDeleteBudgetKeepsNumbering(t *testing.T) {
	svc, _, _ := newBudgetService(t)
	ctx := context.Background()

	b, err := svc.CreateBudget(ctx, empresaRequest("Innoquest SL", "B12345678"), "")
	require.NoError(t, err)
	require.NoError(t, svc.DeleteBudget(ctx, b.ID, ""))

	_, err = svc.GetBudget(ctx, b.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	next, err := svc.CreateBudget(ctx, empresaRequest("Tienda Sur SL", "B87654321"), "")
	require.NoError(t, err)
	assert.Equal(t, "PRE-2025-002", next.Number)
}

func TestBudgetPDF(t *testing.T) {
	svc, r, _ := newBudgetService(t)
	ctx := context.Background()

	b, err := svc.CreateBudget(ctx, empresaRequest("Innoquest SL", "B12345678"), "")
	require.NoError(t, err)

	doc, name, err := svc.PDF(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "PRE-2025-001.pdf", name)
	assert.Equal(t, "%PDF-PRE-2025-001", string(doc))

	broken := NewBudgetService(r.budgets, r.clients, r.assignments, r.audit, r.tx,
		NewBudgetConfigService(r.pricing, r.audit, r.tx, nil), stubRenderer{err: errors.New("font missing")}, nil)
	_, _, err = broken.PDF(ctx, b.ID)
	assert.ErrorContains(t, err, "font missing")
}

func TestCreateBudgetRetriesTakenNumber(t *testing.T) {
	svc, r, n := newBudgetService(t)
	ctx := context.Background()

	first, err := svc.CreateBudget(ctx, empresaRequest("Primera SL", "B11111111"), "")
	require.NoError(t, err)
	require.Equal(t, "PRE-2025-001", first.Number)

	repo := &staleNumbers{BudgetRepository: r.budgets, stale: 1}
	pricing := NewBudgetConfigService(r.pricing, r.audit, r.tx, nil)
	racing := NewBudgetService(repo, r.clients, r.assignments, r.audit, r.tx, pricing, stubRenderer{}, n)
	racing.(*budgetService).now = fixedClock(day(2025, 3, 10))

	second, err := racing.CreateBudget(ctx, empresaRequest("Segunda SL", "B22222222"), "")
	require.NoError(t, err)
	assert.Equal(t, "PRE-2025-002", second.Number)
	assert.Equal(t, 2, repo.calls)
	assert.NotEmpty(t, second.Items)

	repo.stale, repo.calls = 10, 0
	_, err = racing.CreateBudget(ctx, empresaRequest("Tercera SL", "B33333333"), "")
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, budgetNumberAttempts, repo.calls)
}
