package budget

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func dp(s string) *decimal.Decimal {
	v := d(s)
	return &v
}

func assertDec(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	assert.True(t, d(want).Equal(got), append([]interface{}{"want %s got %s", want, got.String()}, msgAndArgs...)...)
}

func fixtureConfig() Config {
	return Config{
		MonthlyPct:     d("20"),
		EDNPct:         d("10"),
		ModulesPct:     d("-10"),
		MonthlyMinimum: d("60"),
		InvoiceBrackets: []Bracket{
			{Min: d("0"), Max: dp("25"), Value: d("45"), Label: "Hasta 25 facturas"},
			{Min: d("26"), Max: dp("50"), Value: d("60"), Label: "26-50 facturas"},
			{Min: d("51"), Value: d("80"), Label: "Más de 50 facturas"},
		},
		PayrollBrackets: []Bracket{
			{Min: d("1"), Max: dp("5"), Value: d("12")},
			{Min: d("6"), Value: d("10")},
		},
		RevenueBrackets: []Bracket{
			{Min: d("0"), Max: dp("100000"), Value: d("1"), Label: "Hasta 100.000€"},
			{Min: d("100000.01"), Max: dp("300000"), Value: d("1.2"), Label: "100.000-300.000€"},
			{Min: d("300000.01"), Value: d("1.5")},
		},
		Models: []Priced{
			{Code: "303", Name: "IVA", Price: d("15")},
			{Code: "349", Name: "Intracomunitarias", Price: d("10")},
			{Code: "100", Name: "Renta", Price: d("0")},
		},
		Services: []Priced{
			{Code: "solicitud_certificados", Name: "Solicitud de Certificados", Price: d("20"), Kind: ServiceOneOff},
			{Code: "gestion_notificaciones", Name: "Gestión de Notificaciones", Price: d("8"), Kind: ServiceMonthly},
		},
	}
}

func baseInput() Input {
	return Input{
		InvoiceCount:  10,
		AnnualRevenue: d("50000"),
		Periodicity:   PeriodicityQuarterly,
		TaxRegime:     RegimeNormal,
	}
}

func TestCalculateBasePlusVATOnly(t *testing.T) {
	res, err := Calculate(fixtureConfig(), baseInput())
	require.NoError(t, err)

	require.Len(t, res.Items, 1)
	assert.Equal(t, CategoryAccountingBase, res.Items[0].Category)
	assert.Equal(t, "Contabilidad - Hasta 25 facturas", res.Items[0].Concept)
	assertDec(t, "45", res.Subtotal)
	assertDec(t, "9.45", res.VATTotal)
	assertDec(t, "54.45", res.Total)
	assertDec(t, "54.45", res.Items[0].Total)
}

func TestCalculateCompoundsInOrder(t *testing.T) {
	in := Input{
		InvoiceCount:  30,
		PayrollCount:  3,
		AnnualRevenue: d("150000"),
		Periodicity:   PeriodicityMonthly,
		TaxRegime:     "ESN",
		LabourService: true,
		TaxModels:     []string{"303"},
		Services:      []string{"solicitud_certificados", "gestion_notificaciones"},
	}

	res, err := Calculate(fixtureConfig(), in)
	require.NoError(t, err)

	categories := make([]string, 0, len(res.Items))
	for i, it := range res.Items {
		assert.Equal(t, i+1, it.Position)
		categories = append(categories, it.Category)
	}
	assert.Equal(t, []string{
		CategoryAccountingBase,
		"MODELO_303",
		"SERVICIO_SOLICITUD_CERTIFICADOS",
		CategoryRevenue,
		CategoryPayroll,
		CategoryMonthly,
		CategoryEDN,
		"SERVICIO_GESTION_NOTIFICACIONES",
	}, categories)

	assertDec(t, "19", res.Items[3].Subtotal)    // 95 * 0.2
	assertDec(t, "36", res.Items[4].Subtotal)    // 3 x 12
	assertDec(t, "22.8", res.Items[5].Subtotal)  // 114 * 20%
	assertDec(t, "13.68", res.Items[6].Subtotal) // 136.8 * 10%
	assert.True(t, res.Items[7].Recurring)

	assertDec(t, "194.48", res.Subtotal)
	assertDec(t, "40.84", res.VATTotal)
	assertDec(t, "235.32", res.Total)
	assertDec(t, "1.2", res.Breakdown.RevenueMultiplier)
	assertDec(t, "150.48", res.Breakdown.AccountingTotal)
	assert.False(t, res.Breakdown.MinimumApplied)
}

func TestCalculateIsIdempotent(t *testing.T) {
	in := baseInput()
	in.TaxModels = []string{"303", "349"}
	in.Discount = &Discount{Type: DiscountPercent, Value: d("5")}

	first, err := Calculate(fixtureConfig(), in)
	require.NoError(t, err)
	second, err := Calculate(fixtureConfig(), in)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCalculateModulesAndPercentDiscount(t *testing.T) {
	in := baseInput()
	in.TaxRegime = RegimeModules
	in.Discount = &Discount{Type: DiscountPercent, Value: d("10")}

	res, err := Calculate(fixtureConfig(), in)
	require.NoError(t, err)
	require.Len(t, res.Items, 3)
	assertDec(t, "-4.5", res.Items[1].Subtotal)
	assertDec(t, "-4.05", res.Items[2].Subtotal)
	assertDec(t, "36.45", res.Subtotal)
	assertDec(t, "7.65", res.VATTotal)
	assertDec(t, "44.1", res.Total)
}

func TestCalculateFixedDiscountIsCapped(t *testing.T) {
	in := baseInput()
	in.Discount = &Discount{Type: DiscountFixed, Value: d("100")}

	res, err := Calculate(fixtureConfig(), in)
	require.NoError(t, err)
	assertDec(t, "0", res.Subtotal)
	assertDec(t, "0", res.Total)
	assertDec(t, "45", res.Breakdown.DiscountAmount)
}

func TestCalculateMonthlyMinimum(t *testing.T) {
	in := baseInput()
	in.Periodicity = PeriodicityMonthly

	res, err := Calculate(fixtureConfig(), in)
	require.NoError(t, err)
	last := res.Items[len(res.Items)-1]
	assert.Equal(t, CategoryMinimum, last.Category)
	assertDec(t, "6", last.Subtotal)
	assertDec(t, "60", res.Subtotal)
	assertDec(t, "72.6", res.Total)
	assert.True(t, res.Breakdown.MinimumApplied)
}

func TestCalculateZeroPricedModelAddsNoItem(t *testing.T) {
	in := baseInput()
	in.TaxModels = []string{"100"}

	res, err := Calculate(fixtureConfig(), in)
	require.NoError(t, err)
	assert.Len(t, res.Items, 1)
}

func TestCalculateFallsBackToLastBracket(t *testing.T) {
	cfg := fixtureConfig()
	cfg.InvoiceBrackets = cfg.InvoiceBrackets[:1]
	in := baseInput()
	in.InvoiceCount = 400

	res, err := Calculate(cfg, in)
	require.NoError(t, err)
	assertDec(t, "45", res.Breakdown.BasePrice)
}

func TestNegativeInvoiceCountRejectedBeforeLookup(t *testing.T) {
	in := baseInput()
	in.InvoiceCount = -1

	_, err := Calculate(Config{}, in)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "invoice_count", verr.Field)
	assert.False(t, errors.Is(err, ErrConfig))
}

func TestCalculateRejectsBadInput(t *testing.T) {
	cases := map[string]func(*Input){
		"unknown model":     func(in *Input) { in.TaxModels = []string{"999"} },
		"unknown service":   func(in *Input) { in.Services = []string{"catering"} },
		"negative payroll":  func(in *Input) { in.PayrollCount = -2 },
		"negative revenue":  func(in *Input) { in.AnnualRevenue = d("-1") },
		"bad periodicity":   func(in *Input) { in.Periodicity = "SEMANAL" },
		"bad regime":        func(in *Input) { in.TaxRegime = "OTRO" },
		"percent over 100":  func(in *Input) { in.Discount = &Discount{Type: DiscountPercent, Value: d("101")} },
		"bad discount type": func(in *Input) { in.Discount = &Discount{Type: "REGALO", Value: d("1")} },
		"negative discount": func(in *Input) { in.Discount = &Discount{Type: DiscountFixed, Value: d("-1")} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := baseInput()
			mutate(&in)
			_, err := Calculate(fixtureConfig(), in)
			var verr *ValidationError
			assert.True(t, errors.As(err, &verr), "got %v", err)
		})
	}
}

func TestCalculateWithoutInvoiceBrackets(t *testing.T) {
	_, err := Calculate(Config{}, baseInput())
	assert.ErrorIs(t, err, ErrConfig)
}
