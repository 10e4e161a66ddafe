// Package budget computes tiered gestoría quotes. Calculate is pure: the same
// Config and Input always yield the same Result.
package budget

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	PeriodicityMonthly   = "MENSUAL"
	PeriodicityQuarterly = "TRIMESTRAL"

	RegimeNormal  = "NORMAL"
	RegimeEDN     = "EDN"
	RegimeModules = "MODULOS"

	DiscountPercent = "PORCENTAJE"
	DiscountFixed   = "FIJO"

	ServiceMonthly = "MENSUAL"
	ServiceOneOff  = "PUNTUAL"
)

// Item categories
const (
	CategoryAccountingBase = "BASE_CONTABILIDAD"
	CategoryRevenue        = "RECARGO_FACTURACION"
	CategoryPayroll        = "NOMINAS"
	CategoryMonthly        = "RECARGO_MENSUAL"
	CategoryEDN            = "RECARGO_EDN"
	CategoryModules        = "DESCUENTO_MODULOS"
	CategoryDiscount       = "DESCUENTO"
	CategoryMinimum        = "MINIMO_MENSUAL"
)

var (
	VATRate = decimal.NewFromInt(21)

	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// ErrConfig reports an unusable pricing configuration.
var ErrConfig = errors.New("invalid pricing configuration")

// ValidationError reports malformed calculation input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Bracket is an inclusive [Min, Max] range; Max nil is open ended.
type Bracket struct {
	Min   decimal.Decimal
	Max   *decimal.Decimal
	Value decimal.Decimal
	Label string
}

func (b Bracket) contains(v decimal.Decimal) bool {
	return v.GreaterThanOrEqual(b.Min) && (b.Max == nil || v.LessThanOrEqual(*b.Max))
}

// Priced is a flat-priced tax model or add-on service.
type Priced struct {
	Code  string
	Name  string
	Price decimal.Decimal
	Kind  string // services only: MENSUAL or PUNTUAL
}

// Config is the active price table for one budget type.
type Config struct {
	MonthlyPct      decimal.Decimal
	EDNPct          decimal.Decimal
	ModulesPct      decimal.Decimal
	MonthlyMinimum  decimal.Decimal
	InvoiceBrackets []Bracket
	PayrollBrackets []Bracket
	RevenueBrackets []Bracket
	Models          []Priced
	Services        []Priced
}

// Discount is applied on the pre-discount subtotal.
type Discount struct {
	Type  string
	Value decimal.Decimal
}

// Input is the client profile a budget is priced from.
type Input struct {
	InvoiceCount  int
	PayrollCount  int
	AnnualRevenue decimal.Decimal
	Periodicity   string
	TaxRegime     string
	LabourService bool
	TaxModels     []string
	Services      []string
	Discount      *Discount
}

// Item is one priced line of the budget.
type Item struct {
	Position  int             `json:"position"`
	Concept   string          `json:"concept"`
	Category  string          `json:"category"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	VATPct    decimal.Decimal `json:"vat_pct"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Total     decimal.Decimal `json:"total"`
	Recurring bool            `json:"recurring"`
}

// Breakdown records which brackets and intermediate totals were used.
type Breakdown struct {
	InvoiceBracket       string          `json:"invoice_bracket"`
	BasePrice            decimal.Decimal `json:"base_price"`
	PayrollBracket       string          `json:"payroll_bracket,omitempty"`
	PayrollUnitPrice     decimal.Decimal `json:"payroll_unit_price"`
	RevenueBracket       string          `json:"revenue_bracket"`
	RevenueMultiplier    decimal.Decimal `json:"revenue_multiplier"`
	AccountingTotal      decimal.Decimal `json:"accounting_total"`
	PayrollTotal         decimal.Decimal `json:"payroll_total"`
	MonthlyServicesTotal decimal.Decimal `json:"monthly_services_total"`
	DiscountAmount       decimal.Decimal `json:"discount_amount"`
	MinimumApplied       bool            `json:"minimum_applied"`
}

// Result holds the priced lines and totals, VAT included.
type Result struct {
	Items     []Item          `json:"items"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	VATTotal  decimal.Decimal `json:"vat_total"`
	Total     decimal.Decimal `json:"total"`
	Breakdown Breakdown       `json:"breakdown"`
}

// Validate checks in before any bracket lookup.
func Validate(cfg Config, in Input) error {
	if in.InvoiceCount < 0 {
		return &ValidationError{Field: "invoice_count", Message: "must not be negative"}
	}
	if in.PayrollCount < 0 {
		return &ValidationError{Field: "payroll_count", Message: "must not be negative"}
	}
	if in.AnnualRevenue.IsNegative() {
		return &ValidationError{Field: "annual_revenue", Message: "must not be negative"}
	}
	switch normalize(in.Periodicity) {
	case PeriodicityMonthly, PeriodicityQuarterly:
	default:
		return &ValidationError{Field: "periodicity", Message: fmt.Sprintf("unknown periodicity %q", in.Periodicity)}
	}
	switch normalizeRegime(in.TaxRegime) {
	case RegimeNormal, RegimeEDN, RegimeModules:
	default:
		return &ValidationError{Field: "tax_regime", Message: fmt.Sprintf("unknown tax regime %q", in.TaxRegime)}
	}
	for _, code := range in.TaxModels {
		if _, ok := find(cfg.Models, code); !ok {
			return &ValidationError{Field: "tax_models", Message: fmt.Sprintf("unknown tax model %q", code)}
		}
	}
	for _, code := range in.Services {
		if _, ok := find(cfg.Services, code); !ok {
			return &ValidationError{Field: "services", Message: fmt.Sprintf("unknown service %q", code)}
		}
	}
	if d := in.Discount; d != nil {
		if d.Value.IsNegative() {
			return &ValidationError{Field: "discount", Message: "must not be negative"}
		}
		switch normalize(d.Type) {
		case DiscountPercent:
			if d.Value.GreaterThan(hundred) {
				return &ValidationError{Field: "discount", Message: "percentage must be at most 100"}
			}
		case DiscountFixed:
		default:
			return &ValidationError{Field: "discount", Message: fmt.Sprintf("unknown discount type %q", d.Type)}
		}
	}
	return nil
}

// Calculate prices in against cfg.
func Calculate(cfg Config, in Input) (Result, error) {
	if err := Validate(cfg, in); err != nil {
		return Result{}, err
	}
	if len(cfg.InvoiceBrackets) == 0 {
		return Result{}, fmt.Errorf("%w: no invoice brackets", ErrConfig)
	}

	c := &calc{}
	periodicity := normalize(in.Periodicity)
	regime := normalizeRegime(in.TaxRegime)

	// Accounting base from the invoice bracket.
	invoices := decimal.NewFromInt(int64(in.InvoiceCount))
	base := lookup(cfg.InvoiceBrackets, invoices)
	c.bd.InvoiceBracket = labelOr(base.Label, fmt.Sprintf("%d facturas", in.InvoiceCount))
	c.bd.BasePrice = base.Value
	c.add(Item{
		Concept:   "Contabilidad - " + c.bd.InvoiceBracket,
		Category:  CategoryAccountingBase,
		Quantity:  one,
		UnitPrice: base.Value,
		Subtotal:  base.Value,
	})
	accounting := base.Value

	// Flat prices for tax models, then one-off services.
	for _, code := range in.TaxModels {
		m, _ := find(cfg.Models, code)
		if !m.Price.IsPositive() {
			continue
		}
		c.add(Item{
			Concept:   "Modelo " + m.Code + " - " + m.Name,
			Category:  "MODELO_" + m.Code,
			Quantity:  one,
			UnitPrice: m.Price,
			Subtotal:  m.Price,
		})
		accounting = accounting.Add(m.Price)
	}
	var monthly []Priced
	for _, code := range in.Services {
		s, _ := find(cfg.Services, code)
		if normalize(s.Kind) == ServiceMonthly {
			monthly = append(monthly, s)
			continue
		}
		if !s.Price.IsPositive() {
			continue
		}
		c.add(Item{
			Concept:   s.Name,
			Category:  "SERVICIO_" + strings.ToUpper(s.Code),
			Quantity:  one,
			UnitPrice: s.Price,
			Subtotal:  s.Price,
		})
		accounting = accounting.Add(s.Price)
	}

	// Annual revenue multiplier.
	c.bd.RevenueMultiplier = one
	if len(cfg.RevenueBrackets) > 0 {
		rb := lookup(cfg.RevenueBrackets, in.AnnualRevenue)
		c.bd.RevenueBracket = labelOr(rb.Label, in.AnnualRevenue.StringFixed(2)+"€")
		c.bd.RevenueMultiplier = rb.Value
		if rb.Value.GreaterThan(one) {
			surcharge := accounting.Mul(rb.Value.Sub(one))
			c.add(Item{
				Concept:   fmt.Sprintf("Recargo por facturación anual - %s (%sx)", c.bd.RevenueBracket, rb.Value.StringFixed(2)),
				Category:  CategoryRevenue,
				Quantity:  one,
				UnitPrice: surcharge,
				Subtotal:  surcharge,
			})
			accounting = accounting.Add(surcharge)
		}
	}

	// Payroll.
	payroll := decimal.Zero
	if in.PayrollCount > 0 && in.LabourService && len(cfg.PayrollBrackets) > 0 {
		count := decimal.NewFromInt(int64(in.PayrollCount))
		pb := lookup(cfg.PayrollBrackets, count)
		payroll = count.Mul(pb.Value)
		c.bd.PayrollBracket = labelOr(pb.Label, fmt.Sprintf("%d nóminas", in.PayrollCount))
		c.bd.PayrollUnitPrice = pb.Value
		c.add(Item{
			Concept:   fmt.Sprintf("Laboral/SS - %s (%d x %s€)", c.bd.PayrollBracket, in.PayrollCount, pb.Value.StringFixed(2)),
			Category:  CategoryPayroll,
			Quantity:  count,
			UnitPrice: pb.Value,
			Subtotal:  payroll,
		})
	}

	// Percentages compound on the running accounting total.
	if periodicity == PeriodicityMonthly && !cfg.MonthlyPct.IsZero() {
		adj := accounting.Mul(cfg.MonthlyPct).Div(hundred)
		c.add(Item{
			Concept:   fmt.Sprintf("Recargo por liquidaciones mensuales (+%s%%)", cfg.MonthlyPct.StringFixed(0)),
			Category:  CategoryMonthly,
			Quantity:  one,
			UnitPrice: adj,
			Subtotal:  adj,
		})
		accounting = accounting.Add(adj)
	}
	switch regime {
	case RegimeEDN:
		if !cfg.EDNPct.IsZero() {
			adj := accounting.Mul(cfg.EDNPct).Div(hundred)
			c.add(Item{
				Concept:   fmt.Sprintf("Recargo por Estimación Directa Normal (+%s%%)", cfg.EDNPct.StringFixed(0)),
				Category:  CategoryEDN,
				Quantity:  one,
				UnitPrice: adj,
				Subtotal:  adj,
			})
			accounting = accounting.Add(adj)
		}
	case RegimeModules:
		if !cfg.ModulesPct.IsZero() {
			adj := accounting.Mul(cfg.ModulesPct.Abs()).Div(hundred)
			c.add(Item{
				Concept:   fmt.Sprintf("Descuento por Régimen de Módulos (-%s%%)", cfg.ModulesPct.Abs().StringFixed(0)),
				Category:  CategoryModules,
				Quantity:  one,
				UnitPrice: adj.Neg(),
				Subtotal:  adj.Neg(),
			})
			accounting = accounting.Sub(adj)
		}
	}

	// Monthly add-on services are recurring and not compounded.
	monthlyTotal := decimal.Zero
	for _, s := range monthly {
		if !s.Price.IsPositive() {
			continue
		}
		c.add(Item{
			Concept:   s.Name + " (mensual)",
			Category:  "SERVICIO_" + strings.ToUpper(s.Code),
			Quantity:  one,
			UnitPrice: s.Price,
			Subtotal:  s.Price,
			Recurring: true,
		})
		monthlyTotal = monthlyTotal.Add(s.Price)
	}

	total := accounting.Add(payroll).Add(monthlyTotal)
	c.bd.AccountingTotal = accounting.Round(2)
	c.bd.PayrollTotal = payroll.Round(2)
	c.bd.MonthlyServicesTotal = monthlyTotal.Round(2)

	// Discount.
	if d := in.Discount; d != nil && d.Value.IsPositive() {
		var amount decimal.Decimal
		var concept string
		if normalize(d.Type) == DiscountPercent {
			amount = total.Mul(d.Value).Div(hundred)
			concept = fmt.Sprintf("Descuento aplicado (-%s%%)", d.Value.String())
		} else {
			amount = decimal.Min(d.Value, decimal.Max(total, decimal.Zero))
			concept = fmt.Sprintf("Descuento aplicado (-%s€)", amount.StringFixed(2))
		}
		if amount.IsPositive() {
			c.add(Item{
				Concept:   concept,
				Category:  CategoryDiscount,
				Quantity:  one,
				UnitPrice: amount.Neg(),
				Subtotal:  amount.Neg(),
			})
			total = total.Sub(amount)
			c.bd.DiscountAmount = amount.Round(2)
		}
	}

	// Floor at zero, then the monthly minimum.
	if total.IsNegative() {
		total = decimal.Zero
	}
	if periodicity == PeriodicityMonthly && total.LessThan(cfg.MonthlyMinimum) {
		adj := cfg.MonthlyMinimum.Sub(total)
		c.add(Item{
			Concept:   fmt.Sprintf("Ajuste mínimo mensual (%s€)", cfg.MonthlyMinimum.StringFixed(2)),
			Category:  CategoryMinimum,
			Quantity:  one,
			UnitPrice: adj,
			Subtotal:  adj,
		})
		c.bd.MinimumApplied = true
	}

	return c.result(), nil
}

type calc struct {
	items []Item
	bd    Breakdown
}

// add rounds the item amounts to cents and applies VAT.
func (c *calc) add(it Item) {
	it.Position = len(c.items) + 1
	it.VATPct = VATRate
	it.UnitPrice = it.UnitPrice.Round(2)
	it.Subtotal = it.Subtotal.Round(2)
	it.Total = it.Subtotal.Add(it.Subtotal.Mul(VATRate).Div(hundred)).Round(2)
	c.items = append(c.items, it)
}

func (c *calc) result() Result {
	subtotal, vat := decimal.Zero, decimal.Zero
	for _, it := range c.items {
		subtotal = subtotal.Add(it.Subtotal)
		vat = vat.Add(it.Subtotal.Mul(it.VATPct).Div(hundred))
	}
	subtotal = subtotal.Round(2)
	vat = vat.Round(2)
	return Result{
		Items:     c.items,
		Subtotal:  subtotal,
		VATTotal:  vat,
		Total:     subtotal.Add(vat).Round(2),
		Breakdown: c.bd,
	}
}

// lookup returns the first bracket containing v, falling back to the last one.
func lookup(brackets []Bracket, v decimal.Decimal) Bracket {
	for _, b := range brackets {
		if b.contains(v) {
			return b
		}
	}
	return brackets[len(brackets)-1]
}

func find(list []Priced, code string) (Priced, bool) {
	for _, p := range list {
		if strings.EqualFold(p.Code, code) {
			return p, true
		}
	}
	return Priced{}, false
}

func labelOr(label, fallback string) string {
	if label != "" {
		return label
	}
	return fallback
}

func normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// normalizeRegime also accepts ESN, the legacy spelling of EDN.
func normalizeRegime(s string) string {
	r := normalize(s)
	if r == "ESN" {
		return RegimeEDN
	}
	if r == "" {
		return RegimeNormal
	}
	return r
}
