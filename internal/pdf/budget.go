// Package pdf renders budgets as A4 documents.
//
// Layout:
//
//	HEADER    issuer name          | budget number + date
//	PROSPECT  name, NIF and contact
//	TABLE     concept | qty | unit | VAT% | total
//	TOTALS    subtotal / VAT / TOTAL
//	FOOTER    validity note
package pdf

import (
	"fmt"
	"strings"
	"time"

	"gestoria/internal/model"

	maroto "github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/pagesize"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/shopspring/decimal"
)

var (
	colorPrimary = &props.Color{Red: 31, Green: 78, Blue: 121}
	colorGray    = &props.Color{Red: 110, Green: 110, Blue: 110}
)

// Issuer is the gestoría printed on the header.
type Issuer struct {
	Name    string
	TaxID   string
	Address string
	Email   string
	Phone   string
}

// BudgetRenderer builds budget PDFs for one issuer.
type BudgetRenderer struct {
	issuer Issuer
}

func NewBudgetRenderer(issuer Issuer) *BudgetRenderer {
	return &BudgetRenderer{issuer: issuer}
}

// Render returns the PDF bytes for b. Items are printed in their stored order.
func (r *BudgetRenderer) Render(b model.Budget) ([]byte, error) {
	cfg := config.NewBuilder().
		WithPageSize(pagesize.A4).
		WithLeftMargin(12).WithRightMargin(12).
		WithTopMargin(12).WithBottomMargin(12).
		WithDefaultFont(&props.Font{Family: "helvetica", Size: 9}).
		WithTitle("Presupuesto "+b.Number, true).
		WithAuthor(r.issuer.Name, true).
		Build()

	m := maroto.New(cfg)

	m.AddRows(r.headerRow(b))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.5}))
	m.AddRows(prospectRow(b))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.3}))

	m.AddRows(tableHeaderRow())
	m.AddRows(itemRows(b.Items)...)

	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.3}))
	m.AddRows(totalsRow(b))
	m.AddRows(footerRow(b))

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("failed to generate budget pdf: %w", err)
	}
	return doc.GetBytes(), nil
}

func (r *BudgetRenderer) headerRow(b model.Budget) core.Row {
	contact := strings.Join(nonEmptyParts(r.issuer.Address, r.issuer.Phone, r.issuer.Email), "  |  ")
	return row.New(20).Add(
		col.New(7).Add(
			text.New(r.issuer.Name, props.Text{Style: fontstyle.Bold, Size: 13, Color: colorPrimary, Top: 1}),
			text.New(nonEmpty(r.issuer.TaxID, ""), props.Text{Size: 8, Top: 9, Color: colorGray}),
			text.New(contact, props.Text{Size: 7, Top: 14, Color: colorGray}),
		),
		col.New(5).Add(
			text.New("PRESUPUESTO", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right, Color: colorPrimary, Top: 1}),
			text.New(b.Number, props.Text{Style: fontstyle.Bold, Size: 12, Align: align.Right, Top: 7}),
			text.New("Fecha: "+b.CreatedAt.Format("02/01/2006"), props.Text{Size: 8, Align: align.Right, Top: 14, Color: colorGray}),
		),
	)
}

func prospectRow(b model.Budget) core.Row {
	return row.New(18).Add(
		col.New(12).Add(
			text.New("CLIENTE", props.Text{Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 1}),
			text.New(b.ProspectName, props.Text{Style: fontstyle.Bold, Size: 10, Top: 6}),
			text.New(fmt.Sprintf("NIF: %s   |   Email: %s   |   Tel: %s",
				nonEmpty(b.TaxID, "-"), nonEmpty(b.Email, "-"), nonEmpty(b.Phone, "-"),
			), props.Text{Size: 8, Top: 12, Color: colorGray}),
		),
	)
}

func tableHeaderRow() core.Row {
	h := func(label string, size int, a align.Type) core.Col {
		return col.New(size).Add(text.New(label, props.Text{Style: fontstyle.Bold, Size: 8, Align: a, Color: colorPrimary, Top: 2}))
	}
	return row.New(8).Add(
		h("Concepto", 6, align.Left),
		h("Cant.", 1, align.Center),
		h("Precio", 2, align.Right),
		h("IVA%", 1, align.Center),
		h("Total", 2, align.Right),
	)
}

func itemRows(items []model.BudgetItem) []core.Row {
	rows := make([]core.Row, 0, len(items))
	for _, it := range items {
		concept := it.Concept
		if it.Recurring {
			concept += " (mensual)"
		}
		rows = append(rows, row.New(7).Add(
			col.New(6).Add(text.New(concept, props.Text{Size: 8, Top: 1})),
			col.New(1).Add(text.New(it.Quantity.String(), props.Text{Size: 8, Align: align.Center, Top: 1})),
			col.New(2).Add(text.New(FormatEuro(it.UnitPrice), props.Text{Size: 8, Align: align.Right, Top: 1})),
			col.New(1).Add(text.New(it.VATPct.StringFixed(0)+"%", props.Text{Size: 8, Align: align.Center, Top: 1})),
			col.New(2).Add(text.New(FormatEuro(it.Subtotal), props.Text{Size: 8, Align: align.Right, Top: 1})),
		))
	}
	return rows
}

func totalsRow(b model.Budget) core.Row {
	label := func(s string, top float64) core.Component {
		return text.New(s, props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right, Top: top, Right: 2})
	}
	value := func(s string, top float64) core.Component {
		return text.New(s, props.Text{Size: 9, Align: align.Right, Top: top})
	}
	return row.New(22).Add(
		col.New(6),
		col.New(3).Add(
			label("Base imponible:", 2),
			label("IVA (21%):", 8),
			text.New("TOTAL:", props.Text{Style: fontstyle.Bold, Size: 10, Align: align.Right, Top: 14, Right: 2, Color: colorPrimary}),
		),
		col.New(3).Add(
			value(FormatEuro(b.Subtotal), 2),
			value(FormatEuro(b.VATTotal), 8),
			text.New(FormatEuro(b.Total), props.Text{Style: fontstyle.Bold, Size: 10, Align: align.Right, Top: 14, Color: colorPrimary}),
		),
	)
}

func footerRow(b model.Budget) core.Row {
	validUntil := b.CreatedAt.AddDate(0, 0, 30)
	note := fmt.Sprintf("Presupuesto válido hasta el %s. Periodicidad %s, régimen %s.",
		validUntil.Format("02/01/2006"), strings.ToLower(b.Periodicity), b.TaxRegime)
	if b.Status == model.BudgetStatusAccepted && b.AcceptedAt != nil {
		note = "Aceptado el " + b.AcceptedAt.In(time.UTC).Format("02/01/2006") + ". " + note
	}
	return row.New(14).Add(col.New(12).Add(
		text.New(note, props.Text{Size: 7, Top: 6, Color: colorGray}),
	))
}

// FormatEuro prints d the Spanish way: 1.234,56 €.
func FormatEuro(d decimal.Decimal) string {
	s := d.Abs().StringFixed(2)
	intPart, frac := s[:len(s)-3], s[len(s)-2:]

	var buf strings.Builder
	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			buf.WriteByte('.')
		}
		buf.WriteRune(c)
	}
	sign := ""
	if d.IsNegative() {
		sign = "-"
	}
	return sign + buf.String() + "," + frac + " €"
}

func nonEmpty(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}

func nonEmptyParts(parts ...string) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
