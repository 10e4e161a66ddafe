package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"gestoria/internal/model"
	"gestoria/internal/repository"
	"gestoria/internal/tax"
	"gestoria/pkg/dateutil"
)

// GenerationResult counts what a generation run did.
type GenerationResult struct {
	Assignments int `json:"assignments"`
	Created     int `json:"created"`
	Existing    int `json:"existing"`
	Skipped     int `json:"skipped"`
}

func (r *GenerationResult) add(o GenerationResult) {
	r.Assignments += o.Assignments
	r.Created += o.Created
	r.Existing += o.Existing
	r.Skipped += o.Skipped
}

// filingGenerator materialises due obligations into filings. It runs the
// same matching as the due report, so both agree on what is due.
type filingGenerator struct {
	filings repository.FilingRepository
}

// generate creates a PENDING filing for every (assignment, open entry) pair
// whose label shape matches, or whose label is one of the model's fixed
// instalments for fraccionado assignments. Entries that closed before the
// assignment started are skipped. Existing filings are left untouched.
func (g *filingGenerator) generate(ctx context.Context, assignments []model.ClientTaxAssignment, entries []model.TaxCalendarEntry) (GenerationResult, error) {
	var result GenerationResult

	views := make([]tax.Assignment, 0, len(assignments))
	byKey := make(map[string]model.ClientTaxAssignment, len(assignments))
	var instalments []model.ClientTaxAssignment
	for _, a := range assignments {
		if !a.EffectiveActive() {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(a.Periodicity), model.PeriodicityFraccionado) {
			instalments = append(instalments, a)
			continue
		}
		name := ""
		if a.Client != nil {
			name = a.Client.BusinessName
		}
		views = append(views, tax.Assignment{
			ClientID:    a.ClientID.String(),
			ClientName:  name,
			ModelCode:   a.TaxModelCode,
			Periodicity: a.Periodicity,
			Active:      true,
		})
		byKey[a.ClientID.String()+"|"+a.TaxModelCode] = a
	}
	result.Assignments = len(views) + len(instalments)
	if result.Assignments == 0 {
		return result, nil
	}

	byID := make(map[string]model.TaxCalendarEntry, len(entries))
	calendar := make([]tax.CalendarEntry, 0, len(entries))
	yearSet := make(map[int]bool)
	for _, e := range entries {
		id := e.ID.String()
		byID[id] = e
		calendar = append(calendar, tax.CalendarEntry{ID: id, ModelCode: e.ModelCode, Period: e.Period, Year: e.Year, Status: e.Status})
		yearSet[e.Year] = true
	}
	years := make([]int, 0, len(yearSet))
	for y := range yearSet {
		years = append(years, y)
	}
	sort.Ints(years)

	for _, year := range years {
		report := tax.FilterDue(views, calendar, year)
		for _, due := range report.Due {
			a := byKey[due.ClientID+"|"+due.ModelCode]
			for _, id := range due.EntryIDs {
				if err := g.materialise(ctx, a, byID[id], &result); err != nil {
					return result, err
				}
			}
		}
	}

	// Fraccionado instalments carry fixed labels (Abril, Octubre...) that the
	// label shape matching never recognises.
	for _, a := range instalments {
		for _, e := range entries {
			if e.ModelCode != a.TaxModelCode || e.Status != model.CalendarStatusAbierto {
				continue
			}
			if !tax.InstalmentDue(a.TaxModelCode, a.Periodicity, e.Period) {
				continue
			}
			if err := g.materialise(ctx, a, e, &result); err != nil {
				return result, err
			}
		}
	}
	return result, nil
}

func (g *filingGenerator) materialise(ctx context.Context, a model.ClientTaxAssignment, e model.TaxCalendarEntry, result *GenerationResult) error {
	if dateutil.TruncateDay(e.EndDate).Before(dateutil.TruncateDay(a.StartDate)) {
		result.Skipped++
		return nil
	}
	created, err := g.filings.CreateIfAbsent(ctx, &model.ClientTaxFiling{
		ClientID:        a.ClientID,
		CalendarEntryID: e.ID,
		TaxModelCode:    e.ModelCode,
		Period:          e.Period,
		Year:            e.Year,
		DueDate:         dateutil.TruncateDay(e.EndDate),
		Status:          model.FilingStatusPending,
	})
	if err != nil {
		return fmt.Errorf("failed to create filing: %w", err)
	}
	if created {
		result.Created++
	} else {
		result.Existing++
	}
	return nil
}
