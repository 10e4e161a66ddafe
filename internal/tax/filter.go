package tax

import (
	"strings"

	"gestoria/internal/model"
)

// Skip reasons reported for assignments that are not due.
const (
	ReasonNoOpenPeriods = "model has no open periods"
	ReasonShapeMismatch = "shape mismatch"
)

// Assignment is the input view of an active client/model assignment.
type Assignment struct {
	ClientID    string
	ClientName  string
	ModelCode   string
	Periodicity string
	Active      bool
}

// CalendarEntry is the input view of a tax calendar row.
type CalendarEntry struct {
	ID        string
	ModelCode string
	Period    string
	Year      int
	Status    string
}

// DueObligation is a client/model pair with at least one matching open period.
type DueObligation struct {
	ClientID    string   `json:"client_id"`
	ClientName  string   `json:"client_name"`
	ModelCode   string   `json:"model_code"`
	Periodicity string   `json:"periodicity"`
	Periods     []string `json:"periods"`
	EntryIDs    []string `json:"-"`
}

// SkippedAssignment explains why an active assignment is not due.
type SkippedAssignment struct {
	ClientID    string `json:"client_id"`
	ClientName  string `json:"client_name"`
	ModelCode   string `json:"model_code"`
	Periodicity string `json:"periodicity"`
	Reason      string `json:"reason"`
}

// FilterReport lists, for one fiscal year, the assignments due and those skipped.
type FilterReport struct {
	Year    int                 `json:"year"`
	Due     []DueObligation     `json:"due"`
	Skipped []SkippedAssignment `json:"skipped"`
}

// FilterDue decides which active assignments have an obligation due in year.
// An assignment is due when its model has at least one ABIERTO entry whose
// label shape equals the assignment periodicity. Assignments are processed in
// input order; inactive ones are ignored.
func FilterDue(assignments []Assignment, entries []CalendarEntry, year int) FilterReport {
	open := make(map[string][]CalendarEntry)
	for _, e := range entries {
		if e.Year != year || e.Status != model.CalendarStatusAbierto {
			continue
		}
		open[e.ModelCode] = append(open[e.ModelCode], e)
	}

	report := FilterReport{Year: year, Due: []DueObligation{}, Skipped: []SkippedAssignment{}}
	for _, a := range assignments {
		if !a.Active {
			continue
		}
		periodicity := strings.ToUpper(strings.TrimSpace(a.Periodicity))

		modelEntries := open[a.ModelCode]
		if len(modelEntries) == 0 {
			report.Skipped = append(report.Skipped, skipped(a, periodicity, ReasonNoOpenPeriods))
			continue
		}

		var labels, ids []string
		for _, e := range modelEntries {
			if LabelMatches(e.Period, periodicity) {
				labels = append(labels, e.Period)
				ids = append(ids, e.ID)
			}
		}
		if len(labels) == 0 {
			report.Skipped = append(report.Skipped, skipped(a, periodicity, ReasonShapeMismatch))
			continue
		}

		report.Due = append(report.Due, DueObligation{
			ClientID:    a.ClientID,
			ClientName:  a.ClientName,
			ModelCode:   a.ModelCode,
			Periodicity: periodicity,
			Periods:     labels,
			EntryIDs:    ids,
		})
	}
	return report
}

func skipped(a Assignment, periodicity, reason string) SkippedAssignment {
	return SkippedAssignment{
		ClientID:    a.ClientID,
		ClientName:  a.ClientName,
		ModelCode:   a.ModelCode,
		Periodicity: periodicity,
		Reason:      reason,
	}
}
