package tax

import (
	"regexp"
	"strings"

	"gestoria/internal/model"
)

var (
	monthlyLabelRe   = regexp.MustCompile(`^M\d{2}$`)
	quarterlyLabelRe = regexp.MustCompile(`^\dT$`)
)

const annualLabel = "ANUAL"

// ClassifyLabel maps a calendar period label to the periodicity it represents:
// M01..M12 is monthly, 1T..4T quarterly and ANUAL annual. Anything else
// returns "". The label is matched exactly as stored.
func ClassifyLabel(label string) string {
	switch {
	case monthlyLabelRe.MatchString(label):
		return model.PeriodicityMensual
	case quarterlyLabelRe.MatchString(label):
		return model.PeriodicityTrimestral
	case label == annualLabel:
		return model.PeriodicityAnual
	}
	return ""
}

// LabelMatches reports whether a label's shape matches a periodicity.
func LabelMatches(label, periodicity string) bool {
	shape := ClassifyLabel(label)
	return shape != "" && shape == strings.ToUpper(strings.TrimSpace(periodicity))
}

// InstalmentDue reports whether a calendar label is one of the fixed
// instalments of a fraccionado model (202: Abril, Octubre, Diciembre). The
// label comparison ignores case. A rule without labels accepts any label.
func InstalmentDue(modelCode, periodicity, label string) bool {
	rule, ok := Rules[modelCode]
	if !ok || !strings.EqualFold(strings.TrimSpace(periodicity), model.PeriodicityFraccionado) {
		return false
	}
	if !containsFold(rule.AllowedPeriods, model.PeriodicityFraccionado) {
		return false
	}
	if len(rule.Labels) == 0 {
		return true
	}
	return containsFold(rule.Labels, label)
}

func containsFold(values []string, v string) bool {
	for _, x := range values {
		if strings.EqualFold(x, strings.TrimSpace(v)) {
			return true
		}
	}
	return false
}
