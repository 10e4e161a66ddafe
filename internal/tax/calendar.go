package tax

import (
	"fmt"
	"time"

	"gestoria/internal/model"
)

// CalendarWindow is the filing window of one model and period label.
type CalendarWindow struct {
	ModelCode string
	Period    string
	Year      int
	Start     time.Time
	End       time.Time
}

// PeriodSpan is one fiscal period of a year.
type PeriodSpan struct {
	Year  int
	Label string
	Kind  string
	Start time.Time
	End   time.Time
}

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

// BuildCalendar returns the AEAT filing windows of year for the given model
// codes, following each model's allowed periodicities:
//
//	MENSUAL     M01..M11 file 1-20 of the next month, M12 files 1-30 January
//	TRIMESTRAL  1T..3T file 1-20 of April, July and October, 4T files 1-30 January
//	ANUAL       files 1-31 January of the next year
//	202         Abril, Octubre and Diciembre instalments file 1-20 of that month
func BuildCalendar(year int, codes []string) []CalendarWindow {
	var out []CalendarWindow
	for _, code := range codes {
		rule, ok := Rules[code]
		if !ok {
			continue
		}
		push := func(period string, start, end time.Time) {
			out = append(out, CalendarWindow{ModelCode: code, Period: period, Year: year, Start: start, End: end})
		}
		for _, p := range rule.AllowedPeriods {
			switch p {
			case model.PeriodicityMensual:
				for m := 1; m <= 12; m++ {
					label := fmt.Sprintf("M%02d", m)
					if m == 12 {
						push(label, day(year+1, time.January, 1), day(year+1, time.January, 30))
						continue
					}
					next := time.Month(m + 1)
					push(label, day(year, next, 1), day(year, next, 20))
				}
			case model.PeriodicityTrimestral:
				push("1T", day(year, time.April, 1), day(year, time.April, 20))
				push("2T", day(year, time.July, 1), day(year, time.July, 20))
				push("3T", day(year, time.October, 1), day(year, time.October, 20))
				push("4T", day(year+1, time.January, 1), day(year+1, time.January, 30))
			case model.PeriodicityAnual:
				push(annualLabel, day(year+1, time.January, 1), day(year+1, time.January, 31))
			case model.PeriodicityFraccionado:
				months := []time.Month{time.April, time.October, time.December}
				for i, label := range rule.Labels {
					if i < len(months) {
						push(label, day(year, months[i], 1), day(year, months[i], 20))
					}
				}
			}
		}
	}
	return out
}

// FiscalPeriods returns the twelve months, four quarters and the whole year.
func FiscalPeriods(year int) []PeriodSpan {
	spans := make([]PeriodSpan, 0, 17)
	for m := 1; m <= 12; m++ {
		start := day(year, time.Month(m), 1)
		spans = append(spans, PeriodSpan{
			Year:  year,
			Label: fmt.Sprintf("M%02d", m),
			Kind:  model.PeriodKindMonth,
			Start: start,
			End:   start.AddDate(0, 1, -1),
		})
	}
	for q := 1; q <= 4; q++ {
		start := day(year, time.Month(3*(q-1)+1), 1)
		spans = append(spans, PeriodSpan{
			Year:  year,
			Label: fmt.Sprintf("%dT", q),
			Kind:  model.PeriodKindQuarter,
			Start: start,
			End:   start.AddDate(0, 3, -1),
		})
	}
	spans = append(spans, PeriodSpan{
		Year:  year,
		Label: annualLabel,
		Kind:  model.PeriodKindYear,
		Start: day(year, time.January, 1),
		End:   day(year, time.December, 31),
	})
	return spans
}
