package tax

import (
	"time"

	"gestoria/internal/model"
	"gestoria/pkg/dateutil"
)

// Window is where a date falls relative to an inclusive [start, end] range,
// compared on calendar days only.
type Window int

const (
	BeforeWindow Window = iota
	InWindow
	AfterWindow
)

// WindowAt classifies now against [start, end] after truncating all three to midnight UTC.
func WindowAt(start, end, now time.Time) Window {
	today := dateutil.TruncateDay(now)
	switch {
	case today.Before(dateutil.TruncateDay(start)):
		return BeforeWindow
	case today.After(dateutil.TruncateDay(end)):
		return AfterWindow
	default:
		return InWindow
	}
}

// NextPeriodStatus returns the fiscal period status after a refresh at now.
// Inside the window the period is OPEN, after it CLOSED; before the window the
// current status is kept. A CLOSED period whose end date was moved forward
// reopens when today falls back inside the window.
func NextPeriodStatus(current string, start, end, now time.Time) string {
	switch WindowAt(start, end, now) {
	case InWindow:
		return model.PeriodStatusOpen
	case AfterWindow:
		return model.PeriodStatusClosed
	default:
		return current
	}
}

// CalendarStatusAt derives the tax calendar status from the entry dates.
func CalendarStatusAt(start, end, now time.Time) string {
	switch WindowAt(start, end, now) {
	case InWindow:
		return model.CalendarStatusAbierto
	case AfterWindow:
		return model.CalendarStatusCerrado
	default:
		return model.CalendarStatusPendiente
	}
}
