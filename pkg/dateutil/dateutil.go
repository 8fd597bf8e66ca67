package dateutil

import "time"

// WindowLayout is the canonical form of a draw window date.
const WindowLayout = "2006-01-02"

// WindowBoundaryHour is the UTC hour at which the daily draw closes. An entry
// made at or after the boundary counts toward the next calendar date.
const WindowBoundaryHour = 20

// DrawWindow returns the draw window the given instant falls into. This is
// the only place the boundary rule lives; entry, status, and scheduling must
// all go through it.
func DrawWindow(t time.Time) string {
	t = t.UTC()
	if t.Hour() >= WindowBoundaryHour {
		t = t.AddDate(0, 0, 1)
	}

	return t.Format(WindowLayout)
}

// NextWindowBoundary returns the next instant at which the current draw
// window closes.
func NextWindowBoundary(t time.Time) time.Time {
	t = t.UTC()
	boundary := time.Date(t.Year(), t.Month(), t.Day(), WindowBoundaryHour, 0, 0, 0, time.UTC)
	if !boundary.After(t) {
		boundary = boundary.AddDate(0, 0, 1)
	}

	return boundary
}

func BeginningOfDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}
