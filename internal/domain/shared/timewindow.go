package shared

import (
	"fmt"
	"time"
)

// TimeWindow represents the interval during which a customer must be served.
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewTimeWindow creates a time window with validation (start must precede end).
func NewTimeWindow(start, end time.Time) (TimeWindow, error) {
	if !start.Before(end) {
		return TimeWindow{}, NewValidationError("time_window",
			fmt.Sprintf("start %s must be before end %s", start.Format(time.RFC3339), end.Format(time.RFC3339)))
	}
	return TimeWindow{Start: start.UTC(), End: end.UTC()}, nil
}

// Contains reports whether t falls inside the window (inclusive bounds).
func (w TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Overlaps reports whether two windows share any instant.
func (w TimeWindow) Overlaps(other TimeWindow) bool {
	return !w.End.Before(other.Start) && !other.End.Before(w.Start)
}

// Duration returns the window length.
func (w TimeWindow) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// IsZero reports whether the window has not been set.
func (w TimeWindow) IsZero() bool {
	return w.Start.IsZero() && w.End.IsZero()
}

func (w TimeWindow) String() string {
	return fmt.Sprintf("[%s, %s]", w.Start.Format("15:04"), w.End.Format("15:04"))
}
