package signature

import (
	"time"
)

// Window is an optional visibility window for time-bounded content.
// A nil bound means no constraint on that side.
type Window struct {
	Start *time.Time
	End   *time.Time
}

// Visible reports whether the window is open at the reference instant.
// Both bounds are inclusive: content whose start or end equals ref is
// visible; it becomes hidden one tick before start or one tick after
// end. The reference instant must be captured once per compilation so
// that multiple gated blocks in one template agree with each other.
func (w Window) Visible(ref time.Time) bool {
	if w.Start != nil && w.Start.After(ref) {
		return false
	}
	if w.End != nil && w.End.Before(ref) {
		return false
	}
	return true
}
