package tracking

// Rejection explains why a fix was not applied.
type Rejection int

const (
	// Accepted means the fix passed every check.
	Accepted Rejection = iota
	// RejectedInaccurate means the accuracy radius exceeded the ceiling or was invalid.
	RejectedInaccurate
	// RejectedOutOfOrder means the timestamp did not advance past the last accepted fix.
	RejectedOutOfOrder
	// RejectedIdle means the session was not driving.
	RejectedIdle
)

// String returns the label used in logs and metrics.
func (r Rejection) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case RejectedInaccurate:
		return "inaccurate"
	case RejectedOutOfOrder:
		return "out_of_order"
	case RejectedIdle:
		return "idle"
	default:
		return "unknown"
	}
}

// Filter drops low-quality and out-of-order fixes. It keeps no state
// besides the last accepted fix and never reorders or buffers.
type Filter struct {
	// MaxHorizontalAccuracy is the accuracy ceiling in metres; 0 disables it.
	MaxHorizontalAccuracy float64

	last    Fix
	hasLast bool
}

// NewFilter creates a filter with the given accuracy ceiling.
func NewFilter(maxHorizontalAccuracy float64) *Filter {
	return &Filter{MaxHorizontalAccuracy: maxHorizontalAccuracy}
}

// Accept checks fix and, when it passes, remembers it as the last accepted fix.
func (f *Filter) Accept(fix Fix) (Rejection, bool) {
	if fix.HorizontalAccuracy < 0 {
		return RejectedInaccurate, false
	}
	if f.MaxHorizontalAccuracy > 0 && fix.HorizontalAccuracy > f.MaxHorizontalAccuracy {
		return RejectedInaccurate, false
	}
	if f.hasLast && !fix.Timestamp.After(f.last.Timestamp) {
		return RejectedOutOfOrder, false
	}

	f.last = fix
	f.hasLast = true
	return Accepted, true
}

// Reset forgets the last accepted fix.
func (f *Filter) Reset() {
	f.last = Fix{}
	f.hasLast = false
}
