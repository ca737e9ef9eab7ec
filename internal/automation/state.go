package automation

import "time"

// EdgeKind discriminates what an EdgeState holds. Different trigger variants
// store different shapes of state; a kind mismatch on read means the trigger
// was reconfigured and the stored state no longer applies.
type EdgeKind string

const (
	EdgeNone     EdgeKind = ""
	EdgeNumeric  EdgeKind = "numeric"
	EdgeCategory EdgeKind = "category"
	EdgeDay      EdgeKind = "day"
	EdgeFiredAt  EdgeKind = "fired_at"
)

// EdgeState is what a trigger remembers between evaluation cycles: the last
// observed value (numeric or category ordinal), the last evaluated calendar
// day, or the last firing time, depending on the variant.
type EdgeState struct {
	Kind        EdgeKind
	Value       float64
	Day         string
	FiredAt     time.Time
	EvaluatedAt time.Time
}

func NumericEdge(value float64, at time.Time) EdgeState {
	return EdgeState{Kind: EdgeNumeric, Value: value, EvaluatedAt: at}
}

func CategoryEdge(ordinal float64, at time.Time) EdgeState {
	return EdgeState{Kind: EdgeCategory, Value: ordinal, EvaluatedAt: at}
}

func DayEdge(day string, at time.Time) EdgeState {
	return EdgeState{Kind: EdgeDay, Day: day, EvaluatedAt: at}
}

func FiredEdge(at time.Time) EdgeState {
	return EdgeState{Kind: EdgeFiredAt, FiredAt: at, EvaluatedAt: at}
}

// Numeric returns the last observed value, or false when no numeric value
// has been recorded yet.
func (s EdgeState) Numeric() (float64, bool) {
	return s.Value, s.Kind == EdgeNumeric
}

func (s EdgeState) Category() (float64, bool) {
	return s.Value, s.Kind == EdgeCategory
}

func (s EdgeState) LastDay() (string, bool) {
	return s.Day, s.Kind == EdgeDay
}

func (s EdgeState) LastFired() (time.Time, bool) {
	return s.FiredAt, s.Kind == EdgeFiredAt
}
