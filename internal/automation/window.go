package automation

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// TimeOfDay is a wall-clock time without a date, e.g. "22:30".
type TimeOfDay struct {
	Hour   int
	Minute int
}

func ParseTimeOfDay(s string) (TimeOfDay, error) {
	var t TimeOfDay
	if _, err := fmt.Sscanf(s, "%d:%d", &t.Hour, &t.Minute); err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q", s)
	}
	if t.Hour < 0 || t.Hour > 23 || t.Minute < 0 || t.Minute > 59 {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q", s)
	}
	return t, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

func (t TimeOfDay) Minutes() int {
	return t.Hour*60 + t.Minute
}

// On anchors the time of day to d's calendar date and location.
func (t TimeOfDay) On(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), t.Hour, t.Minute, 0, 0, d.Location())
}

func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *TimeOfDay) UnmarshalText(data []byte) error {
	parsed, err := ParseTimeOfDay(string(data))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t TimeOfDay) MarshalYAML() (any, error) {
	return t.String(), nil
}

func (t *TimeOfDay) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	return t.UnmarshalText([]byte(s))
}

// A TimeWindow restricts a trigger to part of the day. A nil bound leaves
// that side unconstrained. When Start is after End the window wraps around
// midnight.
type TimeWindow struct {
	Start *TimeOfDay `json:"start,omitempty" yaml:"start,omitempty"`
	End   *TimeOfDay `json:"end,omitempty" yaml:"end,omitempty"`
}

func (w TimeWindow) Contains(t time.Time) bool {
	if w.Start == nil || w.End == nil {
		return true
	}
	now := t.Hour()*60 + t.Minute()
	start, end := w.Start.Minutes(), w.End.Minutes()
	if start > end {
		return now >= start || now <= end
	}
	return now >= start && now <= end
}

func (w TimeWindow) String() string {
	if w.Start == nil || w.End == nil {
		return "always"
	}
	return w.Start.String() + "-" + w.End.String()
}
