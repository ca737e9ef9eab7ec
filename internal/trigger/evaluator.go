// Package trigger evaluates automation triggers against a snapshot.
//
// Evaluation is strictly edge-detecting: a trigger fires only when the
// current observation satisfies its condition and the previously stored one
// did not. The first ever observation never fires; it only seeds the stored
// state. When the data a trigger needs is missing from the snapshot, the
// trigger does not fire and the stored state is left untouched, so the edge
// survives a transient outage.
package trigger

import (
	"errors"
	"fmt"
	"time"

	"github.com/clambin/go-common/set"
	"github.com/powersync/powersync/internal/automation"
	"github.com/powersync/powersync/internal/device"
	"github.com/powersync/powersync/internal/snapshot"
)

// Result is the outcome of evaluating one trigger. Reason is human-readable
// and ends up in notifications and logs.
type Result struct {
	Fired  bool
	Reason string
}

// Evaluator evaluates triggers. The zero value uses the defaults below.
type Evaluator struct {
	// TimeTolerance is how far past its configured time a time trigger may
	// still fire.
	TimeTolerance time.Duration
	// RefireGuard suppresses a time trigger that fired within this duration.
	RefireGuard time.Duration
	// ReserveMargin is added to the backup reserve for the
	// discharged_to_reserve condition, in percentage points.
	ReserveMargin float64
}

const (
	defaultTimeTolerance = time.Minute
	defaultRefireGuard   = 5 * time.Minute
	defaultReserveMargin = 1.0
)

func (e Evaluator) timeTolerance() time.Duration {
	if e.TimeTolerance > 0 {
		return e.TimeTolerance
	}
	return defaultTimeTolerance
}

func (e Evaluator) refireGuard() time.Duration {
	if e.RefireGuard > 0 {
		return e.RefireGuard
	}
	return defaultRefireGuard
}

func (e Evaluator) reserveMargin() float64 {
	if e.ReserveMargin > 0 {
		return e.ReserveMargin
	}
	return defaultReserveMargin
}

// Evaluate evaluates t against snap, updating t.State in place. The second
// return value reports whether the state changed and needs to be persisted.
func (e Evaluator) Evaluate(t *automation.Trigger, snap snapshot.Snapshot) (Result, bool, error) {
	if t.Config == nil {
		return Result{}, false, errors.New("trigger has no configuration")
	}
	if !t.Window.Contains(snap.Time) {
		return Result{Reason: "outside time window"}, false, nil
	}

	switch cfg := t.Config.(type) {
	case *automation.TimeTrigger:
		r, updated := e.evaluateTime(t, cfg, snap)
		return r, updated, nil
	case *automation.BatteryTrigger:
		r, updated := e.evaluateBattery(t, cfg, snap)
		return r, updated, nil
	case *automation.FlowTrigger:
		r, updated := e.evaluateFlow(t, cfg, snap)
		return r, updated, nil
	case *automation.PriceTrigger:
		r, updated := e.evaluatePrice(t, cfg, snap)
		return r, updated, nil
	case *automation.GridTrigger:
		r, updated := e.evaluateGrid(t, cfg, snap)
		return r, updated, nil
	case *automation.WeatherTrigger:
		r, updated := e.evaluateWeather(t, cfg, snap)
		return r, updated, nil
	case *automation.EVTrigger:
		r, updated := e.evaluateEV(t, cfg, snap)
		return r, updated, nil
	case *automation.OCPPTrigger:
		r, updated := e.evaluateOCPP(t, cfg, snap)
		return r, updated, nil
	case *automation.SolarForecastTrigger:
		r, updated := e.evaluateSolarForecast(t, cfg, snap)
		return r, updated, nil
	default:
		return Result{}, false, fmt.Errorf("unhandled trigger kind %q", t.Config.Kind())
	}
}

func (e Evaluator) evaluateTime(t *automation.Trigger, cfg *automation.TimeTrigger, snap snapshot.Snapshot) (Result, bool) {
	if len(cfg.Days) > 0 && !set.New(cfg.Days...).Contains(snap.Time.Weekday()) {
		return Result{Reason: "not scheduled for " + snap.Time.Weekday().String()}, false
	}
	offset := snap.Time.Sub(cfg.At.On(snap.Time))
	if offset < 0 {
		offset = -offset
	}
	if offset > e.timeTolerance() {
		return Result{Reason: "not " + cfg.At.String()}, false
	}
	if last, ok := t.State.LastFired(); ok && snap.Time.Sub(last) < e.refireGuard() {
		return Result{Reason: "fired " + snap.Time.Sub(last).Round(time.Second).String() + " ago"}, false
	}
	t.State = automation.FiredEdge(snap.Time)
	return Result{Fired: true, Reason: "it is " + cfg.At.String()}, true
}

func (e Evaluator) evaluateBattery(t *automation.Trigger, cfg *automation.BatteryTrigger, snap snapshot.Snapshot) (Result, bool) {
	if snap.BatteryPercent == nil {
		return Result{Reason: "battery charge unavailable"}, false
	}
	var threshold float64
	var discharging bool
	switch cfg.Condition {
	case automation.ChargedUpTo:
		threshold = cfg.Threshold
	case automation.DischargedDownTo:
		threshold, discharging = cfg.Threshold, true
	case automation.DischargedToReserve:
		if snap.BackupReserve == nil {
			return Result{Reason: "backup reserve unavailable"}, false
		}
		threshold, discharging = *snap.BackupReserve+e.reserveMargin(), true
	default:
		return Result{Reason: fmt.Sprintf("unknown battery condition %q", cfg.Condition)}, false
	}

	cur := *snap.BatteryPercent
	prev, known := t.State.Numeric()
	t.State = automation.NumericEdge(cur, snap.Time)
	if !known {
		return Result{Reason: "first observation"}, true
	}
	if discharging {
		if crossedDown(prev, cur, threshold) {
			return Result{Fired: true, Reason: fmt.Sprintf("battery discharged to %.0f%% (threshold %.0f%%)", cur, threshold)}, true
		}
	} else if crossedUp(prev, cur, threshold) {
		return Result{Fired: true, Reason: fmt.Sprintf("battery charged to %.0f%% (threshold %.0f%%)", cur, threshold)}, true
	}
	return Result{Reason: fmt.Sprintf("battery at %.0f%%", cur)}, true
}

func (e Evaluator) evaluateFlow(t *automation.Trigger, cfg *automation.FlowTrigger, snap snapshot.Snapshot) (Result, bool) {
	value := flowValue(snap, cfg.Source)
	if value == nil {
		return Result{Reason: string(cfg.Source) + " unavailable"}, false
	}
	cur := *value
	prev, known := t.State.Numeric()
	t.State = automation.NumericEdge(cur, snap.Time)
	if !known {
		return Result{Reason: "first observation"}, true
	}
	switch cfg.Transition {
	case automation.RisesAbove:
		if crossedUp(prev, cur, cfg.ThresholdKW) {
			return Result{Fired: true, Reason: fmt.Sprintf("%s rose to %.2fkW (threshold %.2fkW)", cfg.Source, cur, cfg.ThresholdKW)}, true
		}
	case automation.DropsBelow:
		if crossedDown(prev, cur, cfg.ThresholdKW) {
			return Result{Fired: true, Reason: fmt.Sprintf("%s dropped to %.2fkW (threshold %.2fkW)", cfg.Source, cur, cfg.ThresholdKW)}, true
		}
	}
	return Result{Reason: fmt.Sprintf("%s at %.2fkW", cfg.Source, cur)}, true
}

func (e Evaluator) evaluatePrice(t *automation.Trigger, cfg *automation.PriceTrigger, snap snapshot.Snapshot) (Result, bool) {
	value := snap.ImportPrice
	if cfg.Price == automation.ExportPrice {
		value = snap.ExportPrice
	}
	if value == nil {
		return Result{Reason: string(cfg.Price) + " price unavailable"}, false
	}
	cur := *value
	prev, known := t.State.Numeric()
	t.State = automation.NumericEdge(cur, snap.Time)
	if !known {
		return Result{Reason: "first observation"}, true
	}
	switch cfg.Transition {
	case automation.RisesAbove:
		if crossedUp(prev, cur, cfg.Threshold) {
			return Result{Fired: true, Reason: fmt.Sprintf("%s price rose to $%.4f/kWh (threshold $%.4f)", cfg.Price, cur, cfg.Threshold)}, true
		}
	case automation.DropsBelow:
		if crossedDown(prev, cur, cfg.Threshold) {
			return Result{Fired: true, Reason: fmt.Sprintf("%s price dropped to $%.4f/kWh (threshold $%.4f)", cfg.Price, cur, cfg.Threshold)}, true
		}
	}
	return Result{Reason: fmt.Sprintf("%s price at $%.4f/kWh", cfg.Price, cur)}, true
}

func (e Evaluator) evaluateGrid(t *automation.Trigger, cfg *automation.GridTrigger, snap snapshot.Snapshot) (Result, bool) {
	if snap.GridStatus == nil {
		return Result{Reason: "grid status unavailable"}, false
	}
	cur := gridOrdinal(*snap.GridStatus)
	prev, known := t.State.Category()
	t.State = automation.CategoryEdge(cur, snap.Time)
	if !known {
		return Result{Reason: "first observation"}, true
	}
	if *snap.GridStatus == cfg.Condition && prev != cur {
		if cfg.Condition == device.OffGrid {
			return Result{Fired: true, Reason: "grid connection lost"}, true
		}
		return Result{Fired: true, Reason: "grid connection restored"}, true
	}
	return Result{Reason: "grid " + string(*snap.GridStatus)}, true
}

func (e Evaluator) evaluateWeather(t *automation.Trigger, cfg *automation.WeatherTrigger, snap snapshot.Snapshot) (Result, bool) {
	if snap.Weather == nil {
		return Result{Reason: "weather unavailable"}, false
	}
	cur := snap.Weather.Ordinal()
	prev, known := t.State.Category()
	t.State = automation.CategoryEdge(cur, snap.Time)
	if !known {
		return Result{Reason: "first observation"}, true
	}
	if *snap.Weather == cfg.Condition && prev != cfg.Condition.Ordinal() {
		return Result{Fired: true, Reason: "weather changed to " + string(cfg.Condition)}, true
	}
	return Result{Reason: "weather is " + string(*snap.Weather)}, true
}

func (e Evaluator) evaluateSolarForecast(t *automation.Trigger, cfg *automation.SolarForecastTrigger, snap snapshot.Snapshot) (Result, bool) {
	today := snap.Time.Format(time.DateOnly)
	if day, ok := t.State.LastDay(); ok && day == today {
		return Result{Reason: "already evaluated today"}, false
	}
	value := snap.ForecastTodayKWh
	if cfg.Period == automation.ForecastTomorrow {
		value = snap.ForecastTomorrowKWh
	}
	if value == nil {
		return Result{Reason: "solar forecast unavailable"}, false
	}
	t.State = automation.DayEdge(today, snap.Time)

	fired := *value >= cfg.ThresholdKWh
	if cfg.Condition == automation.ForecastAtMost {
		fired = *value <= cfg.ThresholdKWh
	}
	if fired {
		return Result{Fired: true, Reason: fmt.Sprintf("%s's solar forecast is %.1fkWh (%s %.1fkWh)", cfg.Period, *value, cfg.Condition, cfg.ThresholdKWh)}, true
	}
	return Result{Reason: fmt.Sprintf("%s's solar forecast is %.1fkWh", cfg.Period, *value)}, true
}

// crossedUp reports a rising edge through threshold: the previous value was
// below it and the current one is at or above it.
func crossedUp(prev, cur, threshold float64) bool {
	return cur >= threshold && prev < threshold
}

func crossedDown(prev, cur, threshold float64) bool {
	return cur <= threshold && prev > threshold
}

func gridOrdinal(s device.GridStatus) float64 {
	if s == device.OnGrid {
		return 1
	}
	return 0
}

func flowValue(snap snapshot.Snapshot, source automation.FlowSource) *float64 {
	switch source {
	case automation.FlowHomeUsage:
		return snap.HomeUsageKW
	case automation.FlowSolar:
		return snap.SolarKW
	case automation.FlowGridImport:
		return snap.GridImportKW
	case automation.FlowGridExport:
		return snap.GridExportKW
	case automation.FlowBatteryCharge:
		return snap.BatteryChargeKW
	case automation.FlowBatteryDischarge:
		return snap.BatteryDischargeKW
	default:
		return nil
	}
}
