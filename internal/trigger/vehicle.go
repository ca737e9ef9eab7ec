package trigger

import (
	"fmt"

	"github.com/powersync/powersync/internal/automation"
	"github.com/powersync/powersync/internal/device"
	"github.com/powersync/powersync/internal/snapshot"
)

// evaluateEV fires on a vehicle state transition. With several matching
// vehicles, the first one whose state crossed the configured edge wins; when
// none fired, the first match's current value seeds the stored state.
func (e Evaluator) evaluateEV(t *automation.Trigger, cfg *automation.EVTrigger, snap snapshot.Snapshot) (Result, bool) {
	var matched []device.VehicleState
	for _, v := range snap.Vehicles {
		if cfg.VehicleID == "" || v.ID == cfg.VehicleID {
			matched = append(matched, v)
		}
	}
	if len(matched) == 0 {
		return Result{Reason: "no matching vehicle"}, false
	}

	prev, known := t.State.Numeric()
	if known {
		for _, v := range matched {
			cur := evValue(v, cfg)
			if fired, reason := evFired(v, cfg, prev, cur); fired {
				t.State = automation.NumericEdge(cur, snap.Time)
				return Result{Fired: true, Reason: reason}, true
			}
		}
	}

	cur := evValue(matched[0], cfg)
	t.State = automation.NumericEdge(cur, snap.Time)
	if !known {
		return Result{Reason: "first observation"}, true
	}
	return Result{Reason: "no vehicle transition"}, true
}

func evValue(v device.VehicleState, cfg *automation.EVTrigger) float64 {
	switch cfg.Condition {
	case automation.EVConnected, automation.EVDisconnected:
		return boolValue(v.PluggedIn)
	case automation.EVChargingStarts, automation.EVChargingStops:
		return boolValue(v.Charging)
	case automation.EVSoCReaches:
		return v.BatteryLevel
	default:
		return 0
	}
}

func evFired(v device.VehicleState, cfg *automation.EVTrigger, prev, cur float64) (bool, string) {
	name := v.Name
	if name == "" {
		name = v.ID
	}
	switch cfg.Condition {
	case automation.EVConnected:
		return cur == 1 && prev == 0, name + " plugged in"
	case automation.EVDisconnected:
		return cur == 0 && prev == 1, name + " unplugged"
	case automation.EVChargingStarts:
		return cur == 1 && prev == 0, name + " started charging"
	case automation.EVChargingStops:
		return cur == 0 && prev == 1, name + " stopped charging"
	case automation.EVSoCReaches:
		return crossedUp(prev, cur, cfg.SoCThreshold),
			fmt.Sprintf("%s charged to %.0f%% (threshold %.0f%%)", name, cur, cfg.SoCThreshold)
	default:
		return false, ""
	}
}

// evaluateOCPP mirrors evaluateEV for charge points. The available and
// faulted conditions track the status category; the others track a numeric
// value.
func (e Evaluator) evaluateOCPP(t *automation.Trigger, cfg *automation.OCPPTrigger, snap snapshot.Snapshot) (Result, bool) {
	var matched []device.ChargerState
	for _, c := range snap.Chargers {
		if cfg.ChargerID == "" || c.ID == cfg.ChargerID {
			matched = append(matched, c)
		}
	}
	if len(matched) == 0 {
		return Result{Reason: "no matching charger"}, false
	}

	if categoryCondition(cfg.Condition) {
		return e.evaluateChargerStatus(t, cfg, matched, snap)
	}

	prev, known := t.State.Numeric()
	if known {
		for _, c := range matched {
			cur := chargerValue(c, cfg)
			if fired, reason := chargerFired(c, cfg, prev, cur); fired {
				t.State = automation.NumericEdge(cur, snap.Time)
				return Result{Fired: true, Reason: reason}, true
			}
		}
	}

	cur := chargerValue(matched[0], cfg)
	t.State = automation.NumericEdge(cur, snap.Time)
	if !known {
		return Result{Reason: "first observation"}, true
	}
	return Result{Reason: "no charger transition"}, true
}

func (e Evaluator) evaluateChargerStatus(t *automation.Trigger, cfg *automation.OCPPTrigger, matched []device.ChargerState, snap snapshot.Snapshot) (Result, bool) {
	target := device.ChargerAvailable
	if cfg.Condition == automation.ChargerFaulted {
		target = device.ChargerFaulted
	}

	prev, known := t.State.Category()
	if known {
		for _, c := range matched {
			if c.Status == target && prev != target.Ordinal() {
				t.State = automation.CategoryEdge(c.Status.Ordinal(), snap.Time)
				return Result{Fired: true, Reason: "charger " + c.ID + " is " + string(target)}, true
			}
		}
	}

	t.State = automation.CategoryEdge(matched[0].Status.Ordinal(), snap.Time)
	if !known {
		return Result{Reason: "first observation"}, true
	}
	return Result{Reason: "charger status " + string(matched[0].Status)}, true
}

func chargerValue(c device.ChargerState, cfg *automation.OCPPTrigger) float64 {
	switch cfg.Condition {
	case automation.ChargerConnected, automation.ChargerDisconnected:
		return boolValue(c.Connected)
	case automation.ChargerChargingStart, automation.ChargerChargingStop:
		return boolValue(c.Status == device.ChargerCharging)
	case automation.ChargerEnergyReaches:
		return c.SessionEnergyKWh
	default:
		return 0
	}
}

func chargerFired(c device.ChargerState, cfg *automation.OCPPTrigger, prev, cur float64) (bool, string) {
	switch cfg.Condition {
	case automation.ChargerConnected:
		return cur == 1 && prev == 0, "charger " + c.ID + " connected"
	case automation.ChargerDisconnected:
		return cur == 0 && prev == 1, "charger " + c.ID + " disconnected"
	case automation.ChargerChargingStart:
		return cur == 1 && prev == 0, "charger " + c.ID + " started charging"
	case automation.ChargerChargingStop:
		return cur == 0 && prev == 1, "charger " + c.ID + " stopped charging"
	case automation.ChargerEnergyReaches:
		return crossedUp(prev, cur, cfg.EnergyThresholdKWh),
			fmt.Sprintf("charger %s delivered %.1fkWh (threshold %.1fkWh)", c.ID, cur, cfg.EnergyThresholdKWh)
	default:
		return false, ""
	}
}

func categoryCondition(c automation.ChargerCondition) bool {
	return c == automation.ChargerAvailable || c == automation.ChargerFaulted
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
