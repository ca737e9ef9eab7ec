package automation

import (
	"encoding/json"
	"fmt"
	"math"
)

// ActionKind identifies what an action does. The conflict resolver claims
// kinds, so two automations issuing the same kind in one cycle conflict.
type ActionKind string

const (
	SetBackupReserve      ActionKind = "set_backup_reserve"
	PreserveCharge        ActionKind = "preserve_charge"
	SetOperationMode      ActionKind = "set_operation_mode"
	ForceCharge           ActionKind = "force_charge"
	ForceDischarge        ActionKind = "force_discharge"
	CurtailInverter       ActionKind = "curtail_inverter"
	RestoreInverter       ActionKind = "restore_inverter"
	SendNotification      ActionKind = "send_notification"
	SetGridExport         ActionKind = "set_grid_export"
	SetGridCharging       ActionKind = "set_grid_charging"
	RestoreNormal         ActionKind = "restore_normal"
	SetChargeRateLimit    ActionKind = "set_charge_rate_limit"
	SetDischargeRateLimit ActionKind = "set_discharge_rate_limit"
	SetExportRateLimit    ActionKind = "set_export_rate_limit"
	StartEVCharging       ActionKind = "start_ev_charging"
	StopEVCharging        ActionKind = "stop_ev_charging"
	SetEVChargeLimit      ActionKind = "set_ev_charge_limit"
	SetEVChargingAmps     ActionKind = "set_ev_charging_amps"
)

// ActionKinds lists all valid kinds in a stable order.
func ActionKinds() []ActionKind {
	return []ActionKind{
		SetBackupReserve, PreserveCharge, SetOperationMode, ForceCharge,
		ForceDischarge, CurtailInverter, RestoreInverter, SendNotification,
		SetGridExport, SetGridCharging, RestoreNormal, SetChargeRateLimit,
		SetDischargeRateLimit, SetExportRateLimit, StartEVCharging,
		StopEVCharging, SetEVChargeLimit, SetEVChargingAmps,
	}
}

func ValidActionKind(k ActionKind) bool {
	for _, kind := range ActionKinds() {
		if k == kind {
			return true
		}
	}
	return false
}

// An Action is one device command with its parameters. Actions run in
// ExecutionOrder within their automation.
type Action struct {
	ID             int64
	Kind           ActionKind
	Params         Params
	ExecutionOrder int
}

// Params holds an action's parameters as decoded JSON. Accessors take a list
// of keys so an action can accept aliases ("percent", "reserve_percent") and
// return the first present value.
type Params map[string]any

func DecodeParams(data []byte) (Params, error) {
	p := make(Params)
	if len(data) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode action params: %w", err)
	}
	return p, nil
}

func (p Params) Encode() ([]byte, error) {
	if p == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]any(p))
}

func (p Params) Float(keys ...string) (float64, bool) {
	for _, key := range keys {
		switch v := p[key].(type) {
		case float64:
			return v, true
		case int:
			return float64(v), true
		case json.Number:
			if f, err := v.Float64(); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

func (p Params) Int(keys ...string) (int, bool) {
	f, ok := p.Float(keys...)
	if !ok {
		return 0, false
	}
	return int(math.Round(f)), true
}

func (p Params) String(keys ...string) (string, bool) {
	for _, key := range keys {
		if s, ok := p[key].(string); ok {
			return s, true
		}
	}
	return "", false
}

func (p Params) Bool(keys ...string) (bool, bool) {
	for _, key := range keys {
		if b, ok := p[key].(bool); ok {
			return b, true
		}
	}
	return false, false
}
