package automation

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/powersync/powersync/internal/device"
)

// Kind identifies the trigger variant.
type Kind string

const (
	KindTime          Kind = "time"
	KindBattery       Kind = "battery"
	KindFlow          Kind = "flow"
	KindPrice         Kind = "price"
	KindGrid          Kind = "grid"
	KindWeather       Kind = "weather"
	KindEV            Kind = "ev"
	KindOCPP          Kind = "ocpp"
	KindSolarForecast Kind = "solar_forecast"
)

// Config is the variant-specific part of a trigger. The concrete types form
// a closed union; NewConfig is the only place that maps kinds to types.
type Config interface {
	Kind() Kind
}

// A Trigger is one automation's firing condition plus the state needed to
// detect edges between evaluation cycles.
type Trigger struct {
	ID     int64
	Config Config
	Window TimeWindow
	State  EdgeState
}

func (t *Trigger) Kind() Kind {
	if t.Config == nil {
		return ""
	}
	return t.Config.Kind()
}

// NewConfig returns an empty config of the given kind, ready to be decoded
// into.
func NewConfig(kind Kind) (Config, error) {
	switch kind {
	case KindTime:
		return &TimeTrigger{}, nil
	case KindBattery:
		return &BatteryTrigger{}, nil
	case KindFlow:
		return &FlowTrigger{}, nil
	case KindPrice:
		return &PriceTrigger{}, nil
	case KindGrid:
		return &GridTrigger{}, nil
	case KindWeather:
		return &WeatherTrigger{}, nil
	case KindEV:
		return &EVTrigger{}, nil
	case KindOCPP:
		return &OCPPTrigger{}, nil
	case KindSolarForecast:
		return &SolarForecastTrigger{}, nil
	default:
		return nil, fmt.Errorf("unknown trigger kind %q", kind)
	}
}

// DecodeConfig unmarshals a stored variant config.
func DecodeConfig(kind Kind, data []byte) (Config, error) {
	cfg, err := NewConfig(kind)
	if err != nil {
		return nil, err
	}
	if len(data) > 0 {
		if err = json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode %s trigger config: %w", kind, err)
		}
	}
	return cfg, nil
}

func EncodeConfig(cfg Config) ([]byte, error) {
	if cfg == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(cfg)
}

// Crossing is the direction of a threshold crossing.
type Crossing string

const (
	RisesAbove Crossing = "rises_above"
	DropsBelow Crossing = "drops_below"
)

type TimeTrigger struct {
	At   TimeOfDay      `json:"at" yaml:"at"`
	Days []time.Weekday `json:"days,omitempty" yaml:"days,omitempty"`
}

func (TimeTrigger) Kind() Kind { return KindTime }

type BatteryCondition string

const (
	ChargedUpTo         BatteryCondition = "charged_up_to"
	DischargedDownTo    BatteryCondition = "discharged_down_to"
	DischargedToReserve BatteryCondition = "discharged_to_reserve"
)

type BatteryTrigger struct {
	Condition BatteryCondition `json:"condition" yaml:"condition"`
	Threshold float64          `json:"threshold,omitempty" yaml:"threshold,omitempty"`
}

func (BatteryTrigger) Kind() Kind { return KindBattery }

type FlowSource string

const (
	FlowHomeUsage        FlowSource = "home_usage"
	FlowSolar            FlowSource = "solar"
	FlowGridImport       FlowSource = "grid_import"
	FlowGridExport       FlowSource = "grid_export"
	FlowBatteryCharge    FlowSource = "battery_charge"
	FlowBatteryDischarge FlowSource = "battery_discharge"
)

type FlowTrigger struct {
	Source      FlowSource `json:"source" yaml:"source"`
	Transition  Crossing   `json:"transition" yaml:"transition"`
	ThresholdKW float64    `json:"threshold_kw" yaml:"threshold_kw"`
}

func (FlowTrigger) Kind() Kind { return KindFlow }

type PriceKind string

const (
	ImportPrice PriceKind = "import"
	ExportPrice PriceKind = "export"
)

type PriceTrigger struct {
	Price      PriceKind `json:"price" yaml:"price"`
	Transition Crossing  `json:"transition" yaml:"transition"`
	Threshold  float64   `json:"threshold" yaml:"threshold"`
}

func (PriceTrigger) Kind() Kind { return KindPrice }

type GridTrigger struct {
	Condition device.GridStatus `json:"condition" yaml:"condition"`
}

func (GridTrigger) Kind() Kind { return KindGrid }

type WeatherTrigger struct {
	Condition device.WeatherCondition `json:"condition" yaml:"condition"`
}

func (WeatherTrigger) Kind() Kind { return KindWeather }

type EVCondition string

const (
	EVConnected      EVCondition = "connected"
	EVDisconnected   EVCondition = "disconnected"
	EVChargingStarts EVCondition = "charging_starts"
	EVChargingStops  EVCondition = "charging_stops"
	EVSoCReaches     EVCondition = "soc_reaches"
)

// EVTrigger fires on a vehicle state transition. An empty VehicleID matches
// any of the owner's vehicles.
type EVTrigger struct {
	VehicleID    string      `json:"vehicle_id,omitempty" yaml:"vehicle_id,omitempty"`
	Condition    EVCondition `json:"condition" yaml:"condition"`
	SoCThreshold float64     `json:"soc_threshold,omitempty" yaml:"soc_threshold,omitempty"`
}

func (EVTrigger) Kind() Kind { return KindEV }

type ChargerCondition string

const (
	ChargerConnected     ChargerCondition = "connected"
	ChargerDisconnected  ChargerCondition = "disconnected"
	ChargerChargingStart ChargerCondition = "charging_starts"
	ChargerChargingStop  ChargerCondition = "charging_stops"
	ChargerEnergyReaches ChargerCondition = "energy_reaches"
	ChargerAvailable     ChargerCondition = "available"
	ChargerFaulted       ChargerCondition = "faulted"
)

// OCPPTrigger fires on a charge point transition. An empty ChargerID matches
// any of the owner's chargers.
type OCPPTrigger struct {
	ChargerID          string           `json:"charger_id,omitempty" yaml:"charger_id,omitempty"`
	Condition          ChargerCondition `json:"condition" yaml:"condition"`
	EnergyThresholdKWh float64          `json:"energy_threshold_kwh,omitempty" yaml:"energy_threshold_kwh,omitempty"`
}

func (OCPPTrigger) Kind() Kind { return KindOCPP }

type ForecastPeriod string

const (
	ForecastToday    ForecastPeriod = "today"
	ForecastTomorrow ForecastPeriod = "tomorrow"
)

type ForecastCondition string

const (
	ForecastAtLeast ForecastCondition = "at_least"
	ForecastAtMost  ForecastCondition = "at_most"
)

type SolarForecastTrigger struct {
	Period       ForecastPeriod    `json:"period" yaml:"period"`
	Condition    ForecastCondition `json:"condition" yaml:"condition"`
	ThresholdKWh float64           `json:"threshold_kwh" yaml:"threshold_kwh"`
}

func (SolarForecastTrigger) Kind() Kind { return KindSolarForecast }
