// Package device defines the interfaces and live-state types the engine uses
// to talk to batteries, inverters, EVs, chargers and data providers. Concrete
// clients live in the vendor subpackages.
package device

import (
	"context"
	"errors"
)

// ErrNotSupported is returned when a command is dispatched to a device that
// does not implement the required capability.
var ErrNotSupported = errors.New("operation not supported by device")

type GridStatus string

const (
	OnGrid  GridStatus = "on_grid"
	OffGrid GridStatus = "off_grid"
)

type WeatherCondition string

const (
	Cloudy      WeatherCondition = "cloudy"
	PartlySunny WeatherCondition = "partly_sunny"
	Sunny       WeatherCondition = "sunny"
)

// Ordinal orders conditions from overcast to clear. Unknown conditions map
// to zero so they never equal a configured category.
func (c WeatherCondition) Ordinal() float64 {
	switch c {
	case Cloudy:
		return 1
	case PartlySunny:
		return 2
	case Sunny:
		return 3
	default:
		return 0
	}
}

type OperationMode string

const (
	SelfConsumption OperationMode = "self_consumption"
	Autonomous      OperationMode = "autonomous"
	Backup          OperationMode = "backup"
)

func ValidOperationMode(m OperationMode) bool {
	switch m {
	case SelfConsumption, Autonomous, Backup:
		return true
	}
	return false
}

// ExportRule controls what a battery system may export to the grid.
type ExportRule string

const (
	ExportNever     ExportRule = "never"
	ExportPVOnly    ExportRule = "pv_only"
	ExportBatteryOK ExportRule = "battery_ok"
)

func ValidExportRule(r ExportRule) bool {
	switch r {
	case ExportNever, ExportPVOnly, ExportBatteryOK:
		return true
	}
	return false
}

// BatteryStatus is one reading of a battery system's live state. Power values
// are in watts; BatteryPowerW is positive while discharging and GridPowerW is
// positive while importing.
type BatteryStatus struct {
	Percent       float64
	BackupReserve float64
	SolarPowerW   float64
	BatteryPowerW float64
	GridPowerW    float64
	LoadPowerW    float64
	GridStatus    GridStatus
}

type VehicleState struct {
	ID            string  `yaml:"id"`
	Name          string  `yaml:"name,omitempty"`
	PluggedIn     bool    `yaml:"plugged_in"`
	Charging      bool    `yaml:"charging"`
	BatteryLevel  float64 `yaml:"battery_level"`
	ChargeLimit   int     `yaml:"charge_limit,omitempty"`
	ChargerPowerW float64 `yaml:"charger_power_w,omitempty"`
}

// ChargerStatus follows the OCPP 1.6 status vocabulary.
type ChargerStatus string

const (
	ChargerAvailable   ChargerStatus = "available"
	ChargerPreparing   ChargerStatus = "preparing"
	ChargerCharging    ChargerStatus = "charging"
	ChargerSuspended   ChargerStatus = "suspended"
	ChargerFinishing   ChargerStatus = "finishing"
	ChargerFaulted     ChargerStatus = "faulted"
	ChargerUnavailable ChargerStatus = "unavailable"
)

func (s ChargerStatus) Ordinal() float64 {
	switch s {
	case ChargerAvailable:
		return 1
	case ChargerPreparing:
		return 2
	case ChargerCharging:
		return 3
	case ChargerSuspended:
		return 4
	case ChargerFinishing:
		return 5
	case ChargerFaulted:
		return 6
	case ChargerUnavailable:
		return 7
	default:
		return 0
	}
}

type ChargerState struct {
	ID               string        `yaml:"id"`
	Connected        bool          `yaml:"connected"`
	Status           ChargerStatus `yaml:"status"`
	SessionEnergyKWh float64       `yaml:"session_energy_kwh"`
}

// Prices holds the current import and export tariffs in $/kWh.
type Prices struct {
	ImportPerKWh float64
	ExportPerKWh float64
}

// Forecast holds expected solar generation in kWh per day.
type Forecast struct {
	TodayKWh    float64
	TomorrowKWh float64
}

// BatteryController is the minimum interface a battery system client
// provides. Command capabilities are modeled as optional interfaces below;
// the executor probes for them and fails with ErrNotSupported when absent.
type BatteryController interface {
	LiveStatus(ctx context.Context) (BatteryStatus, error)
}

type BackupReserveSetter interface {
	SetBackupReserve(ctx context.Context, percent int) error
}

type OperationModeSetter interface {
	SetOperationMode(ctx context.Context, mode OperationMode) error
}

type GridExportSetter interface {
	SetGridExport(ctx context.Context, rule ExportRule) error
}

type GridChargingSetter interface {
	SetGridCharging(ctx context.Context, enabled bool) error
}

// RateLimiter is implemented by battery systems controlled through power
// rate registers rather than cloud policies.
type RateLimiter interface {
	SetChargeRateLimit(ctx context.Context, kw float64) error
	SetDischargeRateLimit(ctx context.Context, kw float64) error
	SetExportRateLimit(ctx context.Context, kw float64) error
	ClearExportRateLimit(ctx context.Context) error
}

type InverterController interface {
	Curtail(ctx context.Context) error
	Restore(ctx context.Context) error
	SetPowerLimit(ctx context.Context, watts int) error
}

type EVController interface {
	Vehicles(ctx context.Context) ([]VehicleState, error)
	StartCharging(ctx context.Context, vehicleID string) error
	StopCharging(ctx context.Context, vehicleID string) error
	SetChargeLimit(ctx context.Context, vehicleID string, percent int) error
	SetChargingAmps(ctx context.Context, vehicleID string, amps int) error
}

type ChargerStatusProvider interface {
	Chargers(ctx context.Context) ([]ChargerState, error)
}

type PriceProvider interface {
	CurrentPrices(ctx context.Context) (Prices, error)
}

type WeatherProvider interface {
	CurrentCondition(ctx context.Context) (WeatherCondition, error)
}

type ForecastProvider interface {
	DailyForecast(ctx context.Context) (Forecast, error)
}
