// Package snapshot assembles one owner's live device state for an evaluation
// cycle. A snapshot is taken once per owner per cycle; fields left nil mean
// the data source was unavailable.
package snapshot

import (
	"time"

	"github.com/powersync/powersync/internal/device"
)

// Snapshot is a point-in-time view of an owner's system. All power figures
// are in kW, prices in $/kWh, forecasts in kWh. Time is in the owner's time
// zone.
type Snapshot struct {
	Time time.Time `yaml:"time,omitempty"`

	BatteryPercent     *float64 `yaml:"battery_percent,omitempty"`
	BackupReserve      *float64 `yaml:"backup_reserve,omitempty"`
	SolarKW            *float64 `yaml:"solar_kw,omitempty"`
	HomeUsageKW        *float64 `yaml:"home_usage_kw,omitempty"`
	GridImportKW       *float64 `yaml:"grid_import_kw,omitempty"`
	GridExportKW       *float64 `yaml:"grid_export_kw,omitempty"`
	BatteryChargeKW    *float64 `yaml:"battery_charge_kw,omitempty"`
	BatteryDischargeKW *float64 `yaml:"battery_discharge_kw,omitempty"`

	ImportPrice *float64                 `yaml:"import_price,omitempty"`
	ExportPrice *float64                 `yaml:"export_price,omitempty"`
	GridStatus  *device.GridStatus       `yaml:"grid_status,omitempty"`
	Weather     *device.WeatherCondition `yaml:"weather,omitempty"`

	Vehicles []device.VehicleState `yaml:"vehicles,omitempty"`
	Chargers []device.ChargerState `yaml:"chargers,omitempty"`

	ForecastTodayKWh    *float64 `yaml:"forecast_today_kwh,omitempty"`
	ForecastTomorrowKWh *float64 `yaml:"forecast_tomorrow_kwh,omitempty"`
}
