// Package automation contains the data model for the automation engine:
// owners, automations, triggers with their edge-detection state, and actions.
package automation

import (
	"time"
)

// An Owner is a household whose devices the engine controls. Automations
// belong to exactly one owner and evaluate against that owner's snapshot.
type Owner struct {
	ID       int64
	Name     string
	Timezone string

	// DeviceConfig describes which device clients to build for this owner.
	DeviceConfig DeviceConfig

	// cached device state, maintained by the action executor
	CurrentExportRule        string
	ExportRuleUpdatedAt      time.Time
	InverterCurtailed        bool
	InverterPowerLimitW      int
	InverterStateUpdatedAt   time.Time
	ManualChargeActive       bool
	ManualChargeExpiresAt    time.Time
	ManualDischargeActive    bool
	ManualDischargeExpiresAt time.Time
}

// Location returns the owner's time zone, defaulting to UTC when unset.
func (o *Owner) Location() (*time.Location, error) {
	if o.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(o.Timezone)
}

// An Automation couples one trigger to an ordered list of actions.
type Automation struct {
	ID               int64
	Owner            *Owner
	Name             string
	Priority         int
	Enabled          bool
	Paused           bool
	RunOnce          bool
	NotificationOnly bool
	LastTriggeredAt  time.Time
	Trigger          *Trigger
	Actions          []Action
}

// DeviceConfig is stored as JSON on the owner record. Empty sections mean the
// owner has no device of that type.
type DeviceConfig struct {
	Battery  BatteryDeviceConfig  `json:"battery,omitempty"`
	Inverter InverterDeviceConfig `json:"inverter,omitempty"`
	EV       EVDeviceConfig       `json:"ev,omitempty"`
	Prices   PriceDeviceConfig    `json:"prices,omitempty"`
	Weather  WeatherDeviceConfig  `json:"weather,omitempty"`
	Forecast ForecastDeviceConfig `json:"forecast,omitempty"`
	Charger  ChargerDeviceConfig  `json:"charger,omitempty"`
}

type BatteryDeviceConfig struct {
	Vendor  string `json:"vendor,omitempty"` // "powerwall" or "sigenergy"
	BaseURL string `json:"base_url,omitempty"`
	Token   string `json:"token,omitempty"`
	SiteID  string `json:"site_id,omitempty"`
	Host    string `json:"host,omitempty"`
	Port    int    `json:"port,omitempty"`
	UnitID  uint8  `json:"unit_id,omitempty"`
}

type InverterDeviceConfig struct {
	Host        string `json:"host,omitempty"`
	Port        int    `json:"port,omitempty"`
	UnitID      uint8  `json:"unit_id,omitempty"`
	RatedPowerW int    `json:"rated_power_w,omitempty"`
}

type EVDeviceConfig struct {
	BaseURL string `json:"base_url,omitempty"`
	Token   string `json:"token,omitempty"`
}

type PriceDeviceConfig struct {
	BaseURL string `json:"base_url,omitempty"`
	Token   string `json:"token,omitempty"`
	SiteID  string `json:"site_id,omitempty"`
}

type WeatherDeviceConfig struct {
	APIKey    string  `json:"api_key,omitempty"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
}

type ForecastDeviceConfig struct {
	BaseURL    string `json:"base_url,omitempty"`
	APIKey     string `json:"api_key,omitempty"`
	ResourceID string `json:"resource_id,omitempty"`
}

type ChargerDeviceConfig struct {
	Enabled bool `json:"enabled,omitempty"`
}
