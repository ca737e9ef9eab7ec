package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/clambin/go-common/cache"
	"github.com/powersync/powersync/internal/automation"
	"github.com/powersync/powersync/internal/device"
)

// Builder takes per-owner snapshots. Each data source is polled with its own
// timeout; a failing source logs a warning and leaves its fields nil rather
// than failing the snapshot. Weather is cached, as conditions change far
// slower than the cycle interval.
type Builder struct {
	devices     *device.Registry
	weather     *cache.Cache[int64, device.WeatherCondition]
	callTimeout time.Duration
	logger      *slog.Logger
}

func NewBuilder(devices *device.Registry, weatherTTL, callTimeout time.Duration, logger *slog.Logger) *Builder {
	if weatherTTL <= 0 {
		weatherTTL = 15 * time.Minute
	}
	if callTimeout <= 0 {
		callTimeout = 15 * time.Second
	}
	return &Builder{
		devices:     devices,
		weather:     cache.New[int64, device.WeatherCondition](weatherTTL, 0),
		callTimeout: callTimeout,
		logger:      logger,
	}
}

// Snapshot polls the owner's registered devices and assembles their state.
// It only fails outright when the owner's time zone cannot be resolved.
func (b *Builder) Snapshot(ctx context.Context, owner *automation.Owner) (Snapshot, error) {
	loc, err := owner.Location()
	if err != nil {
		return Snapshot{}, fmt.Errorf("owner %d: invalid timezone %q: %w", owner.ID, owner.Timezone, err)
	}

	snap := Snapshot{Time: time.Now().In(loc)}
	b.addBattery(ctx, owner, &snap)
	b.addPrices(ctx, owner, &snap)
	b.addWeather(ctx, owner, &snap)
	b.addVehicles(ctx, owner, &snap)
	b.addChargers(ctx, owner, &snap)
	b.addForecast(ctx, owner, &snap)
	return snap, nil
}

func (b *Builder) addBattery(ctx context.Context, owner *automation.Owner, snap *Snapshot) {
	c, ok := b.devices.Battery(owner.ID)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, b.callTimeout)
	defer cancel()
	status, err := c.LiveStatus(ctx)
	if err != nil {
		b.logger.Warn("battery status unavailable", "owner", owner.ID, "err", err)
		return
	}
	snap.BatteryPercent = ptr(status.Percent)
	snap.BackupReserve = ptr(status.BackupReserve)
	snap.SolarKW = ptr(status.SolarPowerW / 1000)
	snap.HomeUsageKW = ptr(status.LoadPowerW / 1000)
	snap.GridImportKW = ptr(max(status.GridPowerW, 0) / 1000)
	snap.GridExportKW = ptr(max(-status.GridPowerW, 0) / 1000)
	snap.BatteryChargeKW = ptr(max(-status.BatteryPowerW, 0) / 1000)
	snap.BatteryDischargeKW = ptr(max(status.BatteryPowerW, 0) / 1000)
	if status.GridStatus != "" {
		snap.GridStatus = ptr(status.GridStatus)
	}
}

func (b *Builder) addPrices(ctx context.Context, owner *automation.Owner, snap *Snapshot) {
	c, ok := b.devices.Prices(owner.ID)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, b.callTimeout)
	defer cancel()
	prices, err := c.CurrentPrices(ctx)
	if err != nil {
		b.logger.Warn("prices unavailable", "owner", owner.ID, "err", err)
		return
	}
	snap.ImportPrice = ptr(prices.ImportPerKWh)
	snap.ExportPrice = ptr(prices.ExportPerKWh)
}

func (b *Builder) addWeather(ctx context.Context, owner *automation.Owner, snap *Snapshot) {
	c, ok := b.devices.Weather(owner.ID)
	if !ok {
		return
	}
	if condition, ok := b.weather.Get(owner.ID); ok {
		snap.Weather = ptr(condition)
		return
	}
	ctx, cancel := context.WithTimeout(ctx, b.callTimeout)
	defer cancel()
	condition, err := c.CurrentCondition(ctx)
	if err != nil {
		b.logger.Warn("weather unavailable", "owner", owner.ID, "err", err)
		return
	}
	b.weather.Add(owner.ID, condition)
	snap.Weather = ptr(condition)
}

func (b *Builder) addVehicles(ctx context.Context, owner *automation.Owner, snap *Snapshot) {
	c, ok := b.devices.EV(owner.ID)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, b.callTimeout)
	defer cancel()
	vehicles, err := c.Vehicles(ctx)
	if err != nil {
		b.logger.Warn("vehicle states unavailable", "owner", owner.ID, "err", err)
		return
	}
	snap.Vehicles = vehicles
}

func (b *Builder) addChargers(ctx context.Context, owner *automation.Owner, snap *Snapshot) {
	c, ok := b.devices.Charger(owner.ID)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, b.callTimeout)
	defer cancel()
	chargers, err := c.Chargers(ctx)
	if err != nil {
		b.logger.Warn("charger states unavailable", "owner", owner.ID, "err", err)
		return
	}
	snap.Chargers = chargers
}

func (b *Builder) addForecast(ctx context.Context, owner *automation.Owner, snap *Snapshot) {
	c, ok := b.devices.Forecast(owner.ID)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, b.callTimeout)
	defer cancel()
	forecast, err := c.DailyForecast(ctx)
	if err != nil {
		b.logger.Warn("solar forecast unavailable", "owner", owner.ID, "err", err)
		return
	}
	snap.ForecastTodayKWh = ptr(forecast.TodayKWh)
	snap.ForecastTomorrowKWh = ptr(forecast.TomorrowKWh)
}

func ptr[T any](v T) *T { return &v }
