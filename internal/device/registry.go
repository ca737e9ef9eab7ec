package device

import "sync"

// Registry maps owners to their device clients. Clients are registered once
// at startup; lookups happen on every evaluation cycle.
type Registry struct {
	mu        sync.RWMutex
	batteries map[int64]BatteryController
	inverters map[int64]InverterController
	evs       map[int64]EVController
	chargers  map[int64]ChargerStatusProvider
	prices    map[int64]PriceProvider
	weather   map[int64]WeatherProvider
	forecasts map[int64]ForecastProvider
}

func NewRegistry() *Registry {
	return &Registry{
		batteries: make(map[int64]BatteryController),
		inverters: make(map[int64]InverterController),
		evs:       make(map[int64]EVController),
		chargers:  make(map[int64]ChargerStatusProvider),
		prices:    make(map[int64]PriceProvider),
		weather:   make(map[int64]WeatherProvider),
		forecasts: make(map[int64]ForecastProvider),
	}
}

func (r *Registry) RegisterBattery(ownerID int64, c BatteryController) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batteries[ownerID] = c
}

func (r *Registry) RegisterInverter(ownerID int64, c InverterController) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inverters[ownerID] = c
}

func (r *Registry) RegisterEV(ownerID int64, c EVController) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evs[ownerID] = c
}

func (r *Registry) RegisterCharger(ownerID int64, c ChargerStatusProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chargers[ownerID] = c
}

func (r *Registry) RegisterPrices(ownerID int64, c PriceProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prices[ownerID] = c
}

func (r *Registry) RegisterWeather(ownerID int64, c WeatherProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.weather[ownerID] = c
}

func (r *Registry) RegisterForecast(ownerID int64, c ForecastProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forecasts[ownerID] = c
}

func (r *Registry) Battery(ownerID int64) (BatteryController, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.batteries[ownerID]
	return c, ok
}

func (r *Registry) Inverter(ownerID int64) (InverterController, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.inverters[ownerID]
	return c, ok
}

func (r *Registry) EV(ownerID int64) (EVController, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.evs[ownerID]
	return c, ok
}

func (r *Registry) Charger(ownerID int64) (ChargerStatusProvider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.chargers[ownerID]
	return c, ok
}

func (r *Registry) Prices(ownerID int64) (PriceProvider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.prices[ownerID]
	return c, ok
}

func (r *Registry) Weather(ownerID int64) (WeatherProvider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.weather[ownerID]
	return c, ok
}

func (r *Registry) Forecast(ownerID int64) (ForecastProvider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.forecasts[ownerID]
	return c, ok
}
