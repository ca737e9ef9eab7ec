package solcast

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_DailyForecast(t *testing.T) {
	type forecastPeriod struct {
		PVEstimate float64   `json:"pv_estimate"`
		PeriodEnd  time.Time `json:"period_end"`
	}

	// anchor periods to local noon so the test is stable around midnight
	now := time.Now()
	noon := time.Date(now.Year(), now.Month(), now.Day(), 12, 0, 0, 0, time.Local)
	periods := []forecastPeriod{
		{PVEstimate: 4, PeriodEnd: noon},
		{PVEstimate: 6, PeriodEnd: noon.Add(30 * time.Minute)},
		{PVEstimate: 8, PeriodEnd: noon.AddDate(0, 0, 1)},
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rooftop_sites/site1/forecasts", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{"forecasts": periods})
	}))
	defer server.Close()

	c := New(server.URL, "site1", "key", nil)
	forecast, err := c.DailyForecast(context.Background())
	require.NoError(t, err)

	// same-day periods land today, the one 24h out lands tomorrow; both are
	// half-hourly, so kWh is half the kW estimate
	assert.InDelta(t, 5.0, forecast.TodayKWh, 0.001)
	assert.InDelta(t, 4.0, forecast.TomorrowKWh, 0.001)
}
