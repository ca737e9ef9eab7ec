// Package solcast fetches rooftop solar forecasts from a Solcast-style API
// and aggregates them per calendar day.
package solcast

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/clambin/go-common/http/metrics"
	"github.com/clambin/go-common/http/roundtripper"
	"github.com/powersync/powersync/internal/device"
)

type Client struct {
	baseURL    string
	apiKey     string
	resourceID string
	httpClient *http.Client
}

var _ device.ForecastProvider = &Client{}

func New(baseURL, resourceID, apiKey string, requestMetrics metrics.RequestMetrics) *Client {
	rt := http.DefaultTransport
	if requestMetrics != nil {
		rt = roundtripper.New(
			roundtripper.WithRequestMetrics(requestMetrics),
			roundtripper.WithRoundTripper(rt),
		)
	}
	if baseURL == "" {
		baseURL = "https://api.solcast.com.au"
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		resourceID: resourceID,
		httpClient: &http.Client{Transport: rt},
	}
}

// DailyForecast sums the half-hourly pv estimates into kWh for today and
// tomorrow, in local time.
func (c *Client) DailyForecast(ctx context.Context) (device.Forecast, error) {
	url := c.baseURL + "/rooftop_sites/" + c.resourceID + "/forecasts?format=json&hours=48"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return device.Forecast{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return device.Forecast{}, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return device.Forecast{}, fmt.Errorf("get forecast: %s", resp.Status)
	}

	var response struct {
		Forecasts []struct {
			PVEstimate float64   `json:"pv_estimate"`
			PeriodEnd  time.Time `json:"period_end"`
		} `json:"forecasts"`
	}
	if err = json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return device.Forecast{}, fmt.Errorf("decode forecast: %w", err)
	}

	now := time.Now()
	today := now.Format(time.DateOnly)
	tomorrow := now.AddDate(0, 0, 1).Format(time.DateOnly)

	var forecast device.Forecast
	for _, period := range response.Forecasts {
		// half-hourly periods: kW * 0.5 h = kWh
		kwh := period.PVEstimate / 2
		switch period.PeriodEnd.Local().Format(time.DateOnly) {
		case today:
			forecast.TodayKWh += kwh
		case tomorrow:
			forecast.TomorrowKWh += kwh
		}
	}
	return forecast, nil
}
