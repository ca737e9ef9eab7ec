// Package openweather classifies OpenWeatherMap conditions into the three
// categories weather triggers understand.
package openweather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/clambin/go-common/http/metrics"
	"github.com/clambin/go-common/http/roundtripper"
	"github.com/powersync/powersync/internal/device"
)

type Client struct {
	baseURL    string
	apiKey     string
	latitude   float64
	longitude  float64
	httpClient *http.Client
}

var _ device.WeatherProvider = &Client{}

func New(baseURL, apiKey string, latitude, longitude float64, requestMetrics metrics.RequestMetrics) *Client {
	rt := http.DefaultTransport
	if requestMetrics != nil {
		rt = roundtripper.New(
			roundtripper.WithRequestMetrics(requestMetrics),
			roundtripper.WithRoundTripper(rt),
		)
	}
	if baseURL == "" {
		baseURL = "https://api.openweathermap.org"
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		latitude:   latitude,
		longitude:  longitude,
		httpClient: &http.Client{Transport: rt},
	}
}

func (c *Client) CurrentCondition(ctx context.Context) (device.WeatherCondition, error) {
	values := url.Values{
		"lat":   []string{strconv.FormatFloat(c.latitude, 'f', 4, 64)},
		"lon":   []string{strconv.FormatFloat(c.longitude, 'f', 4, 64)},
		"appid": []string{c.apiKey},
		"units": []string{"metric"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/data/2.5/weather?"+values.Encode(), nil)
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("get weather: %s", resp.Status)
	}

	var response struct {
		Weather []struct {
			ID int `json:"id"`
		} `json:"weather"`
	}
	if err = json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("decode weather: %w", err)
	}
	if len(response.Weather) == 0 {
		return "", fmt.Errorf("no weather conditions reported")
	}
	return Classify(response.Weather[0].ID), nil
}

// Classify maps an OpenWeatherMap condition id to a category.
// https://openweathermap.org/weather-conditions
func Classify(conditionID int) device.WeatherCondition {
	switch {
	case conditionID >= 200 && conditionID < 700:
		// thunderstorm, drizzle, rain, snow
		return device.Cloudy
	case conditionID >= 700 && conditionID < 800:
		// mist, fog and other atmospheric conditions
		return device.PartlySunny
	case conditionID == 800:
		return device.Sunny
	case conditionID == 801 || conditionID == 802:
		return device.PartlySunny
	case conditionID == 803 || conditionID == 804:
		return device.Cloudy
	default:
		return device.PartlySunny
	}
}
