// Package amber fetches current electricity prices from an Amber-style
// retailer API.
package amber

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/clambin/go-common/http/metrics"
	"github.com/clambin/go-common/http/roundtripper"
	"github.com/powersync/powersync/internal/device"
)

type Client struct {
	baseURL    string
	token      string
	siteID     string
	httpClient *http.Client
}

var _ device.PriceProvider = &Client{}

func New(baseURL, siteID, token string, requestMetrics metrics.RequestMetrics) *Client {
	rt := http.DefaultTransport
	if requestMetrics != nil {
		rt = roundtripper.New(
			roundtripper.WithRequestMetrics(requestMetrics),
			roundtripper.WithRoundTripper(rt),
		)
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		siteID:     siteID,
		token:      token,
		httpClient: &http.Client{Transport: rt},
	}
}

// CurrentPrices returns the current import and export tariffs in $/kWh.
// The API reports cents per kWh, with feed-in prices negated.
func (c *Client) CurrentPrices(ctx context.Context) (device.Prices, error) {
	url := c.baseURL + "/v1/sites/" + c.siteID + "/prices/current?resolution=30"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return device.Prices{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return device.Prices{}, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return device.Prices{}, fmt.Errorf("get prices: %s", resp.Status)
	}

	var intervals []struct {
		ChannelType string  `json:"channelType"`
		PerKWh      float64 `json:"perKwh"`
	}
	if err = json.NewDecoder(resp.Body).Decode(&intervals); err != nil {
		return device.Prices{}, fmt.Errorf("decode prices: %w", err)
	}

	var prices device.Prices
	var seen bool
	for _, interval := range intervals {
		switch interval.ChannelType {
		case "general":
			prices.ImportPerKWh = interval.PerKWh / 100
			seen = true
		case "feedIn":
			prices.ExportPerKWh = -interval.PerKWh / 100
			seen = true
		}
	}
	if !seen {
		return device.Prices{}, fmt.Errorf("no current price intervals")
	}
	return prices, nil
}
