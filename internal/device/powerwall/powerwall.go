// Package powerwall implements a Tesla-style cloud battery client.
package powerwall

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/clambin/go-common/http/metrics"
	"github.com/clambin/go-common/http/roundtripper"
	"github.com/powersync/powersync/internal/device"
)

// Client talks to the vendor's energy site API. It implements
// device.BatteryController plus all cloud command capabilities; rate limits
// are not available through this API.
type Client struct {
	baseURL    string
	siteID     string
	token      string
	httpClient *http.Client
}

var (
	_ device.BatteryController   = &Client{}
	_ device.BackupReserveSetter = &Client{}
	_ device.OperationModeSetter = &Client{}
	_ device.GridExportSetter    = &Client{}
	_ device.GridChargingSetter  = &Client{}
)

// New returns a Client. A nil requestMetrics disables instrumentation.
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

func (c *Client) LiveStatus(ctx context.Context) (device.BatteryStatus, error) {
	var response struct {
		PercentageCharged    float64 `json:"percentage_charged"`
		BackupReservePercent float64 `json:"backup_reserve_percent"`
		SolarPower           float64 `json:"solar_power"`
		BatteryPower         float64 `json:"battery_power"`
		GridPower            float64 `json:"grid_power"`
		LoadPower            float64 `json:"load_power"`
		IslandStatus         string  `json:"island_status"`
	}
	if err := c.call(ctx, http.MethodGet, "/live_status", nil, &response); err != nil {
		return device.BatteryStatus{}, err
	}
	status := device.BatteryStatus{
		Percent:       response.PercentageCharged,
		BackupReserve: response.BackupReservePercent,
		SolarPowerW:   response.SolarPower,
		BatteryPowerW: response.BatteryPower,
		GridPowerW:    response.GridPower,
		LoadPowerW:    response.LoadPower,
		GridStatus:    device.OnGrid,
	}
	if strings.Contains(response.IslandStatus, "island") {
		status.GridStatus = device.OffGrid
	}
	return status, nil
}

func (c *Client) SetBackupReserve(ctx context.Context, percent int) error {
	return c.call(ctx, http.MethodPost, "/backup", map[string]any{"backup_reserve_percent": percent}, nil)
}

func (c *Client) SetOperationMode(ctx context.Context, mode device.OperationMode) error {
	return c.call(ctx, http.MethodPost, "/operation", map[string]any{"default_real_mode": string(mode)}, nil)
}

func (c *Client) SetGridExport(ctx context.Context, rule device.ExportRule) error {
	return c.call(ctx, http.MethodPost, "/grid_import_export", map[string]any{
		"customer_preferred_export_rule": string(rule),
	}, nil)
}

func (c *Client) SetGridCharging(ctx context.Context, enabled bool) error {
	return c.call(ctx, http.MethodPost, "/grid_import_export", map[string]any{
		"disallow_charge_from_grid_with_solar_installed": !enabled,
	}, nil)
}

func (c *Client) call(ctx context.Context, method, endpoint string, body, response any) error {
	url := c.baseURL + "/api/1/energy_sites/" + c.siteID + endpoint
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s %s: %s", method, endpoint, resp.Status)
	}
	if response == nil {
		return nil
	}

	// site responses wrap the payload in a "response" object
	var wrapper struct {
		Response json.RawMessage `json:"response"`
	}
	if err = json.NewDecoder(resp.Body).Decode(&wrapper); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if err = json.Unmarshal(wrapper.Response, response); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
