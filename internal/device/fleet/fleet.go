// Package fleet implements an EV fleet API client (Tesla-style endpoints).
package fleet

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

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

var _ device.EVController = &Client{}

// New returns a Client. A nil requestMetrics disables instrumentation.
func New(baseURL, token string, requestMetrics metrics.RequestMetrics) *Client {
	rt := http.DefaultTransport
	if requestMetrics != nil {
		rt = roundtripper.New(
			roundtripper.WithRequestMetrics(requestMetrics),
			roundtripper.WithRoundTripper(rt),
		)
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Transport: rt},
	}
}

type vehicleData struct {
	ID          json.Number `json:"id"`
	DisplayName string      `json:"display_name"`
	ChargeState struct {
		ChargingState  string  `json:"charging_state"`
		BatteryLevel   float64 `json:"battery_level"`
		ChargeLimitSoc int     `json:"charge_limit_soc"`
		ChargerPower   float64 `json:"charger_power"`
	} `json:"charge_state"`
}

// Vehicles lists the account's vehicles with their charge state.
func (c *Client) Vehicles(ctx context.Context) ([]device.VehicleState, error) {
	var listResponse struct {
		Response []vehicleData `json:"response"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/1/vehicles", nil, &listResponse); err != nil {
		return nil, err
	}

	vehicles := make([]device.VehicleState, 0, len(listResponse.Response))
	for _, v := range listResponse.Response {
		var dataResponse struct {
			Response vehicleData `json:"response"`
		}
		if err := c.call(ctx, http.MethodGet, "/api/1/vehicles/"+v.ID.String()+"/vehicle_data", nil, &dataResponse); err != nil {
			// asleep vehicles do not serve data; report them unplugged
			vehicles = append(vehicles, device.VehicleState{ID: v.ID.String(), Name: v.DisplayName})
			continue
		}
		data := dataResponse.Response
		vehicles = append(vehicles, device.VehicleState{
			ID:            v.ID.String(),
			Name:          data.DisplayName,
			PluggedIn:     data.ChargeState.ChargingState != "" && data.ChargeState.ChargingState != "Disconnected",
			Charging:      data.ChargeState.ChargingState == "Charging",
			BatteryLevel:  data.ChargeState.BatteryLevel,
			ChargeLimit:   data.ChargeState.ChargeLimitSoc,
			ChargerPowerW: data.ChargeState.ChargerPower * 1000,
		})
	}
	return vehicles, nil
}

func (c *Client) StartCharging(ctx context.Context, vehicleID string) error {
	return c.command(ctx, vehicleID, "charge_start", nil)
}

func (c *Client) StopCharging(ctx context.Context, vehicleID string) error {
	return c.command(ctx, vehicleID, "charge_stop", nil)
}

func (c *Client) SetChargeLimit(ctx context.Context, vehicleID string, percent int) error {
	return c.command(ctx, vehicleID, "set_charge_limit", map[string]any{"percent": percent})
}

func (c *Client) SetChargingAmps(ctx context.Context, vehicleID string, amps int) error {
	return c.command(ctx, vehicleID, "set_charging_amps", map[string]any{"charging_amps": amps})
}

func (c *Client) command(ctx context.Context, vehicleID, command string, body map[string]any) error {
	var response struct {
		Response struct {
			Result bool   `json:"result"`
			Reason string `json:"reason"`
		} `json:"response"`
	}
	endpoint := "/api/1/vehicles/" + vehicleID + "/command/" + command
	if err := c.call(ctx, http.MethodPost, endpoint, body, &response); err != nil {
		return err
	}
	if !response.Response.Result {
		return fmt.Errorf("%s: %s", command, response.Response.Reason)
	}
	return nil
}

func (c *Client) call(ctx context.Context, method, endpoint string, body, response any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
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
	return json.NewDecoder(resp.Body).Decode(response)
}
