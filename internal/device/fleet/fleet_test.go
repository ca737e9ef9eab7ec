package fleet

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/powersync/powersync/internal/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Vehicles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/api/1/vehicles":
			_, _ = w.Write([]byte(`{"response":[{"id":100,"display_name":"Model Y"}]}`))
		case "/api/1/vehicles/100/vehicle_data":
			_, _ = w.Write([]byte(`{"response":{"id":100,"display_name":"Model Y","charge_state":{
				"charging_state":"Charging","battery_level":65,"charge_limit_soc":80,"charger_power":7
			}}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()
	c := New(server.URL, "token", nil)

	vehicles, err := c.Vehicles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []device.VehicleState{{
		ID:            "100",
		Name:          "Model Y",
		PluggedIn:     true,
		Charging:      true,
		BatteryLevel:  65,
		ChargeLimit:   80,
		ChargerPowerW: 7000,
	}}, vehicles)
}

func TestClient_Commands(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotBody = nil
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&gotBody)
		}
		_, _ = w.Write([]byte(`{"response":{"result":true}}`))
	}))
	defer server.Close()
	c := New(server.URL, "token", nil)
	ctx := context.Background()

	require.NoError(t, c.StartCharging(ctx, "100"))
	assert.Equal(t, "/api/1/vehicles/100/command/charge_start", gotPath)

	require.NoError(t, c.SetChargeLimit(ctx, "100", 80))
	assert.Equal(t, "/api/1/vehicles/100/command/set_charge_limit", gotPath)
	assert.Equal(t, map[string]any{"percent": 80.0}, gotBody)

	require.NoError(t, c.SetChargingAmps(ctx, "100", 16))
	assert.Equal(t, "/api/1/vehicles/100/command/set_charging_amps", gotPath)
	assert.Equal(t, map[string]any{"charging_amps": 16.0}, gotBody)
}

func TestClient_CommandRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"response":{"result":false,"reason":"charging"}}`))
	}))
	defer server.Close()
	c := New(server.URL, "token", nil)

	err := c.StopCharging(context.Background(), "100")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "charging")
}
