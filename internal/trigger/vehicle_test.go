package trigger

import (
	"testing"
	"time"

	"github.com/powersync/powersync/internal/automation"
	"github.com/powersync/powersync/internal/device"
	"github.com/powersync/powersync/internal/snapshot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vehicleSnap(at time.Time, vehicles ...device.VehicleState) snapshot.Snapshot {
	return snapshot.Snapshot{Time: at, Vehicles: vehicles}
}

func TestEvaluator_EV_Connected(t *testing.T) {
	var e Evaluator
	trigger := &automation.Trigger{
		Config: &automation.EVTrigger{Condition: automation.EVConnected},
	}

	// first observation: plugged in, but no edge yet
	result, updated, err := e.Evaluate(trigger, vehicleSnap(noon, device.VehicleState{ID: "car1", PluggedIn: true}))
	require.NoError(t, err)
	assert.False(t, result.Fired)
	assert.True(t, updated)

	result, _, err = e.Evaluate(trigger, vehicleSnap(noon.Add(time.Minute), device.VehicleState{ID: "car1", PluggedIn: false}))
	require.NoError(t, err)
	assert.False(t, result.Fired)

	result, _, err = e.Evaluate(trigger, vehicleSnap(noon.Add(2*time.Minute), device.VehicleState{ID: "car1", Name: "Model Y", PluggedIn: true}))
	require.NoError(t, err)
	assert.True(t, result.Fired)
	assert.Equal(t, "Model Y plugged in", result.Reason)
}

func TestEvaluator_EV_SoCReaches(t *testing.T) {
	var e Evaluator
	trigger := &automation.Trigger{
		Config: &automation.EVTrigger{VehicleID: "car1", Condition: automation.EVSoCReaches, SoCThreshold: 80},
	}

	_, _, err := e.Evaluate(trigger, vehicleSnap(noon, device.VehicleState{ID: "car1", BatteryLevel: 70}))
	require.NoError(t, err)

	// a different vehicle crossing the threshold must not fire
	result, updated, err := e.Evaluate(trigger, vehicleSnap(noon.Add(time.Minute),
		device.VehicleState{ID: "car2", BatteryLevel: 90},
		device.VehicleState{ID: "car1", BatteryLevel: 75},
	))
	require.NoError(t, err)
	assert.False(t, result.Fired)
	assert.True(t, updated)

	result, _, err = e.Evaluate(trigger, vehicleSnap(noon.Add(2*time.Minute), device.VehicleState{ID: "car1", BatteryLevel: 82}))
	require.NoError(t, err)
	assert.True(t, result.Fired)
}

func TestEvaluator_EV_NoMatchKeepsState(t *testing.T) {
	var e Evaluator
	trigger := &automation.Trigger{
		Config: &automation.EVTrigger{Condition: automation.EVChargingStarts},
	}

	_, _, err := e.Evaluate(trigger, vehicleSnap(noon, device.VehicleState{ID: "car1", Charging: false}))
	require.NoError(t, err)

	// vehicle offline for a cycle: state survives
	result, updated, err := e.Evaluate(trigger, vehicleSnap(noon.Add(time.Minute)))
	require.NoError(t, err)
	assert.False(t, result.Fired)
	assert.False(t, updated)

	result, _, err = e.Evaluate(trigger, vehicleSnap(noon.Add(2*time.Minute), device.VehicleState{ID: "car1", Charging: true}))
	require.NoError(t, err)
	assert.True(t, result.Fired)
}

func chargerSnap(at time.Time, chargers ...device.ChargerState) snapshot.Snapshot {
	return snapshot.Snapshot{Time: at, Chargers: chargers}
}

func TestEvaluator_OCPP_ChargingStops(t *testing.T) {
	var e Evaluator
	trigger := &automation.Trigger{
		Config: &automation.OCPPTrigger{ChargerID: "CP001", Condition: automation.ChargerChargingStop},
	}

	_, _, err := e.Evaluate(trigger, chargerSnap(noon, device.ChargerState{ID: "CP001", Connected: true, Status: device.ChargerCharging}))
	require.NoError(t, err)

	result, _, err := e.Evaluate(trigger, chargerSnap(noon.Add(time.Minute), device.ChargerState{ID: "CP001", Connected: true, Status: device.ChargerFinishing}))
	require.NoError(t, err)
	assert.True(t, result.Fired)
	assert.Equal(t, "charger CP001 stopped charging", result.Reason)
}

func TestEvaluator_OCPP_EnergyReaches(t *testing.T) {
	var e Evaluator
	trigger := &automation.Trigger{
		Config: &automation.OCPPTrigger{Condition: automation.ChargerEnergyReaches, EnergyThresholdKWh: 10},
	}

	steps := []struct {
		energy    float64
		wantFired bool
	}{
		{energy: 2, wantFired: false},
		{energy: 8, wantFired: false},
		{energy: 11, wantFired: true},
		{energy: 12, wantFired: false},
	}
	at := noon
	for i, step := range steps {
		result, _, err := e.Evaluate(trigger, chargerSnap(at, device.ChargerState{ID: "CP001", SessionEnergyKWh: step.energy}))
		require.NoError(t, err)
		assert.Equal(t, step.wantFired, result.Fired, "step %d: %s", i, result.Reason)
		at = at.Add(time.Minute)
	}
}

func TestEvaluator_OCPP_Faulted(t *testing.T) {
	var e Evaluator
	trigger := &automation.Trigger{
		Config: &automation.OCPPTrigger{Condition: automation.ChargerFaulted},
	}

	_, _, err := e.Evaluate(trigger, chargerSnap(noon, device.ChargerState{ID: "CP001", Status: device.ChargerCharging}))
	require.NoError(t, err)

	result, _, err := e.Evaluate(trigger, chargerSnap(noon.Add(time.Minute), device.ChargerState{ID: "CP001", Status: device.ChargerFaulted}))
	require.NoError(t, err)
	assert.True(t, result.Fired)
	assert.Equal(t, "charger CP001 is faulted", result.Reason)

	// still faulted: no new edge
	result, _, err = e.Evaluate(trigger, chargerSnap(noon.Add(2*time.Minute), device.ChargerState{ID: "CP001", Status: device.ChargerFaulted}))
	require.NoError(t, err)
	assert.False(t, result.Fired)
}
