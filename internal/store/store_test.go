package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/powersync/powersync/internal/automation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "powersync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedOwner(t *testing.T, s *Store, name string) *automation.Owner {
	t.Helper()
	owner := &automation.Owner{
		Name:     name,
		Timezone: "Australia/Brisbane",
		DeviceConfig: automation.DeviceConfig{
			Battery: automation.BatteryDeviceConfig{Vendor: "powerwall", SiteID: "12345"},
		},
	}
	require.NoError(t, s.CreateOwner(context.Background(), owner))
	return owner
}

func TestStore_Owners(t *testing.T) {
	s := newTestStore(t)
	seedOwner(t, s, "alice")
	seedOwner(t, s, "bob")

	owners, err := s.Owners(context.Background())
	require.NoError(t, err)
	require.Len(t, owners, 2)
	assert.Equal(t, "alice", owners[0].Name)
	assert.Equal(t, "Australia/Brisbane", owners[0].Timezone)
	assert.Equal(t, "powerwall", owners[0].DeviceConfig.Battery.Vendor)
}

func TestStore_SaveOwnerState(t *testing.T) {
	s := newTestStore(t)
	owner := seedOwner(t, s, "alice")

	owner.CurrentExportRule = "never"
	owner.ExportRuleUpdatedAt = time.Now()
	owner.ManualChargeActive = true
	owner.ManualChargeExpiresAt = time.Now().Add(time.Hour)
	require.NoError(t, s.SaveOwnerState(context.Background(), owner))

	owners, err := s.Owners(context.Background())
	require.NoError(t, err)
	require.Len(t, owners, 1)
	assert.Equal(t, "never", owners[0].CurrentExportRule)
	assert.True(t, owners[0].ManualChargeActive)
	assert.WithinDuration(t, owner.ManualChargeExpiresAt, owners[0].ManualChargeExpiresAt, time.Second)
}

func TestStore_EnabledAutomations(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	owner := seedOwner(t, s, "alice")

	start := automation.TimeOfDay{Hour: 9}
	end := automation.TimeOfDay{Hour: 17}
	low := &automation.Automation{
		Owner: owner, Name: "low priority", Priority: 10, Enabled: true,
		Trigger: &automation.Trigger{
			Config: &automation.BatteryTrigger{Condition: automation.ChargedUpTo, Threshold: 80},
			Window: automation.TimeWindow{Start: &start, End: &end},
		},
		Actions: []automation.Action{
			{Kind: automation.SendNotification, Params: automation.Params{"message": "full"}, ExecutionOrder: 2},
			{Kind: automation.PreserveCharge, ExecutionOrder: 1},
		},
	}
	high := &automation.Automation{
		Owner: owner, Name: "high priority", Priority: 90, Enabled: true,
		Trigger: &automation.Trigger{
			Config: &automation.PriceTrigger{Price: automation.ImportPrice, Transition: automation.RisesAbove, Threshold: 1},
		},
	}
	disabled := &automation.Automation{
		Owner: owner, Name: "disabled", Enabled: false,
		Trigger: &automation.Trigger{Config: &automation.GridTrigger{}},
	}
	for _, a := range []*automation.Automation{low, high, disabled} {
		require.NoError(t, s.CreateAutomation(ctx, a))
	}

	automations, err := s.EnabledAutomations(ctx)
	require.NoError(t, err)
	require.Len(t, automations, 2)
	assert.Equal(t, "high priority", automations[0].Name)
	assert.Equal(t, "low priority", automations[1].Name)

	// same owner record shared across the owner's automations
	assert.Same(t, automations[0].Owner, automations[1].Owner)

	// trigger round-trip
	got := automations[1].Trigger
	assert.Equal(t, &automation.BatteryTrigger{Condition: automation.ChargedUpTo, Threshold: 80}, got.Config)
	assert.Equal(t, "09:00-17:00", got.Window.String())

	// actions come back in execution order
	require.Len(t, automations[1].Actions, 2)
	assert.Equal(t, automation.PreserveCharge, automations[1].Actions[0].Kind)
	assert.Equal(t, automation.SendNotification, automations[1].Actions[1].Kind)
	message, _ := automations[1].Actions[1].Params.String("message")
	assert.Equal(t, "full", message)
}

func TestStore_SaveTriggerState(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	owner := seedOwner(t, s, "alice")

	a := &automation.Automation{
		Owner: owner, Name: "a", Enabled: true,
		Trigger: &automation.Trigger{
			Config: &automation.BatteryTrigger{Condition: automation.ChargedUpTo, Threshold: 80},
		},
	}
	require.NoError(t, s.CreateAutomation(ctx, a))

	evaluatedAt := time.Date(2026, time.September, 1, 12, 0, 0, 0, time.UTC)
	a.Trigger.State = automation.NumericEdge(75.5, evaluatedAt)
	require.NoError(t, s.SaveTriggerState(ctx, a.Trigger))

	automations, err := s.EnabledAutomations(ctx)
	require.NoError(t, err)
	require.Len(t, automations, 1)
	state := automations[0].Trigger.State
	assert.Equal(t, automation.EdgeNumeric, state.Kind)
	assert.Equal(t, 75.5, state.Value)
	assert.Equal(t, evaluatedAt, state.EvaluatedAt.UTC())

	value, known := state.Numeric()
	assert.True(t, known)
	assert.Equal(t, 75.5, value)
}

func TestStore_MarkTriggered_RunOnce(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	owner := seedOwner(t, s, "alice")

	a := &automation.Automation{
		Owner: owner, Name: "one shot", Enabled: true, RunOnce: true,
		Trigger: &automation.Trigger{
			Config: &automation.TimeTrigger{At: automation.TimeOfDay{Hour: 7}},
		},
	}
	require.NoError(t, s.CreateAutomation(ctx, a))

	require.NoError(t, s.MarkTriggered(ctx, a, time.Now()))
	assert.True(t, a.Paused)

	// paused after its single firing: no longer eligible
	automations, err := s.EnabledAutomations(ctx)
	require.NoError(t, err)
	assert.Empty(t, automations)
}

func TestStore_MarkTriggered_WriteFailure(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	owner := seedOwner(t, s, "alice")

	a := &automation.Automation{
		Owner: owner, Name: "one shot", Enabled: true, RunOnce: true,
		Trigger: &automation.Trigger{
			Config: &automation.TimeTrigger{At: automation.TimeOfDay{Hour: 7}},
		},
	}
	require.NoError(t, s.CreateAutomation(ctx, a))

	// a failed write must leave the in-memory record untouched so memory and
	// database stay in agreement
	require.NoError(t, s.Close())
	assert.Error(t, s.MarkTriggered(ctx, a, time.Now()))
	assert.False(t, a.Paused)
	assert.True(t, a.LastTriggeredAt.IsZero())
}
