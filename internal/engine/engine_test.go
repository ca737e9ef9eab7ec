package engine

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/powersync/powersync/internal/automation"
	"github.com/powersync/powersync/internal/snapshot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var noon = time.Date(2026, time.September, 1, 12, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

// firingTrigger is a battery trigger whose stored state makes it fire
// against a snapshot with the battery at 85%.
func firingTrigger() *automation.Trigger {
	return &automation.Trigger{
		Config: &automation.BatteryTrigger{Condition: automation.ChargedUpTo, Threshold: 80},
		State:  automation.NumericEdge(75, noon.Add(-5*time.Minute)),
	}
}

func chargedSnapshot() snapshot.Snapshot {
	return snapshot.Snapshot{Time: noon, BatteryPercent: ptr(85.0)}
}

func newTestEngine(store *fakeStore, snapshots *fakeBuilder) (*Engine, *fakeExecutor, *fakeNotifier) {
	executor := &fakeExecutor{result: true}
	notifier := &fakeNotifier{}
	e := New(store, snapshots, executor, notifier, nil, slog.New(slog.DiscardHandler))
	return e, executor, notifier
}

func TestEngine_RunCycle(t *testing.T) {
	owner := &automation.Owner{ID: 1, Name: "alice"}
	store := &fakeStore{automations: []*automation.Automation{
		{
			ID: 1, Owner: owner, Name: "battery full", Priority: 10, Enabled: true,
			Trigger: firingTrigger(),
			Actions: []automation.Action{{Kind: automation.PreserveCharge}},
		},
		{
			ID: 2, Owner: owner, Name: "battery low", Priority: 5, Enabled: true,
			Trigger: &automation.Trigger{
				Config: &automation.BatteryTrigger{Condition: automation.DischargedDownTo, Threshold: 20},
				State:  automation.NumericEdge(75, noon.Add(-5*time.Minute)),
			},
			Actions: []automation.Action{{Kind: automation.ForceCharge}},
		},
	}}
	snapshots := &fakeBuilder{snapshots: map[int64]snapshot.Snapshot{1: chargedSnapshot()}}
	e, executor, notifier := newTestEngine(store, snapshots)

	triggered := e.RunCycle(context.Background())

	assert.Equal(t, 1, triggered)
	require.Len(t, executor.calls, 1)
	assert.Equal(t, automation.PreserveCharge, executor.calls[0].actions[0].Kind)
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, "battery full", notifier.sent[0].title)
	assert.Equal(t, []int64{1}, store.marked)
	// both triggers observed a new value
	assert.Equal(t, 2, store.stateSaves)
}

func TestEngine_ConflictResolution(t *testing.T) {
	owner := &automation.Owner{ID: 1}
	// both automations fire; the higher-priority one claims preserve_charge
	store := &fakeStore{automations: []*automation.Automation{
		{
			ID: 1, Owner: owner, Name: "high", Priority: 80, Enabled: true,
			Trigger: firingTrigger(),
			Actions: []automation.Action{{Kind: automation.PreserveCharge}},
		},
		{
			ID: 2, Owner: owner, Name: "low", Priority: 50, Enabled: true,
			Trigger: firingTrigger(),
			Actions: []automation.Action{
				{Kind: automation.PreserveCharge},
				{Kind: automation.SendNotification, Params: automation.Params{"message": "hi"}},
			},
		},
	}}
	snapshots := &fakeBuilder{snapshots: map[int64]snapshot.Snapshot{1: chargedSnapshot()}}
	e, executor, _ := newTestEngine(store, snapshots)

	triggered := e.RunCycle(context.Background())

	// both count as processed: the low automation still ran its notification
	assert.Equal(t, 2, triggered)
	require.Len(t, executor.calls, 2)
	assert.Equal(t, []automation.Action{{Kind: automation.PreserveCharge}}, executor.calls[0].actions)
	require.Len(t, executor.calls[1].actions, 1)
	assert.Equal(t, automation.SendNotification, executor.calls[1].actions[0].Kind)
}

func TestEngine_AllActionsClaimed(t *testing.T) {
	owner := &automation.Owner{ID: 1}
	store := &fakeStore{automations: []*automation.Automation{
		{
			ID: 1, Owner: owner, Name: "high", Priority: 80, Enabled: true,
			Trigger: firingTrigger(),
			Actions: []automation.Action{{Kind: automation.PreserveCharge}},
		},
		{
			ID: 2, Owner: owner, Name: "low", Priority: 50, Enabled: true,
			Trigger: firingTrigger(),
			Actions: []automation.Action{{Kind: automation.PreserveCharge}},
		},
	}}
	snapshots := &fakeBuilder{snapshots: map[int64]snapshot.Snapshot{1: chargedSnapshot()}}
	e, executor, notifier := newTestEngine(store, snapshots)

	triggered := e.RunCycle(context.Background())

	// the low automation lost all its actions to the higher-priority one but
	// still counts as processed
	assert.Equal(t, 2, triggered)
	assert.Len(t, executor.calls, 1)
	assert.Len(t, notifier.sent, 2)
	assert.Equal(t, []int64{1, 2}, store.marked)
}

func TestEngine_NotificationOnly(t *testing.T) {
	owner := &automation.Owner{ID: 1}
	store := &fakeStore{automations: []*automation.Automation{
		{
			ID: 1, Owner: owner, Name: "alert", Enabled: true, NotificationOnly: true,
			Trigger: firingTrigger(),
			Actions: []automation.Action{{Kind: automation.PreserveCharge}},
		},
	}}
	snapshots := &fakeBuilder{snapshots: map[int64]snapshot.Snapshot{1: chargedSnapshot()}}
	e, executor, notifier := newTestEngine(store, snapshots)

	triggered := e.RunCycle(context.Background())

	assert.Equal(t, 1, triggered)
	assert.Empty(t, executor.calls)
	assert.Len(t, notifier.sent, 1)
	assert.Equal(t, []int64{1}, store.marked)
}

func TestEngine_SnapshotFailureSkipsOwner(t *testing.T) {
	alice := &automation.Owner{ID: 1}
	bob := &automation.Owner{ID: 2}
	store := &fakeStore{automations: []*automation.Automation{
		{ID: 1, Owner: alice, Name: "a", Enabled: true, Trigger: firingTrigger(),
			Actions: []automation.Action{{Kind: automation.PreserveCharge}}},
		{ID: 2, Owner: bob, Name: "b", Enabled: true, Trigger: firingTrigger(),
			Actions: []automation.Action{{Kind: automation.PreserveCharge}}},
	}}
	snapshots := &fakeBuilder{
		snapshots: map[int64]snapshot.Snapshot{2: chargedSnapshot()},
		errs:      map[int64]error{1: errors.New("powerwall unreachable")},
	}
	e, executor, _ := newTestEngine(store, snapshots)

	triggered := e.RunCycle(context.Background())

	assert.Equal(t, 1, triggered)
	require.Len(t, executor.calls, 1)
	assert.Equal(t, int64(2), executor.calls[0].owner.ID)
	// alice's trigger state was not touched
	assert.Equal(t, 1, store.stateSaves)
}

func TestEngine_ExecutorFailure(t *testing.T) {
	owner := &automation.Owner{ID: 1}
	store := &fakeStore{automations: []*automation.Automation{
		{ID: 1, Owner: owner, Name: "a", Enabled: true, Trigger: firingTrigger(),
			Actions: []automation.Action{{Kind: automation.PreserveCharge}}},
	}}
	snapshots := &fakeBuilder{snapshots: map[int64]snapshot.Snapshot{1: chargedSnapshot()}}
	e, executor, _ := newTestEngine(store, snapshots)
	executor.result = false

	// no action succeeded: not processed, even though the owner was notified
	triggered := e.RunCycle(context.Background())

	assert.Equal(t, 0, triggered)
	assert.Empty(t, store.marked)
}

func TestEngine_NotifyFailureDoesNotFailProcessing(t *testing.T) {
	owner := &automation.Owner{ID: 1}
	store := &fakeStore{automations: []*automation.Automation{
		{
			ID: 1, Owner: owner, Name: "alert", Enabled: true,
			NotificationOnly: true, RunOnce: true,
			Trigger: firingTrigger(),
		},
		{
			ID: 2, Owner: owner, Name: "act", Enabled: true,
			Trigger: firingTrigger(),
			Actions: []automation.Action{{Kind: automation.PreserveCharge}},
		},
	}}
	snapshots := &fakeBuilder{snapshots: map[int64]snapshot.Snapshot{1: chargedSnapshot()}}
	e, executor, notifier := newTestEngine(store, snapshots)
	notifier.err = errors.New("slack down")

	// a notification failure is logged but never fails the automation's
	// outcome: both automations count, and the run-once one gets paused so
	// it does not re-attempt every cycle while the notifier is down
	triggered := e.RunCycle(context.Background())

	assert.Equal(t, 2, triggered)
	assert.Equal(t, []int64{1, 2}, store.marked)
	assert.True(t, store.automations[0].Paused)
	require.Len(t, executor.calls, 1)
	assert.Equal(t, automation.PreserveCharge, executor.calls[0].actions[0].Kind)
}

func TestEngine_NoOverlap(t *testing.T) {
	store := &fakeStore{}
	snapshots := &fakeBuilder{}
	e, _, _ := newTestEngine(store, snapshots)

	e.lock.Lock()
	assert.Equal(t, 0, e.RunCycle(context.Background()))
	e.lock.Unlock()
	assert.Zero(t, store.loads)
}

// fakes

type fakeStore struct {
	automations []*automation.Automation
	loads       int
	stateSaves  int
	marked      []int64
}

func (f *fakeStore) EnabledAutomations(_ context.Context) ([]*automation.Automation, error) {
	f.loads++
	return f.automations, nil
}

func (f *fakeStore) SaveTriggerState(_ context.Context, _ *automation.Trigger) error {
	f.stateSaves++
	return nil
}

func (f *fakeStore) MarkTriggered(_ context.Context, a *automation.Automation, at time.Time) error {
	f.marked = append(f.marked, a.ID)
	a.LastTriggeredAt = at
	if a.RunOnce {
		a.Paused = true
	}
	return nil
}

type fakeBuilder struct {
	snapshots map[int64]snapshot.Snapshot
	errs      map[int64]error
}

func (f *fakeBuilder) Snapshot(_ context.Context, owner *automation.Owner) (snapshot.Snapshot, error) {
	if err, ok := f.errs[owner.ID]; ok {
		return snapshot.Snapshot{}, err
	}
	return f.snapshots[owner.ID], nil
}

type executorCall struct {
	actions []automation.Action
	owner   *automation.Owner
}

type fakeExecutor struct {
	calls  []executorCall
	result bool
}

func (f *fakeExecutor) Execute(_ context.Context, actions []automation.Action, owner *automation.Owner) bool {
	f.calls = append(f.calls, executorCall{actions: actions, owner: owner})
	return f.result
}

type sentNotification struct {
	title   string
	message string
}

type fakeNotifier struct {
	sent []sentNotification
	err  error
}

func (f *fakeNotifier) Notify(_ *automation.Owner, title, message string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentNotification{title: title, message: message})
	return nil
}
