// Package engine runs the evaluation cycle: snapshot each owner once,
// evaluate that owner's automations in priority order, execute the actions
// of those that fired and resolve conflicts between them.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/clambin/go-common/set"
	"github.com/powersync/powersync/internal/automation"
	"github.com/powersync/powersync/internal/snapshot"
	"github.com/powersync/powersync/internal/trigger"
)

// Store provides automation definitions and persists evaluation state.
type Store interface {
	// EnabledAutomations returns all enabled, unpaused automations ordered
	// by priority (descending) with automation id as the tie-break.
	EnabledAutomations(ctx context.Context) ([]*automation.Automation, error)
	SaveTriggerState(ctx context.Context, t *automation.Trigger) error
	// MarkTriggered records the firing and pauses run-once automations.
	MarkTriggered(ctx context.Context, a *automation.Automation, at time.Time) error
}

type SnapshotBuilder interface {
	Snapshot(ctx context.Context, owner *automation.Owner) (snapshot.Snapshot, error)
}

type Executor interface {
	Execute(ctx context.Context, actions []automation.Action, owner *automation.Owner) bool
}

type Notifier interface {
	Notify(owner *automation.Owner, title, message string) error
}

type Engine struct {
	store     Store
	snapshots SnapshotBuilder
	executor  Executor
	notifier  Notifier
	metrics   *Metrics
	logger    *slog.Logger

	// Evaluator holds the trigger evaluation tunables.
	Evaluator trigger.Evaluator

	lock sync.Mutex
}

func New(store Store, snapshots SnapshotBuilder, executor Executor, notifier Notifier, metrics *Metrics, logger *slog.Logger) *Engine {
	return &Engine{
		store:     store,
		snapshots: snapshots,
		executor:  executor,
		notifier:  notifier,
		metrics:   metrics,
		logger:    logger,
	}
}

// RunCycle runs one evaluation cycle and returns the number of automations
// that triggered. Cycles never overlap: a cycle that starts while another is
// still running returns immediately.
func (e *Engine) RunCycle(ctx context.Context) int {
	if !e.lock.TryLock() {
		e.logger.Warn("previous cycle still running, skipping")
		return 0
	}
	defer e.lock.Unlock()

	start := time.Now()
	automations, err := e.store.EnabledAutomations(ctx)
	if err != nil {
		e.logger.Error("failed to load automations", "err", err)
		return 0
	}

	var triggered int
	for _, group := range groupByOwner(automations) {
		triggered += e.processOwner(ctx, group)
	}

	if e.metrics != nil {
		e.metrics.cycles.Inc()
		e.metrics.cycleDuration.Observe(time.Since(start).Seconds())
	}
	e.logger.Debug("cycle done", "automations", len(automations), "triggered", triggered, "duration", time.Since(start))
	return triggered
}

// ownerGroup is one owner's automations, already in priority order.
type ownerGroup struct {
	owner       *automation.Owner
	automations []*automation.Automation
}

// groupByOwner partitions automations per owner, preserving both the
// priority order within each group and the order in which owners first
// appear.
func groupByOwner(automations []*automation.Automation) []ownerGroup {
	index := make(map[int64]int)
	var groups []ownerGroup
	for _, a := range automations {
		i, ok := index[a.Owner.ID]
		if !ok {
			i = len(groups)
			index[a.Owner.ID] = i
			groups = append(groups, ownerGroup{owner: a.Owner})
		}
		groups[i].automations = append(groups[i].automations, a)
	}
	return groups
}

// processOwner takes the owner's snapshot and evaluates their automations
// against it. A failed snapshot skips the owner for this cycle.
func (e *Engine) processOwner(ctx context.Context, group ownerGroup) int {
	snap, err := e.snapshots.Snapshot(ctx, group.owner)
	if err != nil {
		e.logger.Error("snapshot failed, skipping owner", "owner", group.owner.ID, "err", err)
		if e.metrics != nil {
			e.metrics.snapshotErrors.Inc()
		}
		return 0
	}

	var triggered int
	claimed := set.New[automation.ActionKind]()
	for _, a := range group.automations {
		result, updated, err := e.Evaluator.Evaluate(a.Trigger, snap)
		if err != nil {
			e.logger.Error("evaluation failed", "owner", group.owner.ID, "automation", a.Name, "err", err)
			if e.metrics != nil {
				e.metrics.evalErrors.Inc()
			}
			continue
		}
		if updated {
			if err = e.store.SaveTriggerState(ctx, a.Trigger); err != nil {
				e.logger.Error("failed to save trigger state", "owner", group.owner.ID, "automation", a.Name, "err", err)
			}
		}
		if !result.Fired {
			continue
		}
		if e.processTriggered(ctx, a, result, claimed) {
			triggered++
		}
	}
	return triggered
}

// processTriggered handles one fired automation: notify the owner, run the
// actions that survive conflict resolution and record the firing. A failed
// notification is logged but never fails the automation's outcome, so a
// notification-only automation, or one whose actions were all claimed away,
// always counts as processed. Only the executor result decides otherwise.
func (e *Engine) processTriggered(ctx context.Context, a *automation.Automation, result trigger.Result, claimed set.Set[automation.ActionKind]) bool {
	e.logger.Info("automation triggered", "owner", a.Owner.ID, "automation", a.Name, "reason", result.Reason)
	if e.metrics != nil {
		e.metrics.triggered.Inc()
	}

	if err := e.notifier.Notify(a.Owner, a.Name, result.Reason); err != nil {
		e.logger.Warn("notification failed", "owner", a.Owner.ID, "automation", a.Name, "err", err)
	}

	processed := true
	if !a.NotificationOnly {
		if actions := e.filterClaimed(a, claimed); len(actions) > 0 {
			processed = e.executor.Execute(ctx, actions, a.Owner)
		}
	}
	if !processed {
		return false
	}

	if err := e.store.MarkTriggered(ctx, a, time.Now()); err != nil {
		e.logger.Error("failed to record firing", "owner", a.Owner.ID, "automation", a.Name, "err", err)
	}
	return true
}
