package engine

import (
	"github.com/clambin/go-common/set"
	"github.com/powersync/powersync/internal/automation"
)

// filterClaimed resolves conflicts between automations of the same owner in
// one cycle. Automations are processed in priority order, so the first one
// to issue an action kind claims it; later automations' actions of the same
// kind are skipped.
func (e *Engine) filterClaimed(a *automation.Automation, claimed set.Set[automation.ActionKind]) []automation.Action {
	allowed := make([]automation.Action, 0, len(a.Actions))
	for _, action := range a.Actions {
		if claimed.Contains(action.Kind) {
			e.logger.Info("action skipped: claimed by a higher-priority automation",
				"owner", a.Owner.ID, "automation", a.Name, "action", action.Kind)
			if e.metrics != nil {
				e.metrics.conflictSkips.Inc()
			}
			continue
		}
		claimed.Add(action.Kind)
		allowed = append(allowed, action)
	}
	return allowed
}
