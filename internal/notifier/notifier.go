// Package notifier delivers automation notifications to the owner.
package notifier

import (
	"errors"
	"log/slog"

	"github.com/powersync/powersync/internal/automation"
)

// Notifier sends one notification. Implementations must not block on user
// interaction; delivery failures are reported to the caller, who decides
// whether they matter.
type Notifier interface {
	Notify(owner *automation.Owner, title, message string) error
}

// Notifiers fans a notification out to multiple destinations.
type Notifiers []Notifier

func (n Notifiers) Notify(owner *automation.Owner, title, message string) error {
	var errs error
	for _, notifier := range n {
		errs = errors.Join(errs, notifier.Notify(owner, title, message))
	}
	return errs
}

// SlogNotifier writes notifications to the log. It always succeeds, so a
// deployment without Slack still counts notifications as delivered.
type SlogNotifier struct {
	Logger *slog.Logger
}

func (s SlogNotifier) Notify(owner *automation.Owner, title, message string) error {
	s.Logger.Info("notification", "owner", owner.Name, "title", title, "message", message)
	return nil
}
