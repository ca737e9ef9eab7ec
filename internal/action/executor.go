// Package action dispatches automation actions to the owner's devices.
//
// The executor probes a device for the capability an action needs and fails
// fast with device.ErrNotSupported when it is missing. A failing action never
// stops the remaining actions of its automation.
package action

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/powersync/powersync/internal/automation"
	"github.com/powersync/powersync/internal/device"
)

// Devices resolves an owner's device clients. *device.Registry implements it.
type Devices interface {
	Battery(ownerID int64) (device.BatteryController, bool)
	Inverter(ownerID int64) (device.InverterController, bool)
	EV(ownerID int64) (device.EVController, bool)
}

// Notifier delivers a message to the owner. Used by the send_notification
// action; the engine's trigger notifications go through the same interface.
type Notifier interface {
	Notify(owner *automation.Owner, title, message string) error
}

// OwnerStore persists the owner's cached device state after a successful
// command.
type OwnerStore interface {
	SaveOwnerState(ctx context.Context, owner *automation.Owner) error
}

// Executor runs an automation's actions in order.
type Executor struct {
	devices  Devices
	notifier Notifier
	store    OwnerStore
	timeout  time.Duration
	logger   *slog.Logger

	// ForceChargeDuration bounds a force_charge without an explicit duration.
	ForceChargeDuration time.Duration
	// ForceDischargeDuration bounds a force_discharge without an explicit
	// duration.
	ForceDischargeDuration time.Duration
	// MaxRateKW is the rate written when restoring charge/discharge limits.
	MaxRateKW float64
}

func NewExecutor(devices Devices, notifier Notifier, store OwnerStore, timeout time.Duration, logger *slog.Logger) *Executor {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Executor{
		devices:                devices,
		notifier:               notifier,
		store:                  store,
		timeout:                timeout,
		logger:                 logger,
		ForceChargeDuration:    time.Hour,
		ForceDischargeDuration: 30 * time.Minute,
		MaxRateKW:              10,
	}
}

// Execute runs actions in order and reports whether at least one succeeded.
func (x *Executor) Execute(ctx context.Context, actions []automation.Action, owner *automation.Owner) bool {
	var succeeded int
	for _, a := range actions {
		if err := x.execute(ctx, a, owner); err != nil {
			x.logger.Error("action failed", "owner", owner.ID, "action", a.Kind, "err", err)
			continue
		}
		x.logger.Info("action executed", "owner", owner.ID, "action", a.Kind)
		succeeded++
	}
	return succeeded > 0
}

func (x *Executor) execute(ctx context.Context, a automation.Action, owner *automation.Owner) error {
	ctx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()

	switch a.Kind {
	case automation.SetBackupReserve:
		return x.setBackupReserve(ctx, a.Params, owner)
	case automation.PreserveCharge:
		return x.preserveCharge(ctx, owner)
	case automation.SetOperationMode:
		return x.setOperationMode(ctx, a.Params, owner)
	case automation.ForceCharge:
		return x.forceCharge(ctx, a.Params, owner)
	case automation.ForceDischarge:
		return x.forceDischarge(ctx, a.Params, owner)
	case automation.CurtailInverter:
		return x.curtailInverter(ctx, a.Params, owner)
	case automation.RestoreInverter:
		return x.restoreInverter(ctx, owner)
	case automation.SendNotification:
		return x.sendNotification(a.Params, owner)
	case automation.SetGridExport:
		return x.setGridExport(ctx, a.Params, owner)
	case automation.SetGridCharging:
		return x.setGridCharging(ctx, a.Params, owner)
	case automation.RestoreNormal:
		return x.restoreNormal(ctx, owner)
	case automation.SetChargeRateLimit:
		return x.setRateLimit(ctx, a.Params, owner, rateCharge)
	case automation.SetDischargeRateLimit:
		return x.setRateLimit(ctx, a.Params, owner, rateDischarge)
	case automation.SetExportRateLimit:
		return x.setRateLimit(ctx, a.Params, owner, rateExport)
	case automation.StartEVCharging:
		return x.startEVCharging(ctx, a.Params, owner)
	case automation.StopEVCharging:
		return x.stopEVCharging(ctx, a.Params, owner)
	case automation.SetEVChargeLimit:
		return x.setEVChargeLimit(ctx, a.Params, owner)
	case automation.SetEVChargingAmps:
		return x.setEVChargingAmps(ctx, a.Params, owner)
	default:
		return fmt.Errorf("unhandled action kind %q", a.Kind)
	}
}

func (x *Executor) sendNotification(params automation.Params, owner *automation.Owner) error {
	title, ok := params.String("title")
	if !ok {
		title = "Automation"
	}
	message, ok := params.String("message")
	if !ok {
		return fmt.Errorf("send_notification: missing message")
	}
	return x.notifier.Notify(owner, title, message)
}

func (x *Executor) saveOwner(ctx context.Context, owner *automation.Owner) {
	if err := x.store.SaveOwnerState(ctx, owner); err != nil {
		x.logger.Error("failed to save owner state", "owner", owner.ID, "err", err)
	}
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

func clampF(v, lo, hi float64) float64 {
	return min(max(v, lo), hi)
}
