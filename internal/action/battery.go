package action

import (
	"context"
	"fmt"
	"time"

	"github.com/powersync/powersync/internal/automation"
	"github.com/powersync/powersync/internal/device"
)

func (x *Executor) battery(owner *automation.Owner) (device.BatteryController, error) {
	c, ok := x.devices.Battery(owner.ID)
	if !ok {
		return nil, fmt.Errorf("owner %d has no battery system", owner.ID)
	}
	return c, nil
}

func (x *Executor) setBackupReserve(ctx context.Context, params automation.Params, owner *automation.Owner) error {
	percent, ok := params.Int("percent", "reserve_percent")
	if !ok {
		return fmt.Errorf("set_backup_reserve: missing percent")
	}
	c, err := x.battery(owner)
	if err != nil {
		return err
	}
	setter, ok := c.(device.BackupReserveSetter)
	if !ok {
		return fmt.Errorf("set_backup_reserve: %w", device.ErrNotSupported)
	}
	return setter.SetBackupReserve(ctx, clamp(percent, 0, 100))
}

// preserveCharge stops the battery from draining: cloud systems get an
// export rule change, register-controlled systems a zero discharge rate.
func (x *Executor) preserveCharge(ctx context.Context, owner *automation.Owner) error {
	c, err := x.battery(owner)
	if err != nil {
		return err
	}
	switch battery := c.(type) {
	case device.GridExportSetter:
		if err = battery.SetGridExport(ctx, device.ExportNever); err != nil {
			return err
		}
		owner.CurrentExportRule = string(device.ExportNever)
		owner.ExportRuleUpdatedAt = time.Now()
		x.saveOwner(ctx, owner)
		return nil
	case device.RateLimiter:
		return battery.SetDischargeRateLimit(ctx, 0)
	default:
		return fmt.Errorf("preserve_charge: %w", device.ErrNotSupported)
	}
}

func (x *Executor) setOperationMode(ctx context.Context, params automation.Params, owner *automation.Owner) error {
	mode, ok := params.String("mode")
	if !ok {
		return fmt.Errorf("set_operation_mode: missing mode")
	}
	if !device.ValidOperationMode(device.OperationMode(mode)) {
		return fmt.Errorf("set_operation_mode: invalid mode %q", mode)
	}
	c, err := x.battery(owner)
	if err != nil {
		return err
	}
	setter, ok := c.(device.OperationModeSetter)
	if !ok {
		return fmt.Errorf("set_operation_mode: %w", device.ErrNotSupported)
	}
	return setter.SetOperationMode(ctx, device.OperationMode(mode))
}

func (x *Executor) forceCharge(ctx context.Context, params automation.Params, owner *automation.Owner) error {
	c, err := x.battery(owner)
	if err != nil {
		return err
	}
	target, ok := params.Int("target_percent", "percent")
	if !ok {
		target = 100
	}
	switch battery := c.(type) {
	case device.BackupReserveSetter:
		// raising the reserve above the current charge forces grid charging
		if err = battery.SetBackupReserve(ctx, clamp(target, 0, 100)); err != nil {
			return err
		}
		if charger, ok := c.(device.GridChargingSetter); ok {
			if err = charger.SetGridCharging(ctx, true); err != nil {
				return err
			}
		}
	case device.RateLimiter:
		if err = battery.SetChargeRateLimit(ctx, x.MaxRateKW); err != nil {
			return err
		}
		if err = battery.SetDischargeRateLimit(ctx, 0); err != nil {
			return err
		}
	default:
		return fmt.Errorf("force_charge: %w", device.ErrNotSupported)
	}

	owner.ManualChargeActive = true
	owner.ManualChargeExpiresAt = time.Now().Add(x.duration(params, x.ForceChargeDuration))
	x.saveOwner(ctx, owner)
	return nil
}

func (x *Executor) forceDischarge(ctx context.Context, params automation.Params, owner *automation.Owner) error {
	c, err := x.battery(owner)
	if err != nil {
		return err
	}
	switch battery := c.(type) {
	case device.OperationModeSetter:
		if err = battery.SetOperationMode(ctx, device.Autonomous); err != nil {
			return err
		}
		if exporter, ok := c.(device.GridExportSetter); ok {
			if err = exporter.SetGridExport(ctx, device.ExportBatteryOK); err != nil {
				return err
			}
			owner.CurrentExportRule = string(device.ExportBatteryOK)
			owner.ExportRuleUpdatedAt = time.Now()
		}
	case device.RateLimiter:
		if err = battery.SetDischargeRateLimit(ctx, x.MaxRateKW); err != nil {
			return err
		}
		if err = battery.ClearExportRateLimit(ctx); err != nil {
			return err
		}
	default:
		return fmt.Errorf("force_discharge: %w", device.ErrNotSupported)
	}

	owner.ManualDischargeActive = true
	owner.ManualDischargeExpiresAt = time.Now().Add(x.duration(params, x.ForceDischargeDuration))
	x.saveOwner(ctx, owner)
	return nil
}

func (x *Executor) setGridExport(ctx context.Context, params automation.Params, owner *automation.Owner) error {
	rule, ok := params.String("rule", "export_rule")
	if !ok {
		return fmt.Errorf("set_grid_export: missing rule")
	}
	if !device.ValidExportRule(device.ExportRule(rule)) {
		return fmt.Errorf("set_grid_export: invalid rule %q", rule)
	}
	c, err := x.battery(owner)
	if err != nil {
		return err
	}
	setter, ok := c.(device.GridExportSetter)
	if !ok {
		return fmt.Errorf("set_grid_export: %w", device.ErrNotSupported)
	}
	if err = setter.SetGridExport(ctx, device.ExportRule(rule)); err != nil {
		return err
	}
	owner.CurrentExportRule = rule
	owner.ExportRuleUpdatedAt = time.Now()
	x.saveOwner(ctx, owner)
	return nil
}

func (x *Executor) setGridCharging(ctx context.Context, params automation.Params, owner *automation.Owner) error {
	enabled, ok := params.Bool("enabled")
	if !ok {
		return fmt.Errorf("set_grid_charging: missing enabled")
	}
	c, err := x.battery(owner)
	if err != nil {
		return err
	}
	setter, ok := c.(device.GridChargingSetter)
	if !ok {
		return fmt.Errorf("set_grid_charging: %w", device.ErrNotSupported)
	}
	return setter.SetGridCharging(ctx, enabled)
}

// restoreNormal undoes preserve_charge, force_charge and force_discharge.
func (x *Executor) restoreNormal(ctx context.Context, owner *automation.Owner) error {
	c, err := x.battery(owner)
	if err != nil {
		return err
	}
	switch battery := c.(type) {
	case device.GridExportSetter:
		if err = battery.SetGridExport(ctx, device.ExportBatteryOK); err != nil {
			return err
		}
		owner.CurrentExportRule = string(device.ExportBatteryOK)
		owner.ExportRuleUpdatedAt = time.Now()
	case device.RateLimiter:
		if err = battery.SetChargeRateLimit(ctx, x.MaxRateKW); err != nil {
			return err
		}
		if err = battery.SetDischargeRateLimit(ctx, x.MaxRateKW); err != nil {
			return err
		}
		if err = battery.ClearExportRateLimit(ctx); err != nil {
			return err
		}
	default:
		return fmt.Errorf("restore_normal: %w", device.ErrNotSupported)
	}

	owner.ManualChargeActive = false
	owner.ManualDischargeActive = false
	x.saveOwner(ctx, owner)
	return nil
}

type rateKind int

const (
	rateCharge rateKind = iota
	rateDischarge
	rateExport
)

func (x *Executor) setRateLimit(ctx context.Context, params automation.Params, owner *automation.Owner, kind rateKind) error {
	kw, ok := params.Float("kw", "rate_kw")
	if !ok {
		return fmt.Errorf("rate limit: missing kw")
	}
	kw = clampF(kw, 0, x.MaxRateKW)
	c, err := x.battery(owner)
	if err != nil {
		return err
	}
	limiter, ok := c.(device.RateLimiter)
	if !ok {
		return fmt.Errorf("rate limit: %w", device.ErrNotSupported)
	}
	switch kind {
	case rateCharge:
		return limiter.SetChargeRateLimit(ctx, kw)
	case rateDischarge:
		return limiter.SetDischargeRateLimit(ctx, kw)
	default:
		return limiter.SetExportRateLimit(ctx, kw)
	}
}

func (x *Executor) duration(params automation.Params, fallback time.Duration) time.Duration {
	if minutes, ok := params.Int("duration_minutes", "minutes"); ok && minutes > 0 {
		return time.Duration(minutes) * time.Minute
	}
	return fallback
}
