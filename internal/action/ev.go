package action

import (
	"context"
	"errors"
	"fmt"

	"github.com/powersync/powersync/internal/automation"
	"github.com/powersync/powersync/internal/device"
)

// targetVehicles resolves which vehicles an EV action applies to. Without a
// vehicle_id parameter the command goes to all of the owner's vehicles.
func (x *Executor) targetVehicles(ctx context.Context, params automation.Params, owner *automation.Owner) (device.EVController, []string, error) {
	c, ok := x.devices.EV(owner.ID)
	if !ok {
		return nil, nil, fmt.Errorf("owner %d has no EV account", owner.ID)
	}
	if id, ok := params.String("vehicle_id"); ok && id != "" {
		return c, []string{id}, nil
	}
	vehicles, err := c.Vehicles(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list vehicles: %w", err)
	}
	ids := make([]string, 0, len(vehicles))
	for _, v := range vehicles {
		ids = append(ids, v.ID)
	}
	if len(ids) == 0 {
		return nil, nil, errors.New("no vehicles found")
	}
	return c, ids, nil
}

func (x *Executor) startEVCharging(ctx context.Context, params automation.Params, owner *automation.Owner) error {
	c, ids, err := x.targetVehicles(ctx, params, owner)
	if err != nil {
		return err
	}
	var errs error
	for _, id := range ids {
		if err = c.StartCharging(ctx, id); err != nil {
			errs = errors.Join(errs, fmt.Errorf("vehicle %s: %w", id, err))
		}
	}
	return errs
}

func (x *Executor) stopEVCharging(ctx context.Context, params automation.Params, owner *automation.Owner) error {
	c, ids, err := x.targetVehicles(ctx, params, owner)
	if err != nil {
		return err
	}
	var errs error
	for _, id := range ids {
		if err = c.StopCharging(ctx, id); err != nil {
			errs = errors.Join(errs, fmt.Errorf("vehicle %s: %w", id, err))
		}
	}
	return errs
}

func (x *Executor) setEVChargeLimit(ctx context.Context, params automation.Params, owner *automation.Owner) error {
	percent, ok := params.Int("percent", "limit_percent")
	if !ok {
		return fmt.Errorf("set_ev_charge_limit: missing percent")
	}
	percent = clamp(percent, 50, 100)
	c, ids, err := x.targetVehicles(ctx, params, owner)
	if err != nil {
		return err
	}
	var errs error
	for _, id := range ids {
		if err = c.SetChargeLimit(ctx, id, percent); err != nil {
			errs = errors.Join(errs, fmt.Errorf("vehicle %s: %w", id, err))
		}
	}
	return errs
}

func (x *Executor) setEVChargingAmps(ctx context.Context, params automation.Params, owner *automation.Owner) error {
	amps, ok := params.Int("amps", "charging_amps")
	if !ok {
		return fmt.Errorf("set_ev_charging_amps: missing amps")
	}
	amps = clamp(amps, 5, 48)
	c, ids, err := x.targetVehicles(ctx, params, owner)
	if err != nil {
		return err
	}
	var errs error
	for _, id := range ids {
		if err = c.SetChargingAmps(ctx, id, amps); err != nil {
			errs = errors.Join(errs, fmt.Errorf("vehicle %s: %w", id, err))
		}
	}
	return errs
}
