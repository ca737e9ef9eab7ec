package action

import (
	"context"
	"fmt"
	"time"

	"github.com/powersync/powersync/internal/automation"
)

func (x *Executor) curtailInverter(ctx context.Context, params automation.Params, owner *automation.Owner) error {
	c, ok := x.devices.Inverter(owner.ID)
	if !ok {
		return fmt.Errorf("owner %d has no inverter", owner.ID)
	}
	limit, hasLimit := params.Int("power_limit_w", "limit_w")
	if hasLimit && limit > 0 {
		if err := c.SetPowerLimit(ctx, limit); err != nil {
			return err
		}
	} else {
		limit = 0
		if err := c.Curtail(ctx); err != nil {
			return err
		}
	}
	owner.InverterCurtailed = true
	owner.InverterPowerLimitW = limit
	owner.InverterStateUpdatedAt = time.Now()
	x.saveOwner(ctx, owner)
	return nil
}

func (x *Executor) restoreInverter(ctx context.Context, owner *automation.Owner) error {
	c, ok := x.devices.Inverter(owner.ID)
	if !ok {
		return fmt.Errorf("owner %d has no inverter", owner.ID)
	}
	if err := c.Restore(ctx); err != nil {
		return err
	}
	owner.InverterCurtailed = false
	owner.InverterPowerLimitW = 0
	owner.InverterStateUpdatedAt = time.Now()
	x.saveOwner(ctx, owner)
	return nil
}
