// Package fronius curtails SunSpec-compatible solar inverters over modbus
// TCP, using the immediate controls power limit (WMaxLimPct).
package fronius

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/powersync/powersync/internal/device"
	"github.com/simonvetter/modbus"
)

// SunSpec immediate controls registers (model 123, common base address).
const (
	regWMaxLimPct    = 40242 // holding, percent of rated power, 0.01 %
	regWMaxLimEnable = 40246 // holding, 0 = disabled, 1 = enabled
)

const pctScale = 100 // register unit is 0.01 %

type Controller struct {
	client      *modbus.ModbusClient
	ratedPowerW int
	lock        sync.Mutex
}

var _ device.InverterController = &Controller{}

func New(host string, port int, unitID uint8, ratedPowerW int, timeout time.Duration) (*Controller, error) {
	if ratedPowerW <= 0 {
		return nil, fmt.Errorf("invalid rated power %d", ratedPowerW)
	}
	client, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:     fmt.Sprintf("tcp://%s:%d", host, port),
		Timeout: timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("modbus client: %w", err)
	}
	if err = client.SetUnitId(unitID); err != nil {
		return nil, fmt.Errorf("modbus unit id: %w", err)
	}
	if err = client.Open(); err != nil {
		return nil, fmt.Errorf("modbus connect %s:%d: %w", host, port, err)
	}
	return &Controller{client: client, ratedPowerW: ratedPowerW}, nil
}

func (c *Controller) Close() error {
	return c.client.Close()
}

// Curtail throttles generation to zero.
func (c *Controller) Curtail(ctx context.Context) error {
	return c.SetPowerLimit(ctx, 0)
}

// Restore disables the power limit, returning the inverter to full output.
func (c *Controller) Restore(_ context.Context) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if err := c.client.WriteRegister(regWMaxLimEnable, 0); err != nil {
		return fmt.Errorf("disable power limit: %w", err)
	}
	return nil
}

func (c *Controller) SetPowerLimit(_ context.Context, watts int) error {
	percent := float64(watts) / float64(c.ratedPowerW) * 100
	percent = min(max(percent, 0), 100)

	c.lock.Lock()
	defer c.lock.Unlock()
	if err := c.client.WriteRegister(regWMaxLimPct, uint16(percent*pctScale)); err != nil {
		return fmt.Errorf("write power limit: %w", err)
	}
	if err := c.client.WriteRegister(regWMaxLimEnable, 1); err != nil {
		return fmt.Errorf("enable power limit: %w", err)
	}
	return nil
}
