// Package sigenergy implements a modbus TCP battery client for
// Sigenergy-style hybrid inverters.
//
// These systems have no cloud policy API: control happens through power
// rate registers, so the controller implements device.RateLimiter and none
// of the cloud capabilities.
package sigenergy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/powersync/powersync/internal/device"
	"github.com/simonvetter/modbus"
)

// register map (per-unit, energy management section)
const (
	regBatterySOC     = 30000 // input, 0.1 %
	regBatteryPower   = 30002 // input, int32, W, positive = discharging
	regPVPower        = 30004 // input, uint32, W
	regGridPower      = 30006 // input, int32, W, positive = importing
	regLoadPower      = 30008 // input, uint32, W
	regGridStatus     = 30010 // input, 0 = on grid, 1 = islanded
	regBackupReserve  = 40000 // holding, %
	regChargeLimit    = 40010 // holding, 0.01 kW
	regDischargeLimit = 40012 // holding, 0.01 kW
	regExportLimit    = 40014 // holding, 0.01 kW
	regExportLimitOn  = 40016 // holding, 0 = unlimited, 1 = limited
)

const rateScale = 100 // register unit is 0.01 kW

type Controller struct {
	client *modbus.ModbusClient
	lock   sync.Mutex
}

var (
	_ device.BatteryController = &Controller{}
	_ device.RateLimiter       = &Controller{}
)

func New(host string, port int, unitID uint8, timeout time.Duration) (*Controller, error) {
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
	return &Controller{client: client}, nil
}

func (c *Controller) Close() error {
	return c.client.Close()
}

// LiveStatus reads the live registers. The modbus library has no context
// support; the client's own timeout bounds each read.
func (c *Controller) LiveStatus(_ context.Context) (device.BatteryStatus, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	registers, err := c.client.ReadRegisters(regBatterySOC, 11, modbus.INPUT_REGISTER)
	if err != nil {
		return device.BatteryStatus{}, fmt.Errorf("read live registers: %w", err)
	}
	reserve, err := c.client.ReadRegister(regBackupReserve, modbus.HOLDING_REGISTER)
	if err != nil {
		return device.BatteryStatus{}, fmt.Errorf("read backup reserve: %w", err)
	}

	status := device.BatteryStatus{
		Percent:       float64(registers[0]) / 10,
		BackupReserve: float64(reserve),
		BatteryPowerW: float64(signed32(registers[2], registers[3])),
		SolarPowerW:   float64(unsigned32(registers[4], registers[5])),
		GridPowerW:    float64(signed32(registers[6], registers[7])),
		LoadPowerW:    float64(unsigned32(registers[8], registers[9])),
		GridStatus:    device.OnGrid,
	}
	if registers[10] != 0 {
		status.GridStatus = device.OffGrid
	}
	return status, nil
}

func (c *Controller) SetChargeRateLimit(_ context.Context, kw float64) error {
	return c.writeRate(regChargeLimit, kw)
}

func (c *Controller) SetDischargeRateLimit(_ context.Context, kw float64) error {
	return c.writeRate(regDischargeLimit, kw)
}

func (c *Controller) SetExportRateLimit(_ context.Context, kw float64) error {
	if err := c.writeRate(regExportLimit, kw); err != nil {
		return err
	}
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.client.WriteRegister(regExportLimitOn, 1)
}

func (c *Controller) ClearExportRateLimit(_ context.Context) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.client.WriteRegister(regExportLimitOn, 0)
}

func (c *Controller) writeRate(register uint16, kw float64) error {
	if kw < 0 {
		kw = 0
	}
	c.lock.Lock()
	defer c.lock.Unlock()
	if err := c.client.WriteRegister(register, uint16(kw*rateScale)); err != nil {
		return fmt.Errorf("write register %d: %w", register, err)
	}
	return nil
}

func signed32(hi, lo uint16) int32 {
	return int32(uint32(hi)<<16 | uint32(lo))
}

func unsigned32(hi, lo uint16) uint32 {
	return uint32(hi)<<16 | uint32(lo)
}
