package main

import (
	"fmt"
	"strconv"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"

	"adsgopper/core"
)

// PeriphGPIODriver implements core.GPIODriver with periph GPIO pins,
// addressed by their Linux GPIO number
type PeriphGPIODriver struct {
	mu     sync.Mutex
	pins   map[core.GPIOPin]gpio.PinIO
	lookup func(name string) gpio.PinIO
}

func NewPeriphGPIODriver() *PeriphGPIODriver {
	return &PeriphGPIODriver{
		pins:   make(map[core.GPIOPin]gpio.PinIO),
		lookup: gpioreg.ByName,
	}
}

func (d *PeriphGPIODriver) pin(n core.GPIOPin) (gpio.PinIO, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.pins[n]; ok {
		return p, nil
	}
	p := d.lookup(strconv.Itoa(int(n)))
	if p == nil {
		return nil, fmt.Errorf("gpio %d not found", n)
	}
	d.pins[n] = p
	return p, nil
}

func (d *PeriphGPIODriver) ConfigureOutput(n core.GPIOPin) error {
	p, err := d.pin(n)
	if err != nil {
		return err
	}
	return p.Out(gpio.High)
}

func (d *PeriphGPIODriver) ConfigureInputPullUp(n core.GPIOPin) error {
	p, err := d.pin(n)
	if err != nil {
		return err
	}
	return p.In(gpio.PullUp, gpio.NoEdge)
}

func (d *PeriphGPIODriver) SetPin(n core.GPIOPin, value bool) error {
	p, err := d.pin(n)
	if err != nil {
		return err
	}
	return p.Out(gpio.Level(value))
}

func (d *PeriphGPIODriver) ReadPin(n core.GPIOPin) bool {
	p, err := d.pin(n)
	if err != nil {
		return false
	}
	return bool(p.Read())
}
