//go:build rp2040 || rp2350

package main

import (
	"errors"
	"machine"
	"sync"

	"tinygo.org/x/drivers"

	"adsgopper/core"
)

var (
	errInvalidBus  = errors.New("invalid SPI bus ID")
	errInvalidMode = errors.New("invalid SPI mode")
	errInvalidPin  = errors.New("invalid pin")
)

type spiBusConfig struct {
	spi  *machine.SPI
	sck  machine.Pin
	mosi machine.Pin
	miso machine.Pin
	name string
}

// Bus ids and names match Klipper's rp2040 spi_bus enumeration
var rpSPIBuses = map[core.SPIBusID]spiBusConfig{
	0: {spi: machine.SPI0, sck: machine.GPIO2, mosi: machine.GPIO3, miso: machine.GPIO0, name: "spi0a"},
	1: {spi: machine.SPI0, sck: machine.GPIO6, mosi: machine.GPIO7, miso: machine.GPIO4, name: "spi0b"},
	2: {spi: machine.SPI0, sck: machine.GPIO18, mosi: machine.GPIO19, miso: machine.GPIO16, name: "spi0c"},
	3: {spi: machine.SPI0, sck: machine.GPIO22, mosi: machine.GPIO23, miso: machine.GPIO20, name: "spi0d"},
	4: {spi: machine.SPI0, sck: machine.GPIO2, mosi: machine.GPIO3, miso: machine.GPIO4, name: "spi0e"},
	5: {spi: machine.SPI1, sck: machine.GPIO10, mosi: machine.GPIO11, miso: machine.GPIO8, name: "spi1a"},
	6: {spi: machine.SPI1, sck: machine.GPIO14, mosi: machine.GPIO15, miso: machine.GPIO12, name: "spi1b"},
	7: {spi: machine.SPI1, sck: machine.GPIO26, mosi: machine.GPIO27, miso: machine.GPIO24, name: "spi1c"},
	8: {spi: machine.SPI1, sck: machine.GPIO10, mosi: machine.GPIO11, miso: machine.GPIO12, name: "spi1d"},
}

// RPSPIDriver implements core.SPIDriver. *machine.SPI is a drivers.SPI,
// so the configured controller is handed to core as is.
type RPSPIDriver struct {
	mu         sync.Mutex
	configured map[core.SPIBusID]core.SPIConfig
}

func NewRPSPIDriver() *RPSPIDriver {
	return &RPSPIDriver{configured: make(map[core.SPIBusID]core.SPIConfig)}
}

func (d *RPSPIDriver) ConfigureBus(config core.SPIConfig) (drivers.SPI, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	bus, ok := rpSPIBuses[config.BusID]
	if !ok {
		return nil, errInvalidBus
	}
	if config.Mode > 3 {
		return nil, errInvalidMode
	}
	if prev, ok := d.configured[config.BusID]; ok && prev == config {
		return bus.spi, nil
	}

	err := bus.spi.Configure(machine.SPIConfig{
		Frequency: config.Rate,
		SCK:       bus.sck,
		SDO:       bus.mosi,
		SDI:       bus.miso,
		Mode:      uint8(config.Mode),
	})
	if err != nil {
		return nil, err
	}
	d.configured[config.BusID] = config
	return bus.spi, nil
}

func (d *RPSPIDriver) GetBusInfo() map[core.SPIBusID]string {
	info := make(map[core.SPIBusID]string, len(rpSPIBuses))
	for id, bus := range rpSPIBuses {
		info[id] = bus.name
	}
	return info
}
