package main

import (
	"errors"
	"fmt"
	"sync"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"tinygo.org/x/drivers"

	"adsgopper/core"
)

var errBusBusy = errors.New("SPI port already connected with other settings")

// txConn is the part of spi.Conn the bus adapter needs
type txConn interface {
	Tx(w, r []byte) error
}

// connBus adapts a periph connection to drivers.SPI
type connBus struct {
	conn    txConn
	scratch []byte
}

func (b *connBus) Tx(w, r []byte) error {
	if r == nil {
		if cap(b.scratch) < len(w) {
			b.scratch = make([]byte, len(w))
		}
		r = b.scratch[:len(w)]
	}
	return b.conn.Tx(w, r)
}

func (b *connBus) Transfer(v byte) (byte, error) {
	var rx [1]byte
	err := b.conn.Tx([]byte{v}, rx[:])
	return rx[0], err
}

type openBus struct {
	config core.SPIConfig
	port   spi.PortCloser
	bus    *connBus
}

// PeriphSPIDriver implements core.SPIDriver on spidev ports. spi_bus N
// selects the Nth configured port.
type PeriphSPIDriver struct {
	mu    sync.Mutex
	ports []string
	open  map[core.SPIBusID]*openBus
	// connect is spireg.Open followed by Connect; replaced in tests
	connect func(name string, cfg core.SPIConfig) (spi.PortCloser, txConn, error)
}

func NewPeriphSPIDriver(ports []string) *PeriphSPIDriver {
	return &PeriphSPIDriver{
		ports:   ports,
		open:    make(map[core.SPIBusID]*openBus),
		connect: connectPeriph,
	}
}

func connectPeriph(name string, cfg core.SPIConfig) (spi.PortCloser, txConn, error) {
	p, err := spireg.Open(name)
	if err != nil {
		return nil, nil, err
	}
	c, err := p.Connect(physic.Frequency(cfg.Rate)*physic.Hertz, spi.Mode(cfg.Mode), 8)
	if err != nil {
		p.Close()
		return nil, nil, err
	}
	return p, c, nil
}

// ConfigureBus opens the port on first use. A periph port connects once,
// so a later request with different settings is refused.
func (d *PeriphSPIDriver) ConfigureBus(config core.SPIConfig) (drivers.SPI, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if int(config.BusID) >= len(d.ports) {
		return nil, fmt.Errorf("spi bus %d: only %d ports configured", config.BusID, len(d.ports))
	}
	if config.Mode > 3 {
		return nil, fmt.Errorf("spi bus %d: invalid mode %d", config.BusID, config.Mode)
	}
	if ob, ok := d.open[config.BusID]; ok {
		if ob.config != config {
			return nil, errBusBusy
		}
		return ob.bus, nil
	}

	name := d.ports[config.BusID]
	port, conn, err := d.connect(name, config)
	if err != nil {
		return nil, fmt.Errorf("spi port %s: %w", name, err)
	}
	ob := &openBus{config: config, port: port, bus: &connBus{conn: conn}}
	d.open[config.BusID] = ob
	return ob.bus, nil
}

func (d *PeriphSPIDriver) GetBusInfo() map[core.SPIBusID]string {
	info := make(map[core.SPIBusID]string, len(d.ports))
	for i, name := range d.ports {
		info[core.SPIBusID(i)] = name
	}
	return info
}

// Close releases every opened port
func (d *PeriphSPIDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var errs []error
	for id, ob := range d.open {
		if ob.port != nil {
			errs = append(errs, ob.port.Close())
		}
		delete(d.open, id)
	}
	return errors.Join(errs...)
}
