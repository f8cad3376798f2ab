package core

import "tinygo.org/x/drivers"

// SPIBusID identifies a hardware SPI bus configuration
type SPIBusID uint8

// SPIMode represents SPI clock polarity and phase (0-3)
//
//	Mode 0: CPOL=0, CPHA=0
//	Mode 1: CPOL=0, CPHA=1
//	Mode 2: CPOL=1, CPHA=0
//	Mode 3: CPOL=1, CPHA=1
type SPIMode uint8

// SPIConfig holds the configuration for an SPI bus
type SPIConfig struct {
	BusID SPIBusID
	Mode  SPIMode
	Rate  uint32 // Hz
}

// SPIDriver is the hardware SPI interface core code uses. A configured
// bus is a drivers.SPI, which machine.SPI satisfies directly on TinyGo
// targets.
type SPIDriver interface {
	// ConfigureBus sets up a bus; calling it again with the same
	// settings returns the already configured bus.
	ConfigureBus(config SPIConfig) (drivers.SPI, error)

	// GetBusInfo returns the bus ids this platform offers, by name
	GetBusInfo() map[SPIBusID]string
}

var spiDriver SPIDriver

// SetSPIDriver is called by target-specific code to register its hardware
// SPI driver. The bus names are published as the spi_bus enumeration.
func SetSPIDriver(d SPIDriver) {
	spiDriver = d
	if d == nil {
		return
	}
	for id, name := range d.GetBusInfo() {
		globalDictionary.AddEnumerationValue("spi_bus", name, int(id))
	}
}

// MustSPI returns the configured hardware SPI driver or panics if missing
func MustSPI() SPIDriver {
	if spiDriver == nil {
		panic("SPI driver not configured")
	}
	return spiDriver
}
