// SPI (Serial Peripheral Interface) support
// Implements Klipper's SPI device commands for hardware and software buses
package core

import (
	"tinygo.org/x/drivers"

	"adsgopper/protocol"
)

// SPI device flags
const (
	SF_HARDWARE       = 0x00
	SF_SOFTWARE       = 0x01
	SF_CS_ACTIVE_HIGH = 0x02 // default is active low
	SF_HAVE_PIN       = 0x04
)

const oidTagSPI = "spi"

// SPIDevice represents a configured SPI device
type SPIDevice struct {
	OID   uint8
	Flags uint8
	Pin   GPIOPin // chip select, valid with SF_HAVE_PIN

	// Set by spi_set_bus / spi_set_sw_bus
	Bus    drivers.SPI
	BusID  SPIBusID
	Mode   SPIMode
	Rate   uint32
	txTemp [16]byte

	ShutdownMsg []byte
}

// InitSPICommands registers SPI-related commands with the command registry
func InitSPICommands() {
	RegisterCommand("config_spi", "oid=%c pin=%u cs_active_high=%c", handleConfigSPI)
	RegisterCommand("config_spi_without_cs", "oid=%c", handleConfigSPIWithoutCS)
	RegisterCommand("spi_set_bus", "oid=%c spi_bus=%u mode=%u rate=%u", handleSPISetBus)
	RegisterCommand("spi_set_sw_bus", "oid=%c miso_pin=%u mosi_pin=%u sclk_pin=%u mode=%u rate=%u", handleSPISetSoftwareBus)
	RegisterCommand("config_spi_shutdown", "oid=%c spi_oid=%c shutdown_msg=%*s", handleConfigSPIShutdown)
	RegisterCommand("spi_transfer", "oid=%c data=%*s", handleSPITransfer)
	RegisterCommand("spi_send", "oid=%c data=%*s", handleSPISend)

	RegisterResponse("spi_transfer_response", "oid=%c response=%*s")

	RegisterStaticString("SPI bus not configured")
	RegisterStaticString("SPI transfer failed")
	RegisterStaticString("Invalid spi config")

	RegisterShutdownHook("spi", ShutdownSPI)
}

func decodeArgs(data *[]byte, args ...*uint32) error {
	for _, a := range args {
		v, err := protocol.DecodeVLQUint(data)
		if err != nil {
			return err
		}
		*a = v
	}
	return nil
}

// handleConfigSPI: config_spi oid=%c pin=%u cs_active_high=%c
func handleConfigSPI(data *[]byte) error {
	var oid, pin, csActiveHigh uint32
	if err := decodeArgs(data, &oid, &pin, &csActiveHigh); err != nil {
		return err
	}

	dev := AllocOID(uint8(oid), oidTagSPI, func() interface{} {
		return &SPIDevice{OID: uint8(oid), Flags: SF_HAVE_PIN, Pin: GPIOPin(pin)}
	}).(*SPIDevice)
	if csActiveHigh != 0 {
		dev.Flags |= SF_CS_ACTIVE_HIGH
	}

	if err := MustGPIO().ConfigureOutput(dev.Pin); err != nil {
		Shutdown("Invalid spi config")
	}
	dev.setCS(false)
	return nil
}

// handleConfigSPIWithoutCS: config_spi_without_cs oid=%c
func handleConfigSPIWithoutCS(data *[]byte) error {
	var oid uint32
	if err := decodeArgs(data, &oid); err != nil {
		return err
	}
	AllocOID(uint8(oid), oidTagSPI, func() interface{} {
		return &SPIDevice{OID: uint8(oid)}
	})
	return nil
}

// handleSPISetBus: spi_set_bus oid=%c spi_bus=%u mode=%u rate=%u
func handleSPISetBus(data *[]byte) error {
	var oid, bus, mode, rate uint32
	if err := decodeArgs(data, &oid, &bus, &mode, &rate); err != nil {
		return err
	}
	dev := LookupSPIDevice(uint8(oid))

	b, err := MustSPI().ConfigureBus(SPIConfig{
		BusID: SPIBusID(bus),
		Mode:  SPIMode(mode),
		Rate:  rate,
	})
	if err != nil {
		DebugPrintln("[SPI] spi_set_bus oid=" + utoa(oid) + ": " + err.Error())
		Shutdown("Invalid spi config")
	}
	dev.Bus = b
	dev.BusID = SPIBusID(bus)
	dev.Mode = SPIMode(mode)
	dev.Rate = rate
	dev.Flags &^= SF_SOFTWARE
	return nil
}

// handleSPISetSoftwareBus: spi_set_sw_bus oid=%c miso_pin=%u mosi_pin=%u sclk_pin=%u mode=%u rate=%u
func handleSPISetSoftwareBus(data *[]byte) error {
	var oid, miso, mosi, sclk, mode, rate uint32
	if err := decodeArgs(data, &oid, &miso, &mosi, &sclk, &mode, &rate); err != nil {
		return err
	}
	dev := LookupSPIDevice(uint8(oid))

	sw, err := newSoftwareSPI(MustGPIO(), GPIOPin(sclk), GPIOPin(mosi), GPIOPin(miso), SPIMode(mode))
	if err != nil {
		DebugPrintln("[SPI] spi_set_sw_bus oid=" + utoa(oid) + ": " + err.Error())
		Shutdown("Invalid spi config")
	}
	dev.Bus = sw
	dev.Mode = SPIMode(mode)
	dev.Rate = rate
	dev.Flags |= SF_SOFTWARE
	return nil
}

// handleConfigSPIShutdown: config_spi_shutdown oid=%c spi_oid=%c shutdown_msg=%*s
func handleConfigSPIShutdown(data *[]byte) error {
	var oid, spiOID uint32
	if err := decodeArgs(data, &oid, &spiOID); err != nil {
		return err
	}
	msg, err := protocol.DecodeVLQBytes(data)
	if err != nil {
		return err
	}

	dev := LookupSPIDevice(uint8(spiOID))
	// The shutdown object only reserves its oid; the message lives on the
	// device so ShutdownSPI can find it.
	AllocOID(uint8(oid), "spi_shutdown", func() interface{} { return dev })
	dev.ShutdownMsg = append([]byte(nil), msg...)
	return nil
}

// handleSPITransfer: spi_transfer oid=%c data=%*s
func handleSPITransfer(data *[]byte) error {
	var oid uint32
	if err := decodeArgs(data, &oid); err != nil {
		return err
	}
	payload, err := protocol.DecodeVLQBytes(data)
	if err != nil {
		return err
	}

	dev := LookupSPIDevice(uint8(oid))
	buf := append([]byte(nil), payload...)
	SPIDevTransfer(dev, true, buf)

	SendResponse("spi_transfer_response", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, oid)
		protocol.EncodeVLQBytes(output, buf)
	})
	return nil
}

// handleSPISend: spi_send oid=%c data=%*s
func handleSPISend(data *[]byte) error {
	var oid uint32
	if err := decodeArgs(data, &oid); err != nil {
		return err
	}
	payload, err := protocol.DecodeVLQBytes(data)
	if err != nil {
		return err
	}

	dev := LookupSPIDevice(uint8(oid))
	SPIDevTransfer(dev, false, append([]byte(nil), payload...))
	return nil
}

// LookupSPIDevice returns the SPI device for oid (spidev_oid_lookup)
func LookupSPIDevice(oid uint8) *SPIDevice {
	return LookupOID(oid, oidTagSPI).(*SPIDevice)
}

func (dev *SPIDevice) setCS(active bool) {
	if dev.Flags&SF_HAVE_PIN == 0 {
		return
	}
	level := active == (dev.Flags&SF_CS_ACTIVE_HIGH != 0)
	if err := MustGPIO().SetPin(dev.Pin, level); err != nil {
		Shutdown("SPI transfer failed")
	}
}

// SPIDevTransfer clocks data out on the device's bus with chip select
// asserted. With receive set the bytes read back replace data in place.
// A missing bus or a bus error is fatal.
func SPIDevTransfer(dev *SPIDevice, receive bool, data []byte) {
	if dev.Bus == nil {
		Shutdown("SPI bus not configured")
	}

	tx := data
	var rx []byte
	if receive {
		if len(data) <= len(dev.txTemp) {
			tx = dev.txTemp[:len(data)]
		} else {
			tx = make([]byte, len(data))
		}
		copy(tx, data)
		rx = data
	}

	dev.setCS(true)
	err := dev.Bus.Tx(tx, rx)
	dev.setCS(false)
	if err != nil {
		DebugPrintln("[SPI] oid=" + itoa(int(dev.OID)) + " transfer: " + err.Error())
		Shutdown("SPI transfer failed")
	}
}

// ShutdownSPI sends the configured shutdown message of every SPI device.
// Errors are ignored; the firmware is already shutting down.
func ShutdownSPI() {
	ForEachOID(oidTagSPI, func(oid uint8, obj interface{}) {
		dev := obj.(*SPIDevice)
		if len(dev.ShutdownMsg) == 0 || dev.Bus == nil {
			return
		}
		msg := append([]byte(nil), dev.ShutdownMsg...)
		dev.setCSQuiet(true)
		_ = dev.Bus.Tx(msg, nil)
		dev.setCSQuiet(false)
	})
}

func (dev *SPIDevice) setCSQuiet(active bool) {
	if dev.Flags&SF_HAVE_PIN == 0 || gpioDriver == nil {
		return
	}
	_ = gpioDriver.SetPin(dev.Pin, active == (dev.Flags&SF_CS_ACTIVE_HIGH != 0))
}
