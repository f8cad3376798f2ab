// Package serial opens the serial device the firmware talks on. The host
// tools use it to reach an MCU, and the linux firmware target uses it as
// its own command stream.
package serial

import (
	"errors"
	"io"
)

// Port is an open serial device
type Port interface {
	io.ReadWriteCloser

	// Flush discards unread input and unsent output
	Flush() error
}

// Config holds serial port configuration
type Config struct {
	// Device path (e.g., "/dev/ttyACM0", "/dev/pts/3")
	Device string

	// Baud rate; USB CDC ignores it
	Baud int

	// Read timeout in milliseconds (0 = blocking)
	ReadTimeout int
}

// ErrNoDevice is returned by Open for an empty device path
var ErrNoDevice = errors.New("serial: no device given")

// DefaultBaud is Klipper's standard UART rate
const DefaultBaud = 250000

// DefaultConfig returns the configuration used for Klipper MCUs
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        DefaultBaud,
		ReadTimeout: 100,
	}
}
