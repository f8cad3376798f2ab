package core

import "errors"

var errSPIMode = errors.New("invalid SPI mode")

// softwareSPI bit-bangs SPI through the GPIO driver. Like Klipper's
// spi_software the clock runs as fast as the pins toggle; rate is not
// enforced.
type softwareSPI struct {
	gpio             GPIODriver
	sclk, mosi, miso GPIOPin
	cpol, cpha       bool
}

func newSoftwareSPI(gpio GPIODriver, sclk, mosi, miso GPIOPin, mode SPIMode) (*softwareSPI, error) {
	if mode > 3 {
		return nil, errSPIMode
	}
	s := &softwareSPI{
		gpio: gpio,
		sclk: sclk,
		mosi: mosi,
		miso: miso,
		cpol: mode&2 != 0,
		cpha: mode&1 != 0,
	}
	if err := gpio.ConfigureOutput(sclk); err != nil {
		return nil, err
	}
	if err := gpio.ConfigureOutput(mosi); err != nil {
		return nil, err
	}
	if err := gpio.ConfigureInputPullUp(miso); err != nil {
		return nil, err
	}
	if err := gpio.SetPin(sclk, s.cpol); err != nil {
		return nil, err
	}
	return s, nil
}

// Tx implements drivers.SPI. Either buffer may be nil.
func (s *softwareSPI) Tx(w, r []byte) error {
	n := len(w)
	if len(r) > n {
		n = len(r)
	}
	for i := 0; i < n; i++ {
		var out byte
		if i < len(w) {
			out = w[i]
		}
		in, err := s.Transfer(out)
		if err != nil {
			return err
		}
		if i < len(r) {
			r[i] = in
		}
	}
	return nil
}

// Transfer implements drivers.SPI, MSB first
func (s *softwareSPI) Transfer(b byte) (byte, error) {
	var in byte
	for bit := 7; bit >= 0; bit-- {
		if s.cpha {
			if err := s.gpio.SetPin(s.sclk, !s.cpol); err != nil {
				return 0, err
			}
		}
		if err := s.gpio.SetPin(s.mosi, b&(1<<uint(bit)) != 0); err != nil {
			return 0, err
		}
		if err := s.gpio.SetPin(s.sclk, s.cpha == s.cpol); err != nil {
			return 0, err
		}
		if s.gpio.ReadPin(s.miso) {
			in |= 1 << uint(bit)
		}
		if !s.cpha {
			if err := s.gpio.SetPin(s.sclk, s.cpol); err != nil {
				return 0, err
			}
		}
	}
	return in, nil
}
