// Package ads1x18 configures the firmware's ADS1018/ADS1118 sampler and
// turns its ads1118_result reports into temperatures and voltages.
package ads1x18

import (
	"errors"
	"fmt"
	"time"

	"adsgopper/host/mcu"
)

// Chip types as enumerated by the firmware
const (
	ADS1018 = "ADS1018"
	ADS1118 = "ADS1118"
)

const (
	MaxSensors = 5

	// DefaultDataRate is 128 SPS on the ADS1118
	DefaultDataRate  = 4
	DefaultInterval  = 200 * time.Millisecond
	ColdJunctionTemp = 25.0
)

var (
	ErrTooManySensors = errors.New("too many ads1x18 sensors")
	ErrStarted        = errors.New("ads1x18 already configured")
)

// full scale range in volts for each PGA setting
var fullScale = [8]float64{6.144, 4.096, 2.048, 1.024, 0.512, 0.256, 0.256, 0.256}

// Kind selects how a channel's conversions are interpreted
type Kind int

const (
	KindTemperature Kind = iota // internal temperature sensor
	KindVoltage
	KindThermocoupleK
)

func (k Kind) String() string {
	switch k {
	case KindTemperature:
		return "temperature"
	case KindVoltage:
		return "voltage"
	case KindThermocoupleK:
		return "thermocouple_k"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

func (k Kind) Unit() string {
	if k == KindVoltage {
		return "V"
	}
	return "°C"
}

// Channel is one analog sensor slot on the chip
type Channel struct {
	Name     string
	Kind     Kind
	Mux      uint8
	PGA      uint8
	DataRate uint8
}

// Reading is one decoded ads1118_result
type Reading struct {
	Name  string
	Index int
	Kind  Kind
	// Raw is the signed 16-bit conversion word
	Raw             int16
	Value           float64
	ChipTemperature float64
	Time            time.Time
}

// Sender is the part of the MCU connection the chip needs
type Sender interface {
	Send(name string, args ...any) error
	RegisterResponse(name string, oid int, cb mcu.ResponseCallback)
}

type Config struct {
	OID      uint8
	SPIOID   uint8
	ChipType string
	DataRate uint8
	Interval time.Duration
}

// SPIBus describes the MCU SPI object the chip is wired to. A negative
// CSPin configures the bus without a chip select.
type SPIBus struct {
	OID   uint8
	Bus   uint32
	Mode  uint8
	Rate  uint32
	CSPin int
}

// SetupSPI creates the SPI object on the MCU and binds it to a bus
func SetupSPI(m Sender, b SPIBus) error {
	var err error
	if b.CSPin < 0 {
		err = m.Send("config_spi_without_cs", b.OID)
	} else {
		err = m.Send("config_spi", b.OID, uint32(b.CSPin), 0)
	}
	if err != nil {
		return fmt.Errorf("spi oid %d: %w", b.OID, err)
	}
	if err := m.Send("spi_set_bus", b.OID, b.Bus, b.Mode, b.Rate); err != nil {
		return fmt.Errorf("spi oid %d: %w", b.OID, err)
	}
	return nil
}

// Chip mirrors one configured sampler object on the MCU
type Chip struct {
	mcu      Sender
	cfg      Config
	channels []Channel
	handlers [][]func(Reading)
	started  bool
	now      func() time.Time
}

// New creates a chip whose sensor 0 is the internal temperature sensor
func New(m Sender, cfg Config) *Chip {
	if cfg.ChipType == "" {
		cfg.ChipType = ADS1118
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Chip{
		mcu:      m,
		cfg:      cfg,
		channels: []Channel{{Name: "chip", Kind: KindTemperature}},
		handlers: make([][]func(Reading), 1),
		now:      time.Now,
	}
}

// OnTemperature adds a callback for the internal temperature sensor
func (c *Chip) OnTemperature(cb func(Reading)) {
	c.handlers[0] = append(c.handlers[0], cb)
}

// AddChannel appends an analog sensor and returns its sensor index.
// Channels must be added before Start.
func (c *Chip) AddChannel(ch Channel, cb func(Reading)) (int, error) {
	if c.started {
		return 0, ErrStarted
	}
	if len(c.channels) >= MaxSensors {
		return 0, ErrTooManySensors
	}
	if ch.Kind == KindTemperature {
		return 0, fmt.Errorf("channel %q: only sensor 0 reads the internal temperature", ch.Name)
	}
	ch.Mux &= 7
	ch.PGA &= 7
	ch.DataRate &= 7
	c.channels = append(c.channels, ch)
	var hs []func(Reading)
	if cb != nil {
		hs = append(hs, cb)
	}
	c.handlers = append(c.handlers, hs)
	return len(c.channels) - 1, nil
}

func (c *Chip) Channels() []Channel {
	return append([]Channel(nil), c.channels...)
}

// Start registers for results and sends the configuration commands
func (c *Chip) Start() error {
	if c.started {
		return ErrStarted
	}
	c.mcu.RegisterResponse("ads1118_result", int(c.cfg.OID), c.handleResult)

	ms := uint32(c.cfg.Interval / time.Millisecond)
	if ms == 0 {
		ms = 1
	}
	if err := c.mcu.Send("config_ads1x18", c.cfg.OID, c.cfg.SPIOID, c.cfg.DataRate, ms); err != nil {
		return fmt.Errorf("config_ads1x18: %w", err)
	}
	for _, ch := range c.channels[1:] {
		if err := c.mcu.Send("ads_sensor_ads1x18", c.cfg.OID, ch.Mux, ch.PGA, ch.DataRate); err != nil {
			return fmt.Errorf("ads_sensor_ads1x18 %s: %w", ch.Name, err)
		}
	}
	c.started = true
	return nil
}

func (c *Chip) handleResult(p mcu.Params) {
	idx := int(p.Int("sensor_index"))
	if idx >= len(c.channels) {
		return
	}
	ch := c.channels[idx]
	r := Reading{
		Name:            ch.Name,
		Index:           idx,
		Kind:            ch.Kind,
		Raw:             int16(p.Int("value")),
		ChipTemperature: c.Temperature(int16(p.Int("temperature"))),
		Time:            c.now(),
	}
	switch ch.Kind {
	case KindTemperature:
		r.Value = c.Temperature(r.Raw)
	case KindVoltage:
		r.Value = c.Volts(r.Raw, ch.PGA)
	case KindThermocoupleK:
		r.Value = ThermocoupleK(c.Volts(r.Raw, ch.PGA)*1000, ColdJunctionTemp)
	}
	for _, cb := range c.handlers[idx] {
		cb(r)
	}
}

// Temperature converts an internal temperature conversion word to °C.
// Both chips left-justify the result in 0.03125 °C steps once the two
// low bits are dropped.
func (c *Chip) Temperature(raw int16) float64 {
	return float64(raw>>2) * 0.03125
}

// Volts converts an analog conversion word at the given PGA setting
func (c *Chip) Volts(raw int16, pga uint8) float64 {
	fsr := fullScale[pga&7]
	if c.cfg.ChipType == ADS1018 {
		return float64(raw>>4) * fsr / 2048
	}
	return float64(raw) * fsr / 32768
}

// ThermocoupleK returns the hot junction temperature for a measured emf
// with the cold junction at coldC
func ThermocoupleK(mv, coldC float64) float64 {
	return TypeKCelsius(mv + TypeKMillivolts(coldC))
}
