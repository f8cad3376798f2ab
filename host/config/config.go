// Package config loads the ads-host configuration from a JSON file and
// command line flags. Flags override the file.
package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"adsgopper/host/ads1x18"
	"adsgopper/host/mqtt"
	"adsgopper/host/serial"
)

type ChannelConfig struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Mux      uint8  `json:"mux"`
	PGA      uint8  `json:"pga"`
	DataRate uint8  `json:"data_rate"`
}

type SPIConfig struct {
	OID   uint8  `json:"oid"`
	Bus   uint32 `json:"bus"`
	Mode  uint8  `json:"mode"`
	Rate  uint32 `json:"rate"`
	CSPin int    `json:"cs_pin"`
}

type Config struct {
	Device     string          `json:"device"`
	Baud       int             `json:"baud"`
	OID        uint8           `json:"oid"`
	ChipType   string          `json:"chip_type"`
	DataRate   uint8           `json:"data_rate"`
	IntervalMs int             `json:"interval_ms"`
	SPI        SPIConfig       `json:"spi"`
	Channels   []ChannelConfig `json:"channels"`
	Outputs    []string        `json:"outputs"`
	MQTT       *mqtt.Config    `json:"mqtt,omitempty"`
}

func DefaultConfig() Config {
	return Config{
		Device:     "/dev/ttyACM0",
		Baud:       serial.DefaultBaud,
		OID:        1,
		ChipType:   ads1x18.ADS1118,
		DataRate:   ads1x18.DefaultDataRate,
		IntervalMs: int(ads1x18.DefaultInterval / time.Millisecond),
		SPI:        SPIConfig{OID: 0, Mode: 1, Rate: 4000000, CSPin: -1},
		Outputs:    []string{"console"},
	}
}

// Load parses args into fs and merges an optional JSON file named by
// -config
func Load(fs *flag.FlagSet, args []string) (Config, error) {
	cfgPath := fs.String("config", "", "Path to JSON config file")
	device := fs.String("device", "", "Serial device path")
	baud := fs.Int("baud", 0, "Baud rate (ignored for USB CDC)")
	chip := fs.String("chip", "", "Chip type: ADS1018 or ADS1118")
	interval := fs.Int("interval-ms", 0, "Report interval in ms")
	spiBus := fs.Int("spi-bus", -1, "MCU SPI bus number")
	csPin := fs.String("cs-pin", "", "Chip select GPIO number, 'none' for a dedicated bus")
	channels := fs.String("channels", "", "Comma separated name:kind:mux:pga entries, kind is thermocouple_k or voltage")
	outputs := fs.String("outputs", "", "Comma separated outputs (console,mqtt)")
	mqttServer := fs.String("mqtt-server", "", "MQTT server (tcp://host:port)")
	mqttTopic := fs.String("mqtt-topic", "", "MQTT topic, %s is replaced by the sensor name")
	mqttClientID := fs.String("mqtt-client-id", "", "MQTT client id")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := DefaultConfig()
	if *cfgPath != "" {
		b, err := os.ReadFile(*cfgPath)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	if *device != "" {
		cfg.Device = *device
	}
	if *baud > 0 {
		cfg.Baud = *baud
	}
	if *chip != "" {
		cfg.ChipType = strings.ToUpper(*chip)
	}
	if *interval > 0 {
		cfg.IntervalMs = *interval
	}
	if *spiBus >= 0 {
		cfg.SPI.Bus = uint32(*spiBus)
	}
	if *csPin != "" {
		if *csPin == "none" {
			cfg.SPI.CSPin = -1
		} else {
			n, err := strconv.Atoi(*csPin)
			if err != nil {
				return cfg, fmt.Errorf("cs-pin: %w", err)
			}
			cfg.SPI.CSPin = n
		}
	}
	if *channels != "" {
		chs, err := parseChannels(*channels)
		if err != nil {
			return cfg, err
		}
		cfg.Channels = chs
	}
	if *outputs != "" {
		cfg.Outputs = parseCSV(*outputs)
	}
	if *mqttServer != "" || *mqttTopic != "" || *mqttClientID != "" {
		if cfg.MQTT == nil {
			cfg.MQTT = &mqtt.Config{}
		}
		if *mqttServer != "" {
			cfg.MQTT.Server = *mqttServer
		}
		if *mqttTopic != "" {
			cfg.MQTT.Topic = *mqttTopic
		}
		if *mqttClientID != "" {
			cfg.MQTT.ClientID = *mqttClientID
		}
	}

	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	if c.ChipType != ads1x18.ADS1018 && c.ChipType != ads1x18.ADS1118 {
		return fmt.Errorf("unknown chip type %q", c.ChipType)
	}
	if c.IntervalMs <= 0 {
		return errors.New("interval_ms must be > 0")
	}
	if len(c.Channels) >= ads1x18.MaxSensors {
		return fmt.Errorf("at most %d channels besides the internal sensor", ads1x18.MaxSensors-1)
	}
	if c.OID == c.SPI.OID {
		return fmt.Errorf("oid %d is used by both the chip and its SPI bus", c.OID)
	}
	for _, ch := range c.Channels {
		if _, err := ch.kind(); err != nil {
			return err
		}
	}
	return nil
}

func (ch ChannelConfig) kind() (ads1x18.Kind, error) {
	switch ch.Kind {
	case "", "thermocouple_k":
		return ads1x18.KindThermocoupleK, nil
	case "voltage":
		return ads1x18.KindVoltage, nil
	}
	return 0, fmt.Errorf("channel %q: unknown kind %q", ch.Name, ch.Kind)
}

// Channel converts the entry for ads1x18.Chip.AddChannel, filling the data
// rate from the chip default
func (c *Config) Channel(i int) ads1x18.Channel {
	ch := c.Channels[i]
	kind, _ := ch.kind()
	dr := ch.DataRate
	if dr == 0 {
		dr = c.DataRate
	}
	return ads1x18.Channel{Name: ch.Name, Kind: kind, Mux: ch.Mux, PGA: ch.PGA, DataRate: dr}
}

func (c *Config) Interval() time.Duration {
	return time.Duration(c.IntervalMs) * time.Millisecond
}

func (c *Config) HasOutput(name string) bool {
	for _, o := range c.Outputs {
		if strings.EqualFold(o, name) {
			return true
		}
	}
	return false
}

func parseCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// parseChannels reads name:kind:mux:pga[:data_rate] entries
func parseChannels(s string) ([]ChannelConfig, error) {
	var out []ChannelConfig
	for _, entry := range parseCSV(s) {
		f := strings.Split(entry, ":")
		if len(f) < 4 || len(f) > 5 {
			return nil, fmt.Errorf("invalid channel %q", entry)
		}
		ch := ChannelConfig{Name: f[0], Kind: f[1]}
		nums := make([]uint8, len(f)-2)
		for i, v := range f[2:] {
			n, err := strconv.ParseUint(v, 0, 3)
			if err != nil {
				return nil, fmt.Errorf("invalid channel %q: %w", entry, err)
			}
			nums[i] = uint8(n)
		}
		ch.Mux, ch.PGA = nums[0], nums[1]
		if len(nums) == 3 {
			ch.DataRate = nums[2]
		}
		out = append(out, ch)
	}
	return out, nil
}
