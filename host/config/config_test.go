package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"adsgopper/host/ads1x18"
)

func load(t *testing.T, args ...string) (Config, error) {
	t.Helper()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	return Load(fs, args)
}

func TestDefaults(t *testing.T) {
	cfg, err := load(t)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ChipType != ads1x18.ADS1118 || cfg.IntervalMs != 200 || cfg.SPI.CSPin != -1 {
		t.Errorf("defaults %+v", cfg)
	}
	if !cfg.HasOutput("CONSOLE") || cfg.HasOutput("mqtt") {
		t.Errorf("outputs %v", cfg.Outputs)
	}
}

func TestJSONAndFlags(t *testing.T) {
	js := `{
		"device": "/dev/ttyUSB1",
		"oid": 4,
		"interval_ms": 500,
		"spi": {"oid": 2, "bus": 1, "mode": 1, "rate": 2000000, "cs_pin": 9},
		"channels": [
			{"name": "hotend", "kind": "thermocouple_k", "mux": 0, "pga": 5},
			{"name": "aux", "kind": "voltage", "mux": 4, "pga": 1, "data_rate": 7}
		],
		"outputs": ["mqtt"],
		"mqtt": {"server": "tcp://broker:1883", "topic": "lab/%s"}
	}`
	path := filepath.Join(t.TempDir(), "ads.json")
	if err := os.WriteFile(path, []byte(js), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := load(t, "-config", path, "-interval-ms", "250", "-cs-pin", "none", "-mqtt-client-id", "bench")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Device != "/dev/ttyUSB1" || cfg.OID != 4 || cfg.IntervalMs != 250 {
		t.Errorf("cfg %+v", cfg)
	}
	if cfg.SPI.OID != 2 || cfg.SPI.Bus != 1 || cfg.SPI.CSPin != -1 || cfg.SPI.Rate != 2000000 {
		t.Errorf("spi %+v", cfg.SPI)
	}
	if cfg.MQTT == nil || cfg.MQTT.Server != "tcp://broker:1883" || cfg.MQTT.ClientID != "bench" {
		t.Errorf("mqtt %+v", cfg.MQTT)
	}

	ch := cfg.Channel(0)
	if ch.Kind != ads1x18.KindThermocoupleK || ch.PGA != 5 || ch.DataRate != ads1x18.DefaultDataRate {
		t.Errorf("channel 0 %+v", ch)
	}
	if ch := cfg.Channel(1); ch.Kind != ads1x18.KindVoltage || ch.Mux != 4 || ch.DataRate != 7 {
		t.Errorf("channel 1 %+v", ch)
	}
}

func TestChannelFlag(t *testing.T) {
	cfg, err := load(t, "-channels", "tc:thermocouple_k:0:5, v:voltage:4:1:7")
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Channels) != 2 {
		t.Fatalf("channels %+v", cfg.Channels)
	}
	if c := cfg.Channels[1]; c.Name != "v" || c.Mux != 4 || c.PGA != 1 || c.DataRate != 7 {
		t.Errorf("channel %+v", c)
	}
}

func TestInvalid(t *testing.T) {
	tests := [][]string{
		{"-chip", "ads1115"},
		{"-channels", "a:voltage:9:0"},
		{"-channels", "a:voltage:1"},
		{"-channels", "a:ntc:1:1"},
		{"-channels", "a::0:0,b::1:0,c::2:0,d::3:0,e::4:0"},
		{"-cs-pin", "gpio9"},
		{"-config", "/nonexistent/ads.json"},
	}
	for _, args := range tests {
		if _, err := load(t, args...); err == nil {
			t.Errorf("Load(%v) accepted", args)
		}
	}
}
