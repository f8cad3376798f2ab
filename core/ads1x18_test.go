package core

import (
	"errors"
	"reflect"
	"testing"

	"github.com/l0nax/go-spew/spew"
)

const testSPIOID = 10

// configureChip sets up an SPI device and an ADS1x18 on it with the given
// analog channels appended after the temperature channel
func configureChip(t *testing.T, oid uint32, tempRate uint32, intervalMS uint32, analog ...SensorConfig) *ADS1x18 {
	t.Helper()
	mustSend(t, "config_spi_without_cs", uint32(testSPIOID))
	mustSend(t, "spi_set_bus", uint32(testSPIOID), uint32(0), uint32(1), uint32(4000000))
	mustSend(t, "config_ads1x18", oid, uint32(testSPIOID), tempRate, intervalMS)
	for _, c := range analog {
		mustSend(t, "ads_sensor_ads1x18", oid, uint32(c.Mux), uint32(c.PGA), uint32(c.DataRate))
	}
	return LookupADS1x18(uint8(oid))
}

// fire advances the clock to the chip's wake time and runs the timers
func fire(a *ADS1x18, times int) {
	for i := 0; i < times; i++ {
		SetTime(a.timer.WakeTime)
		TimerDispatch()
	}
}

var testChannels = []SensorConfig{
	AnalogSensor(0, 1, 4),
	AnalogSensor(3, 2, 4),
	AnalogSensor(4, 0, 7),
	AnalogSensor(7, 5, 1),
}

func TestConfigWord(t *testing.T) {
	tests := []struct {
		name string
		cfg  SensorConfig
		want uint16
	}{
		{"temperature rate 4", TemperatureSensor(4), 0x819B},
		{"temperature rate 0", TemperatureSensor(0), 0x811B},
		{"analog mux0 pga1 rate4", AnalogSensor(0, 1, 4), 0x838B},
		{"analog mux3 pga2 rate4", AnalogSensor(3, 2, 4), 0xB58B},
		{"analog all ones", AnalogSensor(7, 7, 7), 0xFFEB},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.ConfigWord(); got != tt.want {
				t.Errorf("ConfigWord() = %#04x, want %#04x", got, tt.want)
			}
		})
	}
}

func TestConfigWordFields(t *testing.T) {
	temp := TemperatureSensor(0b101).ConfigWord()
	if dr := temp >> 5 & 7; dr != 0b101 {
		t.Errorf("temperature DR = %03b, want 101", dr)
	}
	if temp>>12&7 != 0 || temp>>9&7 != 0 {
		t.Errorf("temperature word %#04x has MUX/PGA bits set", temp)
	}
	if temp&adsCfgTSMode == 0 {
		t.Errorf("temperature word %#04x missing TS_MODE", temp)
	}

	// A temperature config never carries MUX/PGA even if set by hand
	odd := SensorConfig{IsTemperature: true, Mux: 7, PGA: 7, DataRate: 1}
	if w := odd.ConfigWord(); w>>9&0x3F != 0 {
		t.Errorf("temperature word %#04x has MUX/PGA bits set", w)
	}

	analog := AnalogSensor(2, 3, 0b101).ConfigWord()
	if dr := analog >> 5 & 7; dr != 0b101 {
		t.Errorf("analog DR = %03b, want 101", dr)
	}
	if analog&adsCfgTSMode != 0 {
		t.Errorf("analog word %#04x has TS_MODE set", analog)
	}
	if analog>>12&7 != 2 || analog>>9&7 != 3 {
		t.Errorf("analog word %#04x: wrong MUX/PGA", analog)
	}
}

func TestAnalogSensorMasksFields(t *testing.T) {
	got := AnalogSensor(0xFF, 0x0A, 0x0D)
	want := SensorConfig{Mux: 7, PGA: 2, DataRate: 5}
	if got != want {
		t.Errorf("AnalogSensor = %+v, want %+v", got, want)
	}
	if TemperatureSensor(0x0E).DataRate != 6 {
		t.Error("TemperatureSensor did not mask the data rate")
	}
}

func TestADS1x18Priming(t *testing.T) {
	f := setupFirmware(t)
	SetTime(5000)
	a := configureChip(t, 3, 4, 100)

	if len(f.chip.frames) != 1 {
		t.Fatalf("expected one priming exchange, got %d", len(f.chip.frames))
	}
	want := []byte{0x81, 0x9B, 0x81, 0x9B}
	if !reflect.DeepEqual(f.chip.frames[0], want) {
		t.Errorf("priming frame = % x, want % x", f.chip.frames[0], want)
	}
	if n := len(f.rec.named("ads1118_result")); n != 0 {
		t.Errorf("priming reported %d results", n)
	}
	if a.Cursor() != 0 || a.ChannelCount() != 1 {
		t.Errorf("cursor=%d count=%d after priming", a.Cursor(), a.ChannelCount())
	}
	if a.Interval() != 100000 {
		t.Errorf("interval = %d ticks, want 100000", a.Interval())
	}
	if !TimerPending(&a.timer) || a.timer.WakeTime != 105000 {
		t.Errorf("timer not armed one interval out: pending=%v wake=%d",
			TimerPending(&a.timer), a.timer.WakeTime)
	}
}

func TestADS1x18RoundRobin(t *testing.T) {
	for n := 1; n <= ADS1x18MaxSensors; n++ {
		t.Run("channels="+itoa(n), func(t *testing.T) {
			f := setupFirmware(t)
			a := configureChip(t, 1, 4, 10, testChannels[:n-1]...)
			if int(a.ChannelCount()) != n {
				t.Fatalf("ChannelCount = %d, want %d", a.ChannelCount(), n)
			}

			fire(a, 3*n)
			got := f.rec.samples(t)
			if len(got) != 3*n {
				t.Fatalf("got %d results, want %d", len(got), 3*n)
			}
			for k, s := range got {
				if int(s.SensorIndex) != k%n {
					t.Fatalf("result %d has sensor_index %d, want %d\n%s",
						k, s.SensorIndex, k%n, spew.Sdump(got))
				}
				if s.OID != 1 {
					t.Fatalf("result %d has oid %d", k, s.OID)
				}
			}
		})
	}
}

func TestADS1x18PipelineOffset(t *testing.T) {
	f := setupFirmware(t)
	a := configureChip(t, 2, 4, 10, testChannels...)

	fire(a, 12)
	got := f.rec.samples(t)
	for k, s := range got {
		if s.SensorIndex == 0 {
			continue
		}
		want := analogResult(a.Sensor(s.SensorIndex).ConfigWord())
		if s.Value != want {
			t.Errorf("result %d (index %d): value %d, want %d\n%s",
				k, s.SensorIndex, s.Value, want, spew.Sdump(got))
		}
	}

	// The word sent in exchange k configures channel k mod 5 (priming
	// sent channel 0)
	for k, frame := range f.chip.frames {
		word := uint16(frame[0])<<8 | uint16(frame[1])
		want := a.Sensor(uint8(k % 5)).ConfigWord()
		if word != want {
			t.Errorf("frame %d word %#04x, want %#04x", k, word, want)
		}
		if frame[2] != frame[0] || frame[3] != frame[1] {
			t.Errorf("frame %d = % x, second half must repeat the word", k, frame)
		}
	}
}

func TestADS1x18LastTemperature(t *testing.T) {
	f := setupFirmware(t)
	a := configureChip(t, 2, 4, 10, testChannels[:2]...)

	fire(a, 9)
	got := f.rec.samples(t)
	var temp int16
	for k, s := range got {
		if s.SensorIndex == 0 {
			temp = s.Value
		}
		if s.Temperature != temp {
			t.Fatalf("result %d: temperature %d, want %d\n%s", k, s.Temperature, temp, spew.Sdump(got))
		}
	}
	if temp != 102 {
		t.Errorf("last temperature %d, want 102", temp)
	}
	if a.LastTemperature() != temp {
		t.Errorf("LastTemperature() = %d, want %d", a.LastTemperature(), temp)
	}
}

func TestADS1x18SingleChannel(t *testing.T) {
	f := setupFirmware(t)
	a := configureChip(t, 4, 2, 10)

	fire(a, 4)
	got := f.rec.samples(t)
	if len(got) != 4 {
		t.Fatalf("got %d results, want 4", len(got))
	}
	for k, s := range got {
		want := ADS1x18Sample{OID: 4, Temperature: int16(100 + k), SensorIndex: 0, Value: int16(100 + k)}
		if s != want {
			t.Errorf("result %d = %+v, want %+v", k, s, want)
		}
	}
	for _, frame := range f.chip.frames {
		if frame[0] != 0x81 || frame[1] != 0x5B {
			t.Errorf("single channel frame % x, want 81 5b", frame)
		}
	}
}

func TestADS1x18TooManySensors(t *testing.T) {
	f := setupFirmware(t)
	a := configureChip(t, 5, 4, 10, testChannels...)
	if a.ChannelCount() != ADS1x18MaxSensors {
		t.Fatalf("ChannelCount = %d", a.ChannelCount())
	}

	err := send(t, "ads_sensor_ads1x18", uint32(5), uint32(1), uint32(1), uint32(1))
	if !errors.Is(err, ErrShutdown) {
		t.Fatalf("sixth channel: err = %v, want ErrShutdown", err)
	}
	if a.ChannelCount() != ADS1x18MaxSensors {
		t.Errorf("sixth channel stored: count %d", a.ChannelCount())
	}
	if !IsShutdown() || ShutdownReason() != "Too many ads1x18 sensors" {
		t.Errorf("shutdown=%v reason=%q", IsShutdown(), ShutdownReason())
	}
	if reasons := f.rec.shutdownReasons(t); !reflect.DeepEqual(reasons, []string{"Too many ads1x18 sensors"}) {
		t.Errorf("shutdown reports %q", reasons)
	}
	if TimerPending(&a.timer) {
		t.Error("sampler timer still scheduled after shutdown")
	}
}

func TestADS1x18AppendWhileRunning(t *testing.T) {
	f := setupFirmware(t)
	a := configureChip(t, 6, 4, 10)

	fire(a, 2)
	mustSend(t, "ads_sensor_ads1x18", uint32(6), uint32(3), uint32(2), uint32(4))
	fire(a, 4)

	var idx []uint8
	for _, s := range f.rec.samples(t) {
		idx = append(idx, s.SensorIndex)
	}
	want := []uint8{0, 0, 0, 1, 0, 1}
	if !reflect.DeepEqual(idx, want) {
		t.Errorf("sensor_index sequence %v, want %v", idx, want)
	}
}

func TestADS1x18TransportFault(t *testing.T) {
	f := setupFirmware(t)
	a := configureChip(t, 7, 4, 10, testChannels[0])

	fire(a, 1)
	f.chip.failErr = errBus
	fire(a, 1)

	if !IsShutdown() || ShutdownReason() != "SPI transfer failed" {
		t.Fatalf("shutdown=%v reason=%q", IsShutdown(), ShutdownReason())
	}
	if n := len(f.rec.samples(t)); n != 1 {
		t.Errorf("%d results reported, want 1", n)
	}
	if TimerPending(&a.timer) {
		t.Error("sampler timer still scheduled after transport fault")
	}

	// Commands without HF_IN_SHUTDOWN are refused
	before := len(f.rec.named("is_shutdown"))
	mustSend(t, "ads_sensor_ads1x18", uint32(7), uint32(1), uint32(1), uint32(1))
	if a.ChannelCount() != 2 {
		t.Errorf("channel appended during shutdown")
	}
	if len(f.rec.named("is_shutdown")) != before+1 {
		t.Error("expected is_shutdown report")
	}
}

func TestADS1x18EndToEnd(t *testing.T) {
	tests := []struct {
		name       string
		tempRate   uint32
		intervalMS uint32
		analog     []SensorConfig
		exchanges  int
		want       []ADS1x18Sample
		wantWords  []uint16
	}{
		{
			name:       "rate 4 at 100ms",
			tempRate:   4,
			intervalMS: 100,
			analog:     []SensorConfig{AnalogSensor(0, 1, 4), AnalogSensor(3, 2, 4)},
			exchanges:  4,
			want: []ADS1x18Sample{
				{OID: 3, Temperature: 100, SensorIndex: 0, Value: 100},
				{OID: 3, Temperature: 100, SensorIndex: 1, Value: -104},
				{OID: 3, Temperature: 100, SensorIndex: 2, Value: -3204},
				{OID: 3, Temperature: 101, SensorIndex: 0, Value: 101},
			},
			wantWords: []uint16{0x819B, 0x838B, 0xB58B, 0x819B, 0x838B},
		},
		{
			name:       "rate 5 at 10ms",
			tempRate:   5,
			intervalMS: 10,
			analog:     []SensorConfig{AnalogSensor(2, 1, 3), AnalogSensor(4, 0, 3)},
			exchanges:  7,
			want: []ADS1x18Sample{
				{OID: 3, Temperature: 100, SensorIndex: 0, Value: 100},
				{OID: 3, Temperature: 100, SensorIndex: 1, Value: -2103},
				{OID: 3, Temperature: 100, SensorIndex: 2, Value: -4003},
				{OID: 3, Temperature: 101, SensorIndex: 0, Value: 101},
				{OID: 3, Temperature: 101, SensorIndex: 1, Value: -2103},
				{OID: 3, Temperature: 101, SensorIndex: 2, Value: -4003},
				{OID: 3, Temperature: 102, SensorIndex: 0, Value: 102},
			},
			wantWords: []uint16{0x81BB, 0xA36B, 0xC16B, 0x81BB, 0xA36B, 0xC16B, 0x81BB, 0xA36B},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupFirmware(t)
			mustSend(t, "config_spi_without_cs", uint32(1))
			mustSend(t, "spi_set_bus", uint32(1), uint32(0), uint32(1), uint32(4000000))
			mustSend(t, "config_ads1x18", uint32(3), uint32(1), tt.tempRate, tt.intervalMS)
			for _, c := range tt.analog {
				mustSend(t, "ads_sensor_ads1x18", uint32(3), uint32(c.Mux), uint32(c.PGA), uint32(c.DataRate))
			}
			a := LookupADS1x18(3)

			interval := TimerFromMS(tt.intervalMS)
			if a.timer.WakeTime != interval {
				t.Fatalf("first wake at %d, want %d", a.timer.WakeTime, interval)
			}
			fire(a, tt.exchanges)
			if want := interval * uint32(tt.exchanges+1); a.timer.WakeTime != want {
				t.Errorf("wake at %d after %d exchanges, want %d", a.timer.WakeTime, tt.exchanges, want)
			}

			got := f.rec.samples(t)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("results:\n%s\nwant:\n%s", spew.Sdump(got), spew.Sdump(tt.want))
			}

			var words []uint16
			for _, frame := range f.chip.frames {
				if len(frame) != 4 || frame[0] != frame[2] || frame[1] != frame[3] {
					t.Errorf("frame % x does not repeat its config word", frame)
				}
				words = append(words, uint16(frame[0])<<8|uint16(frame[1]))
			}
			if !reflect.DeepEqual(words, tt.wantWords) {
				t.Errorf("config words %#04x, want %#04x", words, tt.wantWords)
			}
		})
	}
}

func TestADS1x18Task(t *testing.T) {
	setupFirmware(t)
	a := configureChip(t, 8, 4, 10, testChannels[0])

	var delivered []ADS1x18Sample
	SetADS1x18Listener(func(s ADS1x18Sample) { delivered = append(delivered, s) })

	RunTasks()
	if len(delivered) != 0 {
		t.Fatalf("task delivered %d samples before any exchange", len(delivered))
	}

	fire(a, 2)
	RunTasks()
	if len(delivered) != 1 {
		t.Fatalf("task delivered %d samples, want the latest only", len(delivered))
	}
	if s := delivered[0]; s.SensorIndex != 1 || s.Value != analogResult(testChannels[0].ConfigWord()) {
		t.Errorf("delivered %+v", s)
	}

	RunTasks()
	if len(delivered) != 1 {
		t.Error("task delivered again without a new exchange")
	}
}

func TestADS1x18ConfigErrors(t *testing.T) {
	t.Run("zero interval", func(t *testing.T) {
		setupFirmware(t)
		mustSend(t, "config_spi_without_cs", uint32(1))
		mustSend(t, "spi_set_bus", uint32(1), uint32(0), uint32(1), uint32(4000000))
		err := send(t, "config_ads1x18", uint32(3), uint32(1), uint32(4), uint32(0))
		if !errors.Is(err, ErrShutdown) || ShutdownReason() != "Invalid ads1x18 response interval" {
			t.Errorf("err=%v reason=%q", err, ShutdownReason())
		}
	})
	t.Run("duplicate oid", func(t *testing.T) {
		setupFirmware(t)
		configureChip(t, 3, 4, 10)
		err := send(t, "config_ads1x18", uint32(3), uint32(testSPIOID), uint32(4), uint32(10))
		if !errors.Is(err, ErrShutdown) || ShutdownReason() != "Can't assign oid" {
			t.Errorf("err=%v reason=%q", err, ShutdownReason())
		}
	})
	t.Run("spi oid missing", func(t *testing.T) {
		setupFirmware(t)
		err := send(t, "config_ads1x18", uint32(3), uint32(9), uint32(4), uint32(10))
		if !errors.Is(err, ErrShutdown) || ShutdownReason() != "Invalid oid type" {
			t.Errorf("err=%v reason=%q", err, ShutdownReason())
		}
	})
	t.Run("bus not set", func(t *testing.T) {
		setupFirmware(t)
		mustSend(t, "config_spi_without_cs", uint32(1))
		err := send(t, "config_ads1x18", uint32(3), uint32(1), uint32(4), uint32(10))
		if !errors.Is(err, ErrShutdown) || ShutdownReason() != "SPI bus not configured" {
			t.Errorf("err=%v reason=%q", err, ShutdownReason())
		}
	})
}
