// ADS1018/ADS1118 pipelined sampler.
//
// Every timer tick performs one 4-byte SPI exchange. The config word sent
// in an exchange starts the conversion of the next channel, and the bytes
// clocked back in the same exchange are the result of the conversion
// started one exchange earlier.
package core

import "adsgopper/protocol"

const oidTagADS1x18 = "ads1x18"

// Chip variants, numbered as in the ads1x18_type enumeration
const (
	ADS1018 = 0
	ADS1118 = 1
)

// ADS1x18Sample is one reported conversion
type ADS1x18Sample struct {
	OID         uint8
	Temperature int16 // most recent internal temperature reading
	SensorIndex uint8
	Value       int16
	Clock       uint32
}

// ADS1x18 is one configured chip
type ADS1x18 struct {
	OID      uint8
	spi      *SPIDevice
	timer    Timer
	interval uint32
	sensors  sensorTable

	// cursor is the channel whose config word went out last, so its
	// result arrives with the next exchange
	cursor          uint8
	lastTemperature int16

	frame [4]byte
	last  ADS1x18Sample
	wake  TaskWake
}

var ads1x18Listener func(ADS1x18Sample)

// SetADS1x18Listener installs a callback run from the main loop task with
// the latest sample of every chip that fired since the last run.
func SetADS1x18Listener(fn func(ADS1x18Sample)) {
	ads1x18Listener = fn
}

// InitADS1x18Commands registers the ADS1x18 commands with the command registry
func InitADS1x18Commands() {
	RegisterCommand("config_ads1x18", "oid=%c spi_oid=%c data_rate=%c response_interval_ms=%u", handleConfigADS1x18)
	RegisterCommand("ads_sensor_ads1x18", "oid=%c mux=%c pga=%c data_rate=%c", handleADSSensorADS1x18)
	RegisterResponse("ads1118_result", "oid=%c temperature=%hi sensor_index=%c value=%hi")

	RegisterEnumeration("ads1x18_type", []string{"ADS1018", "ADS1118"})
	RegisterConstant("ADS1X18_MAX_SENSORS", uint32(ADS1x18MaxSensors))

	RegisterStaticString("Too many ads1x18 sensors")
	RegisterStaticString("Invalid ads1x18 response interval")

	RegisterTask("ads1x18", ADS1x18Task)
}

// handleConfigADS1x18: config_ads1x18 oid=%c spi_oid=%c data_rate=%c response_interval_ms=%u
func handleConfigADS1x18(data *[]byte) error {
	var oid, spiOID, rate, intervalMS uint32
	if err := decodeArgs(data, &oid, &spiOID, &rate, &intervalMS); err != nil {
		return err
	}

	spi := LookupSPIDevice(uint8(spiOID))
	interval := TimerFromMS(intervalMS)
	if interval == 0 {
		Shutdown("Invalid ads1x18 response interval")
	}

	AllocOID(uint8(oid), oidTagADS1x18, func() interface{} {
		a := newADS1x18(uint8(oid), spi, uint8(rate), interval)
		a.start()
		return a
	})
	DebugPrintln("[ADS1x18] oid=" + utoa(oid) + " spi_oid=" + utoa(spiOID) +
		" interval=" + utoa(interval))
	return nil
}

// handleADSSensorADS1x18: ads_sensor_ads1x18 oid=%c mux=%c pga=%c data_rate=%c
func handleADSSensorADS1x18(data *[]byte) error {
	var oid, mux, pga, rate uint32
	if err := decodeArgs(data, &oid, &mux, &pga, &rate); err != nil {
		return err
	}
	a := LookupADS1x18(uint8(oid))
	a.AppendSensor(AnalogSensor(uint8(mux), uint8(pga), uint8(rate)))
	return nil
}

// LookupADS1x18 returns the chip configured under oid
func LookupADS1x18(oid uint8) *ADS1x18 {
	return LookupOID(oid, oidTagADS1x18).(*ADS1x18)
}

func newADS1x18(oid uint8, spi *SPIDevice, tempRate uint8, interval uint32) *ADS1x18 {
	a := &ADS1x18{
		OID:      oid,
		spi:      spi,
		interval: interval,
	}
	a.sensors.seed(TemperatureSensor(tempRate))
	a.timer.Handler = a.event
	return a
}

// start primes the pipeline with the temperature channel's config and arms
// the timer one interval out
func (a *ADS1x18) start() {
	word := a.sensors.at(a.cursor).ConfigWord()
	a.transfer(word)
	RecordTiming(EvtADSPrime, a.OID, GetTime(), uint32(word), 0)

	a.timer.WakeTime = GetTime() + a.interval
	ScheduleTimer(&a.timer)
}

// AppendSensor adds an analog channel. It is sampled from the next exchange
// on. A sixth channel is fatal.
func (a *ADS1x18) AppendSensor(c SensorConfig) {
	state := disableInterrupts()
	ok := a.sensors.add(c)
	count := a.sensors.len()
	restoreInterrupts(state)
	if !ok {
		Shutdown("Too many ads1x18 sensors")
	}
	DebugPrintln("[ADS1x18] oid=" + itoa(int(a.OID)) + " channel " + itoa(int(count-1)) +
		" config=" + hex16(c.ConfigWord()))
}

func (a *ADS1x18) transfer(word uint16) {
	a.frame = [4]byte{byte(word >> 8), byte(word), byte(word >> 8), byte(word)}
	SPIDevTransfer(a.spi, true, a.frame[:])
}

// exchange queues the next channel's conversion, reports the finished
// conversion of the current channel and advances the cursor
func (a *ADS1x18) exchange() ADS1x18Sample {
	next := (a.cursor + 1) % a.sensors.len()
	word := a.sensors.at(next).ConfigWord()
	a.transfer(word)

	value := int16(uint16(a.frame[0])<<8 | uint16(a.frame[1]))
	if a.sensors.at(a.cursor).IsTemperature {
		a.lastTemperature = value
	}
	sample := ADS1x18Sample{
		OID:         a.OID,
		Temperature: a.lastTemperature,
		SensorIndex: a.cursor,
		Value:       value,
		Clock:       GetTime(),
	}
	RecordTiming(EvtADSExchange, a.OID, sample.Clock, uint32(word), uint32(uint16(value)))

	SendResponse("ads1118_result", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(sample.OID))
		protocol.EncodeVLQInt(output, int32(sample.Temperature))
		protocol.EncodeVLQUint(output, uint32(sample.SensorIndex))
		protocol.EncodeVLQInt(output, int32(sample.Value))
	})

	a.cursor = next
	return sample
}

// event is the timer handler. It runs with interrupts disabled.
func (a *ADS1x18) event(t *Timer) uint8 {
	a.last = a.exchange()
	a.wake.Wake()

	t.WakeTime = GetTime() + a.interval
	RecordTiming(EvtADSReschedule, a.OID, GetTime(), t.WakeTime, 0)
	return SF_RESCHEDULE
}

// ADS1x18Task hands the latest sample of each chip that fired to the
// listener. Registered as a main loop task.
func ADS1x18Task() {
	ForEachOID(oidTagADS1x18, func(_ uint8, obj interface{}) {
		a := obj.(*ADS1x18)
		if !a.wake.Check() {
			return
		}
		state := disableInterrupts()
		s := a.last
		restoreInterrupts(state)
		if fn := ads1x18Listener; fn != nil {
			fn(s)
		}
	})
}

// Cursor is the index of the channel whose result arrives next
func (a *ADS1x18) Cursor() uint8 {
	return a.cursor
}

func (a *ADS1x18) ChannelCount() uint8 {
	state := disableInterrupts()
	defer restoreInterrupts(state)
	return a.sensors.len()
}

// Sensor returns channel i's config
func (a *ADS1x18) Sensor(i uint8) SensorConfig {
	return a.sensors.at(i)
}

func (a *ADS1x18) LastTemperature() int16 {
	return a.lastTemperature
}

// Interval is the exchange period in timer ticks
func (a *ADS1x18) Interval() uint32 {
	return a.interval
}
