package core

// ADS1x18MaxSensors is the channel capacity of one chip: the internal
// temperature channel plus four analog inputs.
const ADS1x18MaxSensors = 5

// ADS1118 config register layout
const (
	adsCfgSingleShot = 1 << 15 // SS: start a conversion
	adsCfgMuxShift   = 12
	adsCfgPGAShift   = 9
	adsCfgModeSingle = 1 << 8 // MODE: power down after the conversion
	adsCfgDRShift    = 5
	adsCfgTSMode     = 1 << 4 // TS_MODE: internal temperature sensor
	adsCfgPullUp     = 1 << 3
	adsCfgNOPValid   = 0b01 << 1 // NOP: write the config
	adsCfgReserved   = 1

	adsField = 0b111
)

// SensorConfig is one sampled channel of an ADS1x18
type SensorConfig struct {
	IsTemperature bool
	Mux           uint8 // ignored for the temperature channel
	PGA           uint8 // ignored for the temperature channel
	DataRate      uint8
}

// TemperatureSensor is the config of the internal temperature channel
func TemperatureSensor(dataRate uint8) SensorConfig {
	return SensorConfig{IsTemperature: true, DataRate: dataRate & adsField}
}

// AnalogSensor is the config of an input channel. Each field keeps its low
// three bits.
func AnalogSensor(mux, pga, dataRate uint8) SensorConfig {
	return SensorConfig{
		Mux:      mux & adsField,
		PGA:      pga & adsField,
		DataRate: dataRate & adsField,
	}
}

// ConfigWord is the 16-bit config register value that starts a single-shot
// conversion of this channel.
func (c SensorConfig) ConfigWord() uint16 {
	w := uint16(adsCfgSingleShot | adsCfgModeSingle | adsCfgPullUp | adsCfgNOPValid | adsCfgReserved)
	w |= uint16(c.DataRate&adsField) << adsCfgDRShift
	if c.IsTemperature {
		return w | adsCfgTSMode
	}
	w |= uint16(c.Mux&adsField) << adsCfgMuxShift
	w |= uint16(c.PGA&adsField) << adsCfgPGAShift
	return w
}

// sensorTable holds the channels of one chip. Index 0 is always the
// temperature channel.
type sensorTable struct {
	sensors [ADS1x18MaxSensors]SensorConfig
	count   uint8
}

func (t *sensorTable) seed(temp SensorConfig) {
	t.sensors[0] = temp
	t.count = 1
}

// add stores c and returns false when the table is full. The record is
// written before the count is raised.
func (t *sensorTable) add(c SensorConfig) bool {
	if t.count >= ADS1x18MaxSensors {
		return false
	}
	t.sensors[t.count] = c
	t.count++
	return true
}

func (t *sensorTable) len() uint8 {
	return t.count
}

func (t *sensorTable) at(i uint8) SensorConfig {
	return t.sensors[i]
}
