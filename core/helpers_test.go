package core

import (
	"errors"
	"testing"

	"tinygo.org/x/drivers"

	"adsgopper/protocol"
)

// fakeGPIO records pin levels
type fakeGPIO struct {
	levels  map[GPIOPin]bool
	outputs map[GPIOPin]bool
	writes  int
}

func newFakeGPIO() *fakeGPIO {
	return &fakeGPIO{levels: map[GPIOPin]bool{}, outputs: map[GPIOPin]bool{}}
}

func (g *fakeGPIO) ConfigureOutput(pin GPIOPin) error {
	g.outputs[pin] = true
	return nil
}

func (g *fakeGPIO) ConfigureInputPullUp(pin GPIOPin) error {
	g.levels[pin] = true
	return nil
}

func (g *fakeGPIO) SetPin(pin GPIOPin, value bool) error {
	g.levels[pin] = value
	g.writes++
	return nil
}

func (g *fakeGPIO) ReadPin(pin GPIOPin) bool {
	return g.levels[pin]
}

// fakeChip models an ADS1118 on a drivers.SPI bus: every exchange returns
// the conversion of the config word received by the previous exchange.
type fakeChip struct {
	prev    uint16
	frames  [][]byte
	temp    int16 // next temperature conversion result
	failErr error
}

var errBus = errors.New("bus fault")

// analogResult is the fake conversion result for an analog config word
func analogResult(word uint16) int16 {
	mux := int16(word >> 12 & 7)
	pga := int16(word >> 9 & 7)
	dr := int16(word >> 5 & 7)
	return -(mux*1000 + pga*100 + dr)
}

func (c *fakeChip) convert(word uint16) int16 {
	if word&adsCfgTSMode != 0 {
		v := c.temp
		c.temp++
		return v
	}
	return analogResult(word)
}

func (c *fakeChip) Tx(w, r []byte) error {
	if c.failErr != nil {
		return c.failErr
	}
	c.frames = append(c.frames, append([]byte(nil), w...))
	res := uint16(c.convert(c.prev))
	c.prev = uint16(w[0])<<8 | uint16(w[1])
	if r != nil {
		r[0], r[1] = byte(res>>8), byte(res)
		r[2], r[3] = r[0], r[1]
	}
	return nil
}

func (c *fakeChip) Transfer(b byte) (byte, error) {
	return 0, c.failErr
}

// lastWord is the config word of the most recent frame
func (c *fakeChip) lastWord() uint16 {
	f := c.frames[len(c.frames)-1]
	return uint16(f[0])<<8 | uint16(f[1])
}

type fakeSPIDriver struct {
	bus     *fakeChip
	configs []SPIConfig
}

func (d *fakeSPIDriver) ConfigureBus(cfg SPIConfig) (drivers.SPI, error) {
	if cfg.BusID > 1 {
		return nil, errors.New("invalid SPI bus ID")
	}
	d.configs = append(d.configs, cfg)
	return d.bus, nil
}

func (d *fakeSPIDriver) GetBusInfo() map[SPIBusID]string {
	return map[SPIBusID]string{0: "spi0a", 1: "spi1a"}
}

type sentResponse struct {
	name    string
	payload []byte
}

// responseRecorder stands in for protocol.Transport
type responseRecorder struct {
	sent []sentResponse
}

func (r *responseRecorder) SendCommand(cmdID uint16, args func(output protocol.OutputBuffer)) {
	out := protocol.NewScratchOutput()
	args(out)
	cmd, _ := GetGlobalRegistry().GetCommand(cmdID)
	r.sent = append(r.sent, sentResponse{
		name:    cmd.Name,
		payload: append([]byte(nil), out.Result()...),
	})
}

func (r *responseRecorder) named(name string) []sentResponse {
	var out []sentResponse
	for _, s := range r.sent {
		if s.name == name {
			out = append(out, s)
		}
	}
	return out
}

func (r *responseRecorder) samples(t *testing.T) []ADS1x18Sample {
	t.Helper()
	var out []ADS1x18Sample
	for _, s := range r.named("ads1118_result") {
		data := s.payload
		oid, err1 := protocol.DecodeVLQUint(&data)
		temp, err2 := protocol.DecodeVLQInt(&data)
		idx, err3 := protocol.DecodeVLQUint(&data)
		val, err4 := protocol.DecodeVLQInt(&data)
		if err := errors.Join(err1, err2, err3, err4); err != nil {
			t.Fatalf("decode ads1118_result: %v", err)
		}
		out = append(out, ADS1x18Sample{
			OID:         uint8(oid),
			Temperature: int16(temp),
			SensorIndex: uint8(idx),
			Value:       int16(val),
		})
	}
	return out
}

// shutdownReasons decodes the static string ids of the shutdown responses
func (r *responseRecorder) shutdownReasons(t *testing.T) []string {
	t.Helper()
	byID := map[uint16]string{}
	staticStringsMu.Lock()
	for s, id := range staticStrings {
		byID[id] = s
	}
	staticStringsMu.Unlock()

	var out []string
	for _, s := range r.named("shutdown") {
		data := s.payload
		if _, err := protocol.DecodeVLQUint(&data); err != nil {
			t.Fatal(err)
		}
		id, err := protocol.DecodeVLQUint(&data)
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, byID[uint16(id)])
	}
	return out
}

type testFirmware struct {
	gpio *fakeGPIO
	chip *fakeChip
	spi  *fakeSPIDriver
	rec  *responseRecorder
}

// setupFirmware registers every command on the global registry and resets
// the firmware to the unconfigured state
func setupFirmware(t *testing.T) *testFirmware {
	t.Helper()
	InitCoreCommands()
	InitSPICommands()
	InitADS1x18Commands()
	ResetFirmwareState()
	SetTime(0)

	f := &testFirmware{
		gpio: newFakeGPIO(),
		chip: &fakeChip{temp: 100},
		rec:  &responseRecorder{},
	}
	f.spi = &fakeSPIDriver{bus: f.chip}
	SetGPIODriver(f.gpio)
	SetSPIDriver(f.spi)
	SetGlobalTransport(f.rec)
	SetADS1x18Listener(nil)

	t.Cleanup(func() {
		SetGlobalTransport(nil)
		ResetFirmwareState()
		SetTime(0)
	})
	return f
}

// send encodes args (uint32, int32, int or []byte) and dispatches command name
func send(t *testing.T, name string, args ...interface{}) error {
	t.Helper()
	cmd, ok := GetGlobalRegistry().GetCommandByName(name)
	if !ok {
		t.Fatalf("command %q not registered", name)
	}
	out := protocol.NewScratchOutput()
	for _, a := range args {
		switch v := a.(type) {
		case int:
			protocol.EncodeVLQInt(out, int32(v))
		case uint32:
			protocol.EncodeVLQUint(out, v)
		case int32:
			protocol.EncodeVLQInt(out, v)
		case []byte:
			protocol.EncodeVLQBytes(out, v)
		default:
			t.Fatalf("unsupported arg %T", a)
		}
	}
	data := append([]byte(nil), out.Result()...)
	return DispatchCommand(cmd.ID, &data)
}

// mustSend fails the test if the command returns an error
func mustSend(t *testing.T, name string, args ...interface{}) {
	t.Helper()
	if err := send(t, name, args...); err != nil {
		t.Fatalf("%s: %v", name, err)
	}
}
