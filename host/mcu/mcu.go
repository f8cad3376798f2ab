package mcu

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"adsgopper/host/serial"
	"adsgopper/protocol"
)

var (
	ErrNotConnected   = errors.New("not connected to MCU")
	ErrNoDictionary   = errors.New("dictionary not loaded")
	ErrUnknownCommand = errors.New("unknown command")
)

// identify and identify_response have fixed ids so the dictionary can be
// fetched before anything else is known
const (
	identifyResponseID = 0
	identifyID         = 1
	identifyChunk      = 40
)

// ResponseCallback runs on the transport's reader goroutine and must not
// send commands itself
type ResponseCallback func(Params)

// AnyOID matches responses regardless of their oid
const AnyOID = -1

type handlerEntry struct {
	oid int
	cb  ResponseCallback
}

type identifyChunkMsg struct {
	offset uint32
	data   []byte
}

// MCU represents a connection to a Klipper microcontroller
type MCU struct {
	transport *protocol.HostTransport

	mu             sync.RWMutex
	dictionary     *Dictionary
	dictionaryData []byte
	commands       map[string]*MessageFormat
	responses      map[uint16]*MessageFormat
	handlers       map[string][]handlerEntry
	shutdownReason string

	identify chan identifyChunkMsg

	connected bool

	// Timeout bounds each identify round trip
	Timeout time.Duration
	// OnShutdown is called with the reason when the MCU reports shutdown
	OnShutdown func(reason string)
}

// NewMCU creates a new MCU instance (not yet connected)
func NewMCU() *MCU {
	return &MCU{
		handlers: make(map[string][]handlerEntry),
		identify: make(chan identifyChunkMsg, 1),
		Timeout:  time.Second,
	}
}

// Connect connects to an MCU via serial port
func (m *MCU) Connect(device string) error {
	return m.ConnectWithConfig(serial.DefaultConfig(device))
}

// ConnectWithConfig connects to an MCU with a custom serial config
func (m *MCU) ConnectWithConfig(cfg *serial.Config) error {
	port, err := serial.Open(cfg)
	if err != nil {
		return fmt.Errorf("failed to open serial port: %w", err)
	}
	m.Attach(port)

	// Give the MCU time to initialize if it just powered on
	time.Sleep(100 * time.Millisecond)
	return nil
}

// Attach runs the protocol over an already open port
func (m *MCU) Attach(port io.ReadWriteCloser) {
	m.transport = protocol.NewHostTransport(port)
	m.transport.SetResponseHandler(m.handleResponse)
	m.connected = true
}

// Close closes the connection to the MCU
func (m *MCU) Close() error {
	m.connected = false
	if m.transport != nil {
		return m.transport.Close()
	}
	return nil
}

func (m *MCU) IsConnected() bool {
	return m.connected
}

// RetrieveDictionary fetches the dictionary in identify chunks, then
// parses the command and response formats in it
func (m *MCU) RetrieveDictionary() error {
	if !m.connected {
		return ErrNotConnected
	}

	var buf bytes.Buffer
	offset := uint32(0)
	for {
		chunk, err := m.sendIdentify(offset, identifyChunk)
		if err != nil {
			return fmt.Errorf("dictionary chunk at offset %d: %w", offset, err)
		}
		buf.Write(chunk)
		offset += uint32(len(chunk))
		if len(chunk) < identifyChunk {
			break
		}
	}

	dict, err := ParseDictionary(buf.Bytes())
	if err != nil {
		return err
	}
	commands, responses, err := dict.formats()
	if err != nil {
		return fmt.Errorf("dictionary formats: %w", err)
	}

	m.mu.Lock()
	m.dictionaryData = buf.Bytes()
	m.dictionary = dict
	m.commands = commands
	m.responses = responses
	m.mu.Unlock()

	m.RegisterResponse("shutdown", AnyOID, m.handleShutdown)
	m.RegisterResponse("is_shutdown", AnyOID, m.handleShutdown)
	log.Printf("dictionary retrieved: %d bytes, %d commands, %d responses",
		buf.Len(), len(commands), len(responses))
	return nil
}

func (m *MCU) sendIdentify(offset uint32, count uint8) ([]byte, error) {
	// drop a late answer to an earlier request
	select {
	case <-m.identify:
	default:
	}

	err := m.transport.SendCommand(identifyID, func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, offset)
		protocol.EncodeVLQUint(output, uint32(count))
	})
	if err != nil {
		return nil, fmt.Errorf("send identify: %w", err)
	}

	timer := time.NewTimer(m.Timeout)
	defer timer.Stop()
	for {
		select {
		case msg := <-m.identify:
			if msg.offset != offset {
				continue
			}
			return msg.data, nil
		case <-timer.C:
			return nil, errors.New("identify_response timeout")
		}
	}
}

func (m *MCU) handleResponse(cmdID uint16, data *[]byte) error {
	if cmdID == identifyResponseID {
		offset, err := protocol.DecodeVLQUint(data)
		if err != nil {
			return err
		}
		chunk, err := protocol.DecodeVLQBytes(data)
		if err != nil {
			return err
		}
		select {
		case m.identify <- identifyChunkMsg{offset: offset, data: append([]byte(nil), chunk...)}:
		default:
		}
		return nil
	}

	m.mu.RLock()
	mf := m.responses[cmdID]
	m.mu.RUnlock()
	if mf == nil {
		return fmt.Errorf("unknown response id %d", cmdID)
	}
	params, err := mf.Decode(data)
	if err != nil {
		return err
	}
	m.dispatch(params)
	return nil
}

func (m *MCU) dispatch(p Params) {
	oid, hasOID := p["oid"].(int64)

	m.mu.RLock()
	entries := m.handlers[p.Name()]
	m.mu.RUnlock()
	for _, h := range entries {
		if h.oid != AnyOID && (!hasOID || int(oid) != h.oid) {
			continue
		}
		h.cb(p)
	}
}

func (m *MCU) handleShutdown(p Params) {
	id := int(p.Int("static_string_id"))
	reason := fmt.Sprintf("static string %d", id)
	m.mu.Lock()
	if name, ok := m.dictionary.EnumName("static_string_id", id); ok {
		reason = name
	}
	m.shutdownReason = reason
	cb := m.OnShutdown
	m.mu.Unlock()

	log.Printf("MCU shutdown: %s", reason)
	if cb != nil {
		cb(reason)
	}
}

// RegisterResponse calls cb for every response called name; oid limits it
// to one object unless it is AnyOID
func (m *MCU) RegisterResponse(name string, oid int, cb ResponseCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[name] = append(m.handlers[name], handlerEntry{oid: oid, cb: cb})
}

// LookupCommand returns the format of a command in the dictionary
func (m *MCU) LookupCommand(name string) (*MessageFormat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.dictionary == nil {
		return nil, ErrNoDictionary
	}
	mf, ok := m.commands[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}
	return mf, nil
}

// Send encodes args positionally against the named command and waits for
// the MCU to acknowledge it
func (m *MCU) Send(name string, args ...any) error {
	if !m.connected {
		return ErrNotConnected
	}
	mf, err := m.LookupCommand(name)
	if err != nil {
		return err
	}
	w, err := mf.Encode(args...)
	if err != nil {
		return err
	}
	return m.transport.SendCommand(mf.ID, w)
}

// SendLine sends a command written as "name param=value ..."
func (m *MCU) SendLine(line string) error {
	if !m.connected {
		return ErrNotConnected
	}
	name, _, _ := strings.Cut(strings.TrimSpace(line), " ")
	mf, err := m.LookupCommand(name)
	if err != nil {
		return err
	}
	w, err := mf.EncodeLine(line)
	if err != nil {
		return err
	}
	return m.transport.SendCommand(mf.ID, w)
}

// GetDictionary returns the parsed dictionary
func (m *MCU) GetDictionary() *Dictionary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dictionary
}

// GetDictionaryRaw returns the dictionary as received
func (m *MCU) GetDictionaryRaw() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dictionaryData
}

// ClockFreq returns the MCU's CLOCK_FREQ constant
func (m *MCU) ClockFreq() (int64, bool) {
	d := m.GetDictionary()
	if d == nil {
		return 0, false
	}
	return d.ConfigInt("CLOCK_FREQ")
}

// ShutdownReason is empty until the MCU reports a shutdown
func (m *MCU) ShutdownReason() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.shutdownReason
}
