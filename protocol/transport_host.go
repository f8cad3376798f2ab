package protocol

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

var ErrTransportClosed = errors.New("transport closed")

// ResponseHandler receives each response message from the MCU. data points
// at the arguments following the message id.
type ResponseHandler func(cmdID uint16, data *[]byte) error

// Message is one validated block received from the MCU
type Message struct {
	Sequence uint8
	Payload  []byte
}

// HostTransport is the host side of the link. Commands are sent one block
// at a time and each send waits for the MCU's acknowledgement; responses
// are delivered to a handler and to a bounded queue.
type HostTransport struct {
	port io.ReadWriteCloser

	seq    atomic.Uint32
	synced atomic.Bool

	input *FifoBuffer

	writeMu sync.Mutex
	readMu  sync.Mutex

	ackChan      chan *Message
	responseChan chan *Message

	handlerMu sync.RWMutex
	handler   ResponseHandler

	stopOnce sync.Once
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewHostTransport starts a background reader on port
func NewHostTransport(port io.ReadWriteCloser) *HostTransport {
	t := &HostTransport{
		port:         port,
		input:        NewFifoBuffer(1024),
		ackChan:      make(chan *Message, 1),
		responseChan: make(chan *Message, 32),
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
	}
	t.seq.Store(MessageDest)
	t.synced.Store(true)
	go t.readLoop()
	return t
}

// SendCommand sends one command and waits up to two seconds for its ACK
func (t *HostTransport) SendCommand(cmdID uint16, args func(output OutputBuffer)) error {
	return t.SendCommandWithTimeout(cmdID, args, 2*time.Second)
}

// SendCommandWithTimeout sends one command and waits for its ACK
func (t *HostTransport) SendCommandWithTimeout(cmdID uint16, args func(output OutputBuffer), timeout time.Duration) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	seq := uint8(t.seq.Load())
	msg, err := buildBlock(seq, cmdID, args)
	if err != nil {
		return err
	}
	if n, err := t.port.Write(msg); err != nil {
		return fmt.Errorf("write block: %w", err)
	} else if n != len(msg) {
		return fmt.Errorf("short write: %d/%d bytes", n, len(msg))
	}
	return t.waitForAck(NextSequence(seq), timeout)
}

// buildBlock frames a single command into a standalone block
func buildBlock(seq uint8, cmdID uint16, args func(output OutputBuffer)) ([]byte, error) {
	out := NewScratchOutput()
	encodeBlock(out, seq, func(o OutputBuffer) {
		EncodeVLQUint(o, uint32(cmdID))
		if args != nil {
			args(o)
		}
	})
	msg := out.Result()
	if len(msg) > MessageLengthMax {
		return nil, fmt.Errorf("message too long: %d bytes (max %d)", len(msg), MessageLengthMax)
	}
	block := make([]byte, len(msg))
	copy(block, msg)
	return block, nil
}

// waitForAck blocks until an ACK carrying want arrives. A NAK (any other
// sequence) is reported as an error.
func (t *HostTransport) waitForAck(want uint8, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case ack := <-t.ackChan:
		if ack.Sequence != want {
			return fmt.Errorf("nak: expected sequence 0x%02x, got 0x%02x", want, ack.Sequence)
		}
		t.seq.Store(uint32(want))
		return nil
	case <-timer.C:
		return fmt.Errorf("ack timeout after %v", timeout)
	case <-t.stopChan:
		return ErrTransportClosed
	}
}

// ReceiveResponse pops the oldest queued response
func (t *HostTransport) ReceiveResponse(timeout time.Duration) (*Message, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case resp := <-t.responseChan:
		return resp, nil
	case <-timer.C:
		return nil, fmt.Errorf("response timeout after %v", timeout)
	case <-t.stopChan:
		return nil, ErrTransportClosed
	}
}

// SetResponseHandler installs a callback run on the reader goroutine
func (t *HostTransport) SetResponseHandler(handler ResponseHandler) {
	t.handlerMu.Lock()
	t.handler = handler
	t.handlerMu.Unlock()
}

func (t *HostTransport) readLoop() {
	defer close(t.doneChan)
	buf := make([]byte, 256)
	for {
		select {
		case <-t.stopChan:
			return
		default:
		}
		n, err := t.port.Read(buf)
		if n > 0 {
			t.input.Write(buf[:n])
			t.processMessages()
		}
		if err == io.EOF {
			return
		}
		if err != nil {
			time.Sleep(10 * time.Millisecond)
		}
	}
}

// processMessages parses every complete block waiting in the input ring
func (t *HostTransport) processMessages() {
	t.readMu.Lock()
	defer t.readMu.Unlock()

	data := t.input.Data()
	total := len(data)
	for len(data) > 0 {
		if !t.synced.Load() {
			var found bool
			data, found = skipToSync(data)
			t.synced.Store(found)
			continue
		}
		if data[0] == MessageValueSync {
			data = data[1:]
			continue
		}
		n, status := scanFrame(data)
		if status == frameNeedMore {
			break
		}
		if status == frameBad {
			t.synced.Store(false)
			continue
		}
		payload := framePayload(data[:n])
		msg := &Message{
			Sequence: data[MessagePositionSeq],
			Payload:  append([]byte(nil), payload...),
		}
		data = data[n:]
		t.dispatchMessage(msg)
	}
	t.input.Pop(total - len(data))
}

func (t *HostTransport) dispatchMessage(msg *Message) {
	if len(msg.Payload) == 0 {
		select {
		case t.ackChan <- msg:
		default:
		}
		return
	}

	t.handlerMu.RLock()
	handler := t.handler
	t.handlerMu.RUnlock()
	if handler != nil {
		args := msg.Payload
		if id, err := DecodeVLQUint(&args); err == nil {
			_ = handler(uint16(id), &args)
		}
	}

	// keep the newest responses when nobody is draining the queue
	for {
		select {
		case t.responseChan <- msg:
			return
		default:
		}
		select {
		case <-t.responseChan:
		default:
		}
	}
}

// Close stops the reader and closes the port
func (t *HostTransport) Close() error {
	t.stopOnce.Do(func() { close(t.stopChan) })
	err := t.port.Close()
	<-t.doneChan
	return err
}

// Reset forgets sequence state and any buffered input
func (t *HostTransport) Reset() {
	t.synced.Store(true)
	t.seq.Store(MessageDest)
	for len(t.ackChan) > 0 {
		<-t.ackChan
	}
	for len(t.responseChan) > 0 {
		<-t.responseChan
	}
	t.input.Reset()
}

// CurrentSequence returns the sequence the next command will carry
func (t *HostTransport) CurrentSequence() uint8 {
	return uint8(t.seq.Load())
}
