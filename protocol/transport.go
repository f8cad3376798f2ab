package protocol

import "sync/atomic"

// CommandHandler decodes and runs one command. data points at the
// command's arguments and must be advanced past them.
type CommandHandler func(cmdID uint16, data *[]byte) error

// Transport is the firmware side of the link: it validates blocks from the
// host, dispatches each command in them, acknowledges every block and
// frames outgoing responses.
type Transport struct {
	synced  atomic.Bool
	nextSeq atomic.Uint32 // next expected host sequence (0x10-0x1F)

	output  OutputBuffer
	handler CommandHandler

	resetCallback func()
	flushCallback func()
}

// NewTransport creates a synchronized transport writing to output
func NewTransport(output OutputBuffer, handler CommandHandler) *Transport {
	t := &Transport{output: output, handler: handler}
	t.synced.Store(true)
	t.nextSeq.Store(MessageDest)
	return t
}

// Receive consumes complete blocks from input. Partial blocks are left in
// place for the next call.
func (t *Transport) Receive(input InputBuffer) {
	data := input.Data()
	total := len(data)

	for len(data) > 0 {
		if !t.synced.Load() {
			var found bool
			data, found = skipToSync(data)
			if found {
				t.synced.Store(true)
				t.encodeAckNak()
			}
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

		block := data[:n]
		data = data[n:]
		seq := block[MessagePositionSeq]

		expected := uint8(t.nextSeq.Load())
		if seq == MessageDest && expected != MessageDest {
			// host restarted its sequence
			expected = MessageDest
			t.nextSeq.Store(MessageDest)
			if t.resetCallback != nil {
				t.resetCallback()
			}
		}
		if seq == expected {
			t.nextSeq.Store(uint32(NextSequence(seq)))
			_ = t.parseFrame(framePayload(block))
		}
		// an out-of-sequence block is answered with the expected sequence,
		// which the host reads as a NAK
		t.encodeAckNak()
	}

	if consumed := total - len(data); consumed > 0 {
		input.Pop(consumed)
	}
}

// parseFrame runs every command packed in one block payload
func (t *Transport) parseFrame(frame []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			t.synced.Store(false)
		}
	}()

	for len(frame) > 0 {
		cmdID, err := DecodeVLQUint(&frame)
		if err != nil {
			t.synced.Store(false)
			return err
		}
		if t.handler == nil {
			continue
		}
		if err := t.handler(uint16(cmdID), &frame); err != nil {
			return err
		}
	}
	return nil
}

// encodeAckNak writes an empty block carrying the next expected sequence
// and flushes it immediately; the host's serial queue waits on it.
func (t *Transport) encodeAckNak() {
	encodeBlock(t.output, uint8(t.nextSeq.Load()), nil)
	if t.flushCallback != nil {
		t.flushCallback()
	}
}

// EncodeFrame appends a response block whose payload is written by body
func (t *Transport) EncodeFrame(body func(output OutputBuffer)) {
	encodeBlock(t.output, uint8(t.nextSeq.Load()), body)
}

// SendCommand frames one message id followed by its encoded arguments
func (t *Transport) SendCommand(cmdID uint16, args func(output OutputBuffer)) {
	t.EncodeFrame(func(output OutputBuffer) {
		EncodeVLQUint(output, uint32(cmdID))
		if args != nil {
			args(output)
		}
	})
}

// Reset returns the transport to its power-on state
func (t *Transport) Reset() {
	t.synced.Store(true)
	t.nextSeq.Store(MessageDest)
	if t.resetCallback != nil {
		t.resetCallback()
	}
}

// SetResetCallback is called when the host restarts its sequence
func (t *Transport) SetResetCallback(callback func()) {
	t.resetCallback = callback
}

// SetFlushCallback is called after each ACK/NAK is queued
func (t *Transport) SetFlushCallback(callback func()) {
	t.flushCallback = callback
}
