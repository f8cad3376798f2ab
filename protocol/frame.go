package protocol

// frameStatus is the outcome of inspecting the front of a receive buffer
type frameStatus uint8

const (
	frameOK frameStatus = iota
	frameNeedMore
	frameBad
)

// scanFrame checks whether data starts with a complete, valid message
// block. On frameOK the block length is returned.
func scanFrame(data []byte) (int, frameStatus) {
	if len(data) < MessageLengthMin {
		return 0, frameNeedMore
	}
	n := int(data[MessagePositionLen])
	if n < MessageLengthMin || n > MessageLengthMax {
		return 0, frameBad
	}
	if data[MessagePositionSeq]&^MessageSeqMask != MessageDest {
		return 0, frameBad
	}
	if len(data) < n {
		return 0, frameNeedMore
	}
	if data[n-MessageTrailerSync] != MessageValueSync {
		return 0, frameBad
	}
	got := uint16(data[n-MessageTrailerCRC])<<8 | uint16(data[n-MessageTrailerCRC+1])
	if got != CRC16(data[:n-MessageTrailerSize]) {
		return 0, frameBad
	}
	return n, frameOK
}

// framePayload returns the bytes between header and trailer of a block
// previously accepted by scanFrame.
func framePayload(block []byte) []byte {
	return block[MessageHeaderSize : len(block)-MessageTrailerSize]
}

// skipToSync discards bytes up to and including the next sync byte. ok is
// false when no sync byte was found and all of data was dropped.
func skipToSync(data []byte) (rest []byte, ok bool) {
	for i, b := range data {
		if b == MessageValueSync {
			return data[i+1:], true
		}
	}
	return nil, false
}

// encodeBlock appends a complete block to output. body writes the payload.
func encodeBlock(output OutputBuffer, seq uint8, body func(OutputBuffer)) {
	start := output.CurPosition()
	output.Output([]byte{0, seq})
	if body != nil {
		body(output)
	}
	output.Update(start, uint8(len(output.DataSince(start))+MessageTrailerSize))
	trailer := crcTrailer(output.DataSince(start))
	output.Output(trailer[:])
}
