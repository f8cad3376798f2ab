// Package protocol implements the Klipper serial protocol used between the
// ADS1x18 firmware and its host: VLQ argument encoding, message blocks with
// CRC16 trailers, and the sequence/ACK handshake.
package protocol

// Version is the firmware protocol implementation version
const Version = "0.2.0"

// Message block layout
//
//	<len> <seq> <payload ...> <crc hi> <crc lo> <sync>
const (
	MessageHeaderSize  = 2
	MessageTrailerSize = 3
	MessageLengthMin   = MessageHeaderSize + MessageTrailerSize
	MessageLengthMax   = 64
	MessagePayloadMax  = MessageLengthMax - MessageLengthMin

	MessagePositionLen = 0
	MessagePositionSeq = 1
	MessageTrailerCRC  = 3
	MessageTrailerSync = 1

	MessageValueSync = 0x7E
	MessageDest      = 0x10
	MessageSeqMask   = 0x0F

	// ScratchSize bounds a single ScratchOutput; several frames may be
	// queued in one buffer before the target flushes it.
	ScratchSize = 512
)

// NextSequence returns the sequence byte that follows seq.
func NextSequence(seq uint8) uint8 {
	return ((seq + 1) & MessageSeqMask) | MessageDest
}
