package protocol

// CRC16 computes the CCITT-style checksum Klipper appends to every block.
func CRC16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		b ^= uint8(crc & 0xFF)
		b ^= b << 4
		w := uint16(b)
		crc = (w<<8 | crc>>8) ^ (w >> 4) ^ (w << 3)
	}
	return crc
}

// crcTrailer returns the three trailer bytes for a block whose header and
// payload are in data.
func crcTrailer(data []byte) [MessageTrailerSize]byte {
	crc := CRC16(data)
	return [MessageTrailerSize]byte{uint8(crc >> 8), uint8(crc), MessageValueSync}
}
