package protocol

import "testing"

func TestCRC16Empty(t *testing.T) {
	if got := CRC16(nil); got != 0xFFFF {
		t.Errorf("CRC16 of no data should be the seed 0xFFFF, got 0x%04X", got)
	}
}

func TestCRC16Sensitivity(t *testing.T) {
	a := CRC16([]byte{0x01, 0x02, 0x03})
	b := CRC16([]byte{0x01, 0x02, 0x04})
	c := CRC16([]byte{0x02, 0x01, 0x03})
	if a == b || a == c {
		t.Errorf("expected distinct checksums, got %04X %04X %04X", a, b, c)
	}
	if a != CRC16([]byte{0x01, 0x02, 0x03}) {
		t.Error("CRC16 is not deterministic")
	}
}

func TestCRCTrailer(t *testing.T) {
	data := []byte{5, MessageDest}
	crc := CRC16(data)
	tr := crcTrailer(data)
	if tr[0] != uint8(crc>>8) || tr[1] != uint8(crc) || tr[2] != MessageValueSync {
		t.Errorf("unexpected trailer %v for crc 0x%04X", tr, crc)
	}
}
