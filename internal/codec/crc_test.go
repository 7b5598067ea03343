package codec

import "testing"

func TestCRC16KnownVector(t *testing.T) {
	// CRC-16/Modbus of 01 02 03 04 is 0x2BA1.
	if got := CRC16([]byte{0x01, 0x02, 0x03, 0x04}); got != 0x2BA1 {
		t.Errorf("got 0x%04X, want 0x2BA1", got)
	}
}

func TestCRC16Empty(t *testing.T) {
	if got := CRC16(nil); got != 0xFFFF {
		t.Errorf("got 0x%04X, want seed 0xFFFF", got)
	}
}

func TestCRC16Incremental(t *testing.T) {
	// Appending the little-endian CRC to the payload and re-checksumming
	// yields zero for this reflected polynomial.
	payload := []byte("hydrogate")
	crc := CRC16(payload)
	framed := append(append([]byte{}, payload...), byte(crc), byte(crc>>8))
	if got := CRC16(framed); got != 0 {
		t.Errorf("self-check got 0x%04X, want 0", got)
	}
}

func BenchmarkCRC16(b *testing.B) {
	data := make([]byte, 512)
	for i := range data {
		data[i] = byte(i)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		CRC16(data)
	}
}
