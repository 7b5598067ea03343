package sl651

import (
	"testing"

	"github.com/hydronet-io/hydrogate/internal/codec"
)

// frameSpec describes a wire frame for tests.
type frameSpec struct {
	centerCode byte
	remoteCode string
	password   string
	funcCode   byte
	down       bool
	stx        byte
	pkIndex    []byte // 3 packet-index bytes for multi frames
	body       []byte
	etx        byte
	corruptCRC bool
}

// makeFrame assembles a wire frame from the spec, computing length field
// and CRC.
func makeFrame(t *testing.T, s frameSpec) []byte {
	t.Helper()

	if s.remoteCode == "" {
		s.remoteCode = "1234567890"
	}
	if s.password == "" {
		s.password = "0000"
	}
	if s.stx == 0 {
		s.stx = STXSingle
	}
	if s.etx == 0 {
		s.etx = ETXNoReply
	}

	remote, err := codec.BCDWrite(s.remoteCode)
	if err != nil {
		t.Fatal(err)
	}
	password, err := codec.BCDWrite(s.password)
	if err != nil {
		t.Fatal(err)
	}

	bodyLen := len(s.pkIndex) + len(s.body)
	lenField := uint16(bodyLen & 0x0FFF)
	if s.down {
		lenField |= 0x8000
	}

	frame := []byte{PreambleByte, PreambleByte, s.centerCode}
	frame = append(frame, remote...)
	frame = append(frame, password...)
	frame = append(frame, s.funcCode)
	frame = codec.AppendUint16(frame, lenField)
	frame = append(frame, s.stx)
	frame = append(frame, s.pkIndex...)
	frame = append(frame, s.body...)
	frame = append(frame, s.etx)

	crc := codec.CRC16(frame)
	if s.corruptCRC {
		crc ^= 0xFFFF
	}
	return append(frame, byte(crc), byte(crc>>8))
}

// uplinkBody builds a standard uplink body: 2-byte serial, 6-byte BCD
// report time, then elements.
func uplinkBody(t *testing.T, serial uint16, timeDigits string, elements []byte) []byte {
	t.Helper()

	body := codec.AppendUint16(nil, serial)
	ts, err := codec.BCDWrite(timeDigits)
	if err != nil {
		t.Fatal(err)
	}
	body = append(body, ts...)
	return append(body, elements...)
}

// pkIndex packs 12-bit total and sequence numbers into the 3 multi-packet
// index bytes.
func pkIndex(total, seq int) []byte {
	return []byte{
		byte(total >> 4),
		byte(total&0x0F)<<4 | byte(seq>>8),
		byte(seq),
	}
}
