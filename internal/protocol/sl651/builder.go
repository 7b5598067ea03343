package sl651

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hydronet-io/hydrogate/internal/codec"
)

// CommandElement is one element of a downlink command, referencing an
// ElementDef by its stable id.
type CommandElement struct {
	ID    string `json:"id" validate:"required"`
	Value string `json:"value" validate:"required"`
}

// CommandRequest describes a downlink command frame to build.
type CommandRequest struct {
	CenterCode string `json:"center_code" validate:"required,len=2,hexadecimal"`
	RemoteCode string `json:"remote_code" validate:"required,len=10,numeric"`
	Password   string `json:"password" validate:"required,len=4,numeric"`
	FuncCode   string `json:"func_code" validate:"required,len=2,hexadecimal"`

	Elements []CommandElement `json:"elements" validate:"dive"`
}

// Builder constructs downlink command and ack frames. The serial counter
// is shared across all links; frames never repeat a serial within one
// 16-bit wraparound.
type Builder struct {
	serial atomic.Uint32

	// now is an injectable clock for tests. Defaults to time.Now.
	now func() time.Time
}

// NewBuilder creates a builder.
func NewBuilder() *Builder {
	return &Builder{now: time.Now}
}

// NewBuilderWithClock creates a builder with a fixed clock, for tests.
func NewBuilderWithClock(now func() time.Time) *Builder {
	return &Builder{now: now}
}

// nextSerial draws the next 2-byte serial from the monotonic counter.
func (b *Builder) nextSerial() uint16 {
	return uint16(b.serial.Add(1))
}

// Command builds a downlink command frame. Element values are validated
// against their definitions; failures wrap ErrValidation.
//
// Downlink layout places remoteCode before centerCode. The parser reads
// centerCode at a fixed offset for every inbound frame, so a command
// frame fed back through the parser does not round-trip field-for-field.
func (b *Builder) Command(req CommandRequest, defs []ElementDef) ([]byte, error) {
	remote, err := codec.BCDWrite(req.RemoteCode)
	if err != nil || len(remote) != 5 {
		return nil, fmt.Errorf("%w: remote code %q", ErrValidation, req.RemoteCode)
	}
	center, err := codec.HexDecode(req.CenterCode)
	if err != nil || len(center) != 1 {
		return nil, fmt.Errorf("%w: center code %q", ErrValidation, req.CenterCode)
	}
	password, err := codec.BCDWrite(req.Password)
	if err != nil || len(password) != 2 {
		return nil, fmt.Errorf("%w: password %q", ErrValidation, req.Password)
	}
	funcCode, err := codec.HexDecode(req.FuncCode)
	if err != nil || len(funcCode) != 1 {
		return nil, fmt.Errorf("%w: func code %q", ErrValidation, req.FuncCode)
	}

	byID := make(map[string]ElementDef, len(defs))
	for _, def := range defs {
		byID[def.ID] = def
	}

	var elements []byte
	for _, el := range req.Elements {
		def, ok := byID[el.ID]
		if !ok {
			return nil, fmt.Errorf("%w: unknown element %q", ErrValidation, el.ID)
		}
		encoded, err := encodeValue(el.Value, def)
		if err != nil {
			return nil, err
		}
		guide, err := codec.HexDecode(def.GuideHex)
		if err != nil {
			return nil, fmt.Errorf("%w: element %q guide %q", ErrValidation, el.ID, def.GuideHex)
		}
		elements = append(elements, guide...)
		elements = append(elements, encoded...)
	}

	body := make([]byte, 0, 8+len(elements))
	body = codec.AppendUint16(body, b.nextSerial())
	body = append(body, codec.EncodeTime(b.now())...)
	body = append(body, elements...)

	frame := make([]byte, 0, HeaderLen+4+len(body))
	frame = append(frame, PreambleByte, PreambleByte)
	frame = append(frame, remote...)
	frame = append(frame, center...)
	frame = append(frame, password...)
	frame = append(frame, funcCode...)
	frame = codec.AppendUint16(frame, 0x8000|uint16(len(body)&0x0FFF))
	frame = append(frame, STXSingle)
	frame = append(frame, body...)
	frame = append(frame, ETXReply)

	return appendCRC(frame), nil
}

// Ack builds the downlink acknowledgement for a received uplink frame:
// echoed funcCode and serial, current report time, no reply expected.
func (b *Builder) Ack(received *Frame) ([]byte, error) {
	serial := []byte{0x00, 0x00}
	if received.Serial != "" {
		decoded, err := codec.HexDecode(received.Serial)
		if err == nil && len(decoded) == 2 {
			serial = decoded
		}
	}

	body := make([]byte, 0, 8)
	body = append(body, serial...)
	body = append(body, codec.EncodeTime(b.now())...)

	return b.ackFrame(received, received.FuncCode, body)
}

// LinkKeepAck builds the empty-body heartbeat acknowledgement.
func (b *Builder) LinkKeepAck(received *Frame) ([]byte, error) {
	return b.ackFrame(received, FuncLinkKeep, nil)
}

// ackFrame lays down the shared ack shape: centerCode first, echoed
// password, ETX 0x03.
func (b *Builder) ackFrame(received *Frame, funcCode string, body []byte) ([]byte, error) {
	center, err := codec.HexDecode(received.CenterCode)
	if err != nil || len(center) != 1 {
		return nil, fmt.Errorf("%w: center code %q", ErrValidation, received.CenterCode)
	}
	remote, err := codec.BCDWrite(received.RemoteCode)
	if err != nil || len(remote) != 5 {
		return nil, fmt.Errorf("%w: remote code %q", ErrValidation, received.RemoteCode)
	}
	password, err := codec.BCDWrite(received.Password)
	if err != nil || len(password) != 2 {
		return nil, fmt.Errorf("%w: password %q", ErrValidation, received.Password)
	}
	fc, err := codec.HexDecode(funcCode)
	if err != nil || len(fc) != 1 {
		return nil, fmt.Errorf("%w: func code %q", ErrValidation, funcCode)
	}

	frame := make([]byte, 0, HeaderLen+4+len(body))
	frame = append(frame, PreambleByte, PreambleByte)
	frame = append(frame, center...)
	frame = append(frame, remote...)
	frame = append(frame, password...)
	frame = append(frame, fc...)
	frame = codec.AppendUint16(frame, 0x8000|uint16(len(body)&0x0FFF))
	frame = append(frame, STXSingle)
	frame = append(frame, body...)
	frame = append(frame, ETXNoReply)

	return appendCRC(frame), nil
}

// appendCRC computes CRC-16/Modbus over the frame so far and appends it
// low byte first.
func appendCRC(frame []byte) []byte {
	crc := codec.CRC16(frame)
	return append(frame, byte(crc), byte(crc>>8))
}

// encodeValue renders one command element value according to its
// definition. BCD elements reject non-numeric and non-finite inputs;
// HEX elements reject non-hex characters and are left-padded with zeros
// to 2*length digits.
func encodeValue(value string, def ElementDef) ([]byte, error) {
	switch def.Encoding {
	case EncodingBCD:
		v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: element %q value %q is not numeric", ErrValidation, def.ID, value)
		}
		encoded, err := codec.BCDEncodeValue(v, def.Length, def.Decimals)
		if err != nil {
			return nil, fmt.Errorf("%w: element %q value %q", ErrValidation, def.ID, value)
		}
		return encoded, nil

	case EncodingHex, EncodingDict:
		want := 2 * def.Length
		if len(value) > want {
			return nil, fmt.Errorf("%w: element %q value longer than %d hex digits", ErrValidation, def.ID, want)
		}
		padded := strings.Repeat("0", want-len(value)) + value
		decoded, err := codec.HexDecode(padded)
		if err != nil {
			return nil, fmt.Errorf("%w: element %q value %q is not hex", ErrValidation, def.ID, value)
		}
		return decoded, nil

	default:
		return nil, fmt.Errorf("%w: element %q has unsupported encoding %q for commands", ErrValidation, def.ID, def.Encoding)
	}
}
