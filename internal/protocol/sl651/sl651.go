// Package sl651 implements the SL651 hydrological telemetry protocol:
// frame delimiting over a TCP byte stream, header/body parsing with
// BCD/CRC validation, element decoding against per-device configuration,
// multi-packet reassembly and downlink frame construction.
//
// Wire format (big-endian, offsets from the preamble):
//
//	0   2  preamble 7E 7E
//	2   1  centerCode
//	3   5  remoteCode (BCD, 10 digits)
//	8   2  password (BCD, 4 digits)
//	10  1  funcCode
//	11  2  length field: high nibble = direction (0 up / 8 down),
//	       low 12 bits = body length
//	13  1  STX (02 single, 16 multi)
//	14  .. body (multi mode: first 3 bytes are totalPk/seqPk indices)
//	..  1  ETX (03 no-reply, 05 reply-required)
//	..  2  CRC-16/Modbus over every preceding byte, low byte first
//
// Downlink frames built by this package place remoteCode before
// centerCode; the parser reads centerCode at offset 2 for every inbound
// frame regardless of direction. The asymmetry is part of the protocol.
package sl651

import (
	"errors"
	"time"
)

// Protocol is the tag stored with every persisted telemetry record.
const Protocol = "SL651"

// Frame delimiters and sizes.
const (
	PreambleByte = 0x7E
	HeaderLen    = 13 // preamble through length field

	STXSingle = 0x02
	STXMulti  = 0x16

	ETXNoReply  = 0x03
	ETXReply    = 0x05

	// MinFrameLen is a frame with an empty body: header + STX + ETX + CRC.
	MinFrameLen = HeaderLen + 4

	// MaxBufferSize caps the per-link framer buffer.
	MaxBufferSize = 64 * 1024

	// MaxSessionCount caps the multi-packet reassembly table.
	MaxSessionCount = 100

	// DefaultSessionTimeout is the multi-packet session ttl.
	DefaultSessionTimeout = 15 * time.Minute
)

// Well-known function codes.
const (
	FuncLinkKeep = "2F" // heartbeat
	FuncAckOK    = "E1"
	FuncAckError = "E2"
)

// Direction of a frame on the wire.
type Direction uint8

const (
	DirectionUp   Direction = iota // device -> center
	DirectionDown                  // center -> device
)

func (d Direction) String() string {
	if d == DirectionDown {
		return "down"
	}
	return "up"
}

// Sentinel errors surfaced by the protocol layer.
var (
	// ErrBufferOverflow reports a per-link framer buffer that exceeded
	// MaxBufferSize and was cleared.
	ErrBufferOverflow = errors.New("sl651: framer buffer overflow")

	// ErrSessionDropped reports a multi-packet fragment dropped because
	// the session table is full.
	ErrSessionDropped = errors.New("sl651: session table full, fragment dropped")

	// ErrValidation reports rejected input to the builder.
	ErrValidation = errors.New("sl651: validation error")
)

// Frame is one parsed SL651 frame. CRC failures do not abort parsing;
// the frame is returned with CRCValid=false so it can still be persisted
// for diagnostics.
type Frame struct {
	Direction  Direction
	CenterCode string // 1 byte as uppercase hex
	RemoteCode string // 10 BCD digits
	Password   string // 4 BCD digits
	FuncCode   string // 1 byte as uppercase hex

	Body []byte // effective body (multi mode: packet indices stripped)

	CRCReceived   uint16
	CRCCalculated uint16
	CRCValid      bool

	// RawFrames holds the original bytes of every frame that produced
	// this Frame: one entry for a single-packet frame, one per packet in
	// sequence order for a reassembled multi-packet transaction.
	RawFrames [][]byte

	Multi      bool
	TotalPk    int
	SeqPk      int
	LastPacket bool

	ETX byte

	// Serial is the 2-byte serial number carried by uplink bodies,
	// rendered as 4 hex characters. Empty when absent.
	Serial string
}

// ReplyRequired reports whether the device expects an ack for this frame.
func (f *Frame) ReplyRequired() bool {
	return f.ETX == ETXReply
}
