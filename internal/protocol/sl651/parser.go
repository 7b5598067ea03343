package sl651

import (
	"bytes"
	"fmt"
	"time"

	"github.com/hydronet-io/hydrogate/internal/codec"
)

// Result is the typed output handed to persistence for one completed
// single frame or reassembled multi-packet transaction.
type Result struct {
	DeviceID   string `json:"device_id"`
	LinkID     string `json:"link_id"`
	Protocol   string `json:"protocol"`
	FuncCode   string `json:"func_code"`
	ReportTime string `json:"report_time"`

	Data *Payload `json:"data"`

	// CommandResponse is set for uplink frames that must be correlated
	// with an outstanding command; the correlation id is the database
	// row id assigned on persistence.
	CommandResponse *CommandResponse `json:"command_response,omitempty"`
}

// Payload is the structured record body persisted with each frame.
type Payload struct {
	FuncCode  string                  `json:"funcCode"`
	FuncName  string                  `json:"funcName,omitempty"`
	Direction string                  `json:"direction"`
	Raw       []string                `json:"raw"`
	Frame     FrameMeta               `json:"frame"`
	Data      map[string]ElementValue `json:"data"`
	Unparsed  string                  `json:"unparsed,omitempty"`
}

// FrameMeta carries the frame header fields kept for diagnostics.
type FrameMeta struct {
	CenterCode   string `json:"centerCode"`
	RemoteCode   string `json:"remoteCode"`
	Password     string `json:"password"`
	CRCValid     bool   `json:"crcValid"`
	SerialNumber string `json:"serialNumber,omitempty"`
}

// ElementValue is one decoded telemetry field, keyed in Payload.Data by
// "funcCode_guideHex".
type ElementValue struct {
	Value string `json:"value"`
	Name  string `json:"name,omitempty"`
	Unit  string `json:"unit,omitempty"`
	Type  string `json:"type"`
}

// CommandResponse marks an uplink frame as the outcome of a downlink
// command. FuncAckError is the only explicit failure.
type CommandResponse struct {
	Success bool `json:"success"`
}

// ParserConfig tunes the multi-packet reassembly table.
type ParserConfig struct {
	SessionTimeout time.Duration
	MaxSessions    int

	// Now is an injectable clock for tests. Defaults to time.Now.
	Now func() time.Time
}

// Parser turns complete candidate frames into Frames and Results. It is
// safe for concurrent use by multiple link workers.
type Parser struct {
	stats    Stats
	sessions *sessionTable
}

// NewParser creates a parser with the given reassembly configuration.
func NewParser(cfg ParserConfig) *Parser {
	return &Parser{
		sessions: newSessionTable(cfg.MaxSessions, cfg.SessionTimeout, cfg.Now),
	}
}

// Stats exposes the parser counters.
func (p *Parser) Stats() *Stats {
	return &p.stats
}

// SessionCount returns the number of open multi-packet sessions.
func (p *Parser) SessionCount() int {
	return p.sessions.size()
}

// Parse decodes one complete candidate frame as produced by the Framer.
// CRC failure is not an error: the frame is returned with CRCValid=false
// and the crcErrors counter incremented. Structural failures increment
// parseErrors and discard the frame.
func (p *Parser) Parse(raw []byte) (*Frame, error) {
	frame, err := parseFrame(raw)
	if err != nil {
		p.stats.ParseErrors.Add(1)
		return nil, err
	}

	p.stats.FramesParsed.Add(1)
	if !frame.CRCValid {
		p.stats.CRCErrors.Add(1)
	}
	return frame, nil
}

// Reassemble feeds a multi-packet fragment into the session table.
// It returns (merged, true) once the final fragment arrives, where
// merged is a synthesized uplink frame carrying the concatenated body
// and the per-packet raw frames in sequence order. Fragments of an
// incomplete transaction return (nil, false). A fragment dropped by the
// full table returns (nil, false) with ErrSessionDropped.
//
// Single-packet frames pass through unchanged.
func (p *Parser) Reassemble(f *Frame) (*Frame, bool, error) {
	if !f.Multi {
		return f, true, nil
	}

	bodies, raws, outcome, expired := p.sessions.add(f)
	if expired > 0 {
		p.stats.MultiPacketExpired.Add(uint64(expired))
	}

	switch outcome {
	case addDropped:
		p.stats.SessionsDropped.Add(1)
		return nil, false, ErrSessionDropped
	case addPending:
		return nil, false, nil
	}

	merged := &Frame{
		Direction:  f.Direction,
		CenterCode: f.CenterCode,
		RemoteCode: f.RemoteCode,
		Password:   f.Password,
		FuncCode:   f.FuncCode,
		Body:       bytes.Join(bodies, nil),
		CRCValid:   f.CRCValid,
		RawFrames:  raws,
		TotalPk:    f.TotalPk,
		LastPacket: true,
		ETX:        f.ETX,
	}
	if len(merged.Body) >= 2 && merged.Direction == DirectionUp {
		merged.Serial = codec.HexUpper(merged.Body[:2])
	}

	p.stats.MultiPacketCompleted.Add(1)
	return merged, true, nil
}

// Decode resolves the frame body against the device configuration and
// produces the persistable result. dev carries the element dictionaries
// and the timezone suffix; linkId names the link the frame arrived on.
func (p *Parser) Decode(f *Frame, dev *DeviceConfig, linkID string) *Result {
	data, unparsed := decodeElements(f, dev.ElementsFor(f.FuncCode))

	raw := make([]string, 0, len(f.RawFrames))
	for _, rf := range f.RawFrames {
		raw = append(raw, codec.HexUpper(rf))
	}

	payload := &Payload{
		FuncCode:  f.FuncCode,
		FuncName:  dev.FuncName(f.FuncCode),
		Direction: f.Direction.String(),
		Raw:       raw,
		Frame: FrameMeta{
			CenterCode:   f.CenterCode,
			RemoteCode:   f.RemoteCode,
			Password:     f.Password,
			CRCValid:     f.CRCValid,
			SerialNumber: f.Serial,
		},
		Data:     data,
		Unparsed: unparsed,
	}

	result := &Result{
		DeviceID:   dev.DeviceID,
		LinkID:     linkID,
		Protocol:   Protocol,
		FuncCode:   f.FuncCode,
		ReportTime: reportTime(f, dev.Timezone),
		Data:       payload,
	}

	if f.Direction == DirectionUp {
		result.CommandResponse = &CommandResponse{Success: f.FuncCode != FuncAckError}
	}

	return result
}

// parseFrame performs the structural decode of one candidate frame.
func parseFrame(raw []byte) (*Frame, error) {
	if len(raw) < MinFrameLen {
		return nil, fmt.Errorf("sl651: frame too short (%d bytes)", len(raw))
	}
	if raw[0] != PreambleByte || raw[1] != PreambleByte {
		return nil, fmt.Errorf("sl651: missing preamble")
	}

	lenField := codec.Uint16(raw[11:13])
	bodyLen := int(lenField & 0x0FFF)

	total := HeaderLen + 1 + bodyLen + 1 + 2
	if len(raw) != total {
		return nil, fmt.Errorf("sl651: length field %d does not match frame size %d", bodyLen, len(raw))
	}

	f := &Frame{
		CenterCode: codec.HexUpper(raw[2:3]),
		RemoteCode: codec.BCDRead(raw, 3, 5),
		Password:   codec.BCDRead(raw, 8, 2),
		FuncCode:   codec.HexUpper(raw[10:11]),
		RawFrames:  [][]byte{raw},
		ETX:        raw[HeaderLen+1+bodyLen],
	}
	if lenField&0x8000 != 0 {
		f.Direction = DirectionDown
	}

	stx := raw[HeaderLen]
	bodyStart := HeaderLen + 1
	effective := bodyLen

	switch stx {
	case STXSingle:
	case STXMulti:
		if bodyLen < 3 {
			return nil, fmt.Errorf("sl651: multi-packet frame body too short")
		}
		// totalPk and seqPk are 12-bit fields packed into 3 bytes.
		idx := raw[bodyStart : bodyStart+3]
		f.Multi = true
		f.TotalPk = int(idx[0])<<4 | int(idx[1])>>4
		f.SeqPk = int(idx[1]&0x0F)<<8 | int(idx[2])
		f.LastPacket = f.SeqPk == f.TotalPk
		bodyStart += 3
		effective -= 3
	default:
		return nil, fmt.Errorf("sl651: unknown STX 0x%02X", stx)
	}

	f.Body = make([]byte, effective)
	copy(f.Body, raw[bodyStart:bodyStart+effective])

	if f.Direction == DirectionUp && len(f.Body) >= 2 {
		f.Serial = codec.HexUpper(f.Body[:2])
	}

	// CRC trailer is little-endian per the Modbus convention.
	f.CRCReceived = uint16(raw[total-2]) | uint16(raw[total-1])<<8
	f.CRCCalculated = codec.CRC16(raw[:total-2])
	f.CRCValid = f.CRCReceived == f.CRCCalculated

	return f, nil
}

// reportTime extracts the 6-byte BCD report time that follows the serial
// number in an uplink body and suffixes the device timezone. A body too
// short to carry a timestamp yields "".
func reportTime(f *Frame, tz string) string {
	if len(f.Body) < 8 {
		return ""
	}
	digits := codec.BCDRead(f.Body, 2, 6)
	formatted, err := codec.DecodeTime(digits)
	if err != nil {
		return ""
	}
	if tz == "" {
		tz = "+08:00"
	}
	return formatted + tz
}

// decodeElements walks the element dictionary across the body in order.
// Elements whose guide bytes are not found are skipped silently (devices
// omit optional fields). Trailing bytes no element consumed are returned
// as uppercase hex for diagnostics.
func decodeElements(f *Frame, defs []ElementDef) (map[string]ElementValue, string) {
	data := make(map[string]ElementValue)

	body := f.Body
	offset := 0
	if f.Direction == DirectionUp && len(body) >= 8 {
		offset = 8 // skip serial + report time
	}

	consumed := offset
	for _, def := range defs {
		guide, err := codec.HexDecode(def.GuideHex)
		if err != nil || len(guide) == 0 {
			continue
		}

		idx := bytes.Index(body[offset:], guide)
		if idx < 0 {
			continue
		}
		valStart := offset + idx + len(guide)

		var value []byte
		if def.Length == 0 {
			// Variable-length elements greedily take the remainder.
			value = body[valStart:]
			offset = len(body)
		} else {
			if valStart+def.Length > len(body) {
				continue
			}
			value = body[valStart : valStart+def.Length]
			offset = valStart + def.Length
		}
		if offset > consumed {
			consumed = offset
		}

		data[f.FuncCode+"_"+def.GuideHex] = ElementValue{
			Value: decodeValue(value, def),
			Name:  def.Name,
			Unit:  def.Unit,
			Type:  string(def.Encoding),
		}

		if def.Length == 0 {
			break
		}
	}

	var unparsed string
	if consumed < len(body) {
		unparsed = codec.HexUpper(body[consumed:])
	}
	return data, unparsed
}

// decodeValue renders one element value according to its encoding.
func decodeValue(value []byte, def ElementDef) string {
	switch def.Encoding {
	case EncodingBCD:
		digits := codec.BCDRead(value, 0, len(value))
		return codec.BCDDecodeValue(digits, def.Decimals)

	case EncodingTime:
		digits := codec.BCDRead(value, 0, len(value))
		formatted, err := codec.DecodeTime(digits)
		if err != nil {
			return ""
		}
		return formatted

	case EncodingJPEG:
		if len(value) < 2 || value[0] != 0xFF || value[1] != 0xD8 {
			return InvalidJPEG
		}
		return "data:image/jpeg;base64," + codec.Base64(value)

	case EncodingDict, EncodingHex:
		return codec.HexUpper(value)

	default:
		return codec.HexUpper(value)
	}
}
