package sl651

// Element value encodings supported by the payload dictionaries.
type Encoding string

const (
	EncodingBCD  Encoding = "BCD"
	EncodingTime Encoding = "TIME_YYMMDDHHMMSS"
	EncodingJPEG Encoding = "JPEG"
	EncodingDict Encoding = "DICT"
	EncodingHex  Encoding = "HEX"
)

// InvalidJPEG is the sentinel emitted for JPEG elements whose payload
// does not start with the FF D8 magic.
const InvalidJPEG = "INVALID_JPEG"

// ElementDef describes one telemetry field inside a frame body.
type ElementDef struct {
	// ID is the stable identifier commands refer to.
	ID string

	// GuideHex is the byte prefix that marks the element, as uppercase hex.
	GuideHex string

	// Encoding selects the value codec.
	Encoding Encoding

	// Length is the value length in bytes. 0 means the element greedily
	// consumes the remainder of the body and must be the last element.
	Length int

	// Decimals is the BCD scaling factor, clamped to [0, 8].
	Decimals int

	// Unit and Name annotate decoded values for display.
	Unit string
	Name string
}

// DeviceConfig is the per-device decoding configuration consumed by the
// parser. It is owned by the configuration subsystem; the parser only
// reads it.
type DeviceConfig struct {
	// DeviceID is the persistence identifier resolved for the record.
	DeviceID string

	// Timezone is the offset suffix appended to report times, e.g. "+08:00".
	Timezone string

	// Elements maps funcCode to the element list of uplink bodies.
	Elements map[string][]ElementDef

	// ResponseElements optionally maps a downlink funcCode to the element
	// list used when parsing the device's reply to that command.
	ResponseElements map[string][]ElementDef

	// FuncNames maps funcCode to a display name.
	FuncNames map[string]string

	// FuncDirections maps funcCode to "up" or "down".
	FuncDirections map[string]string
}

// ElementsFor returns the element list used to decode a frame with the
// given funcCode. Uplink frames for a down-defined funcCode (the ack of
// a command) prefer the configured response-element list; with neither a
// response list nor an uplink list the body decodes to nothing.
func (c *DeviceConfig) ElementsFor(funcCode string) []ElementDef {
	if c == nil {
		return nil
	}
	if c.FuncDirections[funcCode] == "down" {
		if defs, ok := c.ResponseElements[funcCode]; ok {
			return defs
		}
	}
	return c.Elements[funcCode]
}

// FuncName returns the display name for funcCode, or "" if unknown.
func (c *DeviceConfig) FuncName(funcCode string) string {
	if c == nil {
		return ""
	}
	return c.FuncNames[funcCode]
}
