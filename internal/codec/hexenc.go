package codec

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

const hexDigits = "0123456789ABCDEF"

// HexUpper renders data as uppercase hex, two characters per byte.
// Runs on the hot receive path, so it appends via a lookup table rather
// than fmt.
func HexUpper(data []byte) string {
	out := make([]byte, 0, 2*len(data))
	for _, b := range data {
		out = append(out, hexDigits[b>>4], hexDigits[b&0x0F])
	}
	return string(out)
}

// HexDecode parses an even-length hex string (upper or lower case) into
// bytes.
func HexDecode(s string) ([]byte, error) {
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("hex: odd-length string %q", s)
	}

	out := make([]byte, len(s)/2)
	for i := 0; i < len(s); i += 2 {
		hi, ok1 := hexNibble(s[i])
		lo, ok2 := hexNibble(s[i+1])
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("hex: invalid character in %q", s)
		}
		out[i/2] = hi<<4 | lo
	}
	return out, nil
}

func hexNibble(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	default:
		return 0, false
	}
}

// Base64 encodes data with the standard alphabet and '=' padding.
func Base64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// Base64Decode is the inverse of Base64.
func Base64Decode(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

// AppendUint16 appends v big-endian to b.
func AppendUint16(b []byte, v uint16) []byte {
	return append(b, byte(v>>8), byte(v))
}

// PutUint16 writes v big-endian into the first two bytes of b.
func PutUint16(b []byte, v uint16) {
	binary.BigEndian.PutUint16(b, v)
}

// Uint16 reads a big-endian 16-bit integer from the first two bytes of b.
func Uint16(b []byte) uint16 {
	return binary.BigEndian.Uint16(b)
}
