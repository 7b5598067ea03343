// Package codec implements the byte-level codecs shared by the SL651
// framer, parser and builder: BCD digit packing, BCD-scaled numeric values,
// BCD wall-clock timestamps, CRC-16/Modbus and uppercase hex.
//
// All functions are pure and safe for concurrent use.
package codec

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// MaxDecimalDigits bounds the BCD decimal scaling factor. Values outside
// [0, MaxDecimalDigits] are clamped.
const MaxDecimalDigits = 8

// BCDRead decodes length bytes starting at offset into a decimal digit
// string of 2*length characters, high nibble first.
//
// Field devices occasionally emit nibbles above 9; those are clamped to '9'
// so the result is always a parseable digit string.
func BCDRead(data []byte, offset, length int) string {
	if offset < 0 || length <= 0 || offset+length > len(data) {
		return ""
	}

	var sb strings.Builder
	sb.Grow(2 * length)
	for _, b := range data[offset : offset+length] {
		hi := b >> 4
		lo := b & 0x0F
		if hi > 9 {
			hi = 9
		}
		if lo > 9 {
			lo = 9
		}
		sb.WriteByte('0' + hi)
		sb.WriteByte('0' + lo)
	}
	return sb.String()
}

// BCDWrite packs a decimal digit string into BCD bytes, high nibble first.
// Odd-length input is left-padded with '0'. Non-digit characters are
// rejected.
func BCDWrite(digits string) ([]byte, error) {
	if len(digits)%2 != 0 {
		digits = "0" + digits
	}

	out := make([]byte, len(digits)/2)
	for i := 0; i < len(digits); i += 2 {
		hi := digits[i]
		lo := digits[i+1]
		if hi < '0' || hi > '9' || lo < '0' || lo > '9' {
			return nil, fmt.Errorf("bcd: non-digit character in %q", digits)
		}
		out[i/2] = (hi-'0')<<4 | (lo - '0')
	}
	return out, nil
}

// BCDEncodeValue renders value as round(|value| * 10^digits), left-padded
// or right-truncated to 2*byteLen decimal digits, then BCD-packs it.
// digits is clamped to [0, MaxDecimalDigits].
func BCDEncodeValue(value float64, byteLen, digits int) ([]byte, error) {
	if byteLen <= 0 {
		return nil, fmt.Errorf("bcd: invalid byte length %d", byteLen)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return nil, fmt.Errorf("bcd: non-finite value")
	}

	if digits < 0 {
		digits = 0
	} else if digits > MaxDecimalDigits {
		digits = MaxDecimalDigits
	}

	scaled := math.Round(math.Abs(value) * math.Pow10(digits))
	rendered := strconv.FormatFloat(scaled, 'f', 0, 64)

	want := 2 * byteLen
	if len(rendered) < want {
		rendered = strings.Repeat("0", want-len(rendered)) + rendered
	} else if len(rendered) > want {
		rendered = rendered[:want]
	}

	return BCDWrite(rendered)
}

// BCDDecodeValue converts a BCD digit string into a numeric value scaled
// down by 10^digits, rendered with digits decimal places (or as a plain
// integer when digits is 0). Parse failures yield "0".
func BCDDecodeValue(digits string, decimals int) string {
	if decimals < 0 {
		decimals = 0
	} else if decimals > MaxDecimalDigits {
		decimals = MaxDecimalDigits
	}

	n, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		n = 0
	}

	if decimals == 0 {
		return strconv.FormatUint(n, 10)
	}

	value := float64(n) / math.Pow10(decimals)
	return strconv.FormatFloat(value, 'f', decimals, 64)
}

// EncodeTime renders t as 6 BCD bytes: YY MM DD HH mm SS (2-digit year,
// local zone of t).
func EncodeTime(t time.Time) []byte {
	digits := t.Format("060102150405")
	// Format output is always 12 decimal digits, BCDWrite cannot fail.
	out, _ := BCDWrite(digits)
	return out
}

// DecodeTime converts a 10- or 12-digit BCD time string (YYMMDDHHmm[SS])
// into "YYYY-MM-DD HH:MM:SS". Years map to 2000+YY; seconds default to 00
// when absent.
func DecodeTime(digits string) (string, error) {
	if len(digits) != 10 && len(digits) != 12 {
		return "", fmt.Errorf("bcd time: want 10 or 12 digits, got %d", len(digits))
	}
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return "", fmt.Errorf("bcd time: non-digit character in %q", digits)
		}
	}

	sec := "00"
	if len(digits) == 12 {
		sec = digits[10:12]
	}

	return fmt.Sprintf("20%s-%s-%s %s:%s:%s",
		digits[0:2], digits[2:4], digits[4:6], digits[6:8], digits[8:10], sec), nil
}
