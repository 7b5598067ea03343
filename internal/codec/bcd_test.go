package codec

import (
	"bytes"
	"math"
	"strconv"
	"testing"
	"time"
)

func TestBCDRead(t *testing.T) {
	t.Run("decodes digit pairs", func(t *testing.T) {
		got := BCDRead([]byte{0x12, 0x34, 0x56, 0x78, 0x90}, 0, 5)
		if got != "1234567890" {
			t.Errorf("got %q, want 1234567890", got)
		}
	})

	t.Run("clamps malformed nibbles", func(t *testing.T) {
		got := BCDRead([]byte{0xAF, 0x3B}, 0, 2)
		if got != "9939" {
			t.Errorf("got %q, want 9939", got)
		}
	})

	t.Run("offset slice", func(t *testing.T) {
		got := BCDRead([]byte{0xFF, 0x22, 0x15}, 1, 2)
		if got != "2215" {
			t.Errorf("got %q, want 2215", got)
		}
	})

	t.Run("out of range returns empty", func(t *testing.T) {
		if got := BCDRead([]byte{0x12}, 0, 2); got != "" {
			t.Errorf("got %q, want empty", got)
		}
	})
}

func TestBCDWrite(t *testing.T) {
	t.Run("even length", func(t *testing.T) {
		got, err := BCDWrite("1234")
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, []byte{0x12, 0x34}) {
			t.Errorf("got % X", got)
		}
	})

	t.Run("odd length pads left", func(t *testing.T) {
		got, err := BCDWrite("123")
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, []byte{0x01, 0x23}) {
			t.Errorf("got % X", got)
		}
	})

	t.Run("rejects non-digits", func(t *testing.T) {
		if _, err := BCDWrite("12A4"); err == nil {
			t.Error("expected error")
		}
	})
}

func TestBCDRoundTrip(t *testing.T) {
	for _, digits := range []string{"00", "1234567890", "99", "0102030405060708"} {
		packed, err := BCDWrite(digits)
		if err != nil {
			t.Fatalf("%s: %v", digits, err)
		}
		if got := BCDRead(packed, 0, len(packed)); got != digits {
			t.Errorf("round trip %q -> %q", digits, got)
		}
	}
}

func TestBCDEncodeValue(t *testing.T) {
	t.Run("scales and pads", func(t *testing.T) {
		got, err := BCDEncodeValue(12.5, 3, 2)
		if err != nil {
			t.Fatal(err)
		}
		// 12.5 * 100 = 1250, padded to 6 digits = 001250
		if !bytes.Equal(got, []byte{0x00, 0x12, 0x50}) {
			t.Errorf("got % X", got)
		}
	})

	t.Run("rounds to nearest", func(t *testing.T) {
		got, err := BCDEncodeValue(1.006, 2, 2)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, []byte{0x01, 0x01}) {
			t.Errorf("got % X", got)
		}
	})

	t.Run("rejects non-finite", func(t *testing.T) {
		if _, err := BCDEncodeValue(math.NaN(), 2, 0); err == nil {
			t.Error("expected error for NaN")
		}
		if _, err := BCDEncodeValue(math.Inf(1), 2, 0); err == nil {
			t.Error("expected error for Inf")
		}
	})

	t.Run("clamps digits above max", func(t *testing.T) {
		a, err := BCDEncodeValue(1, 6, 99)
		if err != nil {
			t.Fatal(err)
		}
		b, err := BCDEncodeValue(1, 6, MaxDecimalDigits)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(a, b) {
			t.Error("digits not clamped")
		}
	})
}

func TestBCDDecodeValue(t *testing.T) {
	cases := []struct {
		digits   string
		decimals int
		want     string
	}{
		{"001250", 2, "12.50"},
		{"001250", 0, "1250"},
		{"0000", 1, "0.0"},
		{"garbage", 2, "0.00"},
	}
	for _, c := range cases {
		if got := BCDDecodeValue(c.digits, c.decimals); got != c.want {
			t.Errorf("BCDDecodeValue(%q, %d) = %q, want %q", c.digits, c.decimals, got, c.want)
		}
	}
}

func TestBCDValueTolerance(t *testing.T) {
	// Scaling goes through binary floating point; allow 1e-9 relative error.
	for _, v := range []float64{0.1, 12.34, 999.999, 0.00001} {
		packed, err := BCDEncodeValue(v, 4, 5)
		if err != nil {
			t.Fatal(err)
		}
		digits := BCDRead(packed, 0, len(packed))
		decoded := BCDDecodeValue(digits, 5)

		got, err := strconv.ParseFloat(decoded, 64)
		if err != nil {
			t.Fatalf("parse %q: %v", decoded, err)
		}
		if rel := math.Abs(got-v) / math.Max(v, 1e-12); rel > 1e-5+1e-9 {
			t.Errorf("value %v decoded as %v (rel err %v)", v, got, rel)
		}
	}
}

func TestDecodeTime(t *testing.T) {
	t.Run("12 digits", func(t *testing.T) {
		got, err := DecodeTime("221229102215")
		if err != nil {
			t.Fatal(err)
		}
		if got != "2022-12-29 10:22:15" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("10 digits defaults seconds", func(t *testing.T) {
		got, err := DecodeTime("2212291022")
		if err != nil {
			t.Fatal(err)
		}
		if got != "2022-12-29 10:22:00" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("bad length", func(t *testing.T) {
		if _, err := DecodeTime("22122910"); err == nil {
			t.Error("expected error")
		}
	})
}

func TestEncodeTime(t *testing.T) {
	ts, err := time.Parse(time.RFC3339, "2022-12-29T10:22:15Z")
	if err != nil {
		t.Fatal(err)
	}
	got := EncodeTime(ts)
	if !bytes.Equal(got, []byte{0x22, 0x12, 0x29, 0x10, 0x22, 0x15}) {
		t.Errorf("got % X", got)
	}
}
