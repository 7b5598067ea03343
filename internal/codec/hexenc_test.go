package codec

import (
	"bytes"
	"testing"
)

func TestHexUpper(t *testing.T) {
	if got := HexUpper([]byte{0x7E, 0x7E, 0x01, 0xAB}); got != "7E7E01AB" {
		t.Errorf("got %q", got)
	}
	if got := HexUpper(nil); got != "" {
		t.Errorf("got %q, want empty", got)
	}
}

func TestHexDecode(t *testing.T) {
	t.Run("upper and lower case", func(t *testing.T) {
		got, err := HexDecode("7e7E01ab")
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, []byte{0x7E, 0x7E, 0x01, 0xAB}) {
			t.Errorf("got % X", got)
		}
	})

	t.Run("odd length rejected", func(t *testing.T) {
		if _, err := HexDecode("ABC"); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("invalid character rejected", func(t *testing.T) {
		if _, err := HexDecode("GG"); err == nil {
			t.Error("expected error")
		}
	})
}

func TestHexRoundTrip(t *testing.T) {
	data := make([]byte, 256)
	for i := range data {
		data[i] = byte(i)
	}
	decoded, err := HexDecode(HexUpper(data))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(decoded, data) {
		t.Error("round trip mismatch")
	}
}

func TestBase64RoundTrip(t *testing.T) {
	for _, n := range []int{0, 1, 2, 3, 255} {
		data := make([]byte, n)
		for i := range data {
			data[i] = byte(255 - i)
		}
		decoded, err := Base64Decode(Base64(data))
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(decoded, data) {
			t.Errorf("round trip mismatch for n=%d", n)
		}
	}
}

func TestUint16(t *testing.T) {
	buf := make([]byte, 2)
	PutUint16(buf, 0x8007)
	if buf[0] != 0x80 || buf[1] != 0x07 {
		t.Errorf("got % X", buf)
	}
	if Uint16(buf) != 0x8007 {
		t.Errorf("got 0x%04X", Uint16(buf))
	}
}
