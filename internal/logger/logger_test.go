package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestTextFormat(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "DEBUG", "text", false)

	Info("link started", KeyLinkID, "l-1", KeyLinkMode, "TCP Server")

	out := buf.String()
	if !strings.Contains(out, "[INFO]") {
		t.Errorf("expected level marker, got %q", out)
	}
	if !strings.Contains(out, "link_id=l-1") {
		t.Errorf("expected link_id attr, got %q", out)
	}
	if !strings.Contains(out, "link_mode=TCP Server") {
		t.Errorf("expected link_mode attr, got %q", out)
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "json", false)

	Warn("crc mismatch", KeyRemoteCode, "1234567890")

	out := buf.String()
	if !strings.Contains(out, `"remote_code":"1234567890"`) {
		t.Errorf("expected json attr, got %q", out)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "WARN", "text", false)

	Debug("should be dropped")
	Info("should be dropped too")
	Warn("should appear")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Errorf("low-severity records leaked: %q", out)
	}
	if !strings.Contains(out, "should appear") {
		t.Errorf("warn record missing: %q", out)
	}
}

func TestInvalidLevelIgnored(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "text", false)

	SetLevel("VERBOSE") // unknown, keeps INFO
	Info("still here")

	if !strings.Contains(buf.String(), "still here") {
		t.Error("valid level lost after invalid SetLevel")
	}
}

func TestErrAttr(t *testing.T) {
	if got := Err(nil); !got.Equal(Err(nil)) {
		t.Error("nil error should produce empty attr")
	}
}
