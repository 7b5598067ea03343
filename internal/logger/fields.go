package logger

import "log/slog"

// Standard field keys for structured logging.
// Use these keys consistently across all log statements so link and device
// activity can be aggregated and queried downstream.
const (
	// Link & connection
	KeyLinkID     = "link_id"     // Link identifier (UUID)
	KeyLinkName   = "link_name"   // Human-readable link name
	KeyLinkMode   = "link_mode"   // TCP Server / TCP Client
	KeyLinkState  = "link_state"  // stopped, listening, connected, connecting
	KeyPeerAddr   = "peer_addr"   // Remote peer address (ip:port)
	KeyBindAddr   = "bind_addr"   // Local bind/connect address
	KeyAttempt    = "attempt"     // Reconnect attempt number
	KeyDelayMs    = "delay_ms"    // Reconnect delay in milliseconds
	KeyClients    = "clients"     // Connected peer count on a server link

	// Protocol
	KeyProtocol   = "protocol"    // Protocol tag (SL651)
	KeyFuncCode   = "func_code"   // SL651 function code (hex)
	KeyRemoteCode = "remote_code" // Device remote address (10 BCD digits)
	KeyCenterCode = "center_code" // Center station address (hex)
	KeySerial     = "serial"      // Frame serial number
	KeyDirection  = "direction"   // up / down
	KeyCRCValid   = "crc_valid"   // CRC check outcome
	KeyTotalPk    = "total_pk"    // Multi-packet total
	KeySeqPk      = "seq_pk"      // Multi-packet sequence number
	KeyFrameLen   = "frame_len"   // Raw frame length in bytes

	// Device & record
	KeyDeviceID   = "device_id"   // Device identifier (UUID)
	KeyDeviceCode = "device_code" // Registered device code
	KeyRecordID   = "record_id"   // Persisted telemetry record id
	KeyReportTime = "report_time" // Device-reported timestamp

	// Operation metadata
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyEvent      = "event"       // Domain event kind
	KeyBucket     = "bucket"      // Image archive bucket
	KeyKey        = "key"         // Image archive object key
)

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// LinkID returns a slog.Attr for a link identifier
func LinkID(id string) slog.Attr {
	return slog.String(KeyLinkID, id)
}

// PeerAddr returns a slog.Attr for a remote peer address
func PeerAddr(addr string) slog.Attr {
	return slog.String(KeyPeerAddr, addr)
}

// RemoteCode returns a slog.Attr for a device remote address
func RemoteCode(code string) slog.Attr {
	return slog.String(KeyRemoteCode, code)
}

// FuncCode returns a slog.Attr for an SL651 function code
func FuncCode(code string) slog.Attr {
	return slog.String(KeyFuncCode, code)
}
