package sl651

import "sync/atomic"

// Stats holds the parser's hot-path counters. All fields are updated
// with relaxed atomics; the numbers are diagnostic only.
type Stats struct {
	FramesParsed         atomic.Uint64
	CRCErrors            atomic.Uint64
	MultiPacketCompleted atomic.Uint64
	MultiPacketExpired   atomic.Uint64
	SessionsDropped      atomic.Uint64
	ParseErrors          atomic.Uint64
}

// StatsSnapshot is a point-in-time copy of Stats, shaped for the status
// API.
type StatsSnapshot struct {
	FramesParsed         uint64 `json:"frames_parsed"`
	CRCErrors            uint64 `json:"crc_errors"`
	MultiPacketCompleted uint64 `json:"multi_packet_completed"`
	MultiPacketExpired   uint64 `json:"multi_packet_expired"`
	SessionsDropped      uint64 `json:"sessions_dropped"`
	ParseErrors          uint64 `json:"parse_errors"`
}

// Snapshot copies the counters.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		FramesParsed:         s.FramesParsed.Load(),
		CRCErrors:            s.CRCErrors.Load(),
		MultiPacketCompleted: s.MultiPacketCompleted.Load(),
		MultiPacketExpired:   s.MultiPacketExpired.Load(),
		SessionsDropped:      s.SessionsDropped.Load(),
		ParseErrors:          s.ParseErrors.Load(),
	}
}
