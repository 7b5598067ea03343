package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hydronet-io/hydrogate/internal/protocol/sl651"
	"github.com/hydronet-io/hydrogate/pkg/link"
)

// GatewaySource is what the collector scrapes: the parser's counters and
// the link manager's transport state. Both are read lock-free or under
// short snapshots, so scraping never touches the receive hot path.
type GatewaySource interface {
	ParserStats() *sl651.Stats
	SessionCount() int
	Manager() *link.Manager
}

// GatewayCollector exports protocol and transport counters. Values are
// read at scrape time; nothing is recorded inline.
type GatewayCollector struct {
	src GatewaySource

	framesParsed         *prometheus.Desc
	crcErrors            *prometheus.Desc
	parseErrors          *prometheus.Desc
	multiPacketCompleted *prometheus.Desc
	multiPacketExpired   *prometheus.Desc
	sessionsDropped      *prometheus.Desc
	sessionsOpen         *prometheus.Desc

	rxBytes   *prometheus.Desc
	txBytes   *prometheus.Desc
	rxPackets *prometheus.Desc
	txPackets *prometheus.Desc

	linkUp      *prometheus.Desc
	linkClients *prometheus.Desc
}

// NewGatewayCollector creates the collector. Returns nil when metrics
// are disabled, which callers may pass around freely.
func NewGatewayCollector(src GatewaySource) *GatewayCollector {
	if !IsEnabled() {
		return nil
	}

	return &GatewayCollector{
		src: src,
		framesParsed: prometheus.NewDesc(
			"hydrogate_frames_parsed_total",
			"Frames that passed structural parsing", nil, nil),
		crcErrors: prometheus.NewDesc(
			"hydrogate_crc_errors_total",
			"Parsed frames whose CRC check failed", nil, nil),
		parseErrors: prometheus.NewDesc(
			"hydrogate_parse_errors_total",
			"Candidate frames rejected by the parser", nil, nil),
		multiPacketCompleted: prometheus.NewDesc(
			"hydrogate_multipacket_completed_total",
			"Multi-packet transactions fully reassembled", nil, nil),
		multiPacketExpired: prometheus.NewDesc(
			"hydrogate_multipacket_expired_total",
			"Multi-packet sessions dropped by the ttl sweep", nil, nil),
		sessionsDropped: prometheus.NewDesc(
			"hydrogate_sessions_dropped_total",
			"Fragments rejected because the session table was full", nil, nil),
		sessionsOpen: prometheus.NewDesc(
			"hydrogate_sessions_open",
			"Multi-packet sessions currently awaiting fragments", nil, nil),
		rxBytes: prometheus.NewDesc(
			"hydrogate_tcp_rx_bytes_total",
			"Bytes received across all links", nil, nil),
		txBytes: prometheus.NewDesc(
			"hydrogate_tcp_tx_bytes_total",
			"Bytes sent across all links", nil, nil),
		rxPackets: prometheus.NewDesc(
			"hydrogate_tcp_rx_packets_total",
			"Read operations across all links", nil, nil),
		txPackets: prometheus.NewDesc(
			"hydrogate_tcp_tx_packets_total",
			"Write operations across all links", nil, nil),
		linkUp: prometheus.NewDesc(
			"hydrogate_link_up",
			"1 when the link is listening or connected",
			[]string{"link_id", "link_name", "mode"}, nil),
		linkClients: prometheus.NewDesc(
			"hydrogate_link_clients",
			"Connected peers on the link",
			[]string{"link_id", "link_name", "mode"}, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *GatewayCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.framesParsed
	ch <- c.crcErrors
	ch <- c.parseErrors
	ch <- c.multiPacketCompleted
	ch <- c.multiPacketExpired
	ch <- c.sessionsDropped
	ch <- c.sessionsOpen
	ch <- c.rxBytes
	ch <- c.txBytes
	ch <- c.rxPackets
	ch <- c.txPackets
	ch <- c.linkUp
	ch <- c.linkClients
}

// Collect implements prometheus.Collector.
func (c *GatewayCollector) Collect(ch chan<- prometheus.Metric) {
	stats := c.src.ParserStats().Snapshot()
	counter := func(desc *prometheus.Desc, v uint64) {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(v))
	}
	counter(c.framesParsed, stats.FramesParsed)
	counter(c.crcErrors, stats.CRCErrors)
	counter(c.parseErrors, stats.ParseErrors)
	counter(c.multiPacketCompleted, stats.MultiPacketCompleted)
	counter(c.multiPacketExpired, stats.MultiPacketExpired)
	counter(c.sessionsDropped, stats.SessionsDropped)
	ch <- prometheus.MustNewConstMetric(c.sessionsOpen, prometheus.GaugeValue,
		float64(c.src.SessionCount()))

	tcp := c.src.Manager().GetTCPStats()
	counter(c.rxBytes, tcp.RxBytes)
	counter(c.txBytes, tcp.TxBytes)
	counter(c.rxPackets, tcp.RxPackets)
	counter(c.txPackets, tcp.TxPackets)

	for _, status := range c.src.Manager().GetAllStatus() {
		up := 0.0
		if status.ConnStatus == "listening" || status.ConnStatus == "connected" {
			up = 1.0
		}
		labels := []string{status.LinkID, status.Name, status.Mode}
		ch <- prometheus.MustNewConstMetric(c.linkUp, prometheus.GaugeValue, up, labels...)
		ch <- prometheus.MustNewConstMetric(c.linkClients, prometheus.GaugeValue,
			float64(status.ClientCount), labels...)
	}
}
