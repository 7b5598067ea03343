// Package gateway wires the protocol layer to the rest of the system:
// bytes arriving on a link run through the framer and parser, completed
// frames are resolved against registered devices, persisted as telemetry
// records and acknowledged on the wire. Configuration changes arrive as
// domain events and are applied to the link manager.
package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hydronet-io/hydrogate/internal/logger"
	"github.com/hydronet-io/hydrogate/internal/protocol/sl651"
	"github.com/hydronet-io/hydrogate/pkg/bus"
	"github.com/hydronet-io/hydrogate/pkg/link"
	"github.com/hydronet-io/hydrogate/pkg/store"
)

// Archiver stores raw JPEG telemetry payloads out of band. A nil
// archiver disables archiving.
type Archiver interface {
	Put(ctx context.Context, key string, data []byte) error
}

// Config tunes the gateway pipeline.
type Config struct {
	// CenterCode is this station's address on downlink frames, two hex
	// characters.
	CenterCode string

	// MaxBufferSize caps each per-connection framer buffer.
	MaxBufferSize int

	// SessionTimeout and MaxSessions tune multi-packet reassembly.
	SessionTimeout time.Duration
	MaxSessions    int

	// Workers sizes the link manager's worker pool. Zero picks a
	// CPU-derived default.
	Workers int

	// Link tunes connection handling.
	Link link.Config
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.CenterCode == "" {
		out.CenterCode = "01"
	}
	if out.MaxBufferSize <= 0 {
		out.MaxBufferSize = sl651.MaxBufferSize
	}
	if out.SessionTimeout <= 0 {
		out.SessionTimeout = sl651.DefaultSessionTimeout
	}
	if out.MaxSessions <= 0 {
		out.MaxSessions = sl651.MaxSessionCount
	}
	return out
}

// Gateway owns the receive pipeline and reacts to domain events.
type Gateway struct {
	cfg     Config
	store   *store.Store
	events  *bus.Bus
	manager *link.Manager
	parser  *sl651.Parser
	builder *sl651.Builder
	archive Archiver

	cache *configCache

	mu      sync.Mutex
	framers map[string]*sl651.Framer
	// routes maps (linkID, remoteCode) to the peer address the device
	// last spoke from, so downlink commands on server links reach the
	// right connection.
	routes map[string]string

	subs    []*bus.Subscription
	started bool
}

// New creates a gateway around an opened store and event bus.
func New(cfg Config, st *store.Store, events *bus.Bus) *Gateway {
	cfg = cfg.withDefaults()
	return &Gateway{
		cfg:     cfg,
		store:   st,
		events:  events,
		manager: link.NewManager(cfg.Link),
		parser: sl651.NewParser(sl651.ParserConfig{
			SessionTimeout: cfg.SessionTimeout,
			MaxSessions:    cfg.MaxSessions,
		}),
		builder: sl651.NewBuilder(),
		cache:   newConfigCache(),
		framers: map[string]*sl651.Framer{},
		routes:  map[string]string{},
	}
}

// SetArchiver installs the JPEG archive. Must be called before Start.
func (g *Gateway) SetArchiver(a Archiver) {
	g.archive = a
}

// Manager exposes the link manager for status queries.
func (g *Gateway) Manager() *link.Manager {
	return g.manager
}

// ParserStats exposes the protocol counters.
func (g *Gateway) ParserStats() *sl651.Stats {
	return g.parser.Stats()
}

// SessionCount returns the number of open multi-packet sessions.
func (g *Gateway) SessionCount() int {
	return g.parser.SessionCount()
}

// Start initializes the worker pool, subscribes to domain events and
// brings up every enabled link from the store.
func (g *Gateway) Start(ctx context.Context) error {
	if err := g.manager.Initialize(g.cfg.Workers); err != nil {
		return err
	}
	g.manager.SetCallbacks(g.onData, g.onConn)

	g.subs = append(g.subs,
		g.events.Subscribe(bus.EventLinkCreated, g.onLinkCreated),
		g.events.Subscribe(bus.EventLinkUpdated, g.onLinkUpdated),
		g.events.Subscribe(bus.EventLinkDeleted, g.onLinkDeleted),
		g.events.Subscribe(bus.EventDeviceUpdated, g.onDeviceUpdated),
	)

	links, err := g.store.ListEnabledLinks(ctx)
	if err != nil {
		return fmt.Errorf("gateway: loading links: %w", err)
	}
	for _, l := range links {
		if err := g.startLink(l); err != nil {
			logger.Warn("link failed to start",
				logger.KeyLinkID, l.ID,
				logger.KeyLinkName, l.Name,
				logger.KeyError, err.Error())
		}
	}
	g.started = true
	return nil
}

// Stop tears down subscriptions and every running link.
func (g *Gateway) Stop() {
	for _, s := range g.subs {
		s.Unsubscribe()
	}
	g.subs = nil
	g.manager.Shutdown()
	g.started = false
}

func (g *Gateway) startLink(l *store.Link) error {
	switch link.Mode(l.Mode) {
	case link.ModeServer:
		return g.manager.StartServer(l.ID, l.Name, l.IP, l.Port)
	case link.ModeClient:
		return g.manager.StartClient(l.ID, l.Name, l.IP, l.Port)
	default:
		return fmt.Errorf("gateway: unknown link mode %q", l.Mode)
	}
}

// Event handlers. The service layer publishes only after commit, so the
// store reads here observe the new state.

func (g *Gateway) onLinkCreated(ev bus.Event) {
	l, err := g.store.GetLink(context.Background(), ev.LinkID)
	if err != nil {
		logger.Warn("link event for unknown link", logger.KeyLinkID, ev.LinkID, logger.KeyError, err.Error())
		return
	}
	if !l.Enabled {
		return
	}
	if err := g.startLink(l); err != nil {
		logger.Warn("link failed to start", logger.KeyLinkID, l.ID, logger.KeyError, err.Error())
	}
}

func (g *Gateway) onLinkUpdated(ev bus.Event) {
	if !ev.NeedReload {
		return
	}
	l, err := g.store.GetLink(context.Background(), ev.LinkID)
	if err != nil {
		logger.Warn("link event for unknown link", logger.KeyLinkID, ev.LinkID, logger.KeyError, err.Error())
		return
	}
	if err := g.manager.Reload(l.ID, l.Name, link.Mode(l.Mode), l.IP, l.Port, l.Enabled); err != nil {
		logger.Warn("link reload failed", logger.KeyLinkID, l.ID, logger.KeyError, err.Error())
	}
}

func (g *Gateway) onLinkDeleted(ev bus.Event) {
	if err := g.manager.Stop(ev.LinkID); err != nil && !errors.Is(err, link.ErrLinkNotFound) {
		logger.Warn("link stop failed", logger.KeyLinkID, ev.LinkID, logger.KeyError, err.Error())
	}
	g.cache.invalidateLink(ev.LinkID)
}

func (g *Gateway) onDeviceUpdated(ev bus.Event) {
	g.cache.invalidateLink(ev.LinkID)
	if ev.RegistrationChanged {
		// Peers authenticated against the old registration must
		// reconnect and re-identify.
		g.manager.DisconnectServerClients(ev.LinkID)
	}
}

// Connection lifecycle.

func (g *Gateway) onConn(linkID, peerAddr string, connected bool) {
	if connected {
		logger.Info("peer connected", logger.KeyLinkID, linkID, logger.KeyPeerAddr, peerAddr)
		return
	}
	logger.Info("peer disconnected", logger.KeyLinkID, linkID, logger.KeyPeerAddr, peerAddr)

	g.mu.Lock()
	delete(g.framers, cacheKey(linkID, peerAddr))
	for key, peer := range g.routes {
		if peer == peerAddr && strings.HasPrefix(key, linkID+"\x00") {
			delete(g.routes, key)
		}
	}
	g.mu.Unlock()
}

// Receive pipeline. Runs on the link's pinned worker, so frames from one
// connection are handled in arrival order.

func (g *Gateway) onData(linkID, peerAddr string, data []byte) {
	g.mu.Lock()
	key := cacheKey(linkID, peerAddr)
	framer, ok := g.framers[key]
	if !ok {
		framer = sl651.NewFramer(g.cfg.MaxBufferSize)
		g.framers[key] = framer
	}
	g.mu.Unlock()

	frames, err := framer.Push(data)
	if err != nil {
		logger.Warn("framer buffer overflow, discarding",
			logger.KeyLinkID, linkID, logger.KeyPeerAddr, peerAddr)
	}
	for _, raw := range frames {
		g.handleFrame(linkID, peerAddr, raw)
	}
}

func (g *Gateway) handleFrame(linkID, peerAddr string, raw []byte) {
	frame, err := g.parser.Parse(raw)
	if err != nil {
		logger.Warn("frame rejected",
			logger.KeyLinkID, linkID,
			logger.KeyPeerAddr, peerAddr,
			logger.KeyFrameLen, len(raw),
			logger.KeyError, err.Error())
		return
	}

	// Only uplink traffic proves where a station lives; an echoed
	// downlink frame must not overwrite its route.
	if frame.Direction == sl651.DirectionUp {
		g.mu.Lock()
		g.routes[cacheKey(linkID, frame.RemoteCode)] = peerAddr
		g.mu.Unlock()
	}

	complete, done, err := g.parser.Reassemble(frame)
	if err != nil {
		logger.Warn("multi-packet fragment dropped",
			logger.KeyLinkID, linkID,
			logger.KeyRemoteCode, frame.RemoteCode,
			logger.KeyFuncCode, frame.FuncCode,
			logger.KeyError, err.Error())
		return
	}
	if !done {
		return
	}

	ctx := context.Background()
	dev, cfg, err := g.resolveDevice(ctx, linkID, complete.RemoteCode)
	if err != nil {
		// Unregistered devices get no ack: a reply would keep an unknown
		// station talking to us.
		logger.Warn("frame from unregistered device",
			logger.KeyLinkID, linkID,
			logger.KeyRemoteCode, complete.RemoteCode,
			logger.KeyFuncCode, complete.FuncCode)
		return
	}

	result := g.parser.Decode(complete, cfg, linkID)
	recordID, err := g.persist(ctx, dev, result)
	if err != nil {
		logger.Error("telemetry record not persisted",
			logger.KeyLinkID, linkID,
			logger.KeyDeviceID, dev.ID,
			logger.KeyFuncCode, result.FuncCode,
			logger.KeyError, err.Error())
		return
	}

	logger.Info("telemetry record persisted",
		logger.KeyLinkID, linkID,
		logger.KeyDeviceID, dev.ID,
		logger.KeyRemoteCode, complete.RemoteCode,
		logger.KeyFuncCode, result.FuncCode,
		logger.KeyCRCValid, complete.CRCValid,
		logger.KeyRecordID, recordID)

	if complete.ReplyRequired() {
		g.sendAck(linkID, peerAddr, complete)
	}
}

func (g *Gateway) resolveDevice(ctx context.Context, linkID, code string) (*store.Device, *sl651.DeviceConfig, error) {
	dev, err := g.store.GetDeviceByLinkAndCode(ctx, linkID, code)
	if err != nil {
		return nil, nil, err
	}
	if cfg, ok := g.cache.get(linkID, code); ok {
		return dev, cfg, nil
	}
	cfg, err := ParseDeviceConfig(dev)
	if err != nil {
		logger.Warn("device config unusable, decoding without dictionaries",
			logger.KeyDeviceID, dev.ID, logger.KeyError, err.Error())
		cfg = &sl651.DeviceConfig{DeviceID: dev.ID, Timezone: dev.Timezone}
	}
	g.cache.put(linkID, code, cfg)
	return dev, cfg, nil
}

// recordEnvelope is the JSON stored in a telemetry record's data column.
type recordEnvelope struct {
	*sl651.Payload
	CommandResponse *sl651.CommandResponse `json:"command_response,omitempty"`
}

func (g *Gateway) persist(ctx context.Context, dev *store.Device, result *sl651.Result) (uint, error) {
	data, err := json.Marshal(recordEnvelope{result.Data, result.CommandResponse})
	if err != nil {
		return 0, err
	}

	record := &store.TelemetryRecord{
		DeviceID: result.DeviceID,
		LinkID:   result.LinkID,
		Protocol: result.Protocol,
		Data:     string(data),
	}
	if ts, err := time.Parse("2006-01-02 15:04:05-07:00", result.ReportTime); err == nil {
		record.ReportTime = &ts
	}

	guard, err := g.store.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer guard.Close()

	recordID, err := g.store.InsertRecordTx(ctx, guard, record)
	if err != nil {
		return 0, err
	}
	if g.archive != nil {
		guard.OnCommit(func() {
			g.archiveImages(dev.ID, recordID, result)
		})
	}
	if err := guard.Commit(); err != nil {
		return 0, err
	}
	return recordID, nil
}

const jpegDataURLPrefix = "data:image/jpeg;base64,"

// archiveImages writes the raw bytes of JPEG elements to the configured
// archive. Runs as a post-commit hook; failures are logged and do not
// affect the record.
func (g *Gateway) archiveImages(deviceID string, recordID uint, result *sl651.Result) {
	for key, el := range result.Data.Data {
		if el.Type != string(sl651.EncodingJPEG) {
			continue
		}
		if !strings.HasPrefix(el.Value, jpegDataURLPrefix) {
			continue
		}
		raw, err := base64.StdEncoding.DecodeString(el.Value[len(jpegDataURLPrefix):])
		if err != nil {
			continue
		}
		objectKey := fmt.Sprintf("telemetry/%s/%d_%s.jpg", deviceID, recordID, key)
		go func(objectKey string, raw []byte) {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := g.archive.Put(ctx, objectKey, raw); err != nil {
				logger.Warn("image archive failed",
					logger.KeyKey, objectKey, logger.KeyError, err.Error())
			}
		}(objectKey, raw)
	}
}

func (g *Gateway) sendAck(linkID, peerAddr string, frame *sl651.Frame) {
	var (
		ack []byte
		err error
	)
	if frame.FuncCode == sl651.FuncLinkKeep {
		ack, err = g.builder.LinkKeepAck(frame)
	} else {
		ack, err = g.builder.Ack(frame)
	}
	if err != nil {
		logger.Warn("ack build failed",
			logger.KeyLinkID, linkID,
			logger.KeyFuncCode, frame.FuncCode,
			logger.KeyError, err.Error())
		return
	}
	if !g.send(linkID, peerAddr, ack) {
		logger.Warn("ack not delivered",
			logger.KeyLinkID, linkID,
			logger.KeyPeerAddr, peerAddr,
			logger.KeyFuncCode, frame.FuncCode)
	}
}

// send targets the given peer on server links and falls back to the
// link's active connection.
func (g *Gateway) send(linkID, peerAddr string, data []byte) bool {
	if peerAddr != "" && g.manager.SendToClient(linkID, peerAddr, data) {
		return true
	}
	return g.manager.SendData(linkID, data)
}
