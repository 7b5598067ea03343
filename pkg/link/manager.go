// Package link owns the TCP transport of the gateway: a pool of I/O
// workers, one Runtime per configured link, the connection state
// machine and the reconnect policy. Inbound bytes are handed to the
// registered data callback in strict per-link arrival order; protocol
// handling lives upstream.
package link

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hydronet-io/hydrogate/internal/logger"
)

// Manager lifecycle and lookup errors.
var (
	ErrAlreadyInitialized = errors.New("link: manager already initialized")
	ErrNotInitialized     = errors.New("link: manager not initialized")
	ErrLinkNotFound       = errors.New("link: not found")
)

// DataHandler receives one inbound chunk. Invoked on the link's worker,
// never concurrently for the same link.
type DataHandler func(linkID, peerAddr string, data []byte)

// ConnHandler is invoked on peer connect (connected=true) and
// disconnect. Invoked without any core lock held.
type ConnHandler func(linkID, peerAddr string, connected bool)

// Config tunes the manager.
type Config struct {
	ReconnectBase    time.Duration
	ReconnectCeiling time.Duration
	ReconnectJitter  float64

	DialTimeout  time.Duration
	WriteTimeout time.Duration
}

func (c *Config) withDefaults() Config {
	cfg := *c
	if cfg.ReconnectBase <= 0 {
		cfg.ReconnectBase = DefaultReconnectBase
	}
	if cfg.ReconnectCeiling <= 0 {
		cfg.ReconnectCeiling = DefaultReconnectCeiling
	}
	if cfg.ReconnectJitter <= 0 {
		cfg.ReconnectJitter = DefaultReconnectJitter
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	return cfg
}

// TCPStats is a snapshot of the global transport counters.
type TCPStats struct {
	RxBytes   uint64 `json:"rx_bytes"`
	TxBytes   uint64 `json:"tx_bytes"`
	RxPackets uint64 `json:"rx_packets"`
	TxPackets uint64 `json:"tx_packets"`
}

type tcpCounters struct {
	rxBytes   atomic.Uint64
	txBytes   atomic.Uint64
	rxPackets atomic.Uint64
	txPackets atomic.Uint64
}

// Manager owns every link runtime and the worker pool. All exported
// methods are safe for concurrent use.
type Manager struct {
	cfg Config

	mu          sync.RWMutex
	links       map[string]*Runtime
	pool        *Pool
	initialized bool

	onData DataHandler
	onConn ConnHandler

	stats tcpCounters
}

// NewManager creates a manager in the uninitialized state.
func NewManager(cfg Config) *Manager {
	return &Manager{
		cfg:   cfg.withDefaults(),
		links: make(map[string]*Runtime),
	}
}

// SetCallbacks registers the data and connection callbacks. Must be
// called before any link is started.
func (m *Manager) SetCallbacks(onData DataHandler, onConn ConnHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onData = onData
	m.onConn = onConn
}

// Initialize constructs the worker pool. threadCount <= 0 sizes the
// pool to the hardware concurrency. A second call while active fails
// with ErrAlreadyInitialized.
func (m *Manager) Initialize(threadCount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initialized {
		return ErrAlreadyInitialized
	}
	m.pool = NewPool(threadCount)
	m.initialized = true

	logger.Info("link manager initialized", "workers", m.pool.Size())
	return nil
}

// Shutdown stops every link and the worker pool. The manager can be
// initialized again afterwards.
func (m *Manager) Shutdown() {
	m.StopAll()

	m.mu.Lock()
	pool := m.pool
	m.pool = nil
	m.initialized = false
	m.mu.Unlock()

	if pool != nil {
		pool.Shutdown()
	}
}

// StartServer binds a listening link. Any existing runtime for linkId
// is torn down first. A bind failure leaves an Error-state runtime in
// the table so status surfaces can report it.
func (m *Manager) StartServer(linkID, name, ip string, port int) error {
	if err := m.requireInit(); err != nil {
		return err
	}
	m.teardownExisting(linkID)

	rt := m.newRuntime(linkID, name, ModeServer, ip, port)

	addr := fmt.Sprintf("%s:%d", ip, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		rt.mu.Lock()
		rt.state = StateError
		rt.errMsg = err.Error()
		rt.mu.Unlock()
		m.register(rt)

		logger.Error("link bind failed",
			logger.KeyLinkID, linkID, logger.KeyBindAddr, addr, logger.KeyError, err.Error())
		return fmt.Errorf("link %s: bind %s: %w", linkID, addr, err)
	}

	rt.mu.Lock()
	rt.listener = ln
	rt.serverConns = make(map[string]net.Conn)
	rt.transitionLocked(EventStartServer)
	rt.mu.Unlock()
	m.register(rt)

	logger.Info("link listening",
		logger.KeyLinkID, linkID, logger.KeyLinkName, name, logger.KeyBindAddr, addr)

	go m.acceptLoop(rt, ln)
	return nil
}

// StartClient starts an outbound link. The connect attempt runs on the
// link's worker; the caller does not wait for it.
func (m *Manager) StartClient(linkID, name, ip string, port int) error {
	if err := m.requireInit(); err != nil {
		return err
	}
	m.teardownExisting(linkID)

	rt := m.newRuntime(linkID, name, ModeClient, ip, port)
	rt.transition(EventStartClient)
	m.register(rt)

	logger.Info("link connecting",
		logger.KeyLinkID, linkID, logger.KeyLinkName, name,
		logger.KeyBindAddr, fmt.Sprintf("%s:%d", ip, port))

	m.submit(rt, func() { m.connect(rt) })
	return nil
}

// Stop removes the runtime for linkId and tears it down on its worker.
// Callbacks still in flight observe the runtime is no longer current
// and abort early.
func (m *Manager) Stop(linkID string) error {
	m.mu.Lock()
	rt, ok := m.links[linkID]
	if ok {
		delete(m.links, linkID)
	}
	m.mu.Unlock()

	if !ok {
		return ErrLinkNotFound
	}
	m.submit(rt, func() { m.teardown(rt) })
	return nil
}

// StopAll moves the whole table out and tears down every runtime.
func (m *Manager) StopAll() {
	m.mu.Lock()
	links := m.links
	m.links = make(map[string]*Runtime)
	m.mu.Unlock()

	for _, rt := range links {
		rt := rt
		m.submit(rt, func() { m.teardown(rt) })
	}
}

// Reload applies a configuration change: disabled links stop, enabled
// links restart in the configured mode.
func (m *Manager) Reload(linkID, name string, mode Mode, ip string, port int, enabled bool) error {
	if !enabled {
		if err := m.Stop(linkID); err != nil && !errors.Is(err, ErrLinkNotFound) {
			return err
		}
		return nil
	}

	switch mode {
	case ModeServer:
		return m.StartServer(linkID, name, ip, port)
	case ModeClient:
		return m.StartClient(linkID, name, ip, port)
	default:
		return fmt.Errorf("link %s: unknown mode %q", linkID, mode)
	}
}

// SendData writes to the link's peer: the client connection when
// connected, otherwise a broadcast to every accepted peer on a server
// link. Returns false when the link is unknown or has no send path.
func (m *Manager) SendData(linkID string, data []byte) bool {
	rt := m.get(linkID)
	if rt == nil {
		return false
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()

	if rt.clientConn != nil && rt.state == StateConnected {
		m.write(rt.clientConn, data)
		return true
	}
	if rt.Mode == ModeServer && len(rt.serverConns) > 0 {
		for _, conn := range rt.serverConns {
			m.write(conn, data)
		}
		return true
	}
	return false
}

// SendToClient writes to one specific accepted peer on a server link.
func (m *Manager) SendToClient(linkID, peerAddr string, data []byte) bool {
	rt := m.get(linkID)
	if rt == nil {
		return false
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()

	conn, ok := rt.serverConns[peerAddr]
	if !ok {
		return false
	}
	m.write(conn, data)
	return true
}

// DisconnectServerClients force-closes every accepted peer on a server
// link; the read loops clean up as the closes propagate. The link stays
// listening. Used when a device's registration changes and peers must
// re-register.
func (m *Manager) DisconnectServerClients(linkID string) {
	rt := m.get(linkID)
	if rt == nil {
		return
	}

	rt.mu.Lock()
	conns := make([]net.Conn, 0, len(rt.serverConns))
	for _, c := range rt.serverConns {
		conns = append(conns, c)
	}
	rt.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}

	logger.Info("link peers disconnected",
		logger.KeyLinkID, linkID, logger.KeyClients, len(conns))
}

// IsRunning reports whether the link has an active runtime.
func (m *Manager) IsRunning(linkID string) bool {
	rt := m.get(linkID)
	if rt == nil {
		return false
	}
	s := rt.State()
	return s != StateStopped && s != StateError
}

// GetStatus returns the status snapshot for one link.
func (m *Manager) GetStatus(linkID string) (*Status, error) {
	rt := m.get(linkID)
	if rt == nil {
		return nil, ErrLinkNotFound
	}
	return rt.status(), nil
}

// GetAllStatus returns a snapshot for every known link.
func (m *Manager) GetAllStatus() []*Status {
	m.mu.RLock()
	rts := make([]*Runtime, 0, len(m.links))
	for _, rt := range m.links {
		rts = append(rts, rt)
	}
	m.mu.RUnlock()

	out := make([]*Status, 0, len(rts))
	for _, rt := range rts {
		out = append(out, rt.status())
	}
	return out
}

// BoundAddr returns the actual listen address of a server link. Useful
// when the link was configured with port 0.
func (m *Manager) BoundAddr(linkID string) (string, error) {
	rt := m.get(linkID)
	if rt == nil {
		return "", ErrLinkNotFound
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.listener == nil {
		return "", fmt.Errorf("link %s: not listening", linkID)
	}
	return rt.listener.Addr().String(), nil
}

// GetTCPStats returns the global byte and packet counters.
func (m *Manager) GetTCPStats() TCPStats {
	return TCPStats{
		RxBytes:   m.stats.rxBytes.Load(),
		TxBytes:   m.stats.txBytes.Load(),
		RxPackets: m.stats.rxPackets.Load(),
		TxPackets: m.stats.txPackets.Load(),
	}
}

func (m *Manager) requireInit() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.initialized {
		return ErrNotInitialized
	}
	return nil
}

func (m *Manager) newRuntime(linkID, name string, mode Mode, ip string, port int) *Runtime {
	m.mu.RLock()
	idx := m.pool.Assign()
	m.mu.RUnlock()

	return &Runtime{
		ID:        linkID,
		Name:      name,
		Mode:      mode,
		IP:        ip,
		Port:      port,
		workerIdx: idx,
		state:     StateStopped,
		policy:    NewReconnectPolicy(m.cfg.ReconnectBase, m.cfg.ReconnectCeiling, m.cfg.ReconnectJitter),
	}
}

func (m *Manager) register(rt *Runtime) {
	m.mu.Lock()
	m.links[rt.ID] = rt
	m.mu.Unlock()
}

func (m *Manager) get(linkID string) *Runtime {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.links[linkID]
}

// isCurrent reports whether rt is still the runtime registered for its
// link id. Timer and I/O callbacks use this as their cancellation
// check: stop and reload replace or remove the table entry.
func (m *Manager) isCurrent(rt *Runtime) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.links[rt.ID] == rt
}

func (m *Manager) teardownExisting(linkID string) {
	if err := m.Stop(linkID); err != nil && !errors.Is(err, ErrLinkNotFound) {
		logger.Warn("link teardown failed",
			logger.KeyLinkID, linkID, logger.KeyError, err.Error())
	}
}

// submit runs fn on the runtime's worker, falling back to inline
// execution when the pool is already shut down.
func (m *Manager) submit(rt *Runtime, fn func()) {
	m.mu.RLock()
	pool := m.pool
	m.mu.RUnlock()

	if pool == nil || !pool.Submit(rt.workerIdx, fn) {
		fn()
	}
}

// teardown shuts down all I/O owned by the runtime. Runs on the
// runtime's worker after the table entry has been removed.
func (m *Manager) teardown(rt *Runtime) {
	rt.mu.Lock()
	rt.transitionLocked(EventStop)

	ln := rt.listener
	rt.listener = nil
	client := rt.clientConn
	rt.clientConn = nil
	conns := make([]net.Conn, 0, len(rt.serverConns))
	for _, c := range rt.serverConns {
		conns = append(conns, c)
	}
	rt.serverConns = nil
	rt.mu.Unlock()

	if ln != nil {
		_ = ln.Close()
	}
	if client != nil {
		_ = client.Close()
	}
	for _, c := range conns {
		_ = c.Close()
	}

	logger.Info("link stopped", logger.KeyLinkID, rt.ID, logger.KeyLinkName, rt.Name)
}

// acceptLoop accepts peers for a server-mode link until the listener
// closes.
func (m *Manager) acceptLoop(rt *Runtime, ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if m.isCurrent(rt) {
				logger.Warn("link accept failed",
					logger.KeyLinkID, rt.ID, logger.KeyError, err.Error())
			}
			return
		}

		if tcp, ok := conn.(*net.TCPConn); ok {
			_ = tcp.SetNoDelay(true)
		}

		peer := conn.RemoteAddr().String()

		rt.mu.Lock()
		if rt.serverConns == nil {
			// Torn down while accepting.
			rt.mu.Unlock()
			_ = conn.Close()
			return
		}
		rt.serverConns[peer] = conn
		clients := len(rt.serverConns)
		rt.mu.Unlock()

		logger.Info("link peer connected",
			logger.KeyLinkID, rt.ID, logger.KeyPeerAddr, peer, logger.KeyClients, clients)

		if m.onConn != nil {
			m.onConn(rt.ID, peer, true)
		}

		go m.readLoop(rt, conn, peer)
	}
}

// connect performs one client connect attempt on the runtime's worker.
func (m *Manager) connect(rt *Runtime) {
	if !m.isCurrent(rt) {
		return
	}

	rt.mu.Lock()
	if rt.state != StateConnecting {
		rt.mu.Unlock()
		return
	}
	addr := net.JoinHostPort(rt.IP, strconv.Itoa(rt.Port))
	rt.mu.Unlock()

	conn, err := net.DialTimeout("tcp", addr, m.cfg.DialTimeout)
	if err != nil {
		rt.mu.Lock()
		rt.errMsg = err.Error()
		rt.transitionLocked(EventConnError)
		delay := rt.policy.NextDelay()
		attempt := rt.policy.Attempts()
		rt.mu.Unlock()

		logger.Warn("link connect failed",
			logger.KeyLinkID, rt.ID, logger.KeyBindAddr, addr,
			logger.KeyAttempt, attempt, logger.KeyDelayMs, delay.Milliseconds(),
			logger.KeyError, err.Error())

		m.scheduleReconnect(rt, delay)
		return
	}

	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}
	peer := conn.RemoteAddr().String()

	rt.mu.Lock()
	if _, ok := rt.transitionLocked(EventConnected); !ok {
		// Stopped while dialing.
		rt.mu.Unlock()
		_ = conn.Close()
		return
	}
	rt.clientConn = conn
	rt.mu.Unlock()

	logger.Info("link connected", logger.KeyLinkID, rt.ID, logger.KeyPeerAddr, peer)

	if m.onConn != nil {
		m.onConn(rt.ID, peer, true)
	}

	go m.readLoop(rt, conn, peer)
}

// scheduleReconnect arms a one-shot timer that re-enters connect on the
// runtime's worker. Cancellation is by identity: a replaced or removed
// runtime fails the isCurrent check and the callback exits.
func (m *Manager) scheduleReconnect(rt *Runtime, delay time.Duration) {
	m.mu.RLock()
	pool := m.pool
	m.mu.RUnlock()
	if pool == nil {
		return
	}

	pool.Schedule(rt.workerIdx, delay, func() {
		if !m.isCurrent(rt) {
			return
		}
		if _, ok := rt.transition(EventReconnectTimer); !ok {
			// Connected or stopped in the meantime.
			return
		}
		m.connect(rt)
	})
}

// readLoop pumps inbound bytes for one connection. The hot path takes
// no runtime lock: counters and last-activity are atomics, and the data
// callback is dispatched in order on the link's worker.
func (m *Manager) readLoop(rt *Runtime, conn net.Conn, peer string) {
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			m.stats.rxBytes.Add(uint64(n))
			m.stats.rxPackets.Add(1)
			rt.touch()

			data := make([]byte, n)
			copy(data, buf[:n])
			m.dispatchData(rt, peer, data)
		}
		if err != nil {
			break
		}
	}

	_ = conn.Close()
	m.connClosed(rt, conn, peer)
}

func (m *Manager) dispatchData(rt *Runtime, peer string, data []byte) {
	if m.onData == nil {
		return
	}
	m.mu.RLock()
	pool := m.pool
	m.mu.RUnlock()
	if pool == nil {
		return
	}
	if !pool.Submit(rt.workerIdx, func() { m.onData(rt.ID, peer, data) }) {
		logger.Warn("inbound data dropped",
			logger.KeyLinkID, rt.ID, logger.KeyPeerAddr, peer, logger.KeyFrameLen, len(data))
	}
}

// connClosed handles the end of a read loop for both modes.
func (m *Manager) connClosed(rt *Runtime, conn net.Conn, peer string) {
	rt.mu.Lock()
	if rt.serverConns != nil {
		if rt.serverConns[peer] == conn {
			delete(rt.serverConns, peer)
		}
		clients := len(rt.serverConns)
		rt.mu.Unlock()

		logger.Info("link peer disconnected",
			logger.KeyLinkID, rt.ID, logger.KeyPeerAddr, peer, logger.KeyClients, clients)

		if m.onConn != nil {
			m.onConn(rt.ID, peer, false)
		}
		return
	}

	// Client mode: only react if this is still the current connection
	// of the current runtime.
	if rt.clientConn != conn {
		rt.mu.Unlock()
		return
	}
	rt.clientConn = nil
	_, changed := rt.transitionLocked(EventDisconnected)
	var delay time.Duration
	var attempt int
	if changed {
		delay = rt.policy.NextDelay()
		attempt = rt.policy.Attempts()
	}
	rt.mu.Unlock()

	if m.onConn != nil {
		m.onConn(rt.ID, peer, false)
	}

	if changed && m.isCurrent(rt) {
		logger.Warn("link disconnected",
			logger.KeyLinkID, rt.ID, logger.KeyPeerAddr, peer,
			logger.KeyAttempt, attempt, logger.KeyDelayMs, delay.Milliseconds())
		m.scheduleReconnect(rt, delay)
	}
}

// write sends one buffer with the configured deadline, updating the tx
// counters. Callers hold the runtime mutex.
func (m *Manager) write(conn net.Conn, data []byte) {
	_ = conn.SetWriteDeadline(time.Now().Add(m.cfg.WriteTimeout))
	n, err := conn.Write(data)
	if n > 0 {
		m.stats.txBytes.Add(uint64(n))
		m.stats.txPackets.Add(1)
	}
	if err != nil {
		logger.Warn("link write failed",
			logger.KeyPeerAddr, conn.RemoteAddr().String(), logger.KeyError, err.Error())
	}
}
