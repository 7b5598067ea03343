package link

import (
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Mode is the configured transport role of a link.
type Mode string

const (
	ModeServer Mode = "TCP Server"
	ModeClient Mode = "TCP Client"
)

// Runtime is the in-memory counterpart of a configured link while it is
// running. It is exclusively owned by the Manager; I/O goroutines hold
// it by reference and must tolerate it no longer being the current
// runtime for its link id (identity is re-checked via the manager table).
type Runtime struct {
	ID   string
	Name string
	Mode Mode
	IP   string
	Port int

	// workerIdx pins the runtime's callbacks to one pool worker.
	workerIdx int

	mu          sync.Mutex
	state       State
	policy      *ReconnectPolicy
	listener    net.Listener
	serverConns map[string]net.Conn
	clientConn  net.Conn
	errMsg      string

	// lastActivity is unix milliseconds, updated lock-free on the hot
	// receive path.
	lastActivity atomic.Int64
}

// Status is the externally visible snapshot of one link runtime.
type Status struct {
	LinkID       string   `json:"link_id"`
	Name         string   `json:"name"`
	Mode         string   `json:"mode"`
	ConnStatus   string   `json:"conn_status"`
	ErrorMsg     string   `json:"error_msg,omitempty"`
	ClientCount  int      `json:"client_count"`
	Clients      []string `json:"clients,omitempty"`
	LastActivity string   `json:"last_activity,omitempty"`
}

func (r *Runtime) touch() {
	r.lastActivity.Store(time.Now().UnixMilli())
}

// State returns the current state under the runtime mutex.
func (r *Runtime) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// transition applies ev under the runtime mutex and returns whether the
// state changed. Policy resets on successful connect and on stop.
func (r *Runtime) transition(ev Event) (State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transitionLocked(ev)
}

func (r *Runtime) transitionLocked(ev Event) (State, bool) {
	next, ok := Transition(r.state, ev)
	if !ok {
		return r.state, false
	}
	r.state = next

	switch ev {
	case EventConnected:
		r.policy.Reset()
		r.errMsg = ""
	case EventStop:
		r.policy.Reset()
		r.errMsg = ""
	}
	return next, true
}

// status builds the snapshot under the runtime mutex.
func (r *Runtime) status() *Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := &Status{
		LinkID:     r.ID,
		Name:       r.Name,
		Mode:       string(r.Mode),
		ConnStatus: r.state.External(),
		ErrorMsg:   r.errMsg,
	}

	if r.Mode == ModeServer {
		s.Clients = make([]string, 0, len(r.serverConns))
		for addr := range r.serverConns {
			s.Clients = append(s.Clients, addr)
		}
		s.ClientCount = len(s.Clients)
	} else if r.clientConn != nil {
		s.ClientCount = 1
	}

	if ms := r.lastActivity.Load(); ms > 0 {
		s.LastActivity = time.UnixMilli(ms).Format(time.RFC3339)
	}
	return s
}
