package sl651

import (
	"sort"
	"sync"
	"time"
)

// session accumulates the fragments of one multi-packet transmission,
// keyed by remoteCode + "_" + funcCode.
type session struct {
	totalPk int
	bodies  map[int][]byte
	raws    map[int][]byte
	start   time.Time
}

func newSession(totalPk int, now time.Time) *session {
	return &session{
		totalPk: totalPk,
		bodies:  make(map[int][]byte),
		raws:    make(map[int][]byte),
		start:   now,
	}
}

func (s *session) complete() bool {
	return len(s.bodies) == s.totalPk
}

// sessionTable is the multi-packet reassembly table. Expiry is lazy: the
// sweep runs on every fragment arrival, for all keys.
type sessionTable struct {
	mu       sync.Mutex
	sessions map[string]*session
	max      int
	ttl      time.Duration
	now      func() time.Time
}

func newSessionTable(max int, ttl time.Duration, now func() time.Time) *sessionTable {
	if max <= 0 {
		max = MaxSessionCount
	}
	if ttl <= 0 {
		ttl = DefaultSessionTimeout
	}
	if now == nil {
		now = time.Now
	}
	return &sessionTable{
		sessions: make(map[string]*session),
		max:      max,
		ttl:      ttl,
		now:      now,
	}
}

type addOutcome int

const (
	addPending addOutcome = iota
	addComplete
	addDropped
)

// add records one fragment. On completion it returns the bodies and raw
// frames in sequence order 1..totalPk and removes the session. expired
// reports how many stale sessions the sweep removed.
func (t *sessionTable) add(f *Frame) (bodies, raws [][]byte, outcome addOutcome, expired int) {
	key := f.RemoteCode + "_" + f.FuncCode
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	// Sweep stale sessions first so an expired entry never absorbs a
	// fragment of a new transmission.
	for k, s := range t.sessions {
		if now.Sub(s.start) > t.ttl {
			delete(t.sessions, k)
			expired++
		}
	}

	s, ok := t.sessions[key]
	if !ok {
		// New keys are rejected when the table is full; fragments for
		// already-known keys are always accepted. No LRU.
		if len(t.sessions) >= t.max {
			outcome = addDropped
			return
		}
		s = newSession(f.TotalPk, now)
		t.sessions[key] = s
	} else if s.totalPk != f.TotalPk {
		// A different totalPk means the device started a new
		// transmission; discard what we had.
		s = newSession(f.TotalPk, now)
		t.sessions[key] = s
	}

	s.bodies[f.SeqPk] = f.Body
	if len(f.RawFrames) == 1 {
		s.raws[f.SeqPk] = f.RawFrames[0]
	}

	if !s.complete() {
		outcome = addPending
		return
	}

	delete(t.sessions, key)

	seqs := make([]int, 0, len(s.bodies))
	for seq := range s.bodies {
		seqs = append(seqs, seq)
	}
	sort.Ints(seqs)

	for _, seq := range seqs {
		bodies = append(bodies, s.bodies[seq])
		raws = append(raws, s.raws[seq])
	}
	outcome = addComplete
	return
}

// size returns the current session count.
func (t *sessionTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}
