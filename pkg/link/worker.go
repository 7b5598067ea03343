package link

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hydronet-io/hydrogate/internal/logger"
)

// Pool is a fixed set of I/O workers. Each link is pinned to one worker,
// so a link never concurrently executes its own callbacks; different
// links run in parallel across workers.
type Pool struct {
	workers []chan func()
	next    atomic.Uint32

	// mu serializes Submit against Shutdown so a task is never sent on
	// a closed worker channel.
	mu     sync.RWMutex
	closed bool

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewPool creates and starts n workers. n <= 0 uses the hardware
// concurrency, falling back to 4.
func NewPool(n int) *Pool {
	if n <= 0 {
		n = runtime.NumCPU()
		if n <= 0 {
			n = 4
		}
	}

	p := &Pool{workers: make([]chan func(), n)}
	for i := range p.workers {
		ch := make(chan func(), 128)
		p.workers[i] = ch
		p.wg.Add(1)
		go p.run(ch)
	}
	return p
}

func (p *Pool) run(tasks chan func()) {
	defer p.wg.Done()
	for fn := range tasks {
		p.invoke(fn)
	}
}

func (p *Pool) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("link worker task panicked", "panic", r)
		}
	}()
	fn()
}

// Size returns the worker count.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Assign returns the next worker index by round-robin.
func (p *Pool) Assign() int {
	return int(p.next.Add(1)-1) % len(p.workers)
}

// Submit queues fn on worker idx. Returns false once the pool is shut
// down or when the worker's queue is full.
func (p *Pool) Submit(idx int, fn func()) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return false
	}
	select {
	case p.workers[idx%len(p.workers)] <- fn:
		return true
	default:
		logger.Warn("link worker queue full, task dropped", "worker", idx)
		return false
	}
}

// Schedule runs fn on worker idx after d. The returned timer can be
// stopped, but cancellation of reconnect logic is done by identity
// checks in the callback, not by stopping timers.
func (p *Pool) Schedule(idx int, d time.Duration, fn func()) *time.Timer {
	return time.AfterFunc(d, func() {
		p.Submit(idx, fn)
	})
}

// Shutdown stops accepting tasks and waits for queued tasks to drain.
func (p *Pool) Shutdown() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		for _, ch := range p.workers {
			close(ch)
		}
		p.mu.Unlock()
	})
	p.wg.Wait()
}
