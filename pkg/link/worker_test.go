package link

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolSerializesPerWorker(t *testing.T) {
	p := NewPool(2)
	defer p.Shutdown()

	var mu sync.Mutex
	var order []int
	done := make(chan struct{})

	for i := 0; i < 10; i++ {
		i := i
		last := i == 9
		if !p.Submit(0, func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			if last {
				close(done)
			}
		}) {
			t.Fatal("submit rejected")
		}
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("tasks did not run")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, got := range order {
		if got != i {
			t.Fatalf("order = %v: worker did not run tasks FIFO", order)
		}
	}
}

func TestPoolAssignRoundRobin(t *testing.T) {
	p := NewPool(3)
	defer p.Shutdown()

	seen := make(map[int]int)
	for i := 0; i < 9; i++ {
		seen[p.Assign()]++
	}
	for w := 0; w < 3; w++ {
		if seen[w] != 3 {
			t.Errorf("worker %d assigned %d links, want 3", w, seen[w])
		}
	}
}

func TestPoolSubmitAfterShutdown(t *testing.T) {
	p := NewPool(1)
	p.Shutdown()

	if p.Submit(0, func() {}) {
		t.Error("submit accepted after shutdown")
	}
}

func TestPoolSchedule(t *testing.T) {
	p := NewPool(1)
	defer p.Shutdown()

	var fired atomic.Bool
	done := make(chan struct{})
	p.Schedule(0, 10*time.Millisecond, func() {
		fired.Store(true)
		close(done)
	})

	if fired.Load() {
		t.Fatal("timer fired immediately")
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduled task never ran")
	}
}

func TestPoolRecoversFromPanic(t *testing.T) {
	p := NewPool(1)
	defer p.Shutdown()

	done := make(chan struct{})
	p.Submit(0, func() { panic("boom") })
	p.Submit(0, func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker died after panic")
	}
}

func TestPoolDefaultSize(t *testing.T) {
	p := NewPool(0)
	defer p.Shutdown()
	if p.Size() < 1 {
		t.Errorf("size = %d", p.Size())
	}
}
