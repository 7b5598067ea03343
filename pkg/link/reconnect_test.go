package link

import (
	"testing"
	"time"
)

func TestReconnectDelayWindows(t *testing.T) {
	// Expected windows for base 2s, ceiling 300s, jitter 0.2.
	windows := map[int][2]time.Duration{
		0:  {1600 * time.Millisecond, 2400 * time.Millisecond},
		1:  {3200 * time.Millisecond, 4800 * time.Millisecond},
		2:  {6400 * time.Millisecond, 9600 * time.Millisecond},
		10: {240 * time.Second, 360 * time.Second},
	}

	// Sample the jitter range including its extremes.
	for _, sample := range []float64{0, 0.25, 0.5, 0.75, 0.999999} {
		p := NewReconnectPolicy(0, 0, 0)
		p.rng = func() float64 { return sample }

		for attempt := 0; attempt <= 10; attempt++ {
			d := p.NextDelay()
			w, checked := windows[attempt]
			if !checked {
				continue
			}
			if d < w[0] || d > w[1] {
				t.Errorf("attempt %d sample %.2f: delay %v outside [%v, %v]",
					attempt, sample, d, w[0], w[1])
			}
		}
	}
}

func TestReconnectCeilingClamp(t *testing.T) {
	p := NewReconnectPolicy(2*time.Second, 300*time.Second, 0.2)
	p.rng = func() float64 { return 1 } // max jitter

	var last time.Duration
	for i := 0; i < 64; i++ {
		d := p.NextDelay()
		if d > 360*time.Second {
			t.Fatalf("attempt %d: delay %v above jittered ceiling", i, d)
		}
		if i > 0 && i < 8 && d < last {
			t.Fatalf("attempt %d: delay decreased before ceiling (%v < %v)", i, d, last)
		}
		last = d
	}
}

func TestReconnectReset(t *testing.T) {
	p := NewReconnectPolicy(0, 0, 0)
	p.rng = func() float64 { return 0.5 }

	for i := 0; i < 5; i++ {
		p.NextDelay()
	}
	if p.Attempts() != 5 {
		t.Fatalf("attempts = %d", p.Attempts())
	}

	p.Reset()
	if p.Attempts() != 0 {
		t.Fatal("reset did not clear attempts")
	}
	if d := p.NextDelay(); d != 2*time.Second {
		t.Errorf("post-reset delay = %v, want 2s at midpoint jitter", d)
	}
}

func TestReconnectDefaults(t *testing.T) {
	p := NewReconnectPolicy(0, 0, -1)
	if p.Base != DefaultReconnectBase || p.Ceiling != DefaultReconnectCeiling || p.Jitter != DefaultReconnectJitter {
		t.Errorf("defaults not applied: %+v", p)
	}
}
