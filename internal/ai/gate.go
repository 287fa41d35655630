package ai

import (
	"sync"
	"time"
)

// rateGate enforces a minimum interval between calls sharing a key.
// now and sleep are swappable for tests.
type rateGate struct {
	mu       sync.Mutex
	interval time.Duration
	last     map[string]time.Time
	now      func() time.Time
	sleep    func(time.Duration)
}

func newRateGate(interval time.Duration) *rateGate {
	return &rateGate{
		interval: interval,
		last:     map[string]time.Time{},
		now:      time.Now,
		sleep:    time.Sleep,
	}
}

// wait blocks until the interval since the last call with the same key
// has elapsed, then records the call.
func (g *rateGate) wait(key string) {
	g.mu.Lock()
	now := g.now()
	elapsed := now.Sub(g.last[key])
	var pause time.Duration
	if last, ok := g.last[key]; ok && elapsed < g.interval {
		pause = g.interval - now.Sub(last)
	}
	g.last[key] = now.Add(pause)
	g.mu.Unlock()

	if pause > 0 {
		g.sleep(pause)
	}
}
