// i2cbus/stats.go
package i2cbus

import (
	"sync"
	"sync/atomic"
)

// BusStats is the counter block exposed for diagnostics: one counter per
// result code the engine can return, plus per-scan-state (MainBus, ScanFast,
// ScanSlow) counts and the
// request-queue backpressure counter (§7/SPEC_FULL §12). A mutex guards
// only the lazy creation of a result code's counter; the counters
// themselves are atomic so hot-path increments never block each other.
type BusStats struct {
	mu           sync.Mutex
	resultCounts map[Result]*atomic.Uint64

	ScanMainBus   atomic.Uint64
	ScanFast      atomic.Uint64
	ScanSlow      atomic.Uint64
	ReqBufferFull atomic.Uint64
}

func newBusStats() *BusStats {
	return &BusStats{resultCounts: map[Result]*atomic.Uint64{}}
}

// recordResult increments the counter for res, creating it on first sight.
// Counters are created lazily rather than pre-enumerated so a new engine
// result code never requires a stats-layer change.
func (s *BusStats) recordResult(res Result) {
	s.mu.Lock()
	c, ok := s.resultCounts[res]
	if !ok {
		c = &atomic.Uint64{}
		s.resultCounts[res] = c
	}
	s.mu.Unlock()
	c.Add(1)
}

// Snapshot returns a point-in-time copy of every result counter.
func (s *BusStats) Snapshot() map[Result]uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[Result]uint64, len(s.resultCounts))
	for res, c := range s.resultCounts {
		out[res] = c.Load()
	}
	return out
}
