package i2cbus

import "testing"

func newTestScanner(t *testing.T) (*Scanner, *hostTransport) {
	t.Helper()
	eng, ht := NewHostEngine()
	if err := eng.Init(PortConfig{FreqHz: 100_000}); err != nil {
		t.Fatalf("init: %v", err)
	}
	stuck := newBusStuckHandler(eng)
	power := newPowerController(nil, nil)
	muxCfg := MuxConfig{Enable: true, MinAddr: 0x70, MaxAddr: 0x71}
	mux := newMultiplexerTree(muxCfg, eng, stuck, power)
	status := newStatusManager()
	cfg := ScannerConfig{AddrMin: 0x08, AddrMax: 0x77, SweepBudget: 8}
	sc := newScanner(eng, stuck, mux, status, 8, cfg)
	return sc, ht
}

func TestScannerStartsIdleThenMainBusMuxOnly(t *testing.T) {
	sc, _ := newTestScanner(t)
	if sc.state != scanIdle {
		t.Fatalf("expected initial state idle")
	}
	sc.taskService()
	if sc.state != scanMainBusMuxOnly {
		t.Fatalf("expected transition to MainBusMuxOnly, got %v", sc.state)
	}
}

func TestScannerDiscoversDeviceOnMainBus(t *testing.T) {
	sc, ht := newTestScanner(t)
	ht.putDevice(0x38, &simDevice{ack: true})

	sc.taskService() // idle -> mainBusMuxOnly
	for i := 0; i < 80 && sc.state != scanMainBus; i++ {
		sc.taskService()
	}
	for i := 0; i < 80 && sc.state == scanMainBus; i++ {
		sc.taskService()
	}

	addr := Pack(0x38, 0)
	if !sc.status.isOnline(addr) {
		t.Fatalf("expected device 0x38 slot 0 to be discovered online after the main-bus confirmation passes")
	}
}

func TestScannerBusStuckInformsStatusAndResets(t *testing.T) {
	sc, ht := newTestScanner(t)
	ht.stuck = true
	sc.state = scanFast
	sc.taskService()
	if sc.state != scanIdle {
		t.Fatalf("expected reset to idle on stuck bus, got %v", sc.state)
	}
}

// TestScannerPriorityRoundRobinWeightsTiers exercises §8 scenario 6: with
// three tiers and counts {1, 4, 10}, tier 0 is stepped on every call while
// tiers 1 and 2 are stepped only once every 4th/10th call, so over 40
// calls tier 0 is serviced ~40 times, tier 1 ~10, tier 2 ~4.
func TestScannerPriorityRoundRobinWeightsTiers(t *testing.T) {
	eng, _ := NewHostEngine()
	if err := eng.Init(PortConfig{FreqHz: 100_000}); err != nil {
		t.Fatalf("init: %v", err)
	}
	stuck := newBusStuckHandler(eng)
	power := newPowerController(nil, nil)
	mux := newMultiplexerTree(MuxConfig{}, eng, stuck, power)
	status := newStatusManager()

	cfg := ScannerConfig{
		AddrMin: 0x08, AddrMax: 0x77,
		PriorityTiers: [][]uint8{{0x10}, {0x20}, {0x30}},
		TierCounts:    []int{1, 4, 10},
	}
	// numSlots=2 so each step toggles its tier's cursor between two
	// distinct (addrIdx, slot) values, making "was this tier stepped this
	// call" observable as a plain inequality check below.
	sc := newScanner(eng, stuck, mux, status, 2, cfg)
	sc.state = scanFast

	var tier0Steps, tier1Steps, tier2Steps int
	for i := 0; i < 40; i++ {
		c0, c1, c2 := sc.cursors[0], sc.cursors[1], sc.cursors[2]
		sc.sweepPriority()
		if sc.cursors[0] != c0 {
			tier0Steps++
		}
		if sc.cursors[1] != c1 {
			tier1Steps++
		}
		if sc.cursors[2] != c2 {
			tier2Steps++
		}
	}

	if tier0Steps != 40 {
		t.Fatalf("expected tier 0 stepped on every call (40), got %d", tier0Steps)
	}
	if tier1Steps != 10 {
		t.Fatalf("expected tier 1 stepped ~10 times (40/4), got %d", tier1Steps)
	}
	if tier2Steps != 4 {
		t.Fatalf("expected tier 2 stepped ~4 times (40/10), got %d", tier2Steps)
	}
	if tier0Steps <= tier1Steps || tier1Steps <= tier2Steps {
		t.Fatalf("expected the fastest tier to never be starved by the slower ones: tier0=%d tier1=%d tier2=%d", tier0Steps, tier1Steps, tier2Steps)
	}
}
