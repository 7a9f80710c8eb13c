// i2cbus/scanner.go
package i2cbus

import "i2cbus-core/errcode"

// scanState walks Idle -> MainBusMuxOnly -> MainBus -> ScanFast -> ScanSlow
// and back to ScanFast, per §4.7. MainBusMuxOnly confirms mux chips
// themselves before anything behind them is trusted; MainBus then sweeps
// the rest of slot 0; ScanFast/ScanSlow alternate over the slot tree,
// servicing a weighted round-robin of caller-supplied address priority
// tiers rather than a fixed internal priority scheme (SPEC_FULL §13.3
// decision).
type scanState int

const (
	scanIdle scanState = iota
	scanMainBusMuxOnly
	scanMainBus
	scanFast
	scanSlow
)

// mainBusConfirmPasses is how many full MainBusMuxOnly/MainBus sweeps run
// before moving on (§4.7: "repeated enough times to surface any mux
// topology"). Set equal to okMax so a device seen on every pass has
// exactly enough ACKs to debounce online before ScanFast/ScanSlow take
// over the bus's attention.
const mainBusConfirmPasses = okMax

// ScannerConfig names the address sweep range used while confirming mux
// topology, and the priority-tiered address lists consulted once the
// scanner settles into ScanFast/ScanSlow.
type ScannerConfig struct {
	AddrMin, AddrMax uint8
	SweepBudget      int // probes per call during MainBusMuxOnly/MainBus; 0 defaults to 4

	// PriorityTiers partitions addresses into priority tiers, numerically
	// ascending index = lower priority (§4.7). A nil/empty PriorityTiers
	// falls back to one flat tier spanning AddrMin..AddrMax, so the
	// scanner degrades to simple round-robin sweeping when no priority
	// data is supplied.
	PriorityTiers [][]uint8
	// TierCounts[i] is the number of tier-0 steps per one step of tier i:
	// tier i is serviced once every TierCounts[i] calls (TierCounts[0] is
	// always treated as 1 — tier 0 steps on every call). Approximates a
	// weighted round-robin (§4.7, §8 scenario 6).
	TierCounts []int
	// ScanBoost addresses are folded into tier 0 ahead of whatever else
	// is configured there, and also probed on every MainBusMuxOnly/
	// MainBus pass so a caller-known-important address is confirmed
	// before the scanner settles into priority scanning.
	ScanBoost []uint8
}

// tierCursor tracks one priority tier's sweep position: the index into
// its address list, and the slot currently being probed for that address.
type tierCursor struct {
	addrIdx int
	slot    uint8
}

// Scanner is §4.7's address sweep coordinator: it asks MultiplexerTree to
// enable one slot at a time, probes the configured address range with
// zero-length accesses, and feeds every ACK/no-ACK into StatusManager.
type Scanner struct {
	eng    I2CCentral
	stuck  *BusStuckHandler
	mux    *MultiplexerTree
	status *StatusManager
	cfg    ScannerConfig

	state      scanState
	curAddr    uint8 // MainBusMuxOnly/MainBus linear sweep cursor
	passesLeft int   // full sweeps remaining in the current MainBusMuxOnly/MainBus state
	numSlots   uint8

	tiers      [][]uint8    // tiers[0] is highest priority; ScanBoost is folded in
	tierCounts []int        // tierCounts[i]: tier i stepped once per tierCounts[i] calls
	cursors    []tierCursor // one sweep position per tier
	tierSteps  uint64       // calls serviced in ScanFast/ScanSlow, drives the round-robin

	stats *BusStats
}

// attachStats wires the optional diagnostics counters in after
// construction (§7/SPEC_FULL §12's per-scan-state counts).
func (sc *Scanner) attachStats(s *BusStats) { sc.stats = s }

type scanTier int

const (
	tierMainBus scanTier = iota
	tierFast
	tierSlow
)

func (sc *Scanner) bumpTierStat(tier scanTier) {
	if sc.stats == nil {
		return
	}
	switch tier {
	case tierMainBus:
		sc.stats.ScanMainBus.Add(1)
	case tierFast:
		sc.stats.ScanFast.Add(1)
	case tierSlow:
		sc.stats.ScanSlow.Add(1)
	}
}

func newScanner(eng I2CCentral, stuck *BusStuckHandler, mux *MultiplexerTree, status *StatusManager, numSlots uint8, cfg ScannerConfig) *Scanner {
	if cfg.SweepBudget <= 0 {
		cfg.SweepBudget = 4
	}

	var tiers [][]uint8
	if len(cfg.PriorityTiers) == 0 {
		full := make([]uint8, 0, int(cfg.AddrMax)-int(cfg.AddrMin)+1)
		for a := int(cfg.AddrMin); a <= int(cfg.AddrMax); a++ {
			full = append(full, uint8(a))
		}
		tiers = [][]uint8{full}
	} else {
		tiers = make([][]uint8, len(cfg.PriorityTiers))
		for i, t := range cfg.PriorityTiers {
			tiers[i] = append([]uint8(nil), t...)
		}
	}
	if len(cfg.ScanBoost) > 0 {
		tiers[0] = append(append([]uint8(nil), cfg.ScanBoost...), tiers[0]...)
	}

	counts := make([]int, len(tiers))
	for i := range counts {
		counts[i] = 1
		if i < len(cfg.TierCounts) && cfg.TierCounts[i] > 0 {
			counts[i] = cfg.TierCounts[i]
		}
	}
	counts[0] = 1

	return &Scanner{
		eng: eng, stuck: stuck, mux: mux, status: status, cfg: cfg,
		numSlots: numSlots, state: scanIdle,
		tiers: tiers, tierCounts: counts, cursors: make([]tierCursor, len(tiers)),
	}
}

// onTopologyChanged is called by probe whenever the mux tree's
// elemStateChange reports a newly-online mux, and whenever StatusManager's
// probeResult reports an address newly online; the scanner resets to
// MainBusMuxOnly so the tree is re-validated from the root before
// fast/slow resume.
func (sc *Scanner) onTopologyChanged() {
	sc.state = scanMainBusMuxOnly
	sc.passesLeft = mainBusConfirmPasses
	sc.curAddr = sc.cfg.AddrMin
}

// probe performs one ACK/no-ACK check at (slot, i2cAddr) and reports it.
// Addresses inside the mux tree's configured window are routed through
// MultiplexerTree.elemStateChange instead of StatusManager, since mux
// chips are topology, not polled devices (§4.5/§4.7).
func (sc *Scanner) probe(slot uint8, i2cAddr uint8) {
	res, _ := sc.eng.Access(i2cAddr, nil, nil)
	acked := res == errcode.Ok

	if sc.mux.cfg.Enable && i2cAddr >= sc.mux.cfg.MinAddr && i2cAddr <= sc.mux.cfg.MaxAddr {
		sc.mux.addMux(i2cAddr)
		if sc.mux.elemStateChange(i2cAddr, slot, acked) {
			sc.onTopologyChanged()
		}
		return
	}

	addr := Pack(i2cAddr, slot)
	if sc.status.probeResult(addr, acked) {
		sc.onTopologyChanged()
	}
}

// taskService advances the scan state machine by up to one tier's probe
// budget. It is the single entry point the bus worker calls once per loop
// iteration (§4.11).
func (sc *Scanner) taskService() {
	if sc.stuck.isStuck() {
		sc.status.informBusStuck()
		sc.state = scanIdle
		return
	}

	switch sc.state {
	case scanIdle:
		sc.state = scanMainBusMuxOnly
		sc.passesLeft = mainBusConfirmPasses
		sc.curAddr = sc.cfg.AddrMin
		return

	case scanMainBusMuxOnly:
		sc.sweepBoost()
		sc.sweepMainBus(sc.cfg.SweepBudget, true)
		sc.bumpTierStat(tierMainBus)

	case scanMainBus:
		sc.sweepBoost()
		sc.sweepMainBus(sc.cfg.SweepBudget, false)
		sc.bumpTierStat(tierMainBus)

	case scanFast, scanSlow:
		sc.sweepPriority()
		tier := tierFast
		if sc.state == scanSlow {
			tier = tierSlow
		}
		sc.bumpTierStat(tier)
	}

	sc.mux.disableAllSlots(false)
}

// sweepBoost probes the ScanBoost address list on the main bus ahead of
// the ordinary tier-0 sweep, every MainBusMuxOnly/MainBus pass, so a
// caller-known-important address (e.g. a supervisor chip) is re-checked
// before the slower linear sweep gets to it.
func (sc *Scanner) sweepBoost() {
	for _, a := range sc.cfg.ScanBoost {
		sc.probe(0, a)
	}
}

// sweepMainBus probes slot 0 over the configured range. muxOnly restricts
// the sweep to the mux address window (confirming mux chips themselves);
// a full pass then either repeats (mainBusConfirmPasses) or, once
// exhausted, transitions onward: MainBusMuxOnly to MainBus, MainBus to
// ScanFast.
func (sc *Scanner) sweepMainBus(budget int, muxOnly bool) {
	lo := sc.cfg.AddrMin
	hi := sc.cfg.AddrMax
	if muxOnly {
		lo = sc.mux.cfg.MinAddr
		hi = sc.mux.cfg.MaxAddr
		if sc.curAddr < lo {
			sc.curAddr = lo
		}
	}
	for i := 0; i < budget && sc.curAddr <= hi; i++ {
		sc.probe(0, sc.curAddr)
		if sc.curAddr == 0xFF {
			break
		}
		sc.curAddr++
	}
	if sc.curAddr <= hi {
		return
	}

	sc.passesLeft--
	if sc.passesLeft > 0 {
		sc.curAddr = lo
		return
	}
	if muxOnly {
		sc.state = scanMainBus
	} else {
		sc.state = scanFast
	}
	sc.passesLeft = mainBusConfirmPasses
	sc.curAddr = sc.cfg.AddrMin
}

// sweepPriority services one weighted-round-robin step across the
// priority tiers built from PriorityTiers/ScanBoost (§4.7). Tier 0 steps
// on every call; tier i steps once every TierCounts[i] calls, so over N
// calls tier i is serviced ~N/TierCounts[i] times, and the fastest tier
// is never starved by the slower ones (§8 scenario 6).
func (sc *Scanner) sweepPriority() {
	sc.tierSteps++
	if sc.stepTier(0) {
		sc.toggleFastSlow()
	}
	for i := 1; i < len(sc.tiers); i++ {
		if sc.tierSteps%uint64(sc.tierCounts[i]) == 0 {
			sc.stepTier(i)
		}
	}
}

// stepTier probes the next (address, slot) pair from tier i and advances
// its cursor, wrapping the slot range before the address index and the
// address index before the whole tier's list. Reports whether this step
// completed a full address x slot cycle for the tier (used by tier 0 to
// drive the ScanFast/ScanSlow toggle).
func (sc *Scanner) stepTier(i int) (wrapped bool) {
	list := sc.tiers[i]
	if len(list) == 0 || sc.numSlots == 0 {
		return false
	}
	cur := &sc.cursors[i]
	if cur.slot == 0 {
		cur.slot = 1
	}
	addr := list[cur.addrIdx]

	if sc.status.isOnline(Pack(addr, 0)) {
		// Already confirmed present on the main bus; a mux channel can't
		// change what address a downstream device answers to, so probing
		// it again behind a slot would only re-derive a fact the
		// main-bus sweep already established (§4.7).
	} else if res := sc.mux.enableOneSlot(cur.slot); res == errcode.Ok {
		sc.probe(cur.slot, addr)
	}

	cur.slot++
	if cur.slot > sc.numSlots {
		cur.slot = 1
		cur.addrIdx++
		if cur.addrIdx >= len(list) {
			cur.addrIdx = 0
			wrapped = true
		}
	}
	return wrapped
}

func (sc *Scanner) toggleFastSlow() {
	if sc.state == scanFast {
		sc.state = scanSlow
	} else {
		sc.state = scanFast
	}
}
