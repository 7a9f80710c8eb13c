// i2cbus/mux.go
package i2cbus

import (
	"time"

	"i2cbus-core/errcode"
)

const (
	muxMax              = 8
	muxChannelsPerChip  = 8
	busClearAttempts    = 5
	detectionThreshold  = 2
	maxCascadeLevel     = 5
	postStuckPowerDelay = 200 * time.Millisecond
)

// MuxConfig is the §6 mux configuration descriptor.
type MuxConfig struct {
	Enable    bool
	MinAddr   uint8
	MaxAddr   uint8
	ResetPins []int
}

// muxRecord is the per-chip state of §3's "Multiplexer record".
type muxRecord struct {
	addr            uint8
	isOnline        bool
	detectionCount  int
	connSlot        uint8 // slot through which this mux itself is reached; 0 = main bus
	currentMask     uint8
	maskWrittenOK   bool
}

// MultiplexerTree tracks up to muxMax mux chips in a configurable address
// range, and exposes enable_one_slot as the hot path through which every
// bus operation reaches a slot (§4.5).
type MultiplexerTree struct {
	cfg     MuxConfig
	eng     I2CCentral
	stuck   *BusStuckHandler
	power   *PowerController
	exps    *IOExpanderSet
	muxes   []*muxRecord
	log     Logger
}

func newMultiplexerTree(cfg MuxConfig, eng I2CCentral, stuck *BusStuckHandler, power *PowerController) *MultiplexerTree {
	return &MultiplexerTree{cfg: cfg, eng: eng, stuck: stuck, power: power}
}

// attachLogger wires the optional diagnostic sink consulted by the
// recovery escalation loop (§4.5, §10.1).
func (m *MultiplexerTree) attachLogger(log Logger) { m.log = log }

func (m *MultiplexerTree) recordFor(addr uint8) *muxRecord {
	for _, r := range m.muxes {
		if r.addr == addr {
			return r
		}
	}
	return nil
}

// addMux registers a candidate mux address discovered by the scanner,
// creating its record on first sight.
func (m *MultiplexerTree) addMux(addr uint8) *muxRecord {
	if r := m.recordFor(addr); r != nil {
		return r
	}
	if len(m.muxes) >= muxMax {
		return nil
	}
	r := &muxRecord{addr: addr}
	m.muxes = append(m.muxes, r)
	return r
}

// enableOneSlot is the hot path described in §4.5.
func (m *MultiplexerTree) enableOneSlot(slotNum uint8) Result {
	if res := m.recoverIfStuck(slotNum); res != errcode.Ok {
		return res
	}

	if slotNum == 0 {
		m.disableAllSlots(false)
		return errcode.Ok
	}

	muxIdx, chanIdx := divmod(int(slotNum)-1, muxChannelsPerChip)
	if muxIdx < 0 || muxIdx >= len(m.muxes) {
		return errcode.Invalid
	}

	if m.power != nil && !m.power.isSlotPowerStable(slotNum) {
		return errcode.SlotPowerUnstable
	}

	res := m.setSlotEnables(m.muxes[muxIdx], uint8(1<<uint(chanIdx)), false, 0)
	if res != errcode.Ok {
		return res
	}

	if m.stuck.isStuck() {
		res = m.recoverStuckForSlot(slotNum)
		if res != errcode.Ok {
			return res
		}
	}
	return errcode.Ok
}

// recoverIfStuck implements step 1 of §4.5's enable_one_slot algorithm.
func (m *MultiplexerTree) recoverIfStuck(slotNum uint8) Result {
	if !m.stuck.isStuck() {
		return errcode.Ok
	}
	return m.recoverStuckForSlot(slotNum)
}

// recoverStuckForSlot runs the escalating recovery loop: clock pulses,
// disable-all, slot power cycle, repeated up to busClearAttempts times.
func (m *MultiplexerTree) recoverStuckForSlot(slotNum uint8) Result {
	for attempt := 0; attempt < busClearAttempts; attempt++ {
		m.stuck.clearByClocking()
		if !m.stuck.isStuck() {
			return errcode.Ok
		}
		m.disableAllSlots(true)
		if !m.stuck.isStuck() {
			return errcode.Ok
		}
		if m.power != nil {
			m.power.powerCycleSlot(slotNum, nowMS())
		}
		time.Sleep(postStuckPowerDelay)
		m.stuck.clearByClocking()
		if !m.stuck.isStuck() {
			return errcode.Ok
		}
		m.log.logf("i2cbus: slot %d still stuck after recovery attempt %d/%d", slotNum, attempt+1, busClearAttempts)
	}
	return errcode.BusStuck
}

// setSlotEnables enables exactly one channel on rec, recursing through
// rec.connSlot if the chip is itself reached via another mux slot (capped
// at maxCascadeLevel; cycles fail Invalid).
func (m *MultiplexerTree) setSlotEnables(rec *muxRecord, mask uint8, force bool, depth int) Result {
	if depth > maxCascadeLevel {
		return errcode.Invalid
	}
	if rec.connSlot != 0 {
		if visitedCycle(rec, m.muxes) {
			return errcode.Invalid
		}
		if res := m.enableOneSlot(rec.connSlot); res != errcode.Ok {
			return res
		}
	}
	return m.setSlotEnablesDirect(rec.addr, mask)
}

// visitedCycle reports whether rec's conn_slot path would revisit rec
// itself, guarding against a declared-acyclic tree that was misconfigured.
func visitedCycle(rec *muxRecord, all []*muxRecord) bool {
	seen := map[uint8]bool{rec.addr: true}
	slot := rec.connSlot
	for depth := 0; depth < maxCascadeLevel+1 && slot != 0; depth++ {
		muxIdx, _ := divmod(int(slot)-1, muxChannelsPerChip)
		if muxIdx < 0 || muxIdx >= len(all) {
			return false
		}
		next := all[muxIdx]
		if seen[next.addr] {
			return true
		}
		seen[next.addr] = true
		slot = next.connSlot
	}
	return false
}

// setSlotEnablesDirect writes the channel-select register of one mux chip
// without recursing, used both by enableOneSlot and by IOExpanderSet.sync
// for mux-gated expanders.
func (m *MultiplexerTree) setSlotEnablesDirect(addr uint8, mask uint8) Result {
	res, _ := m.eng.Access(addr, []byte{mask}, nil)
	if r := m.recordFor(addr); r != nil {
		r.maskWrittenOK = res == errcode.Ok
		if res == errcode.Ok {
			r.currentMask = mask
		}
	}
	return res
}

// disableAllSlots ensures current_channel_mask == 0 on all muxes. If
// hardware reset pins are configured, pulse them; any detected
// second-level muxes are written 0 directly first, since reset pins
// cannot reach them (§4.5).
func (m *MultiplexerTree) disableAllSlots(force bool) {
	for _, r := range m.muxes {
		if r.connSlot != 0 {
			m.setSlotEnablesDirect(r.addr, 0)
		}
	}
	if len(m.cfg.ResetPins) > 0 {
		m.pulseResetPins()
	}
	for _, r := range m.muxes {
		m.setSlotEnablesDirect(r.addr, 0)
	}
}

func (m *MultiplexerTree) pulseResetPins() {
	if m.exps == nil {
		return
	}
	levels := make([]bool, len(m.cfg.ResetPins))
	m.exps.virtualPinSet(m.cfg.ResetPins, levels, nil, nil)
	for i := range levels {
		levels[i] = true
	}
	m.exps.virtualPinSet(m.cfg.ResetPins, levels, nil, nil)
}

// elemStateChange is called by the scanner for every probe (§4.5). For
// mux addresses it increments a per-mux detection counter; transitions to
// is_online only after detectionThreshold consistent observations on the
// same conn_slot. Returns true if the mux newly came online, signalling
// "topology changed" to the scanner.
func (m *MultiplexerTree) elemStateChange(addr uint8, slot uint8, responding bool) (topologyChanged bool) {
	r := m.recordFor(addr)
	if r == nil {
		return false
	}
	if !responding {
		r.detectionCount = 0
		return false
	}
	if r.isOnline && r.connSlot == slot {
		return false
	}
	if r.connSlot != slot {
		r.connSlot = slot
		r.detectionCount = 0
	}
	r.detectionCount++
	if r.detectionCount < detectionThreshold {
		return false
	}
	r.isOnline = true
	m.setSlotEnablesDirect(r.addr, 0)
	return true
}

// divmod returns (a/b, a%b) for non-negative a and positive b, or
// (-1, -1) if either input is invalid.
func divmod(a, b int) (int, int) {
	if a < 0 || b <= 0 {
		return -1, -1
	}
	return a / b, a % b
}
