// i2cbus/power.go
package i2cbus

import (
	"i2cbus-core/errcode"
	"i2cbus-core/x/mathx"
)

// Power state machine timings (§4.4).
const (
	startupOffMS  = 100
	cycleOffMS    = 500
	stabilizeMS   = 100
)

// powerState is one slot's position in the §4.4 state machine.
type powerState int

const (
	offPermanent powerState = iota
	offPreInit
	offDuringCycle
	onWaitStable
	atRequiredLevel
)

// PowerLevelPins lists the (virtual-pin, active-level) pairs for one
// voltage level, excluding OFF (§6: `levels_excl_off`).
type PowerLevelPins struct {
	VPins    []int
	OnLevels []bool
}

// PowerSlotGroup is a contiguous range of slots sharing a default voltage
// level and a per-level pin list (§3's "Power-control group").
type PowerSlotGroup struct {
	Name            string
	StartSlot       uint8
	NumSlots        uint8
	DefaultLevelIdx int
	LevelsExclOff   []PowerLevelPins
}

type slotPowerRecord struct {
	group       *PowerSlotGroup
	state       powerState
	lastChange  int64
	level       int // index into group.LevelsExclOff, -1 == OFF
}

// PowerController is the per-slot power state machine built on
// IOExpanderSet (§4.4).
type PowerController struct {
	exps   *IOExpanderSet
	groups []*PowerSlotGroup
	slots  map[uint8]*slotPowerRecord
}

func newPowerController(exps *IOExpanderSet, groups []*PowerSlotGroup) *PowerController {
	p := &PowerController{exps: exps, groups: groups, slots: map[uint8]*slotPowerRecord{}}
	for _, g := range groups {
		for i := uint8(0); i < g.NumSlots; i++ {
			slot := g.StartSlot + i
			p.slots[slot] = &slotPowerRecord{group: g, state: offPreInit, level: -1}
		}
	}
	return p
}

// taskService advances every slot's state machine by one tick (§4.4's
// transition table), called once per worker cycle with now_ms.
func (p *PowerController) taskService(nowMs int64) {
	for slot, r := range p.slots {
		elapsed := nowMs - r.lastChange
		switch r.state {
		case offPreInit:
			if elapsed >= startupOffMS {
				r.state = offDuringCycle
				r.lastChange = nowMs
			}
		case offDuringCycle:
			if elapsed >= cycleOffMS {
				r.state = onWaitStable
				r.lastChange = nowMs
				p.applyLevel(slot, r)
			}
		case onWaitStable:
			if elapsed >= stabilizeMS {
				r.state = atRequiredLevel
				r.lastChange = nowMs
			}
		}
	}
}

// isSlotPowerStable reports power_state[s] == AT_REQUIRED_LEVEL. If a slot
// has no configured power control, it cannot be unstable and this returns
// true. If slot 0 itself has no controller, queries fall back to slot 0
// (preserved literally per the open-question decision, SPEC_FULL §13.1).
func (p *PowerController) isSlotPowerStable(slot uint8) bool {
	r, ok := p.slots[slot]
	if !ok {
		// Uncontrolled slot: cannot be unstable. Covers both "slot has no
		// group" and the slot-0 fallback case literally, since an
		// uncontrolled slot 0 falls into this same branch.
		return true
	}
	return r.state == atRequiredLevel
}

// powerCycleSlot forces slot s through OFF_DURING_CYCLE regardless of its
// current state (§4.4's "any → OFF_DURING_CYCLE" transition).
func (p *PowerController) powerCycleSlot(s uint8, reasonTimeMs int64) {
	r, ok := p.slots[s]
	if !ok {
		return
	}
	r.state = offDuringCycle
	r.lastChange = reasonTimeMs
	r.level = -1
}

// enableSlot turns a slot fully on (default level) or fully off.
func (p *PowerController) enableSlot(s uint8, on bool) Result {
	r, ok := p.slots[s]
	if !ok {
		return errcode.Invalid
	}
	if !on {
		r.level = -1
		return p.writeLevel(r, -1)
	}
	return p.setVoltageLevel(s, r.group.DefaultLevelIdx)
}

// setVoltageLevel composes a bitmap across the slot's voltage-level pin
// records: exactly one of the per-level pins active, all others inactive;
// level == -1 (OFF) deactivates all (§4.4).
func (p *PowerController) setVoltageLevel(s uint8, level int) Result {
	r, ok := p.slots[s]
	if !ok {
		return errcode.Invalid
	}
	level = mathx.Clamp(level, -1, len(r.group.LevelsExclOff)-1)
	r.level = level
	return p.writeLevel(r, level)
}

func (p *PowerController) applyLevel(slot uint8, r *slotPowerRecord) {
	level := r.level
	if level < 0 {
		level = r.group.DefaultLevelIdx
		r.level = level
	}
	p.writeLevel(r, level)
}

func (p *PowerController) writeLevel(r *slotPowerRecord, level int) Result {
	if p.exps == nil {
		return errcode.Ok
	}
	for i, lvl := range r.group.LevelsExclOff {
		active := i == level
		levels := make([]bool, len(lvl.VPins))
		for j := range levels {
			if active {
				levels[j] = lvl.OnLevels[j]
			} else {
				levels[j] = !lvl.OnLevels[j]
			}
		}
		p.exps.virtualPinSet(lvl.VPins, levels, nil, nil)
	}
	return errcode.Ok
}
