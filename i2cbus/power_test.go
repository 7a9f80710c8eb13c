package i2cbus

import "testing"

func withFakeClock(t *testing.T, start int64) func(delta int64) {
	t.Helper()
	cur := start
	origMS := nowMS
	nowMS = func() int64 { return cur }
	t.Cleanup(func() { nowMS = origMS })
	return func(delta int64) { cur += delta }
}

func testGroup() *PowerSlotGroup {
	return &PowerSlotGroup{
		Name: "cameras", StartSlot: 1, NumSlots: 4, DefaultLevelIdx: 0,
		LevelsExclOff: []PowerLevelPins{
			{VPins: []int{0}, OnLevels: []bool{true}},
		},
	}
}

func TestPowerControllerUncontrolledSlotIsStable(t *testing.T) {
	p := newPowerController(nil, nil)
	if !p.isSlotPowerStable(9) {
		t.Fatalf("expected uncontrolled slot to report stable")
	}
}

func TestPowerControllerStateMachineTimings(t *testing.T) {
	advance := withFakeClock(t, 0)
	p := newPowerController(nil, []*PowerSlotGroup{testGroup()})

	if p.isSlotPowerStable(1) {
		t.Fatalf("slot should start unstable")
	}

	advance(startupOffMS)
	p.taskService(nowMS())
	if p.slots[1].state != offDuringCycle {
		t.Fatalf("expected offDuringCycle, got %v", p.slots[1].state)
	}

	advance(cycleOffMS)
	p.taskService(nowMS())
	if p.slots[1].state != onWaitStable {
		t.Fatalf("expected onWaitStable, got %v", p.slots[1].state)
	}

	advance(stabilizeMS)
	p.taskService(nowMS())
	if !p.isSlotPowerStable(1) {
		t.Fatalf("expected stable after full sequence")
	}
}

func TestPowerCycleSlotForcesOffDuringCycle(t *testing.T) {
	p := newPowerController(nil, []*PowerSlotGroup{testGroup()})
	p.slots[1].state = atRequiredLevel
	p.powerCycleSlot(1, 1000)
	if p.slots[1].state != offDuringCycle {
		t.Fatalf("expected offDuringCycle after power cycle, got %v", p.slots[1].state)
	}
}
