package i2cbus

import (
	"testing"

	"i2cbus-core/errcode"
)

func TestEnableOneSlotZeroAlwaysOk(t *testing.T) {
	e, _ := testEngine(t)
	stuck := newBusStuckHandler(e)
	m := newMultiplexerTree(MuxConfig{}, e, stuck, nil)

	if res := m.enableOneSlot(0); res != errcode.Ok {
		t.Fatalf("enableOneSlot(0) = %v, want Ok", res)
	}
}

func TestEnableOneSlotBusStuckEscalates(t *testing.T) {
	e, tr := testEngine(t)
	stuck := newBusStuckHandler(e)
	m := newMultiplexerTree(MuxConfig{}, e, stuck, nil)
	m.addMux(0x70)
	tr.stuck = true

	if res := m.enableOneSlot(1); res != errcode.BusStuck {
		t.Fatalf("enableOneSlot under stuck bus = %v, want BusStuck", res)
	}
}

func TestMuxElemStateChangeRequiresThreshold(t *testing.T) {
	e, _ := testEngine(t)
	stuck := newBusStuckHandler(e)
	m := newMultiplexerTree(MuxConfig{}, e, stuck, nil)
	m.addMux(0x70)

	if changed := m.elemStateChange(0x70, 0, true); changed {
		t.Fatalf("single observation must not bring mux online")
	}
	if changed := m.elemStateChange(0x70, 0, true); !changed {
		t.Fatalf("expected topology change at detectionThreshold observations")
	}
}

func TestMuxNewSlotResetsDetection(t *testing.T) {
	e, _ := testEngine(t)
	stuck := newBusStuckHandler(e)
	m := newMultiplexerTree(MuxConfig{}, e, stuck, nil)
	m.addMux(0x70)

	m.elemStateChange(0x70, 0, true)
	// Observed on a different slot: does not transition to online on this
	// observation alone (§8 boundary behavior).
	if changed := m.elemStateChange(0x70, 3, true); changed {
		t.Fatalf("slot change must reset detection count, not carry it over")
	}
}

func TestDivmod(t *testing.T) {
	muxIdx, chanIdx := divmod(8, 8)
	if muxIdx != 1 || chanIdx != 0 {
		t.Fatalf("divmod(8,8) = (%d,%d), want (1,0)", muxIdx, chanIdx)
	}
}
