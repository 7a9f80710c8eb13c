package i2cbus

import (
	"testing"

	"i2cbus-core/errcode"
)

func TestVirtualPinSetBuffersUntilSync(t *testing.T) {
	e, tr := testEngine(t)
	tr.putDevice(0x20, newSimDevice())
	s := newIOExpanderSet(e, nil)
	s.addExpander(IOExpanderConfig{Addr: 0x20, VPinBase: 0, NumPins: 16})

	res := s.virtualPinSet([]int{3}, []bool{true}, nil, nil)
	if res != errcode.Ok {
		t.Fatalf("virtualPinSet = %v, want Ok", res)
	}
	if !s.exps[0].dirty {
		t.Fatalf("expected shadow register marked dirty before sync")
	}

	s.sync(false)
	if s.exps[0].dirty {
		t.Fatalf("expected dirty flag cleared after sync")
	}
}

func TestVirtualPinSetInvokesCallbackOnce(t *testing.T) {
	e, tr := testEngine(t)
	tr.putDevice(0x20, newSimDevice())
	s := newIOExpanderSet(e, nil)
	s.addExpander(IOExpanderConfig{Addr: 0x20, VPinBase: 0, NumPins: 16})

	calls := 0
	cb := func(ud any, res Result) { calls++ }
	s.virtualPinSet([]int{1}, []bool{true}, cb, "x")
	s.virtualPinSet([]int{2}, []bool{false}, cb, "x") // same (cb,ud) pair: deduplicated
	s.sync(false)

	if calls != 1 {
		t.Fatalf("expected deduplicated callback to fire once, got %d", calls)
	}
}
