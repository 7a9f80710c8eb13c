package i2cbus

import (
	"testing"

	"i2cbus-core/errcode"
)

func testEngine(t *testing.T) (*Engine, *hostTransport) {
	t.Helper()
	e, tr := NewHostEngine()
	if err := e.Init(PortConfig{Port: "i2c0", FreqHz: 400_000}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return e, tr
}

func TestAccessReadWriteRoundTrip(t *testing.T) {
	e, tr := testEngine(t)
	dev := newSimDevice()
	dev.regs[0x10] = 0xAB
	tr.putDevice(0x40, dev)

	res, n := e.Access(0x40, []byte{0x10}, nil)
	if res != errcode.Ok {
		t.Fatalf("write got %v", res)
	}
	_ = n

	buf := make([]byte, 1)
	res, n = e.Access(0x40, []byte{0x10}, buf)
	if res != errcode.Ok || n != 1 || buf[0] != 0xAB {
		t.Fatalf("read got (%v,%d) buf=%v", res, n, buf)
	}
}

func TestAccessAckError(t *testing.T) {
	e, _ := testEngine(t)
	res, _ := e.Access(0x50, nil, nil)
	if res != errcode.AckError {
		t.Fatalf("expected AckError for unpopulated address, got %v", res)
	}
}

func TestAccessBudgetExceeded(t *testing.T) {
	e, tr := testEngine(t)
	tr.putDevice(0x40, newSimDevice())

	big := make([]byte, maxCmdBytes*(hwQueueSize-1)) // forces > hwQueueSize-2 commands
	res, _ := e.Access(0x40, big, nil)
	if res != errcode.Invalid {
		t.Fatalf("expected Invalid for oversize transaction, got %v", res)
	}
}

func TestAccessBusStuck(t *testing.T) {
	e, tr := testEngine(t)
	tr.putDevice(0x40, newSimDevice())
	tr.stuck = true

	res, _ := e.Access(0x40, nil, nil)
	if res != errcode.BusStuck {
		t.Fatalf("expected BusStuck, got %v", res)
	}
}

func TestCommandBudgetProbe(t *testing.T) {
	n, ok := commandBudget(0, 0)
	if !ok || n != 1 {
		t.Fatalf("probe budget = (%d,%v), want (1,true)", n, ok)
	}
}

func TestCommandBudgetSplitsLargeWrite(t *testing.T) {
	n, ok := commandBudget(maxCmdBytes+1, 0)
	if !ok || n != 2 {
		t.Fatalf("split budget = (%d,%v), want (2,true)", n, ok)
	}
}
