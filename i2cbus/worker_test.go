package i2cbus

import "testing"

func newTestWorker(t *testing.T) (*BusWorker, *hostTransport, *StatusManager, *Accessor) {
	t.Helper()
	eng, ht := NewHostEngine()
	if err := eng.Init(PortConfig{FreqHz: 100_000}); err != nil {
		t.Fatalf("init: %v", err)
	}
	stuck := newBusStuckHandler(eng)
	power := newPowerController(nil, nil)
	mux := newMultiplexerTree(MuxConfig{}, eng, stuck, power)
	exps := newIOExpanderSet(eng, mux)
	status := newStatusManager()
	scCfg := ScannerConfig{AddrMin: 0x08, AddrMax: 0x77, SweepBudget: 8}
	scan := newScanner(eng, stuck, mux, status, 1, scCfg)
	ident := newIdentityManager(eng, mux, status, defaultCatalog())
	poll := newPollingManager(eng, mux, status)
	acc := newAccessor()
	w := newBusWorker(eng, stuck, power, mux, exps, status, scan, ident, poll, acc)
	return w, ht, status, acc
}

func TestWorkerStepYieldsAfterLoopsBeforeYield(t *testing.T) {
	w, _, _, _ := newTestWorker(t)
	yielded := false
	for i := 0; i < loopsBeforeYield; i++ {
		if w.Step(int64(i), int64(i)*1000) {
			yielded = true
			break
		}
	}
	if !yielded {
		t.Fatalf("expected a yield within loopsBeforeYield iterations")
	}
}

func TestWorkerServicesQueuedRequest(t *testing.T) {
	w, ht, _, acc := newTestWorker(t)
	dev := &simDevice{ack: true}
	dev.regs[0x00] = 0x42
	ht.putDevice(0x60, dev)

	addr := Pack(0x60, 0)
	var gotRes Result
	var gotBuf []byte
	acc.addRequest(addr, []byte{0x00}, make([]byte, 1), 1, RequestStd, func(ud any, res Result, buf []byte) {
		gotRes = res
		gotBuf = buf
	}, nil)

	w.Step(0, 0)
	if gotRes != "ok" {
		t.Fatalf("expected ok result, got %v", gotRes)
	}
	if len(gotBuf) != 1 || gotBuf[0] != 0x42 {
		t.Fatalf("unexpected read buffer: %v", gotBuf)
	}
}

func TestWorkerDispatchesIdentificationOnceOnline(t *testing.T) {
	w, ht, status, _ := newTestWorker(t)
	dev := &simDevice{ack: true}
	dev.regs[0x71] = aht20StatusCalibrated
	ht.putDevice(0x38, dev)

	addr := Pack(0x38, 0)
	status.probeResult(addr, true)
	status.probeResult(addr, true) // debounced online

	for i := 0; i < 4; i++ {
		w.Step(int64(i), int64(i)*1000)
	}
	if !status.isIdentified(addr) {
		t.Fatalf("expected device identified after a few worker steps")
	}
}
