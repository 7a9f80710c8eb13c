package i2cbus

import "testing"

func newTestPollingManager(t *testing.T) (*PollingManager, *hostTransport, *StatusManager) {
	t.Helper()
	eng, ht := NewHostEngine()
	if err := eng.Init(PortConfig{FreqHz: 100_000}); err != nil {
		t.Fatalf("init: %v", err)
	}
	stuck := newBusStuckHandler(eng)
	power := newPowerController(nil, nil)
	mux := newMultiplexerTree(MuxConfig{}, eng, stuck, power)
	status := newStatusManager()
	pm := newPollingManager(eng, mux, status)
	return pm, ht, status
}

func TestPollingManagerStoresCompletedRecord(t *testing.T) {
	pm, ht, status := newTestPollingManager(t)
	dev := &simDevice{ack: true}
	dev.regs[0x08] = 0x10
	dev.regs[0x09] = 0x00
	ht.putDevice(0x60, dev)

	addr := Pack(0x60, 0)
	status.probeResult(addr, true)
	status.probeResult(addr, true)
	info := &PollingInfo{Steps: vcnl4040.Poll.Steps, IntervalUS: 1000}
	status.setBusElemDeviceStatus(addr, 0, info, 4)

	pm.taskService(0, 1000)

	st := status.table[addr]
	if st.ring.count != 1 {
		t.Fatalf("expected one stored poll result, got %d", st.ring.count)
	}
	if info.NextStepIdx != 0 {
		t.Fatalf("expected step index reset after completion, got %d", info.NextStepIdx)
	}
}

func TestPollingManagerRespectsBarAfterMS(t *testing.T) {
	pm, ht, status := newTestPollingManager(t)
	dev := &simDevice{ack: true}
	dev.regs[0] = aht20StatusCalibrated
	ht.putDevice(0x38, dev)

	addr := Pack(0x38, 0)
	status.probeResult(addr, true)
	status.probeResult(addr, true)
	info := &PollingInfo{Steps: aht20Type.Poll.Steps, IntervalUS: 1000}
	status.setBusElemDeviceStatus(addr, 1, info, 4)

	pm.taskService(100, 1000)
	if info.NextStepIdx != 1 {
		t.Fatalf("expected suspension after barred step, got idx %d", info.NextStepIdx)
	}
	st := status.table[addr]
	if st.ring.count != 0 {
		t.Fatalf("expected no stored record before bar elapses")
	}

	pm.taskService(300, 2000) // bar (80ms) long elapsed by t=300
	if st.ring.count != 1 {
		t.Fatalf("expected record stored after resumed poll completed")
	}
}
