package i2cbus

import "testing"

func newTestBus(t *testing.T) (*Bus, *hostTransport) {
	t.Helper()
	eng, ht := NewHostEngine()
	cfg := BusConfig{
		Port:     PortConfig{FreqHz: 100_000},
		NumSlots: 1,
		Scanner:  ScannerConfig{AddrMin: 0x08, AddrMax: 0x77, SweepBudget: 8},
	}
	b, err := NewBus(eng, cfg)
	if err != nil {
		t.Fatalf("NewBus: %v", err)
	}
	return b, ht
}

func TestNewBusStepsWithoutPanicking(t *testing.T) {
	b, _ := newTestBus(t)
	for i := 0; i < 20; i++ {
		b.Step(int64(i), int64(i)*1000)
	}
}

func TestBusElemStatusCallbackFiresOnDiscovery(t *testing.T) {
	b, ht := newTestBus(t)
	dev := &simDevice{ack: true}
	dev.regs[0x71] = aht20StatusCalibrated
	ht.putDevice(0x38, dev)

	var sawOnline bool
	b.OnElemStatusChange(func(changes []ElemStatusChange) {
		for _, c := range changes {
			if c.IsChangeToOnline {
				sawOnline = true
			}
		}
	})

	for i := 0; i < 200 && !sawOnline; i++ {
		b.Step(int64(i), int64(i)*1000)
	}
	if !sawOnline {
		t.Fatalf("expected an online status-change callback within 200 steps")
	}
}

func TestBusOperationStatusReflectsEngineHealth(t *testing.T) {
	b, ht := newTestBus(t)
	var last BusOperationStatus
	b.OnOperationStatus(func(s BusOperationStatus) { last = s })

	ht.stuck = true
	for i := 0; i < 5; i++ {
		b.Step(int64(i), int64(i)*1000)
	}
	if last != BusLockedUp {
		t.Fatalf("expected BusLockedUp once the engine reports unhealthy, got %v", last)
	}
}

func TestAddRequestThroughBus(t *testing.T) {
	b, ht := newTestBus(t)
	dev := &simDevice{ack: true}
	dev.regs[0] = 0x7A
	ht.putDevice(0x60, dev)

	addr := Pack(0x60, 0)
	var got byte
	if res := b.AddRequest(addr, []byte{0x00}, make([]byte, 1), 1, RequestStd, func(ud any, res Result, buf []byte) {
		if len(buf) == 1 {
			got = buf[0]
		}
	}, nil); res != "ok" {
		t.Fatalf("AddRequest failed: %v", res)
	}

	b.Step(0, 0)
	if got != 0x7A {
		t.Fatalf("expected request result 0x7A, got %#x", got)
	}
}
