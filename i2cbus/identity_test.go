package i2cbus

import (
	"testing"

	"i2cbus-core/errcode"
)

func newTestIdentityManager(t *testing.T) (*IdentityManager, *hostTransport, *StatusManager) {
	t.Helper()
	eng, ht := NewHostEngine()
	if err := eng.Init(PortConfig{FreqHz: 100_000}); err != nil {
		t.Fatalf("init: %v", err)
	}
	stuck := newBusStuckHandler(eng)
	power := newPowerController(nil, nil)
	mux := newMultiplexerTree(MuxConfig{}, eng, stuck, power)
	status := newStatusManager()
	im := newIdentityManager(eng, mux, status, defaultCatalog())
	return im, ht, status
}

func TestIdentifyMatchesAHT20(t *testing.T) {
	im, ht, status := newTestIdentityManager(t)
	dev := &simDevice{ack: true}
	dev.regs[0x71] = aht20StatusCalibrated
	ht.putDevice(0x38, dev)

	addr := Pack(0x38, 0)
	status.probeResult(addr, true)
	status.probeResult(addr, true)

	if res := im.identify(addr); res != errcode.Ok {
		t.Fatalf("identify failed: %v", res)
	}
	if !status.isIdentified(addr) {
		t.Fatalf("expected device identified")
	}
}

func TestIdentifyNoCandidateMatch(t *testing.T) {
	im, ht, status := newTestIdentityManager(t)
	ht.putDevice(0x38, &simDevice{ack: true}) // regs all zero: status byte won't match calibrated bit

	addr := Pack(0x38, 0)
	status.probeResult(addr, true)
	status.probeResult(addr, true)

	if res := im.identify(addr); res != errcode.NotReady {
		t.Fatalf("expected NotReady for no match, got %v", res)
	}
	if status.isIdentified(addr) {
		t.Fatalf("expected device to remain unidentified")
	}
}

func TestIdentifyUnknownAddressNoCandidates(t *testing.T) {
	im, ht, status := newTestIdentityManager(t)
	ht.putDevice(0x55, &simDevice{ack: true})

	addr := Pack(0x55, 0)
	status.probeResult(addr, true)
	status.probeResult(addr, true)

	if res := im.identify(addr); res != errcode.NotReady {
		t.Fatalf("expected NotReady, got %v", res)
	}
}
