// i2cbus/stuck.go
package i2cbus

import "time"

// probeAddr is the benign address BusStuckHandler probes when trying to
// nudge a wedged slave into releasing SDA. 0x00 is the general-call
// address, acked by no real peripheral, which makes it safe to probe
// blind on every bus.
const probeAddr = 0x00

// clearClockPulses bounds how many fast-scan probes clear_by_clocking
// issues per call.
const clearClockPulses = 9

// sampleGap is the delay between the two line samples is_stuck() takes.
const sampleGap = 50 * time.Microsecond

// BusStuckHandler detects and recovers a bus where SDA or SCL is held low
// while the controller is idle (§4.2). It is not retried internally —
// callers (MultiplexerTree.enable_one_slot, §4.5) own the escalation loop.
type BusStuckHandler struct {
	eng I2CCentral
}

func newBusStuckHandler(eng I2CCentral) *BusStuckHandler {
	return &BusStuckHandler{eng: eng}
}

// isStuck samples both lines twice with a short delay and returns true
// only if both samples read low on either line.
func (h *BusStuckHandler) isStuck() bool {
	sda1, scl1 := h.eng.SampleLines()
	time.Sleep(sampleGap)
	sda2, scl2 := h.eng.SampleLines()
	return (sda1 && sda2) || (scl1 && scl2)
}

// clearByClocking issues a bounded number of fast-scan probes to a benign
// address; the hardware-level pulses nudge a stuck slave to release SDA.
func (h *BusStuckHandler) clearByClocking() {
	for i := 0; i < clearClockPulses; i++ {
		h.eng.Access(probeAddr, nil, nil)
	}
}
