// i2cbus/pollmanager.go
package i2cbus

import "i2cbus-core/errcode"

// PollingManager executes one identified device's poll sequence per
// task_service call (§4.9): route to the device's slot, run the next due
// step, and on full completion store the assembled record into its ring.
// A step whose BarAfterMS is non-zero suspends the sequence — the bar
// itself lives in StatusManager, where BusWorker also checks it before
// servicing a queued Accessor request — and resumes on a later call once
// the bar has elapsed.
type PollingManager struct {
	eng    I2CCentral
	mux    *MultiplexerTree
	status *StatusManager
}

func newPollingManager(eng I2CCentral, mux *MultiplexerTree, status *StatusManager) *PollingManager {
	return &PollingManager{eng: eng, mux: mux, status: status}
}

// taskService runs the single next-due poll across all identified devices,
// if any is due at nowUS.
func (pm *PollingManager) taskService(nowMs int64, nowUS int64) {
	due, ok := pm.status.getPendingIdentPoll(nowUS)
	if !ok {
		return
	}
	pm.runOneDevice(due.Addr, due.Polling, nowMs, nowUS)
}

// runOneDevice executes as many consecutive poll steps as are ready right
// now (i.e. not behind an unexpired bar), accumulating raw bytes, and
// stores the full record once every step has run.
func (pm *PollingManager) runOneDevice(addr Addr, info *PollingInfo, nowMs int64, nowUS int64) {
	i2cAddr, slot := addr.Unpack()

	if pm.status.barElemAccessGet(addr, nowMs) {
		return
	}
	if res := pm.mux.enableOneSlot(slot); res != errcode.Ok {
		return
	}

	var raw []byte
	for info.NextStepIdx < len(info.Steps) {
		step := info.Steps[info.NextStepIdx]
		readBuf := make([]byte, step.ReadLen)
		res, _ := pm.eng.Access(i2cAddr, step.Write, readBuf)
		if res != errcode.Ok {
			info.NextStepIdx = 0
			pm.mux.disableAllSlots(false)
			return
		}
		raw = append(raw, readBuf...)
		info.NextStepIdx++

		if step.BarAfterMS > 0 && info.NextStepIdx < len(info.Steps) {
			pm.status.barElemAccessSet(addr, nowMs, int64(step.BarAfterMS))
			pm.mux.disableAllSlots(false)
			return
		}
	}

	pm.status.pollResultStore(addr, raw, nowUS)
	pm.mux.disableAllSlots(false)
}
