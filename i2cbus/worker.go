// i2cbus/worker.go
package i2cbus

import (
	"time"

	"i2cbus-core/errcode"
)

// loopsBeforeYield bounds how many Steps BusWorker runs before asking its
// caller to yield, and i2cLoopYieldMs is the sleep yieldDuration returns
// for that yield — a cooperative-loop idiom, not preemptive threading
// (§4.11).
const (
	i2cLoopYieldMs   = 2
	loopsBeforeYield = 8
)

// BusWorker drives one physical bus's ordered service loop: power/mux
// bookkeeping, address scanning, one queued request, identification of
// newly-online addresses, identified-device polling, then flushing the
// buffered IO-expander state — in that order,
// every call to Step (§4.11's per-iteration ordering).
type BusWorker struct {
	eng    I2CCentral
	stuck  *BusStuckHandler
	power  *PowerController
	mux    *MultiplexerTree
	exps   *IOExpanderSet
	status *StatusManager
	scan   *Scanner
	ident  *IdentityManager
	poll   *PollingManager
	acc    *Accessor
	stats  *BusStats

	loopCount int
}

// attachStats wires the optional diagnostics counters in after
// construction, since BusStats is owned by Bus rather than threaded
// through every component constructor.
func (w *BusWorker) attachStats(s *BusStats) { w.stats = s }

func newBusWorker(
	eng I2CCentral,
	stuck *BusStuckHandler,
	power *PowerController,
	mux *MultiplexerTree,
	exps *IOExpanderSet,
	status *StatusManager,
	scan *Scanner,
	ident *IdentityManager,
	poll *PollingManager,
	acc *Accessor,
) *BusWorker {
	return &BusWorker{
		eng: eng, stuck: stuck, power: power, mux: mux, exps: exps,
		status: status, scan: scan, ident: ident, poll: poll, acc: acc,
	}
}

// Step runs exactly one iteration of the bus worker loop (§4.11):
//  1. power/mux state-machine tick
//  2. one scanner step (up to its sweep budget of probes), unless the
//     accessor is paused for low-traffic
//  3. drain and service one queued request
//  4. hand newly-online, untyped addresses to identification
//  5. dispatch one identified-device poll if due
//  6. flush the buffered IO-expander writes
//
// It returns whether the worker should yield (once every loopsBeforeYield
// calls) so callers driving a tight loop know when to sleep rather than
// spin.
func (w *BusWorker) Step(nowMs int64, nowUS int64) (shouldYield bool) {
	w.power.taskService(nowMs)

	if !w.acc.paused {
		w.scan.taskService()
	}

	if req := w.acc.takeNext(); req != nil {
		w.serviceRequest(req, nowMs)
	}

	w.dispatchPendingIdentification()
	w.poll.taskService(nowMs, nowUS)

	w.exps.sync(false)

	w.loopCount++
	if w.loopCount >= loopsBeforeYield {
		w.loopCount = 0
		return true
	}
	return false
}

// serviceRequest routes one accessor request through the mux tree and
// runs it, invoking its callback with the outcome. A request to an address
// still inside its access bar is answered with Barred without touching the
// bus.
func (w *BusWorker) serviceRequest(req *busRequest, nowMs int64) {
	if w.status.barElemAccessGet(req.addr, nowMs) {
		if req.cb != nil {
			req.cb(req.userData, errcode.Barred, nil)
		}
		return
	}
	i2cAddr, slot := req.addr.Unpack()
	if res := w.mux.enableOneSlot(slot); res != errcode.Ok {
		if req.cb != nil {
			req.cb(req.userData, res, nil)
		}
		return
	}
	res, _ := w.eng.Access(i2cAddr, req.write, req.readBuf)
	w.mux.disableAllSlots(false)
	if w.stats != nil {
		w.stats.recordResult(res)
	}
	if req.cb != nil {
		req.cb(req.userData, res, req.readBuf)
	}
}

// dispatchPendingIdentification hands any newly-online, not-yet-typed
// address to IdentityManager. StatusManager's drainStatusChanges is the
// public surface for "newly online"; the worker peeks it via a dedicated
// pending-identification scan rather than consuming the batch meant for
// the bus-level status callback.
func (w *BusWorker) dispatchPendingIdentification() {
	w.status.mu.Lock()
	var candidates []Addr
	for addr, st := range w.status.table {
		if st.isOnline && st.deviceTypeIdx == unknownDeviceType && !st.slotResolved {
			candidates = append(candidates, addr)
		}
	}
	w.status.mu.Unlock()

	for _, addr := range candidates {
		w.ident.identify(addr)
		w.status.mu.Lock()
		if st, ok := w.status.table[addr]; ok {
			st.slotResolved = true
		}
		w.status.mu.Unlock()
	}
}

// yieldDuration is the sleep BusWorker's caller should use between Step
// calls once Step reports shouldYield.
func yieldDuration() time.Duration {
	return i2cLoopYieldMs * time.Millisecond
}
