// i2cbus/accessor.go
package i2cbus

import "i2cbus-core/errcode"

// Request queue sizing (§4.10). maxPollList is the cap under normal load;
// lowLoadPollList is the smaller cap applied while the accessor is paused.
const (
	maxPollList     = 30
	lowLoadPollList = 4
	addReqMaxMs     = 2

	reqWarnWindowMs = 1000 // rate-limit the "buffer full" warning to 1/s
)

// RequestKind is §3's request-kind vocabulary. Only SendEvenIfPaused and
// FwUpdate bypass Pause(true); everything else is held back (left queued,
// not dropped) while paused (§4.10).
type RequestKind int

const (
	RequestStd RequestKind = iota
	RequestScanFast
	RequestScanSlow
	RequestPoll
	RequestSendEvenIfPaused
	RequestFwUpdate
)

func (k RequestKind) bypassesPause() bool {
	return k == RequestSendEvenIfPaused || k == RequestFwUpdate
}

// BusRequestCallback is invoked once a queued request completes.
type BusRequestCallback func(userData any, res Result, readBuf []byte)

// busRequest is one queued one-shot transaction (§4.10).
type busRequest struct {
	addr     Addr
	write    []byte
	readBuf  []byte
	cb       BusRequestCallback
	userData any
	weight   int // stored with the request; takeNext does not use it
	kind     RequestKind
}

// Accessor is the bus's one-shot request queue: callers submit
// (addr, write, readBuf) transactions via AddRequest, and the bus worker
// drains one per loop iteration through takeNext, oldest eligible request
// first. Accessor holds one-shot requests only; it keeps no polling vector
// and does no weighted round-robin scheduling (§4.10).
type Accessor struct {
	queue      []*busRequest
	paused     bool
	hiatus     bool
	reqBufFull uint64
	rrCursor   int

	log      Logger
	warnGate warnGate
}

func newAccessor() *Accessor {
	return &Accessor{}
}

// attachLogger wires the optional rate-limited warning sink (§4.10's
// "warns (rate-limited)" on overflow).
func (a *Accessor) attachLogger(log Logger) { a.log = log }

// capacity returns the current queue cap: maxPollList under normal
// operation, lowLoadPollList once paused (low-traffic hint from the
// caller, not an error condition).
func (a *Accessor) capacity() int {
	if a.paused {
		return lowLoadPollList
	}
	return maxPollList
}

// addRequest enqueues a transaction. Over-capacity submissions are
// rejected with errcode.Busy, counted in ReqBufferFull, and reported
// through the rate-limited warning (§4.10).
func (a *Accessor) addRequest(addr Addr, write, readBuf []byte, weight int, kind RequestKind, cb BusRequestCallback, userData any) Result {
	if a.hiatus {
		return errcode.NotReady
	}
	if len(a.queue) >= a.capacity() {
		a.reqBufFull++
		if a.warnGate.allow(nowMS(), reqWarnWindowMs) {
			a.log.logf("i2cbus: request buffer full (cap=%d), dropping add_request for %s", a.capacity(), addr.String())
		}
		return errcode.Busy
	}
	if weight <= 0 {
		weight = 1
	}
	a.queue = append(a.queue, &busRequest{
		addr: addr, write: write, readBuf: readBuf,
		cb: cb, userData: userData, weight: weight, kind: kind,
	})
	return errcode.Ok
}

// takeNext pops the oldest eligible request (FIFO order); request weights
// do not affect the order. While paused, requests whose kind doesn't
// bypass pause are skipped in place — left queued for when the pause
// lifts — rather than dropped (§4.10's pause semantics).
func (a *Accessor) takeNext() *busRequest {
	if a.hiatus || len(a.queue) == 0 {
		return nil
	}
	if a.rrCursor >= len(a.queue) {
		a.rrCursor = 0
	}
	start := a.rrCursor
	for i := 0; i < len(a.queue); i++ {
		idx := (start + i) % len(a.queue)
		req := a.queue[idx]
		if a.paused && !req.kind.bypassesPause() {
			continue
		}
		a.queue = append(a.queue[:idx], a.queue[idx+1:]...)
		if idx < a.rrCursor || a.rrCursor >= len(a.queue) {
			a.rrCursor = 0
		}
		return req
	}
	return nil
}

// setPaused toggles the low-load request cap; non-bypass requests are
// held back from takeNext (not dropped) while paused (§4.10).
func (a *Accessor) setPaused(paused bool) { a.paused = paused }

// setHiatus stops the queue from accepting or yielding requests while set;
// Bus reports BusLockedUp for as long as it is set (§4.2/§4.5).
func (a *Accessor) setHiatus(h bool) { a.hiatus = h }

func (a *Accessor) reqBufferFullCount() uint64 { return a.reqBufFull }

func (a *Accessor) pending() int { return len(a.queue) }
