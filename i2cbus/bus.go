// i2cbus/bus.go
package i2cbus

import (
	"context"
	"time"

	"i2cbus-core/errcode"
)

// BusOperationStatus is the §7 health signal. Unknown covers the window
// before the first Step has run a full probe cycle; Operational mirrors
// I2CCentral.IsOperatingOK; BusLockedUp names a lockup the worker cannot
// clear through BusStuckHandler's normal escalation, or a configured
// lockup-detect address that has stopped acknowledging.
type BusOperationStatus int

const (
	BusStatusUnknown BusOperationStatus = iota
	BusOperational
	BusLockedUp
)

func (s BusOperationStatus) String() string {
	switch s {
	case BusOperational:
		return "operational"
	case BusLockedUp:
		return "locked_up"
	default:
		return "unknown"
	}
}

// BusElemStatusCB is invoked, outside any internal lock, with the batch of
// address status changes collected since the previous call (§4.6/§5).
type BusElemStatusCB func(changes []ElemStatusChange)

// BusOperationStatusCB is invoked on every health transition (§7).
type BusOperationStatusCB func(status BusOperationStatus)

// Bus composes every component into one physical-bus instance: the public
// surface a caller drives via Step and queries via the Get*/Add* methods
// (§2's component table, §7).
type Bus struct {
	eng     I2CCentral
	stuck   *BusStuckHandler
	power   *PowerController
	mux     *MultiplexerTree
	exps    *IOExpanderSet
	status  *StatusManager
	scan    *Scanner
	ident   *IdentityManager
	poll    *PollingManager
	acc     *Accessor
	worker  *BusWorker
	stats   *BusStats
	catalog *Catalog

	lockupDetect LockupDetectConfig
	task         TaskConfig
	log          Logger

	elemStatusCB BusElemStatusCB
	opStatusCB   BusOperationStatusCB
	lastOpStatus BusOperationStatus
}

// NewBus wires every component in the dependency order named by §2's
// component table (I2CCentral built by the caller; everything else built
// here) and returns a ready-to-Step Bus.
func NewBus(eng I2CCentral, cfg BusConfig) (*Bus, error) {
	if err := eng.Init(cfg.Port); err != nil {
		return nil, err
	}

	stuck := newBusStuckHandler(eng)

	var groups []*PowerSlotGroup
	for _, g := range cfg.PowerGroups {
		levels := make([]PowerLevelPins, len(g.Levels))
		for i, l := range g.Levels {
			levels[i] = PowerLevelPins{VPins: l.VPins, OnLevels: l.OnLevels}
		}
		groups = append(groups, &PowerSlotGroup{
			Name: g.Name, StartSlot: g.StartSlot, NumSlots: g.NumSlots,
			DefaultLevelIdx: g.DefaultLevelIdx, LevelsExclOff: levels,
		})
	}

	mux := newMultiplexerTree(cfg.Mux, eng, stuck, nil)
	power := newPowerController(nil, groups)
	mux.power = power

	exps := newIOExpanderSet(eng, mux)
	for _, ec := range cfg.IOExpanders {
		exps.addExpander(IOExpanderConfig{
			Dev: pca9535, Addr: ec.Addr, MuxAddr: ec.MuxAddr, MuxChanIdx: ec.MuxChanIdx,
			MuxRstPin: ec.MuxRstPin, VPinBase: ec.VPinBase, NumPins: ec.NumPins,
		})
	}
	power.exps = exps
	mux.exps = exps

	catalog := defaultCatalog()
	for _, dc := range cfg.ExtraTypes {
		dt, code := buildCatalogEntry(dc)
		if code != errcode.Ok {
			return nil, code
		}
		catalog.Types = append(catalog.Types, dt)
	}

	status := newStatusManager()
	scan := newScanner(eng, stuck, mux, status, cfg.NumSlots, cfg.Scanner)
	ident := newIdentityManager(eng, mux, status, catalog)
	poll := newPollingManager(eng, mux, status)
	acc := newAccessor()
	worker := newBusWorker(eng, stuck, power, mux, exps, status, scan, ident, poll, acc)
	stats := newBusStats()
	worker.attachStats(stats)
	scan.attachStats(stats)

	return &Bus{
		eng: eng, stuck: stuck, power: power, mux: mux, exps: exps,
		status: status, scan: scan, ident: ident, poll: poll, acc: acc,
		worker: worker, stats: stats, catalog: catalog,
		lockupDetect: cfg.LockupDetect, task: cfg.Task,
		lastOpStatus: BusStatusUnknown,
	}, nil
}

// AttachLogger wires a diagnostic sink into the bus and its accessor's
// rate-limited overflow warning (§4.10, §10.1).
func (b *Bus) AttachLogger(log Logger) {
	b.log = log
	b.acc.attachLogger(log)
	b.mux.attachLogger(log)
}

// Deinit tears down the underlying controller.
func (b *Bus) Deinit() { b.eng.Deinit() }

// Step runs one worker iteration, then fans out any pending status/health
// changes to registered callbacks (§4.11/§5's "batch under lock, invoke
// outside lock" rule).
func (b *Bus) Step(nowMs int64, nowUS int64) (shouldYield bool) {
	yield := b.worker.Step(nowMs, nowUS)

	if batch := b.status.drainStatusChanges(); len(batch) > 0 && b.elemStatusCB != nil {
		b.elemStatusCB(batch)
	}

	b.stats.ReqBufferFull.Store(b.acc.reqBufferFullCount())
	b.refreshOperationStatus()
	return yield
}

// refreshOperationStatus mirrors I2CCentral.IsOperatingOK unless the
// accessor is in hiatus, or a configured lockup-detect address
// has stopped acknowledging, either of which is reported as BusLockedUp
// even if the controller itself still reports OK (§7). The very first
// call (lastOpStatus still Unknown) always fires the callback so a
// caller learns the starting state instead of waiting for a transition.
func (b *Bus) refreshOperationStatus() {
	status := BusOperational
	if !b.eng.IsOperatingOK() || b.acc.hiatus {
		status = BusLockedUp
	} else if b.lockupDetect.Enable {
		if res, _ := b.eng.Access(b.lockupDetect.Addr, nil, nil); res != errcode.Ok {
			status = BusLockedUp
		}
	}
	if status != b.lastOpStatus {
		b.lastOpStatus = status
		if b.opStatusCB != nil {
			b.opStatusCB(status)
		}
	}
}

// OnElemStatusChange registers the status-change batch callback.
func (b *Bus) OnElemStatusChange(cb BusElemStatusCB) { b.elemStatusCB = cb }

// OnOperationStatus registers the health-transition callback.
func (b *Bus) OnOperationStatus(cb BusOperationStatusCB) { b.opStatusCB = cb }

// AddRequest queues a one-shot transaction against a composite address.
// kind controls whether the request is held back while the bus is paused
// (§4.10): only RequestSendEvenIfPaused and RequestFwUpdate bypass Pause.
func (b *Bus) AddRequest(addr Addr, write, readBuf []byte, weight int, kind RequestKind, cb BusRequestCallback, userData any) Result {
	return b.acc.addRequest(addr, write, readBuf, weight, kind, cb, userData)
}

// Pause lowers the request-queue cap to its low-load size (§4.10) and
// stops the scanner from running every Step, for callers that know traffic
// is about to be light and want to conserve bus time for polling.
func (b *Bus) Pause(paused bool) { b.acc.setPaused(paused) }

// Stats returns the bus's diagnostic counters.
func (b *Bus) Stats() *BusStats { return b.stats }

// IsSlotPowerStable reports whether slot's power rail has reached its
// required level (§4.4).
func (b *Bus) IsSlotPowerStable(slot uint8) bool { return b.power.isSlotPowerStable(slot) }

// SetSlotPower enables or disables power to slot.
func (b *Bus) SetSlotPower(slot uint8, on bool) { b.power.enableSlot(slot, on) }

// TaskConfig returns the scheduling hints supplied at NewBus time, for a
// caller's own runtime to honour (core pinning/priority have no portable
// meaning inside a single Go process, see TaskConfig).
func (b *Bus) TaskConfig() TaskConfig { return b.task }

// LatestDecoded runs addr's catalog decode_fn over its most recent poll
// sample and returns the result along with the device type's name, for
// callers outside the package that want to republish decoded readings
// (e.g. onto a pub/sub bus) without reaching into StatusManager directly.
func (b *Bus) LatestDecoded(addr Addr) (records []DecodedRecord, typeName string, ok bool) {
	typeIdx, samples, found := b.status.snapshot(addr, 1)
	if !found || len(samples) == 0 {
		return nil, "", false
	}
	dt := b.catalog.Types[typeIdx]
	out := make([]DecodedRecord, 8)
	n := dt.Decode(samples[0].Data, out)
	return out[:n], dt.TypeName, true
}

// Run drives Step in a dedicated goroutine until ctx is cancelled,
// following the teacher's worker-loop idiom (select on ctx.Done plus a
// ticker) rather than a caller hand-rolling the loop (§6's "dedicated
// task per bus"). yieldMs is the sleep applied whenever Step reports it
// has nothing more useful to do this tick; 0 defaults to i2cLoopYieldMs.
func (b *Bus) Run(ctx context.Context, yieldMs int) {
	if yieldMs <= 0 {
		yieldMs = i2cLoopYieldMs
	}
	if b.task.LowLoad {
		b.Pause(true)
	}
	tick := time.Duration(yieldMs) * time.Millisecond
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			shouldYield := b.Step(nowMS(), nowUS())
			wait := time.Millisecond
			if shouldYield {
				wait = tick
			}
			timer.Reset(wait)
		}
	}
}
