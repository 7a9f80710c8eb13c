// i2cbus/engine.go
package i2cbus

import (
	"sync"
	"time"

	"i2cbus-core/errcode"
	"i2cbus-core/x/mathx"
	"i2cbus-core/x/strx"
	"i2cbus-core/x/timex"
)

// Result is the stable result vocabulary returned at the I2C boundary (§4.1, §7).
type Result = errcode.Code

// hwQueueSize is the hardware command FIFO depth; two slots are always
// reserved for the implicit START and STOP, per §4.1's budget rule.
const hwQueueSize = 16

// maxCmdBytes is the maximum payload a single engine command slot carries.
const maxCmdBytes = 255

// PortConfig describes one physical controller instance (§6).
type PortConfig struct {
	Port        string
	SDAPin      int
	SCLPin      int
	FreqHz      uint32
	FilterLevel uint8 // 0..7
}

// I2CCentral is the low-level master engine (§4.1).
type I2CCentral interface {
	Init(cfg PortConfig) error
	Deinit()
	IsBusy() bool
	IsOperatingOK() bool
	Access(addr uint8, write []byte, readBuf []byte) (Result, int)
	// SampleLines reports whether SDA/SCL currently read low; used by
	// BusStuckHandler without going through a full Access transaction.
	SampleLines() (sdaLow, sclLow bool)
}

// cmdSlot is one hardware engine command: a contiguous write or read of
// up to maxCmdBytes, tagged with whether it is a read.
type cmdSlot struct {
	isRead bool
	data   []byte // write payload, or destination buffer for a read
}

// transport is the hardware-facing boundary the engine drives. Real
// silicon implements it with register pokes and an ISR-fed atomic result
// word (engine_rp2xxx.go, per spec §9's "ISR↔worker sharing" design note);
// host builds and tests implement it with a scripted fake (engine_host.go).
type transport interface {
	configure(cfg PortConfig) error
	teardown()
	busy() bool
	// execute submits addr + slots as one START..STOP transaction and
	// blocks until the ISR signals completion or timeout elapses.
	// doneMask has bit i set iff slots[i]'s done bit was observed set.
	execute(addr uint8, slots []cmdSlot, timeout time.Duration) (doneMask uint32, hwErr Result)
	sampleLines() (sdaLow, sclLow bool)
}

// Engine is the shared, platform-independent half of I2CCentral: command
// splitting, budget checks, timeout computation and the ensure-ready retry
// gate. Platform constructors (NewHostEngine, NewRP2XXXEngine) supply the
// transport.
type Engine struct {
	mu          sync.Mutex
	t           transport
	cfg         PortConfig
	initialized bool
	everFailed  bool
}

func newEngine(t transport) *Engine {
	return &Engine{t: t}
}

func (e *Engine) Init(cfg PortConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cfg.FreqHz == 0 {
		cfg.FreqHz = 100_000
	}
	cfg.Port = strx.Coalesce(cfg.Port, "i2c0")
	cfg.FilterLevel = mathx.Clamp(cfg.FilterLevel, 0, 7)
	e.cfg = cfg
	if err := e.t.configure(cfg); err != nil {
		return err
	}
	e.initialized = true
	return nil
}

func (e *Engine) Deinit() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized {
		return
	}
	e.t.teardown()
	e.initialized = false
}

func (e *Engine) IsBusy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.initialized && e.t.busy()
}

// IsOperatingOK is false before Init, after a failed transfer until the
// next successful one, and while either bus line samples low.
func (e *Engine) IsOperatingOK() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized || e.everFailed {
		return false
	}
	sdaLow, sclLow := e.t.sampleLines()
	return !sdaLow && !sclLow
}

func (e *Engine) SampleLines() (sdaLow, sclLow bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized {
		return false, false
	}
	return e.t.sampleLines()
}

// ensureReady re-initialises the controller if it is found busy, per §4.1:
// "the next access entry first calls ensure_ready, which re-initializes
// the controller if is_busy() is true." Must be called with e.mu held.
func (e *Engine) ensureReady() error {
	if e.t.busy() {
		if err := e.t.configure(e.cfg); err != nil {
			return err
		}
	}
	return nil
}

// commandBudget computes the number of engine command slots a transaction
// of the given write/read lengths requires, and whether it fits within
// hwQueueSize-2 (§4.1/§8 boundary case).
func commandBudget(writeLen, readLen int) (numCmds int, ok bool) {
	switch {
	case writeLen == 0 && readLen == 0:
		numCmds = 1 // bare address probe
	default:
		if writeLen > 0 {
			numCmds += int(mathx.CeilDiv(uint(writeLen), uint(maxCmdBytes)))
		}
		if readLen > 0 {
			numCmds += int(mathx.CeilDiv(uint(readLen), uint(maxCmdBytes)))
		}
	}
	return numCmds, numCmds+2 <= hwQueueSize
}

// buildSlots splits write/read into cmdSlot commands, each ≤ maxCmdBytes.
func buildSlots(write []byte, readBuf []byte) []cmdSlot {
	var slots []cmdSlot
	if len(write) == 0 && len(readBuf) == 0 {
		return []cmdSlot{{isRead: false, data: write[:0]}}
	}
	for off := 0; off < len(write); off += maxCmdBytes {
		end := off + maxCmdBytes
		if end > len(write) {
			end = len(write)
		}
		slots = append(slots, cmdSlot{isRead: false, data: write[off:end]})
	}
	for off := 0; off < len(readBuf); off += maxCmdBytes {
		end := off + maxCmdBytes
		if end > len(readBuf) {
			end = len(readBuf)
		}
		slots = append(slots, cmdSlot{isRead: true, data: readBuf[off:end]})
	}
	return slots
}

// expectedTimeout computes the worst-case transaction duration per §4.1:
// "bytes × 10 / freq + per-byte-stretch-slack + start/stop overhead".
func expectedTimeout(totalBytes int, freqHz uint32) time.Duration {
	if freqHz == 0 {
		freqHz = 100_000
	}
	nsPerBit := timex.PeriodFromHz(freqHz)
	const bitsPerByte = 10 // 8 data bits + ack bit + clock-stretch margin bit
	base := uint64(totalBytes) * bitsPerByte * nsPerBit
	const perByteStretchSlackNs = 50_000  // clock-stretching margin per byte
	const startStopOverheadNs = 200_000   // START/REPEATED-START/STOP overhead
	slack := uint64(totalBytes)*perByteStretchSlackNs + startStopOverheadNs
	return time.Duration(base + slack)
}

// Access implements the bit-exact semantics of §4.1.
func (e *Engine) Access(addr uint8, write []byte, readBuf []byte) (Result, int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized {
		return errcode.NotReady, 0
	}
	if err := e.ensureReady(); err != nil {
		e.everFailed = true
		return errcode.NotReady, 0
	}

	numCmds, ok := commandBudget(len(write), len(readBuf))
	if !ok {
		return errcode.Invalid, 0
	}

	slots := buildSlots(write, readBuf)
	timeout := expectedTimeout(len(write)+len(readBuf)+1, e.cfg.FreqHz)

	doneMask, hwErr := e.t.execute(addr, slots, timeout)
	if hwErr != errcode.Ok {
		e.everFailed = true
		return hwErr, 0
	}

	want := uint32(1)<<uint(numCmds) - 1
	if doneMask != want {
		e.everFailed = true
		return errcode.Incomplete, 0
	}

	e.everFailed = false
	return errcode.Ok, len(readBuf)
}
