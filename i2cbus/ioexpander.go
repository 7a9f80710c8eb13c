// i2cbus/ioexpander.go
package i2cbus

import (
	"reflect"
	"sync"

	"i2cbus-core/errcode"
)

// IOExpanderKind names a supported GPIO-expander chip family.
type IOExpanderKind string

const pca9535 IOExpanderKind = "PCA9535"

// IOExpanderConfig describes one physical expander (§6's `exps[]` entry).
type IOExpanderConfig struct {
	Dev        IOExpanderKind
	Addr       uint8
	MuxAddr    uint8 // 0 if the expander sits directly on the main bus
	MuxChanIdx int
	MuxRstPin  int
	VPinBase   int
	NumPins    int
}

// PCA9535 register map: two 8-bit input/output/config register pairs.
const (
	pca9535RegOutput0 = 0x02
	pca9535RegConfig0 = 0x06
)

// completionKey identifies a (callback, user_data) pair for dedup. The
// callback's code pointer stands in for identity since func values
// themselves are not comparable in Go.
type completionKey struct {
	cbPtr uintptr
	ud    any
}

func callbackPtr(cb func(any, Result)) uintptr {
	if cb == nil {
		return 0
	}
	return reflect.ValueOf(cb).Pointer()
}

// expander is one physical IO-expander chip's shadow state.
type expander struct {
	cfg       IOExpanderConfig
	shadowOut [2]byte // output register shadow, little pin 0..7 in byte 0
	shadowCfg [2]byte // direction register shadow, 0 = output, 1 = input
	dirty     bool
}

// IOExpanderSet abstracts one or more I²C-attached 16-bit GPIO expanders,
// each with configuration (direction) and output registers (§4.3).
type IOExpanderSet struct {
	mu   sync.Mutex
	eng  I2CCentral
	mux  *MultiplexerTree
	exps []*expander

	pending map[completionKey]func(any, Result)
}

func newIOExpanderSet(eng I2CCentral, mux *MultiplexerTree) *IOExpanderSet {
	return &IOExpanderSet{
		eng:     eng,
		mux:     mux,
		pending: map[completionKey]func(any, Result){},
	}
}

// addExpander configures one chip; all pins start as outputs, driven low.
func (s *IOExpanderSet) addExpander(cfg IOExpanderConfig) *expander {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := &expander{cfg: cfg}
	s.exps = append(s.exps, e)
	return e
}

// resolve maps a virtual pin id to (expander, bit index), or nil if out of
// range. Virtual pin numbering: pin_id = base + i selects bit i (§4.3).
func (s *IOExpanderSet) resolve(pin int) (*expander, int) {
	for _, e := range s.exps {
		if pin >= e.cfg.VPinBase && pin < e.cfg.VPinBase+e.cfg.NumPins {
			return e, pin - e.cfg.VPinBase
		}
	}
	return nil, 0
}

// virtualPinSet is buffered: it updates a shadow register, marks it dirty,
// and returns Ok without issuing I²C (§4.3).
func (s *IOExpanderSet) virtualPinSet(pins []int, levels []bool, cb func(any, Result), userData any) Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, pin := range pins {
		e, bit := s.resolve(pin)
		if e == nil {
			continue
		}
		byteIdx, bitIdx := bit/8, uint(bit%8)
		if levels[i] {
			e.shadowOut[byteIdx] |= 1 << bitIdx
		} else {
			e.shadowOut[byteIdx] &^= 1 << bitIdx
		}
		e.dirty = true
	}
	if cb != nil {
		s.pending[completionKey{callbackPtr(cb), userData}] = cb
	}
	return errcode.Ok
}

// virtualPinRead issues an immediate read of one expander's input port.
func (s *IOExpanderSet) virtualPinRead(pin int) (bool, Result) {
	s.mu.Lock()
	e, bit := s.resolve(pin)
	s.mu.Unlock()
	if e == nil {
		return false, errcode.Invalid
	}
	var in [2]byte
	res := s.accessExpander(e, 0x00, in[:])
	if res != errcode.Ok {
		return false, res
	}
	byteIdx, bitIdx := bit/8, uint(bit%8)
	return in[byteIdx]&(1<<bitIdx) != 0, errcode.Ok
}

// sync is called by the owner once per worker cycle; if the expander
// shadow is dirty (or force), it writes output then configuration
// registers (§4.3). If reachable only through a mux slot, it enables that
// channel, writes, then disables it. Completion callbacks registered via
// virtualPinSet are deduplicated by (callback, user_data) and invoked once
// after the flush, each receiving the aggregate result.
func (s *IOExpanderSet) sync(force bool) {
	s.mu.Lock()
	var aggregate Result = errcode.Ok
	touched := false
	for _, e := range s.exps {
		if !e.dirty && !force {
			continue
		}
		touched = true
		res := s.flushExpander(e)
		if res != errcode.Ok && aggregate == errcode.Ok {
			aggregate = res
		}
		e.dirty = false
	}
	cbs := s.pending
	s.pending = map[completionKey]func(any, Result){}
	s.mu.Unlock()

	if !touched {
		return
	}
	for k, fn := range cbs {
		fn(k.ud, aggregate)
	}
}

func (s *IOExpanderSet) flushExpander(e *expander) Result {
	if e.cfg.MuxAddr != 0 && s.mux != nil {
		if res := s.mux.setSlotEnablesDirect(e.cfg.MuxAddr, 1<<uint(e.cfg.MuxChanIdx)); res != errcode.Ok {
			return res
		}
		defer s.mux.setSlotEnablesDirect(e.cfg.MuxAddr, 0)
	}
	if res := s.accessExpander(e, pca9535RegOutput0, nil); res != errcode.Ok {
		return res
	}
	return s.accessExpander(e, pca9535RegConfig0, nil)
}

// accessExpander writes the two shadow bytes starting at reg, or — when
// readBuf is non-nil — reads into it instead.
func (s *IOExpanderSet) accessExpander(e *expander, reg uint8, readBuf []byte) Result {
	if readBuf != nil {
		res, _ := s.eng.Access(e.cfg.Addr, []byte{reg}, readBuf)
		return res
	}
	var payload [2]byte
	switch reg {
	case pca9535RegOutput0:
		payload = e.shadowOut
	case pca9535RegConfig0:
		payload = e.shadowCfg
	}
	res, _ := s.eng.Access(e.cfg.Addr, []byte{reg, payload[0], payload[1]}, nil)
	return res
}
