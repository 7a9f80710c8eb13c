//go:build !rp2040

// i2cbus/engine_host.go
package i2cbus

import (
	"time"

	"i2cbus-core/errcode"
)

// simDevice is a scripted fake peripheral used by the host transport.
// Tests install these to exercise Access() without real silicon, the same
// role the teacher's rp2_resources.go fakes play for services/hal tests.
type simDevice struct {
	// regs backs simple register-addressed reads: the first write byte
	// selects a register, subsequent reads return regs[reg:].
	regs [256]byte
	// ack, when false, makes every access to this address NACK.
	ack bool
	// forceResult, when non-empty, is returned verbatim instead of the
	// normal ack/read simulation (used to script HwTimeOut/ArbLost/etc).
	forceResult errcode.Code
}

func newSimDevice() *simDevice {
	return &simDevice{ack: true}
}

// hostTransport is the !rp2040 transport: an in-memory bus of simDevices,
// addressed by 7-bit I2C address, with no real timing. execute ignores the
// caller's timeout value; tests exercise SwTimeOut by installing a device
// with forceResult == errcode.SwTimeOut.
type hostTransport struct {
	cfg     PortConfig
	up      bool
	devices map[uint8]*simDevice
	stuck   bool // simulates SDA/SCL held low
}

func newHostTransport() *hostTransport {
	return &hostTransport{devices: map[uint8]*simDevice{}}
}

// NewHostEngine builds an I2CCentral backed by the in-memory simulator.
// Used by tests, the demo binary, and any host-side tooling.
func NewHostEngine() (*Engine, *hostTransport) {
	t := newHostTransport()
	return newEngine(t), t
}

// putDevice installs or replaces the scripted device at addr.
func (h *hostTransport) putDevice(addr uint8, d *simDevice) {
	h.devices[addr] = d
}

// PutSimDevice installs a register-backed fake peripheral at addr, for
// callers outside the package (the demo binary, host tooling) that want
// to exercise a Bus against simulated hardware without real silicon.
// regs seeds the register file; unset registers read back as zero.
func (h *hostTransport) PutSimDevice(addr uint8, regs map[uint8]byte) {
	d := newSimDevice()
	for reg, v := range regs {
		d.regs[reg] = v
	}
	h.putDevice(addr, d)
}

// SetSimStuck simulates SDA/SCL held low by a jammed peripheral.
func (h *hostTransport) SetSimStuck(stuck bool) { h.stuck = stuck }

func (h *hostTransport) configure(cfg PortConfig) error {
	h.cfg = cfg
	h.up = true
	return nil
}

func (h *hostTransport) teardown() { h.up = false }

func (h *hostTransport) busy() bool { return false }

func (h *hostTransport) sampleLines() (sdaLow, sclLow bool) {
	return h.stuck, h.stuck
}

func (h *hostTransport) execute(addr uint8, slots []cmdSlot, timeout time.Duration) (uint32, Result) {
	if h.stuck {
		return 0, errcode.BusStuck
	}
	if !h.up {
		return 0, errcode.NotReady
	}
	dev, present := h.devices[addr]
	if !present || !dev.ack {
		return 0, errcode.AckError
	}
	if dev.forceResult != "" && dev.forceResult != errcode.Ok {
		return 0, dev.forceResult
	}

	var reg int
	var doneMask uint32
	for i, s := range slots {
		if s.isRead {
			for j := range s.data {
				if reg+j < len(dev.regs) {
					s.data[j] = dev.regs[reg+j]
				}
			}
			reg += len(s.data)
		} else if len(s.data) > 0 {
			reg = int(s.data[0])
			for j := 1; j < len(s.data); j++ {
				if reg+j-1 < len(dev.regs) {
					dev.regs[reg+j-1] = s.data[j]
				}
			}
		}
		doneMask |= 1 << uint(i)
	}
	return doneMask, errcode.Ok
}
