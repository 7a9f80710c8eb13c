// i2cbus/config.go
package i2cbus

import "i2cbus-core/errcode"

// Config descriptors mirror the teacher's platform/setups JSON-tagged
// structs: CORE never reads a config file or flag itself, a caller decodes
// one of these and passes it to NewBus (§6).

// PowerLevelConfig is one voltage-level's pin/level-vector pair (§6).
type PowerLevelConfig struct {
	VPins    []int  `json:"v_pins"`
	OnLevels []bool `json:"on_levels"`
}

// PowerGroupConfig is the §6 power-slot-group descriptor.
type PowerGroupConfig struct {
	Name            string             `json:"name"`
	StartSlot       uint8              `json:"start_slot"`
	NumSlots        uint8              `json:"num_slots"`
	DefaultLevelIdx int                `json:"default_level_idx"`
	Levels          []PowerLevelConfig `json:"levels"` // excludes the implicit OFF level
}

// IOExpanderEntryConfig names one PCA9535 instance and its virtual pin
// mapping (§6).
type IOExpanderEntryConfig struct {
	Addr       uint8  `json:"addr"`
	MuxAddr    uint8  `json:"mux_addr,omitempty"`
	MuxChanIdx int    `json:"mux_chan_idx,omitempty"`
	MuxRstPin  int    `json:"mux_rst_pin,omitempty"`
	VPinBase   int    `json:"v_pin_base"`
	NumPins    int    `json:"num_pins"`
}

// DeviceTypeConfig is the §6 DSL-encoded catalog entry, decoded into a
// DeviceType by buildCatalogEntry at NewBus time. The DSL is parsed once,
// at startup, never per-access.
type DeviceTypeConfig struct {
	TypeName    string `json:"type_name"`
	AddrLo      uint8  `json:"addr_lo"`
	AddrHi      uint8  `json:"addr_hi,omitempty"` // 0 means "single address, AddrLo"
	Detection   string `json:"detect"`            // "write=0x..&read=0b..;..."
	Init        string `json:"init,omitempty"`    // "write=0x..;..."
	PollSteps   string `json:"poll_steps"`        // "write=0x..&read=0b..;..."
	PollInterval  int   `json:"poll_interval_ms"`
	PollSamples   int   `json:"poll_samples"`
	Decode        DecodeFn `json:"-"` // decode functions are registered in code, not JSON
}

// buildCatalogEntry parses one DSL-encoded config entry into a DeviceType,
// at NewBus time only (§6: the DSL is build-time data, never a runtime path).
func buildCatalogEntry(c DeviceTypeConfig) (DeviceType, errcode.Code) {
	addrs := AddressSet{Explicit: []uint8{c.AddrLo}}
	if c.AddrHi != 0 {
		addrs = AddressSet{UseRange: true, RangeLo: c.AddrLo, RangeHi: c.AddrHi}
	}
	detect, code := parseDetectionSpec(c.Detection)
	if code != errcode.Ok {
		return DeviceType{}, code
	}
	var initPairs [][]byte
	if c.Init != "" {
		initPairs, code = parseInitSpec(c.Init)
		if code != errcode.Ok {
			return DeviceType{}, code
		}
	}
	steps, code := parsePollStepList(c.PollSteps)
	if code != errcode.Ok {
		return DeviceType{}, code
	}
	return DeviceType{
		TypeName:       c.TypeName,
		Addresses:      addrs,
		DetectionPairs: detect,
		InitPairs:      initPairs,
		Poll: PollConfig{
			Steps:          steps,
			IntervalMS:     c.PollInterval,
			SamplesToStore: c.PollSamples,
		},
		Decode: c.Decode,
	}, errcode.Ok
}

// LockupDetectConfig names an address the caller knows must always be
// reachable (e.g. a board-level supervisor chip wired to the main bus).
// If it stops acknowledging, refreshOperationStatus reports BusLockedUp
// even while I2CCentral.IsOperatingOK still returns true, since a silent
// single-device dropout is exactly what IsOperatingOK cannot see (§7).
type LockupDetectConfig struct {
	Enable bool  `json:"enable"`
	Addr   uint8 `json:"addr"`
}

// TaskConfig records the scheduling hints the teacher's RTOS-backed
// drivers pin a bus task to (core, priority, stack size). Pure Go has no
// portable equivalent of CPU/priority pinning, so these are carried as
// metadata for a caller's own scheduler/runtime to act on (e.g. GOMAXPROCS
// tuning, goroutine labelling) rather than silently dropped (§6).
type TaskConfig struct {
	Core        int  `json:"core"`
	Priority    int  `json:"priority"`
	StackBytes  int  `json:"stack_bytes"`
	LowLoad     bool `json:"low_load"` // hint: expect sparse traffic, favour the small request cap sooner
}

// BusConfig is the full §6 configuration descriptor for one physical bus.
type BusConfig struct {
	Port         PortConfig
	Mux          MuxConfig
	PowerGroups  []PowerGroupConfig
	IOExpanders  []IOExpanderEntryConfig
	ExtraTypes   []DeviceTypeConfig // appended to the built-in catalog
	NumSlots     uint8
	Scanner      ScannerConfig
	LockupDetect LockupDetectConfig
	Task         TaskConfig
}
