// i2cbus/status.go
package i2cbus

import "sync"

// §4.6 debounce thresholds. Two distinct legacy mechanisms exist and both
// are kept rather than merged: the +OK_MAX/-FAIL_MAX counter below drives
// the normal online/offline debounce, while spurious-removal (below) is a
// separate path for addresses that never reached online at all
// (SPEC_FULL §13.2 decision — preserve both).
const (
	okMax   = 2
	failMax = -3
)

// ElemStatusChange is one entry of a status-change batch (§6).
type ElemStatusChange struct {
	Address           Addr
	IsChangeToOnline  bool
	IsChangeToOffline bool
	IsNewlyIdentified bool
	DeviceTypeIndex   int
}

// PollingInfo is the schedule IdentityManager attaches to a newly
// identified device (§4.8): the catalog's step list, interval, and where
// the next due poll should resume.
type PollingInfo struct {
	DeviceTypeIdx int
	Steps         []PollStep
	IntervalUS    int64
	LastPollUS    int64
	NextStepIdx   int
}

// addressStatus is one (addr,slot)'s record in §3's AddressStatus.
type addressStatus struct {
	addr              Addr
	counter           int
	isOnline          bool
	wasEverOnline     bool
	isChangePending   bool
	isNewlyIdentified bool
	slotResolved      bool
	deviceTypeIdx     int
	barStartMS        int64
	barDurationMS     int64
	minReportIntervalUS int64

	polling *PollingInfo
	ring    *PollRing
}

// StatusManager owns the address-status table and is the sole mutator;
// all other components observe via its accessors, serialized by a single
// mutex (§3, §4.6).
type StatusManager struct {
	mu      sync.Mutex
	table   map[Addr]*addressStatus
	onIdent func(addr Addr) // hook invoked (outside lock) on transition to online
}

func newStatusManager() *StatusManager {
	return &StatusManager{table: map[Addr]*addressStatus{}}
}

// probeResult feeds one scan/poll probe outcome into the debounce counter
// described in §4.6's transition table. Returns true if the address newly
// transitioned to online on this call (caller triggers identification).
func (s *StatusManager) probeResult(addr Addr, acked bool) (newlyOnline bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.table[addr]
	if !ok {
		if !acked {
			return false
		}
		st = &addressStatus{addr: addr, deviceTypeIdx: unknownDeviceType}
		s.table[addr] = st
	}

	if acked {
		if st.isOnline {
			return false
		}
		st.counter++
		if st.counter > okMax {
			st.counter = okMax
		}
		if st.counter >= okMax {
			st.isOnline = true
			st.isChangePending = true
			st.counter = 0
			st.wasEverOnline = true
			return true
		}
		return false
	}

	if !st.isOnline && st.wasEverOnline {
		return false
	}
	if st.counter > 0 {
		st.counter = 0 // a miss ends any run of ACKs; misses count from zero
	}
	st.counter--
	if st.counter < failMax {
		st.counter = failMax
	}
	if st.counter <= failMax {
		if !st.wasEverOnline {
			delete(s.table, addr) // spurious: never reached online, now gone
			return false
		}
		st.isOnline = false
		st.isChangePending = true
		st.counter = 0
		st.deviceTypeIdx = unknownDeviceType
		st.slotResolved = false
		st.polling = nil
	}
	return false
}

// barElemAccessSet starts a per-device cooldown window.
func (s *StatusManager) barElemAccessSet(addr Addr, nowMs int64, durationMs int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.table[addr]; ok {
		st.barStartMS = nowMs
		st.barDurationMS = durationMs
	}
}

// barElemAccessGet reports whether addr is still within its cooldown.
func (s *StatusManager) barElemAccessGet(addr Addr, nowMs int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.table[addr]
	if !ok || st.barDurationMS == 0 {
		return false
	}
	return nowMs-st.barStartMS < st.barDurationMS
}

// setBusElemDeviceStatus records a newly identified device type.
func (s *StatusManager) setBusElemDeviceStatus(addr Addr, typeIdx int, polling *PollingInfo, ringCap int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.table[addr]
	if !ok {
		return
	}
	st.deviceTypeIdx = typeIdx
	st.isNewlyIdentified = true
	st.polling = polling
	st.ring = newPollRing(ringCap, 0)
}

// slotPoweringDown marks all addresses on slot offline atomically (§4.6).
func (s *StatusManager) slotPoweringDown(slot uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.table {
		if st.addr.Slot() == slot && st.isOnline {
			st.isOnline = false
			st.isChangePending = true
			st.deviceTypeIdx = unknownDeviceType
			st.slotResolved = false
			st.polling = nil
		}
	}
}

// informBusStuck marks all addresses offline (§4.6/§7).
func (s *StatusManager) informBusStuck() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.table {
		if st.isOnline {
			st.isOnline = false
			st.isChangePending = true
			st.deviceTypeIdx = unknownDeviceType
			st.slotResolved = false
			st.polling = nil
		}
	}
}

// pollResultStore writes raw into the device's ring, timestamped nowUS.
func (s *StatusManager) pollResultStore(addr Addr, raw []byte, nowUS int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.table[addr]
	if !ok || st.ring == nil {
		return
	}
	st.ring.put(raw, nowUS)
	if st.polling != nil {
		st.polling.LastPollUS = nowUS
		st.polling.NextStepIdx = 0
	}
}

// dueIdentPoll is what getPendingIdentPoll returns: the next identified
// device whose poll interval has elapsed.
type dueIdentPoll struct {
	Addr    Addr
	Polling *PollingInfo
}

// getPendingIdentPoll returns the next due poll across all identified
// devices (§4.6), or ok=false if none is due.
func (s *StatusManager) getPendingIdentPoll(nowUS int64) (due dueIdentPoll, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.table {
		if st.polling == nil || !st.isOnline {
			continue
		}
		if st.polling.LastPollUS+st.polling.IntervalUS <= nowUS {
			return dueIdentPoll{Addr: st.addr, Polling: st.polling}, true
		}
	}
	return dueIdentPoll{}, false
}

// drainStatusChanges builds a batch of records with IsChangePending or
// IsNewlyIdentified set, clears those flags under the lock, and returns the
// batch for the caller to invoke outside the lock (§4.6's fan-out rule).
func (s *StatusManager) drainStatusChanges() []ElemStatusChange {
	s.mu.Lock()
	defer s.mu.Unlock()
	var batch []ElemStatusChange
	for _, st := range s.table {
		if !st.isChangePending && !st.isNewlyIdentified {
			continue
		}
		batch = append(batch, ElemStatusChange{
			Address:           st.addr,
			IsChangeToOnline:  st.isChangePending && st.isOnline,
			IsChangeToOffline: st.isChangePending && !st.isOnline,
			IsNewlyIdentified: st.isNewlyIdentified,
			DeviceTypeIndex:   st.deviceTypeIdx,
		})
		st.isChangePending = false
		st.isNewlyIdentified = false
	}
	return batch
}

// isOnline and isIdentified are narrow read accessors used by the
// scanner and identity manager, each taking the lock individually rather
// than exposing the table itself.
func (s *StatusManager) isOnline(addr Addr) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.table[addr]
	return ok && st.isOnline
}

func (s *StatusManager) isIdentified(addr Addr) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.table[addr]
	return ok && st.deviceTypeIdx != unknownDeviceType
}

// snapshot returns addr's device-type index and up to n most recent poll
// samples (n<=0 means all available), for callers that want to decode and
// republish poll history outside the package (e.g. the demo binary).
func (s *StatusManager) snapshot(addr Addr, n int) (typeIdx int, samples []PollSample, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, present := s.table[addr]
	if !present || st.deviceTypeIdx == unknownDeviceType || st.ring == nil {
		return 0, nil, false
	}
	return st.deviceTypeIdx, st.ring.get(n), true
}
