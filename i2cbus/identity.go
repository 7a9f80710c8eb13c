// i2cbus/identity.go
package i2cbus

import "i2cbus-core/errcode"

// IdentityManager turns a newly-online address into a classified device
// (§4.8): it walks the catalog entries whose AddressSet covers the
// address, runs each candidate's detection pairs in turn, and on a match
// executes the candidate's init pairs before handing the device to
// StatusManager with a populated PollingInfo.
type IdentityManager struct {
	eng     I2CCentral
	mux     *MultiplexerTree
	status  *StatusManager
	catalog *Catalog
}

func newIdentityManager(eng I2CCentral, mux *MultiplexerTree, status *StatusManager, catalog *Catalog) *IdentityManager {
	return &IdentityManager{eng: eng, mux: mux, status: status, catalog: catalog}
}

// identify runs one identification attempt for a newly-online address.
// Only genuine candidates (addr in range) are tried; a failure to match
// any candidate leaves the address online but unidentified — it remains a
// scan-visible device, never an abort-worthy error (§4.8).
func (im *IdentityManager) identify(addr Addr) Result {
	i2cAddr, slot := addr.Unpack()
	if res := im.mux.enableOneSlot(slot); res != errcode.Ok {
		return res
	}

	for _, idx := range im.catalog.candidatesFor(i2cAddr) {
		dt := im.catalog.Types[idx]
		if !im.runDetection(i2cAddr, dt) {
			continue
		}
		if res := im.runInit(i2cAddr, dt); res != errcode.Ok {
			return res
		}
		polling := &PollingInfo{
			DeviceTypeIdx: idx,
			Steps:         dt.Poll.Steps,
			IntervalUS:    int64(dt.Poll.IntervalMS) * 1000,
		}
		im.status.setBusElemDeviceStatus(addr, idx, polling, dt.Poll.SamplesToStore)
		return errcode.Ok
	}
	return errcode.NotReady // no catalog entry matched; stays unidentified
}

// runDetection executes every DetectionPair for dt against the live
// device; all pairs must match for dt to be accepted (§3).
func (im *IdentityManager) runDetection(i2cAddr uint8, dt DeviceType) bool {
	for _, pair := range dt.DetectionPairs {
		readBuf := make([]byte, len(pair.Mask))
		res, _ := im.eng.Access(i2cAddr, pair.Write, readBuf)
		if res != errcode.Ok {
			return false
		}
		if !pair.matches(readBuf) {
			return false
		}
	}
	return true
}

// runInit writes every init pair in order, aborting on the first failure.
func (im *IdentityManager) runInit(i2cAddr uint8, dt DeviceType) Result {
	for _, w := range dt.InitPairs {
		if res, _ := im.eng.Access(i2cAddr, w, nil); res != errcode.Ok {
			return res
		}
	}
	return errcode.Ok
}
