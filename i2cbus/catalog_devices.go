// i2cbus/catalog_devices.go
package i2cbus

// Built-in catalog entries (SPEC_FULL §12). Three concrete device types are
// shipped: VCNL4040 (proximity/ALS/white, §8 scenario 1's worked example),
// AHT20 (temperature/humidity), and LTC4015 (battery-charger telemetry).
// AHT20/LTC4015 decode math is ported from the old stateful drivers into
// pure decode_fn values per §9's "dynamic dispatch of device decoders"
// design note — the original Device/Tx-based drivers are superseded, not
// reused, since the catalog contract is a pure function over a raw buffer.

// vcnl4040Decode implements §8 scenario 1: a polled read of
// "0x08=r2&0x09=r2&0x0a=r2" returns 6 bytes decoding into
// {prox, als/10, white/10}.
func vcnl4040Decode(raw []byte, out []DecodedRecord) int {
	if len(raw) < 6 || len(out) < 3 {
		return 0
	}
	prox := uint16(raw[0]) | uint16(raw[1])<<8
	als := uint16(raw[2]) | uint16(raw[3])<<8
	white := uint16(raw[4]) | uint16(raw[5])<<8
	out[0] = DecodedRecord{Name: "prox", Value: float64(prox)}
	out[1] = DecodedRecord{Name: "als", Value: float64(als) / 10}
	out[2] = DecodedRecord{Name: "white", Value: float64(white) / 10}
	return 3
}

var vcnl4040 = DeviceType{
	TypeName:  "VCNL4040",
	Addresses: AddressSet{Explicit: []uint8{0x60}},
	DetectionPairs: []DetectionPair{
		{Write: []byte{0x0C}, Mask: []byte{0x00, 0x00}, Pattern: []byte{0x00, 0x00}},
	},
	InitPairs: [][]byte{
		{0x00, 0x00, 0x00}, // PS_CONF1/2: power on, default integration
		{0x04, 0x00, 0x00}, // ALS_CONF: power on, default integration
	},
	Poll: PollConfig{
		Steps: []PollStep{
			{Write: []byte{0x08}, ReadLen: 2},
			{Write: []byte{0x09}, ReadLen: 2},
			{Write: []byte{0x0a}, ReadLen: 2},
		},
		IntervalMS:     1000,
		SamplesToStore: 32,
	},
	Decode: vcnl4040Decode,
}

// AHT20 20-bit fixed-point conversion, ported from drivers/aht20/aht20.go's
// Sample.DeciRelHumidity/DeciCelsius.
const (
	aht20StatusBusy       = 0x80
	aht20StatusCalibrated = 0x08
)

func aht20Decode(raw []byte, out []DecodedRecord) int {
	if len(raw) < 6 || len(out) < 2 {
		return 0
	}
	status := raw[0]
	if status&aht20StatusCalibrated == 0 || status&aht20StatusBusy != 0 {
		return 0
	}
	hraw := (uint32(raw[1]) << 12) | (uint32(raw[2]) << 4) | (uint32(raw[3]) >> 4)
	traw := (uint32(raw[3]&0x0F) << 16) | (uint32(raw[4]) << 8) | uint32(raw[5])

	deciRH := (int32(hraw) * 1000) / 0x100000
	deciC := ((int32(traw) * 2000) / 0x100000) - 500

	out[0] = DecodedRecord{Name: "humidity_pct", Value: float64(deciRH) / 10}
	out[1] = DecodedRecord{Name: "temp_c", Value: float64(deciC) / 10}
	return 2
}

var aht20Type = DeviceType{
	TypeName:  "AHT20",
	Addresses: AddressSet{Explicit: []uint8{0x38}},
	DetectionPairs: []DetectionPair{
		{Write: []byte{0x71}, Mask: []byte{0x08}, Pattern: []byte{0x08}},
	},
	InitPairs: [][]byte{
		{0xBE, 0x08, 0x00},
	},
	Poll: PollConfig{
		Steps: []PollStep{
			// Trigger measurement, then wait out the conversion time
			// before the status+data read-back (no register-select byte:
			// AHT20 returns status+data on a bare read).
			{Write: []byte{0xAC, 0x33, 0x00}, ReadLen: 0, BarAfterMS: 80},
			{Write: nil, ReadLen: 6},
		},
		IntervalMS:     5000,
		SamplesToStore: 32,
	},
	Decode: aht20Decode,
}

// LTC4015 register scaling, ported from drivers/ltc4015/telemetry.go and
// ltc4015.go's ReadVBAT/ReadVIN/ReadVSYS/ReadIBAT/ReadIIN. Cell count and
// sense-resistor values are fixed here (2 cells lithium, 10 mΩ sense) since
// the catalog decode_fn has no per-instance configuration channel; a real
// deployment with different hardware would need a distinct catalog entry.
const (
	lsbVBATLiNV  = 192264 // nV per LSB per cell, lithium chemistry
	lsbVINuV     = 1648   // µV per LSB
	lsbVSYSuV    = 1648   // µV per LSB
	lsbCurrNVPerUOhm = 1464870
	ltc4015Cells     = 2
	ltc4015RsnsUOhm  = 10_000
)

func ltc4015Decode(raw []byte, out []DecodedRecord) int {
	if len(raw) < 10 || len(out) < 5 {
		return 0
	}
	vbatRaw := uint16(raw[0]) | uint16(raw[1])<<8
	vinRaw := uint16(raw[2]) | uint16(raw[3])<<8
	vsysRaw := uint16(raw[4]) | uint16(raw[5])<<8
	ibatRaw := int16(uint16(raw[6]) | uint16(raw[7])<<8)
	iinRaw := int16(uint16(raw[8]) | uint16(raw[9])<<8)

	vbatMV := int64(vbatRaw) * lsbVBATLiNV * ltc4015Cells / 1_000_000
	vinMV := int64(vinRaw) * lsbVINuV / 1000
	vsysMV := int64(vsysRaw) * lsbVSYSuV / 1000
	ibatMA := int64(ibatRaw) * lsbCurrNVPerUOhm / ltc4015RsnsUOhm / 1000
	iinMA := int64(iinRaw) * lsbCurrNVPerUOhm / ltc4015RsnsUOhm / 1000

	out[0] = DecodedRecord{Name: "vbat_mv", Value: float64(vbatMV)}
	out[1] = DecodedRecord{Name: "vin_mv", Value: float64(vinMV)}
	out[2] = DecodedRecord{Name: "vsys_mv", Value: float64(vsysMV)}
	out[3] = DecodedRecord{Name: "ibat_ma", Value: float64(ibatMA)}
	out[4] = DecodedRecord{Name: "iin_ma", Value: float64(iinMA)}
	return 5
}

var ltc4015Type = DeviceType{
	TypeName:  "LTC4015",
	Addresses: AddressSet{Explicit: []uint8{0x68}},
	DetectionPairs: []DetectionPair{
		{Write: []byte{0x34}, Mask: []byte{0x00, 0x00}, Pattern: []byte{0x00, 0x00}},
	},
	Poll: PollConfig{
		Steps: []PollStep{
			{Write: []byte{0x3A}, ReadLen: 2},
			{Write: []byte{0x3B}, ReadLen: 2},
			{Write: []byte{0x3C}, ReadLen: 2},
			{Write: []byte{0x3D}, ReadLen: 2},
			{Write: []byte{0x3E}, ReadLen: 2},
		},
		IntervalMS:     2000,
		SamplesToStore: 64,
	},
	Decode: ltc4015Decode,
}

// defaultCatalog is the built-in device-type table.
func defaultCatalog() *Catalog {
	return &Catalog{Types: []DeviceType{vcnl4040, aht20Type, ltc4015Type}}
}
