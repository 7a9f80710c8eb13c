package i2cbus

import (
	"testing"

	"i2cbus-core/errcode"
)

func TestParseWriteSpec(t *testing.T) {
	b, code := parseWriteSpec("0x041007")
	if code != errcode.Ok {
		t.Fatalf("parseWriteSpec error: %v", code)
	}
	want := []byte{0x04, 0x10, 0x07}
	if len(b) != len(want) {
		t.Fatalf("got %v, want %v", b, want)
	}
	for i := range want {
		if b[i] != want[i] {
			t.Fatalf("got %v, want %v", b, want)
		}
	}
}

func TestParseReadSpecDontCareBits(t *testing.T) {
	mask, pattern, code := parseReadSpec("0b0000100x")
	if code != errcode.Ok {
		t.Fatalf("parseReadSpec error: %v", code)
	}
	if mask[0] != 0xFE || pattern[0] != 0x08 {
		t.Fatalf("mask=%#x pattern=%#x, want mask=0xFE pattern=0x08", mask[0], pattern[0])
	}
}

func TestDetectionPairMatches(t *testing.T) {
	mask, pattern, _ := parseReadSpec("0b0000100x")
	pair := DetectionPair{Mask: mask, Pattern: pattern}
	if !pair.matches([]byte{0x08}) {
		t.Fatalf("expected match for 0x08")
	}
	if !pair.matches([]byte{0x09}) {
		t.Fatalf("expected match for 0x09 (don't-care bit differs)")
	}
	if pair.matches([]byte{0x00}) {
		t.Fatalf("expected mismatch for 0x00")
	}
}

func TestAddressSetExplicitAndRange(t *testing.T) {
	explicit := AddressSet{Explicit: []uint8{0x60}}
	if !explicit.contains(0x60) || explicit.contains(0x61) {
		t.Fatalf("explicit address set behaved unexpectedly")
	}
	ranged := AddressSet{UseRange: true, RangeLo: 0x70, RangeHi: 0x77}
	if !ranged.contains(0x73) || ranged.contains(0x78) {
		t.Fatalf("ranged address set behaved unexpectedly")
	}
}

func TestVCNL4040Decode(t *testing.T) {
	raw := []byte{0x10, 0x00, 0x64, 0x00, 0xC8, 0x00} // prox=16, als=100, white=200
	out := make([]DecodedRecord, 3)
	n := vcnl4040Decode(raw, out)
	if n != 3 || out[0].Value != 16 || out[1].Value != 10 || out[2].Value != 20 {
		t.Fatalf("unexpected decode: %+v", out[:n])
	}
}

func TestAHT20Decode(t *testing.T) {
	// status=calibrated, not busy; pick raw values that land on round numbers.
	hraw := uint32(0x80000) // ~50.0%
	traw := uint32(0x60000) // ~25.0C
	raw := []byte{
		aht20StatusCalibrated,
		byte(hraw >> 12), byte(hraw >> 4), byte((hraw&0x0F)<<4) | byte(traw>>16),
		byte(traw >> 8), byte(traw),
	}
	out := make([]DecodedRecord, 2)
	n := aht20Decode(raw, out)
	if n != 2 {
		t.Fatalf("expected decode to succeed")
	}
	if out[0].Value < 49 || out[0].Value > 51 {
		t.Fatalf("humidity out of range: %v", out[0].Value)
	}
}

func TestAHT20DecodeNotReady(t *testing.T) {
	raw := make([]byte, 6) // status byte 0 => not calibrated
	out := make([]DecodedRecord, 2)
	if n := aht20Decode(raw, out); n != 0 {
		t.Fatalf("expected 0 records for uncalibrated device, got %d", n)
	}
}
