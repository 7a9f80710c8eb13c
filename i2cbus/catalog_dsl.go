// i2cbus/catalog_dsl.go
package i2cbus

import (
	"strings"

	"i2cbus-core/errcode"
	"i2cbus-core/x/strconvx"
)

// The detection/init/poll DSL (§6) is parsed only at catalog-build time —
// there is no runtime file I/O, matching the teacher's
// internal/platform/setups convention of data compiled straight into the
// binary rather than loaded.
//
// Write specifier: "0x" + hex bytes, e.g. "0x041007".
// Read specifier:  "0b" + one of 0/1/x per bit, MSB-first; 'x' is a
// don't-care used as the mask position both for detection and for polling.
// Steps are separated by '&', name/value by '=', and terminated by ';'.

// parseWriteSpec decodes a "0x..." hex literal into raw bytes.
func parseWriteSpec(spec string) ([]byte, errcode.Code) {
	spec = strings.TrimPrefix(spec, "0x")
	if len(spec)%2 != 0 {
		return nil, errcode.Invalid
	}
	out := make([]byte, len(spec)/2)
	for i := range out {
		v, err := strconvx.ParseUint(spec[i*2:i*2+2], 16, 8)
		if err != nil {
			return nil, errcode.Invalid
		}
		out[i] = byte(v)
	}
	return out, errcode.Ok
}

// parseReadSpec decodes a "0b..." bit literal into (mask, pattern), one
// byte per 8 characters, 'x' positions clearing the mask bit.
func parseReadSpec(spec string) (mask, pattern []byte, code errcode.Code) {
	spec = strings.TrimPrefix(spec, "0b")
	if len(spec)%8 != 0 || len(spec) == 0 {
		return nil, nil, errcode.Invalid
	}
	nBytes := len(spec) / 8
	mask = make([]byte, nBytes)
	pattern = make([]byte, nBytes)
	for byteIdx := 0; byteIdx < nBytes; byteIdx++ {
		for bit := 0; bit < 8; bit++ {
			c := spec[byteIdx*8+bit]
			bitPos := uint(7 - bit) // MSB-first
			switch c {
			case '0':
				mask[byteIdx] |= 1 << bitPos
			case '1':
				mask[byteIdx] |= 1 << bitPos
				pattern[byteIdx] |= 1 << bitPos
			case 'x', 'X':
				// don't-care: leave both mask and pattern bits clear
			default:
				return nil, nil, errcode.Invalid
			}
		}
	}
	return mask, pattern, errcode.Ok
}

// parseDetectionStep parses one "write=0x..&read=0b..;" detection pair.
func parseDetectionStep(step string) (DetectionPair, errcode.Code) {
	var pair DetectionPair
	for _, field := range strings.Split(step, "&") {
		name, value, ok := strings.Cut(field, "=")
		if !ok {
			return pair, errcode.Invalid
		}
		switch strings.TrimSpace(name) {
		case "write":
			w, code := parseWriteSpec(strings.TrimSpace(value))
			if code != errcode.Ok {
				return pair, code
			}
			pair.Write = w
		case "read":
			mask, pattern, code := parseReadSpec(strings.TrimSpace(value))
			if code != errcode.Ok {
				return pair, code
			}
			pair.Mask, pair.Pattern = mask, pattern
		default:
			return pair, errcode.Invalid
		}
	}
	return pair, errcode.Ok
}

// parseDetectionSpec parses a ';'-terminated list of detection steps.
func parseDetectionSpec(spec string) ([]DetectionPair, errcode.Code) {
	var pairs []DetectionPair
	for _, step := range splitSteps(spec) {
		p, code := parseDetectionStep(step)
		if code != errcode.Ok {
			return nil, code
		}
		pairs = append(pairs, p)
	}
	return pairs, errcode.Ok
}

// parseInitSpec parses a ';'-terminated list of write-only init steps.
func parseInitSpec(spec string) ([][]byte, errcode.Code) {
	var out [][]byte
	for _, step := range splitSteps(spec) {
		name, value, ok := strings.Cut(step, "=")
		if !ok || strings.TrimSpace(name) != "write" {
			return nil, errcode.Invalid
		}
		w, code := parseWriteSpec(strings.TrimSpace(value))
		if code != errcode.Ok {
			return nil, code
		}
		out = append(out, w)
	}
	return out, errcode.Ok
}

// parsePollStepList parses the "c" field of the poll config JSON: a
// ';'-terminated list of "write=0x..&read=0bxxxxxxxx" steps, where the
// read spec's length (in bytes) becomes that step's ReadLen.
func parsePollStepList(spec string) ([]PollStep, errcode.Code) {
	var steps []PollStep
	for _, stepSpec := range splitSteps(spec) {
		var st PollStep
		for _, field := range strings.Split(stepSpec, "&") {
			name, value, ok := strings.Cut(field, "=")
			if !ok {
				return nil, errcode.Invalid
			}
			switch strings.TrimSpace(name) {
			case "write":
				w, code := parseWriteSpec(strings.TrimSpace(value))
				if code != errcode.Ok {
					return nil, code
				}
				st.Write = w
			case "read":
				mask, _, code := parseReadSpec(strings.TrimSpace(value))
				if code != errcode.Ok {
					return nil, code
				}
				st.ReadLen = len(mask)
			default:
				return nil, errcode.Invalid
			}
		}
		steps = append(steps, st)
	}
	return steps, errcode.Ok
}

func splitSteps(spec string) []string {
	spec = strings.TrimSuffix(strings.TrimSpace(spec), ";")
	if spec == "" {
		return nil
	}
	return strings.Split(spec, ";")
}
