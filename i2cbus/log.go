// i2cbus/log.go
package i2cbus

import "i2cbus-core/x/fmtx"

// The teacher repo has no structured-logging dependency on this class of
// embedded build (TinyGo/RP2040 favours println/silence); CORE follows
// suit and formats through x/fmtx rather than bare fmt, the same role
// fmtx plays for the rare formatted string elsewhere in the teacher tree
// (SPEC_FULL §10.1). logf is rate-limited by the caller, not here — the
// limiter needs per-site state (a last-emitted timestamp), so each call
// site owns its own warnGate.

// Logger receives formatted diagnostic lines. The zero value discards
// everything, matching the teacher's "no logger means silence" default.
type Logger func(line string)

func (l Logger) logf(format string, a ...any) {
	if l == nil {
		return
	}
	l(fmtx.Sprintf(format, a...))
}

// warnGate rate-limits one warning site to at most once per windowMs.
type warnGate struct {
	lastMs int64
}

func (g *warnGate) allow(nowMs int64, windowMs int64) bool {
	if nowMs-g.lastMs < windowMs {
		return false
	}
	g.lastMs = nowMs
	return true
}
