// i2cbus/clock.go
package i2cbus

import (
	"time"

	"i2cbus-core/x/timex"
)

// nowMS and nowUS are package-level clock hooks so tests can fake time
// without the state machines below needing a Clock interface threaded
// through every constructor. nowMS reuses the teacher's x/timex helper
// rather than re-deriving UnixMilli inline.
var (
	nowMS = timex.NowMs
	nowUS = func() int64 { return time.Now().UnixMicro() }
)
