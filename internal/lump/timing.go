package lump

import "time"

// Timing holds the periods the sync state machine and keep-alive
// supervisor run on. The wire protocol itself does not fix the
// keep-alive and watchdog periods, so callers load this from
// internal/config rather than relying on the defaults below.
type Timing struct {
	// ProbeWindow is how long probing-baud waits at each rate for a
	// TYPE frame before toggling baud. When it expires at the high
	// rate, a SPEED request is sent and the switch to the low rate
	// follows at once; no ACK to that request is awaited.
	ProbeWindow time.Duration

	// ByteTimeout bounds a single UART read of the next N bytes of an
	// in-progress frame.
	ByteTimeout time.Duration

	// KeepAlivePeriod is the NACK tick interval while ready/mode-switching.
	KeepAlivePeriod time.Duration

	// WatchdogPeriod is how long ready/mode-switching tolerates the
	// absence of a DATA frame before escalating to errored.
	WatchdogPeriod time.Duration

	// HighBaud and LowBaud are the two rates probing-baud alternates
	// between. Hubs start at 115200 and fall back to 2400 for older
	// bootstrap firmware.
	HighBaud int
	LowBaud  int
}

// DefaultTiming returns the nominal values: a 100ms keep-alive tick, a
// 1s watchdog, and the two standard LUMP baud rates.
func DefaultTiming() Timing {
	return Timing{
		ProbeWindow:     500 * time.Millisecond,
		ByteTimeout:     2 * time.Second,
		KeepAlivePeriod: 100 * time.Millisecond,
		WatchdogPeriod:  time.Second,
		HighBaud:        115200,
		LowBaud:         2400,
	}
}
