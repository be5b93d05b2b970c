package lump

import "time"

// handleKeepaliveTick emits the periodic NACK that keeps the peer
// streaming DATA while ready or mode-switching, nominally every
// 100ms. The emission itself happens inline in run's writeFrame call
// rather than a dedicated writer goroutine, since only one outbound
// frame is ever in flight and run is single-threaded.
func (p *Port) handleKeepaliveTick() {
	if p.state != StateReady && p.state != StateModeSwitching {
		return
	}
	p.writeFrame(EncodeNack())
}

// handleWatchdogExpired drops the port to errored once the watchdog
// elapses without a DATA frame. The baud is left at the synced rate;
// enterProbingBaud (invoked by run's loop right after this returns)
// resets it back to the high probe rate.
func (p *Port) handleWatchdogExpired(watchdog **time.Timer, keepalive **time.Ticker) {
	p.log.Warn("watchdog expired, resyncing")
	p.enterErrored(watchdog, keepalive)
}
