package lump

import (
	"context"
	"errors"
	"time"
)

// enterProbingBaud (re)starts the cold-attach handshake at the given
// baud rate, discarding any previous descriptor: a fresh UART
// attachment, or a resync, both start from detached. Probing starts
// at the high baud rate rather than the low bootstrap rate — see
// DESIGN.md for the reasoning.
func (p *Port) enterProbingBaud(baud int) {
	p.state = StateProbingBaud
	p.builder = newDescriptorBuilder()
	p.descriptor = nil
	p.typeID = TypeIDAny
	p.sample = nil
	p.currentMode = 0
	p.pendingMode = 0
	p.targetBaud = baud
	p.dataModeExt = 0
	p.switchProbeBaud(baud)
}

func (p *Port) switchProbeBaud(baud int) {
	p.probeBaud = baud
	if err := p.transport.SetBaud(baud); err != nil {
		p.log.Error("set baud failed", "baud", baud, "err", err)
	}
	p.restartReader()
}

// restartReader cancels any in-flight reader goroutine and starts a
// fresh one, used on baud changes and at startup.
func (p *Port) restartReader() {
	if p.readerCancel != nil {
		p.readerCancel()
		<-p.readerDone
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.readerCancel = cancel
	done := make(chan struct{})
	p.readerDone = done
	go p.readLoop(ctx, done)
}

// readLoop decodes frames from the transport and forwards them to the
// event loop. It never touches Port fields directly — only the reader
// task issues reads; all state mutation happens in run() after a
// frameEvent is received.
func (p *Port) readLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	buf := make([]byte, 0, 40)
	for {
		f, err := Decode(buf)
		if err == nil {
			select {
			case p.frameCh <- frameEvent{frame: f}:
			case <-ctx.Done():
				return
			}
			buf = buf[:0]
			continue
		}

		var nm NeedMore
		if errors.As(err, &nm) {
			chunk := make([]byte, nm.N)
			readCtx, cancel := context.WithTimeout(ctx, p.timing.ByteTimeout)
			rerr := p.transport.Read(readCtx, chunk)
			cancel()
			if rerr != nil {
				if ctx.Err() != nil {
					return
				}
				select {
				case p.frameCh <- frameEvent{err: rerr}:
				case <-ctx.Done():
					return
				}
				buf = buf[:0]
				continue
			}
			buf = append(buf, chunk...)
			continue
		}

		// Malformed: discard and resynchronize at the next byte.
		select {
		case p.frameCh <- frameEvent{err: ErrMalformed}:
		case <-ctx.Done():
			return
		}
		buf = buf[:0]
	}
}

// handleProbeTimeout implements the probing-baud toggle. From the
// high baud it first transmits a speculative SPEED request (115200 ->
// SPEED rejected -> 2400); from the low baud it simply toggles back
// up.
func (p *Port) handleProbeTimeout(probeTimer *time.Timer) {
	if p.state != StateProbingBaud {
		return
	}
	if p.probeBaud == p.timing.HighBaud {
		p.writeFrame(EncodeSpeed(uint32(p.timing.HighBaud)))
		p.switchProbeBaud(p.timing.LowBaud)
	} else {
		p.switchProbeBaud(p.timing.HighBaud)
	}
	probeTimer.Reset(p.timing.ProbeWindow)
}

// handleFrameEvent dispatches one decoded frame (or decode/IO error)
// according to the current state, per the port's transition table.
func (p *Port) handleFrameEvent(ev frameEvent, probeTimer *time.Timer, watchdog **time.Timer, keepalive **time.Ticker) {
	if ev.err != nil {
		p.handleFrameError(ev.err, watchdog, keepalive)
		return
	}
	f := ev.frame

	switch f.Kind {
	case KindCMD:
		p.handleCmdFrame(f, probeTimer, watchdog, keepalive)
		return
	case KindINFO:
		if p.state == StateIngesting {
			if err := p.builder.applyInfo(f); err != nil {
				p.log.Warn("info frame rejected", "err", err)
			}
		}
		return
	case KindDATA:
		p.handleDataFrame(f, watchdog)
		return
	case KindSYS:
		p.handleSysFrame(f, probeTimer, watchdog, keepalive)
		return
	}
}

// handleFrameError treats a malformed frame and an expired read
// deadline the same way — if it happens while ready/mode-switching it
// is a watchdog-equivalent fault and escalates to errored; otherwise
// it is silently absorbed and the reader simply resynchronizes on the
// next header byte.
func (p *Port) handleFrameError(err error, watchdog **time.Timer, keepalive **time.Ticker) {
	status := stateErr(err)
	p.log.Debug("frame error", "err", err, "status", status)
	if p.state == StateReady || p.state == StateModeSwitching {
		p.enterErrored(watchdog, keepalive)
	}
}

func (p *Port) handleCmdFrame(f Frame, probeTimer *time.Timer, watchdog **time.Timer, keepalive **time.Ticker) {
	switch CmdID(f.SubKind) {
	case CmdType:
		if len(f.Payload) < 1 {
			return
		}
		if p.state != StateIngesting {
			if p.state == StateReady || p.state == StateModeSwitching {
				if *watchdog != nil {
					(*watchdog).Stop()
					*watchdog = nil
				}
				if *keepalive != nil {
					(*keepalive).Stop()
					*keepalive = nil
				}
			}
			p.state = StateIngesting
			p.builder = newDescriptorBuilder()
			p.descriptor = nil
			p.sample = nil
		}
		p.typeID = TypeID(f.Payload[0])
		p.builder.setType(p.typeID)
		// A TYPE frame arriving at any time re-enters ingesting, even
		// a spurious one; stop the probe clock, which only matters
		// while probing-baud.
		if probeTimer != nil {
			probeTimer.Stop()
		}
	case CmdModes:
		if p.state != StateIngesting || len(f.Payload) < 2 {
			return
		}
		numModes := int(f.Payload[0]) + 1
		numViews := int(f.Payload[1]) + 1
		if len(f.Payload) >= 4 {
			declared := int(f.Payload[2]) + 1
			if declared > numModes {
				numModes = declared
			}
			declaredViews := int(f.Payload[3]) + 1
			if declaredViews > numViews {
				numViews = declaredViews
			}
		}
		if err := p.builder.resize(numModes, numViews); err != nil {
			p.log.Warn("modes frame rejected", "err", err)
		}
	case CmdSpeed:
		if p.state != StateIngesting || len(f.Payload) < 4 {
			return
		}
		baud := int(f.Payload[0]) | int(f.Payload[1])<<8 | int(f.Payload[2])<<16 | int(f.Payload[3])<<24
		p.targetBaud = baud
	case CmdExtMode:
		// The device sends this immediately before a DATA frame
		// whose mode is 8-15, since a DATA header's mode field is
		// only 3 bits wide; it extends that next frame's mode by the
		// payload value (0x08) and applies to that one frame only
		// (captured "set mode 8" exchange: EXT_MODE(0x08), then a
		// DATA frame with header mode bits 000 meaning mode 8).
		if len(f.Payload) >= 1 {
			p.dataModeExt = f.Payload[0]
		}
	}
}

func (p *Port) handleSysFrame(f Frame, probeTimer *time.Timer, watchdog **time.Timer, keepalive **time.Ticker) {
	if f.SubKind != sysAck {
		return
	}
	switch p.state {
	case StateIngesting:
		p.finalizeSync(watchdog, keepalive)
	}
}

// finalizeSync implements the "ingesting -> awaiting-ack ->
// setting-default-mode -> ready" chain. It runs as one atomic step
// since, unlike the original cooperative scheduler, nothing else can
// observe the intermediate awaiting-ack/setting-default-mode states
// between these writes.
func (p *Port) finalizeSync(watchdog **time.Timer, keepalive **time.Ticker) {
	p.state = StateAwaitingAck
	if !p.builder.allComplete() {
		p.log.Warn("sync finalize with incomplete descriptors")
		p.enterErrored(watchdog, keepalive)
		return
	}
	p.descriptor = p.builder.freeze()
	p.writeFrame(EncodeAck())

	if p.targetBaud == 0 {
		p.targetBaud = p.probeBaud
	}
	if p.targetBaud != p.probeBaud {
		p.switchProbeBaud(p.targetBaud)
	}

	p.state = StateSettingDefaultMode
	p.currentMode = p.descriptor.DefaultMode
	p.writeFrame(EncodeSelect(p.currentMode))

	p.state = StateReady
	*watchdog = time.NewTimer(p.timing.WatchdogPeriod)
	*keepalive = time.NewTicker(p.timing.KeepAlivePeriod)
	p.log.Info("sync complete", "type_id", p.typeID, "num_modes", p.descriptor.NumModes, "default_mode", p.currentMode)
}

func (p *Port) handleDataFrame(f Frame, watchdog **time.Timer) {
	mode := f.Mode | p.dataModeExt
	p.dataModeExt = 0

	switch p.state {
	case StateReady:
		p.sample = &Sample{Mode: mode, Payload: append([]byte(nil), f.Payload...), Timestamp: time.Now()}
		p.resetWatchdog(watchdog)
	case StateModeSwitching:
		if mode != p.pendingMode {
			// Discard: DATA for the previous mode, still in flight.
			p.resetWatchdog(watchdog)
			return
		}
		p.sample = &Sample{Mode: mode, Payload: append([]byte(nil), f.Payload...), Timestamp: time.Now()}
		p.currentMode = mode
		p.state = StateReady
		p.resetWatchdog(watchdog)
	}
}

func (p *Port) resetWatchdog(watchdog **time.Timer) {
	if *watchdog == nil {
		return
	}
	if !(*watchdog).Stop() {
		select {
		case <-(*watchdog).C:
		default:
		}
	}
	(*watchdog).Reset(p.timing.WatchdogPeriod)
}

// enterErrored marks the port errored, clears the descriptor and
// sample, and stops the watchdog and keep-alive timers. The transport
// is not closed; it stays open for the next probe. Rather than leaving
// the port detached, run's loop immediately restarts probing-baud: recovery is
// automatic and indefinite, so the port continuously attempts baud
// probing until a device is detected.
func (p *Port) enterErrored(watchdog **time.Timer, keepalive **time.Ticker) {
	p.state = StateErrored
	p.descriptor = nil
	p.sample = nil
	if *watchdog != nil {
		(*watchdog).Stop()
		*watchdog = nil
	}
	if *keepalive != nil {
		(*keepalive).Stop()
		*keepalive = nil
	}
}
