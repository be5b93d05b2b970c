// Package lump implements the host-side LUMP port: frame codec,
// device descriptor store, sync state machine, keep-alive supervisor,
// and mode-switch coordinator. A single goroutine — run — owns all
// mutable port state; every other goroutine or caller talks to it
// over channels, the same single-owner discipline a mutex-guarded
// read-loop goroutine enforces, but here expressed without a lock
// since exactly one goroutine ever touches the fields below: mutable
// state need not be locked across yield points on the same port.
package lump

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"
)

// frameEvent is what the reader goroutine forwards to the event loop:
// either a decoded Frame or an error (malformed frame, UART timeout,
// UART fault) that the loop treats identically.
type frameEvent struct {
	frame Frame
	err   error
}

type infoRequest struct{ resp chan Info }
type typeIDRequest struct{ resp chan TypeID }
type sampleRequest struct {
	mode int // -1 means "no filter"
	resp chan sampleResult
}
type sampleResult struct {
	sample Sample
	err    error
}
type setModeRequest struct {
	mode uint8
	resp chan error
}
type assertTypeRequest struct {
	expected TypeID
	resp     chan error
}

// Port is one LUMP device attachment point. Create with NewPort and
// release with Close.
type Port struct {
	transport Transport
	timing    Timing
	log       *log.Logger

	infoReqCh   chan infoRequest
	typeReqCh   chan typeIDRequest
	sampleReqCh chan sampleRequest
	setModeCh   chan setModeRequest
	assertCh    chan assertTypeRequest

	frameCh chan frameEvent
	closeCh chan struct{}
	doneCh  chan struct{}

	// Fields below are owned exclusively by run's goroutine.
	state       State
	builder     *descriptorBuilder
	descriptor  *DeviceDescriptor
	typeID      TypeID
	currentMode uint8
	pendingMode uint8
	targetBaud  int
	probeBaud   int
	sample      *Sample
	dataModeExt uint8

	readerCancel context.CancelFunc
	readerDone   chan struct{}
}

// NewPort opens a LUMP session over transport and starts its event
// loop. The port begins at probing-baud immediately: "detached ->
// UART opened -> probing-baud".
func NewPort(transport Transport, timing Timing, logger *log.Logger) *Port {
	p := &Port{
		transport:   transport,
		timing:      timing,
		log:         newPortLogger(logger, "port"),
		infoReqCh:   make(chan infoRequest),
		typeReqCh:   make(chan typeIDRequest),
		sampleReqCh: make(chan sampleRequest),
		setModeCh:   make(chan setModeRequest),
		assertCh:    make(chan assertTypeRequest),
		frameCh:     make(chan frameEvent, 1),
		closeCh:     make(chan struct{}),
		doneCh:      make(chan struct{}),
		state:       StateDetached,
	}
	go p.run()
	return p
}

// GetTypeID returns the attached device's type id, or ErrNoDevice
// before sync completes (no descriptor yet).
func (p *Port) GetTypeID() (TypeID, error) {
	resp := make(chan TypeID, 1)
	select {
	case p.typeReqCh <- typeIDRequest{resp: resp}:
	case <-p.doneCh:
		return 0, ErrNoDevice
	}
	select {
	case id := <-resp:
		if id == TypeIDAny {
			return 0, ErrNoDevice
		}
		return id, nil
	case <-p.doneCh:
		return 0, ErrNoDevice
	}
}

// Info reports the descriptor snapshot, or ErrNoDevice while no synced
// descriptor exists (before sync completes, and after an errored drop).
// Once ready, it returns a stable, frozen descriptor set until a
// resync.
func (p *Port) Info() (Info, error) {
	resp := make(chan Info, 1)
	select {
	case p.infoReqCh <- infoRequest{resp: resp}:
	case <-p.doneCh:
		return Info{}, ErrNoDevice
	}
	select {
	case info := <-resp:
		if info.Descriptor == nil {
			return Info{}, ErrNoDevice
		}
		return info, nil
	case <-p.doneCh:
		return Info{}, ErrNoDevice
	}
}

// Sample returns the most recent DATA payload. If modeFilter is
// non-negative, it further requires the sample's mode to match,
// returning ErrPending otherwise.
func (p *Port) Sample(modeFilter int) (Sample, error) {
	resp := make(chan sampleResult, 1)
	select {
	case p.sampleReqCh <- sampleRequest{mode: modeFilter, resp: resp}:
	case <-p.doneCh:
		return Sample{}, ErrNoDevice
	}
	select {
	case r := <-resp:
		return r.sample, r.err
	case <-p.doneCh:
		return Sample{}, ErrNoDevice
	}
}

// SetMode requests mode m become active. It returns
// nil if m is already current, ErrPending once the request has been
// accepted and is in flight, ErrInvalidArgument if m is out of range,
// or ErrNoDevice if the port is not ready or mode-switching.
func (p *Port) SetMode(m uint8) error {
	resp := make(chan error, 1)
	select {
	case p.setModeCh <- setModeRequest{mode: m, resp: resp}:
	case <-p.doneCh:
		return ErrNoDevice
	}
	select {
	case err := <-resp:
		return err
	case <-p.doneCh:
		return ErrNoDevice
	}
}

// AssertTypeID returns nil if the attached device's type id matches
// expected (or expected is TypeIDAny), ErrWrongType on mismatch, and
// ErrPending before sync completes. A call made during a resync sees
// pending, never a spurious ok.
func (p *Port) AssertTypeID(expected TypeID) error {
	resp := make(chan error, 1)
	select {
	case p.assertCh <- assertTypeRequest{expected: expected, resp: resp}:
	case <-p.doneCh:
		return ErrNoDevice
	}
	select {
	case err := <-resp:
		return err
	case <-p.doneCh:
		return ErrNoDevice
	}
}

// Close cancels the event loop and releases the transport. Safe to
// call more than once.
func (p *Port) Close() error {
	select {
	case <-p.closeCh:
	default:
		close(p.closeCh)
	}
	<-p.doneCh
	return nil
}

// run is the single goroutine that owns all mutable port state. It is
// the Go rendering of the port's three cooperative tasks (reader,
// writer, supervisor): reads and writes happen inline here since
// nothing else may observe state between them, and the keep-alive/
// watchdog timers are plain time.Ticker/time.Timer values selected on alongside
// the frame channel, rather than a fourth goroutine.
func (p *Port) run() {
	defer p.teardown()

	p.enterProbingBaud(p.timing.HighBaud)
	probeTimer := time.NewTimer(p.timing.ProbeWindow)
	defer probeTimer.Stop()
	var watchdog *time.Timer
	var keepalive *time.Ticker
	defer func() {
		if watchdog != nil {
			watchdog.Stop()
		}
		if keepalive != nil {
			keepalive.Stop()
		}
	}()

	for {
		var probeC, watchdogC <-chan time.Time
		var keepaliveC <-chan time.Time
		if probeTimer != nil {
			probeC = probeTimer.C
		}
		if watchdog != nil {
			watchdogC = watchdog.C
		}
		if keepalive != nil {
			keepaliveC = keepalive.C
		}

		// Application-initiated writes take priority over the next
		// keep-alive tick when both are pending.
		select {
		case req := <-p.setModeCh:
			p.handleSetMode(req)
			continue
		default:
		}

		select {
		case <-p.closeCh:
			return

		case req := <-p.setModeCh:
			p.handleSetMode(req)

		case req := <-p.infoReqCh:
			req.resp <- p.snapshotInfo()

		case req := <-p.typeReqCh:
			if p.descriptor == nil {
				req.resp <- TypeIDAny
			} else {
				req.resp <- p.typeID
			}

		case req := <-p.sampleReqCh:
			req.resp <- p.handleSampleRequest(req.mode)

		case req := <-p.assertCh:
			req.resp <- p.handleAssertTypeID(req.expected)

		case ev := <-p.frameCh:
			p.handleFrameEvent(ev, probeTimer, &watchdog, &keepalive)

		case <-probeC:
			p.handleProbeTimeout(probeTimer)

		case <-watchdogC:
			p.handleWatchdogExpired(&watchdog, &keepalive)

		case <-keepaliveC:
			p.handleKeepaliveTick()
		}

		if p.state == StateErrored {
			p.enterProbingBaud(p.timing.HighBaud)
			probeTimer.Stop()
			probeTimer = time.NewTimer(p.timing.ProbeWindow)
		}
	}
}

func (p *Port) teardown() {
	if p.readerCancel != nil {
		p.readerCancel()
		<-p.readerDone
	}
	if err := p.transport.Close(); err != nil {
		p.log.Debug("transport close", "err", err)
	}
	close(p.doneCh)
}

// snapshotInfo builds the caller-facing Info value. Descriptor is nil
// (ErrNoDevice to the caller) until sync has finalized.
func (p *Port) snapshotInfo() Info {
	numModes := 0
	if p.descriptor != nil {
		numModes = p.descriptor.NumModes
	}
	return Info{
		NumModes:    numModes,
		CurrentMode: p.currentMode,
		Descriptor:  p.descriptor,
	}
}

func (p *Port) handleSampleRequest(modeFilter int) sampleResult {
	if !p.state.dataReady() || p.sample == nil {
		return sampleResult{err: ErrNoDevice}
	}
	if modeFilter >= 0 && int(p.sample.Mode) != modeFilter {
		return sampleResult{err: ErrPending}
	}
	return sampleResult{sample: *p.sample}
}

func (p *Port) handleAssertTypeID(expected TypeID) error {
	if p.descriptor == nil {
		return ErrPending
	}
	if expected == TypeIDAny || expected == p.typeID {
		return nil
	}
	return ErrWrongType
}

func (p *Port) writeFrame(b []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timing.ByteTimeout)
	defer cancel()
	if err := p.transport.Write(ctx, b); err != nil {
		p.log.Error("write failed", "err", err)
	}
}

// stateErr maps an internal decode/IO error to the Status it
// surfaces as: malformation is never distinguished from io-error.
func stateErr(err error) Status {
	var nm NeedMore
	if errors.As(err, &nm) {
		return StatusOK
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return StatusTimedOut
	}
	return StatusIOError
}
