package lump

import "errors"

// Status is the closed set of return values the port façade surface
// uses.
type Status int

const (
	StatusOK Status = iota
	StatusPending
	StatusNoDevice
	StatusWrongType
	StatusInvalidArgument
	StatusTimedOut
	StatusIOError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusPending:
		return "pending"
	case StatusNoDevice:
		return "no-device"
	case StatusWrongType:
		return "wrong-type"
	case StatusInvalidArgument:
		return "invalid-argument"
	case StatusTimedOut:
		return "timed-out"
	case StatusIOError:
		return "io-error"
	default:
		return "unknown"
	}
}

// Error wraps a Status so callers can use errors.Is/errors.As while
// still getting a message.
type Error struct {
	Status Status
	Msg    string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Status.String()
	}
	return e.Status.String() + ": " + e.Msg
}

func newError(s Status, msg string) *Error { return &Error{Status: s, Msg: msg} }

// ErrPending is returned by non-blocking queries while the port has
// not yet reached the state the caller asked about. It is not a
// failure.
var ErrPending = newError(StatusPending, "")

// ErrNoDevice is returned by GetTypeID, Info, Sample and SetMode while
// no synced device descriptor exists: before the first sync completes,
// and after the port has escalated to errored, which callers see as
// "nothing attached".
var ErrNoDevice = newError(StatusNoDevice, "")

// ErrWrongType is returned by AssertTypeID on a type id mismatch.
var ErrWrongType = newError(StatusWrongType, "")

// ErrInvalidArgument is returned synchronously for bad caller input
// (e.g. mode index out of range) and never alters port state.
var ErrInvalidArgument = newError(StatusInvalidArgument, "")

// ErrTimedOut carries StatusTimedOut. No Port method returns it: an
// expired UART read or watchdog drops the port to errored, which
// callers observe as ErrNoDevice.
var ErrTimedOut = newError(StatusTimedOut, "")

// ErrIOError carries StatusIOError, the status StatusOf reports for
// any error that is not an *Error. No Port method returns it: UART
// faults and malformed frames are handled inside the event loop.
var ErrIOError = newError(StatusIOError, "")

// StatusOf extracts the Status carried by err, defaulting to
// StatusIOError for any other non-nil error: unexpected failures are
// never silently reported as ok.
func StatusOf(err error) Status {
	if err == nil {
		return StatusOK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return StatusIOError
}
