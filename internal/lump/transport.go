package lump

import "context"

// Transport is the UART collaborator contract: asynchronous read/write
// of byte buffers with timeout, baud control, and flush. It is
// implemented by internal/uart against a real serial port, and by a
// deterministic fake in tests. Reads and writes may block the calling
// goroutine until ctx is done, the requested bytes are available, or
// the link faults.
type Transport interface {
	// SetBaud reconfigures the line speed. It does not interrupt
	// pending reads/writes; callers coordinate with the sync state
	// machine to quiesce the link first.
	SetBaud(rate int) error

	// Baud returns the line speed last set by SetBaud (or the
	// transport's initial speed).
	Baud() int

	// Read fills buf completely or returns an error. ctx carries the
	// caller-supplied timeout; on expiry this returns
	// context.DeadlineExceeded.
	Read(ctx context.Context, buf []byte) error

	// Write sends buf in full or returns an error.
	Write(ctx context.Context, buf []byte) error

	// Flush discards any buffered-but-unsent output.
	Flush() error

	// Close releases the underlying device. A Read or Write blocked
	// at the time of Close returns promptly with an error rather
	// than hanging.
	Close() error
}
