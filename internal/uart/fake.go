package uart

import (
	"context"
	"io"
	"sync"
)

// Fake is a deterministic, in-memory lump.Transport for tests. It
// replaces a real serial device with a byte queue a test feeds with
// Push and drains with Writes, the same inject-bytes/
// assert-bytes shape as the original source's SIMULATE_RX_MSG/
// SIMULATE_TX_MSG test harness, expressed as a channel-signaled
// buffer instead of a cooperative-scheduler poll.
type Fake struct {
	mu       sync.Mutex
	rx       []byte
	wake     chan struct{}
	closed   bool
	baud     int
	baudLog  []int
	writes   [][]byte
	writeErr error
}

// NewFake returns a Fake transport initialized at baud.
func NewFake(baud int) *Fake {
	return &Fake{baud: baud, baudLog: []int{baud}, wake: make(chan struct{})}
}

// Push appends bytes the port's reader will see on subsequent Read
// calls, as if the peer had just transmitted them.
func (f *Fake) Push(b []byte) {
	f.mu.Lock()
	f.rx = append(f.rx, b...)
	old := f.wake
	f.wake = make(chan struct{})
	f.mu.Unlock()
	close(old)
}

// Writes returns a copy of every buffer passed to Write so far, one
// entry per call (the port writes exactly one frame per call).
func (f *Fake) Writes() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.writes))
	copy(out, f.writes)
	return out
}

// BaudLog returns every baud rate SetBaud was called with, in order,
// including the initial value passed to NewFake.
func (f *Fake) BaudLog() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.baudLog...)
}

// FailWrites makes subsequent Write calls return err, simulating a
// hardware fault.
func (f *Fake) FailWrites(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeErr = err
}

func (f *Fake) SetBaud(rate int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.baud = rate
	f.baudLog = append(f.baudLog, rate)
	return nil
}

func (f *Fake) Baud() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.baud
}

// Read blocks until len(p) bytes are queued, the fake is closed, or
// ctx is done, whichever comes first.
func (f *Fake) Read(ctx context.Context, p []byte) error {
	for {
		f.mu.Lock()
		if len(f.rx) >= len(p) {
			copy(p, f.rx[:len(p)])
			f.rx = f.rx[len(p):]
			f.mu.Unlock()
			return nil
		}
		if f.closed {
			f.mu.Unlock()
			return io.EOF
		}
		wake := f.wake
		f.mu.Unlock()
		select {
		case <-wake:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (f *Fake) Write(ctx context.Context, p []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	cp := append([]byte(nil), p...)
	f.writes = append(f.writes, cp)
	return nil
}

func (f *Fake) Flush() error { return nil }

func (f *Fake) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	old := f.wake
	f.wake = make(chan struct{})
	f.mu.Unlock()
	close(old)
	return nil
}
