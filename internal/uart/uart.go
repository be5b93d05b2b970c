// Package uart adapts a real serial device to the lump.Transport
// collaborator contract, opening and configuring a go.bug.st/serial
// port for the framing layer above it.
package uart

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
)

// Port is a lump.Transport backed by a real serial device.
type Port struct {
	mu       sync.Mutex
	port     serial.Port
	baud     int
	devPath  string
	closed   bool
}

// Open opens devicePath at the given baud rate, 8N1 (Size 8,
// ParityNone, Stop1).
func Open(devicePath string, baud int) (*Port, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	sp, err := serial.Open(devicePath, mode)
	if err != nil {
		return nil, fmt.Errorf("uart: open %s: %w", devicePath, err)
	}
	return &Port{port: sp, baud: baud, devPath: devicePath}, nil
}

func (p *Port) Baud() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.baud
}

// SetBaud reconfigures the line speed in place, matching the sync
// state machine's baud-probe renegotiation.
func (p *Port) SetBaud(rate int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("uart: %s is closed", p.devPath)
	}
	mode := &serial.Mode{
		BaudRate: rate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	if err := p.port.SetMode(mode); err != nil {
		return fmt.Errorf("uart: set baud %d on %s: %w", rate, p.devPath, err)
	}
	p.baud = rate
	return nil
}

// Read fills buf completely, honoring ctx's deadline via the
// underlying port's read timeout.
func (p *Port) Read(ctx context.Context, buf []byte) error {
	if err := p.applyDeadline(ctx); err != nil {
		return err
	}
	read := 0
	for read < len(buf) {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := p.port.Read(buf[read:])
		if err != nil {
			return fmt.Errorf("uart: read %s: %w", p.devPath, err)
		}
		if n == 0 {
			return context.DeadlineExceeded
		}
		read += n
	}
	return nil
}

// Write sends buf in full.
func (p *Port) Write(ctx context.Context, buf []byte) error {
	if err := p.applyDeadline(ctx); err != nil {
		return err
	}
	written := 0
	for written < len(buf) {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := p.port.Write(buf[written:])
		if err != nil {
			return fmt.Errorf("uart: write %s: %w", p.devPath, err)
		}
		written += n
	}
	return nil
}

func (p *Port) applyDeadline(ctx context.Context) error {
	deadline, ok := ctx.Deadline()
	if !ok {
		return p.port.SetReadTimeout(serial.NoTimeout)
	}
	d := time.Until(deadline)
	if d <= 0 {
		return context.DeadlineExceeded
	}
	return p.port.SetReadTimeout(d)
}

func (p *Port) Flush() error {
	return p.port.ResetOutputBuffer()
}

func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.port.Close()
}
