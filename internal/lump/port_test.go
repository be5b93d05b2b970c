package lump_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lego-riskieren/lump-driver/internal/lump"
	"github.com/lego-riskieren/lump-driver/internal/uart"
)

// The byte arrays below are the BOOST Color-Distance Sensor capture
// from the original firmware's LUMP test fixtures, transcribed
// verbatim. They exercise the real checksum and EXT_MODE-folding logic
// end to end rather than a synthetic stand-in.
var boostColorDistanceSensorInfo = [][]byte{
	{0x40, 0x25, 0x9A},
	{0x51, 0x07, 0x07, 0x0A, 0x07, 0xA3},
	{0x52, 0x00, 0xC2, 0x01, 0x00, 0x6E},
	{0x5F, 0x00, 0x00, 0x00, 0x10, 0x00, 0x00, 0x00, 0x10, 0xA0},
	{0x9A, 0x20, 0x43, 0x41, 0x4C, 0x49, 0x42, 0x00, 0x00, 0x00, 0x00},
	{0x9A, 0x21, 0x00, 0x00, 0x00, 0x00, 0x00, 0xFF, 0x7F, 0x47, 0x83},
	{0x9A, 0x22, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xC8, 0x42, 0xCD},
	{0x9A, 0x23, 0x00, 0x00, 0x00, 0x00, 0x00, 0xFF, 0x7F, 0x47, 0x81},
	{0x92, 0x24, 0x4E, 0x2F, 0x41, 0x00, 0x69},
	{0x8A, 0x25, 0x10, 0x00, 0x40},
	{0x92, 0xA0, 0x08, 0x01, 0x05, 0x00, 0xC1},
	{0x99, 0x20, 0x44, 0x45, 0x42, 0x55, 0x47, 0x00, 0x00, 0x00, 0x17},
	{0x99, 0x21, 0x00, 0x00, 0x00, 0x00, 0x00, 0xC0, 0x7F, 0x44, 0xBC},
	{0x99, 0x22, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xC8, 0x42, 0xCE},
	{0x99, 0x23, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x20, 0x41, 0x24},
	{0x91, 0x24, 0x4E, 0x2F, 0x41, 0x00, 0x6A},
	{0x89, 0x25, 0x10, 0x00, 0x43},
	{0x91, 0xA0, 0x02, 0x01, 0x05, 0x00, 0xC8},
	{0x98, 0x20, 0x53, 0x50, 0x45, 0x43, 0x20, 0x31, 0x00, 0x00, 0x53},
	{0x98, 0x21, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x7F, 0x43, 0x7A},
	{0x98, 0x22, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xC8, 0x42, 0xCF},
	{0x98, 0x23, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x7F, 0x43, 0x78},
	{0x90, 0x24, 0x4E, 0x2F, 0x41, 0x00, 0x6B},
	{0x88, 0x25, 0x00, 0x00, 0x52},
	{0x90, 0xA0, 0x04, 0x00, 0x03, 0x00, 0xC8},
	{0x9F, 0x00, 0x49, 0x52, 0x20, 0x54, 0x78, 0x00, 0x00, 0x00, 0x77},
	{0x9F, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0xFF, 0x7F, 0x47, 0xA6},
	{0x9F, 0x02, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xC8, 0x42, 0xE8},
	{0x9F, 0x03, 0x00, 0x00, 0x00, 0x00, 0x00, 0xFF, 0x7F, 0x47, 0xA4},
	{0x97, 0x04, 0x4E, 0x2F, 0x41, 0x00, 0x4C},
	{0x8F, 0x05, 0x00, 0x04, 0x71},
	{0x97, 0x80, 0x01, 0x01, 0x05, 0x00, 0xED},
	{0x9E, 0x00, 0x52, 0x47, 0x42, 0x20, 0x49, 0x00, 0x00, 0x00, 0x5F},
	{0x9E, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0xC0, 0x7F, 0x44, 0x9B},
	{0x9E, 0x02, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xC8, 0x42, 0xE9},
	{0x9E, 0x03, 0x00, 0x00, 0x00, 0x00, 0x00, 0xC0, 0x7F, 0x44, 0x99},
	{0x96, 0x04, 0x52, 0x41, 0x57, 0x00, 0x29},
	{0x8E, 0x05, 0x10, 0x00, 0x64},
	{0x96, 0x80, 0x03, 0x01, 0x05, 0x00, 0xEE},
	{0x9D, 0x00, 0x43, 0x4F, 0x4C, 0x20, 0x4F, 0x00, 0x00, 0x00, 0x4D},
	{0x9D, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x20, 0x41, 0x02},
	{0x9D, 0x02, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xC8, 0x42, 0xEA},
	{0x9D, 0x03, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x20, 0x41, 0x00},
	{0x95, 0x04, 0x49, 0x44, 0x58, 0x00, 0x3B},
	{0x8D, 0x05, 0x00, 0x04, 0x73},
	{0x95, 0x80, 0x01, 0x00, 0x03, 0x00, 0xE8},
	{0x94, 0x00, 0x41, 0x4D, 0x42, 0x49, 0x6C},
	{0x9C, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xC8, 0x42, 0xE8},
	{0x9C, 0x02, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xC8, 0x42, 0xEB},
	{0x9C, 0x03, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xC8, 0x42, 0xEA},
	{0x94, 0x04, 0x50, 0x43, 0x54, 0x00, 0x28},
	{0x8C, 0x05, 0x10, 0x00, 0x66},
	{0x94, 0x80, 0x01, 0x00, 0x03, 0x00, 0xE9},
	{0x9B, 0x00, 0x52, 0x45, 0x46, 0x4C, 0x54, 0x00, 0x00, 0x00, 0x2D},
	{0x9B, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xC8, 0x42, 0xEF},
	{0x9B, 0x02, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xC8, 0x42, 0xEC},
	{0x9B, 0x03, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xC8, 0x42, 0xED},
	{0x93, 0x04, 0x50, 0x43, 0x54, 0x00, 0x2F},
	{0x8B, 0x05, 0x10, 0x00, 0x61},
	{0x93, 0x80, 0x01, 0x00, 0x03, 0x00, 0xEE},
	{0x9A, 0x00, 0x43, 0x4F, 0x55, 0x4E, 0x54, 0x00, 0x00, 0x00, 0x26},
	{0x9A, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xC8, 0x42, 0xEE},
	{0x9A, 0x02, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xC8, 0x42, 0xED},
	{0x9A, 0x03, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xC8, 0x42, 0xEC},
	{0x92, 0x04, 0x43, 0x4E, 0x54, 0x00, 0x30},
	{0x8A, 0x05, 0x08, 0x00, 0x78},
	{0x92, 0x80, 0x01, 0x02, 0x04, 0x00, 0xEA},
	{0x91, 0x00, 0x50, 0x52, 0x4F, 0x58, 0x7B},
	{0x99, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x20, 0x41, 0x06},
	{0x99, 0x02, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xC8, 0x42, 0xEE},
	{0x99, 0x03, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x20, 0x41, 0x04},
	{0x91, 0x04, 0x44, 0x49, 0x53, 0x00, 0x34},
	{0x89, 0x05, 0x50, 0x00, 0x23},
	{0x91, 0x80, 0x01, 0x00, 0x03, 0x00, 0xEC},
	{0x98, 0x00, 0x43, 0x4F, 0x4C, 0x4F, 0x52, 0x00, 0x00, 0x00, 0x3A},
	{0x98, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x20, 0x41, 0x07},
	{0x98, 0x02, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xC8, 0x42, 0xEF},
	{0x98, 0x03, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x20, 0x41, 0x05},
	{0x90, 0x04, 0x49, 0x44, 0x58, 0x00, 0x3E},
	{0x88, 0x05, 0xC4, 0x00, 0xB6},
	{0x90, 0x80, 0x01, 0x00, 0x03, 0x00, 0xED},
	{0x88, 0x06, 0x4F, 0x00, 0x3E},
}

// TestPort_GetTypeIDNoDeviceBeforeSync checks that a TYPE frame parsed
// mid-handshake does not make GetTypeID answer early: it must keep
// reporting ErrNoDevice until the descriptor is frozen, the same
// readiness gate Info and Sample use, not merely "has a TYPE frame
// been seen."
func TestPort_GetTypeIDNoDeviceBeforeSync(t *testing.T) {
	fake := uart.NewFake(115200)
	p := lump.NewPort(fake, fastTiming(), nil)
	defer p.Close()

	waitForCondition(t, func() bool { return fake.Baud() == 2400 })

	fake.Push(boostColorDistanceSensorInfo[0]) // TYPE frame only

	waitForCondition(t, func() bool {
		_, err := p.GetTypeID()
		return err != nil
	})
	_, err := p.GetTypeID()
	require.ErrorIs(t, err, lump.ErrNoDevice)

	for _, msg := range boostColorDistanceSensorInfo[1:] {
		fake.Push(msg)
	}
	fake.Push([]byte{0x04}) // peer ACK finalizes sync

	var typeID lump.TypeID
	waitForCondition(t, func() bool {
		var err error
		typeID, err = p.GetTypeID()
		return err == nil
	})
	require.Equal(t, lump.TypeIDColorDistanceSensor, typeID)
}

func waitForCondition(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func fastTiming() lump.Timing {
	timing := lump.DefaultTiming()
	timing.ProbeWindow = 40 * time.Millisecond
	timing.ByteTimeout = 200 * time.Millisecond
	timing.KeepAlivePeriod = 15 * time.Millisecond
	timing.WatchdogPeriod = 120 * time.Millisecond
	return timing
}

// TestPort_BoostColorDistanceSensorSync replays a full captured sync
// for a device that refuses to sync at the high probe baud, requiring
// the probe to fall back to 2400 before it answers, then switches
// mode twice including once across the EXT_MODE boundary.
func TestPort_BoostColorDistanceSensorSync(t *testing.T) {
	fake := uart.NewFake(115200)
	p := lump.NewPort(fake, fastTiming(), nil)
	defer p.Close()

	waitForCondition(t, func() bool { return fake.Baud() == 2400 })

	for _, msg := range boostColorDistanceSensorInfo {
		fake.Push(msg)
	}
	fake.Push([]byte{0x04}) // peer ACK finalizes sync

	waitForCondition(t, func() bool { return fake.Baud() == 115200 })

	waitForCondition(t, func() bool {
		for _, w := range fake.Writes() {
			if len(w) == 3 && w[0] == 0x43 && w[1] == 0x06 {
				return true
			}
		}
		return false
	})

	for i := 0; i < 3; i++ {
		fake.Push([]byte{0x46, 0x00, 0xB9})                                                 // EXT_MODE(0)
		fake.Push([]byte{0xC0 | 0x18 | 0x06, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x21}) // mode 6 DATA
	}

	var info lump.Info
	waitForCondition(t, func() bool {
		var err error
		info, err = p.Info()
		return err == nil
	})
	require.Equal(t, 11, info.NumModes)
	require.Equal(t, uint8(6), info.CurrentMode)

	typeID, err := p.GetTypeID()
	require.NoError(t, err)
	require.Equal(t, lump.TypeIDColorDistanceSensor, typeID)

	require.NoError(t, p.AssertTypeID(lump.TypeIDAny))
	require.ErrorIs(t, p.AssertTypeID(lump.TypeIDTechnicLargeMotor), lump.ErrWrongType)

	mode0, ok := info.Descriptor.Mode(0)
	require.True(t, ok)
	require.Equal(t, 1, mode0.NumValues)
	require.Equal(t, lump.DataType8, mode0.DataType)

	mode6, ok := info.Descriptor.Mode(6)
	require.True(t, ok)
	require.Equal(t, 3, mode6.NumValues)
	require.Equal(t, lump.DataType16, mode6.DataType)

	var sample lump.Sample
	waitForCondition(t, func() bool {
		var err error
		sample, err = p.Sample(-1)
		return err == nil
	})
	require.Equal(t, uint8(6), sample.Mode)

	// Switch to mode 1: within the 3-bit range, a bare SELECT.
	err = p.SetMode(1)
	require.ErrorIs(t, err, lump.ErrPending)
	waitForCondition(t, func() bool {
		for _, w := range fake.Writes() {
			if len(w) == 3 && w[0] == 0x43 && w[1] == 0x01 {
				return true
			}
		}
		return false
	})

	_, err = p.Sample(1)
	require.ErrorIs(t, err, lump.ErrPending)

	fake.Push([]byte{0xC1, 0x00, 0x3E}) // mode 1 DATA (no EXT_MODE needed, offset defaults to 0)

	waitForCondition(t, func() bool {
		sample, err = p.Sample(-1)
		return err == nil && sample.Mode == 1
	})

	// Switch to mode 8: requires the device to fold EXT_MODE(0x08)
	// into the following DATA frame's 3-bit field.
	err = p.SetMode(8)
	require.ErrorIs(t, err, lump.ErrPending)
	waitForCondition(t, func() bool {
		for _, w := range fake.Writes() {
			if len(w) == 3 && w[0] == 0x43 && w[1] == 0x08 {
				return true
			}
		}
		return false
	})

	fake.Push([]byte{0x46, 0x08, 0xB1})                   // EXT_MODE(8)
	fake.Push([]byte{0xD0, 0x00, 0x00, 0x00, 0x00, 0x2F}) // mode 8 DATA (low3=0, extended by 8)

	waitForCondition(t, func() bool {
		sample, err = p.Sample(-1)
		return err == nil && sample.Mode == 8
	})
	info, err = p.Info()
	require.NoError(t, err)
	require.Equal(t, uint8(8), info.CurrentMode)
}

// TestPort_WatchdogTripResyncs checks the watchdog escalation path:
// once synced, the absence of DATA for WatchdogPeriod drops the
// device back to no-device and restarts baud probing at HighBaud.
func TestPort_WatchdogTripResyncs(t *testing.T) {
	fake := uart.NewFake(115200)
	timing := fastTiming()
	p := lump.NewPort(fake, timing, nil)
	defer p.Close()

	// A minimal single-mode sync, built with the package's own Encode
	// rather than hand-rolled bytes, staying at the high probe baud
	// throughout (the Technic Large Motor never toggles baud).
	fake.Push(encodeFrame(t, lump.Frame{Kind: lump.KindCMD, SubKind: uint8(lump.CmdType), Payload: []byte{byte(lump.TypeIDTechnicLargeMotor)}}))
	fake.Push(encodeFrame(t, lump.Frame{Kind: lump.KindCMD, SubKind: uint8(lump.CmdModes), Payload: []byte{0x00, 0x00}}))
	fake.Push(encodeFrame(t, lump.Frame{Kind: lump.KindINFO, Mode: 0, SubKind: uint8(lump.InfoName), Payload: []byte("POS\x00\x00\x00\x00\x00")}))
	fake.Push(encodeFrame(t, lump.Frame{Kind: lump.KindINFO, Mode: 0, SubKind: uint8(lump.InfoFormat), Payload: []byte{1, byte(lump.DataType8), 2, 0}}))
	fake.Push(lump.EncodeAck())

	waitForCondition(t, func() bool {
		_, err := p.Info()
		return err == nil
	})
	require.NoError(t, p.AssertTypeID(lump.TypeIDTechnicLargeMotor))

	time.Sleep(timing.WatchdogPeriod + 60*time.Millisecond)

	waitForCondition(t, func() bool {
		_, err := p.Info()
		return errors.Is(err, lump.ErrNoDevice)
	})
	waitForCondition(t, func() bool { return fake.Baud() == 115200 })
}

// encodeFrame is a test-local wrapper around the package's exported
// Encode, used to build simulated inbound frames without hand-rolling
// header bits or checksums.
func encodeFrame(t *testing.T, f lump.Frame) []byte {
	t.Helper()
	out, _, err := lump.Encode(f, nil)
	require.NoError(t, err)
	return out
}
