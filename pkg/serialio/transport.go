package serialio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"go.bug.st/serial"

	"github.com/kabili207/meshcore-net-bridge/pkg/backoff"
	"github.com/kabili207/meshcore-net-bridge/pkg/frame"
)

const (
	DEFAULT_BAUD_RATE = 115200

	// Short read timeout so the polling loop observes shutdown promptly.
	readPollTimeout = 100 * time.Millisecond

	readBufferSize = 1024

	reconnectDelayMin = 1 * time.Second
	reconnectDelayMax = 60 * time.Second
)

// ErrPortLost reports that the device disappeared mid-session. The caller
// drives TryReconnect on its next tick; the error is never fatal.
var ErrPortLost = errors.New("serial port lost")

// Port is the subset of go.bug.st/serial.Port the transport relies on.
type Port interface {
	SetReadTimeout(t time.Duration) error
	Read(p []byte) (n int, err error)
	Write(p []byte) (n int, err error)
	Close() error
}

// OpenFunc opens the underlying device. Tests substitute an in-memory
// implementation.
type OpenFunc func(portName string, mode *serial.Mode) (Port, error)

func defaultOpen(portName string, mode *serial.Mode) (Port, error) {
	return serial.Open(portName, mode)
}

/*
Transport owns exactly one serial device connection at a time.

The polling loop is the only caller of Open, Close, TryReconnect and
ReadPackets. WritePacket may be called concurrently from the broker
callback path; the port handle is guarded so a write never races with
a reconnect replacing it.
*/
type Transport struct {
	portName string
	baudRate int

	// Opener acquires the device; defaults to go.bug.st/serial.Open.
	Opener OpenFunc

	decoder *frame.Decoder
	backoff *backoff.Backoff

	// writeMu serializes access to the write path and guards the port
	// handle against the concurrent writer.
	writeMu sync.Mutex
	port    Port

	readBuf []byte
}

func New(portName string, baudRate int) *Transport {
	if baudRate == 0 {
		baudRate = DEFAULT_BAUD_RATE
	}

	return &Transport{
		portName: portName,
		baudRate: baudRate,
		Opener:   defaultOpen,
		decoder:  frame.NewDecoder(),
		backoff:  backoff.New(reconnectDelayMin, reconnectDelayMax),
		readBuf:  make([]byte, readBufferSize),
	}
}

// Open acquires the serial device. Resets the reconnection backoff on
// success.
func (t *Transport) Open() error {
	mode := &serial.Mode{
		BaudRate: t.baudRate,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	}

	port, err := t.Opener(t.portName, mode)
	if err != nil {
		return fmt.Errorf("open serial port %s: %w", t.portName, err)
	}

	port.SetReadTimeout(readPollTimeout)

	t.writeMu.Lock()
	t.port = port
	t.writeMu.Unlock()

	t.backoff.Reset()

	log.With("port", t.portName, "baud", t.baudRate).Info("Opened serial port")
	return nil
}

// Close releases the device if held. Safe to call when already closed.
func (t *Transport) Close() error {
	t.writeMu.Lock()
	port := t.port
	t.port = nil
	t.writeMu.Unlock()

	if port == nil {
		return nil
	}

	err := port.Close()
	log.Info("Closed serial port")
	return err
}

func (t *Transport) Connected() bool {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.port != nil
}

/*
TryReconnect attempts to reestablish the serial connection: it closes any
existing connection, discards decoder state, waits for the current backoff
delay and then tries to open the device once. On failure the backoff delay
is doubled up to its ceiling and the caller is expected to call again on
its next tick.

The backoff wait is abandoned when ctx is cancelled.
*/
func (t *Transport) TryReconnect(ctx context.Context) bool {
	t.Close()
	t.decoder.Reset()

	delay := t.backoff.Delay()
	log.With("delay", delay.String()).Info("Attempting serial reconnection")

	select {
	case <-ctx.Done():
		return false
	case <-time.After(delay):
	}

	if err := t.Open(); err != nil {
		log.With("err", err).Warn("Serial reconnection failed")
		t.backoff.Fail()
		return false
	}

	return true
}

/*
ReadPackets polls the device for available bytes, blocking for at most the
read timeout, and returns any complete packets the framing decoder extracts
from them. No data before the timeout elapses is not an error and yields an
empty result.

A failed read means the device is gone: the transport marks itself
disconnected and returns ErrPortLost.
*/
func (t *Transport) ReadPackets() ([][]byte, error) {
	if !t.Connected() {
		return nil, nil
	}

	n, err := t.port.Read(t.readBuf)
	if err != nil {
		log.With("err", err).Error("Serial read error")
		t.Close()
		return nil, ErrPortLost
	}

	if n == 0 {
		// Read timeout, no data available
		return nil, nil
	}

	return t.decoder.Feed(t.readBuf[:n]), nil
}

/*
WritePacket frames a payload and writes it to the device. Safe to call from
a different goroutine than the polling loop.

Failures are logged, not returned: a lost device is detected independently
by the read path on its next poll, and the write path never attempts to
reconnect itself.
*/
func (t *Transport) WritePacket(payload []byte) {
	data, err := frame.Encode(payload)
	if err != nil {
		log.With("err", err).Error("Cannot encode packet")
		return
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if t.port == nil {
		log.Warn("Cannot write: serial port not open")
		return
	}

	if _, err := t.port.Write(data); err != nil {
		log.With("err", err).Error("Serial write error")
		return
	}

	log.With("bytes", len(payload)).Debug("Sent packet to serial")
}

// CorruptedFrames returns the number of frames discarded by the decoder
// due to checksum mismatch since the transport was created.
func (t *Transport) CorruptedFrames() uint64 {
	return t.decoder.Corrupted()
}
