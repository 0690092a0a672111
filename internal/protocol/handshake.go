// internal/protocol/handshake.go
package protocol

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultMaxAttempts bounds the RESET/ENQ exchanges of one reset
const DefaultMaxAttempts = 256

// TransportState represents the lifecycle state of a handshake transport
type TransportState string

const (
	StateClosed  TransportState = "CLOSED"
	StateIdle    TransportState = "IDLE"
	StateSending TransportState = "SENDING"
)

// SerialErrorKind classifies a failed send
type SerialErrorKind string

const (
	DeviceBusy      SerialErrorKind = "DEVICE_BUSY"
	NotAcknowledged SerialErrorKind = "NOT_ACKNOWLEDGED"
)

var (
	ErrDeviceBusy      = errors.New("device busy or not connected")
	ErrNotAcknowledged = errors.New("frame not acknowledged")
	ErrTransportClosed = errors.New("transport is closed")
)

// SerialError reports a frame the device did not accept
type SerialError struct {
	Kind     SerialErrorKind
	Code     byte
	TimedOut bool
}

func (e *SerialError) Error() string {
	switch {
	case e.Kind == DeviceBusy:
		return "send frame: device busy or not connected"
	case e.TimedOut:
		return "send frame: frame not acknowledged (timeout)"
	default:
		return fmt.Sprintf("send frame: frame not acknowledged (code %d)", e.Code)
	}
}

func (e *SerialError) Unwrap() error {
	if e.Kind == DeviceBusy {
		return ErrDeviceBusy
	}
	return ErrNotAcknowledged
}

// HandshakeTransport sends frames over a channel using the RESET/ENQ/ACK
// handshake. Every send is preceded by a fresh reset.
type HandshakeTransport struct {
	channel     Channel
	maxAttempts int
	logger      *zap.Logger
	mutex       sync.Mutex
	state       TransportState
	stats       TransportStats
}

// NewHandshakeTransport creates a closed transport over the channel
func NewHandshakeTransport(channel Channel, maxAttempts int, logger *zap.Logger) *HandshakeTransport {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &HandshakeTransport{
		channel:     channel,
		maxAttempts: maxAttempts,
		logger:      logger.With(zap.String("component", "handshake")),
		state:       StateClosed,
	}
}

// Open resets the device once. The transport stays closed when the device
// never acknowledges.
func (t *HandshakeTransport) Open() error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.state != StateClosed {
		return nil
	}

	ok, err := t.reset()
	if err != nil {
		return fmt.Errorf("failed to reset device: %w", err)
	}
	if !ok {
		t.logger.Error("Device did not acknowledge reset", zap.Int("attempts", t.maxAttempts))
		return &SerialError{Kind: DeviceBusy}
	}

	t.state = StateIdle
	t.logger.Info("Handshake transport opened")
	return nil
}

// Close marks the transport closed and releases the channel when it is closable
func (t *HandshakeTransport) Close() error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.state == StateClosed {
		return nil
	}
	t.state = StateClosed

	if c, ok := t.channel.(io.Closer); ok {
		if err := c.Close(); err != nil {
			return fmt.Errorf("failed to close channel: %w", err)
		}
	}

	t.logger.Info("Handshake transport closed")
	return nil
}

// Reset runs the bounded RESET/ENQ exchange and reports whether the device
// acknowledged
func (t *HandshakeTransport) Reset() (bool, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.state == StateClosed {
		return false, ErrTransportClosed
	}
	return t.reset()
}

func (t *HandshakeTransport) reset() (bool, error) {
	t.stats.Resets++
	for attempt := 1; attempt <= t.maxAttempts; attempt++ {
		t.stats.ResetAttempts++

		if err := t.write([]byte{MarkerReset}); err != nil {
			return false, err
		}
		if err := t.write([]byte{MarkerENQ}); err != nil {
			return false, err
		}

		b, ok, err := t.channel.ReadByte()
		if err != nil {
			return false, fmt.Errorf("failed to read enquiry response: %w", err)
		}
		if ok && b == MarkerACK {
			t.logger.Debug("Device acknowledged enquiry", zap.Int("attempt", attempt))
			return true, nil
		}
	}
	return false, nil
}

// Send resets the device, writes the frame and waits for a single ACK byte
func (t *HandshakeTransport) Send(frame []byte) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.state == StateClosed {
		return ErrTransportClosed
	}

	t.state = StateSending
	defer func() { t.state = StateIdle }()

	if err := t.send(frame); err != nil {
		t.stats.FramesFailed++
		return err
	}
	t.stats.FramesSent++
	return nil
}

func (t *HandshakeTransport) send(frame []byte) error {
	ok, err := t.reset()
	if err != nil {
		return fmt.Errorf("failed to reset device: %w", err)
	}
	if !ok {
		return &SerialError{Kind: DeviceBusy}
	}

	if err := t.write(frame); err != nil {
		return err
	}

	b, ok, err := t.channel.ReadByte()
	if err != nil {
		return fmt.Errorf("failed to read frame acknowledge: %w", err)
	}
	if !ok {
		return &SerialError{Kind: NotAcknowledged, TimedOut: true}
	}
	if b != MarkerACK {
		return &SerialError{Kind: NotAcknowledged, Code: b}
	}
	return nil
}

func (t *HandshakeTransport) write(data []byte) error {
	if err := t.channel.Write(data); err != nil {
		return fmt.Errorf("failed to write to channel: %w", err)
	}
	t.stats.BytesWritten += int64(len(data))
	t.stats.LastActivity = time.Now()
	return nil
}

// State returns the current lifecycle state
func (t *HandshakeTransport) State() TransportState {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.state
}

// Stats returns a snapshot of the transport counters
func (t *HandshakeTransport) Stats() TransportStats {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.stats
}
