// internal/protocol/protocol.go
package protocol

import "time"

// Handshake markers exchanged with the receiver
const (
	MarkerReset byte = 0x00
	MarkerENQ   byte = 0x05
	MarkerACK   byte = 0x06
)

// Channel is the byte interface the handshake transport drives
type Channel interface {
	// Write sends all bytes or returns an error
	Write(data []byte) error

	// ReadByte reads one byte. ok is false when the read timeout elapsed
	// without data.
	ReadByte() (b byte, ok bool, err error)
}

// TransportStats provides transport-level statistics
type TransportStats struct {
	FramesSent    int64     `json:"frames_sent"`
	FramesFailed  int64     `json:"frames_failed"`
	Resets        int64     `json:"resets"`
	ResetAttempts int64     `json:"reset_attempts"`
	BytesWritten  int64     `json:"bytes_written"`
	LastActivity  time.Time `json:"last_activity"`
}
