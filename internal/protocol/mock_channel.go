// internal/protocol/mock_channel.go
package protocol

import (
	"sync"
)

type mockResponse struct {
	b  byte
	ok bool
}

// MockChannel is a scripted Channel for tests and dry runs. Reads consume
// queued responses first, then fall back to the configured default.
type MockChannel struct {
	mu sync.Mutex

	responses []mockResponse
	fallback  *byte

	// WriteError is returned by every Write call if set
	WriteError error

	// ReadError is returned by every ReadByte call if set
	ReadError error

	writes [][]byte
	reads  int
	closed bool
}

// NewMockChannel creates a channel whose reads time out until scripted
func NewMockChannel() *MockChannel {
	return &MockChannel{}
}

// NewAckChannel creates a channel that acknowledges every read
func NewAckChannel() *MockChannel {
	m := NewMockChannel()
	m.AlwaysRespond(MarkerACK)
	return m
}

// QueueBytes scripts the next reads to return the given bytes
func (m *MockChannel) QueueBytes(bs ...byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range bs {
		m.responses = append(m.responses, mockResponse{b: b, ok: true})
	}
}

// QueueTimeouts scripts the next n reads to time out
func (m *MockChannel) QueueTimeouts(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < n; i++ {
		m.responses = append(m.responses, mockResponse{})
	}
}

// AlwaysRespond answers b once the queue is drained
func (m *MockChannel) AlwaysRespond(b byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = &b
}

// Write records the written bytes
func (m *MockChannel) Write(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.WriteError != nil {
		return m.WriteError
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	m.writes = append(m.writes, buf)
	return nil
}

// ReadByte returns the next scripted response
func (m *MockChannel) ReadByte() (byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.reads++
	if m.ReadError != nil {
		return 0, false, m.ReadError
	}
	if len(m.responses) > 0 {
		r := m.responses[0]
		m.responses = m.responses[1:]
		return r.b, r.ok, nil
	}
	if m.fallback != nil {
		return *m.fallback, true, nil
	}
	return 0, false, nil
}

// Close marks the channel closed
func (m *MockChannel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called
func (m *MockChannel) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Writes returns every Write call in order
func (m *MockChannel) Writes() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.writes))
	copy(out, m.writes)
	return out
}

// Frames returns the writes that were not single handshake markers
func (m *MockChannel) Frames() [][]byte {
	var frames [][]byte
	for _, w := range m.Writes() {
		if len(w) > 1 {
			frames = append(frames, w)
		}
	}
	return frames
}

// Reads returns the number of ReadByte calls
func (m *MockChannel) Reads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}
