// internal/protocol/tcp_connection.go
package protocol

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TCPScheme prefixes ports reached through a serial device server
const TCPScheme = "tcp://"

// TCPConnection implements Channel on a TCP stream to a serial device server.
// The line settings are those of the device server port.
type TCPConnection struct {
	address string
	timeout time.Duration
	conn    net.Conn
	logger  *zap.Logger
	mutex   sync.Mutex
	isOpen  bool
}

// NewTCPConnection creates a closed connection to host:port
func NewTCPConnection(address string, timeout time.Duration, logger *zap.Logger) *TCPConnection {
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}

	return &TCPConnection{
		address: address,
		timeout: timeout,
		logger: logger.With(
			zap.String("protocol", "tcp"),
			zap.String("address", address),
		),
	}
}

// Open dials the device server
func (tc *TCPConnection) Open() error {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()

	if tc.isOpen {
		return nil
	}

	tc.logger.Info("Opening TCP connection")

	dialer := &net.Dialer{
		Timeout:   tc.timeout,
		KeepAlive: 30 * time.Second,
	}

	conn, err := dialer.Dial("tcp", tc.address)
	if err != nil {
		tc.logger.Error("Failed to open TCP connection", zap.Error(err))
		return fmt.Errorf("failed to connect to %s: %w", tc.address, err)
	}

	tc.conn = conn
	tc.isOpen = true

	tc.logger.Info("TCP connection opened successfully")
	return nil
}

// Close closes the TCP connection
func (tc *TCPConnection) Close() error {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()

	if !tc.isOpen || tc.conn == nil {
		return nil
	}

	if err := tc.conn.Close(); err != nil {
		tc.logger.Error("Failed to close TCP connection", zap.Error(err))
		return fmt.Errorf("failed to close TCP connection: %w", err)
	}

	tc.conn = nil
	tc.isOpen = false

	tc.logger.Info("TCP connection closed successfully")
	return nil
}

// IsOpen returns whether the connection is open
func (tc *TCPConnection) IsOpen() bool {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()
	return tc.isOpen && tc.conn != nil
}

// Write writes all bytes to the TCP connection
func (tc *TCPConnection) Write(data []byte) error {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()

	if !tc.isOpen || tc.conn == nil {
		return fmt.Errorf("TCP connection not open")
	}

	if err := tc.conn.SetWriteDeadline(time.Now().Add(tc.timeout)); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}

	n, err := tc.conn.Write(data)
	if err != nil {
		tc.logger.Error("TCP write failed", zap.Error(err))
		return fmt.Errorf("failed to write to TCP connection: %w", err)
	}
	if n != len(data) {
		return fmt.Errorf("incomplete write: wrote %d of %d bytes", n, len(data))
	}

	tc.logger.Debug("TCP write completed", zap.Int("bytes", len(data)))
	return nil
}

// ReadByte reads one byte, reporting ok=false when the read timeout elapsed
func (tc *TCPConnection) ReadByte() (byte, bool, error) {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()

	if !tc.isOpen || tc.conn == nil {
		return 0, false, fmt.Errorf("TCP connection not open")
	}

	if err := tc.conn.SetReadDeadline(time.Now().Add(tc.timeout)); err != nil {
		return 0, false, fmt.Errorf("failed to set read deadline: %w", err)
	}

	buf := make([]byte, 1)
	n, err := tc.conn.Read(buf)
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to read from TCP connection: %w", err)
	}
	if n == 0 {
		return 0, false, nil
	}
	return buf[0], true, nil
}
