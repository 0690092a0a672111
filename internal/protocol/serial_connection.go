// internal/protocol/serial_connection.go
package protocol

import (
	"fmt"
	"sync"

	"go.bug.st/serial"
	"go.uber.org/zap"
)

// SerialConnection implements Channel on a serial port
type SerialConnection struct {
	config SerialConfig
	port   serial.Port
	logger *zap.Logger
	mutex  sync.Mutex
	isOpen bool
}

// NewSerialConnection validates the configuration and creates a closed connection
func NewSerialConnection(config SerialConfig, logger *zap.Logger) (*SerialConnection, error) {
	cfg, err := config.Normalize()
	if err != nil {
		return nil, fmt.Errorf("invalid serial configuration: %w", err)
	}

	return &SerialConnection{
		config: cfg,
		logger: logger.With(
			zap.String("protocol", "serial"),
			zap.String("port", cfg.Port),
		),
	}, nil
}

// Open opens the serial port with the configured line settings
func (sc *SerialConnection) Open() error {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()

	if sc.isOpen {
		return nil
	}

	sc.logger.Info("Opening serial port",
		zap.Int("baud_rate", sc.config.BaudRate),
		zap.Int("data_bits", sc.config.DataBits),
		zap.String("parity", sc.config.Parity),
		zap.Int("stop_bits", sc.config.StopBits),
	)

	mode, err := sc.config.SerialMode()
	if err != nil {
		return err
	}

	port, err := serial.Open(sc.config.Port, mode)
	if err != nil {
		sc.logger.Error("Failed to open serial port", zap.Error(err))
		return fmt.Errorf("failed to open serial port %s: %w", sc.config.Port, err)
	}

	if err := port.SetReadTimeout(sc.config.Timeout); err != nil {
		port.Close()
		return fmt.Errorf("failed to set read timeout: %w", err)
	}

	sc.port = port
	sc.isOpen = true

	sc.logger.Info("Serial port opened successfully")
	return nil
}

// Close closes the serial port
func (sc *SerialConnection) Close() error {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()

	if !sc.isOpen || sc.port == nil {
		return nil
	}

	if err := sc.port.Close(); err != nil {
		sc.logger.Error("Failed to close serial port", zap.Error(err))
		return fmt.Errorf("failed to close serial port: %w", err)
	}

	sc.port = nil
	sc.isOpen = false

	sc.logger.Info("Serial port closed successfully")
	return nil
}

// IsOpen returns whether the port is open
func (sc *SerialConnection) IsOpen() bool {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()
	return sc.isOpen && sc.port != nil
}

// Write writes all bytes to the serial port
func (sc *SerialConnection) Write(data []byte) error {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()

	if !sc.isOpen || sc.port == nil {
		return fmt.Errorf("serial port not open")
	}

	for written := 0; written < len(data); {
		n, err := sc.port.Write(data[written:])
		if err != nil {
			sc.logger.Error("Serial write failed", zap.Error(err))
			return fmt.Errorf("failed to write to serial port: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("incomplete write: wrote %d of %d bytes", written, len(data))
		}
		written += n
	}

	sc.logger.Debug("Serial write completed", zap.Int("bytes", len(data)))
	return nil
}

// ReadByte reads one byte, reporting ok=false when the read timeout elapsed
func (sc *SerialConnection) ReadByte() (byte, bool, error) {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()

	if !sc.isOpen || sc.port == nil {
		return 0, false, fmt.Errorf("serial port not open")
	}

	buf := make([]byte, 1)
	n, err := sc.port.Read(buf)
	if err != nil {
		return 0, false, fmt.Errorf("failed to read from serial port: %w", err)
	}
	if n == 0 {
		return 0, false, nil
	}
	return buf[0], true, nil
}
