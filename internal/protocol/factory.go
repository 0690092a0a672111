// internal/protocol/factory.go
package protocol

import (
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"gnss-configurator/internal/config"
)

// validBaudRates lists the line speeds the receiver ports accept
var validBaudRates = []int{1200, 2400, 4800, 9600, 19200, 38400, 57600, 115200}

// NewSerialConfig converts the configured serial line
func NewSerialConfig(cfg *config.SerialConfig) SerialConfig {
	return SerialConfig{
		Port:     cfg.Port,
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		StopBits: cfg.StopBits,
		Parity:   cfg.Parity,
		Timeout:  cfg.Timeout,
	}
}

// ValidateSerialConfig checks a serial line before it is opened
func ValidateSerialConfig(cfg SerialConfig) error {
	normalized, err := cfg.Normalize()
	if err != nil {
		return err
	}

	if !slices.Contains(validBaudRates, normalized.BaudRate) {
		return fmt.Errorf("invalid baud rate: %d", normalized.BaudRate)
	}

	return nil
}

// OpenChannel creates and opens the channel to the receiver. A port of the
// form tcp://host:port goes through a serial device server, anything else
// names a local serial port.
func OpenChannel(cfg SerialConfig, logger *zap.Logger) (Channel, error) {
	if address, ok := strings.CutPrefix(cfg.Port, TCPScheme); ok {
		return openTCPChannel(address, cfg, logger)
	}

	conn, err := OpenSerialChannel(cfg, logger)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// OpenSerialChannel creates and opens a serial port channel
func OpenSerialChannel(cfg SerialConfig, logger *zap.Logger) (*SerialConnection, error) {
	if err := ValidateSerialConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid serial configuration: %w", err)
	}

	conn, err := NewSerialConnection(cfg, logger)
	if err != nil {
		return nil, err
	}

	logger.Info("Opening serial channel",
		zap.String("port", cfg.Port),
		zap.Int("baud_rate", cfg.BaudRate),
	)

	if err := conn.Open(); err != nil {
		return nil, err
	}
	return conn, nil
}

func openTCPChannel(address string, cfg SerialConfig, logger *zap.Logger) (*TCPConnection, error) {
	if address == "" {
		return nil, fmt.Errorf("invalid serial configuration: empty address in %q", cfg.Port)
	}

	conn := NewTCPConnection(address, cfg.Timeout, logger)
	if err := conn.Open(); err != nil {
		return nil, err
	}
	return conn, nil
}
