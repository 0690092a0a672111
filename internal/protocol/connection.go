// internal/protocol/connection.go
package protocol

import (
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial"
)

// DefaultReadTimeout bounds every single-byte read of the handshake
const DefaultReadTimeout = time.Second

// SerialConfig represents serial connection configuration
type SerialConfig struct {
	Port     string        `json:"port" mapstructure:"port"`
	BaudRate int           `json:"baud_rate" mapstructure:"baud_rate"`
	DataBits int           `json:"data_bits" mapstructure:"data_bits"`
	StopBits int           `json:"stop_bits" mapstructure:"stop_bits"`
	Parity   string        `json:"parity" mapstructure:"parity"`
	Timeout  time.Duration `json:"timeout" mapstructure:"timeout"`
}

// Normalize validates the configuration and applies defaults for unset values
func (c SerialConfig) Normalize() (SerialConfig, error) {
	out := c

	if strings.TrimSpace(out.Port) == "" {
		return out, fmt.Errorf("serial port is required")
	}
	if out.BaudRate <= 0 {
		out.BaudRate = 115200
	}

	if out.DataBits == 0 {
		out.DataBits = 8
	}
	if out.DataBits != 7 && out.DataBits != 8 {
		return out, fmt.Errorf("invalid data bits %d: supported values are 7 or 8", out.DataBits)
	}

	if out.StopBits == 0 {
		out.StopBits = 1
	}
	if out.StopBits != 1 && out.StopBits != 2 {
		return out, fmt.Errorf("invalid stop bits %d: supported values are 1 or 2", out.StopBits)
	}

	parity := strings.ToLower(strings.TrimSpace(out.Parity))
	switch parity {
	case "", "n", "none":
		parity = "none"
	case "o", "odd":
		parity = "odd"
	case "e", "even":
		parity = "even"
	default:
		return out, fmt.Errorf("unsupported parity %q: expected none, odd or even", out.Parity)
	}
	out.Parity = parity

	if out.Timeout <= 0 {
		out.Timeout = DefaultReadTimeout
	}

	return out, nil
}

// SerialMode converts the configuration into the mode go.bug.st/serial opens with
func (c SerialConfig) SerialMode() (*serial.Mode, error) {
	cfg, err := c.Normalize()
	if err != nil {
		return nil, err
	}

	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
	}

	switch cfg.StopBits {
	case 2:
		mode.StopBits = serial.TwoStopBits
	default:
		mode.StopBits = serial.OneStopBit
	}

	// Set parity
	switch cfg.Parity {
	case "odd":
		mode.Parity = serial.OddParity
	case "even":
		mode.Parity = serial.EvenParity
	default:
		mode.Parity = serial.NoParity
	}

	return mode, nil
}
