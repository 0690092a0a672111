// internal/discovery/scanner.go
package discovery

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"
)

// Port describes a serial port a receiver may be attached to
type Port struct {
	Name         string `json:"name"`
	IsUSB        bool   `json:"is_usb"`
	VendorID     string `json:"vendor_id,omitempty"`
	ProductID    string `json:"product_id,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
	Product      string `json:"product,omitempty"`
}

// PortLister enumerates the ports of the host
type PortLister func() ([]*enumerator.PortDetails, error)

// Scanner lists the serial ports available for provisioning
type Scanner struct {
	list   PortLister
	logger *zap.Logger
}

// NewScanner creates a scanner over the host serial ports
func NewScanner(logger *zap.Logger) *Scanner {
	return NewScannerWithLister(enumerator.GetDetailedPortsList, logger)
}

// NewScannerWithLister creates a scanner over a custom port source
func NewScannerWithLister(list PortLister, logger *zap.Logger) *Scanner {
	return &Scanner{
		list:   list,
		logger: logger.With(zap.String("scanner", "serial")),
	}
}

// Scan returns the available ports sorted by name. A non-empty prefix keeps
// only the ports whose name starts with it.
func (s *Scanner) Scan(ctx context.Context, prefix string) ([]*Port, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	details, err := s.list()
	if err != nil {
		return nil, fmt.Errorf("failed to get serial ports: %w", err)
	}

	ports := make([]*Port, 0, len(details))
	for _, d := range details {
		if prefix != "" && !strings.HasPrefix(d.Name, prefix) {
			continue
		}
		p := &Port{Name: d.Name, IsUSB: d.IsUSB}
		if d.IsUSB {
			p.VendorID = strings.ToLower(d.VID)
			p.ProductID = strings.ToLower(d.PID)
			p.SerialNumber = d.SerialNumber
			p.Product = d.Product
		}
		ports = append(ports, p)
	}

	sort.Slice(ports, func(i, j int) bool {
		return ports[i].Name < ports[j].Name
	})

	s.logger.Debug("Serial scan completed", zap.Int("ports_found", len(ports)))
	return ports, nil
}
