package discovery

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"
)

func fakePorts() ([]*enumerator.PortDetails, error) {
	return []*enumerator.PortDetails{
		{Name: "/dev/ttyUSB0", IsUSB: true, VID: "0403", PID: "6001", SerialNumber: "BX992-17", Product: "Trimble BX992"},
		{Name: "/dev/ttyS0"},
		{Name: "/dev/ttyUL1"},
	}, nil
}

func TestScanSortsAndMapsPorts(t *testing.T) {
	s := NewScannerWithLister(fakePorts, zap.NewNop())

	ports, err := s.Scan(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, ports, 3)

	assert.Equal(t, "/dev/ttyS0", ports[0].Name)
	assert.Equal(t, "/dev/ttyUL1", ports[1].Name)
	assert.False(t, ports[1].IsUSB)
	assert.Empty(t, ports[1].VendorID)

	usb := ports[2]
	assert.True(t, usb.IsUSB)
	assert.Equal(t, "0403", usb.VendorID)
	assert.Equal(t, "BX992-17", usb.SerialNumber)
}

func TestScanPrefixFilter(t *testing.T) {
	s := NewScannerWithLister(fakePorts, zap.NewNop())

	ports, err := s.Scan(context.Background(), "/dev/ttyU")
	require.NoError(t, err)
	require.Len(t, ports, 2)
	assert.Equal(t, "/dev/ttyUL1", ports[0].Name)
	assert.Equal(t, "/dev/ttyUSB0", ports[1].Name)
}

func TestScanErrors(t *testing.T) {
	failing := func() ([]*enumerator.PortDetails, error) {
		return nil, errors.New("permission denied")
	}
	s := NewScannerWithLister(failing, zap.NewNop())

	_, err := s.Scan(context.Background(), "")
	require.ErrorContains(t, err, "permission denied")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewScannerWithLister(fakePorts, zap.NewNop()).Scan(ctx, "")
	require.ErrorIs(t, err, context.Canceled)
}
