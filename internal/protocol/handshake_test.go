package protocol

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testFrame = []byte{0x02, 0x00, 0x10, 0x01, 0x07, 0x18, 0x03}

func openTransport(t *testing.T, ch *MockChannel, maxAttempts int) *HandshakeTransport {
	t.Helper()
	ch.QueueBytes(MarkerACK)
	tr := NewHandshakeTransport(ch, maxAttempts, zap.NewNop())
	require.NoError(t, tr.Open())
	require.Equal(t, StateIdle, tr.State())
	return tr
}

func TestResetAcknowledgedFirstAttempt(t *testing.T) {
	ch := NewMockChannel()
	ch.QueueBytes(MarkerACK)
	tr := NewHandshakeTransport(ch, 0, zap.NewNop())

	require.NoError(t, tr.Open())
	assert.Equal(t, [][]byte{{MarkerReset}, {MarkerENQ}}, ch.Writes())
	assert.Equal(t, 1, ch.Reads())
}

func TestResetRetriesUntilAck(t *testing.T) {
	ch := NewMockChannel()
	tr := openTransport(t, ch, DefaultMaxAttempts)

	ch.QueueBytes(0x15)
	ch.QueueTimeouts(1)
	ch.QueueBytes(MarkerACK)

	ok, err := tr.Reset()
	require.NoError(t, err)
	require.True(t, ok)

	// two markers per attempt, after the two written by Open
	assert.Len(t, ch.Writes(), 2+3*2)
	assert.Equal(t, int64(4), tr.Stats().ResetAttempts)
}

func TestResetExhaustsAttempts(t *testing.T) {
	ch := NewMockChannel()
	tr := openTransport(t, ch, DefaultMaxAttempts)

	ok, err := tr.Reset()
	require.NoError(t, err)
	require.False(t, ok)
	assert.Equal(t, 1+DefaultMaxAttempts, ch.Reads())
}

func TestSendDeviceBusyNeverWritesFrame(t *testing.T) {
	ch := NewMockChannel()
	tr := openTransport(t, ch, DefaultMaxAttempts)

	err := tr.Send(testFrame)
	require.Error(t, err)

	var serr *SerialError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, DeviceBusy, serr.Kind)
	assert.ErrorIs(t, err, ErrDeviceBusy)

	assert.Empty(t, ch.Frames(), "frame must not be written")
	assert.Len(t, ch.Writes(), 2+2*DefaultMaxAttempts)
	assert.Equal(t, int64(1), tr.Stats().FramesFailed)
	assert.Equal(t, StateIdle, tr.State())
}

func TestSendTimeout(t *testing.T) {
	ch := NewMockChannel()
	tr := openTransport(t, ch, DefaultMaxAttempts)
	ch.QueueBytes(MarkerACK)

	err := tr.Send(testFrame)

	var serr *SerialError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, NotAcknowledged, serr.Kind)
	assert.True(t, serr.TimedOut)
	assert.ErrorIs(t, err, ErrNotAcknowledged)
	assert.Contains(t, err.Error(), "timeout")
	assert.Equal(t, [][]byte{testFrame}, ch.Frames())
}

func TestSendNegativeAcknowledge(t *testing.T) {
	ch := NewMockChannel()
	tr := openTransport(t, ch, DefaultMaxAttempts)
	ch.QueueBytes(MarkerACK, 0x15)

	err := tr.Send(testFrame)

	var serr *SerialError
	require.ErrorAs(t, err, &serr)
	assert.False(t, serr.TimedOut)
	assert.Equal(t, byte(0x15), serr.Code)
	assert.Contains(t, err.Error(), "code 21")
}

func TestSendAcknowledged(t *testing.T) {
	ch := NewAckChannel()
	tr := NewHandshakeTransport(ch, DefaultMaxAttempts, zap.NewNop())
	require.NoError(t, tr.Open())

	require.NoError(t, tr.Send(testFrame))
	require.NoError(t, tr.Send(testFrame))

	stats := tr.Stats()
	assert.Equal(t, int64(2), stats.FramesSent)
	assert.Equal(t, int64(0), stats.FramesFailed)
	assert.Equal(t, int64(3), stats.Resets)
	assert.Len(t, ch.Frames(), 2)
}

func TestOpenFailsWithoutAck(t *testing.T) {
	ch := NewMockChannel()
	tr := NewHandshakeTransport(ch, 4, zap.NewNop())

	err := tr.Open()
	require.ErrorIs(t, err, ErrDeviceBusy)
	assert.Equal(t, StateClosed, tr.State())
	assert.Len(t, ch.Writes(), 8)
}

func TestClosedTransportRejectsIO(t *testing.T) {
	ch := NewAckChannel()
	tr := NewHandshakeTransport(ch, 1, zap.NewNop())

	require.ErrorIs(t, tr.Send(testFrame), ErrTransportClosed)
	_, err := tr.Reset()
	require.ErrorIs(t, err, ErrTransportClosed)

	require.NoError(t, tr.Open())
	require.NoError(t, tr.Close())
	assert.True(t, ch.Closed())
	require.ErrorIs(t, tr.Send(testFrame), ErrTransportClosed)
}

func TestChannelErrorsPropagate(t *testing.T) {
	ch := NewAckChannel()
	tr := NewHandshakeTransport(ch, 1, zap.NewNop())
	require.NoError(t, tr.Open())

	boom := errors.New("line dropped")
	ch.WriteError = boom
	err := tr.Send(testFrame)
	require.ErrorIs(t, err, boom)

	var serr *SerialError
	assert.False(t, errors.As(err, &serr))
}
