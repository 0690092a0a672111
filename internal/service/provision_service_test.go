package service

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"gnss-configurator/internal/config"
	"gnss-configurator/internal/database"
	"gnss-configurator/internal/model"
	"gnss-configurator/internal/protocol"
	"gnss-configurator/internal/repository"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []model.RunEvent
}

func (r *eventRecorder) Publish(event model.RunEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *eventRecorder) types() []model.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func channelFactory(ch *protocol.MockChannel) ChannelFactory {
	return func(protocol.SerialConfig) (protocol.Channel, error) {
		return ch, nil
	}
}

const twoRecordConfig = `
- record: ANTENNA
  HEIGHT: 1.5
- record: POSITION
  MODE: mobile
`

func loadTwoRecords(t *testing.T) *LoadResult {
	t.Helper()
	result, err := newConfigurationService(t).Load(strings.NewReader(twoRecordConfig))
	require.NoError(t, err)
	require.Equal(t, []string{"ANTENNA", "POSITION"}, result.RecordNames())
	return result
}

func TestProvisionContinuesPastFailedFrame(t *testing.T) {
	ch := protocol.NewMockChannel()
	ch.QueueBytes(protocol.MarkerACK)                     // open
	ch.QueueBytes(protocol.MarkerACK)                     // reset before ANTENNA
	ch.QueueTimeouts(1)                                   // ANTENNA never acknowledged
	ch.QueueBytes(protocol.MarkerACK, protocol.MarkerACK) // POSITION

	core, logs := observer.New(zapcore.InfoLevel)
	events := &eventRecorder{}
	ps := NewProvisionService(channelFactory(ch), 4, nil, events, zap.New(core))

	run, err := ps.Run(context.Background(), &ProvisionRequest{
		Source: "test.yaml",
		Result: loadTwoRecords(t),
		Serial: protocol.SerialConfig{Port: "/dev/null"},
	})
	require.NoError(t, err)

	assert.Equal(t, model.RunStatusCompleted, run.Status)
	assert.Equal(t, 2, run.FramesTotal)
	assert.Equal(t, 1, run.FramesFailed)
	assert.False(t, run.Succeeded())

	require.Len(t, run.Frames, 2)
	assert.Equal(t, model.FrameStatusFailed, run.Frames[0].Status)
	require.NotNil(t, run.Frames[0].Error)
	assert.Contains(t, *run.Frames[0].Error, "timeout")
	assert.Equal(t, model.FrameStatusSent, run.Frames[1].Status)
	assert.Equal(t, 2, run.Frames[1].Sequence)

	assert.Len(t, ch.Frames(), 2, "both frames written")
	assert.True(t, ch.Closed())

	assert.Equal(t, []model.EventType{
		model.EventRunStarted,
		model.EventFrameFailed,
		model.EventFrameSent,
		model.EventRunCompleted,
	}, events.types())

	summary := logs.FilterMessage("Configuration finished with 1 errors on 2 frames")
	assert.Equal(t, 1, summary.Len())
}

func TestProvisionDryRunNeverOpensChannel(t *testing.T) {
	factory := func(protocol.SerialConfig) (protocol.Channel, error) {
		t.Fatal("channel opened during dry run")
		return nil, nil
	}

	core, logs := observer.New(zapcore.InfoLevel)
	ps := NewProvisionService(factory, 0, nil, nil, zap.New(core))

	run, err := ps.Run(context.Background(), &ProvisionRequest{
		Source: "test.yaml",
		Result: loadTwoRecords(t),
		Serial: protocol.SerialConfig{Port: "/dev/ttyUL1"},
		DryRun: true,
	})
	require.NoError(t, err)

	assert.True(t, run.DryRun)
	assert.Empty(t, run.Port)
	assert.Equal(t, model.RunStatusCompleted, run.Status)
	assert.True(t, run.Succeeded())
	for _, f := range run.Frames {
		assert.Equal(t, model.FrameStatusEncoded, f.Status)
		assert.True(t, strings.HasPrefix(f.Hex, "02 00 64"), f.Hex)
	}

	assert.Equal(t, 2, logs.FilterMessage("Frame").Len())
}

// checksumFlipper encodes normally then corrupts the checksum byte
type checksumFlipper struct {
	protocol.FrameBuilder
}

func (c checksumFlipper) EncodeRecord(rec *model.Record) (protocol.Frame, error) {
	frame, err := c.FrameBuilder.EncodeRecord(rec)
	if err != nil {
		return nil, err
	}
	frame[len(frame)-2] ^= 0xff
	return frame, nil
}

func TestProvisionNeverSendsInvalidFrame(t *testing.T) {
	ch := protocol.NewAckChannel()
	ps := NewProvisionService(channelFactory(ch), 4, nil, nil, zap.NewNop())
	ps.builder = checksumFlipper{}

	run, err := ps.Run(context.Background(), &ProvisionRequest{
		Source: "test.yaml",
		Result: loadTwoRecords(t),
		Serial: protocol.SerialConfig{Port: "/dev/null"},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, run.FramesFailed)
	for _, f := range run.Frames {
		assert.Equal(t, model.FrameStatusFailed, f.Status)
		require.NotNil(t, f.Error)
		assert.Contains(t, *f.Error, protocol.ErrInvalidFrame.Error())
	}
	assert.Empty(t, ch.Frames())
}

func TestProvisionDryRunDoesNotWaitForDeviceRun(t *testing.T) {
	ps := NewProvisionService(channelFactory(protocol.NewAckChannel()), 4, nil, nil, zap.NewNop())
	result := loadTwoRecords(t)

	// a device run holds the line
	ps.mu.Lock()
	defer ps.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		_, err := ps.Run(context.Background(), &ProvisionRequest{Source: "api", Result: result, DryRun: true})
		done <- err
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("dry run blocked behind the device run")
	}
}

func TestProvisionOpenFailureIsFatal(t *testing.T) {
	ch := protocol.NewMockChannel() // never answers

	events := &eventRecorder{}
	ps := NewProvisionService(channelFactory(ch), 3, nil, events, zap.NewNop())

	run, err := ps.Run(context.Background(), &ProvisionRequest{
		Source: "test.yaml",
		Result: loadTwoRecords(t),
		Serial: protocol.SerialConfig{Port: "/dev/null"},
	})
	require.ErrorIs(t, err, protocol.ErrDeviceBusy)

	require.NotNil(t, run)
	assert.Equal(t, model.RunStatusFailed, run.Status)
	require.NotNil(t, run.ErrorMessage)
	assert.Contains(t, *run.ErrorMessage, "device busy")
	assert.Empty(t, run.Frames)
	assert.Empty(t, ch.Frames())
	assert.True(t, ch.Closed())
	assert.Equal(t, []model.EventType{model.EventRunStarted, model.EventRunCompleted}, events.types())
}

func TestProvisionChannelFactoryError(t *testing.T) {
	factory := func(protocol.SerialConfig) (protocol.Channel, error) {
		return nil, errors.New("no such port")
	}
	ps := NewProvisionService(factory, 0, nil, nil, zap.NewNop())

	run, err := ps.Run(context.Background(), &ProvisionRequest{Result: loadTwoRecords(t)})
	require.ErrorContains(t, err, "no such port")
	assert.Equal(t, model.RunStatusFailed, run.Status)
}

func TestProvisionNothingToSend(t *testing.T) {
	ps := NewProvisionService(channelFactory(protocol.NewAckChannel()), 0, nil, nil, zap.NewNop())

	result, err := newConfigurationService(t).Load(strings.NewReader("- record: NOPE\n"))
	require.NoError(t, err)

	run, err := ps.Run(context.Background(), &ProvisionRequest{Result: result})
	require.ErrorIs(t, err, ErrNothingToSend)
	assert.Equal(t, model.RunStatusFailed, run.Status)
	require.Len(t, run.Diagnostics, 1)
	assert.Equal(t, model.DiagnosticUnknownRecord, run.Diagnostics[0].Kind)
}

func TestProvisionStopsOnCancelledContext(t *testing.T) {
	ch := protocol.NewAckChannel()
	ps := NewProvisionService(channelFactory(ch), 0, nil, nil, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run, err := ps.Run(ctx, &ProvisionRequest{Result: loadTwoRecords(t), Serial: protocol.SerialConfig{Port: "/dev/null"}})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, model.RunStatusFailed, run.Status)
	assert.Empty(t, ch.Frames())
	assert.True(t, ch.Closed())
}

func TestProvisionWritesJournal(t *testing.T) {
	logger := zap.NewNop()
	db, err := database.NewConnection(&config.JournalConfig{
		Enabled:      true,
		Driver:       config.DriverSQLite,
		DSN:          filepath.Join(t.TempDir(), "journal.db"),
		MaxOpenConns: 1,
	}, logger)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, database.NewMigrator(db, logger).Up())

	journal := repository.NewRunRepository(db, logger)
	ch := protocol.NewAckChannel()
	ps := NewProvisionService(channelFactory(ch), 0, journal, nil, logger)

	run, err := ps.Run(context.Background(), &ProvisionRequest{
		Source: "test.yaml",
		Result: loadTwoRecords(t),
		Serial: protocol.SerialConfig{Port: "/dev/null"},
	})
	require.NoError(t, err)

	stored, err := journal.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, stored.Status)
	assert.Equal(t, 2, stored.FramesTotal)
	assert.Equal(t, "/dev/null", stored.Port)
	require.Len(t, stored.Frames, 2)
	assert.Equal(t, run.Frames[0].Hex, stored.Frames[0].Hex)
	assert.Equal(t, model.FrameStatusSent, stored.Frames[1].Status)
}
