// internal/service/provision_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gnss-configurator/internal/model"
	"gnss-configurator/internal/protocol"
	"gnss-configurator/internal/repository"
	"gnss-configurator/internal/utils"
)

// ErrNothingToSend is returned when a configuration produced no record
var ErrNothingToSend = errors.New("no configuration built")

// ChannelFactory opens the byte channel to the receiver
type ChannelFactory func(cfg protocol.SerialConfig) (protocol.Channel, error)

// EventPublisher receives run progress events
type EventPublisher interface {
	Publish(event model.RunEvent)
}

// SerialChannelFactory opens the serial port, or the device server socket,
// named by the configuration
func SerialChannelFactory(logger *zap.Logger) ChannelFactory {
	return func(cfg protocol.SerialConfig) (protocol.Channel, error) {
		return protocol.OpenChannel(cfg, logger)
	}
}

// FrameEncoder turns a filled record into a wire frame
type FrameEncoder interface {
	EncodeRecord(rec *model.Record) (protocol.Frame, error)
}

// ProvisionRequest describes one run of accepted records against a receiver
type ProvisionRequest struct {
	Source  string
	Result  *LoadResult
	Serial  protocol.SerialConfig
	DryRun  bool
	Verbose bool
}

// ProvisionService encodes records and sends them to the receiver. Device
// runs are serialized since they share the serial line. Dry runs do no I/O
// and never wait for them.
type ProvisionService struct {
	mu          sync.Mutex
	openChannel ChannelFactory
	maxAttempts int
	builder     FrameEncoder
	journal     repository.RunRepository
	events      EventPublisher
	baseLogger  *zap.Logger
	logger      *utils.ServiceLogger
}

// NewProvisionService creates a new provision service instance. journal and
// events are optional.
func NewProvisionService(
	openChannel ChannelFactory,
	maxAttempts int,
	journal repository.RunRepository,
	events EventPublisher,
	logger *zap.Logger,
) *ProvisionService {
	return &ProvisionService{
		openChannel: openChannel,
		maxAttempts: maxAttempts,
		builder:     protocol.NewFrameBuilder(),
		journal:     journal,
		events:      events,
		baseLogger:  logger,
		logger:      utils.NewServiceLogger(logger, "provision-service"),
	}
}

// Run sends every accepted record in order. Send failures are counted and
// the run continues; only a run that cannot start returns an error, along
// with the failed run.
func (ps *ProvisionService) Run(ctx context.Context, req *ProvisionRequest) (*model.Run, error) {
	if !req.DryRun {
		ps.mu.Lock()
		defer ps.mu.Unlock()
	}

	run := &model.Run{
		ID:        uuid.New(),
		Source:    req.Source,
		Port:      req.Serial.Port,
		DryRun:    req.DryRun,
		Status:    model.RunStatusRunning,
		StartedAt: time.Now(),
	}
	if req.DryRun {
		run.Port = ""
	}

	var records []*model.Record
	if req.Result != nil {
		records = req.Result.Records
		run.Diagnostics = req.Result.Diagnostics
	}

	runLogger := utils.NewRunLogger(ps.baseLogger, run.ID.String(), req.Source)
	runLogger.Start(len(records), req.DryRun)
	for _, d := range run.Diagnostics {
		runLogger.Diagnostic(d)
	}

	ps.journalCreate(ctx, run)
	ps.publish(model.NewRunEvent(model.EventRunStarted, run.ID, map[string]any{
		"source":  run.Source,
		"records": len(records),
		"dry_run": run.DryRun,
	}))

	if len(records) == 0 {
		return ps.fail(ctx, run, runLogger, ErrNothingToSend)
	}

	var transport *protocol.HandshakeTransport
	if !req.DryRun {
		channel, err := ps.openChannel(req.Serial)
		if err != nil {
			return ps.fail(ctx, run, runLogger, fmt.Errorf("failed to open channel: %w", err))
		}

		transport = protocol.NewHandshakeTransport(channel, ps.maxAttempts, runLogger.Logger())
		if err := transport.Open(); err != nil {
			closeChannel(channel)
			return ps.fail(ctx, run, runLogger, err)
		}
		defer func() {
			if err := transport.Close(); err != nil {
				runLogger.Logger().Warn("Failed to close transport", zap.Error(err))
			}
		}()
	}

	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return ps.fail(ctx, run, runLogger, fmt.Errorf("run interrupted: %w", err))
		}

		result := ps.sendRecord(transport, run.ID, i+1, rec, req, runLogger)
		run.FramesTotal++
		if result.Status == model.FrameStatusFailed {
			run.FramesFailed++
		}
		run.Frames = append(run.Frames, result)

		ps.journalFrame(ctx, result)
		ps.publish(frameEvent(result))
	}

	if transport != nil {
		stats := transport.Stats()
		runLogger.Logger().Debug("Transport statistics",
			zap.Int64("frames_sent", stats.FramesSent),
			zap.Int64("frames_failed", stats.FramesFailed),
			zap.Int64("resets", stats.Resets),
			zap.Int64("reset_attempts", stats.ResetAttempts),
			zap.Int64("bytes_written", stats.BytesWritten),
		)
	}

	now := time.Now()
	run.Status = model.RunStatusCompleted
	run.CompletedAt = &now
	runLogger.Summary(run.FramesFailed, run.FramesTotal)

	ps.journalComplete(ctx, run)
	ps.publish(completedEvent(run))

	return run, nil
}

func (ps *ProvisionService) sendRecord(
	transport *protocol.HandshakeTransport,
	runID uuid.UUID,
	sequence int,
	rec *model.Record,
	req *ProvisionRequest,
	runLogger *utils.RunLogger,
) *model.FrameResult {
	result := &model.FrameResult{
		ID:          uuid.New(),
		RunID:       runID,
		Sequence:    sequence,
		Record:      rec.Name,
		CommandCode: rec.CommandCode,
		CreatedAt:   time.Now(),
	}

	start := time.Now()
	frame, err := ps.builder.EncodeRecord(rec)
	if err == nil {
		err = protocol.VerifyFrame(frame)
	}
	if err != nil {
		result.Status = model.FrameStatusFailed
		result.Error = errorString(err)
		runLogger.FrameResult(rec.Name, time.Since(start), err)
		return result
	}
	result.Hex = frame.Hex()

	if req.Verbose || req.DryRun {
		runLogger.FrameDump(rec.Name, result.Hex)
	}

	if transport == nil {
		result.Status = model.FrameStatusEncoded
		return result
	}

	err = transport.Send(frame)
	duration := time.Since(start)
	result.DurationMs = int(duration.Milliseconds())
	runLogger.FrameResult(rec.Name, duration, err)

	if err != nil {
		result.Status = model.FrameStatusFailed
		result.Error = errorString(err)
	} else {
		result.Status = model.FrameStatusSent
	}
	return result
}

func (ps *ProvisionService) fail(ctx context.Context, run *model.Run, runLogger *utils.RunLogger, err error) (*model.Run, error) {
	now := time.Now()
	run.Status = model.RunStatusFailed
	run.CompletedAt = &now
	run.ErrorMessage = errorString(err)

	utils.LogError(runLogger.Logger(), "Configuration run failed", err)
	runLogger.Summary(run.FramesFailed, run.FramesTotal)

	ps.journalComplete(context.WithoutCancel(ctx), run)
	ps.publish(completedEvent(run))

	return run, err
}

// Journal failures never abort a run
func (ps *ProvisionService) journalCreate(ctx context.Context, run *model.Run) {
	if ps.journal == nil {
		return
	}
	if err := ps.journal.CreateRun(ctx, run); err != nil {
		ps.logger.Warn("Failed to journal run", zap.String("run_id", run.ID.String()), zap.Error(err))
	}
}

func (ps *ProvisionService) journalFrame(ctx context.Context, frame *model.FrameResult) {
	if ps.journal == nil {
		return
	}
	if err := ps.journal.AddFrame(ctx, frame); err != nil {
		ps.logger.Warn("Failed to journal frame", zap.String("record", frame.Record), zap.Error(err))
	}
}

func (ps *ProvisionService) journalComplete(ctx context.Context, run *model.Run) {
	if ps.journal == nil {
		return
	}
	if err := ps.journal.CompleteRun(ctx, run); err != nil {
		ps.logger.Warn("Failed to journal run completion", zap.String("run_id", run.ID.String()), zap.Error(err))
	}
}

func (ps *ProvisionService) publish(event model.RunEvent) {
	if ps.events != nil {
		ps.events.Publish(event)
	}
}

func frameEvent(frame *model.FrameResult) model.RunEvent {
	eventType := model.EventFrameSent
	switch frame.Status {
	case model.FrameStatusFailed:
		eventType = model.EventFrameFailed
	case model.FrameStatusEncoded:
		eventType = model.EventFrameEncoded
	}

	data := map[string]any{
		"sequence": frame.Sequence,
		"record":   frame.Record,
		"hex":      frame.Hex,
		"status":   frame.Status,
	}
	if frame.Error != nil {
		data["error"] = *frame.Error
	}
	return model.NewRunEvent(eventType, frame.RunID, data)
}

func completedEvent(run *model.Run) model.RunEvent {
	data := map[string]any{
		"status":        run.Status,
		"frames_total":  run.FramesTotal,
		"frames_failed": run.FramesFailed,
	}
	if run.ErrorMessage != nil {
		data["error"] = *run.ErrorMessage
	}
	return model.NewRunEvent(model.EventRunCompleted, run.ID, data)
}

func closeChannel(channel protocol.Channel) {
	if c, ok := channel.(io.Closer); ok {
		_ = c.Close()
	}
}

func errorString(err error) *string {
	msg := err.Error()
	return &msg
}
