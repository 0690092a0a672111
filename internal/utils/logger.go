// internal/utils/logger.go
package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"gnss-configurator/internal/config"
	"gnss-configurator/internal/model"
)

// LoggerManager manages application logging
type LoggerManager struct {
	config *config.LoggingConfig
}

// NewLogger creates a new logger instance based on configuration
func NewLogger(cfg *config.LoggingConfig) (*zap.Logger, error) {
	manager := &LoggerManager{
		config: cfg,
	}

	logger, err := manager.createLogger()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return logger, nil
}

// createLogger creates the zap logger with proper configuration
func (lm *LoggerManager) createLogger() (*zap.Logger, error) {
	encoderConfig := lm.getEncoderConfig()

	var encoder zapcore.Encoder
	switch lm.config.Format {
	case "console":
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	default:
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	writeSyncer, err := lm.getWriteSyncer()
	if err != nil {
		return nil, fmt.Errorf("failed to create write syncer: %w", err)
	}

	level, err := lm.getLogLevel()
	if err != nil {
		return nil, fmt.Errorf("failed to parse log level: %w", err)
	}

	core := zapcore.NewCore(encoder, writeSyncer, level)
	return zap.New(core, lm.getLoggerOptions()...), nil
}

// getEncoderConfig returns encoder configuration based on format
func (lm *LoggerManager) getEncoderConfig() zapcore.EncoderConfig {
	config := zap.NewProductionEncoderConfig()

	config.TimeKey = "timestamp"
	config.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC3339)
	config.LevelKey = "level"
	config.EncodeLevel = zapcore.LowercaseLevelEncoder
	config.CallerKey = "caller"
	config.EncodeCaller = zapcore.ShortCallerEncoder
	config.MessageKey = "message"
	config.StacktraceKey = "stacktrace"

	// Console format customizations
	if lm.config.Format == "console" {
		config.EncodeLevel = zapcore.CapitalLevelEncoder
		config.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	}

	return config
}

// getWriteSyncer returns write syncer based on output configuration
func (lm *LoggerManager) getWriteSyncer() (zapcore.WriteSyncer, error) {
	switch lm.config.Output {
	case "stdout":
		return zapcore.AddSync(os.Stdout), nil
	case "stderr", "":
		return zapcore.AddSync(os.Stderr), nil
	default:
		// File output with rotation
		logDir := filepath.Dir(lm.config.Output)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		lumber := &lumberjack.Logger{
			Filename:   lm.config.Output,
			MaxSize:    lm.config.MaxSize, // MB
			MaxBackups: lm.config.MaxBackups,
			MaxAge:     lm.config.MaxAge, // days
			Compress:   lm.config.Compress,
		}

		return zapcore.AddSync(lumber), nil
	}
}

// getLogLevel parses and returns log level
func (lm *LoggerManager) getLogLevel() (zapcore.Level, error) {
	switch lm.config.Level {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info":
		return zapcore.InfoLevel, nil
	case "warn":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	case "fatal":
		return zapcore.FatalLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("invalid log level: %s", lm.config.Level)
	}
}

// getLoggerOptions returns logger options
func (lm *LoggerManager) getLoggerOptions() []zap.Option {
	return []zap.Option{
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	}
}

// RunLogger provides structured logging for one provisioning run
type RunLogger struct {
	logger    *zap.Logger
	runID     string
	startTime time.Time
}

// NewRunLogger creates a run-specific logger
func NewRunLogger(baseLogger *zap.Logger, runID, source string) *RunLogger {
	logger := baseLogger.With(
		zap.String("run_id", runID),
		zap.String("source", source),
		zap.String("component", "run"),
	)

	return &RunLogger{
		logger:    logger,
		runID:     runID,
		startTime: time.Now(),
	}
}

// Logger returns the underlying zap logger
func (rl *RunLogger) Logger() *zap.Logger {
	return rl.logger
}

// Start logs run start
func (rl *RunLogger) Start(records int, dryRun bool) {
	rl.logger.Info("Configuration run started",
		zap.Time("start_time", rl.startTime),
		zap.Int("records", records),
		zap.Bool("dry_run", dryRun),
	)
}

// Diagnostic logs a configuration entry that was rejected
func (rl *RunLogger) Diagnostic(d model.Diagnostic) {
	fields := []zap.Field{
		zap.String("kind", string(d.Kind)),
		zap.String("record", d.Record),
	}
	if d.Field != "" {
		fields = append(fields, zap.String("item", d.Field), zap.Any("value", d.Value))
	}
	fields = append(fields, zap.String("reason", d.Reason))

	rl.logger.Warn("Configuration entry rejected", fields...)
}

// FrameDump logs the encoded frame of a record
func (rl *RunLogger) FrameDump(record, hex string) {
	rl.logger.Info("Frame", zap.String("record", record), zap.String("hex", hex))
}

// FrameResult logs the device answer for one record
func (rl *RunLogger) FrameResult(record string, duration time.Duration, err error) {
	fields := []zap.Field{
		zap.String("record", record),
		zap.Duration("duration", duration),
		zap.Bool("success", err == nil),
	}

	if err != nil {
		fields = append(fields, zap.Error(err))
		rl.logger.Error("Record configuration failed", fields...)
	} else {
		rl.logger.Info("Record configured", fields...)
	}
}

// Summary logs the aggregate error count of the run
func (rl *RunLogger) Summary(errors, frames int) {
	fields := []zap.Field{
		zap.Int("errors", errors),
		zap.Int("frames", frames),
		zap.Duration("duration", time.Since(rl.startTime)),
	}
	msg := fmt.Sprintf("Configuration finished with %d errors on %d frames", errors, frames)

	if errors > 0 {
		rl.logger.Warn(msg, fields...)
	} else {
		rl.logger.Info(msg, fields...)
	}
}

// ServiceLogger provides service-level logging functionality
type ServiceLogger struct {
	*zap.Logger
	serviceName string
}

// NewServiceLogger creates a service-specific logger
func NewServiceLogger(baseLogger *zap.Logger, serviceName string) *ServiceLogger {
	logger := baseLogger.With(
		zap.String("service", serviceName),
		zap.String("component", "service"),
	)

	return &ServiceLogger{
		Logger:      logger,
		serviceName: serviceName,
	}
}

// LogServiceStart logs service startup
func (sl *ServiceLogger) LogServiceStart(version string, config interface{}) {
	sl.Info("Service starting",
		zap.String("version", version),
		zap.Any("config", config),
	)
}

// LogServiceStop logs service shutdown
func (sl *ServiceLogger) LogServiceStop(reason string) {
	sl.Info("Service stopping",
		zap.String("reason", reason),
	)
}

// APIRequestLog describes one completed HTTP request
type APIRequestLog struct {
	Method    string
	Route     string
	Path      string
	ClientIP  string
	UserAgent string
	RequestID string
	Status    int
	Bytes     int
	Duration  time.Duration
	// Probe marks health probes, logged at debug level when they succeed
	Probe bool
}

// LogAPIRequest logs HTTP API requests
func (sl *ServiceLogger) LogAPIRequest(req APIRequestLog) {
	level := zapcore.InfoLevel
	switch {
	case req.Status >= 500:
		level = zapcore.ErrorLevel
	case req.Status >= 400:
		level = zapcore.WarnLevel
	case req.Probe:
		level = zapcore.DebugLevel
	}

	route := req.Route
	if route == "" {
		route = "unmatched"
	}

	if ce := sl.Check(level, "API request"); ce != nil {
		ce.Write(
			zap.String("method", req.Method),
			zap.String("route", route),
			zap.String("path", req.Path),
			zap.String("client_ip", req.ClientIP),
			zap.String("user_agent", req.UserAgent),
			zap.String("request_id", req.RequestID),
			zap.Int("status_code", req.Status),
			zap.Int("bytes", req.Bytes),
			zap.Duration("duration", req.Duration),
		)
	}
}

// LogError is a helper function for consistent error logging
func LogError(logger *zap.Logger, message string, err error, fields ...zap.Field) {
	allFields := append([]zap.Field{zap.Error(err)}, fields...)
	logger.Error(message, allFields...)
}

// CloseLogger flushes buffered log entries
func CloseLogger(logger *zap.Logger) error {
	return logger.Sync()
}
