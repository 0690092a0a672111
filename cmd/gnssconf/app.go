// cmd/gnssconf/app.go
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"

	"gnss-configurator/internal/config"
	"gnss-configurator/internal/database"
	"gnss-configurator/internal/discovery"
	"gnss-configurator/internal/handler"
	"gnss-configurator/internal/protocol"
	"gnss-configurator/internal/repository"
	"gnss-configurator/internal/routes"
	"gnss-configurator/internal/schema"
	"gnss-configurator/internal/service"
	"gnss-configurator/internal/utils"
)

const cleanupInterval = time.Hour

// Application represents the main application
type Application struct {
	config   *config.Config
	logger   *zap.Logger
	server   *http.Server
	database *database.DB

	schema    *schema.Schema
	scanner   *discovery.Scanner
	eventBus  *handler.EventBus
	websocket *handler.WebSocketHandler

	// Services
	configurationService *service.ConfigurationService
	provisionService     *service.ProvisionService

	// Repositories
	runRepo repository.RunRepository

	openChannel service.ChannelFactory
}

// NewApplication creates a new application instance
func NewApplication(cfg *config.Config) (*Application, error) {
	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return newApplication(cfg, logger), nil
}

func newApplication(cfg *config.Config, logger *zap.Logger) *Application {
	return &Application{
		config:      cfg,
		logger:      logger,
		scanner:     discovery.NewScanner(logger),
		openChannel: service.SerialChannelFactory(logger),
	}
}

// initializeSchema loads the receiver record layout
func (app *Application) initializeSchema() error {
	s, err := schema.LoadFile(app.config.Schema.Path)
	if err != nil {
		return err
	}
	app.schema = s

	app.logger.Debug("Schema loaded",
		zap.String("path", app.config.Schema.Path),
		zap.Int("records", s.Len()),
	)
	return nil
}

// openJournal connects to the run journal database
func (app *Application) openJournal() error {
	if !app.config.Journal.Enabled {
		return errors.New("journal is disabled, set journal.enabled to use it")
	}

	db, err := database.NewConnection(&app.config.Journal, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create database connection: %w", err)
	}
	app.database = db
	return nil
}

// initializeJournal sets up the optional run journal and runs its migrations
func (app *Application) initializeJournal() error {
	if !app.config.Journal.Enabled {
		app.logger.Debug("Run journal disabled")
		return nil
	}

	if err := app.openJournal(); err != nil {
		return err
	}

	if err := database.NewMigrator(app.database, app.logger).Up(); err != nil {
		return fmt.Errorf("failed to run journal migrations: %w", err)
	}

	app.runRepo = repository.NewRunRepository(app.database, app.logger)

	app.logger.Info("Run journal initialized", zap.String("driver", app.database.Driver))
	return nil
}

// initializeServices creates service instances
func (app *Application) initializeServices(events service.EventPublisher) {
	app.configurationService = service.NewConfigurationService(app.schema, app.logger)

	app.provisionService = service.NewProvisionService(
		app.openChannel,
		app.config.Handshake.MaxAttempts,
		app.runRepo,
		events,
		app.logger,
	)
}

// initializeServer sets up HTTP server and routes
func (app *Application) initializeServer() {
	app.websocket = handler.NewWebSocketHandler(app.eventBus, app.config.Security.AllowedOrigins, app.logger)

	handlers := &routes.Handlers{
		Health: handler.NewHealthHandler(app.database, app.schema, app.config, app.logger),
		Schema: handler.NewSchemaHandler(app.schema, app.logger),
		Provision: handler.NewProvisionHandler(
			app.configurationService,
			app.provisionService,
			protocol.NewSerialConfig(&app.config.Serial),
			app.logger,
		),
		Runs:      handler.NewRunHandler(app.runRepo, app.logger),
		Ports:     handler.NewPortHandler(app.scanner, app.logger),
		WebSocket: app.websocket,
	}

	router := routes.NewRouter(app.config, app.logger, handlers).SetupRouter()

	app.server = &http.Server{
		Addr:         app.config.GetServerAddr(),
		Handler:      router,
		ReadTimeout:  app.config.Server.ReadTimeout,
		WriteTimeout: app.config.Server.WriteTimeout,
		IdleTimeout:  app.config.Server.IdleTimeout,
	}

	app.logger.Info("HTTP server initialized", zap.String("address", app.config.GetServerAddr()))
}

// Provision applies the configuration file to the receiver and prints the
// outcome of every record. Frame failures are reported but do not change
// the exit code.
func (app *Application) Provision(ctx context.Context, out io.Writer) int {
	if err := app.initializeSchema(); err != nil {
		fmt.Fprintf(out, "E: %v\n", err)
		return exitError
	}
	if err := app.initializeJournal(); err != nil {
		fmt.Fprintf(out, "E: %v\n", err)
		return exitError
	}

	cfg := app.config.Provision
	app.initializeServices(&consoleReporter{out: out, verbose: cfg.Verbose})

	result, err := app.configurationService.LoadFile(cfg.File)
	if err != nil {
		fmt.Fprintf(out, "E: %v\n", err)
		return exitError
	}

	for _, d := range result.Diagnostics {
		fmt.Fprintf(out, "E: %s\n", d)
	}
	if !result.Accepted {
		fmt.Fprintf(out, "E: %v\n", service.ErrNothingToSend)
		printSummary(out, 0, 0)
		return exitError
	}
	fmt.Fprintln(out, "Configuration built successfully !")

	run, err := app.provisionService.Run(ctx, &service.ProvisionRequest{
		Source:  "cli:" + cfg.File,
		Result:  result,
		Serial:  protocol.NewSerialConfig(&app.config.Serial),
		DryRun:  cfg.DryRun,
		Verbose: cfg.Verbose,
	})
	if err != nil {
		fmt.Fprintf(out, "E: %v\n", err)
		if run != nil && run.FramesTotal > 0 {
			printSummary(out, run.FramesFailed, run.FramesTotal)
		}
		return exitError
	}

	printSummary(out, run.FramesFailed, run.FramesTotal)
	return exitOK
}

func printSummary(out io.Writer, failed, frames int) {
	fmt.Fprintf(out, "Configuration finished with %d errors on %d frames\n", failed, frames)
}

// Serve runs the HTTP API until a shutdown signal arrives
func (app *Application) Serve() error {
	serviceLogger := utils.NewServiceLogger(app.logger, "gnssconf")
	serviceLogger.LogServiceStart(app.config.App.Version, app.config)

	if err := app.initializeSchema(); err != nil {
		return fmt.Errorf("failed to load schema: %w", err)
	}
	if err := app.initializeJournal(); err != nil {
		return fmt.Errorf("failed to initialize journal: %w", err)
	}

	app.eventBus = handler.NewEventBus(app.logger)
	app.initializeServices(app.eventBus)
	app.initializeServer()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	app.startBackgroundServices(ctx)

	serverErr := make(chan error, 1)
	go func() {
		app.logger.Info("Starting HTTP server", zap.String("address", app.server.Addr))

		if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	return app.waitForShutdown(serverErr)
}

// startBackgroundServices starts background services
func (app *Application) startBackgroundServices(ctx context.Context) {
	go app.eventBus.Start(ctx)
	go app.websocket.Start(ctx)

	if app.runRepo != nil && app.config.Journal.Retention > 0 {
		go app.startCleanupService(ctx)
	}

	app.logger.Info("Background services started")
}

// startCleanupService prunes journal runs older than the retention period
func (app *Application) startCleanupService(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	app.logger.Info("Cleanup service started", zap.Duration("retention", app.config.Journal.Retention))

	for {
		app.cleanupOldRuns(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (app *Application) cleanupOldRuns(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Minute)
	defer cancel()

	olderThan := time.Now().Add(-app.config.Journal.Retention)
	deleted, err := app.runRepo.DeleteOldRuns(ctx, olderThan)
	if err != nil {
		app.logger.Error("Failed to cleanup old runs", zap.Error(err))
		return
	}
	if deleted > 0 {
		app.logger.Info("Cleaned up old runs", zap.Int64("deleted", deleted))
	}
}

// waitForShutdown waits for a shutdown signal or a server failure and
// performs graceful shutdown
func (app *Application) waitForShutdown(serverErr <-chan error) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		app.logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
		app.shutdown("shutdown signal received")
		return nil
	case err := <-serverErr:
		app.shutdown("HTTP server failed")
		return fmt.Errorf("HTTP server failed: %w", err)
	}
}

// shutdown stops the HTTP server
func (app *Application) shutdown(reason string) {
	serviceLogger := utils.NewServiceLogger(app.logger, "gnssconf")
	serviceLogger.LogServiceStop(reason)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		app.logger.Info("HTTP server stopped")
	}
}

// ListPorts prints the serial ports of the host
func (app *Application) ListPorts(ctx context.Context, prefix string, out io.Writer) error {
	ports, err := app.scanner.Scan(ctx, prefix)
	if err != nil {
		return err
	}

	if len(ports) == 0 {
		fmt.Fprintln(out, "No serial port found")
		return nil
	}

	for _, p := range ports {
		if !p.IsUSB {
			fmt.Fprintln(out, p.Name)
			continue
		}
		fmt.Fprintf(out, "%s\tusb %s:%s", p.Name, p.VendorID, p.ProductID)
		if p.SerialNumber != "" {
			fmt.Fprintf(out, " serial=%s", p.SerialNumber)
		}
		if p.Product != "" {
			fmt.Fprintf(out, " %s", p.Product)
		}
		fmt.Fprintln(out)
	}
	return nil
}

// Migrate applies or inspects the journal schema. args is the action
// (up, down, version or force) followed by its operand.
func (app *Application) Migrate(args []string, out io.Writer) error {
	action := "up"
	if len(args) > 0 {
		action = args[0]
	}

	if err := app.openJournal(); err != nil {
		return err
	}
	migrator := database.NewMigrator(app.database, app.logger)

	switch action {
	case "up":
		return migrator.Up()
	case "down":
		return migrator.Down()
	case "version":
		version, dirty, err := migrator.Version()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "version %d dirty=%t\n", version, dirty)
		return nil
	case "force":
		if len(args) != 2 {
			return errors.New("migrate force requires a version")
		}
		version, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid migration version %q: %w", args[1], err)
		}
		return migrator.Force(version)
	default:
		return fmt.Errorf("unknown migrate action %q: expected up, down, version or force", action)
	}
}

// Close releases the journal connection and flushes the logger
func (app *Application) Close() {
	if app.database != nil {
		if err := app.database.Close(); err != nil {
			app.logger.Error("Database close error", zap.Error(err))
		} else {
			app.logger.Debug("Database connection closed")
		}
		app.database = nil
	}

	_ = utils.CloseLogger(app.logger)
}
