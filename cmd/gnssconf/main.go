// cmd/gnssconf/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"gnss-configurator/internal/config"
)

// Exit codes
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

const usageText = `gnssconf configures a Trimble BX992 receiver over its serial line.

Usage:
  gnssconf [provision] --file CONFIG [flags]   apply a configuration file
  gnssconf serve [flags]                       run the HTTP API
  gnssconf ports [flags]                       list serial ports
  gnssconf migrate up|down|version|force N     manage the run journal schema

Run "gnssconf COMMAND --help" for the flags of a command.
`

// @title GNSS Configurator API
// @version 1.0.0
// @description Builds Trimble BX992 configuration frames and sends them over the serial line

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8084
// @BasePath /api/v1
func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run dispatches a command line and returns the process exit code. A
// command line starting with a flag is a provisioning run.
func run(args []string, stdout, stderr io.Writer) int {
	command := "provision"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		command, args = args[0], args[1:]
	}

	switch command {
	case "provision":
		return runProvision(args, stdout, stderr)
	case "serve":
		return runServe(args, stderr)
	case "ports":
		return runPorts(args, stdout, stderr)
	case "migrate":
		return runMigrate(args, stdout, stderr)
	case "help":
		fmt.Fprint(stdout, usageText)
		return exitOK
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", command, usageText)
		return exitUsage
	}
}

func runProvision(args []string, stdout, stderr io.Writer) int {
	flags, configPath := newFlagSet("provision", stderr)
	addSerialFlags(flags)
	flags.StringP("file", "f", "", "configuration file (required)")
	flags.BoolP("verbose", "v", false, "verbose execution with frame dump")
	flags.Bool("dry-run", false, "build the frames without opening the serial port")

	app, code := loadApplication(flags, configPath, args, stderr)
	if app == nil {
		return code
	}
	defer app.Close()

	if app.config.Provision.File == "" {
		fmt.Fprintln(stderr, "E: --file is required")
		return exitUsage
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return app.Provision(ctx, stdout)
}

func runServe(args []string, stderr io.Writer) int {
	flags, configPath := newFlagSet("serve", stderr)
	addSerialFlags(flags)
	flags.String("listen", "", "HTTP listen port")

	app, code := loadApplication(flags, configPath, args, stderr)
	if app == nil {
		return code
	}
	defer app.Close()

	if err := app.Serve(); err != nil {
		app.logger.Error("Server terminated", zap.Error(err))
		return exitError
	}
	return exitOK
}

func runPorts(args []string, stdout, stderr io.Writer) int {
	flags, configPath := newFlagSet("ports", stderr)
	prefix := flags.String("prefix", "", "only list ports whose name starts with this prefix")

	app, code := loadApplication(flags, configPath, args, stderr)
	if app == nil {
		return code
	}
	defer app.Close()

	if err := app.ListPorts(context.Background(), *prefix, stdout); err != nil {
		fmt.Fprintf(stderr, "E: %v\n", err)
		return exitError
	}
	return exitOK
}

func runMigrate(args []string, stdout, stderr io.Writer) int {
	flags, configPath := newFlagSet("migrate", stderr)

	app, code := loadApplication(flags, configPath, args, stderr)
	if app == nil {
		return code
	}
	defer app.Close()

	if err := app.Migrate(flags.Args(), stdout); err != nil {
		fmt.Fprintf(stderr, "E: %v\n", err)
		return exitError
	}
	return exitOK
}

// newFlagSet creates the flag set shared by every command
func newFlagSet(name string, stderr io.Writer) (*pflag.FlagSet, *string) {
	flags := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flags.SetOutput(stderr)

	configPath := flags.StringP("config", "c", "", "configuration file of the tool itself")
	flags.String("schema", "", "receiver schema file")
	flags.String("log-level", "", "log level (debug, info, warn, error)")

	return flags, configPath
}

// addSerialFlags adds the serial line flags
func addSerialFlags(flags *pflag.FlagSet) {
	flags.String("port", "", "serial port device (default: /dev/ttyUL1)")
	flags.Int("speed", 0, "serial port speed (default: 115200)")
	flags.Int("bit", 0, "serial port bits, 7 or 8 (default: 8)")
	flags.String("parity", "", "serial port parity, O, E or N (default: N)")
	flags.Int("stop", 0, "serial port stop bits, 1 or 2 (default: 1)")
}

// loadApplication parses the flags and builds the application. A nil
// application comes with the exit code to return.
func loadApplication(flags *pflag.FlagSet, configPath *string, args []string, stderr io.Writer) (*Application, int) {
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, exitOK
		}
		return nil, exitUsage
	}

	cfg, err := config.Load(*configPath, flags)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load configuration: %v\n", err)
		return nil, exitError
	}

	app, err := NewApplication(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to initialize application: %v\n", err)
		return nil, exitError
	}
	return app, exitOK
}
