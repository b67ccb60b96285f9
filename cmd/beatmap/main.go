package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/beatmapar/loader/internal/config"
	"github.com/beatmapar/loader/internal/logging"
	intOtel "github.com/beatmapar/loader/internal/otel"
	"github.com/k0kubun/go-ansi"
	"github.com/rs/zerolog"
)

// module defs - BuildDate can be set at build time via ldflags
var (
	Version   string = "0.0.1"
	BuildDate string = "unknown"

	AppName string = "beatmap"
)

const usage = `Usage: %s [-config dir] [-log-level level] <command> [flags] [args]

Commands:
  inspect <bundle>             print the song metadata and difficulty counts
  slice   <bundle>             print the events of one difficulty in a time window
  export  <bundle>             write the beatmap as a JSON timeline
  library [dir]                scan a directory of bundles and print their previews
  list                         query the preview catalog

A bundle is a .zip file, an unpacked directory or gs://bucket/prefix.
`

// app holds the per-process services shared by every command.
type app struct {
	stdout io.Writer
	stderr io.Writer

	logs    *logging.SlogManager
	logger  *slog.Logger
	logFile *os.File
	otel    *intOtel.Provider

	// dbLogger is handed to the catalog
	dbLogger zerolog.Logger

	sessionStart time.Time
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, ansi.NewAnsiStderr()); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet(AppName, flag.ContinueOnError)
	fs.SetOutput(stderr)
	configDir := fs.String("config", ".", "directory holding "+config.FileName)
	logLevel := fs.String("log-level", "", "override the configured log level")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), usage, AppName)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return flag.ErrHelp
	}

	a := &app{stdout: stdout, stderr: stderr, sessionStart: time.Now()}
	a.setup(*configDir, *logLevel)
	defer a.shutdown()

	cmd, cmdArgs := fs.Arg(0), fs.Args()[1:]
	a.logger.Debug("Running command", "command", cmd, "version", Version, "buildDate", BuildDate)

	switch cmd {
	case "inspect":
		return a.inspect(ctx, cmdArgs)
	case "slice":
		return a.slice(ctx, cmdArgs)
	case "export":
		return a.export(ctx, cmdArgs)
	case "library":
		return a.library(ctx, cmdArgs)
	case "list":
		return a.list(ctx, cmdArgs)
	default:
		fs.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// setup loads the config and builds the logging pipeline. Failures here are
// logged and the command runs with defaults, as a missing config file is common.
func (a *app) setup(configDir, logLevel string) {
	a.logs = logging.NewSlogManager()
	a.logs.Setup(logging.Options{Console: a.stderr, Level: "warn"})
	a.logger = a.logs.Logger()

	// defaults are registered even when the file is missing
	configErr := config.Load(configDir)
	if logLevel == "" {
		logLevel = config.GetString("logLevel")
	}

	var err error
	a.logFile, err = logging.OpenLogFile(config.GetString("logsDir"), AppName, a.sessionStart)
	if err != nil {
		a.logger.Warn("Failed to open log file", "error", err)
	}

	// Initialize OTel provider if enabled (after log file is created)
	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		provider, err := intOtel.New(intOtel.Config{
			Enabled:        true,
			ServiceName:    otelCfg.ServiceName,
			BatchTimeout:   otelCfg.BatchTimeout,
			MetricInterval: otelCfg.MetricInterval,
			LogWriter:      a.fileWriter(),
			Endpoint:       otelCfg.Endpoint,
			Insecure:       otelCfg.Insecure,
		})
		if err != nil {
			a.logger.Error("Failed to initialize OTel provider", "error", err)
		} else {
			a.otel = provider
		}
	}

	opts := logging.Options{
		Console: a.stderr,
		File:    a.fileWriter(),
		Level:   logLevel,
	}
	if a.otel != nil {
		opts.Provider = a.otel.LoggerProvider()
	}
	a.logs.Setup(opts)
	a.logger = a.logs.Logger()

	a.dbLogger = zerolog.New(a.fileWriterOrDiscard()).
		With().Timestamp().Str("component", "catalog").Logger().
		Level(zerologLevel(logLevel))

	if configErr != nil {
		a.logger.Info("Using default config", "reason", configErr)
	}
}

// fileWriter returns the log file, or nil so the file handler stays disabled.
func (a *app) fileWriter() io.Writer {
	if a.logFile == nil {
		return nil
	}
	return a.logFile
}

func (a *app) fileWriterOrDiscard() io.Writer {
	if a.logFile == nil {
		return io.Discard
	}
	return a.logFile
}

func zerologLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

func (a *app) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := a.logs.Flush(ctx); err != nil {
		fmt.Fprintln(a.stderr, "failed to flush logs:", err)
	}
	if a.otel != nil {
		if err := a.otel.Shutdown(ctx); err != nil {
			fmt.Fprintln(a.stderr, "failed to shut down OTel:", err)
		}
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
}
