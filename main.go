package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"screenshot-capturer/internal/capture"
	"screenshot-capturer/internal/config"
	"screenshot-capturer/internal/logging"
	"screenshot-capturer/internal/reaper"
	"screenshot-capturer/internal/routes"
	"screenshot-capturer/internal/runnable"
	"screenshot-capturer/internal/stats"
	"screenshot-capturer/internal/storage"
	"screenshot-capturer/internal/telemetry"
	"syscall"
	"time"
)

func main() {
	c, err := config.Load(config.Name)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	flag.StringVar(&c.Address, "address", c.Address, "The address the server binds to.")
	flag.BoolVar(&c.Debug, "debug", c.Debug, "Human readable logs and pprof endpoints")
	flag.StringVar(&c.Capture.Backend, "backend", c.Capture.Backend, "Browser backend (playwright or chromedp)")
	flag.StringVar(&c.Capture.Directory, "screenshot-dir", c.Capture.Directory, "Directory screenshots are written to")
	flag.Int64Var(&c.MaxConcurrentCaptures, "max-concurrent-captures", c.MaxConcurrentCaptures, "Captures allowed to run at the same time")
	flag.Parse()

	if err := c.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger, closer, err := logging.New(logging.Config{
		Level: c.LogLevel,
		Debug: c.Debug,
		File:  c.LogFile,
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer closer.Close()
	slog.SetDefault(logger)

	if err := run(c, logger); err != nil {
		logger.Error("server stopped", "error", err)
		_ = closer.Close()
		os.Exit(1)
	}
}

func run(c config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.Start(ctx, telemetry.Config{
		ServiceName:       c.Name,
		PyroscopeEndpoint: c.PyroscopeEndpoint,
		Traces:            true,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(c.TerminationGracePeriod))
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn("failed to shutdown telemetry", "error", err)
		}
	}()

	launcher, err := capture.NewLauncher(c.Capture.Backend, capture.PlaywrightConfig{
		ChromeDevtoolsProtocolURL: c.Capture.ChromeDevtoolsProtocolURL,
		SkipInstall:               c.Capture.SkipInstall,
	}, capture.ChromedpConfig{
		ExecPath: c.Capture.ChromePath,
	})
	if err != nil {
		return err
	}

	var r *reaper.Reaper
	if table, err := reaper.NewProcTable(c.Capture.ProcMountPoint); err != nil {
		logger.Warn("orphaned browser processes will not be reaped", "error", err)
	} else {
		r = reaper.New(reaper.Config{Table: table})
	}

	recorder := stats.NewRecorder(256)
	options := c.CaptureOptions()
	capturer, err := capture.New(capture.Config{
		Launcher: launcher,
		Reaper:   r,
		Options:  options,
		Recorder: recorder,
	})
	if err != nil {
		return err
	}

	var publisher storage.Storage
	if c.S3.Bucket != "" {
		publisher, err = storage.NewS3Storage(ctx, storage.S3Config{
			Bucket:      c.S3.Bucket,
			Prefix:      c.S3.Prefix,
			EndpointURL: c.S3.EndpointURL,
			RetryOn:     c.S3.RetryOn,
		})
		if err != nil {
			return err
		}
	}

	handler := routes.NewMux(routes.Config{
		Logger:                           logger,
		HTTPRequestsDurationMicroSeconds: tel.HTTPRequestsDurationMicroSeconds,
		Screenshots: routes.NewScreenshots(routes.ScreenshotsConfig{
			Capturer:      capturer,
			Directory:     c.Capture.Directory,
			FallbackRoot:  options.FallbackRoot,
			Format:        c.Capture.Format,
			MaxConcurrent: c.MaxConcurrentCaptures,
			Publisher:     publisher,
		}),
		Recorder: recorder,
		Debug:    c.Debug,
	})

	logger.Info("starting server", "app", c.Name, "env", c.Environment, "backend", c.Capture.Backend)
	return runnable.NewServer(runnable.Config{
		Address:                c.Address,
		TerminationGracePeriod: time.Duration(c.TerminationGracePeriod),
		Lameduck:               time.Duration(c.Lameduck),
		KeepAlive:              c.KeepAlive,
		MaxConnections:         c.MaxConnections,
		Handler:                handler,
		Logger:                 logger,
	}).Start(ctx)
}
