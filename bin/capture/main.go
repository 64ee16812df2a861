package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"screenshot-capturer/internal/capture"
	"screenshot-capturer/internal/config"
	"screenshot-capturer/internal/logging"
	"screenshot-capturer/internal/reaper"
	"screenshot-capturer/internal/storage"
	"screenshot-capturer/internal/telemetry"
	"screenshot-capturer/internal/validate"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Result struct {
	Path       string `json:"path,omitempty"`
	Bytes      int    `json:"bytes,omitempty"`
	DurationMS int64  `json:"durationMs"`
	Error      string `json:"error,omitempty"`
	Kind       string `json:"kind,omitempty"`
}

type args []string

func (a *args) String() string {
	return strings.Join(*a, " ")
}

func (a *args) Set(value string) error {
	*a = append(*a, value)
	return nil
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

// run returns 2 for usage and setup errors and 1 when the capture failed.
func run(arguments []string, stdout io.Writer) int {
	c, err := config.Load(config.Name)
	if err != nil {
		log.Printf("Failed to load configuration: %v", err)
		return 2
	}

	var output string
	var install bool
	var headless bool
	var extraArgs args
	fs := flag.NewFlagSet("capture", flag.ContinueOnError)
	fs.StringVar(&output, "output", "", "Output file; a random name in -directory when empty")
	fs.StringVar(&c.Capture.Directory, "directory", c.Capture.Directory, "Output directory")
	fs.StringVar(&c.Capture.Format, "format", c.Capture.Format, "Output format (png or jpeg)")
	fs.IntVar(&c.Capture.Quality, "quality", c.Capture.Quality, "JPEG quality")
	fs.StringVar(&c.Capture.Backend, "backend", c.Capture.Backend, "Browser backend (playwright or chromedp)")
	fs.DurationVar((*time.Duration)(&c.Capture.PageTimeout), "page-timeout", time.Duration(c.Capture.PageTimeout), "Navigation timeout; the page is captured anyway when it expires")
	fs.DurationVar((*time.Duration)(&c.Capture.ReadyWait), "ready-wait", time.Duration(c.Capture.ReadyWait), "How long to wait for document.readyState")
	fs.DurationVar((*time.Duration)(&c.Capture.SettleDelay), "settle-delay", time.Duration(c.Capture.SettleDelay), "Delay before capturing")
	fs.IntVar(&c.Capture.ViewportWidth, "viewport-width", c.Capture.ViewportWidth, "Viewport width in pixels")
	fs.IntVar(&c.Capture.ViewportHeight, "viewport-height", c.Capture.ViewportHeight, "Viewport height in pixels")
	fs.StringVar(&c.Capture.ChromeDevtoolsProtocolURL, "chrome-devtools-protocol-url", c.Capture.ChromeDevtoolsProtocolURL, "Connect to existing browser via Chrome DevTools Protocol URL (e.g., http://localhost:9222)")
	fs.StringVar(&c.Capture.ChromePath, "chrome-path", c.Capture.ChromePath, "Chrome binary for the chromedp backend")
	fs.BoolVar(&headless, "headless", os.Getenv("DISPLAY") == "", "Run the browser headless")
	fs.BoolVar(&install, "install", false, "Download the playwright browsers and exit")
	fs.Var(&extraArgs, "arg", "Additional browser flag (can be used multiple times, e.g., -arg --lang=ja)")
	if err := fs.Parse(arguments); err != nil {
		return 2
	}

	if install {
		if err := capture.InstallPlaywright(); err != nil {
			log.Printf("Failed to install browsers: %v", err)
			return 1
		}
		return 0
	}

	positional := fs.Args()
	if len(positional) == 0 {
		log.Printf("url not specified")
		return 2
	}
	url := strings.TrimSpace(positional[0])
	if err := validate.URL(url); err != nil {
		log.Printf("%v", err)
		return 2
	}
	if err := c.Validate(); err != nil {
		log.Printf("Invalid configuration: %v", err)
		return 2
	}

	logger, closer, err := logging.New(logging.Config{
		Level: c.LogLevel,
		Debug: c.Debug,
		File:  c.LogFile,
	})
	if err != nil {
		log.Printf("Failed to create logger: %v", err)
		return 2
	}
	defer closer.Close()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.Start(ctx, telemetry.Config{
		ServiceName:       c.Name,
		PyroscopeEndpoint: c.PyroscopeEndpoint,
		Traces:            os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "" || os.Getenv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT") != "",
		Registerer:        prometheus.NewRegistry(),
	})
	if err != nil {
		slog.Error("failed to start telemetry", "error", err)
		return 2
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			slog.Warn("failed to shutdown telemetry", "error", err)
		}
	}()

	launcher, err := capture.NewLauncher(c.Capture.Backend, capture.PlaywrightConfig{
		ChromeDevtoolsProtocolURL: c.Capture.ChromeDevtoolsProtocolURL,
		SkipInstall:               c.Capture.SkipInstall,
	}, capture.ChromedpConfig{
		ExecPath: c.Capture.ChromePath,
	})
	if err != nil {
		slog.Error("failed to create launcher", "error", err)
		return 2
	}

	var r *reaper.Reaper
	if table, err := reaper.NewProcTable(c.Capture.ProcMountPoint); err != nil {
		slog.Warn("orphaned browser processes will not be reaped", "error", err)
	} else {
		r = reaper.New(reaper.Config{Table: table})
	}

	options := c.CaptureOptions()
	options.Headless = headless
	options.ExtraArgs = append(options.ExtraArgs, extraArgs...)

	capturer, err := capture.New(capture.Config{
		Launcher: launcher,
		Reaper:   r,
		Options:  options,
	})
	if err != nil {
		slog.Error("failed to create capturer", "error", err)
		return 2
	}

	if output == "" {
		extension := ".png"
		if c.Capture.Format == "jpeg" {
			extension = ".jpg"
		}
		name, err := storage.UniqueName("screenshot", extension)
		if err != nil {
			slog.Error("failed to generate file name", "error", err)
			return 2
		}
		output = filepath.Join(c.Capture.Directory, name)
	}

	start := time.Now()
	result, err := capturer.Capture(ctx, capture.Request{
		URL:        url,
		OutputPath: output,
	})

	encoder := json.NewEncoder(stdout)
	if err != nil {
		out := Result{
			DurationMS: time.Since(start).Milliseconds(),
			Error:      err.Error(),
		}
		if kind := capture.KindOf(err); kind != 0 {
			out.Kind = kind.String()
		}
		_ = encoder.Encode(out)
		return 1
	}

	if err := encoder.Encode(Result{
		Path:       result.Path,
		Bytes:      result.Bytes,
		DurationMS: result.Duration.Milliseconds(),
	}); err != nil {
		slog.Error("failed to encode result", "error", err)
		return 1
	}
	return 0
}
