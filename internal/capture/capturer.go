package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"screenshot-capturer/internal/reaper"
	"screenshot-capturer/internal/stats"
	"screenshot-capturer/internal/storage"
	"screenshot-capturer/internal/validate"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
)

const instrumentationName = "screenshot-capturer/internal/capture"

// Capturer renders one URL per call in a fresh browser session and writes the
// frame to disk. Concurrent calls are independent: launches are serialized so
// that each capture can tell which browser processes it started, and cleanup
// only touches those.
type Capturer struct {
	launcher  Launcher
	reaper    *reaper.Reaper
	options   Options
	recorder  *stats.Recorder
	launching *semaphore.Weighted

	tracer          trace.Tracer
	captureDuration metric.Int64Histogram
	captures        metric.Int64Counter
}

type Config struct {
	Launcher Launcher
	// Reaper may be nil when orphan cleanup is not possible (no procfs).
	Reaper   *reaper.Reaper
	Options  Options
	Recorder *stats.Recorder
}

func New(c Config) (*Capturer, error) {
	if c.Launcher == nil {
		return nil, fmt.Errorf("launcher is required")
	}

	meter := otel.Meter(instrumentationName)
	captureDuration, err := meter.Int64Histogram("capture_duration_milliseconds")
	if err != nil {
		return nil, fmt.Errorf("failed to create histogram: %w", err)
	}
	captures, err := meter.Int64Counter("captures_total")
	if err != nil {
		return nil, fmt.Errorf("failed to create counter: %w", err)
	}

	return &Capturer{
		launcher:        c.Launcher,
		reaper:          c.Reaper,
		options:         c.Options,
		recorder:        c.Recorder,
		launching:       semaphore.NewWeighted(1),
		tracer:          otel.Tracer(instrumentationName),
		captureDuration: captureDuration,
		captures:        captures,
	}, nil
}

func (c *Capturer) Options() Options {
	return c.options
}

// Capture navigates to request.URL and writes a screenshot to
// request.OutputPath, or to the fallback directory when that location is not
// writable. Navigation and readiness timeouts are not errors. The browser and
// any matching child processes are gone by the time Capture returns.
func (c *Capturer) Capture(ctx context.Context, request Request) (result *Result, err error) {
	id := request.ID
	if !validate.UUID(id) {
		id = uuid.NewString()
	}
	logger := slog.Default().With(slog.String("capture", id), slog.String("url", request.URL))

	ctx, span := c.tracer.Start(ctx, "Capture", trace.WithAttributes(
		attribute.String("capture.id", id),
		attribute.String("capture.url", request.URL),
	))
	defer span.End()

	start := time.Now()
	defer func() {
		elapsed := time.Since(start)
		outcome := "success"
		if err != nil {
			outcome = KindOf(err).String()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		attrs := metric.WithAttributes(attribute.Key("outcome").String(outcome))
		c.captureDuration.Record(ctx, elapsed.Milliseconds(), attrs)
		c.captures.Add(ctx, 1, attrs)
		if err == nil && c.recorder != nil {
			c.recorder.Observe(elapsed)
		}
	}()

	if !strings.HasPrefix(request.URL, "http://") && !strings.HasPrefix(request.URL, "https://") {
		return nil, newError(NavigationFailed, request.URL, fmt.Errorf("unsupported URL %q", request.URL))
	}
	if request.OutputPath == "" {
		return nil, newError(CaptureFailed, request.URL, fmt.Errorf("output path is required"))
	}

	dir, err := storage.EnsureWritableDir(filepath.Dir(request.OutputPath), c.options.FallbackRoot)
	if err != nil {
		return nil, newError(CaptureFailed, request.URL, err)
	}
	if dir != filepath.Dir(request.OutputPath) {
		logger.Warn("writing to fallback directory", "directory", dir)
	}

	logger.Info("launching browser")
	session, spawned, err := c.launch(ctx, logger)
	if err != nil {
		c.reap(logger, spawned, nil)
		return nil, newError(LaunchFailed, request.URL, err)
	}
	span.AddEvent("launched")
	defer c.cleanup(logger, session, spawned)

	data, err := c.render(ctx, logger, span, session, request.URL)
	if err != nil {
		return nil, err
	}

	files, err := storage.NewFileStorage(ctx, storage.FileConfig{Directory: dir})
	if err != nil {
		return nil, newError(CaptureFailed, request.URL, err)
	}
	path, err := files.Put(ctx, filepath.Base(request.OutputPath), data)
	if err != nil {
		return nil, newError(CaptureFailed, request.URL, err)
	}
	logger.Info("screenshot saved", "path", path, "bytes", len(data))

	return &Result{
		Path:     path,
		Bytes:    len(data),
		Duration: time.Since(start),
	}, nil
}

func (c *Capturer) render(ctx context.Context, logger *slog.Logger, span trace.Span, session Session, url string) ([]byte, error) {
	logger.Info("navigating")
	navigateCtx, cancel := context.WithTimeout(ctx, c.options.PageTimeout)
	err := session.Navigate(navigateCtx, url)
	timedOut := errors.Is(navigateCtx.Err(), context.DeadlineExceeded)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return nil, newError(NavigationFailed, url, ctx.Err())
		}
		if !errors.Is(err, ErrTimeout) && !timedOut {
			return nil, newError(NavigationFailed, url, err)
		}
		logger.Warn("navigation timed out, continuing with partially loaded page", "timeout", c.options.PageTimeout)
		span.AddEvent("navigation timeout")
	} else {
		span.AddEvent("navigated")
	}

	state, ready := c.waitReady(ctx, session)
	if ctx.Err() != nil {
		return nil, newError(NavigationFailed, url, ctx.Err())
	}
	if ready {
		logger.Debug("document ready", "readyState", state)
	} else {
		logger.Warn("document not ready, continuing", "readyState", state, "timeout", c.options.ReadyWait)
	}
	span.AddEvent("ready", trace.WithAttributes(attribute.String("readyState", state)))

	if c.options.SettleDelay > 0 {
		timer := time.NewTimer(c.options.SettleDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, newError(CaptureFailed, url, ctx.Err())
		case <-timer.C:
		}
	}

	logger.Info("taking screenshot")
	data, err := session.Screenshot(ctx)
	if err != nil {
		return nil, newError(CaptureFailed, url, err)
	}
	if len(data) == 0 {
		return nil, newError(CaptureFailed, url, fmt.Errorf("empty screenshot"))
	}
	span.AddEvent("captured")
	return data, nil
}

// waitReady polls document.readyState until it is interactive or complete,
// ReadyWait elapses, or ctx is done. Polling errors count as not ready.
func (c *Capturer) waitReady(ctx context.Context, session Session) (string, bool) {
	readyCtx, cancel := context.WithTimeout(ctx, c.options.ReadyWait)
	defer cancel()

	interval := c.options.PollInterval
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var state string
	for {
		s, err := readyState(readyCtx, session)
		if err != nil {
			slog.Debug("failed to read readyState", "error", err)
		} else {
			state = s
			if state == "interactive" || state == "complete" {
				return state, true
			}
		}

		select {
		case <-readyCtx.Done():
			return state, false
		case <-ticker.C:
		}
	}
}

// readyState returns when ctx is done even if the backend call does not. A
// page spinning its main thread can block script evaluation indefinitely; the
// abandoned call ends when the session is closed.
func readyState(ctx context.Context, session Session) (string, error) {
	type result struct {
		state string
		err   error
	}
	done := make(chan result, 1)
	go func() {
		state, err := session.ReadyState(ctx)
		done <- result{state, err}
	}()

	select {
	case r := <-done:
		return r.state, r.err
	case <-ctx.Done():
		return "", errors.Join(ErrTimeout, ctx.Err())
	}
}

// launch starts a session and reports the browser processes that appeared
// below this process while it did. Launches hold c.launching so that no other
// capture's browser can show up in that window.
func (c *Capturer) launch(ctx context.Context, logger *slog.Logger) (Session, []reaper.Process, error) {
	if c.reaper == nil {
		session, err := c.launcher.Launch(ctx, c.options)
		return session, nil, err
	}

	if err := c.launching.Acquire(ctx, 1); err != nil {
		return nil, nil, err
	}
	defer c.launching.Release(1)

	root := os.Getpid()
	before, listErr := c.reaper.Matching(root, c.options.ProcessNames)
	if listErr != nil {
		logger.Warn("failed to list processes before launch, browser processes will not be reaped", "error", listErr)
	}

	session, err := c.launcher.Launch(ctx, c.options)
	if listErr != nil {
		return session, nil, err
	}
	spawned, listErr := c.reaper.Spawned(root, c.options.ProcessNames, reaper.PIDs(before))
	if listErr != nil {
		logger.Warn("failed to list processes after launch, browser processes will not be reaped", "error", listErr)
	}
	return session, spawned, err
}

// cleanup never fails the capture; errors are logged only.
func (c *Capturer) cleanup(logger *slog.Logger, session Session, spawned []reaper.Process) {
	roots := spawned
	if owner, ok := session.(processOwner); ok && owner.PID() > 0 {
		roots = []reaper.Process{{PID: owner.PID()}}
	}

	var tracked []reaper.Process
	if c.reaper != nil && len(roots) > 0 {
		// remembered before close so that helpers reparented away from
		// their browser are still found afterwards
		var err error
		tracked, err = c.reaper.Trees(roots, c.options.ProcessNames)
		if err != nil {
			logger.Warn("failed to list browser processes", "error", err)
		}
	}

	logger.Info("closing browser")
	if err := session.Close(); err != nil {
		logger.Warn("failed to close browser", "error", err)
	}

	c.reap(logger, roots, tracked)
}

func (c *Capturer) reap(logger *slog.Logger, roots []reaper.Process, tracked []reaper.Process) {
	if c.reaper == nil || len(roots)+len(tracked) == 0 {
		return
	}
	killed, err := c.reaper.Reap(roots, c.options.ProcessNames, tracked...)
	if err != nil {
		logger.Warn("failed to reap browser processes", "error", err)
	}
	if len(killed) > 0 {
		logger.Info("killed orphaned browser processes", "count", len(killed))
	}
}
