package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

type ChromedpConfig struct {
	// ExecPath is the Chrome binary; chromedp searches PATH when empty.
	ExecPath string
}

type chromedpLauncher struct {
	config ChromedpConfig
}

func NewChromedpLauncher(c ChromedpConfig) Launcher {
	return &chromedpLauncher{
		config: c,
	}
}

type chromedpSession struct {
	browserCtx    context.Context
	cancelBrowser context.CancelFunc
	cancelAlloc   context.CancelFunc
	options       Options
	pid           int
}

func (l *chromedpLauncher) Launch(ctx context.Context, o Options) (Session, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.WindowSize(o.ViewportWidth, o.ViewportHeight),
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("headless", o.Headless),
	)
	for _, arg := range o.LaunchArgs() {
		name, value, hasValue := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		if hasValue {
			opts = append(opts, chromedp.Flag(name, value))
		} else {
			opts = append(opts, chromedp.Flag(name, true))
		}
	}
	if l.config.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.config.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(format string, args ...any) {
		slog.Debug(fmt.Sprintf(format, args...))
	}))

	// the first Run starts the browser
	if err := chromedp.Run(browserCtx,
		emulation.SetDeviceMetricsOverride(int64(o.ViewportWidth), int64(o.ViewportHeight), 1, false),
	); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, fmt.Errorf("failed to start chrome: %w", err)
	}

	s := &chromedpSession{
		browserCtx:    browserCtx,
		cancelBrowser: cancelBrowser,
		cancelAlloc:   cancelAlloc,
		options:       o,
	}
	if c := chromedp.FromContext(browserCtx); c != nil && c.Browser != nil {
		if p := c.Browser.Process(); p != nil {
			s.pid = p.Pid
		}
	}
	return s, nil
}

func (s *chromedpSession) PID() int {
	return s.pid
}

// bind derives a chromedp context from the session that is cancelled with ctx.
// Cancelling it stops the running action without closing the tab.
func (s *chromedpSession) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithCancel(s.browserCtx)
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

func (s *chromedpSession) Navigate(ctx context.Context, url string) error {
	runCtx, cancel := s.bind(ctx)
	defer cancel()

	// page.Navigate returns once the navigation is committed; it does not
	// wait for the load event the way chromedp.Navigate does.
	err := chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, _, errorText, _, err := page.Navigate(url).Do(ctx)
		if err != nil {
			return err
		}
		if errorText != "" {
			return errors.New(errorText)
		}
		return nil
	}))
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("failed to navigate to %s: %w", url, errors.Join(ErrTimeout, err))
		}
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

func (s *chromedpSession) ReadyState(ctx context.Context) (string, error) {
	runCtx, cancel := s.bind(ctx)
	defer cancel()

	var state string
	if err := chromedp.Run(runCtx, chromedp.Evaluate(`document.readyState`, &state)); err != nil {
		return "", fmt.Errorf("failed to evaluate readyState: %w", err)
	}
	return state, nil
}

func (s *chromedpSession) Screenshot(ctx context.Context) ([]byte, error) {
	runCtx, cancel := s.bind(ctx)
	defer cancel()

	format := page.CaptureScreenshotFormatPng
	if s.options.Format == "jpeg" {
		format = page.CaptureScreenshotFormatJpeg
	}

	var data []byte
	if err := chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		params := page.CaptureScreenshot().WithFormat(format)
		if format == page.CaptureScreenshotFormatJpeg && s.options.Quality > 0 {
			params = params.WithQuality(int64(s.options.Quality))
		}
		var err error
		data, err = params.Do(ctx)
		return err
	})); err != nil {
		return nil, fmt.Errorf("failed to take screenshot: %w", err)
	}
	return data, nil
}

// Close asks chrome to exit, then cancels the allocator, which kills the
// process if it is still running and removes the temporary profile.
func (s *chromedpSession) Close() error {
	err := chromedp.Cancel(s.browserCtx)
	s.cancelBrowser()
	s.cancelAlloc()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to close chrome: %w", err)
	}
	return nil
}
