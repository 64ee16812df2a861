package capture

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type Request struct {
	URL        string
	OutputPath string
	// ID names the capture in logs and traces. A random v4 UUID is used
	// unless ID is one.
	ID string
}

type Result struct {
	Path     string
	Bytes    int
	Duration time.Duration
}

// Session is one headless browser process owned by a single capture.
type Session interface {
	// Navigate starts loading url and returns once the navigation is committed,
	// ctx is done, or the backend gives up.
	Navigate(ctx context.Context, url string) error
	// ReadyState reports document.readyState of the current page.
	ReadyState(ctx context.Context) (string, error)
	Screenshot(ctx context.Context) ([]byte, error)
	Close() error
}

type Launcher interface {
	Launch(ctx context.Context, options Options) (Session, error)
}

// Sessions that know the PID of their browser process implement this so
// cleanup only walks that subtree.
type processOwner interface {
	PID() int
}

// ErrTimeout is wrapped by backends when a bounded wait expired.
var ErrTimeout = errors.New("timeout")

type Options struct {
	PageTimeout  time.Duration
	ReadyWait    time.Duration
	SettleDelay  time.Duration
	PollInterval time.Duration

	ViewportWidth  int
	ViewportHeight int

	Format  string
	Quality int

	Headless  bool
	ExtraArgs []string

	// ProcessNames are matched case-insensitively as substrings of process
	// names during cleanup.
	ProcessNames []string

	// FallbackRoot is the parent of the per-user directory used when the
	// requested output directory is not writable.
	FallbackRoot string
}

func DefaultOptions() Options {
	return Options{
		PageTimeout:    30 * time.Second,
		ReadyWait:      30 * time.Second,
		SettleDelay:    2 * time.Second,
		PollInterval:   250 * time.Millisecond,
		ViewportWidth:  1920,
		ViewportHeight: 1080,
		Format:         "png",
		Quality:        85,
		Headless:       true,
		ProcessNames:   []string{"chrome", "chromium", "headless_shell"},
	}
}

// LaunchArgs are the chromium flags every backend starts the browser with.
func (o Options) LaunchArgs() []string {
	args := []string{
		"--no-sandbox",
		"--disable-setuid-sandbox",
		"--disable-gpu",
		"--disable-software-rasterizer",
		"--disable-dev-shm-usage",
		"--disable-extensions",
		"--disable-infobars",
		"--disable-breakpad",
		"--disable-crash-reporter",
		"--ignore-certificate-errors",
		"--memory-pressure-off",
		fmt.Sprintf("--window-size=%d,%d", o.ViewportWidth, o.ViewportHeight),
	}
	return append(args, o.ExtraArgs...)
}

// NewLauncher picks a backend by name: "playwright" or "chromedp".
func NewLauncher(backend string, p PlaywrightConfig, c ChromedpConfig) (Launcher, error) {
	switch backend {
	case "", "playwright":
		return NewPlaywrightLauncher(p), nil
	case "chromedp":
		return NewChromedpLauncher(c), nil
	default:
		return nil, fmt.Errorf("unknown capture backend %q", backend)
	}
}
