package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

type PlaywrightConfig struct {
	// ChromeDevtoolsProtocolURL connects to an already running browser
	// instead of launching one. Cleanup then only closes the page.
	ChromeDevtoolsProtocolURL string
	// SkipInstall leaves browser download to the image build.
	SkipInstall bool
}

type playwrightLauncher struct {
	config PlaywrightConfig
}

func NewPlaywrightLauncher(p PlaywrightConfig) Launcher {
	return &playwrightLauncher{
		config: p,
	}
}

// InstallPlaywright downloads the chromium build playwright drives.
func InstallPlaywright() error {
	if err := playwright.Install(&playwright.RunOptions{
		Browsers: []string{"chromium"},
	}); err != nil {
		return fmt.Errorf("failed to install playwright browsers: %w", err)
	}
	return nil
}

type playwrightSession struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	page    playwright.Page
	options Options

	done      chan struct{}
	closeOnce sync.Once
	owned     bool
}

func (l *playwrightLauncher) Launch(ctx context.Context, o Options) (Session, error) {
	p, err := playwright.Run(&playwright.RunOptions{
		SkipInstallBrowsers: l.config.SkipInstall,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	s := &playwrightSession{
		pw:      p,
		options: o,
		done:    make(chan struct{}),
	}

	if l.config.ChromeDevtoolsProtocolURL == "" {
		s.browser, err = p.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
			Headless:        playwright.Bool(o.Headless),
			ChromiumSandbox: playwright.Bool(false),
			Args:            o.LaunchArgs(),
		})
		if err != nil {
			_ = p.Stop()
			return nil, fmt.Errorf("failed to launch browser: %w", err)
		}
		s.owned = true
	} else {
		s.browser, err = p.Chromium.ConnectOverCDP(l.config.ChromeDevtoolsProtocolURL)
		if err != nil {
			_ = p.Stop()
			return nil, fmt.Errorf("failed to connect to browser via CDP at %s: %w", l.config.ChromeDevtoolsProtocolURL, err)
		}
	}

	s.page, err = s.browser.NewPage()
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to create new page: %w", err)
	}

	if err := s.page.SetViewportSize(o.ViewportWidth, o.ViewportHeight); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to set viewport size: %w", err)
	}

	go func() {
		select {
		case <-ctx.Done():
			_ = s.page.Close()
		case <-s.done:
		}
	}()

	return s, nil
}

func (s *playwrightSession) Navigate(ctx context.Context, url string) error {
	options := playwright.PageGotoOptions{
		// return as soon as the response is committed; readiness is polled separately
		WaitUntil: playwright.WaitUntilStateCommit,
	}
	if deadline, ok := ctx.Deadline(); ok {
		options.Timeout = playwright.Float(float64(max(time.Until(deadline), time.Millisecond).Milliseconds()))
	}

	if _, err := s.page.Goto(url, options); err != nil {
		if errors.Is(err, playwright.ErrTimeout) {
			return fmt.Errorf("failed to navigate to %s: %w", url, errors.Join(ErrTimeout, err))
		}
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

func (s *playwrightSession) ReadyState(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	v, err := s.page.Evaluate("() => document.readyState")
	if err != nil {
		return "", fmt.Errorf("failed to evaluate readyState: %w", err)
	}
	state, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("unexpected readyState %v", v)
	}
	return state, nil
}

func (s *playwrightSession) Screenshot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	options := playwright.PageScreenshotOptions{
		Timeout: playwright.Float(float64(s.options.PageTimeout.Milliseconds())),
	}
	switch s.options.Format {
	case "jpeg":
		options.Type = playwright.ScreenshotTypeJpeg
		if s.options.Quality > 0 {
			options.Quality = playwright.Int(s.options.Quality)
		}
	default:
		options.Type = playwright.ScreenshotTypePng
	}

	data, err := s.page.Screenshot(options)
	if err != nil {
		return nil, fmt.Errorf("failed to take screenshot: %w", err)
	}
	return data, nil
}

// Close tears down page, browser and driver in that order and reports every
// failure.
func (s *playwrightSession) Close() error {
	var errs []error
	s.closeOnce.Do(func() {
		close(s.done)
		if s.page != nil {
			if err := s.page.Close(); err != nil && !errors.Is(err, playwright.ErrTargetClosed) {
				errs = append(errs, fmt.Errorf("failed to close page: %w", err))
			}
		}
		if s.browser != nil && s.owned {
			if err := s.browser.Close(); err != nil && !errors.Is(err, playwright.ErrTargetClosed) {
				errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
			}
		}
		if err := s.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
	})
	return errors.Join(errs...)
}
