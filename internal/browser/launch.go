package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/e2eauth/internal/config"
	"github.com/kuitang/e2eauth/internal/obs"
)

// LaunchOptions selects and configures a driver.
type LaunchOptions struct {
	Driver         string // config.DriverPlaywright or config.DriverRod
	Headless       bool
	DefaultTimeout time.Duration
}

// Session owns a running browser.
type Session struct {
	driver  string
	timeout time.Duration

	pw        *playwright.Playwright
	pwBrowser playwright.Browser

	rodLauncher *launcher.Launcher
	rodBrowser  *rod.Browser
}

// Launch starts a Chromium browser with the requested driver.
func Launch(ctx context.Context, opts LaunchOptions) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = 10 * time.Second
	}
	log := obs.From(obs.WithDriver(ctx, opts.Driver))

	var (
		s   *Session
		err error
	)
	switch opts.Driver {
	case config.DriverPlaywright, "":
		s, err = launchPlaywright(opts)
	case config.DriverRod:
		s, err = launchRod(ctx, opts)
	default:
		return nil, fmt.Errorf("unknown browser driver %q", opts.Driver)
	}
	if err != nil {
		log.Error("browser_launch_failed", "headless", opts.Headless, "error", err)
		return nil, err
	}
	log.Info("browser_launched", "headless", opts.Headless)
	return s, nil
}

func launchPlaywright(opts LaunchOptions) (*Session, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}
	b, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("launch chromium: %w", err)
	}
	return &Session{
		driver:    config.DriverPlaywright,
		timeout:   opts.DefaultTimeout,
		pw:        pw,
		pwBrowser: b,
	}, nil
}

func launchRod(ctx context.Context, opts LaunchOptions) (*Session, error) {
	l := launcher.New().
		Headless(opts.Headless).
		Set("no-sandbox").
		Set("disable-gpu")

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch chrome: %w", err)
	}
	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}
	return &Session{
		driver:      config.DriverRod,
		timeout:     opts.DefaultTimeout,
		rodLauncher: l,
		rodBrowser:  b,
	}, nil
}

// Driver reports which driver the session runs.
func (s *Session) Driver() string { return s.driver }

// NewPage opens a blank tab.
func (s *Session) NewPage() (Page, error) {
	switch {
	case s.pwBrowser != nil:
		page, err := s.pwBrowser.NewPage()
		if err != nil {
			return nil, fmt.Errorf("new page: %w", err)
		}
		page.SetDefaultTimeout(ms(s.timeout))
		page.SetDefaultNavigationTimeout(ms(s.timeout))
		return NewPlaywrightPage(page), nil
	case s.rodBrowser != nil:
		page, err := s.rodBrowser.Page(proto.TargetCreateTarget{URL: "about:blank"})
		if err != nil {
			return nil, fmt.Errorf("new page: %w", err)
		}
		return NewRodPage(page), nil
	default:
		return nil, ErrClosed
	}
}

// Close shuts the browser down. It is safe to call more than once.
func (s *Session) Close() error {
	var errs []error
	if s.pwBrowser != nil {
		errs = append(errs, s.pwBrowser.Close())
		s.pwBrowser = nil
	}
	if s.pw != nil {
		errs = append(errs, s.pw.Stop())
		s.pw = nil
	}
	if s.rodBrowser != nil {
		errs = append(errs, s.rodBrowser.Close())
		s.rodBrowser = nil
	}
	if s.rodLauncher != nil {
		s.rodLauncher.Cleanup()
		s.rodLauncher = nil
	}
	return errors.Join(errs...)
}
