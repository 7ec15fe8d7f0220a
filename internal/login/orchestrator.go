// Package login signs a browser page into the application under test, either
// through the login form or by requesting a token from the API and seeding
// client storage with it.
package login

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kuitang/e2eauth/internal/artifacts"
	"github.com/kuitang/e2eauth/internal/browser"
	"github.com/kuitang/e2eauth/internal/config"
	"github.com/kuitang/e2eauth/internal/logutil"
	"github.com/kuitang/e2eauth/internal/obs"
	"github.com/kuitang/e2eauth/internal/ratelimit"
)

// LoginPath is the API endpoint that exchanges credentials for a token.
const LoginPath = "/api/v1/auth/login"

// Client storage keys holding the session token. Both are written; either
// one being set counts as a session.
const (
	AuthTokenKey = "auth_token"
	TokenKey     = "token"
)

var StorageKeys = []string{AuthTokenKey, TokenKey}

// Credentials identify the test account.
type Credentials struct {
	Username string
	Password string
}

// IsZero reports whether neither field is set.
func (c Credentials) IsZero() bool {
	return c.Username == "" && c.Password == ""
}

// Options configure an Orchestrator. Empty URLs come from API_BASE_URL and
// BASE_URL, else the local defaults; zero durations fall back to the
// defaults in config.
type Options struct {
	APIBaseURL  string
	SiteURL     string
	Credentials Credentials

	ElementTimeout     time.Duration
	NavigationTimeout  time.Duration
	NetworkIdleTimeout time.Duration

	// HTTPClient sends the token request. Defaults to an access-logged client.
	HTTPClient *http.Client

	// Artifacts receives a screenshot when EnsureSession gives up. Optional.
	Artifacts artifacts.Store

	// Throttle paces token requests and form submits per username. Optional;
	// the caller owns it.
	Throttle *ratelimit.Limiter

	// Strategies overrides the default [api, form] order.
	Strategies []Strategy
}

// Orchestrator runs the login flows against one application.
type Orchestrator struct {
	apiBaseURL  string
	siteURL     string
	credentials Credentials

	elementTimeout     time.Duration
	navigationTimeout  time.Duration
	networkIdleTimeout time.Duration

	httpClient *http.Client
	artifacts  artifacts.Store
	strategies []Strategy

	throttle     *ratelimit.Limiter
	ownsThrottle bool
}

// New builds an Orchestrator, filling unset options with defaults.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		apiBaseURL:         opts.APIBaseURL,
		siteURL:            opts.SiteURL,
		credentials:        opts.Credentials,
		elementTimeout:     opts.ElementTimeout,
		navigationTimeout:  opts.NavigationTimeout,
		networkIdleTimeout: opts.NetworkIdleTimeout,
		httpClient:         opts.HTTPClient,
		artifacts:          opts.Artifacts,
		throttle:           opts.Throttle,
	}
	if o.apiBaseURL == "" {
		o.apiBaseURL = config.APIBaseURLFromEnv()
	}
	if o.siteURL == "" {
		o.siteURL = config.BaseURLFromEnv()
	}
	if o.credentials.IsZero() {
		o.credentials = Credentials{Username: config.DefaultUsername, Password: config.DefaultPassword}
	}
	if o.elementTimeout <= 0 {
		o.elementTimeout = 5 * time.Second
	}
	if o.navigationTimeout <= 0 {
		o.navigationTimeout = 10 * time.Second
	}
	if o.networkIdleTimeout <= 0 {
		o.networkIdleTimeout = 10 * time.Second
	}
	if o.httpClient == nil {
		o.httpClient = obs.NewHTTPClient("login", 30*time.Second)
	}

	o.strategies = opts.Strategies
	if o.strategies == nil {
		o.strategies = o.DefaultStrategies()
	}
	return o
}

// NewFromConfig builds an Orchestrator from loaded configuration. When login
// pacing is enabled it owns a throttle, released by Close.
func NewFromConfig(cfg *config.Config, store artifacts.Store) *Orchestrator {
	var throttle *ratelimit.Limiter
	if cfg.LoginRPS > 0 {
		throttle = ratelimit.New(ratelimit.Config{
			RPS:             cfg.LoginRPS,
			Burst:           cfg.LoginBurst,
			CleanupInterval: ratelimit.DefaultConfig.CleanupInterval,
		})
	}
	o := New(Options{
		APIBaseURL:         cfg.APIBaseURL,
		SiteURL:            cfg.BaseURL,
		Credentials:        Credentials{Username: cfg.Username, Password: cfg.Password},
		ElementTimeout:     cfg.ElementTimeout,
		NavigationTimeout:  cfg.NavigationTimeout,
		NetworkIdleTimeout: cfg.NetworkIdleTimeout,
		HTTPClient:         obs.NewHTTPClient("login", cfg.HTTPTimeout),
		Artifacts:          store,
		Throttle:           throttle,
	})
	o.ownsThrottle = throttle != nil
	return o
}

// Close releases the throttle if the orchestrator created it.
func (o *Orchestrator) Close() {
	if o.ownsThrottle {
		o.throttle.Stop()
	}
}

// pace blocks until the throttle admits another attempt for username.
func (o *Orchestrator) pace(ctx context.Context, username string) error {
	if o.throttle == nil {
		return nil
	}
	start := time.Now()
	if err := o.throttle.Wait(ctx, username); err != nil {
		return err
	}
	if waited := time.Since(start); waited >= 10*time.Millisecond {
		o.logger(ctx).Debug("login_paced", "username", username, "waited_ms", waited.Milliseconds())
	}
	return nil
}

// Credentials returns the account used when a call passes zero Credentials.
func (o *Orchestrator) Credentials() Credentials { return o.credentials }

func (o *Orchestrator) resolve(creds Credentials) Credentials {
	if creds.IsZero() {
		return o.credentials
	}
	return creds
}

// IsLoginURL reports whether rawURL points at the login page.
func IsLoginURL(rawURL string) bool {
	return strings.Contains(rawURL, "/login")
}

// CheckSession reports whether page looks signed in: it is not on the login
// page and at least one token key holds a non-empty value. A storage read
// failure counts as signed out.
func CheckSession(page browser.Page) bool {
	current := page.URL()
	if IsLoginURL(current) {
		return false
	}
	values, err := browser.ReadStorage(page, StorageKeys)
	if err != nil {
		obs.Pkg("login").Warn("session_check_failed", "url", current, "error", err)
		return false
	}
	for _, key := range StorageKeys {
		if values[key] != "" {
			return true
		}
	}
	return false
}

// EnsureSession signs page in unless CheckSession already reports a session.
// Strategies run in order until one leaves a verified session. When all of
// them fail the result is an *AggregateAuthenticationError.
func (o *Orchestrator) EnsureSession(ctx context.Context, page browser.Page) error {
	if obs.CorrelationFromContext(ctx).RunID == "" {
		ctx = obs.WithRun(ctx, "")
	}
	log := o.logger(ctx)

	if CheckSession(page) {
		log.Debug("session_present", "url", page.URL())
		return nil
	}

	start := time.Now()
	err := RunStrategies(ctx, page, o.strategies)
	if err != nil {
		log.Error("ensure_session_failed", "dur_ms", time.Since(start).Milliseconds(), "error", err)
		o.saveFailureScreenshot(ctx, page)
		return err
	}
	log.Info("ensure_session_ok", "dur_ms", time.Since(start).Milliseconds())
	return nil
}

// saveFailureScreenshot is best-effort; problems are logged.
func (o *Orchestrator) saveFailureScreenshot(ctx context.Context, page browser.Page) {
	if o.artifacts == nil {
		return
	}
	log := o.logger(ctx)
	png, err := page.Screenshot()
	if err != nil {
		log.Warn("failure_screenshot_failed", "error", err)
		return
	}
	key := artifacts.FailureScreenshotKey(obs.RunIDFromContext(ctx))
	if err := o.artifacts.Put(context.WithoutCancel(ctx), key, png, "image/png"); err != nil {
		log.Warn("failure_screenshot_failed", "key", key, "error", err)
		return
	}
	log.Info("failure_screenshot_saved", "key", key, "bytes", len(png))
}

func (o *Orchestrator) logger(ctx context.Context) *slog.Logger {
	return obs.From(ctx).With("pkg", "login")
}

// logWait records the outcome of a soft wait. Timeouts and driver errors are
// both logged and swallowed.
func logWait(log *slog.Logger, step string, res browser.WaitResult, err error) {
	switch {
	case err != nil:
		log.Warn("soft_wait_failed", "step", step, "result", res.String(), "error", err)
	case res == browser.TimedOut:
		log.Warn("soft_wait_timed_out", "step", step)
	default:
		log.Debug("soft_wait_completed", "step", step)
	}
}

func logStorageWritten(log *slog.Logger, entries map[string]string) {
	log.Debug("storage_written", "entries", logutil.FormatStorageForLog(entries))
}
