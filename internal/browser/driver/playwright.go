package driver

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/babelcloud/voicepilot/config"
	"github.com/babelcloud/voicepilot/pkg/logger"
)

const (
	connectAttempts   = 3
	connectRetryDelay = 2 * time.Second
	releaseTimeout    = 10 * time.Second
)

// PlaywrightEngine opens sessions as isolated contexts of one shared local
// Chromium, or over CDP connections to a remote browser.
type PlaywrightEngine struct {
	cfg     config.BrowserConfig
	log     *logger.Logger
	pw      *playwright.Playwright
	connect func(endpoint string) (playwright.Browser, error)
	hosted  *browserbaseClient
	mu      sync.Mutex
	shared  playwright.Browser
}

// NewPlaywrightEngine starts the playwright driver, installing browsers first when install is set.
func NewPlaywrightEngine(cfg config.BrowserConfig, log *logger.Logger, install bool) (*PlaywrightEngine, error) {
	opts := &playwright.RunOptions{
		Browsers: []string{"chromium"},
		Verbose:  false,
		Stdout:   io.Discard,
		Stderr:   io.Discard,
	}
	if install {
		if err := playwright.Install(opts); err != nil {
			return nil, fmt.Errorf("failed to install playwright: %w", err)
		}
	}
	pw, err := playwright.Run(opts)
	if err != nil {
		return nil, fmt.Errorf("could not start playwright: %w", err)
	}
	e := &PlaywrightEngine{cfg: cfg, log: log, pw: pw}
	timeout := float64(cfg.DefaultTimeout.Milliseconds())
	e.connect = func(endpoint string) (playwright.Browser, error) {
		return pw.Chromium.ConnectOverCDP(endpoint, playwright.BrowserTypeConnectOverCDPOptions{Timeout: &timeout})
	}
	if cfg.HostedSessions() {
		e.hosted = newBrowserbaseClient(cfg.BrowserbaseURL, cfg.BrowserbaseAPIKey, cfg.BrowserbaseProjectID, nil)
	}
	return e, nil
}

func (e *PlaywrightEngine) Name() string { return "playwright" }

// remoteTarget is where a session's CDP connection goes. A dedicated target
// is a browser that serves this session alone.
type remoteTarget struct {
	endpoint  string
	dedicated bool
	liveView  string
	release   func() error
}

// Open creates the page for one session.
func (e *PlaywrightEngine) Open(ctx context.Context, sessionID string) (Driver, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.hosted != nil || e.cfg.RemoteEndpoint() != "" {
		target, err := e.resolveTarget(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		d, err := e.openRemote(ctx, sessionID, target)
		if err != nil && target.release != nil {
			if rerr := target.release(); rerr != nil {
				e.log.Warn("Failed to release hosted browser for session %s: %v", sessionID, rerr)
			}
		}
		return d, err
	}

	browser, err := e.sharedBrowser()
	if err != nil {
		return nil, err
	}
	bctx, page, _, err := e.sessionPage(browser, false)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, err)
	}
	return newPlaywrightDriver(page, e.cfg.DefaultTimeout, playwrightHandles{context: bctx}), nil
}

// resolveTarget picks the CDP endpoint for a session, creating a hosted
// Browserbase session when the API is configured.
func (e *PlaywrightEngine) resolveTarget(ctx context.Context, sessionID string) (remoteTarget, error) {
	if e.hosted == nil {
		// A configured endpoint may be shared by every session; the legacy
		// Browserbase connect url hands out a fresh browser per connection.
		return remoteTarget{endpoint: e.cfg.RemoteEndpoint(), dedicated: e.cfg.Endpoint == ""}, nil
	}
	s, err := e.hosted.create(ctx)
	if err != nil {
		return remoteTarget{}, fmt.Errorf("create hosted browser for session %s: %w", sessionID, err)
	}
	t := remoteTarget{
		endpoint:  s.ConnectURL,
		dedicated: true,
		release: func() error {
			rctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
			defer cancel()
			return e.hosted.release(rctx, s.ID)
		},
	}
	if t.liveView, err = e.hosted.liveView(ctx, s.ID); err != nil {
		e.log.Warn("No live view for session %s: %v", sessionID, err)
	}
	e.log.Info("Created hosted browser %s for session %s", s.ID, sessionID)
	return t, nil
}

// sharedBrowser launches the local browser on first use and relaunches it after a crash.
func (e *PlaywrightEngine) sharedBrowser() (playwright.Browser, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.shared != nil && e.shared.IsConnected() {
		return e.shared, nil
	}
	headless := e.cfg.Headless
	browser, err := e.pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{Headless: &headless})
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	e.log.Info("Launched local Chromium (headless: %v)", headless)
	e.shared = browser
	return browser, nil
}

// sessionPage returns the context and page a session drives. Only a
// dedicated browser's default context and page are reused; otherwise the
// session gets a context of its own, reported as owned.
func (e *PlaywrightEngine) sessionPage(browser playwright.Browser, dedicated bool) (playwright.BrowserContext, playwright.Page, bool, error) {
	if dedicated {
		if contexts := browser.Contexts(); len(contexts) > 0 {
			bctx := contexts[0]
			if pages := bctx.Pages(); len(pages) > 0 {
				return bctx, pages[0], false, nil
			}
			page, err := bctx.NewPage()
			if err != nil {
				return nil, nil, false, fmt.Errorf("failed to create page: %w", err)
			}
			return bctx, page, false, nil
		}
	}
	bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{Width: e.cfg.ViewportWidth, Height: e.cfg.ViewportHeight},
	})
	if err != nil {
		return nil, nil, false, fmt.Errorf("failed to create context: %w", err)
	}
	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		return nil, nil, false, fmt.Errorf("failed to create page: %w", err)
	}
	return bctx, page, true, nil
}

func (e *PlaywrightEngine) openRemote(ctx context.Context, sessionID string, target remoteTarget) (Driver, error) {
	var (
		browser    playwright.Browser
		connectErr error
	)
	for attempt := 0; attempt < connectAttempts; attempt++ {
		browser, connectErr = e.connect(target.endpoint)
		if connectErr == nil {
			break
		}
		if !retryableConnectError(connectErr) || attempt == connectAttempts-1 {
			break
		}
		e.log.Warn("Connect attempt %d/%d for session %s failed: %v. Retrying in %v...",
			attempt+1, connectAttempts, sessionID, connectErr, connectRetryDelay)
		select {
		case <-time.After(connectRetryDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if connectErr != nil {
		return nil, fmt.Errorf("failed to connect to remote browser for session %s: %w", sessionID, connectErr)
	}

	bctx, page, owned, err := e.sessionPage(browser, target.dedicated)
	if err != nil {
		_ = browser.Close()
		return nil, fmt.Errorf("remote session %s: %w", sessionID, err)
	}
	h := playwrightHandles{conn: browser, release: target.release, liveView: target.liveView}
	if owned {
		h.context = bctx
	}
	return newPlaywrightDriver(page, e.cfg.DefaultTimeout, h), nil
}

func retryableConnectError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "socket hang up") ||
		strings.Contains(msg, "bad handshake") ||
		strings.Contains(msg, "reset by peer")
}

// Close shuts down the shared browser and the playwright driver.
func (e *PlaywrightEngine) Close() error {
	e.mu.Lock()
	shared := e.shared
	e.shared = nil
	e.mu.Unlock()

	var errs []string
	if shared != nil && shared.IsConnected() {
		if err := shared.Close(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if err := e.pw.Stop(); err != nil {
		errs = append(errs, err.Error())
	}
	if len(errs) > 0 {
		return fmt.Errorf("close playwright engine: %s", strings.Join(errs, "; "))
	}
	return nil
}

// playwrightHandles are what a driver tears down on Close: the context it
// created, its own CDP connection and the hosted session behind it.
type playwrightHandles struct {
	context  playwright.BrowserContext
	conn     playwright.Browser
	release  func() error
	liveView string
}

type playwrightDriver struct {
	page   playwright.Page
	owned  playwrightHandles
	closed atomic.Bool
}

func newPlaywrightDriver(page playwright.Page, timeout time.Duration, owned playwrightHandles) *playwrightDriver {
	if timeout > 0 {
		page.SetDefaultTimeout(float64(timeout.Milliseconds()))
	}
	return &playwrightDriver{page: page, owned: owned}
}

func (d *playwrightDriver) check(ctx context.Context) error {
	if d.closed.Load() || d.page.IsClosed() {
		return ErrPageClosed
	}
	return ctx.Err()
}

func (d *playwrightDriver) Goto(ctx context.Context, url string) error {
	if err := d.check(ctx); err != nil {
		return err
	}
	_, err := d.page.Goto(url, playwright.PageGotoOptions{WaitUntil: playwright.WaitUntilStateDomcontentloaded})
	return err
}

func (d *playwrightDriver) Click(ctx context.Context, selector string) error {
	if err := d.check(ctx); err != nil {
		return err
	}
	return d.page.Locator(selector).First().Click()
}

func (d *playwrightDriver) Fill(ctx context.Context, selector, value string) error {
	if err := d.check(ctx); err != nil {
		return err
	}
	return d.page.Locator(selector).First().Fill(value)
}

func (d *playwrightDriver) ScrollIntoView(ctx context.Context, selector string) error {
	if err := d.check(ctx); err != nil {
		return err
	}
	return d.page.Locator(selector).First().ScrollIntoViewIfNeeded()
}

func (d *playwrightDriver) ScrollBy(ctx context.Context, dx, dy int) error {
	if err := d.check(ctx); err != nil {
		return err
	}
	_, err := d.page.Evaluate(`([dx, dy]) => window.scrollBy(dx, dy)`, []int{dx, dy})
	return err
}

func (d *playwrightDriver) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	if err := d.check(ctx); err != nil {
		return err
	}
	return d.page.Locator(selector).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
}

func (d *playwrightDriver) Screenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	if err := d.check(ctx); err != nil {
		return nil, err
	}
	return d.page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(fullPage),
		Type:     playwright.ScreenshotTypePng,
	})
}

func (d *playwrightDriver) Content(ctx context.Context) (string, error) {
	if err := d.check(ctx); err != nil {
		return "", err
	}
	return d.page.Content()
}

func (d *playwrightDriver) Title(ctx context.Context) (string, error) {
	if err := d.check(ctx); err != nil {
		return "", err
	}
	return d.page.Title()
}

func (d *playwrightDriver) Elements(ctx context.Context) ([]Element, error) {
	if err := d.check(ctx); err != nil {
		return nil, err
	}
	res, err := d.page.Evaluate(pageMapScript)
	if err != nil {
		return nil, err
	}
	raw, ok := res.(string)
	if !ok {
		return nil, fmt.Errorf("page map script returned %T", res)
	}
	return parseElements(raw)
}

func (d *playwrightDriver) URL() string {
	if d.closed.Load() {
		return ""
	}
	return d.page.URL()
}

func (d *playwrightDriver) LiveViewURL() string { return d.owned.liveView }

// Close releases the session's context, then its connection and hosted browser.
func (d *playwrightDriver) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	var errs []error
	if d.owned.context != nil {
		if err := d.owned.context.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close context: %w", err))
		}
	}
	if d.owned.conn != nil {
		if err := d.owned.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close connection: %w", err))
		}
	}
	if d.owned.release != nil {
		if err := d.owned.release(); err != nil {
			errs = append(errs, fmt.Errorf("release hosted browser: %w", err))
		}
	}
	return errors.Join(errs...)
}

// EncodePNG renders a screenshot as a data URI.
func EncodePNG(png []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
}
