package driver

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/babelcloud/voicepilot/config"
	"github.com/babelcloud/voicepilot/pkg/logger"
)

// RodEngine drives Chromium directly over CDP. Each session gets its own
// incognito browser context.
type RodEngine struct {
	cfg     config.BrowserConfig
	log     *logger.Logger
	mu      sync.Mutex
	browser *rod.Browser
	launch  *launcher.Launcher
}

func NewRodEngine(cfg config.BrowserConfig, log *logger.Logger) *RodEngine {
	return &RodEngine{cfg: cfg, log: log}
}

func (e *RodEngine) Name() string { return "rod" }

func (e *RodEngine) connect(ctx context.Context) (*rod.Browser, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.browser != nil {
		return e.browser, nil
	}

	controlURL := e.cfg.RemoteEndpoint()
	if controlURL == "" {
		path := e.cfg.BinPath
		if path == "" {
			path, _ = launcher.LookPath()
		}
		l := launcher.New().Headless(e.cfg.Headless)
		if path != "" {
			l = l.Bin(path)
		}
		u, err := l.Context(ctx).Launch()
		if err != nil {
			return nil, fmt.Errorf("failed to launch browser: %w", err)
		}
		e.launch = l
		controlURL = u
		e.log.Info("Launched local Chromium via rod (headless: %v)", e.cfg.Headless)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}
	e.browser = b
	return b, nil
}

func (e *RodEngine) Open(ctx context.Context, sessionID string) (Driver, error) {
	b, err := e.connect(ctx)
	if err != nil {
		return nil, err
	}
	incognito, err := b.Incognito()
	if err != nil {
		return nil, fmt.Errorf("failed to create context for session %s: %w", sessionID, err)
	}
	page, err := incognito.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = incognito.Close()
		return nil, fmt.Errorf("failed to create page for session %s: %w", sessionID, err)
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             e.cfg.ViewportWidth,
		Height:            e.cfg.ViewportHeight,
		DeviceScaleFactor: 1,
	}); err != nil {
		_ = incognito.Close()
		return nil, fmt.Errorf("failed to set viewport for session %s: %w", sessionID, err)
	}

	timeout := e.cfg.DefaultTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &rodDriver{page: page, incognito: incognito, timeout: timeout}, nil
}

func (e *RodEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var err error
	if e.browser != nil {
		err = e.browser.Close()
		e.browser = nil
	}
	if e.launch != nil {
		e.launch.Cleanup()
		e.launch = nil
	}
	return err
}

type rodDriver struct {
	page      *rod.Page
	incognito *rod.Browser
	timeout   time.Duration
	closed    atomic.Bool
}

// scoped returns the page bound to ctx with the default timeout; the caller
// must call CancelTimeout on it.
func (d *rodDriver) scoped(ctx context.Context, timeout time.Duration) (*rod.Page, error) {
	if d.closed.Load() {
		return nil, ErrPageClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = d.timeout
	}
	return d.page.Context(ctx).Timeout(timeout), nil
}

func (d *rodDriver) Goto(ctx context.Context, url string) error {
	p, err := d.scoped(ctx, 0)
	if err != nil {
		return err
	}
	defer p.CancelTimeout()
	if err := p.Navigate(url); err != nil {
		return err
	}
	return p.WaitDOMStable(300*time.Millisecond, 0.1)
}

func (d *rodDriver) element(ctx context.Context, selector string, fn func(*rod.Element) error) error {
	p, err := d.scoped(ctx, 0)
	if err != nil {
		return err
	}
	defer p.CancelTimeout()
	el, err := p.Element(selector)
	if err != nil {
		return err
	}
	return fn(el)
}

func (d *rodDriver) Click(ctx context.Context, selector string) error {
	return d.element(ctx, selector, func(el *rod.Element) error {
		return el.Click(proto.InputMouseButtonLeft, 1)
	})
}

func (d *rodDriver) Fill(ctx context.Context, selector, value string) error {
	return d.element(ctx, selector, func(el *rod.Element) error {
		_ = el.SelectAllText()
		return el.Input(value)
	})
}

func (d *rodDriver) ScrollIntoView(ctx context.Context, selector string) error {
	return d.element(ctx, selector, func(el *rod.Element) error {
		return el.ScrollIntoView()
	})
}

func (d *rodDriver) ScrollBy(ctx context.Context, dx, dy int) error {
	p, err := d.scoped(ctx, 0)
	if err != nil {
		return err
	}
	defer p.CancelTimeout()
	_, err = p.Eval(`(dx, dy) => window.scrollBy(dx, dy)`, dx, dy)
	return err
}

func (d *rodDriver) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	p, err := d.scoped(ctx, timeout)
	if err != nil {
		return err
	}
	defer p.CancelTimeout()
	el, err := p.Element(selector)
	if err != nil {
		return err
	}
	return el.WaitVisible()
}

func (d *rodDriver) Screenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	p, err := d.scoped(ctx, 0)
	if err != nil {
		return nil, err
	}
	defer p.CancelTimeout()
	return p.Screenshot(fullPage, &proto.PageCaptureScreenshot{Format: proto.PageCaptureScreenshotFormatPng})
}

func (d *rodDriver) Content(ctx context.Context) (string, error) {
	p, err := d.scoped(ctx, 0)
	if err != nil {
		return "", err
	}
	defer p.CancelTimeout()
	return p.HTML()
}

func (d *rodDriver) Title(ctx context.Context) (string, error) {
	p, err := d.scoped(ctx, 0)
	if err != nil {
		return "", err
	}
	defer p.CancelTimeout()
	info, err := p.Info()
	if err != nil {
		return "", err
	}
	return info.Title, nil
}

func (d *rodDriver) Elements(ctx context.Context) ([]Element, error) {
	p, err := d.scoped(ctx, 0)
	if err != nil {
		return nil, err
	}
	defer p.CancelTimeout()
	res, err := p.Eval(pageMapScript)
	if err != nil {
		return nil, err
	}
	return parseElements(res.Value.Str())
}

func (d *rodDriver) URL() string {
	if d.closed.Load() {
		return ""
	}
	info, err := d.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

func (d *rodDriver) LiveViewURL() string { return "" }

func (d *rodDriver) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	_ = d.page.Close()
	return d.incognito.Close()
}
