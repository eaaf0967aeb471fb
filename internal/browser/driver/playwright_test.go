package driver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/babelcloud/voicepilot/config"
	"github.com/babelcloud/voicepilot/pkg/logger"
)

type fakePWPage struct {
	playwright.Page
	timeout float64
}

func (p *fakePWPage) SetDefaultTimeout(timeout float64) { p.timeout = timeout }
func (p *fakePWPage) IsClosed() bool                    { return false }
func (p *fakePWPage) URL() string                       { return "about:blank" }

type fakeContext struct {
	playwright.BrowserContext
	pages  []playwright.Page
	closed bool
}

func (c *fakeContext) Pages() []playwright.Page { return c.pages }

func (c *fakeContext) NewPage() (playwright.Page, error) {
	p := &fakePWPage{}
	c.pages = append(c.pages, p)
	return p, nil
}

func (c *fakeContext) Close(...playwright.BrowserContextCloseOptions) error {
	c.closed = true
	return nil
}

// fakeBrowser is one CDP connection. Every connection to the same remote
// browser sees its default context.
type fakeBrowser struct {
	playwright.Browser
	contexts []playwright.BrowserContext
	created  []*fakeContext
	closed   bool
}

func (b *fakeBrowser) Contexts() []playwright.BrowserContext { return b.contexts }

func (b *fakeBrowser) NewContext(...playwright.BrowserNewContextOptions) (playwright.BrowserContext, error) {
	c := &fakeContext{}
	b.contexts = append(b.contexts, c)
	b.created = append(b.created, c)
	return c, nil
}

func (b *fakeBrowser) Close(...playwright.BrowserCloseOptions) error {
	b.closed = true
	return nil
}

type fakeRemote struct {
	defaultCtx  *fakeContext
	endpoints   []string
	connections []*fakeBrowser
	err         error
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{defaultCtx: &fakeContext{pages: []playwright.Page{&fakePWPage{}}}}
}

func (r *fakeRemote) connect(endpoint string) (playwright.Browser, error) {
	r.endpoints = append(r.endpoints, endpoint)
	if r.err != nil {
		return nil, r.err
	}
	b := &fakeBrowser{contexts: []playwright.BrowserContext{r.defaultCtx}}
	r.connections = append(r.connections, b)
	return b, nil
}

func newRemoteEngine(cfg config.BrowserConfig, remote *fakeRemote) *PlaywrightEngine {
	return &PlaywrightEngine{cfg: cfg, log: logger.New(), connect: remote.connect}
}

func TestSharedEndpointIsolatesSessions(t *testing.T) {
	remote := newFakeRemote()
	e := newRemoteEngine(config.BrowserConfig{
		Endpoint:       "ws://127.0.0.1:9222/devtools/browser/x",
		DefaultTimeout: time.Second,
	}, remote)

	d1, err := e.Open(context.Background(), "s1")
	require.NoError(t, err)
	d2, err := e.Open(context.Background(), "s2")
	require.NoError(t, err)
	p1, p2 := d1.(*playwrightDriver), d2.(*playwrightDriver)

	defaultPage := remote.defaultCtx.pages[0]
	assert.NotSame(t, p1.page, p2.page)
	assert.NotSame(t, defaultPage, p1.page)
	assert.NotSame(t, defaultPage, p2.page)
	require.Len(t, remote.connections, 2)
	for _, c := range remote.connections {
		assert.Len(t, c.created, 1)
	}
	assert.Equal(t, 1000.0, p1.page.(*fakePWPage).timeout)
	assert.Empty(t, d1.LiveViewURL())

	require.NoError(t, d1.Close())
	assert.True(t, remote.connections[0].created[0].closed)
	assert.True(t, remote.connections[0].closed)
	assert.False(t, remote.connections[1].created[0].closed)
	assert.False(t, remote.connections[1].closed)
	assert.False(t, remote.defaultCtx.closed)

	require.NoError(t, d1.Close())
	require.NoError(t, d2.Close())
	assert.True(t, remote.connections[1].created[0].closed)
}

func TestDedicatedEndpointReusesDefaultPage(t *testing.T) {
	remote := newFakeRemote()
	e := newRemoteEngine(config.BrowserConfig{BrowserbaseAPIKey: "bb"}, remote)

	d, err := e.Open(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"wss://connect.browserbase.com?apiKey=bb"}, remote.endpoints)
	assert.Same(t, remote.defaultCtx.pages[0], d.(*playwrightDriver).page)
	assert.Empty(t, remote.connections[0].created)

	require.NoError(t, d.Close())
	assert.True(t, remote.connections[0].closed)
	assert.False(t, remote.defaultCtx.closed)
}

type fakeBrowserbase struct {
	*httptest.Server
	mu       sync.Mutex
	created  int
	released []string
}

func newFakeBrowserbase(t *testing.T) *fakeBrowserbase {
	t.Helper()
	bb := &fakeBrowserbase{}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/sessions", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "bb-key", r.Header.Get("X-BB-API-Key"))
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "proj", body["projectId"])
		bb.mu.Lock()
		bb.created++
		bb.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "bb1", "connectUrl": "wss://connect.example/bb1"})
	})
	mux.HandleFunc("GET /v1/sessions/bb1/debug", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{
			"debuggerUrl":           "https://live.example/bb1/inspector",
			"debuggerFullscreenUrl": "https://live.example/bb1",
		})
	})
	mux.HandleFunc("POST /v1/sessions/bb1", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		bb.mu.Lock()
		bb.released = append(bb.released, body["status"])
		bb.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "bb1"})
	})
	bb.Server = httptest.NewServer(mux)
	t.Cleanup(bb.Close)
	return bb
}

func (bb *fakeBrowserbase) releases() []string {
	bb.mu.Lock()
	defer bb.mu.Unlock()
	return append([]string(nil), bb.released...)
}

func TestHostedSessionLifecycle(t *testing.T) {
	tests := []struct {
		name        string
		connectErr  error
		wantErr     bool
		wantRelease []string
	}{
		{name: "open then close", wantRelease: []string{"REQUEST_RELEASE"}},
		{name: "connect failure releases", connectErr: errors.New("unexpected server response"), wantErr: true, wantRelease: []string{"REQUEST_RELEASE"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bb := newFakeBrowserbase(t)
			remote := newFakeRemote()
			remote.err = tt.connectErr
			cfg := config.BrowserConfig{BrowserbaseAPIKey: "bb-key", BrowserbaseProjectID: "proj", BrowserbaseURL: bb.URL}
			e := newRemoteEngine(cfg, remote)
			e.hosted = newBrowserbaseClient(cfg.BrowserbaseURL, cfg.BrowserbaseAPIKey, cfg.BrowserbaseProjectID, bb.Client())

			d, err := e.Open(context.Background(), "s1")
			assert.Equal(t, []string{"wss://connect.example/bb1"}, remote.endpoints)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, tt.wantRelease, bb.releases())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "https://live.example/bb1", d.LiveViewURL())
			assert.Empty(t, bb.releases())

			require.NoError(t, d.Close())
			assert.Equal(t, tt.wantRelease, bb.releases())
			assert.True(t, remote.connections[0].closed)
		})
	}
}

func TestBrowserbaseErrorsSurface(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "project over quota", http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)

	remote := newFakeRemote()
	cfg := config.BrowserConfig{BrowserbaseAPIKey: "bb-key", BrowserbaseProjectID: "proj"}
	e := newRemoteEngine(cfg, remote)
	e.hosted = newBrowserbaseClient(srv.URL, "bb-key", "proj", srv.Client())

	_, err := e.Open(context.Background(), "s1")
	assert.ErrorContains(t, err, "status 429: project over quota")
	assert.Empty(t, remote.endpoints)
}
